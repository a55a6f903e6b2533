// Package drive uploads document logos to a shared Google Drive folder
// and hands back public links.
package drive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	gdrive "google.golang.org/api/drive/v3"
	goption "google.golang.org/api/option"

	"github.com/CharlyBGood/planificadorfinanciero/internal/gateway"
)

type Client struct {
	svc      *gdrive.Service
	folderID string
}

var _ gateway.LogoStore = (*Client)(nil)

// NewFromEnv creates a Drive client using environment variables.
// Required: GOOGLE_DRIVE_FOLDER_ID plus service account credentials via
// GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or
// GOOGLE_APPLICATION_CREDENTIALS.
func NewFromEnv(ctx context.Context) (*Client, error) {
	folderID := strings.TrimSpace(os.Getenv("GOOGLE_DRIVE_FOLDER_ID"))
	if folderID == "" {
		return nil, errors.New("missing GOOGLE_DRIVE_FOLDER_ID")
	}

	svc, err := newDriveService(ctx)
	if err != nil {
		return nil, fmt.Errorf("drive service: %w", err)
	}

	return &Client{svc: svc, folderID: folderID}, nil
}

func newDriveService(ctx context.Context) (*gdrive.Service, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	var err error
	switch {
	case serviceAccountJSON != "":
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		credentialsJSON, err = os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gdrive.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gdrive.DriveFileScope))
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}
	return service, nil
}

// Upload stores the file under bucket/filename inside the configured
// folder and makes it readable by link.
func (c *Client) Upload(ctx context.Context, bucket, filename string, data []byte) (string, error) {
	meta := &gdrive.File{
		Name:    fmt.Sprintf("%s/%s", bucket, filename),
		Parents: []string{c.folderID},
	}

	file, err := c.svc.Files.Create(meta).
		Media(bytes.NewReader(data)).
		Fields("id, webContentLink").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("upload logo: %w", err)
	}

	_, err = c.svc.Permissions.Create(file.Id, &gdrive.Permission{
		Type: "anyone",
		Role: "reader",
	}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("share logo: %w", err)
	}

	url := file.WebContentLink
	if url == "" {
		url = fmt.Sprintf("https://drive.google.com/uc?id=%s", file.Id)
	}

	slog.InfoContext(ctx, "Logo uploaded to Drive", "file_id", file.Id, "name", meta.Name)
	return url, nil
}
