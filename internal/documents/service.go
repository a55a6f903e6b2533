package documents

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/CharlyBGood/planificadorfinanciero/internal/core"
	"github.com/CharlyBGood/planificadorfinanciero/internal/gateway"
)

// LogoBucket is the object bucket document logos are uploaded to.
const LogoBucket = "document_bucket"

type (
	// ItemInput is one line of a document as supplied by the caller.
	ItemInput struct {
		Description string
		Quantity    decimal.Decimal
		UnitPrice   decimal.Decimal
		Currency    core.Currency
	}

	// LogoUpload is an optional logo image to attach to a document.
	LogoUpload struct {
		Filename string
		Data     []byte
	}

	// Input carries everything needed to create or replace a document.
	// Total is never accepted from the caller; it is recomputed from Items.
	Input struct {
		Type          core.DocumentType
		Title         string
		ClientName    string
		ClientEmail   string
		Description   string
		CompanyName   string
		PaymentMethod string
		PaidARS       decimal.Decimal
		PaidUSD       decimal.Decimal
		Items         []ItemInput
		Logo          *LogoUpload
	}

	// Service manages billing documents and their line items. Logos are
	// uploaded through an optional LogoStore; when the store is absent or
	// the upload fails the document is saved without a logo.
	Service struct {
		docs  gateway.DocumentStore
		logos gateway.LogoStore
	}
)

func NewService(docs gateway.DocumentStore, logos gateway.LogoStore) *Service {
	return &Service{docs: docs, logos: logos}
}

func (s *Service) List(ctx context.Context, userID string) ([]core.Document, error) {
	if userID == "" {
		return nil, core.ErrNoUser
	}
	docs, err := s.docs.ListDocuments(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

func (s *Service) Get(ctx context.Context, id, userID string) (core.Document, []core.DocumentItem, error) {
	doc, err := s.docs.GetDocument(ctx, id, userID)
	if err != nil {
		return core.Document{}, nil, fmt.Errorf("get document: %w", err)
	}
	items, err := s.docs.ListDocumentItems(ctx, doc.ID)
	if err != nil {
		return core.Document{}, nil, fmt.Errorf("list document items: %w", err)
	}
	return doc, items, nil
}

// Create stores the document first and its items after, so items always
// reference a persisted document. If any item insert fails the document
// and the items written so far are removed again.
func (s *Service) Create(ctx context.Context, userID string, in Input) (core.Document, []core.DocumentItem, error) {
	doc, items, err := s.build(userID, in)
	if err != nil {
		return core.Document{}, nil, err
	}

	doc.LogoURL = s.uploadLogo(ctx, userID, in.Logo)

	created, err := s.docs.InsertDocument(ctx, doc)
	if err != nil {
		return core.Document{}, nil, fmt.Errorf("insert document: %w", err)
	}

	stored, err := s.insertItems(ctx, created.ID, items)
	if err != nil {
		s.discard(ctx, created.ID, userID)
		return core.Document{}, nil, err
	}

	slog.InfoContext(ctx, "Document created",
		"id", created.ID, "type", created.Type, "items", len(stored), "user_id", userID)
	return created, stored, nil
}

// Update replaces the document and all of its items. Items are not
// diffed; the existing set is deleted and the new set inserted.
func (s *Service) Update(ctx context.Context, id, userID string, in Input) (core.Document, []core.DocumentItem, error) {
	current, err := s.docs.GetDocument(ctx, id, userID)
	if err != nil {
		return core.Document{}, nil, fmt.Errorf("get document: %w", err)
	}

	doc, items, err := s.build(userID, in)
	if err != nil {
		return core.Document{}, nil, err
	}
	doc.ID = current.ID
	doc.CreatedAt = current.CreatedAt
	doc.LogoURL = current.LogoURL
	if in.Logo != nil {
		if url := s.uploadLogo(ctx, userID, in.Logo); url != "" {
			doc.LogoURL = url
		}
	}

	n, err := s.docs.UpdateDocument(ctx, doc)
	if err != nil {
		return core.Document{}, nil, fmt.Errorf("update document: %w", err)
	}
	if n == 0 {
		return core.Document{}, nil, fmt.Errorf("document %s not found", id)
	}

	if _, err := s.docs.DeleteDocumentItems(ctx, doc.ID); err != nil {
		return core.Document{}, nil, fmt.Errorf("delete document items: %w", err)
	}
	stored, err := s.insertItems(ctx, doc.ID, items)
	if err != nil {
		return core.Document{}, nil, err
	}

	slog.InfoContext(ctx, "Document updated", "id", doc.ID, "items", len(stored), "user_id", userID)
	return doc, stored, nil
}

// Delete removes the items before the document itself.
func (s *Service) Delete(ctx context.Context, id, userID string) error {
	doc, err := s.docs.GetDocument(ctx, id, userID)
	if err != nil {
		return fmt.Errorf("get document: %w", err)
	}

	if _, err := s.docs.DeleteDocumentItems(ctx, doc.ID); err != nil {
		return fmt.Errorf("delete document items: %w", err)
	}
	n, err := s.docs.DeleteDocument(ctx, doc.ID, userID)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("document %s not found", id)
	}

	slog.InfoContext(ctx, "Document deleted", "id", doc.ID, "user_id", userID)
	return nil
}

// Totals reports total, paid and due per currency, in currency order
// ARS then USD. Currencies with no items and no payment are omitted.
func Totals(doc core.Document, items []core.DocumentItem) []core.CurrencyTotals {
	var out []core.CurrencyTotals
	for _, c := range []core.Currency{core.ARS, core.USD} {
		ct := core.TotalsForCurrency(items, c, doc.Paid(c))
		if ct.Total.IsZero() && ct.Paid.IsZero() {
			continue
		}
		out = append(out, ct)
	}
	return out
}

func (s *Service) build(userID string, in Input) (core.Document, []core.DocumentItem, error) {
	if len(in.Items) == 0 {
		return core.Document{}, nil, core.ErrNoItems
	}

	items := make([]core.DocumentItem, len(in.Items))
	for i, it := range in.Items {
		items[i] = core.DocumentItem{
			Description: it.Description,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			Currency:    it.Currency,
		}
		if err := items[i].Validate(); err != nil {
			return core.Document{}, nil, fmt.Errorf("item %d: %w", i+1, err)
		}
	}

	doc := core.Document{
		Type:          in.Type,
		Title:         in.Title,
		ClientName:    in.ClientName,
		ClientEmail:   in.ClientEmail,
		Description:   in.Description,
		CompanyName:   in.CompanyName,
		PaymentMethod: in.PaymentMethod,
		PaidARS:       in.PaidARS,
		PaidUSD:       in.PaidUSD,
		Total:         core.DocumentTotal(items),
		UserID:        userID,
	}
	if err := doc.Validate(); err != nil {
		return core.Document{}, nil, err
	}
	return doc, items, nil
}

func (s *Service) insertItems(ctx context.Context, documentID string, items []core.DocumentItem) ([]core.DocumentItem, error) {
	stored := make([]core.DocumentItem, 0, len(items))
	for _, it := range items {
		it.DocumentID = documentID
		created, err := s.docs.InsertDocumentItem(ctx, it)
		if err != nil {
			return nil, fmt.Errorf("insert document item: %w", err)
		}
		stored = append(stored, created)
	}
	return stored, nil
}

func (s *Service) uploadLogo(ctx context.Context, userID string, logo *LogoUpload) string {
	if logo == nil || s.logos == nil || len(logo.Data) == 0 {
		return ""
	}

	url, err := s.logos.Upload(ctx, LogoBucket, fmt.Sprintf("%s/%s", userID, logo.Filename), logo.Data)
	if err != nil {
		slog.WarnContext(ctx, "Logo upload failed, saving document without logo", "error", err)
		return ""
	}
	return url
}

func (s *Service) discard(ctx context.Context, documentID, userID string) {
	if _, err := s.docs.DeleteDocumentItems(ctx, documentID); err != nil {
		slog.ErrorContext(ctx, "Failed to clean up items of aborted document", "id", documentID, "error", err)
		return
	}
	if _, err := s.docs.DeleteDocument(ctx, documentID, userID); err != nil {
		slog.ErrorContext(ctx, "Failed to clean up aborted document", "id", documentID, "error", err)
	}
}
