package gateway

import (
	"context"

	"github.com/CharlyBGood/planificadorfinanciero/internal/core"
)

// Ports for the remote data service. Every read and write on owned tables
// is scoped by the owning user id; adapters must never return or touch
// another user's rows.

const (
	Insert ChangeKind = "INSERT"
	Update ChangeKind = "UPDATE"
	Delete ChangeKind = "DELETE"
)

type (
	ChangeKind string

	// TransactionEvent is a realtime change pushed by the backend for one
	// transaction row.
	TransactionEvent struct {
		Kind        ChangeKind
		Transaction core.Transaction
	}

	// ObjectiveEvent is a realtime change for one objective row.
	ObjectiveEvent struct {
		Kind      ChangeKind
		Objective core.Objective
	}

	TransactionStore interface {
		// ListTransactions returns the user's transactions newest-first.
		ListTransactions(ctx context.Context, userID string) ([]core.Transaction, error)
		// InsertTransaction stores the record and returns it with the
		// backend-assigned id and timestamp.
		InsertTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)
		// DeleteTransaction removes the record scoped by id and owner,
		// returning the number of affected rows.
		DeleteTransaction(ctx context.Context, id, userID string) (int64, error)
		// SubscribeTransactions opens a realtime feed of changes for the
		// user. The returned cancel func tears the subscription down; it is
		// safe to call more than once.
		SubscribeTransactions(userID string) (<-chan TransactionEvent, func())
	}

	ObjectiveStore interface {
		ListObjectives(ctx context.Context, userID string) ([]core.Objective, error)
		GetObjective(ctx context.Context, id, userID string) (core.Objective, error)
		InsertObjective(ctx context.Context, o core.Objective) (core.Objective, error)
		UpdateObjective(ctx context.Context, o core.Objective) (int64, error)
		DeleteObjective(ctx context.Context, id, userID string) (int64, error)
		SubscribeObjectives(userID string) (<-chan ObjectiveEvent, func())
	}

	DocumentStore interface {
		ListDocuments(ctx context.Context, userID string) ([]core.Document, error)
		GetDocument(ctx context.Context, id, userID string) (core.Document, error)
		InsertDocument(ctx context.Context, d core.Document) (core.Document, error)
		UpdateDocument(ctx context.Context, d core.Document) (int64, error)
		DeleteDocument(ctx context.Context, id, userID string) (int64, error)
		ListDocumentItems(ctx context.Context, documentID string) ([]core.DocumentItem, error)
		InsertDocumentItem(ctx context.Context, it core.DocumentItem) (core.DocumentItem, error)
		DeleteDocumentItems(ctx context.Context, documentID string) (int64, error)
	}

	// Authenticator creates accounts and establishes sessions against
	// the external auth service.
	Authenticator interface {
		RegisterUser(ctx context.Context, email, password string) (core.Principal, error)
		SignIn(ctx context.Context, email, password string) (core.Principal, error)
	}

	// SessionProvider tracks the identity established by the external
	// auth service. Session changes are pushed to registered observers.
	SessionProvider interface {
		Session(ctx context.Context) (*core.Principal, error)
		// OnSessionChange registers an observer called with the new
		// principal (nil on sign-out). The returned func unregisters it.
		OnSessionChange(fn func(*core.Principal)) func()
		SignOut(ctx context.Context) error
	}

	// LogoStore uploads document logos to an object bucket and returns a
	// public URL. Upload failures must never block document writes.
	LogoStore interface {
		Upload(ctx context.Context, bucket, filename string, data []byte) (string, error)
	}

	// Gateway is the full capability surface of a remote data backend.
	Gateway interface {
		TransactionStore
		ObjectiveStore
		DocumentStore
		SessionProvider
		Close() error
	}
)

func (k ChangeKind) IsValid() bool {
	switch k {
	case Insert, Update, Delete:
		return true
	default:
		return false
	}
}
