// Package sqlite is a file-backed gateway adapter for single machine
// deployments. Realtime events are fanned out in process after each
// committed write.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	_ "modernc.org/sqlite"

	"github.com/CharlyBGood/planificadorfinanciero/internal/core"
	"github.com/CharlyBGood/planificadorfinanciero/internal/gateway"
)

type Store struct {
	db       *sql.DB
	logosDir string

	mu       sync.Mutex
	current  *core.Principal
	watchers map[int]func(*core.Principal)
	nextW    int

	txHub  *gateway.Hub[gateway.TransactionEvent]
	objHub *gateway.Hub[gateway.ObjectiveEvent]
}

var _ gateway.Gateway = (*Store)(nil)
var _ gateway.LogoStore = (*Store)(nil)
var _ gateway.Authenticator = (*Store)(nil)

// New opens (creating if needed) the database at dbPath and brings its
// schema up to date. Logos are stored next to the database file.
func New(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{
		db:       db,
		logosDir: filepath.Join(filepath.Dir(dbPath), "logos"),
		watchers: make(map[int]func(*core.Principal)),
		txHub:    gateway.NewHub[gateway.TransactionEvent](),
		objHub:   gateway.NewHub[gateway.ObjectiveEvent](),
	}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// RegisterUser stores a credential for SignIn. The password is kept only
// as a bcrypt hash.
func (s *Store) RegisterUser(ctx context.Context, email, password string) (core.Principal, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return core.Principal{}, fmt.Errorf("hash password: %w", err)
	}

	id := uuid.NewString()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		id, email, string(hash), formatTime(time.Now().UTC()))
	if err != nil {
		return core.Principal{}, fmt.Errorf("insert user: %w", err)
	}
	return core.Principal{ID: id, Email: email}, nil
}

// SignIn verifies the credential and establishes the session, notifying
// session observers.
func (s *Store) SignIn(ctx context.Context, email, password string) (core.Principal, error) {
	var id, hash string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, password_hash FROM users WHERE email = ?`, email).Scan(&id, &hash)
	if err == sql.ErrNoRows {
		return core.Principal{}, fmt.Errorf("invalid credentials")
	}
	if err != nil {
		return core.Principal{}, fmt.Errorf("query user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return core.Principal{}, fmt.Errorf("invalid credentials")
	}

	principal := core.Principal{ID: id, Email: email}
	s.setPrincipal(&principal)
	return principal, nil
}

func (s *Store) Session(_ context.Context) (*core.Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil, nil
	}
	p := *s.current
	return &p, nil
}

func (s *Store) OnSessionChange(fn func(*core.Principal)) func() {
	s.mu.Lock()
	id := s.nextW
	s.nextW++
	s.watchers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.watchers, id)
		s.mu.Unlock()
	}
}

func (s *Store) SignOut(_ context.Context) error {
	s.setPrincipal(nil)
	return nil
}

func (s *Store) setPrincipal(p *core.Principal) {
	s.mu.Lock()
	s.current = p
	watchers := make([]func(*core.Principal), 0, len(s.watchers))
	for _, fn := range s.watchers {
		watchers = append(watchers, fn)
	}
	s.mu.Unlock()

	// Observers run outside the lock; they may call back into the store.
	for _, fn := range watchers {
		fn(p)
	}
}

func (s *Store) ListTransactions(ctx context.Context, userID string) ([]core.Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, description, amount, category_id, user_id, created_at
		 FROM transactions WHERE user_id = ?
		 ORDER BY created_at DESC, rowid DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	out := make([]core.Transaction, 0)
	for rows.Next() {
		var t core.Transaction
		var amount, createdAt string
		if err := rows.Scan(&t.ID, &t.Description, &amount, &t.CategoryID, &t.UserID, &createdAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		if t.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("parse amount of %s: %w", t.ID, err)
		}
		if t.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at of %s: %w", t.ID, err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) InsertTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}

	t.ID = uuid.NewString()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transactions (id, description, amount, category_id, user_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, t.Description, t.Amount.String(), t.CategoryID, t.UserID, formatTime(t.CreatedAt))
	if err != nil {
		return core.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}

	s.txHub.Publish(t.UserID, gateway.TransactionEvent{Kind: gateway.Insert, Transaction: t})
	return t, nil
}

func (s *Store) DeleteTransaction(ctx context.Context, id, userID string) (int64, error) {
	var t core.Transaction
	var amount, createdAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, description, amount, category_id, user_id, created_at
		 FROM transactions WHERE id = ? AND user_id = ?`, id, userID).
		Scan(&t.ID, &t.Description, &amount, &t.CategoryID, &t.UserID, &createdAt)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query transaction: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM transactions WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return 0, fmt.Errorf("delete transaction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		t.Amount, _ = decimal.NewFromString(amount)
		t.CreatedAt, _ = parseTime(createdAt)
		s.txHub.Publish(userID, gateway.TransactionEvent{Kind: gateway.Delete, Transaction: t})
	}
	return n, nil
}

func (s *Store) SubscribeTransactions(userID string) (<-chan gateway.TransactionEvent, func()) {
	return s.txHub.Subscribe(userID)
}

func (s *Store) ListObjectives(ctx context.Context, userID string) ([]core.Objective, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description, target_amount, color, user_id, created_at
		 FROM objectives WHERE user_id = ?
		 ORDER BY created_at DESC, rowid DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query objectives: %w", err)
	}
	defer rows.Close()

	out := make([]core.Objective, 0)
	for rows.Next() {
		o, err := scanObjective(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *Store) GetObjective(ctx context.Context, id, userID string) (core.Objective, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, target_amount, color, user_id, created_at
		 FROM objectives WHERE id = ? AND user_id = ?`, id, userID)
	o, err := scanObjective(row)
	if err == sql.ErrNoRows {
		return core.Objective{}, fmt.Errorf("objective %s not found", id)
	}
	return o, err
}

func (s *Store) InsertObjective(ctx context.Context, o core.Objective) (core.Objective, error) {
	if err := o.Validate(); err != nil {
		return core.Objective{}, err
	}

	o.ID = uuid.NewString()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO objectives (id, name, description, target_amount, color, user_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.Name, o.Description, nullTarget(o.TargetAmount), o.Color, o.UserID, formatTime(o.CreatedAt))
	if err != nil {
		return core.Objective{}, fmt.Errorf("insert objective: %w", err)
	}

	s.objHub.Publish(o.UserID, gateway.ObjectiveEvent{Kind: gateway.Insert, Objective: o})
	return o, nil
}

func (s *Store) UpdateObjective(ctx context.Context, o core.Objective) (int64, error) {
	if err := o.Validate(); err != nil {
		return 0, err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE objectives SET name = ?, description = ?, target_amount = ?, color = ?
		 WHERE id = ? AND user_id = ?`,
		o.Name, o.Description, nullTarget(o.TargetAmount), o.Color, o.ID, o.UserID)
	if err != nil {
		return 0, fmt.Errorf("update objective: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		s.objHub.Publish(o.UserID, gateway.ObjectiveEvent{Kind: gateway.Update, Objective: o})
	}
	return n, nil
}

func (s *Store) DeleteObjective(ctx context.Context, id, userID string) (int64, error) {
	o, err := s.GetObjective(ctx, id, userID)
	if err != nil {
		return 0, nil
	}

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM objectives WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return 0, fmt.Errorf("delete objective: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		s.objHub.Publish(userID, gateway.ObjectiveEvent{Kind: gateway.Delete, Objective: o})
	}
	return n, nil
}

func (s *Store) SubscribeObjectives(userID string) (<-chan gateway.ObjectiveEvent, func()) {
	return s.objHub.Subscribe(userID)
}

func (s *Store) ListDocuments(ctx context.Context, userID string) ([]core.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, type, title, client_name, client_email, description, company_name,
		        logo_url, payment_method, paid_ars, paid_usd, total, user_id, created_at
		 FROM documents WHERE user_id = ?
		 ORDER BY created_at DESC, rowid DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	out := make([]core.Document, 0)
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) GetDocument(ctx context.Context, id, userID string) (core.Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, type, title, client_name, client_email, description, company_name,
		        logo_url, payment_method, paid_ars, paid_usd, total, user_id, created_at
		 FROM documents WHERE id = ? AND user_id = ?`, id, userID)
	d, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return core.Document{}, fmt.Errorf("document %s not found", id)
	}
	return d, err
}

func (s *Store) InsertDocument(ctx context.Context, d core.Document) (core.Document, error) {
	if err := d.Validate(); err != nil {
		return core.Document{}, err
	}

	d.ID = uuid.NewString()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (id, type, title, client_name, client_email, description,
		        company_name, logo_url, payment_method, paid_ars, paid_usd, total, user_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, string(d.Type), d.Title, d.ClientName, d.ClientEmail, d.Description,
		d.CompanyName, d.LogoURL, d.PaymentMethod,
		d.PaidARS.String(), d.PaidUSD.String(), d.Total.String(), d.UserID, formatTime(d.CreatedAt))
	if err != nil {
		return core.Document{}, fmt.Errorf("insert document: %w", err)
	}
	return d, nil
}

func (s *Store) UpdateDocument(ctx context.Context, d core.Document) (int64, error) {
	if err := d.Validate(); err != nil {
		return 0, err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET type = ?, title = ?, client_name = ?, client_email = ?,
		        description = ?, company_name = ?, logo_url = ?, payment_method = ?,
		        paid_ars = ?, paid_usd = ?, total = ?
		 WHERE id = ? AND user_id = ?`,
		string(d.Type), d.Title, d.ClientName, d.ClientEmail,
		d.Description, d.CompanyName, d.LogoURL, d.PaymentMethod,
		d.PaidARS.String(), d.PaidUSD.String(), d.Total.String(),
		d.ID, d.UserID)
	if err != nil {
		return 0, fmt.Errorf("update document: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) DeleteDocument(ctx context.Context, id, userID string) (int64, error) {
	var itemCount int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM document_items WHERE document_id = ?`, id).Scan(&itemCount)
	if err != nil {
		return 0, fmt.Errorf("count document items: %w", err)
	}
	if itemCount > 0 {
		// Referential cleanup is the caller's job; refuse to orphan items.
		return 0, fmt.Errorf("document %s still has items", id)
	}

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return 0, fmt.Errorf("delete document: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) ListDocumentItems(ctx context.Context, documentID string) ([]core.DocumentItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document_id, description, quantity, unit_price, currency
		 FROM document_items WHERE document_id = ? ORDER BY rowid`, documentID)
	if err != nil {
		return nil, fmt.Errorf("query document items: %w", err)
	}
	defer rows.Close()

	out := make([]core.DocumentItem, 0)
	for rows.Next() {
		var it core.DocumentItem
		var quantity, unitPrice, currency string
		if err := rows.Scan(&it.ID, &it.DocumentID, &it.Description, &quantity, &unitPrice, &currency); err != nil {
			return nil, fmt.Errorf("scan document item: %w", err)
		}
		if it.Quantity, err = decimal.NewFromString(quantity); err != nil {
			return nil, fmt.Errorf("parse quantity of %s: %w", it.ID, err)
		}
		if it.UnitPrice, err = decimal.NewFromString(unitPrice); err != nil {
			return nil, fmt.Errorf("parse unit price of %s: %w", it.ID, err)
		}
		it.Currency = core.Currency(currency)
		out = append(out, it)
	}
	return out, rows.Err()
}

func (s *Store) InsertDocumentItem(ctx context.Context, it core.DocumentItem) (core.DocumentItem, error) {
	if err := it.Validate(); err != nil {
		return core.DocumentItem{}, err
	}

	it.ID = uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO document_items (id, document_id, description, quantity, unit_price, currency)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		it.ID, it.DocumentID, it.Description, it.Quantity.String(), it.UnitPrice.String(), string(it.Currency))
	if err != nil {
		return core.DocumentItem{}, fmt.Errorf("insert document item: %w", err)
	}
	return it, nil
}

func (s *Store) DeleteDocumentItems(ctx context.Context, documentID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM document_items WHERE document_id = ?`, documentID)
	if err != nil {
		return 0, fmt.Errorf("delete document items: %w", err)
	}
	return res.RowsAffected()
}

// TransactionFeed exposes every locally published transaction event,
// for the change bridge.
func (s *Store) TransactionFeed() (<-chan gateway.TransactionEvent, func()) {
	return s.txHub.Feed()
}

// ObjectiveFeed exposes every locally published objective event.
func (s *Store) ObjectiveFeed() (<-chan gateway.ObjectiveEvent, func()) {
	return s.objHub.Feed()
}

// ApplyTransactionEvent delivers an event received from another instance
// to local subscribers.
func (s *Store) ApplyTransactionEvent(ev gateway.TransactionEvent) {
	s.txHub.PublishRemote(ev.Transaction.UserID, ev)
}

// ApplyObjectiveEvent delivers an event received from another instance
// to local subscribers.
func (s *Store) ApplyObjectiveEvent(ev gateway.ObjectiveEvent) {
	s.objHub.PublishRemote(ev.Objective.UserID, ev)
}

// Upload writes the logo next to the database and returns a file URL.
func (s *Store) Upload(_ context.Context, bucket, filename string, data []byte) (string, error) {
	path := filepath.Join(s.logosDir, bucket, filepath.FromSlash(filename))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("create logo directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write logo: %w", err)
	}
	return "file://" + filepath.ToSlash(path), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanObjective(row scanner) (core.Objective, error) {
	var o core.Objective
	var targetAmount sql.NullString
	var createdAt string
	err := row.Scan(&o.ID, &o.Name, &o.Description, &targetAmount, &o.Color, &o.UserID, &createdAt)
	if err != nil {
		return core.Objective{}, err
	}
	if targetAmount.Valid {
		d, err := decimal.NewFromString(targetAmount.String)
		if err != nil {
			return core.Objective{}, fmt.Errorf("parse target of %s: %w", o.ID, err)
		}
		o.TargetAmount = decimal.NullDecimal{Decimal: d, Valid: true}
	}
	if o.CreatedAt, err = parseTime(createdAt); err != nil {
		return core.Objective{}, fmt.Errorf("parse created_at of %s: %w", o.ID, err)
	}
	return o, nil
}

func scanDocument(row scanner) (core.Document, error) {
	var d core.Document
	var docType, paidARS, paidUSD, total, createdAt string
	err := row.Scan(&d.ID, &docType, &d.Title, &d.ClientName, &d.ClientEmail, &d.Description,
		&d.CompanyName, &d.LogoURL, &d.PaymentMethod, &paidARS, &paidUSD, &total, &d.UserID, &createdAt)
	if err != nil {
		return core.Document{}, err
	}
	d.Type = core.DocumentType(docType)
	if d.PaidARS, err = decimal.NewFromString(paidARS); err != nil {
		return core.Document{}, fmt.Errorf("parse paid_ars of %s: %w", d.ID, err)
	}
	if d.PaidUSD, err = decimal.NewFromString(paidUSD); err != nil {
		return core.Document{}, fmt.Errorf("parse paid_usd of %s: %w", d.ID, err)
	}
	if d.Total, err = decimal.NewFromString(total); err != nil {
		return core.Document{}, fmt.Errorf("parse total of %s: %w", d.ID, err)
	}
	if d.CreatedAt, err = parseTime(createdAt); err != nil {
		return core.Document{}, fmt.Errorf("parse created_at of %s: %w", d.ID, err)
	}
	return d, nil
}

func nullTarget(t decimal.NullDecimal) any {
	if !t.Valid {
		return nil
	}
	return t.Decimal.String()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
