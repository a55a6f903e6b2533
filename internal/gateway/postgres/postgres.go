// Package postgres is the gateway adapter for shared deployments. Writes
// go through a pgx pool; realtime events arrive over LISTEN/NOTIFY so
// changes made by other instances reach local subscribers too.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/CharlyBGood/planificadorfinanciero/internal/core"
	"github.com/CharlyBGood/planificadorfinanciero/internal/gateway"
)

type Store struct {
	pool *pgxpool.Pool

	mu       sync.Mutex
	current  *core.Principal
	watchers map[int]func(*core.Principal)
	nextW    int

	txHub  *gateway.Hub[gateway.TransactionEvent]
	objHub *gateway.Hub[gateway.ObjectiveEvent]

	listenCancel context.CancelFunc
	listenDone   chan struct{}
}

var _ gateway.Gateway = (*Store)(nil)
var _ gateway.Authenticator = (*Store)(nil)

// New connects to the database, brings the schema up to date and starts
// the notification listener.
func New(ctx context.Context, dsn string) (*Store, error) {
	if err := runMigrations(dsn); err != nil {
		return nil, err
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &Store{
		pool:       pool,
		watchers:   make(map[int]func(*core.Principal)),
		txHub:      gateway.NewHub[gateway.TransactionEvent](),
		objHub:     gateway.NewHub[gateway.ObjectiveEvent](),
		listenDone: make(chan struct{}),
	}

	listenCtx, cancel := context.WithCancel(context.Background())
	s.listenCancel = cancel
	go s.listen(listenCtx)

	return s, nil
}

func (s *Store) Close() error {
	s.listenCancel()
	<-s.listenDone
	s.pool.Close()
	return nil
}

func (s *Store) RegisterUser(ctx context.Context, email, password string) (core.Principal, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return core.Principal{}, fmt.Errorf("hash password: %w", err)
	}

	id := uuid.NewString()
	_, err = s.pool.Exec(ctx,
		`INSERT INTO users (id, email, password_hash) VALUES ($1, $2, $3)`,
		id, email, string(hash))
	if err != nil {
		return core.Principal{}, fmt.Errorf("insert user: %w", err)
	}
	return core.Principal{ID: id, Email: email}, nil
}

func (s *Store) SignIn(ctx context.Context, email, password string) (core.Principal, error) {
	var id, hash string
	err := s.pool.QueryRow(ctx,
		`SELECT id, password_hash FROM users WHERE email = $1`, email).Scan(&id, &hash)
	if errors.Is(err, pgx.ErrNoRows) {
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

	for _, fn := range watchers {
		fn(p)
	}
}

func (s *Store) ListTransactions(ctx context.Context, userID string) ([]core.Transaction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, description, amount::text, category_id, user_id, created_at
		 FROM transactions WHERE user_id = $1
		 ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	out := make([]core.Transaction, 0)
	for rows.Next() {
		var t core.Transaction
		var amount string
		if err := rows.Scan(&t.ID, &t.Description, &amount, &t.CategoryID, &t.UserID, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		if t.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("parse amount of %s: %w", t.ID, err)
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
	_, err := s.pool.Exec(ctx,
		`INSERT INTO transactions (id, description, amount, category_id, user_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		t.ID, t.Description, t.Amount.String(), t.CategoryID, t.UserID, t.CreatedAt)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}
	return t, nil
}

func (s *Store) DeleteTransaction(ctx context.Context, id, userID string) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM transactions WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return 0, fmt.Errorf("delete transaction: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) SubscribeTransactions(userID string) (<-chan gateway.TransactionEvent, func()) {
	return s.txHub.Subscribe(userID)
}

func (s *Store) ListObjectives(ctx context.Context, userID string) ([]core.Objective, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, description, target_amount::text, color, user_id, created_at
		 FROM objectives WHERE user_id = $1
		 ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query objectives: %w", err)
	}
	defer rows.Close()

	out := make([]core.Objective, 0)
	for rows.Next() {
		o, err := scanObjective(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *Store) GetObjective(ctx context.Context, id, userID string) (core.Objective, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, name, description, target_amount::text, color, user_id, created_at
		 FROM objectives WHERE id = $1 AND user_id = $2`, id, userID)
	o, err := scanObjective(row.Scan)
	if errors.Is(err, pgx.ErrNoRows) {
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
	_, err := s.pool.Exec(ctx,
		`INSERT INTO objectives (id, name, description, target_amount, color, user_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		o.ID, o.Name, o.Description, nullTarget(o.TargetAmount), o.Color, o.UserID, o.CreatedAt)
	if err != nil {
		return core.Objective{}, fmt.Errorf("insert objective: %w", err)
	}
	return o, nil
}

func (s *Store) UpdateObjective(ctx context.Context, o core.Objective) (int64, error) {
	if err := o.Validate(); err != nil {
		return 0, err
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE objectives SET name = $1, description = $2, target_amount = $3, color = $4
		 WHERE id = $5 AND user_id = $6`,
		o.Name, o.Description, nullTarget(o.TargetAmount), o.Color, o.ID, o.UserID)
	if err != nil {
		return 0, fmt.Errorf("update objective: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) DeleteObjective(ctx context.Context, id, userID string) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM objectives WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return 0, fmt.Errorf("delete objective: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) SubscribeObjectives(userID string) (<-chan gateway.ObjectiveEvent, func()) {
	return s.objHub.Subscribe(userID)
}

func (s *Store) ListDocuments(ctx context.Context, userID string) ([]core.Document, error) {
	rows, err := s.pool.Query(ctx, documentSelect+
		` WHERE user_id = $1 ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	out := make([]core.Document, 0)
	for rows.Next() {
		d, err := scanDocument(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) GetDocument(ctx context.Context, id, userID string) (core.Document, error) {
	row := s.pool.QueryRow(ctx, documentSelect+
		` WHERE id = $1 AND user_id = $2`, id, userID)
	d, err := scanDocument(row.Scan)
	if errors.Is(err, pgx.ErrNoRows) {
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
	_, err := s.pool.Exec(ctx,
		`INSERT INTO documents (id, type, title, client_name, client_email, description,
		        company_name, logo_url, payment_method, paid_ars, paid_usd, total, user_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		d.ID, string(d.Type), d.Title, d.ClientName, d.ClientEmail, d.Description,
		d.CompanyName, d.LogoURL, d.PaymentMethod,
		d.PaidARS.String(), d.PaidUSD.String(), d.Total.String(), d.UserID, d.CreatedAt)
	if err != nil {
		return core.Document{}, fmt.Errorf("insert document: %w", err)
	}
	return d, nil
}

func (s *Store) UpdateDocument(ctx context.Context, d core.Document) (int64, error) {
	if err := d.Validate(); err != nil {
		return 0, err
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE documents SET type = $1, title = $2, client_name = $3, client_email = $4,
		        description = $5, company_name = $6, logo_url = $7, payment_method = $8,
		        paid_ars = $9, paid_usd = $10, total = $11
		 WHERE id = $12 AND user_id = $13`,
		string(d.Type), d.Title, d.ClientName, d.ClientEmail,
		d.Description, d.CompanyName, d.LogoURL, d.PaymentMethod,
		d.PaidARS.String(), d.PaidUSD.String(), d.Total.String(),
		d.ID, d.UserID)
	if err != nil {
		return 0, fmt.Errorf("update document: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) DeleteDocument(ctx context.Context, id, userID string) (int64, error) {
	var itemCount int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM document_items WHERE document_id = $1`, id).Scan(&itemCount)
	if err != nil {
		return 0, fmt.Errorf("count document items: %w", err)
	}
	if itemCount > 0 {
		return 0, fmt.Errorf("document %s still has items", id)
	}

	tag, err := s.pool.Exec(ctx,
		`DELETE FROM documents WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return 0, fmt.Errorf("delete document: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) ListDocumentItems(ctx context.Context, documentID string) ([]core.DocumentItem, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, document_id, description, quantity::text, unit_price::text, currency
		 FROM document_items WHERE document_id = $1`, documentID)
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
	_, err := s.pool.Exec(ctx,
		`INSERT INTO document_items (id, document_id, description, quantity, unit_price, currency)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		it.ID, it.DocumentID, it.Description, it.Quantity.String(), it.UnitPrice.String(), string(it.Currency))
	if err != nil {
		return core.DocumentItem{}, fmt.Errorf("insert document item: %w", err)
	}
	return it, nil
}

func (s *Store) DeleteDocumentItems(ctx context.Context, documentID string) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM document_items WHERE document_id = $1`, documentID)
	if err != nil {
		return 0, fmt.Errorf("delete document items: %w", err)
	}
	return tag.RowsAffected(), nil
}

const documentSelect = `SELECT id, type, title, client_name, client_email, description,
        company_name, logo_url, payment_method,
        paid_ars::text, paid_usd::text, total::text, user_id, created_at
 FROM documents`

func scanObjective(scan func(...any) error) (core.Objective, error) {
	var o core.Objective
	var targetAmount *string
	err := scan(&o.ID, &o.Name, &o.Description, &targetAmount, &o.Color, &o.UserID, &o.CreatedAt)
	if err != nil {
		return core.Objective{}, err
	}
	if targetAmount != nil {
		d, err := decimal.NewFromString(*targetAmount)
		if err != nil {
			return core.Objective{}, fmt.Errorf("parse target of %s: %w", o.ID, err)
		}
		o.TargetAmount = decimal.NullDecimal{Decimal: d, Valid: true}
	}
	return o, nil
}

func scanDocument(scan func(...any) error) (core.Document, error) {
	var d core.Document
	var docType, paidARS, paidUSD, total string
	err := scan(&d.ID, &docType, &d.Title, &d.ClientName, &d.ClientEmail, &d.Description,
		&d.CompanyName, &d.LogoURL, &d.PaymentMethod, &paidARS, &paidUSD, &total, &d.UserID, &d.CreatedAt)
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
	return d, nil
}

func nullTarget(t decimal.NullDecimal) any {
	if !t.Valid {
		return nil
	}
	return t.Decimal.String()
}
