package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/CharlyBGood/planificadorfinanciero/internal/core"
	"github.com/CharlyBGood/planificadorfinanciero/internal/gateway"
)

// Store is an in-process gateway adapter. It backs the default backend and
// every package test; semantics match the network adapters, including
// owner scoping and realtime fan-out.
type Store struct {
	mu       sync.Mutex
	seq      int64
	txs      map[string]core.Transaction
	txSeq    map[string]int64
	objs     map[string]core.Objective
	objSeq   map[string]int64
	docs     map[string]core.Document
	docSeq   map[string]int64
	items    map[string][]core.DocumentItem
	users    map[string]credential
	current  *core.Principal
	watchers map[int]func(*core.Principal)
	nextW    int
	objects  map[string][]byte

	txHub  *gateway.Hub[gateway.TransactionEvent]
	objHub *gateway.Hub[gateway.ObjectiveEvent]
}

type credential struct {
	id   string
	hash []byte
}

var _ gateway.Gateway = (*Store)(nil)
var _ gateway.LogoStore = (*Store)(nil)
var _ gateway.Authenticator = (*Store)(nil)

func New() *Store {
	return &Store{
		txs:      make(map[string]core.Transaction),
		txSeq:    make(map[string]int64),
		objs:     make(map[string]core.Objective),
		objSeq:   make(map[string]int64),
		docs:     make(map[string]core.Document),
		docSeq:   make(map[string]int64),
		items:    make(map[string][]core.DocumentItem),
		users:    make(map[string]credential),
		watchers: make(map[int]func(*core.Principal)),
		objects:  make(map[string][]byte),
		txHub:    gateway.NewHub[gateway.TransactionEvent](),
		objHub:   gateway.NewHub[gateway.ObjectiveEvent](),
	}
}

func (s *Store) Close() error { return nil }

// RegisterUser stores a credential for SignIn. The password is kept only
// as a bcrypt hash.
func (s *Store) RegisterUser(_ context.Context, email, password string) (core.Principal, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return core.Principal{}, fmt.Errorf("hash password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[email]; exists {
		return core.Principal{}, fmt.Errorf("user %s already registered", email)
	}
	cred := credential{id: uuid.NewString(), hash: hash}
	s.users[email] = cred
	return core.Principal{ID: cred.id, Email: email}, nil
}

// SignIn verifies the credential and establishes the session, notifying
// session observers.
func (s *Store) SignIn(_ context.Context, email, password string) (core.Principal, error) {
	s.mu.Lock()
	cred, ok := s.users[email]
	s.mu.Unlock()
	if !ok {
		return core.Principal{}, fmt.Errorf("invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword(cred.hash, []byte(password)); err != nil {
		return core.Principal{}, fmt.Errorf("invalid credentials")
	}

	principal := core.Principal{ID: cred.id, Email: email}
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

func (s *Store) ListTransactions(_ context.Context, userID string) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]core.Transaction, 0)
	for _, t := range s.txs {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	s.sortNewestFirst(out, s.txSeq)
	return out, nil
}

func (s *Store) InsertTransaction(_ context.Context, t core.Transaction) (core.Transaction, error) {
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}

	s.mu.Lock()
	t.ID = uuid.NewString()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	s.seq++
	s.txs[t.ID] = t
	s.txSeq[t.ID] = s.seq
	s.mu.Unlock()

	s.txHub.Publish(t.UserID, gateway.TransactionEvent{Kind: gateway.Insert, Transaction: t})
	return t, nil
}

func (s *Store) DeleteTransaction(_ context.Context, id, userID string) (int64, error) {
	s.mu.Lock()
	t, ok := s.txs[id]
	if !ok || t.UserID != userID {
		s.mu.Unlock()
		return 0, nil
	}
	delete(s.txs, id)
	delete(s.txSeq, id)
	s.mu.Unlock()

	s.txHub.Publish(userID, gateway.TransactionEvent{Kind: gateway.Delete, Transaction: t})
	return 1, nil
}

func (s *Store) SubscribeTransactions(userID string) (<-chan gateway.TransactionEvent, func()) {
	return s.txHub.Subscribe(userID)
}

func (s *Store) ListObjectives(_ context.Context, userID string) ([]core.Objective, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]core.Objective, 0)
	for _, o := range s.objs {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return s.objSeq[out[i].ID] > s.objSeq[out[j].ID]
	})
	return out, nil
}

func (s *Store) GetObjective(_ context.Context, id, userID string) (core.Objective, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.objs[id]
	if !ok || o.UserID != userID {
		return core.Objective{}, fmt.Errorf("objective %s not found", id)
	}
	return o, nil
}

func (s *Store) InsertObjective(_ context.Context, o core.Objective) (core.Objective, error) {
	if err := o.Validate(); err != nil {
		return core.Objective{}, err
	}

	s.mu.Lock()
	o.ID = uuid.NewString()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	s.seq++
	s.objs[o.ID] = o
	s.objSeq[o.ID] = s.seq
	s.mu.Unlock()

	s.objHub.Publish(o.UserID, gateway.ObjectiveEvent{Kind: gateway.Insert, Objective: o})
	return o, nil
}

func (s *Store) UpdateObjective(_ context.Context, o core.Objective) (int64, error) {
	if err := o.Validate(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	existing, ok := s.objs[o.ID]
	if !ok || existing.UserID != o.UserID {
		s.mu.Unlock()
		return 0, nil
	}
	o.CreatedAt = existing.CreatedAt
	s.objs[o.ID] = o
	s.mu.Unlock()

	s.objHub.Publish(o.UserID, gateway.ObjectiveEvent{Kind: gateway.Update, Objective: o})
	return 1, nil
}

func (s *Store) DeleteObjective(_ context.Context, id, userID string) (int64, error) {
	s.mu.Lock()
	o, ok := s.objs[id]
	if !ok || o.UserID != userID {
		s.mu.Unlock()
		return 0, nil
	}
	delete(s.objs, id)
	delete(s.objSeq, id)
	s.mu.Unlock()

	s.objHub.Publish(userID, gateway.ObjectiveEvent{Kind: gateway.Delete, Objective: o})
	return 1, nil
}

func (s *Store) SubscribeObjectives(userID string) (<-chan gateway.ObjectiveEvent, func()) {
	return s.objHub.Subscribe(userID)
}

func (s *Store) ListDocuments(_ context.Context, userID string) ([]core.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]core.Document, 0)
	for _, d := range s.docs {
		if d.UserID == userID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return s.docSeq[out[i].ID] > s.docSeq[out[j].ID]
	})
	return out, nil
}

func (s *Store) GetDocument(_ context.Context, id, userID string) (core.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.docs[id]
	if !ok || d.UserID != userID {
		return core.Document{}, fmt.Errorf("document %s not found", id)
	}
	return d, nil
}

func (s *Store) InsertDocument(_ context.Context, d core.Document) (core.Document, error) {
	if err := d.Validate(); err != nil {
		return core.Document{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	d.ID = uuid.NewString()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	s.seq++
	s.docs[d.ID] = d
	s.docSeq[d.ID] = s.seq
	return d, nil
}

func (s *Store) UpdateDocument(_ context.Context, d core.Document) (int64, error) {
	if err := d.Validate(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.docs[d.ID]
	if !ok || existing.UserID != d.UserID {
		return 0, nil
	}
	d.CreatedAt = existing.CreatedAt
	s.docs[d.ID] = d
	return 1, nil
}

func (s *Store) DeleteDocument(_ context.Context, id, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.docs[id]
	if !ok || d.UserID != userID {
		return 0, nil
	}
	if len(s.items[id]) > 0 {
		// Referential cleanup is the caller's job; refuse to orphan items.
		return 0, fmt.Errorf("document %s still has items", id)
	}
	delete(s.docs, id)
	delete(s.docSeq, id)
	delete(s.items, id)
	return 1, nil
}

func (s *Store) ListDocumentItems(_ context.Context, documentID string) ([]core.DocumentItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]core.DocumentItem, len(s.items[documentID]))
	copy(items, s.items[documentID])
	return items, nil
}

func (s *Store) InsertDocumentItem(_ context.Context, it core.DocumentItem) (core.DocumentItem, error) {
	if err := it.Validate(); err != nil {
		return core.DocumentItem{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[it.DocumentID]; !ok {
		return core.DocumentItem{}, fmt.Errorf("document %s not found", it.DocumentID)
	}
	it.ID = uuid.NewString()
	s.items[it.DocumentID] = append(s.items[it.DocumentID], it)
	return it, nil
}

func (s *Store) DeleteDocumentItems(_ context.Context, documentID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := int64(len(s.items[documentID]))
	delete(s.items, documentID)
	return n, nil
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

// Upload keeps the object in memory and returns a synthetic public URL.
func (s *Store) Upload(_ context.Context, bucket, filename string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := bucket + "/" + filename
	stored := make([]byte, len(data))
	copy(stored, data)
	s.objects[key] = stored
	return "mem://" + key, nil
}

// Object returns an uploaded object, used by tests.
func (s *Store) Object(bucket, filename string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[bucket+"/"+filename]
	return data, ok
}

func (s *Store) sortNewestFirst(txs []core.Transaction, seq map[string]int64) {
	sort.Slice(txs, func(i, j int) bool {
		return seq[txs[i].ID] > seq[txs[j].ID]
	})
}
