package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/CharlyBGood/planificadorfinanciero/internal/core"
	"github.com/CharlyBGood/planificadorfinanciero/internal/gateway"
)

// The reconciling store owns the in-memory transaction list for the
// current user. Local mutations are applied optimistically and rolled back
// on failure; realtime events from the gateway are merged idempotently, so
// the list converges no matter how local writes and remote pushes
// interleave.

const (
	// WriteOptimistic applies mutations locally before the gateway call
	// and reconciles on the response.
	WriteOptimistic WriteStrategy = "optimistic"
	// WriteConfirm sends the mutation and relies exclusively on the
	// realtime feed to update the list.
	WriteConfirm WriteStrategy = "confirm"
)

const (
	MutationPending    MutationStatus = "pending"
	MutationConfirmed  MutationStatus = "confirmed"
	MutationRolledBack MutationStatus = "rolled-back"
)

type (
	WriteStrategy string

	MutationStatus string

	// Mutation is the tagged state of one in-flight local write, kept so
	// intermediate states can be observed and asserted.
	Mutation struct {
		ID            string
		Kind          gateway.ChangeKind
		Status        MutationStatus
		TransactionID string
		Err           string
	}

	// Snapshot is the externally visible state of the store.
	Snapshot struct {
		Transactions []core.Transaction
		Loading      bool
		Err          string
		Initialized  bool
	}

	Config struct {
		Strategy WriteStrategy
	}

	Store struct {
		gw     gateway.TransactionStore
		config Config

		mu           sync.Mutex
		userID       string
		transactions []core.Transaction
		loading      bool
		errMsg       string
		initialized  bool
		mutations    []Mutation
		generation   int
		closed       bool

		unsubscribe func()
		eventsDone  chan struct{}
	}
)

func DefaultConfig() Config {
	return Config{Strategy: WriteOptimistic}
}

func New(gw gateway.TransactionStore, config Config) *Store {
	if config.Strategy == "" {
		config.Strategy = WriteOptimistic
	}
	return &Store{gw: gw, config: config}
}

// Initialize loads the user's transactions and opens the realtime
// subscription. An empty userID clears the store and marks it ready.
// Any previous subscription is torn down first, so switching users never
// leaks a feed.
func (s *Store) Initialize(ctx context.Context, userID string) error {
	s.teardownSubscription()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("store is closed")
	}
	s.generation++
	gen := s.generation
	s.userID = userID
	s.transactions = nil
	s.errMsg = ""
	s.mutations = nil

	if userID == "" {
		s.loading = false
		s.initialized = true
		s.mu.Unlock()
		return nil
	}
	s.loading = true
	s.mu.Unlock()

	list, err := s.gw.ListTransactions(ctx, userID)

	s.mu.Lock()
	if s.closed || s.generation != gen {
		s.mu.Unlock()
		return nil
	}
	s.loading = false
	s.initialized = true
	if err != nil {
		s.errMsg = "could not load transactions"
		s.transactions = nil
		s.mu.Unlock()
		slog.ErrorContext(ctx, "Transaction fetch failed", "user_id", userID, "error", err)
		return fmt.Errorf("list transactions: %w", err)
	}
	s.transactions = list
	s.mu.Unlock()

	events, cancel := s.gw.SubscribeTransactions(userID)
	done := make(chan struct{})

	s.mu.Lock()
	if s.closed || s.generation != gen {
		s.mu.Unlock()
		cancel()
		close(done)
		return nil
	}
	s.unsubscribe = cancel
	s.eventsDone = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		for ev := range events {
			s.merge(gen, ev)
		}
	}()

	slog.InfoContext(ctx, "Store initialized",
		"user_id", userID, "transactions", len(list))
	return nil
}

// Add records a new transaction. With the optimistic strategy a temporary
// record is inserted immediately and replaced by the server-assigned one;
// on failure it is removed again. With the confirm strategy the list is
// only touched by the realtime INSERT event.
func (s *Store) Add(ctx context.Context, description string, amount decimal.Decimal, categoryID string) (core.Transaction, error) {
	s.mu.Lock()
	if s.userID == "" {
		s.mu.Unlock()
		return core.Transaction{}, core.ErrNoUser
	}
	userID := s.userID
	gen := s.generation
	s.mu.Unlock()

	tx := core.Transaction{
		Description: description,
		Amount:      amount,
		CategoryID:  categoryID,
		UserID:      userID,
	}
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}

	if s.config.Strategy == WriteConfirm {
		return s.addConfirm(ctx, gen, tx)
	}
	return s.addOptimistic(ctx, gen, tx)
}

func (s *Store) addOptimistic(ctx context.Context, gen int, tx core.Transaction) (core.Transaction, error) {
	tempID := "temp-" + uuid.NewString()

	s.mu.Lock()
	temp := tx
	temp.ID = tempID
	s.transactions = append([]core.Transaction{temp}, s.transactions...)
	mutIdx := s.trackMutation(Mutation{
		ID:            uuid.NewString(),
		Kind:          gateway.Insert,
		Status:        MutationPending,
		TransactionID: tempID,
	})
	s.mu.Unlock()

	created, err := s.gw.InsertTransaction(ctx, tx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.generation != gen {
		return created, err
	}
	if err != nil {
		s.removeLocked(tempID)
		s.errMsg = "could not add transaction"
		s.mutations[mutIdx].Status = MutationRolledBack
		s.mutations[mutIdx].Err = err.Error()
		slog.WarnContext(ctx, "Optimistic insert rolled back", "temp_id", tempID, "error", err)
		return core.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}

	s.mutations[mutIdx].Status = MutationConfirmed
	s.mutations[mutIdx].TransactionID = created.ID
	if s.containsLocked(created.ID) {
		// The realtime INSERT won the race; just drop the temp record.
		s.removeLocked(tempID)
	} else {
		s.replaceLocked(tempID, created)
	}
	return created, nil
}

func (s *Store) addConfirm(ctx context.Context, gen int, tx core.Transaction) (core.Transaction, error) {
	s.mu.Lock()
	s.loading = true
	mutIdx := s.trackMutation(Mutation{
		ID:     uuid.NewString(),
		Kind:   gateway.Insert,
		Status: MutationPending,
	})
	s.mu.Unlock()

	created, err := s.gw.InsertTransaction(ctx, tx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.generation != gen {
		return created, err
	}
	s.loading = false
	if err != nil {
		s.errMsg = "could not add transaction"
		s.mutations[mutIdx].Status = MutationRolledBack
		s.mutations[mutIdx].Err = err.Error()
		return core.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}
	s.mutations[mutIdx].Status = MutationConfirmed
	s.mutations[mutIdx].TransactionID = created.ID
	return created, nil
}

// Delete removes a transaction. Optimistically the record disappears
// immediately and is restored at its original position when the gateway
// rejects the delete.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	if s.userID == "" {
		s.mu.Unlock()
		return core.ErrNoUser
	}
	userID := s.userID
	gen := s.generation

	idx := s.indexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return nil
	}

	var mutIdx int
	optimistic := s.config.Strategy == WriteOptimistic
	removed := s.transactions[idx]
	if optimistic {
		s.transactions = append(s.transactions[:idx], s.transactions[idx+1:]...)
	}
	mutIdx = s.trackMutation(Mutation{
		ID:            uuid.NewString(),
		Kind:          gateway.Delete,
		Status:        MutationPending,
		TransactionID: id,
	})
	s.mu.Unlock()

	_, err := s.gw.DeleteTransaction(ctx, id, userID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.generation != gen {
		return err
	}
	if err != nil {
		if optimistic && !s.containsLocked(id) {
			s.insertAtLocked(idx, removed)
		}
		s.errMsg = "could not delete transaction"
		s.mutations[mutIdx].Status = MutationRolledBack
		s.mutations[mutIdx].Err = err.Error()
		slog.WarnContext(ctx, "Optimistic delete rolled back", "id", id, "error", err)
		return fmt.Errorf("delete transaction: %w", err)
	}
	s.mutations[mutIdx].Status = MutationConfirmed
	return nil
}

// merge applies one realtime event. It is idempotent: replaying an event
// leaves the list unchanged.
func (s *Store) merge(gen int, ev gateway.TransactionEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.generation != gen {
		return
	}

	switch ev.Kind {
	case gateway.Insert:
		if !s.containsLocked(ev.Transaction.ID) {
			s.transactions = append([]core.Transaction{ev.Transaction}, s.transactions...)
		}
	case gateway.Update:
		if idx := s.indexLocked(ev.Transaction.ID); idx >= 0 {
			s.transactions[idx] = ev.Transaction
		}
	case gateway.Delete:
		s.removeLocked(ev.Transaction.ID)
	}
}

// Snapshot returns a copy of the externally visible state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	txs := make([]core.Transaction, len(s.transactions))
	copy(txs, s.transactions)
	return Snapshot{
		Transactions: txs,
		Loading:      s.loading,
		Err:          s.errMsg,
		Initialized:  s.initialized,
	}
}

// Mutations returns the recorded mutation states, oldest first.
func (s *Store) Mutations() []Mutation {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Mutation, len(s.mutations))
	copy(out, s.mutations)
	return out
}

// ClearError dismisses the current error message.
func (s *Store) ClearError() {
	s.mu.Lock()
	s.errMsg = ""
	s.mu.Unlock()
}

// Close tears down the subscription and marks the store unusable.
func (s *Store) Close() {
	s.teardownSubscription()

	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *Store) teardownSubscription() {
	s.mu.Lock()
	cancel := s.unsubscribe
	done := s.eventsDone
	s.unsubscribe = nil
	s.eventsDone = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (s *Store) trackMutation(m Mutation) int {
	s.mutations = append(s.mutations, m)
	return len(s.mutations) - 1
}

func (s *Store) indexLocked(id string) int {
	for i, t := range s.transactions {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) containsLocked(id string) bool {
	return s.indexLocked(id) >= 0
}

func (s *Store) removeLocked(id string) {
	if idx := s.indexLocked(id); idx >= 0 {
		s.transactions = append(s.transactions[:idx], s.transactions[idx+1:]...)
	}
}

func (s *Store) replaceLocked(id string, tx core.Transaction) {
	if idx := s.indexLocked(id); idx >= 0 {
		s.transactions[idx] = tx
	}
}

func (s *Store) insertAtLocked(idx int, tx core.Transaction) {
	if idx > len(s.transactions) {
		idx = len(s.transactions)
	}
	s.transactions = append(s.transactions[:idx],
		append([]core.Transaction{tx}, s.transactions[idx:]...)...)
}
