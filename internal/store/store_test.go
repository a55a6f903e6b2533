package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/CharlyBGood/planificadorfinanciero/internal/core"
	"github.com/CharlyBGood/planificadorfinanciero/internal/gateway"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// testGateway is a hand-rolled TransactionStore with failure injection and
// direct control over the realtime feed.
type testGateway struct {
	mu        sync.Mutex
	seq       int
	txs       []core.Transaction
	hub       *gateway.Hub[gateway.TransactionEvent]
	listErr   error
	insertErr error
	deleteErr error
	// publishOnInsert mirrors a backend that echoes every mutation back
	// over the realtime channel.
	publishOnInsert bool
	publishOnDelete bool
}

func newTestGateway() *testGateway {
	return &testGateway{hub: gateway.NewHub[gateway.TransactionEvent]()}
}

func (g *testGateway) ListTransactions(_ context.Context, userID string) ([]core.Transaction, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.listErr != nil {
		return nil, g.listErr
	}
	out := make([]core.Transaction, 0)
	for i := len(g.txs) - 1; i >= 0; i-- {
		if g.txs[i].UserID == userID {
			out = append(out, g.txs[i])
		}
	}
	return out, nil
}

func (g *testGateway) InsertTransaction(_ context.Context, t core.Transaction) (core.Transaction, error) {
	g.mu.Lock()
	if g.insertErr != nil {
		g.mu.Unlock()
		return core.Transaction{}, g.insertErr
	}
	g.seq++
	t.ID = fmt.Sprintf("srv-%d", g.seq)
	t.CreatedAt = time.Now().UTC()
	g.txs = append(g.txs, t)
	publish := g.publishOnInsert
	g.mu.Unlock()

	if publish {
		g.hub.Publish(t.UserID, gateway.TransactionEvent{Kind: gateway.Insert, Transaction: t})
	}
	return t, nil
}

func (g *testGateway) DeleteTransaction(_ context.Context, id, userID string) (int64, error) {
	g.mu.Lock()
	if g.deleteErr != nil {
		g.mu.Unlock()
		return 0, g.deleteErr
	}
	var removed *core.Transaction
	for i, t := range g.txs {
		if t.ID == id && t.UserID == userID {
			tx := t
			removed = &tx
			g.txs = append(g.txs[:i], g.txs[i+1:]...)
			break
		}
	}
	publish := g.publishOnDelete
	g.mu.Unlock()

	if removed == nil {
		return 0, nil
	}
	if publish {
		g.hub.Publish(userID, gateway.TransactionEvent{Kind: gateway.Delete, Transaction: *removed})
	}
	return 1, nil
}

func (g *testGateway) SubscribeTransactions(userID string) (<-chan gateway.TransactionEvent, func()) {
	return g.hub.Subscribe(userID)
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestInitializeLoadsNewestFirst(t *testing.T) {
	gw := newTestGateway()
	ctx := context.Background()
	if _, err := gw.InsertTransaction(ctx, core.Transaction{Description: "Salary", Amount: dec("1000"), UserID: "u1"}); err != nil {
		t.Fatal(err)
	}
	if _, err := gw.InsertTransaction(ctx, core.Transaction{Description: "Rent", Amount: dec("-400"), UserID: "u1"}); err != nil {
		t.Fatal(err)
	}

	s := New(gw, DefaultConfig())
	defer s.Close()
	if err := s.Initialize(ctx, "u1"); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	snap := s.Snapshot()
	if !snap.Initialized || snap.Loading || snap.Err != "" {
		t.Errorf("unexpected snapshot flags: %+v", snap)
	}
	if len(snap.Transactions) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(snap.Transactions))
	}
	if snap.Transactions[0].Description != "Rent" {
		t.Errorf("expected newest first, got %s", snap.Transactions[0].Description)
	}
	if !core.Balance(snap.Transactions).Equal(dec("600")) {
		t.Errorf("expected balance 600, got %s", core.Balance(snap.Transactions))
	}
}

func TestInitializeWithoutUserClearsAndMarksReady(t *testing.T) {
	gw := newTestGateway()
	s := New(gw, DefaultConfig())
	defer s.Close()

	if err := s.Initialize(context.Background(), ""); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	snap := s.Snapshot()
	if !snap.Initialized || snap.Loading || len(snap.Transactions) != 0 {
		t.Errorf("expected empty ready store, got %+v", snap)
	}
}

func TestInitializeFetchFailure(t *testing.T) {
	gw := newTestGateway()
	gw.listErr = errors.New("backend down")

	s := New(gw, DefaultConfig())
	defer s.Close()

	if err := s.Initialize(context.Background(), "u1"); err == nil {
		t.Fatal("expected error")
	}

	snap := s.Snapshot()
	if !snap.Initialized {
		t.Error("failed load must still mark initialized")
	}
	if snap.Err == "" {
		t.Error("expected error message")
	}
	if len(snap.Transactions) != 0 {
		t.Error("expected empty list after failed load")
	}
}

func TestAddOptimisticReplacesTempWithServerRecord(t *testing.T) {
	gw := newTestGateway()
	s := New(gw, DefaultConfig())
	defer s.Close()
	ctx := context.Background()
	if err := s.Initialize(ctx, "u1"); err != nil {
		t.Fatal(err)
	}

	created, err := s.Add(ctx, "Salary", dec("1000"), "")
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	snap := s.Snapshot()
	if len(snap.Transactions) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(snap.Transactions))
	}
	if snap.Transactions[0].ID != created.ID {
		t.Errorf("temp id not replaced: %s", snap.Transactions[0].ID)
	}

	muts := s.Mutations()
	if len(muts) != 1 || muts[0].Status != MutationConfirmed {
		t.Errorf("expected confirmed mutation, got %+v", muts)
	}
}

func TestAddDedupesAgainstRealtimeEcho(t *testing.T) {
	gw := newTestGateway()
	gw.publishOnInsert = true

	s := New(gw, DefaultConfig())
	defer s.Close()
	ctx := context.Background()
	if err := s.Initialize(ctx, "u1"); err != nil {
		t.Fatal(err)
	}

	created, err := s.Add(ctx, "Salary", dec("1000"), "")
	if err != nil {
		t.Fatal(err)
	}

	// Whatever order the echo and the response land in, exactly one copy
	// must remain.
	waitFor(t, func() bool {
		snap := s.Snapshot()
		if len(snap.Transactions) != 1 {
			return false
		}
		return snap.Transactions[0].ID == created.ID
	}, "expected exactly one copy of the transaction")

	// Give a late echo a chance to introduce a duplicate.
	time.Sleep(50 * time.Millisecond)
	if n := len(s.Snapshot().Transactions); n != 1 {
		t.Errorf("duplicate after realtime echo: %d records", n)
	}
}

func TestAddFailureRollsBack(t *testing.T) {
	gw := newTestGateway()
	s := New(gw, DefaultConfig())
	defer s.Close()
	ctx := context.Background()
	if err := s.Initialize(ctx, "u1"); err != nil {
		t.Fatal(err)
	}
	gw.insertErr = errors.New("insert rejected")

	if _, err := s.Add(ctx, "Salary", dec("1000"), ""); err == nil {
		t.Fatal("expected error")
	}

	snap := s.Snapshot()
	if len(snap.Transactions) != 0 {
		t.Errorf("optimistic record not rolled back: %+v", snap.Transactions)
	}
	if snap.Err == "" {
		t.Error("expected error message")
	}
	muts := s.Mutations()
	if len(muts) != 1 || muts[0].Status != MutationRolledBack {
		t.Errorf("expected rolled-back mutation, got %+v", muts)
	}
}

func TestAddRequiresUser(t *testing.T) {
	s := New(newTestGateway(), DefaultConfig())
	defer s.Close()
	if err := s.Initialize(context.Background(), ""); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Add(context.Background(), "Salary", dec("1000"), ""); !errors.Is(err, core.ErrNoUser) {
		t.Errorf("expected ErrNoUser, got %v", err)
	}
}

func TestAddRejectsInvalidInput(t *testing.T) {
	s := New(newTestGateway(), DefaultConfig())
	defer s.Close()
	ctx := context.Background()
	if err := s.Initialize(ctx, "u1"); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Add(ctx, "", dec("10"), ""); !errors.Is(err, core.ErrEmptyDescription) {
		t.Errorf("expected ErrEmptyDescription, got %v", err)
	}
	if _, err := s.Add(ctx, "x", decimal.Zero, ""); !errors.Is(err, core.ErrZeroAmount) {
		t.Errorf("expected ErrZeroAmount, got %v", err)
	}
	if len(s.Snapshot().Transactions) != 0 {
		t.Error("validation failures must not touch the list")
	}
}

func TestDeleteFailureRestoresRecordInPlace(t *testing.T) {
	gw := newTestGateway()
	s := New(gw, DefaultConfig())
	defer s.Close()
	ctx := context.Background()
	if err := s.Initialize(ctx, "u1"); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Add(ctx, "Salary", dec("1000"), ""); err != nil {
		t.Fatal(err)
	}
	victim, err := s.Add(ctx, "Rent", dec("-400"), "")
	if err != nil {
		t.Fatal(err)
	}
	before := s.Snapshot().Transactions

	gw.deleteErr = errors.New("delete rejected")
	if err := s.Delete(ctx, victim.ID); err == nil {
		t.Fatal("expected error")
	}

	snap := s.Snapshot()
	if len(snap.Transactions) != len(before) {
		t.Fatalf("expected %d transactions, got %d", len(before), len(snap.Transactions))
	}
	for i := range before {
		if snap.Transactions[i].ID != before[i].ID {
			t.Errorf("position %d changed: %s vs %s", i, snap.Transactions[i].ID, before[i].ID)
		}
	}
	if snap.Err == "" {
		t.Error("expected error message")
	}
}

func TestDeleteSuccess(t *testing.T) {
	gw := newTestGateway()
	gw.publishOnDelete = true
	s := New(gw, DefaultConfig())
	defer s.Close()
	ctx := context.Background()
	if err := s.Initialize(ctx, "u1"); err != nil {
		t.Fatal(err)
	}

	tx, err := s.Add(ctx, "Salary", dec("1000"), "")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, tx.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if len(s.Snapshot().Transactions) != 0 {
		t.Error("transaction should be gone")
	}

	// The realtime DELETE echo must be a no-op.
	time.Sleep(20 * time.Millisecond)
	if len(s.Snapshot().Transactions) != 0 {
		t.Error("delete echo changed state")
	}
}

func TestDeleteUnknownIDIsNoop(t *testing.T) {
	s := New(newTestGateway(), DefaultConfig())
	defer s.Close()
	ctx := context.Background()
	if err := s.Initialize(ctx, "u1"); err != nil {
		t.Fatal(err)
	}

	if err := s.Delete(ctx, "missing"); err != nil {
		t.Errorf("deleting an unknown id should be a no-op, got %v", err)
	}
}

func TestMergeIsIdempotent(t *testing.T) {
	gw := newTestGateway()
	s := New(gw, DefaultConfig())
	defer s.Close()
	ctx := context.Background()
	if err := s.Initialize(ctx, "u1"); err != nil {
		t.Fatal(err)
	}

	ev := gateway.TransactionEvent{
		Kind: gateway.Insert,
		Transaction: core.Transaction{
			ID: "srv-9", Description: "Remote", Amount: dec("20"), UserID: "u1",
		},
	}
	gw.hub.Publish("u1", ev)
	gw.hub.Publish("u1", ev)

	waitFor(t, func() bool {
		return len(s.Snapshot().Transactions) == 1
	}, "expected exactly one record after duplicate INSERT")

	del := gateway.TransactionEvent{Kind: gateway.Delete, Transaction: ev.Transaction}
	gw.hub.Publish("u1", del)
	gw.hub.Publish("u1", del)

	waitFor(t, func() bool {
		return len(s.Snapshot().Transactions) == 0
	}, "expected empty list after duplicate DELETE")
}

func TestRealtimeUpdateReplacesRecord(t *testing.T) {
	gw := newTestGateway()
	s := New(gw, DefaultConfig())
	defer s.Close()
	ctx := context.Background()
	if err := s.Initialize(ctx, "u1"); err != nil {
		t.Fatal(err)
	}
	tx, err := s.Add(ctx, "Salary", dec("1000"), "")
	if err != nil {
		t.Fatal(err)
	}

	updated := tx
	updated.Description = "Salary (fixed)"
	gw.hub.Publish("u1", gateway.TransactionEvent{Kind: gateway.Update, Transaction: updated})

	waitFor(t, func() bool {
		snap := s.Snapshot()
		return len(snap.Transactions) == 1 &&
			snap.Transactions[0].Description == "Salary (fixed)"
	}, "expected UPDATE to replace the record")
}

func TestUserSwitchTearsDownSubscription(t *testing.T) {
	gw := newTestGateway()
	s := New(gw, DefaultConfig())
	defer s.Close()
	ctx := context.Background()

	if err := s.Initialize(ctx, "u1"); err != nil {
		t.Fatal(err)
	}
	if gw.hub.SubscriberCount() != 1 {
		t.Fatalf("expected 1 subscriber, got %d", gw.hub.SubscriberCount())
	}

	if err := s.Initialize(ctx, "u2"); err != nil {
		t.Fatal(err)
	}
	if gw.hub.SubscriberCount() != 1 {
		t.Errorf("old subscription leaked: %d subscribers", gw.hub.SubscriberCount())
	}

	// Events for the old user must not land in the new state.
	gw.hub.Publish("u1", gateway.TransactionEvent{
		Kind:        gateway.Insert,
		Transaction: core.Transaction{ID: "stale", UserID: "u1"},
	})
	time.Sleep(20 * time.Millisecond)
	if len(s.Snapshot().Transactions) != 0 {
		t.Error("stale event applied after user switch")
	}
}

func TestConfirmStrategyWaitsForRealtimeEvent(t *testing.T) {
	gw := newTestGateway()
	gw.publishOnInsert = true
	s := New(gw, Config{Strategy: WriteConfirm})
	defer s.Close()
	ctx := context.Background()
	if err := s.Initialize(ctx, "u1"); err != nil {
		t.Fatal(err)
	}

	created, err := s.Add(ctx, "Salary", dec("1000"), "")
	if err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool {
		snap := s.Snapshot()
		return len(snap.Transactions) == 1 && snap.Transactions[0].ID == created.ID
	}, "expected realtime INSERT to populate the list")

	if n := len(s.Snapshot().Transactions); n != 1 {
		t.Errorf("expected single record, got %d", n)
	}
}

func TestCloseStopsEventLoop(t *testing.T) {
	gw := newTestGateway()
	s := New(gw, DefaultConfig())
	ctx := context.Background()
	if err := s.Initialize(ctx, "u1"); err != nil {
		t.Fatal(err)
	}

	s.Close()
	if gw.hub.SubscriberCount() != 0 {
		t.Errorf("subscription leaked after close: %d", gw.hub.SubscriberCount())
	}

	if err := s.Initialize(ctx, "u1"); err == nil {
		t.Error("initialize after close should fail")
	}
}
