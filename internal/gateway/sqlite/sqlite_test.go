package sqlite

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/CharlyBGood/planificadorfinanciero/internal/core"
	"github.com/CharlyBGood/planificadorfinanciero/internal/gateway"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func open(t *testing.T) (*Store, string) {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "planificador.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	user, err := s.RegisterUser(context.Background(), "ana@example.com", "secret123")
	if err != nil {
		t.Fatalf("RegisterUser: %v", err)
	}
	return s, user.ID
}

func TestSignInAndSession(t *testing.T) {
	s, _ := open(t)
	ctx := context.Background()

	if _, err := s.SignIn(ctx, "ana@example.com", "wrong"); err == nil {
		t.Fatal("expected sign-in failure with wrong password")
	}
	if _, err := s.SignIn(ctx, "nobody@example.com", "secret123"); err == nil {
		t.Fatal("expected sign-in failure for unknown email")
	}

	p, err := s.SignIn(ctx, "ana@example.com", "secret123")
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}

	session, err := s.Session(ctx)
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	if session == nil || session.ID != p.ID {
		t.Fatalf("session = %+v, want principal %s", session, p.ID)
	}

	if err := s.SignOut(ctx); err != nil {
		t.Fatalf("SignOut: %v", err)
	}
	session, err = s.Session(ctx)
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	if session != nil {
		t.Fatalf("expected cleared session, got %+v", session)
	}
}

func TestTransactionsSurviveReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "planificador.db")
	ctx := context.Background()

	s, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	user, err := s.RegisterUser(ctx, "ana@example.com", "secret123")
	if err != nil {
		t.Fatalf("RegisterUser: %v", err)
	}
	created, err := s.InsertTransaction(ctx, core.Transaction{
		Description: "Sueldo",
		Amount:      dec("1000.50"),
		UserID:      user.ID,
	})
	if err != nil {
		t.Fatalf("InsertTransaction: %v", err)
	}
	s.Close()

	s, err = New(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	txs, err := s.ListTransactions(ctx, user.ID)
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if len(txs) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(txs))
	}
	if txs[0].ID != created.ID || !txs[0].Amount.Equal(dec("1000.50")) {
		t.Errorf("round trip changed transaction: %+v", txs[0])
	}
}

func TestTransactionsNewestFirstAndScoped(t *testing.T) {
	s, userID := open(t)
	ctx := context.Background()

	other, err := s.RegisterUser(ctx, "otro@example.com", "secret123")
	if err != nil {
		t.Fatalf("RegisterUser: %v", err)
	}

	base := time.Now().UTC().Add(-time.Hour)
	for i, desc := range []string{"primera", "segunda", "tercera"} {
		_, err := s.InsertTransaction(ctx, core.Transaction{
			Description: desc,
			Amount:      dec("10"),
			UserID:      userID,
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("InsertTransaction: %v", err)
		}
	}
	if _, err := s.InsertTransaction(ctx, core.Transaction{
		Description: "ajena", Amount: dec("99"), UserID: other.ID,
	}); err != nil {
		t.Fatalf("InsertTransaction: %v", err)
	}

	txs, err := s.ListTransactions(ctx, userID)
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if len(txs) != 3 {
		t.Fatalf("expected 3 transactions, got %d", len(txs))
	}
	if txs[0].Description != "tercera" || txs[2].Description != "primera" {
		t.Errorf("wrong order: %s, %s, %s", txs[0].Description, txs[1].Description, txs[2].Description)
	}
}

func TestDeleteTransactionScopedByOwner(t *testing.T) {
	s, userID := open(t)
	ctx := context.Background()

	tx, err := s.InsertTransaction(ctx, core.Transaction{
		Description: "Alquiler", Amount: dec("-400"), UserID: userID,
	})
	if err != nil {
		t.Fatalf("InsertTransaction: %v", err)
	}

	n, err := s.DeleteTransaction(ctx, tx.ID, "somebody-else")
	if err != nil {
		t.Fatalf("DeleteTransaction: %v", err)
	}
	if n != 0 {
		t.Fatalf("cross-user delete affected %d rows", n)
	}

	n, err = s.DeleteTransaction(ctx, tx.ID, userID)
	if err != nil {
		t.Fatalf("DeleteTransaction: %v", err)
	}
	if n != 1 {
		t.Fatalf("owner delete affected %d rows, want 1", n)
	}
}

func TestRealtimeEvents(t *testing.T) {
	s, userID := open(t)
	ctx := context.Background()

	events, cancel := s.SubscribeTransactions(userID)
	defer cancel()

	tx, err := s.InsertTransaction(ctx, core.Transaction{
		Description: "Sueldo", Amount: dec("1000"), UserID: userID,
	})
	if err != nil {
		t.Fatalf("InsertTransaction: %v", err)
	}

	select {
	case ev := <-events:
		if ev.Kind != gateway.Insert || ev.Transaction.ID != tx.ID {
			t.Errorf("unexpected event: %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for insert event")
	}

	if _, err := s.DeleteTransaction(ctx, tx.ID, userID); err != nil {
		t.Fatalf("DeleteTransaction: %v", err)
	}
	select {
	case ev := <-events:
		if ev.Kind != gateway.Delete || ev.Transaction.ID != tx.ID {
			t.Errorf("unexpected event: %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delete event")
	}
}

func TestObjectiveTargetRoundTrip(t *testing.T) {
	s, userID := open(t)
	ctx := context.Background()

	withTarget, err := s.InsertObjective(ctx, core.Objective{
		Name:         "Vacaciones",
		TargetAmount: decimal.NullDecimal{Decimal: dec("1200.75"), Valid: true},
		UserID:       userID,
	})
	if err != nil {
		t.Fatalf("InsertObjective: %v", err)
	}
	withoutTarget, err := s.InsertObjective(ctx, core.Objective{Name: "Libre", UserID: userID})
	if err != nil {
		t.Fatalf("InsertObjective: %v", err)
	}

	got, err := s.GetObjective(ctx, withTarget.ID, userID)
	if err != nil {
		t.Fatalf("GetObjective: %v", err)
	}
	if !got.TargetAmount.Valid || !got.TargetAmount.Decimal.Equal(dec("1200.75")) {
		t.Errorf("target round trip = %+v", got.TargetAmount)
	}

	got, err = s.GetObjective(ctx, withoutTarget.ID, userID)
	if err != nil {
		t.Fatalf("GetObjective: %v", err)
	}
	if got.TargetAmount.Valid {
		t.Errorf("expected null target, got %s", got.TargetAmount.Decimal)
	}
}

func TestUpdateObjective(t *testing.T) {
	s, userID := open(t)
	ctx := context.Background()

	obj, err := s.InsertObjective(ctx, core.Objective{Name: "Auto", UserID: userID})
	if err != nil {
		t.Fatalf("InsertObjective: %v", err)
	}

	obj.Name = "Auto usado"
	obj.TargetAmount = decimal.NullDecimal{Decimal: dec("5000"), Valid: true}
	n, err := s.UpdateObjective(ctx, obj)
	if err != nil {
		t.Fatalf("UpdateObjective: %v", err)
	}
	if n != 1 {
		t.Fatalf("update affected %d rows, want 1", n)
	}

	got, err := s.GetObjective(ctx, obj.ID, userID)
	if err != nil {
		t.Fatalf("GetObjective: %v", err)
	}
	if got.Name != "Auto usado" || !got.TargetAmount.Valid {
		t.Errorf("update not persisted: %+v", got)
	}
}

func TestDocumentDeleteRequiresItemCleanup(t *testing.T) {
	s, userID := open(t)
	ctx := context.Background()

	doc, err := s.InsertDocument(ctx, core.Document{
		Type:        core.Invoice,
		Title:       "Factura",
		ClientName:  "Cliente",
		CompanyName: "Empresa",
		Total:       dec("150"),
		UserID:      userID,
	})
	if err != nil {
		t.Fatalf("InsertDocument: %v", err)
	}
	if _, err := s.InsertDocumentItem(ctx, core.DocumentItem{
		DocumentID:  doc.ID,
		Description: "Servicio",
		Quantity:    dec("3"),
		UnitPrice:   dec("50"),
		Currency:    core.ARS,
	}); err != nil {
		t.Fatalf("InsertDocumentItem: %v", err)
	}

	if _, err := s.DeleteDocument(ctx, doc.ID, userID); err == nil {
		t.Fatal("expected delete to refuse while items exist")
	}

	if _, err := s.DeleteDocumentItems(ctx, doc.ID); err != nil {
		t.Fatalf("DeleteDocumentItems: %v", err)
	}
	n, err := s.DeleteDocument(ctx, doc.ID, userID)
	if err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}
	if n != 1 {
		t.Fatalf("delete affected %d rows, want 1", n)
	}
}

func TestUploadWritesFile(t *testing.T) {
	s, _ := open(t)

	url, err := s.Upload(context.Background(), "document_bucket", "user/logo.png", []byte{1, 2, 3})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if !strings.HasPrefix(url, "file://") {
		t.Errorf("url = %q, want file scheme", url)
	}
}
