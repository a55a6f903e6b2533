package core

import (
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func validTransaction() Transaction {
	return Transaction{
		Description: "Salary",
		Amount:      dec("1000"),
		UserID:      "user-1",
	}
}

func TestTransactionValidate(t *testing.T) {
	if err := validTransaction().Validate(); err != nil {
		t.Errorf("valid transaction rejected: %v", err)
	}

	tx := validTransaction()
	tx.Description = "   "
	if err := tx.Validate(); !errors.Is(err, ErrEmptyDescription) {
		t.Errorf("expected ErrEmptyDescription, got %v", err)
	}

	tx = validTransaction()
	tx.Description = strings.Repeat("x", 201)
	if err := tx.Validate(); err == nil {
		t.Error("expected error for overlong description")
	}

	tx = validTransaction()
	tx.Amount = decimal.Zero
	if err := tx.Validate(); !errors.Is(err, ErrZeroAmount) {
		t.Errorf("expected ErrZeroAmount, got %v", err)
	}

	tx = validTransaction()
	tx.UserID = ""
	if err := tx.Validate(); !errors.Is(err, ErrNoUser) {
		t.Errorf("expected ErrNoUser, got %v", err)
	}
}

func TestTransactionIsIncome(t *testing.T) {
	if !(Transaction{Amount: dec("5")}).IsIncome() {
		t.Error("positive amount should be income")
	}
	if (Transaction{Amount: dec("-5")}).IsIncome() {
		t.Error("negative amount should not be income")
	}
}

func TestObjectiveValidate(t *testing.T) {
	obj := Objective{Name: "Vacaciones", UserID: "user-1"}
	if err := obj.Validate(); err != nil {
		t.Errorf("valid objective rejected: %v", err)
	}

	obj.TargetAmount = target("500")
	if err := obj.Validate(); err != nil {
		t.Errorf("objective with target rejected: %v", err)
	}

	obj.TargetAmount = target("0")
	if err := obj.Validate(); !errors.Is(err, ErrInvalidTarget) {
		t.Errorf("expected ErrInvalidTarget, got %v", err)
	}

	obj = Objective{UserID: "user-1"}
	if err := obj.Validate(); !errors.Is(err, ErrEmptyName) {
		t.Errorf("expected ErrEmptyName, got %v", err)
	}
}

func validDocument() Document {
	return Document{
		Type:        Invoice,
		Title:       "Sitio web",
		ClientName:  "Acme SA",
		CompanyName: "Estudio CB",
		UserID:      "user-1",
	}
}

func TestDocumentValidate(t *testing.T) {
	if err := validDocument().Validate(); err != nil {
		t.Errorf("valid document rejected: %v", err)
	}

	doc := validDocument()
	doc.Type = "presupuesto"
	if err := doc.Validate(); !errors.Is(err, ErrUnknownDocumentType) {
		t.Errorf("expected ErrUnknownDocumentType, got %v", err)
	}

	doc = validDocument()
	doc.ClientEmail = "not-an-email"
	if err := doc.Validate(); !errors.Is(err, ErrInvalidClientEmail) {
		t.Errorf("expected ErrInvalidClientEmail, got %v", err)
	}

	doc = validDocument()
	doc.ClientEmail = "cliente@acme.test"
	if err := doc.Validate(); err != nil {
		t.Errorf("valid email rejected: %v", err)
	}

	doc = validDocument()
	doc.PaidARS = dec("-1")
	if err := doc.Validate(); !errors.Is(err, ErrNegativePaid) {
		t.Errorf("expected ErrNegativePaid, got %v", err)
	}
}

func TestDocumentPaid(t *testing.T) {
	doc := Document{PaidARS: dec("100"), PaidUSD: dec("20")}
	if !doc.Paid(ARS).Equal(dec("100")) {
		t.Errorf("expected 100 ARS paid, got %s", doc.Paid(ARS))
	}
	if !doc.Paid(USD).Equal(dec("20")) {
		t.Errorf("expected 20 USD paid, got %s", doc.Paid(USD))
	}
	if !doc.Paid("EUR").IsZero() {
		t.Error("unknown currency should report zero paid")
	}
}

func TestDocumentItemValidate(t *testing.T) {
	item := DocumentItem{
		Description: "Diseño",
		Quantity:    dec("2"),
		UnitPrice:   dec("75"),
		Currency:    ARS,
	}
	if err := item.Validate(); err != nil {
		t.Errorf("valid item rejected: %v", err)
	}

	bad := item
	bad.Quantity = decimal.Zero
	if err := bad.Validate(); !errors.Is(err, ErrInvalidQuantity) {
		t.Errorf("expected ErrInvalidQuantity, got %v", err)
	}

	bad = item
	bad.UnitPrice = dec("-5")
	if err := bad.Validate(); !errors.Is(err, ErrNegativeUnitPrice) {
		t.Errorf("expected ErrNegativeUnitPrice, got %v", err)
	}

	bad = item
	bad.Currency = "PESOS"
	if err := bad.Validate(); !errors.Is(err, ErrUnknownCurrency) {
		t.Errorf("expected ErrUnknownCurrency, got %v", err)
	}
}

func TestDocumentItemLineTotal(t *testing.T) {
	item := DocumentItem{Quantity: dec("3"), UnitPrice: dec("12.50")}
	if got := item.LineTotal(); !got.Equal(dec("37.50")) {
		t.Errorf("expected 37.50, got %s", got)
	}
}
