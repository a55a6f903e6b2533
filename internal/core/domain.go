package core

import (
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Invoice DocumentType = "invoice"
	Receipt DocumentType = "receipt"
	Order   DocumentType = "order"
)

const (
	ARS Currency = "ARS"
	USD Currency = "USD"
)

type (
	DocumentType string

	Currency string

	// Principal is the authenticated identity everything is scoped to.
	Principal struct {
		ID    string
		Email string
	}

	// Transaction is a single income (positive) or expense (negative) entry.
	Transaction struct {
		ID          string
		Description string
		Amount      decimal.Decimal
		CategoryID  string // optional link to an Objective
		UserID      string
		CreatedAt   time.Time
	}

	// Objective is a savings category with an optional target amount.
	Objective struct {
		ID           string
		Name         string
		Description  string
		TargetAmount decimal.NullDecimal
		Color        string
		UserID       string
		CreatedAt    time.Time
	}

	// Document is an invoice, receipt or service order. Total is always
	// derived from the current items, never edited independently.
	Document struct {
		ID            string
		Type          DocumentType
		Title         string
		ClientName    string
		ClientEmail   string
		Description   string
		CompanyName   string
		LogoURL       string
		PaymentMethod string
		PaidARS       decimal.Decimal
		PaidUSD       decimal.Decimal
		Total         decimal.Decimal
		UserID        string
		CreatedAt     time.Time
	}

	DocumentItem struct {
		ID          string
		DocumentID  string
		Description string
		Quantity    decimal.Decimal
		UnitPrice   decimal.Decimal
		Currency    Currency
	}
)

var (
	ErrNoUser              = errors.New("no authenticated user")
	ErrEmptyDescription    = errors.New("empty description")
	ErrZeroAmount          = errors.New("amount cannot be zero")
	ErrEmptyName           = errors.New("empty name")
	ErrInvalidTarget       = errors.New("target amount must be positive")
	ErrEmptyTitle          = errors.New("empty title")
	ErrEmptyClientName     = errors.New("empty client name")
	ErrEmptyCompanyName    = errors.New("empty company name")
	ErrInvalidClientEmail  = errors.New("invalid client email")
	ErrUnknownDocumentType = errors.New("unknown document type")
	ErrUnknownCurrency     = errors.New("unknown currency")
	ErrInvalidQuantity     = errors.New("quantity must be positive")
	ErrNegativeUnitPrice   = errors.New("unit price cannot be negative")
	ErrNegativePaid        = errors.New("paid amount cannot be negative")
	ErrNoItems             = errors.New("document needs at least one item")
)

func (dt DocumentType) IsValid() bool {
	switch dt {
	case Invoice, Receipt, Order:
		return true
	default:
		return false
	}
}

func (c Currency) IsValid() bool {
	switch c {
	case ARS, USD:
		return true
	default:
		return false
	}
}

func (t Transaction) Validate() error {
	if len(strings.TrimSpace(t.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(t.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	if t.Amount.IsZero() {
		return ErrZeroAmount
	}
	if t.UserID == "" {
		return ErrNoUser
	}
	return nil
}

// IsIncome reports whether the transaction adds to the balance.
func (t Transaction) IsIncome() bool {
	return t.Amount.IsPositive()
}

func (o Objective) Validate() error {
	if len(strings.TrimSpace(o.Name)) == 0 {
		return ErrEmptyName
	}
	if o.TargetAmount.Valid && !o.TargetAmount.Decimal.IsPositive() {
		return ErrInvalidTarget
	}
	if o.UserID == "" {
		return ErrNoUser
	}
	return nil
}

func (d Document) Validate() error {
	if !d.Type.IsValid() {
		return ErrUnknownDocumentType
	}
	if len(strings.TrimSpace(d.Title)) == 0 {
		return ErrEmptyTitle
	}
	if len(strings.TrimSpace(d.ClientName)) == 0 {
		return ErrEmptyClientName
	}
	if len(strings.TrimSpace(d.CompanyName)) == 0 {
		return ErrEmptyCompanyName
	}
	if d.ClientEmail != "" {
		if _, err := mail.ParseAddress(d.ClientEmail); err != nil {
			return ErrInvalidClientEmail
		}
	}
	if d.PaidARS.IsNegative() || d.PaidUSD.IsNegative() {
		return ErrNegativePaid
	}
	if d.UserID == "" {
		return ErrNoUser
	}
	return nil
}

// Paid returns the recorded payment for the given currency.
func (d Document) Paid(c Currency) decimal.Decimal {
	switch c {
	case ARS:
		return d.PaidARS
	case USD:
		return d.PaidUSD
	default:
		return decimal.Zero
	}
}

func (it DocumentItem) Validate() error {
	if len(strings.TrimSpace(it.Description)) == 0 {
		return ErrEmptyDescription
	}
	if !it.Quantity.IsPositive() {
		return ErrInvalidQuantity
	}
	if it.UnitPrice.IsNegative() {
		return ErrNegativeUnitPrice
	}
	if !it.Currency.IsValid() {
		return ErrUnknownCurrency
	}
	return nil
}

// LineTotal is quantity times unit price.
func (it DocumentItem) LineTotal() decimal.Decimal {
	return it.Quantity.Mul(it.UnitPrice)
}
