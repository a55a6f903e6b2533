package gateway

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/CharlyBGood/planificadorfinanciero/internal/core"
)

// Wire representation of records. Earlier schema versions of the hosted
// backend spelled the payment fields three different ways (paid_ARS,
// paid_pesos, paid_ars) and used PESOS as a currency code; decoding
// normalizes all of them so nothing above the gateway ever sees a legacy
// spelling.

type (
	TransactionRecord struct {
		ID          string          `json:"id"`
		Description string          `json:"description"`
		Amount      decimal.Decimal `json:"amount"`
		CategoryID  string          `json:"category_id,omitempty"`
		UserID      string          `json:"user_id"`
		CreatedAt   time.Time       `json:"created_at"`
	}

	ObjectiveRecord struct {
		ID           string              `json:"id"`
		Name         string              `json:"name"`
		Description  string              `json:"description,omitempty"`
		TargetAmount decimal.NullDecimal `json:"target_amount,omitempty"`
		Color        string              `json:"color,omitempty"`
		UserID       string              `json:"user_id"`
		CreatedAt    time.Time           `json:"created_at"`
	}

	DocumentRecord struct {
		ID            string          `json:"id"`
		Type          string          `json:"type"`
		Title         string          `json:"title"`
		ClientName    string          `json:"client_name"`
		ClientEmail   string          `json:"client_email,omitempty"`
		Description   string          `json:"description,omitempty"`
		CompanyName   string          `json:"company_name"`
		LogoURL       string          `json:"logo_url,omitempty"`
		PaymentMethod string          `json:"payment_method,omitempty"`
		PaidARS       decimal.Decimal `json:"paid_ars"`
		PaidUSD       decimal.Decimal `json:"paid_usd"`
		Total         decimal.Decimal `json:"total"`
		UserID        string          `json:"user_id"`
		CreatedAt     time.Time       `json:"created_at"`
	}

	DocumentItemRecord struct {
		ID          string          `json:"id"`
		DocumentID  string          `json:"document_id"`
		Description string          `json:"description"`
		Quantity    decimal.Decimal `json:"quantity"`
		UnitPrice   decimal.Decimal `json:"unit_price"`
		Currency    string          `json:"currency"`
	}
)

// NormalizeCurrency maps a currency code from any schema version to its
// canonical form. PESOS was used interchangeably with ARS in early
// versions.
func NormalizeCurrency(code string) (core.Currency, bool) {
	switch strings.ToUpper(strings.TrimSpace(code)) {
	case "ARS", "PESOS":
		return core.ARS, true
	case "USD":
		return core.USD, true
	default:
		return "", false
	}
}

// legacy key sets for the payment fields, checked in order.
var (
	legacyPaidARSKeys = []string{"paid_ars", "paid_ARS", "paid_pesos"}
	legacyPaidUSDKeys = []string{"paid_usd", "paid_USD"}
)

func (r *DocumentRecord) UnmarshalJSON(data []byte) error {
	type plain DocumentRecord
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	p.PaidARS = firstDecimal(raw, legacyPaidARSKeys)
	p.PaidUSD = firstDecimal(raw, legacyPaidUSDKeys)

	*r = DocumentRecord(p)
	return nil
}

func firstDecimal(raw map[string]json.RawMessage, keys []string) decimal.Decimal {
	for _, key := range keys {
		msg, ok := raw[key]
		if !ok || string(msg) == "null" {
			continue
		}
		var d decimal.Decimal
		if err := json.Unmarshal(msg, &d); err == nil {
			return d
		}
	}
	return decimal.Zero
}

func (r TransactionRecord) ToCore() core.Transaction {
	return core.Transaction{
		ID:          r.ID,
		Description: r.Description,
		Amount:      r.Amount,
		CategoryID:  r.CategoryID,
		UserID:      r.UserID,
		CreatedAt:   r.CreatedAt,
	}
}

func TransactionToRecord(t core.Transaction) TransactionRecord {
	return TransactionRecord{
		ID:          t.ID,
		Description: t.Description,
		Amount:      t.Amount,
		CategoryID:  t.CategoryID,
		UserID:      t.UserID,
		CreatedAt:   t.CreatedAt,
	}
}

func (r ObjectiveRecord) ToCore() core.Objective {
	return core.Objective{
		ID:           r.ID,
		Name:         r.Name,
		Description:  r.Description,
		TargetAmount: r.TargetAmount,
		Color:        r.Color,
		UserID:       r.UserID,
		CreatedAt:    r.CreatedAt,
	}
}

func ObjectiveToRecord(o core.Objective) ObjectiveRecord {
	return ObjectiveRecord{
		ID:           o.ID,
		Name:         o.Name,
		Description:  o.Description,
		TargetAmount: o.TargetAmount,
		Color:        o.Color,
		UserID:       o.UserID,
		CreatedAt:    o.CreatedAt,
	}
}

// ToCore converts the record, normalizing type and currency spellings.
func (r DocumentRecord) ToCore() core.Document {
	return core.Document{
		ID:            r.ID,
		Type:          normalizeDocumentType(r.Type),
		Title:         r.Title,
		ClientName:    r.ClientName,
		ClientEmail:   r.ClientEmail,
		Description:   r.Description,
		CompanyName:   r.CompanyName,
		LogoURL:       r.LogoURL,
		PaymentMethod: r.PaymentMethod,
		PaidARS:       r.PaidARS,
		PaidUSD:       r.PaidUSD,
		Total:         r.Total,
		UserID:        r.UserID,
		CreatedAt:     r.CreatedAt,
	}
}

// normalizeDocumentType maps the Spanish type names stored by early schema
// versions onto the canonical set.
func normalizeDocumentType(t string) core.DocumentType {
	switch strings.ToLower(strings.TrimSpace(t)) {
	case "factura", string(core.Invoice):
		return core.Invoice
	case "recibo", string(core.Receipt):
		return core.Receipt
	case "orden", string(core.Order):
		return core.Order
	default:
		return core.DocumentType(t)
	}
}

func DocumentToRecord(d core.Document) DocumentRecord {
	return DocumentRecord{
		ID:            d.ID,
		Type:          string(d.Type),
		Title:         d.Title,
		ClientName:    d.ClientName,
		ClientEmail:   d.ClientEmail,
		Description:   d.Description,
		CompanyName:   d.CompanyName,
		LogoURL:       d.LogoURL,
		PaymentMethod: d.PaymentMethod,
		PaidARS:       d.PaidARS,
		PaidUSD:       d.PaidUSD,
		Total:         d.Total,
		UserID:        d.UserID,
		CreatedAt:     d.CreatedAt,
	}
}

// ToCore converts the record; unknown currency codes are passed through so
// validation can reject them with a precise error.
func (r DocumentItemRecord) ToCore() core.DocumentItem {
	currency := core.Currency(r.Currency)
	if c, ok := NormalizeCurrency(r.Currency); ok {
		currency = c
	}
	return core.DocumentItem{
		ID:          r.ID,
		DocumentID:  r.DocumentID,
		Description: r.Description,
		Quantity:    r.Quantity,
		UnitPrice:   r.UnitPrice,
		Currency:    currency,
	}
}

func DocumentItemToRecord(it core.DocumentItem) DocumentItemRecord {
	return DocumentItemRecord{
		ID:          it.ID,
		DocumentID:  it.DocumentID,
		Description: it.Description,
		Quantity:    it.Quantity,
		UnitPrice:   it.UnitPrice,
		Currency:    string(it.Currency),
	}
}
