package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/CharlyBGood/planificadorfinanciero/internal/core"
	"github.com/CharlyBGood/planificadorfinanciero/internal/objectives"
)

// Wire representations. Amounts travel as decimal strings so nothing is
// ever rounded through a float.

type (
	principalJSON struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	}

	transactionJSON struct {
		ID          string          `json:"id"`
		Description string          `json:"description"`
		Amount      decimal.Decimal `json:"amount"`
		CategoryID  string          `json:"category_id,omitempty"`
		CreatedAt   time.Time       `json:"created_at"`
	}

	objectiveJSON struct {
		ID           string              `json:"id"`
		Name         string              `json:"name"`
		Description  string              `json:"description,omitempty"`
		TargetAmount decimal.NullDecimal `json:"target_amount"`
		Color        string              `json:"color,omitempty"`
		CreatedAt    time.Time           `json:"created_at"`
	}

	summaryPayload struct {
		Balance          decimal.Decimal `json:"balance"`
		Income           decimal.Decimal `json:"income"`
		Expense          decimal.Decimal `json:"expense"`
		TransactionCount int             `json:"transaction_count"`
	}

	objectiveSummaryPayload struct {
		Objective        objectiveJSON    `json:"objective"`
		Balance          decimal.Decimal  `json:"balance"`
		Income           decimal.Decimal  `json:"income"`
		Expense          decimal.Decimal  `json:"expense"`
		Progress         *decimal.Decimal `json:"progress,omitempty"`
		TransactionCount int              `json:"transaction_count"`
	}

	documentItemJSON struct {
		ID          string          `json:"id"`
		Description string          `json:"description"`
		Quantity    decimal.Decimal `json:"quantity"`
		UnitPrice   decimal.Decimal `json:"unit_price"`
		Currency    core.Currency   `json:"currency"`
	}

	documentJSON struct {
		ID            string            `json:"id"`
		Type          core.DocumentType `json:"type"`
		Title         string            `json:"title"`
		ClientName    string            `json:"client_name"`
		ClientEmail   string            `json:"client_email,omitempty"`
		Description   string            `json:"description,omitempty"`
		CompanyName   string            `json:"company_name"`
		LogoURL       string            `json:"logo_url,omitempty"`
		PaymentMethod string            `json:"payment_method,omitempty"`
		PaidARS       decimal.Decimal   `json:"paid_ars"`
		PaidUSD       decimal.Decimal   `json:"paid_usd"`
		Total         decimal.Decimal   `json:"total"`
		CreatedAt     time.Time         `json:"created_at"`
	}

	currencyTotalsJSON struct {
		Currency core.Currency   `json:"currency"`
		Total    decimal.Decimal `json:"total"`
		Paid     decimal.Decimal `json:"paid"`
		Due      decimal.Decimal `json:"due"`
	}

	errorJSON struct {
		Error string `json:"error"`
	}
)

func toPrincipalJSON(p core.Principal) principalJSON {
	return principalJSON{ID: p.ID, Email: p.Email}
}

func toTransactionJSON(t core.Transaction) transactionJSON {
	return transactionJSON{
		ID:          t.ID,
		Description: t.Description,
		Amount:      t.Amount,
		CategoryID:  t.CategoryID,
		CreatedAt:   t.CreatedAt,
	}
}

func toTransactionsJSON(txs []core.Transaction) []transactionJSON {
	out := make([]transactionJSON, 0, len(txs))
	for _, t := range txs {
		out = append(out, toTransactionJSON(t))
	}
	return out
}

func toObjectiveJSON(o core.Objective) objectiveJSON {
	return objectiveJSON{
		ID:           o.ID,
		Name:         o.Name,
		Description:  o.Description,
		TargetAmount: o.TargetAmount,
		Color:        o.Color,
		CreatedAt:    o.CreatedAt,
	}
}

func toObjectiveSummaryJSON(s objectives.Summary) objectiveSummaryPayload {
	out := objectiveSummaryPayload{
		Objective:        toObjectiveJSON(s.Objective),
		Balance:          s.Balance,
		Income:           s.Income,
		Expense:          s.Expense,
		TransactionCount: s.TransactionCount,
	}
	if s.HasProgress {
		p := s.Progress
		out.Progress = &p
	}
	return out
}

func toDocumentJSON(d core.Document) documentJSON {
	return documentJSON{
		ID:            d.ID,
		Type:          d.Type,
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
		CreatedAt:     d.CreatedAt,
	}
}

func toDocumentItemsJSON(items []core.DocumentItem) []documentItemJSON {
	out := make([]documentItemJSON, 0, len(items))
	for _, it := range items {
		out = append(out, documentItemJSON{
			ID:          it.ID,
			Description: it.Description,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			Currency:    it.Currency,
		})
	}
	return out
}

func toTotalsJSON(totals []core.CurrencyTotals) []currencyTotalsJSON {
	out := make([]currencyTotalsJSON, 0, len(totals))
	for _, t := range totals {
		out = append(out, currencyTotalsJSON{
			Currency: t.Currency,
			Total:    t.Total,
			Paid:     t.Paid,
			Due:      t.Due,
		})
	}
	return out
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorJSON{Error: message})
}

// validationErrors are rejected input rather than server faults.
var validationErrors = []error{
	core.ErrEmptyDescription,
	core.ErrZeroAmount,
	core.ErrEmptyName,
	core.ErrInvalidTarget,
	core.ErrEmptyTitle,
	core.ErrEmptyClientName,
	core.ErrEmptyCompanyName,
	core.ErrInvalidClientEmail,
	core.ErrUnknownDocumentType,
	core.ErrUnknownCurrency,
	core.ErrInvalidQuantity,
	core.ErrNegativeUnitPrice,
	core.ErrNegativePaid,
	core.ErrNoItems,
}

// statusForError maps service errors to HTTP status codes.
func statusForError(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if strings.Contains(err.Error(), "not found") {
		return http.StatusNotFound
	}
	for _, v := range validationErrors {
		if errors.Is(err, v) {
			return http.StatusUnprocessableEntity
		}
	}
	return http.StatusInternalServerError
}

// respondServiceError writes the error with a mapped status. Internal
// failures are not echoed to the client.
func respondServiceError(w http.ResponseWriter, err error) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		respondError(w, status, "internal error")
		return
	}
	respondError(w, status, err.Error())
}
