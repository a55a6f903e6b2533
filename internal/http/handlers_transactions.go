package http

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/CharlyBGood/planificadorfinanciero/internal/core"
	"github.com/CharlyBGood/planificadorfinanciero/internal/log"
)

type createTransactionRequest struct {
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	CategoryID  string          `json:"category_id"`
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFrom(r.Context())

	txs, err := s.gw.ListTransactions(r.Context(), principal.ID)
	if err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "list transactions failed", log.FieldError, err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	respondJSON(w, http.StatusOK, toTransactionsJSON(txs))
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFrom(r.Context())

	var req createTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	tx := core.Transaction{
		Description: strings.TrimSpace(req.Description),
		Amount:      req.Amount,
		CategoryID:  strings.TrimSpace(req.CategoryID),
		UserID:      principal.ID,
	}
	if err := tx.Validate(); err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	created, err := s.gw.InsertTransaction(r.Context(), tx)
	if err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "insert transaction failed", log.FieldError, err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.invalidateSummaries(principal.ID)
	respondJSON(w, http.StatusCreated, toTransactionJSON(created))
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFrom(r.Context())
	id := r.PathValue("id")

	rows, err := s.gw.DeleteTransaction(r.Context(), id, principal.ID)
	if err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "delete transaction failed", log.FieldError, err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if rows == 0 {
		respondError(w, http.StatusNotFound, "transaction not found")
		return
	}

	s.invalidateSummaries(principal.ID)
	w.WriteHeader(http.StatusNoContent)
}

// handleSummary returns the balance and income/expense split over all of
// the user's transactions. Results are cached briefly per user.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFrom(r.Context())

	if cached, found := s.summaryCache.Get(principal.ID); found {
		respondJSON(w, http.StatusOK, cached)
		return
	}

	txs, err := s.gw.ListTransactions(r.Context(), principal.ID)
	if err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "list transactions failed", log.FieldError, err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	ie := core.SumIncomeExpense(txs)
	payload := summaryPayload{
		Balance:          core.Balance(txs),
		Income:           ie.Income,
		Expense:          ie.Expense,
		TransactionCount: len(txs),
	}

	s.summaryCache.Set(principal.ID, payload)
	respondJSON(w, http.StatusOK, payload)
}
