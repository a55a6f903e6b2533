package http

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/CharlyBGood/planificadorfinanciero/internal/core"
	"github.com/CharlyBGood/planificadorfinanciero/internal/documents"
	"github.com/CharlyBGood/planificadorfinanciero/internal/log"
)

type (
	documentItemRequest struct {
		Description string          `json:"description"`
		Quantity    decimal.Decimal `json:"quantity"`
		UnitPrice   decimal.Decimal `json:"unit_price"`
		Currency    core.Currency   `json:"currency"`
	}

	// logoRequest carries an optional logo image; data is base64 on the
	// wire.
	logoRequest struct {
		Filename string `json:"filename"`
		Data     []byte `json:"data"`
	}

	documentRequest struct {
		Type          core.DocumentType     `json:"type"`
		Title         string                `json:"title"`
		ClientName    string                `json:"client_name"`
		ClientEmail   string                `json:"client_email"`
		Description   string                `json:"description"`
		CompanyName   string                `json:"company_name"`
		PaymentMethod string                `json:"payment_method"`
		PaidARS       decimal.Decimal       `json:"paid_ars"`
		PaidUSD       decimal.Decimal       `json:"paid_usd"`
		Items         []documentItemRequest `json:"items"`
		Logo          *logoRequest          `json:"logo"`
	}

	documentResponse struct {
		Document documentJSON         `json:"document"`
		Items    []documentItemJSON   `json:"items"`
		Totals   []currencyTotalsJSON `json:"totals"`
	}
)

func (req documentRequest) toInput() documents.Input {
	in := documents.Input{
		Type:          req.Type,
		Title:         strings.TrimSpace(req.Title),
		ClientName:    strings.TrimSpace(req.ClientName),
		ClientEmail:   strings.TrimSpace(req.ClientEmail),
		Description:   strings.TrimSpace(req.Description),
		CompanyName:   strings.TrimSpace(req.CompanyName),
		PaymentMethod: strings.TrimSpace(req.PaymentMethod),
		PaidARS:       req.PaidARS,
		PaidUSD:       req.PaidUSD,
	}
	for _, it := range req.Items {
		in.Items = append(in.Items, documents.ItemInput{
			Description: strings.TrimSpace(it.Description),
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			Currency:    it.Currency,
		})
	}
	if req.Logo != nil && len(req.Logo.Data) > 0 {
		in.Logo = &documents.LogoUpload{
			Filename: strings.TrimSpace(req.Logo.Filename),
			Data:     req.Logo.Data,
		}
	}
	return in
}

func toDocumentResponse(doc core.Document, items []core.DocumentItem) documentResponse {
	return documentResponse{
		Document: toDocumentJSON(doc),
		Items:    toDocumentItemsJSON(items),
		Totals:   toTotalsJSON(documents.Totals(doc, items)),
	}
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFrom(r.Context())

	docs, err := s.documents.List(r.Context(), principal.ID)
	if err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "list documents failed", log.FieldError, err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	out := make([]documentJSON, 0, len(docs))
	for _, d := range docs {
		out = append(out, toDocumentJSON(d))
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFrom(r.Context())

	doc, items, err := s.documents.Get(r.Context(), r.PathValue("id"), principal.ID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, toDocumentResponse(doc, items))
}

func (s *Server) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFrom(r.Context())

	var req documentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	doc, items, err := s.documents.Create(r.Context(), principal.ID, req.toInput())
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, toDocumentResponse(doc, items))
}

func (s *Server) handleUpdateDocument(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFrom(r.Context())

	var req documentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	doc, items, err := s.documents.Update(r.Context(), r.PathValue("id"), principal.ID, req.toInput())
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, toDocumentResponse(doc, items))
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFrom(r.Context())

	if err := s.documents.Delete(r.Context(), r.PathValue("id"), principal.ID); err != nil {
		respondServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
