package http

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/CharlyBGood/planificadorfinanciero/internal/core"
	"github.com/CharlyBGood/planificadorfinanciero/internal/log"
)

type objectiveRequest struct {
	Name         string              `json:"name"`
	Description  string              `json:"description"`
	TargetAmount decimal.NullDecimal `json:"target_amount"`
	Color        string              `json:"color"`
}

func (req objectiveRequest) toCore(id, userID string) core.Objective {
	return core.Objective{
		ID:           id,
		Name:         strings.TrimSpace(req.Name),
		Description:  strings.TrimSpace(req.Description),
		TargetAmount: req.TargetAmount,
		Color:        strings.TrimSpace(req.Color),
		UserID:       userID,
	}
}

func (s *Server) handleListObjectives(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFrom(r.Context())

	objs, err := s.objectives.List(r.Context(), principal.ID)
	if err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "list objectives failed", log.FieldError, err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	out := make([]objectiveJSON, 0, len(objs))
	for _, o := range objs {
		out = append(out, toObjectiveJSON(o))
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateObjective(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFrom(r.Context())

	var req objectiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	created, err := s.objectives.Create(r.Context(), req.toCore("", principal.ID))
	if err != nil {
		respondServiceError(w, err)
		return
	}

	s.invalidateSummaries(principal.ID)
	respondJSON(w, http.StatusCreated, toObjectiveJSON(created))
}

func (s *Server) handleUpdateObjective(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFrom(r.Context())

	var req objectiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	obj := req.toCore(r.PathValue("id"), principal.ID)
	if err := s.objectives.Update(r.Context(), obj); err != nil {
		respondServiceError(w, err)
		return
	}

	s.invalidateSummaries(principal.ID)
	respondJSON(w, http.StatusOK, toObjectiveJSON(obj))
}

func (s *Server) handleDeleteObjective(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFrom(r.Context())

	if err := s.objectives.Delete(r.Context(), r.PathValue("id"), principal.ID); err != nil {
		respondServiceError(w, err)
		return
	}

	s.invalidateSummaries(principal.ID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleObjectiveSummary(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFrom(r.Context())

	summary, err := s.objectives.Summarize(r.Context(), r.PathValue("id"), principal.ID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, toObjectiveSummaryJSON(summary))
}

// handleObjectiveSummaries returns all objectives with their aggregates,
// cached briefly per user.
func (s *Server) handleObjectiveSummaries(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFrom(r.Context())

	if cached, found := s.objectiveCache.Get(principal.ID); found {
		respondJSON(w, http.StatusOK, cached)
		return
	}

	summaries, err := s.objectives.SummarizeAll(r.Context(), principal.ID)
	if err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "summarize objectives failed", log.FieldError, err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	out := make([]objectiveSummaryPayload, 0, len(summaries))
	for _, sum := range summaries {
		out = append(out, toObjectiveSummaryJSON(sum))
	}

	s.objectiveCache.Set(principal.ID, out)
	respondJSON(w, http.StatusOK, out)
}
