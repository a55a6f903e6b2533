package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/CharlyBGood/planificadorfinanciero/internal/gateway"
	"github.com/CharlyBGood/planificadorfinanciero/internal/log"
)

type (
	transactionEventJSON struct {
		Kind        gateway.ChangeKind `json:"kind"`
		Transaction transactionJSON    `json:"transaction"`
	}

	objectiveEventJSON struct {
		Kind      gateway.ChangeKind `json:"kind"`
		Objective objectiveJSON      `json:"objective"`
	}
)

// handleEvents streams the user's realtime changes over SSE. One stream
// carries both transaction and objective events, tagged by event name.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	principal, _ := principalFrom(r.Context())

	txEvents, cancelTx := s.gw.SubscribeTransactions(principal.ID)
	defer cancelTx()
	objEvents, cancelObj := s.gw.SubscribeObjectives(principal.ID)
	defer cancelObj()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	logger := log.FromContext(r.Context())
	logger.InfoContext(r.Context(), "event stream opened")

	heartbeat := time.NewTicker(25 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			logger.InfoContext(r.Context(), "event stream closed")
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case ev, open := <-txEvents:
			if !open {
				return
			}
			s.invalidateSummaries(principal.ID)
			writeSSE(w, flusher, "transaction", transactionEventJSON{
				Kind:        ev.Kind,
				Transaction: toTransactionJSON(ev.Transaction),
			})
		case ev, open := <-objEvents:
			if !open {
				return
			}
			s.invalidateSummaries(principal.ID)
			writeSSE(w, flusher, "objective", objectiveEventJSON{
				Kind:      ev.Kind,
				Objective: toObjectiveJSON(ev.Objective),
			})
		}
	}
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	flusher.Flush()
}
