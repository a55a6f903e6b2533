package postgres

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/CharlyBGood/planificadorfinanciero/internal/gateway"
)

const changeChannel = "planificador_changes"

// notification is the payload emitted by the notify_row_change trigger.
type notification struct {
	Table string          `json:"table"`
	Kind  string          `json:"kind"`
	Row   json.RawMessage `json:"row"`
}

// listen holds a dedicated connection on the notification channel and
// fans decoded changes out to local subscribers. The connection is
// re-established with backoff after any failure.
func (s *Store) listen(ctx context.Context) {
	defer close(s.listenDone)

	for {
		if err := s.listenOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Warn("Notification listener disconnected, retrying", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(2 * time.Second):
		}
	}
}

func (s *Store) listenOnce(ctx context.Context) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+changeChannel); err != nil {
		return err
	}

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		s.dispatch(n.Payload)
	}
}

func (s *Store) dispatch(payload string) {
	var n notification
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		slog.Warn("Dropping undecodable notification", "error", err)
		return
	}

	kind := gateway.ChangeKind(n.Kind)
	if !kind.IsValid() {
		slog.Warn("Dropping notification with unknown kind", "kind", n.Kind)
		return
	}

	switch n.Table {
	case "transactions":
		var rec gateway.TransactionRecord
		if err := json.Unmarshal(n.Row, &rec); err != nil {
			slog.Warn("Dropping undecodable transaction row", "error", err)
			return
		}
		t := rec.ToCore()
		s.txHub.Publish(t.UserID, gateway.TransactionEvent{Kind: kind, Transaction: t})
	case "objectives":
		var rec gateway.ObjectiveRecord
		if err := json.Unmarshal(n.Row, &rec); err != nil {
			slog.Warn("Dropping undecodable objective row", "error", err)
			return
		}
		o := rec.ToCore()
		s.objHub.Publish(o.UserID, gateway.ObjectiveEvent{Kind: kind, Objective: o})
	default:
		slog.Debug("Ignoring notification for untracked table", "table", n.Table)
	}
}
