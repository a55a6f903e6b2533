// Package bridge replicates realtime change events between instances
// over AMQP. Backends with native cross-instance realtime (postgres)
// do not need it; the sqlite and memory adapters only see their own
// writes, so a bridge keeps subscribers on other instances current.
package bridge

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/CharlyBGood/planificadorfinanciero/internal/gateway"
)

// Feed is the adapter surface the bridge replicates: outbound feeds of
// local events and inbound application of remote ones.
type Feed interface {
	TransactionFeed() (<-chan gateway.TransactionEvent, func())
	ObjectiveFeed() (<-chan gateway.ObjectiveEvent, func())
	ApplyTransactionEvent(ev gateway.TransactionEvent)
	ApplyObjectiveEvent(ev gateway.ObjectiveEvent)
}

type Publisher interface {
	Publish(ctx context.Context, msg *ChangeMessage) error
	Consume(ctx context.Context, handler func(*ChangeMessage)) error
}

type Bridge struct {
	origin string
	client Publisher
	feed   Feed

	txFeed    <-chan gateway.TransactionEvent
	objFeed   <-chan gateway.ObjectiveEvent
	cancelTx  func()
	cancelObj func()
}

// New attaches to the adapter's feeds immediately, so no event published
// after construction is missed.
func New(client Publisher, feed Feed) *Bridge {
	b := &Bridge{
		origin: uuid.NewString(),
		client: client,
		feed:   feed,
	}
	b.txFeed, b.cancelTx = feed.TransactionFeed()
	b.objFeed, b.cancelObj = feed.ObjectiveFeed()
	return b
}

// Origin is this instance's id, stamped on every outbound message.
func (b *Bridge) Origin() string { return b.origin }

// Run forwards local events out and applies remote ones until ctx ends.
func (b *Bridge) Run(ctx context.Context) error {
	defer b.cancelTx()
	defer b.cancelObj()

	go b.forward(ctx, b.txFeed, b.objFeed)

	slog.InfoContext(ctx, "Change bridge running", "origin", b.origin)
	return b.client.Consume(ctx, b.apply)
}

func (b *Bridge) forward(ctx context.Context, txFeed <-chan gateway.TransactionEvent, objFeed <-chan gateway.ObjectiveEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-txFeed:
			if !ok {
				return
			}
			if err := b.client.Publish(ctx, NewTransactionMessage(b.origin, ev)); err != nil {
				slog.WarnContext(ctx, "Failed to forward transaction event", "error", err)
			}
		case ev, ok := <-objFeed:
			if !ok {
				return
			}
			if err := b.client.Publish(ctx, NewObjectiveMessage(b.origin, ev)); err != nil {
				slog.WarnContext(ctx, "Failed to forward objective event", "error", err)
			}
		}
	}
}

func (b *Bridge) apply(msg *ChangeMessage) {
	if msg.Origin == b.origin {
		return
	}
	kind := gateway.ChangeKind(msg.Kind)
	if !kind.IsValid() {
		slog.Warn("Dropping bridge message with unknown kind", "kind", msg.Kind)
		return
	}

	switch msg.Entity {
	case EntityTransaction:
		if msg.Transaction == nil {
			return
		}
		b.feed.ApplyTransactionEvent(gateway.TransactionEvent{
			Kind:        kind,
			Transaction: msg.Transaction.ToCore(),
		})
	case EntityObjective:
		if msg.Objective == nil {
			return
		}
		b.feed.ApplyObjectiveEvent(gateway.ObjectiveEvent{
			Kind:      kind,
			Objective: msg.Objective.ToCore(),
		})
	default:
		slog.Warn("Dropping bridge message with unknown entity", "entity", msg.Entity)
	}
}
