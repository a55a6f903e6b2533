package objectives

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/CharlyBGood/planificadorfinanciero/internal/core"
	"github.com/CharlyBGood/planificadorfinanciero/internal/gateway"
)

// Service manages savings objectives and derives their aggregates from the
// transactions linked to them.

type (
	// Summary is an objective together with the aggregates of its
	// transactions.
	Summary struct {
		Objective        core.Objective
		Balance          decimal.Decimal
		Income           decimal.Decimal
		Expense          decimal.Decimal
		Progress         decimal.Decimal
		HasProgress      bool
		TransactionCount int
	}

	Service struct {
		objectives   gateway.ObjectiveStore
		transactions gateway.TransactionStore
	}
)

func NewService(objectives gateway.ObjectiveStore, transactions gateway.TransactionStore) *Service {
	return &Service{objectives: objectives, transactions: transactions}
}

func (s *Service) List(ctx context.Context, userID string) ([]core.Objective, error) {
	if userID == "" {
		return nil, core.ErrNoUser
	}
	objs, err := s.objectives.ListObjectives(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list objectives: %w", err)
	}
	return objs, nil
}

func (s *Service) Create(ctx context.Context, o core.Objective) (core.Objective, error) {
	if err := o.Validate(); err != nil {
		return core.Objective{}, err
	}

	created, err := s.objectives.InsertObjective(ctx, o)
	if err != nil {
		return core.Objective{}, fmt.Errorf("insert objective: %w", err)
	}

	slog.InfoContext(ctx, "Objective created",
		"id", created.ID, "name", created.Name, "user_id", created.UserID)
	return created, nil
}

func (s *Service) Update(ctx context.Context, o core.Objective) error {
	if err := o.Validate(); err != nil {
		return err
	}

	n, err := s.objectives.UpdateObjective(ctx, o)
	if err != nil {
		return fmt.Errorf("update objective: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("objective %s not found", o.ID)
	}
	return nil
}

// Delete removes the objective. Its transactions are left in place and
// simply become uncategorized.
func (s *Service) Delete(ctx context.Context, id, userID string) error {
	if userID == "" {
		return core.ErrNoUser
	}

	n, err := s.objectives.DeleteObjective(ctx, id, userID)
	if err != nil {
		return fmt.Errorf("delete objective: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("objective %s not found", id)
	}

	slog.InfoContext(ctx, "Objective deleted", "id", id, "user_id", userID)
	return nil
}

// Summarize computes the aggregates for one objective.
func (s *Service) Summarize(ctx context.Context, id, userID string) (Summary, error) {
	obj, err := s.objectives.GetObjective(ctx, id, userID)
	if err != nil {
		return Summary{}, fmt.Errorf("get objective: %w", err)
	}

	txs, err := s.transactions.ListTransactions(ctx, userID)
	if err != nil {
		return Summary{}, fmt.Errorf("list transactions: %w", err)
	}

	return s.summarize(obj, txs), nil
}

// SummarizeAll computes the aggregates for every objective of the user
// from a single transaction fetch.
func (s *Service) SummarizeAll(ctx context.Context, userID string) ([]Summary, error) {
	objs, err := s.List(ctx, userID)
	if err != nil {
		return nil, err
	}

	txs, err := s.transactions.ListTransactions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}

	out := make([]Summary, len(objs))
	for i, obj := range objs {
		out[i] = s.summarize(obj, txs)
	}
	return out, nil
}

// Watch exposes the realtime objective feed so callers can refresh their
// view on remote changes.
func (s *Service) Watch(userID string) (<-chan gateway.ObjectiveEvent, func()) {
	return s.objectives.SubscribeObjectives(userID)
}

func (s *Service) summarize(obj core.Objective, txs []core.Transaction) Summary {
	linked := core.FilterByCategory(txs, obj.ID)
	balance := core.Balance(linked)
	ie := core.SumIncomeExpense(linked)
	progress, ok := core.Progress(balance, obj.TargetAmount)

	return Summary{
		Objective:        obj,
		Balance:          balance,
		Income:           ie.Income,
		Expense:          ie.Expense,
		Progress:         progress,
		HasProgress:      ok,
		TransactionCount: len(linked),
	}
}
