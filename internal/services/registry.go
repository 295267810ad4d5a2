// Package services holds the execution engine layered over the ledger
// store: the schedule registry, the recurring transaction processor and
// the balance reset/reduction service.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"tally/internal/core"
	"tally/internal/storage"
)

// Registry owns the two schedule collections. Each schedule is a small
// state machine: pending -> completed via execute, completed -> pending
// via the global reset, and any state -> removed via delete.
type Registry struct {
	repo *storage.Repository
	now  func() time.Time
}

func NewRegistry(repo *storage.Repository) *Registry {
	return &Registry{repo: repo, now: time.Now}
}

// BatchResult summarizes an ExecuteAll run.
type BatchResult struct {
	Executed []string
	Skipped  []string // transfer schedules that failed the funds gate
	Failed   []string
}

// AddIncomeSchedule snapshots an income into a new pending schedule.
// Later edits to the income do not change the schedule. At most one
// active schedule may reference a given (account, income) pair.
func (r *Registry) AddIncomeSchedule(ctx context.Context, accountID, incomeID string) (core.IncomeSchedule, error) {
	income, err := r.repo.GetIncome(ctx, incomeID)
	if err != nil {
		return core.IncomeSchedule{}, fmt.Errorf("load income %s: %w", incomeID, err)
	}
	if income.AccountID != accountID {
		return core.IncomeSchedule{}, core.ErrNotFound
	}

	schedule := core.IncomeSchedule{
		ID:          uuid.NewString(),
		AccountID:   accountID,
		IncomeID:    incomeID,
		Description: income.Description,
		Company:     income.Company,
		Amount:      income.Amount,
		PotName:     income.PotName,
		Active:      true,
		CreatedAt:   r.now(),
	}

	err = r.repo.InTx(ctx, func(tx *storage.Tx) error {
		exists, err := tx.ActiveIncomeScheduleExists(accountID, incomeID)
		if err != nil {
			return err
		}
		if exists {
			return core.ErrDuplicateScheduleSource
		}
		return tx.CreateIncomeSchedule(schedule)
	})
	if err != nil {
		return core.IncomeSchedule{}, err
	}

	slog.InfoContext(ctx, "Income schedule added",
		"schedule_id", schedule.ID,
		"account_id", accountID,
		"income_id", incomeID,
		"amount_cents", schedule.Amount.Cents)
	return schedule, nil
}

// ExecuteIncomeSchedule credits the schedule's account, or its snapshot
// pot when that pot still exists, and marks the schedule completed.
// Income execution never fails on funds. Executing a schedule that is not
// pending is a no-op.
func (r *Registry) ExecuteIncomeSchedule(ctx context.Context, id string) error {
	executedAt := r.now()
	return r.repo.InTx(ctx, func(tx *storage.Tx) error {
		s, err := tx.IncomeSchedule(id)
		if err != nil {
			return err
		}
		if !s.Pending() {
			return nil
		}

		leg := storage.Leg{AccountID: s.AccountID}
		if s.PotName != "" {
			ok, err := tx.PotExists(s.AccountID, s.PotName)
			if err != nil {
				return err
			}
			// Snapshot pot may have been deleted since the schedule was
			// created; the credit then lands on the account itself.
			if ok {
				leg.PotName = s.PotName
			}
		}

		if err := tx.Credit(leg, s.Amount.Cents); err != nil {
			return err
		}
		return tx.CompleteIncomeSchedule(id, executedAt)
	})
}

// TransferScheduleParams carries the caller-supplied snapshot for
// AddTransferSchedule. Amount is fixed at creation time, typically the
// sum of the matching due transactions and targets.
type TransferScheduleParams struct {
	FromAccountID         string
	FromPotName           string
	ToAccountID           string
	ToPotName             string
	AmountCents           int64
	Description           string
	LinkedCreditAccountID string
}

// AddTransferSchedule creates a pending transfer schedule. At most one
// active schedule may target a given (account, pot) destination key.
func (r *Registry) AddTransferSchedule(ctx context.Context, p TransferScheduleParams) (core.TransferSchedule, error) {
	if p.AmountCents <= 0 {
		return core.TransferSchedule{}, core.ErrInvalidAmount
	}

	schedule := core.TransferSchedule{
		ID:                    uuid.NewString(),
		FromAccountID:         p.FromAccountID,
		FromPotName:           p.FromPotName,
		ToAccountID:           p.ToAccountID,
		ToPotName:             p.ToPotName,
		Amount:                core.Money{Cents: p.AmountCents},
		Description:           p.Description,
		LinkedCreditAccountID: p.LinkedCreditAccountID,
		Active:                true,
		CreatedAt:             r.now(),
	}

	err := r.repo.InTx(ctx, func(tx *storage.Tx) error {
		for _, id := range []string{p.FromAccountID, p.ToAccountID} {
			ok, err := tx.AccountExists(id)
			if err != nil {
				return err
			}
			if !ok {
				return core.ErrNotFound
			}
		}
		exists, err := tx.ActiveTransferScheduleExistsForDestination(p.ToAccountID, p.ToPotName)
		if err != nil {
			return err
		}
		if exists {
			return core.ErrDuplicateScheduleDestination
		}
		return tx.CreateTransferSchedule(schedule)
	})
	if err != nil {
		return core.TransferSchedule{}, err
	}

	slog.InfoContext(ctx, "Transfer schedule added",
		"schedule_id", schedule.ID,
		"destination", schedule.DestinationKey(),
		"amount_cents", schedule.Amount.Cents)
	return schedule, nil
}

// CanExecute reports whether the source balance covers the schedule
// amount. It gates execution and lets callers render an insufficient
// funds state without attempting the transfer.
func (r *Registry) CanExecute(ctx context.Context, id string) (bool, error) {
	var can bool
	err := r.repo.InTx(ctx, func(tx *storage.Tx) error {
		s, err := tx.TransferSchedule(id)
		if err != nil {
			return err
		}
		balance, err := tx.Balance(storage.Leg{AccountID: s.FromAccountID, PotName: s.FromPotName})
		if err != nil {
			return err
		}
		can = balance >= s.Amount.Cents
		return nil
	})
	return can, err
}

// ExecuteTransferSchedule applies the multi-leg transfer and marks the
// schedule completed. When the funds gate fails, no balance changes, the
// schedule stays pending and core.ErrInsufficientFunds is returned as a
// distinguishable outcome. Executing a non-pending schedule is a no-op.
func (r *Registry) ExecuteTransferSchedule(ctx context.Context, id string) error {
	executedAt := r.now()
	return r.repo.InTx(ctx, func(tx *storage.Tx) error {
		s, err := tx.TransferSchedule(id)
		if err != nil {
			return err
		}
		if !s.Pending() {
			return nil
		}

		source := storage.Leg{AccountID: s.FromAccountID, PotName: s.FromPotName}
		if err := tx.Debit(source, s.Amount.Cents); err != nil {
			return err
		}
		if err := tx.Credit(storage.Leg{AccountID: s.ToAccountID, PotName: s.ToPotName}, s.Amount.Cents); err != nil {
			return err
		}
		// Third leg: this payment also pays down card debt. The linked
		// balance is card debt and may legitimately be negative.
		if s.LinkedCreditAccountID != "" {
			if err := tx.DebitUnchecked(storage.Leg{AccountID: s.LinkedCreditAccountID}, s.Amount.Cents); err != nil {
				return err
			}
		}
		return tx.CompleteTransferSchedule(id, executedAt)
	})
}

// ExecuteGroup executes the single pending transfer schedule for a
// destination key. At most one exists per key by invariant; when none is
// pending the caller gets core.ErrNotFound rather than a silent no-op.
func (r *Registry) ExecuteGroup(ctx context.Context, toAccountID, toPotName string) error {
	s, err := r.repo.FindPendingTransferScheduleByDestination(ctx, toAccountID, toPotName)
	if err != nil {
		return err
	}
	return r.ExecuteTransferSchedule(ctx, s.ID)
}

// ExecuteAll executes every pending schedule of the given kind in stable
// creation order. A transfer schedule that fails the funds gate is
// skipped, not retried, and the batch continues with the remainder.
func (r *Registry) ExecuteAll(ctx context.Context, kind core.ScheduleKind) (BatchResult, error) {
	var result BatchResult

	switch kind {
	case core.ScheduleIncome:
		schedules, err := r.repo.ListIncomeSchedules(ctx)
		if err != nil {
			return result, err
		}
		for _, s := range schedules {
			if !s.Pending() {
				continue
			}
			if err := r.ExecuteIncomeSchedule(ctx, s.ID); err != nil {
				slog.ErrorContext(ctx, "Income schedule execution failed",
					"schedule_id", s.ID, "error", err)
				result.Failed = append(result.Failed, s.ID)
				continue
			}
			result.Executed = append(result.Executed, s.ID)
		}

	case core.ScheduleTransfer:
		schedules, err := r.repo.ListTransferSchedules(ctx)
		if err != nil {
			return result, err
		}
		for _, s := range schedules {
			if !s.Pending() {
				continue
			}
			err := r.ExecuteTransferSchedule(ctx, s.ID)
			switch {
			case errors.Is(err, core.ErrInsufficientFunds):
				slog.InfoContext(ctx, "Transfer schedule skipped, insufficient funds",
					"schedule_id", s.ID, "amount_cents", s.Amount.Cents)
				result.Skipped = append(result.Skipped, s.ID)
			case err != nil:
				slog.ErrorContext(ctx, "Transfer schedule execution failed",
					"schedule_id", s.ID, "error", err)
				result.Failed = append(result.Failed, s.ID)
			default:
				result.Executed = append(result.Executed, s.ID)
			}
		}

	default:
		return result, fmt.Errorf("unknown schedule kind: %s", kind)
	}

	slog.InfoContext(ctx, "Schedule batch complete",
		"kind", string(kind),
		"executed", len(result.Executed),
		"skipped", len(result.Skipped),
		"failed", len(result.Failed))
	return result, nil
}

// DeleteSchedule hard-removes a schedule regardless of its state.
func (r *Registry) DeleteSchedule(ctx context.Context, kind core.ScheduleKind, id string) error {
	return r.repo.InTx(ctx, func(tx *storage.Tx) error {
		switch kind {
		case core.ScheduleIncome:
			return tx.DeleteIncomeSchedule(id)
		case core.ScheduleTransfer:
			return tx.DeleteTransferSchedule(id)
		default:
			return fmt.Errorf("unknown schedule kind: %s", kind)
		}
	})
}
