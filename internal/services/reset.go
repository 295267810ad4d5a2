package services

import (
	"context"
	"log/slog"
	"time"

	"tally/internal/core"
	"tally/internal/storage"
)

// ReductionPolicy maps a current balance to its reduced balance. The
// numeric policy is deliberately pluggable; the engine only guarantees
// that the baseline, result and difference are logged per account.
type ReductionPolicy func(balanceCents int64) int64

// FullReduction brings every balance back to zero.
func FullReduction(int64) int64 { return 0 }

// PercentReduction reduces a balance by the given percentage, rounding
// toward zero on cents.
func PercentReduction(percent int64) ReductionPolicy {
	return func(balance int64) int64 {
		return balance - balance*percent/100
	}
}

// ResetService performs the bulk balance operations that open a new
// budgeting cycle.
type ResetService struct {
	repo   *storage.Repository
	events EventPublisher
	policy ReductionPolicy
	now    func() time.Time
}

func NewResetService(repo *storage.Repository, events EventPublisher, policy ReductionPolicy) *ResetService {
	if policy == nil {
		policy = FullReduction
	}
	return &ResetService{repo: repo, events: events, policy: policy, now: time.Now}
}

// ResetBalances zeroes every account balance and every pot balance not
// flagged exclude-from-reset, and flips every completed schedule of both
// kinds back to pending. Processed-transaction history is retained: it
// belongs to the closed period and keeps the idempotency gate intact.
func (s *ResetService) ResetBalances(ctx context.Context) error {
	resetAt := s.now()
	err := s.repo.InTx(ctx, func(tx *storage.Tx) error {
		if err := tx.ZeroAccountBalances(); err != nil {
			return err
		}
		if err := tx.ZeroPotBalances(); err != nil {
			return err
		}
		return tx.ReactivateCompletedSchedules()
	})
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "Balances reset", "at", resetAt.Format(time.RFC3339))
	if s.events != nil {
		if err := s.events.PublishBalancesReset(ctx, resetAt); err != nil {
			slog.ErrorContext(ctx, "Failed to publish reset event", "error", err)
		}
	}
	return nil
}

// ApplyMonthlyReduction applies the configured policy to every account
// balance and every pot balance not flagged exclude-from-reset, and
// appends one log row per affected account under a shared run timestamp.
// Pot reductions are covered by their account's log row baseline.
func (s *ResetService) ApplyMonthlyReduction(ctx context.Context) error {
	runAt := s.now()
	var affected int

	err := s.repo.InTx(ctx, func(tx *storage.Tx) error {
		accounts, err := tx.Accounts()
		if err != nil {
			return err
		}
		for _, a := range accounts {
			baseline := a.Balance.Cents
			result := s.policy(baseline)
			if result == baseline {
				continue
			}
			if err := tx.SetAccountBalance(a.ID, result); err != nil {
				return err
			}
			if err := tx.InsertBalanceReduction(core.BalanceReduction{
				AccountName: a.Name,
				RunAt:       runAt,
				DayOfMonth:  runAt.Day(),
				Baseline:    core.Money{Cents: baseline},
				Result:      core.Money{Cents: result},
				Reduction:   core.Money{Cents: baseline - result},
			}); err != nil {
				return err
			}
			affected++
		}

		pots, err := tx.ReduciblePots()
		if err != nil {
			return err
		}
		for _, p := range pots {
			baseline := p.Balance.Cents
			result := s.policy(baseline)
			if result == baseline {
				continue
			}
			if err := tx.SetPotBalance(p.AccountID, p.Name, result); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "Monthly reduction applied",
		"run_at", runAt.Format(time.RFC3339),
		"accounts_affected", affected)
	return nil
}
