package services

import (
	"context"
	"log/slog"
	"time"

	"tally/internal/core"
	"tally/internal/storage"
)

// EventPublisher is the outbound port for ledger events. Publication is
// best-effort: a publish failure never rolls back a committed mutation.
type EventPublisher interface {
	PublishTransactionProcessed(ctx context.Context, paymentID, period string) error
	PublishBalancesReset(ctx context.Context, at time.Time) error
}

// Processor runs the "bill due today" sweep over scheduled transaction
// records. A processed_transactions row per (payment, period) pair is the
// sole idempotency gate, so the sweep may run any number of times per
// period without double-charging.
type Processor struct {
	repo   *storage.Repository
	events EventPublisher
	now    func() time.Time
}

// NewProcessor creates a sweep processor. events may be nil when no
// broker is configured.
func NewProcessor(repo *storage.Repository, events EventPublisher) *Processor {
	return &Processor{repo: repo, events: events, now: time.Now}
}

// SweepResult summarizes one sweep. BlockedReason is set whenever the
// sweep processed nothing, so callers can tell "nothing was due" apart
// from "processing failed".
type SweepResult struct {
	ProcessedIDs  []string
	BlockedReason string
}

// RunSweep processes every scheduled transaction record due at now.
// manual forces all scheduled records due regardless of the day check.
// An error on one record never aborts the sweep for the others.
func (p *Processor) RunSweep(ctx context.Context, now time.Time, manual bool) (SweepResult, error) {
	var result SweepResult
	period := core.PeriodOf(now)

	records, err := p.repo.ListScheduledTransactions(ctx)
	if err != nil {
		return result, err
	}

	slog.InfoContext(ctx, "Running recurring sweep",
		"period", period,
		"day", now.Day(),
		"manual", manual,
		"scheduled_records", len(records))

	var due, alreadyProcessed, failed int
	for _, record := range records {
		if !manual && record.DayOfMonth != now.Day() {
			continue
		}
		due++

		processed, err := p.processRecord(ctx, record, period, now, manual)
		switch {
		case err != nil:
			failed++
			slog.ErrorContext(ctx, "Failed to process scheduled transaction",
				"payment_id", record.ID,
				"name", record.Name,
				"error", err)
		case !processed:
			alreadyProcessed++
		default:
			result.ProcessedIDs = append(result.ProcessedIDs, record.ID)
			p.publishProcessed(ctx, record.ID, period)
		}
	}

	if len(result.ProcessedIDs) == 0 {
		switch {
		case due == 0:
			result.BlockedReason = "no scheduled transactions were due"
		case failed > 0 && alreadyProcessed == 0:
			result.BlockedReason = "processing failed for every due transaction"
		default:
			result.BlockedReason = "all due transactions were already processed this period"
		}
	}

	slog.InfoContext(ctx, "Recurring sweep complete",
		"period", period,
		"processed", len(result.ProcessedIDs),
		"already_processed", alreadyProcessed,
		"failed", failed)
	return result, nil
}

// processRecord applies one record's legs and writes its execution log in
// a single transaction. Returns false when the idempotency gate skipped
// the record.
func (p *Processor) processRecord(ctx context.Context, record core.TransactionRecord, period string, now time.Time, manual bool) (bool, error) {
	processed := false
	err := p.repo.InTx(ctx, func(tx *storage.Tx) error {
		done, err := tx.HasProcessed(record.ID, period)
		if err != nil {
			return err
		}
		if done {
			return nil
		}

		// This path tolerates insufficient funds: bills are owed whether
		// or not the source can cover them, so the debit is unchecked.
		if record.FromAccountID != "" {
			if err := tx.DebitUnchecked(storage.Leg{AccountID: record.FromAccountID}, record.Amount.Cents); err != nil {
				return err
			}
		}

		dest := storage.Leg{AccountID: record.ToAccountID}
		if record.ToPotName != "" {
			ok, err := tx.PotExists(record.ToAccountID, record.ToPotName)
			if err != nil {
				return err
			}
			if ok {
				dest.PotName = record.ToPotName
			}
		}
		if err := tx.Credit(dest, record.Amount.Cents); err != nil {
			return err
		}

		if record.LinkedCreditAccountID != "" {
			if err := tx.DebitUnchecked(storage.Leg{AccountID: record.LinkedCreditAccountID}, record.Amount.Cents); err != nil {
				return err
			}
		}

		if err := tx.InsertProcessed(core.ProcessedTransaction{
			PaymentID:   record.ID,
			AccountID:   record.ToAccountID,
			Period:      period,
			ProcessedAt: now,
			Manual:      manual,
			Name:        record.Name,
			PotName:     record.ToPotName,
			Amount:      record.Amount,
		}); err != nil {
			return err
		}
		if err := tx.MarkTransactionProcessed(record.ID, now); err != nil {
			return err
		}
		processed = true
		return nil
	})
	return processed, err
}

func (p *Processor) publishProcessed(ctx context.Context, paymentID, period string) {
	if p.events == nil {
		return
	}
	if err := p.events.PublishTransactionProcessed(ctx, paymentID, period); err != nil {
		slog.ErrorContext(ctx, "Failed to publish processed event",
			"payment_id", paymentID,
			"period", period,
			"error", err)
	}
}
