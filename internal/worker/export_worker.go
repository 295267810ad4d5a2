package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tally/internal/amqp"
	"tally/internal/sheets"
	"tally/internal/storage"
)

// ExportWorker mirrors the processed-transaction history to an external
// spreadsheet. It consumes ledger events and fetches the full record
// from the store, so the queue carries identifiers only.
type ExportWorker struct {
	repo    *storage.Repository
	history sheets.HistoryWriter
	resets  sheets.ResetWriter
}

func NewExportWorker(repo *storage.Repository, history sheets.HistoryWriter, resets sheets.ResetWriter) *ExportWorker {
	return &ExportWorker{
		repo:    repo,
		history: history,
		resets:  resets,
	}
}

// HandleEvent processes a single ledger event message from AMQP.
func (w *ExportWorker) HandleEvent(ctx context.Context, msg *amqp.LedgerEventMessage) error {
	switch msg.Kind {
	case amqp.EventTransactionProcessed:
		return w.exportProcessed(ctx, msg.PaymentID, msg.Period)
	case amqp.EventBalancesReset:
		return w.exportReset(ctx, msg.Timestamp)
	default:
		slog.WarnContext(ctx, "Ignoring unknown ledger event", "kind", msg.Kind)
		return nil
	}
}

func (w *ExportWorker) exportProcessed(ctx context.Context, paymentID, period string) error {
	record, err := w.repo.GetProcessed(ctx, paymentID, period)
	if err != nil {
		return fmt.Errorf("get processed transaction from storage: %w", err)
	}

	ref, err := w.history.Append(ctx, record)
	if err != nil {
		return fmt.Errorf("append to history sheet: %w", err)
	}

	slog.InfoContext(ctx, "Exported processed transaction",
		"payment_id", paymentID,
		"period", period,
		"sheets_ref", ref,
		"amount_cents", record.Amount.Cents)
	return nil
}

func (w *ExportWorker) exportReset(ctx context.Context, at time.Time) error {
	if w.resets == nil {
		slog.WarnContext(ctx, "No reset writer configured, skipping reset marker")
		return nil
	}

	ref, err := w.resets.AppendReset(ctx, at.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("append reset marker: %w", err)
	}

	slog.InfoContext(ctx, "Exported balance reset marker",
		"at", at.Format(time.RFC3339),
		"sheets_ref", ref)
	return nil
}

// ExportPeriod re-exports every processed transaction for a period.
// Backup path for events lost while the worker was down.
func (w *ExportWorker) ExportPeriod(ctx context.Context, period string) error {
	records, err := w.repo.ListProcessedByPeriod(ctx, period)
	if err != nil {
		return fmt.Errorf("list processed transactions: %w", err)
	}

	if len(records) == 0 {
		slog.InfoContext(ctx, "No processed transactions to export", "period", period)
		return nil
	}

	var exported, failed int
	for _, record := range records {
		if _, err := w.history.Append(ctx, record); err != nil {
			slog.ErrorContext(ctx, "Failed to export processed transaction",
				"payment_id", record.PaymentID,
				"period", period,
				"error", err)
			failed++
			continue
		}
		exported++
	}

	slog.InfoContext(ctx, "Period export complete",
		"period", period,
		"exported", exported,
		"failed", failed)
	return nil
}
