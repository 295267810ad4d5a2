package sheets

import (
	"context"

	"tally/internal/core"
)

// Ports for outbound adapters.
type (
	// HistoryWriter appends one processed-transaction row to the
	// external execution log.
	HistoryWriter interface {
		Append(ctx context.Context, p core.ProcessedTransaction) (rowRef string, err error)
	}

	// ResetWriter records a balance reset marker row.
	ResetWriter interface {
		AppendReset(ctx context.Context, at string) (rowRef string, err error)
	}
)
