package core

import "time"

const (
	ScheduleIncome   ScheduleKind = "income"
	ScheduleTransfer ScheduleKind = "transfer"
)

type (
	ScheduleKind string

	// IncomeSchedule is a recurring credit instruction snapshotted from an
	// Income at creation time. Later edits to the income do not change the
	// schedule.
	IncomeSchedule struct {
		ID             string
		AccountID      string
		IncomeID       string
		Description    string
		Company        string
		Amount         Money
		PotName        string
		Active         bool
		Completed      bool
		LastExecutedAt *time.Time
		CreatedAt      time.Time
	}

	// TransferSchedule moves a snapshot amount from a source account or pot
	// to a destination account or pot, optionally paying down a linked
	// credit account as a third leg.
	TransferSchedule struct {
		ID                    string
		FromAccountID         string
		FromPotName           string
		ToAccountID           string
		ToPotName             string
		Amount                Money
		Description           string
		LinkedCreditAccountID string
		Active                bool
		Completed             bool
		LastExecutedAt        *time.Time
		CreatedAt             time.Time
	}

	// ProcessedTransaction is the append-only execution log of the
	// recurring sweep. One row exists per (PaymentID, Period) pair; the
	// pair is the idempotency key.
	ProcessedTransaction struct {
		PaymentID   string
		AccountID   string
		Period      string
		ProcessedAt time.Time
		Manual      bool
		Name        string
		PotName     string
		Amount      Money
	}

	// BalanceReduction records one account's entry in a monthly reduction
	// run. Entries sharing RunAt belong to the same run.
	BalanceReduction struct {
		ID          int64
		AccountName string
		RunAt       time.Time
		DayOfMonth  int
		Baseline    Money
		Result      Money
		Reduction   Money
	}
)

// Pending reports whether the schedule is awaiting execution.
func (s IncomeSchedule) Pending() bool {
	return s.Active && !s.Completed
}

func (s TransferSchedule) Pending() bool {
	return s.Active && !s.Completed
}

// DestinationKey identifies the (account, pot) a transfer schedule pays
// into. At most one active schedule may exist per destination key.
func (s TransferSchedule) DestinationKey() string {
	return s.ToAccountID + "/" + s.ToPotName
}
