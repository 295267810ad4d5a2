// Package storage implements the ledger store on SQLite.
//
// All balance mutations go through InTx, which serializes writers behind a
// single mutex and a single SQL transaction so that a multi-leg apply is
// never observable half-done.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"tally/internal/core"

	_ "modernc.org/sqlite"
)

type Repository struct {
	db *sql.DB

	// Single-writer boundary for every ledger mutation.
	mu sync.Mutex
}

func NewRepository(dbPath string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// InTx runs fn inside one SQL transaction while holding the writer mutex.
// If fn returns an error nothing is persisted and the error is returned
// unchanged; a commit failure is reported as a persistence failure and the
// command did not take effect.
func (r *Repository) InTx(ctx context.Context, fn func(tx *Tx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sqlTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	t := &Tx{tx: sqlTx, ctx: ctx}
	if err := fn(t); err != nil {
		_ = sqlTx.Rollback()
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

const accountColumns = "id, name, kind, category, balance_cents, credit_limit_cents, position"

func scanAccount(row interface{ Scan(...any) error }) (core.Account, error) {
	var (
		a     core.Account
		limit sql.NullInt64
	)
	err := row.Scan(&a.ID, &a.Name, &a.Kind, &a.Category, &a.Balance.Cents, &limit, &a.Position)
	if err != nil {
		return core.Account{}, err
	}
	if limit.Valid {
		a.CreditLimit = &core.Money{Cents: limit.Int64}
	}
	return a, nil
}

func (r *Repository) GetAccount(ctx context.Context, id string) (core.Account, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE id = ?", id)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Account{}, core.ErrNotFound
	}
	if err != nil {
		return core.Account{}, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

func (r *Repository) ListAccounts(ctx context.Context) ([]core.Account, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+accountColumns+" FROM accounts ORDER BY position, created_at, rowid")
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []core.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (r *Repository) GetPot(ctx context.Context, accountID, name string) (core.Pot, error) {
	var p core.Pot
	err := r.db.QueryRowContext(ctx,
		`SELECT id, account_id, name, balance_cents, exclude_from_reset, position
		 FROM pots WHERE account_id = ? AND name = ?`, accountID, name).
		Scan(&p.ID, &p.AccountID, &p.Name, &p.Balance.Cents, &p.ExcludeFromReset, &p.Position)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Pot{}, core.ErrNotFound
	}
	if err != nil {
		return core.Pot{}, fmt.Errorf("get pot: %w", err)
	}
	return p, nil
}

func (r *Repository) ListPots(ctx context.Context, accountID string) ([]core.Pot, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, account_id, name, balance_cents, exclude_from_reset, position
		 FROM pots WHERE account_id = ? ORDER BY position, created_at, rowid`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list pots: %w", err)
	}
	defer rows.Close()

	var pots []core.Pot
	for rows.Next() {
		var p core.Pot
		if err := rows.Scan(&p.ID, &p.AccountID, &p.Name, &p.Balance.Cents, &p.ExcludeFromReset, &p.Position); err != nil {
			return nil, fmt.Errorf("scan pot: %w", err)
		}
		pots = append(pots, p)
	}
	return pots, rows.Err()
}

func (r *Repository) GetIncome(ctx context.Context, id string) (core.Income, error) {
	var i core.Income
	err := r.db.QueryRowContext(ctx,
		`SELECT id, account_id, description, company, amount_cents, day_of_month, pot_name, position
		 FROM incomes WHERE id = ?`, id).
		Scan(&i.ID, &i.AccountID, &i.Description, &i.Company, &i.Amount.Cents, &i.DayOfMonth, &i.PotName, &i.Position)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Income{}, core.ErrNotFound
	}
	if err != nil {
		return core.Income{}, fmt.Errorf("get income: %w", err)
	}
	return i, nil
}

func (r *Repository) ListIncomes(ctx context.Context, accountID string) ([]core.Income, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, account_id, description, company, amount_cents, day_of_month, pot_name, position
		 FROM incomes WHERE account_id = ? ORDER BY position, created_at, rowid`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list incomes: %w", err)
	}
	defer rows.Close()

	var incomes []core.Income
	for rows.Next() {
		var i core.Income
		if err := rows.Scan(&i.ID, &i.AccountID, &i.Description, &i.Company, &i.Amount.Cents, &i.DayOfMonth, &i.PotName, &i.Position); err != nil {
			return nil, fmt.Errorf("scan income: %w", err)
		}
		incomes = append(incomes, i)
	}
	return incomes, rows.Err()
}

const transactionColumns = `id, name, vendor, amount_cents, day_of_month, from_account_id,
	to_account_id, to_pot_name, payment_type, linked_credit_account_id, kind, processed_at`

func scanTransaction(row interface{ Scan(...any) error }) (core.TransactionRecord, error) {
	var (
		t         core.TransactionRecord
		from      sql.NullString
		linked    sql.NullString
		processed sql.NullInt64
	)
	err := row.Scan(&t.ID, &t.Name, &t.Vendor, &t.Amount.Cents, &t.DayOfMonth, &from,
		&t.ToAccountID, &t.ToPotName, &t.PaymentType, &linked, &t.Kind, &processed)
	if err != nil {
		return core.TransactionRecord{}, err
	}
	t.FromAccountID = from.String
	t.LinkedCreditAccountID = linked.String
	if processed.Valid {
		ts := time.Unix(processed.Int64, 0).UTC()
		t.ProcessedAt = &ts
	}
	return t, nil
}

func (r *Repository) GetTransaction(ctx context.Context, id string) (core.TransactionRecord, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+transactionColumns+" FROM transactions WHERE id = ?", id)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.TransactionRecord{}, core.ErrNotFound
	}
	if err != nil {
		return core.TransactionRecord{}, fmt.Errorf("get transaction: %w", err)
	}
	return t, nil
}

func (r *Repository) ListTransactions(ctx context.Context) ([]core.TransactionRecord, error) {
	return r.listTransactions(ctx,
		"SELECT "+transactionColumns+" FROM transactions ORDER BY created_at, rowid")
}

// ListScheduledTransactions returns the records that participate in the
// recurring sweep, in stable creation order.
func (r *Repository) ListScheduledTransactions(ctx context.Context) ([]core.TransactionRecord, error) {
	return r.listTransactions(ctx,
		"SELECT "+transactionColumns+" FROM transactions WHERE kind = 'scheduled' ORDER BY created_at, rowid")
}

func (r *Repository) listTransactions(ctx context.Context, query string) ([]core.TransactionRecord, error) {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var records []core.TransactionRecord
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		records = append(records, t)
	}
	return records, rows.Err()
}

func (r *Repository) GetTarget(ctx context.Context, id string) (core.Target, error) {
	var t core.Target
	err := r.db.QueryRowContext(ctx,
		"SELECT id, account_id, name, amount_cents, day_of_month FROM targets WHERE id = ?", id).
		Scan(&t.ID, &t.AccountID, &t.Name, &t.Amount.Cents, &t.DayOfMonth)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Target{}, core.ErrNotFound
	}
	if err != nil {
		return core.Target{}, fmt.Errorf("get target: %w", err)
	}
	return t, nil
}

func (r *Repository) ListTargets(ctx context.Context, accountID string) ([]core.Target, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, account_id, name, amount_cents, day_of_month
		 FROM targets WHERE account_id = ? ORDER BY created_at, rowid`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	defer rows.Close()

	var targets []core.Target
	for rows.Next() {
		var t core.Target
		if err := rows.Scan(&t.ID, &t.AccountID, &t.Name, &t.Amount.Cents, &t.DayOfMonth); err != nil {
			return nil, fmt.Errorf("scan target: %w", err)
		}
		targets = append(targets, t)
	}
	return targets, rows.Err()
}

const incomeScheduleColumns = `id, account_id, income_id, description, company, amount_cents,
	pot_name, active, completed, last_executed_at, created_at`

func scanIncomeSchedule(row interface{ Scan(...any) error }) (core.IncomeSchedule, error) {
	var (
		s       core.IncomeSchedule
		last    sql.NullInt64
		created int64
	)
	err := row.Scan(&s.ID, &s.AccountID, &s.IncomeID, &s.Description, &s.Company, &s.Amount.Cents,
		&s.PotName, &s.Active, &s.Completed, &last, &created)
	if err != nil {
		return core.IncomeSchedule{}, err
	}
	if last.Valid {
		ts := time.Unix(last.Int64, 0).UTC()
		s.LastExecutedAt = &ts
	}
	s.CreatedAt = time.Unix(created, 0).UTC()
	return s, nil
}

func (r *Repository) GetIncomeSchedule(ctx context.Context, id string) (core.IncomeSchedule, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+incomeScheduleColumns+" FROM income_schedules WHERE id = ?", id)
	s, err := scanIncomeSchedule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.IncomeSchedule{}, core.ErrNotFound
	}
	if err != nil {
		return core.IncomeSchedule{}, fmt.Errorf("get income schedule: %w", err)
	}
	return s, nil
}

func (r *Repository) ListIncomeSchedules(ctx context.Context) ([]core.IncomeSchedule, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+incomeScheduleColumns+" FROM income_schedules ORDER BY created_at, rowid")
	if err != nil {
		return nil, fmt.Errorf("list income schedules: %w", err)
	}
	defer rows.Close()

	var schedules []core.IncomeSchedule
	for rows.Next() {
		s, err := scanIncomeSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan income schedule: %w", err)
		}
		schedules = append(schedules, s)
	}
	return schedules, rows.Err()
}

const transferScheduleColumns = `id, from_account_id, from_pot_name, to_account_id, to_pot_name,
	amount_cents, description, linked_credit_account_id, active, completed, last_executed_at, created_at`

func scanTransferSchedule(row interface{ Scan(...any) error }) (core.TransferSchedule, error) {
	var (
		s       core.TransferSchedule
		linked  sql.NullString
		last    sql.NullInt64
		created int64
	)
	err := row.Scan(&s.ID, &s.FromAccountID, &s.FromPotName, &s.ToAccountID, &s.ToPotName,
		&s.Amount.Cents, &s.Description, &linked, &s.Active, &s.Completed, &last, &created)
	if err != nil {
		return core.TransferSchedule{}, err
	}
	s.LinkedCreditAccountID = linked.String
	if last.Valid {
		ts := time.Unix(last.Int64, 0).UTC()
		s.LastExecutedAt = &ts
	}
	s.CreatedAt = time.Unix(created, 0).UTC()
	return s, nil
}

func (r *Repository) GetTransferSchedule(ctx context.Context, id string) (core.TransferSchedule, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+transferScheduleColumns+" FROM transfer_schedules WHERE id = ?", id)
	s, err := scanTransferSchedule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.TransferSchedule{}, core.ErrNotFound
	}
	if err != nil {
		return core.TransferSchedule{}, fmt.Errorf("get transfer schedule: %w", err)
	}
	return s, nil
}

func (r *Repository) ListTransferSchedules(ctx context.Context) ([]core.TransferSchedule, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+transferScheduleColumns+" FROM transfer_schedules ORDER BY created_at, rowid")
	if err != nil {
		return nil, fmt.Errorf("list transfer schedules: %w", err)
	}
	defer rows.Close()

	var schedules []core.TransferSchedule
	for rows.Next() {
		s, err := scanTransferSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transfer schedule: %w", err)
		}
		schedules = append(schedules, s)
	}
	return schedules, rows.Err()
}

// FindPendingTransferScheduleByDestination resolves a destination key to
// its single pending schedule, if any. A completed schedule still holds
// the destination key for admission but is no longer executable.
func (r *Repository) FindPendingTransferScheduleByDestination(ctx context.Context, toAccountID, toPotName string) (core.TransferSchedule, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+transferScheduleColumns+` FROM transfer_schedules
		 WHERE to_account_id = ? AND to_pot_name = ? AND active = 1 AND completed = 0`, toAccountID, toPotName)
	s, err := scanTransferSchedule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.TransferSchedule{}, core.ErrNotFound
	}
	if err != nil {
		return core.TransferSchedule{}, fmt.Errorf("find transfer schedule by destination: %w", err)
	}
	return s, nil
}

func (r *Repository) GetProcessed(ctx context.Context, paymentID, period string) (core.ProcessedTransaction, error) {
	var (
		p           core.ProcessedTransaction
		processedAt int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT payment_id, account_id, period, processed_at, manual, name, pot_name, amount_cents
		 FROM processed_transactions WHERE payment_id = ? AND period = ?`, paymentID, period).
		Scan(&p.PaymentID, &p.AccountID, &p.Period, &processedAt, &p.Manual, &p.Name, &p.PotName, &p.Amount.Cents)
	if errors.Is(err, sql.ErrNoRows) {
		return core.ProcessedTransaction{}, core.ErrNotFound
	}
	if err != nil {
		return core.ProcessedTransaction{}, fmt.Errorf("get processed transaction: %w", err)
	}
	p.ProcessedAt = time.Unix(processedAt, 0).UTC()
	return p, nil
}

// ListProcessedByPeriod returns the execution log for one calendar period.
func (r *Repository) ListProcessedByPeriod(ctx context.Context, period string) ([]core.ProcessedTransaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT payment_id, account_id, period, processed_at, manual, name, pot_name, amount_cents
		 FROM processed_transactions WHERE period = ? ORDER BY processed_at, payment_id`, period)
	if err != nil {
		return nil, fmt.Errorf("list processed transactions: %w", err)
	}
	defer rows.Close()

	var logs []core.ProcessedTransaction
	for rows.Next() {
		var (
			p           core.ProcessedTransaction
			processedAt int64
		)
		if err := rows.Scan(&p.PaymentID, &p.AccountID, &p.Period, &processedAt, &p.Manual, &p.Name, &p.PotName, &p.Amount.Cents); err != nil {
			return nil, fmt.Errorf("scan processed transaction: %w", err)
		}
		p.ProcessedAt = time.Unix(processedAt, 0).UTC()
		logs = append(logs, p)
	}
	return logs, rows.Err()
}

// ListReductionsByRun returns the per-account entries of one reduction run.
func (r *Repository) ListReductionsByRun(ctx context.Context, runAt time.Time) ([]core.BalanceReduction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, account_name, run_at, day_of_month, baseline_cents, result_cents, reduction_cents
		 FROM balance_reductions WHERE run_at = ? ORDER BY id`, runAt.Unix())
	if err != nil {
		return nil, fmt.Errorf("list balance reductions: %w", err)
	}
	defer rows.Close()

	var reductions []core.BalanceReduction
	for rows.Next() {
		var (
			b     core.BalanceReduction
			runAt int64
		)
		if err := rows.Scan(&b.ID, &b.AccountName, &runAt, &b.DayOfMonth, &b.Baseline.Cents, &b.Result.Cents, &b.Reduction.Cents); err != nil {
			return nil, fmt.Errorf("scan balance reduction: %w", err)
		}
		b.RunAt = time.Unix(runAt, 0).UTC()
		reductions = append(reductions, b)
	}
	return reductions, rows.Err()
}
