package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"tally/internal/core"
)

// Leg addresses one side of a balance mutation: an account, or a named pot
// within it when PotName is set.
type Leg struct {
	AccountID string
	PotName   string
}

// Tx is the mutation handle passed to Repository.InTx callbacks. Balances
// are only ever changed through Credit, Debit and DebitUnchecked; no other
// component computes a balance value directly.
type Tx struct {
	tx  *sql.Tx
	ctx context.Context
}

// Balance returns the current balance of a leg.
func (t *Tx) Balance(leg Leg) (int64, error) {
	var cents int64
	var err error
	if leg.PotName == "" {
		err = t.tx.QueryRowContext(t.ctx,
			"SELECT balance_cents FROM accounts WHERE id = ?", leg.AccountID).Scan(&cents)
	} else {
		err = t.tx.QueryRowContext(t.ctx,
			"SELECT balance_cents FROM pots WHERE account_id = ? AND name = ?",
			leg.AccountID, leg.PotName).Scan(&cents)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return 0, core.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("read balance: %w", err)
	}
	return cents, nil
}

// Credit increases a leg's balance. It never fails on funds.
func (t *Tx) Credit(leg Leg, cents int64) error {
	return t.adjust(leg, cents)
}

// Debit decreases a leg's balance and fails closed with
// core.ErrInsufficientFunds if the balance would go negative.
func (t *Tx) Debit(leg Leg, cents int64) error {
	balance, err := t.Balance(leg)
	if err != nil {
		return err
	}
	if balance < cents {
		return core.ErrInsufficientFunds
	}
	return t.adjust(leg, -cents)
}

// DebitUnchecked decreases a leg's balance without a funds gate. Used by
// the recurring sweep, which tolerates balances going negative.
func (t *Tx) DebitUnchecked(leg Leg, cents int64) error {
	return t.adjust(leg, -cents)
}

func (t *Tx) adjust(leg Leg, delta int64) error {
	var res sql.Result
	var err error
	if leg.PotName == "" {
		res, err = t.tx.ExecContext(t.ctx,
			"UPDATE accounts SET balance_cents = balance_cents + ? WHERE id = ?",
			delta, leg.AccountID)
	} else {
		res, err = t.tx.ExecContext(t.ctx,
			"UPDATE pots SET balance_cents = balance_cents + ? WHERE account_id = ? AND name = ?",
			delta, leg.AccountID, leg.PotName)
	}
	if err != nil {
		return fmt.Errorf("adjust balance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("adjust balance: %w", err)
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (t *Tx) AccountExists(id string) (bool, error) {
	var one int
	err := t.tx.QueryRowContext(t.ctx, "SELECT 1 FROM accounts WHERE id = ?", id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("account exists: %w", err)
	}
	return true, nil
}

func (t *Tx) PotExists(accountID, name string) (bool, error) {
	var one int
	err := t.tx.QueryRowContext(t.ctx,
		"SELECT 1 FROM pots WHERE account_id = ? AND name = ?", accountID, name).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("pot exists: %w", err)
	}
	return true, nil
}

func (t *Tx) CreateAccount(a core.Account) error {
	var limit sql.NullInt64
	if a.CreditLimit != nil {
		limit = sql.NullInt64{Int64: a.CreditLimit.Cents, Valid: true}
	}
	_, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO accounts (id, name, kind, category, balance_cents, credit_limit_cents, position)
		 VALUES (?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(position) + 1, 0) FROM accounts))`,
		a.ID, a.Name, a.Kind, a.Category, a.Balance.Cents, limit)
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

// DeleteAccount removes an account; owned pots, incomes and targets go with
// it via foreign keys.
func (t *Tx) DeleteAccount(id string) error {
	return t.deleteByID("accounts", id)
}

// SetAccountPositions rewrites the display order after a reorder command.
func (t *Tx) SetAccountPositions(ids []string) error {
	for pos, id := range ids {
		if _, err := t.tx.ExecContext(t.ctx,
			"UPDATE accounts SET position = ? WHERE id = ?", pos, id); err != nil {
			return fmt.Errorf("set account position: %w", err)
		}
	}
	return nil
}

func (t *Tx) CreatePot(p core.Pot) error {
	_, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO pots (id, account_id, name, balance_cents, exclude_from_reset, position)
		 VALUES (?, ?, ?, ?, ?, (SELECT COALESCE(MAX(position) + 1, 0) FROM pots WHERE account_id = ?))`,
		p.ID, p.AccountID, p.Name, p.Balance.Cents, p.ExcludeFromReset, p.AccountID)
	if err != nil {
		return fmt.Errorf("create pot: %w", err)
	}
	return nil
}

func (t *Tx) UpdatePot(accountID, name string, newName *string, newBalance *int64, excludeFromReset *bool) error {
	pot := Leg{AccountID: accountID, PotName: name}
	if _, err := t.Balance(pot); err != nil {
		return err
	}
	if newBalance != nil {
		if _, err := t.tx.ExecContext(t.ctx,
			"UPDATE pots SET balance_cents = ? WHERE account_id = ? AND name = ?",
			*newBalance, accountID, name); err != nil {
			return fmt.Errorf("update pot balance: %w", err)
		}
	}
	if excludeFromReset != nil {
		if _, err := t.tx.ExecContext(t.ctx,
			"UPDATE pots SET exclude_from_reset = ? WHERE account_id = ? AND name = ?",
			*excludeFromReset, accountID, name); err != nil {
			return fmt.Errorf("update pot exclude flag: %w", err)
		}
	}
	// Rename last so the earlier updates address the row by its old name.
	if newName != nil && *newName != name {
		if _, err := t.tx.ExecContext(t.ctx,
			"UPDATE pots SET name = ? WHERE account_id = ? AND name = ?",
			*newName, accountID, name); err != nil {
			return fmt.Errorf("rename pot: %w", err)
		}
	}
	return nil
}

func (t *Tx) DeletePot(accountID, name string) error {
	res, err := t.tx.ExecContext(t.ctx,
		"DELETE FROM pots WHERE account_id = ? AND name = ?", accountID, name)
	if err != nil {
		return fmt.Errorf("delete pot: %w", err)
	}
	return requireAffected(res)
}

func (t *Tx) CreateIncome(i core.Income) error {
	_, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO incomes (id, account_id, description, company, amount_cents, day_of_month, pot_name, position)
		 VALUES (?, ?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(position) + 1, 0) FROM incomes WHERE account_id = ?))`,
		i.ID, i.AccountID, i.Description, i.Company, i.Amount.Cents, i.DayOfMonth, i.PotName, i.AccountID)
	if err != nil {
		return fmt.Errorf("create income: %w", err)
	}
	return nil
}

func (t *Tx) UpdateIncome(i core.Income) error {
	res, err := t.tx.ExecContext(t.ctx,
		`UPDATE incomes SET description = ?, company = ?, amount_cents = ?, day_of_month = ?, pot_name = ?
		 WHERE id = ?`,
		i.Description, i.Company, i.Amount.Cents, i.DayOfMonth, i.PotName, i.ID)
	if err != nil {
		return fmt.Errorf("update income: %w", err)
	}
	return requireAffected(res)
}

func (t *Tx) DeleteIncome(id string) error {
	return t.deleteByID("incomes", id)
}

func (t *Tx) CreateTransaction(r core.TransactionRecord) error {
	_, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO transactions (id, name, vendor, amount_cents, day_of_month, from_account_id,
			to_account_id, to_pot_name, payment_type, linked_credit_account_id, kind)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Name, r.Vendor, r.Amount.Cents, r.DayOfMonth, nullString(r.FromAccountID),
		r.ToAccountID, r.ToPotName, r.PaymentType, nullString(r.LinkedCreditAccountID), r.Kind)
	if err != nil {
		return fmt.Errorf("create transaction: %w", err)
	}
	return nil
}

func (t *Tx) UpdateTransaction(r core.TransactionRecord) error {
	res, err := t.tx.ExecContext(t.ctx,
		`UPDATE transactions SET name = ?, vendor = ?, amount_cents = ?, day_of_month = ?,
			from_account_id = ?, to_account_id = ?, to_pot_name = ?, payment_type = ?,
			linked_credit_account_id = ?, kind = ?
		 WHERE id = ?`,
		r.Name, r.Vendor, r.Amount.Cents, r.DayOfMonth, nullString(r.FromAccountID),
		r.ToAccountID, r.ToPotName, r.PaymentType, nullString(r.LinkedCreditAccountID), r.Kind, r.ID)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	return requireAffected(res)
}

func (t *Tx) DeleteTransaction(id string) error {
	return t.deleteByID("transactions", id)
}

func (t *Tx) MarkTransactionProcessed(id string, at time.Time) error {
	res, err := t.tx.ExecContext(t.ctx,
		"UPDATE transactions SET processed_at = ? WHERE id = ?", at.Unix(), id)
	if err != nil {
		return fmt.Errorf("mark transaction processed: %w", err)
	}
	return requireAffected(res)
}

func (t *Tx) CreateTarget(tg core.Target) error {
	_, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO targets (id, account_id, name, amount_cents, day_of_month)
		 VALUES (?, ?, ?, ?, ?)`,
		tg.ID, tg.AccountID, tg.Name, tg.Amount.Cents, tg.DayOfMonth)
	if err != nil {
		return fmt.Errorf("create target: %w", err)
	}
	return nil
}

func (t *Tx) UpdateTarget(tg core.Target) error {
	res, err := t.tx.ExecContext(t.ctx,
		"UPDATE targets SET name = ?, amount_cents = ?, day_of_month = ? WHERE id = ?",
		tg.Name, tg.Amount.Cents, tg.DayOfMonth, tg.ID)
	if err != nil {
		return fmt.Errorf("update target: %w", err)
	}
	return requireAffected(res)
}

func (t *Tx) DeleteTarget(id string) error {
	return t.deleteByID("targets", id)
}

func (t *Tx) ActiveIncomeScheduleExists(accountID, incomeID string) (bool, error) {
	var one int
	err := t.tx.QueryRowContext(t.ctx,
		"SELECT 1 FROM income_schedules WHERE account_id = ? AND income_id = ? AND active = 1",
		accountID, incomeID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check income schedule: %w", err)
	}
	return true, nil
}

func (t *Tx) ActiveTransferScheduleExistsForDestination(toAccountID, toPotName string) (bool, error) {
	var one int
	err := t.tx.QueryRowContext(t.ctx,
		"SELECT 1 FROM transfer_schedules WHERE to_account_id = ? AND to_pot_name = ? AND active = 1",
		toAccountID, toPotName).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check transfer schedule: %w", err)
	}
	return true, nil
}

func (t *Tx) CreateIncomeSchedule(s core.IncomeSchedule) error {
	_, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO income_schedules (id, account_id, income_id, description, company, amount_cents, pot_name, active, completed, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 1, 0, ?)`,
		s.ID, s.AccountID, s.IncomeID, s.Description, s.Company, s.Amount.Cents, s.PotName, s.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("create income schedule: %w", err)
	}
	return nil
}

func (t *Tx) CreateTransferSchedule(s core.TransferSchedule) error {
	_, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO transfer_schedules (id, from_account_id, from_pot_name, to_account_id, to_pot_name,
			amount_cents, description, linked_credit_account_id, active, completed, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, 0, ?)`,
		s.ID, s.FromAccountID, s.FromPotName, s.ToAccountID, s.ToPotName,
		s.Amount.Cents, s.Description, nullString(s.LinkedCreditAccountID), s.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("create transfer schedule: %w", err)
	}
	return nil
}

// IncomeSchedule reads a schedule row inside the transaction, so a
// check-then-execute sequence cannot interleave with another writer.
func (t *Tx) IncomeSchedule(id string) (core.IncomeSchedule, error) {
	row := t.tx.QueryRowContext(t.ctx,
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

func (t *Tx) TransferSchedule(id string) (core.TransferSchedule, error) {
	row := t.tx.QueryRowContext(t.ctx,
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

func (t *Tx) CompleteIncomeSchedule(id string, at time.Time) error {
	res, err := t.tx.ExecContext(t.ctx,
		"UPDATE income_schedules SET completed = 1, last_executed_at = ? WHERE id = ?", at.Unix(), id)
	if err != nil {
		return fmt.Errorf("complete income schedule: %w", err)
	}
	return requireAffected(res)
}

func (t *Tx) CompleteTransferSchedule(id string, at time.Time) error {
	res, err := t.tx.ExecContext(t.ctx,
		"UPDATE transfer_schedules SET completed = 1, last_executed_at = ? WHERE id = ?", at.Unix(), id)
	if err != nil {
		return fmt.Errorf("complete transfer schedule: %w", err)
	}
	return requireAffected(res)
}

func (t *Tx) DeleteIncomeSchedule(id string) error {
	return t.deleteByID("income_schedules", id)
}

func (t *Tx) DeleteTransferSchedule(id string) error {
	return t.deleteByID("transfer_schedules", id)
}

// ReactivateCompletedSchedules flips every completed schedule of both kinds
// back to pending for a new cycle.
func (t *Tx) ReactivateCompletedSchedules() error {
	if _, err := t.tx.ExecContext(t.ctx,
		"UPDATE income_schedules SET completed = 0 WHERE active = 1 AND completed = 1"); err != nil {
		return fmt.Errorf("reactivate income schedules: %w", err)
	}
	if _, err := t.tx.ExecContext(t.ctx,
		"UPDATE transfer_schedules SET completed = 0 WHERE active = 1 AND completed = 1"); err != nil {
		return fmt.Errorf("reactivate transfer schedules: %w", err)
	}
	return nil
}

func (t *Tx) HasProcessed(paymentID, period string) (bool, error) {
	var one int
	err := t.tx.QueryRowContext(t.ctx,
		"SELECT 1 FROM processed_transactions WHERE payment_id = ? AND period = ?",
		paymentID, period).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check processed transaction: %w", err)
	}
	return true, nil
}

func (t *Tx) InsertProcessed(p core.ProcessedTransaction) error {
	_, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO processed_transactions (payment_id, account_id, period, processed_at, manual, name, pot_name, amount_cents)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.PaymentID, p.AccountID, p.Period, p.ProcessedAt.Unix(), p.Manual, p.Name, p.PotName, p.Amount.Cents)
	if err != nil {
		return fmt.Errorf("insert processed transaction: %w", err)
	}
	return nil
}

// Accounts lists all accounts inside the transaction, for operations that
// mutate every balance in one critical section.
func (t *Tx) Accounts() ([]core.Account, error) {
	rows, err := t.tx.QueryContext(t.ctx,
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

func (t *Tx) ZeroAccountBalances() error {
	if _, err := t.tx.ExecContext(t.ctx, "UPDATE accounts SET balance_cents = 0"); err != nil {
		return fmt.Errorf("zero account balances: %w", err)
	}
	return nil
}

// ZeroPotBalances zeroes every pot except those flagged exclude_from_reset.
func (t *Tx) ZeroPotBalances() error {
	if _, err := t.tx.ExecContext(t.ctx,
		"UPDATE pots SET balance_cents = 0 WHERE exclude_from_reset = 0"); err != nil {
		return fmt.Errorf("zero pot balances: %w", err)
	}
	return nil
}

// ReduciblePots lists the pots that take part in bulk balance operations,
// skipping those flagged exclude_from_reset.
func (t *Tx) ReduciblePots() ([]core.Pot, error) {
	rows, err := t.tx.QueryContext(t.ctx,
		`SELECT id, account_id, name, balance_cents, exclude_from_reset, position
		 FROM pots WHERE exclude_from_reset = 0 ORDER BY account_id, position, created_at, rowid`)
	if err != nil {
		return nil, fmt.Errorf("list reducible pots: %w", err)
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

func (t *Tx) SetPotBalance(accountID, name string, cents int64) error {
	res, err := t.tx.ExecContext(t.ctx,
		"UPDATE pots SET balance_cents = ? WHERE account_id = ? AND name = ?", cents, accountID, name)
	if err != nil {
		return fmt.Errorf("set pot balance: %w", err)
	}
	return requireAffected(res)
}

func (t *Tx) SetAccountBalance(id string, cents int64) error {
	res, err := t.tx.ExecContext(t.ctx,
		"UPDATE accounts SET balance_cents = ? WHERE id = ?", cents, id)
	if err != nil {
		return fmt.Errorf("set account balance: %w", err)
	}
	return requireAffected(res)
}

func (t *Tx) InsertBalanceReduction(b core.BalanceReduction) error {
	_, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO balance_reductions (account_name, run_at, day_of_month, baseline_cents, result_cents, reduction_cents)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		b.AccountName, b.RunAt.Unix(), b.DayOfMonth, b.Baseline.Cents, b.Result.Cents, b.Reduction.Cents)
	if err != nil {
		return fmt.Errorf("insert balance reduction: %w", err)
	}
	return nil
}

func (t *Tx) deleteByID(table, id string) error {
	res, err := t.tx.ExecContext(t.ctx, "DELETE FROM "+table+" WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete from %s: %w", table, err)
	}
	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
