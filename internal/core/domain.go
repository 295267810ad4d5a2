package core

import (
	"errors"
	"strings"
	"time"
)

const (
	AccountCurrent    AccountKind = "current"
	AccountCredit     AccountKind = "credit"
	AccountSavings    AccountKind = "savings"
	AccountInvestment AccountKind = "investment"
)

const (
	PaymentCard             PaymentType = "card"
	PaymentDirectDebit      PaymentType = "direct_debit"
	PaymentCreditCardCharge PaymentType = "credit_card_charge"
	PaymentOther            PaymentType = "other"
)

const (
	RecordManual    RecordKind = "manual"
	RecordScheduled RecordKind = "scheduled"
)

type (
	AccountKind string
	PaymentType string
	RecordKind  string

	Money struct {
		Cents int64
	}

	// Account is a top-level ledger balance. Pots, incomes and targets are
	// owned by their account and are deleted with it.
	Account struct {
		ID          string
		Name        string
		Kind        AccountKind
		Category    string
		Balance     Money
		CreditLimit *Money // set iff Kind == AccountCredit
		Position    int
	}

	// Pot is a named sub-balance within an account, used to ring-fence
	// funds for a purpose (e.g. "Rent").
	Pot struct {
		ID               string
		AccountID        string
		Name             string
		Balance          Money
		ExcludeFromReset bool
		Position         int
	}

	Income struct {
		ID          string
		AccountID   string
		Description string
		Company     string
		Amount      Money
		DayOfMonth  int
		PotName     string // optional target pot
		Position    int
	}

	// TransactionRecord describes a payment. Only records with
	// Kind == RecordScheduled participate in the recurring sweep.
	TransactionRecord struct {
		ID                    string
		Name                  string
		Vendor                string
		Amount                Money
		DayOfMonth            int
		FromAccountID         string // empty for pure scheduled bills
		ToAccountID           string
		ToPotName             string
		PaymentType           PaymentType
		LinkedCreditAccountID string
		Kind                  RecordKind
		ProcessedAt           *time.Time
	}

	Target struct {
		ID         string
		AccountID  string
		Name       string
		Amount     Money
		DayOfMonth int
	}
)

var (
	ErrNotFound                     = errors.New("not found")
	ErrInsufficientFunds            = errors.New("insufficient funds")
	ErrDuplicateScheduleSource      = errors.New("an active schedule already exists for this income")
	ErrDuplicateScheduleDestination = errors.New("an active schedule already targets this destination")

	ErrInvalidDay        = errors.New("invalid day of month")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInvalidKind       = errors.New("invalid account kind")
	ErrEmptyName         = errors.New("empty name")
	ErrCreditLimitUsage  = errors.New("credit limit is only valid on credit accounts")
	ErrInvalidPaymentTag = errors.New("invalid payment type")
)

func (k AccountKind) Valid() bool {
	switch k {
	case AccountCurrent, AccountCredit, AccountSavings, AccountInvestment:
		return true
	}
	return false
}

func (p PaymentType) Valid() bool {
	switch p {
	case PaymentCard, PaymentDirectDebit, PaymentCreditCardCharge, PaymentOther:
		return true
	}
	return false
}

func (a Account) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return ErrEmptyName
	}
	if !a.Kind.Valid() {
		return ErrInvalidKind
	}
	// Invariant: credit limit present iff the account is a credit account.
	if (a.CreditLimit != nil) != (a.Kind == AccountCredit) {
		return ErrCreditLimitUsage
	}
	return nil
}

func (p Pot) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return ErrEmptyName
	}
	return nil
}

func (i Income) Validate() error {
	if strings.TrimSpace(i.Description) == "" {
		return ErrEmptyName
	}
	if err := i.Amount.Validate(); err != nil {
		return err
	}
	return ValidateDayOfMonth(i.DayOfMonth)
}

func (t TransactionRecord) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return ErrEmptyName
	}
	if t.ToAccountID == "" {
		return errors.New("missing destination account")
	}
	if !t.PaymentType.Valid() {
		return ErrInvalidPaymentTag
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	return ValidateDayOfMonth(t.DayOfMonth)
}

func (t Target) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return ErrEmptyName
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	return ValidateDayOfMonth(t.DayOfMonth)
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// ValidateDayOfMonth checks the 1-31 range shared by incomes, transactions
// and targets.
func ValidateDayOfMonth(day int) error {
	if day < 1 || day > 31 {
		return ErrInvalidDay
	}
	return nil
}

// PeriodOf returns the calendar period key ("YYYY-MM") used as the
// idempotency scope for recurring processing.
func PeriodOf(t time.Time) string {
	return t.Format("2006-01")
}
