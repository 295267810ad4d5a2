package core

import (
	"errors"
	"testing"
	"time"
)

func TestAccountValidate(t *testing.T) {
	limit := Money{Cents: 50000}
	tests := []struct {
		name    string
		account Account
		wantErr error
	}{
		{
			name:    "valid current account",
			account: Account{Name: "Main", Kind: AccountCurrent},
		},
		{
			name:    "valid credit account with limit",
			account: Account{Name: "Card", Kind: AccountCredit, CreditLimit: &limit},
		},
		{
			name:    "empty name",
			account: Account{Name: "  ", Kind: AccountCurrent},
			wantErr: ErrEmptyName,
		},
		{
			name:    "unknown kind",
			account: Account{Name: "Main", Kind: "checking"},
			wantErr: ErrInvalidKind,
		},
		{
			name:    "credit account without limit",
			account: Account{Name: "Card", Kind: AccountCredit},
			wantErr: ErrCreditLimitUsage,
		},
		{
			name:    "limit on non-credit account",
			account: Account{Name: "Main", Kind: AccountCurrent, CreditLimit: &limit},
			wantErr: ErrCreditLimitUsage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.account.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestTransactionRecordValidate(t *testing.T) {
	valid := TransactionRecord{
		Name:        "Rent",
		Amount:      Money{Cents: 120000},
		DayOfMonth:  1,
		ToAccountID: "acc-1",
		PaymentType: PaymentDirectDebit,
		Kind:        RecordScheduled,
	}

	t.Run("valid", func(t *testing.T) {
		if err := valid.Validate(); err != nil {
			t.Errorf("Validate() = %v", err)
		}
	})

	t.Run("missing destination", func(t *testing.T) {
		r := valid
		r.ToAccountID = ""
		if err := r.Validate(); err == nil {
			t.Error("Validate() should fail without destination account")
		}
	})

	t.Run("invalid payment type", func(t *testing.T) {
		r := valid
		r.PaymentType = "cheque"
		if err := r.Validate(); !errors.Is(err, ErrInvalidPaymentTag) {
			t.Errorf("Validate() = %v, want ErrInvalidPaymentTag", err)
		}
	})

	t.Run("invalid day", func(t *testing.T) {
		r := valid
		r.DayOfMonth = 32
		if err := r.Validate(); !errors.Is(err, ErrInvalidDay) {
			t.Errorf("Validate() = %v, want ErrInvalidDay", err)
		}
	})

	t.Run("zero amount", func(t *testing.T) {
		r := valid
		r.Amount = Money{}
		if err := r.Validate(); !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("Validate() = %v, want ErrInvalidAmount", err)
		}
	})
}

func TestIncomeValidate(t *testing.T) {
	valid := Income{Description: "Salary", Amount: Money{Cents: 250000}, DayOfMonth: 25}
	if err := valid.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}

	empty := valid
	empty.Description = ""
	if err := empty.Validate(); !errors.Is(err, ErrEmptyName) {
		t.Errorf("Validate() = %v, want ErrEmptyName", err)
	}
}

func TestPeriodOf(t *testing.T) {
	tests := []struct {
		at   time.Time
		want string
	}{
		{time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC), "2025-01"},
		{time.Date(2025, time.January, 31, 23, 59, 59, 0, time.UTC), "2025-01"},
		{time.Date(2025, time.December, 15, 12, 0, 0, 0, time.UTC), "2025-12"},
	}
	for _, tt := range tests {
		if got := PeriodOf(tt.at); got != tt.want {
			t.Errorf("PeriodOf(%v) = %q, want %q", tt.at, got, tt.want)
		}
	}
}

func TestSchedulePending(t *testing.T) {
	tests := []struct {
		name      string
		active    bool
		completed bool
		want      bool
	}{
		{name: "active not completed", active: true, completed: false, want: true},
		{name: "active completed", active: true, completed: true, want: false},
		{name: "inactive", active: false, completed: false, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			is := IncomeSchedule{Active: tt.active, Completed: tt.completed}
			if got := is.Pending(); got != tt.want {
				t.Errorf("IncomeSchedule.Pending() = %v, want %v", got, tt.want)
			}
			ts := TransferSchedule{Active: tt.active, Completed: tt.completed}
			if got := ts.Pending(); got != tt.want {
				t.Errorf("TransferSchedule.Pending() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDestinationKey(t *testing.T) {
	s := TransferSchedule{ToAccountID: "acc-1", ToPotName: "Rent"}
	if got := s.DestinationKey(); got != "acc-1/Rent" {
		t.Errorf("DestinationKey() = %q", got)
	}
	bare := TransferSchedule{ToAccountID: "acc-1"}
	if got := bare.DestinationKey(); got != "acc-1/" {
		t.Errorf("DestinationKey() = %q", got)
	}
}
