package services

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"tally/internal/core"
	"tally/internal/storage"
)

func newTestRepo(t *testing.T) *storage.Repository {
	t.Helper()
	repo, err := storage.NewRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewRepository() error = %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func createAccount(t *testing.T, repo *storage.Repository, name string, balanceCents int64) core.Account {
	t.Helper()
	account := core.Account{
		ID:      uuid.NewString(),
		Name:    name,
		Kind:    core.AccountCurrent,
		Balance: core.Money{Cents: balanceCents},
	}
	err := repo.InTx(context.Background(), func(tx *storage.Tx) error {
		return tx.CreateAccount(account)
	})
	if err != nil {
		t.Fatalf("CreateAccount(%s) error = %v", name, err)
	}
	return account
}

func createPot(t *testing.T, repo *storage.Repository, accountID, name string, balanceCents int64, exclude bool) core.Pot {
	t.Helper()
	pot := core.Pot{
		ID:               uuid.NewString(),
		AccountID:        accountID,
		Name:             name,
		Balance:          core.Money{Cents: balanceCents},
		ExcludeFromReset: exclude,
	}
	err := repo.InTx(context.Background(), func(tx *storage.Tx) error {
		return tx.CreatePot(pot)
	})
	if err != nil {
		t.Fatalf("CreatePot(%s) error = %v", name, err)
	}
	return pot
}

func createIncome(t *testing.T, repo *storage.Repository, accountID string, amountCents int64, potName string) core.Income {
	t.Helper()
	income := core.Income{
		ID:          uuid.NewString(),
		AccountID:   accountID,
		Description: "Salary",
		Company:     "Acme",
		Amount:      core.Money{Cents: amountCents},
		DayOfMonth:  25,
		PotName:     potName,
	}
	err := repo.InTx(context.Background(), func(tx *storage.Tx) error {
		return tx.CreateIncome(income)
	})
	if err != nil {
		t.Fatalf("CreateIncome() error = %v", err)
	}
	return income
}

func createScheduledBill(t *testing.T, repo *storage.Repository, name string, record core.TransactionRecord) core.TransactionRecord {
	t.Helper()
	record.ID = uuid.NewString()
	record.Name = name
	if record.PaymentType == "" {
		record.PaymentType = core.PaymentDirectDebit
	}
	record.Kind = core.RecordScheduled
	err := repo.InTx(context.Background(), func(tx *storage.Tx) error {
		return tx.CreateTransaction(record)
	})
	if err != nil {
		t.Fatalf("CreateTransaction(%s) error = %v", name, err)
	}
	return record
}

func accountBalance(t *testing.T, repo *storage.Repository, id string) int64 {
	t.Helper()
	account, err := repo.GetAccount(context.Background(), id)
	if err != nil {
		t.Fatalf("GetAccount(%s) error = %v", id, err)
	}
	return account.Balance.Cents
}

func potBalance(t *testing.T, repo *storage.Repository, accountID, name string) int64 {
	t.Helper()
	pot, err := repo.GetPot(context.Background(), accountID, name)
	if err != nil {
		t.Fatalf("GetPot(%s) error = %v", name, err)
	}
	return pot.Balance.Cents
}

// stubPublisher records published events for assertions.
type stubPublisher struct {
	mu        sync.Mutex
	processed []string // "paymentID/period"
	resets    []time.Time
}

func (s *stubPublisher) PublishTransactionProcessed(_ context.Context, paymentID, period string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed = append(s.processed, paymentID+"/"+period)
	return nil
}

func (s *stubPublisher) PublishBalancesReset(_ context.Context, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resets = append(s.resets, at)
	return nil
}
