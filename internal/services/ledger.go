package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"tally/internal/core"
	"tally/internal/storage"
)

// LedgerService is the command surface for the ledger entities. The UI
// collaborator validates input shape before calling; the service still
// enforces the domain invariants (day-of-month range, credit-limit usage,
// positive amounts) on every write.
type LedgerService struct {
	repo *storage.Repository
}

func NewLedgerService(repo *storage.Repository) *LedgerService {
	return &LedgerService{repo: repo}
}

func (s *LedgerService) CreateAccount(ctx context.Context, name string, startingBalanceCents int64, kind core.AccountKind, category string, creditLimitCents *int64) (core.Account, error) {
	account := core.Account{
		ID:       uuid.NewString(),
		Name:     name,
		Kind:     kind,
		Category: category,
		Balance:  core.Money{Cents: startingBalanceCents},
	}
	if creditLimitCents != nil {
		account.CreditLimit = &core.Money{Cents: *creditLimitCents}
	}
	if err := account.Validate(); err != nil {
		return core.Account{}, err
	}

	err := s.repo.InTx(ctx, func(tx *storage.Tx) error {
		return tx.CreateAccount(account)
	})
	if err != nil {
		return core.Account{}, fmt.Errorf("create account: %w", err)
	}

	slog.InfoContext(ctx, "Account created",
		"account_id", account.ID,
		"name", account.Name,
		"kind", string(account.Kind))
	return account, nil
}

// DeleteAccount removes the account and everything it owns (pots,
// incomes, targets).
func (s *LedgerService) DeleteAccount(ctx context.Context, id string) error {
	return s.repo.InTx(ctx, func(tx *storage.Tx) error {
		return tx.DeleteAccount(id)
	})
}

// ReorderAccounts moves the account at fromIndex to toIndex in the stored
// display order.
func (s *LedgerService) ReorderAccounts(ctx context.Context, fromIndex, toIndex int) error {
	accounts, err := s.repo.ListAccounts(ctx)
	if err != nil {
		return err
	}
	if fromIndex < 0 || fromIndex >= len(accounts) || toIndex < 0 || toIndex >= len(accounts) {
		return core.ErrNotFound
	}

	ids := make([]string, len(accounts))
	for i, a := range accounts {
		ids[i] = a.ID
	}
	moved := ids[fromIndex]
	ids = append(ids[:fromIndex], ids[fromIndex+1:]...)
	ids = append(ids[:toIndex], append([]string{moved}, ids[toIndex:]...)...)

	return s.repo.InTx(ctx, func(tx *storage.Tx) error {
		return tx.SetAccountPositions(ids)
	})
}

func (s *LedgerService) CreatePot(ctx context.Context, accountID, name string, balanceCents int64) (core.Pot, error) {
	pot := core.Pot{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Name:      name,
		Balance:   core.Money{Cents: balanceCents},
	}
	if err := pot.Validate(); err != nil {
		return core.Pot{}, err
	}

	err := s.repo.InTx(ctx, func(tx *storage.Tx) error {
		ok, err := tx.AccountExists(accountID)
		if err != nil {
			return err
		}
		if !ok {
			return core.ErrNotFound
		}
		return tx.CreatePot(pot)
	})
	if err != nil {
		return core.Pot{}, fmt.Errorf("create pot: %w", err)
	}
	return pot, nil
}

// UpdatePot applies the provided fields; nil fields are left unchanged.
func (s *LedgerService) UpdatePot(ctx context.Context, accountID, name string, newName *string, newBalanceCents *int64, excludeFromReset *bool) error {
	if newName != nil {
		check := core.Pot{AccountID: accountID, Name: *newName}
		if err := check.Validate(); err != nil {
			return err
		}
	}
	return s.repo.InTx(ctx, func(tx *storage.Tx) error {
		return tx.UpdatePot(accountID, name, newName, newBalanceCents, excludeFromReset)
	})
}

func (s *LedgerService) DeletePot(ctx context.Context, accountID, name string) error {
	return s.repo.InTx(ctx, func(tx *storage.Tx) error {
		return tx.DeletePot(accountID, name)
	})
}

func (s *LedgerService) CreateIncome(ctx context.Context, income core.Income) (core.Income, error) {
	income.ID = uuid.NewString()
	if err := income.Validate(); err != nil {
		return core.Income{}, err
	}

	err := s.repo.InTx(ctx, func(tx *storage.Tx) error {
		ok, err := tx.AccountExists(income.AccountID)
		if err != nil {
			return err
		}
		if !ok {
			return core.ErrNotFound
		}
		return tx.CreateIncome(income)
	})
	if err != nil {
		return core.Income{}, fmt.Errorf("create income: %w", err)
	}
	return income, nil
}

func (s *LedgerService) UpdateIncome(ctx context.Context, income core.Income) error {
	if err := income.Validate(); err != nil {
		return err
	}
	return s.repo.InTx(ctx, func(tx *storage.Tx) error {
		return tx.UpdateIncome(income)
	})
}

func (s *LedgerService) DeleteIncome(ctx context.Context, id string) error {
	return s.repo.InTx(ctx, func(tx *storage.Tx) error {
		return tx.DeleteIncome(id)
	})
}

func (s *LedgerService) CreateTransaction(ctx context.Context, record core.TransactionRecord) (core.TransactionRecord, error) {
	record.ID = uuid.NewString()
	if err := record.Validate(); err != nil {
		return core.TransactionRecord{}, err
	}

	err := s.repo.InTx(ctx, func(tx *storage.Tx) error {
		ok, err := tx.AccountExists(record.ToAccountID)
		if err != nil {
			return err
		}
		if !ok {
			return core.ErrNotFound
		}
		return tx.CreateTransaction(record)
	})
	if err != nil {
		return core.TransactionRecord{}, fmt.Errorf("create transaction: %w", err)
	}
	return record, nil
}

func (s *LedgerService) UpdateTransaction(ctx context.Context, record core.TransactionRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}
	return s.repo.InTx(ctx, func(tx *storage.Tx) error {
		return tx.UpdateTransaction(record)
	})
}

func (s *LedgerService) DeleteTransaction(ctx context.Context, id string) error {
	return s.repo.InTx(ctx, func(tx *storage.Tx) error {
		return tx.DeleteTransaction(id)
	})
}

func (s *LedgerService) CreateTarget(ctx context.Context, target core.Target) (core.Target, error) {
	target.ID = uuid.NewString()
	if err := target.Validate(); err != nil {
		return core.Target{}, err
	}

	err := s.repo.InTx(ctx, func(tx *storage.Tx) error {
		ok, err := tx.AccountExists(target.AccountID)
		if err != nil {
			return err
		}
		if !ok {
			return core.ErrNotFound
		}
		return tx.CreateTarget(target)
	})
	if err != nil {
		return core.Target{}, fmt.Errorf("create target: %w", err)
	}
	return target, nil
}

func (s *LedgerService) UpdateTarget(ctx context.Context, target core.Target) error {
	if err := target.Validate(); err != nil {
		return err
	}
	return s.repo.InTx(ctx, func(tx *storage.Tx) error {
		return tx.UpdateTarget(target)
	})
}

func (s *LedgerService) DeleteTarget(ctx context.Context, id string) error {
	return s.repo.InTx(ctx, func(tx *storage.Tx) error {
		return tx.DeleteTarget(id)
	})
}
