package services

import (
	"context"
	"testing"
	"time"

	"tally/internal/core"
)

func TestResetBalances(t *testing.T) {
	repo := newTestRepo(t)
	registry := NewRegistry(repo)
	events := &stubPublisher{}
	service := NewResetService(repo, events, nil)
	ctx := context.Background()

	account := createAccount(t, repo, "Main", 5000)
	other := createAccount(t, repo, "Savings", 120000)
	createPot(t, repo, account.ID, "Rent", 30000, false)
	createPot(t, repo, account.ID, "Emergency", 50000, true)

	// A completed schedule should come back pending after the reset.
	income := createIncome(t, repo, account.ID, 100000, "")
	schedule, err := registry.AddIncomeSchedule(ctx, account.ID, income.ID)
	if err != nil {
		t.Fatalf("AddIncomeSchedule() error = %v", err)
	}
	if err := registry.ExecuteIncomeSchedule(ctx, schedule.ID); err != nil {
		t.Fatalf("ExecuteIncomeSchedule() error = %v", err)
	}

	if err := service.ResetBalances(ctx); err != nil {
		t.Fatalf("ResetBalances() error = %v", err)
	}

	if got := accountBalance(t, repo, account.ID); got != 0 {
		t.Errorf("account balance = %d, want 0", got)
	}
	if got := accountBalance(t, repo, other.ID); got != 0 {
		t.Errorf("savings balance = %d, want 0", got)
	}
	if got := potBalance(t, repo, account.ID, "Rent"); got != 0 {
		t.Errorf("pot balance = %d, want 0", got)
	}
	// Excluded pot keeps its funds.
	if got := potBalance(t, repo, account.ID, "Emergency"); got != 50000 {
		t.Errorf("excluded pot balance = %d, want 50000", got)
	}

	stored, err := repo.GetIncomeSchedule(ctx, schedule.ID)
	if err != nil {
		t.Fatalf("GetIncomeSchedule() error = %v", err)
	}
	if !stored.Pending() {
		t.Error("completed schedule should be pending again after reset")
	}

	if len(events.resets) != 1 {
		t.Errorf("published reset events = %d, want 1", len(events.resets))
	}
}

func TestResetRetainsProcessedHistory(t *testing.T) {
	repo := newTestRepo(t)
	processor := NewProcessor(repo, nil)
	service := NewResetService(repo, nil, nil)
	ctx := context.Background()

	dest := createAccount(t, repo, "Bills", 0)
	bill := createScheduledBill(t, repo, "Rent", core.TransactionRecord{
		Amount:      core.Money{Cents: 50000},
		DayOfMonth:  10,
		ToAccountID: dest.ID,
	})

	now := time.Date(2025, time.March, 10, 8, 0, 0, 0, time.UTC)
	if _, err := processor.RunSweep(ctx, now, false); err != nil {
		t.Fatalf("RunSweep() error = %v", err)
	}
	if err := service.ResetBalances(ctx); err != nil {
		t.Fatalf("ResetBalances() error = %v", err)
	}

	// The idempotency gate survives the reset: the bill does not process
	// again within the same period.
	result, err := processor.RunSweep(ctx, now.Add(time.Hour), false)
	if err != nil {
		t.Fatalf("post-reset RunSweep() error = %v", err)
	}
	if len(result.ProcessedIDs) != 0 {
		t.Errorf("post-reset sweep processed %v, want none", result.ProcessedIDs)
	}
	if _, err := repo.GetProcessed(ctx, bill.ID, "2025-03"); err != nil {
		t.Errorf("processed history should survive the reset, got err = %v", err)
	}
}

func TestApplyMonthlyReductionFull(t *testing.T) {
	repo := newTestRepo(t)
	service := NewResetService(repo, nil, FullReduction)
	fixed := time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC)
	service.now = func() time.Time { return fixed }
	ctx := context.Background()

	a := createAccount(t, repo, "Main", 12345)
	b := createAccount(t, repo, "Empty", 0)
	createPot(t, repo, a.ID, "Rent", 7000, false)
	createPot(t, repo, a.ID, "Emergency", 5000, true)

	if err := service.ApplyMonthlyReduction(ctx); err != nil {
		t.Fatalf("ApplyMonthlyReduction() error = %v", err)
	}

	if got := accountBalance(t, repo, a.ID); got != 0 {
		t.Errorf("balance = %d, want 0", got)
	}
	// The zero-balance account is untouched.
	if got := accountBalance(t, repo, b.ID); got != 0 {
		t.Errorf("empty account balance = %d, want 0", got)
	}
	// Non-excluded pot balances are reduced; excluded pots keep theirs.
	if got := potBalance(t, repo, a.ID, "Rent"); got != 0 {
		t.Errorf("pot balance = %d, want 0", got)
	}
	if got := potBalance(t, repo, a.ID, "Emergency"); got != 5000 {
		t.Errorf("excluded pot balance = %d, want 5000", got)
	}

	// One log row per affected account; the unchanged account writes none.
	reductions, err := repo.ListReductionsByRun(ctx, fixed)
	if err != nil {
		t.Fatalf("ListReductionsByRun() error = %v", err)
	}
	if len(reductions) != 1 {
		t.Fatalf("reductions = %d, want 1", len(reductions))
	}
	row := reductions[0]
	if row.AccountName != "Main" || row.Baseline.Cents != 12345 || row.Result.Cents != 0 || row.Reduction.Cents != 12345 {
		t.Errorf("reduction row = %+v", row)
	}
	if row.DayOfMonth != 1 {
		t.Errorf("DayOfMonth = %d, want 1", row.DayOfMonth)
	}
}

func TestApplyMonthlyReductionPercent(t *testing.T) {
	repo := newTestRepo(t)
	service := NewResetService(repo, nil, PercentReduction(40))
	fixed := time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC)
	service.now = func() time.Time { return fixed }
	ctx := context.Background()

	account := createAccount(t, repo, "Main", 10000)
	createPot(t, repo, account.ID, "Rent", 5000, false)

	if err := service.ApplyMonthlyReduction(ctx); err != nil {
		t.Fatalf("ApplyMonthlyReduction() error = %v", err)
	}
	if got := accountBalance(t, repo, account.ID); got != 6000 {
		t.Errorf("balance = %d, want 6000 after 40%% reduction", got)
	}
	if got := potBalance(t, repo, account.ID, "Rent"); got != 3000 {
		t.Errorf("pot balance = %d, want 3000 after 40%% reduction", got)
	}

	reductions, err := repo.ListReductionsByRun(ctx, fixed)
	if err != nil {
		t.Fatalf("ListReductionsByRun() error = %v", err)
	}
	if len(reductions) != 1 || reductions[0].Reduction.Cents != 4000 {
		t.Errorf("reductions = %+v", reductions)
	}
}

func TestPercentReductionPolicy(t *testing.T) {
	tests := []struct {
		percent int64
		balance int64
		want    int64
	}{
		{percent: 100, balance: 5000, want: 0},
		{percent: 0, balance: 5000, want: 5000},
		{percent: 50, balance: 5000, want: 2500},
		{percent: 33, balance: 100, want: 67},
		{percent: 50, balance: -1000, want: -500},
	}
	for _, tt := range tests {
		if got := PercentReduction(tt.percent)(tt.balance); got != tt.want {
			t.Errorf("PercentReduction(%d)(%d) = %d, want %d", tt.percent, tt.balance, got, tt.want)
		}
	}
}
