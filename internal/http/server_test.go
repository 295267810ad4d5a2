package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"tally/internal/services"
	"tally/internal/storage"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	repo, err := storage.NewRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewRepository() error = %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	ledger := services.NewLedgerService(repo)
	registry := services.NewRegistry(repo)
	processor := services.NewProcessor(repo, nil)
	reset := services.NewResetService(repo, nil, services.FullReduction)

	srv := NewServer(":0", repo, ledger, registry, processor, reset)
	t.Cleanup(func() { srv.rateLimiter.stop() })
	return srv
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Server.Handler.ServeHTTP(rec, req)
	return rec
}

func decodeInto(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func createAccountHTTP(t *testing.T, srv *Server, name, balance string) string {
	t.Helper()
	rec := doJSON(t, srv, http.MethodPost, "/accounts", map[string]string{
		"name":             name,
		"kind":             "current",
		"starting_balance": balance,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create account status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var view struct {
		ID string `json:"id"`
	}
	decodeInto(t, rec, &view)
	return view.ID
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := doJSON(t, srv, http.MethodGet, path, nil)
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s status = %d, want 200", path, rec.Code)
		}
	}
}

func TestCreateAndListAccounts(t *testing.T) {
	srv := newTestServer(t)

	id := createAccountHTTP(t, srv, "Main", "150.50")

	rec := doJSON(t, srv, http.MethodGet, "/accounts", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var accounts []struct {
		ID           string `json:"id"`
		Name         string `json:"name"`
		BalanceCents int64  `json:"balance_cents"`
	}
	decodeInto(t, rec, &accounts)
	if len(accounts) != 1 {
		t.Fatalf("accounts = %d, want 1", len(accounts))
	}
	if accounts[0].ID != id || accounts[0].Name != "Main" || accounts[0].BalanceCents != 15050 {
		t.Errorf("account = %+v", accounts[0])
	}
}

func TestCreateAccountValidation(t *testing.T) {
	srv := newTestServer(t)

	// Malformed amount string.
	rec := doJSON(t, srv, http.MethodPost, "/accounts", map[string]string{
		"name":             "Bad",
		"kind":             "current",
		"starting_balance": "abc",
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("bad amount status = %d, want 422", rec.Code)
	}

	// Credit limit on a non-credit account.
	rec = doJSON(t, srv, http.MethodPost, "/accounts", map[string]string{
		"name":         "Bad",
		"kind":         "current",
		"credit_limit": "100.00",
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("credit limit on current account status = %d, want 422", rec.Code)
	}

	// Unknown body field.
	rec = doJSON(t, srv, http.MethodPost, "/accounts", map[string]string{
		"name":    "Bad",
		"kind":    "current",
		"surplus": "field",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown field status = %d, want 400", rec.Code)
	}
}

func TestCreateCreditAccountWithDebt(t *testing.T) {
	srv := newTestServer(t)

	// Balances are signed: an existing card starts below zero.
	rec := doJSON(t, srv, http.MethodPost, "/accounts", map[string]string{
		"name":             "Card",
		"kind":             "credit",
		"starting_balance": "-50.00",
		"credit_limit":     "500.00",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var view struct {
		BalanceCents     int64  `json:"balance_cents"`
		CreditLimitCents *int64 `json:"credit_limit_cents"`
	}
	decodeInto(t, rec, &view)
	if view.BalanceCents != -5000 {
		t.Errorf("balance = %d, want -5000", view.BalanceCents)
	}
	if view.CreditLimitCents == nil || *view.CreditLimitCents != 50000 {
		t.Errorf("credit limit = %v, want 50000", view.CreditLimitCents)
	}
}

func TestDayOfMonthCrossesAsString(t *testing.T) {
	srv := newTestServer(t)
	accountID := createAccountHTTP(t, srv, "Main", "")

	rec := doJSON(t, srv, http.MethodPost, "/incomes", map[string]string{
		"account_id":   accountID,
		"description":  "Salary",
		"amount":       "1000.00",
		"day_of_month": "15",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("string day status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var view struct {
		DayOfMonth int `json:"day_of_month"`
	}
	decodeInto(t, rec, &view)
	if view.DayOfMonth != 15 {
		t.Errorf("day = %d, want 15", view.DayOfMonth)
	}

	// Out-of-range and non-numeric strings are validation failures.
	for _, day := range []string{"0", "32", "soon"} {
		rec = doJSON(t, srv, http.MethodPost, "/targets", map[string]string{
			"account_id":   accountID,
			"name":         "Holiday",
			"amount":       "100.00",
			"day_of_month": day,
		})
		if rec.Code != http.StatusUnprocessableEntity {
			t.Errorf("day %q status = %d, want 422", day, rec.Code)
		}
	}
}

func TestDeleteAccountNotFound(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodDelete, "/accounts/does-not-exist", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestPotLifecycle(t *testing.T) {
	srv := newTestServer(t)
	accountID := createAccountHTTP(t, srv, "Main", "")

	rec := doJSON(t, srv, http.MethodPost, "/accounts/"+accountID+"/pots", map[string]string{
		"name":    "Rent",
		"balance": "300.00",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create pot status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, srv, http.MethodPatch, "/accounts/"+accountID+"/pots/Rent", map[string]any{
		"new_name":           "Housing",
		"exclude_from_reset": true,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update pot status = %d, body = %s", rec.Code, rec.Body.String())
	}

	// A balance can be set back to zero: balances are signed decimals.
	rec = doJSON(t, srv, http.MethodPatch, "/accounts/"+accountID+"/pots/Housing", map[string]any{
		"balance": "0",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("zero balance status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, srv, http.MethodGet, "/accounts/"+accountID+"/pots", nil)
	var pots []struct {
		Name             string `json:"name"`
		BalanceCents     int64  `json:"balance_cents"`
		ExcludeFromReset bool   `json:"exclude_from_reset"`
	}
	decodeInto(t, rec, &pots)
	if len(pots) != 1 || pots[0].Name != "Housing" || pots[0].BalanceCents != 0 || !pots[0].ExcludeFromReset {
		t.Errorf("pots = %+v", pots)
	}

	rec = doJSON(t, srv, http.MethodDelete, "/accounts/"+accountID+"/pots/Housing", nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("delete pot status = %d, want 204", rec.Code)
	}
}

func TestTransferScheduleFlow(t *testing.T) {
	srv := newTestServer(t)
	fromID := createAccountHTTP(t, srv, "Current", "500.00")
	toID := createAccountHTTP(t, srv, "Savings", "")

	rec := doJSON(t, srv, http.MethodPost, "/schedules/transfer", map[string]string{
		"from_account_id": fromID,
		"to_account_id":   toID,
		"amount":          "200.00",
		"description":     "Monthly savings",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add schedule status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var schedule struct {
		ID      string `json:"id"`
		Pending bool   `json:"pending"`
	}
	decodeInto(t, rec, &schedule)
	if !schedule.Pending {
		t.Error("new schedule should be pending")
	}

	// A second schedule to the same destination conflicts.
	rec = doJSON(t, srv, http.MethodPost, "/schedules/transfer", map[string]string{
		"from_account_id": fromID,
		"to_account_id":   toID,
		"amount":          "50.00",
	})
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate destination status = %d, want 409", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodGet, "/schedules/transfer/"+schedule.ID+"/can-execute", nil)
	var can struct {
		CanExecute bool `json:"can_execute"`
	}
	decodeInto(t, rec, &can)
	if !can.CanExecute {
		t.Error("schedule should be executable with sufficient funds")
	}

	rec = doJSON(t, srv, http.MethodPost, "/schedules/transfer/"+schedule.ID+"/execute", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("execute status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, srv, http.MethodGet, "/accounts", nil)
	var accounts []struct {
		ID           string `json:"id"`
		BalanceCents int64  `json:"balance_cents"`
	}
	decodeInto(t, rec, &accounts)
	balances := make(map[string]int64, len(accounts))
	for _, a := range accounts {
		balances[a.ID] = a.BalanceCents
	}
	if balances[fromID] != 30000 || balances[toID] != 20000 {
		t.Errorf("balances = %v, want from 30000 and to 20000", balances)
	}
}

func TestTransferExecuteInsufficientFunds(t *testing.T) {
	srv := newTestServer(t)
	fromID := createAccountHTTP(t, srv, "Current", "10.00")
	toID := createAccountHTTP(t, srv, "Savings", "")

	rec := doJSON(t, srv, http.MethodPost, "/schedules/transfer", map[string]string{
		"from_account_id": fromID,
		"to_account_id":   toID,
		"amount":          "200.00",
	})
	var schedule struct {
		ID string `json:"id"`
	}
	decodeInto(t, rec, &schedule)

	rec = doJSON(t, srv, http.MethodPost, "/schedules/transfer/"+schedule.ID+"/execute", nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("underfunded execute status = %d, want 422", rec.Code)
	}
}

func TestIncomeScheduleFlow(t *testing.T) {
	srv := newTestServer(t)
	accountID := createAccountHTTP(t, srv, "Main", "")

	rec := doJSON(t, srv, http.MethodPost, "/incomes", map[string]string{
		"account_id":   accountID,
		"description":  "Salary",
		"company":      "Acme",
		"amount":       "2500.00",
		"day_of_month": "25",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create income status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var income struct {
		ID string `json:"id"`
	}
	decodeInto(t, rec, &income)

	rec = doJSON(t, srv, http.MethodPost, "/schedules/income", map[string]string{
		"account_id": accountID,
		"income_id":  income.ID,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add income schedule status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var schedule struct {
		ID          string `json:"id"`
		AmountCents int64  `json:"amount_cents"`
	}
	decodeInto(t, rec, &schedule)
	if schedule.AmountCents != 250000 {
		t.Errorf("snapshot amount = %d, want 250000", schedule.AmountCents)
	}

	rec = doJSON(t, srv, http.MethodPost, "/schedules/income/execute-all", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("execute-all status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var result struct {
		Executed []string `json:"executed"`
	}
	decodeInto(t, rec, &result)
	if len(result.Executed) != 1 || result.Executed[0] != schedule.ID {
		t.Errorf("executed = %v", result.Executed)
	}
}

func TestExecuteAllUnknownKind(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/schedules/bogus/execute-all", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestSweepAndProcessedEndpoints(t *testing.T) {
	srv := newTestServer(t)
	destID := createAccountHTTP(t, srv, "Bills", "")

	rec := doJSON(t, srv, http.MethodPost, "/transactions", map[string]string{
		"name":          "Rent",
		"amount":        "1200.00",
		"day_of_month":  "15",
		"to_account_id": destID,
		"payment_type":  "direct_debit",
		"kind":          "scheduled",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create transaction status = %d, body = %s", rec.Code, rec.Body.String())
	}

	// Manual sweep ignores the day-of-month check.
	rec = doJSON(t, srv, http.MethodPost, "/sweep?manual=true", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("sweep status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var sweep struct {
		ProcessedIDs []string `json:"processed_ids"`
	}
	decodeInto(t, rec, &sweep)
	if len(sweep.ProcessedIDs) != 1 {
		t.Fatalf("processed = %v, want one", sweep.ProcessedIDs)
	}

	rec = doJSON(t, srv, http.MethodGet, "/processed", nil)
	var processed []struct {
		PaymentID   string `json:"payment_id"`
		Manual      bool   `json:"manual"`
		AmountCents int64  `json:"amount_cents"`
	}
	decodeInto(t, rec, &processed)
	if len(processed) != 1 || !processed[0].Manual || processed[0].AmountCents != 120000 {
		t.Errorf("processed = %+v", processed)
	}

	rec = doJSON(t, srv, http.MethodGet, "/transactions?kind=scheduled", nil)
	var scheduled []json.RawMessage
	decodeInto(t, rec, &scheduled)
	if len(scheduled) != 1 {
		t.Errorf("scheduled transactions = %d, want 1", len(scheduled))
	}
}

func TestResetEndpoint(t *testing.T) {
	srv := newTestServer(t)
	accountID := createAccountHTTP(t, srv, "Main", "400.00")

	rec := doJSON(t, srv, http.MethodPost, "/reset", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("reset status = %d", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodGet, "/accounts", nil)
	var accounts []struct {
		ID           string `json:"id"`
		BalanceCents int64  `json:"balance_cents"`
	}
	decodeInto(t, rec, &accounts)
	if len(accounts) != 1 || accounts[0].ID != accountID || accounts[0].BalanceCents != 0 {
		t.Errorf("accounts after reset = %+v", accounts)
	}
}

func TestRateLimiterAllow(t *testing.T) {
	rl := newRateLimiter()
	defer rl.stop()

	for i := 0; i < 120; i++ {
		if !rl.allow("10.0.0.1") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if rl.allow("10.0.0.1") {
		t.Error("request 121 within a minute should be rejected")
	}
	// Another client is unaffected.
	if !rl.allow("10.0.0.2") {
		t.Error("a different client should be allowed")
	}
}
