package http

import (
	"net/http"
	"time"

	"tally/internal/core"
)

type accountView struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Kind             string `json:"kind"`
	Category         string `json:"category,omitempty"`
	BalanceCents     int64  `json:"balance_cents"`
	CreditLimitCents *int64 `json:"credit_limit_cents,omitempty"`
	Position         int    `json:"position"`
}

func toAccountView(a core.Account) accountView {
	v := accountView{
		ID:           a.ID,
		Name:         a.Name,
		Kind:         string(a.Kind),
		Category:     a.Category,
		BalanceCents: a.Balance.Cents,
		Position:     a.Position,
	}
	if a.CreditLimit != nil {
		cents := a.CreditLimit.Cents
		v.CreditLimitCents = &cents
	}
	return v
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.repo.ListAccounts(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	views := make([]accountView, 0, len(accounts))
	for _, a := range accounts {
		views = append(views, toAccountView(a))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name            string `json:"name"`
		Kind            string `json:"kind"`
		Category        string `json:"category"`
		StartingBalance string `json:"starting_balance"`
		CreditLimit     string `json:"credit_limit"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	// Balances are signed: a credit account is created with its debt.
	var startingCents int64
	if req.StartingBalance != "" {
		cents, err := core.ParseSignedDecimalToCents(req.StartingBalance)
		if err != nil {
			writeError(w, r, err)
			return
		}
		startingCents = cents
	}

	var creditLimit *int64
	if req.CreditLimit != "" {
		cents, err := core.ParseDecimalToCents(req.CreditLimit)
		if err != nil {
			writeError(w, r, err)
			return
		}
		creditLimit = &cents
	}

	account, err := s.ledger.CreateAccount(r.Context(),
		sanitizeInput(req.Name), startingCents, core.AccountKind(req.Kind),
		sanitizeInput(req.Category), creditLimit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAccountView(account))
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.DeleteAccount(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleReorderAccounts(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FromIndex int `json:"from_index"`
		ToIndex   int `json:"to_index"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if err := s.ledger.ReorderAccounts(r.Context(), req.FromIndex, req.ToIndex); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

type potView struct {
	ID               string `json:"id"`
	AccountID        string `json:"account_id"`
	Name             string `json:"name"`
	BalanceCents     int64  `json:"balance_cents"`
	ExcludeFromReset bool   `json:"exclude_from_reset"`
}

func toPotView(p core.Pot) potView {
	return potView{
		ID:               p.ID,
		AccountID:        p.AccountID,
		Name:             p.Name,
		BalanceCents:     p.Balance.Cents,
		ExcludeFromReset: p.ExcludeFromReset,
	}
}

func (s *Server) handleListPots(w http.ResponseWriter, r *http.Request) {
	pots, err := s.repo.ListPots(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	views := make([]potView, 0, len(pots))
	for _, p := range pots {
		views = append(views, toPotView(p))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleCreatePot(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name    string `json:"name"`
		Balance string `json:"balance"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	var balanceCents int64
	if req.Balance != "" {
		cents, err := core.ParseSignedDecimalToCents(req.Balance)
		if err != nil {
			writeError(w, r, err)
			return
		}
		balanceCents = cents
	}

	pot, err := s.ledger.CreatePot(r.Context(), r.PathValue("id"), sanitizeInput(req.Name), balanceCents)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPotView(pot))
}

func (s *Server) handleUpdatePot(w http.ResponseWriter, r *http.Request) {
	var req struct {
		NewName          *string `json:"new_name"`
		Balance          *string `json:"balance"`
		ExcludeFromReset *bool   `json:"exclude_from_reset"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	var newBalance *int64
	if req.Balance != nil {
		cents, err := core.ParseSignedDecimalToCents(*req.Balance)
		if err != nil {
			writeError(w, r, err)
			return
		}
		newBalance = &cents
	}
	if req.NewName != nil {
		clean := sanitizeInput(*req.NewName)
		req.NewName = &clean
	}

	err := s.ledger.UpdatePot(r.Context(), r.PathValue("id"), r.PathValue("name"),
		req.NewName, newBalance, req.ExcludeFromReset)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (s *Server) handleDeletePot(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.DeletePot(r.Context(), r.PathValue("id"), r.PathValue("name")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

type incomeView struct {
	ID          string `json:"id"`
	AccountID   string `json:"account_id"`
	Description string `json:"description"`
	Company     string `json:"company,omitempty"`
	AmountCents int64  `json:"amount_cents"`
	DayOfMonth  int    `json:"day_of_month"`
	PotName     string `json:"pot_name,omitempty"`
}

func toIncomeView(i core.Income) incomeView {
	return incomeView{
		ID:          i.ID,
		AccountID:   i.AccountID,
		Description: i.Description,
		Company:     i.Company,
		AmountCents: i.Amount.Cents,
		DayOfMonth:  i.DayOfMonth,
		PotName:     i.PotName,
	}
}

type incomeRequest struct {
	AccountID   string `json:"account_id"`
	Description string `json:"description"`
	Company     string `json:"company"`
	Amount      string `json:"amount"`
	DayOfMonth  string `json:"day_of_month"`
	PotName     string `json:"pot_name"`
}

func (req incomeRequest) toIncome() (core.Income, error) {
	cents, err := core.ParseDecimalToCents(req.Amount)
	if err != nil {
		return core.Income{}, err
	}
	day, err := core.ParseDayOfMonth(req.DayOfMonth)
	if err != nil {
		return core.Income{}, err
	}
	return core.Income{
		AccountID:   req.AccountID,
		Description: sanitizeInput(req.Description),
		Company:     sanitizeInput(req.Company),
		Amount:      core.Money{Cents: cents},
		DayOfMonth:  day,
		PotName:     req.PotName,
	}, nil
}

func (s *Server) handleListIncomes(w http.ResponseWriter, r *http.Request) {
	incomes, err := s.repo.ListIncomes(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	views := make([]incomeView, 0, len(incomes))
	for _, i := range incomes {
		views = append(views, toIncomeView(i))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleCreateIncome(w http.ResponseWriter, r *http.Request) {
	var req incomeRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	income, err := req.toIncome()
	if err != nil {
		writeError(w, r, err)
		return
	}
	created, err := s.ledger.CreateIncome(r.Context(), income)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toIncomeView(created))
}

func (s *Server) handleUpdateIncome(w http.ResponseWriter, r *http.Request) {
	var req incomeRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	income, err := req.toIncome()
	if err != nil {
		writeError(w, r, err)
		return
	}
	income.ID = r.PathValue("id")
	if err := s.ledger.UpdateIncome(r.Context(), income); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toIncomeView(income))
}

func (s *Server) handleDeleteIncome(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.DeleteIncome(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

type transactionView struct {
	ID                    string     `json:"id"`
	Name                  string     `json:"name"`
	Vendor                string     `json:"vendor,omitempty"`
	AmountCents           int64      `json:"amount_cents"`
	DayOfMonth            int        `json:"day_of_month"`
	FromAccountID         string     `json:"from_account_id,omitempty"`
	ToAccountID           string     `json:"to_account_id"`
	ToPotName             string     `json:"to_pot_name,omitempty"`
	PaymentType           string     `json:"payment_type"`
	LinkedCreditAccountID string     `json:"linked_credit_account_id,omitempty"`
	Kind                  string     `json:"kind"`
	ProcessedAt           *time.Time `json:"processed_at,omitempty"`
}

func toTransactionView(t core.TransactionRecord) transactionView {
	return transactionView{
		ID:                    t.ID,
		Name:                  t.Name,
		Vendor:                t.Vendor,
		AmountCents:           t.Amount.Cents,
		DayOfMonth:            t.DayOfMonth,
		FromAccountID:         t.FromAccountID,
		ToAccountID:           t.ToAccountID,
		ToPotName:             t.ToPotName,
		PaymentType:           string(t.PaymentType),
		LinkedCreditAccountID: t.LinkedCreditAccountID,
		Kind:                  string(t.Kind),
		ProcessedAt:           t.ProcessedAt,
	}
}

type transactionRequest struct {
	Name                  string `json:"name"`
	Vendor                string `json:"vendor"`
	Amount                string `json:"amount"`
	DayOfMonth            string `json:"day_of_month"`
	FromAccountID         string `json:"from_account_id"`
	ToAccountID           string `json:"to_account_id"`
	ToPotName             string `json:"to_pot_name"`
	PaymentType           string `json:"payment_type"`
	LinkedCreditAccountID string `json:"linked_credit_account_id"`
	Kind                  string `json:"kind"`
}

func (req transactionRequest) toRecord() (core.TransactionRecord, error) {
	cents, err := core.ParseDecimalToCents(req.Amount)
	if err != nil {
		return core.TransactionRecord{}, err
	}
	day, err := core.ParseDayOfMonth(req.DayOfMonth)
	if err != nil {
		return core.TransactionRecord{}, err
	}
	kind := core.RecordKind(req.Kind)
	if req.Kind == "" {
		kind = core.RecordManual
	}
	return core.TransactionRecord{
		Name:                  sanitizeInput(req.Name),
		Vendor:                sanitizeInput(req.Vendor),
		Amount:                core.Money{Cents: cents},
		DayOfMonth:            day,
		FromAccountID:         req.FromAccountID,
		ToAccountID:           req.ToAccountID,
		ToPotName:             req.ToPotName,
		PaymentType:           core.PaymentType(req.PaymentType),
		LinkedCreditAccountID: req.LinkedCreditAccountID,
		Kind:                  kind,
	}, nil
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	var (
		records []core.TransactionRecord
		err     error
	)
	if r.URL.Query().Get("kind") == string(core.RecordScheduled) {
		records, err = s.repo.ListScheduledTransactions(r.Context())
	} else {
		records, err = s.repo.ListTransactions(r.Context())
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	views := make([]transactionView, 0, len(records))
	for _, t := range records {
		views = append(views, toTransactionView(t))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	record, err := req.toRecord()
	if err != nil {
		writeError(w, r, err)
		return
	}
	created, err := s.ledger.CreateTransaction(r.Context(), record)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionView(created))
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	record, err := req.toRecord()
	if err != nil {
		writeError(w, r, err)
		return
	}
	record.ID = r.PathValue("id")
	if err := s.ledger.UpdateTransaction(r.Context(), record); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionView(record))
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.DeleteTransaction(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

type targetView struct {
	ID          string `json:"id"`
	AccountID   string `json:"account_id"`
	Name        string `json:"name"`
	AmountCents int64  `json:"amount_cents"`
	DayOfMonth  int    `json:"day_of_month"`
}

func toTargetView(t core.Target) targetView {
	return targetView{
		ID:          t.ID,
		AccountID:   t.AccountID,
		Name:        t.Name,
		AmountCents: t.Amount.Cents,
		DayOfMonth:  t.DayOfMonth,
	}
}

type targetRequest struct {
	AccountID  string `json:"account_id"`
	Name       string `json:"name"`
	Amount     string `json:"amount"`
	DayOfMonth string `json:"day_of_month"`
}

func (req targetRequest) toTarget() (core.Target, error) {
	cents, err := core.ParseDecimalToCents(req.Amount)
	if err != nil {
		return core.Target{}, err
	}
	day, err := core.ParseDayOfMonth(req.DayOfMonth)
	if err != nil {
		return core.Target{}, err
	}
	return core.Target{
		AccountID:  req.AccountID,
		Name:       sanitizeInput(req.Name),
		Amount:     core.Money{Cents: cents},
		DayOfMonth: day,
	}, nil
}

func (s *Server) handleListTargets(w http.ResponseWriter, r *http.Request) {
	targets, err := s.repo.ListTargets(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	views := make([]targetView, 0, len(targets))
	for _, t := range targets {
		views = append(views, toTargetView(t))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleCreateTarget(w http.ResponseWriter, r *http.Request) {
	var req targetRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	target, err := req.toTarget()
	if err != nil {
		writeError(w, r, err)
		return
	}
	created, err := s.ledger.CreateTarget(r.Context(), target)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTargetView(created))
}

func (s *Server) handleUpdateTarget(w http.ResponseWriter, r *http.Request) {
	var req targetRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	target, err := req.toTarget()
	if err != nil {
		writeError(w, r, err)
		return
	}
	target.ID = r.PathValue("id")
	if err := s.ledger.UpdateTarget(r.Context(), target); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTargetView(target))
}

func (s *Server) handleDeleteTarget(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.DeleteTarget(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}
