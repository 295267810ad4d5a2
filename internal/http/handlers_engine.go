package http

import (
	"net/http"
	"time"

	"tally/internal/core"
	"tally/internal/services"
)

type incomeScheduleView struct {
	ID             string     `json:"id"`
	AccountID      string     `json:"account_id"`
	IncomeID       string     `json:"income_id"`
	Description    string     `json:"description"`
	Company        string     `json:"company,omitempty"`
	AmountCents    int64      `json:"amount_cents"`
	PotName        string     `json:"pot_name,omitempty"`
	Pending        bool       `json:"pending"`
	Completed      bool       `json:"completed"`
	LastExecutedAt *time.Time `json:"last_executed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

func toIncomeScheduleView(s core.IncomeSchedule) incomeScheduleView {
	return incomeScheduleView{
		ID:             s.ID,
		AccountID:      s.AccountID,
		IncomeID:       s.IncomeID,
		Description:    s.Description,
		Company:        s.Company,
		AmountCents:    s.Amount.Cents,
		PotName:        s.PotName,
		Pending:        s.Pending(),
		Completed:      s.Completed,
		LastExecutedAt: s.LastExecutedAt,
		CreatedAt:      s.CreatedAt,
	}
}

type transferScheduleView struct {
	ID                    string     `json:"id"`
	FromAccountID         string     `json:"from_account_id"`
	FromPotName           string     `json:"from_pot_name,omitempty"`
	ToAccountID           string     `json:"to_account_id"`
	ToPotName             string     `json:"to_pot_name,omitempty"`
	AmountCents           int64      `json:"amount_cents"`
	Description           string     `json:"description,omitempty"`
	LinkedCreditAccountID string     `json:"linked_credit_account_id,omitempty"`
	Pending               bool       `json:"pending"`
	Completed             bool       `json:"completed"`
	LastExecutedAt        *time.Time `json:"last_executed_at,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
}

func toTransferScheduleView(s core.TransferSchedule) transferScheduleView {
	return transferScheduleView{
		ID:                    s.ID,
		FromAccountID:         s.FromAccountID,
		FromPotName:           s.FromPotName,
		ToAccountID:           s.ToAccountID,
		ToPotName:             s.ToPotName,
		AmountCents:           s.Amount.Cents,
		Description:           s.Description,
		LinkedCreditAccountID: s.LinkedCreditAccountID,
		Pending:               s.Pending(),
		Completed:             s.Completed,
		LastExecutedAt:        s.LastExecutedAt,
		CreatedAt:             s.CreatedAt,
	}
}

func (s *Server) handleListIncomeSchedules(w http.ResponseWriter, r *http.Request) {
	schedules, err := s.repo.ListIncomeSchedules(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	views := make([]incomeScheduleView, 0, len(schedules))
	for _, sch := range schedules {
		views = append(views, toIncomeScheduleView(sch))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleAddIncomeSchedule(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccountID string `json:"account_id"`
		IncomeID  string `json:"income_id"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	schedule, err := s.registry.AddIncomeSchedule(r.Context(), req.AccountID, req.IncomeID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toIncomeScheduleView(schedule))
}

func (s *Server) handleExecuteIncomeSchedule(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.ExecuteIncomeSchedule(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (s *Server) handleDeleteIncomeSchedule(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.DeleteSchedule(r.Context(), core.ScheduleIncome, r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleListTransferSchedules(w http.ResponseWriter, r *http.Request) {
	schedules, err := s.repo.ListTransferSchedules(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	views := make([]transferScheduleView, 0, len(schedules))
	for _, sch := range schedules {
		views = append(views, toTransferScheduleView(sch))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleAddTransferSchedule(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FromAccountID         string `json:"from_account_id"`
		FromPotName           string `json:"from_pot_name"`
		ToAccountID           string `json:"to_account_id"`
		ToPotName             string `json:"to_pot_name"`
		Amount                string `json:"amount"`
		Description           string `json:"description"`
		LinkedCreditAccountID string `json:"linked_credit_account_id"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	cents, err := core.ParseDecimalToCents(req.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}

	schedule, err := s.registry.AddTransferSchedule(r.Context(), services.TransferScheduleParams{
		FromAccountID:         req.FromAccountID,
		FromPotName:           req.FromPotName,
		ToAccountID:           req.ToAccountID,
		ToPotName:             req.ToPotName,
		AmountCents:           cents,
		Description:           sanitizeInput(req.Description),
		LinkedCreditAccountID: req.LinkedCreditAccountID,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransferScheduleView(schedule))
}

func (s *Server) handleCanExecute(w http.ResponseWriter, r *http.Request) {
	can, err := s.registry.CanExecute(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		CanExecute bool `json:"can_execute"`
	}{CanExecute: can})
}

func (s *Server) handleExecuteTransferSchedule(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.ExecuteTransferSchedule(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (s *Server) handleExecuteGroup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ToAccountID string `json:"to_account_id"`
		ToPotName   string `json:"to_pot_name"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if err := s.registry.ExecuteGroup(r.Context(), req.ToAccountID, req.ToPotName); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (s *Server) handleDeleteTransferSchedule(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.DeleteSchedule(r.Context(), core.ScheduleTransfer, r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleExecuteAll(w http.ResponseWriter, r *http.Request) {
	kind := core.ScheduleKind(r.PathValue("kind"))
	if kind != core.ScheduleIncome && kind != core.ScheduleTransfer {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unknown schedule kind"})
		return
	}
	result, err := s.registry.ExecuteAll(r.Context(), kind)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Executed []string `json:"executed"`
		Skipped  []string `json:"skipped"`
		Failed   []string `json:"failed"`
	}{Executed: result.Executed, Skipped: result.Skipped, Failed: result.Failed})
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	manual := r.URL.Query().Get("manual") == "true"
	result, err := s.processor.RunSweep(r.Context(), time.Now(), manual)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		ProcessedIDs  []string `json:"processed_ids"`
		BlockedReason string   `json:"blocked_reason,omitempty"`
	}{ProcessedIDs: result.ProcessedIDs, BlockedReason: result.BlockedReason})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.reset.ResetBalances(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (s *Server) handleReduction(w http.ResponseWriter, r *http.Request) {
	if err := s.reset.ApplyMonthlyReduction(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

type processedView struct {
	PaymentID   string    `json:"payment_id"`
	AccountID   string    `json:"account_id"`
	Period      string    `json:"period"`
	ProcessedAt time.Time `json:"processed_at"`
	Manual      bool      `json:"manual"`
	Name        string    `json:"name"`
	PotName     string    `json:"pot_name,omitempty"`
	AmountCents int64     `json:"amount_cents"`
}

func (s *Server) handleListProcessed(w http.ResponseWriter, r *http.Request) {
	period := r.URL.Query().Get("period")
	if period == "" {
		period = core.PeriodOf(time.Now())
	}
	records, err := s.repo.ListProcessedByPeriod(r.Context(), period)
	if err != nil {
		writeError(w, r, err)
		return
	}
	views := make([]processedView, 0, len(records))
	for _, p := range records {
		views = append(views, processedView{
			PaymentID:   p.PaymentID,
			AccountID:   p.AccountID,
			Period:      p.Period,
			ProcessedAt: p.ProcessedAt,
			Manual:      p.Manual,
			Name:        p.Name,
			PotName:     p.PotName,
			AmountCents: p.Amount.Cents,
		})
	}
	writeJSON(w, http.StatusOK, views)
}
