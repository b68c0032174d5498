/*
handlers.go - HTTP API handlers for the entitlement ledger

PURPOSE:
  Exposes the ledger engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Grants and usage:
    POST   /api/grants                        Award a grant lot
    POST   /api/usage                         Deduct leave days
    POST   /api/usage/revert                  Revert a usage event
    GET    /api/employees/{id}/usage          Usage history

  Balances:
    GET    /api/employees/{id}/balance        Pooled balance for a year
    GET    /api/employees/{id}/breakdown      Per-lot breakdown
    POST   /api/balances/cohort               Pooled cohort balance

  Compliance:
    GET    /api/compliance                    Classify a fiscal year
    GET    /api/employees/{id}/recommendation Usage recommendation
    GET    /api/statutory/grant               Statutory grant for a hire date

  Administration:
    POST   /api/admin/sweep                   Run the expiration sweep
    GET    /api/audit/events                  List audit events
    GET    /api/audit/verify                  Verify the hash chain

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Lot or usage event not found
  - 409: Duplicate grant, concurrent modification, double revert
  - 422: Insufficient balance
  - 500: Internal errors

SECURITY NOTE:
  No authentication middleware. Deployment sits behind an internal
  gateway that owns authn/authz.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/jokken79/yukyu-ledger/ledger"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine *ledger.Engine
	Clock  ledger.Clock
}

// NewHandler creates a new handler over the engine.
func NewHandler(engine *ledger.Engine, clock ledger.Clock) *Handler {
	return &Handler{Engine: engine, Clock: clock}
}

// =============================================================================
// GRANT AND USAGE HANDLERS
// =============================================================================

// CreateGrant awards a new lot of leave days.
// POST /api/grants
func (h *Handler) CreateGrant(w http.ResponseWriter, r *http.Request) {
	var req GrantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.EmployeeID == "" {
		writeError(w, http.StatusBadRequest, "employee_id is required", nil)
		return
	}

	grantDate, err := ledger.ParseDate(req.GrantDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid grant_date format (use YYYY-MM-DD)", err)
		return
	}
	days, err := ledger.ParseDays(req.Days)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid days value", err)
		return
	}

	lot, err := h.Engine.Grant(r.Context(), ledger.EmployeeID(req.EmployeeID), req.FiscalYear, grantDate, days)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toLotDTO(*lot))
}

// CreateUsage deducts leave days against the employee's lots.
// POST /api/usage
func (h *Handler) CreateUsage(w http.ResponseWriter, r *http.Request) {
	var req DeductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.EmployeeID == "" {
		writeError(w, http.StatusBadRequest, "employee_id is required", nil)
		return
	}

	date, err := ledger.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}
	quantity, err := ledger.ParseDays(req.Quantity)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid quantity value", err)
		return
	}

	event, err := h.Engine.Deduct(r.Context(), ledger.EmployeeID(req.EmployeeID), date, quantity, ledger.DeductionPolicy(req.Policy))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUsageEventDTO(*event))
}

// RevertUsage undoes a prior usage event.
// POST /api/usage/revert
func (h *Handler) RevertUsage(w http.ResponseWriter, r *http.Request) {
	var req RevertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.UsageEventID == "" {
		writeError(w, http.StatusBadRequest, "usage_event_id is required", nil)
		return
	}

	reversal, err := h.Engine.Revert(r.Context(), ledger.UsageEventID(req.UsageEventID))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUsageEventDTO(*reversal))
}

// GetUsageHistory returns an employee's usage events, reversals included.
// GET /api/employees/{id}/usage
func (h *Handler) GetUsageHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	events, err := h.Engine.UsageHistory(r.Context(), ledger.EmployeeID(id))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]UsageEventDTO, len(events))
	for i, e := range events {
		dtos[i] = toUsageEventDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// BALANCE HANDLERS
// =============================================================================

// GetBalance returns the pooled balance for an employee and fiscal year.
// GET /api/employees/{id}/balance?fiscal_year=2025
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	fiscalYear, ok := h.fiscalYearParam(w, r)
	if !ok {
		return
	}

	summary, err := h.Engine.Balance(r.Context(), ledger.EmployeeID(id), fiscalYear)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(id, fiscalYear, summary))
}

// GetBreakdown returns the employee's lots individually with expiring-soon
// flags.
// GET /api/employees/{id}/breakdown
func (h *Handler) GetBreakdown(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rows, err := h.Engine.BalanceBreakdown(r.Context(), ledger.EmployeeID(id))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]LotBalanceDTO, len(rows))
	for i, row := range rows {
		dtos[i] = LotBalanceDTO{
			Lot:          toLotDTO(row.Lot),
			Remaining:    row.Remaining.String(),
			ExpiringSoon: row.ExpiringSoon,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetCohortBalance pools a fiscal year's balance across employees.
// POST /api/balances/cohort
func (h *Handler) GetCohortBalance(w http.ResponseWriter, r *http.Request) {
	var req CohortBalanceRequest
	// An empty body is an empty cohort: a zero balance, not an error.
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ids := make([]ledger.EmployeeID, len(req.EmployeeIDs))
	for i, id := range req.EmployeeIDs {
		ids[i] = ledger.EmployeeID(id)
	}

	summary, err := h.Engine.CohortBalance(r.Context(), ids, req.FiscalYear)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO("", req.FiscalYear, summary))
}

// =============================================================================
// COMPLIANCE HANDLERS
// =============================================================================

// GetCompliance classifies obligated employees for a fiscal year. An
// optional threshold overrides the configured one for what-if reports.
// GET /api/compliance?fiscal_year=2025&threshold=7
func (h *Handler) GetCompliance(w http.ResponseWriter, r *http.Request) {
	fiscalYear, ok := h.fiscalYearParam(w, r)
	if !ok {
		return
	}

	var records []ledger.ComplianceRecord
	var err error
	if raw := r.URL.Query().Get("threshold"); raw != "" {
		threshold, parseErr := ledger.ParseDays(raw)
		if parseErr != nil {
			writeError(w, http.StatusBadRequest, "Invalid threshold value", parseErr)
			return
		}
		records, err = h.Engine.CheckComplianceWithThreshold(r.Context(), fiscalYear, threshold)
	} else {
		records, err = h.Engine.CheckCompliance(r.Context(), fiscalYear)
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]ComplianceRecordDTO, len(records))
	for i, rec := range records {
		dtos[i] = ComplianceRecordDTO{
			EmployeeID: string(rec.EmployeeID),
			FiscalYear: rec.FiscalYear,
			Granted:    rec.Granted.String(),
			Used:       rec.Used.String(),
			Threshold:  rec.Threshold.String(),
			Status:     string(rec.Status),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetRecommendation computes what an employee still needs to take this
// fiscal year.
// GET /api/employees/{id}/recommendation
func (h *Handler) GetRecommendation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rec, err := h.Engine.Recommendation(r.Context(), ledger.EmployeeID(id))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, RecommendationDTO{
		EmployeeID: string(rec.EmployeeID),
		FiscalYear: rec.FiscalYear,
		Used:       rec.Used.String(),
		Threshold:  rec.Threshold.String(),
		Needed:     rec.Needed.String(),
		Available:  rec.Available.String(),
		Achievable: rec.Achievable,
		Obligated:  rec.Obligated,
	})
}

// GetStatutoryGrant returns the grant an employee is entitled to by length
// of service. HR uses this when awarding the annual lot.
// GET /api/statutory/grant?hire_date=2020-04-01&as_of=2025-04-01
func (h *Handler) GetStatutoryGrant(w http.ResponseWriter, r *http.Request) {
	rawHire := r.URL.Query().Get("hire_date")
	if rawHire == "" {
		writeError(w, http.StatusBadRequest, "hire_date is required", nil)
		return
	}
	hireDate, err := ledger.ParseDate(rawHire)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid hire_date format (use YYYY-MM-DD)", err)
		return
	}

	asOf := ledger.Today(h.Clock)
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		asOf, err = ledger.ParseDate(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid as_of format (use YYYY-MM-DD)", err)
			return
		}
	}

	months := ledger.ServiceMonths(hireDate, asOf)
	writeJSON(w, http.StatusOK, StatutoryGrantDTO{
		HireDate:      hireDate.String(),
		AsOf:          asOf.String(),
		ServiceMonths: months,
		GrantDays:     ledger.StatutoryGrantDays(months).String(),
	})
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// TriggerSweep runs the expiration sweep.
// POST /api/admin/sweep
func (h *Handler) TriggerSweep(w http.ResponseWriter, r *http.Request) {
	var req SweepRequest
	// All fields are optional, so an empty body means "sweep as of today".
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	asOf := ledger.Today(h.Clock)
	if req.AsOf != "" {
		var err error
		asOf, err = ledger.ParseDate(req.AsOf)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid as_of format (use YYYY-MM-DD)", err)
			return
		}
	}

	summaries, err := h.Engine.SweepExpirations(r.Context(), asOf)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	expired := make([]ExpiredLotDTO, len(summaries))
	for i, s := range summaries {
		expired[i] = ExpiredLotDTO{
			LotID:       string(s.LotID),
			EmployeeID:  string(s.EmployeeID),
			FiscalYear:  s.FiscalYear,
			GrantDate:   s.GrantDate.String(),
			ExpiryDate:  s.ExpiryDate.String(),
			ExpiredDays: s.ExpiredDays.String(),
		}
	}
	writeJSON(w, http.StatusOK, SweepResultDTO{AsOf: asOf.String(), ExpiredLots: expired})
}

// =============================================================================
// AUDIT HANDLERS
// =============================================================================

// ListAuditEvents returns a range of the audit chain.
// GET /api/audit/events?from=1&to=100
func (h *Handler) ListAuditEvents(w http.ResponseWriter, r *http.Request) {
	from, to, ok := h.sequenceRange(w, r)
	if !ok {
		return
	}

	events, err := h.Engine.AuditEvents(r.Context(), from, to)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]AuditEventDTO, len(events))
	for i, e := range events {
		dtos[i] = toAuditEventDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// VerifyAuditTrail recomputes the hash chain over a sequence range.
// GET /api/audit/verify?from=1&to=100
func (h *Handler) VerifyAuditTrail(w http.ResponseWriter, r *http.Request) {
	from, to, ok := h.sequenceRange(w, r)
	if !ok {
		return
	}

	valid, brokenAt, err := h.Engine.VerifyAuditTrail(r.Context(), from, to)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := AuditVerifyDTO{Valid: valid, FromSequence: from, ToSequence: to}
	if !valid {
		resp.BrokenAtSequence = brokenAt
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) fiscalYearParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("fiscal_year")
	if raw == "" {
		return ledger.FiscalYearOf(ledger.Today(h.Clock)), true
	}
	fiscalYear, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid fiscal_year", err)
		return 0, false
	}
	return fiscalYear, true
}

func (h *Handler) sequenceRange(w http.ResponseWriter, r *http.Request) (int64, int64, bool) {
	from := int64(1)
	to := int64(1<<62 - 1)

	if raw := r.URL.Query().Get("from"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "Invalid from sequence", err)
			return 0, 0, false
		}
		from = parsed
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < from {
			writeError(w, http.StatusBadRequest, "Invalid to sequence", err)
			return 0, 0, false
		}
		to = parsed
	}
	return from, to, true
}

// writeDomainError maps domain errors to HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrInvalidGranularity):
		writeError(w, http.StatusBadRequest, "Invalid quantity", err)
	case ledger.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case errors.Is(err, ledger.ErrDuplicateGrant),
		errors.Is(err, ledger.ErrConcurrentModification),
		errors.Is(err, ledger.ErrAlreadyReverted),
		errors.Is(err, ledger.ErrNotReversible):
		writeError(w, http.StatusConflict, "Conflict", err)
	case errors.Is(err, ledger.ErrInsufficientBalance):
		writeError(w, http.StatusUnprocessableEntity, "Insufficient balance", err)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
