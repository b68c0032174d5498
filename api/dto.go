/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

QUANTITIES:
  Day quantities travel as strings ("10", "0.5") so clients never see
  float rounding. Dates are YYYY-MM-DD.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/jokken79/yukyu-ledger/audit"
	"github.com/jokken79/yukyu-ledger/ledger"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// GrantRequest awards a new lot of leave days.
type GrantRequest struct {
	EmployeeID string `json:"employee_id"`
	FiscalYear int    `json:"fiscal_year"`
	GrantDate  string `json:"grant_date"`
	Days       string `json:"days"`
}

// DeductRequest records leave taken against the employee's lots.
type DeductRequest struct {
	EmployeeID string `json:"employee_id"`
	Date       string `json:"date"`
	Quantity   string `json:"quantity"`
	Policy     string `json:"policy,omitempty"`
}

// RevertRequest undoes a prior usage event.
type RevertRequest struct {
	UsageEventID string `json:"usage_event_id"`
}

// SweepRequest runs the expiration sweep as of a date (defaults to today).
type SweepRequest struct {
	AsOf string `json:"as_of,omitempty"`
}

// CohortBalanceRequest pools a fiscal year's balance across employees.
type CohortBalanceRequest struct {
	EmployeeIDs []string `json:"employee_ids"`
	FiscalYear  int      `json:"fiscal_year"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// LotDTO represents a grant lot in API responses.
type LotDTO struct {
	ID         string `json:"id"`
	EmployeeID string `json:"employee_id"`
	FiscalYear int    `json:"fiscal_year"`
	GrantDate  string `json:"grant_date"`
	ExpiryDate string `json:"expiry_date"`
	Granted    string `json:"granted"`
	Consumed   string `json:"consumed"`
	Expired    string `json:"expired"`
	Remaining  string `json:"remaining"`
	Status     string `json:"status"`
}

// UsageEventDTO represents a deduction or reversal.
type UsageEventDTO struct {
	ID          string          `json:"id"`
	EmployeeID  string          `json:"employee_id"`
	Date        string          `json:"date"`
	Quantity    string          `json:"quantity"`
	Allocations []AllocationDTO `json:"allocations"`
	ReferenceID string          `json:"reference_id,omitempty"`
	RevertedBy  string          `json:"reverted_by,omitempty"`
}

// AllocationDTO is one lot's share of a usage event.
type AllocationDTO struct {
	LotID  string `json:"lot_id"`
	Amount string `json:"amount"`
}

// BalanceDTO is the pooled balance view.
type BalanceDTO struct {
	EmployeeID string `json:"employee_id,omitempty"`
	FiscalYear int    `json:"fiscal_year"`
	Granted    string `json:"granted"`
	Used       string `json:"used"`
	Expired    string `json:"expired"`
	Available  string `json:"available"`
}

// LotBalanceDTO is one row of a per-lot breakdown.
type LotBalanceDTO struct {
	Lot          LotDTO `json:"lot"`
	Remaining    string `json:"remaining"`
	ExpiringSoon bool   `json:"expiring_soon"`
}

// ComplianceRecordDTO is one employee's obligation standing.
type ComplianceRecordDTO struct {
	EmployeeID string `json:"employee_id"`
	FiscalYear int    `json:"fiscal_year"`
	Granted    string `json:"granted"`
	Used       string `json:"used"`
	Threshold  string `json:"threshold"`
	Status     string `json:"status"`
}

// RecommendationDTO tells an employee what they still need to take.
type RecommendationDTO struct {
	EmployeeID string `json:"employee_id"`
	FiscalYear int    `json:"fiscal_year"`
	Used       string `json:"used"`
	Threshold  string `json:"threshold"`
	Needed     string `json:"needed"`
	Available  string `json:"available"`
	Achievable bool   `json:"achievable"`
	Obligated  bool   `json:"obligated"`
}

// StatutoryGrantDTO is the entitlement the grant table fixes for a given
// length of service.
type StatutoryGrantDTO struct {
	HireDate      string `json:"hire_date"`
	AsOf          string `json:"as_of"`
	ServiceMonths int    `json:"service_months"`
	GrantDays     string `json:"grant_days"`
}

// SweepResultDTO summarizes one expiration sweep run.
type SweepResultDTO struct {
	AsOf        string          `json:"as_of"`
	ExpiredLots []ExpiredLotDTO `json:"expired_lots"`
}

// ExpiredLotDTO is one lot forfeited by a sweep.
type ExpiredLotDTO struct {
	LotID       string `json:"lot_id"`
	EmployeeID  string `json:"employee_id"`
	FiscalYear  int    `json:"fiscal_year"`
	GrantDate   string `json:"grant_date"`
	ExpiryDate  string `json:"expiry_date"`
	ExpiredDays string `json:"expired_days"`
}

// AuditEventDTO is one link of the audit chain.
type AuditEventDTO struct {
	Sequence   int64           `json:"sequence"`
	Timestamp  string          `json:"timestamp"`
	Type       string          `json:"type"`
	EmployeeID string          `json:"employee_id"`
	Payload    audit.Payload   `json:"payload"`
	PrevHash   string          `json:"prev_hash,omitempty"`
	Hash       string          `json:"hash"`
}

// AuditVerifyDTO reports a chain verification run.
type AuditVerifyDTO struct {
	Valid            bool  `json:"valid"`
	FromSequence     int64 `json:"from_sequence"`
	ToSequence       int64 `json:"to_sequence"`
	BrokenAtSequence int64 `json:"broken_at_sequence,omitempty"`
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toLotDTO(lot ledger.GrantLot) LotDTO {
	return LotDTO{
		ID:         string(lot.ID),
		EmployeeID: string(lot.EmployeeID),
		FiscalYear: lot.FiscalYear,
		GrantDate:  lot.GrantDate.String(),
		ExpiryDate: lot.ExpiryDate.String(),
		Granted:    lot.Granted.String(),
		Consumed:   lot.Consumed.String(),
		Expired:    lot.Expired.String(),
		Remaining:  lot.Remaining().String(),
		Status:     string(lot.Status),
	}
}

func toUsageEventDTO(e ledger.UsageEvent) UsageEventDTO {
	allocations := make([]AllocationDTO, len(e.Allocations))
	for i, a := range e.Allocations {
		allocations[i] = AllocationDTO{LotID: string(a.LotID), Amount: a.Amount.String()}
	}
	return UsageEventDTO{
		ID:          string(e.ID),
		EmployeeID:  string(e.EmployeeID),
		Date:        e.Date.String(),
		Quantity:    e.Quantity.String(),
		Allocations: allocations,
		ReferenceID: string(e.ReferenceID),
		RevertedBy:  string(e.RevertedBy),
	}
}

func toBalanceDTO(employeeID string, fiscalYear int, b ledger.BalanceSummary) BalanceDTO {
	return BalanceDTO{
		EmployeeID: employeeID,
		FiscalYear: fiscalYear,
		Granted:    b.Granted.String(),
		Used:       b.Used.String(),
		Expired:    b.Expired.String(),
		Available:  b.Available.String(),
	}
}

func toAuditEventDTO(e audit.Event) AuditEventDTO {
	return AuditEventDTO{
		Sequence:   e.Sequence,
		Timestamp:  e.Timestamp.UTC().Format(time.RFC3339Nano),
		Type:       string(e.Type),
		EmployeeID: e.EmployeeID,
		Payload:    e.Payload,
		PrevHash:   e.PrevHash,
		Hash:       e.Hash,
	}
}
