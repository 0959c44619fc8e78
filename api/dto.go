/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Stored entities
  (settings, members, fee settings, payments) reuse the factory document
  types so that the same schema is validated on the way in and rendered on
  the way out. Derived data (liability tables, summaries, arrears) has its
  own DTOs here.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Dues:
    DueYearDTO, PaymentInfoDTO, DueYearsResponse, SummaryDTO

  Arrears:
    ArrearsDTO, ArrearsLineDTO, ArrearsRunDTO

  Scenarios:
    ScenarioDTO, LoadScenarioRequest

AMOUNTS:
  Money is rendered as a decimal string ("60.00") next to its currency,
  never as a JSON float.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/settings.go: Entity document types
*/
package api

import (
	"time"

	"github.com/mouros/motohub/dues"
	"github.com/mouros/motohub/factory"
	"github.com/mouros/motohub/generic"
)

// =============================================================================
// DUES
// =============================================================================

// PaymentInfoDTO is the payment row attached to a year, if any.
type PaymentInfoDTO struct {
	Paid          bool   `json:"paid"`
	PaidDate      string `json:"paid_date,omitempty"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	ReceiptNumber string `json:"receipt_number,omitempty"`
	Notes         string `json:"notes,omitempty"`
}

// DueYearDTO is one row of a member's liability table.
type DueYearDTO struct {
	Year               int             `json:"year"`
	ShouldPay          bool            `json:"should_pay"`
	Exempt             bool            `json:"exempt"`
	ExemptReason       string          `json:"exempt_reason,omitempty"`
	ClubInactive       bool            `json:"club_inactive"`
	ClubInactiveReason string          `json:"club_inactive_reason,omitempty"`
	Status             string          `json:"status"`
	Payment            *PaymentInfoDTO `json:"payment"`
}

type DueYearsResponse struct {
	MemberID    string       `json:"member_id"`
	CurrentYear int          `json:"current_year"`
	Entries     []DueYearDTO `json:"entries"`
}

// SummaryDTO totals a liability table.
type SummaryDTO struct {
	MemberID          string `json:"member_id"`
	Years             int    `json:"years"`
	OwedYears         []int  `json:"owed_years"`
	PaidYears         int    `json:"paid_years"`
	ExemptYears       int    `json:"exempt_years"`
	InactiveYears     int    `json:"inactive_years"`
	Outstanding       string `json:"outstanding"`
	PaidTotal         string `json:"paid_total"`
	Currency          string `json:"currency"`
	CurrentYearStatus string `json:"current_year_status,omitempty"`
}

// =============================================================================
// ARREARS
// =============================================================================

type ArrearsLineDTO struct {
	MemberID     string `json:"member_id"`
	MemberNumber string `json:"member_number"`
	Name         string `json:"name"`
	Email        string `json:"email,omitempty"`
	OwedYears    []int  `json:"owed_years"`
	Outstanding  string `json:"outstanding"`
}

type ArrearsDTO struct {
	Year             int              `json:"year"`
	MembersChecked   int              `json:"members_checked"`
	Lines            []ArrearsLineDTO `json:"lines"`
	TotalOutstanding string           `json:"total_outstanding"`
	Currency         string           `json:"currency"`
}

type ArrearsRunDTO struct {
	ID               string     `json:"id"`
	Year             int        `json:"year"`
	Status           string     `json:"status"`
	MembersChecked   int        `json:"members_checked"`
	MembersInArrears int        `json:"members_in_arrears"`
	TotalOutstanding string     `json:"total_outstanding"`
	Currency         string     `json:"currency"`
	Error            string     `json:"error,omitempty"`
	StartedAt        time.Time  `json:"started_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

// =============================================================================
// SCENARIOS AND ERRORS
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Field   string `json:"field,omitempty"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toDueYearDTO(e dues.DueYearEntry) DueYearDTO {
	dto := DueYearDTO{
		Year:               e.Year,
		ShouldPay:          e.ShouldPay,
		Exempt:             e.Exempt,
		ExemptReason:       e.ExemptReason,
		ClubInactive:       e.ClubInactive,
		ClubInactiveReason: e.ClubInactiveReason,
		Status:             string(e.Status()),
	}
	if p := e.Payment; p != nil {
		dto.Payment = &PaymentInfoDTO{
			Paid:          p.Paid,
			PaidDate:      p.PaidDate.String(),
			Amount:        p.Amount.Value.StringFixed(2),
			Currency:      string(p.Amount.Currency),
			ReceiptNumber: p.ReceiptNumber,
			Notes:         p.Notes,
		}
	}
	return dto
}

func toDueYearDTOs(entries []dues.DueYearEntry) []DueYearDTO {
	dtos := make([]DueYearDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toDueYearDTO(e)
	}
	return dtos
}

func toSummaryDTO(s dues.Summary) SummaryDTO {
	return SummaryDTO{
		MemberID:          string(s.MemberID),
		Years:             s.Years,
		OwedYears:         s.OwedYears,
		PaidYears:         s.PaidYears,
		ExemptYears:       s.ExemptYears,
		InactiveYears:     s.InactiveYears,
		Outstanding:       s.Outstanding.Value.StringFixed(2),
		PaidTotal:         s.PaidTotal.Value.StringFixed(2),
		Currency:          string(s.Outstanding.Currency),
		CurrentYearStatus: string(s.CurrentYearStatus),
	}
}

func toArrearsDTO(r dues.ArrearsReport) ArrearsDTO {
	lines := make([]ArrearsLineDTO, len(r.Lines))
	for i, l := range r.Lines {
		lines[i] = ArrearsLineDTO{
			MemberID:     string(l.Member.ID),
			MemberNumber: l.Member.MemberNumber,
			Name:         l.Member.Name,
			Email:        l.Member.Email,
			OwedYears:    l.Summary.OwedYears,
			Outstanding:  l.Summary.Outstanding.Value.StringFixed(2),
		}
	}
	return ArrearsDTO{
		Year:             r.Year,
		MembersChecked:   r.MembersChecked,
		Lines:            lines,
		TotalOutstanding: r.TotalOutstanding.Value.StringFixed(2),
		Currency:         string(r.TotalOutstanding.Currency),
	}
}

func toArrearsRunDTO(r generic.ArrearsRun) ArrearsRunDTO {
	return ArrearsRunDTO{
		ID:               r.ID,
		Year:             r.Year,
		Status:           string(r.Status),
		MembersChecked:   r.MembersChecked,
		MembersInArrears: r.MembersInArrears,
		TotalOutstanding: r.TotalOutstanding.Value.StringFixed(2),
		Currency:         string(r.TotalOutstanding.Currency),
		Error:            r.Error,
		StartedAt:        r.StartedAt,
		CompletedAt:      r.CompletedAt,
	}
}

func toMemberDTOs(members []generic.Member) []factory.MemberJSON {
	dtos := make([]factory.MemberJSON, len(members))
	for i, m := range members {
		dtos[i] = factory.MemberToJSON(m)
	}
	return dtos
}

func toPaymentDTOs(payments []generic.FeePayment) []factory.FeePaymentJSON {
	dtos := make([]factory.FeePaymentJSON, len(payments))
	for i, p := range payments {
		dtos[i] = factory.FeePaymentToJSON(p)
	}
	return dtos
}
