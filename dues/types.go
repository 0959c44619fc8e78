// Package dues computes a member's yearly dues liability from the club
// settings, the member's fee overrides and the payment ledger.
package dues

import "github.com/mouros/motohub/generic"

// =============================================================================
// DUE YEAR ENTRY - One row of the liability table
// =============================================================================

// DueYearEntry says whether a member owed dues for one calendar year and
// why not when they didn't. It is derived on every query and never stored.
type DueYearEntry struct {
	Year      int
	ShouldPay bool

	Exempt       bool
	ExemptReason string

	ClubInactive       bool
	ClubInactiveReason string

	// Payment is the ledger row for (member, Year), nil when none exists.
	Payment *generic.FeePayment
}

// Paid reports whether a payment row exists and is marked paid.
func (e DueYearEntry) Paid() bool {
	return e.Payment != nil && e.Payment.Paid
}

// =============================================================================
// YEAR STATUS
// =============================================================================

type YearStatus string

const (
	StatusClubInactive  YearStatus = "club_inactive"
	StatusExempt        YearStatus = "exempt"
	StatusPaid          YearStatus = "paid"
	StatusOwed          YearStatus = "owed"
	StatusNotApplicable YearStatus = "not_applicable"
)

// Status labels the entry. A club-wide suspension wins over a member
// exemption, which wins over a recorded payment.
func (e DueYearEntry) Status() YearStatus {
	switch {
	case e.ClubInactive:
		return StatusClubInactive
	case e.Exempt:
		return StatusExempt
	case e.Paid():
		return StatusPaid
	case e.ShouldPay:
		return StatusOwed
	default:
		return StatusNotApplicable
	}
}

// Input is everything the liability table is computed from.
type Input struct {
	MemberID generic.MemberID
	Settings generic.ClubSettings

	// FeeSettings is nil when the member has no overrides.
	FeeSettings *generic.MemberFeeSettings

	// JoinDate is the effective join date after fallbacks.
	JoinDate generic.TimePoint

	Payments []generic.FeePayment
}
