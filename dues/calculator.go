/*
calculator.go - Dues liability calculator

PURPOSE:
  Produces, for one member, the ordered list of calendar years from the
  later of (club fee start year, member join year) through the current
  year, each marked as owed or not and why.

ALGORITHM:
  1. Load club settings (missing row aborts: ErrClubSettingsNotFound)
  2. Load member fee settings; when absent (or without a join date)
     read the join date from the member record
  3. startYear = max(year(feeStartDate), year(joinDate))
  4. For year in [startYear, currentYear]:
       clubInactive = some inactive period covers year
       exempt       = some exempt period covers year
       shouldPay    = !(clubInactive || exempt)
       payment      = ledger row for (member, year), if any
  5. startYear > currentYear yields an empty table

  When several periods cover the same year, the first one in stored
  order supplies the reason.

READS ARE NOT ATOMIC:
  The three reads run one after another with no transaction. A concurrent
  settings edit can produce a table mixing old and new data. The table is
  advisory and recomputed on every view.

FAILURES:
  The first store error aborts the computation and is returned as-is.
  There is no retry and no partial result.

SEE ALSO:
  - generic/period.go: FirstCovering
  - summary.go: Totals and arrears built on top of DueYears
*/
package dues

import (
	"context"
	"errors"
	"time"

	"github.com/mouros/motohub/generic"
)

// =============================================================================
// CALCULATOR
// =============================================================================

// Calculator computes liability tables from a store.
type Calculator struct {
	Settings    generic.SettingsStore
	Members     generic.MemberStore
	FeeSettings generic.FeeSettingsStore
	Payments    generic.PaymentStore
	Clock       generic.Clock

	// Observe, when set, is called after every DueYears call.
	Observe func(d time.Duration, err error)
}

// NewCalculator wires a calculator to a full store.
func NewCalculator(store generic.Store, clock generic.Clock) *Calculator {
	if clock == nil {
		clock = generic.SystemClock{}
	}
	return &Calculator{
		Settings:    store,
		Members:     store,
		FeeSettings: store,
		Payments:    store,
		Clock:       clock,
	}
}

// DueYears returns the liability table for memberID.
func (c *Calculator) DueYears(ctx context.Context, memberID generic.MemberID) (entries []DueYearEntry, err error) {
	if c.Observe != nil {
		start := time.Now()
		defer func() { c.Observe(time.Since(start), err) }()
	}

	in, err := c.Load(ctx, memberID)
	if err != nil {
		return nil, err
	}
	return Compute(in, c.Clock.Now().Year()), nil
}

// Load fetches everything Compute needs.
func (c *Calculator) Load(ctx context.Context, memberID generic.MemberID) (Input, error) {
	settings, err := c.Settings.GetClubSettings(ctx)
	if err != nil {
		return Input{}, err
	}

	in := Input{MemberID: memberID, Settings: settings}

	fs, err := c.FeeSettings.GetMemberFeeSettings(ctx, memberID)
	switch {
	case err == nil:
		in.FeeSettings = &fs
		in.JoinDate = fs.JoinDate
	case errors.Is(err, generic.ErrFeeSettingsNotFound):
		// no overrides
	default:
		return Input{}, err
	}

	if in.JoinDate.IsZero() {
		member, err := c.Members.GetMember(ctx, memberID)
		if err != nil {
			return Input{}, err
		}
		in.JoinDate = member.JoinDate
	}
	if in.JoinDate.IsZero() {
		in.JoinDate = generic.Today(c.Clock)
	}

	in.Payments, err = c.Payments.ListFeePayments(ctx, memberID)
	if err != nil {
		return Input{}, err
	}
	return in, nil
}

// =============================================================================
// PURE COMPUTATION
// =============================================================================

// StartYear is max(fee start year, join year).
func StartYear(in Input) int {
	start := in.Settings.FeeStartDate.Year()
	if join := in.JoinDate.Year(); join > start {
		start = join
	}
	return start
}

// Compute builds the liability table for currentYear without any I/O.
func Compute(in Input, currentYear int) []DueYearEntry {
	startYear := StartYear(in)
	if startYear > currentYear {
		return []DueYearEntry{}
	}

	var exemptions []generic.Period
	if in.FeeSettings != nil {
		exemptions = in.FeeSettings.ExemptPeriods
	}

	byYear := make(map[int]generic.FeePayment, len(in.Payments))
	for _, p := range in.Payments {
		if _, dup := byYear[p.Year]; !dup {
			byYear[p.Year] = p
		}
	}

	entries := make([]DueYearEntry, 0, currentYear-startYear+1)
	for year := startYear; year <= currentYear; year++ {
		e := DueYearEntry{Year: year}

		if p, ok := generic.FirstCovering(in.Settings.InactivePeriods, year); ok {
			e.ClubInactive = true
			e.ClubInactiveReason = p.Reason
		}
		if p, ok := generic.FirstCovering(exemptions, year); ok {
			e.Exempt = true
			e.ExemptReason = p.Reason
		}
		e.ShouldPay = !(e.ClubInactive || e.Exempt)

		if p, ok := byYear[year]; ok {
			payment := p
			e.Payment = &payment
		}
		entries = append(entries, e)
	}
	return entries
}
