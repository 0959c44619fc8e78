package dues

import (
	"context"
	"sort"

	"github.com/mouros/motohub/generic"
)

// =============================================================================
// MEMBER SUMMARY
// =============================================================================

// Summary totals a liability table.
type Summary struct {
	MemberID generic.MemberID

	Years         int
	OwedYears     []int // should pay, no paid row
	PaidYears     int
	ExemptYears   int
	InactiveYears int

	// Outstanding is AnnualFee times len(OwedYears).
	Outstanding generic.Amount
	// PaidTotal sums the amounts of rows marked paid.
	PaidTotal generic.Amount

	// CurrentYearStatus is the status of the last entry, empty when the
	// table is empty.
	CurrentYearStatus YearStatus
}

// Summarize totals entries using annualFee for unpaid years.
func Summarize(memberID generic.MemberID, entries []DueYearEntry, annualFee generic.Amount) Summary {
	s := Summary{
		MemberID:    memberID,
		Years:       len(entries),
		OwedYears:   []int{},
		Outstanding: generic.ZeroAmount(annualFee.Currency),
		PaidTotal:   generic.ZeroAmount(annualFee.Currency),
	}

	for _, e := range entries {
		switch e.Status() {
		case StatusClubInactive:
			s.InactiveYears++
		case StatusExempt:
			s.ExemptYears++
		case StatusPaid:
			s.PaidYears++
		case StatusOwed:
			s.OwedYears = append(s.OwedYears, e.Year)
		}
		if e.Paid() {
			s.PaidTotal = s.PaidTotal.Add(e.Payment.Amount)
		}
	}
	s.Outstanding = annualFee.Mul(len(s.OwedYears))

	if n := len(entries); n > 0 {
		s.CurrentYearStatus = entries[n-1].Status()
	}
	return s
}

// Summary loads the member's table and totals it with the club's annual fee.
func (c *Calculator) Summary(ctx context.Context, memberID generic.MemberID) (Summary, []DueYearEntry, error) {
	in, err := c.Load(ctx, memberID)
	if err != nil {
		return Summary{}, nil, err
	}
	entries := Compute(in, c.Clock.Now().Year())
	return Summarize(memberID, entries, annualFee(in.Settings)), entries, nil
}

func annualFee(s generic.ClubSettings) generic.Amount {
	if s.AnnualFee.Currency == "" {
		return generic.DefaultAnnualFee
	}
	return s.AnnualFee
}

// =============================================================================
// ARREARS REPORT
// =============================================================================

// ArrearsLine is one member with at least one owed, unpaid year.
type ArrearsLine struct {
	Member  generic.Member
	Summary Summary
}

// ArrearsReport lists every member in arrears.
type ArrearsReport struct {
	Year             int
	MembersChecked   int
	Lines            []ArrearsLine
	TotalOutstanding generic.Amount
}

// Arrears runs the calculator for every member. Lines are sorted by
// outstanding amount, largest first, then by member number.
func (c *Calculator) Arrears(ctx context.Context) (ArrearsReport, error) {
	settings, err := c.Settings.GetClubSettings(ctx)
	if err != nil {
		return ArrearsReport{}, err
	}
	fee := annualFee(settings)

	members, err := c.Members.ListMembers(ctx)
	if err != nil {
		return ArrearsReport{}, err
	}

	report := ArrearsReport{
		Year:             c.Clock.Now().Year(),
		MembersChecked:   len(members),
		Lines:            []ArrearsLine{},
		TotalOutstanding: generic.ZeroAmount(fee.Currency),
	}
	for _, m := range members {
		entries, err := c.DueYears(ctx, m.ID)
		if err != nil {
			return ArrearsReport{}, err
		}
		s := Summarize(m.ID, entries, fee)
		if len(s.OwedYears) == 0 {
			continue
		}
		report.Lines = append(report.Lines, ArrearsLine{Member: m, Summary: s})
		report.TotalOutstanding = report.TotalOutstanding.Add(s.Outstanding)
	}

	sort.SliceStable(report.Lines, func(i, j int) bool {
		a, b := report.Lines[i], report.Lines[j]
		if !a.Summary.Outstanding.Value.Equal(b.Summary.Outstanding.Value) {
			return a.Summary.Outstanding.GreaterThan(b.Summary.Outstanding)
		}
		return a.Member.MemberNumber < b.Member.MemberNumber
	})
	return report, nil
}
