package generic

// =============================================================================
// PERIOD - A dated interval with a reason
// =============================================================================

// Period is a closed date interval [Start, End] with a free-text reason.
// Club inactive periods and member exempt periods share this type.
//
// Coverage is counted in whole calendar years: a period ending in January of
// year Y covers all of Y.
type Period struct {
	Start  TimePoint
	End    TimePoint
	Reason string
}

// StartYear and EndYear are the calendar years of the bounds.
func (p Period) StartYear() int { return p.Start.Year() }
func (p Period) EndYear() int   { return p.End.Year() }

// CoversYear reports whether StartYear <= year <= EndYear.
// A malformed period (end before start, same year included) covers nothing.
func (p Period) CoversYear(year int) bool {
	if p.End.Before(p.Start) {
		return false
	}
	return p.StartYear() <= year && year <= p.EndYear()
}

// Validate rejects periods missing a bound or ending before they start.
func (p Period) Validate() error {
	if p.Start.IsZero() || p.End.IsZero() || p.End.Before(p.Start) {
		return &InvalidPeriodError{Period: p}
	}
	return nil
}

// String returns a string representation of the period.
func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}

// =============================================================================
// INTERVAL CONTAINMENT
// =============================================================================

// FirstCovering returns the first period, in stored order, whose year span
// contains year. Overlapping periods do not change the outcome, only the
// first one supplies the reason.
func FirstCovering(periods []Period, year int) (Period, bool) {
	for _, p := range periods {
		if p.CoversYear(year) {
			return p, true
		}
	}
	return Period{}, false
}
