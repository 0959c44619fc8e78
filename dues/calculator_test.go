package dues_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mouros/motohub/dues"
	"github.com/mouros/motohub/generic"
	"github.com/mouros/motohub/generic/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func clockAt(year int) generic.FixedClock {
	return generic.FixedClock{At: time.Date(year, time.June, 15, 12, 0, 0, 0, time.UTC)}
}

func date(s string) generic.TimePoint {
	return generic.MustParseDate(s)
}

func period(start, end, reason string) generic.Period {
	return generic.Period{Start: date(start), End: date(end), Reason: reason}
}

type fixture struct {
	ctx   context.Context
	store *store.Memory
	calc  *dues.Calculator
}

func newFixture(t *testing.T, currentYear int) *fixture {
	t.Helper()
	mem := store.NewMemory()
	return &fixture{
		ctx:   context.Background(),
		store: mem,
		calc:  dues.NewCalculator(mem, clockAt(currentYear)),
	}
}

func (f *fixture) settings(t *testing.T, feeStart string, inactive ...generic.Period) {
	t.Helper()
	_, err := f.store.UpsertClubSettings(f.ctx, generic.ClubSettings{
		Name:            "Test MC",
		AnnualFee:       generic.DefaultAnnualFee,
		FeeStartDate:    date(feeStart),
		InactivePeriods: inactive,
	})
	require.NoError(t, err)
}

func (f *fixture) member(t *testing.T, id string, number int, joined string) {
	t.Helper()
	_, err := f.store.UpsertMember(f.ctx, generic.Member{
		ID:           generic.MemberID(id),
		MemberNumber: fmt.Sprintf("%03d", number),
		Name:         "Rider " + id,
		Type:         generic.MemberAdult,
		JoinDate:     date(joined),
	})
	require.NoError(t, err)
}

func (f *fixture) feeSettings(t *testing.T, id, joined string, exempt ...generic.Period) {
	t.Helper()
	_, err := f.store.UpsertMemberFeeSettings(f.ctx, generic.MemberFeeSettings{
		MemberID:      generic.MemberID(id),
		JoinDate:      date(joined),
		ExemptPeriods: exempt,
	})
	require.NoError(t, err)
}

func (f *fixture) paid(t *testing.T, id string, year int, amount float64) {
	t.Helper()
	_, err := f.store.UpsertFeePayment(f.ctx, generic.FeePayment{
		MemberID: generic.MemberID(id),
		Year:     year,
		Paid:     true,
		PaidDate: generic.NewTimePoint(year, time.March, 1),
		Amount:   generic.NewAmount(amount, generic.CurrencyEUR),
	})
	require.NoError(t, err)
}

func years(entries []dues.DueYearEntry) []int {
	out := make([]int, len(entries))
	for i, e := range entries {
		out[i] = e.Year
	}
	return out
}

// =============================================================================
// REFERENCE SCENARIO
// =============================================================================

func TestDueYears_MilitaryServiceExemption(t *testing.T) {
	// GIVEN: dues since 2015, member joined mid 2018, exempt for 2020
	// WHEN: the table is computed in 2022
	// THEN: five years, only 2020 is exempt

	f := newFixture(t, 2022)
	f.settings(t, "2015-01-01")
	f.member(t, "m-1", 1, "2018-06-01")
	f.feeSettings(t, "m-1", "2018-06-01", period("2020-01-01", "2020-12-31", "military service"))

	entries, err := f.calc.DueYears(f.ctx, "m-1")
	require.NoError(t, err)

	assert.Equal(t, []int{2018, 2019, 2020, 2021, 2022}, years(entries))
	for _, e := range entries {
		if e.Year == 2020 {
			assert.True(t, e.Exempt)
			assert.Equal(t, "military service", e.ExemptReason)
			assert.False(t, e.ShouldPay)
			assert.Equal(t, dues.StatusExempt, e.Status())
			continue
		}
		assert.True(t, e.ShouldPay, "year %d", e.Year)
		assert.False(t, e.ClubInactive)
		assert.Nil(t, e.Payment)
		assert.Equal(t, dues.StatusOwed, e.Status())
	}
}

// =============================================================================
// RANGE
// =============================================================================

func TestDueYears_StartsAtFeeStartWhenJoinedEarlier(t *testing.T) {
	f := newFixture(t, 2017)
	f.settings(t, "2015-03-01")
	f.member(t, "m-1", 1, "2009-05-20")

	entries, err := f.calc.DueYears(f.ctx, "m-1")
	require.NoError(t, err)
	assert.Equal(t, []int{2015, 2016, 2017}, years(entries))
}

func TestDueYears_FeeStartInFuture_Empty(t *testing.T) {
	f := newFixture(t, 2022)
	f.settings(t, "2024-01-01")
	f.member(t, "m-1", 1, "2018-06-01")

	entries, err := f.calc.DueYears(f.ctx, "m-1")
	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)
}

func TestDueYears_JoinAfterCurrentYear_Empty(t *testing.T) {
	f := newFixture(t, 2022)
	f.settings(t, "2015-01-01")
	f.member(t, "m-1", 1, "2023-02-01")

	entries, err := f.calc.DueYears(f.ctx, "m-1")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDueYears_JoinedInCurrentYear_SingleEntry(t *testing.T) {
	f := newFixture(t, 2022)
	f.settings(t, "2015-01-01")
	f.member(t, "m-1", 1, "2022-11-30")

	entries, err := f.calc.DueYears(f.ctx, "m-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 2022, entries[0].Year)
	assert.True(t, entries[0].ShouldPay)
}

// =============================================================================
// JOIN DATE SOURCES
// =============================================================================

func TestDueYears_NoFeeSettings_UsesMemberJoinDate(t *testing.T) {
	f := newFixture(t, 2022)
	f.settings(t, "2015-01-01")
	f.member(t, "m-1", 1, "2020-09-09")

	entries, err := f.calc.DueYears(f.ctx, "m-1")
	require.NoError(t, err)
	assert.Equal(t, []int{2020, 2021, 2022}, years(entries))
	for _, e := range entries {
		assert.False(t, e.Exempt)
	}
}

func TestDueYears_FeeSettingsJoinDateWins(t *testing.T) {
	f := newFixture(t, 2022)
	f.settings(t, "2015-01-01")
	f.member(t, "m-1", 1, "2016-01-01")
	f.feeSettings(t, "m-1", "2021-04-01")

	entries, err := f.calc.DueYears(f.ctx, "m-1")
	require.NoError(t, err)
	assert.Equal(t, []int{2021, 2022}, years(entries))
}

func TestDueYears_NoJoinDateAnywhere_CurrentYearOnly(t *testing.T) {
	f := newFixture(t, 2022)
	f.settings(t, "2015-01-01")
	_, err := f.store.UpsertMember(f.ctx, generic.Member{ID: "m-1", MemberNumber: "001", Name: "No Date"})
	require.NoError(t, err)

	entries, err := f.calc.DueYears(f.ctx, "m-1")
	require.NoError(t, err)
	assert.Equal(t, []int{2022}, years(entries))
}

// =============================================================================
// PERIODS
// =============================================================================

func TestDueYears_ClubInactiveAndExempt_BothFlagsSet(t *testing.T) {
	// GIVEN: club paused 2020, member also exempt 2020
	// THEN: both flags and reasons are reported, status favours the club

	f := newFixture(t, 2021)
	f.settings(t, "2019-01-01", period("2020-03-01", "2020-12-31", "pandemic"))
	f.member(t, "m-1", 1, "2019-01-01")
	f.feeSettings(t, "m-1", "2019-01-01", period("2020-01-01", "2020-12-31", "abroad"))

	entries, err := f.calc.DueYears(f.ctx, "m-1")
	require.NoError(t, err)
	require.Len(t, entries, 3)

	y2020 := entries[1]
	assert.True(t, y2020.ClubInactive)
	assert.Equal(t, "pandemic", y2020.ClubInactiveReason)
	assert.True(t, y2020.Exempt)
	assert.Equal(t, "abroad", y2020.ExemptReason)
	assert.False(t, y2020.ShouldPay)
	assert.Equal(t, dues.StatusClubInactive, y2020.Status())
}

func TestDueYears_OverlappingPeriods_FirstStoredReasonWins(t *testing.T) {
	f := newFixture(t, 2021)
	f.settings(t, "2020-01-01",
		period("2021-01-01", "2021-12-31", "rebuilding clubhouse"),
		period("2020-06-01", "2021-06-30", "pandemic"),
	)
	f.member(t, "m-1", 1, "2020-01-01")

	entries, err := f.calc.DueYears(f.ctx, "m-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "pandemic", entries[0].ClubInactiveReason)
	assert.Equal(t, "rebuilding clubhouse", entries[1].ClubInactiveReason)
}

func TestDueYears_PeriodTouchingYear_CoversWholeYear(t *testing.T) {
	// A period ending on 10 January still suspends the whole year.
	f := newFixture(t, 2020)
	f.settings(t, "2018-01-01")
	f.member(t, "m-1", 1, "2018-01-01")
	f.feeSettings(t, "m-1", "2018-01-01", period("2018-12-31", "2019-01-10", "injury"))

	entries, err := f.calc.DueYears(f.ctx, "m-1")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.True(t, entries[0].Exempt)
	assert.True(t, entries[1].Exempt)
	assert.False(t, entries[2].Exempt)
}

func TestDueYears_MalformedPeriod_CoversNothing(t *testing.T) {
	f := newFixture(t, 2020)
	f.settings(t, "2018-01-01", generic.Period{Start: date("2019-05-01"), Reason: "open ended"})
	f.member(t, "m-1", 1, "2018-01-01")

	entries, err := f.calc.DueYears(f.ctx, "m-1")
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, e.ClubInactive, "year %d", e.Year)
	}
}

func TestDueYears_ReversedPeriodWithinOneYear_CoversNothing(t *testing.T) {
	// GIVEN: an inactive period whose end precedes its start inside 2019
	// WHEN: the due years are computed in 2020
	// THEN: 2019 is not club-inactive and stays owed

	f := newFixture(t, 2020)
	f.settings(t, "2018-01-01", period("2019-12-01", "2019-01-01", "typo"))
	f.member(t, "m-1", 1, "2018-01-01")

	entries, err := f.calc.DueYears(f.ctx, "m-1")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, 2019, entries[1].Year)
	assert.False(t, entries[1].ClubInactive)
	assert.True(t, entries[1].ShouldPay)
}

// =============================================================================
// PAYMENTS
// =============================================================================

func TestDueYears_PaymentsAttached(t *testing.T) {
	f := newFixture(t, 2022)
	f.settings(t, "2020-01-01")
	f.member(t, "m-1", 1, "2020-01-01")
	f.paid(t, "m-1", 2021, 60)

	entries, err := f.calc.DueYears(f.ctx, "m-1")
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Nil(t, entries[0].Payment)
	require.NotNil(t, entries[1].Payment)
	assert.True(t, entries[1].Payment.Paid)
	assert.Equal(t, "60.00 EUR", entries[1].Payment.Amount.String())
	assert.True(t, entries[1].ShouldPay, "payment does not change liability")
	assert.Equal(t, dues.StatusPaid, entries[1].Status())
}

func TestDueYears_PaymentOutsideRange_Ignored(t *testing.T) {
	f := newFixture(t, 2022)
	f.settings(t, "2021-01-01")
	f.member(t, "m-1", 1, "2021-01-01")
	f.paid(t, "m-1", 2019, 60)

	entries, err := f.calc.DueYears(f.ctx, "m-1")
	require.NoError(t, err)
	for _, e := range entries {
		assert.Nil(t, e.Payment)
	}
}

func TestDueYears_Idempotent(t *testing.T) {
	f := newFixture(t, 2022)
	f.settings(t, "2015-01-01", period("2016-01-01", "2016-12-31", "hiatus"))
	f.member(t, "m-1", 1, "2015-06-01")
	f.paid(t, "m-1", 2017, 60)

	first, err := f.calc.DueYears(f.ctx, "m-1")
	require.NoError(t, err)
	second, err := f.calc.DueYears(f.ctx, "m-1")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

// =============================================================================
// FAILURES
// =============================================================================

func TestDueYears_NoClubSettings(t *testing.T) {
	f := newFixture(t, 2022)
	f.member(t, "m-1", 1, "2018-01-01")

	_, err := f.calc.DueYears(f.ctx, "m-1")
	assert.ErrorIs(t, err, generic.ErrClubSettingsNotFound)
}

func TestDueYears_UnknownMember(t *testing.T) {
	f := newFixture(t, 2022)
	f.settings(t, "2015-01-01")

	_, err := f.calc.DueYears(f.ctx, "ghost")
	assert.ErrorIs(t, err, generic.ErrMemberNotFound)
}

type failingPayments struct {
	generic.PaymentStore
	err error
}

func (f failingPayments) ListFeePayments(context.Context, generic.MemberID) ([]generic.FeePayment, error) {
	return nil, f.err
}

func TestDueYears_StoreErrorPropagatedUnchanged(t *testing.T) {
	f := newFixture(t, 2022)
	f.settings(t, "2015-01-01")
	f.member(t, "m-1", 1, "2018-01-01")

	boom := &generic.StoreError{Op: "list payments", Err: errors.New("connection reset")}
	f.calc.Payments = failingPayments{err: boom}

	var observed error
	f.calc.Observe = func(_ time.Duration, err error) { observed = err }

	entries, err := f.calc.DueYears(f.ctx, "m-1")
	assert.Nil(t, entries)
	assert.Same(t, boom, err)
	assert.Same(t, boom, observed)
	assert.True(t, generic.IsUpstream(err))
}

// =============================================================================
// PURE COMPUTATION
// =============================================================================

func TestCompute_DuplicatePaymentRows_FirstKept(t *testing.T) {
	in := dues.Input{
		MemberID: "m-1",
		Settings: generic.ClubSettings{FeeStartDate: date("2020-01-01")},
		JoinDate: date("2020-01-01"),
		Payments: []generic.FeePayment{
			{MemberID: "m-1", Year: 2020, Paid: true, ReceiptNumber: "A-1"},
			{MemberID: "m-1", Year: 2020, Paid: false, ReceiptNumber: "A-2"},
		},
	}

	entries := dues.Compute(in, 2020)
	require.Len(t, entries, 1)
	assert.Equal(t, "A-1", entries[0].Payment.ReceiptNumber)
	assert.Equal(t, 2020, dues.StartYear(in))
}
