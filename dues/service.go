package dues

import (
	"context"
	"errors"
	"fmt"

	"github.com/mouros/motohub/generic"
)

// =============================================================================
// DUES SERVICE - Write side of the dues screens
// =============================================================================

// Service records payments and edits member exemptions. Validation of
// document shape happens in factory; this checks rules that need stored
// data (year bounds, member existence).
type Service struct {
	Store generic.Store
	Clock generic.Clock
}

func NewService(store generic.Store, clock generic.Clock) *Service {
	if clock == nil {
		clock = generic.SystemClock{}
	}
	return &Service{Store: store, Clock: clock}
}

// RecordPayment marks (payment.MemberID, payment.Year) as paid.
// The year must lie between the club's fee start year and the current year.
// A missing paid date defaults to today.
func (s *Service) RecordPayment(ctx context.Context, payment generic.FeePayment) (generic.FeePayment, error) {
	if _, err := s.Store.GetMember(ctx, payment.MemberID); err != nil {
		return generic.FeePayment{}, err
	}
	settings, err := s.Store.GetClubSettings(ctx)
	if err != nil {
		return generic.FeePayment{}, err
	}
	if err := s.checkYear(settings, payment.Year); err != nil {
		return generic.FeePayment{}, err
	}
	if payment.Amount.IsNegative() {
		return generic.FeePayment{}, &generic.ValidationError{Field: "amount", Message: "must not be negative"}
	}

	payment.Paid = true
	if payment.PaidDate.IsZero() {
		payment.PaidDate = generic.Today(s.Clock)
	}
	if payment.Amount.Currency == "" {
		payment.Amount.Currency = annualFee(settings).Currency
	}
	return s.Store.UpsertFeePayment(ctx, payment)
}

// MarkUnpaid resets the row for (memberID, year) to unpaid with a zero
// amount. The row is kept. The year bounds match RecordPayment.
func (s *Service) MarkUnpaid(ctx context.Context, memberID generic.MemberID, year int) (generic.FeePayment, error) {
	if _, err := s.Store.GetMember(ctx, memberID); err != nil {
		return generic.FeePayment{}, err
	}
	settings, err := s.Store.GetClubSettings(ctx)
	if err != nil {
		return generic.FeePayment{}, err
	}
	if err := s.checkYear(settings, year); err != nil {
		return generic.FeePayment{}, err
	}
	return s.Store.UpsertFeePayment(ctx, generic.FeePayment{
		MemberID: memberID,
		Year:     year,
		Paid:     false,
		Amount:   generic.ZeroAmount(annualFee(settings).Currency),
	})
}

func (s *Service) checkYear(settings generic.ClubSettings, year int) error {
	current := s.Clock.Now().Year()
	if first := settings.FeeStartDate.Year(); year < first {
		return &generic.ValidationError{Field: "year", Message: fmt.Sprintf("dues start in %d", first)}
	}
	if year > current {
		return &generic.ValidationError{Field: "year", Message: fmt.Sprintf("cannot record dues after %d", current)}
	}
	return nil
}

// =============================================================================
// EXEMPTIONS
// =============================================================================

// AddExemption appends an exempt period to the member's fee settings,
// creating them from the member's join date if needed.
func (s *Service) AddExemption(ctx context.Context, memberID generic.MemberID, period generic.Period) (generic.MemberFeeSettings, error) {
	if err := period.Validate(); err != nil {
		return generic.MemberFeeSettings{}, err
	}
	fs, err := s.feeSettingsOrDefault(ctx, memberID)
	if err != nil {
		return generic.MemberFeeSettings{}, err
	}
	fs.ExemptPeriods = append(fs.ExemptPeriods, period)
	return s.Store.UpsertMemberFeeSettings(ctx, fs)
}

// RemoveExemption removes the exempt period at index.
func (s *Service) RemoveExemption(ctx context.Context, memberID generic.MemberID, index int) (generic.MemberFeeSettings, error) {
	fs, err := s.Store.GetMemberFeeSettings(ctx, memberID)
	if err != nil {
		return generic.MemberFeeSettings{}, err
	}
	if index < 0 || index >= len(fs.ExemptPeriods) {
		return generic.MemberFeeSettings{}, &generic.ValidationError{
			Field:   "index",
			Message: fmt.Sprintf("no exempt period at position %d", index),
		}
	}
	fs.ExemptPeriods = append(fs.ExemptPeriods[:index:index], fs.ExemptPeriods[index+1:]...)
	return s.Store.UpsertMemberFeeSettings(ctx, fs)
}

// SaveFeeSettings replaces a member's fee settings after checking the
// member exists.
func (s *Service) SaveFeeSettings(ctx context.Context, fs generic.MemberFeeSettings) (generic.MemberFeeSettings, error) {
	if _, err := s.Store.GetMember(ctx, fs.MemberID); err != nil {
		return generic.MemberFeeSettings{}, err
	}
	return s.Store.UpsertMemberFeeSettings(ctx, fs)
}

func (s *Service) feeSettingsOrDefault(ctx context.Context, memberID generic.MemberID) (generic.MemberFeeSettings, error) {
	fs, err := s.Store.GetMemberFeeSettings(ctx, memberID)
	if err == nil {
		return fs, nil
	}
	if !errors.Is(err, generic.ErrFeeSettingsNotFound) {
		return generic.MemberFeeSettings{}, err
	}
	member, err := s.Store.GetMember(ctx, memberID)
	if err != nil {
		return generic.MemberFeeSettings{}, err
	}
	return generic.MemberFeeSettings{MemberID: memberID, JoinDate: member.JoinDate}, nil
}
