/*
Package factory converts JSON documents into typed dues entities.

PURPOSE:
  Everything that enters the system as JSON goes through this package:
  request bodies from the admin screens, the period columns stored as JSON
  by the SQL stores, and the demo scenario fixtures. Each conversion either
  returns a fully typed generic.* value or an error. Nothing downstream
  handles loosely typed rows.

JSON SCHEMA (club settings):
  {
    "name": "Mouros Moto Hub",
    "short_name": "Mouros MC",
    "founding_date": "2015-01-01",
    "annual_fee": "60.00",
    "currency": "EUR",
    "fee_start_date": "2015-01-01",
    "inactive_periods": [
      {"start_date": "2020-03-01", "end_date": "2021-06-30", "reason": "pandemic"}
    ]
  }

VALIDATION:
  Struct tags are checked with go-playground/validator. Field errors are
  reported with their JSON names as *generic.ValidationError. Periods are
  checked for ordering on write (Periods); DecodePeriods only checks
  shape so that a bad stored row never blocks a read.

USAGE:
  f := factory.New()
  settings, err := f.ClubSettings(doc)
  if errors.Is(err, generic.ErrValidation) { ... }

SEE ALSO:
  - generic/types.go: Target types
  - store/sqlstore: Uses DecodePeriods/EncodePeriods
  - api/handlers.go: Uses the entity conversions for request bodies
*/
package factory

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/mouros/motohub/generic"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// PeriodJSON is the JSON representation of an inactive or exempt period.
type PeriodJSON struct {
	StartDate string `json:"start_date" validate:"required,isodate"`
	EndDate   string `json:"end_date" validate:"required,isodate"`
	Reason    string `json:"reason,omitempty" validate:"max=500"`
}

// ClubSettingsJSON is the JSON representation of the club settings.
type ClubSettingsJSON struct {
	Name            string          `json:"name" validate:"required,max=200"`
	ShortName       string          `json:"short_name,omitempty" validate:"max=50"`
	FoundingDate    string          `json:"founding_date,omitempty" validate:"omitempty,isodate"`
	AnnualFee       decimal.Decimal `json:"annual_fee"`
	Currency        string          `json:"currency,omitempty" validate:"omitempty,len=3"`
	FeeStartDate    string          `json:"fee_start_date" validate:"required,isodate"`
	InactivePeriods []PeriodJSON    `json:"inactive_periods" validate:"dive"`
	UpdatedAt       string          `json:"updated_at,omitempty"`
}

// MemberJSON is the JSON representation of a member.
type MemberJSON struct {
	ID           string `json:"id"`
	MemberNumber string `json:"member_number" validate:"required,max=20"`
	Name         string `json:"name" validate:"required,max=200"`
	Email        string `json:"email,omitempty" validate:"omitempty,email"`
	Type         string `json:"member_type" validate:"required,membertype"`
	JoinDate     string `json:"join_date" validate:"required,isodate"`
	Honorary     bool   `json:"honorary"`
	CreatedAt    string `json:"created_at,omitempty"`
}

// MemberFeeSettingsJSON is the JSON representation of a member's fee overrides.
type MemberFeeSettingsJSON struct {
	MemberID      string       `json:"member_id"`
	JoinDate      string       `json:"join_date" validate:"required,isodate"`
	ExemptPeriods []PeriodJSON `json:"exempt_periods" validate:"dive"`
	UpdatedAt     string       `json:"updated_at,omitempty"`
}

// FeePaymentJSON is the JSON representation of a payment ledger row.
type FeePaymentJSON struct {
	MemberID      string              `json:"member_id"`
	Year          int                 `json:"year" validate:"required,min=1900,max=9999"`
	Paid          bool                `json:"paid"`
	PaidDate      string              `json:"paid_date,omitempty" validate:"omitempty,isodate"`
	Amount        decimal.NullDecimal `json:"amount"`
	ReceiptNumber string              `json:"receipt_number,omitempty" validate:"max=50"`
	Notes         string              `json:"notes,omitempty" validate:"max=1000"`
	UpdatedAt     string              `json:"updated_at,omitempty"`
}

// =============================================================================
// FACTORY
// =============================================================================

// Factory converts JSON documents to typed entities.
type Factory struct {
	validate *validator.Validate
}

// New creates a factory with the custom validators registered.
func New() *Factory {
	v := validator.New()

	// Use JSON tag names in errors instead of Go struct names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	if err := v.RegisterValidation("isodate", func(fl validator.FieldLevel) bool {
		_, err := generic.ParseDate(fl.Field().String())
		return err == nil
	}); err != nil {
		panic(err)
	}
	if err := v.RegisterValidation("membertype", func(fl validator.FieldLevel) bool {
		return generic.MemberType(fl.Field().String()).Valid()
	}); err != nil {
		panic(err)
	}

	return &Factory{validate: v}
}

// Validate checks struct tags and converts the first failure to a
// *generic.ValidationError.
func (f *Factory) Validate(doc any) error {
	err := f.validate.Struct(doc)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &generic.ValidationError{Field: fieldPath(fe), Message: message(fe)}
	}
	return &generic.ValidationError{Message: err.Error()}
}

// fieldPath drops the root struct name: "ClubSettingsJSON.inactive_periods[0].end_date"
// becomes "inactive_periods[0].end_date".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "isodate":
		return "must be a date in YYYY-MM-DD format"
	case "email":
		return "must be a valid email address"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "membertype":
		return "must be one of: adult child administration guest"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "min":
		return "must be at least " + fe.Param()
	default:
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
}

// =============================================================================
// PERIODS
// =============================================================================

// Periods converts period documents, rejecting malformed intervals.
func (f *Factory) Periods(docs []PeriodJSON) ([]generic.Period, error) {
	periods := make([]generic.Period, 0, len(docs))
	for i, d := range docs {
		if err := f.Validate(d); err != nil {
			var ve *generic.ValidationError
			if errors.As(err, &ve) {
				ve.Field = fmt.Sprintf("[%d].%s", i, ve.Field)
			}
			return nil, err
		}
		p, err := periodFromJSON(d)
		if err != nil {
			return nil, err
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		periods = append(periods, p)
	}
	return periods, nil
}

// DecodePeriods parses a stored JSON array of periods. Ordering of the
// bounds is not checked.
func DecodePeriods(raw []byte) ([]generic.Period, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var docs []PeriodJSON
	if err := json.Unmarshal(raw, &docs); err != nil {
		return nil, fmt.Errorf("decode periods: %w", err)
	}
	periods := make([]generic.Period, 0, len(docs))
	for _, d := range docs {
		p, err := periodFromJSON(d)
		if err != nil {
			return nil, fmt.Errorf("decode periods: %w", err)
		}
		periods = append(periods, p)
	}
	return periods, nil
}

// EncodePeriods is the inverse of DecodePeriods.
func EncodePeriods(periods []generic.Period) ([]byte, error) {
	return json.Marshal(PeriodsToJSON(periods))
}

func PeriodsToJSON(periods []generic.Period) []PeriodJSON {
	docs := make([]PeriodJSON, len(periods))
	for i, p := range periods {
		docs[i] = PeriodJSON{StartDate: p.Start.String(), EndDate: p.End.String(), Reason: p.Reason}
	}
	return docs
}

func periodFromJSON(d PeriodJSON) (generic.Period, error) {
	start, err := generic.ParseDate(d.StartDate)
	if err != nil {
		return generic.Period{}, err
	}
	end, err := generic.ParseDate(d.EndDate)
	if err != nil {
		return generic.Period{}, err
	}
	return generic.Period{Start: start, End: end, Reason: d.Reason}, nil
}

// =============================================================================
// ENTITIES
// =============================================================================

// ClubSettings converts and validates a club settings document.
// A zero annual fee falls back to generic.DefaultAnnualFee.
func (f *Factory) ClubSettings(doc ClubSettingsJSON) (generic.ClubSettings, error) {
	if err := f.Validate(doc); err != nil {
		return generic.ClubSettings{}, err
	}
	if doc.AnnualFee.IsNegative() {
		return generic.ClubSettings{}, &generic.ValidationError{Field: "annual_fee", Message: "must not be negative"}
	}
	periods, err := f.Periods(doc.InactivePeriods)
	if err != nil {
		return generic.ClubSettings{}, prefixField("inactive_periods", err)
	}

	founding, _ := generic.ParseDate(doc.FoundingDate)
	feeStart, _ := generic.ParseDate(doc.FeeStartDate)

	fee := generic.DefaultAnnualFee
	if !doc.AnnualFee.IsZero() {
		fee = generic.Amount{Value: doc.AnnualFee, Currency: currency(doc.Currency)}
	}

	return generic.ClubSettings{
		Name:            doc.Name,
		ShortName:       doc.ShortName,
		FoundingDate:    founding,
		AnnualFee:       fee,
		FeeStartDate:    feeStart,
		InactivePeriods: periods,
	}, nil
}

func ClubSettingsToJSON(s generic.ClubSettings) ClubSettingsJSON {
	return ClubSettingsJSON{
		Name:            s.Name,
		ShortName:       s.ShortName,
		FoundingDate:    s.FoundingDate.String(),
		AnnualFee:       s.AnnualFee.Value,
		Currency:        string(s.AnnualFee.Currency),
		FeeStartDate:    s.FeeStartDate.String(),
		InactivePeriods: PeriodsToJSON(s.InactivePeriods),
		UpdatedAt:       formatTimestamp(s.UpdatedAt),
	}
}

// Member converts and validates a member document.
func (f *Factory) Member(doc MemberJSON) (generic.Member, error) {
	if err := f.Validate(doc); err != nil {
		return generic.Member{}, err
	}
	join, _ := generic.ParseDate(doc.JoinDate)
	return generic.Member{
		ID:           generic.MemberID(doc.ID),
		MemberNumber: doc.MemberNumber,
		Name:         doc.Name,
		Email:        doc.Email,
		Type:         generic.MemberType(doc.Type),
		JoinDate:     join,
		Honorary:     doc.Honorary,
	}, nil
}

func MemberToJSON(m generic.Member) MemberJSON {
	return MemberJSON{
		ID:           string(m.ID),
		MemberNumber: m.MemberNumber,
		Name:         m.Name,
		Email:        m.Email,
		Type:         string(m.Type),
		JoinDate:     m.JoinDate.String(),
		Honorary:     m.Honorary,
		CreatedAt:    formatTimestamp(m.CreatedAt),
	}
}

// MemberFeeSettings converts and validates a fee settings document.
func (f *Factory) MemberFeeSettings(doc MemberFeeSettingsJSON) (generic.MemberFeeSettings, error) {
	if err := f.Validate(doc); err != nil {
		return generic.MemberFeeSettings{}, err
	}
	periods, err := f.Periods(doc.ExemptPeriods)
	if err != nil {
		return generic.MemberFeeSettings{}, prefixField("exempt_periods", err)
	}
	join, _ := generic.ParseDate(doc.JoinDate)
	return generic.MemberFeeSettings{
		MemberID:      generic.MemberID(doc.MemberID),
		JoinDate:      join,
		ExemptPeriods: periods,
	}, nil
}

func MemberFeeSettingsToJSON(fs generic.MemberFeeSettings) MemberFeeSettingsJSON {
	return MemberFeeSettingsJSON{
		MemberID:      string(fs.MemberID),
		JoinDate:      fs.JoinDate.String(),
		ExemptPeriods: PeriodsToJSON(fs.ExemptPeriods),
		UpdatedAt:     formatTimestamp(fs.UpdatedAt),
	}
}

// FeePayment converts and validates a payment document. Payments are in
// the club's currency.
func (f *Factory) FeePayment(doc FeePaymentJSON, cur generic.Currency) (generic.FeePayment, error) {
	if err := f.Validate(doc); err != nil {
		return generic.FeePayment{}, err
	}
	if doc.Amount.Valid && doc.Amount.Decimal.IsNegative() {
		return generic.FeePayment{}, &generic.ValidationError{Field: "amount", Message: "must not be negative"}
	}
	paidDate, _ := generic.ParseDate(doc.PaidDate)
	return generic.FeePayment{
		MemberID:      generic.MemberID(doc.MemberID),
		Year:          doc.Year,
		Paid:          doc.Paid,
		PaidDate:      paidDate,
		Amount:        generic.Amount{Value: doc.Amount.Decimal, Currency: cur},
		ReceiptNumber: doc.ReceiptNumber,
		Notes:         doc.Notes,
	}, nil
}

func FeePaymentToJSON(p generic.FeePayment) FeePaymentJSON {
	return FeePaymentJSON{
		MemberID:      string(p.MemberID),
		Year:          p.Year,
		Paid:          p.Paid,
		PaidDate:      p.PaidDate.String(),
		Amount:        decimal.NewNullDecimal(p.Amount.Value),
		ReceiptNumber: p.ReceiptNumber,
		Notes:         p.Notes,
		UpdatedAt:     formatTimestamp(p.UpdatedAt),
	}
}

// =============================================================================
// HELPERS
// =============================================================================

func currency(s string) generic.Currency {
	if s == "" {
		return generic.CurrencyEUR
	}
	return generic.Currency(strings.ToUpper(s))
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func prefixField(prefix string, err error) error {
	var ve *generic.ValidationError
	if errors.As(err, &ve) {
		ve.Field = prefix + ve.Field
	}
	return err
}
