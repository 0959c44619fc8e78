/*
Package generic provides the core types of the club dues engine.

PURPOSE:
  This package contains the entities and primitives shared by every other
  package: dates, periods, money amounts, the stored records (club settings,
  members, member fee settings, fee payments), the store interfaces and the
  error taxonomy. It knows nothing about HTTP, SQL or spreadsheets.

KEY CONCEPTS IN THIS FILE (types.go):
  - Amount: Money with a currency (e.g., 60.00 EUR)
  - ClubSettings: Singleton club configuration (fee start, inactive periods)
  - Member: The member record (join date is the calculator's fallback)
  - MemberFeeSettings: Optional per-member overrides (join date, exemptions)
  - FeePayment: One ledger row per (member, year)

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal for money, never float64
  2. Type Safety: MemberID is its own type
  3. Typed rows: Stores return these structs, never loosely typed maps

SEE ALSO:
  - period.go: Period and the interval containment utility
  - store.go: Persistence interfaces
  - errors.go: Error taxonomy
*/
package generic

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Money with currency
// =============================================================================

type Amount struct {
	Value    decimal.Decimal
	Currency Currency
}

type Currency string

const (
	CurrencyEUR Currency = "EUR"
)

func NewAmount(value float64, currency Currency) Amount {
	return Amount{Value: decimal.NewFromFloat(value), Currency: currency}
}

func NewAmountFromString(value string, currency Currency) (Amount, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return Amount{}, err
	}
	return Amount{Value: d, Currency: currency}, nil
}

func ZeroAmount(currency Currency) Amount { return Amount{Value: decimal.Zero, Currency: currency} }

func (a Amount) Add(b Amount) Amount        { return Amount{Value: a.Value.Add(b.Value), Currency: a.Currency} }
func (a Amount) Mul(n int) Amount           { return Amount{Value: a.Value.Mul(decimal.NewFromInt(int64(n))), Currency: a.Currency} }
func (a Amount) IsNegative() bool           { return a.Value.IsNegative() }
func (a Amount) IsZero() bool               { return a.Value.IsZero() }
func (a Amount) Equal(b Amount) bool        { return a.Currency == b.Currency && a.Value.Equal(b.Value) }
func (a Amount) GreaterThan(b Amount) bool  { return a.Value.GreaterThan(b.Value) }
func (a Amount) String() string             { return a.Value.StringFixed(2) + " " + string(a.Currency) }

// =============================================================================
// IDENTIFIERS
// =============================================================================

type MemberID string

// =============================================================================
// CLUB SETTINGS - Singleton
// =============================================================================

// DefaultAnnualFee is the yearly dues amount used when settings carry none.
var DefaultAnnualFee = NewAmount(60, CurrencyEUR)

// ClubSettings holds club-wide configuration.
type ClubSettings struct {
	Name         string
	ShortName    string
	FoundingDate TimePoint

	// Dues
	AnnualFee       Amount
	FeeStartDate    TimePoint
	InactivePeriods []Period // club suspended dues for everyone

	UpdatedAt time.Time
}

// =============================================================================
// MEMBER
// =============================================================================

type MemberType string

const (
	MemberAdult          MemberType = "adult"
	MemberChild          MemberType = "child"
	MemberAdministration MemberType = "administration"
	MemberGuest          MemberType = "guest"
)

func (t MemberType) Valid() bool {
	switch t {
	case MemberAdult, MemberChild, MemberAdministration, MemberGuest:
		return true
	}
	return false
}

// Member is the member record. Only the fields the dues engine and the
// admin screens need are kept here.
type Member struct {
	ID           MemberID
	MemberNumber string
	Name         string
	Email        string
	Type         MemberType
	JoinDate     TimePoint
	Honorary     bool
	CreatedAt    time.Time
}

// =============================================================================
// MEMBER FEE SETTINGS - Optional per-member overrides
// =============================================================================

// MemberFeeSettings is created lazily, the first time an admin edits a
// member's dues. When absent, the member's own JoinDate is used.
type MemberFeeSettings struct {
	MemberID      MemberID
	JoinDate      TimePoint
	ExemptPeriods []Period
	UpdatedAt     time.Time
}

// =============================================================================
// FEE PAYMENT - One row per (member, year)
// =============================================================================

type FeePayment struct {
	MemberID      MemberID
	Year          int
	Paid          bool
	PaidDate      TimePoint // zero when unpaid
	Amount        Amount
	ReceiptNumber string
	Notes         string
	UpdatedAt     time.Time
}

// =============================================================================
// ARREARS RUN - Background check history
// =============================================================================

type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// ArrearsRun is one pass of the arrears scheduler over every member.
type ArrearsRun struct {
	ID               string
	Year             int
	Status           RunStatus
	MembersChecked   int
	MembersInArrears int
	TotalOutstanding Amount
	Error            string
	StartedAt        time.Time
	CompletedAt      *time.Time
}
