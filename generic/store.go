/*
store.go - Persistence interfaces for the dues engine

PURPOSE:
  Defines the interface between the domain logic and the database.
  Every entity is a simple create-or-update-by-key record:
    Get(key)          -> Entity | NotFound
    Upsert(key, e)    -> Entity
  Nothing is deleted. The calculator only reads.

KEY INTERFACES:
  SettingsStore:     Club settings singleton
  MemberStore:       Member records
  FeeSettingsStore:  Per-member fee overrides
  PaymentStore:      Payment ledger, unique on (member, year)
  RunStore:          History of background arrears runs
  Store:             All of the above

  Resetter is optional and only used by the demo scenario loader.

DATA ACCESS IS INJECTED:
  Callers receive a Store through their constructor. Tests pass the
  in-memory implementation, production passes a SQL store.

IMPLEMENTATIONS:
  - store/sqlstore: Shared database/sql implementation
  - store/sqlite, store/postgres: Drivers and schema
  - generic/store/memory.go: In-memory for testing

SEE ALSO:
  - errors.go: NotFound sentinels returned by Get methods
  - dues/calculator.go: Main consumer
*/
package generic

import "context"

// SettingsStore persists the club settings singleton.
type SettingsStore interface {
	// GetClubSettings returns ErrClubSettingsNotFound when the row is missing.
	GetClubSettings(ctx context.Context) (ClubSettings, error)

	// UpsertClubSettings creates or replaces the singleton.
	UpsertClubSettings(ctx context.Context, settings ClubSettings) (ClubSettings, error)
}

// MemberStore persists member records.
type MemberStore interface {
	// GetMember returns ErrMemberNotFound when id is unknown.
	GetMember(ctx context.Context, id MemberID) (Member, error)
	UpsertMember(ctx context.Context, member Member) (Member, error)

	// ListMembers returns all members ordered by member number.
	ListMembers(ctx context.Context) ([]Member, error)
}

// FeeSettingsStore persists per-member fee overrides.
type FeeSettingsStore interface {
	// GetMemberFeeSettings returns ErrFeeSettingsNotFound when absent.
	GetMemberFeeSettings(ctx context.Context, id MemberID) (MemberFeeSettings, error)
	UpsertMemberFeeSettings(ctx context.Context, settings MemberFeeSettings) (MemberFeeSettings, error)
}

// PaymentStore persists the payment ledger.
type PaymentStore interface {
	// GetFeePayment returns ErrPaymentNotFound when (id, year) has no row.
	GetFeePayment(ctx context.Context, id MemberID, year int) (FeePayment, error)

	// UpsertFeePayment creates or replaces the row for (payment.MemberID, payment.Year).
	UpsertFeePayment(ctx context.Context, payment FeePayment) (FeePayment, error)

	// ListFeePayments returns a member's payments ordered by year ascending.
	ListFeePayments(ctx context.Context, id MemberID) ([]FeePayment, error)
}

// RunStore records arrears scheduler runs.
type RunStore interface {
	// SaveArrearsRun creates or replaces the run with run.ID.
	SaveArrearsRun(ctx context.Context, run ArrearsRun) error

	// ListArrearsRuns returns the most recent runs first. limit <= 0 means all.
	ListArrearsRuns(ctx context.Context, limit int) ([]ArrearsRun, error)
}

// Store is the full data-access dependency.
type Store interface {
	SettingsStore
	MemberStore
	FeeSettingsStore
	PaymentStore
	RunStore
}

// Resetter wipes every table. Implemented by all stores, used to load
// demo scenarios.
type Resetter interface {
	Reset(ctx context.Context) error
}
