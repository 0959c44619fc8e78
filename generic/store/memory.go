// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mouros/motohub/generic"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu          sync.RWMutex
	settings    *generic.ClubSettings
	members     map[generic.MemberID]generic.Member
	feeSettings map[generic.MemberID]generic.MemberFeeSettings
	payments    map[paymentKey]generic.FeePayment
	runs        []generic.ArrearsRun

	now func() time.Time
}

type paymentKey struct {
	MemberID generic.MemberID
	Year     int
}

var (
	_ generic.Store    = (*Memory)(nil)
	_ generic.Resetter = (*Memory)(nil)
)

func NewMemory() *Memory {
	return &Memory{
		members:     make(map[generic.MemberID]generic.Member),
		feeSettings: make(map[generic.MemberID]generic.MemberFeeSettings),
		payments:    make(map[paymentKey]generic.FeePayment),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Reset drops every record.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = nil
	m.members = make(map[generic.MemberID]generic.Member)
	m.feeSettings = make(map[generic.MemberID]generic.MemberFeeSettings)
	m.payments = make(map[paymentKey]generic.FeePayment)
	m.runs = nil
	return nil
}

// =============================================================================
// CLUB SETTINGS
// =============================================================================

func (m *Memory) GetClubSettings(_ context.Context) (generic.ClubSettings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.settings == nil {
		return generic.ClubSettings{}, generic.ErrClubSettingsNotFound
	}
	return cloneSettings(*m.settings), nil
}

func (m *Memory) UpsertClubSettings(_ context.Context, settings generic.ClubSettings) (generic.ClubSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	settings.UpdatedAt = m.now()
	stored := cloneSettings(settings)
	m.settings = &stored
	return cloneSettings(stored), nil
}

// =============================================================================
// MEMBERS
// =============================================================================

func (m *Memory) GetMember(_ context.Context, id generic.MemberID) (generic.Member, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	member, ok := m.members[id]
	if !ok {
		return generic.Member{}, generic.ErrMemberNotFound
	}
	return member, nil
}

func (m *Memory) UpsertMember(_ context.Context, member generic.Member) (generic.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.members[member.ID]; ok {
		member.CreatedAt = existing.CreatedAt
	} else {
		member.CreatedAt = m.now()
	}
	m.members[member.ID] = member
	return member, nil
}

func (m *Memory) ListMembers(_ context.Context) ([]generic.Member, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]generic.Member, 0, len(m.members))
	for _, member := range m.members {
		result = append(result, member)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].MemberNumber != result[j].MemberNumber {
			return result[i].MemberNumber < result[j].MemberNumber
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// =============================================================================
// MEMBER FEE SETTINGS
// =============================================================================

func (m *Memory) GetMemberFeeSettings(_ context.Context, id generic.MemberID) (generic.MemberFeeSettings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	fs, ok := m.feeSettings[id]
	if !ok {
		return generic.MemberFeeSettings{}, generic.ErrFeeSettingsNotFound
	}
	return cloneFeeSettings(fs), nil
}

func (m *Memory) UpsertMemberFeeSettings(_ context.Context, settings generic.MemberFeeSettings) (generic.MemberFeeSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	settings.UpdatedAt = m.now()
	m.feeSettings[settings.MemberID] = cloneFeeSettings(settings)
	return cloneFeeSettings(settings), nil
}

// =============================================================================
// FEE PAYMENTS
// =============================================================================

func (m *Memory) GetFeePayment(_ context.Context, id generic.MemberID, year int) (generic.FeePayment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.payments[paymentKey{MemberID: id, Year: year}]
	if !ok {
		return generic.FeePayment{}, generic.ErrPaymentNotFound
	}
	return p, nil
}

func (m *Memory) UpsertFeePayment(_ context.Context, payment generic.FeePayment) (generic.FeePayment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	payment.UpdatedAt = m.now()
	m.payments[paymentKey{MemberID: payment.MemberID, Year: payment.Year}] = payment
	return payment, nil
}

func (m *Memory) ListFeePayments(_ context.Context, id generic.MemberID) ([]generic.FeePayment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []generic.FeePayment
	for k, p := range m.payments {
		if k.MemberID == id {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Year < result[j].Year })
	return result, nil
}

// =============================================================================
// ARREARS RUNS
// =============================================================================

func (m *Memory) SaveArrearsRun(_ context.Context, run generic.ArrearsRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.runs {
		if m.runs[i].ID == run.ID {
			m.runs[i] = run
			return nil
		}
	}
	m.runs = append(m.runs, run)
	return nil
}

func (m *Memory) ListArrearsRuns(_ context.Context, limit int) ([]generic.ArrearsRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]generic.ArrearsRun, 0, len(m.runs))
	for i := len(m.runs) - 1; i >= 0; i-- {
		result = append(result, m.runs[i])
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// Period slices are copied so callers can't mutate stored state.
func cloneSettings(s generic.ClubSettings) generic.ClubSettings {
	s.InactivePeriods = append([]generic.Period(nil), s.InactivePeriods...)
	return s
}

func cloneFeeSettings(fs generic.MemberFeeSettings) generic.MemberFeeSettings {
	fs.ExemptPeriods = append([]generic.Period(nil), fs.ExemptPeriods...)
	return fs
}
