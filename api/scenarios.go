/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the store with realistic
	club data for demos. Each scenario writes club settings, members,
	exemptions and payments through the same factory and service code the
	API uses, so a scenario never holds data the API would reject.

AVAILABLE SCENARIOS:

	military-service: One member exempted for a year of service
	club-hiatus:      Club-wide suspension across two calendar years

HOW SCENARIOS WORK:
 1. Reset store (clear all data)
 2. Decode club settings and members from JSON via factory
 3. Add exemptions via dues.Service
 4. Record payments via dues.Service

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "club-hiatus"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Add a scenarioData entry to 'scenarioFixtures'

NOTE:

	Scenarios reset the store. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Handler dependencies
  - factory/settings.go: JSON document types
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/mouros/motohub/factory"
	"github.com/mouros/motohub/generic"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "military-service",
		Name:        "Military Service",
		Description: "Fees since 2015, member joined mid-2018 and was exempt for 2020",
	},
	{
		ID:          "club-hiatus",
		Name:        "Club Hiatus",
		Description: "Club suspended dues from March 2020 to June 2021; mixed payment history",
	},
}

type scenarioExemption struct {
	Member string
	Period factory.PeriodJSON
}

type scenarioPayment struct {
	Member string
	Year   int
	Date   string
}

type scenarioData struct {
	Settings   string
	Members    []string
	Exemptions []scenarioExemption
	Payments   []scenarioPayment
}

var scenarioFixtures = map[string]scenarioData{
	"military-service": {
		Settings: `{
			"name": "Mouros Moto Hub",
			"short_name": "Mouros MC",
			"founding_date": "2014-09-01",
			"annual_fee": "60",
			"currency": "EUR",
			"fee_start_date": "2015-01-01",
			"inactive_periods": []
		}`,
		Members: []string{
			`{"id": "m-001", "member_number": "001", "name": "Ana Moura", "email": "ana@example.org",
			  "member_type": "adult", "join_date": "2018-06-01"}`,
		},
		Exemptions: []scenarioExemption{
			{Member: "m-001", Period: factory.PeriodJSON{StartDate: "2020-01-01", EndDate: "2020-12-31", Reason: "military service"}},
		},
		Payments: []scenarioPayment{
			{Member: "m-001", Year: 2018, Date: "2018-06-01"},
			{Member: "m-001", Year: 2019, Date: "2019-02-10"},
		},
	},
	"club-hiatus": {
		Settings: `{
			"name": "Mouros Moto Hub",
			"short_name": "Mouros MC",
			"founding_date": "2014-09-01",
			"annual_fee": "60",
			"currency": "EUR",
			"fee_start_date": "2016-01-01",
			"inactive_periods": [
				{"start_date": "2020-03-01", "end_date": "2021-06-30", "reason": "pandemic"}
			]
		}`,
		Members: []string{
			`{"id": "m-001", "member_number": "001", "name": "Ana Moura", "member_type": "adult", "join_date": "2015-03-12"}`,
			`{"id": "m-002", "member_number": "002", "name": "Rui Lobo", "member_type": "adult", "join_date": "2019-05-20"}`,
			`{"id": "m-003", "member_number": "003", "name": "Marta Lobo", "member_type": "child", "join_date": "2021-09-01"}`,
			`{"id": "m-004", "member_number": "004", "name": "Paulo Sousa", "member_type": "administration",
			  "join_date": "2014-09-01", "honorary": true}`,
		},
		Exemptions: []scenarioExemption{
			{Member: "m-003", Period: factory.PeriodJSON{StartDate: "2021-09-01", EndDate: "2026-08-31", Reason: "junior member"}},
			{Member: "m-004", Period: factory.PeriodJSON{StartDate: "2014-09-01", EndDate: "2099-12-31", Reason: "founding member"}},
		},
		Payments: []scenarioPayment{
			{Member: "m-001", Year: 2016, Date: "2016-01-15"},
			{Member: "m-001", Year: 2017, Date: "2017-01-20"},
			{Member: "m-001", Year: 2018, Date: "2018-02-02"},
			{Member: "m-001", Year: 2019, Date: "2019-01-30"},
			{Member: "m-002", Year: 2019, Date: "2019-05-20"},
		},
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current})
}

// LoadScenario resets the store and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	data, ok := scenarioFixtures[req.ScenarioID]
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", fmt.Errorf("scenario %q", req.ScenarioID))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.reset(r.Context()); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.loadScenario(r.Context(), data); err != nil {
		h.currentScenario = ""
		h.fail(w, r, fmt.Errorf("load scenario %s: %w", req.ScenarioID, err))
		return
	}
	h.currentScenario = req.ScenarioID
	h.Log.Info("scenario loaded", zap.String("scenario", req.ScenarioID))

	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "loaded",
		"scenario": req.ScenarioID,
	})
}

// ResetDatabase clears every table.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.reset(r.Context()); err != nil {
		h.fail(w, r, err)
		return
	}
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (h *Handler) reset(ctx context.Context) error {
	rs, ok := h.Store.(generic.Resetter)
	if !ok {
		return errors.New("store does not support reset")
	}
	return rs.Reset(ctx)
}

func (h *Handler) loadScenario(ctx context.Context, data scenarioData) error {
	var doc factory.ClubSettingsJSON
	if err := json.Unmarshal([]byte(data.Settings), &doc); err != nil {
		return fmt.Errorf("settings: %w", err)
	}
	settings, err := h.Factory.ClubSettings(doc)
	if err != nil {
		return fmt.Errorf("settings: %w", err)
	}
	if _, err := h.Store.UpsertClubSettings(ctx, settings); err != nil {
		return err
	}

	for _, raw := range data.Members {
		var doc factory.MemberJSON
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			return fmt.Errorf("member: %w", err)
		}
		member, err := h.Factory.Member(doc)
		if err != nil {
			return fmt.Errorf("member %s: %w", doc.ID, err)
		}
		if _, err := h.Store.UpsertMember(ctx, member); err != nil {
			return err
		}
	}

	for _, ex := range data.Exemptions {
		periods, err := h.Factory.Periods([]factory.PeriodJSON{ex.Period})
		if err != nil {
			return fmt.Errorf("exemption for %s: %w", ex.Member, err)
		}
		if _, err := h.Service.AddExemption(ctx, generic.MemberID(ex.Member), periods[0]); err != nil {
			return err
		}
	}

	for _, p := range data.Payments {
		// Payments ahead of the current year are rejected by the service;
		// skip them so scenarios still load under an earlier clock.
		if p.Year > h.Clock.Now().Year() {
			continue
		}
		if _, err := h.Service.RecordPayment(ctx, generic.FeePayment{
			MemberID: generic.MemberID(p.Member),
			Year:     p.Year,
			PaidDate: generic.MustParseDate(p.Date),
			Amount:   settings.AnnualFee,
		}); err != nil {
			return fmt.Errorf("payment %s/%d: %w", p.Member, p.Year, err)
		}
	}
	return nil
}
