/*
handlers.go - HTTP API handlers for the dues system

PURPOSE:
  Exposes club settings, members, payments and the dues calculator via
  REST API. Handles HTTP request/response, JSON serialization, and
  delegates to the dues package.

ENDPOINTS:
  Settings:
    GET    /api/settings                       Club settings
    PUT    /api/settings                       Upsert club settings

  Members:
    GET    /api/members                        List members
    POST   /api/members                        Upsert member (id generated when absent)
    GET    /api/members/{id}                   Member details
    PUT    /api/members/{id}                   Update existing member

  Fee overrides:
    GET    /api/members/{id}/fee-settings      Member fee settings
    PUT    /api/members/{id}/fee-settings      Upsert member fee settings
    POST   /api/members/{id}/exemptions        Add exempt period
    DELETE /api/members/{id}/exemptions/{idx}  Remove exempt period

  Payments:
    GET    /api/members/{id}/payments          Payment ledger
    PUT    /api/members/{id}/payments/{year}   Record payment
    DELETE /api/members/{id}/payments/{year}   Mark unpaid

  Dues:
    GET    /api/members/{id}/dues              Liability table
    GET    /api/members/{id}/dues/summary      Totals
    GET    /api/members/{id}/dues/export       XLSX liability table
    GET    /api/dues/arrears                   Members owing dues
    GET    /api/dues/arrears/export            XLSX arrears report
    GET    /api/dues/arrears/runs              Scheduler history
    POST   /api/dues/arrears/runs              Run the arrears check now

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Store: Database access
  - Calculator: Read side (liability tables, summaries, arrears)
  - Service: Write side (payments, exemptions)
  - Factory: JSON to entity conversion with validation

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Settings, member, fee settings or payment not found
  - 500: Store failures (logged and reported to Sentry)

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/mouros/motohub/dues"
	"github.com/mouros/motohub/export"
	"github.com/mouros/motohub/factory"
	"github.com/mouros/motohub/generic"
	"github.com/mouros/motohub/metrics"
	"github.com/mouros/motohub/observability"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 1 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	Store      generic.Store
	Calculator *dues.Calculator
	Service    *dues.Service
	Factory    *factory.Factory
	Scheduler  *ArrearsScheduler
	Clock      generic.Clock
	Log        *zap.Logger

	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a new handler with dependencies. The arrears scheduler
// is built but not started; main decides whether it runs in the background.
func NewHandler(store generic.Store, clock generic.Clock, log *zap.Logger) *Handler {
	if clock == nil {
		clock = generic.SystemClock{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	calc := dues.NewCalculator(store, clock)
	calc.Observe = metrics.ObserveCalculation

	return &Handler{
		Store:      store,
		Calculator: calc,
		Service:    dues.NewService(store, clock),
		Factory:    factory.New(),
		Scheduler:  NewArrearsScheduler(calc, store, log),
		Clock:      clock,
		Log:        log,
	}
}

// =============================================================================
// HEALTH
// =============================================================================

type pinger interface {
	Ping(ctx context.Context) error
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if p, ok := h.Store.(pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			h.Log.Warn("health check failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "store unavailable", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// CLUB SETTINGS
// =============================================================================

func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.Store.GetClubSettings(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, factory.ClubSettingsToJSON(settings))
}

func (h *Handler) PutSettings(w http.ResponseWriter, r *http.Request) {
	var doc factory.ClubSettingsJSON
	if !decodeJSON(w, r, &doc) {
		return
	}
	settings, err := h.Factory.ClubSettings(doc)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	saved, err := h.Store.UpsertClubSettings(r.Context(), settings)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, factory.ClubSettingsToJSON(saved))
}

// =============================================================================
// MEMBERS
// =============================================================================

func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.Store.ListMembers(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMemberDTOs(members))
}

// CreateMember upserts a member. A missing id gets a fresh UUID.
func (h *Handler) CreateMember(w http.ResponseWriter, r *http.Request) {
	var doc factory.MemberJSON
	if !decodeJSON(w, r, &doc) {
		return
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	h.saveMember(w, r, doc, http.StatusCreated)
}

func (h *Handler) GetMember(w http.ResponseWriter, r *http.Request) {
	member, err := h.Store.GetMember(r.Context(), memberID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, factory.MemberToJSON(member))
}

// UpdateMember replaces an existing member; the id in the path wins.
func (h *Handler) UpdateMember(w http.ResponseWriter, r *http.Request) {
	id := memberID(r)
	if _, err := h.Store.GetMember(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	var doc factory.MemberJSON
	if !decodeJSON(w, r, &doc) {
		return
	}
	doc.ID = string(id)
	h.saveMember(w, r, doc, http.StatusOK)
}

func (h *Handler) saveMember(w http.ResponseWriter, r *http.Request, doc factory.MemberJSON, status int) {
	member, err := h.Factory.Member(doc)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	saved, err := h.Store.UpsertMember(r.Context(), member)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, status, factory.MemberToJSON(saved))
}

// =============================================================================
// FEE SETTINGS AND EXEMPTIONS
// =============================================================================

func (h *Handler) GetFeeSettings(w http.ResponseWriter, r *http.Request) {
	fs, err := h.Store.GetMemberFeeSettings(r.Context(), memberID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, factory.MemberFeeSettingsToJSON(fs))
}

func (h *Handler) PutFeeSettings(w http.ResponseWriter, r *http.Request) {
	var doc factory.MemberFeeSettingsJSON
	if !decodeJSON(w, r, &doc) {
		return
	}
	doc.MemberID = string(memberID(r))
	fs, err := h.Factory.MemberFeeSettings(doc)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	saved, err := h.Service.SaveFeeSettings(r.Context(), fs)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, factory.MemberFeeSettingsToJSON(saved))
}

func (h *Handler) AddExemption(w http.ResponseWriter, r *http.Request) {
	var doc factory.PeriodJSON
	if !decodeJSON(w, r, &doc) {
		return
	}
	periods, err := h.Factory.Periods([]factory.PeriodJSON{doc})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	saved, err := h.Service.AddExemption(r.Context(), memberID(r), periods[0])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, factory.MemberFeeSettingsToJSON(saved))
}

func (h *Handler) RemoveExemption(w http.ResponseWriter, r *http.Request) {
	idx, err := strconv.Atoi(chi.URLParam(r, "idx"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "exemption index must be an integer", err)
		return
	}
	saved, err := h.Service.RemoveExemption(r.Context(), memberID(r), idx)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, factory.MemberFeeSettingsToJSON(saved))
}

// =============================================================================
// PAYMENTS
// =============================================================================

func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	id := memberID(r)
	if _, err := h.Store.GetMember(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	payments, err := h.Store.ListFeePayments(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentDTOs(payments))
}

// RecordPayment marks the year in the path as paid. The body may carry the
// amount, paid date, receipt number and notes; an absent or null amount is
// taken as the club's annual fee. An explicit zero is recorded as zero.
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	year, ok := pathYear(w, r)
	if !ok {
		return
	}
	var doc factory.FeePaymentJSON
	if r.ContentLength != 0 && !decodeJSON(w, r, &doc) {
		return
	}
	doc.MemberID = string(memberID(r))
	doc.Year = year

	payment, err := h.Factory.FeePayment(doc, "")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !doc.Amount.Valid {
		settings, err := h.Store.GetClubSettings(r.Context())
		if err != nil {
			h.fail(w, r, err)
			return
		}
		if !settings.AnnualFee.Value.IsZero() {
			payment.Amount = settings.AnnualFee
		}
	}

	saved, err := h.Service.RecordPayment(r.Context(), payment)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, factory.FeePaymentToJSON(saved))
}

func (h *Handler) MarkUnpaid(w http.ResponseWriter, r *http.Request) {
	year, ok := pathYear(w, r)
	if !ok {
		return
	}
	saved, err := h.Service.MarkUnpaid(r.Context(), memberID(r), year)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, factory.FeePaymentToJSON(saved))
}

// =============================================================================
// DUES
// =============================================================================

func (h *Handler) GetDues(w http.ResponseWriter, r *http.Request) {
	id := memberID(r)
	entries, err := h.Calculator.DueYears(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DueYearsResponse{
		MemberID:    string(id),
		CurrentYear: h.Clock.Now().Year(),
		Entries:     toDueYearDTOs(entries),
	})
}

func (h *Handler) GetDuesSummary(w http.ResponseWriter, r *http.Request) {
	summary, _, err := h.Calculator.Summary(r.Context(), memberID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSummaryDTO(summary))
}

func (h *Handler) ExportDues(w http.ResponseWriter, r *http.Request) {
	id := memberID(r)
	member, err := h.Store.GetMember(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	summary, entries, err := h.Calculator.Summary(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	f, err := export.Liability(member, entries, summary)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeWorkbook(w, r, fmt.Sprintf("dues-%s.xlsx", member.MemberNumber), f)
}

func (h *Handler) GetArrears(w http.ResponseWriter, r *http.Request) {
	report, err := h.Calculator.Arrears(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toArrearsDTO(report))
}

func (h *Handler) ExportArrears(w http.ResponseWriter, r *http.Request) {
	report, err := h.Calculator.Arrears(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	f, err := export.Arrears(report)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeWorkbook(w, r, fmt.Sprintf("arrears-%d.xlsx", report.Year), f)
}

func (h *Handler) ListArrearsRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer", err)
			return
		}
		limit = n
	}
	runs, err := h.Store.ListArrearsRuns(r.Context(), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	dtos := make([]ArrearsRunDTO, len(runs))
	for i, run := range runs {
		dtos[i] = toArrearsRunDTO(run)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// TriggerArrearsRun runs the arrears check synchronously and returns the
// recorded run, failed or not.
func (h *Handler) TriggerArrearsRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.Scheduler.RunNow(r.Context())
	if err != nil && run.Status != generic.RunFailed {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toArrearsRunDTO(run))
}

// =============================================================================
// HELPERS
// =============================================================================

func memberID(r *http.Request) generic.MemberID {
	return generic.MemberID(chi.URLParam(r, "id"))
}

func pathYear(w http.ResponseWriter, r *http.Request) (int, bool) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "year must be an integer", err)
		return 0, false
	}
	return year, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", err)
		return false
	}
	return true
}

// fail maps a domain or store error to a response. Anything that is neither
// a missing record nor bad input is logged and sent to Sentry.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case generic.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error(), nil)
	case generic.IsClientError(err):
		resp := ErrorResponse{Error: "validation failed", Details: err.Error()}
		var ve *generic.ValidationError
		if errors.As(err, &ve) {
			resp.Field = ve.Field
		}
		writeJSON(w, http.StatusBadRequest, resp)
	default:
		h.Log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
		observability.CaptureRequestErr(r, err)
		writeError(w, http.StatusInternalServerError, "internal error", nil)
	}
}

// writeWorkbook renders f into memory first so a failed render still gets
// a JSON error instead of a truncated download.
func (h *Handler) writeWorkbook(w http.ResponseWriter, r *http.Request, filename string, f *excelize.File) {
	var buf bytes.Buffer
	if err := export.Write(&buf, f); err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
