/*
handlers_test.go - Unit tests for API handlers

Tests for:
- Club settings and member endpoints (validation, 404s, generated ids)
- Payments and exemptions through the dues service
- Liability table, summary and XLSX export
- Arrears report and error mapping to HTTP status
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mouros/motohub/generic"
	"github.com/mouros/motohub/generic/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var testNow = time.Date(2022, time.June, 15, 10, 0, 0, 0, time.UTC)

type testServer struct {
	h      *Handler
	router http.Handler
	store  *store.Memory
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	mem := store.NewMemory()
	h := NewHandler(mem, generic.FixedClock{At: testNow}, nil)
	return &testServer{h: h, router: NewRouter(h, RouterOptions{}), store: mem}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == nil {
		req = httptest.NewRequest(method, path, nil)
	} else {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		req = httptest.NewRequest(method, path, bytes.NewReader(raw))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func clubSettingsBody() map[string]any {
	return map[string]any{
		"name":             "Mouros Moto Hub",
		"annual_fee":       "60",
		"currency":         "EUR",
		"fee_start_date":   "2015-01-01",
		"inactive_periods": []any{},
	}
}

func memberBody(id, number, joined string) map[string]any {
	return map[string]any{
		"id":            id,
		"member_number": number,
		"name":          "Rider " + number,
		"member_type":   "adult",
		"join_date":     joined,
	}
}

// seedReference stores the club, member m-1 (joined 2018-06-01), the 2020
// military service exemption and a 2019 payment, all through the API.
func (s *testServer) seedReference(t *testing.T) {
	t.Helper()
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPut, "/api/settings", clubSettingsBody()).Code)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/members", memberBody("m-1", "001", "2018-06-01")).Code)
	rec := s.do(t, http.MethodPost, "/api/members/m-1/exemptions", map[string]any{
		"start_date": "2020-01-01", "end_date": "2020-12-31", "reason": "military service",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = s.do(t, http.MethodPut, "/api/members/m-1/payments/2019", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

// =============================================================================
// SETTINGS AND MEMBERS
// =============================================================================

func TestSettings_NotFoundThenSaved(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/settings", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPut, "/api/settings", clubSettingsBody())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/api/settings", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[map[string]any](t, rec)
	assert.Equal(t, "Mouros Moto Hub", got["name"])
	assert.Equal(t, "2015-01-01", got["fee_start_date"])
}

func TestSettings_InvertedInactivePeriodRejected(t *testing.T) {
	s := newTestServer(t)
	body := clubSettingsBody()
	body["inactive_periods"] = []any{
		map[string]any{"start_date": "2021-06-30", "end_date": "2020-03-01", "reason": "typo"},
	}

	rec := s.do(t, http.MethodPut, "/api/settings", body)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation failed", decode[ErrorResponse](t, rec).Error)
}

func TestSettings_MalformedJSON(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPut, "/api/settings", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid JSON body", decode[ErrorResponse](t, rec).Error)
}

func TestCreateMember_GeneratesID(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/members", memberBody("", "007", "2019-04-01"))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	got := decode[map[string]any](t, rec)
	_, err := uuid.Parse(got["id"].(string))
	assert.NoError(t, err)
}

func TestCreateMember_ValidationError(t *testing.T) {
	s := newTestServer(t)
	body := memberBody("m-1", "001", "2019-04-01")
	body["member_type"] = "pillion"

	rec := s.do(t, http.MethodPost, "/api/members", body)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "member_type", decode[ErrorResponse](t, rec).Field)
}

func TestUpdateMember(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPut, "/api/members/m-1", memberBody("", "001", "2018-06-01"))
	assert.Equal(t, http.StatusNotFound, rec.Code, "update does not create")

	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/members", memberBody("m-1", "001", "2018-06-01")).Code)
	body := memberBody("other-id", "001", "2017-01-01")
	body["name"] = "Ana Moura"
	rec = s.do(t, http.MethodPut, "/api/members/m-1", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	got := decode[map[string]any](t, s.do(t, http.MethodGet, "/api/members/m-1", nil))
	assert.Equal(t, "m-1", got["id"])
	assert.Equal(t, "Ana Moura", got["name"])
	assert.Equal(t, "2017-01-01", got["join_date"])

	list := decode[[]map[string]any](t, s.do(t, http.MethodGet, "/api/members", nil))
	assert.Len(t, list, 1)
}

func TestGetMember_NotFound(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/members/ghost", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// FEE SETTINGS AND EXEMPTIONS
// =============================================================================

func TestFeeSettings_LazyCreationAndRemoval(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/members", memberBody("m-1", "001", "2018-06-01")).Code)

	rec := s.do(t, http.MethodGet, "/api/members/m-1/fee-settings", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/members/m-1/exemptions", map[string]any{
		"start_date": "2020-01-01", "end_date": "2020-12-31", "reason": "military service",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	got := decode[map[string]any](t, s.do(t, http.MethodGet, "/api/members/m-1/fee-settings", nil))
	assert.Equal(t, "2018-06-01", got["join_date"], "join date copied from the member")
	assert.Len(t, got["exempt_periods"], 1)

	rec = s.do(t, http.MethodDelete, "/api/members/m-1/exemptions/3", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "index", decode[ErrorResponse](t, rec).Field)

	rec = s.do(t, http.MethodDelete, "/api/members/m-1/exemptions/x", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodDelete, "/api/members/m-1/exemptions/0", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[map[string]any](t, rec)["exempt_periods"])
}

func TestPutFeeSettings_OverridesJoinDate(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPut, "/api/settings", clubSettingsBody()).Code)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/members", memberBody("m-1", "001", "2018-06-01")).Code)

	rec := s.do(t, http.MethodPut, "/api/members/m-1/fee-settings", map[string]any{
		"join_date": "2021-03-01", "exempt_periods": []any{},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	dues := decode[DueYearsResponse](t, s.do(t, http.MethodGet, "/api/members/m-1/dues", nil))
	require.Len(t, dues.Entries, 2)
	assert.Equal(t, 2021, dues.Entries[0].Year)

	rec = s.do(t, http.MethodPut, "/api/members/ghost/fee-settings", map[string]any{"join_date": "2021-03-01"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// PAYMENTS
// =============================================================================

func TestRecordPayment_DefaultsToAnnualFee(t *testing.T) {
	s := newTestServer(t)
	s.seedReference(t)

	payments := decode[[]map[string]any](t, s.do(t, http.MethodGet, "/api/members/m-1/payments", nil))
	require.Len(t, payments, 1)
	assert.Equal(t, float64(2019), payments[0]["year"])
	assert.Equal(t, true, payments[0]["paid"])
	assert.Equal(t, "60", payments[0]["amount"])
	assert.Equal(t, "2022-06-15", payments[0]["paid_date"])
}

func TestRecordPayment_WithBody(t *testing.T) {
	s := newTestServer(t)
	s.seedReference(t)

	rec := s.do(t, http.MethodPut, "/api/members/m-1/payments/2018", map[string]any{
		"amount": "45.5", "paid_date": "2018-07-01", "receipt_number": "R-18-001",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	got := decode[map[string]any](t, rec)
	assert.Equal(t, "45.5", got["amount"])
	assert.Equal(t, "R-18-001", got["receipt_number"])
	assert.Equal(t, "2018-07-01", got["paid_date"])
}

func TestRecordPayment_ExplicitZeroAmountIsKept(t *testing.T) {
	// GIVEN: a 60 EUR annual fee
	// WHEN: 2021 is recorded with amount "0" and 2022 with amount null
	// THEN: 2021 stores zero and only the null amount falls back to the fee

	s := newTestServer(t)
	s.seedReference(t)

	rec := s.do(t, http.MethodPut, "/api/members/m-1/payments/2021", map[string]any{"amount": "0", "receipt_number": "waived"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "0", decode[map[string]any](t, rec)["amount"])

	rec = s.do(t, http.MethodPut, "/api/members/m-1/payments/2022", map[string]any{"amount": nil})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "60", decode[map[string]any](t, rec)["amount"])

	stored, err := s.store.GetFeePayment(context.Background(), "m-1", 2021)
	require.NoError(t, err)
	assert.True(t, stored.Paid)
	assert.True(t, stored.Amount.IsZero())
}

func TestRecordPayment_Rejections(t *testing.T) {
	s := newTestServer(t)
	s.seedReference(t)

	tests := []struct {
		name  string
		path  string
		body  any
		code  int
		field string
	}{
		{"before fee start", "/api/members/m-1/payments/2014", nil, http.StatusBadRequest, "year"},
		{"future year", "/api/members/m-1/payments/2023", nil, http.StatusBadRequest, "year"},
		{"negative amount", "/api/members/m-1/payments/2021", map[string]any{"amount": "-1"}, http.StatusBadRequest, "amount"},
		{"year not a number", "/api/members/m-1/payments/last", nil, http.StatusBadRequest, ""},
		{"unknown member", "/api/members/ghost/payments/2021", nil, http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPut, tt.path, tt.body)
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
			if tt.field != "" {
				assert.Equal(t, tt.field, decode[ErrorResponse](t, rec).Field)
			}
		})
	}
}

func TestMarkUnpaid_KeepsRow(t *testing.T) {
	s := newTestServer(t)
	s.seedReference(t)

	rec := s.do(t, http.MethodDelete, "/api/members/m-1/payments/2019", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	dues := decode[DueYearsResponse](t, s.do(t, http.MethodGet, "/api/members/m-1/dues", nil))
	row := dues.Entries[1]
	require.Equal(t, 2019, row.Year)
	require.NotNil(t, row.Payment)
	assert.False(t, row.Payment.Paid)
	assert.Equal(t, "0.00", row.Payment.Amount)
	assert.Equal(t, "owed", row.Status)
}

func TestMarkUnpaid_YearOutOfRange(t *testing.T) {
	s := newTestServer(t)
	s.seedReference(t)

	for _, path := range []string{"/api/members/m-1/payments/2014", "/api/members/m-1/payments/2099"} {
		rec := s.do(t, http.MethodDelete, path, nil)
		require.Equal(t, http.StatusBadRequest, rec.Code, path)
		assert.Equal(t, "year", decode[ErrorResponse](t, rec).Field)
	}

	payments := decode[[]map[string]any](t, s.do(t, http.MethodGet, "/api/members/m-1/payments", nil))
	assert.Len(t, payments, 1, "only the seeded 2019 payment exists")
}

// =============================================================================
// DUES
// =============================================================================

func TestGetDues_MilitaryServiceExemption(t *testing.T) {
	// GIVEN: fees since 2015, member joined 2018-06-01, exempt for 2020, paid 2019
	// WHEN: the liability table is requested in 2022
	// THEN: 2018-2022, 2020 exempt with its reason, 2019 paid

	s := newTestServer(t)
	s.seedReference(t)

	rec := s.do(t, http.MethodGet, "/api/members/m-1/dues", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[DueYearsResponse](t, rec)

	assert.Equal(t, 2022, got.CurrentYear)
	require.Len(t, got.Entries, 5)
	years := make([]int, len(got.Entries))
	for i, e := range got.Entries {
		years[i] = e.Year
	}
	assert.Equal(t, []int{2018, 2019, 2020, 2021, 2022}, years)

	assert.True(t, got.Entries[2].Exempt)
	assert.False(t, got.Entries[2].ShouldPay)
	assert.Equal(t, "military service", got.Entries[2].ExemptReason)
	assert.Equal(t, "exempt", got.Entries[2].Status)

	assert.Equal(t, "paid", got.Entries[1].Status)
	assert.Nil(t, got.Entries[0].Payment)
	assert.Equal(t, "owed", got.Entries[0].Status)
}

func TestGetDuesSummary(t *testing.T) {
	s := newTestServer(t)
	s.seedReference(t)

	rec := s.do(t, http.MethodGet, "/api/members/m-1/dues/summary", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[SummaryDTO](t, rec)

	assert.Equal(t, 5, got.Years)
	assert.Equal(t, []int{2018, 2021, 2022}, got.OwedYears)
	assert.Equal(t, 1, got.PaidYears)
	assert.Equal(t, 1, got.ExemptYears)
	assert.Equal(t, "180.00", got.Outstanding)
	assert.Equal(t, "60.00", got.PaidTotal)
	assert.Equal(t, "EUR", got.Currency)
	assert.Equal(t, "owed", got.CurrentYearStatus)
}

func TestGetDues_MissingSettingsIs404(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/members", memberBody("m-1", "001", "2018-06-01")).Code)

	rec := s.do(t, http.MethodGet, "/api/members/m-1/dues", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExportDues(t *testing.T) {
	s := newTestServer(t)
	s.seedReference(t)

	rec := s.do(t, http.MethodGet, "/api/members/m-1/dues/export", nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `filename="dues-001.xlsx"`)
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")), "xlsx is a zip archive")
}

// =============================================================================
// ARREARS
// =============================================================================

func TestGetArrears(t *testing.T) {
	s := newTestServer(t)
	s.seedReference(t)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/members", memberBody("m-2", "002", "2022-01-10")).Code)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/members", memberBody("m-3", "003", "2022-02-01")).Code)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPut, "/api/members/m-3/payments/2022", nil).Code)

	rec := s.do(t, http.MethodGet, "/api/dues/arrears", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[ArrearsDTO](t, rec)

	assert.Equal(t, 2022, got.Year)
	assert.Equal(t, 3, got.MembersChecked)
	require.Len(t, got.Lines, 2)
	assert.Equal(t, "001", got.Lines[0].MemberNumber, "largest outstanding first")
	assert.Equal(t, "180.00", got.Lines[0].Outstanding)
	assert.Equal(t, []int{2022}, got.Lines[1].OwedYears)
	assert.Equal(t, "240.00", got.TotalOutstanding)

	rec = s.do(t, http.MethodGet, "/api/dues/arrears/export", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "arrears-2022.xlsx")
}

func TestArrearsRuns_TriggerAndList(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/dues/arrears/runs", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "nothing to check without club settings")

	s.seedReference(t)
	rec = s.do(t, http.MethodPost, "/api/dues/arrears/runs", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	run := decode[ArrearsRunDTO](t, rec)
	assert.Equal(t, "completed", run.Status)
	assert.Equal(t, 1, run.MembersInArrears)
	assert.Equal(t, "180.00", run.TotalOutstanding)

	runs := decode[[]ArrearsRunDTO](t, s.do(t, http.MethodGet, "/api/dues/arrears/runs?limit=5", nil))
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)

	rec = s.do(t, http.MethodGet, "/api/dues/arrears/runs?limit=0", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// ERROR MAPPING AND OPS ENDPOINTS
// =============================================================================

type brokenMembers struct {
	*store.Memory
}

func (b brokenMembers) ListMembers(context.Context) ([]generic.Member, error) {
	return nil, &generic.StoreError{Op: "list members", Err: context.DeadlineExceeded}
}

func TestStoreFailure_Is500WithoutDetails(t *testing.T) {
	h := NewHandler(brokenMembers{store.NewMemory()}, generic.FixedClock{At: testNow}, nil)
	router := NewRouter(h, RouterOptions{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/members", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	got := decode[ErrorResponse](t, rec)
	assert.Equal(t, "internal error", got.Error)
	assert.Empty(t, got.Details, "store errors are not leaked to clients")
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "motohub_http_requests_total")
}

func TestCORS_AllowedOrigin(t *testing.T) {
	mem := store.NewMemory()
	h := NewHandler(mem, generic.FixedClock{At: testNow}, nil)
	router := NewRouter(h, RouterOptions{AllowedOrigins: []string{"https://admin.example.org"}})

	req := httptest.NewRequest(http.MethodGet, "/api/members", nil)
	req.Header.Set("Origin", "https://admin.example.org")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, "https://admin.example.org", rec.Header().Get("Access-Control-Allow-Origin"))
}
