package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chequebook/internal/adapters/web"
	"chequebook/internal/app"
	"chequebook/internal/core"
	"chequebook/internal/metrics"
	"chequebook/internal/store/memory"
)

const testSecret = "test-secret-that-is-long-enough-for-hs256"

type testServer struct {
	handler http.Handler
	branch  core.Branch
	token   string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	s := memory.New()
	branch := s.AddBranch(core.Branch{Code: "A", Name: "Branch A", RoutingNumber: "11100011"})
	m := metrics.New()
	svc := app.NewAppService(app.Deps{Store: s, Metrics: m})

	_, err := svc.AddStock(context.Background(), app.AddStockRequest{
		Category: "individual", Quantity: 100, UnitCost: decimal.NewFromInt(1), OperatorID: "seed",
	})
	require.NoError(t, err)

	h := web.NewHandler(svc, web.Options{JWTSecret: testSecret, JWTIssuer: "bank-idp", MaxBodySize: 4096, Metrics: m})
	return &testServer{handler: h, branch: branch, token: signToken(t, "op-7", "bank-idp", time.Hour)}
}

func signToken(t *testing.T, subject, issuer string, ttl time.Duration) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	return s.doWithToken(t, method, path, body, s.token)
}

func (s *testServer) doWithToken(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (s *testServer) print(t *testing.T, units int64, customStart *int64) *httptest.ResponseRecorder {
	t.Helper()
	body := map[string]any{"branch_id": s.branch.ID, "account_ref": "100200300", "unit_count": units}
	if customStart != nil {
		body["custom_start"] = *customStart
	}
	return s.do(t, http.MethodPost, "/api/prints", body)
}

func TestHealthIsPublic(t *testing.T) {
	s := newTestServer(t)
	rec := s.doWithToken(t, http.MethodGet, "/api/health", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestAuth(t *testing.T) {
	s := newTestServer(t)

	rec := s.doWithToken(t, http.MethodGet, "/api/stock", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.doWithToken(t, http.MethodGet, "/api/stock", nil, signToken(t, "op-7", "bank-idp", -time.Minute))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.doWithToken(t, http.MethodGet, "/api/stock", nil, signToken(t, "op-7", "other-idp", time.Hour))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.doWithToken(t, http.MethodGet, "/api/stock", nil, signToken(t, "", "bank-idp", time.Hour))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/stock", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuth_OperatorHeaderWithoutSecret(t *testing.T) {
	svc := app.NewAppService(app.Deps{Store: memory.New()})
	h := web.NewHandler(svc, web.Options{})

	req := httptest.NewRequest(http.MethodGet, "/api/stock", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/stock", nil)
	req.Header.Set("X-Operator-ID", "dev")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPrintAndReprint(t *testing.T) {
	s := newTestServer(t)

	rec := s.print(t, 50, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	printed := decode[app.BatchResult](t, rec)
	assert.Equal(t, int64(1), printed.Entry.FirstSerial)
	assert.Equal(t, int64(50), printed.Entry.LastSerial)
	assert.Equal(t, "op-7", printed.Entry.OperatorID)
	require.NotNil(t, printed.Stock)
	assert.Equal(t, int64(50), printed.Stock.Quantity)

	path := "/api/prints/" + itoa(printed.Entry.ID) + "/reprints"

	rec = s.do(t, http.MethodPost, path, map[string]any{"first_serial": 10, "last_serial": 12})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"field":"reason"`)

	rec = s.do(t, http.MethodPost, path, map[string]any{"first_serial": 10, "last_serial": 12, "reason": "not_printed"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	reprint := decode[app.BatchResult](t, rec)
	assert.Nil(t, reprint.Stock)

	rec = s.do(t, http.MethodPost, path, map[string]any{"first_serial": 40, "last_serial": 60, "reason": "damaged"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/prints?operation_type=reprint", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[app.EntryListResult](t, rec)
	assert.Len(t, list.Entries, 1)
}

func TestPrintOverlapIsConflict(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusCreated, s.print(t, 10, nil).Code)

	start := int64(5)
	rec := s.print(t, 10, &start)
	require.Equal(t, http.StatusConflict, rec.Code)

	var body struct {
		Code     string         `json:"code"`
		Conflict *core.Conflict `json:"conflict"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "CONFLICT", body.Code)
	require.NotNil(t, body.Conflict)
	assert.Equal(t, "Branch A", body.Conflict.BranchName)
}

func TestPrintInsufficientStock(t *testing.T) {
	s := newTestServer(t)
	rec := s.print(t, 101, nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), `"available":100`)
}

func TestPrintValidation(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/prints", map[string]any{"branch_id": s.branch.ID, "account_ref": "12-34", "unit_count": 5})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"field":"account_ref"`)

	rec = s.do(t, http.MethodPost, "/api/prints", map[string]any{"branch_id": s.branch.ID, "account_ref": "1", "unit_count": 5, "colour": "red"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/prints", map[string]any{"branch_id": 99, "account_ref": "1", "unit_count": 5})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/prints", map[string]any{"branch_id": s.branch.ID, "account_ref": "1", "unit_count": 1_000_001})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"field":"unit_count"`)

	rec = s.do(t, http.MethodPost, "/api/prints", map[string]any{"notes": strings.Repeat("x", 5000)})
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestPreviewAndValidateRange(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/prints/preview", map[string]any{"branch_id": s.branch.ID, "account_ref": "1", "unit_count": 5})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	preview := decode[app.BatchResult](t, rec)
	assert.False(t, preview.Committed)
	assert.Zero(t, preview.Entry.ID)

	rec = s.do(t, http.MethodPost, "/api/prints/validate-range", map[string]any{"first_serial": 1, "last_serial": 5})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[app.RangeCheckResult](t, rec).Overlaps)

	require.Equal(t, http.StatusCreated, s.print(t, 5, nil).Code)
	rec = s.do(t, http.MethodPost, "/api/prints/validate-range", map[string]any{"first_serial": 3, "last_serial": 8})
	require.Equal(t, http.StatusOK, rec.Code)
	check := decode[app.RangeCheckResult](t, rec)
	assert.True(t, check.Overlaps)
	assert.Equal(t, "Branch A", check.ConflictBranch)

	rec = s.do(t, http.MethodPost, "/api/prints/validate-range", map[string]any{"first_serial": 8, "last_serial": 3})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExpandAndCounter(t *testing.T) {
	s := newTestServer(t)
	rec := s.print(t, 3, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[app.BatchResult](t, rec).Entry.ID

	rec = s.do(t, http.MethodGet, "/api/prints/"+itoa(id)+"/units", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	expanded := decode[app.ExpandResult](t, rec)
	require.Len(t, expanded.Units, 3)
	assert.Equal(t, "01011100011000100200300000000003", expanded.Units[2].EncodedLine)

	rec = s.do(t, http.MethodGet, "/api/prints/abc/units", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = s.do(t, http.MethodGet, "/api/prints/999", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/branches/"+itoa(s.branch.ID)+"/counter", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(4), decode[app.CounterResult](t, rec).NextSerial)
}

func TestStockEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/stock/individual/add", map[string]any{"quantity": 100, "unit_cost": "2"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	added := decode[app.StockLevelResult](t, rec)
	assert.Equal(t, int64(200), added.Stock.Quantity)
	assert.True(t, decimal.NewFromFloat(1.5).Equal(added.Stock.UnitCost))

	rec = s.do(t, http.MethodPost, "/api/stock/blank/add", map[string]any{"quantity": 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/stock/individual/transactions?limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[app.StockTransactionsResult](t, rec).Transactions, 1)

	rec = s.do(t, http.MethodGet, "/api/stock/individual/conservation", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[core.ConservationReport](t, rec).Balanced)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusCreated, s.print(t, 5, nil).Code)

	rec := s.doWithToken(t, http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `chequebook_prints_total{instrument_type="individual"} 1`)
	assert.Contains(t, rec.Body.String(), `route="/api/prints"`)
}

func itoa(v int64) string { return strconv.FormatInt(v, 10) }
