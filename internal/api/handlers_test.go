package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brln/noteiro/internal/api"
	"github.com/brln/noteiro/internal/lnbits"
	"github.com/brln/noteiro/internal/pulse"
	"github.com/brln/noteiro/internal/session"
	"github.com/brln/noteiro/internal/withdraw"
)

type stubBackend struct {
	failCreate error
	used       int
	uses       int
}

func (s *stubBackend) CreateWithdrawLink(params lnbits.WithdrawLinkParams) (lnbits.WithdrawLink, error) {
	if s.failCreate != nil {
		return lnbits.WithdrawLink{}, s.failCreate
	}
	return lnbits.WithdrawLink{
		ID:              "claim-1",
		Lnurl:           "LNURL1TESTCLAIM",
		MinWithdrawable: params.MinWithdrawable,
		MaxWithdrawable: params.MaxWithdrawable,
		Uses:            params.Uses,
	}, nil
}

func (s *stubBackend) GetWithdrawLink(id string) (lnbits.WithdrawLink, error) {
	return lnbits.WithdrawLink{ID: id, Used: s.used, Uses: s.uses}, nil
}

func (s *stubBackend) WithdrawURL(id string) string {
	return "https://lnbits.example/withdraw/" + id
}

func testServer(backend withdraw.Backend, authKey string) (http.Handler, *session.Ledger) {
	ledger := session.NewLedger(pulse.NewDecoder(nil))
	settlement := withdraw.NewService(ledger, backend, decimal.NewFromInt(300))
	server := api.NewServer("127.0.0.1:0")
	api.NewService(ledger, settlement, authKey).Register(server)
	return server.Router(), ledger
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	decoded := map[string]interface{}{}
	if rec.Header().Get("Content-Type") == "application/json" {
		json.Unmarshal(rec.Body.Bytes(), &decoded)
	}
	return rec, decoded
}

func TestPostPulses(t *testing.T) {
	handler, _ := testServer(&stubBackend{}, "")

	rec, body := doJSON(t, handler, http.MethodPost, "/api/pulses", map[string]int{"pulses": 10})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "10", body["valueCredited"])
	assert.Equal(t, "10", body["newBalance"])
	assert.Len(t, body["notes"], 1)
}

func TestPostPulsesUnrecognizedCount(t *testing.T) {
	handler, ledger := testServer(&stubBackend{}, "")

	rec, body := doJSON(t, handler, http.MethodPost, "/api/pulses", map[string]int{"pulses": 7})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, float64(1000), body["code"])
	assert.Equal(t, float64(7), body["pulses"])
	assert.True(t, ledger.Snapshot().Balance.IsZero())
}

func TestPostPulsesMalformed(t *testing.T) {
	handler, _ := testServer(&stubBackend{}, "")

	for _, payload := range []interface{}{
		map[string]string{"pulses": "ten"},
		map[string]int{},
		map[string]int{"pulses": -3},
		map[string]float64{"pulses": 10.5},
	} {
		rec, body := doJSON(t, handler, http.MethodPost, "/api/pulses", payload)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, float64(1), body["code"])
	}
}

func TestGetSession(t *testing.T) {
	handler, ledger := testServer(&stubBackend{}, "")
	ledger.Credit(20)

	rec, body := doJSON(t, handler, http.MethodGet, "/api/session", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "20", body["balance"])
	assert.Len(t, body["notes"], 1)
	assert.NotNil(t, body["lastCreditAt"])
	assert.NotEmpty(t, body["id"])
}

func TestPostReset(t *testing.T) {
	handler, ledger := testServer(&stubBackend{}, "")
	ledger.Credit(50)

	rec, body := doJSON(t, handler, http.MethodPost, "/api/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.True(t, ledger.Snapshot().Balance.IsZero())
}

func TestPostWithdraw(t *testing.T) {
	handler, ledger := testServer(&stubBackend{}, "")
	ledger.Credit(10)
	ledger.Credit(20)

	rec, body := doJSON(t, handler, http.MethodPost, "/api/withdraw", map[string]int{"amount": 25})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "claim-1", body["claimId"])
	assert.Equal(t, "https://lnbits.example/withdraw/claim-1", body["claimUrl"])
	assert.Equal(t, "LNURL1TESTCLAIM", body["lnurl"])
	assert.Equal(t, float64(7500), body["networkAmount"])
	assert.Equal(t, "5", body["newBalance"])
}

func TestPostWithdrawInsufficientBalance(t *testing.T) {
	handler, ledger := testServer(&stubBackend{}, "")
	ledger.Credit(5)

	rec, body := doJSON(t, handler, http.MethodPost, "/api/withdraw", map[string]int{"amount": 10})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, float64(1002), body["code"])
	assert.Equal(t, "5.00", body["available"])
	assert.Equal(t, "10.00", body["requested"])
	assert.Equal(t, "5.00", ledger.Snapshot().Balance.StringFixed(2))
}

func TestPostWithdrawBackendFailure(t *testing.T) {
	backend := &stubBackend{failCreate: lnbits.Error{Detail: "wallet not found"}}
	handler, ledger := testServer(backend, "")
	ledger.Credit(100)

	rec, body := doJSON(t, handler, http.MethodPost, "/api/withdraw", map[string]int{"amount": 10})
	require.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, float64(2000), body["code"])
	assert.Equal(t, "wallet not found", body["backend"])
}

func TestGetWithdrawStatus(t *testing.T) {
	handler, _ := testServer(&stubBackend{used: 1, uses: 1}, "")

	rec, body := doJSON(t, handler, http.MethodGet, "/api/withdraw/claim-1/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["used"])
	assert.Equal(t, float64(1), body["usedCount"])
	assert.Equal(t, float64(1), body["maxUses"])
}

func TestGetWithdrawQR(t *testing.T) {
	handler, ledger := testServer(&stubBackend{}, "")
	ledger.Credit(50)
	doJSON(t, handler, http.MethodPost, "/api/withdraw", map[string]int{"amount": 10})

	req := httptest.NewRequest(http.MethodGet, "/api/withdraw/claim-1/qr", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Body.Bytes())

	req = httptest.NewRequest(http.MethodGet, "/api/withdraw/unknown/qr", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetWithdraws(t *testing.T) {
	handler, ledger := testServer(&stubBackend{}, "")
	ledger.Credit(50)
	doJSON(t, handler, http.MethodPost, "/api/withdraw", map[string]int{"amount": 10})

	req := httptest.NewRequest(http.MethodGet, "/api/withdraws", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var claims []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &claims))
	require.Len(t, claims, 1)
	assert.Equal(t, "claim-1", claims[0]["claimId"])
}

func TestGetHealth(t *testing.T) {
	handler, _ := testServer(&stubBackend{}, "")

	rec, body := doJSON(t, handler, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, body["timestamp"])
}

func TestBearerAuth(t *testing.T) {
	handler, _ := testServer(&stubBackend{}, "kiosk-key")

	req := httptest.NewRequest(http.MethodPost, "/api/reset", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/reset", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/reset", nil)
	req.Header.Set("Authorization", "Bearer kiosk-key")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// credit ingestion stays open for the bridge
	rec, _ = doJSON(t, handler, http.MethodPost, "/api/pulses", map[string]int{"pulses": 10})
	assert.Equal(t, http.StatusOK, rec.Code)
}
