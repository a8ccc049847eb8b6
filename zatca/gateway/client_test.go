package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alapierre/go-zatca-client/zatca"
	"github.com/alapierre/go-zatca-client/zatca/model"
)

const (
	testToken  = "TUlJQ1pUQ0NBZ3VnQXdJQkFnSUdBWW"
	testSecret = "s3cr3t/Value+123="
)

var fixedNow = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

type captured struct {
	mu     sync.Mutex
	method string
	path   string
	header http.Header
	body   map[string]any
}

func (c *captured) last() (method, path string, header http.Header, body map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.method, c.path, c.header, c.body
}

// upstream starts a test gateway answering every call with status and body.
func upstream(t *testing.T, status int, body string) (*httptest.Server, *atomic.Int32, *captured) {
	t.Helper()

	var calls atomic.Int32
	got := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		reqBody := map[string]any{}
		_ = json.Unmarshal(raw, &reqBody)

		got.mu.Lock()
		got.method = r.Method
		got.path = r.URL.Path
		got.header = r.Header.Clone()
		got.body = reqBody
		got.mu.Unlock()
		calls.Add(1)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls, got
}

func testConfig(base string) Config {
	return Config{
		Token:             testToken,
		Secret:            testSecret,
		BaseURL:           base + "/e-invoicing/simulation",
		OnboardingURL:     base + "/e-invoicing/simulation/compliance",
		ProductionCSIDURL: base + "/e-invoicing/simulation/production/csids",
	}
}

func clearanceRequest() ClearanceRequest {
	return ClearanceRequest{
		UUID:        "12345678-1234-1234-1234-123456789012",
		InvoiceHash: "ungWv48Bz+pBQUDeXa4iI7ADYaOWF3qctBD/YfIAFa0=",
		Invoice:     base64.StdEncoding.EncodeToString([]byte("<Invoice/>")),
	}
}

// countingTransport fails the test if any request reaches it.
type countingTransport struct {
	calls atomic.Int32
}

func (c *countingTransport) RoundTrip(*http.Request) (*http.Response, error) {
	c.calls.Add(1)
	return nil, errors.New("unexpected network call")
}

func TestSubmitClearance_Success(t *testing.T) {
	srv, calls, got := upstream(t, http.StatusOK, `{"clearanceStatus":"CLEARED","clearedInvoice":"PD94"}`)
	c := New(testConfig(srv.URL), WithClock(func() time.Time { return fixedNow }))

	req := clearanceRequest()
	req.PreviousInvoiceHash = "NWZlY2ViNjZmZmM4NmYzOGQ5NTI3ODZjNmQ2OTZjNzljMmRiYzIzOWRkNGU5MWI0NjcyOWQ3M2EyN2ZiNTdlOQ=="
	req.InvoiceCounterValue = 7

	res, err := c.SubmitClearance(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.True(t, res.OK)
	assert.Equal(t, http.StatusOK, res.Status)
	assert.Empty(t, res.Errors)
	assert.Equal(t, fixedNow, res.Timestamp)
	assert.JSONEq(t, `{"clearanceStatus":"CLEARED","clearedInvoice":"PD94"}`, string(res.Data))
	assert.NoError(t, res.Err())

	method, path, header, body := got.last()
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, http.MethodPost, method)
	assert.Equal(t, "/e-invoicing/simulation/clearance/invoices", path)
	assert.Equal(t, "V2", header.Get("Accept-Version"))
	assert.Equal(t, "application/json", header.Get("Accept"))
	assert.Equal(t, "application/json", header.Get("Content-Type"))
	assert.Equal(t, "1", header.Get("Clearance-Status"))
	assert.Equal(t, "Basic "+base64.StdEncoding.EncodeToString([]byte(testToken+":"+testSecret)), header.Get("Authorization"))

	assert.Equal(t, req.UUID, body["uuid"])
	assert.Equal(t, req.InvoiceHash, body["invoiceHash"])
	assert.Equal(t, req.Invoice, body["invoice"])
	assert.Equal(t, req.PreviousInvoiceHash, body["previousInvoiceHash"])
	assert.Equal(t, float64(7), body["invoiceCounterValue"])
}

func TestSubmitClearance_OmitsAbsentChainFields(t *testing.T) {
	srv, _, got := upstream(t, http.StatusOK, `{}`)
	c := New(testConfig(srv.URL))

	_, err := c.SubmitClearance(context.Background(), clearanceRequest())
	require.NoError(t, err)

	_, _, _, body := got.last()
	assert.Len(t, body, 3)
	assert.NotContains(t, body, "previousInvoiceHash")
	assert.NotContains(t, body, "invoiceCounterValue")
}

func TestSubmitClearance_MissingFieldsMakesNoCall(t *testing.T) {
	transport := &countingTransport{}
	c := New(testConfig("https://gateway.invalid"), WithHTTPClient(&http.Client{Transport: transport}))

	req := clearanceRequest()
	req.InvoiceHash = ""

	res, err := c.SubmitClearance(context.Background(), req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, zatca.ErrMissingFields))
	assert.Contains(t, err.Error(), "invoiceHash")

	require.NotNil(t, res)
	assert.False(t, res.OK)
	assert.Equal(t, http.StatusBadRequest, res.Status)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, CategoryValidation, res.Errors[0].Category)
	assert.Equal(t, zatca.ErrMissingFields.Code, res.Errors[0].Code)

	assert.Equal(t, int32(0), transport.calls.Load())
}

func TestSubmitClearance_UpstreamError(t *testing.T) {
	srv, calls, _ := upstream(t, http.StatusBadRequest, `{"message":"bad uuid"}`)
	c := New(testConfig(srv.URL))

	res, err := c.SubmitClearance(context.Background(), clearanceRequest())
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.False(t, res.OK)
	assert.Equal(t, http.StatusBadRequest, res.Status)
	assert.Equal(t, []ErrorItem{{Category: "Upstream", Code: "ZATCA_API_ERROR", Message: "bad uuid"}}, res.Errors)
	assert.JSONEq(t, `{"message":"bad uuid"}`, string(res.Data))
	assert.Equal(t, int32(1), calls.Load())

	rerr := res.Err()
	assert.True(t, errors.Is(rerr, zatca.ErrUpstream))
	kind, ok := zatca.KindOf(rerr)
	assert.True(t, ok)
	assert.Equal(t, zatca.KindUpstream, kind)
}

func TestSubmitClearance_UpstreamMessageFallbacks(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"validation results", http.StatusBadRequest, `{"validationResults":{"status":"ERROR","errorMessages":[{"code":"invalid-invoice-hash","message":"The invoice hash API body does not match"},{"message":"second"}]}}`, "The invoice hash API body does not match"},
		{"top-level message wins", http.StatusBadRequest, `{"validationResults":{"errorMessages":[{"message":"nested"}]},"message":"top"}`, "top"},
		{"plain text body", http.StatusServiceUnavailable, `upstream down`, "Service Unavailable"},
		{"empty body", http.StatusUnauthorized, ``, "Unauthorized"},
		{"message of wrong type", http.StatusInternalServerError, `{"message":42}`, "Internal Server Error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _, _ := upstream(t, tt.status, tt.body)
			c := New(testConfig(srv.URL))

			res, err := c.SubmitClearance(context.Background(), clearanceRequest())
			require.NoError(t, err)
			assert.False(t, res.OK)
			assert.Equal(t, tt.status, res.Status)
			require.Len(t, res.Errors, 1)
			assert.Equal(t, tt.want, res.Errors[0].Message)
		})
	}
}

func TestSubmitClearance_NonJSONBodyKeptAsString(t *testing.T) {
	srv, _, _ := upstream(t, http.StatusBadGateway, `<html>bad gateway</html>`)
	c := New(testConfig(srv.URL))

	res, err := c.SubmitClearance(context.Background(), clearanceRequest())
	require.NoError(t, err)
	assert.JSONEq(t, `"<html>bad gateway</html>"`, string(res.Data))
}

func TestSubmitClearance_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	base := srv.URL
	srv.Close()

	c := New(testConfig(base))
	res, err := c.SubmitClearance(context.Background(), clearanceRequest())
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.False(t, res.OK)
	assert.Zero(t, res.Status)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "Server", res.Errors[0].Category)
	assert.Equal(t, "INTERNAL", res.Errors[0].Code)
	assert.NotEmpty(t, res.Errors[0].Message)
	assert.True(t, errors.Is(res.Err(), zatca.ErrTransport))
}

func TestSubmitClearance_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	cfg := testConfig(srv.URL)
	cfg.Timeout = 50 * time.Millisecond
	c := New(cfg)

	start := time.Now()
	res, err := c.SubmitClearance(context.Background(), clearanceRequest())
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)

	assert.False(t, res.OK)
	assert.Zero(t, res.Status)
	assert.Equal(t, CategoryServer, res.Errors[0].Category)
}

func TestSubmitClearance_MissingCredentialsMakesNoCall(t *testing.T) {
	transport := &countingTransport{}
	cfg := testConfig("https://gateway.invalid")
	cfg.Secret = ""
	c := New(cfg, WithHTTPClient(&http.Client{Transport: transport}))

	res, err := c.SubmitClearance(context.Background(), clearanceRequest())
	assert.True(t, errors.Is(err, zatca.ErrMissingCredentials))
	assert.False(t, res.OK)
	assert.Equal(t, CategoryConfiguration, res.Errors[0].Category)

	res, err = c.SubmitReporting(context.Background(), ReportingRequest{UUID: "u", InvoiceHash: "h", Invoice: "i"})
	assert.True(t, errors.Is(err, zatca.ErrMissingCredentials))
	assert.False(t, res.OK)

	assert.Equal(t, int32(0), transport.calls.Load())
}

func TestSubmitClearance_MissingBaseURL(t *testing.T) {
	cfg := testConfig("")
	cfg.BaseURL = ""
	c := New(cfg)

	res, err := c.SubmitClearance(context.Background(), clearanceRequest())
	assert.True(t, errors.Is(err, zatca.ErrMissingURL))
	assert.False(t, res.OK)
}

func TestSubmitReporting(t *testing.T) {
	srv, calls, got := upstream(t, http.StatusAccepted, `{"reportingStatus":"REPORTED"}`)
	c := New(testConfig(srv.URL))

	res, err := c.SubmitReporting(context.Background(), ReportingRequest{
		UUID:        "12345678-1234-1234-1234-123456789012",
		InvoiceHash: "hash",
		Invoice:     "PEludm9pY2UvPg==",
	})
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, http.StatusAccepted, res.Status)

	_, path, header, body := got.last()
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, "/e-invoicing/simulation/reporting/invoices", path)
	assert.Empty(t, header.Get("Clearance-Status"))
	assert.Equal(t, "V2", header.Get("Accept-Version"))
	assert.Equal(t, map[string]any{
		"uuid":        "12345678-1234-1234-1234-123456789012",
		"invoiceHash": "hash",
		"invoice":     "PEludm9pY2UvPg==",
	}, body)
}

func TestRequestOnboarding(t *testing.T) {
	srv, calls, got := upstream(t, http.StatusOK, `{"requestID":1234,"binarySecurityToken":"VE9LRU4=","secret":"issued"}`)
	c := New(testConfig(srv.URL))

	res, err := c.RequestOnboarding(context.Background(), OnboardingRequest{CSR: "LS0tLS1CRUdJTi"}, "123345")
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.JSONEq(t, `{"requestID":1234,"binarySecurityToken":"VE9LRU4=","secret":"issued"}`, string(res.Data))

	_, path, header, body := got.last()
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, "/e-invoicing/simulation/compliance", path)
	assert.Equal(t, "123345", header.Get("OTP"))
	assert.Empty(t, header.Get("Authorization"))
	assert.Equal(t, map[string]any{"csr": "LS0tLS1CRUdJTi"}, body)
}

func TestRequestOnboarding_WorksWithoutCredentials(t *testing.T) {
	srv, calls, _ := upstream(t, http.StatusOK, `{}`)
	cfg := testConfig(srv.URL)
	cfg.Token, cfg.Secret = "", ""
	c := New(cfg)

	res, err := c.RequestOnboarding(context.Background(), OnboardingRequest{CSR: "csr"}, "111111")
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRequestOnboarding_LocalValidation(t *testing.T) {
	transport := &countingTransport{}
	c := New(testConfig("https://gateway.invalid"), WithHTTPClient(&http.Client{Transport: transport}))

	res, err := c.RequestOnboarding(context.Background(), OnboardingRequest{CSR: "csr"}, "  ")
	assert.True(t, errors.Is(err, zatca.ErrMissingOTP))
	assert.False(t, res.OK)
	assert.Equal(t, http.StatusBadRequest, res.Status)

	_, err = c.RequestOnboarding(context.Background(), OnboardingRequest{}, "123345")
	assert.True(t, errors.Is(err, zatca.ErrMissingFields))

	assert.Equal(t, int32(0), transport.calls.Load())
}

func TestRequestProductionCSID(t *testing.T) {
	srv, calls, got := upstream(t, http.StatusOK, `{"binarySecurityToken":"UFJPRA==","secret":"prod"}`)
	c := New(testConfig(srv.URL))

	res, err := c.RequestProductionCSID(context.Background(), ProductionCSIDRequest{ComplianceRequestID: "1234567890123"})
	require.NoError(t, err)
	assert.True(t, res.OK)
	_, path, header, body := got.last()
	assert.Equal(t, "/e-invoicing/simulation/production/csids", path)
	assert.True(t, strings.HasPrefix(header.Get("Authorization"), "Basic "))
	assert.Equal(t, map[string]any{"compliance_request_id": "1234567890123"}, body)

	_, err = c.RequestProductionCSID(context.Background(), ProductionCSIDRequest{})
	require.NoError(t, err)
	_, _, _, body = got.last()
	assert.Empty(t, body)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRequestProductionCSID_MissingCredentialsMakesNoCall(t *testing.T) {
	transport := &countingTransport{}
	cfg := testConfig("https://gateway.invalid")
	cfg.Token = ""
	c := New(cfg, WithHTTPClient(&http.Client{Transport: transport}))

	res, err := c.RequestProductionCSID(context.Background(), ProductionCSIDRequest{ComplianceRequestID: "1"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, zatca.ErrMissingCredentials))
	kind, _ := zatca.KindOf(err)
	assert.Equal(t, zatca.KindConfiguration, kind)
	assert.False(t, res.OK)
	assert.Equal(t, int32(0), transport.calls.Load())
}

func TestClient_NeverLogsSecrets(t *testing.T) {
	hook := logtest.NewGlobal()
	level := logrus.GetLevel()
	logrus.SetLevel(logrus.DebugLevel)
	t.Cleanup(func() { logrus.SetLevel(level) })

	srv, _, _ := upstream(t, http.StatusBadRequest, `{"message":"bad uuid"}`)
	c := New(testConfig(srv.URL))

	_, _ = c.SubmitClearance(context.Background(), clearanceRequest())
	_, _ = c.RequestOnboarding(context.Background(), OnboardingRequest{CSR: "csr"}, "998877")

	entries := hook.AllEntries()
	require.NotEmpty(t, entries)
	for _, e := range entries {
		line := e.Message + " " + fmt.Sprint(e.Data)
		assert.NotContains(t, line, testToken)
		assert.NotContains(t, line, testSecret)
		assert.NotContains(t, line, "998877")
		assert.NotContains(t, line, clearanceRequest().Invoice)
	}

	var sawPresence bool
	for _, e := range entries {
		if _, ok := e.Data["hasCredentials"]; ok {
			_, hasInvoice := e.Data["hasInvoice"]
			sawPresence = hasInvoice
		}
	}
	assert.True(t, sawPresence)
}

func TestClient_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	srv, _, _ := upstream(t, http.StatusOK, `{}`)
	c := New(testConfig(srv.URL), WithMetrics(m))

	_, _ = c.SubmitClearance(context.Background(), clearanceRequest())
	_, _ = c.SubmitClearance(context.Background(), ClearanceRequest{})

	assert.Equal(t, float64(1), testutil.ToFloat64(m.Requests.WithLabelValues(OpClearance, OutcomeOK)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Requests.WithLabelValues(OpClearance, OutcomeRejected)))
	assert.Equal(t, 1, testutil.CollectAndCount(m.Duration))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.IncrementOutcome(OpReporting, OutcomeOK)
	m.ObserveDuration(OpReporting, time.Second)
}

func TestNewClearanceRequest(t *testing.T) {
	signed := &model.SignedInvoice{SignedXML: "<Invoice>signed</Invoice>"}
	link := model.InvoiceChainLink{UUID: "u-1", InvoiceHash: "h-2", PreviousInvoiceHash: "h-1", CounterValue: 2}

	req := NewClearanceRequest(signed, link)
	assert.Equal(t, ClearanceRequest{
		UUID:                "u-1",
		InvoiceHash:         "h-2",
		Invoice:             base64.StdEncoding.EncodeToString([]byte(signed.SignedXML)),
		PreviousInvoiceHash: "h-1",
		InvoiceCounterValue: 2,
	}, req)

	rep := NewReportingRequest(signed, "u-1", "h-2")
	assert.Equal(t, req.Invoice, rep.Invoice)
}

func TestResult_MarshalJSON(t *testing.T) {
	res := &Result{
		OK:        false,
		Errors:    []ErrorItem{{Category: CategoryServer, Code: "INTERNAL", Message: "connection refused"}},
		Timestamp: fixedNow,
	}
	b, err := json.Marshal(res)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":false,"errors":[{"category":"Server","code":"INTERNAL","message":"connection refused"}],"timestamp":"2024-01-15T10:30:00Z"}`, string(b))

	res = &Result{OK: true, Status: 200, Data: []byte(`{"a":1}`), Timestamp: fixedNow}
	b, err = json.Marshal(res)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true,"status":200,"data":{"a":1},"timestamp":"2024-01-15T10:30:00Z"}`, string(b))
}
