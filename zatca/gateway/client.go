// Package gateway talks to the ZATCA e-invoicing gateway: clearance and
// reporting of signed invoices, compliance onboarding and production CSID
// issuance. Calls are stateless and are never retried.
package gateway

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/jx"
	"github.com/sirupsen/logrus"

	"github.com/alapierre/go-zatca-client/zatca"
)

var logger = logrus.WithField("component", "zatca.gateway")

const (
	OpClearance      = "clearance"
	OpReporting      = "reporting"
	OpOnboarding     = "onboarding"
	OpProductionCSID = "production_csid"
)

// maxResponseBody caps how much of an upstream response is read.
const maxResponseBody = 10 << 20

type Client struct {
	cfg     Config
	http    *http.Client
	metrics *Metrics
	now     func() time.Time
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithClock overrides the source of Result timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

func New(cfg Config, opts ...Option) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	c := &Client{cfg: cfg, http: &http.Client{}, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SubmitClearance sends a standard invoice for synchronous clearance.
func (c *Client) SubmitClearance(ctx context.Context, req ClearanceRequest) (*Result, error) {
	return c.execute(ctx, call{
		operation:  OpClearance,
		url:        joinURL(c.cfg.BaseURL, "/clearance/invoices"),
		basicAuth:  true,
		missing:    req.missing(),
		hasInvoice: req.Invoice != "",
		headers:    map[string]string{"Clearance-Status": "1"},
		encode:     req.Encode,
	})
}

// SubmitReporting reports a simplified invoice.
func (c *Client) SubmitReporting(ctx context.Context, req ReportingRequest) (*Result, error) {
	return c.execute(ctx, call{
		operation:  OpReporting,
		url:        joinURL(c.cfg.BaseURL, "/reporting/invoices"),
		basicAuth:  true,
		missing:    req.missing(),
		hasInvoice: req.Invoice != "",
		encode:     req.Encode,
	})
}

// RequestOnboarding exchanges a CSR and a one-time password for a compliance
// CSID. The response body, which carries the issued token and secret, is
// returned as-is and is not stored.
func (c *Client) RequestOnboarding(ctx context.Context, req OnboardingRequest, otp string) (*Result, error) {
	otp = strings.TrimSpace(otp)
	return c.execute(ctx, call{
		operation:  OpOnboarding,
		url:        c.cfg.OnboardingURL,
		missing:    req.missing(),
		missingOTP: otp == "",
		headers:    map[string]string{"OTP": otp},
		encode:     req.Encode,
	})
}

// RequestProductionCSID asks for a production CSID using the compliance
// credentials configured on the client.
func (c *Client) RequestProductionCSID(ctx context.Context, req ProductionCSIDRequest) (*Result, error) {
	return c.execute(ctx, call{
		operation: OpProductionCSID,
		url:       c.cfg.ProductionCSIDURL,
		basicAuth: true,
		encode:    req.Encode,
	})
}

type call struct {
	operation  string
	url        string
	basicAuth  bool
	missing    []string
	missingOTP bool
	hasInvoice bool
	headers    map[string]string
	encode     func(e *jx.Encoder)
}

// execute runs the local checks, then performs the HTTP exchange. Local
// failures return both a result and an error. Upstream and transport
// failures are reported only through the result.
func (c *Client) execute(ctx context.Context, op call) (*Result, error) {
	log := logger.WithFields(logrus.Fields{
		"operation":      op.operation,
		"hasCredentials": c.cfg.HasCredentials(),
		"hasInvoice":     op.hasInvoice,
	})

	if len(op.missing) > 0 {
		log.Debug("request rejected: missing fields")
		c.metrics.IncrementOutcome(op.operation, OutcomeRejected)
		return c.rejected(CategoryValidation, zatca.ErrMissingFields.Detail("missing %s", strings.Join(op.missing, ", ")))
	}
	if op.missingOTP {
		log.Debug("request rejected: missing OTP")
		c.metrics.IncrementOutcome(op.operation, OutcomeRejected)
		return c.rejected(CategoryValidation, zatca.ErrMissingOTP)
	}
	if op.basicAuth && !c.cfg.HasCredentials() {
		log.Warn("request rejected: CSID credentials are not configured")
		c.metrics.IncrementOutcome(op.operation, OutcomeRejected)
		return c.rejected(CategoryConfiguration, zatca.ErrMissingCredentials)
	}
	if op.url == "" {
		log.Warn("request rejected: gateway URL is not configured")
		c.metrics.IncrementOutcome(op.operation, OutcomeRejected)
		return c.rejected(CategoryConfiguration, zatca.ErrMissingURL.Detail("no URL for %s", op.operation))
	}

	var body jx.Encoder
	op.encode(&body)

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, op.url, bytes.NewReader(body.Bytes()))
	if err != nil {
		log.WithError(err).Warn("request rejected: invalid gateway URL")
		c.metrics.IncrementOutcome(op.operation, OutcomeRejected)
		return c.rejected(CategoryConfiguration, zatca.ErrMissingURL.Detail("invalid URL for %s", op.operation).WithCause(err))
	}
	req.Header.Set("Accept-Version", "V2")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	for k, v := range op.headers {
		req.Header.Set(k, v)
	}
	if op.basicAuth {
		req.SetBasicAuth(c.cfg.Token, c.cfg.Secret)
	}

	log.Debug("calling gateway")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.ObserveDuration(op.operation, time.Since(start))
		c.metrics.IncrementOutcome(op.operation, OutcomeTransport)
		log.WithError(err).Error("gateway unreachable")
		return c.transportFailure(err), nil
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	c.metrics.ObserveDuration(op.operation, time.Since(start))
	if err != nil {
		c.metrics.IncrementOutcome(op.operation, OutcomeTransport)
		log.WithError(err).Error("reading gateway response failed")
		return c.transportFailure(err), nil
	}

	res := c.upstreamResponse(resp.StatusCode, data)
	if res.OK {
		c.metrics.IncrementOutcome(op.operation, OutcomeOK)
		log.WithField("status", res.Status).Debug("gateway call succeeded")
	} else {
		c.metrics.IncrementOutcome(op.operation, OutcomeUpstream)
		log.WithField("status", res.Status).Warn("gateway returned an error")
	}
	return res, nil
}

func joinURL(base, path string) string {
	if base == "" {
		return ""
	}
	return strings.TrimRight(base, "/") + path
}
