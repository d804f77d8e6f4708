package webhook

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/payhuk02/payhula-sub024/internal/tracing"
)

// Default dispatcher settings, overridable through DispatcherConfig
const (
	DefaultTimeout           = 10 * time.Second
	DefaultSignatureHeader   = "X-Payhula-Signature"
	DefaultEventHeader       = "X-Payhula-Event"
	DefaultEventIDHeader     = "X-Payhula-Event-Id"
	DefaultUserAgent         = "Payhula-Webhooks/1.0"
	DefaultResponseBodyLimit = 1024
)

// DeliveryResult is the structured outcome of one dispatch attempt.
// The dispatcher never reports failures any other way.
type DeliveryResult struct {
	Success      bool
	StatusCode   int
	ResponseBody string // truncated
	Err          error
	Duration     time.Duration
}

// DurationMs returns the attempt latency in whole milliseconds
func (r DeliveryResult) DurationMs() int64 {
	return r.Duration.Milliseconds()
}

// DispatcherConfig carries the wire-level knobs for outbound requests
type DispatcherConfig struct {
	Timeout           time.Duration
	SignatureHeader   string
	EventHeader       string
	EventIDHeader     string
	UserAgent         string
	ResponseBodyLimit int
}

// Dispatcher performs single bounded HTTP delivery attempts. It holds no
// persistence: recording outcomes is the orchestrator's job.
type Dispatcher struct {
	client *http.Client
	cfg    DispatcherConfig
}

// NewDispatcher builds a dispatcher, filling unset config fields with
// defaults. The HTTP client timeout is the hard per-attempt bound; no
// attempt can hang its caller past it.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.SignatureHeader == "" {
		cfg.SignatureHeader = DefaultSignatureHeader
	}
	if cfg.EventHeader == "" {
		cfg.EventHeader = DefaultEventHeader
	}
	if cfg.EventIDHeader == "" {
		cfg.EventIDHeader = DefaultEventIDHeader
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.ResponseBodyLimit <= 0 {
		cfg.ResponseBodyLimit = DefaultResponseBodyLimit
	}
	return &Dispatcher{
		client: &http.Client{Timeout: cfg.Timeout},
		cfg:    cfg,
	}
}

// Send delivers the envelope to the subscription's target URL. Success is an
// HTTP status in the 2xx range. Misconfiguration (bad URL, empty secret) is
// detected before any network call and reported as a ConfigError result.
func (d *Dispatcher) Send(ctx context.Context, sub Subscription, env *Envelope, attempt int) DeliveryResult {
	ctx, span := tracing.StartSpan(ctx, "webhook.dispatch",
		attribute.String("webhook_id", sub.ID),
		attribute.String("event_type", env.Event),
		attribute.String("event_id", env.EventID),
		attribute.Int("attempt", attempt),
	)
	defer span.End()

	if err := validateTarget(sub); err != nil {
		tracing.SetSpanError(ctx, err)
		return DeliveryResult{Err: err}
	}

	body := env.Bytes()
	sig, err := Sign(body, sub.SecretKey)
	if err != nil {
		cfgErr := &ConfigError{Reason: "subscription has no signing secret"}
		tracing.SetSpanError(ctx, cfgErr)
		return DeliveryResult{Err: cfgErr}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.TargetURL, bytes.NewReader(body))
	if err != nil {
		cfgErr := &ConfigError{Reason: "malformed target_url: " + err.Error()}
		tracing.SetSpanError(ctx, cfgErr)
		return DeliveryResult{Err: cfgErr}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", d.cfg.UserAgent)
	req.Header.Set(d.cfg.SignatureHeader, sig)
	req.Header.Set(d.cfg.EventHeader, env.Event)
	if env.EventID != "" {
		req.Header.Set(d.cfg.EventIDHeader, env.EventID)
	}
	if traceID := tracing.GetTraceID(ctx); traceID != "" {
		req.Header.Set("X-Trace-Id", traceID)
	}

	tracing.AddSpanEvent(ctx, "http.send_webhook")
	start := time.Now()
	resp, doErr := d.client.Do(req)
	latency := time.Since(start)

	if doErr != nil {
		terr := &TransportError{Err: doErr}
		span.SetAttributes(
			attribute.String("http.error", doErr.Error()),
			attribute.Int64("http.latency_ms", latency.Milliseconds()),
		)
		tracing.SetSpanError(ctx, terr)
		return DeliveryResult{Err: terr, Duration: latency}
	}
	defer resp.Body.Close()

	respBody := readTruncated(resp.Body, d.cfg.ResponseBodyLimit)
	span.SetAttributes(
		attribute.Int("http.status_code", resp.StatusCode),
		attribute.Int64("http.latency_ms", latency.Milliseconds()),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		herr := &HTTPError{StatusCode: resp.StatusCode, Body: respBody}
		tracing.SetSpanError(ctx, herr)
		return DeliveryResult{
			StatusCode:   resp.StatusCode,
			ResponseBody: respBody,
			Err:          herr,
			Duration:     latency,
		}
	}

	tracing.AddSpanEvent(ctx, "delivery.success",
		attribute.String("status", strconv.Itoa(resp.StatusCode)))
	return DeliveryResult{
		Success:      true,
		StatusCode:   resp.StatusCode,
		ResponseBody: respBody,
		Duration:     latency,
	}
}

// validateTarget rejects misconfigured subscriptions before any network I/O
func validateTarget(sub Subscription) error {
	if len(sub.SecretKey) == 0 {
		return &ConfigError{Reason: "subscription has no signing secret"}
	}
	u, err := url.ParseRequestURI(sub.TargetURL)
	if err != nil {
		return &ConfigError{Reason: "malformed target_url: " + err.Error()}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &ConfigError{Reason: "target_url scheme must be http or https"}
	}
	if u.Host == "" {
		return &ConfigError{Reason: "target_url has no host"}
	}
	return nil
}

// readTruncated reads at most limit bytes of the response body
func readTruncated(r io.Reader, limit int) string {
	b, _ := io.ReadAll(io.LimitReader(r, int64(limit)))
	return string(b)
}
