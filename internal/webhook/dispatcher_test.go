package webhook

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func testSubscription(target string) Subscription {
	return Subscription{
		ID:          "wh-1",
		StoreID:     "store-1",
		EventType:   EventOrderCompleted,
		TargetURL:   target,
		SecretKey:   []byte("whsec-test"),
		IsActive:    true,
		MaxAttempts: 3,
	}
}

func testEnvelope(t *testing.T) *Envelope {
	t.Helper()
	env, err := NewEnvelope(EventOrderCompleted, "evt-1", map[string]any{"order_id": "ord-1"})
	if err != nil {
		t.Fatalf("NewEnvelope() error: %v", err)
	}
	return env
}

func TestDispatcherSendSuccess(t *testing.T) {
	var gotBody []byte
	var gotHeaders http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotHeaders = r.Header.Clone()
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, `{"received":true}`)
	}))
	defer srv.Close()

	sub := testSubscription(srv.URL)
	env := testEnvelope(t)
	d := NewDispatcher(DispatcherConfig{})

	res := d.Send(context.Background(), sub, env, 1)
	if !res.Success {
		t.Fatalf("Send() not successful: %v", res.Err)
	}
	if res.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", res.StatusCode)
	}
	if res.ResponseBody != `{"received":true}` {
		t.Errorf("response body = %q", res.ResponseBody)
	}
	if res.Err != nil {
		t.Errorf("err = %v, want nil", res.Err)
	}

	if string(gotBody) != string(env.Bytes()) {
		t.Error("transmitted body differs from frozen envelope bytes")
	}
	if ct := gotHeaders.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %s", ct)
	}
	if ua := gotHeaders.Get("User-Agent"); ua != DefaultUserAgent {
		t.Errorf("User-Agent = %s", ua)
	}
	if et := gotHeaders.Get(DefaultEventHeader); et != string(EventOrderCompleted) {
		t.Errorf("event header = %s", et)
	}
	if id := gotHeaders.Get(DefaultEventIDHeader); id != "evt-1" {
		t.Errorf("event id header = %s", id)
	}

	// The receiver verifying the digest over the exact received bytes must
	// agree with the header.
	sig := gotHeaders.Get(DefaultSignatureHeader)
	if sig == "" {
		t.Fatal("signature header missing")
	}
	if !VerifySignature(gotBody, sub.SecretKey, sig) {
		t.Error("signature does not verify over received body")
	}
}

func TestDispatcherSendNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, "upstream exploded")
	}))
	defer srv.Close()

	d := NewDispatcher(DispatcherConfig{})
	res := d.Send(context.Background(), testSubscription(srv.URL), testEnvelope(t), 1)

	if res.Success {
		t.Fatal("Send() reported success on a 500")
	}
	if res.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", res.StatusCode)
	}
	var httpErr *HTTPError
	if !errors.As(res.Err, &httpErr) {
		t.Fatalf("err = %T, want *HTTPError", res.Err)
	}
	if httpErr.StatusCode != 500 || httpErr.Body != "upstream exploded" {
		t.Errorf("HTTPError = %+v", httpErr)
	}
	if !Retryable(res.Err) {
		t.Error("non-2xx response should be retryable")
	}
}

func TestDispatcherSendTruncatesResponseBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		for i := 0; i < 100; i++ {
			io.WriteString(w, "0123456789")
		}
	}))
	defer srv.Close()

	d := NewDispatcher(DispatcherConfig{ResponseBodyLimit: 16})
	res := d.Send(context.Background(), testSubscription(srv.URL), testEnvelope(t), 1)

	if len(res.ResponseBody) != 16 {
		t.Errorf("response body length = %d, want 16", len(res.ResponseBody))
	}
}

func TestDispatcherSendTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewDispatcher(DispatcherConfig{Timeout: 20 * time.Millisecond})
	res := d.Send(context.Background(), testSubscription(srv.URL), testEnvelope(t), 1)

	if res.Success {
		t.Fatal("Send() reported success on a timeout")
	}
	var terr *TransportError
	if !errors.As(res.Err, &terr) {
		t.Fatalf("err = %T, want *TransportError", res.Err)
	}
	if reason := FailureReason(res.Err); reason != "timeout" {
		t.Errorf("failure reason = %s, want timeout", reason)
	}
	if !Retryable(res.Err) {
		t.Error("timeout should be retryable")
	}
}

func TestDispatcherSendConnectionRefused(t *testing.T) {
	// Bind then close so the port is almost certainly unoccupied
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	target := srv.URL
	srv.Close()

	d := NewDispatcher(DispatcherConfig{Timeout: time.Second})
	res := d.Send(context.Background(), testSubscription(target), testEnvelope(t), 1)

	var terr *TransportError
	if !errors.As(res.Err, &terr) {
		t.Fatalf("err = %T, want *TransportError", res.Err)
	}
}

func TestDispatcherSendConfigErrors(t *testing.T) {
	var requests atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
	}))
	defer srv.Close()

	tests := []struct {
		name string
		sub  Subscription
	}{
		{
			name: "empty secret",
			sub: Subscription{
				ID:        "wh-1",
				TargetURL: srv.URL,
				SecretKey: nil,
			},
		},
		{
			name: "malformed url",
			sub: Subscription{
				ID:        "wh-2",
				TargetURL: "://not-a-url",
				SecretKey: []byte("s"),
			},
		},
		{
			name: "unsupported scheme",
			sub: Subscription{
				ID:        "wh-3",
				TargetURL: "ftp://example.com/hook",
				SecretKey: []byte("s"),
			},
		},
		{
			name: "missing host",
			sub: Subscription{
				ID:        "wh-4",
				TargetURL: "http://",
				SecretKey: []byte("s"),
			},
		},
	}

	d := NewDispatcher(DispatcherConfig{})
	env := testEnvelope(t)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := d.Send(context.Background(), tt.sub, env, 1)
			var cfgErr *ConfigError
			if !errors.As(res.Err, &cfgErr) {
				t.Fatalf("err = %T (%v), want *ConfigError", res.Err, res.Err)
			}
			if Retryable(res.Err) {
				t.Error("config error should not be retryable")
			}
		})
	}

	if n := requests.Load(); n != 0 {
		t.Errorf("misconfigured subscriptions made %d network calls, want 0", n)
	}
}
