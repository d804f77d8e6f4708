package main

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/payhuk02/payhula-sub024/internal/config"
	"github.com/payhuk02/payhula-sub024/internal/webhook"
)

type receiver struct {
	cfg      config.FakeReceiver
	sigHdr   string
	reqCount atomic.Int64 // the HTTP server handles hooks concurrently
}

func main() {
	cfg := config.FromEnv()

	rcv := &receiver{
		cfg:    cfg.FakeReceiver,
		sigHdr: cfg.Delivery.SignatureHeader,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte(`{"ok":true}`)) })
	mux.HandleFunc("/hook", rcv.handleHook)

	srv := &http.Server{
		Addr:         cfg.FakeReceiver.Port,
		Handler:      mux,
		ReadTimeout:  cfg.FakeReceiver.ReadTimeout,
		WriteTimeout: cfg.FakeReceiver.WriteTimeout,
		IdleTimeout:  cfg.FakeReceiver.IdleTimeout,
	}
	log.Printf("fake-receiver listening on %s", srv.Addr)
	log.Fatal(srv.ListenAndServe())
}

func (rc *receiver) handleHook(w http.ResponseWriter, r *http.Request) {
	reqNum := rc.reqCount.Add(1)
	b, _ := io.ReadAll(r.Body)
	defer r.Body.Close()

	if rc.cfg.ResponseDelayMS > 0 {
		time.Sleep(time.Duration(rc.cfg.ResponseDelayMS) * time.Millisecond)
	}

	if rc.cfg.EndpointSecret != "" {
		sig := r.Header.Get(rc.sigHdr)
		if sig == "" {
			log.Printf("fake-receiver missing signature header %s", rc.sigHdr)
			http.Error(w, "missing signature", http.StatusUnauthorized)
			return
		}
		// Verify over the exact bytes received, same as any real receiver
		if !webhook.VerifySignature(b, []byte(rc.cfg.EndpointSecret), sig) {
			log.Printf("fake-receiver signature mismatch for event %s", r.Header.Get("X-Payhula-Event-Id"))
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}
	}

	// Simulate flakiness: first N requests -> 500
	if reqNum <= int64(rc.cfg.FailFirstN) {
		log.Printf("FAILING (%d/%d) %s headers=%d body=%s", reqNum, rc.cfg.FailFirstN, r.URL.Path, len(r.Header), truncate(string(b), 160))
		http.Error(w, "temporary failure", http.StatusInternalServerError)
		return
	}

	log.Printf("fake-receiver OK %s event=%s headers=%d body=%q",
		r.URL.Path, r.Header.Get("X-Payhula-Event"), len(r.Header), truncate(string(b), 160))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`ok`))
}

// truncate truncates a string to the specified length and adds an ellipsis if truncated
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return fmt.Sprintf("%s...", s[:n])
}
