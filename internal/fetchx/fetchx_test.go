package fetchx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func fastPolicy(maxRetries int) Policy {
	p := DefaultPolicy()
	p.MaxRetries = maxRetries
	p.BaseDelay = 5 * time.Millisecond
	p.MaxDelay = 50 * time.Millisecond
	return p
}

func TestRetriesUntilSuccess(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&attempts, 1) <= 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	resp, err := Do(context.Background(), srv.Client(), Request{URL: srv.URL}, fastPolicy(3))
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if got := atomic.LoadInt32(&attempts); got != 4 {
		t.Fatalf("attempts = %d, want maxRetries+1 = 4", got)
	}
}

func TestNonRetryableReturnedImmediately(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	resp, err := Do(context.Background(), srv.Client(), Request{URL: srv.URL}, fastPolicy(3))
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Fatalf("attempts = %d, want 1", got)
	}
}

func TestRetryableExhaustionReturnsLastResponse(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	resp, err := Do(context.Background(), srv.Client(), Request{URL: srv.URL}, fastPolicy(2))
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", resp.StatusCode)
	}
	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Fatalf("attempts = %d, want 3", got)
	}
}

func TestRetryAfterHeaderPreferred(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.Header().Set("Retry-After", "2")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	start := time.Now()
	resp, err := Do(context.Background(), srv.Client(), Request{URL: srv.URL}, fastPolicy(1))
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", resp.StatusCode)
	}
	if elapsed := time.Since(start); elapsed < 2*time.Second {
		t.Fatalf("elapsed = %s, want >= 2s from Retry-After hint", elapsed)
	}
}

func TestNetworkErrorExhaustion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	srv.Close() // every attempt now fails at the dial

	_, err := Do(context.Background(), http.DefaultClient, Request{URL: srv.URL}, fastPolicy(2))
	if err == nil {
		t.Fatalf("expected error after exhausting retries against closed server")
	}
}

func TestContextCancelDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := Do(ctx, srv.Client(), Request{URL: srv.URL}, fastPolicy(3))
	if err == nil {
		t.Fatalf("expected context error")
	}
	if time.Since(start) > 5*time.Second {
		t.Fatalf("backoff sleep ignored context cancellation")
	}
}

func TestRetryAfterParsing(t *testing.T) {
	now := time.Now()

	resp := &http.Response{Header: http.Header{}}
	resp.Header.Set("Retry-After", "3")
	if got := retryAfter(resp, now); got != 3*time.Second {
		t.Fatalf("seconds form = %s, want 3s", got)
	}

	resp.Header.Set("Retry-After", now.Add(5*time.Second).UTC().Format(http.TimeFormat))
	if got := retryAfter(resp, now); got <= 0 || got > 5*time.Second {
		t.Fatalf("date form = %s, want (0, 5s]", got)
	}

	// A date in the past clamps to zero.
	resp.Header.Set("Retry-After", now.Add(-time.Minute).UTC().Format(http.TimeFormat))
	if got := retryAfter(resp, now); got != 0 {
		t.Fatalf("past date = %s, want 0", got)
	}

	resp.Header.Set("Retry-After", "garbage")
	if got := retryAfter(resp, now); got != 0 {
		t.Fatalf("garbage = %s, want 0", got)
	}
}

func TestBackoffBounds(t *testing.T) {
	p := Policy{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second}
	if got := backoff(p, 0); got != 100*time.Millisecond {
		t.Fatalf("attempt 0 = %s, want 100ms", got)
	}
	if got := backoff(p, 2); got != 400*time.Millisecond {
		t.Fatalf("attempt 2 = %s, want 400ms", got)
	}
	if got := backoff(p, 10); got != time.Second {
		t.Fatalf("attempt 10 = %s, want capped at 1s", got)
	}
}
