// Package fetchx wraps a single outbound HTTP call with bounded
// exponential-backoff retry, honoring server-supplied Retry-After hints.
//
// It knows nothing about wall-clock budgets: callers operating under a shared
// deadline must check it themselves and budget for the worst-case sum of
// backoff delays.
package fetchx

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"site-orchestrator/internal/telemetry"
)

// Policy controls the retry schedule for one call site.
type Policy struct {
	MaxRetries      int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	RetryableStatus map[int]bool
}

// DefaultPolicy is the system-wide retry configuration.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: 3,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   10 * time.Second,
		RetryableStatus: map[int]bool{
			http.StatusTooManyRequests:    true,
			http.StatusBadGateway:         true,
			http.StatusServiceUnavailable: true,
			http.StatusGatewayTimeout:     true,
		},
	}
}

// Request describes one outbound call. The body is held as bytes so the
// request can be rebuilt on every attempt.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Do performs the request, retrying retryable statuses and network-level
// errors up to p.MaxRetries. A successful or non-retryable response is
// returned immediately without consuming remaining retries. After retries are
// exhausted the last response (or last network error) is surfaced.
func Do(ctx context.Context, client *http.Client, req Request, p Policy) (*http.Response, error) {
	if client == nil {
		client = http.DefaultClient
	}
	if p.RetryableStatus == nil {
		p.RetryableStatus = DefaultPolicy().RetryableStatus
	}
	if req.Method == "" {
		req.Method = http.MethodGet
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		resp, err := attemptOnce(ctx, client, req)
		if err == nil {
			if !p.RetryableStatus[resp.StatusCode] || attempt >= p.MaxRetries {
				return resp, nil
			}
			delay := retryAfter(resp, time.Now())
			if delay <= 0 {
				delay = backoff(p, attempt)
			}
			// The retried response body is never read; drain so the
			// connection can be reused.
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			log.Debug().Str("url", req.URL).Int("status", resp.StatusCode).Dur("delay", delay).Int("attempt", attempt+1).Msg("retrying fetch")
			telemetry.FetchRetries.Inc()
			if err := sleep(ctx, delay); err != nil {
				return nil, err
			}
			continue
		}

		lastErr = err
		if attempt >= p.MaxRetries {
			return nil, fmt.Errorf("fetch %s: %w (after %d attempts)", req.URL, lastErr, attempt+1)
		}
		delay := backoff(p, attempt)
		log.Debug().Str("url", req.URL).Err(err).Dur("delay", delay).Int("attempt", attempt+1).Msg("retrying fetch after network error")
		telemetry.FetchRetries.Inc()
		if err := sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

func attemptOnce(ctx context.Context, client *http.Client, req Request) (*http.Response, error) {
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, err
	}
	for key, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	return client.Do(httpReq)
}

// backoff computes min(base * 2^attempt, max).
func backoff(p Policy, attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = DefaultPolicy().BaseDelay
	}
	max := p.MaxDelay
	if max <= 0 {
		max = DefaultPolicy().MaxDelay
	}
	d := base << uint(attempt)
	if d > max || d <= 0 {
		d = max
	}
	return d
}

// retryAfter parses a Retry-After header as integer seconds or an HTTP date,
// clamped at zero. It returns 0 when the header is absent or unparseable.
func retryAfter(resp *http.Response, now time.Time) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
