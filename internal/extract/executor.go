package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/anatolykoptev/go-transcript/internal/proxypool"
)

// maxResponseBytes caps how much of any response body is read. Watch pages
// run to a few MB; caption XML and API JSON are far smaller.
const maxResponseBytes = 6 * 1024 * 1024

// blockSignatures are body substrings that mean the platform served a
// challenge page instead of content, regardless of status code.
var blockSignatures = []string{
	"recaptcha",
	"unusual traffic from your computer network",
	"/sorry/index",
}

// request describes one outbound HTTP call for the executor.
type request struct {
	method  string
	url     string
	headers map[string]string
	body    []byte
}

// executor issues HTTP calls through the shared rate limiter and proxy pool,
// applying the retry and rotation policy. A single executor is shared by all
// operations of one extractor.
type executor struct {
	opts    Options
	limiter *Limiter
	pool    *proxypool.Pool

	// newClient builds the HTTP client for an attempt; tests replace it to
	// fake transports. proxy is nil for a direct connection.
	newClient func(proxy *proxypool.Proxy) (*http.Client, error)

	mu  sync.Mutex
	rng *rand.Rand
}

func newExecutor(opts Options, limiter *Limiter) *executor {
	e := &executor{
		opts:    opts,
		limiter: limiter,
		pool:    opts.Pool,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())), //nolint:gosec // retry jitter
	}
	e.newClient = e.buildClient
	return e
}

func (e *executor) buildClient(proxy *proxypool.Proxy) (*http.Client, error) {
	if proxy == nil {
		return &http.Client{
			Timeout: e.opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     30 * time.Second,
				TLSHandshakeTimeout: 15 * time.Second,
			},
		}, nil
	}
	transport, err := proxy.Transport(e.opts.Timeout)
	if err != nil {
		return nil, err
	}
	return &http.Client{Timeout: e.opts.Timeout, Transport: transport}, nil
}

// outcome classifies one attempt for the retry policy.
type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeTransient
	outcomeBlocked
	outcomePermanent
)

// do runs the full request policy: rate limit, proxy selection, attempt,
// classification, retry with exponential backoff and proxy rotation.
func (e *executor) do(ctx context.Context, req request) ([]byte, error) {
	var lastErr error
	lastOutcome := outcomeTransient

	for attempt := 0; attempt <= e.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			metrics.Retries.Add(1)
			if err := e.sleepBackoff(ctx, attempt); err != nil {
				return nil, err
			}
		}

		if err := e.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		proxy, err := e.selectProxy()
		if err != nil {
			return nil, err
		}

		body, oc, attemptErr := e.attempt(ctx, req, proxy)
		switch oc {
		case outcomeSuccess:
			if proxy != nil {
				e.pool.MarkSuccess(proxy)
			}
			return body, nil
		case outcomePermanent:
			return nil, attemptErr
		case outcomeBlocked:
			metrics.Blocks.Add(1)
			if proxy != nil {
				e.pool.MarkFailure(proxy)
			}
		case outcomeTransient:
			if proxy != nil {
				e.pool.MarkFailure(proxy)
			}
		}
		lastErr = attemptErr
		lastOutcome = oc
		slog.Warn("request failed",
			slog.String("url", req.url),
			slog.Int("attempt", attempt+1),
			slog.Int("max", e.opts.MaxRetries+1),
			slog.Any("error", attemptErr))

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	if lastOutcome == outcomeBlocked {
		return nil, fmt.Errorf("%w: %v", ErrIPBlocked, lastErr)
	}
	return nil, &NetworkTimeoutError{Attempts: e.opts.MaxRetries + 1, Err: lastErr}
}

// selectProxy picks a proxy for this attempt, honoring RequireProxy.
func (e *executor) selectProxy() (*proxypool.Proxy, error) {
	if e.pool == nil {
		return nil, nil
	}
	proxy, err := e.pool.Next()
	if err != nil {
		if errors.Is(err, proxypool.ErrNoActiveProxy) && !e.opts.RequireProxy {
			slog.Debug("proxy pool exhausted, continuing direct")
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrProxyExhausted, err)
	}
	return proxy, nil
}

// attempt performs a single HTTP call and classifies the result.
func (e *executor) attempt(ctx context.Context, req request, proxy *proxypool.Proxy) ([]byte, outcome, error) {
	client, err := e.newClient(proxy)
	if err != nil {
		return nil, outcomeTransient, err
	}

	var bodyReader io.Reader
	if req.body != nil {
		bodyReader = bytes.NewReader(req.body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, req.url, bodyReader)
	if err != nil {
		return nil, outcomePermanent, err
	}
	for k, v := range req.headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, outcomePermanent, ctx.Err()
		}
		if isTransient(err) {
			return nil, outcomeTransient, err
		}
		return nil, outcomePermanent, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, outcomeTransient, err
	}

	switch {
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests:
		return nil, outcomeBlocked, &httpStatusError{resp.StatusCode}
	case resp.StatusCode >= 500:
		return nil, outcomeTransient, &httpStatusError{resp.StatusCode}
	case resp.StatusCode >= 400:
		return nil, outcomePermanent, &httpStatusError{resp.StatusCode}
	}

	if sig := matchBlockSignature(body); sig != "" {
		return nil, outcomeBlocked, fmt.Errorf("block signature %q in response body", sig)
	}
	return body, outcomeSuccess, nil
}

// sleepBackoff waits BackoffFactor * 2^(attempt-1) seconds plus up to 500ms
// of jitter before retry number attempt.
func (e *executor) sleepBackoff(ctx context.Context, attempt int) error {
	delay := time.Duration(e.opts.BackoffFactor * math.Pow(2, float64(attempt-1)) * float64(time.Second))
	e.mu.Lock()
	delay += time.Duration(e.rng.Int63n(int64(500 * time.Millisecond)))
	e.mu.Unlock()

	slog.Debug("retry backoff", slog.Int("attempt", attempt), slog.Duration("wait", delay))
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// isTransient reports whether a transport error is worth retrying:
// connection failures, DNS errors, and timeouts.
func isTransient(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	// url.Error wrapping client timeouts reports Timeout through net.Error,
	// handled above. Anything else is not retryable.
	return false
}

func matchBlockSignature(body []byte) string {
	lower := bytes.ToLower(body)
	for _, sig := range blockSignatures {
		if bytes.Contains(lower, []byte(sig)) {
			return sig
		}
	}
	return ""
}
