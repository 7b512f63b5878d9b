package extract

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/anatolykoptev/go-transcript/internal/proxypool"
)

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func fakeResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

// newTestExecutor wires a fake transport in place of real clients. Backoff is
// kept tiny so exhaustion tests stay fast.
func newTestExecutor(opts Options, rt roundTripperFunc) *executor {
	if opts.BackoffFactor == 0 {
		opts.BackoffFactor = 0.001
	}
	if opts.Timeout == 0 {
		opts.Timeout = 5 * time.Second
	}
	e := newExecutor(opts, NewLimiter(0, 0))
	e.newClient = func(*proxypool.Proxy) (*http.Client, error) {
		return &http.Client{Transport: rt, Timeout: opts.Timeout}, nil
	}
	return e
}

func TestExecutorSuccessFirstAttempt(t *testing.T) {
	var calls int32
	e := newTestExecutor(Options{MaxRetries: 3}, func(*http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		return fakeResponse(200, "payload"), nil
	})

	body, err := e.do(context.Background(), request{method: http.MethodGet, url: "http://test.invalid/"})
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	if string(body) != "payload" {
		t.Errorf("body = %q", body)
	}
	if calls != 1 {
		t.Errorf("expected 1 attempt, got %d", calls)
	}
}

func TestExecutorRetriesTransientThenSucceeds(t *testing.T) {
	var calls int32
	e := newTestExecutor(Options{MaxRetries: 3}, func(*http.Request) (*http.Response, error) {
		if atomic.AddInt32(&calls, 1) < 3 {
			return fakeResponse(503, "unavailable"), nil
		}
		return fakeResponse(200, "finally"), nil
	})

	body, err := e.do(context.Background(), request{method: http.MethodGet, url: "http://test.invalid/"})
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	if string(body) != "finally" {
		t.Errorf("body = %q", body)
	}
	if calls != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}
}

func TestExecutorTransientExhaustion(t *testing.T) {
	var calls int32
	e := newTestExecutor(Options{MaxRetries: 2}, func(*http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		return nil, &net.OpError{Op: "dial", Err: errors.New("connection reset")}
	})

	_, err := e.do(context.Background(), request{method: http.MethodGet, url: "http://test.invalid/"})
	var netErr *NetworkTimeoutError
	if !errors.As(err, &netErr) {
		t.Fatalf("err = %v, want NetworkTimeoutError", err)
	}
	if netErr.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3 (initial + 2 retries)", netErr.Attempts)
	}
	if calls != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", calls)
	}
}

// The wait before retry k is BackoffFactor * 2^(k-1) seconds plus up to
// 500ms of random extra, so two retries at factor 0.05 must take at least
// 0.05*(1+2)=150ms and at most that plus both jitter draws.
func TestExecutorBackoffSchedule(t *testing.T) {
	var calls int32
	e := newTestExecutor(Options{MaxRetries: 2, BackoffFactor: 0.05}, func(*http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		return fakeResponse(503, "unavailable"), nil
	})

	start := time.Now()
	_, err := e.do(context.Background(), request{method: http.MethodGet, url: "http://test.invalid/"})
	elapsed := time.Since(start)

	var netErr *NetworkTimeoutError
	if !errors.As(err, &netErr) {
		t.Fatalf("err = %v, want NetworkTimeoutError", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
	min := 150 * time.Millisecond
	if elapsed < min {
		t.Errorf("two retries took %v, want at least %v", elapsed, min)
	}
	if max := min + 2*500*time.Millisecond + 500*time.Millisecond; elapsed > max {
		t.Errorf("two retries took %v, want under %v", elapsed, max)
	}
}

func TestExecutorBlockedExhaustion(t *testing.T) {
	for _, status := range []int{403, 429} {
		var calls int32
		e := newTestExecutor(Options{MaxRetries: 1}, func(*http.Request) (*http.Response, error) {
			atomic.AddInt32(&calls, 1)
			return fakeResponse(status, "denied"), nil
		})

		_, err := e.do(context.Background(), request{method: http.MethodGet, url: "http://test.invalid/"})
		if !errors.Is(err, ErrIPBlocked) {
			t.Errorf("status %d: err = %v, want ErrIPBlocked", status, err)
		}
		if calls != 2 {
			t.Errorf("status %d: expected 2 attempts, got %d", status, calls)
		}
	}
}

func TestExecutorBlockSignatureInBody(t *testing.T) {
	e := newTestExecutor(Options{MaxRetries: 0}, func(*http.Request) (*http.Response, error) {
		return fakeResponse(200, "<html>please solve this reCAPTCHA to continue</html>"), nil
	})

	_, err := e.do(context.Background(), request{method: http.MethodGet, url: "http://test.invalid/"})
	if !errors.Is(err, ErrIPBlocked) {
		t.Fatalf("err = %v, want ErrIPBlocked", err)
	}
}

func TestExecutorPermanentFailureNoRetry(t *testing.T) {
	var calls int32
	e := newTestExecutor(Options{MaxRetries: 3}, func(*http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		return fakeResponse(404, "not found"), nil
	})

	_, err := e.do(context.Background(), request{method: http.MethodGet, url: "http://test.invalid/"})
	var statusErr *httpStatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != 404 {
		t.Fatalf("err = %v, want HTTP 404", err)
	}
	if calls != 1 {
		t.Errorf("permanent failure must not retry, got %d attempts", calls)
	}
}

func TestExecutorLastOutcomeDecidesError(t *testing.T) {
	// Blocked first, transient last: exhaustion reports the network error,
	// not a block.
	var calls int32
	e := newTestExecutor(Options{MaxRetries: 1}, func(*http.Request) (*http.Response, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return fakeResponse(429, "slow down"), nil
		}
		return fakeResponse(500, "boom"), nil
	})

	_, err := e.do(context.Background(), request{method: http.MethodGet, url: "http://test.invalid/"})
	if errors.Is(err, ErrIPBlocked) {
		t.Fatalf("err = %v, want NetworkTimeoutError since the last attempt was transient", err)
	}
	var netErr *NetworkTimeoutError
	if !errors.As(err, &netErr) {
		t.Fatalf("err = %v, want NetworkTimeoutError", err)
	}
}

func TestExecutorRotatesProxiesOnBlock(t *testing.T) {
	proxies := []*proxypool.Proxy{
		{Address: "10.0.0.1", Port: 8080, Scheme: "http"},
		{Address: "10.0.0.2", Port: 8080, Scheme: "http"},
	}
	pool := proxypool.New(proxies, proxypool.Options{
		Strategy:    proxypool.StrategyRoundRobin,
		MaxFailures: 1,
		Cooldown:    time.Hour,
	})

	e := newTestExecutor(Options{MaxRetries: 2, Pool: pool}, func(*http.Request) (*http.Response, error) {
		return fakeResponse(403, "forbidden"), nil
	})

	_, err := e.do(context.Background(), request{method: http.MethodGet, url: "http://test.invalid/"})
	if !errors.Is(err, ErrIPBlocked) {
		t.Fatalf("err = %v, want ErrIPBlocked", err)
	}
	if st := pool.Snapshot(); st.Active != 0 {
		t.Errorf("expected every proxy deactivated after repeated blocks, %d still active", st.Active)
	}
}

func TestExecutorRequireProxyExhausted(t *testing.T) {
	pool := proxypool.New([]*proxypool.Proxy{
		{Address: "10.0.0.1", Port: 8080, Scheme: "http"},
	}, proxypool.Options{MaxFailures: 1, Cooldown: time.Hour})

	e := newTestExecutor(Options{MaxRetries: 3, Pool: pool, RequireProxy: true},
		func(*http.Request) (*http.Response, error) {
			return fakeResponse(403, "forbidden"), nil
		})

	_, err := e.do(context.Background(), request{method: http.MethodGet, url: "http://test.invalid/"})
	if !errors.Is(err, ErrProxyExhausted) {
		t.Fatalf("err = %v, want ErrProxyExhausted", err)
	}
}

func TestExecutorContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	e := newTestExecutor(Options{MaxRetries: 5}, func(*http.Request) (*http.Response, error) {
		cancel()
		return fakeResponse(500, "boom"), nil
	})

	_, err := e.do(ctx, request{method: http.MethodGet, url: "http://test.invalid/"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"op error", &net.OpError{Op: "dial", Err: errors.New("refused")}, true},
		{"dns error", &net.DNSError{Name: "host.invalid"}, true},
		{"dns timeout", &net.DNSError{Name: "host.invalid", IsTimeout: true}, true},
		{"plain error", errors.New("nope"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isTransient(tt.err); got != tt.want {
				t.Errorf("isTransient() = %v, want %v", got, tt.want)
			}
		})
	}
}
