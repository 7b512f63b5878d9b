// Package proxypool manages a pool of outbound proxies with rotation,
// failure tracking, cooldown-based recovery, and health checking. All state
// is owned by the Pool and mutated only through its methods, so a single
// Pool can be shared across concurrent extractions.
package proxypool

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/url"
	"sync"
	"time"
)

// Strategy selects how the next proxy is chosen from the pool.
type Strategy string

const (
	StrategyRandom     Strategy = "random"
	StrategyRoundRobin Strategy = "round_robin"
	StrategyLeastUsed  Strategy = "least_used"
)

// ParseStrategy validates a strategy name.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyRandom, StrategyRoundRobin, StrategyLeastUsed:
		return Strategy(s), nil
	}
	return "", fmt.Errorf("invalid rotation strategy %q (want random, round_robin or least_used)", s)
}

// ErrNoActiveProxy is returned by Next when the pool is empty or every proxy
// has been deactivated.
var ErrNoActiveProxy = errors.New("proxypool: no active proxy available")

// Proxy is a single upstream proxy. Health and usage fields are owned by the
// Pool; callers treat a *Proxy as an opaque handle between Next and
// MarkSuccess/MarkFailure.
type Proxy struct {
	Address  string
	Port     int
	Username string
	Password string
	Scheme   string // http, https or socks5

	active      bool
	failures    int
	lastFailure time.Time
	usage       int64
}

// URL renders the full proxy URL including credentials.
func (p *Proxy) URL() *url.URL {
	u := &url.URL{Scheme: p.Scheme, Host: fmt.Sprintf("%s:%d", p.Address, p.Port)}
	if p.Username != "" {
		u.User = url.UserPassword(p.Username, p.Password)
	}
	return u
}

// DisplayName is a credential-free identifier for logging and stats keys.
func (p *Proxy) DisplayName() string {
	return fmt.Sprintf("%s://%s:%d", p.Scheme, p.Address, p.Port)
}

// Options configures pool behavior.
type Options struct {
	Strategy    Strategy
	MaxFailures int           // consecutive failures before deactivation
	Cooldown    time.Duration // how long a deactivated proxy stays out
}

// DefaultOptions mirror the extractor defaults: random rotation, three
// strikes, five-minute cooldown.
func DefaultOptions() Options {
	return Options{
		Strategy:    StrategyRandom,
		MaxFailures: 3,
		Cooldown:    5 * time.Minute,
	}
}

// Pool holds proxies in insertion order plus rotation state.
type Pool struct {
	mu      sync.Mutex
	proxies []*Proxy
	cursor  int // round-robin position over active proxies
	opts    Options
	rng     *rand.Rand
}

// New creates a pool over the given proxies. Proxies start active with clean
// counters regardless of prior state.
func New(proxies []*Proxy, opts Options) *Pool {
	if opts.Strategy == "" {
		opts.Strategy = StrategyRandom
	}
	if opts.MaxFailures <= 0 {
		opts.MaxFailures = DefaultOptions().MaxFailures
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = DefaultOptions().Cooldown
	}
	for _, p := range proxies {
		p.active = true
		p.failures = 0
		p.usage = 0
	}
	slog.Info("proxy pool initialized",
		slog.Int("proxies", len(proxies)),
		slog.String("strategy", string(opts.Strategy)))
	return &Pool{
		proxies: proxies,
		opts:    opts,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())), //nolint:gosec // rotation, not crypto
	}
}

// Len returns the total number of proxies, active or not.
func (pl *Pool) Len() int {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	return len(pl.proxies)
}

// Next returns the next proxy per the configured strategy, or
// ErrNoActiveProxy when none is selectable. The selected proxy's usage
// counter is incremented.
func (pl *Pool) Next() (*Proxy, error) {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	active := pl.activeLocked()
	if len(active) == 0 {
		return nil, ErrNoActiveProxy
	}

	var chosen *Proxy
	switch pl.opts.Strategy {
	case StrategyRoundRobin:
		chosen = active[pl.cursor%len(active)]
		pl.cursor = (pl.cursor + 1) % len(active)
	case StrategyLeastUsed:
		chosen = active[0]
		for _, p := range active[1:] {
			if p.usage < chosen.usage {
				chosen = p
			}
		}
	default: // StrategyRandom
		chosen = active[pl.rng.Intn(len(active))]
	}

	chosen.usage++
	slog.Debug("proxy selected", slog.String("proxy", chosen.DisplayName()))
	return chosen, nil
}

func (pl *Pool) activeLocked() []*Proxy {
	active := make([]*Proxy, 0, len(pl.proxies))
	for _, p := range pl.proxies {
		if p.active {
			active = append(active, p)
		}
	}
	return active
}

// MarkFailure records a request-level failure attributable to p. Reaching
// MaxFailures deactivates the proxy and stamps the failure time for cooldown
// accounting.
func (pl *Pool) MarkFailure(p *Proxy) {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	p.failures++
	p.lastFailure = time.Now()
	slog.Warn("proxy failure",
		slog.String("proxy", p.DisplayName()),
		slog.Int("failures", p.failures),
		slog.Int("max", pl.opts.MaxFailures))

	if p.failures >= pl.opts.MaxFailures && p.active {
		p.active = false
		slog.Warn("proxy deactivated", slog.String("proxy", p.DisplayName()))
	}
}

// MarkSuccess resets p's failure counter. It does not reactivate a proxy
// that has already been deactivated; that is ReactivateExpired's job.
func (pl *Pool) MarkSuccess(p *Proxy) {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	if p.failures > 0 {
		slog.Info("proxy recovered", slog.String("proxy", p.DisplayName()))
	}
	p.failures = 0
}

// ReactivateExpired returns to active any deactivated proxy whose cooldown
// has elapsed at now, resetting its failure counter. Returns the number of
// proxies reactivated.
func (pl *Pool) ReactivateExpired(now time.Time) int {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	reactivated := 0
	for _, p := range pl.proxies {
		if p.active {
			continue
		}
		if now.Sub(p.lastFailure) >= pl.opts.Cooldown {
			p.active = true
			p.failures = 0
			reactivated++
			slog.Info("proxy reactivated", slog.String("proxy", p.DisplayName()))
		}
	}
	return reactivated
}

// ProxyStats is a point-in-time snapshot of one proxy's bookkeeping.
type ProxyStats struct {
	Usage    int64  `json:"usage"`
	Failures int    `json:"failures"`
	Active   bool   `json:"active"`
	Scheme   string `json:"scheme"`
}

// Stats is a point-in-time snapshot of the whole pool.
type Stats struct {
	Total    int                   `json:"total"`
	Active   int                   `json:"active"`
	Strategy Strategy              `json:"strategy"`
	ByProxy  map[string]ProxyStats `json:"by_proxy"`
}

// Snapshot returns current pool statistics keyed by proxy display name.
func (pl *Pool) Snapshot() Stats {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	st := Stats{
		Total:    len(pl.proxies),
		Strategy: pl.opts.Strategy,
		ByProxy:  make(map[string]ProxyStats, len(pl.proxies)),
	}
	for _, p := range pl.proxies {
		if p.active {
			st.Active++
		}
		st.ByProxy[p.DisplayName()] = ProxyStats{
			Usage:    p.usage,
			Failures: p.failures,
			Active:   p.active,
			Scheme:   p.Scheme,
		}
	}
	return st
}
