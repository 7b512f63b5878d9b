package proxypool

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	xproxy "golang.org/x/net/proxy"
)

// healthCheckConcurrency bounds parallel probes so a large pool does not open
// hundreds of sockets at once.
const healthCheckConcurrency = 5

// Transport builds an *http.Transport routing through p. For http/https
// proxies it uses the standard Proxy field; socks5 proxies dial through
// x/net/proxy.
func (p *Proxy) Transport(timeout time.Duration) (*http.Transport, error) {
	dialer := &net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}

	if p.Scheme == "socks5" {
		var auth *xproxy.Auth
		if p.Username != "" {
			auth = &xproxy.Auth{User: p.Username, Password: p.Password}
		}
		sd, err := xproxy.SOCKS5("tcp", fmt.Sprintf("%s:%d", p.Address, p.Port), auth, dialer)
		if err != nil {
			return nil, fmt.Errorf("proxypool: socks5 dialer: %w", err)
		}
		cd, ok := sd.(xproxy.ContextDialer)
		if !ok {
			return nil, fmt.Errorf("proxypool: socks5 dialer does not support context")
		}
		return &http.Transport{
			DialContext:         cd.DialContext,
			TLSHandshakeTimeout: timeout / 2,
			IdleConnTimeout:     timeout,
		}, nil
	}

	return &http.Transport{
		Proxy:               http.ProxyURL(p.URL()),
		DialContext:         dialer.DialContext,
		TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
		TLSHandshakeTimeout: timeout / 2,
		IdleConnTimeout:     timeout,
	}, nil
}

// HealthCheckAll probes every proxy with a GET against targetURL and flips
// its active status on the outcome. Failure counters are left untouched: a
// health probe is not a request-level failure. Results are keyed by proxy
// display name.
func (pl *Pool) HealthCheckAll(ctx context.Context, targetURL string, timeout time.Duration) map[string]bool {
	pl.mu.Lock()
	proxies := make([]*Proxy, len(pl.proxies))
	copy(proxies, pl.proxies)
	pl.mu.Unlock()

	slog.Info("health check starting",
		slog.Int("proxies", len(proxies)), slog.String("target", targetURL))

	results := make(map[string]bool, len(proxies))
	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, healthCheckConcurrency)

	for _, p := range proxies {
		wg.Add(1)
		sem <- struct{}{}
		go func(p *Proxy) {
			defer wg.Done()
			defer func() { <-sem }()

			healthy := pl.probe(ctx, p, targetURL, timeout)

			pl.mu.Lock()
			p.active = healthy
			pl.mu.Unlock()

			mu.Lock()
			results[p.DisplayName()] = healthy
			mu.Unlock()
		}(p)
	}
	wg.Wait()

	healthyCount := 0
	for _, ok := range results {
		if ok {
			healthyCount++
		}
	}
	slog.Info("health check finished",
		slog.Int("healthy", healthyCount), slog.Int("total", len(proxies)))
	return results
}

func (pl *Pool) probe(ctx context.Context, p *Proxy, targetURL string, timeout time.Duration) bool {
	transport, err := p.Transport(timeout)
	if err != nil {
		slog.Warn("health check: transport", slog.String("proxy", p.DisplayName()), slog.Any("error", err))
		return false
	}
	client := &http.Client{Transport: transport, Timeout: timeout}
	defer client.CloseIdleConnections()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		slog.Debug("health check: probe failed", slog.String("proxy", p.DisplayName()), slog.Any("error", err))
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode >= 200 && resp.StatusCode < 400
}
