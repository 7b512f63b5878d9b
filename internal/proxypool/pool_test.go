package proxypool

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testProxies(n int) []*Proxy {
	proxies := make([]*Proxy, n)
	for i := range n {
		proxies[i] = &Proxy{Address: "10.0.0.1", Port: 8000 + i, Scheme: "http"}
	}
	return proxies
}

func TestParseStrategy(t *testing.T) {
	for _, s := range []string{"random", "round_robin", "least_used"} {
		got, err := ParseStrategy(s)
		require.NoError(t, err)
		assert.Equal(t, Strategy(s), got)
	}
	_, err := ParseStrategy("sticky")
	assert.Error(t, err)
}

func TestNextEmptyPool(t *testing.T) {
	pl := New(nil, DefaultOptions())
	_, err := pl.Next()
	assert.ErrorIs(t, err, ErrNoActiveProxy)
}

func TestRoundRobinCyclesInOrder(t *testing.T) {
	proxies := testProxies(3)
	opts := DefaultOptions()
	opts.Strategy = StrategyRoundRobin
	pl := New(proxies, opts)

	for i := range 7 {
		p, err := pl.Next()
		require.NoError(t, err)
		assert.Same(t, proxies[i%3], p, "selection %d", i)
	}
}

func TestRandomStaysWithinPool(t *testing.T) {
	proxies := testProxies(4)
	pl := New(proxies, DefaultOptions())

	seen := make(map[*Proxy]bool)
	for range 100 {
		p, err := pl.Next()
		require.NoError(t, err)
		seen[p] = true
	}
	for p := range seen {
		assert.Contains(t, proxies, p)
	}
}

func TestLeastUsedPicksMinimum(t *testing.T) {
	proxies := testProxies(3)
	opts := DefaultOptions()
	opts.Strategy = StrategyLeastUsed
	pl := New(proxies, opts)

	proxies[0].usage = 5
	proxies[1].usage = 1
	proxies[2].usage = 3

	p, err := pl.Next()
	require.NoError(t, err)
	assert.Same(t, proxies[1], p)
	assert.EqualValues(t, 2, proxies[1].usage, "selection increments usage")
}

func TestLeastUsedTieBreaksByInsertionOrder(t *testing.T) {
	proxies := testProxies(3)
	opts := DefaultOptions()
	opts.Strategy = StrategyLeastUsed
	pl := New(proxies, opts)

	p, err := pl.Next()
	require.NoError(t, err)
	assert.Same(t, proxies[0], p)
}

func TestMarkFailureDeactivatesAtThreshold(t *testing.T) {
	proxies := testProxies(2)
	opts := DefaultOptions()
	opts.MaxFailures = 2
	pl := New(proxies, opts)

	pl.MarkFailure(proxies[0])
	assert.True(t, proxies[0].active, "below threshold stays active")
	pl.MarkFailure(proxies[0])
	assert.False(t, proxies[0].active, "threshold reached deactivates")

	// Selection must never return the deactivated proxy.
	for range 20 {
		p, err := pl.Next()
		require.NoError(t, err)
		assert.Same(t, proxies[1], p)
	}
}

func TestMarkSuccessResetsFailuresNotActivation(t *testing.T) {
	proxies := testProxies(1)
	opts := DefaultOptions()
	opts.MaxFailures = 2
	pl := New(proxies, opts)

	pl.MarkFailure(proxies[0])
	pl.MarkSuccess(proxies[0])
	assert.Equal(t, 0, proxies[0].failures)
	assert.True(t, proxies[0].active)

	pl.MarkFailure(proxies[0])
	pl.MarkFailure(proxies[0])
	require.False(t, proxies[0].active)
	pl.MarkSuccess(proxies[0])
	assert.False(t, proxies[0].active, "success must not reactivate; cooldown does")
}

func TestReactivateExpired(t *testing.T) {
	proxies := testProxies(2)
	opts := DefaultOptions()
	opts.MaxFailures = 1
	opts.Cooldown = 5 * time.Minute
	pl := New(proxies, opts)

	pl.MarkFailure(proxies[0])
	require.False(t, proxies[0].active)

	assert.Equal(t, 0, pl.ReactivateExpired(time.Now()), "cooldown not elapsed")
	assert.False(t, proxies[0].active)

	n := pl.ReactivateExpired(time.Now().Add(6 * time.Minute))
	assert.Equal(t, 1, n)
	assert.True(t, proxies[0].active)
	assert.Equal(t, 0, proxies[0].failures, "reactivation resets the counter")
}

func TestAllDeactivatedThenRecovery(t *testing.T) {
	proxies := testProxies(2)
	opts := DefaultOptions()
	opts.MaxFailures = 1
	pl := New(proxies, opts)

	pl.MarkFailure(proxies[0])
	pl.MarkFailure(proxies[1])
	_, err := pl.Next()
	assert.ErrorIs(t, err, ErrNoActiveProxy)

	pl.ReactivateExpired(time.Now().Add(pl.opts.Cooldown))
	_, err = pl.Next()
	assert.NoError(t, err)
}

func TestSnapshot(t *testing.T) {
	proxies := testProxies(2)
	opts := DefaultOptions()
	opts.Strategy = StrategyRoundRobin
	opts.MaxFailures = 1
	pl := New(proxies, opts)

	_, err := pl.Next()
	require.NoError(t, err)
	pl.MarkFailure(proxies[1])

	st := pl.Snapshot()
	assert.Equal(t, 2, st.Total)
	assert.Equal(t, 1, st.Active)
	assert.Equal(t, StrategyRoundRobin, st.Strategy)

	first := st.ByProxy[proxies[0].DisplayName()]
	assert.EqualValues(t, 1, first.Usage)
	assert.True(t, first.Active)

	second := st.ByProxy[proxies[1].DisplayName()]
	assert.Equal(t, 1, second.Failures)
	assert.False(t, second.Active)
}

func TestProxyURL(t *testing.T) {
	p := &Proxy{Address: "proxy.example.com", Port: 8080, Scheme: "http", Username: "u", Password: "p"}
	assert.Equal(t, "http://u:p@proxy.example.com:8080", p.URL().String())
	assert.Equal(t, "http://proxy.example.com:8080", p.DisplayName(), "display name carries no credentials")
}
