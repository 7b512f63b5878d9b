package extract

import (
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
)

// Metrics tracks operational counters across all extractors in the process.
var metrics struct {
	WatchPageFetches  atomic.Int64
	PlayerCalls       atomic.Int64
	TimedTextFetches  atomic.Int64
	Retries           atomic.Int64
	Blocks            atomic.Int64
	KeyFallbackHits   atomic.Int64
	KeyPatternHits    atomic.Int64
	TranscriptsParsed atomic.Int64
}

// GetMetrics returns a snapshot of all counters.
func GetMetrics() map[string]int64 {
	return map[string]int64{
		"watch_page_fetches": metrics.WatchPageFetches.Load(),
		"player_calls":       metrics.PlayerCalls.Load(),
		"timedtext_fetches":  metrics.TimedTextFetches.Load(),
		"retries":            metrics.Retries.Load(),
		"blocks":             metrics.Blocks.Load(),
		"key_fallback_hits":  metrics.KeyFallbackHits.Load(),
		"key_pattern_hits":   metrics.KeyPatternHits.Load(),
		"transcripts_parsed": metrics.TranscriptsParsed.Load(),
	}
}

// FormatMetrics returns counters as a simple text block for the metrics
// endpoint.
func FormatMetrics() string {
	snapshot := GetMetrics()
	keys := make([]string, 0, len(snapshot))
	for k := range snapshot {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&sb, "%s %d\n", k, snapshot[k])
	}
	return sb.String()
}
