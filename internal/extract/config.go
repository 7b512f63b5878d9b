package extract

import (
	"time"

	"github.com/anatolykoptev/go-transcript/internal/proxypool"
)

// Options holds all extractor configuration, injected from main.
type Options struct {
	// Timeout applies per HTTP request.
	Timeout time.Duration
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// BackoffFactor scales the exponential retry delay:
	// BackoffFactor * 2^(attempt-1) seconds before retry number attempt.
	BackoffFactor float64
	// MinDelay is the global minimum spacing between outbound requests.
	MinDelay time.Duration
	// Jitter is the extra random wait added after the MinDelay gate.
	Jitter time.Duration

	// Pool routes requests through rotating proxies when non-nil.
	Pool *proxypool.Pool
	// RequireProxy makes an exhausted pool fatal instead of falling back to
	// direct requests.
	RequireProxy bool

	// Language is the default caption language when the caller requests none.
	Language string
}

// DefaultOptions mirror the tuning the extractor shipped with: generous
// timeout, three retries, two seconds between requests.
func DefaultOptions() Options {
	return Options{
		Timeout:       30 * time.Second,
		MaxRetries:    3,
		BackoffFactor: 0.75,
		MinDelay:      2 * time.Second,
		Jitter:        time.Second,
		Language:      "en",
	}
}

func (o *Options) withDefaults() Options {
	res := *o
	def := DefaultOptions()
	if res.Timeout <= 0 {
		res.Timeout = def.Timeout
	}
	if res.MaxRetries < 0 {
		res.MaxRetries = def.MaxRetries
	}
	if res.BackoffFactor <= 0 {
		res.BackoffFactor = def.BackoffFactor
	}
	if res.Language == "" {
		res.Language = def.Language
	}
	return res
}
