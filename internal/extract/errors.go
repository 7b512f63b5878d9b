package extract

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Sentinel errors for conditions with no extra payload. Callers distinguish
// failure kinds with errors.Is / errors.As; none of these are retried once
// surfaced.
var (
	// ErrNoTranscript means the video is playable but exposes zero caption
	// tracks.
	ErrNoTranscript = errors.New("no transcript available for this video")

	// ErrProxyExhausted means proxy usage is mandatory but the pool had no
	// active proxy to offer.
	ErrProxyExhausted = errors.New("proxy pool exhausted: no active proxy")

	// ErrKeyExtraction means every credential strategy failed. The whole
	// operation may be retried later; the key material itself cannot be.
	ErrKeyExtraction = errors.New("api key extraction failed: all strategies exhausted")

	// ErrIPBlocked means the platform answered with a block or challenge on
	// every attempt, across proxy rotations.
	ErrIPBlocked = errors.New("blocked by platform (captcha or rate limit)")
)

// InvalidVideoIDError reports input that could not be resolved to a video ID.
type InvalidVideoIDError struct {
	Input string
}

func (e *InvalidVideoIDError) Error() string {
	return fmt.Sprintf("invalid video identifier %q", e.Input)
}

// LanguageNotAvailableError reports a requested caption language that the
// video does not carry, along with what it does carry.
type LanguageNotAvailableError struct {
	Requested string
	Available []string
}

func (e *LanguageNotAvailableError) Error() string {
	return fmt.Sprintf("no transcript for language %q (available: %s)",
		e.Requested, strings.Join(e.Available, ", "))
}

// NetworkTimeoutError wraps the last transport error after retries are
// exhausted.
type NetworkTimeoutError struct {
	Attempts int
	Err      error
}

func (e *NetworkTimeoutError) Error() string {
	return fmt.Sprintf("network failure after %d attempts: %v", e.Attempts, e.Err)
}

func (e *NetworkTimeoutError) Unwrap() error { return e.Err }

// ParseError reports caption markup that violated structural or ordering
// invariants. Dialect and Size identify the offending input for diagnosis.
type ParseError struct {
	Dialect string
	Size    int
	Reason  string
	Err     error
}

func (e *ParseError) Error() string {
	msg := fmt.Sprintf("parse %s markup (%d bytes): %s", e.Dialect, e.Size, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() error { return e.Err }

// UnplayableError reports a video the platform refuses to play, carrying the
// platform's status for the message.
type UnplayableError struct {
	Status string
	Reason string
}

func (e *UnplayableError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("video unplayable (%s): %s", e.Status, e.Reason)
	}
	return fmt.Sprintf("video unplayable (%s)", e.Status)
}

// httpStatusError wraps a non-success HTTP status for retry classification.
type httpStatusError struct {
	StatusCode int
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("HTTP %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}
