// Package transcript defines the timed-text segment model and utilities for
// rendering and analyzing caption sequences: SRT export, text cleanup,
// keyword extraction, search, and statistics.
package transcript

import (
	"fmt"
	"strings"
)

// Segment is a single timed caption line. Start and Duration are seconds.
// Text is entity-decoded plain text; it may be empty when the source carries
// a timing-only cue. Segments are value objects and never mutated after parse.
type Segment struct {
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
	Text     string  `json:"text"`
}

// End returns the segment end offset in seconds.
func (s Segment) End() float64 {
	return s.Start + s.Duration
}

// Timestamp formats an offset in seconds as MM:SS, or HH:MM:SS past one hour.
func Timestamp(seconds float64) string {
	total := int(seconds)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

// JoinText concatenates non-empty segment texts with single spaces.
func JoinText(segments []Segment) string {
	var sb strings.Builder
	for _, seg := range segments {
		if seg.Text == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(seg.Text)
	}
	return sb.String()
}

// FormatTimestamped renders segments as "[MM:SS] text" lines, one per segment
// with non-empty text.
func FormatTimestamped(segments []Segment) string {
	lines := make([]string, 0, len(segments))
	for _, seg := range segments {
		if seg.Text == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("[%s] %s", Timestamp(seg.Start), seg.Text))
	}
	return strings.Join(lines, "\n")
}
