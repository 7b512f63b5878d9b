package extract

import (
	"encoding/xml"
	"fmt"
	"html"
	"log/slog"
	"strings"

	"github.com/anatolykoptev/go-transcript/internal/transcript"
)

// The platform has shipped two timedtext dialects over the years:
//
//	legacy:  <transcript><text start="1.5" dur="2.0">A &amp; B</text>...
//	current: <timedtext><body><p t="1500" d="2000"><s>A &amp; B</s></p>...
//
// Legacy timings are seconds; current timings are milliseconds. Both produce
// segments in document order.

// dialect tags which parsing path applies to a document.
type dialect int

const (
	dialectUnknown dialect = iota
	dialectLegacy
	dialectCurrent
)

func (d dialect) String() string {
	switch d {
	case dialectLegacy:
		return "legacy"
	case dialectCurrent:
		return "current"
	}
	return "unknown"
}

// startTolerance is how far a segment's start may regress behind its
// predecessor before the input is considered corrupt. Small negative deltas
// are jitter in real caption data and are logged, not fatal.
const startTolerance = 0.25

// legacyDoc matches the legacy <transcript><text> shape.
type legacyDoc struct {
	XMLName xml.Name     `xml:"transcript"`
	Texts   []legacyText `xml:"text"`
}

type legacyText struct {
	Start float64 `xml:"start,attr"`
	Dur   float64 `xml:"dur,attr"`
	Text  string  `xml:",chardata"`
}

// currentDoc matches the current <timedtext><body><p><s> shape.
type currentDoc struct {
	XMLName xml.Name `xml:"timedtext"`
	Body    struct {
		Paragraphs []currentPara `xml:"p"`
	} `xml:"body"`
}

type currentPara struct {
	T    int64        `xml:"t,attr"` // start, milliseconds
	D    int64        `xml:"d,attr"` // duration, milliseconds
	Runs []currentRun `xml:"s"`
	Text string       `xml:",chardata"`
}

type currentRun struct {
	Text string `xml:",chardata"`
}

// ParseTimedText converts raw caption markup in either dialect into an
// ordered segment sequence. The dialect is detected once by structural
// probing; empty cues are kept so timing continuity survives for downstream
// consumers.
func ParseTimedText(raw []byte) ([]transcript.Segment, error) {
	d := detectDialect(raw)

	var (
		segments []transcript.Segment
		err      error
	)
	switch d {
	case dialectLegacy:
		segments, err = parseLegacy(raw)
	case dialectCurrent:
		segments, err = parseCurrent(raw)
	default:
		return nil, &ParseError{Dialect: d.String(), Size: len(raw), Reason: "unrecognized markup structure"}
	}
	if err != nil {
		return nil, &ParseError{Dialect: d.String(), Size: len(raw), Reason: "decode", Err: err}
	}

	if err := validateOrdering(segments, d, len(raw)); err != nil {
		return nil, err
	}
	metrics.TranscriptsParsed.Add(1)
	return segments, nil
}

// detectDialect probes the markup for the dialect's distinguishing elements.
func detectDialect(raw []byte) dialect {
	s := string(raw)
	switch {
	case strings.Contains(s, "<transcript") && strings.Contains(s, "<text"):
		return dialectLegacy
	case strings.Contains(s, "<timedtext"):
		return dialectCurrent
	}
	return dialectUnknown
}

// parseLegacy handles <text start dur> elements: timings already in seconds,
// text entity-decoded verbatim.
func parseLegacy(raw []byte) ([]transcript.Segment, error) {
	var doc legacyDoc
	if err := xml.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	segments := make([]transcript.Segment, 0, len(doc.Texts))
	for _, t := range doc.Texts {
		segments = append(segments, transcript.Segment{
			Start:    t.Start,
			Duration: t.Dur,
			Text:     decodeText(t.Text),
		})
	}
	return segments, nil
}

// parseCurrent handles <p t d> paragraphs: timings in milliseconds, text the
// concatenation of nested <s> runs with no inserted separator. A paragraph
// without runs falls back to its own character data.
func parseCurrent(raw []byte) ([]transcript.Segment, error) {
	var doc currentDoc
	if err := xml.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	segments := make([]transcript.Segment, 0, len(doc.Body.Paragraphs))
	for _, p := range doc.Body.Paragraphs {
		// Runs concatenate with no inserted separator; trimming happens only
		// on the joined text so whitespace inside runs survives.
		var sb strings.Builder
		if len(p.Runs) > 0 {
			for _, run := range p.Runs {
				sb.WriteString(html.UnescapeString(run.Text))
			}
		} else {
			sb.WriteString(html.UnescapeString(p.Text))
		}
		segments = append(segments, transcript.Segment{
			Start:    float64(p.T) / 1000,
			Duration: float64(p.D) / 1000,
			Text:     strings.TrimSpace(sb.String()),
		})
	}
	return segments, nil
}

// decodeText entity-decodes and trims one cue's text. The XML decoder has
// already handled standard entities; a second pass catches double-escaped
// entities the platform emits (&amp;#39; and friends).
func decodeText(s string) string {
	return strings.TrimSpace(html.UnescapeString(s))
}

// validateOrdering enforces the non-decreasing-start invariant. Regressions
// within startTolerance are logged as jitter; anything larger means the
// input is corrupt and re-sorting would hide it.
func validateOrdering(segments []transcript.Segment, d dialect, size int) error {
	for i := 1; i < len(segments); i++ {
		delta := segments[i].Start - segments[i-1].Start
		if delta >= 0 {
			continue
		}
		if -delta <= startTolerance {
			slog.Warn("segment start jitter",
				slog.Int("index", i),
				slog.Float64("delta", delta))
			continue
		}
		return &ParseError{
			Dialect: d.String(),
			Size:    size,
			Reason: fmt.Sprintf("segment %d start %.3f precedes segment %d start %.3f beyond tolerance",
				i, segments[i].Start, i-1, segments[i-1].Start),
		}
	}
	return nil
}
