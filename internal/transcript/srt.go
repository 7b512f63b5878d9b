package transcript

import (
	"fmt"
	"strings"
)

// defaultCueDuration is used for segments whose source carried no duration.
const defaultCueDuration = 3.0

// srtTimestamp formats seconds as the SRT timecode HH:MM:SS,mmm.
func srtTimestamp(seconds float64) string {
	total := int(seconds)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	ms := int((seconds - float64(total)) * 1000)
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

// ExportSRT renders segments as an SRT subtitle document: sequence number,
// start --> end timecodes, text, blank line. Segments with empty text are
// skipped; cue numbering stays contiguous.
func ExportSRT(segments []Segment) string {
	var sb strings.Builder
	n := 0
	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		n++
		dur := seg.Duration
		if dur <= 0 {
			dur = defaultCueDuration
		}
		fmt.Fprintf(&sb, "%d\n%s --> %s\n%s\n\n", n, srtTimestamp(seg.Start), srtTimestamp(seg.Start+dur), text)
	}
	return strings.TrimSuffix(sb.String(), "\n")
}
