package transcript

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var (
	whitespaceRe  = regexp.MustCompile(`\s+`)
	artifactRe    = regexp.MustCompile(`(?i)\[(music|applause|laughter)\]`)
	prePunctRe    = regexp.MustCompile(`\s+([.!?])`)
	postPunctRe   = regexp.MustCompile(`([.!?])\s*([a-z])`)
	nonAlphaRe    = regexp.MustCompile(`[^a-zA-Z\s]`)
	sentenceEndRe = regexp.MustCompile(`[.!?]+`)
)

// CleanText removes caption artifacts ([Music], [Applause], [Laughter]),
// collapses whitespace, and normalizes sentence punctuation and casing.
func CleanText(text string) string {
	text = artifactRe.ReplaceAllString(text, "")
	text = whitespaceRe.ReplaceAllString(text, " ")
	text = prePunctRe.ReplaceAllString(text, "$1")
	text = postPunctRe.ReplaceAllString(text, "$1 $2")

	sentences := strings.Split(text, ". ")
	for i, s := range sentences {
		sentences[i] = capitalize(s)
	}
	return strings.TrimSpace(strings.Join(sentences, ". "))
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// stopWords are filtered out of keyword extraction.
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"in": true, "on": true, "at": true, "to": true, "for": true, "of": true,
	"with": true, "by": true, "is": true, "are": true, "was": true, "were": true,
	"be": true, "been": true, "have": true, "has": true, "had": true, "do": true,
	"does": true, "did": true, "will": true, "would": true, "could": true,
	"should": true, "may": true, "might": true, "can": true, "this": true,
	"that": true, "these": true, "those": true, "i": true, "you": true,
	"he": true, "she": true, "it": true, "we": true, "they": true, "me": true,
	"him": true, "her": true, "us": true, "them": true, "my": true, "your": true,
	"his": true, "its": true, "our": true, "their": true, "so": true, "if": true,
	"then": true, "than": true, "as": true, "very": true, "too": true,
	"much": true, "many": true, "more": true, "most": true, "some": true,
	"any": true, "all": true, "no": true, "not": true, "now": true, "here": true,
	"there": true, "when": true, "where": true, "why": true, "how": true,
	"what": true, "who": true, "which": true, "up": true, "down": true,
	"out": true, "off": true, "over": true, "under": true, "again": true,
	"further": true, "once": true, "just": true, "only": true, "get": true,
	"got": true, "go": true, "going": true, "like": true, "know": true,
	"see": true, "one": true, "two": true, "three": true, "also": true,
	"well": true, "way": true, "back": true, "time": true, "good": true,
	"right": true, "think": true,
}

// Keyword is a word with its occurrence count.
type Keyword struct {
	Word  string `json:"word"`
	Count int    `json:"count"`
}

// Keywords returns the topN most frequent words across all segments,
// lowercased, stripped of non-alphabetic characters, with stop words and
// words shorter than three letters filtered out. Ties break alphabetically
// so the result is deterministic.
func Keywords(segments []Segment, topN int) []Keyword {
	text := strings.ToLower(JoinText(segments))
	text = nonAlphaRe.ReplaceAllString(text, "")

	counts := make(map[string]int)
	for _, word := range strings.Fields(text) {
		if len(word) <= 2 || stopWords[word] {
			continue
		}
		counts[word]++
	}

	keywords := make([]Keyword, 0, len(counts))
	for word, count := range counts {
		keywords = append(keywords, Keyword{Word: word, Count: count})
	}
	sort.Slice(keywords, func(i, j int) bool {
		if keywords[i].Count != keywords[j].Count {
			return keywords[i].Count > keywords[j].Count
		}
		return keywords[i].Word < keywords[j].Word
	})
	if topN > 0 && len(keywords) > topN {
		keywords = keywords[:topN]
	}
	return keywords
}

// Match is a search hit within a transcript.
type Match struct {
	Timestamp   string  `json:"timestamp"`
	TimeSeconds float64 `json:"time_seconds"`
	Text        string  `json:"text"`
	FullSegment string  `json:"full_segment"`
}

// Search returns segments containing query (case-insensitive), each trimmed
// to a window of contextWords words around the match.
func Search(segments []Segment, query string, contextWords int) []Match {
	queryLower := strings.ToLower(query)
	queryLen := len(strings.Fields(query))
	var matches []Match

	for _, seg := range segments {
		textLower := strings.ToLower(seg.Text)
		idx := strings.Index(textLower, queryLower)
		if idx < 0 {
			continue
		}
		words := strings.Fields(seg.Text)
		matchWord := len(strings.Fields(textLower[:idx]))

		start := matchWord - contextWords
		if start < 0 {
			start = 0
		}
		end := matchWord + queryLen + contextWords
		if end > len(words) {
			end = len(words)
		}
		matches = append(matches, Match{
			Timestamp:   Timestamp(seg.Start),
			TimeSeconds: seg.Start,
			Text:        strings.Join(words[start:end], " "),
			FullSegment: seg.Text,
		})
	}
	return matches
}

// Summary builds a simple extractive summary: sentences are scored by overlap
// with the transcript's top keywords plus a slight length preference, and the
// maxSentences best are joined in score order.
func Summary(segments []Segment, maxSentences int) string {
	fullText := JoinText(segments)
	sentences := sentenceEndRe.Split(fullText, -1)

	keywordSet := make(map[string]bool)
	for _, kw := range Keywords(segments, 10) {
		keywordSet[kw.Word] = true
	}

	type scored struct {
		score    float64
		sentence string
	}
	var candidates []scored
	for _, raw := range sentences {
		sentence := strings.TrimSpace(raw)
		if len(strings.Fields(sentence)) < 5 {
			continue
		}
		score := float64(len(sentence)) / 100
		seen := make(map[string]bool)
		for _, word := range strings.Fields(strings.ToLower(sentence)) {
			if keywordSet[word] && !seen[word] {
				seen[word] = true
				score++
			}
		}
		candidates = append(candidates, scored{score, sentence})
	}

	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })
	if maxSentences > 0 && len(candidates) > maxSentences {
		candidates = candidates[:maxSentences]
	}
	if len(candidates) == 0 {
		return ""
	}
	parts := make([]string, len(candidates))
	for i, c := range candidates {
		parts[i] = c.sentence
	}
	return strings.Join(parts, ". ") + "."
}

// Stats summarizes a transcript: counts, total duration, and speaking rate.
type Stats struct {
	SegmentCount      int     `json:"segment_count"`
	DurationSeconds   float64 `json:"duration_seconds"`
	DurationFormatted string  `json:"duration_formatted"`
	WordCount         int     `json:"word_count"`
	CharacterCount    int     `json:"character_count"`
	SentenceCount     int     `json:"sentence_count"`
	WordsPerMinute    float64 `json:"words_per_minute"`
	WordsPerSegment   float64 `json:"words_per_segment"`
}

// ComputeStats derives Stats from a segment sequence. Returns the zero value
// for an empty transcript.
func ComputeStats(segments []Segment) Stats {
	if len(segments) == 0 {
		return Stats{}
	}
	var duration float64
	for _, seg := range segments {
		if end := seg.End(); end > duration {
			duration = end
		}
	}
	fullText := JoinText(segments)
	wordCount := len(strings.Fields(fullText))

	var wpm float64
	if duration > 0 {
		wpm = round1(float64(wordCount) / duration * 60)
	}
	return Stats{
		SegmentCount:      len(segments),
		DurationSeconds:   duration,
		DurationFormatted: Timestamp(duration),
		WordCount:         wordCount,
		CharacterCount:    len(fullText),
		SentenceCount:     len(sentenceEndRe.Split(fullText, -1)),
		WordsPerMinute:    wpm,
		WordsPerSegment:   round1(float64(wordCount) / float64(len(segments))),
	}
}

func round1(v float64) float64 {
	return float64(int(v*10+0.5)) / 10
}

// String renders stats as aligned "Key: value" lines for CLI output.
func (s Stats) String() string {
	return fmt.Sprintf(
		"Segments: %d\nDuration: %s (%.1fs)\nWords: %d\nCharacters: %d\nSentences: %d\nWords/Minute: %.1f\nWords/Segment: %.1f",
		s.SegmentCount, s.DurationFormatted, s.DurationSeconds,
		s.WordCount, s.CharacterCount, s.SentenceCount,
		s.WordsPerMinute, s.WordsPerSegment,
	)
}
