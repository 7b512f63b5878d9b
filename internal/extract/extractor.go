// Package extract implements transcript extraction against the platform's
// internal mobile API: credential acquisition, rate-limited proxy-rotating
// request execution, caption track discovery, and timedtext parsing.
package extract

import (
	"context"
	"log/slog"

	"github.com/anatolykoptev/go-transcript/internal/transcript"
)

// Extractor orchestrates one or more transcript extractions. It owns the
// shared rate limiter and request executor; batch callers run extractions
// concurrently against a single Extractor so the min-delay guarantee and
// proxy bookkeeping hold globally.
type Extractor struct {
	opts Options
	exec *executor

	// Endpoint bases, swappable in tests.
	playerURL string
	watchURL  string
}

// New creates an Extractor with the given options.
func New(opts Options) *Extractor {
	opts = opts.withDefaults()
	limiter := NewLimiter(opts.MinDelay, opts.Jitter)
	return &Extractor{
		opts:      opts,
		exec:      newExecutor(opts, limiter),
		playerURL: defaultPlayerURL,
		watchURL:  defaultWatchURL,
	}
}

// Language describes one available caption track for a video.
type Language struct {
	Code          string `json:"code"`
	Name          string `json:"name"`
	AutoGenerated bool   `json:"auto_generated"`
}

// GetTranscript extracts the transcript for input (a video ID or watch URL)
// in the requested language. An empty language uses the configured default.
func (x *Extractor) GetTranscript(ctx context.Context, input, language string) ([]transcript.Segment, error) {
	videoID, err := ParseVideoID(input)
	if err != nil {
		return nil, err
	}
	requested := language != ""
	if !requested {
		language = x.opts.Language
	}
	slog.Info("extracting transcript",
		slog.String("video_id", videoID), slog.String("language", language))

	player, err := x.discover(ctx, videoID)
	if err != nil {
		return nil, err
	}

	tracks := player.tracks()
	if len(tracks) == 0 {
		return nil, ErrNoTranscript
	}

	track, err := selectTrack(tracks, language, requested)
	if err != nil {
		return nil, err
	}
	slog.Info("selected caption track",
		slog.String("name", track.Name.String()),
		slog.String("language", track.LanguageCode),
		slog.Bool("auto_generated", track.autoGenerated()))

	raw, err := x.fetchTimedText(ctx, track.BaseURL)
	if err != nil {
		return nil, err
	}

	segments, err := ParseTimedText(raw)
	if err != nil {
		return nil, err
	}
	slog.Info("transcript extracted", slog.Int("segments", len(segments)))
	return segments, nil
}

// ListLanguages returns the caption languages available for input.
func (x *Extractor) ListLanguages(ctx context.Context, input string) ([]Language, error) {
	videoID, err := ParseVideoID(input)
	if err != nil {
		return nil, err
	}

	player, err := x.discover(ctx, videoID)
	if err != nil {
		return nil, err
	}
	tracks := player.tracks()
	if len(tracks) == 0 {
		return nil, ErrNoTranscript
	}

	languages := make([]Language, 0, len(tracks))
	for _, t := range tracks {
		languages = append(languages, Language{
			Code:          t.LanguageCode,
			Name:          t.Name.String(),
			AutoGenerated: t.autoGenerated(),
		})
	}
	return languages, nil
}

// GetTranscriptText returns the transcript as a single space-joined string.
func (x *Extractor) GetTranscriptText(ctx context.Context, input, language string) (string, error) {
	segments, err := x.GetTranscript(ctx, input, language)
	if err != nil {
		return "", err
	}
	return transcript.JoinText(segments), nil
}

// GetTranscriptWithTimestamps returns the transcript as "[MM:SS] text" lines.
func (x *Extractor) GetTranscriptWithTimestamps(ctx context.Context, input, language string) (string, error) {
	segments, err := x.GetTranscript(ctx, input, language)
	if err != nil {
		return "", err
	}
	return transcript.FormatTimestamped(segments), nil
}

// discover acquires a credential and obtains a playable player response. The
// credential probe may already carry the response; otherwise one player call
// follows with the acquired key.
func (x *Extractor) discover(ctx context.Context, videoID string) (*playerResponse, error) {
	apiKey, player, err := x.acquireAPIKey(ctx, videoID)
	if err != nil {
		return nil, err
	}
	if player == nil {
		player, err = x.callPlayer(ctx, videoID, apiKey)
		if err != nil {
			return nil, err
		}
	}
	if err := player.checkPlayable(); err != nil {
		return nil, err
	}
	return player, nil
}

// selectTrack picks the caption track for language, preferring manual tracks
// over auto-generated within a language. A language the caller explicitly
// requested that the video lacks is an error listing what is available; the
// defaulted language instead falls back to any manual track, then any
// auto-generated one.
func selectTrack(tracks []captionTrack, language string, requested bool) (captionTrack, error) {
	var matching []captionTrack
	for _, t := range tracks {
		if t.LanguageCode == language {
			matching = append(matching, t)
		}
	}
	if len(matching) > 0 {
		for _, t := range matching {
			if !t.autoGenerated() {
				return t, nil
			}
		}
		return matching[0], nil
	}

	if requested {
		available := make([]string, 0, len(tracks))
		for _, t := range tracks {
			available = append(available, t.LanguageCode)
		}
		return captionTrack{}, &LanguageNotAvailableError{Requested: language, Available: available}
	}

	for _, t := range tracks {
		if !t.autoGenerated() {
			return t, nil
		}
	}
	return tracks[0], nil
}

// PoolStats exposes proxy pool statistics for the stats surfaces; nil when
// no pool is configured.
func (x *Extractor) PoolStats() map[string]any {
	if x.opts.Pool == nil {
		return nil
	}
	st := x.opts.Pool.Snapshot()
	return map[string]any{
		"total":    st.Total,
		"active":   st.Active,
		"strategy": st.Strategy,
		"by_proxy": st.ByProxy,
	}
}
