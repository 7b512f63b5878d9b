// Package transcriptserver registers the MCP tools exposed by the serve
// mode: get_transcript, list_languages, proxy_stats.
package transcriptserver

import (
	"context"
	"errors"
	"log/slog"

	"github.com/anatolykoptev/go-transcript/internal/extract"
	"github.com/anatolykoptev/go-transcript/internal/transcript"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// GetTranscriptInput is the input for the get_transcript tool.
type GetTranscriptInput struct {
	Video    string `json:"video" jsonschema:"YouTube video ID or watch URL"`
	Language string `json:"language,omitempty" jsonschema:"caption language code, e.g. en, es, fr"`
	Format   string `json:"format,omitempty" jsonschema:"text, segments or srt (default text)"`
	Clean    bool   `json:"clean,omitempty" jsonschema:"strip caption artifacts from text output"`
}

// GetTranscriptOutput is the structured output of get_transcript.
type GetTranscriptOutput struct {
	VideoID  string               `json:"video_id"`
	Format   string               `json:"format"`
	Text     string               `json:"text,omitempty"`
	Segments []transcript.Segment `json:"segments,omitempty"`
	Stats    transcript.Stats     `json:"stats"`
}

// ListLanguagesInput is the input for the list_languages tool.
type ListLanguagesInput struct {
	Video string `json:"video" jsonschema:"YouTube video ID or watch URL"`
}

// ListLanguagesOutput is the structured output of list_languages.
type ListLanguagesOutput struct {
	VideoID   string             `json:"video_id"`
	Languages []extract.Language `json:"languages"`
}

// ProxyStatsInput is the (empty) input for the proxy_stats tool.
type ProxyStatsInput struct{}

// ProxyStatsOutput is the structured output of proxy_stats.
type ProxyStatsOutput struct {
	Pool     map[string]any   `json:"pool,omitempty"`
	Counters map[string]int64 `json:"counters"`
	Note     string           `json:"note,omitempty"`
}

// RegisterTools registers all transcript tools on the given MCP server,
// backed by a shared Extractor so concurrent tool calls honor one global
// rate limit and proxy pool.
func RegisterTools(server *mcp.Server, x *extract.Extractor) {
	registerGetTranscript(server, x)
	registerListLanguages(server, x)
	registerProxyStats(server, x)
}

func registerGetTranscript(server *mcp.Server, x *extract.Extractor) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_transcript",
		Description: "Extract the transcript of a YouTube video. Accepts a video ID or watch URL, optional language code, and output format (text, segments, srt). Returns the transcript plus word/duration statistics.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, req *mcp.CallToolRequest, input GetTranscriptInput) (*mcp.CallToolResult, GetTranscriptOutput, error) {
		if input.Video == "" {
			return nil, GetTranscriptOutput{}, errors.New("video is required")
		}
		videoID, err := extract.ParseVideoID(input.Video)
		if err != nil {
			return nil, GetTranscriptOutput{}, err
		}

		segments, err := x.GetTranscript(ctx, videoID, input.Language)
		if err != nil {
			slog.Warn("get_transcript failed",
				slog.String("video_id", videoID), slog.Any("error", err))
			return nil, GetTranscriptOutput{}, err
		}

		out := GetTranscriptOutput{
			VideoID: videoID,
			Format:  input.Format,
			Stats:   transcript.ComputeStats(segments),
		}
		switch input.Format {
		case "segments":
			out.Segments = segments
		case "srt":
			out.Text = transcript.ExportSRT(segments)
		default:
			out.Format = "text"
			out.Text = transcript.JoinText(segments)
			if input.Clean {
				out.Text = transcript.CleanText(out.Text)
			}
		}
		return nil, out, nil
	})
}

func registerListLanguages(server *mcp.Server, x *extract.Extractor) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_languages",
		Description: "List the caption languages available for a YouTube video, marking which tracks are auto-generated.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, req *mcp.CallToolRequest, input ListLanguagesInput) (*mcp.CallToolResult, ListLanguagesOutput, error) {
		if input.Video == "" {
			return nil, ListLanguagesOutput{}, errors.New("video is required")
		}
		videoID, err := extract.ParseVideoID(input.Video)
		if err != nil {
			return nil, ListLanguagesOutput{}, err
		}
		languages, err := x.ListLanguages(ctx, videoID)
		if err != nil {
			return nil, ListLanguagesOutput{}, err
		}
		return nil, ListLanguagesOutput{VideoID: videoID, Languages: languages}, nil
	})
}

func registerProxyStats(server *mcp.Server, x *extract.Extractor) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "proxy_stats",
		Description: "Report proxy pool health (per-proxy usage, failure counts, active status) and process-wide request counters.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, req *mcp.CallToolRequest, input ProxyStatsInput) (*mcp.CallToolResult, ProxyStatsOutput, error) {
		out := ProxyStatsOutput{Counters: extract.GetMetrics()}
		if stats := x.PoolStats(); stats != nil {
			out.Pool = stats
		} else {
			out.Note = "no proxy pool configured"
		}
		return nil, out, nil
	})
}
