// go-transcript — YouTube transcript extraction CLI and MCP server.
//
// Extracts video transcripts through the Innertube mobile API with rate
// limiting, retry with exponential backoff, and optional rotating proxy
// pools. Runs as a one-shot CLI, a batch processor, or an MCP server
// exposing get_transcript / list_languages / proxy_stats tools.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/anatolykoptev/go-kit/env"
	"github.com/anatolykoptev/go-mcpserver"
	"github.com/cenkalti/backoff/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/anatolykoptev/go-transcript/internal/extract"
	"github.com/anatolykoptev/go-transcript/internal/proxypool"
	"github.com/anatolykoptev/go-transcript/internal/transcript"
	"github.com/anatolykoptev/go-transcript/internal/transcriptserver"
)

var version = "dev"

type cliFlags struct {
	format        string
	output        string
	outputDir     string
	language      string
	clean         bool
	summary       int
	keywords      int
	search        string
	batch         string
	concurrency   int
	listLanguages bool

	serve bool
	port  string

	proxyURL      string
	proxyFile     string
	proxyStrategy string
	requireProxy  bool
	healthCheck   string

	timeout    time.Duration
	maxRetries int
	backoffF   float64
	minDelay   time.Duration

	verbose bool
}

func parseFlags() (cliFlags, []string) {
	var f cliFlags
	flag.StringVar(&f.format, "format", "text", "output format: text, segments, srt, json, stats")
	flag.StringVar(&f.output, "o", "", "output filename (default stdout)")
	flag.StringVar(&f.outputDir, "output-dir", env.Str("YT_OUTPUT_DIR", "transcripts"), "output directory for batch processing")
	flag.StringVar(&f.language, "language", env.Str("YT_LANGUAGE", ""), "caption language code (e.g. en, es, fr)")
	flag.BoolVar(&f.clean, "clean", false, "clean transcript text (remove caption artifacts)")
	flag.IntVar(&f.summary, "summary", 0, "append an extractive summary with N sentences")
	flag.IntVar(&f.keywords, "keywords", 0, "append the top N keywords")
	flag.StringVar(&f.search, "search", "", "search for text in the transcript")
	flag.StringVar(&f.batch, "batch", "", "process multiple videos from file (one ID/URL per line)")
	flag.IntVar(&f.concurrency, "concurrency", env.Int("YT_CONCURRENCY", 2), "concurrent workers for batch processing")
	flag.BoolVar(&f.listLanguages, "list-languages", false, "list available caption languages for the video")

	flag.BoolVar(&f.serve, "serve", false, "run as an MCP server instead of the CLI")
	flag.StringVar(&f.port, "port", env.Str("MCP_PORT", "8893"), "MCP server port")

	flag.StringVar(&f.proxyURL, "proxy", env.Str("YT_PROXY", ""), "single proxy URL (scheme://[user:pass@]host:port)")
	flag.StringVar(&f.proxyFile, "proxy-file", env.Str("YT_PROXY_FILE", ""), "proxy list file: address port [username] [password]")
	flag.StringVar(&f.proxyStrategy, "proxy-strategy", env.Str("YT_PROXY_STRATEGY", "random"), "rotation strategy: random, round_robin, least_used")
	flag.BoolVar(&f.requireProxy, "require-proxy", false, "fail instead of going direct when the pool is exhausted")
	flag.StringVar(&f.healthCheck, "health-check", "", "probe all proxies against this URL before starting")

	flag.DurationVar(&f.timeout, "timeout", env.Duration("YT_TIMEOUT", 30*time.Second), "per-request timeout")
	flag.IntVar(&f.maxRetries, "max-retries", env.Int("YT_MAX_RETRIES", 3), "retries per request")
	flag.Float64Var(&f.backoffF, "backoff", env.Float("YT_BACKOFF_FACTOR", 0.75), "exponential backoff factor in seconds")
	flag.DurationVar(&f.minDelay, "min-delay", env.Duration("YT_MIN_DELAY", 2*time.Second), "minimum delay between requests")

	flag.BoolVar(&f.verbose, "v", false, "verbose logging")
	flag.Parse()
	return f, flag.Args()
}

func main() {
	f, args := parseFlags()

	level := slog.LevelWarn
	if f.serve {
		level = slog.LevelInfo
	}
	if f.verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	pool, err := buildPool(f)
	if err != nil {
		fatal(err)
	}

	x := extract.New(extract.Options{
		Timeout:       f.timeout,
		MaxRetries:    f.maxRetries,
		BackoffFactor: f.backoffF,
		MinDelay:      f.minDelay,
		Jitter:        time.Second,
		Pool:          pool,
		RequireProxy:  f.requireProxy,
		Language:      "en",
	})

	ctx := context.Background()

	if f.healthCheck != "" && pool != nil {
		pool.HealthCheckAll(ctx, f.healthCheck, f.timeout)
	}

	switch {
	case f.serve:
		runServer(x, f.port)
	case f.batch != "":
		if err := runBatch(ctx, x, f); err != nil {
			fatal(err)
		}
	default:
		if len(args) != 1 {
			fmt.Fprintln(os.Stderr, "usage: go-transcript [flags] <video ID or URL>")
			flag.PrintDefaults()
			os.Exit(2)
		}
		if err := runSingle(ctx, x, f, args[0]); err != nil {
			fatal(err)
		}
	}
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "Error:", err)
	os.Exit(1)
}

func buildPool(f cliFlags) (*proxypool.Pool, error) {
	var proxies []*proxypool.Proxy
	switch {
	case f.proxyFile != "":
		var err error
		proxies, err = proxypool.ParseFile(f.proxyFile)
		if err != nil {
			return nil, err
		}
	case f.proxyURL != "":
		p, err := proxypool.ParseURL(f.proxyURL)
		if err != nil {
			return nil, err
		}
		proxies = []*proxypool.Proxy{p}
	default:
		return nil, nil
	}
	if len(proxies) == 0 {
		return nil, errors.New("proxy configuration yielded no usable proxies")
	}

	strategy, err := proxypool.ParseStrategy(f.proxyStrategy)
	if err != nil {
		return nil, err
	}
	opts := proxypool.DefaultOptions()
	opts.Strategy = strategy
	opts.MaxFailures = env.Int("YT_PROXY_MAX_FAILURES", opts.MaxFailures)
	opts.Cooldown = env.Duration("YT_PROXY_COOLDOWN", opts.Cooldown)
	return proxypool.New(proxies, opts), nil
}

func runServer(x *extract.Extractor, port string) {
	slog.Info("starting go-transcript", slog.String("port", port))

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "go-transcript",
		Version: version,
	}, nil)
	transcriptserver.RegisterTools(server, x)
	slog.Info("tools registered", slog.Int("count", 3))

	if err := mcpserver.Run(server, mcpserver.Config{
		Name:         "go-transcript",
		Version:      version,
		Port:         port,
		WriteTimeout: 600 * time.Second,
		Metrics:      extract.FormatMetrics,
	}); err != nil {
		slog.Error("server failed", slog.Any("error", err))
	}
}

func runSingle(ctx context.Context, x *extract.Extractor, f cliFlags, input string) error {
	if f.listLanguages {
		languages, err := x.ListLanguages(ctx, input)
		if err != nil {
			return err
		}
		fmt.Println("Available languages:")
		for _, lang := range languages {
			kind := "manual"
			if lang.AutoGenerated {
				kind = "auto-generated"
			}
			fmt.Printf("  %s: %s (%s)\n", lang.Code, lang.Name, kind)
		}
		return nil
	}

	segments, err := x.GetTranscript(ctx, input, f.language)
	if err != nil {
		return err
	}

	out, err := renderOutput(segments, f)
	if err != nil {
		return err
	}

	if f.output != "" {
		if err := os.WriteFile(f.output, []byte(out), 0o644); err != nil {
			return err
		}
		fmt.Println("Output saved to:", f.output)
		return nil
	}
	fmt.Println(out)
	return nil
}

func renderOutput(segments []transcript.Segment, f cliFlags) (string, error) {
	var out string
	switch f.format {
	case "text":
		out = transcript.JoinText(segments)
		if f.clean {
			out = transcript.CleanText(out)
		}
	case "segments":
		out = transcript.FormatTimestamped(segments)
	case "srt":
		out = transcript.ExportSRT(segments)
	case "json":
		data, err := json.MarshalIndent(segments, "", "  ")
		if err != nil {
			return "", err
		}
		out = string(data)
	case "stats":
		out = transcript.ComputeStats(segments).String()
	default:
		return "", fmt.Errorf("unknown format %q (want text, segments, srt, json or stats)", f.format)
	}

	if f.summary > 0 {
		out += "\n\n--- SUMMARY ---\n" + transcript.Summary(segments, f.summary)
	}
	if f.keywords > 0 {
		var sb strings.Builder
		for _, kw := range transcript.Keywords(segments, f.keywords) {
			fmt.Fprintf(&sb, "  %s: %d\n", kw.Word, kw.Count)
		}
		out += fmt.Sprintf("\n\n--- TOP %d KEYWORDS ---\n%s", f.keywords, strings.TrimSuffix(sb.String(), "\n"))
	}
	if f.search != "" {
		matches := transcript.Search(segments, f.search, 5)
		if len(matches) == 0 {
			out += fmt.Sprintf("\n\n--- SEARCH RESULTS ---\nNo matches found for %q", f.search)
		} else {
			var sb strings.Builder
			for _, m := range matches {
				fmt.Fprintf(&sb, "  [%s] %s\n", m.Timestamp, m.Text)
			}
			out += fmt.Sprintf("\n\n--- SEARCH RESULTS FOR %q ---\n%s", f.search, strings.TrimSuffix(sb.String(), "\n"))
		}
	}
	return out, nil
}

// batchResult records one video's outcome for the final report.
type batchResult struct {
	input string
	path  string
	err   error
}

// runBatch extracts transcripts for every video listed in the batch file,
// writing one output file per video. Workers share the extractor, so the
// global rate limit and proxy rotation hold across all of them. Transient
// network failures retry the whole video with exponential backoff before
// giving up on it.
func runBatch(ctx context.Context, x *extract.Extractor, f cliFlags) error {
	inputs, err := readBatchFile(f.batch)
	if err != nil {
		return err
	}
	if len(inputs) == 0 {
		return errors.New("no video IDs or URLs found in batch file")
	}
	if err := os.MkdirAll(f.outputDir, 0o755); err != nil {
		return err
	}

	fmt.Printf("Processing %d videos...\n", len(inputs))

	jobs := make(chan string)
	results := make(chan batchResult, len(inputs))
	var wg sync.WaitGroup

	workers := f.concurrency
	if workers < 1 {
		workers = 1
	}
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for input := range jobs {
				results <- processBatchVideo(ctx, x, f, input)
			}
		}()
	}
	for _, input := range inputs {
		jobs <- input
	}
	close(jobs)
	wg.Wait()
	close(results)

	var failed int
	for r := range results {
		if r.err != nil {
			failed++
			fmt.Printf("  FAIL %s: %v\n", r.input, r.err)
			continue
		}
		fmt.Printf("  OK   %s -> %s\n", r.input, r.path)
	}
	fmt.Printf("Done: %d succeeded, %d failed\n", len(inputs)-failed, failed)
	if failed == len(inputs) {
		return errors.New("all batch videos failed")
	}
	return nil
}

func processBatchVideo(ctx context.Context, x *extract.Extractor, f cliFlags, input string) batchResult {
	videoID, err := extract.ParseVideoID(input)
	if err != nil {
		return batchResult{input: input, err: err}
	}

	// Only infrastructure-level failures are worth retrying at this level;
	// everything else (bad ID, missing language, no captions) is final.
	operation := func() ([]transcript.Segment, error) {
		segments, err := x.GetTranscript(ctx, videoID, f.language)
		if err != nil {
			var netErr *extract.NetworkTimeoutError
			if errors.As(err, &netErr) || errors.Is(err, extract.ErrIPBlocked) {
				return nil, err
			}
			return nil, backoff.Permanent(err)
		}
		return segments, nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 5 * time.Second
	bo.MaxInterval = time.Minute

	segments, err := backoff.Retry(ctx, operation, backoff.WithBackOff(bo), backoff.WithMaxTries(3))
	if err != nil {
		return batchResult{input: input, err: err}
	}

	out, err := renderOutput(segments, f)
	if err != nil {
		return batchResult{input: input, err: err}
	}
	path := filepath.Join(f.outputDir, videoID+batchExtension(f.format))
	if err := os.WriteFile(path, []byte(out), 0o644); err != nil {
		return batchResult{input: input, err: err}
	}
	return batchResult{input: input, path: path}
}

func batchExtension(format string) string {
	switch format {
	case "srt":
		return ".srt"
	case "json":
		return ".json"
	}
	return ".txt"
}

func readBatchFile(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var inputs []string
	sc := bufio.NewScanner(file)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		inputs = append(inputs, line)
	}
	return inputs, sc.Err()
}
