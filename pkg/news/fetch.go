package news

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"vietmarket-api/pkg/source"
)

// FetchResult is the extracted content of one article.
type FetchResult struct {
	Text      string
	SHA256    string
	WordCount int
	Method    string // "http" or "headless"
	RawHTML   []byte
}

// HeadlessRunner renders a page in a real browser engine. Used when the
// plain HTTP path is blocked or yields a teaser-sized body.
type HeadlessRunner interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// ExecHeadless shells out to a headless browser binary, reading the rendered
// DOM from stdout.
type ExecHeadless struct {
	// Command template; {url} is replaced with the target. Default drives
	// system chromium.
	Command string
}

// Fetch renders url and returns the DOM HTML.
func (e *ExecHeadless) Fetch(ctx context.Context, url string) ([]byte, error) {
	command := e.Command
	if command == "" {
		command = "chromium --headless=new --disable-gpu --dump-dom {url}"
	}
	parts := strings.Fields(strings.ReplaceAll(command, "{url}", url))
	if len(parts) == 0 {
		return nil, fmt.Errorf("news: empty headless command")
	}
	cmd := exec.CommandContext(ctx, parts[0], parts[1:]...)
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("news: headless fetch failed: %s", truncate(string(exitErr.Stderr), 500))
		}
		return nil, fmt.Errorf("news: headless fetch: %w", err)
	}
	return out, nil
}

// Fetcher downloads articles and extracts their text.
type Fetcher struct {
	cfg      *Config
	src      *source.Client
	headless HeadlessRunner
}

// NewFetcher builds a Fetcher. headless may be nil to disable the fallback.
func NewFetcher(cfg *Config, src *source.Client, headless HeadlessRunner) *Fetcher {
	return &Fetcher{cfg: cfg, src: src, headless: headless}
}

// FetchArticle downloads one article. The HTTP path is tried first; a
// blocked response (403 or 429) or a body under the minimum word count triggers one
// headless retry.
func (f *Fetcher) FetchArticle(ctx context.Context, url string) (FetchResult, error) {
	raw, httpErr := f.httpFetch(ctx, url)
	if httpErr == nil {
		res := extractResult(raw, "http")
		if res.WordCount >= MinWordCount || f.headless == nil {
			return res, nil
		}
	} else if !blocked(httpErr) || f.headless == nil {
		return FetchResult{}, httpErr
	}

	dom, err := f.headless.Fetch(ctx, url)
	if err != nil {
		if httpErr != nil {
			return FetchResult{}, fmt.Errorf("%w (headless fallback also failed: %v)", httpErr, err)
		}
		// Keep the short HTTP body rather than fail the row.
		return extractResult(raw, "http"), nil
	}
	return extractResult(dom, "headless"), nil
}

func (f *Fetcher) httpFetch(ctx context.Context, url string) ([]byte, error) {
	resp, err := f.src.Get(ctx, url, source.CallTimeout(f.cfg.Timeout))
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func extractResult(raw []byte, method string) FetchResult {
	text := ExtractMainText(string(raw))
	return FetchResult{
		Text:      text,
		SHA256:    ContentSHA256(text),
		WordCount: WordCount(text),
		Method:    method,
		RawHTML:   raw,
	}
}

func blocked(err error) bool {
	var te *source.TerminalError
	return errors.As(err, &te) && (te.Status == 403 || te.Status == 429)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
