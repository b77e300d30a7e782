package orchestrator

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// ContentFetcher retrieves the title and body text for a queued URL. RSS
// fetch/parse and HTML extraction are out of this core's scope (they are
// the external collaborator upstream of the orchestrator); this interface
// is the seam the core depends on rather than an implementation of that
// feature.
type ContentFetcher interface {
	Fetch(ctx context.Context, rawURL string) (title, body string, err error)
}

var titleTagRe = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
var tagRe = regexp.MustCompile(`(?s)<[^>]+>`)

// NaiveFetcher is a minimal stand-in ContentFetcher: a plain HTTP GET with
// tags stripped by regex. It exists so `serve` has something to run
// against; it is not the HTML-extraction feature the spec places out of
// scope, and does not attempt readability heuristics, JS rendering, or
// paywall handling.
type NaiveFetcher struct {
	client *http.Client
}

// NewNaiveFetcher builds a fetcher with a bounded per-request timeout.
func NewNaiveFetcher() *NaiveFetcher {
	return &NaiveFetcher{client: &http.Client{Timeout: 30 * time.Second}}
}

func (f *NaiveFetcher) Fetch(ctx context.Context, rawURL string) (string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", "", fmt.Errorf("build request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", "", fmt.Errorf("fetch %s: status %d", rawURL, resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", "", fmt.Errorf("read body: %w", err)
	}
	html := string(raw)

	title := ""
	if m := titleTagRe.FindStringSubmatch(html); len(m) == 2 {
		title = strings.TrimSpace(tagRe.ReplaceAllString(m[1], ""))
	}
	body := strings.TrimSpace(tagRe.ReplaceAllString(html, " "))
	return title, body, nil
}

// domainOf returns the lower-cased host for rawURL, used for the
// title+domain near-duplicate hash (spec §3).
func domainOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
