package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"strings"
	"time"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

// Client is the lightweight request/response transport. It is fast but some
// judges answer it with an anti-bot block; callers fall back to Browser then.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates the plain HTTP transport.
func NewClient(logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	return &Client{
		httpClient: &http.Client{},
		logger:     logger.With("transport", "http"),
	}
}

func (c *Client) Fetch(ctx context.Context, rawURL string, opts Options) (string, error) {
	target, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", rawURL, err)
	}
	if target.Scheme == "" || target.Host == "" {
		return "", fmt.Errorf("invalid url %q", rawURL)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return "", fmt.Errorf("create cookie jar: %w", err)
	}
	if len(opts.Cookies) > 0 {
		cookies := make([]*http.Cookie, 0, len(opts.Cookies))
		for _, ck := range opts.Cookies {
			cookies = append(cookies, &http.Cookie{
				Name:   ck.Name,
				Value:  ck.Value,
				Domain: ck.Domain,
				Path:   ck.Path,
			})
		}
		jar.SetCookies(target, cookies)
	}

	client := &http.Client{
		Transport: c.httpClient.Transport,
		Jar:       jar,
		Timeout:   opts.timeout(),
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return "", fmt.Errorf("%w: %s", ErrTimeout, rawURL)
		}
		return "", fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests {
		return "", fmt.Errorf("%w: status %d", ErrBlocked, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}

	html := string(body)
	if strings.TrimSpace(html) == "" {
		return "", ErrNoContent
	}
	if looksLikeChallenge(html) {
		return "", fmt.Errorf("%w: challenge page", ErrBlocked)
	}

	c.logger.Debug("fetched page",
		"url", rawURL,
		"status", resp.StatusCode,
		"bytes", len(body),
		"elapsed", time.Since(start),
	)

	return html, nil
}

func isTimeout(err error) bool {
	var ne interface{ Timeout() bool }
	return errors.As(err, &ne) && ne.Timeout()
}

// looksLikeChallenge detects interstitial bot-check pages that come back with
// a 200 status.
func looksLikeChallenge(html string) bool {
	if len(html) > 4096 {
		html = html[:4096]
	}
	lower := strings.ToLower(html)
	return strings.Contains(lower, "checking your browser") ||
		strings.Contains(lower, "cf-challenge") ||
		strings.Contains(lower, "just a moment...")
}
