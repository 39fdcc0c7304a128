package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// Browser is the headless-browser transport. It executes page scripts, so it
// can wait for content that only renders client side, at the price of being
// much slower than Client. The browser process is launched per call and torn
// down on every exit path.
type Browser struct {
	logger *slog.Logger
}

// NewBrowser creates the chromedp transport.
func NewBrowser(logger *slog.Logger) *Browser {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	return &Browser{logger: logger.With("transport", "browser")}
}

func (b *Browser) Fetch(ctx context.Context, rawURL string, opts Options) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, opts.timeout())
	defer cancel()

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(userAgent),
		chromedp.WindowSize(1200, 800),
	)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(string, ...interface{}) {}),
	)
	defer cancelBrowser()

	tasks := chromedp.Tasks{setCookies(opts.Cookies)}
	tasks = append(tasks, chromedp.Navigate(rawURL))
	if opts.WaitSelector != "" {
		tasks = append(tasks, chromedp.WaitVisible(opts.WaitSelector, chromedp.ByQuery))
	}

	var html string
	tasks = append(tasks, chromedp.OuterHTML("html", &html, chromedp.ByQuery))

	start := time.Now()
	if err := chromedp.Run(browserCtx, tasks); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %s", ErrTimeout, rawURL)
		}
		return "", fmt.Errorf("browser navigation: %w", err)
	}

	if strings.TrimSpace(html) == "" {
		return "", ErrNoContent
	}
	if looksLikeChallenge(html) {
		return "", fmt.Errorf("%w: challenge page", ErrBlocked)
	}

	b.logger.Debug("rendered page",
		"url", rawURL,
		"bytes", len(html),
		"elapsed", time.Since(start),
	)

	return html, nil
}

func setCookies(cookies []Cookie) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		for _, ck := range cookies {
			err := network.SetCookie(ck.Name, ck.Value).
				WithDomain(ck.Domain).
				WithPath(ck.Path).
				Do(ctx)
			if err != nil {
				return fmt.Errorf("set cookie %s: %w", ck.Name, err)
			}
		}
		return nil
	})
}
