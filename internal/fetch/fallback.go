package fetch

import (
	"context"
	"errors"
	"log/slog"
	"os"
)

// Fallback tries Primary first and switches to Secondary when the primary
// transport was blocked or got an empty page. This mirrors the usual pattern
// against anti-bot judges: plain HTTP when it works, a real browser when not.
type Fallback struct {
	Primary   Transport
	Secondary Transport
	logger    *slog.Logger
}

// NewFallback composes two transports.
func NewFallback(primary, secondary Transport, logger *slog.Logger) *Fallback {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	return &Fallback{Primary: primary, Secondary: secondary, logger: logger}
}

func (f *Fallback) Fetch(ctx context.Context, url string, opts Options) (string, error) {
	html, err := f.Primary.Fetch(ctx, url, opts)
	if err == nil {
		return html, nil
	}
	if !errors.Is(err, ErrBlocked) && !errors.Is(err, ErrNoContent) {
		return "", err
	}

	f.logger.Debug("primary transport failed, falling back",
		"url", url,
		"error", err,
	)

	return f.Secondary.Fetch(ctx, url, opts)
}
