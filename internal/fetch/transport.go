package fetch

import (
	"context"
	"errors"
	"time"
)

// Default navigation timeout when Options.Timeout is zero.
const DefaultTimeout = 60 * time.Second

var (
	// ErrBlocked is returned when the site answered with an anti-bot
	// response (403 or a challenge page).
	ErrBlocked = errors.New("fetch: blocked by target site")

	// ErrTimeout is returned when navigation or a selector wait exceeded
	// its budget.
	ErrTimeout = errors.New("fetch: navigation timeout")

	// ErrNoContent is returned when the response carried no usable body.
	ErrNoContent = errors.New("fetch: empty content")
)

// Cookie is set on the transport session before navigation.
type Cookie struct {
	Name   string
	Value  string
	Domain string
	Path   string
}

// Options configure a single fetch.
type Options struct {
	Headers      map[string]string
	Cookies      []Cookie
	WaitSelector string        // browser transport waits for this before reading the DOM
	Timeout      time.Duration // zero means DefaultTimeout
}

func (o Options) timeout() time.Duration {
	if o.Timeout <= 0 {
		return DefaultTimeout
	}
	return o.Timeout
}

// Transport retrieves the HTML of a page. Implementations acquire their
// session resources per call and release them on every exit path.
type Transport interface {
	Fetch(ctx context.Context, url string, opts Options) (string, error)
}

// Retryable reports whether err is a transient transport failure that the
// caller may retry.
func Retryable(err error) bool {
	return errors.Is(err, ErrBlocked) || errors.Is(err, ErrTimeout) || errors.Is(err, ErrNoContent)
}
