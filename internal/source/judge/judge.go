package judge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"problem_fetcher/internal/domain"
	"problem_fetcher/internal/extract"
	"problem_fetcher/internal/fetch"
	"problem_fetcher/internal/retry"
)

// Config holds per-source settings. Zero values fall back to the judge
// profile's defaults.
type Config struct {
	BaseURL      string
	RequestDelay time.Duration
	Timeout      time.Duration
	Retry        retry.Config

	// Transport overrides the profile's default transport. Tests inject a
	// fake here.
	Transport fetch.Transport
}

// Source fetches problems from one judge. All four judges share this type;
// only the profile (selector tables, URL rules, unit conversions) differs.
type Source struct {
	profile   Profile
	transport fetch.Transport
	retryCfg  retry.Config
	logger    *slog.Logger
}

// New builds the source for the given judge id. Unsupported ids are a
// permanent error: there is no point retrying a config mistake.
func New(judgeID string, cfg Config, logger *slog.Logger) (*Source, error) {
	profile, err := profileFor(judgeID)
	if err != nil {
		return nil, err
	}

	if cfg.BaseURL != "" {
		profile.BaseURL = cfg.BaseURL
	}
	if cfg.RequestDelay > 0 {
		profile.RequestDelay = cfg.RequestDelay
	}
	if cfg.Timeout > 0 {
		profile.FetchOptions.Timeout = cfg.Timeout
		profile.ListOptions.Timeout = cfg.Timeout
	}

	transport := cfg.Transport
	if transport == nil {
		transport = defaultTransport(profile, logger)
	}

	retryCfg := cfg.Retry
	if retryCfg.MaxAttempts == 0 {
		retryCfg = retry.Config{
			MaxAttempts:    3,
			InitialBackoff: time.Second,
			MaxBackoff:     10 * time.Second,
			Jitter:         500 * time.Millisecond,
		}
	}

	return &Source{
		profile:   profile,
		transport: transport,
		retryCfg:  retryCfg,
		logger:    logger.With("source", profile.ID),
	}, nil
}

// ID returns the source identifier.
func (s *Source) ID() string {
	return s.profile.ID
}

// Name returns the human-readable judge name.
func (s *Source) Name() string {
	return s.profile.Name
}

// RequestDelay is the minimum politeness delay between problem fetches. The
// orchestrator applies it between FetchProblem calls.
func (s *Source) RequestDelay() time.Duration {
	return s.profile.RequestDelay
}

// ListCandidates discovers up to limit problems from the judge's listing
// pages. A listing failure fails the whole call; there is nothing to iterate
// without it.
func (s *Source) ListCandidates(ctx context.Context, limit int) ([]domain.Candidate, error) {
	rows, err := s.listRows(ctx, limit)
	if err != nil {
		return nil, err
	}

	candidates := make([]domain.Candidate, 0, limit)
	for _, row := range rows {
		if len(candidates) == limit {
			break
		}

		id, err := s.profile.CandidateID(row.Href)
		if err != nil {
			s.logger.Warn("skipping unparseable listing row", "href", row.Href, "error", err)
			continue
		}

		candidates = append(candidates, domain.Candidate{
			ID:    id,
			Title: row.Title,
			URL:   s.absoluteURL(row.Href),
		})
	}

	s.logger.Debug("listed candidates", "count", len(candidates), "limit", limit)
	return candidates, nil
}

func (s *Source) listRows(ctx context.Context, limit int) ([]extract.Row, error) {
	listingURL := s.profile.BaseURL + s.profile.ListingPath

	rows, err := s.fetchRows(ctx, listingURL, s.profile.ListRules)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", s.profile.ID, err)
	}

	hop := s.profile.SecondHop
	if hop == nil {
		return rows, nil
	}

	// Two-level listings (contest archive, then per-contest tasks).
	var tasks []extract.Row
	for _, contest := range rows {
		if len(tasks) >= limit {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		taskURL := s.absoluteURL(contest.Href) + hop.PathSuffix
		taskRows, err := s.fetchRows(ctx, taskURL, hop.Rules)
		if err != nil {
			s.logger.Warn("skipping contest listing", "url", taskURL, "error", err)
			continue
		}
		tasks = append(tasks, taskRows...)
	}
	return tasks, nil
}

func (s *Source) fetchRows(ctx context.Context, url string, rules extract.ListRules) ([]extract.Row, error) {
	return retry.Do(ctx, s.retryCfg, func(ctx context.Context) ([]extract.Row, error) {
		pageHTML, err := s.transport.Fetch(ctx, url, s.profile.ListOptions)
		if err != nil {
			if !fetch.Retryable(err) {
				return nil, retry.Permanent(err)
			}
			return nil, err
		}

		rows, err := extract.ExtractRows(pageHTML, rules)
		if err != nil {
			return nil, retry.Permanent(err)
		}
		if len(rows) == 0 {
			return nil, extract.ErrNoContent
		}
		return rows, nil
	})
}

// FetchProblem retrieves and normalizes one problem. Each attempt fetches the
// page and extracts sections; an attempt that yields no sections at all is a
// failure even when the main container matched, so it is retried.
func (s *Source) FetchProblem(ctx context.Context, cand domain.Candidate) (*domain.Problem, error) {
	return retry.Do(ctx, s.retryCfg, func(ctx context.Context) (*domain.Problem, error) {
		pageHTML, err := s.transport.Fetch(ctx, cand.URL, s.profile.FetchOptions)
		if err != nil {
			if !fetch.Retryable(err) {
				return nil, retry.Permanent(err)
			}
			return nil, err
		}

		sections, err := extract.Extract(pageHTML, s.profile.ProblemRules)
		if err != nil {
			return nil, err
		}
		if sections.Empty() {
			return nil, fmt.Errorf("%s %s: %w", s.profile.ID, cand.ID, errNoSections)
		}

		problem := &domain.Problem{
			SourceID:    s.profile.ID,
			ExternalID:  cand.ID,
			Title:       cand.Title,
			URL:         cand.URL,
			TimeLimitMs: s.profile.TimeLimitMs,
			MemLimitKb:  s.profile.MemLimitKb,
			Sections:    sections,
		}

		if s.profile.Enrich != nil {
			doc, err := goquery.NewDocumentFromReader(strings.NewReader(pageHTML))
			if err == nil {
				s.profile.Enrich(doc, problem)
			}
		}

		return problem, nil
	})
}

func (s *Source) absoluteURL(href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	return s.profile.BaseURL + href
}

func defaultTransport(p Profile, logger *slog.Logger) fetch.Transport {
	switch {
	case p.BrowserOnly:
		return fetch.NewBrowser(logger)
	case p.BrowserFallback:
		return fetch.NewFallback(fetch.NewClient(logger), fetch.NewBrowser(logger), logger)
	default:
		return fetch.NewClient(logger)
	}
}
