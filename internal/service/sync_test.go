package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"problem_fetcher/internal/config"
	"problem_fetcher/internal/domain"
	"problem_fetcher/internal/fetch"
	"problem_fetcher/internal/retry"
	"problem_fetcher/internal/service/mocks"
	"problem_fetcher/internal/source/judge"
)

type SyncServiceTestSuite struct {
	suite.Suite
	ctrl *gomock.Controller

	source    *mocks.MockSource
	problems  *mocks.MockProblemStore
	tags      *mocks.MockTagStore
	syncState *mocks.MockSyncStateStore
	txManager *mocks.MockTransactionManager
	publisher *mocks.MockPublisher

	service *SyncService
	cfg     config.SyncConfig
	logger  *slog.Logger
}

func (s *SyncServiceTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())

	s.source = mocks.NewMockSource(s.ctrl)
	s.problems = mocks.NewMockProblemStore(s.ctrl)
	s.tags = mocks.NewMockTagStore(s.ctrl)
	s.syncState = mocks.NewMockSyncStateStore(s.ctrl)
	s.txManager = mocks.NewMockTransactionManager(s.ctrl)
	s.publisher = mocks.NewMockPublisher(s.ctrl)

	s.cfg = config.SyncConfig{
		Interval:           6 * time.Hour,
		MaxProblemsPerSync: 10,
	}

	s.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	s.source.EXPECT().ID().Return("test-judge").AnyTimes()
	s.source.EXPECT().Name().Return("Test Judge").AnyTimes()
	s.source.EXPECT().RequestDelay().Return(time.Duration(0)).AnyTimes()

	s.service = NewSyncService(
		s.source,
		s.problems,
		s.tags,
		s.syncState,
		s.txManager,
		s.publisher,
		s.logger,
		s.cfg,
	)
}

func (s *SyncServiceTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestSyncServiceTestSuite(t *testing.T) {
	suite.Run(t, new(SyncServiceTestSuite))
}

func (s *SyncServiceTestSuite) expectSyncState(ctx context.Context) {
	s.syncState.EXPECT().Get(ctx, "test-judge").Return(&domain.SyncState{SourceID: "test-judge"}, nil)
	s.syncState.EXPECT().Update(ctx, gomock.Any()).Return(nil)
}

func (s *SyncServiceTestSuite) passthroughTx(ctx context.Context) *gomock.Call {
	return s.txManager.EXPECT().WithTransaction(ctx, gomock.Any()).DoAndReturn(
		func(ctx context.Context, fn func(context.Context) error) error {
			return fn(ctx)
		},
	)
}

func (s *SyncServiceTestSuite) TestSync_NewProblem() {
	ctx := context.Background()

	cand := domain.Candidate{ID: "1A", Title: "Theatre Square", URL: "https://judge.test/1A"}
	statement := "<p>Calculate the number of flagstones.</p>"
	problem := &domain.Problem{
		SourceID:    "test-judge",
		ExternalID:  "1A",
		Title:       "Theatre Square",
		URL:         cand.URL,
		TimeLimitMs: 1000,
		MemLimitKb:  262144,
		Sections:    domain.Sections{StatementHTML: &statement},
		Tags:        []string{"math"},
	}

	s.source.EXPECT().ListCandidates(ctx, 10).Return([]domain.Candidate{cand}, nil)
	s.problems.EXPECT().GetExistingExternalIDs(ctx, "test-judge", []string{"1A"}).
		Return(map[string]struct{}{}, nil)

	s.source.EXPECT().FetchProblem(ctx, cand).Return(problem, nil)

	s.passthroughTx(ctx)
	s.problems.EXPECT().Upsert(ctx, problem).Return(int64(100), nil)
	s.tags.EXPECT().UpsertBatch(ctx, []string{"math"}).Return(map[string]int64{"math": 7}, nil)
	s.tags.EXPECT().LinkToProblem(ctx, int64(100), []int64{7}).Return(nil)

	s.publisher.EXPECT().Publish(ctx, problem, true).Return(nil)

	s.expectSyncState(ctx)

	stats, err := s.service.Sync(ctx)

	s.NoError(err)
	s.Equal(1, stats.Fetched)
	s.Equal(1, stats.New)
	s.Equal(0, stats.Updated)
	s.Equal(0, stats.Failed)
	s.Equal(1, stats.Published)
}

func (s *SyncServiceTestSuite) TestSync_UpdatedProblem() {
	ctx := context.Background()

	cand := domain.Candidate{ID: "abc100_a", Title: "Happy Birthday!", URL: "https://judge.test/abc100_a"}
	problem := &domain.Problem{
		SourceID:   "test-judge",
		ExternalID: "abc100_a",
		Title:      cand.Title,
		URL:        cand.URL,
	}

	s.source.EXPECT().ListCandidates(ctx, 10).Return([]domain.Candidate{cand}, nil)
	s.problems.EXPECT().GetExistingExternalIDs(ctx, "test-judge", []string{"abc100_a"}).
		Return(map[string]struct{}{"abc100_a": {}}, nil)

	s.source.EXPECT().FetchProblem(ctx, cand).Return(problem, nil)

	s.passthroughTx(ctx)
	s.problems.EXPECT().Upsert(ctx, problem).Return(int64(42), nil)

	s.publisher.EXPECT().Publish(ctx, problem, false).Return(nil)

	s.expectSyncState(ctx)

	stats, err := s.service.Sync(ctx)

	s.NoError(err)
	s.Equal(0, stats.New)
	s.Equal(1, stats.Updated)
	s.Equal(1, stats.Published)
}

// One bad candidate in the middle of the batch must not take down the rest.
func (s *SyncServiceTestSuite) TestSync_PartialFailure() {
	ctx := context.Background()

	candidates := make([]domain.Candidate, 5)
	ids := make([]string, 5)
	for i := range candidates {
		id := fmt.Sprintf("P%d", i+1)
		candidates[i] = domain.Candidate{ID: id, Title: "Problem " + id, URL: "https://judge.test/" + id}
		ids[i] = id
	}

	s.source.EXPECT().ListCandidates(ctx, 10).Return(candidates, nil)
	s.problems.EXPECT().GetExistingExternalIDs(ctx, "test-judge", ids).
		Return(map[string]struct{}{}, nil)

	fetchErr := errors.New("after 3 attempts: blocked by source")
	saved := make([]string, 0, 4)
	for i, cand := range candidates {
		if i == 2 {
			s.source.EXPECT().FetchProblem(ctx, cand).Return(nil, fetchErr)
			continue
		}

		problem := &domain.Problem{
			SourceID:   "test-judge",
			ExternalID: cand.ID,
			Title:      cand.Title,
			URL:        cand.URL,
		}
		s.source.EXPECT().FetchProblem(ctx, cand).Return(problem, nil)
		s.passthroughTx(ctx)
		s.problems.EXPECT().Upsert(ctx, problem).DoAndReturn(
			func(_ context.Context, p *domain.Problem) (int64, error) {
				saved = append(saved, p.ExternalID)
				return int64(i + 1), nil
			},
		)
		s.publisher.EXPECT().Publish(ctx, problem, true).Return(nil)
	}

	s.expectSyncState(ctx)

	stats, err := s.service.Sync(ctx)

	s.NoError(err)
	s.Equal(5, stats.Fetched)
	s.Equal(4, stats.New)
	s.Equal(1, stats.Failed)
	s.Equal(4, stats.Published)
	s.Equal([]string{"P1", "P2", "P4", "P5"}, saved)

	s.Require().Len(stats.Failures, 1)
	s.Equal("P3", stats.Failures[0].CandidateID)
	s.ErrorIs(stats.Failures[0].Err, fetchErr)
}

func (s *SyncServiceTestSuite) TestSync_ListingError() {
	ctx := context.Background()

	s.source.EXPECT().ListCandidates(ctx, 10).Return(nil, errors.New("listing unreachable"))

	stats, err := s.service.Sync(ctx)

	s.Error(err)
	s.Nil(stats)
}

func (s *SyncServiceTestSuite) TestSync_SaveFailureIsolated() {
	ctx := context.Background()

	candidates := []domain.Candidate{
		{ID: "A", URL: "https://judge.test/A"},
		{ID: "B", URL: "https://judge.test/B"},
	}

	s.source.EXPECT().ListCandidates(ctx, 10).Return(candidates, nil)
	s.problems.EXPECT().GetExistingExternalIDs(ctx, "test-judge", []string{"A", "B"}).
		Return(map[string]struct{}{}, nil)

	problemA := &domain.Problem{SourceID: "test-judge", ExternalID: "A"}
	problemB := &domain.Problem{SourceID: "test-judge", ExternalID: "B"}

	s.source.EXPECT().FetchProblem(ctx, candidates[0]).Return(problemA, nil)
	s.passthroughTx(ctx)
	s.problems.EXPECT().Upsert(ctx, problemA).Return(int64(0), errors.New("connection reset"))

	s.source.EXPECT().FetchProblem(ctx, candidates[1]).Return(problemB, nil)
	s.passthroughTx(ctx)
	s.problems.EXPECT().Upsert(ctx, problemB).Return(int64(2), nil)
	s.publisher.EXPECT().Publish(ctx, problemB, true).Return(nil)

	s.expectSyncState(ctx)

	stats, err := s.service.Sync(ctx)

	s.NoError(err)
	s.Equal(1, stats.New)
	s.Equal(1, stats.Failed)
	s.Require().Len(stats.Failures, 1)
	s.Equal("A", stats.Failures[0].CandidateID)
}

func (s *SyncServiceTestSuite) TestSync_PublishFailureKeepsRecord() {
	ctx := context.Background()

	cand := domain.Candidate{ID: "X", URL: "https://judge.test/X"}
	problem := &domain.Problem{SourceID: "test-judge", ExternalID: "X"}

	s.source.EXPECT().ListCandidates(ctx, 10).Return([]domain.Candidate{cand}, nil)
	s.problems.EXPECT().GetExistingExternalIDs(ctx, "test-judge", []string{"X"}).
		Return(map[string]struct{}{}, nil)
	s.source.EXPECT().FetchProblem(ctx, cand).Return(problem, nil)
	s.passthroughTx(ctx)
	s.problems.EXPECT().Upsert(ctx, problem).Return(int64(1), nil)
	s.publisher.EXPECT().Publish(ctx, problem, true).Return(errors.New("channel closed"))

	s.expectSyncState(ctx)

	stats, err := s.service.Sync(ctx)

	s.NoError(err)
	s.Equal(1, stats.New)
	s.Equal(0, stats.Published)
	s.Equal(0, stats.Failed)
}

func (s *SyncServiceTestSuite) TestSync_PublisherNil() {
	ctx := context.Background()

	service := NewSyncService(
		s.source,
		s.problems,
		s.tags,
		s.syncState,
		s.txManager,
		nil,
		s.logger,
		s.cfg,
	)

	cand := domain.Candidate{ID: "Y", URL: "https://judge.test/Y"}
	problem := &domain.Problem{SourceID: "test-judge", ExternalID: "Y"}

	s.source.EXPECT().ListCandidates(ctx, 10).Return([]domain.Candidate{cand}, nil)
	s.problems.EXPECT().GetExistingExternalIDs(ctx, "test-judge", []string{"Y"}).
		Return(map[string]struct{}{}, nil)
	s.source.EXPECT().FetchProblem(ctx, cand).Return(problem, nil)
	s.passthroughTx(ctx)
	s.problems.EXPECT().Upsert(ctx, problem).Return(int64(1), nil)

	s.expectSyncState(ctx)

	stats, err := service.Sync(ctx)

	s.NoError(err)
	s.Equal(1, stats.New)
	s.Equal(0, stats.Published)
}

// pageTransport serves canned pages by URL, standing in for the HTTP and
// browser transports.
type pageTransport map[string]string

func (t pageTransport) Fetch(_ context.Context, url string, _ fetch.Options) (string, error) {
	page, ok := t[url]
	if !ok {
		return "", fmt.Errorf("no page for %s", url)
	}
	return page, nil
}

func codeforcesProblemPage(index, title string) string {
	return fmt.Sprintf(`<html><body><div class="problem-statement">
		<div class="header">
			<div class="title">%s. %s</div>
			<div class="time-limit"><div class="property-title">time limit per test</div>1 second</div>
			<div class="memory-limit"><div class="property-title">memory limit per test</div>256 megabytes</div>
		</div>
		<div class="legend"><p>Statement for %s.</p></div>
		<div class="input-specification"><div class="section-title">Input</div><p>Input spec.</p></div>
		<div class="output-specification"><div class="section-title">Output</div><p>Output spec.</p></div>
		<div class="sample-test">
			<div class="input"><pre>6 6 4</pre></div>
			<div class="output"><pre>4</pre></div>
		</div>
	</div>
	<span class="tag-box">math</span>
	</body></html>`, index, title, title)
}

// Full pass over a real source: listing discovery, per-problem fetch and
// extraction, storage and publishing, with only the transport stubbed.
func (s *SyncServiceTestSuite) TestSync_EndToEndCodeforces() {
	ctx := context.Background()

	transport := pageTransport{
		"https://codeforces.com/problemset": `<html><body><table class="problems">
			<tr><td class="id"><a href="/problemset/problem/1/A">1A</a></td><td><a href="/problemset/problem/1/A">Theatre Square</a></td></tr>
			<tr><td class="id"><a href="/problemset/problem/1/B">1B</a></td><td><a href="/problemset/problem/1/B">Spreadsheets</a></td></tr>
			<tr><td class="id"><a href="/problemset/problem/4/C">4C</a></td><td><a href="/problemset/problem/4/C">Registration System</a></td></tr>
		</table></body></html>`,
		"https://codeforces.com/problemset/problem/1/A": codeforcesProblemPage("A", "Theatre Square"),
		"https://codeforces.com/problemset/problem/1/B": codeforcesProblemPage("B", "Spreadsheets"),
	}

	source, err := judge.New(domain.SourceCodeforces, judge.Config{
		Transport:    transport,
		RequestDelay: time.Nanosecond,
		Retry: retry.Config{
			MaxAttempts:    1,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     time.Millisecond,
			Sleep:          func(context.Context, time.Duration) error { return nil },
		},
	}, s.logger)
	s.Require().NoError(err)

	service := NewSyncService(
		source,
		s.problems,
		s.tags,
		s.syncState,
		s.txManager,
		s.publisher,
		s.logger,
		config.SyncConfig{MaxProblemsPerSync: 2},
	)

	s.problems.EXPECT().GetExistingExternalIDs(ctx, "codeforces", []string{"1A", "1B"}).
		Return(map[string]struct{}{}, nil)

	s.txManager.EXPECT().WithTransaction(ctx, gomock.Any()).DoAndReturn(
		func(ctx context.Context, fn func(context.Context) error) error {
			return fn(ctx)
		},
	).Times(2)

	var stored []*domain.Problem
	s.problems.EXPECT().Upsert(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, p *domain.Problem) (int64, error) {
			stored = append(stored, p)
			return int64(len(stored)), nil
		},
	).Times(2)
	s.tags.EXPECT().UpsertBatch(ctx, []string{"math"}).
		Return(map[string]int64{"math": 7}, nil).Times(2)
	s.tags.EXPECT().LinkToProblem(ctx, gomock.Any(), []int64{7}).Return(nil).Times(2)

	s.publisher.EXPECT().Publish(ctx, gomock.Any(), true).Return(nil).Times(2)

	s.syncState.EXPECT().Get(ctx, "codeforces").Return(&domain.SyncState{SourceID: "codeforces"}, nil)
	s.syncState.EXPECT().Update(ctx, gomock.Any()).Return(nil)

	stats, err := service.Sync(ctx)

	s.NoError(err)
	s.Equal("codeforces", stats.SourceID)
	s.Equal(2, stats.Fetched)
	s.Equal(2, stats.New)
	s.Equal(0, stats.Failed)
	s.Equal(2, stats.Published)

	s.Require().Len(stored, 2)
	s.Equal("1A", stored[0].ExternalID)
	s.Equal("1B", stored[1].ExternalID)
	for _, p := range stored {
		s.Equal("codeforces", p.SourceID)
		s.Require().NotNil(p.Sections.StatementHTML)
		s.NotEmpty(*p.Sections.StatementHTML)
		s.Equal(1000, p.TimeLimitMs)
		s.Equal(256*1024, p.MemLimitKb)
	}
	s.Equal("Theatre Square", stored[0].Title)
	s.Equal("Spreadsheets", stored[1].Title)
}

func (s *SyncServiceTestSuite) TestSync_EmptyListing() {
	ctx := context.Background()

	s.source.EXPECT().ListCandidates(ctx, 10).Return(nil, nil)
	s.expectSyncState(ctx)

	stats, err := s.service.Sync(ctx)

	s.NoError(err)
	s.Equal(0, stats.Fetched)
	s.Equal(0, stats.New)
}
