package service

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"heroesprofile-filter/internal/domain"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type recordedRun struct {
	status  string
	errMsg  string
	results []domain.CategoryResult
}

type fakeRecorder struct {
	mu       sync.Mutex
	runs     map[string]*recordedRun
	startErr error
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{runs: make(map[string]*recordedRun)}
}

func (r *fakeRecorder) StartRun(_ context.Context, runID string, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.startErr != nil {
		return r.startErr
	}
	r.runs[runID] = &recordedRun{status: domain.RunStatusRunning}
	return nil
}

func (r *fakeRecorder) RecordCategory(_ context.Context, runID string, result domain.CategoryResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[runID]
	if !ok {
		return errors.New("unknown run")
	}
	run.results = append(run.results, result)
	return nil
}

func (r *fakeRecorder) FinishRun(ctx context.Context, runID string, _ time.Time, status, errMsg string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[runID]
	if !ok {
		return errors.New("unknown run")
	}
	run.status = status
	run.errMsg = errMsg
	return nil
}

func TestDownloaderRunsEveryIdentity(t *testing.T) {
	env := newTestEnv(t)
	env.fake.listings["Quick Match"] = []string{"1", "2"}

	bob := env.id
	bob.BattleTag = "Bob#4321"

	recorder := newFakeRecorder()
	d := NewDownloader(env.svc, recorder, []domain.Identity{env.id, bob}, zerolog.Nop())

	summary, err := d.Run(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, summary.RunID)
	require.Len(t, summary.Results, 2)
	require.Equal(t, "Alice#1234", summary.Results[0].BattleTag)
	require.Equal(t, "Bob#4321", summary.Results[1].BattleTag)
	require.Equal(t, 4, summary.Fetched())
	require.Zero(t, summary.Failures())

	run := recorder.runs[summary.RunID]
	require.NotNil(t, run)
	require.Equal(t, domain.RunStatusOK, run.status)
	require.Len(t, run.results, 2)
}

func TestDownloaderReportsPartialRun(t *testing.T) {
	env := newTestEnv(t)
	env.fake.listings["Quick Match"] = []string{"1", "2"}
	env.fake.detailStatus["2"] = http.StatusServiceUnavailable

	recorder := newFakeRecorder()
	d := NewDownloader(env.svc, recorder, []domain.Identity{env.id}, zerolog.Nop())

	summary, err := d.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.Failures())
	require.Equal(t, 1, summary.Fetched())
	require.Equal(t, domain.RunStatusPartial, recorder.runs[summary.RunID].status)
}

func TestDownloaderStopsOnFatalError(t *testing.T) {
	env := newTestEnv(t)
	env.fake.listingStatus = http.StatusForbidden

	bob := env.id
	bob.BattleTag = "Bob#4321"

	recorder := newFakeRecorder()
	d := NewDownloader(env.svc, recorder, []domain.Identity{env.id, bob}, zerolog.Nop())

	summary, err := d.Run(context.Background())
	require.ErrorIs(t, err, domain.ErrListingFetch)
	require.Empty(t, summary.Results)
	require.Equal(t, 1, env.fake.listingCallCount())

	run := recorder.runs[summary.RunID]
	require.Equal(t, domain.RunStatusFailed, run.status)
	require.Contains(t, run.errMsg, "403")
}

func TestDownloaderRecordsHistoryAfterCancel(t *testing.T) {
	env := newTestEnv(t)
	env.fake.listings["Quick Match"] = []string{"1", "2", "3"}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	env.fake.onDetail = func(string) { cancel() }

	recorder := newFakeRecorder()
	d := NewDownloader(env.svc, recorder, []domain.Identity{env.id}, zerolog.Nop())

	summary, err := d.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	run := recorder.runs[summary.RunID]
	require.Equal(t, domain.RunStatusFailed, run.status)
	require.Len(t, run.results, 1)
	require.Equal(t, 1, run.results[0].Fetched)
}

func TestDownloaderToleratesHistoryFailures(t *testing.T) {
	env := newTestEnv(t)
	env.fake.listings["Quick Match"] = []string{"1"}

	recorder := newFakeRecorder()
	recorder.startErr = errors.New("database is locked")
	d := NewDownloader(env.svc, recorder, []domain.Identity{env.id}, zerolog.Nop())

	summary, err := d.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.Fetched())
}

func TestDownloaderWithoutHistory(t *testing.T) {
	env := newTestEnv(t)
	env.fake.listings["Quick Match"] = []string{"1"}

	d := NewDownloader(env.svc, nil, []domain.Identity{env.id}, zerolog.Nop())

	summary, err := d.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.Fetched())
}
