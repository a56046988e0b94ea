package service

import (
	"context"
	"time"

	"heroesprofile-filter/internal/constants"
	"heroesprofile-filter/internal/domain"
	"heroesprofile-filter/internal/runctx"

	"github.com/rs/zerolog"
)

type HistoryRecorder interface {
	StartRun(ctx context.Context, runID string, startedAt time.Time) error
	RecordCategory(ctx context.Context, runID string, result domain.CategoryResult) error
	FinishRun(ctx context.Context, runID string, finishedAt time.Time, status, errMsg string) error
}

type Summary struct {
	RunID   string
	Results []domain.CategoryResult
}

func (s Summary) Fetched() int {
	total := 0
	for _, r := range s.Results {
		total += r.Fetched
	}
	return total
}

func (s Summary) Failures() int {
	failures := 0
	for _, r := range s.Results {
		if r.Err != nil {
			failures++
		}
	}
	return failures
}

// Downloader walks every configured identity in order. Identities are
// processed one at a time, never concurrently.
type Downloader struct {
	replays    *ReplayService
	history    HistoryRecorder
	identities []domain.Identity
	logger     zerolog.Logger
}

func NewDownloader(replays *ReplayService, history HistoryRecorder, identities []domain.Identity, logger zerolog.Logger) *Downloader {
	return &Downloader{replays: replays, history: history, identities: identities, logger: logger}
}

// Run fetches everything for all identities. A returned error is fatal and
// means the run stopped early; detail fetch failures are only reported in
// the summary.
func (d *Downloader) Run(ctx context.Context) (Summary, error) {
	ctx, runID := runctx.New(ctx, d.logger)
	log := runctx.Logger(ctx, d.logger)
	summary := Summary{RunID: runID}

	start := time.Now()
	log.Info().Int("battle_tags", len(d.identities)).Msg("starting heroesprofile-filter run")
	d.startRun(ctx, runID, start)

	var runErr error
	for _, id := range d.identities {
		log.Info().Str("battletag", id.BattleTag).Msg("processing battle tag")

		results, err := d.replays.FetchIdentity(ctx, id)
		for _, result := range results {
			d.recordCategory(ctx, runID, result)
		}
		summary.Results = append(summary.Results, results...)
		if err != nil {
			runErr = err
			break
		}
	}

	status := domain.RunStatusOK
	switch {
	case runErr != nil:
		status = domain.RunStatusFailed
	case summary.Failures() > 0:
		status = domain.RunStatusPartial
	}
	d.finishRun(ctx, runID, status, runErr)

	log.Info().
		Str("status", status).
		Int("fetched", summary.Fetched()).
		Int("failures", summary.Failures()).
		Dur("duration", time.Since(start)).
		Msg("run finished")

	return summary, runErr
}

func (d *Downloader) startRun(ctx context.Context, runID string, start time.Time) {
	if d.history == nil {
		return
	}
	if err := d.history.StartRun(ctx, runID, start); err != nil {
		runctx.Logger(ctx, d.logger).Warn().Err(err).Msg("failed to record run start")
	}
}

func (d *Downloader) recordCategory(ctx context.Context, runID string, result domain.CategoryResult) {
	if d.history == nil {
		return
	}
	ctx, cancel := detached(ctx)
	defer cancel()
	if err := d.history.RecordCategory(ctx, runID, result); err != nil {
		runctx.Logger(ctx, d.logger).Warn().
			Err(err).
			Str("battletag", result.BattleTag).
			Str("game_type", result.Category.Key()).
			Msg("failed to record category result")
	}
}

func (d *Downloader) finishRun(ctx context.Context, runID, status string, runErr error) {
	if d.history == nil {
		return
	}
	var errMsg string
	if runErr != nil {
		errMsg = runErr.Error()
	}
	ctx, cancel := detached(ctx)
	defer cancel()
	if err := d.history.FinishRun(ctx, runID, time.Now(), status, errMsg); err != nil {
		runctx.Logger(ctx, d.logger).Warn().Err(err).Msg("failed to record run result")
	}
}

// detached keeps history writes going after the run context was cancelled,
// so an interrupted run still records how far it got.
func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), constants.ShutdownTimeout)
}
