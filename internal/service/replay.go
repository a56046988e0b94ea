package service

import (
	"context"
	"fmt"

	"heroesprofile-filter/internal/api"
	"heroesprofile-filter/internal/cache"
	"heroesprofile-filter/internal/domain"
	"heroesprofile-filter/internal/pkg/json"
	"heroesprofile-filter/internal/runctx"

	"github.com/rs/zerolog"
)

type ReplayClient interface {
	GetReplays(ctx context.Context, id domain.Identity, category domain.Category) ([]byte, error)
	GetReplayData(ctx context.Context, id domain.Identity, replayID string) ([]byte, error)
}

// rateLimitReporter is implemented by clients that track the API rate limit
// headers.
type rateLimitReporter interface {
	GetRateLimitInfo() api.RateLimitInfo
}

type ReplayService struct {
	client ReplayClient
	store  *cache.Store
	logger zerolog.Logger
}

func NewReplayService(client ReplayClient, store *cache.Store, logger zerolog.Logger) *ReplayService {
	return &ReplayService{client: client, store: store, logger: logger}
}

// FetchIdentity downloads the base listings of every selected category and
// then fills in the advanced records. The returned error is always fatal;
// detail failures only show up in the per category results.
func (s *ReplayService) FetchIdentity(ctx context.Context, id domain.Identity) ([]domain.CategoryResult, error) {
	listings := make(map[domain.Category]domain.BaseListing, len(id.Categories))
	for _, category := range id.Categories {
		listing, err := s.EnsureBaseListing(ctx, id, category)
		if err != nil {
			return nil, err
		}
		listings[category] = listing
	}

	results := make([]domain.CategoryResult, 0, len(id.Categories))
	for _, category := range id.Categories {
		result, err := s.ReconcileAdvanced(ctx, id, category, listings[category])
		results = append(results, result)
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

// EnsureBaseListing downloads the listing unless a cache file for it
// already exists, then parses the cached file.
func (s *ReplayService) EnsureBaseListing(ctx context.Context, id domain.Identity, category domain.Category) (domain.BaseListing, error) {
	log := runctx.Logger(ctx, s.logger).With().
		Str("username", id.Username()).
		Str("game_type", category.Key()).
		Logger()

	if !s.store.HasBaseListing(id, category) {
		log.Info().Msg("downloading base replays")

		body, err := s.client.GetReplays(ctx, id, category)
		if err != nil {
			log.Error().Err(err).Int("status", api.StatusCode(err)).Msg("failed to download base replays")
			return nil, domain.Wrap(domain.ErrListingFetch, fmt.Sprintf("%s/%s", id.BattleTag, category.Key()), err)
		}
		if err := s.store.WriteBaseListing(id, category, body); err != nil {
			log.Error().Err(err).Msg("failed to store base replays")
			return nil, domain.Wrap(domain.ErrListingFetch, fmt.Sprintf("%s/%s", id.BattleTag, category.Key()), err)
		}
	} else {
		log.Debug().Str("path", s.store.BasePath(id, category)).Msg("base replays already cached")
	}

	listing, err := s.store.LoadBaseListing(id, category)
	if err != nil {
		log.Error().Err(err).Msg("base replays file is not valid JSON")
		return nil, err
	}
	return listing, nil
}

// ReconcileAdvanced fetches the detail of every listed replay that is not
// cached yet, in listing order. It stops at the first failed fetch and always
// writes back what it has, so the next run resumes from there.
func (s *ReplayService) ReconcileAdvanced(ctx context.Context, id domain.Identity, category domain.Category, listing domain.BaseListing) (domain.CategoryResult, error) {
	log := runctx.Logger(ctx, s.logger).With().
		Str("username", id.Username()).
		Str("game_type", category.Key()).
		Logger()

	result := domain.CategoryResult{BattleTag: id.BattleTag, Category: category}

	log.Info().Msg("downloading advanced replays")

	records, err := s.store.LoadAdvanced(id, category)
	if err != nil {
		log.Error().Err(err).Msg("failed to load advanced replays")
		return result, err
	}

	replayIDs := distinct(listing.ReplayIDs(category))
	result.Listed = len(replayIDs)

	if len(replayIDs) == 0 {
		if err := s.store.SaveAdvanced(id, category, records); err != nil {
			return result, fmt.Errorf("failed to save advanced replays: %w", err)
		}
		log.Info().Msg("no replays exist")
		return result, nil
	}

	for _, replayID := range replayIDs {
		if _, ok := records[replayID]; ok {
			result.Cached++
		}
	}

	var fatal error
	for _, replayID := range replayIDs {
		if _, ok := records[replayID]; ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			fatal = err
			break
		}

		payload, err := s.fetchDetail(ctx, id, replayID)
		if err != nil {
			if ctx.Err() != nil {
				fatal = ctx.Err()
				break
			}
			event := log.Error().
				Err(err).
				Str("replay_id", replayID).
				Int("status", api.StatusCode(err))
			if rl, ok := s.client.(rateLimitReporter); ok {
				if info := rl.GetRateLimitInfo(); !info.UpdatedAt.IsZero() {
					event = event.Int("rate_limit_remaining", info.Remaining)
				}
			}
			event.Msg("unable to download advanced replay")
			result.FailedReplayID = replayID
			result.Err = domain.Wrap(domain.ErrDetailFetch, "replay "+replayID, err)
			break
		}

		records[replayID] = payload
		result.Fetched++
	}

	if err := s.store.SaveAdvanced(id, category, records); err != nil {
		log.Error().Err(err).Msg("failed to save advanced replays")
		return result, fmt.Errorf("failed to save advanced replays: %w", err)
	}
	if fatal != nil {
		log.Warn().Err(fatal).Int("fetched", result.Fetched).Msg("interrupted, progress saved")
		return result, fatal
	}

	if result.Fetched == 0 && result.Err == nil {
		log.Info().Msg("all replays are already downloaded")
	} else {
		log.Info().Int("fetched", result.Fetched).Msg("advanced replays downloaded")
	}
	return result, nil
}

// distinct drops repeated replay IDs, keeping the first occurrence.
func distinct(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func (s *ReplayService) fetchDetail(ctx context.Context, id domain.Identity, replayID string) (json.RawMessage, error) {
	body, err := s.client.GetReplayData(ctx, id, replayID)
	if err != nil {
		return nil, err
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode replay data: %w", err)
	}
	payload, ok := envelope[replayID]
	if !ok {
		return nil, fmt.Errorf("response has no entry for replay %s", replayID)
	}
	return payload, nil
}
