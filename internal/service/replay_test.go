package service

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"heroesprofile-filter/internal/api"
	"heroesprofile-filter/internal/cache"
	"heroesprofile-filter/internal/config"
	"heroesprofile-filter/internal/domain"
	"heroesprofile-filter/internal/pkg/json"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// fakeHeroesProfile serves listings per game_type label and one detail
// document per replay ID.
type fakeHeroesProfile struct {
	mu            sync.Mutex
	listings      map[string][]string
	listingBody   map[string]string
	listingStatus int
	detailStatus  map[string]int
	dropKey       map[string]bool
	onDetail      func(replayID string)

	listingQueries []map[string]string
	detailCalls    []string
}

func newFakeHeroesProfile() *fakeHeroesProfile {
	return &fakeHeroesProfile{
		listings:     make(map[string][]string),
		listingBody:  make(map[string]string),
		detailStatus: make(map[string]int),
		dropKey:      make(map[string]bool),
	}
}

func (f *fakeHeroesProfile) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	q := r.URL.Query()
	w.Header().Set("Content-Type", "application/json")

	switch r.URL.Path {
	case "/Player/Replays":
		f.listingQueries = append(f.listingQueries, map[string]string{
			"mode":      q.Get("mode"),
			"region":    q.Get("region"),
			"game_type": q.Get("game_type"),
			"battletag": q.Get("battletag"),
			"api_token": q.Get("api_token"),
		})
		if f.listingStatus != 0 {
			w.WriteHeader(f.listingStatus)
			return
		}
		label := q.Get("game_type")
		if body, ok := f.listingBody[label]; ok {
			w.Write([]byte(body))
			return
		}
		body, _ := json.Marshal(map[string][]string{label: f.listings[label]})
		w.Write(body)
	case "/Replay/Data":
		replayID := q.Get("replayID")
		f.detailCalls = append(f.detailCalls, replayID)
		if f.onDetail != nil {
			f.onDetail(replayID)
		}
		if status := f.detailStatus[replayID]; status != 0 {
			w.WriteHeader(status)
			fmt.Fprintf(w, `{"error":"replay %s unavailable"}`, replayID)
			return
		}
		key := replayID
		if f.dropKey[replayID] {
			key = "other"
		}
		fmt.Fprintf(w, `{%q: {"replay_id": %q, "game_map": "Cursed Hollow", "players": [1, 2]}}`, key, replayID)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeHeroesProfile) detailCallsSnapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.detailCalls...)
}

func (f *fakeHeroesProfile) listingCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listingQueries)
}

func (f *fakeHeroesProfile) resetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listingQueries = nil
	f.detailCalls = nil
}

type testEnv struct {
	fake  *fakeHeroesProfile
	svc   *ReplayService
	store *cache.Store
	id    domain.Identity
}

func newTestEnv(t *testing.T, categories ...domain.Category) *testEnv {
	t.Helper()

	fake := newFakeHeroesProfile()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	cfg := &config.Settings{CacheDir: t.TempDir(), RequestTimeout: 5 * time.Second}
	store := cache.NewStore(cfg, zerolog.Nop())
	svc := NewReplayService(api.NewClient(cfg), store, zerolog.Nop())

	if len(categories) == 0 {
		categories = []domain.Category{domain.QuickMatch}
	}
	id := domain.Identity{
		BattleTag:  "Alice#1234",
		APIToken:   "secret-token",
		BaseURL:    srv.URL,
		Mode:       "json",
		Region:     "2",
		Categories: categories,
	}
	return &testEnv{fake: fake, svc: svc, store: store, id: id}
}

func (e *testEnv) readAdvanced(t *testing.T, c domain.Category) map[string]json.RawMessage {
	t.Helper()
	data, err := os.ReadFile(e.store.AdvancedPath(e.id, c))
	require.NoError(t, err)
	var records map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &records))
	return records
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func keys(m map[string]json.RawMessage) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestFetchIdentityDownloadsListingAndDetails(t *testing.T) {
	env := newTestEnv(t)
	env.fake.listings["Quick Match"] = []string{"101", "102", "103"}

	results, err := env.svc.FetchIdentity(context.Background(), env.id)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, 3, results[0].Listed)
	require.Equal(t, 3, results[0].Fetched)
	require.Equal(t, 0, results[0].Cached)
	require.NoError(t, results[0].Err)

	require.Equal(t, []map[string]string{{
		"mode":      "json",
		"region":    "2",
		"game_type": "Quick Match",
		"battletag": "Alice#1234",
		"api_token": "secret-token",
	}}, env.fake.listingQueries)
	require.Equal(t, []string{"101", "102", "103"}, env.fake.detailCallsSnapshot())

	require.FileExists(t, env.store.BasePath(env.id, domain.QuickMatch))
	records := env.readAdvanced(t, domain.QuickMatch)
	require.ElementsMatch(t, []string{"101", "102", "103"}, keys(records))
	require.JSONEq(t, `{"replay_id": "102", "game_map": "Cursed Hollow", "players": [1, 2]}`, string(records["102"]))
}

func TestCacheLayoutUsesUsername(t *testing.T) {
	env := newTestEnv(t)
	env.fake.listings["Quick Match"] = []string{"1"}

	_, err := env.svc.FetchIdentity(context.Background(), env.id)
	require.NoError(t, err)

	base := env.store.BasePath(env.id, domain.QuickMatch)
	require.Equal(t, filepath.Join("Alice", "base", "qm"), lastElems(base, 3))
	adv := env.store.AdvancedPath(env.id, domain.QuickMatch)
	require.Equal(t, filepath.Join("Alice", "advanced", "qm"), lastElems(adv, 3))
}

func lastElems(path string, n int) string {
	parts := []string{}
	for i := 0; i < n; i++ {
		parts = append([]string{filepath.Base(path)}, parts...)
		path = filepath.Dir(path)
	}
	return filepath.Join(parts...)
}

func TestFetchIdentityIsIdempotent(t *testing.T) {
	env := newTestEnv(t, domain.QuickMatch, domain.ARAM)
	env.fake.listings["Quick Match"] = []string{"1", "2"}
	env.fake.listings["ARAM"] = []string{"3"}

	_, err := env.svc.FetchIdentity(context.Background(), env.id)
	require.NoError(t, err)

	before := map[string][]byte{}
	for _, c := range env.id.Categories {
		for _, p := range []string{env.store.BasePath(env.id, c), env.store.AdvancedPath(env.id, c)} {
			data, err := os.ReadFile(p)
			require.NoError(t, err)
			before[p] = data
		}
	}

	env.fake.resetCalls()
	results, err := env.svc.FetchIdentity(context.Background(), env.id)
	require.NoError(t, err)

	for _, r := range results {
		require.Equal(t, 0, r.Fetched, r.Category.Key())
		require.Equal(t, r.Listed, r.Cached)
		require.True(t, r.Complete())
	}
	require.Zero(t, env.fake.listingCallCount())
	require.Empty(t, env.fake.detailCallsSnapshot())

	for p, data := range before {
		after, err := os.ReadFile(p)
		require.NoError(t, err)
		require.Equal(t, string(data), string(after), p)
	}
}

func TestReconcileResumesAfterPartialFailure(t *testing.T) {
	env := newTestEnv(t)
	env.fake.listings["Quick Match"] = []string{"1", "2", "3", "4", "5"}
	env.fake.detailStatus["3"] = http.StatusTooManyRequests

	results, err := env.svc.FetchIdentity(context.Background(), env.id)
	require.NoError(t, err)
	require.Len(t, results, 1)

	first := results[0]
	require.Equal(t, 2, first.Fetched)
	require.Equal(t, "3", first.FailedReplayID)
	require.ErrorIs(t, first.Err, domain.ErrDetailFetch)
	require.Equal(t, http.StatusTooManyRequests, api.StatusCode(first.Err))
	require.Equal(t, []string{"1", "2", "3"}, env.fake.detailCallsSnapshot())
	require.ElementsMatch(t, []string{"1", "2"}, keys(env.readAdvanced(t, domain.QuickMatch)))

	delete(env.fake.detailStatus, "3")
	env.fake.resetCalls()

	results, err = env.svc.FetchIdentity(context.Background(), env.id)
	require.NoError(t, err)
	require.Equal(t, 3, results[0].Fetched)
	require.Equal(t, 2, results[0].Cached)
	require.NoError(t, results[0].Err)
	require.Equal(t, []string{"3", "4", "5"}, env.fake.detailCallsSnapshot())
	require.ElementsMatch(t, []string{"1", "2", "3", "4", "5"}, keys(env.readAdvanced(t, domain.QuickMatch)))
}

func TestDetailFailureDoesNotStopOtherCategories(t *testing.T) {
	env := newTestEnv(t, domain.QuickMatch, domain.ARAM)
	env.fake.listings["Quick Match"] = []string{"1", "2"}
	env.fake.listings["ARAM"] = []string{"7", "8"}
	env.fake.detailStatus["1"] = http.StatusInternalServerError

	results, err := env.svc.FetchIdentity(context.Background(), env.id)
	require.NoError(t, err)
	require.Len(t, results, 2)

	require.ErrorIs(t, results[0].Err, domain.ErrDetailFetch)
	require.Equal(t, 0, results[0].Fetched)
	require.Empty(t, env.readAdvanced(t, domain.QuickMatch))

	require.NoError(t, results[1].Err)
	require.Equal(t, 2, results[1].Fetched)
	require.Equal(t, []string{"1", "7", "8"}, env.fake.detailCallsSnapshot())
}

func TestDetailResponseWithoutReplayKeyStopsCategory(t *testing.T) {
	env := newTestEnv(t)
	env.fake.listings["Quick Match"] = []string{"1", "2", "3"}
	env.fake.dropKey["2"] = true

	results, err := env.svc.FetchIdentity(context.Background(), env.id)
	require.NoError(t, err)
	require.ErrorIs(t, results[0].Err, domain.ErrDetailFetch)
	require.Equal(t, "2", results[0].FailedReplayID)
	require.Equal(t, 1, results[0].Fetched)
	require.ElementsMatch(t, []string{"1"}, keys(env.readAdvanced(t, domain.QuickMatch)))
}

func TestEnsureBaseListingSkipsExistingFile(t *testing.T) {
	env := newTestEnv(t)
	env.fake.listings["Quick Match"] = []string{"1", "2"}
	writeFile(t, env.store.BasePath(env.id, domain.QuickMatch), `{}`)

	listing, err := env.svc.EnsureBaseListing(context.Background(), env.id, domain.QuickMatch)
	require.NoError(t, err)
	require.Empty(t, listing.ReplayIDs(domain.QuickMatch))
	require.Zero(t, env.fake.listingCallCount())
}

func TestEmptyListingWritesBackExistingRecords(t *testing.T) {
	env := newTestEnv(t)
	writeFile(t, env.store.BasePath(env.id, domain.QuickMatch), `{"Quick Match": []}`)
	existing := `{"42": {"game_map": "Braxis Holdout"}}`
	writeFile(t, env.store.AdvancedPath(env.id, domain.QuickMatch), existing)

	results, err := env.svc.FetchIdentity(context.Background(), env.id)
	require.NoError(t, err)
	require.Equal(t, 0, results[0].Fetched)
	require.Equal(t, 0, results[0].Listed)
	require.Equal(t, "empty", results[0].Status())
	require.Zero(t, env.fake.listingCallCount())
	require.Empty(t, env.fake.detailCallsSnapshot())

	data, err := os.ReadFile(env.store.AdvancedPath(env.id, domain.QuickMatch))
	require.NoError(t, err)
	require.JSONEq(t, existing, string(data))
}

func TestMissingAdvancedFileIsCreated(t *testing.T) {
	env := newTestEnv(t)
	writeFile(t, env.store.BasePath(env.id, domain.QuickMatch), `{"Quick Match": []}`)

	_, err := env.svc.FetchIdentity(context.Background(), env.id)
	require.NoError(t, err)

	data, err := os.ReadFile(env.store.AdvancedPath(env.id, domain.QuickMatch))
	require.NoError(t, err)
	require.JSONEq(t, `{}`, string(data))
}

func TestCorruptListingIsFatalBeforeAdvancedPhase(t *testing.T) {
	env := newTestEnv(t, domain.QuickMatch, domain.StormLeague)
	env.fake.listings["Quick Match"] = []string{"1"}
	writeFile(t, env.store.BasePath(env.id, domain.StormLeague), "not json")

	results, err := env.svc.FetchIdentity(context.Background(), env.id)
	require.ErrorIs(t, err, domain.ErrListingCorrupt)
	require.True(t, domain.IsFatal(err))
	require.Empty(t, results)
	require.Empty(t, env.fake.detailCallsSnapshot())
	require.NoFileExists(t, env.store.AdvancedPath(env.id, domain.QuickMatch))
}

func TestListingFetchErrorIsFatal(t *testing.T) {
	env := newTestEnv(t)
	env.fake.listingStatus = http.StatusUnauthorized

	_, err := env.svc.FetchIdentity(context.Background(), env.id)
	require.ErrorIs(t, err, domain.ErrListingFetch)
	require.Equal(t, http.StatusUnauthorized, api.StatusCode(err))
	require.NoFileExists(t, env.store.BasePath(env.id, domain.QuickMatch))
}

func TestCorruptAdvancedFileIsFatal(t *testing.T) {
	env := newTestEnv(t)
	writeFile(t, env.store.BasePath(env.id, domain.QuickMatch), `{"Quick Match": ["1"]}`)
	writeFile(t, env.store.AdvancedPath(env.id, domain.QuickMatch), `{"1": `)

	_, err := env.svc.FetchIdentity(context.Background(), env.id)
	require.ErrorIs(t, err, domain.ErrAdvancedCorrupt)
	require.Empty(t, env.fake.detailCallsSnapshot())
}

func TestAdvancedKeysStayWithinListing(t *testing.T) {
	env := newTestEnv(t, domain.AllCategories()...)
	env.fake.listings["Quick Match"] = []string{"1", "2"}
	env.fake.listings["Storm League"] = []string{"3"}
	env.fake.listings["ARAM"] = []string{"4", "5", "6"}
	env.fake.detailStatus["5"] = http.StatusBadGateway

	_, err := env.svc.FetchIdentity(context.Background(), env.id)
	require.NoError(t, err)

	for _, c := range domain.AllCategories() {
		listing, err := env.store.LoadBaseListing(env.id, c)
		require.NoError(t, err)
		listed := map[string]bool{}
		for _, id := range listing.ReplayIDs(c) {
			listed[id] = true
		}
		for key := range env.readAdvanced(t, c) {
			require.True(t, listed[key], "%s: %s not in listing", c.Key(), key)
		}
	}
}

func TestCancelledRunSavesProgress(t *testing.T) {
	env := newTestEnv(t)
	env.fake.listings["Quick Match"] = []string{"1", "2", "3"}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	env.fake.onDetail = func(replayID string) {
		if replayID == "1" {
			cancel()
		}
	}

	results, err := env.svc.FetchIdentity(ctx, env.id)
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, results, 1)
	require.Equal(t, 1, results[0].Fetched)
	require.Equal(t, "partial", results[0].Status())
	require.Equal(t, []string{"1"}, env.fake.detailCallsSnapshot())
	require.ElementsMatch(t, []string{"1"}, keys(env.readAdvanced(t, domain.QuickMatch)))
}

func TestListingWithExtraKeysIsUsable(t *testing.T) {
	env := newTestEnv(t)
	env.fake.listingBody["Quick Match"] = `{"Quick Match":["1","2"],"meta":{"page":1}}`

	results, err := env.svc.FetchIdentity(context.Background(), env.id)
	require.NoError(t, err)
	require.Equal(t, 2, results[0].Fetched)

	env.fake.resetCalls()
	results, err = env.svc.FetchIdentity(context.Background(), env.id)
	require.NoError(t, err)
	require.Equal(t, "up-to-date", results[0].Status())
	require.Zero(t, env.fake.listingCallCount())
}

func TestNullListingIsEmpty(t *testing.T) {
	env := newTestEnv(t)
	env.fake.listingBody["Quick Match"] = `null`

	results, err := env.svc.FetchIdentity(context.Background(), env.id)
	require.NoError(t, err)
	require.Equal(t, "empty", results[0].Status())
	require.FileExists(t, env.store.BasePath(env.id, domain.QuickMatch))
}

func TestMalformedListingResponseIsNotCached(t *testing.T) {
	env := newTestEnv(t)
	env.fake.listingBody["Quick Match"] = `{"Quick Match": {"1": true}}`

	_, err := env.svc.FetchIdentity(context.Background(), env.id)
	require.ErrorIs(t, err, domain.ErrListingFetch)
	require.NoFileExists(t, env.store.BasePath(env.id, domain.QuickMatch))

	delete(env.fake.listingBody, "Quick Match")
	env.fake.listings["Quick Match"] = []string{"1"}

	results, err := env.svc.FetchIdentity(context.Background(), env.id)
	require.NoError(t, err)
	require.Equal(t, 1, results[0].Fetched)
}

func TestDuplicateListedIDsAreFetchedOnce(t *testing.T) {
	env := newTestEnv(t)
	env.fake.listings["Quick Match"] = []string{"1", "1", "2"}

	results, err := env.svc.FetchIdentity(context.Background(), env.id)
	require.NoError(t, err)
	require.Equal(t, 2, results[0].Listed)
	require.Equal(t, 2, results[0].Fetched)
	require.True(t, results[0].Complete())
	require.Equal(t, []string{"1", "2"}, env.fake.detailCallsSnapshot())

	results, err = env.svc.FetchIdentity(context.Background(), env.id)
	require.NoError(t, err)
	require.Equal(t, 2, results[0].Cached)
	require.Equal(t, "up-to-date", results[0].Status())
}
