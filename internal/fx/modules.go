package fx

import (
	"heroesprofile-filter/internal/api"
	"heroesprofile-filter/internal/cache"
	"heroesprofile-filter/internal/config"
	"heroesprofile-filter/internal/database"
	"heroesprofile-filter/internal/identity"
	"heroesprofile-filter/internal/logger"
	"heroesprofile-filter/internal/repository"
	"heroesprofile-filter/internal/service"

	"go.uber.org/fx"
)

func ProvideHistoryRecorder(repo *repository.HistoryRepository) service.HistoryRecorder {
	return repo
}

// Base is enough to read the fetch history. It expects config.Flags to be
// supplied.
var Base = fx.Options(
	fx.Provide(config.Load),
	logger.Module,
	fx.Provide(database.Provide),
	fx.Provide(repository.NewHistoryRepository),
)

// Module wires a full download run.
var Module = fx.Options(
	Base,
	fx.Provide(config.LoadDocument),
	fx.Provide(identity.Provide),
	// cache
	fx.Provide(cache.NewStore),
	fx.Provide(cache.NewLock),
	fx.Invoke(cache.RegisterLock),
	// api client
	fx.Provide(fx.Annotate(api.NewClient, fx.As(new(service.ReplayClient)))),
	// svc
	fx.Provide(ProvideHistoryRecorder),
	fx.Provide(service.NewReplayService),
	fx.Provide(service.NewDownloader),
)
