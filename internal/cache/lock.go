package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"heroesprofile-filter/internal/config"
	"heroesprofile-filter/internal/constants"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

// Lock gives one process exclusive use of a cache directory. Cache files are
// rewritten without coordination, so two runs must never share a directory.
type Lock struct {
	path  string
	flock *flock.Flock
}

func NewLock(cfg *config.Settings) *Lock {
	path := filepath.Join(cfg.CacheDir, constants.LockFileName)
	return &Lock{path: path, flock: flock.New(path)}
}

func (l *Lock) Acquire() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}
	ok, err := l.flock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("another heroesprofile-filter run is using %s", filepath.Dir(l.path))
	}
	return nil
}

func (l *Lock) Release() error {
	return l.flock.Unlock()
}

// RegisterLock holds the lock for the lifetime of the fx app.
func RegisterLock(lc fx.Lifecycle, l *Lock, logger zerolog.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := l.Acquire(); err != nil {
				return err
			}
			logger.Debug().Str("lock", l.path).Msg("cache lock acquired")
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := l.Release(); err != nil {
				logger.Warn().Err(err).Msg("failed to release cache lock")
				return err
			}
			return nil
		},
	})
}
