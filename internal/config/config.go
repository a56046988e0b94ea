package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"heroesprofile-filter/internal/constants"
	"heroesprofile-filter/internal/domain"

	"github.com/joho/godotenv"
)

// Flags holds command line overrides. Empty fields fall back to the
// environment and then to defaults.
type Flags struct {
	ConfigPath string
	CacheDir   string
	LogLevel   string
}

type Settings struct {
	ConfigPath     string
	CacheDir       string
	LogLevel       string
	LogFile        string
	HistoryDBPath  string
	RequestTimeout time.Duration
	RequestRate    float64 // requests per second, 0 means unlimited
	APIToken       string  // used when no api_token_path resolves
}

func Load(flags Flags) (*Settings, error) {
	// .env is optional
	_ = godotenv.Load()

	cfg := &Settings{
		ConfigPath: pick(flags.ConfigPath, getEnv("CONFIG_PATH", constants.DefaultConfigPath)),
		CacheDir:   pick(flags.CacheDir, getEnv("CACHE_DIR", constants.DefaultCacheDir)),
		LogLevel:   pick(flags.LogLevel, getEnv("LOG_LEVEL", "info")),
		APIToken:   os.Getenv("HEROESPROFILE_API_TOKEN"),
	}

	for _, p := range []*string{&cfg.ConfigPath, &cfg.CacheDir} {
		expanded, err := ExpandPath(*p)
		if err != nil {
			return nil, domain.Wrap(domain.ErrConfig, "expand path", err)
		}
		*p = expanded
	}

	logFile, ok := os.LookupEnv("LOG_FILE")
	if !ok {
		logFile = filepath.Join(os.TempDir(), constants.DefaultLogFileName)
	}
	cfg.LogFile = logFile

	cfg.HistoryDBPath = getEnv("HISTORY_DB_PATH", filepath.Join(cfg.CacheDir, constants.DefaultHistoryDBName))

	timeout, err := time.ParseDuration(getEnv("REQUEST_TIMEOUT", constants.ExternalAPITimeout.String()))
	if err != nil {
		return nil, domain.Wrap(domain.ErrConfig, "invalid REQUEST_TIMEOUT", err)
	}
	if timeout <= 0 {
		return nil, domain.Wrap(domain.ErrConfig, fmt.Sprintf("REQUEST_TIMEOUT must be positive, got %s", timeout), nil)
	}
	cfg.RequestTimeout = timeout

	rate, err := strconv.ParseFloat(getEnv("REQUEST_RATE", "0"), 64)
	if err != nil {
		return nil, domain.Wrap(domain.ErrConfig, "invalid REQUEST_RATE", err)
	}
	if rate < 0 {
		return nil, domain.Wrap(domain.ErrConfig, "REQUEST_RATE must not be negative", nil)
	}
	cfg.RequestRate = rate

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func pick(flag, fallback string) string {
	if flag != "" {
		return flag
	}
	return fallback
}

// ExpandPath replaces a leading "~" with the user's home directory.
func ExpandPath(pathValue string) (string, error) {
	if !strings.HasPrefix(pathValue, "~") {
		return pathValue, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	if pathValue == "~" {
		return home, nil
	}
	if pathValue[1] == '/' || pathValue[1] == '\\' {
		return filepath.Join(home, pathValue[2:]), nil
	}
	return pathValue, nil
}
