package constants

import "time"

const (
	DefaultConfigPath    = "config.yml"
	DefaultCacheDir      = "."
	DefaultLogFileName   = "heroesprofile-filter.log"
	DefaultHistoryDBName = "heroesprofile.db"
	LockFileName         = ".heroesprofile-filter.lock"
)

const (
	BaseDirName     = "base"
	AdvancedDirName = "advanced"
)

const (
	ReplayListingPath = "/Player/Replays"
	ReplayDetailPath  = "/Replay/Data"
)

const (
	ExternalAPITimeout = 30 * time.Second
	StartTimeout       = 15 * time.Second
	ShutdownTimeout    = 5 * time.Second
)

const (
	DBMaxOpenConns = 1
	DBMaxIdleConns = 1
)

const (
	HistoryDefaultLimit = 10
)
