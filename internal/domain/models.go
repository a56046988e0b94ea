package domain

import (
	"strings"
	"time"

	"heroesprofile-filter/internal/pkg/json"
)

type Identity struct {
	BattleTag    string
	APIToken     string
	APITokenPath string
	BaseURL      string
	Mode         string
	Region       string
	Categories   []Category
}

// Username is the battle tag without its "#1234" discriminator. It names the
// identity's cache directory.
func (i Identity) Username() string {
	name, _, _ := strings.Cut(i.BattleTag, "#")
	return name
}

// BaseListing maps a category label to the ordered replay IDs the API knows
// for it.
type BaseListing map[string][]string

func (l BaseListing) ReplayIDs(c Category) []string {
	if l == nil {
		return nil
	}
	return l[c.Label()]
}

// AdvancedRecordSet maps replay ID to its detail payload. Payloads are kept
// as raw JSON and never interpreted.
type AdvancedRecordSet map[string]json.RawMessage

type CategoryResult struct {
	BattleTag      string
	Category       Category
	Listed         int
	Cached         int // already present before this run
	Fetched        int
	FailedReplayID string
	Err            error
}

// Complete reports whether every listed replay has an advanced record.
// Listed counts distinct replay IDs.
func (r CategoryResult) Complete() bool {
	return r.Err == nil && r.Cached+r.Fetched >= r.Listed
}

// Status is the one word outcome shown in the run summary. A category cut
// short by a failed fetch or an interrupted run is "partial".
func (r CategoryResult) Status() string {
	switch {
	case !r.Complete():
		return "partial"
	case r.Listed == 0:
		return "empty"
	case r.Fetched == 0:
		return "up-to-date"
	default:
		return "updated"
	}
}

// FetchRun is one recorded invocation of the downloader.
type FetchRun struct {
	ID         string
	StartedAt  time.Time
	FinishedAt *time.Time
	Status     string // "running", "ok", "partial", "failed"
	Error      string
	Results    []CategoryRecord
}

// CategoryRecord is the stored form of a CategoryResult.
type CategoryRecord struct {
	ID             string
	RunID          string
	BattleTag      string
	Category       string
	Listed         int
	Cached         int
	Fetched        int
	FailedReplayID string
	Error          string
	CreatedAt      time.Time
}

const (
	RunStatusRunning = "running"
	RunStatusOK      = "ok"
	RunStatusPartial = "partial"
	RunStatusFailed  = "failed"
)
