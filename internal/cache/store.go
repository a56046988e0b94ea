package cache

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"heroesprofile-filter/internal/config"
	"heroesprofile-filter/internal/constants"
	"heroesprofile-filter/internal/domain"
	"heroesprofile-filter/internal/pkg/json"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

// Store owns the on-disk replay cache:
//
//	<root>/<username>/base/<category key>      replay ID listing
//	<root>/<username>/advanced/<category key>  replay ID -> detail payload
//
// Files are rewritten whole through a temp file and a rename.
type Store struct {
	root   string
	logger zerolog.Logger
}

func NewStore(cfg *config.Settings, logger zerolog.Logger) *Store {
	return &Store{root: cfg.CacheDir, logger: logger}
}

func (s *Store) BasePath(id domain.Identity, c domain.Category) string {
	return filepath.Join(s.root, id.Username(), constants.BaseDirName, c.Key())
}

func (s *Store) AdvancedPath(id domain.Identity, c domain.Category) string {
	return filepath.Join(s.root, id.Username(), constants.AdvancedDirName, c.Key())
}

// HasBaseListing reports whether a listing file is already on disk. Its
// content is not looked at: an existing listing is never fetched again.
func (s *Store) HasBaseListing(id domain.Identity, c domain.Category) bool {
	info, err := os.Stat(s.BasePath(id, c))
	return err == nil && info.Mode().IsRegular()
}

// WriteBaseListing stores an API listing response, pretty printed. A body
// that LoadBaseListing would reject is not written.
func (s *Store) WriteBaseListing(id domain.Identity, c domain.Category, raw []byte) error {
	if _, err := parseListing(raw, c.Label()); err != nil {
		return fmt.Errorf("unusable listing response: %w", err)
	}
	data, err := json.Pretty(raw)
	if err != nil {
		return fmt.Errorf("listing response is not valid JSON: %w", err)
	}
	return writeFile(s.BasePath(id, c), data)
}

// LoadBaseListing parses the listing file. Any read or parse failure is
// reported as ErrListingCorrupt.
func (s *Store) LoadBaseListing(id domain.Identity, c domain.Category) (domain.BaseListing, error) {
	path := s.BasePath(id, c)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.Wrap(domain.ErrListingCorrupt, path, err)
	}

	listing, err := parseListing(data, c.Label())
	if err != nil {
		return nil, domain.Wrap(domain.ErrListingCorrupt, path, err)
	}
	return listing, nil
}

// LoadAdvanced returns the cached detail records. A missing file is created
// empty; an empty file is an empty set.
func (s *Store) LoadAdvanced(id domain.Identity, c domain.Category) (domain.AdvancedRecordSet, error) {
	path := s.AdvancedPath(id, c)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create advanced directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, domain.Wrap(domain.ErrAdvancedCorrupt, path, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, domain.Wrap(domain.ErrAdvancedCorrupt, path, err)
	}

	records := make(domain.AdvancedRecordSet)
	if len(bytes.TrimSpace(data)) == 0 {
		return records, nil
	}
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, domain.Wrap(domain.ErrAdvancedCorrupt, path, err)
	}
	if records == nil {
		records = make(domain.AdvancedRecordSet)
	}

	s.logger.Debug().
		Str("path", path).
		Int("records", len(records)).
		Msg("loaded advanced replays")
	return records, nil
}

func (s *Store) SaveAdvanced(id domain.Identity, c domain.Category, records domain.AdvancedRecordSet) error {
	if records == nil {
		records = make(domain.AdvancedRecordSet)
	}
	data, err := json.MarshalPretty(records)
	if err != nil {
		return fmt.Errorf("marshal advanced replays: %w", err)
	}
	return writeFile(s.AdvancedPath(id, c), data)
}

// parseListing reads the replay IDs listed under label. Other keys are not
// looked at. A document that is not an object, such as null or [], or that
// has no entry for label, is an empty listing. Replay IDs may be strings or
// numbers.
func parseListing(data []byte, label string) (domain.BaseListing, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || !json.Valid(trimmed) {
		return nil, fmt.Errorf("not valid JSON")
	}

	listing := domain.BaseListing{}
	if trimmed[0] != '{' {
		return listing, nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, err
	}
	value, ok := raw[label]
	if !ok {
		return listing, nil
	}

	ids, err := parseReplayIDs(value)
	if err != nil {
		return nil, fmt.Errorf("%q: %w", label, err)
	}
	listing[label] = ids
	return listing, nil
}

func parseReplayIDs(value json.RawMessage) ([]string, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(value, &items); err != nil {
		return nil, fmt.Errorf("expected a list of replay IDs")
	}

	ids := make([]string, 0, len(items))
	for _, item := range items {
		var id string
		if err := json.Unmarshal(item, &id); err == nil {
			ids = append(ids, id)
			continue
		}
		text := string(bytes.TrimSpace(item))
		if _, err := strconv.ParseInt(text, 10, 64); err != nil {
			return nil, fmt.Errorf("invalid replay ID %s", text)
		}
		ids = append(ids, text)
	}
	return ids, nil
}

// writeFile replaces path atomically so an interrupted run never leaves a
// truncated cache file behind.
func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}

	suffix, err := gonanoid.New(8)
	if err != nil {
		return fmt.Errorf("generate temp suffix: %w", err)
	}
	tmpPath := path + "." + suffix + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
