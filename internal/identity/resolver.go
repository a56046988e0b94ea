package identity

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"heroesprofile-filter/internal/config"
	"heroesprofile-filter/internal/domain"

	"github.com/rs/zerolog"
)

// Resolve merges the general options into every battle tag entry and reads
// the API token each identity ends up with. fallbackToken is used when no
// api_token_path resolves for an entry.
func Resolve(doc *config.Document, fallbackToken string) ([]domain.Identity, error) {
	if doc == nil || doc.General == nil {
		return nil, domain.Wrap(domain.ErrConfig, "missing required section \"general\"", nil)
	}
	if doc.BattleTags == nil {
		return nil, domain.Wrap(domain.ErrConfig, "missing required section \"battle_tags\"", nil)
	}

	identities := make([]domain.Identity, 0, len(doc.BattleTags))
	// battle tags sharing a username would share a cache directory
	seen := make(map[string]string, len(doc.BattleTags))
	for i, entry := range doc.BattleTags {
		if entry.BattleTag == "" {
			return nil, domain.Wrap(domain.ErrConfig, fmt.Sprintf("battle_tags[%d]: empty battle tag", i), nil)
		}

		id, err := resolveEntry(*doc.General, entry, fallbackToken)
		if err != nil {
			return nil, err
		}
		if id.Username() == "" {
			return nil, domain.Wrap(domain.ErrConfig, fmt.Sprintf("battle_tags[%d]: %q has no name before '#'", i, id.BattleTag), nil)
		}
		if other, ok := seen[id.Username()]; ok {
			return nil, domain.Wrap(domain.ErrConfig, fmt.Sprintf("battle_tags[%d]: %q and %q share the cache directory %q", i, other, id.BattleTag, id.Username()), nil)
		}
		seen[id.Username()] = id.BattleTag
		identities = append(identities, id)
	}
	return identities, nil
}

func resolveEntry(general config.Options, entry config.BattleTagEntry, fallbackToken string) (domain.Identity, error) {
	opts := general.Merge(entry.Overrides)

	categories, err := opts.GameType.Categories()
	if err != nil {
		return domain.Identity{}, domain.Wrap(domain.ErrConfig, entry.BattleTag, err)
	}

	id := domain.Identity{
		BattleTag:    entry.BattleTag,
		APITokenPath: opts.APITokenPath,
		BaseURL:      strings.TrimRight(opts.BaseURL, "/"),
		Mode:         opts.Mode,
		Region:       opts.Region,
		Categories:   categories,
	}

	switch {
	case opts.APITokenPath != "":
		token, err := ReadToken(opts.APITokenPath)
		if err != nil {
			return domain.Identity{}, fmt.Errorf("%s: %w", entry.BattleTag, err)
		}
		id.APIToken = token
	case strings.TrimSpace(fallbackToken) != "":
		id.APIToken = strings.TrimSpace(fallbackToken)
	default:
		return domain.Identity{}, domain.Wrap(domain.ErrConfig, fmt.Sprintf("%s: no api_token_path configured", entry.BattleTag), nil)
	}

	return id, nil
}

// ReadToken returns the trimmed contents of a credential file.
func ReadToken(path string) (string, error) {
	path, err := config.ExpandPath(path)
	if err != nil {
		return "", domain.Wrap(domain.ErrCredentialFile, "expand path", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", domain.Wrap(domain.ErrCredentialFile, fmt.Sprintf("%s does not exist", path), nil)
		}
		return "", domain.Wrap(domain.ErrCredentialFile, fmt.Sprintf("read %s", path), err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", domain.Wrap(domain.ErrCredentialFile, fmt.Sprintf("%s is empty", path), nil)
	}
	return token, nil
}

// Provide resolves identities for the fx graph.
func Provide(doc *config.Document, cfg *config.Settings, logger zerolog.Logger) ([]domain.Identity, error) {
	identities, err := Resolve(doc, cfg.APIToken)
	if err != nil {
		return nil, err
	}
	for _, id := range identities {
		logger.Debug().
			Str("battletag", id.BattleTag).
			Str("base_url", id.BaseURL).
			Str("mode", id.Mode).
			Str("region", id.Region).
			Str("api_token_path", id.APITokenPath).
			Int("categories", len(id.Categories)).
			Msg("identity resolved")
	}
	return identities, nil
}
