package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"heroesprofile-filter/internal/domain"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Document is the parsed config.yml.
type Document struct {
	General    *Options         `yaml:"general"`
	BattleTags []BattleTagEntry `yaml:"battle_tags"`
}

// Options are the fetch settings shared by the general section and the
// per battle tag overrides. Empty values are unset.
type Options struct {
	APITokenPath string   `yaml:"api_token_path"`
	BaseURL      string   `yaml:"base_url"`
	Mode         string   `yaml:"mode"`
	Region       string   `yaml:"region"`
	GameType     GameType `yaml:"game_type"`
}

// Merge returns o with every field that is set in override taken from override.
func (o Options) Merge(override Options) Options {
	merged := o
	if override.APITokenPath != "" {
		merged.APITokenPath = override.APITokenPath
	}
	if override.BaseURL != "" {
		merged.BaseURL = override.BaseURL
	}
	if override.Mode != "" {
		merged.Mode = override.Mode
	}
	if override.Region != "" {
		merged.Region = override.Region
	}
	if override.GameType != nil {
		merged.GameType = override.GameType
	}
	return merged
}

// GameType is the game_type option: a single key, "all", or a list of keys.
// A nil GameType is unset.
type GameType []string

func (g *GameType) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Tag == "!!null" {
			*g = nil
			return nil
		}
		value := strings.TrimSpace(node.Value)
		if value == "" {
			*g = nil
			return nil
		}
		*g = GameType{value}
		return nil
	case yaml.SequenceNode:
		var keys []string
		if err := node.Decode(&keys); err != nil {
			return fmt.Errorf("game_type: %w", err)
		}
		*g = GameType(keys)
		return nil
	default:
		return fmt.Errorf("game_type: line %d: expected a string or a list of strings", node.Line)
	}
}

// Categories resolves the selector. Unset and "all" select every category.
// The result follows declaration order without duplicates.
func (g GameType) Categories() ([]domain.Category, error) {
	if len(g) == 0 {
		return domain.AllCategories(), nil
	}

	selected := make(map[domain.Category]bool)
	for _, key := range g {
		if strings.EqualFold(strings.TrimSpace(key), domain.AllKey) {
			return domain.AllCategories(), nil
		}
		c, err := domain.ParseCategory(key)
		if err != nil {
			return nil, err
		}
		selected[c] = true
	}

	categories := make([]domain.Category, 0, len(selected))
	for _, c := range domain.AllCategories() {
		if selected[c] {
			categories = append(categories, c)
		}
	}
	return categories, nil
}

// BattleTagEntry is one item of battle_tags. It accepts a bare handle, a
// mapping with a battletag field next to the overrides, or a single-key
// mapping of handle to overrides.
type BattleTagEntry struct {
	BattleTag string
	Overrides Options
}

func (e *BattleTagEntry) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		e.BattleTag = strings.TrimSpace(node.Value)
		return nil
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			if node.Content[i].Value == "battletag" {
				var explicit struct {
					BattleTag string  `yaml:"battletag"`
					Options   Options `yaml:",inline"`
				}
				if err := node.Decode(&explicit); err != nil {
					return err
				}
				e.BattleTag = strings.TrimSpace(explicit.BattleTag)
				e.Overrides = explicit.Options
				return nil
			}
		}
		if len(node.Content) != 2 {
			return fmt.Errorf("battle_tags: line %d: entry needs a battletag field or a single handle key", node.Line)
		}
		e.BattleTag = strings.TrimSpace(node.Content[0].Value)
		if value := node.Content[1]; value.Kind != yaml.ScalarNode || value.Tag != "!!null" {
			if err := value.Decode(&e.Overrides); err != nil {
				return fmt.Errorf("battle_tags: %s: %w", e.BattleTag, err)
			}
		}
		return nil
	default:
		return fmt.Errorf("battle_tags: line %d: list entries are not supported, use a mapping", node.Line)
	}
}

// Parse decodes a config document and checks that both required sections
// are present.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, domain.Wrap(domain.ErrConfig, "parse config", err)
	}
	if doc.General == nil {
		return nil, domain.Wrap(domain.ErrConfig, "missing required section \"general\"", nil)
	}
	if doc.BattleTags == nil {
		return nil, domain.Wrap(domain.ErrConfig, "missing required section \"battle_tags\"", nil)
	}
	return &doc, nil
}

func LoadDocument(cfg *Settings, logger zerolog.Logger) (*Document, error) {
	data, err := os.ReadFile(cfg.ConfigPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.Wrap(domain.ErrConfig, fmt.Sprintf("config file %s not found", cfg.ConfigPath), nil)
		}
		return nil, domain.Wrap(domain.ErrConfig, "read config", err)
	}

	doc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cfg.ConfigPath, err)
	}

	logger.Info().
		Str("config_path", cfg.ConfigPath).
		Str("cache_dir", cfg.CacheDir).
		Str("log_level", cfg.LogLevel).
		Dur("request_timeout", cfg.RequestTimeout).
		Int("battle_tags", len(doc.BattleTags)).
		Msg("configuration loaded")

	return doc, nil
}
