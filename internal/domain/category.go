package domain

import (
	"fmt"
	"strings"
)

// Category is one of the fixed Heroes of the Storm match types.
type Category int

const (
	QuickMatch Category = iota
	StormLeague
	UnrankedDraft
	ARAM
)

// AllKey selects every category in game_type.
const AllKey = "all"

var categoryKeys = [...]string{
	QuickMatch:    "qm",
	StormLeague:   "sl",
	UnrankedDraft: "ud",
	ARAM:          "aram",
}

var categoryLabels = [...]string{
	QuickMatch:    "Quick Match",
	StormLeague:   "Storm League",
	UnrankedDraft: "Unranked Draft",
	ARAM:          "ARAM",
}

// AllCategories returns the categories in declaration order.
func AllCategories() []Category {
	return []Category{QuickMatch, StormLeague, UnrankedDraft, ARAM}
}

func ParseCategory(key string) (Category, error) {
	key = strings.ToLower(strings.TrimSpace(key))
	for i, k := range categoryKeys {
		if k == key {
			return Category(i), nil
		}
	}
	return 0, fmt.Errorf("unknown game type %q (want one of %s or %q)", key, strings.Join(categoryKeys[:], ", "), AllKey)
}

// Key is the short name used in config files and cache file names.
func (c Category) Key() string {
	if !c.valid() {
		return fmt.Sprintf("category(%d)", int(c))
	}
	return categoryKeys[c]
}

// Label is the game_type value the Heroes Profile API expects.
func (c Category) Label() string {
	if !c.valid() {
		return ""
	}
	return categoryLabels[c]
}

func (c Category) String() string {
	return c.Key()
}

func (c Category) valid() bool {
	return c >= 0 && int(c) < len(categoryKeys)
}
