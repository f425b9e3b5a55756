package build

import (
	"strings"

	"github.com/abdel0909/mc-bot/internal/world"
)

// DefaultMaterials is the allow-list of placeable building materials.
// Entries match item names as substrings, case-sensitively.
var DefaultMaterials = []string{
	"planks",
	"stone",
	"cobblestone",
	"dirt",
	"sandstone",
	"netherrack",
}

// Materials is an ordered allow-list.
type Materials []string

// Match reports the allow-list entry name matches, if any.
func (m Materials) Match(name string) (string, bool) {
	if name == "" {
		return "", false
	}
	for _, want := range m {
		if want != "" && strings.Contains(name, want) {
			return want, true
		}
	}
	return "", false
}

// Select returns the first inventory item, in inventory order, that any
// allow-list entry matches.
func (m Materials) Select(items []world.Item) (world.Item, bool) {
	for _, it := range items {
		if it.Count <= 0 {
			continue
		}
		if _, ok := m.Match(it.Name); ok {
			return it, true
		}
	}
	return world.Item{}, false
}
