package maps

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Tile codes of the map file format.
const (
	CodeBlocked       = 0
	CodeParcelSpawner = 1
	CodeDelivery      = 2
	CodePlain         = 3
)

var ErrNotFound = errors.New("map not found")

// Map is a tile layout indexed as Tiles[x][y].
type Map struct {
	Name  string  `json:"name" yaml:"name"`
	Tiles [][]int `json:"map" yaml:"map"`
}

func (m Map) Width() int { return len(m.Tiles) }

func (m Map) Height() int {
	if len(m.Tiles) == 0 {
		return 0
	}
	return len(m.Tiles[0])
}

func (m Map) Validate() error {
	if len(m.Tiles) == 0 || len(m.Tiles[0]) == 0 {
		return fmt.Errorf("map %q: empty", m.Name)
	}
	h := len(m.Tiles[0])
	walkable := 0
	for x, col := range m.Tiles {
		if len(col) != h {
			return fmt.Errorf("map %q: column %d has %d tiles, want %d", m.Name, x, len(col), h)
		}
		for _, c := range col {
			if c < 0 {
				return fmt.Errorf("map %q: negative tile code", m.Name)
			}
			if c != CodeBlocked {
				walkable++
			}
		}
	}
	if walkable == 0 {
		return fmt.Errorf("map %q: no walkable tile", m.Name)
	}
	return nil
}

// Load resolves name against dir (<name>.json, <name>.yaml, <name>.yml)
// first and the built-in maps second.
func Load(dir, name string) (Map, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return Map{}, fmt.Errorf("bad map name %q", name)
	}
	if dir != "" {
		for _, ext := range []string{".json", ".yaml", ".yml"} {
			p := filepath.Join(dir, name+ext)
			raw, err := os.ReadFile(p)
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			if err != nil {
				return Map{}, err
			}
			m, err := decode(raw, ext)
			if err != nil {
				return Map{}, fmt.Errorf("%s: %w", p, err)
			}
			m.Name = name
			if err := m.Validate(); err != nil {
				return Map{}, err
			}
			return m, nil
		}
	}
	if m, ok := Builtin(name); ok {
		return m, nil
	}
	return Map{}, fmt.Errorf("%s: %w", name, ErrNotFound)
}

func decode(raw []byte, ext string) (Map, error) {
	var m Map
	var err error
	if ext == ".json" {
		err = json.Unmarshal(raw, &m)
	} else {
		err = yaml.Unmarshal(raw, &m)
	}
	return m, err
}

// Names lists built-in maps and the maps found in dir, sorted and deduplicated.
func Names(dir string) []string {
	seen := map[string]struct{}{}
	for n := range builtin {
		seen[n] = struct{}{}
	}
	if dir != "" {
		ents, _ := os.ReadDir(dir)
		for _, e := range ents {
			if e.IsDir() {
				continue
			}
			ext := filepath.Ext(e.Name())
			switch ext {
			case ".json", ".yaml", ".yml":
				seen[strings.TrimSuffix(e.Name(), ext)] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
