package maps

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestBuiltinMapsValidate(t *testing.T) {
	for _, name := range Names("") {
		m, ok := Builtin(name)
		if !ok {
			t.Fatalf("builtin %q missing", name)
		}
		if err := m.Validate(); err != nil {
			t.Fatalf("builtin %q: %v", name, err)
		}
		if m.Width() != 10 || m.Height() != 10 {
			t.Fatalf("builtin %q: size %dx%d", name, m.Width(), m.Height())
		}
	}
}

func TestBuiltinOrientation(t *testing.T) {
	m, _ := Builtin("default_map")
	// Top row is spawners, bottom row deliveries.
	if got := m.Tiles[0][m.Height()-1]; got != CodeParcelSpawner {
		t.Fatalf("top-left code = %d, want spawner", got)
	}
	if got := m.Tiles[0][0]; got != CodeDelivery {
		t.Fatalf("bottom-left code = %d, want delivery", got)
	}
	if got := m.Tiles[2][2]; got != CodeBlocked {
		t.Fatalf("(2,2) code = %d, want blocked", got)
	}
}

func TestLoadFromDirOverridesBuiltin(t *testing.T) {
	dir := t.TempDir()
	raw := `{"map": [[3, 2], [1, 0]]}`
	if err := os.WriteFile(filepath.Join(dir, "loops.json"), []byte(raw), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	m, err := Load(dir, "loops")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if m.Width() != 2 || m.Height() != 2 || m.Tiles[1][0] != CodeParcelSpawner {
		t.Fatalf("unexpected map: %+v", m)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	dir := t.TempDir()
	raw := "map:\n  - [3, 3, 3]\n  - [2, 0, 1]\n"
	if err := os.WriteFile(filepath.Join(dir, "tiny.yaml"), []byte(raw), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	m, err := Load(dir, "tiny")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if m.Width() != 2 || m.Height() != 3 {
		t.Fatalf("size %dx%d", m.Width(), m.Height())
	}
	names := Names(dir)
	found := false
	for _, n := range names {
		if n == "tiny" {
			found = true
		}
	}
	if !found {
		t.Fatalf("Names missing tiny: %v", names)
	}
}

func TestLoadRejects(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "ragged.json"), []byte(`{"map": [[3, 3], [3]]}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(dir, "ragged"); err == nil {
		t.Fatalf("expected ragged map error")
	}
	if _, err := Load(dir, "../etc/passwd"); err == nil {
		t.Fatalf("expected bad name error")
	}
	if _, err := Load(dir, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
