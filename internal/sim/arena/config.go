package arena

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"deliveroo.ai/internal/sim/tuning"
)

// Config lists the rooms created at startup (rooms.yaml).
type Config struct {
	Rooms []RoomSpec `yaml:"rooms"`
}

type RoomSpec struct {
	ID     string        `yaml:"id"`
	Start  bool          `yaml:"start"`
	Config tuning.Config `yaml:"config"`
}

// UnmarshalYAML decodes the room's match config on top of tuning.Defaults.
func (s *RoomSpec) UnmarshalYAML(value *yaml.Node) error {
	type plain RoomSpec
	v := plain{Config: tuning.Defaults()}
	if err := value.Decode(&v); err != nil {
		return err
	}
	*s = RoomSpec(v)
	return nil
}

// LoadConfig reads rooms.yaml. An empty path or a missing file yields the
// default rooms.
func LoadConfig(path string) (Config, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultConfig(), nil
	}
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("rooms.yaml: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("rooms.yaml: %w", err)
	}
	return cfg, nil
}

func DefaultConfig() Config {
	first := tuning.Defaults()
	second := tuning.Defaults()
	second.MapFile = "loops"
	second.RandomlyMovingAgents = 0
	return Config{Rooms: []RoomSpec{
		{ID: "0", Config: first},
		{ID: "1", Config: second},
	}}
}

func (c *Config) Normalize() {
	for i := range c.Rooms {
		c.Rooms[i].ID = strings.TrimSpace(c.Rooms[i].ID)
		c.Rooms[i].Config.Normalize()
	}
}

func (c Config) Validate() error {
	seen := map[string]bool{}
	var errs []error
	for _, r := range c.Rooms {
		if r.ID == "" {
			errs = append(errs, errors.New("room id must not be empty"))
			continue
		}
		if seen[r.ID] {
			errs = append(errs, fmt.Errorf("duplicate room id: %s", r.ID))
		}
		seen[r.ID] = true
		if err := r.Config.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("room %s: %w", r.ID, err))
		}
	}
	return errors.Join(errs...)
}
