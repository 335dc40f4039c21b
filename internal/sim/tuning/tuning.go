package tuning

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the per-match configuration. Key names are shared with clients
// through the "config" event and must not change.
type Config struct {
	MapFile string `json:"MAP_FILE" yaml:"MAP_FILE"`

	ParcelsGenerationInterval Interval `json:"PARCELS_GENERATION_INTERVAL" yaml:"PARCELS_GENERATION_INTERVAL"`
	ParcelsMax                Limit    `json:"PARCELS_MAX" yaml:"PARCELS_MAX"`
	ParcelRewardAvg           int      `json:"PARCEL_REWARD_AVG" yaml:"PARCEL_REWARD_AVG"`
	ParcelRewardVariance      int      `json:"PARCEL_REWARD_VARIANCE" yaml:"PARCEL_REWARD_VARIANCE"`
	ParcelDecadingInterval    Interval `json:"PARCEL_DECADING_INTERVAL" yaml:"PARCEL_DECADING_INTERVAL"`

	MovementDuration           Interval `json:"MOVEMENT_DURATION" yaml:"MOVEMENT_DURATION"`
	AgentsObservationDistance  Limit    `json:"AGENTS_OBSERVATION_DISTANCE" yaml:"AGENTS_OBSERVATION_DISTANCE"`
	ParcelsObservationDistance Limit    `json:"PARCELS_OBSERVATION_DISTANCE" yaml:"PARCELS_OBSERVATION_DISTANCE"`
	AgentTimeout               Interval `json:"AGENT_TIMEOUT" yaml:"AGENT_TIMEOUT"`

	RandomlyMovingAgents int      `json:"RANDOMLY_MOVING_AGENTS" yaml:"RANDOMLY_MOVING_AGENTS"`
	RandomAgentSpeed     Interval `json:"RANDOM_AGENT_SPEED" yaml:"RANDOM_AGENT_SPEED"`

	MatchTimeout Interval `json:"MATCH_TIMEOUT" yaml:"MATCH_TIMEOUT"`
	TimerTick    Interval `json:"TIMER_TICK" yaml:"TIMER_TICK"`

	// Per-connection limit for say/ask/shout. SayRate 0 disables limiting.
	SayRate  float64 `json:"SAY_RATE" yaml:"SAY_RATE"`
	SayBurst int     `json:"SAY_BURST" yaml:"SAY_BURST"`

	// Seed for spawn/parcel randomness; 0 seeds from the clock.
	Seed int64 `json:"SEED" yaml:"SEED"`
}

func Defaults() Config {
	return Config{
		MapFile:                    "default_map",
		ParcelsGenerationInterval:  Interval(2 * time.Second),
		ParcelsMax:                 5,
		ParcelRewardAvg:            30,
		ParcelRewardVariance:       10,
		ParcelDecadingInterval:     Interval(time.Second),
		MovementDuration:           Interval(500 * time.Millisecond),
		AgentsObservationDistance:  5,
		ParcelsObservationDistance: 5,
		AgentTimeout:               Interval(10 * time.Second),
		RandomlyMovingAgents:       2,
		RandomAgentSpeed:           Interval(2 * time.Second),
		MatchTimeout:               Interval(10 * time.Minute),
		TimerTick:                  Interval(time.Second),
		SayRate:                    5,
		SayBurst:                   10,
	}
}

// Normalize fills zero values that have no meaning of their own.
func (c *Config) Normalize() {
	d := Defaults()
	if c.MapFile == "" {
		c.MapFile = d.MapFile
	}
	if c.TimerTick == 0 {
		c.TimerTick = d.TimerTick
	}
	if c.MatchTimeout == 0 {
		c.MatchTimeout = d.MatchTimeout
	}
	if c.ParcelRewardAvg == 0 {
		c.ParcelRewardAvg = d.ParcelRewardAvg
	}
	if c.SayRate > 0 && c.SayBurst <= 0 {
		c.SayBurst = 1
	}
}

func (c Config) Validate() error {
	var errs []error
	if c.ParcelsGenerationInterval == 0 {
		errs = append(errs, errors.New("PARCELS_GENERATION_INTERVAL must be positive or infinite"))
	}
	if c.ParcelsMax == 0 || c.ParcelsMax < Infinite {
		errs = append(errs, errors.New("PARCELS_MAX must be positive or infinite"))
	}
	if c.ParcelRewardAvg <= 0 {
		errs = append(errs, errors.New("PARCEL_REWARD_AVG must be positive"))
	}
	if c.ParcelRewardVariance < 0 {
		errs = append(errs, errors.New("PARCEL_REWARD_VARIANCE must not be negative"))
	}
	if c.ParcelDecadingInterval == 0 {
		errs = append(errs, errors.New("PARCEL_DECADING_INTERVAL must be positive or infinite"))
	}
	if c.MovementDuration.IsInfinite() || c.MovementDuration < 0 {
		errs = append(errs, errors.New("MOVEMENT_DURATION must be a finite duration"))
	}
	if c.AgentsObservationDistance < Infinite || c.ParcelsObservationDistance < Infinite {
		errs = append(errs, errors.New("observation distances must be non-negative or infinite"))
	}
	if c.AgentTimeout.IsInfinite() || c.AgentTimeout < 0 {
		errs = append(errs, errors.New("AGENT_TIMEOUT must be a finite duration"))
	}
	if c.RandomlyMovingAgents < 0 {
		errs = append(errs, errors.New("RANDOMLY_MOVING_AGENTS must not be negative"))
	}
	if c.RandomlyMovingAgents > 0 && (c.RandomAgentSpeed <= 0 || c.RandomAgentSpeed.IsInfinite()) {
		errs = append(errs, errors.New("RANDOM_AGENT_SPEED must be a positive finite duration"))
	}
	if c.MatchTimeout <= 0 || c.MatchTimeout.IsInfinite() {
		errs = append(errs, errors.New("MATCH_TIMEOUT must be a positive finite duration"))
	}
	if c.TimerTick <= 0 || c.TimerTick.IsInfinite() {
		errs = append(errs, errors.New("TIMER_TICK must be a positive finite duration"))
	}
	if c.SayRate < 0 {
		errs = append(errs, errors.New("SAY_RATE must not be negative"))
	}
	return errors.Join(errs...)
}

// Load reads a YAML match configuration on top of Defaults.
func Load(path string) (Config, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("match.yaml: %w", err)
	}
	t.Normalize()
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("match.yaml: %w", err)
	}
	return t, nil
}

// Parse decodes a JSON match configuration (admin API body) on top of
// Defaults. The body is checked against the embedded schema first.
func Parse(raw []byte) (Config, error) {
	t := Defaults()
	if len(raw) == 0 {
		return t, nil
	}
	if err := ValidateJSON(raw); err != nil {
		return t, err
	}
	if err := json.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("match config: %w", err)
	}
	t.Normalize()
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("match config: %w", err)
	}
	return t, nil
}
