package tuning

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const configSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "additionalProperties": false,
  "definitions": {
    "interval": {
      "oneOf": [
        {"type": "number", "minimum": 0},
        {"type": "string", "pattern": "^(infinite|inifinte|inf|[0-9]+(\\.[0-9]+)?(ns|us|ms|s|m|h)?)$"}
      ]
    },
    "limit": {
      "oneOf": [
        {"type": "integer", "minimum": 0},
        {"type": "string", "pattern": "^(infinite|inifinte|inf|[0-9]+)$"}
      ]
    }
  },
  "properties": {
    "MAP_FILE": {"type": "string", "pattern": "^[A-Za-z0-9_-]+$"},
    "PARCELS_GENERATION_INTERVAL": {"$ref": "#/definitions/interval"},
    "PARCELS_MAX": {"$ref": "#/definitions/limit"},
    "PARCEL_REWARD_AVG": {"type": "integer", "minimum": 1},
    "PARCEL_REWARD_VARIANCE": {"type": "integer", "minimum": 0},
    "PARCEL_DECADING_INTERVAL": {"$ref": "#/definitions/interval"},
    "MOVEMENT_DURATION": {"$ref": "#/definitions/interval"},
    "AGENTS_OBSERVATION_DISTANCE": {"$ref": "#/definitions/limit"},
    "PARCELS_OBSERVATION_DISTANCE": {"$ref": "#/definitions/limit"},
    "AGENT_TIMEOUT": {"$ref": "#/definitions/interval"},
    "RANDOMLY_MOVING_AGENTS": {"type": "integer", "minimum": 0, "maximum": 64},
    "RANDOM_AGENT_SPEED": {"$ref": "#/definitions/interval"},
    "MATCH_TIMEOUT": {"$ref": "#/definitions/interval"},
    "TIMER_TICK": {"$ref": "#/definitions/interval"},
    "SAY_RATE": {"type": "number", "minimum": 0},
    "SAY_BURST": {"type": "integer", "minimum": 0},
    "SEED": {"type": "integer"}
  }
}`

var compiledSchema = jsonschema.MustCompileString("match_config.schema.json", configSchema)

// ValidateJSON checks a raw match configuration against the schema.
func ValidateJSON(raw []byte) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("match config: %w", err)
	}
	if err := compiledSchema.Validate(v); err != nil {
		return fmt.Errorf("match config: %w", err)
	}
	return nil
}
