package tuning

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Infinite is the sentinel for unbounded intervals and limits.
const Infinite = -1

// Interval is a duration that may be infinite. On the wire it is a number of
// milliseconds, a duration string ("2s", "500ms") or "infinite".
type Interval time.Duration

// InfiniteInterval never elapses.
const InfiniteInterval = Interval(Infinite)

func (i Interval) IsInfinite() bool { return i == InfiniteInterval }

func (i Interval) Duration() time.Duration { return time.Duration(i) }

func (i Interval) String() string {
	if i.IsInfinite() {
		return "infinite"
	}
	return time.Duration(i).String()
}

func (i Interval) MarshalJSON() ([]byte, error) {
	if i.IsInfinite() {
		return []byte(`"infinite"`), nil
	}
	return []byte(strconv.FormatInt(time.Duration(i).Milliseconds(), 10)), nil
}

func (i *Interval) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		return i.parse(s)
	}
	return i.parse(string(b))
}

func (i Interval) MarshalYAML() (any, error) {
	if i.IsInfinite() {
		return "infinite", nil
	}
	return time.Duration(i).String(), nil
}

func (i *Interval) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: interval must be a scalar", value.Line)
	}
	return i.parse(value.Value)
}

func (i *Interval) parse(s string) error {
	s = strings.TrimSpace(s)
	if isInfiniteWord(s) {
		*i = InfiniteInterval
		return nil
	}
	if ms, err := strconv.ParseFloat(s, 64); err == nil {
		if ms < 0 {
			return fmt.Errorf("negative interval %q", s)
		}
		*i = Interval(time.Duration(ms * float64(time.Millisecond)))
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("bad interval %q", s)
	}
	if d < 0 {
		return fmt.Errorf("negative interval %q", s)
	}
	*i = Interval(d)
	return nil
}

// Limit is a count or distance that may be infinite.
type Limit int

func (l Limit) IsInfinite() bool { return l == Infinite }

func (l Limit) String() string {
	if l.IsInfinite() {
		return "infinite"
	}
	return strconv.Itoa(int(l))
}

func (l Limit) MarshalJSON() ([]byte, error) {
	if l.IsInfinite() {
		return []byte(`"infinite"`), nil
	}
	return []byte(strconv.Itoa(int(l))), nil
}

func (l *Limit) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		return l.parse(s)
	}
	return l.parse(string(b))
}

func (l Limit) MarshalYAML() (any, error) {
	if l.IsInfinite() {
		return "infinite", nil
	}
	return int(l), nil
}

func (l *Limit) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: limit must be a scalar", value.Line)
	}
	return l.parse(value.Value)
}

func (l *Limit) parse(s string) error {
	s = strings.TrimSpace(s)
	if isInfiniteWord(s) {
		*l = Infinite
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("bad limit %q", s)
	}
	if n < 0 {
		return fmt.Errorf("negative limit %q", s)
	}
	*l = Limit(n)
	return nil
}

// "inifinte" is accepted because historical configs ship it.
func isInfiniteWord(s string) bool {
	switch strings.ToLower(s) {
	case "infinite", "inifinte", "inf":
		return true
	}
	return false
}
