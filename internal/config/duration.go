package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Units accepted by ParseDuration as a single trailing character.
// A month is 31 days and a year 365, matching the rig's historical
// configuration files.
var durationUnits = map[byte]time.Duration{
	's': time.Second,
	'm': time.Minute,
	'h': time.Hour,
	'd': 24 * time.Hour,
	'w': 7 * 24 * time.Hour,
	'M': 31 * 24 * time.Hour,
	'Y': 365 * 24 * time.Hour,
}

// ParseDuration parses a human duration such as "17s", "2d" or "1w".
// A bare integer is a number of seconds.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty duration", ErrInvalid)
	}
	mult := time.Second
	if unit, ok := durationUnits[s[len(s)-1]]; ok {
		mult = unit
		s = s[:len(s)-1]
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: duration %q: %v", ErrInvalid, s, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: negative duration %q", ErrInvalid, s)
	}
	return time.Duration(n) * mult, nil
}

// Duration is a time.Duration decoded from a human duration string.
type Duration time.Duration

// D returns the value as a time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	v, err := ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Ratio is a fraction in [0..1], written either as a number or as a
// percentage string ("30%").
type Ratio float64

func (r *Ratio) UnmarshalYAML(node *yaml.Node) error {
	v := strings.TrimSpace(node.Value)
	pct := strings.HasSuffix(v, "%")
	v = strings.TrimSuffix(v, "%")
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("line %d: %w: ratio %q", node.Line, ErrInvalid, node.Value)
	}
	if pct {
		f /= 100
	}
	*r = Ratio(f)
	return nil
}
