package feed

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"gopkg.in/yaml.v3"
)

type Unit string

const (
	Seconds Unit = "seconds"
	Minutes Unit = "minutes"
	Hours   Unit = "hours"
	Days    Unit = "days"
	Months  Unit = "months"
)

var unitAliases = map[string]Unit{
	"s": Seconds, "sec": Seconds, "second": Seconds, "seconds": Seconds,
	"m": Minutes, "min": Minutes, "minute": Minutes, "minutes": Minutes,
	"h": Hours, "hour": Hours, "hours": Hours,
	"d": Days, "day": Days, "days": Days,
	"mo": Months, "month": Months, "months": Months,
}

// Duration is a calendar-aware interval: a count of one unit.
// Months are calendar months, not a fixed number of seconds.
type Duration struct {
	Value int  `yaml:"value" json:"value"`
	Unit  Unit `yaml:"unit" json:"unit"`
}

// ParseDuration accepts "5 minutes", "5minutes" and "5m".
func ParseDuration(s string) (Duration, error) {
	s = strings.TrimSpace(s)
	i := strings.IndexFunc(s, func(r rune) bool { return !unicode.IsDigit(r) })
	if i <= 0 {
		return Duration{}, fmt.Errorf("invalid duration %q: expected <number> <unit>", s)
	}

	value, err := strconv.Atoi(s[:i])
	if err != nil {
		return Duration{}, fmt.Errorf("invalid duration %q: %w", s, err)
	}

	unit, ok := unitAliases[strings.ToLower(strings.TrimSpace(s[i:]))]
	if !ok {
		return Duration{}, fmt.Errorf("invalid duration %q: unknown unit", s)
	}

	d := Duration{Value: value, Unit: unit}
	return d, d.Validate()
}

func (d Duration) Validate() error {
	if d.Value <= 0 {
		return fmt.Errorf("duration value must be positive, got %d", d.Value)
	}
	switch d.Unit {
	case Seconds, Minutes, Hours, Days, Months:
		return nil
	default:
		return fmt.Errorf("unknown duration unit %q", d.Unit)
	}
}

// Before returns t moved back by d.
func (d Duration) Before(t time.Time) time.Time {
	switch d.Unit {
	case Seconds:
		return t.Add(-time.Duration(d.Value) * time.Second)
	case Minutes:
		return t.Add(-time.Duration(d.Value) * time.Minute)
	case Hours:
		return t.Add(-time.Duration(d.Value) * time.Hour)
	case Days:
		return t.AddDate(0, 0, -d.Value)
	case Months:
		return t.AddDate(0, -d.Value, 0)
	default:
		return t
	}
}

func (d Duration) IsZero() bool {
	return d.Value == 0 && d.Unit == ""
}

func (d Duration) String() string {
	return fmt.Sprintf("%d %s", d.Value, d.Unit)
}

// UnmarshalYAML accepts both the mapping form ({value: 5, unit: minutes})
// and the scalar form ("5 minutes").
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		parsed, err := ParseDuration(node.Value)
		if err != nil {
			return err
		}
		*d = parsed
		return nil
	}

	type plain Duration
	var raw plain
	if err := node.Decode(&raw); err != nil {
		return err
	}

	parsed := Duration(raw)
	if alias, ok := unitAliases[strings.ToLower(string(parsed.Unit))]; ok {
		parsed.Unit = alias
	}
	*d = parsed
	return nil
}
