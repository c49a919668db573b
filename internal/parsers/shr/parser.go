// Package shr extracts flight fields from SHR flight-notification telegram text.
package shr

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"shr_parser/internal/patterns"
)

// DefaultDroneType is used when the telegram carries no TYP/ marker.
const DefaultDroneType = "UNKNOWN"

// TimePolicy selects which -HHMM occurrences become departure and arrival.
type TimePolicy string

const (
	// TimePolicyFirstMatch uses the first -HHMM occurrence for both departure
	// and arrival. Durations are therefore always zero under this policy.
	TimePolicyFirstMatch TimePolicy = "first-match"
	// TimePolicySequential uses the first occurrence for departure and the
	// second for arrival.
	TimePolicySequential TimePolicy = "sequential"
)

// ParseTimePolicy parses a policy name. The empty string selects the default.
func ParseTimePolicy(s string) (TimePolicy, error) {
	switch TimePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", TimePolicyFirstMatch:
		return TimePolicyFirstMatch, nil
	case TimePolicySequential:
		return TimePolicySequential, nil
	default:
		return "", fmt.Errorf("unknown time policy %q", s)
	}
}

// Fields holds every marker extracted from one SHR text.
type Fields struct {
	FlightID   Field[string]
	FlightDate Field[time.Time]
	DroneType  Field[string]
	Departure  Field[patterns.TimeOfDay]
	Arrival    Field[patterns.TimeOfDay]
	Coordinate Field[patterns.Coordinate]
}

// DroneTypeOrDefault returns the drone type or DefaultDroneType.
func (f Fields) DroneTypeOrDefault() string {
	return f.DroneType.Or(DefaultDroneType)
}

// DateOrDefault returns the flight date, or the calendar day of processed
// when the telegram carries no DOF/ marker.
func (f Fields) DateOrDefault(processed time.Time) time.Time {
	return f.FlightDate.Or(patterns.DateOnly(processed))
}

// Parser extracts SHR fields.
type Parser struct {
	Policy TimePolicy
}

// Grok compiler singleton.
var (
	grokCompiler *patterns.Compiler
	grokOnce     sync.Once
	grokErr      error
)

// getCompiler returns the singleton grok compiler.
func getCompiler() (*patterns.Compiler, error) {
	grokOnce.Do(func() {
		grokCompiler = patterns.NewCompiler(Formats, nil)
		grokErr = grokCompiler.Compile()
	})
	return grokCompiler, grokErr
}

// New returns a parser using the given time policy.
func New(policy TimePolicy) *Parser {
	if policy == "" {
		policy = TimePolicyFirstMatch
	}
	return &Parser{Policy: policy}
}

func (p *Parser) Name() string { return "shr" }

// Extract reads all markers from text. Each field reports its own state;
// the returned error is non-nil only when the marker formats fail to compile.
func (p *Parser) Extract(text string) (Fields, error) {
	compiler, err := getCompiler()
	if err != nil {
		return Fields{}, err
	}

	var f Fields
	f.FlightID = extractFlightID(text)
	f.Coordinate = extractCoordinate(compiler.Find(text, "coordinate"))
	f.FlightDate = extractDate(compiler.Find(text, "flight_date"))
	f.DroneType = extractDroneType(compiler.Find(text, "drone_type"))
	f.Departure, f.Arrival = p.extractTimes(compiler.FindAll(text, "time", 2))
	return f, nil
}

// extractFlightID requires the prefix at the very start of the text.
func extractFlightID(text string) Field[string] {
	first := patterns.FirstLine(text)
	if !strings.HasPrefix(first, patterns.FlightIDPrefix) {
		return Field[string]{}
	}
	return present(strings.TrimSpace(first[len(patterns.FlightIDPrefix):]), strings.TrimSpace(first))
}

func extractCoordinate(m *patterns.Match) Field[patterns.Coordinate] {
	if m == nil {
		return Field[patterns.Coordinate]{}
	}
	raw := m.Captures["coord"]
	c, err := patterns.DecodeCoordinate(raw)
	if err != nil {
		return malformed[patterns.Coordinate](raw, err)
	}
	return present(c, raw)
}

func extractDate(m *patterns.Match) Field[time.Time] {
	if m == nil {
		return Field[time.Time]{}
	}
	raw := m.Captures["date"]
	d, err := patterns.ParseDDMMYY(raw)
	if err != nil {
		return malformed[time.Time](raw, err)
	}
	return present(d, raw)
}

func extractDroneType(m *patterns.Match) Field[string] {
	if m == nil {
		return Field[string]{}
	}
	raw := m.Captures["type"]
	return present(raw, raw)
}

func extractTime(m *patterns.Match) Field[patterns.TimeOfDay] {
	if m == nil {
		return Field[patterns.TimeOfDay]{}
	}
	raw := m.Captures["time"]
	t, err := patterns.ParseHHMM(raw)
	if err != nil {
		return malformed[patterns.TimeOfDay](raw, err)
	}
	return present(t, raw)
}

func (p *Parser) extractTimes(matches []*patterns.Match) (dep, arr Field[patterns.TimeOfDay]) {
	var first, second *patterns.Match
	if len(matches) > 0 {
		first = matches[0]
	}
	if len(matches) > 1 {
		second = matches[1]
	}

	dep = extractTime(first)
	if p.Policy == TimePolicySequential {
		return dep, extractTime(second)
	}
	return dep, dep
}
