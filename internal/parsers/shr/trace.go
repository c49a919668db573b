package shr

import (
	"fmt"

	"shr_parser/internal/patterns"
)

// Extractor contains debug information about a single field.
type Extractor struct {
	Name  string // Field name (e.g. "flight_date").
	State string // absent, present or malformed.
	Raw   string // Matched text.
	Value string // Decoded value (if present).
	Error string // Decode error (if malformed).
}

// TraceResult contains trace information for one SHR text.
type TraceResult struct {
	ParserName string
	Policy     TimePolicy
	Formats    []patterns.FormatTrace
	Extractors []Extractor
	Tokens     []string // Every coordinate token, in order; only the first is used.
}

// ExtractWithTrace extracts fields and reports every pattern attempt.
func (p *Parser) ExtractWithTrace(text string) (Fields, *TraceResult, error) {
	compiler, err := getCompiler()
	if err != nil {
		return Fields{}, nil, err
	}
	f, err := p.Extract(text)
	if err != nil {
		return Fields{}, nil, err
	}

	trace := &TraceResult{
		ParserName: p.Name(),
		Policy:     p.Policy,
		Formats:    compiler.Trace(text),
		Tokens:     patterns.CoordTokens(text),
		Extractors: []Extractor{
			traceField("flight_id", f.FlightID),
			traceField("coordinate", f.Coordinate),
			traceField("flight_date", f.FlightDate),
			traceField("drone_type", f.DroneType),
			traceField("departure_time", f.Departure),
			traceField("arrival_time", f.Arrival),
		},
	}
	return f, trace, nil
}

func traceField[T any](name string, f Field[T]) Extractor {
	e := Extractor{Name: name, State: f.State.String(), Raw: f.Raw}
	if f.State == Present {
		e.Value = fmt.Sprint(f.Value)
	}
	if f.Err != nil {
		e.Error = f.Err.Error()
	}
	return e
}
