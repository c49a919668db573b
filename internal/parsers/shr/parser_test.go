package shr

import (
	"math"
	"testing"
	"time"

	"shr_parser/internal/patterns"
)

const sampleSHR = "SHR-ZZZZZ\n-ZZZZ -0705\n-M0000/M0005 /ZONA 5957N02905E/\n-0900\n-DEP/5957N02905E DOF/010225 OPR/TEST TYP/BLA"

func TestParserExtract(t *testing.T) {
	p := New(TimePolicyFirstMatch)

	f, err := p.Extract(sampleSHR)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	if got := f.FlightID.Or(""); got != "ZZZZZ" {
		t.Errorf("FlightID: got %q, want ZZZZZ", got)
	}
	if got := f.DroneTypeOrDefault(); got != "BLA" {
		t.Errorf("DroneType: got %q, want BLA", got)
	}
	wantDate := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	if got := f.DateOrDefault(time.Now()); !got.Equal(wantDate) {
		t.Errorf("FlightDate: got %v, want %v", got, wantDate)
	}
	if !f.Coordinate.Ok() {
		t.Fatalf("Coordinate state = %v, want present", f.Coordinate.State)
	}
	if math.Abs(f.Coordinate.Value.Lat-59.95) > 1e-4 || math.Abs(f.Coordinate.Value.Lon-29.0833) > 1e-4 {
		t.Errorf("Coordinate: got %+v", f.Coordinate.Value)
	}
	if f.Coordinate.Raw != "5957N02905E" {
		t.Errorf("Coordinate raw: got %q", f.Coordinate.Raw)
	}
}

func TestParserDefaults(t *testing.T) {
	p := New("")
	processed := time.Date(2025, 3, 14, 17, 45, 0, 0, time.UTC)

	f, err := p.Extract("(SHR-ABC\n-DEP/5957N02905E OPR/NONE")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	if got := f.DroneTypeOrDefault(); got != DefaultDroneType {
		t.Errorf("DroneType: got %q, want %q", got, DefaultDroneType)
	}
	if got := f.DateOrDefault(processed); !got.Equal(time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("FlightDate default: got %v", got)
	}
	// First line starts with "(" so the flight identifier is not recognised.
	if f.FlightID.State != Absent {
		t.Errorf("FlightID state = %v, want absent", f.FlightID.State)
	}
	if f.Departure.State != Absent || f.Arrival.State != Absent {
		t.Errorf("times should be absent: dep=%v arr=%v", f.Departure.State, f.Arrival.State)
	}
}

func TestParserFlightID(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
		ok   bool
	}{
		{name: "prefix", text: "SHR-00725\n-ZZZZ", want: "00725", ok: true},
		{name: "padded", text: "SHR-  7772 \r\n-ZZZZ", want: "7772", ok: true},
		{name: "prefix only", text: "SHR-", want: "", ok: true},
		{name: "lower case", text: "shr-123", ok: false},
		{name: "second line", text: "HEADER\nSHR-123", ok: false},
		{name: "leading space", text: " SHR-123\n-0705", ok: false},
		{name: "leading tab", text: "\tSHR-123", ok: false},
		{name: "empty", text: "", ok: false},
	}

	p := New(TimePolicyFirstMatch)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := p.Extract(tt.text)
			if err != nil {
				t.Fatal(err)
			}
			if f.FlightID.Ok() != tt.ok {
				t.Fatalf("FlightID ok = %v, want %v", f.FlightID.Ok(), tt.ok)
			}
			if tt.ok && f.FlightID.Value != tt.want {
				t.Errorf("FlightID = %q, want %q", f.FlightID.Value, tt.want)
			}
		})
	}
}

func TestParserDroneType(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"TYP/BLA", "BLA"},
		{"TYP/AER OPR/X", "AER"},
		{"TYP/HELI", "HEL"},
		{"TYP/bla", DefaultDroneType},
		{"TYP/1AB", DefaultDroneType},
		{"no marker", DefaultDroneType},
	}

	p := New(TimePolicyFirstMatch)
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			f, _ := p.Extract(tt.text)
			if got := f.DroneTypeOrDefault(); got != tt.want {
				t.Errorf("DroneType = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParserDateDayMonthYear(t *testing.T) {
	tests := []struct {
		text string
		want time.Time
	}{
		{"DOF/010225", time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)},
		{"DOF/250201", time.Date(2001, 2, 25, 0, 0, 0, 0, time.UTC)},
		{"DOF/311224", time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)},
	}

	p := New(TimePolicyFirstMatch)
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			f, err := p.Extract(tt.text)
			if err != nil {
				t.Fatal(err)
			}
			if !f.FlightDate.Ok() || !f.FlightDate.Value.Equal(tt.want) {
				t.Errorf("FlightDate = %+v, want %v", f.FlightDate, tt.want)
			}
		})
	}
}

func TestParserMalformedDate(t *testing.T) {
	f, err := New("").Extract("DOF/320125")
	if err != nil {
		t.Fatal(err)
	}
	if f.FlightDate.State != Malformed {
		t.Fatalf("FlightDate state = %v, want malformed", f.FlightDate.State)
	}
	if f.FlightDate.Err == nil {
		t.Error("malformed date should carry an error")
	}
	if f.FlightDate.Raw != "320125" {
		t.Errorf("raw = %q", f.FlightDate.Raw)
	}
}

// The first -HHMM occurrence feeds both departure and arrival, so the
// duration of every telegram is zero. This matches observed behaviour of the
// upstream data feed and is very likely a defect; TimePolicySequential is
// available for feeds where the second occurrence is the arrival time.
func TestParserTimesFirstMatchLikelyDefect(t *testing.T) {
	f, err := New(TimePolicyFirstMatch).Extract(sampleSHR)
	if err != nil {
		t.Fatal(err)
	}
	want := patterns.TimeOfDay{Hour: 7, Minute: 5}
	if f.Departure.Or(patterns.TimeOfDay{}) != want {
		t.Errorf("Departure = %v, want %v", f.Departure.Value, want)
	}
	if f.Arrival.Or(patterns.TimeOfDay{}) != want {
		t.Errorf("Arrival = %v, want %v (same as departure)", f.Arrival.Value, want)
	}
}

func TestParserTimesSequential(t *testing.T) {
	f, err := New(TimePolicySequential).Extract(sampleSHR)
	if err != nil {
		t.Fatal(err)
	}
	if got := f.Departure.Value; got != (patterns.TimeOfDay{Hour: 7, Minute: 5}) {
		t.Errorf("Departure = %v", got)
	}
	if got := f.Arrival.Value; got != (patterns.TimeOfDay{Hour: 9, Minute: 0}) {
		t.Errorf("Arrival = %v", got)
	}

	single, _ := New(TimePolicySequential).Extract("-0705 only")
	if single.Arrival.State != Absent {
		t.Errorf("Arrival state = %v, want absent", single.Arrival.State)
	}
}

func TestParserMalformedTime(t *testing.T) {
	f, _ := New(TimePolicyFirstMatch).Extract("-2575 -0800")
	if f.Departure.State != Malformed || f.Arrival.State != Malformed {
		t.Errorf("dep=%v arr=%v, want malformed", f.Departure.State, f.Arrival.State)
	}
	if f.Departure.Ptr() != nil {
		t.Error("Ptr of malformed field should be nil")
	}
}

func TestParseTimePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    TimePolicy
		wantErr bool
	}{
		{"", TimePolicyFirstMatch, false},
		{"first-match", TimePolicyFirstMatch, false},
		{" Sequential ", TimePolicySequential, false},
		{"last", "", true},
	}
	for _, tt := range tests {
		got, err := ParseTimePolicy(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseTimePolicy(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseTimePolicy(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestExtractWithTrace(t *testing.T) {
	_, trace, err := New("").ExtractWithTrace(sampleSHR)
	if err != nil {
		t.Fatal(err)
	}
	if trace.ParserName != "shr" {
		t.Errorf("ParserName = %q", trace.ParserName)
	}
	if len(trace.Formats) != len(Formats) {
		t.Errorf("got %d format traces, want %d", len(trace.Formats), len(Formats))
	}
	if len(trace.Tokens) != 2 {
		t.Errorf("Tokens = %v, want 2 tokens", trace.Tokens)
	}

	byName := map[string]Extractor{}
	for _, e := range trace.Extractors {
		byName[e.Name] = e
	}
	if e := byName["drone_type"]; e.State != "present" || e.Value != "BLA" {
		t.Errorf("drone_type extractor = %+v", e)
	}
	if e := byName["departure_time"]; e.Value != "07:05" {
		t.Errorf("departure_time extractor = %+v", e)
	}
}

// A numeric flight identifier such as SHR-00725 contains "-0072", which is
// the first dash-prefixed four digit group and is not a valid time.
func TestParserNumericFlightIDShadowsTime(t *testing.T) {
	f, _ := New(TimePolicyFirstMatch).Extract("SHR-00725\n-0705")
	if f.FlightID.Value != "00725" {
		t.Errorf("FlightID = %q", f.FlightID.Value)
	}
	if f.Departure.State != Malformed || f.Departure.Raw != "0072" {
		t.Errorf("Departure = %+v, want malformed 0072", f.Departure)
	}
}
