// Package patterns provides extraction functions for SHR telegram parsing.
package patterns

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimeOfDay is a wall-clock time with minute precision.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseHHMM parses a four digit 24-hour time such as "0730".
func ParseHHMM(s string) (TimeOfDay, error) {
	if len(s) != 4 || !allDigits(s) {
		return TimeOfDay{}, fmt.Errorf("time %q: want HHMM", s)
	}
	h, _ := strconv.Atoi(s[:2])
	m, _ := strconv.Atoi(s[2:])
	if h > 23 || m > 59 {
		return TimeOfDay{}, fmt.Errorf("time %q: out of range", s)
	}
	return TimeOfDay{Hour: h, Minute: m}, nil
}

// Minutes returns the minutes elapsed since midnight.
func (t TimeOfDay) Minutes() int {
	return t.Hour*60 + t.Minute
}

// String renders the time as HH:MM.
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// MarshalJSON encodes the time as "HH:MM".
func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON accepts "HH:MM" or "HHMM".
func (t *TimeOfDay) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseHHMM(strings.Replace(s, ":", "", 1))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseDDMMYY parses a six digit day-month-year date. Two digit years are
// taken as 20YY. The result is midnight UTC.
func ParseDDMMYY(s string) (time.Time, error) {
	if len(s) != 6 || !allDigits(s) {
		return time.Time{}, fmt.Errorf("date %q: want DDMMYY", s)
	}
	day, _ := strconv.Atoi(s[0:2])
	month, _ := strconv.Atoi(s[2:4])
	year, _ := strconv.Atoi(s[4:6])
	year += 2000

	d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// time.Date normalises overflow (31 Feb -> 3 Mar); reject anything it had to move.
	if d.Day() != day || int(d.Month()) != month || d.Year() != year {
		return time.Time{}, fmt.Errorf("date %q: no such calendar day", s)
	}
	return d, nil
}

// DateOnly truncates t to midnight UTC of its own calendar day.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// FirstLine returns the text before the first newline, untrimmed.
func FirstLine(text string) string {
	line, _, _ := strings.Cut(text, "\n")
	return line
}
