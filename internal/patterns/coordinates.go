// Package patterns provides shared regex patterns and helper functions for SHR telegram parsing.
// This file contains coordinate conversion utilities.

package patterns

import (
	"fmt"
	"strconv"
	"strings"
)

// CoordTokenLen is the length of a compact coordinate token (DDMMNDDDMME).
const CoordTokenLen = 11

// Coordinate is a position in decimal degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// String returns the canonical "lat,lon" form with six decimals.
func (c Coordinate) String() string {
	return FormatCoordinate(c.Lat, c.Lon)
}

// FormatError reports a coordinate token or canonical string that cannot be decoded.
type FormatError struct {
	Input  string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("invalid coordinate %q: %s", e.Input, e.Reason)
}

// ParseDMSCoord converts a fixed-width degrees+minutes digit run into decimal degrees.
// degDigits is 2 for latitude (DDMM) and 3 for longitude (DDDMM).
// dir is the hemisphere letter; S and W produce negative values.
func ParseDMSCoord(s string, degDigits int, dir byte) (float64, error) {
	if len(s) != degDigits+2 {
		return 0, fmt.Errorf("want %d digits, got %d", degDigits+2, len(s))
	}

	deg, err := strconv.Atoi(s[:degDigits])
	if err != nil {
		return 0, fmt.Errorf("degrees %q: not numeric", s[:degDigits])
	}
	min, err := strconv.Atoi(s[degDigits:])
	if err != nil {
		return 0, fmt.Errorf("minutes %q: not numeric", s[degDigits:])
	}

	value := float64(deg) + float64(min)/60.0
	switch dir {
	case 'S', 'W':
		value = -value
	case 'N', 'E':
	default:
		return 0, fmt.Errorf("unknown hemisphere %q", dir)
	}
	return value, nil
}

// DecodeCoordinate converts an 11-character token of the form DDMM[NS]DDDMM[EW]
// into decimal degrees. For example "5957N02905E" decodes to 59.95, 29.0833.
func DecodeCoordinate(token string) (Coordinate, error) {
	if len(token) != CoordTokenLen {
		return Coordinate{}, &FormatError{Input: token, Reason: fmt.Sprintf("want %d characters, got %d", CoordTokenLen, len(token))}
	}
	if !allDigits(token[0:4]) || !allDigits(token[5:10]) {
		return Coordinate{}, &FormatError{Input: token, Reason: "degree/minute segment is not numeric"}
	}

	latDir, lonDir := token[4], token[10]
	if latDir != 'N' && latDir != 'S' {
		return Coordinate{}, &FormatError{Input: token, Reason: "latitude hemisphere must be N or S"}
	}
	if lonDir != 'E' && lonDir != 'W' {
		return Coordinate{}, &FormatError{Input: token, Reason: "longitude hemisphere must be E or W"}
	}

	lat, err := ParseDMSCoord(token[0:4], 2, latDir)
	if err != nil {
		return Coordinate{}, &FormatError{Input: token, Reason: err.Error()}
	}
	lon, err := ParseDMSCoord(token[5:10], 3, lonDir)
	if err != nil {
		return Coordinate{}, &FormatError{Input: token, Reason: err.Error()}
	}
	return Coordinate{Lat: lat, Lon: lon}, nil
}

// FormatCoordinate renders a position in the canonical "lat,lon" form.
func FormatCoordinate(lat, lon float64) string {
	return fmt.Sprintf("%.6f,%.6f", lat, lon)
}

// ParseCanonical parses the canonical "lat,lon" form. Whitespace around each
// segment is ignored.
func ParseCanonical(s string) (Coordinate, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return Coordinate{}, &FormatError{Input: s, Reason: "want exactly two comma-separated values"}
	}

	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return Coordinate{}, &FormatError{Input: s, Reason: "latitude is not numeric"}
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return Coordinate{}, &FormatError{Input: s, Reason: "longitude is not numeric"}
	}
	return Coordinate{Lat: lat, Lon: lon}, nil
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
