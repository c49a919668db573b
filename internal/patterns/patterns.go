// Package patterns provides shared regex patterns and helper functions for SHR telegram parsing.
package patterns

import "regexp"

// CoordPattern matches every compact coordinate token in a text.
var CoordPattern = regexp.MustCompile(BasePatterns["COORD"])

// FlightIDPrefix marks the first line of an SHR telegram as carrying the flight identifier.
const FlightIDPrefix = "SHR-"

// CoordTokens returns all coordinate tokens in text in order of appearance.
func CoordTokens(text string) []string {
	return CoordPattern.FindAllString(text, -1)
}
