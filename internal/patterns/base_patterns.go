// Package patterns provides shared regex patterns and helper functions for SHR telegram parsing.
// This file contains grok-style base patterns for use with the Compiler.

package patterns

// BasePatterns defines reusable regex components for grok-style pattern composition.
// These are referenced in format patterns using {PATTERN_NAME} syntax.
var BasePatterns = map[string]string{
	// Compact coordinate token, e.g. 5957N02905E.
	"COORD": `\d{4}[NS]\d{5}[EW]`, // DDMM[NS]DDDMM[EW]

	// Dates and times.
	"DATE6": `\d{6}`, // DDMMYY
	"TIME4": `\d{4}`, // HHMM

	// Drone (aircraft) type designator after TYP/.
	"TYPE3": `[A-Z]{3}`,
}
