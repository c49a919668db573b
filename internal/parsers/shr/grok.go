// Package shr provides grok-style pattern definitions for SHR telegram parsing.
package shr

import "shr_parser/internal/patterns"

// Formats defines the SHR markers. Each marker is matched independently.
var Formats = []patterns.Format{
	// Compact coordinate token.
	// Example: -DEP/5957N02905E
	{
		Name:    "coordinate",
		Pattern: `(?P<coord>{COORD})`,
		Fields:  []string{"coord"},
	},
	// Date of flight.
	// Example: DOF/010225
	{
		Name:    "flight_date",
		Pattern: `DOF/(?P<date>{DATE6})`,
		Fields:  []string{"date"},
	},
	// Drone type. Longer designators are cut to their first three letters.
	// Example: TYP/BLA
	{
		Name:    "drone_type",
		Pattern: `TYP/(?P<type>{TYPE3})`,
		Fields:  []string{"type"},
	},
	// Dash-prefixed HHMM group.
	// Example: -0705
	{
		Name:    "time",
		Pattern: `-(?P<time>{TIME4})`,
		Fields:  []string{"time"},
	},
}
