// Package patterns provides shared regex patterns and helper functions for SHR telegram parsing.
// This file contains the grok-style pattern compiler.

package patterns

import (
	"regexp"
	"strings"
)

// Format represents a telegram marker format with named capture groups.
type Format struct {
	Name     string         // Format name for identification
	Pattern  string         // Pattern with {PLACEHOLDER} syntax
	Compiled *regexp.Regexp // Compiled regex (populated by Compile)
	Fields   []string       // Field names in capture order (for documentation)
}

// Compiler manages pattern compilation and matching for a set of formats.
// Matching is case-sensitive: SHR markers are upper-case and lower-case text
// must not satisfy them.
type Compiler struct {
	basePatterns map[string]string
	formats      []Format
	byName       map[string]int
}

// NewCompiler creates a new pattern compiler with the given formats.
// Local patterns override the global BasePatterns.
func NewCompiler(formats []Format, localPatterns map[string]string) *Compiler {
	c := &Compiler{
		basePatterns: make(map[string]string, len(BasePatterns)+len(localPatterns)),
		formats:      make([]Format, len(formats)),
		byName:       make(map[string]int, len(formats)),
	}

	for k, v := range BasePatterns {
		c.basePatterns[k] = v
	}
	for k, v := range localPatterns {
		c.basePatterns[k] = v
	}

	copy(c.formats, formats)
	for i, f := range c.formats {
		c.byName[f.Name] = i
	}
	return c
}

// Compile expands all {PLACEHOLDER} references and compiles regexes.
func (c *Compiler) Compile() error {
	for i := range c.formats {
		re, err := regexp.Compile(c.expand(c.formats[i].Pattern))
		if err != nil {
			return err
		}
		c.formats[i].Compiled = re
	}
	return nil
}

// expand replaces {PLACEHOLDER} with actual regex patterns.
func (c *Compiler) expand(pattern string) string {
	result := pattern
	for name, regex := range c.basePatterns {
		result = strings.ReplaceAll(result, "{"+name+"}", regex)
	}
	return result
}

// Match represents a successful pattern match with extracted fields.
type Match struct {
	FormatName string            // Name of the matched format
	Text       string            // Full matched text
	Captures   map[string]string // Named capture group values
}

func (c *Compiler) lookup(name string) *Format {
	i, ok := c.byName[name]
	if !ok || c.formats[i].Compiled == nil {
		return nil
	}
	return &c.formats[i]
}

func newMatch(f *Format, sub []string) *Match {
	m := &Match{
		FormatName: f.Name,
		Text:       sub[0],
		Captures:   make(map[string]string),
	}
	for i, name := range f.Compiled.SubexpNames() {
		if i == 0 || name == "" {
			continue
		}
		m.Captures[name] = sub[i]
	}
	return m
}

// Find returns the first occurrence of the named format in text, or nil.
func (c *Compiler) Find(text, formatName string) *Match {
	f := c.lookup(formatName)
	if f == nil {
		return nil
	}
	sub := f.Compiled.FindStringSubmatch(text)
	if sub == nil {
		return nil
	}
	return newMatch(f, sub)
}

// FindAll returns up to n occurrences of the named format (n < 0 for all).
func (c *Compiler) FindAll(text, formatName string, n int) []*Match {
	f := c.lookup(formatName)
	if f == nil {
		return nil
	}
	var results []*Match
	for _, sub := range f.Compiled.FindAllStringSubmatch(text, n) {
		results = append(results, newMatch(f, sub))
	}
	return results
}

// FormatTrace contains debug information about a format match attempt.
type FormatTrace struct {
	Name     string            // Format name
	Matched  bool              // Whether the pattern matched
	Pattern  string            // The expanded regex pattern
	Captures map[string]string // Captured groups (if matched)
}

// Trace runs every format against text and reports each attempt.
// This is useful for debugging why a marker was not picked up.
func (c *Compiler) Trace(text string) []FormatTrace {
	traces := make([]FormatTrace, 0, len(c.formats))
	for i := range c.formats {
		f := &c.formats[i]
		ft := FormatTrace{Name: f.Name, Pattern: c.expand(f.Pattern)}
		if f.Compiled != nil {
			if sub := f.Compiled.FindStringSubmatch(text); sub != nil {
				ft.Matched = true
				ft.Captures = newMatch(f, sub).Captures
			}
		}
		traces = append(traces, ft)
	}
	return traces
}
