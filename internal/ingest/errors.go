// Package ingest reads region boundaries from GeoJSON and ESRI shapefiles.
package ingest

import "fmt"

// ValidationError reports input missing required structure. Nothing from the
// input is ingested.
type ValidationError struct {
	Source string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Source == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed for %s: %s", e.Source, e.Reason)
}

// ResourceError reports a temporary file that could not be written or removed.
type ResourceError struct {
	Op   string
	Path string
	Err  error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *ResourceError) Unwrap() error { return e.Err }

// FeatureError reports a single feature that was skipped.
type FeatureError struct {
	Index int
	Name  string
	Err   error
}

func (e *FeatureError) Error() string {
	return fmt.Sprintf("feature %d (%s): %v", e.Index, e.Name, e.Err)
}

func (e *FeatureError) Unwrap() error { return e.Err }
