package model

import "fmt"

// Coordinates is a WGS84 point
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (c Coordinates) String() string {
	return fmt.Sprintf("%.6f, %.6f", c.Latitude, c.Longitude)
}

// SpatialContext is the resolved location of a query.
// Coordinates is nil only when no phrase was found and no caller default applied.
type SpatialContext struct {
	Coordinates            *Coordinates `json:"coordinates,omitempty"`
	DistanceThresholdMiles float64      `json:"distance_threshold_miles"`
	SourceText             string       `json:"source_text,omitempty"`

	// Personal is set for "near me" style queries answered from caller coordinates.
	Personal bool `json:"personal,omitempty"`
	// Unbounded is set once the closest-match stage dropped the distance filter.
	Unbounded bool `json:"unbounded,omitempty"`
}

// HasCoordinates reports whether a distance filter can be built
func (s *SpatialContext) HasCoordinates() bool {
	return s != nil && s.Coordinates != nil
}

// Clone returns a copy that does not share the coordinates pointer
func (s *SpatialContext) Clone() *SpatialContext {
	if s == nil {
		return nil
	}
	out := *s
	if s.Coordinates != nil {
		c := *s.Coordinates
		out.Coordinates = &c
	}
	return &out
}
