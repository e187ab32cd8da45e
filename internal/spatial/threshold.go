package spatial

import (
	"regexp"
	"strconv"
	"strings"
)

const (
	kmToMiles     = 0.621371
	blockToMiles  = 0.1
	defaultMiles  = 0.8
	expandedMiles = 1.25
)

// ProximityTerm maps a vague distance word to a radius in miles
type ProximityTerm struct {
	Term  string
	Miles float64
}

// DefaultProximityTerms is checked in order as substrings of the query
var DefaultProximityTerms = []ProximityTerm{
	{"nearby", 0.8},
	{"close", 0.8},
	{"walking distance", 0.8},
	{"driving distance", 3.0},
	{"blocks", 1},
	{"vicinity", 1},
	{"area", 2.0},
}

var explicitDistance = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(miles?|mi|km|blocks?)\b`)

// DistanceThreshold returns the search radius in miles implied by text:
// an explicit number and unit first, then a proximity word, then the default.
func (r *Resolver) DistanceThreshold(text string) float64 {
	q := strings.ToLower(text)

	if m := explicitDistance.FindStringSubmatch(q); m != nil {
		value, err := strconv.ParseFloat(m[1], 64)
		if err == nil {
			unit := m[2]
			switch {
			case strings.Contains(unit, "km"):
				return value * kmToMiles
			case strings.Contains(unit, "block"):
				return value * blockToMiles
			default:
				return value
			}
		}
	}

	for _, p := range r.proximity {
		if strings.Contains(q, p.Term) {
			return p.Miles
		}
	}

	return r.defaultThreshold
}
