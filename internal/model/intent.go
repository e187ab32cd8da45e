package model

import "strings"

// ExtractedIntent is the time/location/service split of one raw query.
type ExtractedIntent struct {
	TimePhrase     string `json:"time_phrase,omitempty"`
	LocationPhrase string `json:"location_phrase,omitempty"`
	ServicePhrase  string `json:"service_phrase,omitempty"`
}

// IsEmpty reports whether no phrase was extracted at all
func (i ExtractedIntent) IsEmpty() bool {
	return strings.TrimSpace(i.TimePhrase) == "" &&
		strings.TrimSpace(i.LocationPhrase) == "" &&
		strings.TrimSpace(i.ServicePhrase) == ""
}

// CanonicalServiceSet holds the graph-searchable service tokens found in a query.
// All keeps insertion order so that primary selection stays deterministic.
type CanonicalServiceSet struct {
	Primary string   `json:"primary,omitempty"`
	All     []string `json:"all,omitempty"`
}

// IsEmpty reports whether no service token matched
func (s CanonicalServiceSet) IsEmpty() bool {
	return len(s.All) == 0
}

// Contains reports whether token is part of the set
func (s CanonicalServiceSet) Contains(token string) bool {
	for _, t := range s.All {
		if t == token {
			return true
		}
	}
	return false
}

// CategoryServices is one organization category with the services assigned to it
type CategoryServices struct {
	Category string   `json:"category"`
	Services []string `json:"services"`
}

// CategoryPlan is the ordered list of categories to search
type CategoryPlan []CategoryServices

// Find returns the entry for category, matched case-insensitively
func (p CategoryPlan) Find(category string) (CategoryServices, bool) {
	for _, c := range p {
		if strings.EqualFold(c.Category, category) {
			return c, true
		}
	}
	return CategoryServices{}, false
}

// Categories returns the category names in plan order
func (p CategoryPlan) Categories() []string {
	names := make([]string, 0, len(p))
	for _, c := range p {
		names = append(names, c.Category)
	}
	return names
}
