// Package cypher assembles the structured graph query for one retrieval attempt.
package cypher

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"orgfinder/internal/model"
)

const (
	metersPerMile = 1609.344
	maxZipFilters = 2
)

var (
	zipOnly  = regexp.MustCompile(`^\d{5}$`)
	dayWords = regexp.MustCompile(`\b(?:(?:mon|tues|wednes|thurs|fri|satur|sun)days?|mon|tue|tues|wed|thu|thur|thurs|fri|sat|sun)\b`)
)

var dayNames = []string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}

// Filters carries the extracted phrases and their reference candidates
type Filters struct {
	TimePhrase         string
	TimeCandidates     []string
	LocationPhrase     string
	LocationCandidates []string
	ServicePhrase      string
	ServiceKeywords    []string
	ServiceCandidates  []string
}

// Request is everything needed to assemble one attempt's query
type Request struct {
	Question string
	Category string
	Decision model.FilterDecision
	Filters  Filters

	// Origin enables the distance column; text location filters are then dropped.
	Origin         *model.Coordinates
	ThresholdMiles *float64
	Limit          int
}

// Spatial reports whether the request carries a distance origin
func (r Request) Spatial() bool {
	return r.Origin != nil
}

// Query is a parameterized structured query
type Query struct {
	Text   string                 `json:"text"`
	Params map[string]interface{} `json:"params,omitempty"`
}

// Builder turns a request into a query. Metrics carry any generation cost.
type Builder interface {
	Build(ctx context.Context, req Request) (Query, model.Metrics, error)
}

// Template is the deterministic builder
type Template struct{}

// Build implements Builder
func (Template) Build(_ context.Context, req Request) (Query, model.Metrics, error) {
	return Build(req), model.Metrics{}, nil
}

type clauses struct {
	where  []string
	params map[string]interface{}
}

func (c *clauses) param(prefix string, i int, v interface{}) string {
	name := fmt.Sprintf("%s_%d", prefix, i)
	c.params[name] = v
	return "$" + name
}

// Build assembles the template query for req
func Build(req Request) Query {
	c := &clauses{params: make(map[string]interface{})}

	if cat := strings.TrimSpace(req.Category); cat != "" {
		c.params["category"] = strings.ToLower(cat)
		c.where = append(c.where, "toLower(org.category) CONTAINS $category")
	}
	if req.Decision.ApplyService {
		if clause := serviceClause(c, req.Filters); clause != "" {
			c.where = append(c.where, clause)
		}
	}
	if req.Decision.ApplyLocation && !req.Spatial() {
		if clause := locationClause(c, req.Filters); clause != "" {
			c.where = append(c.where, clause)
		}
	}
	if req.Decision.ApplyTime {
		if clause := timeClause(c, req.Filters); clause != "" {
			c.where = append(c.where, clause)
		}
	}

	var b strings.Builder
	if req.Spatial() {
		c.params["lat"] = req.Origin.Latitude
		c.params["lon"] = req.Origin.Longitude
		where := append([]string{"l.latitude IS NOT NULL", "l.longitude IS NOT NULL"}, c.where...)

		b.WriteString("MATCH (org:Organization)-[:HAS_LOCATION]->(l:Location)\n")
		fmt.Fprintf(&b, "WHERE %s\n", strings.Join(where, "\n  AND "))
		fmt.Fprintf(&b, "WITH org, l, distance(point({latitude: l.latitude, longitude: l.longitude}), point({latitude: $lat, longitude: $lon})) / %g AS distance_miles\n", metersPerMile)
		if req.ThresholdMiles != nil {
			c.params["threshold"] = *req.ThresholdMiles
			b.WriteString("WHERE distance_miles <= $threshold\n")
		}
		b.WriteString(returnColumns)
		b.WriteString(",\n       l.streetAddress AS address, l.zipCode AS zip, l.latitude AS latitude, l.longitude AS longitude, distance_miles\n")
		b.WriteString("ORDER BY distance_miles ASC")
	} else {
		b.WriteString("MATCH (org:Organization)\n")
		if len(c.where) > 0 {
			fmt.Fprintf(&b, "WHERE %s\n", strings.Join(c.where, "\n  AND "))
		}
		b.WriteString(returnColumns)
		b.WriteString("\nORDER BY name ASC")
	}
	if req.Limit > 0 {
		fmt.Fprintf(&b, "\nLIMIT %d", req.Limit)
	}

	return Query{Text: b.String(), Params: c.params}
}

const returnColumns = `RETURN org.name AS name, org.phone AS phone, org.category AS category,
       [(org)-[:HAS_LOCATION]->(loc:Location) | loc.streetAddress + ', ' + loc.city + ', ' + loc.state + ' ' + loc.zipCode] AS locations,
       [(org)-[:PROVIDES]->(srv:Service) | srv.name] AS services,
       [(org)-[:HAS_HOURS]->(hrs:Time) | hrs.day + ': ' + hrs.hours] AS hours`

// serviceKeywords returns the lowercased service name keywords and the
// free/paid type attributes, in first-seen order.
func serviceKeywords(f Filters) (names, types []string) {
	seen := make(map[string]bool)
	add := func(v string) {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" || seen[v] {
			return
		}
		seen[v] = true
		switch v {
		case "free", "paid":
			types = append(types, v)
		default:
			names = append(names, v)
		}
	}

	for _, k := range f.ServiceKeywords {
		add(k)
	}
	for _, k := range f.ServiceCandidates {
		add(k)
	}
	if len(names) == 0 {
		for _, w := range strings.Fields(f.ServicePhrase) {
			add(w)
		}
	} else {
		for _, w := range strings.Fields(f.ServicePhrase) {
			if lw := strings.ToLower(w); lw == "free" || lw == "paid" {
				add(lw)
			}
		}
	}
	return names, types
}

func serviceClause(c *clauses, f Filters) string {
	names, types := serviceKeywords(f)
	if len(names) == 0 && len(types) == 0 {
		return ""
	}

	var preds []string
	if len(names) > 0 {
		ors := make([]string, len(names))
		for i, n := range names {
			ors[i] = "toLower(s.name) CONTAINS " + c.param("service", i, n)
		}
		preds = append(preds, "("+strings.Join(ors, " OR ")+")")
	}
	if len(types) > 0 {
		ors := make([]string, len(types))
		for i, t := range types {
			ors[i] = "toLower(s.type) CONTAINS " + c.param("service_type", i, t)
		}
		preds = append(preds, "("+strings.Join(ors, " OR ")+")")
	}
	return fmt.Sprintf("size([(org)-[:PROVIDES]->(s:Service) WHERE %s | s]) > 0", strings.Join(preds, " AND "))
}

// locationItems splits location candidates into zip codes and street text.
// Zip codes are capped unless the phrase itself is a zip code.
func locationItems(f Filters) (streets, zips []string) {
	phrase := strings.ToLower(strings.TrimSpace(f.LocationPhrase))
	items := f.LocationCandidates
	if len(items) == 0 && phrase != "" {
		items = []string{phrase}
	}

	seen := make(map[string]bool)
	for _, item := range items {
		item = strings.ToLower(strings.TrimSpace(item))
		if item == "" || seen[item] {
			continue
		}
		seen[item] = true
		if zipOnly.MatchString(item) {
			zips = append(zips, item)
		} else {
			streets = append(streets, item)
		}
	}
	if !zipOnly.MatchString(phrase) && len(zips) > maxZipFilters {
		zips = zips[:maxZipFilters]
	}
	return streets, zips
}

func locationClause(c *clauses, f Filters) string {
	streets, zips := locationItems(f)
	var ors []string
	for i, s := range streets {
		ors = append(ors, "toLower(l.streetAddress) CONTAINS "+c.param("street", i, s))
	}
	for i, z := range zips {
		ors = append(ors, "l.zipCode CONTAINS "+c.param("zip", i, z))
	}
	if len(ors) == 0 {
		return ""
	}
	return fmt.Sprintf("size([(org)-[:HAS_LOCATION]->(l:Location) WHERE %s | l]) > 0", strings.Join(ors, " OR "))
}

func isDay(item string) bool {
	for _, d := range dayNames {
		if strings.Contains(item, d) {
			return true
		}
	}
	return false
}

// timeItems splits time candidates into day names and hour ranges. Without
// candidates only the day names written in the phrase are used.
func timeItems(f Filters) (days, hours []string) {
	seen := make(map[string]bool)
	add := func(item string) {
		item = strings.ToLower(strings.TrimSpace(item))
		if item == "" || seen[item] {
			return
		}
		seen[item] = true
		if isDay(item) {
			days = append(days, item)
		} else {
			hours = append(hours, item)
		}
	}

	if len(f.TimeCandidates) > 0 {
		for _, item := range f.TimeCandidates {
			add(item)
		}
		return days, hours
	}
	for _, w := range dayWords.FindAllString(strings.ToLower(f.TimePhrase), -1) {
		for _, d := range dayNames {
			if strings.HasPrefix(d, w[:3]) {
				add(d)
			}
		}
	}
	return days, hours
}

func timeClause(c *clauses, f Filters) string {
	days, hours := timeItems(f)
	var preds []string
	if len(days) > 0 {
		ors := make([]string, len(days))
		for i, d := range days {
			ors[i] = "toLower(t.day) CONTAINS " + c.param("day", i, d)
		}
		preds = append(preds, "("+strings.Join(ors, " OR ")+")")
	}
	if len(hours) > 0 {
		ors := make([]string, len(hours))
		for i, h := range hours {
			ors[i] = "toLower(t.hours) CONTAINS " + c.param("hours", i, h)
		}
		preds = append(preds, "("+strings.Join(ors, " OR ")+")")
	}
	if len(preds) == 0 {
		return ""
	}
	return fmt.Sprintf("size([(org)-[:HAS_HOURS]->(t:Time) WHERE %s | t]) > 0", strings.Join(preds, " AND "))
}
