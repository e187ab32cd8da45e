// Package reference holds the reference data the specificity heuristic counts
// candidates against: the distinct service names, addresses and opening hours
// stored in the organization graph.
package reference

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"orgfinder/internal/model"
)

// Keywords is the reference vocabulary. Times holds both day names and hour
// ranges such as "9:00 AM - 5:00 PM".
type Keywords struct {
	Times     []string `yaml:"times"`
	Addresses []string `yaml:"addresses"`
	Services  []string `yaml:"services"`
}

// Querier runs a read query against the graph
type Querier interface {
	Execute(ctx context.Context, query string, params map[string]interface{}) ([]model.Record, error)
}

const (
	serviceNamesQuery = `MATCH (s:Service) RETURN DISTINCT s.name AS value ORDER BY value`
	addressesQuery    = `MATCH (l:Location) RETURN DISTINCT l.streetAddress AS value ORDER BY value`
	zipCodesQuery     = `MATCH (l:Location) RETURN DISTINCT l.zipCode AS value ORDER BY value`
	daysQuery         = `MATCH (t:Time) RETURN DISTINCT t.day AS value ORDER BY value`
	hoursQuery        = `MATCH (t:Time) RETURN DISTINCT t.hours AS value ORDER BY value`
)

// LoadFile reads keywords from a YAML file
func LoadFile(path string) (*Keywords, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read reference file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML keywords and drops blank and duplicate entries
func Parse(data []byte) (*Keywords, error) {
	var k Keywords
	if err := yaml.Unmarshal(data, &k); err != nil {
		return nil, fmt.Errorf("failed to parse reference keywords: %w", err)
	}
	k.Times = dedupe(k.Times)
	k.Addresses = dedupe(k.Addresses)
	k.Services = dedupe(k.Services)
	return &k, nil
}

// LoadFromGraph collects the distinct values of the graph properties the
// finders match against.
func LoadFromGraph(ctx context.Context, q Querier) (*Keywords, error) {
	collect := func(query string) ([]string, error) {
		records, err := q.Execute(ctx, query, nil)
		if err != nil {
			return nil, err
		}
		values := make([]string, 0, len(records))
		for _, rec := range records {
			if v, ok := rec.String("value"); ok {
				values = append(values, v)
			}
		}
		return values, nil
	}

	var k Keywords
	services, err := collect(serviceNamesQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to load service names: %w", err)
	}
	k.Services = services

	for _, query := range []string{addressesQuery, zipCodesQuery} {
		values, err := collect(query)
		if err != nil {
			return nil, fmt.Errorf("failed to load addresses: %w", err)
		}
		k.Addresses = append(k.Addresses, values...)
	}

	for _, query := range []string{daysQuery, hoursQuery} {
		values, err := collect(query)
		if err != nil {
			return nil, fmt.Errorf("failed to load hours: %w", err)
		}
		k.Times = append(k.Times, values...)
	}

	k.Times = dedupe(k.Times)
	k.Addresses = dedupe(k.Addresses)
	k.Services = dedupe(k.Services)
	return &k, nil
}

// Size returns the number of entries per list
func (k *Keywords) Size() (times, addresses, services int) {
	if k == nil {
		return 0, 0, 0
	}
	return len(k.Times), len(k.Addresses), len(k.Services)
}

func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
