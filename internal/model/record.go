package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Record is one flat key/value row returned by the graph backend
type Record map[string]interface{}

// String returns the value under key when it is a non-empty string
func (r Record) String(key string) (string, bool) {
	v, ok := r[key]
	if !ok || v == nil {
		return "", false
	}
	switch s := v.(type) {
	case string:
		return s, s != ""
	case []byte:
		return string(s), len(s) > 0
	case fmt.Stringer:
		str := s.String()
		return str, str != ""
	}
	return "", false
}

// Float returns the numeric value under key
func (r Record) Float(key string) (float64, bool) {
	switch v := r[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// Strings returns the list under key. A single string is a one-element list.
func (r Record) Strings(key string) []string {
	var out []string
	switch v := r[key].(type) {
	case []string:
		for _, s := range v {
			if s != "" {
				out = append(out, s)
			}
		}
	case []interface{}:
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
	case string:
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// Coordinates returns the location columns of the record, if both are present
func (r Record) Coordinates() *Coordinates {
	for _, keys := range [][2]string{{"latitude", "longitude"}, {"l.latitude", "l.longitude"}} {
		lat, okLat := r.Float(keys[0])
		lon, okLon := r.Float(keys[1])
		if okLat && okLon {
			return &Coordinates{Latitude: lat, Longitude: lon}
		}
	}
	return nil
}

// Value implements driver.Valuer interface
func (r Record) Value() (driver.Value, error) {
	if r == nil {
		return nil, nil
	}
	return json.Marshal(r)
}

// Scan implements sql.Scanner interface
func (r *Record) Scan(value interface{}) error {
	if value == nil {
		*r = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return json.Unmarshal([]byte(value.(string)), r)
	}
	return json.Unmarshal(bytes, r)
}

// StringList is a JSON array column
type StringList []string

// Value implements driver.Valuer interface
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner interface
func (l *StringList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return json.Unmarshal([]byte(value.(string)), l)
	}
	return json.Unmarshal(bytes, l)
}
