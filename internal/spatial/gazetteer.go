package spatial

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"orgfinder/internal/model"
)

// Landmark is one named place with fixed coordinates
type Landmark struct {
	Name      string  `yaml:"name"`
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
}

// Coordinates returns the landmark position
func (l Landmark) Coordinates() model.Coordinates {
	return model.Coordinates{Latitude: l.Latitude, Longitude: l.Longitude}
}

// Gazetteer is an ordered landmark table. Earlier entries win on overlap.
type Gazetteer []Landmark

// DefaultGazetteer holds the Philadelphia landmarks and neighborhoods
var DefaultGazetteer = Gazetteer{
	{"city hall", 39.952335, -75.163789},
	{"liberty bell", 39.9496, -75.1503},
	{"independence hall", 39.9487, -75.1503},
	{"temple university", 39.9812, -75.1556},
	{"university of pennsylvania", 39.9522, -75.1932},
	{"drexel university", 39.9566, -75.1899},
	{"center city", 39.9526, -75.1652},
	{"south philly", 39.9184, -75.1718},
	{"north philly", 40.0059, -75.1380},
	{"west philly", 39.9612, -75.2397},
	{"rittenhouse square", 39.9486, -75.1723},
	{"fishtown", 39.9759, -75.1370},
	{"northern liberties", 39.9670, -75.1410},
}

type gazetteerFile struct {
	Landmarks []Landmark `yaml:"landmarks"`
}

// LoadGazetteer reads landmarks from a YAML file of the form
//
//	landmarks:
//	  - name: city hall
//	    latitude: 39.952335
//	    longitude: -75.163789
func LoadGazetteer(path string) (Gazetteer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read gazetteer: %w", err)
	}
	return ParseGazetteer(data)
}

// ParseGazetteer decodes a YAML landmark table
func ParseGazetteer(data []byte) (Gazetteer, error) {
	var f gazetteerFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse gazetteer: %w", err)
	}
	g := make(Gazetteer, 0, len(f.Landmarks))
	for _, l := range f.Landmarks {
		name := strings.ToLower(strings.TrimSpace(l.Name))
		if name == "" {
			return nil, fmt.Errorf("gazetteer entry without a name")
		}
		g = append(g, Landmark{Name: name, Latitude: l.Latitude, Longitude: l.Longitude})
	}
	return g, nil
}

// Find returns the first landmark whose name occurs in text
func (g Gazetteer) Find(text string) (Landmark, bool) {
	lower := strings.ToLower(text)
	for _, l := range g {
		if strings.Contains(lower, l.Name) {
			return l, true
		}
	}
	return Landmark{}, false
}
