package geocode

import (
	_ "embed"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed known_locations.yaml
var knownLocationsYAML []byte

// minReverseMatch guards the text-inside-key direction against tiny inputs
// like "a" matching every entry.
const minReverseMatch = 4

// KnownLocation is one curated table entry.
type KnownLocation struct {
	Name       string  `yaml:"name"`
	Latitude   float64 `yaml:"latitude"`
	Longitude  float64 `yaml:"longitude"`
	Confidence float64 `yaml:"confidence"`
}

// KnownTable is a read-only table of curated locations. Safe for concurrent use.
type KnownTable struct {
	entries []KnownLocation
}

// ParseKnownTable parses a YAML document with a top-level "locations" list.
func ParseKnownTable(data []byte) (*KnownTable, error) {
	var doc struct {
		Locations []KnownLocation `yaml:"locations"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrap(err, "geocode: parse known locations")
	}
	t := &KnownTable{entries: make([]KnownLocation, 0, len(doc.Locations))}
	for _, loc := range doc.Locations {
		loc.Name = Normalize(loc.Name)
		if loc.Name == "" {
			return nil, eris.New("geocode: known location with empty name")
		}
		if loc.Confidence < 0 || loc.Confidence > 1 {
			return nil, eris.Errorf("geocode: known location %q confidence %v outside [0,1]", loc.Name, loc.Confidence)
		}
		t.entries = append(t.entries, loc)
	}
	return t, nil
}

// DefaultKnownTable returns the embedded table.
func DefaultKnownTable() (*KnownTable, error) {
	return ParseKnownTable(knownLocationsYAML)
}

// Len returns the number of entries.
func (t *KnownTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

// Lookup matches normalized text against the table in both directions: an
// entry name inside the text, or the text inside an entry name.
func (t *KnownTable) Lookup(text string) (Result, bool) {
	if t == nil {
		return Result{}, false
	}
	norm := Normalize(text)
	if norm == "" {
		return Result{}, false
	}
	for _, e := range t.entries {
		if strings.Contains(norm, e.Name) || (len(norm) >= minReverseMatch && strings.Contains(e.Name, norm)) {
			return Result{
				Latitude:   e.Latitude,
				Longitude:  e.Longitude,
				Confidence: e.Confidence,
				Source:     SourceCache,
				Provider:   "known",
			}, true
		}
	}
	return Result{}, false
}
