// Package green turns land-cover rasters and OSM vector features into the
// green-space candidates and point samples used by the accessibility
// engine.
package green

import (
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Candidate is one green location a route may target.
type Candidate struct {
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	Category string  `json:"category"`
	Pixels   int     `json:"pixels,omitempty"` // component size, 0 for vector candidates
}

// Sample is the overlay answer for a single point.
type Sample struct {
	Green    bool   `json:"green"`
	Category string `json:"category,omitempty"`
}

// Source answers the green-space questions the engine asks. Raster and
// vector sources implement it.
type Source interface {
	// Candidates returns green locations in a deterministic order.
	Candidates() ([]Candidate, error)
	// IsGreenAt reports whether (lat, lon) is green. Raster sources fail
	// with raster.ErrOutOfBounds outside their extent.
	IsGreenAt(lat, lon float64) (bool, error)
	// Sample classifies (lat, lon); ok is false outside the extent.
	Sample(lat, lon float64) (s Sample, ok bool)
	// PixelAreaSqm is the area credited to one green sample.
	PixelAreaSqm() float64
}

// Strategy selects how raster cells become candidates.
type Strategy string

// Raster candidate strategies.
const (
	StrategyComponents Strategy = "components"
	StrategyPixels     Strategy = "pixels"
)

const (
	// DefaultPixelAreaSqm is the area of a 10 m land-cover pixel.
	DefaultPixelAreaSqm = 100.0
	// DefaultMaxPixels caps pixel candidates before stride subsampling.
	DefaultMaxPixels = 10_000
	// DefaultCellSizeDeg is the match tolerance used for vector points and
	// lines, roughly 100 m.
	DefaultCellSizeDeg = 0.001
)

// DefaultCodes lists the land-cover classes treated as green.
func DefaultCodes() []int {
	return []int{10, 20, 30, 60, 95, 100}
}

// DefaultLabels names the land-cover classes.
func DefaultLabels() map[int]string {
	return map[int]string{
		10:  "Forest and trees",
		20:  "Shrubs",
		30:  "Grassland",
		40:  "Cropland",
		50:  "Buildings",
		60:  "Sparse vegetation",
		70:  "Snow and Ice",
		80:  "Permanent water bodies",
		90:  "Herbaceous wetland",
		95:  "Mangroves",
		100: "Moss and lichen",
	}
}

// DefaultTags is the OSM tag filter for green features.
func DefaultTags() map[string][]string {
	return map[string][]string{
		"natural": {"wood", "tree_row", "tree", "scrub", "grassland", "heath", "fell", "tundra", "shrubbery"},
		"landuse": {"forest", "meadow", "grass", "allotments"},
		"leisure": {"park", "garden", "nature_reserve"},
	}
}

// CodeSet converts a code list to a lookup set.
func CodeSet(codes []int) map[int]bool {
	set := make(map[int]bool, len(codes))
	for _, c := range codes {
		set[c] = true
	}
	return set
}

// ClassLabel names a land-cover code, falling back to "Class <code>".
func ClassLabel(labels map[int]string, code int) string {
	if l, ok := labels[code]; ok {
		return l
	}
	return "Class " + strconv.Itoa(code)
}

// TagLabel turns an OSM tag value such as "nature_reserve" into a display
// label ("Nature Reserve").
func TagLabel(value string) string {
	// Casers carry state, so each call gets its own.
	return cases.Title(language.English).String(strings.ReplaceAll(value, "_", " "))
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
