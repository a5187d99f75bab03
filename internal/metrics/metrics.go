// Package metrics computes area-level green statistics over aligned
// rasters and feature sets.
package metrics

import (
	"math"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/greento/greento/internal/green"
	"github.com/greento/greento/internal/raster"
	"github.com/greento/greento/internal/travel"
)

// ErrShapeMismatch is returned when two grids that must align do not.
var ErrShapeMismatch = eris.New("metrics: grid shapes differ")

// GreenAreaPerPerson returns the green area in square meters per inhabitant:
// the count of non-zero mask cells times pixelAreaSqm, divided by the
// population total, rounded to 4 decimals. A zero population yields +Inf.
func GreenAreaPerPerson(mask, population *raster.Grid, pixelAreaSqm float64) (float64, error) {
	if mask == nil || population == nil {
		return 0, eris.Wrap(raster.ErrInvalidGrid, "metrics: mask and population are required")
	}
	if !mask.SameShape(population) {
		return 0, eris.Wrapf(ErrShapeMismatch, "metrics: mask %dx%d, population %dx%d",
			mask.Rows, mask.Cols, population.Rows, population.Cols)
	}
	if pixelAreaSqm <= 0 {
		pixelAreaSqm = green.DefaultPixelAreaSqm
	}

	greenArea := float64(mask.CountNonZero()) * pixelAreaSqm
	people := population.Sum()
	if people == 0 {
		zap.L().Warn("metrics: population is zero", zap.Float64("green_area_sqm", greenArea))
		return math.Inf(1), nil
	}
	return travel.Round(greenArea/people, 4), nil
}

// LandUsePercentages returns the share of cells per known land-cover
// class, in percent of all cells and rounded to 4 decimals. Codes missing
// from labels still count toward the total but are not reported.
func LandUsePercentages(classes *raster.Grid, labels map[int]string) map[string]float64 {
	if labels == nil {
		labels = green.DefaultLabels()
	}
	counts := make(map[int]int)
	for _, v := range classes.Data {
		if math.IsNaN(v) || v != math.Trunc(v) {
			continue
		}
		counts[int(v)]++
	}
	total := len(classes.Data)

	out := make(map[string]float64)
	if total == 0 {
		return out
	}
	for code, n := range counts {
		label, ok := labels[code]
		if !ok {
			continue
		}
		out[label] = travel.Round(float64(n)/float64(total)*100, 4)
	}
	return out
}

// TagPercentages returns the share of features per value of an OSM tag
// key, in percent of the features carrying that key.
func TagPercentages(features []green.Feature, key string) map[string]float64 {
	counts := make(map[string]int)
	total := 0
	for _, f := range features {
		v, ok := f.Tags[key]
		if !ok || v == "" {
			continue
		}
		counts[v]++
		total++
	}
	out := make(map[string]float64, len(counts))
	for v, n := range counts {
		out[v] = travel.Round(float64(n)/float64(total)*100, 4)
	}
	return out
}

// PopulationPeak is the most populated cell of a population grid.
type PopulationPeak struct {
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	Population float64 `json:"population"`
}

// PeakPopulation locates the most populated cell, a common default start
// point for isochrone queries.
func PeakPopulation(population *raster.Grid) (PopulationPeak, error) {
	lat, lon, v := population.MaxCell()
	if math.IsNaN(v) {
		return PopulationPeak{}, eris.Wrap(raster.ErrInvalidGrid, "metrics: population grid has no values")
	}
	return PopulationPeak{Lat: lat, Lon: lon, Population: v}, nil
}

// Share is one labeled percentage.
type Share struct {
	Label   string  `json:"label"`
	Percent float64 `json:"percent"`
}

// Sorted orders a percentage map by descending share, then label.
func Sorted(m map[string]float64) []Share {
	out := make([]Share, 0, len(m))
	for k, v := range m {
		out = append(out, Share{Label: k, Percent: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Percent != out[j].Percent {
			return out[i].Percent > out[j].Percent
		}
		return out[i].Label < out[j].Label
	})
	return out
}
