// Package travel holds the per-mode travel-time model used to turn network
// distances into user-facing minutes and back.
package travel

import (
	"math"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrUnknownMode is returned for any transport mode missing from the table.
var ErrUnknownMode = eris.New("travel: unknown transport mode")

// Mode identifies a transport mode.
type Mode string

// Supported transport modes.
const (
	Walk         Mode = "walk"
	Bike         Mode = "bike"
	Drive        Mode = "drive"
	AllPublic    Mode = "all_public"
	DriveService Mode = "drive_service"
)

// aliases maps alternate mode names onto canonical ones.
var aliases = map[string]Mode{
	"car":          Drive,
	"drive_public": DriveService,
}

// Profile describes how fast a mode moves and how much friction it carries.
type Profile struct {
	SpeedKMH          float64 `yaml:"speed_kmh" mapstructure:"speed_kmh"`
	FixedDelaySeconds float64 `yaml:"fixed_delay_seconds" mapstructure:"fixed_delay_seconds"`
	DelayFactor       float64 `yaml:"delay_factor" mapstructure:"delay_factor"`
	// EdgeSpeeds lets stored road speeds (speed_kph) override SpeedKMH
	// when deriving edge travel times. Only road-vehicle modes set it.
	EdgeSpeeds bool `yaml:"edge_speeds" mapstructure:"edge_speeds"`
}

// SpeedMPS returns the profile speed in meters per second.
func (p Profile) SpeedMPS() float64 {
	return p.SpeedKMH / 3.6
}

// DefaultProfiles returns the built-in mode table.
func DefaultProfiles() map[Mode]Profile {
	return map[Mode]Profile{
		Walk:         {SpeedKMH: 5, FixedDelaySeconds: 0, DelayFactor: 1.15},
		Bike:         {SpeedKMH: 15, FixedDelaySeconds: 30, DelayFactor: 1.2},                     // take/return bike
		Drive:        {SpeedKMH: 30, FixedDelaySeconds: 180, DelayFactor: 1.25, EdgeSpeeds: true}, // parking
		AllPublic:    {SpeedKMH: 30, FixedDelaySeconds: 420, DelayFactor: 1.10},                   // walk to stop + wait
		DriveService: {SpeedKMH: 30, FixedDelaySeconds: 180, DelayFactor: 1.25, EdgeSpeeds: true}, // wait for pickup
	}
}

// Model is an immutable mode table.
type Model struct {
	profiles map[Mode]Profile
}

// NewModel builds a Model from a mode table. The table is copied.
func NewModel(profiles map[Mode]Profile) (*Model, error) {
	if len(profiles) == 0 {
		return nil, eris.New("travel: empty mode table")
	}
	cp := make(map[Mode]Profile, len(profiles))
	for m, p := range profiles {
		if err := validateProfile(m, p); err != nil {
			return nil, err
		}
		cp[Mode(strings.ToLower(string(m)))] = p
	}
	return &Model{profiles: cp}, nil
}

// Default returns a Model over DefaultProfiles.
func Default() *Model {
	m, _ := NewModel(DefaultProfiles())
	return m
}

func validateProfile(m Mode, p Profile) error {
	if m == "" {
		return eris.New("travel: empty mode name")
	}
	if !(p.SpeedKMH > 0) || math.IsInf(p.SpeedKMH, 0) {
		return eris.Errorf("travel: mode %q needs a positive speed, got %v", m, p.SpeedKMH)
	}
	if !(p.DelayFactor > 0) {
		return eris.Errorf("travel: mode %q needs a positive delay factor, got %v", m, p.DelayFactor)
	}
	if p.FixedDelaySeconds < 0 {
		return eris.Errorf("travel: mode %q has a negative fixed delay", m)
	}
	return nil
}

// Resolve normalizes a mode name, following aliases.
func (m *Model) Resolve(mode Mode) (Mode, error) {
	name := strings.ToLower(strings.TrimSpace(string(mode)))
	if _, ok := m.profiles[Mode(name)]; ok {
		return Mode(name), nil
	}
	if canon, ok := aliases[name]; ok {
		if _, ok := m.profiles[canon]; ok {
			return canon, nil
		}
	}
	return "", eris.Wrapf(ErrUnknownMode, "travel: mode %q", mode)
}

// Profile returns the profile for a mode.
func (m *Model) Profile(mode Mode) (Profile, error) {
	canon, err := m.Resolve(mode)
	if err != nil {
		return Profile{}, err
	}
	return m.profiles[canon], nil
}

// SpeedMPS returns the mode speed in meters per second.
func (m *Model) SpeedMPS(mode Mode) (float64, error) {
	p, err := m.Profile(mode)
	if err != nil {
		return 0, err
	}
	return p.SpeedMPS(), nil
}

// UsesEdgeSpeeds reports whether stored road speeds apply to a mode.
func (m *Model) UsesEdgeSpeeds(mode Mode) (bool, error) {
	p, err := m.Profile(mode)
	if err != nil {
		return false, err
	}
	return p.EdgeSpeeds, nil
}

// FixedDelaySeconds returns the fixed per-trip overhead of a mode.
func (m *Model) FixedDelaySeconds(mode Mode) (float64, error) {
	p, err := m.Profile(mode)
	if err != nil {
		return 0, err
	}
	return p.FixedDelaySeconds, nil
}

// Modes lists the canonical modes in the table, sorted.
func (m *Model) Modes() []Mode {
	out := make([]Mode, 0, len(m.profiles))
	for mode := range m.profiles {
		out = append(out, mode)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// EstimateMinutes converts a distance into user-facing travel minutes,
// rounded to one decimal:
//
//	((d / speed) * delay_factor + fixed_delay) / 60
//
// This is the reporting model. Graph edge travel times used for routing
// are computed separately and generally differ from it.
func (m *Model) EstimateMinutes(distanceMeters float64, mode Mode) (float64, error) {
	p, err := m.Profile(mode)
	if err != nil {
		return 0, err
	}
	seconds := (distanceMeters/p.SpeedMPS())*p.DelayFactor + p.FixedDelaySeconds
	return Round(seconds/60, 1), nil
}

// EstimateDistanceMeters is the approximate inverse of EstimateMinutes:
// time * speed / delay_factor. The fixed delay is not subtracted, so a
// round trip through both functions overshoots by the fixed delay.
func (m *Model) EstimateDistanceMeters(timeSeconds float64, mode Mode) (float64, error) {
	p, err := m.Profile(mode)
	if err != nil {
		return 0, err
	}
	return timeSeconds * p.SpeedMPS() / p.DelayFactor, nil
}

// Round rounds v half away from zero to the given number of decimals.
func Round(v float64, decimals int) float64 {
	pow := math.Pow(10, float64(decimals))
	return math.Round(v*pow) / pow
}
