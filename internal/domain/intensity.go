package domain

import (
	"fmt"
	"math"
	"strings"
)

// Category is an ordinal tropical cyclone intensity class.
type Category int

// Intensity categories, weakest first.
const (
	CategoryNone Category = iota
	CategoryTD
	CategoryTS
	CategorySTS
	CategoryTY
	CategorySTY
	CategorySuperTY
)

// NumCategories is the number of intensity classes including CategoryNone.
const NumCategories = int(CategorySuperTY) + 1

type categoryInfo struct {
	code  string
	label string
	color string
}

var categories = [NumCategories]categoryInfo{
	{"LOW", "Low Pressure (<10.8)", "gray"},
	{"TD", "Tropical Depression (TD)", "skyblue"},
	{"TS", "Tropical Storm (TS)", "blue"},
	{"STS", "Severe Tropical Storm (STS)", "green"},
	{"TY", "Typhoon (TY)", "yellow"},
	{"STY", "Severe Typhoon (STY)", "orange"},
	{"SuperTY", "Super Typhoon (SuperTY)", "red"},
}

// AllCategories returns every category in ascending order.
func AllCategories() []Category {
	out := make([]Category, NumCategories)
	for i := range out {
		out[i] = Category(i)
	}
	return out
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	return c >= CategoryNone && c <= CategorySuperTY
}

// String returns the short code, e.g. "STS".
func (c Category) String() string {
	if !c.Valid() {
		return fmt.Sprintf("Category(%d)", int(c))
	}
	return categories[c].code
}

// Label returns the display label used in reports and legends.
func (c Category) Label() string {
	if !c.Valid() {
		return c.String()
	}
	return categories[c].label
}

// ColorName returns the plot color associated with the category.
func (c Category) ColorName() string {
	if !c.Valid() {
		return "black"
	}
	return categories[c].color
}

// MarshalText encodes the category as its short code.
func (c Category) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("invalid category %d", int(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText accepts a short code or a display label.
func (c *Category) UnmarshalText(text []byte) error {
	parsed, err := ParseCategory(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseCategory parses a short code or display label, ignoring case.
func ParseCategory(s string) (Category, error) {
	s = strings.TrimSpace(s)
	for i, info := range categories {
		if strings.EqualFold(s, info.code) || strings.EqualFold(s, info.label) {
			return Category(i), nil
		}
	}
	return CategoryNone, fmt.Errorf("unknown intensity category %q", s)
}

// Scale maps corrected wind speeds (m/s) to categories. Thresholds holds the
// lower bound of TD, TS, STS, TY, STY and SuperTY in that order.
type Scale struct {
	Thresholds [NumCategories - 1]float64
}

// CMAScale returns the China Meteorological Administration scale.
// Published ranges: TD 10.8-17.1, TS 17.2-24.4, STS 24.5-32.6,
// TY 32.7-41.4, STY 41.5-50.9, SuperTY >= 51.0.
func CMAScale() Scale {
	return Scale{Thresholds: [NumCategories - 1]float64{10.8, 17.2, 24.5, 32.7, 41.5, 51.0}}
}

// NewScale builds a scale from lower bounds.
func NewScale(bounds []float64) (Scale, error) {
	var s Scale
	if len(bounds) != len(s.Thresholds) {
		return Scale{}, fmt.Errorf("intensity scale needs %d thresholds, got %d", len(s.Thresholds), len(bounds))
	}
	copy(s.Thresholds[:], bounds)
	if err := s.Validate(); err != nil {
		return Scale{}, err
	}
	return s, nil
}

// Validate checks that thresholds are positive and strictly increasing.
func (s Scale) Validate() error {
	prev := 0.0
	for i, t := range s.Thresholds {
		if math.IsNaN(t) || t <= prev {
			return fmt.Errorf("intensity threshold for %s must be greater than %g, got %g",
				Category(i+1), prev, t)
		}
		prev = t
	}
	return nil
}

// Classify returns the highest category whose lower bound wind reaches.
// Speeds between published ranges (e.g. 17.15) fall into the lower class.
func (s Scale) Classify(wind float64) Category {
	if math.IsNaN(wind) {
		return CategoryNone
	}
	for i := len(s.Thresholds) - 1; i >= 0; i-- {
		if wind >= s.Thresholds[i] {
			return Category(i + 1)
		}
	}
	return CategoryNone
}

// LowerBound returns the minimum wind speed of c. CategoryNone starts at 0.
func (s Scale) LowerBound(c Category) float64 {
	if c <= CategoryNone || !c.Valid() {
		return 0
	}
	return s.Thresholds[c-1]
}
