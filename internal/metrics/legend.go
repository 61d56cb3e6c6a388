package metrics

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Legend maps raw land-cover class codes to the coarse label set used by
// extraction. One label is designated the forest label.
type Legend struct {
	labels map[byte]string
	forest string
}

// NewLegend builds a legend and checks that at least one code maps to
// the forest label.
func NewLegend(labels map[byte]string, forest string) (Legend, error) {
	if len(labels) == 0 {
		return Legend{}, eris.New("metrics: legend has no classes")
	}
	if forest == "" {
		return Legend{}, eris.New("metrics: legend has no forest label")
	}
	found := false
	for _, lab := range labels {
		if lab == forest {
			found = true
			break
		}
	}
	if !found {
		return Legend{}, eris.Errorf("metrics: no legend class maps to %q", forest)
	}
	copied := make(map[byte]string, len(labels))
	for code, lab := range labels {
		copied[code] = lab
	}
	return Legend{labels: copied, forest: forest}, nil
}

// Label returns the coarse label for a raw class code. Unmapped codes
// report false and are dropped from tabulations.
func (l Legend) Label(code byte) (string, bool) {
	lab, ok := l.labels[code]
	return lab, ok
}

// ForestLabel returns the label extraction treats as forest.
func (l Legend) ForestLabel() string {
	return l.forest
}

// DefaultLegend returns the production legend: the 44 land-cover grid
// codes collapsed into seven coarse groups.
func DefaultLegend() Legend {
	labels := make(map[byte]string, 44)
	add := func(lo, hi byte, label string) {
		for c := lo; c <= hi; c++ {
			labels[c] = label
		}
	}
	add(1, 11, "Artificial surfaces")
	add(12, 22, "Agricultural areas")
	add(23, 25, "Forests")
	add(26, 29, "Scrub and herbaceous vegetation")
	add(30, 34, "Open spaces with little vegetation")
	add(35, 39, "Wetlands")
	add(40, 44, "Water bodies")

	l, err := NewLegend(labels, "Forests")
	if err != nil {
		panic(err) // the built-in table always validates
	}
	return l
}

type legendFile struct {
	ForestLabel string `yaml:"forest_label"`
	Classes     []struct {
		Code  byte   `yaml:"code"`
		Label string `yaml:"label"`
	} `yaml:"classes"`
}

// LoadLegend reads a legend from a YAML class table.
func LoadLegend(path string) (Legend, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Legend{}, eris.Wrapf(err, "metrics: read legend %s", path)
	}
	var lf legendFile
	if err := yaml.Unmarshal(raw, &lf); err != nil {
		return Legend{}, eris.Wrapf(err, "metrics: parse legend %s", path)
	}
	labels := make(map[byte]string, len(lf.Classes))
	for _, c := range lf.Classes {
		if c.Label == "" {
			return Legend{}, eris.Errorf("metrics: legend %s: class %d has no label", path, c.Code)
		}
		if prev, dup := labels[c.Code]; dup && prev != c.Label {
			return Legend{}, eris.Errorf("metrics: legend %s: class %d mapped to both %q and %q",
				path, c.Code, prev, c.Label)
		}
		labels[c.Code] = c.Label
	}
	return NewLegend(labels, lf.ForestLabel)
}
