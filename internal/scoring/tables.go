// Package scoring turns extracted metric records into per-metric band
// scores and the total used for ranking candidates.
package scoring

import (
	"sort"

	"github.com/rotisserie/eris"
)

// Band assigns one score to a closed integer interval.
type Band struct {
	Lo    int `yaml:"lo"`
	Hi    int `yaml:"hi"`
	Score int `yaml:"score"`
}

// Table is a compiled band lookup over a contiguous integer domain.
// Lookups are a slice index, which keeps scoring off the profile even
// with millions of candidates.
type Table struct {
	name   string
	lo     int
	scores []int
}

// NewTable validates the bands and compiles them into a dense table.
// Bands must tile a contiguous range: sorted by Lo, each band starting
// one past the previous Hi.
func NewTable(name string, bands []Band) (Table, error) {
	if name == "" {
		return Table{}, eris.New("scoring: table has no name")
	}
	if len(bands) == 0 {
		return Table{}, eris.Errorf("scoring: table %s has no bands", name)
	}

	sorted := make([]Band, len(bands))
	copy(sorted, bands)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Lo < sorted[j].Lo })

	for i, b := range sorted {
		if b.Hi < b.Lo {
			return Table{}, eris.Errorf("scoring: table %s: band %d-%d is inverted", name, b.Lo, b.Hi)
		}
		if i > 0 && b.Lo != sorted[i-1].Hi+1 {
			return Table{}, eris.Errorf("scoring: table %s: bands %d-%d and %d-%d do not tile the domain",
				name, sorted[i-1].Lo, sorted[i-1].Hi, b.Lo, b.Hi)
		}
	}

	lo := sorted[0].Lo
	hi := sorted[len(sorted)-1].Hi
	scores := make([]int, hi-lo+1)
	for _, b := range sorted {
		for v := b.Lo; v <= b.Hi; v++ {
			scores[v-lo] = b.Score
		}
	}
	return Table{name: name, lo: lo, scores: scores}, nil
}

// Score returns the band score for v, or an error when v falls outside
// the table's domain.
func (t Table) Score(v int) (int, error) {
	i := v - t.lo
	if i < 0 || i >= len(t.scores) {
		lo, hi := t.Domain()
		return 0, eris.Errorf("scoring: table %s: value %d outside domain %d-%d", t.name, v, lo, hi)
	}
	return t.scores[i], nil
}

// Domain returns the inclusive bounds the table covers.
func (t Table) Domain() (lo, hi int) {
	return t.lo, t.lo + len(t.scores) - 1
}

// Name returns the table's identifier, used in errors and config.
func (t Table) Name() string {
	return t.name
}
