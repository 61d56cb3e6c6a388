// Package metrics crops the three raster layers under each candidate
// cell and turns the pixels into the record the scoring engine consumes,
// applying the hard-reject thresholds in a fixed order.
package metrics

import (
	"errors"
	"math"

	"github.com/rotisserie/eris"

	"github.com/cruiseplan/siteselect/internal/model"
	"github.com/cruiseplan/siteselect/internal/raster"
)

// Pixel codes of the dominant-leaf-type layer.
const (
	LeafCodeNone        byte = 0
	LeafCodeBroadleaved byte = 1
	LeafCodeConiferous  byte = 2
)

// Thresholds are the hard-reject bounds applied during extraction.
type Thresholds struct {
	DensityMin      int
	DensityMax      int
	ForestMin       int // applied to both forest-share metrics
	ForestMax       int
	MinClasses      int // minimum mapped land-cover classes
	ExcludedClasses int // exact class count that is always rejected
}

// DefaultThresholds returns the bounds used for the production surveys.
func DefaultThresholds() Thresholds {
	return Thresholds{
		DensityMin:      10,
		DensityMax:      90,
		ForestMin:       10,
		ForestMax:       90,
		MinClasses:      2,
		ExcludedClasses: 5,
	}
}

// Layers bundles the three pre-opened raster handles extraction reads
// from. The handles are shared across workers; extraction never mutates
// them.
type Layers struct {
	Density raster.Layer // tree-cover density, percent per pixel
	Leaf    raster.Layer // dominant leaf type, categorical
	Cover   raster.Layer // land-cover classes
}

// Outcome tags an extraction result.
type Outcome int

const (
	OutcomeRetained Outcome = iota
	OutcomeRejected
	OutcomeUnmatched // candidate bounds never hit a layer
	OutcomeFailed    // raster I/O or range failure, isolated to the candidate
)

// Result is the extraction outcome for one candidate. Metrics is only
// meaningful for OutcomeRetained, Rejection for OutcomeRejected and Err
// for OutcomeFailed.
type Result struct {
	Candidate model.Candidate
	Outcome   Outcome
	Metrics   model.Metrics
	Rejection model.Rejection
	Err       error
}

// Extractor computes per-candidate metrics. It carries no mutable state,
// so a single extractor serves any number of goroutines.
type Extractor struct {
	layers Layers
	legend Legend
	thr    Thresholds
}

// NewExtractor builds an extractor over the given layers.
func NewExtractor(layers Layers, legend Legend, thr Thresholds) *Extractor {
	return &Extractor{layers: layers, legend: legend, thr: thr}
}

// Extract computes the metric record for one candidate, short-circuiting
// on the first tripped threshold. Thresholds run in a fixed order:
// density, leaf type, land cover.
func (e *Extractor) Extract(c model.Candidate) Result {
	b := c.Geom.Bounds()

	// Tree-cover density.
	px, err := raster.ReadRegion(e.layers.Density, b)
	if err != nil {
		return e.abort(c, err)
	}
	mean, n := raster.Mean(e.layers.Density, px)
	if n == 0 {
		return Result{Candidate: c, Outcome: OutcomeUnmatched}
	}
	if mean > 100 {
		return Result{Candidate: c, Outcome: OutcomeFailed,
			Err: eris.Errorf("metrics: density mean %.1f exceeds valid range for %s", mean, c.ID)}
	}
	density := int(math.Round(mean))
	if density < e.thr.DensityMin {
		return e.reject(c, model.RejectDensityLow, density)
	}
	if density > e.thr.DensityMax {
		return e.reject(c, model.RejectDensityHigh, density)
	}

	// Dominant leaf type.
	px, err = raster.ReadRegion(e.layers.Leaf, b)
	if err != nil {
		return e.abort(c, err)
	}
	counts := raster.Tabulate(e.layers.Leaf, px)
	if len(counts) < 2 {
		return e.reject(c, model.RejectSingleLeafClass, len(counts))
	}
	total := 0
	for _, v := range counts {
		total += v
	}
	bfrac := float64(counts[LeafCodeBroadleaved]) / float64(total)
	cfrac := float64(counts[LeafCodeConiferous]) / float64(total)
	if bfrac+cfrac == 0 {
		return e.reject(c, model.RejectNoLeafSignal, 0)
	}
	dominance := (bfrac - cfrac) / (bfrac + cfrac)
	domType := model.LeafConiferous
	if dominance > 0 {
		domType = model.LeafBroadleaved
	}
	domMag := int(math.Round(math.Abs(dominance) * 100))
	typeForest := int(math.Round((1 - (bfrac - cfrac)) * 100))
	if typeForest < e.thr.ForestMin {
		return e.reject(c, model.RejectTypeForestLow, typeForest)
	}
	if typeForest > e.thr.ForestMax {
		return e.reject(c, model.RejectTypeForestHigh, typeForest)
	}

	// Land cover.
	px, err = raster.ReadRegion(e.layers.Cover, b)
	if err != nil {
		return e.abort(c, err)
	}
	byLabel := make(map[string]int)
	for code, v := range raster.Tabulate(e.layers.Cover, px) {
		if label, ok := e.legend.Label(code); ok {
			byLabel[label] += v
		}
	}
	forestPx, hasForest := byLabel[e.legend.ForestLabel()]
	if !hasForest {
		return e.reject(c, model.RejectNoForestCover, 0)
	}
	if len(byLabel) == 1 {
		return e.reject(c, model.RejectSingleCoverClass, 1)
	}
	mapped := 0
	for _, v := range byLabel {
		mapped += v
	}
	coverForest := int(math.Round(float64(forestPx) / float64(mapped) * 100))
	if coverForest < e.thr.ForestMin {
		return e.reject(c, model.RejectCoverForestLow, coverForest)
	}
	if coverForest > e.thr.ForestMax {
		return e.reject(c, model.RejectCoverForestHigh, coverForest)
	}
	classes := len(byLabel)
	if classes < e.thr.MinClasses {
		return e.reject(c, model.RejectClassCountLow, classes)
	}
	if classes == e.thr.ExcludedClasses {
		return e.reject(c, model.RejectClassCountExcluded, classes)
	}

	return Result{
		Candidate: c,
		Outcome:   OutcomeRetained,
		Metrics: model.Metrics{
			Density:        density,
			Dominance:      domMag,
			DominantType:   domType,
			TypeForest:     typeForest,
			CoverForest:    coverForest,
			CoverClasses:   classes,
			SecondaryCover: secondaryLabel(byLabel, e.legend.ForestLabel()),
		},
	}
}

func (e *Extractor) reject(c model.Candidate, reason model.RejectReason, value int) Result {
	return Result{
		Candidate: c,
		Outcome:   OutcomeRejected,
		Rejection: model.Rejection{CandidateID: c.ID, Reason: reason, Value: value},
	}
}

func (e *Extractor) abort(c model.Candidate, err error) Result {
	if errors.Is(err, raster.ErrNoOverlap) {
		return Result{Candidate: c, Outcome: OutcomeUnmatched}
	}
	return Result{Candidate: c, Outcome: OutcomeFailed, Err: err}
}

// secondaryLabel picks the most frequent non-forest label; count ties go
// to the lexicographically smaller label so reruns agree.
func secondaryLabel(byLabel map[string]int, forest string) string {
	best := ""
	bestCount := -1
	for label, count := range byLabel {
		if label == forest {
			continue
		}
		if count > bestCount || (count == bestCount && label < best) {
			best = label
			bestCount = count
		}
	}
	return best
}
