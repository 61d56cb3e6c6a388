package scoring

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/cruiseplan/siteselect/internal/model"
)

// Engine scores metric records with three lookup tables: a percent curve
// shared by the density and both forest-share metrics, a dominance
// curve, and a class-count curve.
type Engine struct {
	percent   Table
	dominance Table
	classes   Table
}

// NewEngine builds an engine from pre-compiled tables.
func NewEngine(percent, dominance, classes Table) *Engine {
	return &Engine{percent: percent, dominance: dominance, classes: classes}
}

// Default returns the engine used for the production surveys. The percent
// curve peaks at the 45-55 band and falls off symmetrically, the dominance
// curve rewards a clear leaf-type majority, and the class-count curve
// prefers two or three mapped cover classes.
func Default() *Engine {
	percent := mustTable("percent", []Band{
		{Lo: 0, Hi: 9, Score: 0},
		{Lo: 10, Hi: 19, Score: 1},
		{Lo: 20, Hi: 29, Score: 2},
		{Lo: 30, Hi: 39, Score: 3},
		{Lo: 40, Hi: 44, Score: 4},
		{Lo: 45, Hi: 55, Score: 5},
		{Lo: 56, Hi: 60, Score: 4},
		{Lo: 61, Hi: 70, Score: 3},
		{Lo: 71, Hi: 80, Score: 2},
		{Lo: 81, Hi: 90, Score: 1},
		{Lo: 91, Hi: 100, Score: 0},
	})
	dominance := mustTable("dominance", []Band{
		{Lo: 0, Hi: 19, Score: 0},
		{Lo: 20, Hi: 39, Score: 1},
		{Lo: 40, Hi: 59, Score: 2},
		{Lo: 60, Hi: 79, Score: 3},
		{Lo: 80, Hi: 100, Score: 4},
	})
	classes := mustTable("classes", []Band{
		{Lo: 1, Hi: 1, Score: 0},
		{Lo: 2, Hi: 3, Score: 5},
		{Lo: 4, Hi: 4, Score: 3},
		{Lo: 5, Hi: 10, Score: 0},
	})
	return NewEngine(percent, dominance, classes)
}

func mustTable(name string, bands []Band) Table {
	t, err := NewTable(name, bands)
	if err != nil {
		panic(err) // the built-in curves always validate
	}
	return t
}

// Score computes the per-metric band scores for one record and their sum.
// A value outside its table's domain is an error: extraction bounds every
// metric, so an out-of-domain value means a broken table or record.
func (e *Engine) Score(m model.Metrics) (model.Scores, error) {
	var s model.Scores
	var err error
	if s.Density, err = e.percent.Score(m.Density); err != nil {
		return model.Scores{}, eris.Wrap(err, "scoring: density")
	}
	if s.Dominance, err = e.dominance.Score(m.Dominance); err != nil {
		return model.Scores{}, eris.Wrap(err, "scoring: dominance")
	}
	if s.TypeForest, err = e.percent.Score(m.TypeForest); err != nil {
		return model.Scores{}, eris.Wrap(err, "scoring: type forest")
	}
	if s.CoverForest, err = e.percent.Score(m.CoverForest); err != nil {
		return model.Scores{}, eris.Wrap(err, "scoring: cover forest")
	}
	if s.CoverClasses, err = e.classes.Score(m.CoverClasses); err != nil {
		return model.Scores{}, eris.Wrap(err, "scoring: cover classes")
	}
	s.Total = s.Density + s.Dominance + s.TypeForest + s.CoverForest + s.CoverClasses
	return s, nil
}

type engineFile struct {
	Percent   []Band `yaml:"percent"`
	Dominance []Band `yaml:"dominance"`
	Classes   []Band `yaml:"classes"`
}

// LoadEngine reads the three band tables from a YAML file, for surveys
// that tune the curves without rebuilding.
func LoadEngine(path string) (*Engine, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "scoring: read tables %s", path)
	}
	var ef engineFile
	if err := yaml.Unmarshal(raw, &ef); err != nil {
		return nil, eris.Wrapf(err, "scoring: parse tables %s", path)
	}

	percent, err := NewTable("percent", ef.Percent)
	if err != nil {
		return nil, err
	}
	dominance, err := NewTable("dominance", ef.Dominance)
	if err != nil {
		return nil, err
	}
	classes, err := NewTable("classes", ef.Classes)
	if err != nil {
		return nil, err
	}
	return NewEngine(percent, dominance, classes), nil
}
