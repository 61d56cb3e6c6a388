// Package selection aggregates retained candidates into coarse blocks,
// ranks the blocks by how many candidates they hold, and draws one survey
// site per selected block.
package selection

import (
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/cruiseplan/siteselect/internal/model"
	"github.com/cruiseplan/siteselect/internal/region"
)

// Selector groups retained candidates by block and keeps the densest
// blocks up to a fixed limit.
type Selector struct {
	idx   *region.BlockIndex
	limit int
}

// NewSelector builds a selector that keeps at most limit blocks.
func NewSelector(idx *region.BlockIndex, limit int) (*Selector, error) {
	if limit <= 0 {
		return nil, eris.Errorf("selection: block limit must be positive, got %d", limit)
	}
	return &Selector{idx: idx, limit: limit}, nil
}

// Selection is the outcome of block aggregation. Blocks is ordered by
// rank; Members holds the candidates of the selected blocks only, keyed
// by block id.
type Selection struct {
	Blocks    []model.Block
	Members   map[string][]model.Scored
	Unmatched int // candidates whose centroid hit no block
	Shortfall int // blocks short of the limit, zero when enough qualified
}

// Select buckets candidates into blocks by centroid and ranks the blocks
// by member count, ties broken by block id so reruns agree. Candidates
// outside every block are counted, not fatal.
func (s *Selector) Select(cands []model.Scored) *Selection {
	members := make(map[string][]model.Scored)
	unmatched := 0
	for _, c := range cands {
		x, y := c.Centroid()
		id, ok := s.idx.Locate(x, y)
		if !ok {
			unmatched++
			continue
		}
		members[id] = append(members[id], c)
	}

	blocks := make([]model.Block, 0, len(members))
	for id, m := range members {
		blocks = append(blocks, model.Block{ID: id, Count: len(m)})
	}
	sort.Slice(blocks, func(i, j int) bool {
		if blocks[i].Count != blocks[j].Count {
			return blocks[i].Count > blocks[j].Count
		}
		return blocks[i].ID < blocks[j].ID
	})

	shortfall := 0
	if len(blocks) > s.limit {
		blocks = blocks[:s.limit]
	} else if len(blocks) < s.limit {
		shortfall = s.limit - len(blocks)
	}
	for i := range blocks {
		blocks[i].Rank = i + 1
	}

	selected := make(map[string][]model.Scored, len(blocks))
	for _, b := range blocks {
		selected[b.ID] = members[b.ID]
	}

	if shortfall > 0 {
		zap.L().Warn("selection: fewer qualifying blocks than requested",
			zap.Int("blocks", len(blocks)),
			zap.Int("limit", s.limit),
			zap.Int("shortfall", shortfall),
		)
	}
	zap.L().Info("selection: blocks ranked",
		zap.Int("candidates", len(cands)),
		zap.Int("blocks", len(blocks)),
		zap.Int("unmatched", unmatched),
	)

	return &Selection{
		Blocks:    blocks,
		Members:   selected,
		Unmatched: unmatched,
		Shortfall: shortfall,
	}
}
