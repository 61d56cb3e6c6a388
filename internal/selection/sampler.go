package selection

import (
	"math/rand/v2"
	"sort"

	"github.com/cruiseplan/siteselect/internal/model"
)

// Sample draws one site per selected block: the draw is uniform over the
// block's maximum-score candidates, from a generator seeded with the
// block's rank. Reseeding per rank pins every block's draw to its
// position in the ranking, so a rerun over the same inputs reproduces
// the same sites and an upstream change to one block cannot shift the
// draws of the others.
func Sample(sel *Selection) []model.Site {
	sites := make([]model.Site, 0, len(sel.Blocks))
	for _, b := range sel.Blocks {
		best := topScored(sel.Members[b.ID])
		if len(best) == 0 {
			continue
		}
		rng := rand.New(rand.NewPCG(uint64(b.Rank), uint64(b.Rank)))
		pick := best[rng.IntN(len(best))]
		sites = append(sites, model.Site{Scored: pick, BlockID: b.ID, Rank: b.Rank})
	}
	return sites
}

// topScored returns the candidates sharing the block's maximum total
// score, ordered by candidate id so the draw index is stable.
func topScored(members []model.Scored) []model.Scored {
	if len(members) == 0 {
		return nil
	}
	max := members[0].Scores.Total
	for _, m := range members[1:] {
		if m.Scores.Total > max {
			max = m.Scores.Total
		}
	}
	best := make([]model.Scored, 0, 4)
	for _, m := range members {
		if m.Scores.Total == max {
			best = append(best, m)
		}
	}
	sort.Slice(best, func(i, j int) bool { return best[i].ID < best[j].ID })
	return best
}
