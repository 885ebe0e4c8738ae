package rules

import (
	"sort"

	"github.com/alanyoungcy/laybot/internal/domain"
)

// priced is an active runner with a best lay price.
type priced struct {
	runner domain.Runner
	lay    domain.PriceSize
}

// pricedRunners returns the active runners that have a lay price, sorted by
// ascending best lay (favourite first), ties broken by selection ID. Runners
// without a price are not candidates.
func pricedRunners(runners []domain.Runner) []priced {
	out := make([]priced, 0, len(runners))
	for _, r := range runners {
		if !r.IsActive() {
			continue
		}
		lay, ok := r.BestLay()
		if !ok {
			continue
		}
		out = append(out, priced{runner: r, lay: lay})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].lay.Price != out[j].lay.Price {
			return out[i].lay.Price < out[j].lay.Price
		}
		return out[i].runner.SelectionID < out[j].runner.SelectionID
	})
	return out
}
