package pricing

// Grid is the block cadence prices are sampled at. Points are multiples of
// Step, so the grid stays aligned across runs as the head moves.
type Grid struct {
	Start uint64
	Step  uint64
	Head  uint64
}

// NewGrid spans horizon blocks back from head, aligned down to step.
func NewGrid(head, horizon, step uint64) Grid {
	if step == 0 {
		step = 1
	}
	var start uint64
	if head > horizon {
		start = head - horizon
	}
	start -= start % step
	return Grid{Start: start, Step: step, Head: head}
}

// ceil returns the first grid point at or after block.
func (g Grid) ceil(block uint64) uint64 {
	if block <= g.Start {
		return g.Start
	}
	k := (block - g.Start + g.Step - 1) / g.Step
	return g.Start + k*g.Step
}

// Next returns the first grid point to price for an asset whose pool was
// created at created and whose last stored price is at last (nil when none).
// It reports false when the asset is already current.
func (g Grid) Next(created uint64, last *uint64) (uint64, bool) {
	point := g.ceil(created)
	if last != nil && point <= *last {
		point = g.ceil(*last + 1)
	}
	if point > g.Head {
		return 0, false
	}
	return point, true
}

// From returns every grid point in [from, Head]. from must be a grid point.
func (g Grid) From(from uint64) []uint64 {
	if from > g.Head {
		return nil
	}
	out := make([]uint64, 0, (g.Head-from)/g.Step+1)
	for b := from; b <= g.Head; b += g.Step {
		out = append(out, b)
	}
	return out
}
