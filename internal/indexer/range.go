package indexer

import "fmt"

// BlockRange is an inclusive block range.
type BlockRange struct {
	From uint64
	To   uint64
}

// SplitRange cuts [from, to] into consecutive ranges of at most size blocks.
func SplitRange(from, to, size uint64) ([]BlockRange, error) {
	if size == 0 {
		return nil, fmt.Errorf("range size must be greater than zero")
	}
	if to < from {
		return nil, fmt.Errorf("to block %d is before from block %d", to, from)
	}

	out := make([]BlockRange, 0, (to-from)/size+1)
	for start := from; ; start += size {
		end := start + size - 1
		if end >= to || end < start {
			return append(out, BlockRange{From: start, To: to}), nil
		}
		out = append(out, BlockRange{From: start, To: end})
	}
}
