// Package batch runs grouped work in shrinking batches: a batch that fails
// is retried in halves until single items, and a single item that still
// fails is dropped.
package batch

import (
	"context"
	"sync"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Group is a set of items sharing one key (a block number, a pool kind).
type Group[K comparable, T any] struct {
	Key   K
	Items []T
}

// Stats summarizes a Run.
type Stats struct {
	// Sizes holds the batch size of every round, in order.
	Sizes     []int
	Succeeded int
	Dropped   int
}

// Rounds returns the number of rounds run.
func (s Stats) Rounds() int { return len(s.Sizes) }

// Halvings returns how many times the batch size was halved.
func (s Stats) Halvings() int {
	if len(s.Sizes) == 0 {
		return 0
	}
	return len(s.Sizes) - 1
}

// Runner processes groups in chunks of Size items, Concurrency chunks at a time.
type Runner[K comparable, T any] struct {
	Size        int
	Concurrency int
	Logger      *zap.Logger
	// Do processes one chunk of a group. A returned error fails the chunk.
	Do func(ctx context.Context, key K, items []T) error
	// Drop is called for every single item that failed at size one.
	Drop func(key K, item T, err error)
}

type chunk[K comparable, T any] struct {
	key   K
	items []T
}

type failure[K comparable, T any] struct {
	chunk[K, T]
	err error
}

// Run processes every group. Failed chunks are regrouped and retried with
// half the size (rounded up); at size one failures are dropped. Run returns
// only when the context is cancelled.
func (r Runner[K, T]) Run(ctx context.Context, groups []Group[K, T]) (Stats, error) {
	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	size := r.Size
	if size < 1 {
		size = 1
	}
	concurrency := r.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	var stats Stats
	pending := groups
	for len(pending) > 0 {
		stats.Sizes = append(stats.Sizes, size)

		var chunks []chunk[K, T]
		for _, g := range pending {
			for _, items := range lo.Chunk(g.Items, size) {
				chunks = append(chunks, chunk[K, T]{key: g.Key, items: items})
			}
		}

		var (
			mu       sync.Mutex
			failures []failure[K, T]
		)
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(concurrency)
		for _, c := range chunks {
			c := c
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				err := r.Do(gctx, c.key, c.items)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					if ctxErr := gctx.Err(); ctxErr != nil {
						return ctxErr
					}
					failures = append(failures, failure[K, T]{chunk: c, err: err})
					return nil
				}
				stats.Succeeded += len(c.items)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return stats, err
		}
		if len(failures) == 0 {
			break
		}

		if size == 1 {
			for _, f := range failures {
				stats.Dropped++
				logger.Warn("dropping item after halving retries",
					zap.Any("key", f.key),
					zap.Error(f.err),
				)
				if r.Drop != nil {
					r.Drop(f.key, f.items[0], f.err)
				}
			}
			break
		}

		pending = regroup(failures)
		size = (size + 1) / 2
		logger.Info("retrying failed batches with smaller size",
			zap.Int("failed_chunks", len(failures)),
			zap.Int("size", size),
		)
	}

	return stats, nil
}

// regroup merges failed chunks back into groups, keeping first-seen key order.
func regroup[K comparable, T any](failures []failure[K, T]) []Group[K, T] {
	index := make(map[K]int)
	var out []Group[K, T]
	for _, f := range failures {
		i, ok := index[f.key]
		if !ok {
			i = len(out)
			index[f.key] = i
			out = append(out, Group[K, T]{Key: f.key})
		}
		out[i].Items = append(out[i].Items, f.items...)
	}
	return out
}
