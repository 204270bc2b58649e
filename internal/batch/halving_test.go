package batch

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
)

func TestRunnerHalvesDownToSingleItems(t *testing.T) {
	items := make([]int, 1000)
	for i := range items {
		items[i] = i
	}

	var (
		mu      sync.Mutex
		dropped []int
	)
	runner := Runner[uint64, int]{
		Size:        1000,
		Concurrency: 20,
		Do: func(context.Context, uint64, []int) error {
			return errors.New("overloaded")
		},
		Drop: func(_ uint64, item int, _ error) {
			mu.Lock()
			dropped = append(dropped, item)
			mu.Unlock()
		},
	}

	stats, err := runner.Run(context.Background(), []Group[uint64, int]{{Key: 100, Items: items}})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	want := []int{1000, 500, 250, 125, 63, 32, 16, 8, 4, 2, 1}
	if !reflect.DeepEqual(stats.Sizes, want) {
		t.Fatalf("sizes mismatch: got %v want %v", stats.Sizes, want)
	}
	if stats.Halvings() != 10 {
		t.Fatalf("halvings mismatch: got %d", stats.Halvings())
	}
	if stats.Dropped != 1000 || len(dropped) != 1000 || stats.Succeeded != 0 {
		t.Fatalf("drop count mismatch: stats=%+v dropped=%d", stats, len(dropped))
	}
}

func TestRunnerRetriesOnlyFailedItems(t *testing.T) {
	var (
		mu    sync.Mutex
		seen  = map[int]int{}
		calls []int
	)
	runner := Runner[string, int]{
		Size:        4,
		Concurrency: 1,
		Do: func(_ context.Context, _ string, items []int) error {
			mu.Lock()
			defer mu.Unlock()
			calls = append(calls, len(items))
			for _, it := range items {
				if it == 3 {
					return errors.New("bad item")
				}
			}
			for _, it := range items {
				seen[it]++
			}
			return nil
		},
	}

	stats, err := runner.Run(context.Background(), []Group[string, int]{{Key: "a", Items: []int{0, 1, 2, 3, 4, 5}}})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if stats.Succeeded != 5 || stats.Dropped != 1 {
		t.Fatalf("stats mismatch: %+v", stats)
	}
	for _, it := range []int{0, 1, 2, 4, 5} {
		if seen[it] != 1 {
			t.Fatalf("item %d processed %d times", it, seen[it])
		}
	}
	if !reflect.DeepEqual(calls, []int{4, 2, 2, 2, 1, 1}) {
		t.Fatalf("call sizes mismatch: %v", calls)
	}
}

func TestRunnerStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	runner := Runner[int, int]{
		Size: 1,
		Do:   func(context.Context, int, []int) error { return nil },
	}
	if _, err := runner.Run(ctx, []Group[int, int]{{Key: 1, Items: []int{1}}}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
