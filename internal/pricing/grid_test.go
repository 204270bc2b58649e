package pricing

import (
	"reflect"
	"testing"

	"traderScope/internal/model"
)

func TestNewGridAlignsToStep(t *testing.T) {
	grid := NewGrid(105, 30, 10)
	if grid.Start != 70 || grid.Step != 10 || grid.Head != 105 {
		t.Fatalf("grid mismatch: %+v", grid)
	}
	want := []uint64{70, 80, 90, 100}
	if got := grid.From(grid.Start); !reflect.DeepEqual(got, want) {
		t.Fatalf("points mismatch: got %v want %v", got, want)
	}
}

func TestGridNextSkipsRecordedBlock(t *testing.T) {
	grid := NewGrid(100, 30, 10)

	if got, ok := grid.Next(0, nil); !ok || got != 70 {
		t.Fatalf("unseen asset mismatch: %d %v", got, ok)
	}
	if got, ok := grid.Next(85, nil); !ok || got != 90 {
		t.Fatalf("late pool mismatch: %d %v", got, ok)
	}
	last := uint64(80)
	if got, ok := grid.Next(0, &last); !ok || got != 90 {
		t.Fatalf("after last mismatch: %d %v", got, ok)
	}
	last = 100
	if _, ok := grid.Next(0, &last); ok {
		t.Fatalf("expected current asset to have no next block")
	}
}

func TestPlanGroupsByBlock(t *testing.T) {
	grid := NewGrid(100, 30, 10)
	last := uint64(80)
	pools := []model.PricedTokenPool{
		{TokenPool: model.TokenPool{Token: "a"}, CreatedAtBlock: 0},
		{TokenPool: model.TokenPool{Token: "b"}, LastPriceBlock: &last},
	}
	groups := Plan(grid, pools)

	var keys []uint64
	for _, g := range groups {
		keys = append(keys, g.Key)
	}
	if !reflect.DeepEqual(keys, []uint64{70, 80, 90, 100}) {
		t.Fatalf("keys mismatch: %v", keys)
	}
	if len(groups[0].Items) != 1 || len(groups[2].Items) != 2 {
		t.Fatalf("group sizes mismatch: %d %d", len(groups[0].Items), len(groups[2].Items))
	}
}
