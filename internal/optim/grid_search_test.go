package optim

import (
	"context"
	"errors"
	"testing"
)

func TestParseGrid(t *testing.T) {
	g, err := ParseGrid([]string{"penalty_initial=1, 10,100", "max_iterations=20,40"})
	if err != nil {
		t.Fatal(err)
	}
	if g.Size() != 6 {
		t.Errorf("Size() = %d, want 6", g.Size())
	}

	tests := []struct {
		name    string
		entries []string
	}{
		{"no equals", []string{"penalty_initial"}},
		{"bad number", []string{"penalty_initial=1,x"}},
		{"unknown key", []string{"nope=1"}},
		{"invalid value", []string{"penalty_growth=0.5"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseGrid(tt.entries); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestGridSearchFindsCheapest(t *testing.T) {
	g, err := NewGridSearch(
		[]string{"penalty_initial", "penalty_growth"},
		[][]float64{{1, 10, 100}, {2, 5}},
	)
	if err != nil {
		t.Fatal(err)
	}
	calls := 0
	best, cost, err := g.Search(context.Background(), func(_ context.Context, o map[string]float64) (float64, error) {
		calls++
		if o["penalty_initial"] == 100 {
			return 0, errors.New("diverged")
		}
		return (o["penalty_initial"]-10)*(o["penalty_initial"]-10) + o["penalty_growth"], nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if calls != 6 {
		t.Errorf("calls = %d, want 6", calls)
	}
	if best["penalty_initial"] != 10 || best["penalty_growth"] != 2 || cost != 2 {
		t.Errorf("best = %v cost %g", best, cost)
	}
}

func TestGridSearchAllFailed(t *testing.T) {
	g, _ := NewGridSearch([]string{"max_iterations"}, [][]float64{{5, 10}})
	boom := errors.New("boom")
	_, _, err := g.Search(context.Background(), func(context.Context, map[string]float64) (float64, error) {
		return 0, boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want it to wrap the trial errors", err)
	}
}

func TestGridSearchCanceled(t *testing.T) {
	g, _ := NewGridSearch([]string{"max_iterations"}, [][]float64{{5, 10}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := g.Search(ctx, func(context.Context, map[string]float64) (float64, error) {
		t.Fatal("trial ran after cancel")
		return 0, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v", err)
	}
}
