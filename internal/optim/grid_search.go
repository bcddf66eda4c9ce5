package optim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"go.uber.org/multierr"
)

// Trial runs one solve with the given option overrides and returns its cost.
// A trial that fails is discarded.
type Trial func(ctx context.Context, options map[string]float64) (float64, error)

// GridSearch tries every combination of candidate option values.
type GridSearch struct {
	keys   []string
	values [][]float64
}

func NewGridSearch(keys []string, values [][]float64) (*GridSearch, error) {
	if len(keys) != len(values) {
		return nil, fmt.Errorf("optim: %d keys but %d value lists", len(keys), len(values))
	}
	var errs error
	for i, k := range keys {
		if len(values[i]) == 0 {
			multierr.AppendInto(&errs, fmt.Errorf("optim: %s has no values", k))
			continue
		}
		for _, v := range values[i] {
			if _, err := ParseOptions(map[string]float64{k: v}); err != nil {
				multierr.AppendInto(&errs, err)
			}
		}
	}
	if errs != nil {
		return nil, errs
	}
	return &GridSearch{keys: keys, values: values}, nil
}

// ParseGrid reads "key=v1,v2,..." entries.
func ParseGrid(specs []string) (*GridSearch, error) {
	keys := make([]string, 0, len(specs))
	values := make([][]float64, 0, len(specs))
	for _, s := range specs {
		k, list, ok := strings.Cut(s, "=")
		if !ok {
			return nil, fmt.Errorf("optim: grid entry %q: want key=v1,v2", s)
		}
		var vals []float64
		for _, f := range strings.Split(list, ",") {
			v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
			if err != nil {
				return nil, fmt.Errorf("optim: grid entry %q: %w", s, err)
			}
			vals = append(vals, v)
		}
		keys = append(keys, strings.TrimSpace(k))
		values = append(values, vals)
	}
	return NewGridSearch(keys, values)
}

// Size is the number of combinations.
func (g *GridSearch) Size() int {
	n := 1
	for _, v := range g.values {
		n *= len(v)
	}
	return n
}

// Search returns the cheapest option set. Ties keep the first combination
// in key order.
func (g *GridSearch) Search(ctx context.Context, trial Trial) (map[string]float64, float64, error) {
	best := math.Inf(1)
	var bestOptions map[string]float64
	var failures error

	err := g.searchRecursive(ctx, 0, make(map[string]float64), trial, &best, &bestOptions, &failures)
	if err != nil {
		return nil, 0, err
	}
	if bestOptions == nil {
		if failures == nil {
			failures = errors.New("optim: empty grid")
		}
		return nil, 0, fmt.Errorf("optim: no option set succeeded: %w", failures)
	}
	return bestOptions, best, nil
}

func (g *GridSearch) searchRecursive(
	ctx context.Context,
	depth int,
	current map[string]float64,
	trial Trial,
	best *float64,
	bestOptions *map[string]float64,
	failures *error,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if depth == len(g.keys) {
		cost, err := trial(ctx, current)
		if err != nil {
			multierr.AppendInto(failures, err)
			return nil
		}
		if cost < *best {
			*best = cost
			*bestOptions = make(map[string]float64, len(current))
			for k, v := range current {
				(*bestOptions)[k] = v
			}
		}
		return nil
	}

	key := g.keys[depth]
	for _, val := range g.values[depth] {
		next := make(map[string]float64, len(current)+1)
		for k, v := range current {
			next[k] = v
		}
		next[key] = val

		if err := g.searchRecursive(ctx, depth+1, next, trial, best, bestOptions, failures); err != nil {
			return err
		}
	}
	return nil
}
