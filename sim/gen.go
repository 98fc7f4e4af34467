// Package sim drives a state tree with seeded random transactions, records the optimized logs
// as delimited protobuf files and summarizes runs.
package sim

import (
	"fmt"
	"math/rand/v2"

	"github.com/cosmos/statetree/logz"
)

var log = logz.Logger.With().Str("module", "sim").Logger()

// FormLikeGenerator models a form: a modest number of field nodes whose scalar slots change
// often, with short lists of children and style classes.
func FormLikeGenerator(seed int64, transactions int) Generator {
	return Generator{
		Name:              "form",
		Seed:              seed,
		Transactions:      transactions,
		OpsMean:           12,
		OpsStdDev:         6,
		MaxNodes:          200,
		ScalarKeys:        []string{"value", "label", "enabled", "placeholder", "error"},
		ListKeys:          []string{"children", "classes"},
		ValueMean:         8,
		ValueStdDev:       12,
		NodeFraction:      0.15,
		RemoveFraction:    0.1,
		ListFraction:      0.3,
		ReattachFraction:  0.2,
		IntValueFraction:  0.3,
		InsertManyPercent: 10,
	}
}

// GridLikeGenerator models a data grid: row and cell nodes churned through long lists, with
// a large share of removals and replacements.
func GridLikeGenerator(seed int64, transactions int) Generator {
	return Generator{
		Name:              "grid",
		Seed:              seed,
		Transactions:      transactions,
		OpsMean:           60,
		OpsStdDev:         30,
		MaxNodes:          2_000,
		ScalarKeys:        []string{"text", "selected"},
		ListKeys:          []string{"rows", "cells", "columns"},
		ValueMean:         16,
		ValueStdDev:       24,
		NodeFraction:      0.35,
		RemoveFraction:    0.25,
		ListFraction:      0.7,
		ReattachFraction:  0.1,
		IntValueFraction:  0.5,
		InsertManyPercent: 30,
	}
}

// Generator describes a random workload. The same generator always produces the same
// sequence of transactions.
type Generator struct {
	Name         string
	Seed         int64
	Transactions int

	// OpsMean and OpsStdDev shape the normal distribution of mutations per transaction.
	OpsMean   int
	OpsStdDev int
	// MaxNodes caps the number of nodes created over the run.
	MaxNodes int

	ScalarKeys []string
	ListKeys   []string

	// ValueMean and ValueStdDev shape the length of generated string values.
	ValueMean   int
	ValueStdDev int

	// NodeFraction is the share of values that are nodes, ReattachFraction the share of those
	// taken from the detached nodes instead of created.
	NodeFraction     float64
	ReattachFraction float64
	IntValueFraction float64

	RemoveFraction    float64
	ListFraction      float64
	InsertManyPercent int
}

func (g Generator) Validate() error {
	switch {
	case g.Transactions < 1:
		return fmt.Errorf("generator %s: transactions must be positive", g.Name)
	case g.OpsMean < 1:
		return fmt.Errorf("generator %s: mean operations per transaction must be positive", g.Name)
	case len(g.ScalarKeys) == 0 && len(g.ListKeys) == 0:
		return fmt.Errorf("generator %s: no slot keys", g.Name)
	case g.MaxNodes < 1:
		return fmt.Errorf("generator %s: max nodes must be positive", g.Name)
	}
	return nil
}

// Profile returns the preset generator with the given name.
func Profile(name string, seed int64, transactions int) (Generator, error) {
	switch name {
	case "form":
		return FormLikeGenerator(seed, transactions), nil
	case "grid":
		return GridLikeGenerator(seed, transactions), nil
	default:
		return Generator{}, fmt.Errorf("unknown generator profile: %s", name)
	}
}

func newRand(seed int64) *rand.Rand {
	return rand.New(rand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15))
}

// normInt draws from a normal distribution, redrawing closer to the mean when the draw is
// below one.
func normInt(rng *rand.Rand, mean, stdDev int) int {
	n := int(rng.NormFloat64()*float64(stdDev) + float64(mean))
	if n < 1 {
		n = int(rng.NormFloat64()*float64(mean/3) + float64(mean))
		if n < 1 {
			n = 1
		}
	}
	return n
}

const letters = "abcdefghijklmnopqrstuvwxyz"

func genString(rng *rand.Rand, mean, stdDev int) string {
	b := make([]byte, normInt(rng, mean, stdDev))
	for i := range b {
		b[i] = letters[rng.IntN(len(letters))]
	}
	return string(b)
}
