package optimizer

import (
	"slices"

	"github.com/hefarica/ARBITRAGEXPLUS2025/bitset"
)

// Item is one knapsack candidate: an integer cost and the profit of taking it.
type Item struct {
	Cost   int
	Profit float64
}

// Knapsack solves the 0/1 knapsack problem over integer costs by dynamic
// programming. dp[i][g] is the best profit using the first i items within
// cost g; only the current row is kept, with the take decisions of every
// row recorded in a bit matrix for backtracking.
//
// It returns the indices of the chosen items in input order and their total
// profit. Items with a non-positive profit or a cost outside [0, budget]
// are never chosen. Ties prefer leaving the later item out.
func Knapsack(items []Item, budget int) ([]int, float64) {
	if budget < 0 || len(items) == 0 {
		return nil, 0
	}

	width := budget + 1
	dp := make([]float64, width)
	take := bitset.NewMatrix(uint64(len(items)), uint64(width))

	for i, it := range items {
		if it.Cost < 0 || it.Cost > budget || !(it.Profit > 0) {
			continue
		}
		for g := budget; g >= it.Cost; g-- {
			if v := dp[g-it.Cost] + it.Profit; v > dp[g] {
				dp[g] = v
				take.Set(uint64(i), uint64(g))
			}
		}
	}

	var (
		chosen []int
		total  float64
	)
	g := budget
	for i := len(items) - 1; i >= 0; i-- {
		if take.IsSet(uint64(i), uint64(g)) {
			chosen = append(chosen, i)
			total += items[i].Profit
			g -= items[i].Cost
		}
	}
	slices.Reverse(chosen)
	return chosen, total
}
