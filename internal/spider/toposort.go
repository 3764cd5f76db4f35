package spider

import (
	"cmp"
	"math"
	"slices"
)

// sentinelOrder sorts nodes the topological pass did not place last
const sentinelOrder = math.MaxInt

// topoSort orders nodes so every edge's source precedes its target. Among
// nodes that are ready at the same time the one earlier in nodes wins, so
// the result stays as close to the input order as the edges allow. ok is
// false when the edges contain a cycle; order then holds only the nodes
// placed before the cycle was hit.
func topoSort(nodes []string, edges [][2]string) (order map[string]int, ok bool) {
	index := make(map[string]int, len(nodes))
	for i, n := range nodes {
		index[n] = i
	}

	inDegree := make([]int, len(nodes))
	successors := make([][]int, len(nodes))
	for _, e := range edges {
		from, okFrom := index[e[0]]
		to, okTo := index[e[1]]
		if !okFrom || !okTo || from == to {
			continue
		}
		successors[from] = append(successors[from], to)
		inDegree[to]++
	}

	var ready []int
	for i := range nodes {
		if inDegree[i] == 0 {
			ready = append(ready, i)
		}
	}

	order = make(map[string]int, len(nodes))
	for len(ready) > 0 {
		n := ready[0]
		ready = ready[1:]
		order[nodes[n]] = len(order)

		for _, s := range successors[n] {
			inDegree[s]--
			if inDegree[s] == 0 {
				pos, _ := slices.BinarySearch(ready, s)
				ready = slices.Insert(ready, pos, s)
			}
		}
	}
	return order, len(order) == len(nodes)
}

// orderOf returns a node's position, or the sentinel for unplaced nodes
func orderOf(order map[string]int, node string) int {
	if o, ok := order[node]; ok {
		return o
	}
	return sentinelOrder
}

// applyOrder stably sorts items by the order of their keys
func applyOrder[T any](items []T, key func(T) string, order map[string]int) {
	slices.SortStableFunc(items, func(a, b T) int {
		return cmp.Compare(orderOf(order, key(a)), orderOf(order, key(b)))
	})
}
