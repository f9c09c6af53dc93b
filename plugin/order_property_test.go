package plugin

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// TestSortByDependencies_PropertyAcyclic checks that for any acyclic
// dependency graph and any registration order, the produced sequence
// covers every plugin exactly once and places each plugin after all of
// its registry-present dependencies.
func TestSortByDependencies_PropertyAcyclic(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 12).Draw(rt, "n")

		names := make([]string, n)
		for i := range names {
			names[i] = fmt.Sprintf("p%d", i)
		}

		// Edges only point to lower indices, so the graph is acyclic by
		// construction.
		deps := make(map[string][]string, n)
		for i := 1; i < n; i++ {
			for j := 0; j < i; j++ {
				if rapid.Bool().Draw(rt, fmt.Sprintf("edge_%d_%d", i, j)) {
					deps[names[i]] = append(deps[names[i]], names[j])
				}
			}
		}

		// Register in a drawn permutation of the names.
		order := make([]string, n)
		copy(order, names)
		for i := n - 1; i > 0; i-- {
			j := rapid.IntRange(0, i).Draw(rt, fmt.Sprintf("swap_%d", i))
			order[i], order[j] = order[j], order[i]
		}

		r := NewRegistry(nil, nil)
		for _, name := range order {
			p := newMockPlugin(name, deps[name]...)
			_, err := r.Register(factoryFor(p), "entry:"+name)
			require.NoError(rt, err)
		}

		sorted := r.SortByDependencies()
		require.Len(rt, sorted, n)

		index := make(map[string]int, n)
		for i, inst := range sorted {
			_, dup := index[inst.Name()]
			require.False(rt, dup, "plugin %s appeared twice", inst.Name())
			index[inst.Name()] = i
		}

		for name, nameDeps := range deps {
			for _, dep := range nameDeps {
				require.Less(rt, index[dep], index[name],
					"dependency %s must initialize before %s", dep, name)
			}
		}
	})
}
