// Package partition maps index values to partition names and orders
// populated partitions. Partitioners are pure: they never touch storage.
package partition

import "sort"

// Range names the first and last populated partitions under a
// partitioner's natural order.
type Range struct {
	First string
	Last  string
}

// Partitioner routes index values to partition names.
type Partitioner interface {
	// Partition maps an index value to a partition name. It is total
	// within the partitioner's index kind; only a mismatched kind fails.
	Partition(index interface{}) (string, error)

	// Range returns the first and last of the given populated partition
	// names under the partitioner's natural order. ok is false when names
	// is empty, except for Single, which answers its fixed name for any
	// input.
	Range(names []string) (r Range, ok bool)
}

// rangeBy orders names with the given less function, breaking ties
// lexicographically on the raw string, and returns the extremes.
func rangeBy(names []string, less func(a, b string) (lt, eq bool)) (Range, bool) {
	if len(names) == 0 {
		return Range{}, false
	}
	sorted := make([]string, len(names))
	copy(sorted, names)
	sort.SliceStable(sorted, func(i, j int) bool {
		lt, eq := less(sorted[i], sorted[j])
		if eq {
			return sorted[i] < sorted[j]
		}
		return lt
	})
	return Range{First: sorted[0], Last: sorted[len(sorted)-1]}, true
}
