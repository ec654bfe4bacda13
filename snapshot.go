package serial

import (
	"slices"
	"strings"
)

// Snapshot is the set of ports present at one scan, kept sorted ascending and
// free of duplicates so that equality is set equality.
type Snapshot []string

// NewSnapshot builds a Snapshot from names in any order. Blank names are
// dropped and duplicates collapsed.
func NewSnapshot(names ...string) Snapshot {
	out := make(Snapshot, 0, len(names))
	for _, name := range names {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func (s Snapshot) Equal(other Snapshot) bool {
	return slices.Equal(s, other)
}

func (s Snapshot) Contains(name string) bool {
	_, found := slices.BinarySearch(s, name)
	return found
}

// Diff reports the ports present in s but not prev, and those in prev but
// not s.
func (s Snapshot) Diff(prev Snapshot) (added, removed []string) {
	for _, name := range s {
		if !prev.Contains(name) {
			added = append(added, name)
		}
	}
	for _, name := range prev {
		if !s.Contains(name) {
			removed = append(removed, name)
		}
	}
	return added, removed
}
