package compare

import (
	"math"
	"sort"

	"manuscripts/api/internal/manuscript"
)

// Status classifies a node after distribution.
type Status string

const (
	StatusUnchanged Status = "unchanged"
	StatusInserted  Status = "inserted"
	StatusDeleted   Status = "deleted"
)

// Match records how the two versions of an unchanged node were paired.
type Match int

const (
	MatchNone Match = iota
	MatchID
	MatchOrdinal
)

func (m Match) String() string {
	switch m {
	case MatchID:
		return "id"
	case MatchOrdinal:
		return "ordinal"
	default:
		return "none"
	}
}

// Entry is the distribution record of one node identity.
type Entry struct {
	Key        string
	Original   *manuscript.Node
	Comparison *manuscript.Node
	// Children holds the distributed block children; nil for node types whose
	// children are not distributed.
	Children *Map
	Status   Status
	Match    Match

	originalOrder   int
	comparisonOrder int
}

// Node returns the comparison version when present, else the original.
func (e *Entry) Node() *manuscript.Node {
	if e.Comparison != nil {
		return e.Comparison
	}
	return e.Original
}

func (e *Entry) order() int {
	if e.comparisonOrder >= 0 {
		return e.comparisonOrder
	}
	if e.originalOrder >= 0 {
		return e.originalOrder
	}
	return math.MaxInt
}

// Map is an ordered, read-only mapping from identity key to Entry.
type Map struct {
	keys    []string
	entries map[string]*Entry
}

func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Keys returns the keys in merged document order.
func (m *Map) Keys() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.keys...)
}

func (m *Map) Get(key string) (*Entry, bool) {
	if m == nil {
		return nil, false
	}
	entry, ok := m.entries[key]
	return entry, ok
}

// Entries returns the entries in merged document order.
func (m *Map) Entries() []*Entry {
	if m == nil {
		return nil
	}
	out := make([]*Entry, len(m.keys))
	for i, key := range m.keys {
		out[i] = m.entries[key]
	}
	return out
}

// Distribute matches two sibling sequences and classifies every node.
func (e *Engine) Distribute(original, comparison []*manuscript.Node) *Map {
	return e.newRun().distribute(original, comparison)
}

// distribute builds a fresh Map for one sibling scope. Children of distributing node
// types get their own nested Map, built by a recursive call once the pair is known.
func (r *run) distribute(original, comparison []*manuscript.Node) *Map {
	m := &Map{entries: make(map[string]*Entry)}

	originalKeys := newKeyer("original", r.engine.strict)
	for i, n := range significant(original) {
		key, _ := originalKeys.next(n)
		m.keys = append(m.keys, key)
		m.entries[key] = &Entry{
			Key:             key,
			Original:        n,
			Status:          StatusDeleted,
			originalOrder:   i,
			comparisonOrder: -1,
		}
	}

	comparisonKeys := newKeyer("comparison", r.engine.strict)
	for i, n := range significant(comparison) {
		key, byID := comparisonKeys.next(n)
		if entry, ok := m.entries[key]; ok {
			entry.Comparison = n
			entry.Status = StatusUnchanged
			entry.comparisonOrder = i
			entry.Match = MatchID
			if !byID {
				entry.Match = MatchOrdinal
				r.ordinalMatches++
			}
			continue
		}
		m.keys = append(m.keys, key)
		m.entries[key] = &Entry{
			Key:             key,
			Comparison:      n,
			Status:          StatusInserted,
			originalOrder:   -1,
			comparisonOrder: i,
		}
	}

	for _, key := range m.keys {
		entry := m.entries[key]
		if !entry.Node().Type.Distributes() {
			continue
		}
		entry.Children = r.distribute(childrenOf(entry.Original), childrenOf(entry.Comparison))
	}

	sort.SliceStable(m.keys, func(i, j int) bool {
		return m.entries[m.keys[i]].order() < m.entries[m.keys[j]].order()
	})
	return m
}

// significant drops inline nodes, which never take part in block distribution.
func significant(nodes []*manuscript.Node) []*manuscript.Node {
	out := make([]*manuscript.Node, 0, len(nodes))
	for _, n := range nodes {
		if n == nil || n.Type.IsInline() {
			continue
		}
		out = append(out, n)
	}
	return out
}

func childrenOf(n *manuscript.Node) []*manuscript.Node {
	if n == nil {
		return nil
	}
	return n.Content
}
