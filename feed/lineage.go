package feed

// DefaultLineageEntries bounds the texts a Lineage remembers.
const DefaultLineageEntries = 1 << 14

// Lineage follows rewritten text across passes. Every leaf a pass rewrites
// gets a depth: one more than the depth of the text it started from, or 1
// when that text was never produced by a rewrite. Rules whose output never
// feeds a rule again keep depths small; a rule set that keeps rewriting its
// own output makes them grow without bound.
type Lineage struct {
	depth map[uint64]int
	limit int
}

// NewLineage creates a Lineage remembering at most maxEntries texts.
// Past that, only the latest pass's outputs are kept. Zero means
// DefaultLineageEntries.
func NewLineage(maxEntries int) *Lineage {
	if maxEntries <= 0 {
		maxEntries = DefaultLineageEntries
	}
	return &Lineage{depth: make(map[uint64]int), limit: maxEntries}
}

// Reset forgets every recorded text.
func (l *Lineage) Reset() {
	clear(l.depth)
}

// Depth returns the recorded depth of the text hashing to h, 0 if unknown.
func (l *Lineage) Depth(h uint64) int { return l.depth[h] }

// Observe records the rewrites of st and returns the deepest depth among
// them, 0 when st rewrote nothing.
func (l *Lineage) Observe(st Stats) int {
	if len(st.Outputs) == 0 {
		return 0
	}
	next := make(map[uint64]int, len(st.Outputs))
	deepest := 0
	for i, out := range st.Outputs {
		d := l.depth[st.Inputs[i]] + 1
		if d > next[out] {
			next[out] = d
		}
		deepest = max(deepest, d)
	}

	if len(l.depth)+len(next) > l.limit {
		l.depth = next
		return deepest
	}
	for h, d := range next {
		if d > l.depth[h] {
			l.depth[h] = d
		}
	}
	return deepest
}
