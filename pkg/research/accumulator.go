package research

import (
	"sort"
	"strings"
	"unicode"
)

// Coverage counts how many queries a branch planned and how many of them failed.
type Coverage struct {
	Queries int `json:"queries"`
	Failed  int `json:"failed"`
}

type learningEntry struct {
	text    string
	sources map[string]struct{}
	seq     int
}

// Accumulator is the set of learnings and source URLs gathered by one orchestration
// call. It is owned by that call and never shared between concurrently running
// branches; parents merge a child's accumulator only after the child has returned.
type Accumulator struct {
	learnings map[string]*learningEntry
	sources   map[string]struct{}
	coverage  Coverage
	seq       int
}

// NewAccumulator returns an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{
		learnings: make(map[string]*learningEntry),
		sources:   make(map[string]struct{}),
	}
}

// NormalizeText is the deduplication key for learnings and queries: case-folded,
// whitespace-collapsed, without trailing sentence punctuation.
func NormalizeText(s string) string {
	s = strings.Join(strings.Fields(strings.ToLower(s)), " ")
	return strings.TrimRightFunc(s, func(r rune) bool {
		return r == '.' || r == '!' || r == ';' || unicode.IsSpace(r)
	})
}

// Add records a learning. Learnings without text or without any source URL are
// rejected so that nothing in the accumulator lacks attribution.
func (a *Accumulator) Add(l Learning) bool {
	key := NormalizeText(l.Text)
	if key == "" {
		return false
	}
	var urls []string
	for _, u := range l.Sources {
		if u = strings.TrimSpace(u); u != "" {
			urls = append(urls, u)
		}
	}
	if len(urls) == 0 {
		return false
	}

	text := strings.TrimSpace(l.Text)
	entry, ok := a.learnings[key]
	if !ok {
		a.seq++
		entry = &learningEntry{text: text, sources: make(map[string]struct{}), seq: a.seq}
		a.learnings[key] = entry
	} else if text < entry.text {
		// Pick the surface form independent of arrival order.
		entry.text = text
	}
	for _, u := range urls {
		entry.sources[u] = struct{}{}
		a.sources[u] = struct{}{}
	}
	return true
}

// RecordQueries adds to the coverage counters.
func (a *Accumulator) RecordQueries(planned, failed int) {
	a.coverage.Queries += planned
	a.coverage.Failed += failed
}

// Merge folds other into a. Merging is a set union over the normalized learning text,
// so the result does not depend on the order in which sibling branches are merged.
func (a *Accumulator) Merge(other *Accumulator) {
	if other == nil {
		return
	}
	for _, l := range other.Learnings() {
		a.Add(l)
	}
	a.coverage.Queries += other.coverage.Queries
	a.coverage.Failed += other.coverage.Failed
}

// Len returns the number of distinct learnings.
func (a *Accumulator) Len() int {
	return len(a.learnings)
}

// Coverage returns the query counters.
func (a *Accumulator) Coverage() Coverage {
	return a.coverage
}

// Learnings returns the learnings in insertion order, each with sorted sources.
func (a *Accumulator) Learnings() []Learning {
	entries := make([]*learningEntry, 0, len(a.learnings))
	for _, e := range a.learnings {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	out := make([]Learning, 0, len(entries))
	for _, e := range entries {
		out = append(out, Learning{Text: e.text, Sources: sortedKeys(e.sources)})
	}
	return out
}

// Recent returns up to n learnings, most recently added first.
func (a *Accumulator) Recent(n int) []Learning {
	all := a.Learnings()
	if n <= 0 || n > len(all) {
		n = len(all)
	}
	out := make([]Learning, 0, n)
	for i := len(all) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, all[i])
	}
	return out
}

// Sources returns every attributed URL, sorted.
func (a *Accumulator) Sources() []string {
	return sortedKeys(a.sources)
}

// Snapshot copies the accumulator so a child branch can read its parent's learnings
// without touching the parent's state.
func (a *Accumulator) Snapshot() *Accumulator {
	cp := NewAccumulator()
	cp.Merge(a)
	cp.coverage = Coverage{}
	return cp
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
