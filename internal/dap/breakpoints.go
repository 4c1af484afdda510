package dap

import (
	"sort"
	"sync"
)

// breakpointStore tracks breakpoints per source path. Identifiers come
// from one ascending counter and are never reused, even when a
// breakpoint is cleared and set again.
type breakpointStore struct {
	mu       sync.Mutex
	bySource map[string]map[int]int // path -> line -> id
	nextID   int
}

func newBreakpointStore() *breakpointStore {
	return &breakpointStore{
		bySource: make(map[string]map[int]int),
		nextID:   1,
	}
}

// setBreakpoint records one breakpoint line.
type setBreakpoint struct {
	ID   int
	Line int
}

// Replace atomically swaps the breakpoint set for a source and returns
// the new set in request order.
func (b *breakpointStore) Replace(path string, lines []int) []setBreakpoint {
	b.mu.Lock()
	defer b.mu.Unlock()

	set := make(map[int]int, len(lines))
	out := make([]setBreakpoint, 0, len(lines))
	for _, line := range lines {
		if _, dup := set[line]; dup {
			continue
		}
		id := b.nextID
		b.nextID++
		set[line] = id
		out = append(out, setBreakpoint{ID: id, Line: line})
	}
	b.bySource[path] = set
	return out
}

// Has reports whether a breakpoint exists at path:line.
func (b *breakpointStore) Has(path string, line int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.bySource[path]
	if !ok {
		return false
	}
	_, ok = set[line]
	return ok
}

// Lines returns the breakpoint lines for a source in ascending order.
func (b *breakpointStore) Lines(path string) []int {
	b.mu.Lock()
	defer b.mu.Unlock()
	set := b.bySource[path]
	lines := make([]int, 0, len(set))
	for line := range set {
		lines = append(lines, line)
	}
	sort.Ints(lines)
	return lines
}

// Clear removes all breakpoints for a source.
func (b *breakpointStore) Clear(path string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.bySource, path)
}

// ClearAll removes every breakpoint but keeps the id counter moving
// forward.
func (b *breakpointStore) ClearAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bySource = make(map[string]map[int]int)
}
