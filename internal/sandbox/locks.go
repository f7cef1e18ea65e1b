package sandbox

import (
	"sort"
	"sync"
)

// PathLocks provides per-path mutual exclusion for concurrent write-class
// tool calls. Each path gets its own mutex, so writes to disjoint paths
// proceed independently while two writers to the same path serialize — the
// second writer then observes the first writer's edit record as its
// previous-content baseline.
type PathLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewPathLocks creates an empty lock table.
func NewPathLocks() *PathLocks {
	return &PathLocks{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the mutex for path, creating it on first use.
func (p *PathLocks) Lock(path string) {
	p.mu.Lock()
	l, ok := p.locks[path]
	if !ok {
		l = &sync.Mutex{}
		p.locks[path] = l
	}
	p.mu.Unlock()

	// Acquired outside the table lock so unrelated paths don't contend.
	l.Lock()
}

// Unlock releases the mutex for path.
func (p *PathLocks) Unlock(path string) {
	p.mu.Lock()
	l, ok := p.locks[path]
	p.mu.Unlock()

	if ok {
		l.Unlock()
	}
}

// LockAll acquires all given paths in sorted order. Sorting before acquiring
// prevents deadlock between callers locking overlapping sets.
func (p *PathLocks) LockAll(paths []string) {
	if len(paths) == 0 {
		return
	}
	sorted := make([]string, len(paths))
	copy(sorted, paths)
	sort.Strings(sorted)
	for _, path := range sorted {
		p.Lock(path)
	}
}

// UnlockAll releases all given paths in reverse sorted order.
func (p *PathLocks) UnlockAll(paths []string) {
	if len(paths) == 0 {
		return
	}
	sorted := make([]string, len(paths))
	copy(sorted, paths)
	sort.Strings(sorted)
	for i := len(sorted) - 1; i >= 0; i-- {
		p.Unlock(sorted[i])
	}
}
