package sandbox

import (
	"sync"
	"testing"
	"time"
)

// TestPathLocksSerializeSamePath verifies two writers to one path serialize.
func TestPathLocksSerializeSamePath(t *testing.T) {
	locks := NewPathLocks()

	var mu sync.Mutex
	var order []int

	var wg sync.WaitGroup
	wg.Add(2)
	locks.Lock("a.txt")
	go func() {
		defer wg.Done()
		locks.Lock("a.txt")
		defer locks.Unlock("a.txt")
		mu.Lock()
		order = append(order, 2)
		mu.Unlock()
	}()
	go func() {
		defer wg.Done()
		time.Sleep(50 * time.Millisecond)
		mu.Lock()
		order = append(order, 1)
		mu.Unlock()
		locks.Unlock("a.txt")
	}()
	wg.Wait()

	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Errorf("second writer ran before first released the lock: %v", order)
	}
}

// TestPathLocksDisjointPathsIndependent verifies different paths don't block
// each other.
func TestPathLocksDisjointPathsIndependent(t *testing.T) {
	locks := NewPathLocks()
	locks.Lock("a.txt")
	defer locks.Unlock("a.txt")

	done := make(chan struct{})
	go func() {
		locks.Lock("b.txt")
		locks.Unlock("b.txt")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("lock on b.txt blocked by held lock on a.txt")
	}
}

// TestLockAllSortedNoDeadlock verifies overlapping LockAll sets in opposite
// declaration order don't deadlock.
func TestLockAllSortedNoDeadlock(t *testing.T) {
	locks := NewPathLocks()

	done := make(chan struct{})
	go func() {
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				paths := []string{"x.go", "y.go", "z.go"}
				locks.LockAll(paths)
				locks.UnlockAll(paths)
			}()
			go func() {
				defer wg.Done()
				paths := []string{"z.go", "x.go"}
				locks.LockAll(paths)
				locks.UnlockAll(paths)
			}()
		}
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("deadlock in LockAll with overlapping path sets")
	}
}
