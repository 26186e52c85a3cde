// Package handle implements the open-handle table: the mapping from a
// kernel-visible file handle number to the provider-owned OpenHandler
// session backing it. A handle's lifetime is independent of the inode
// it was opened against — unlink and rename never touch it, and it is
// only ever released by an explicit Release call.
package handle

import (
	"sync"

	"github.com/cloudxtreme/wlfs/internal/ops"
)

// Table assigns monotonically increasing handle numbers starting at 1;
// 0 is never issued, so callers can use it as a "no handle" sentinel.
type Table struct {
	mu      sync.Mutex
	next    uint64
	entries map[uint64]ops.OpenHandler
}

// New returns an empty handle table.
func New() *Table {
	return &Table{next: 1, entries: make(map[uint64]ops.OpenHandler)}
}

// Open registers h and returns the handle number the kernel bridge
// should hand back to the caller.
func (t *Table) Open(h ops.OpenHandler) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	fh := t.next
	t.next++
	t.entries[fh] = h
	return fh
}

// Get returns the OpenHandler registered under fh.
func (t *Table) Get(fh uint64) (ops.OpenHandler, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	h, ok := t.entries[fh]
	return h, ok
}

// Release drops fh from the table and returns the OpenHandler that was
// registered under it, so the caller can invoke its Release method
// outside the table's lock.
func (t *Table) Release(fh uint64) (ops.OpenHandler, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	h, ok := t.entries[fh]
	if ok {
		delete(t.entries, fh)
	}
	return h, ok
}

// Len reports the number of open handles, for diagnostics.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
