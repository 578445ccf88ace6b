// Package scanner filters decoded barcode values before they reach the backend.
package scanner

import (
	"sort"
	"sync"

	"github.com/mrlokans/shelfscan/internal/isbn"
)

// Deduplicator admits each checksum-valid ISBN at most once per scanning
// session. It is safe for concurrent use; Admit is an atomic check-then-set.
type Deduplicator struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewDeduplicator creates an empty Deduplicator.
func NewDeduplicator() *Deduplicator {
	return &Deduplicator{seen: make(map[string]struct{})}
}

// Admit returns true the first time a valid ISBN-13 is seen and records it.
// Invalid input and repeats return false and leave the set unchanged.
func (d *Deduplicator) Admit(raw string) bool {
	if !isbn.Valid13(raw) {
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[raw]; ok {
		return false
	}
	d.seen[raw] = struct{}{}
	return true
}

// Seed marks ISBNs as already admitted, e.g. books already in the collection.
// Invalid values are ignored.
func (d *Deduplicator) Seed(isbns ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, v := range isbns {
		if isbn.Valid13(v) {
			d.seen[v] = struct{}{}
		}
	}
}

// Seen reports whether raw has already been admitted.
func (d *Deduplicator) Seen(raw string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.seen[raw]
	return ok
}

// Len returns the number of admitted ISBNs.
func (d *Deduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

// Snapshot returns the admitted ISBNs in sorted order.
func (d *Deduplicator) Snapshot() []string {
	d.mu.Lock()
	out := make([]string, 0, len(d.seen))
	for v := range d.seen {
		out = append(out, v)
	}
	d.mu.Unlock()

	sort.Strings(out)
	return out
}

// Reset forgets every admitted ISBN. Called when the scanning surface is torn down.
func (d *Deduplicator) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen = make(map[string]struct{})
}
