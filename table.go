// Copyright 2024 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package openaddr

import (
	"fmt"
	"math/bits"
	"strings"
	"unsafe"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Table is the per-instance state of a linear probing hash table: the bucket
// array and the number of occupied buckets. All of the behavior lives in a
// Desc which is passed to every method and must be the same Desc for the
// whole lifetime of the table. The capacity is len(buckets) and is always 0
// or a power of two.
//
// The zero value is a table with no capacity which refuses insertions until
// Init is called. A Table is NOT goroutine-safe.
type Table[B any, K any] struct {
	buckets []B
	used    int
}

// Init initializes t with the specified power-of-two capacity, every bucket
// cleared to empty. Any buckets previously held by t are NOT released; call
// Destroy first when reinitializing a table.
func (t *Table[B, K]) Init(d *Desc[B, K], capacity int) error {
	if capacity <= 0 || bits.OnesCount(uint(capacity)) != 1 {
		return errors.Wrapf(ErrInvalidCapacity, "capacity %d", capacity)
	}
	if capacity > d.maxCapacity {
		return errors.Wrapf(ErrCapacityOverflow, "capacity %d with %d byte buckets", capacity, d.bucketSize)
	}
	buckets := d.allocator.Realloc(nil, capacity)
	if buckets == nil {
		return errors.Wrapf(ErrAllocFailed, "capacity %d", capacity)
	}
	buckets = buckets[:capacity]
	for i := range buckets {
		d.hooks.Clear(&buckets[i])
	}
	t.buckets = buckets
	t.used = 0
	t.checkInvariants(d)
	return nil
}

// Destroy releases the bucket array back to the Allocator. The table is left
// with zero capacity. Destroy is idempotent.
func (t *Table[B, K]) Destroy(d *Desc[B, K]) {
	if t.buckets != nil {
		d.allocator.Realloc(t.buckets, 0)
	}
	t.buckets = nil
	t.used = 0
}

// Len returns the number of occupied buckets.
func (t *Table[B, K]) Len() int {
	return t.used
}

// Cap returns the number of buckets.
func (t *Table[B, K]) Cap() int {
	return len(t.buckets)
}

// BucketFor returns the ideal bucket index for key, i.e. the first index of
// its probe sequence. It returns 0 for a table with zero capacity.
func (t *Table[B, K]) BucketFor(d *Desc[B, K], key K) int {
	if len(t.buckets) == 0 {
		return 0
	}
	return t.bucketFor(d, key)
}

func (t *Table[B, K]) bucketFor(d *Desc[B, K], key K) int {
	return int(d.hooks.Hash(key) & uint64(len(t.buckets)-1))
}

// findOrEmpty locates the bucket which either holds key or into which an item
// with that key should be inserted. found reports which of the two it is. A
// nil bucket is returned if the table is full and does not contain key, or if
// the table has no capacity.
func (t *Table[B, K]) findOrEmpty(d *Desc[B, K], key K) (b *B, found bool) {
	capacity := len(t.buckets)
	if capacity == 0 {
		return nil, false
	}
	mask := capacity - 1
	start := t.bucketFor(d, key)
	if debug {
		log.Debugf("find(%v): start=%d capacity=%d", key, start, capacity)
	}

	for i, n := start, 0; n < capacity; i, n = (i+1)&mask, n+1 {
		b = &t.buckets[i]
		if d.hooks.IsEmpty(b) {
			if debug {
				log.Debugf("find(not-found): index=%d", i)
			}
			return b, false
		}
		if d.hooks.Equal(d.hooks.Key(b), key) {
			if debug {
				log.Debugf("find(found): index=%d", i)
			}
			return b, true
		}
	}
	if debug {
		log.Debugf("find(exhausted): capacity=%d", capacity)
	}
	return nil, false
}

// place copies item into the bucket its key probes to, without any
// bookkeeping. It returns nil if the key is already present or the table is
// full.
func (t *Table[B, K]) place(d *Desc[B, K], item *B) *B {
	b, found := t.findOrEmpty(d, d.hooks.Key(item))
	if b == nil || found {
		return nil
	}
	*b = *item
	return b
}

// Find returns the bucket holding key, or nil if key is not present. The
// returned pointer remains valid until the table is resized or the bucket is
// removed.
func (t *Table[B, K]) Find(d *Desc[B, K], key K) *B {
	b, found := t.findOrEmpty(d, key)
	if !found {
		return nil
	}
	return b
}

// Get returns a copy of the item stored under key, with ok=false if the key
// is not present.
func (t *Table[B, K]) Get(d *Desc[B, K], key K) (item B, ok bool) {
	if b := t.Find(d, key); b != nil {
		return *b, true
	}
	return item, false
}

// Insert copies item into the table and returns the bucket it was stored in.
// It returns nil if item is nil, if an item with the same key is already
// present (the table is not modified), if the table is full and could not
// grow, or if d was never successfully initialized. The caller may reuse the memory behind item as soon as Insert
// returns.
func (t *Table[B, K]) Insert(d *Desc[B, K], item *B) *B {
	if item == nil || !d.initialized() {
		return nil
	}
	t.reserve(d, t.used+1)

	b := t.place(d, item)
	if b == nil {
		if debug {
			log.Debugf("insert(%v): rejected used=%d capacity=%d", d.hooks.Key(item), t.used, len(t.buckets))
		}
		return nil
	}
	t.used++
	if debug {
		log.Debugf("insert(%v): used=%d capacity=%d", d.hooks.Key(item), t.used, len(t.buckets))
	}
	t.checkInvariants(d)
	return b
}

// InsertOrUpdate copies item into the table, overwriting the bucket holding
// an item with the same key if there is one. It returns the bucket item was
// stored in, or nil if item is nil or the table is full and could not grow.
func (t *Table[B, K]) InsertOrUpdate(d *Desc[B, K], item *B) *B {
	if item == nil || !d.initialized() {
		return nil
	}
	t.reserve(d, t.used+1)

	b, found := t.findOrEmpty(d, d.hooks.Key(item))
	if b == nil {
		return nil
	}
	*b = *item
	if !found {
		t.used++
	}
	if debug {
		log.Debugf("insert-or-update(%v): updated=%t used=%d", d.hooks.Key(item), found, t.used)
	}
	t.checkInvariants(d)
	return b
}

// between reports whether idx lies in the cyclic interval [start, end) of a
// table with the given mask.
func between(idx, start, end, mask int) bool {
	return (end-idx)&mask <= (end-start)&mask
}

// Remove removes the item held by bucket b, which must have been returned by
// Find, Insert, InsertOrUpdate, First or Next and not been invalidated since.
// The removed item is returned. Remove is a no-op returning ok=false if b is
// nil, empty, or does not point into the table's buckets.
//
// Other buckets may be relocated by Remove, either to keep them reachable or
// because the table shrank.
func (t *Table[B, K]) Remove(d *Desc[B, K], b *B) (item B, ok bool) {
	i, ok := t.indexOf(d, b)
	if !ok || d.hooks.IsEmpty(b) {
		return item, false
	}
	item = *b
	d.hooks.Clear(b)
	t.used--
	if debug {
		log.Debugf("remove(%v): index=%d used=%d", d.hooks.Key(&item), i, t.used)
	}

	// The freed bucket may have been the link that made later buckets in the
	// same run reachable. Walk the run until the next empty bucket, moving
	// every item that can no longer be reached from its ideal bucket into the
	// hole. Items past the end of the run were never reachable through the
	// hole.
	mask := len(t.buckets) - 1
	hole := i
	for j := (i + 1) & mask; !d.hooks.IsEmpty(&t.buckets[j]); j = (j + 1) & mask {
		cur := &t.buckets[j]
		ideal := t.bucketFor(d, d.hooks.Key(cur))
		if between(hole, ideal, j, mask) {
			if debug {
				log.Debugf("remove(shift): %d -> %d ideal=%d", j, hole, ideal)
			}
			t.buckets[hole] = *cur
			d.hooks.Clear(cur)
			hole = j
		}
	}

	t.maybeShrink(d)
	t.checkInvariants(d)
	return item, true
}

// Delete removes the item stored under key and returns it, with ok=false if
// the key is not present.
func (t *Table[B, K]) Delete(d *Desc[B, K], key K) (item B, ok bool) {
	b := t.Find(d, key)
	if b == nil {
		return item, false
	}
	return t.Remove(d, b)
}

// Clear empties every bucket and resets the count to zero without
// reallocating.
func (t *Table[B, K]) Clear(d *Desc[B, K]) {
	for i := range t.buckets {
		d.hooks.Clear(&t.buckets[i])
	}
	t.used = 0
	t.checkInvariants(d)
}

// First returns the occupied bucket with the lowest index, or nil if the
// table is empty.
func (t *Table[B, K]) First(d *Desc[B, K]) *B {
	return t.scan(d, 0)
}

// Next returns the next occupied bucket after cur in index order, or nil if
// there is none or cur does not point into the table's buckets. Iteration
// order is unspecified beyond ascending bucket index, and the table must not
// be mutated between calls to First and Next.
func (t *Table[B, K]) Next(d *Desc[B, K], cur *B) *B {
	i, ok := t.indexOf(d, cur)
	if !ok {
		return nil
	}
	return t.scan(d, i+1)
}

func (t *Table[B, K]) scan(d *Desc[B, K], start int) *B {
	for i := start; i < len(t.buckets); i++ {
		if b := &t.buckets[i]; !d.hooks.IsEmpty(b) {
			return b
		}
	}
	return nil
}

// All calls yield sequentially for each occupied bucket. If yield returns
// false, iteration stops. The table must not be mutated during iteration.
func (t *Table[B, K]) All(d *Desc[B, K], yield func(b *B) bool) {
	for b := t.First(d); b != nil; b = t.Next(d, b) {
		if !yield(b) {
			return
		}
	}
}

// Verify walks every occupied bucket and checks that looking it up by its
// own key finds that same bucket. It is O(capacity) and intended for tests.
func (t *Table[B, K]) Verify(d *Desc[B, K]) bool {
	for i := range t.buckets {
		b := &t.buckets[i]
		if d.hooks.IsEmpty(b) {
			continue
		}
		if t.Find(d, d.hooks.Key(b)) != b {
			return false
		}
	}
	return true
}

// indexOf maps a bucket pointer back to its index, reporting false if b does
// not point at the start of one of the table's buckets.
func (t *Table[B, K]) indexOf(d *Desc[B, K], b *B) (int, bool) {
	if b == nil || len(t.buckets) == 0 {
		return 0, false
	}
	base := uintptr(unsafe.Pointer(unsafe.SliceData(t.buckets)))
	p := uintptr(unsafe.Pointer(b))
	if p < base {
		return 0, false
	}
	off := p - base
	if off%d.elemSize != 0 {
		return 0, false
	}
	i := off / d.elemSize
	if i >= uintptr(len(t.buckets)) {
		return 0, false
	}
	return int(i), true
}

func (t *Table[B, K]) checkInvariants(d *Desc[B, K]) {
	if invariants {
		capacity := len(t.buckets)
		if capacity != 0 && bits.OnesCount(uint(capacity)) != 1 {
			panic(fmt.Sprintf("invariant failed: capacity %d is not a power of two\n%s",
				capacity, t.debugString(d)))
		}
		if t.used > capacity {
			panic(fmt.Sprintf("invariant failed: used %d exceeds capacity %d\n%s",
				t.used, capacity, t.debugString(d)))
		}

		// For every occupied bucket, verify we can retrieve it using its key.
		var used int
		for i := range t.buckets {
			b := &t.buckets[i]
			if d.hooks.IsEmpty(b) {
				continue
			}
			if t.Find(d, d.hooks.Key(b)) != b {
				panic(fmt.Sprintf("invariant failed: bucket(%d): %v not found [ideal=%d]\n%s",
					i, d.hooks.Key(b), t.bucketFor(d, d.hooks.Key(b)), t.debugString(d)))
			}
			used++
		}
		if used != t.used {
			panic(fmt.Sprintf("invariant failed: found %d occupied buckets, but used count is %d\n%s",
				used, t.used, t.debugString(d)))
		}
	}
}

func (t *Table[B, K]) debugString(d *Desc[B, K]) string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "capacity=%d  used=%d\n", len(t.buckets), t.used)
	for i := range t.buckets {
		b := &t.buckets[i]
		if d.hooks.IsEmpty(b) {
			fmt.Fprintf(&buf, "  %4d: empty\n", i)
			continue
		}
		key := d.hooks.Key(b)
		fmt.Fprintf(&buf, "  %4d: %v [ideal=%d]\n", i, key, t.bucketFor(d, key))
	}
	return buf.String()
}
