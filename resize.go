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
	"math"
	"math/bits"

	log "github.com/sirupsen/logrus"
)

// InsertKind classifies a prospective insertion. See Table.CanInsert.
type InsertKind int

const (
	// InsertNoop means there is nothing to insert (the item is nil).
	InsertNoop InsertKind = iota
	// InsertSimple means the insertion does not resize the table.
	InsertSimple
	// InsertWantsResize means the insertion grows the table, but would still
	// succeed if the growth failed to allocate.
	InsertWantsResize
	// InsertNeedsResize means the table is full: the insertion fails if the
	// growth fails to allocate.
	InsertNeedsResize
	// InsertSizeOverflow means the table is full and cannot grow any further.
	InsertSizeOverflow
)

func (k InsertKind) String() string {
	switch k {
	case InsertNoop:
		return "noop"
	case InsertSimple:
		return "simple"
	case InsertWantsResize:
		return "wants-resize"
	case InsertNeedsResize:
		return "needs-resize"
	case InsertSizeOverflow:
		return "size-overflow"
	default:
		return fmt.Sprintf("InsertKind(%d)", int(k))
	}
}

// InsertCheck is the result of Table.CanInsert. ResizeBytes is the size of
// the bucket array the insertion would allocate, and is only set for
// InsertWantsResize and InsertNeedsResize.
type InsertCheck struct {
	Kind        InsertKind
	ResizeBytes uintptr
}

// loadPercent returns 100*count/capacity, saturating instead of overflowing.
// A table without capacity is considered fully loaded.
func loadPercent(count, capacity int) uint64 {
	if capacity == 0 {
		return 100
	}
	hi, lo := bits.Mul64(100, uint64(count))
	if hi >= uint64(capacity) {
		return math.MaxUint64
	}
	q, _ := bits.Div64(hi, lo, uint64(capacity))
	return q
}

// growFactor returns the smallest log2 factor f such that growing by 1<<f
// brings load back to at most threshold. The caller guarantees
// load >= threshold.
func growFactor(load uint64, threshold uint8) uint {
	t := uint64(threshold)
	f := uint(bits.Len64(load/t) - 1)
	if load > t<<f {
		f++
	}
	return f
}

// grownCapacity returns capacity<<log2Factor, clamped to the largest
// representable capacity. A result equal to capacity means no growth is
// possible.
func (d *Desc[B, K]) grownCapacity(capacity int, log2Factor uint) int {
	if capacity == 0 || capacity >= d.maxCapacity {
		return capacity
	}
	headroom := uint(bits.Len(uint(d.maxCapacity)) - bits.Len(uint(capacity)))
	if log2Factor > headroom {
		log2Factor = headroom
	}
	return capacity << log2Factor
}

// wantsGrowth reports whether holding count items would push the load above
// the grow threshold.
func (d *Desc[B, K]) wantsGrowth(load uint64) bool {
	return load > uint64(d.growThreshold) || load >= 100
}

// Reserve grows the table so that it can hold count items without any
// further insertion triggering a resize. It returns false if the required
// growth could not be performed, in which case the table is unchanged.
func (t *Table[B, K]) Reserve(d *Desc[B, K], count int) bool {
	return t.reserve(d, count)
}

func (t *Table[B, K]) reserve(d *Desc[B, K], count int) bool {
	if !d.initialized() {
		return false
	}
	if count < 0 {
		count = 0
	}
	load := loadPercent(count, len(t.buckets))
	if !d.wantsGrowth(load) {
		return true
	}
	f := growFactor(load, d.growThreshold)
	if debug {
		log.Debugf("reserve(%d): load=%d%% threshold=%d%% growing by 1<<%d",
			count, load, d.growThreshold, f)
	}
	return t.GrowBy(d, f)
}

// CanInsert classifies what inserting item would do to the table's capacity,
// without modifying the table. It does not check whether the key is already
// present. CanInsert allows a caller to validate a batch of insertions, or to
// pre-allocate, before performing them.
func (t *Table[B, K]) CanInsert(d *Desc[B, K], item *B) InsertCheck {
	if item == nil {
		return InsertCheck{Kind: InsertNoop}
	}
	if !d.initialized() {
		return InsertCheck{Kind: InsertSizeOverflow}
	}
	capacity := len(t.buckets)
	load := loadPercent(t.used+1, capacity)
	if !d.wantsGrowth(load) {
		return InsertCheck{Kind: InsertSimple}
	}

	full := t.used >= capacity
	newCapacity := d.grownCapacity(capacity, growFactor(load, d.growThreshold))
	if newCapacity <= capacity {
		if full {
			return InsertCheck{Kind: InsertSizeOverflow}
		}
		return InsertCheck{Kind: InsertSimple}
	}
	res := InsertCheck{
		Kind:        InsertWantsResize,
		ResizeBytes: uintptr(newCapacity) * d.bucketSize,
	}
	if full {
		res.Kind = InsertNeedsResize
	}
	return res
}

// GrowBy grows the capacity of the table by a factor of 1<<log2Factor. The
// factor is reduced if the grown capacity would not be representable. It
// returns false, leaving the table untouched, if no growth is possible or the
// Allocator fails.
//
// The bucket array is grown in place: after the allocator has extended it and
// the new buckets have been cleared, every occupied bucket is reinserted in
// ascending index order. If reinsertion finds an empty bucket earlier in the
// item's new probe sequence the item moves there and its old bucket is
// cleared; if it finds the item itself, the item is already reachable and
// stays. No item is skipped, and an item moved to a later bucket is simply
// found in place when the scan reaches it again. Once an empty
// bucket is seen at or beyond the old capacity, every bucket after it is
// either empty or holds an item that was just moved there, so the scan stops.
func (t *Table[B, K]) GrowBy(d *Desc[B, K], log2Factor uint) bool {
	oldCapacity := len(t.buckets)
	newCapacity := d.grownCapacity(oldCapacity, log2Factor)
	if newCapacity <= oldCapacity {
		if debug {
			log.Debugf("grow: capacity=%d cannot grow by 1<<%d", oldCapacity, log2Factor)
		}
		return false
	}

	buckets := d.allocator.Realloc(t.buckets, newCapacity)
	if buckets == nil {
		if debug {
			log.Debugf("grow: capacity=%d->%d allocation failed", oldCapacity, newCapacity)
		}
		return false
	}
	buckets = buckets[:newCapacity]
	for i := oldCapacity; i < newCapacity; i++ {
		d.hooks.Clear(&buckets[i])
	}
	t.buckets = buckets

	if debug {
		log.Debugf("grow: capacity=%d->%d used=%d", oldCapacity, newCapacity, t.used)
	}

	for i := 0; i < newCapacity; i++ {
		b := &buckets[i]
		if d.hooks.IsEmpty(b) {
			if i >= oldCapacity {
				break
			}
			continue
		}
		if t.place(d, b) != nil {
			// The item was moved.
			d.hooks.Clear(b)
		}
	}

	t.checkInvariants(d)
	return true
}

// ShrinkBy shrinks the capacity of the table by a factor of 1<<log2Factor.
// The factor is reduced so that the capacity stays at least 1 and the table
// can still hold all of its items. A fresh bucket array is allocated and
// every item is reinserted into it. It returns false, leaving the table
// exactly as it was, if the allocation or any reinsertion fails.
func (t *Table[B, K]) ShrinkBy(d *Desc[B, K], log2Factor uint) bool {
	oldCapacity := len(t.buckets)
	if oldCapacity == 0 {
		return false
	}
	if limit := uint(bits.Len(uint(oldCapacity)) - 1); log2Factor > limit {
		log2Factor = limit
	}
	// Don't shrink so far that the contents no longer fit.
	for t.used > oldCapacity>>log2Factor {
		if log2Factor == 0 {
			return false
		}
		log2Factor--
	}
	newCapacity := oldCapacity >> log2Factor
	if newCapacity == oldCapacity {
		return true
	}

	buckets := d.allocator.Realloc(nil, newCapacity)
	if buckets == nil {
		if debug {
			log.Debugf("shrink: capacity=%d->%d allocation failed", oldCapacity, newCapacity)
		}
		return false
	}
	buckets = buckets[:newCapacity]
	for i := range buckets {
		d.hooks.Clear(&buckets[i])
	}

	if debug {
		log.Debugf("shrink: capacity=%d->%d used=%d", oldCapacity, newCapacity, t.used)
	}

	oldBuckets := t.buckets
	t.buckets = buckets
	for i := range oldBuckets {
		b := &oldBuckets[i]
		if d.hooks.IsEmpty(b) {
			continue
		}
		if t.place(d, b) == nil {
			// Failed to move the item across; give up.
			t.buckets = oldBuckets
			d.allocator.Realloc(buckets, 0)
			t.checkInvariants(d)
			return false
		}
	}
	d.allocator.Realloc(oldBuckets, 0)

	t.checkInvariants(d)
	return true
}

// maybeShrink shrinks the table if its load has dropped below the shrink
// threshold.
func (t *Table[B, K]) maybeShrink(d *Desc[B, K]) {
	if d.shrinkThreshold == 0 || len(t.buckets) == 0 {
		return
	}
	load := loadPercent(t.used, len(t.buckets))
	if load > 0 && load < uint64(d.shrinkThreshold) {
		f := uint(bits.Len64(uint64(d.shrinkThreshold)/load) - 1)
		if debug {
			log.Debugf("shrink: load=%d%% threshold=%d%% shrinking by 1<<%d",
				load, d.shrinkThreshold, f)
		}
		t.ShrinkBy(d, f)
	}
}

// Resize changes the capacity of the table to capacity, rounded down to a
// power-of-two multiple or fraction of the current capacity. It returns
// false if capacity is smaller than the number of items, the table has no
// capacity, or the resize failed.
func (t *Table[B, K]) Resize(d *Desc[B, K], capacity int) bool {
	cur := len(t.buckets)
	switch {
	case capacity <= 0 || cur == 0 || capacity < t.used:
		return false
	case capacity < cur:
		return t.ShrinkBy(d, uint(bits.Len(uint(cur/capacity))-1))
	case capacity > cur:
		return t.GrowBy(d, uint(bits.Len(uint(capacity/cur))-1))
	default:
		return true
	}
}
