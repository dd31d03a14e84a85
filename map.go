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

// package openaddr is a Go implementation of an intrusive open-addressing
// hash table with linear probing. See also
// https://en.wikipedia.org/wiki/Linear_probing.
//
// # Buckets
//
// The table is a contiguous array of client-defined buckets of type B. Each
// bucket is either empty or holds exactly one item, and the item carries its
// own key (it is intrusive). The table never looks inside a bucket itself:
// hashing, key extraction, key comparison and the empty state are all
// supplied through Hooks. This lets a client choose its own empty sentinel
// (a zero key, a flag, a nil pointer) and keeps the per-bucket overhead at
// zero bytes. Buckets are relocated with plain assignment, so B must be safe
// to copy.
//
// # Probing
//
// The capacity is always a power of 2, and hash(key)&(capacity-1) is the
// ideal bucket of key. Lookup walks forward from the ideal bucket, wrapping
// at the end of the array, until it finds either the key or an empty bucket.
// The table maintains the invariant that every item is reachable this way:
// no empty bucket lies between an item's ideal bucket and the bucket it
// occupies.
//
// # Deletion
//
// Deletion does not use tombstones. Removing an item leaves a hole that can
// break the probe sequence of items stored after it, so removal walks forward
// through the run of occupied buckets that follows the hole, and moves back
// every item whose ideal bucket lies at or before the hole ("backward shift
// deletion"). The moved item's old bucket becomes the new hole. The walk ends
// at the first empty bucket.
//
// # Resizing
//
// Insertion grows the table when the load factor would exceed the grow
// threshold (70% by default) by the smallest power of 2 that brings the load
// back under the threshold. Growth reallocates the bucket array in place and
// then settles each item into the larger array. Removal may shrink the table
// when the load drops below the shrink threshold (disabled by default). All
// capacity arithmetic is overflow checked: growth is clamped to the largest
// representable capacity, and once no growth is possible a table operates up
// to 100% load.
//
// # Tables, descriptors and maps
//
// The behavior of a table lives in an immutable Desc that can be shared by
// any number of tables. A Table holds only the bucket array and the item
// count, and every Table method takes the Desc. Map bundles a Desc and a
// Table for the common case of a single table.
//
// Neither Table nor Map is goroutine-safe. A Desc is safe for concurrent use
// by independent tables.
package openaddr

// Map is a linear probing hash table bundled with its own descriptor. It is
// a thin wrapper around Table for callers that do not need to share a Desc
// between tables.
//
// A Map is NOT goroutine-safe.
type Map[B any, K any] struct {
	desc  Desc[B, K]
	table Table[B, K]
}

// New constructs a new Map with the specified power-of-two initial capacity.
func New[B any, K any](hooks Hooks[B, K], initialCapacity int, options ...option[B, K]) (*Map[B, K], error) {
	m := &Map[B, K]{}
	if err := m.Init(hooks, initialCapacity, options...); err != nil {
		return nil, err
	}
	return m, nil
}

// Init initializes a Map. Any buckets previously held by m are released, even
// if the options are rejected, in which case m refuses inserts until it is
// initialized successfully.
func (m *Map[B, K]) Init(hooks Hooks[B, K], initialCapacity int, options ...option[B, K]) error {
	if m.table.buckets != nil {
		m.Close()
	}
	if err := m.desc.init(hooks, options...); err != nil {
		return err
	}
	return m.table.Init(&m.desc, initialCapacity)
}

// Close releases the bucket array back to the configured allocator. It is
// invalid to insert into a Map after it has been closed, though Close itself
// is idempotent.
func (m *Map[B, K]) Close() {
	m.table.Destroy(&m.desc)
}

// Desc returns the descriptor of the map.
func (m *Map[B, K]) Desc() *Desc[B, K] {
	return &m.desc
}

// Len returns the number of items in the map.
func (m *Map[B, K]) Len() int {
	return m.table.Len()
}

// Cap returns the number of buckets in the map.
func (m *Map[B, K]) Cap() int {
	return m.table.Cap()
}

// Insert copies item into the map. See Table.Insert.
func (m *Map[B, K]) Insert(item *B) *B {
	return m.table.Insert(&m.desc, item)
}

// InsertOrUpdate copies item into the map, overwriting an item with the same
// key. See Table.InsertOrUpdate.
func (m *Map[B, K]) InsertOrUpdate(item *B) *B {
	return m.table.InsertOrUpdate(&m.desc, item)
}

// CanInsert classifies what inserting item would do. See Table.CanInsert.
func (m *Map[B, K]) CanInsert(item *B) InsertCheck {
	return m.table.CanInsert(&m.desc, item)
}

// Find returns the bucket holding key, or nil.
func (m *Map[B, K]) Find(key K) *B {
	return m.table.Find(&m.desc, key)
}

// Get returns a copy of the item stored under key.
func (m *Map[B, K]) Get(key K) (item B, ok bool) {
	return m.table.Get(&m.desc, key)
}

// BucketFor returns the ideal bucket index of key.
func (m *Map[B, K]) BucketFor(key K) int {
	return m.table.BucketFor(&m.desc, key)
}

// Remove removes the item held by bucket b. See Table.Remove.
func (m *Map[B, K]) Remove(b *B) (item B, ok bool) {
	return m.table.Remove(&m.desc, b)
}

// Delete removes the item stored under key. It is a noop to delete a
// non-existent key.
func (m *Map[B, K]) Delete(key K) (item B, ok bool) {
	return m.table.Delete(&m.desc, key)
}

// GrowBy grows the capacity by a factor of 1<<log2Factor.
func (m *Map[B, K]) GrowBy(log2Factor uint) bool {
	return m.table.GrowBy(&m.desc, log2Factor)
}

// ShrinkBy shrinks the capacity by a factor of 1<<log2Factor.
func (m *Map[B, K]) ShrinkBy(log2Factor uint) bool {
	return m.table.ShrinkBy(&m.desc, log2Factor)
}

// Reserve grows the map so that it can hold count items without resizing.
func (m *Map[B, K]) Reserve(count int) bool {
	return m.table.Reserve(&m.desc, count)
}

// Resize changes the capacity of the map. See Table.Resize.
func (m *Map[B, K]) Resize(capacity int) bool {
	return m.table.Resize(&m.desc, capacity)
}

// Clear removes all items without releasing any memory.
func (m *Map[B, K]) Clear() {
	m.table.Clear(&m.desc)
}

// First returns the first occupied bucket, or nil.
func (m *Map[B, K]) First() *B {
	return m.table.First(&m.desc)
}

// Next returns the occupied bucket following cur, or nil.
func (m *Map[B, K]) Next(cur *B) *B {
	return m.table.Next(&m.desc, cur)
}

// All calls yield sequentially for each occupied bucket. If yield returns
// false, iteration stops.
func (m *Map[B, K]) All(yield func(b *B) bool) {
	m.table.All(&m.desc, yield)
}

// Verify checks that every item is reachable by its key.
func (m *Map[B, K]) Verify() bool {
	return m.table.Verify(&m.desc)
}
