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

// option provide an interface to do work on a Desc while it is being created.
type option[B any, K any] interface {
	apply(d *Desc[B, K])
}

// Allocator specifies an interface for allocating, resizing and releasing
// the bucket arrays used by a Table. The default allocator utilizes Go's
// builtin make() and copy() and allows the GC to reclaim memory.
//
// Realloc follows the conventions of C's realloc():
//
//   - len(old) == 0 requests a fresh array of n buckets.
//   - n == 0 releases old. The return value is ignored.
//   - Otherwise the returned slice has length n and its first min(len(old), n)
//     buckets hold the contents of old. The returned slice may alias old.
//
// Returning nil reports an allocation failure, which the table handles
// without losing or corrupting its contents. Buckets beyond the copied prefix
// need not be initialized: the table clears them itself.
//
// Realloc may run arbitrary client code but must not call back into the
// table that is being resized.
type Allocator[B any] interface {
	Realloc(old []B, n int) []B
}

// AllocatorFunc adapts an ordinary function to the Allocator interface.
type AllocatorFunc[B any] func(old []B, n int) []B

// Realloc implements Allocator.
func (f AllocatorFunc[B]) Realloc(old []B, n int) []B {
	return f(old, n)
}

type defaultAllocator[B any] struct{}

func (defaultAllocator[B]) Realloc(old []B, n int) []B {
	if n == 0 {
		return nil
	}
	if n <= cap(old) {
		return old[:n]
	}
	v := make([]B, n)
	copy(v, old)
	return v
}

type allocatorOption[B any, K any] struct {
	allocator Allocator[B]
}

func (op allocatorOption[B, K]) apply(d *Desc[B, K]) {
	d.allocator = op.allocator
}

// WithAllocator is an option for specify the Allocator used by every table
// sharing a Desc[B,K].
func WithAllocator[B any, K any](allocator Allocator[B]) option[B, K] {
	return allocatorOption[B, K]{allocator}
}

type bucketSizeOption[B any, K any] struct {
	size uintptr
}

func (op bucketSizeOption[B, K]) apply(d *Desc[B, K]) {
	d.bucketSize = op.size
}

// WithBucketSize overrides the number of bytes accounted per bucket. By
// default this is unsafe.Sizeof(B). The bucket size only affects capacity
// overflow checks and the byte counts reported by CanInsert; it can be used
// to account for out-of-line memory owned by each bucket.
func WithBucketSize[B any, K any](size uintptr) option[B, K] {
	return bucketSizeOption[B, K]{size}
}

type thresholdsOption[B any, K any] struct {
	grow, shrink uint8
}

func (op thresholdsOption[B, K]) apply(d *Desc[B, K]) {
	d.growThreshold = op.grow
	d.shrinkThreshold = op.shrink
}

// WithThresholds sets the load factor percentages at which a table grows on
// insertion and shrinks on removal. A shrink threshold of 0 disables
// shrinking. The grow threshold should be somewhat more than twice the
// shrink threshold to avoid oscillation. The defaults are 70 and 0.
//
// A grow threshold of 100 lets a table fill completely. Load percentages are
// rounded down, so once a table has more than 100 buckets, inserting into a
// full table never grows it: Insert fails and CanInsert reports
// InsertSizeOverflow. Use Reserve or GrowBy to grow such a table.
func WithThresholds[B any, K any](grow, shrink uint8) option[B, K] {
	return thresholdsOption[B, K]{grow: grow, shrink: shrink}
}
