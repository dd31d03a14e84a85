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
	"math"
	"math/bits"
	"unsafe"

	"github.com/pkg/errors"
)

const (
	defaultGrowThreshold   = 70
	defaultShrinkThreshold = 0

	// maxTableBytes bounds capacity*bucketSize. Growth is clamped so that a
	// table never requests a bucket array larger than this.
	maxTableBytes = math.MaxInt
)

var (
	// ErrInvalidCapacity is returned when a table is initialized with a
	// capacity that is not a power of two.
	ErrInvalidCapacity = errors.New("capacity must be a power of two")
	// ErrCapacityOverflow is returned when capacity*bucketSize is not
	// representable.
	ErrCapacityOverflow = errors.New("capacity overflows the addressable range")
	// ErrAllocFailed is returned when the Allocator fails to provide the
	// initial bucket array.
	ErrAllocFailed = errors.New("bucket allocation failed")
	// ErrInvalidThresholds is returned for load thresholds outside of
	// 0 <= shrink < grow <= 100.
	ErrInvalidThresholds = errors.New("invalid load thresholds")
	// ErrInvalidBucket is returned for zero-sized bucket types or bucket
	// sizes.
	ErrInvalidBucket = errors.New("invalid bucket size")
)

// Hooks describes the bucket type B and its key type K to a table. A bucket
// is either empty or holds exactly one item, and the empty state is defined
// entirely by the client through IsEmpty and Clear.
//
// Buckets are relocated with plain assignment, so B must not contain pointers
// into itself and must not require any custom logic when moved. None of the
// methods may return different results for the same inputs at different
// times.
type Hooks[B any, K any] interface {
	// Hash returns the hash of key. Only the low bits are used to select
	// the ideal bucket, so hashes should be well mixed (see HashUint64).
	Hash(key K) uint64
	// Key extracts the key of the item held by an occupied bucket.
	Key(b *B) K
	// Equal reports whether two keys are equal.
	Equal(k1, k2 K) bool
	// IsEmpty reports whether b holds the empty sentinel.
	IsEmpty(b *B) bool
	// Clear writes the empty sentinel into b.
	Clear(b *B)
}

// FuncHooks adapts five ordinary functions to the Hooks interface.
type FuncHooks[B any, K any] struct {
	HashFn    func(key K) uint64
	KeyFn     func(b *B) K
	EqualFn   func(k1, k2 K) bool
	IsEmptyFn func(b *B) bool
	ClearFn   func(b *B)
}

// Hash implements Hooks.
func (h FuncHooks[B, K]) Hash(key K) uint64 { return h.HashFn(key) }

// Key implements Hooks.
func (h FuncHooks[B, K]) Key(b *B) K { return h.KeyFn(b) }

// Equal implements Hooks.
func (h FuncHooks[B, K]) Equal(k1, k2 K) bool { return h.EqualFn(k1, k2) }

// IsEmpty implements Hooks.
func (h FuncHooks[B, K]) IsEmpty(b *B) bool { return h.IsEmptyFn(b) }

// Clear implements Hooks.
func (h FuncHooks[B, K]) Clear(b *B) { h.ClearFn(b) }

// Desc is the immutable behavior descriptor of a table: the bucket hooks,
// the allocator, the accounted bucket size and the load thresholds. A Desc
// holds no per-table state and may be shared, read-only, by any number of
// tables, including tables used from different goroutines.
type Desc[B any, K any] struct {
	hooks     Hooks[B, K]
	allocator Allocator[B]
	// bucketSize is the number of bytes accounted per bucket.
	bucketSize uintptr
	// elemSize is unsafe.Sizeof(B) and is used to map bucket pointers back to
	// indexes.
	elemSize uintptr
	// maxCapacity is the largest power of two for which
	// maxCapacity*bucketSize does not exceed maxTableBytes.
	maxCapacity     int
	growThreshold   uint8
	shrinkThreshold uint8
}

// NewDesc constructs a descriptor for the supplied hooks.
func NewDesc[B any, K any](hooks Hooks[B, K], options ...option[B, K]) (*Desc[B, K], error) {
	d := &Desc[B, K]{}
	if err := d.init(hooks, options...); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Desc[B, K]) init(hooks Hooks[B, K], options ...option[B, K]) error {
	var b B
	nd := Desc[B, K]{
		hooks:           hooks,
		allocator:       defaultAllocator[B]{},
		bucketSize:      unsafe.Sizeof(b),
		elemSize:        unsafe.Sizeof(b),
		growThreshold:   defaultGrowThreshold,
		shrinkThreshold: defaultShrinkThreshold,
	}
	for _, op := range options {
		op.apply(&nd)
	}

	if nd.elemSize == 0 || nd.bucketSize == 0 {
		return errors.Wrapf(ErrInvalidBucket, "bucket size %d, element size %d", nd.bucketSize, nd.elemSize)
	}
	if nd.growThreshold == 0 || nd.growThreshold > 100 || nd.shrinkThreshold >= nd.growThreshold {
		return errors.Wrapf(ErrInvalidThresholds, "grow=%d%% shrink=%d%%", nd.growThreshold, nd.shrinkThreshold)
	}
	if nd.allocator == nil {
		nd.allocator = defaultAllocator[B]{}
	}
	nd.maxCapacity = maxCapacityFor(nd.bucketSize)
	// d is only written once the options have been validated, so a failed
	// init leaves a previously initialized descriptor intact.
	*d = nd
	return nil
}

// initialized reports whether d was set up by NewDesc or Map.Init. The zero
// Desc has a grow threshold of 0, which init never accepts.
func (d *Desc[B, K]) initialized() bool {
	return d.growThreshold != 0
}

func maxCapacityFor(bucketSize uintptr) int {
	limit := uint64(maxTableBytes) / uint64(bucketSize)
	if limit == 0 {
		return 0
	}
	return 1 << (bits.Len64(limit) - 1)
}

// BucketSize returns the number of bytes accounted per bucket.
func (d *Desc[B, K]) BucketSize() uintptr {
	return d.bucketSize
}

// GrowThreshold returns the load factor percentage above which insertion
// grows a table.
func (d *Desc[B, K]) GrowThreshold() uint8 {
	return d.growThreshold
}

// ShrinkThreshold returns the load factor percentage below which removal
// shrinks a table. Zero means shrinking is disabled.
func (d *Desc[B, K]) ShrinkThreshold() uint8 {
	return d.shrinkThreshold
}

// MaxCapacity returns the largest capacity a table using d can reach.
func (d *Desc[B, K]) MaxCapacity() int {
	return d.maxCapacity
}
