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
	"unsafe"

	"github.com/cespare/xxhash/v2"
)

// Hash functions for implementing Hooks.Hash. A table selects the ideal
// bucket from the low bits of the hash, so integer keys must be mixed rather
// than used directly.

// HashUint32 is Thomas Wang's 32-bit integer mix. The result fits in 32 bits.
func HashUint32(key uint32) uint64 {
	key = ^key + (key << 15)
	key = key ^ (key >> 12)
	key = key + (key << 2)
	key = key ^ (key >> 4)
	key = key * 2057
	key = key ^ (key >> 16)
	return uint64(key)
}

// HashUint64 is Thomas Wang's 64-bit integer mix.
func HashUint64(key uint64) uint64 {
	key = ^key + (key << 21)
	key = key ^ (key >> 24)
	key = (key + (key << 3)) + (key << 8)
	key = key ^ (key >> 14)
	key = (key + (key << 2)) + (key << 4)
	key = key ^ (key >> 28)
	key = key + (key << 31)
	return key
}

// HashPointer hashes the address p, for tables keyed by pointer identity.
func HashPointer(p unsafe.Pointer) uint64 {
	return HashUint64(uint64(uintptr(p)))
}

// HashCombine mixes h into seed, for hashing composite keys.
func HashCombine(seed, h uint64) uint64 {
	return seed ^ (h + 0x9e3779b9 + (seed << 6) + (seed >> 2))
}

// HashString returns the 64-bit xxHash of s.
func HashString(s string) uint64 {
	return xxhash.Sum64String(s)
}

// HashBytes returns the 64-bit xxHash of b.
func HashBytes(b []byte) uint64 {
	return xxhash.Sum64(b)
}
