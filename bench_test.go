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
	"io"
	"strconv"
	"testing"

	"github.com/aclements/go-perfevent/perfbench"
)

func BenchmarkMapIter(b *testing.B) {
	b.Run("impl=runtimeMap", func(b *testing.B) {
		b.Run("t=Int64", benchSizes(benchmarkRuntimeMapIter[int64], genKeys[int64]))
	})
	b.Run("impl=openaddrMap", func(b *testing.B) {
		b.Run("t=Int64", benchSizes(benchmarkOpenaddrMapIter[int64], genKeys[int64]))
	})
}

func BenchmarkMapGetHit(b *testing.B) {
	b.Run("impl=runtimeMap", func(b *testing.B) {
		b.Run("t=Int64", benchSizes(benchmarkRuntimeMapGetHit[int64], genKeys[int64]))
		b.Run("t=String", benchSizes(benchmarkRuntimeMapGetHit[string], genKeys[string]))
	})
	b.Run("impl=openaddrMap", func(b *testing.B) {
		b.Run("t=Int64", benchSizes(benchmarkOpenaddrMapGetHit[int64], genKeys[int64]))
		b.Run("t=String", benchSizes(benchmarkOpenaddrMapGetHit[string], genKeys[string]))
	})
}

func BenchmarkMapGetMiss(b *testing.B) {
	b.Run("impl=runtimeMap", func(b *testing.B) {
		b.Run("t=Int64", benchSizes(benchmarkRuntimeMapGetMiss[int64], genKeys[int64]))
		b.Run("t=String", benchSizes(benchmarkRuntimeMapGetMiss[string], genKeys[string]))
	})
	b.Run("impl=openaddrMap", func(b *testing.B) {
		b.Run("t=Int64", benchSizes(benchmarkOpenaddrMapGetMiss[int64], genKeys[int64]))
		b.Run("t=String", benchSizes(benchmarkOpenaddrMapGetMiss[string], genKeys[string]))
	})
}

func BenchmarkMapPutGrow(b *testing.B) {
	b.Run("impl=runtimeMap", func(b *testing.B) {
		b.Run("t=Int64", benchSizes(benchmarkRuntimeMapPutGrow[int64], genKeys[int64]))
		b.Run("t=String", benchSizes(benchmarkRuntimeMapPutGrow[string], genKeys[string]))
	})
	b.Run("impl=openaddrMap", func(b *testing.B) {
		b.Run("t=Int64", benchSizes(benchmarkOpenaddrMapPutGrow[int64], genKeys[int64]))
		b.Run("t=String", benchSizes(benchmarkOpenaddrMapPutGrow[string], genKeys[string]))
	})
}

func BenchmarkMapPutPreAllocate(b *testing.B) {
	b.Run("impl=runtimeMap", func(b *testing.B) {
		b.Run("t=Int64", benchSizes(benchmarkRuntimeMapPutPreAllocate[int64], genKeys[int64]))
		b.Run("t=String", benchSizes(benchmarkRuntimeMapPutPreAllocate[string], genKeys[string]))
	})
	b.Run("impl=openaddrMap", func(b *testing.B) {
		b.Run("t=Int64", benchSizes(benchmarkOpenaddrMapPutPreAllocate[int64], genKeys[int64]))
		b.Run("t=String", benchSizes(benchmarkOpenaddrMapPutPreAllocate[string], genKeys[string]))
	})
}

func BenchmarkMapPutDelete(b *testing.B) {
	b.Run("impl=runtimeMap", func(b *testing.B) {
		b.Run("t=Int64", benchSizes(benchmarkRuntimeMapPutDelete[int64], genKeys[int64]))
		b.Run("t=String", benchSizes(benchmarkRuntimeMapPutDelete[string], genKeys[string]))
	})
	b.Run("impl=openaddrMap", func(b *testing.B) {
		b.Run("t=Int64", benchSizes(benchmarkOpenaddrMapPutDelete[int64], genKeys[int64]))
		b.Run("t=String", benchSizes(benchmarkOpenaddrMapPutDelete[string], genKeys[string]))
	})
}

type benchTypes interface {
	int64 | string
}

// benchBucket is a key/value pair plus an occupied flag, the layout most
// clients of a linear probing table use.
type benchBucket[T benchTypes] struct {
	key   T
	value T
	used  bool
}

func benchHooks[T benchTypes]() FuncHooks[benchBucket[T], T] {
	return FuncHooks[benchBucket[T], T]{
		HashFn: func(key T) uint64 {
			switch k := any(key).(type) {
			case int64:
				return HashUint64(uint64(k))
			case string:
				return HashString(k)
			default:
				panic("not reached")
			}
		},
		KeyFn:     func(b *benchBucket[T]) T { return b.key },
		EqualFn:   func(k1, k2 T) bool { return k1 == k2 },
		IsEmptyFn: func(b *benchBucket[T]) bool { return !b.used },
		ClearFn:   func(b *benchBucket[T]) { *b = benchBucket[T]{} },
	}
}

func newBenchMap[T benchTypes](b *testing.B, n int) *Map[benchBucket[T], T] {
	m, err := New[benchBucket[T], T](benchHooks[T](), 1)
	if err != nil {
		b.Fatal(err)
	}
	if !m.Reserve(n) {
		b.Fatalf("unable to reserve %d", n)
	}
	return m
}

func benchSizes[T benchTypes](
	f func(b *testing.B, n int, genKeys func(start, end int) []T), genKeys func(start, end int) []T,
) func(*testing.B) {
	var cases = []int{
		6, 12, 18, 24, 30,
		64,
		128,
		256,
		512,
		1024,
		2048,
		4096,
		8192,
		1 << 16,
	}

	return func(b *testing.B) {
		for _, n := range cases {
			b.Run("len="+strconv.Itoa(n), func(b *testing.B) { f(b, n, genKeys) })
		}
	}
}

func genKeys[T benchTypes](start, end int) []T {
	keys := make([]T, end-start)
	for i := range keys {
		switch k := any(&keys[i]).(type) {
		case *int64:
			*k = int64(start + i)
		case *string:
			*k = strconv.Itoa(start + i)
		default:
			panic("not reached")
		}
	}
	return keys
}

func benchmarkRuntimeMapIter[T benchTypes](b *testing.B, n int, genKeys func(start, end int) []T) {
	m := make(map[T]T, n)
	keys := genKeys(0, n)
	for _, k := range keys {
		m[k] = k
	}
	cs := perfbench.Open(b)
	b.ResetTimer()
	cs.Reset()
	var tmp T
	for i := 0; i < b.N; i++ {
		for k, v := range m {
			tmp += k + v
		}
	}
}

func benchmarkOpenaddrMapIter[T benchTypes](b *testing.B, n int, genKeys func(start, end int) []T) {
	m := newBenchMap[T](b, n)
	keys := genKeys(0, n)
	for _, k := range keys {
		m.Insert(&benchBucket[T]{key: k, value: k, used: true})
	}
	cs := perfbench.Open(b)
	b.ResetTimer()
	cs.Reset()
	var tmp T
	for i := 0; i < b.N; i++ {
		m.All(func(e *benchBucket[T]) bool {
			tmp += e.key + e.value
			return true
		})
	}
}

func benchmarkRuntimeMapGetMiss[T benchTypes](
	b *testing.B, n int, genKeys func(start, end int) []T,
) {
	m := make(map[T]T)
	keys := genKeys(0, n)
	miss := genKeys(-n, 0)
	for _, k := range keys {
		m[k] = k
	}
	cs := perfbench.Open(b)
	b.ResetTimer()
	cs.Reset()
	for i := 0; i < b.N; i++ {
		_ = m[miss[i%len(miss)]]
	}
}

func benchmarkOpenaddrMapGetMiss[T benchTypes](
	b *testing.B, n int, genKeys func(start, end int) []T,
) {
	m := newBenchMap[T](b, 0)
	keys := genKeys(0, n)
	miss := genKeys(-n, 0)
	for j := range keys {
		m.Insert(&benchBucket[T]{key: keys[j], value: keys[j], used: true})
	}
	cs := perfbench.Open(b)
	b.ResetTimer()
	cs.Reset()
	var found *benchBucket[T]
	for i := 0; i < b.N; i++ {
		found = m.Find(miss[i%len(miss)])
	}
	b.StopTimer()
	fmt.Fprint(io.Discard, found)
}

func benchmarkRuntimeMapGetHit[T benchTypes](
	b *testing.B, n int, genKeys func(start, end int) []T,
) {
	m := make(map[T]T, n)
	keys := genKeys(0, n)
	for _, k := range keys {
		m[k] = k
	}

	// Go's builtin map has an optimization to avoid string comparisons if
	// there is pointer equality. Defeat this optimization to get a better
	// apples-to-apples comparison.
	keys = genKeys(0, n)

	cs := perfbench.Open(b)
	b.ResetTimer()
	cs.Reset()
	for i := 0; i < b.N; i++ {
		_ = m[keys[i%n]]
	}
}

func benchmarkOpenaddrMapGetHit[T benchTypes](
	b *testing.B, n int, genKeys func(start, end int) []T,
) {
	m := newBenchMap[T](b, n)
	keys := genKeys(0, n)
	for _, k := range keys {
		m.Insert(&benchBucket[T]{key: k, value: k, used: true})
	}
	keys = genKeys(0, n)

	cs := perfbench.Open(b)
	b.ResetTimer()
	cs.Reset()
	var found *benchBucket[T]
	for i := 0; i < b.N; i++ {
		found = m.Find(keys[i%n])
	}
	b.StopTimer()
	fmt.Fprint(io.Discard, found)
}

func benchmarkRuntimeMapPutGrow[T benchTypes](
	b *testing.B, n int, genKeys func(start, end int) []T,
) {
	keys := genKeys(0, n)
	cs := perfbench.Open(b)
	b.ResetTimer()
	cs.Reset()
	for i := 0; i < b.N; i++ {
		m := make(map[T]T)
		for _, k := range keys {
			m[k] = k
		}
	}
}

func benchmarkOpenaddrMapPutGrow[T benchTypes](
	b *testing.B, n int, genKeys func(start, end int) []T,
) {
	var m Map[benchBucket[T], T]
	hooks := benchHooks[T]()
	keys := genKeys(0, n)
	cs := perfbench.Open(b)
	b.ResetTimer()
	cs.Reset()
	for i := 0; i < b.N; i++ {
		if err := m.Init(hooks, 1); err != nil {
			b.Fatal(err)
		}
		for _, k := range keys {
			m.Insert(&benchBucket[T]{key: k, value: k, used: true})
		}
	}
}

func benchmarkRuntimeMapPutPreAllocate[T benchTypes](
	b *testing.B, n int, genKeys func(start, end int) []T,
) {
	keys := genKeys(0, n)
	cs := perfbench.Open(b)
	b.ResetTimer()
	cs.Reset()
	for i := 0; i < b.N; i++ {
		m := make(map[T]T, n)
		for _, k := range keys {
			m[k] = k
		}
	}
}

func benchmarkOpenaddrMapPutPreAllocate[T benchTypes](
	b *testing.B, n int, genKeys func(start, end int) []T,
) {
	var m Map[benchBucket[T], T]
	hooks := benchHooks[T]()
	keys := genKeys(0, n)
	cs := perfbench.Open(b)
	b.ResetTimer()
	cs.Reset()
	for i := 0; i < b.N; i++ {
		if err := m.Init(hooks, 1); err != nil {
			b.Fatal(err)
		}
		m.Reserve(n)
		for _, k := range keys {
			m.Insert(&benchBucket[T]{key: k, value: k, used: true})
		}
	}
}

func benchmarkRuntimeMapPutDelete[T benchTypes](
	b *testing.B, n int, genKeys func(start, end int) []T,
) {
	m := make(map[T]T, n)
	keys := genKeys(0, n)
	for _, k := range keys {
		m[k] = k
	}
	cs := perfbench.Open(b)
	b.ResetTimer()
	cs.Reset()
	for i := 0; i < b.N; i++ {
		j := i % n
		delete(m, keys[j])
		m[keys[j]] = keys[j]
	}
}

func benchmarkOpenaddrMapPutDelete[T benchTypes](
	b *testing.B, n int, genKeys func(start, end int) []T,
) {
	m := newBenchMap[T](b, n)
	keys := genKeys(0, n)
	for _, k := range keys {
		m.Insert(&benchBucket[T]{key: k, value: k, used: true})
	}
	cs := perfbench.Open(b)
	b.ResetTimer()
	cs.Reset()
	for i := 0; i < b.N; i++ {
		j := i % n
		m.Delete(keys[j])
		m.Insert(&benchBucket[T]{key: keys[j], value: keys[j], used: true})
	}
}
