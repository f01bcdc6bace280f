// Copyright 2025 The Groveland Authors
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

package multimap

import (
	"fmt"
	"hash/maphash"
	"math/rand"
	"slices"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

// toBuiltinMap returns the groups as a map[K][]V. Useful for testing.
func (m *MultiMap[K, V]) toBuiltinMap() map[K][]V {
	r := make(map[K][]V)
	for k, vs := range m.IterAll() {
		r[k] = slices.Clone(vs)
	}
	return r
}

// randKey returns a random resident key. Note that keys are not
// selected uniformly.
func (m *MultiMap[K, V]) randKey() (key K, ok bool) {
	// Rely on random iteration order to give us a random key.
	for k := range m.Keys() {
		return k, true
	}
	return key, false
}

func TestInsert(t *testing.T) {
	m := New[int, int](0)
	require.True(t, m.IsEmpty())
	require.EqualValues(t, 0, m.Len())

	m.Insert(1, 42)
	require.False(t, m.IsEmpty())
	require.EqualValues(t, 1, m.Len())
	v, ok := m.Get(1)
	require.True(t, ok)
	require.EqualValues(t, 42, v)

	// Inserting under an existing key appends rather than overwrites.
	m.Insert(1, 1337)
	require.EqualValues(t, 1, m.Len())
	v, ok = m.Get(1)
	require.True(t, ok)
	require.EqualValues(t, 42, v)
	require.Equal(t, []int{42, 1337}, m.GetSlice(1))
}

func TestGet(t *testing.T) {
	m := New[int, int](0)
	_, ok := m.Get(1)
	require.False(t, ok)
	require.False(t, m.Contains(1))

	m.Insert(1, 42)
	require.True(t, m.Contains(1))
	v, ok := m.Get(1)
	require.True(t, ok)
	require.EqualValues(t, 42, v)

	_, ok = m.Get(2)
	require.False(t, ok)
}

func TestGetMut(t *testing.T) {
	m := New[int, int](0)
	require.Nil(t, m.GetMut(1))

	m.Insert(1, 42)
	m.Insert(1, 1337)

	p := m.GetMut(1)
	require.NotNil(t, p)
	require.EqualValues(t, 42, *p)

	*p = 99
	require.Equal(t, []int{99, 1337}, m.GetSlice(1))
}

func TestGetSlice(t *testing.T) {
	m := New[int, int](0)
	require.Nil(t, m.GetSlice(1))

	m.Insert(1, 42)
	m.Insert(1, 1337)
	require.Equal(t, []int{42, 1337}, m.GetSlice(1))

	// The slice aliases the map's storage.
	m.GetSlice(1)[1] = 7
	require.Equal(t, []int{42, 7}, m.GetSlice(1))
}

func TestMustGet(t *testing.T) {
	m := New[int, int](0)
	m.Insert(1, 42)
	m.Insert(1, 1337)
	require.EqualValues(t, 42, m.MustGet(1))

	require.PanicsWithValue(t, "multimap: no entry found for key", func() {
		m.MustGet(2)
	})
}

func TestIsMulti(t *testing.T) {
	m := New[int, int](0)
	m.Insert(1, 42)
	m.Insert(1, 1337)
	m.Insert(2, 2332)

	require.True(t, m.IsMulti(1))
	require.False(t, m.IsMulti(2))
	require.False(t, m.IsMulti(3))
}

func TestRemove(t *testing.T) {
	m := New[int, int](0)
	vs, ok := m.Remove(1)
	require.False(t, ok)
	require.Nil(t, vs)

	m.Insert(1, 42)
	m.Insert(1, 1337)
	m.Insert(2, 7)

	vs, ok = m.Remove(1)
	require.True(t, ok)
	require.Equal(t, []int{42, 1337}, vs)
	require.False(t, m.Contains(1))
	require.EqualValues(t, 1, m.Len())

	// The returned slice is owned by the caller: reinserting the key
	// must not disturb it.
	m.Insert(1, 99)
	require.Equal(t, []int{42, 1337}, vs)
}

func TestInsertSliceRemoveRoundTrip(t *testing.T) {
	m := New[string, int](0)
	in := []int{3, 1, 4, 1, 5}
	m.InsertSlice("pi", in)

	out, ok := m.Remove("pi")
	require.True(t, ok)
	require.Equal(t, in, out)
	require.True(t, m.IsEmpty())
}

func TestInsertMany(t *testing.T) {
	m := New[int, int](0)
	m.InsertMany(1, slices.Values([]int{1, 2, 3}))
	require.Equal(t, []int{1, 2, 3}, m.GetSlice(1))

	// Appends to the existing group.
	m.InsertMany(1, slices.Values([]int{4, 5}))
	require.Equal(t, []int{1, 2, 3, 4, 5}, m.GetSlice(1))
}

func TestInsertManyEmpty(t *testing.T) {
	// An empty sequence creates the key with an empty group. The key is
	// resident but the value accessors treat it as absent.
	m := New[int, int](0)
	m.InsertMany(1, slices.Values([]int{}))

	require.True(t, m.Contains(1))
	require.EqualValues(t, 1, m.Len())

	_, ok := m.Get(1)
	require.False(t, ok)
	require.Nil(t, m.GetMut(1))
	require.Nil(t, m.GetSlice(1))
	require.Panics(t, func() { m.MustGet(1) })

	// Keys and IterAll observe the key; Iter skips it.
	require.Equal(t, []int{1}, slices.Collect(m.Keys()))
	for range m.Iter() {
		require.Fail(t, "should not iterate")
	}
	seen := false
	for k, vs := range m.IterAll() {
		require.EqualValues(t, 1, k)
		require.Empty(t, vs)
		seen = true
	}
	require.True(t, seen)

	// Removing the key yields its empty group.
	vs, ok := m.Remove(1)
	require.True(t, ok)
	require.Empty(t, vs)
	require.False(t, m.Contains(1))
}

func TestGetAll(t *testing.T) {
	m := New[int, int](0)
	_, ok := m.GetAll(1)
	require.False(t, ok)

	m.Insert(1, 42)
	vals, ok := m.GetAll(1)
	require.True(t, ok)
	require.Equal(t, []int{42}, vals.Slice())

	vals.Push(1337)
	require.Equal(t, []int{42, 1337}, m.GetSlice(1))

	v, ok := vals.Pop()
	require.True(t, ok)
	require.EqualValues(t, 1337, v)

	// Popping the last value leaves the key resident with an empty
	// group.
	v, ok = vals.Pop()
	require.True(t, ok)
	require.EqualValues(t, 42, v)
	_, ok = vals.Pop()
	require.False(t, ok)

	require.True(t, m.Contains(1))
	_, ok = m.Get(1)
	require.False(t, ok)

	// The handle can repopulate the group, and GetAll still returns a
	// handle for the emptied key.
	vals, ok = m.GetAll(1)
	require.True(t, ok)
	vals.Push(7)
	v, ok = m.Get(1)
	require.True(t, ok)
	require.EqualValues(t, 7, v)
}

func TestRetain(t *testing.T) {
	m := New[int, int](0)
	m.Insert(1, 1)
	m.Insert(1, 2)
	m.Insert(2, 3)

	m.Retain(func(k, v int) bool {
		return k == 1 && v == 2
	})
	require.EqualValues(t, 1, m.Len())
	require.Equal(t, []int{2}, m.GetSlice(1))
	require.False(t, m.Contains(2))

	n := New[int, int](0)
	n.Insert(1, 42)
	n.Insert(1, 99)
	n.Insert(2, 42)
	n.Retain(func(k, v int) bool {
		return k == 1 && v == 42
	})
	require.EqualValues(t, 1, n.Len())
	v, ok := n.Get(1)
	require.True(t, ok)
	require.EqualValues(t, 42, v)
	require.False(t, n.Contains(2))
}

func TestRetainRemovesEmptyGroups(t *testing.T) {
	m := New[int, int](0)
	m.Insert(1, 42)

	// Empty the group through a handle, then reconcile with Retain.
	vals, ok := m.GetAll(1)
	require.True(t, ok)
	_, ok = vals.Pop()
	require.True(t, ok)
	require.True(t, m.Contains(1))

	m.Retain(func(k, v int) bool { return true })
	require.False(t, m.Contains(1))
	require.True(t, m.IsEmpty())
}

func TestRetainOrder(t *testing.T) {
	m := New[int, int](0)
	for i := 0; i < 100; i++ {
		m.Insert(i%4, i)
	}
	m.Retain(func(k, v int) bool { return v%3 != 0 })
	for k, vs := range m.IterAll() {
		require.True(t, slices.IsSorted(vs), "key %d: %v", k, vs)
		for _, v := range vs {
			require.NotZero(t, v%3)
		}
	}
}

func TestClear(t *testing.T) {
	m := New[int, int](0)
	for i := 0; i < 1000; i++ {
		m.Insert(i%100, i)
	}

	capacity := m.Capacity()
	m.Clear()
	require.EqualValues(t, 0, m.Len())
	require.EqualValues(t, capacity, m.Capacity())

	for range m.IterAll() {
		require.Fail(t, "should not iterate")
	}

	// The map is fully usable after Clear.
	m.Insert(1, 42)
	require.Equal(t, []int{42}, m.GetSlice(1))
}

func TestExtend(t *testing.T) {
	m := New[int, int](0)
	m.Insert(1, 1)

	src := Of(
		Pair[int, int]{1, 2},
		Pair[int, int]{2, 3},
	)
	m.Extend(src.Iter())
	require.EqualValues(t, 2, m.Len())
	require.Equal(t, []int{1, 2}, m.GetSlice(1))
	require.Equal(t, []int{3}, m.GetSlice(2))
}

func TestExtendGroups(t *testing.T) {
	m := New[int, int](0)
	m.Insert(1, 1)

	src := New[int, int](0)
	src.InsertSlice(1, []int{2, 3})
	src.InsertSlice(2, []int{4})

	m.ExtendGroups(src.IterAll())
	require.Equal(t, []int{1, 2, 3}, m.GetSlice(1))
	require.Equal(t, []int{4}, m.GetSlice(2))
}

func TestOf(t *testing.T) {
	m := Of(
		Pair[string, string]{"dog", "husky"},
		Pair[string, string]{"dog", "shiba inu"},
		Pair[string, string]{"cat", "cat"},
	)
	require.EqualValues(t, 2, m.Len())
	require.Equal(t, []string{"husky", "shiba inu"}, m.GetSlice("dog"))
	require.Equal(t, []string{"cat"}, m.GetSlice("cat"))
}

func TestCollect(t *testing.T) {
	src := Of(
		Pair[int, int]{1, 42},
		Pair[int, int]{1, 1337},
		Pair[int, int]{2, 7},
	)
	m := Collect(src.pairs())
	require.True(t, Equal(src, m))
}

// pairs flattens the map into individual key-value pairs, yielding
// each key once per value in its group.
func (m *MultiMap[K, V]) pairs() func(yield func(K, V) bool) {
	return func(yield func(K, V) bool) {
		for k, vs := range m.IterAll() {
			for _, v := range vs {
				if !yield(k, v) {
					return
				}
			}
		}
	}
}

func TestKeys(t *testing.T) {
	m := New[int, int](0)
	for i := 0; i < 10; i++ {
		m.Insert(i, i)
		m.Insert(i, i+10)
	}

	keys := slices.Collect(m.Keys())
	slices.Sort(keys)
	require.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, keys)
}

func TestIter(t *testing.T) {
	m := New[int, int](0)
	for i := 0; i < 10; i++ {
		m.Insert(i, i)
		m.Insert(i, i+10) // Iter must not observe the second value.
	}

	seen := make(map[int]int)
	for k, v := range m.Iter() {
		seen[k] = v
	}
	require.EqualValues(t, 10, len(seen))
	for k, v := range seen {
		require.Equal(t, k, v)
	}

	// Early termination.
	n := 0
	for range m.Iter() {
		n++
		break
	}
	require.Equal(t, 1, n)
}

func TestIterMut(t *testing.T) {
	m := New[int, int](0)
	for i := 0; i < 10; i++ {
		m.Insert(i, i)
		m.Insert(i, -1)
	}

	for k, v := range m.IterMut() {
		*v = k + 100
	}
	for i := 0; i < 10; i++ {
		require.Equal(t, []int{i + 100, -1}, m.GetSlice(i))
	}
}

func TestIterAllMut(t *testing.T) {
	m := New[int, int](0)
	for i := 0; i < 10; i++ {
		m.Insert(i, i)
	}

	for k, vals := range m.IterAllMut() {
		vals.Push(k + 100)
	}
	for i := 0; i < 10; i++ {
		require.Equal(t, []int{i, i + 100}, m.GetSlice(i))
	}
}

func TestEqual(t *testing.T) {
	a := New[int, int](0)
	a.Insert(1, 42)
	a.Insert(1, 1337)
	a.Insert(2, 7)

	// Key insertion order does not matter.
	b := New[int, int](0)
	b.Insert(2, 7)
	b.Insert(1, 42)
	b.Insert(1, 1337)
	require.True(t, Equal(a, b))

	// Value order within a group does.
	c := New[int, int](0)
	c.Insert(1, 1337)
	c.Insert(1, 42)
	c.Insert(2, 7)
	require.False(t, Equal(a, c))

	// Differing key sets.
	d := New[int, int](0)
	d.Insert(1, 42)
	d.Insert(1, 1337)
	require.False(t, Equal(a, d))

	require.True(t, Equal(New[int, int](0), New[int, int](0)))
}

func TestEqualEmptyGroup(t *testing.T) {
	// A key with an empty group participates in equality.
	a := New[int, int](0)
	a.InsertMany(1, slices.Values([]int{}))

	b := New[int, int](0)
	require.False(t, Equal(a, b))

	b.InsertMany(1, slices.Values([]int{}))
	require.True(t, Equal(a, b))

	b.Insert(1, 42)
	require.False(t, Equal(a, b))
}

func TestEqualFunc(t *testing.T) {
	a := New[int, int](0)
	a.Insert(1, 42)
	a.Insert(1, 1337)

	b := New[int, string](0)
	b.Insert(1, "42")
	b.Insert(1, "1337")

	eq := func(x int, y string) bool { return strconv.Itoa(x) == y }
	require.True(t, EqualFunc(a, b, eq))

	b.Insert(2, "7")
	require.False(t, EqualFunc(a, b, eq))
}

func TestString(t *testing.T) {
	m := New[int, int](0)
	require.Equal(t, "{}", m.String())

	m.Insert(1, 2)
	m.Insert(1, 5)
	m.Insert(1, -1)
	require.Equal(t, "{1: [2 5 -1]}", m.String())

	m.Insert(3, 4)
	require.Contains(t, []string{
		"{1: [2 5 -1], 3: [4]}",
		"{3: [4], 1: [2 5 -1]}",
	}, m.String())
}

func TestClone(t *testing.T) {
	m := New[int, int](0)
	for i := 0; i < 100; i++ {
		m.Insert(i%10, i)
	}
	m.InsertMany(99, slices.Values([]int{}))

	c := m.Clone()
	require.True(t, Equal(m, c))
	require.Equal(t, m.Len(), c.Len())
	require.True(t, c.Contains(99))

	// The clone is independent in both directions.
	c.Insert(0, -1)
	m.Remove(1)
	require.False(t, Equal(m, c))
	require.False(t, slices.Contains(m.GetSlice(0), -1))
	require.True(t, c.Contains(1))
}

func TestCloneEmpty(t *testing.T) {
	m := New[int, int](0)
	c := m.Clone()
	require.True(t, c.IsEmpty())
	require.EqualValues(t, 0, c.Capacity())
	c.Insert(1, 1)
	require.False(t, m.Contains(1))
}

func TestBasic(t *testing.T) {
	test := func(t *testing.T, m *MultiMap[int, int]) {
		const count = 100

		e := make(map[int][]int)
		require.EqualValues(t, 0, m.Len())

		// Non-existent.
		for i := 0; i < count; i++ {
			_, ok := m.Get(i)
			require.False(t, ok)
		}

		// Insert.
		for i := 0; i < count; i++ {
			m.Insert(i, i+count)
			e[i] = append(e[i], i+count)
			v, ok := m.Get(i)
			require.True(t, ok)
			require.EqualValues(t, i+count, v)
			require.EqualValues(t, i+1, m.Len())
			require.Equal(t, e, m.toBuiltinMap())
		}

		// Append.
		for i := 0; i < count; i++ {
			m.Insert(i, i+2*count)
			e[i] = append(e[i], i+2*count)
			v, ok := m.Get(i)
			require.True(t, ok)
			require.EqualValues(t, i+count, v)
			require.EqualValues(t, count, m.Len())
			require.Equal(t, e, m.toBuiltinMap())
		}

		// Remove.
		for i := 0; i < count; i++ {
			vs, ok := m.Remove(i)
			require.True(t, ok)
			require.Equal(t, e[i], vs)
			delete(e, i)
			require.EqualValues(t, count-i-1, m.Len())
			_, ok = m.Get(i)
			require.False(t, ok)
			require.Equal(t, e, m.toBuiltinMap())
		}
	}

	t.Run("normal", func(t *testing.T) {
		test(t, New[int, int](0))
	})

	t.Run("degenerate", func(t *testing.T) {
		testDegenerate := func(t *testing.T, h uint64) {
			m := New[int, int](0,
				WithHash[int, int](func(seed maphash.Seed, key int) uint64 {
					return h
				}))
			test(t, m)
		}

		for _, v := range []uint64{0, ^uint64(0)} {
			t.Run(fmt.Sprintf("%016x", v), func(t *testing.T) {
				testDegenerate(t, v)
			})
		}
		for i := 0; i < 10; i++ {
			v := rand.Uint64()
			t.Run(fmt.Sprintf("%016x", v), func(t *testing.T) {
				testDegenerate(t, v)
			})
		}
	})
}

func TestRandom(t *testing.T) {
	test := func(t *testing.T, m *MultiMap[int, int]) {
		e := make(map[int][]int)
		for i := 0; i < 10000; i++ {
			switch r := rand.Float64(); {
			case r < 0.45: // 45% inserts of fresh keys
				k, v := rand.Int(), rand.Int()
				m.Insert(k, v)
				e[k] = append(e[k], v)
			case r < 0.65: // 20% appends to existing keys
				if k, ok := m.randKey(); !ok {
					require.EqualValues(t, 0, m.Len(), e)
				} else {
					v := rand.Int()
					m.Insert(k, v)
					e[k] = append(e[k], v)
				}
			case r < 0.80: // 15% removes
				if k, ok := m.randKey(); !ok {
					require.EqualValues(t, 0, m.Len(), e)
				} else {
					vs, ok := m.Remove(k)
					require.True(t, ok)
					require.Equal(t, e[k], vs)
					delete(e, k)
				}
			case r < 0.95: // 15% lookups
				if k, ok := m.randKey(); !ok {
					require.EqualValues(t, 0, m.Len(), e)
				} else {
					require.Equal(t, e[k], m.GetSlice(k))
				}
			default: // 5% iterate and cross-check
				require.Equal(t, e, m.toBuiltinMap())
			}
			require.EqualValues(t, len(e), m.Len())
		}
	}

	t.Run("normal", func(t *testing.T) {
		test(t, New[int, int](0))
	})

	t.Run("degenerate", func(t *testing.T) {
		testDegenerate := func(t *testing.T, h uint64) {
			m := New[int, int](0,
				WithHash[int, int](func(seed maphash.Seed, key int) uint64 {
					return h
				}))
			test(t, m)
		}

		for _, v := range []uint64{0, ^uint64(0)} {
			t.Run(fmt.Sprintf("%016x", v), func(t *testing.T) {
				testDegenerate(t, v)
			})
		}
	})
}

func TestIterateMutate(t *testing.T) {
	m := New[int, int](0)
	for i := 0; i < 100; i++ {
		m.Insert(i, i)
	}
	e := m.toBuiltinMap()
	require.EqualValues(t, 100, m.Len())
	require.EqualValues(t, 100, len(e))

	// Iterate over the map, resizing it periodically. We should see
	// all of the groups that were originally in the map because the
	// iterators take a snapshot of the ctrls and slots before
	// iterating.
	vals := make(map[int][]int)
	for k, vs := range m.IterAll() {
		if (k % 10) == 0 {
			m.t.resize(2*m.t.capacity + 1)
		}
		vals[k] = slices.Clone(vs)
	}
	require.EqualValues(t, e, vals)
}
