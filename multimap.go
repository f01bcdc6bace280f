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

// Package multimap implements a map that stores multiple values per
// key, preserving the insertion order of values within each key's
// group.
//
// The interface is roughly that of a hash map, changed and extended to
// accommodate the multi-value use case. Each distinct key maps to an
// ordered, growable group of values: Insert appends rather than
// overwrites, Get and the single-value iterators observe the first
// value of a group, GetSlice and the all-value iterators observe whole
// groups. Values within a group stay in insertion order unless
// manually changed; keys are not ordered relative to each other.
// Identical key-value pairs may be stored multiple times. Removing the
// last value of a key's group removes the key.
//
// Storage is an open-addressing hash table in the style of Abseil's
// Swiss tables (see the commentary in table.go), with each key's group
// stored inline in its table slot until it outgrows a small inline
// capacity and spills to the heap. Lookups are amortized O(1), appends
// amortized O(1), and order-preserving removal of values from a group
// is O(group length).
//
// A MultiMap is NOT goroutine-safe: any number of concurrent readers
// is fine, but a writer requires external synchronization against all
// other access. Slices, pointers, and Values handles returned by
// lookup methods alias the map's memory and are invalidated by any
// structural change to the map or to the same key's group.
//
//	m := multimap.New[string, string](0)
//	m.Insert("urls", "https://go.dev")
//	m.Insert("urls", "https://pkg.go.dev")
//	m.Insert("id", "42")
//
//	m.MustGet("urls")  // "https://go.dev"
//	m.GetSlice("urls") // ["https://go.dev", "https://pkg.go.dev"]
//
//	for key, values := range m.IterAll() {
//	    fmt.Println(key, values)
//	}
package multimap

import (
	"fmt"
	"hash/maphash"
	"iter"
	"slices"
	"strings"
)

// MultiMap is a map from keys to ordered groups of values. The zero
// value is not usable; construct with New, Of, or Collect.
//
// One state deserves mention: a key whose group has been emptied
// through a Values handle (or created empty by InsertMany with an
// empty sequence) remains resident. Contains, Len, Keys, IterAll, and
// IterAllMut still observe such a key, while Get, GetMut, GetSlice,
// MustGet, Iter, and IterMut treat it as absent. The inconsistency
// lasts until Retain or Remove touches the key; every other mutating
// operation leaves no empty groups behind on return.
type MultiMap[K comparable, V any] struct {
	t table[K, V]
}

// Pair is a key-value pair for literal MultiMap construction with Of.
type Pair[K comparable, V any] struct {
	Key   K
	Value V
}

// New constructs a MultiMap with the specified initial capacity,
// measured in distinct keys. If initialCapacity is 0 the map starts
// out empty and grows on the first insert. By default keys are hashed
// the same way Go's builtin map hashes them; WithHash substitutes a
// different hashing strategy.
func New[K comparable, V any](initialCapacity int, options ...option[K, V]) *MultiMap[K, V] {
	m := &MultiMap[K, V]{
		t: table[K, V]{
			hash:  maphash.Comparable[K],
			seed:  maphash.MakeSeed(),
			alloc: defaultAllocator[K, V]{},
			ctrls: emptyCtrls,
		},
	}

	for _, op := range options {
		op.apply(m)
	}

	if initialCapacity > 0 {
		// The smallest capacity of the form 2^k-1 that can hold
		// initialCapacity keys without exceeding the load factor.
		targetCapacity := uintptr(windowSize - 1)
		for usableCapacity(targetCapacity) < initialCapacity {
			targetCapacity = 2*targetCapacity + 1
		}
		m.t.resize(targetCapacity)
	}

	m.t.checkInvariants()
	return m
}

// Of constructs a MultiMap from a list of key-value pairs, inserting
// them in the listed order and pre-sizing to the pair count.
//
//	m := multimap.Of(
//	    multimap.Pair[string, string]{"dog", "husky"},
//	    multimap.Pair[string, string]{"dog", "shiba inu"},
//	    multimap.Pair[string, string]{"cat", "cat"},
//	)
func Of[K comparable, V any](pairs ...Pair[K, V]) *MultiMap[K, V] {
	m := New[K, V](len(pairs))
	for _, p := range pairs {
		m.Insert(p.Key, p.Value)
	}
	return m
}

// Collect constructs a MultiMap from a sequence of key-value pairs,
// inserting them in sequence order.
func Collect[K comparable, V any](seq iter.Seq2[K, V]) *MultiMap[K, V] {
	m := New[K, V](0)
	m.Extend(seq)
	return m
}

// Close closes the map, releasing its memory back to its configured
// allocator. It is unnecessary to close a map using the default
// allocator. It is invalid to use a MultiMap after it has been closed,
// though Close itself is idempotent.
func (m *MultiMap[K, V]) Close() {
	m.t.close()
}

// Insert inserts a key-value pair into the map. If the key already
// exists the value is appended to the key's group; otherwise the key
// is created with the single-value group [v]. Insert cannot fail.
func (m *MultiMap[K, V]) Insert(key K, value V) {
	m.t.getOrAdd(key).Push(value)
}

// InsertMany appends the sequence's values, in order, to the key's
// group, creating the key if absent. Equivalent to repeated Insert but
// cheaper for an already materialized batch.
//
// An empty sequence on an absent key creates the key with an empty
// group; see the MultiMap comment for how such a key is observed.
func (m *MultiMap[K, V]) InsertMany(key K, values iter.Seq[V]) {
	m.t.getOrAdd(key).appendSeq(values)
}

// InsertSlice appends the slice's values, in order, to the key's
// group, creating the key if absent. The values are copied; the slice
// is not retained. The group's storage grows at most once.
//
// Like InsertMany, an empty slice on an absent key creates the key
// with an empty group.
func (m *MultiMap[K, V]) InsertSlice(key K, values []V) {
	m.t.getOrAdd(key).appendSlice(values)
}

// Remove removes the key from the map, returning its group of values
// in insertion order. It returns (nil, false) if the key was not
// present. After Remove returns, the key is absent.
func (m *MultiMap[K, V]) Remove(key K) ([]V, bool) {
	g, ok := m.t.remove(key)
	if !ok {
		return nil, false
	}
	return g.take(), true
}

// Retain keeps only the key-value pairs for which pred returns true.
// Each key's group is filtered in place, preserving the relative order
// of surviving values; any key whose group ends up empty (including
// one emptied earlier through a Values handle) is removed from the map
// entirely.
func (m *MultiMap[K, V]) Retain(pred func(key K, value V) bool) {
	var dead []K
	m.t.each(func(s *Slot[K, V]) bool {
		s.group.retain(func(v V) bool { return pred(s.key, v) })
		if s.group.len() == 0 {
			dead = append(dead, s.key)
		}
		return true
	})
	for _, key := range dead {
		m.t.remove(key)
	}
}

// Clear removes all keys and groups from the map, retaining the
// allocated capacity.
func (m *MultiMap[K, V]) Clear() {
	m.t.clear()
}

// Extend inserts every key-value pair of the sequence, in order.
// Equivalent to repeated Insert.
func (m *MultiMap[K, V]) Extend(seq iter.Seq2[K, V]) {
	for k, v := range seq {
		m.Insert(k, v)
	}
}

// ExtendGroups appends, for every key of the sequence, the whole
// incoming group to the key's existing group (creating the key if
// absent). Equivalent to repeated InsertSlice.
func (m *MultiMap[K, V]) ExtendGroups(seq iter.Seq2[K, []V]) {
	for k, vs := range seq {
		m.InsertSlice(k, vs)
	}
}

// Contains reports whether the map contains the key.
func (m *MultiMap[K, V]) Contains(key K) bool {
	return m.t.get(key) != nil
}

// Len returns the number of distinct keys in the map, not the total
// number of values.
func (m *MultiMap[K, V]) Len() int {
	return m.t.used
}

// IsEmpty reports whether the map contains no keys.
func (m *MultiMap[K, V]) IsEmpty() bool {
	return m.t.used == 0
}

// Capacity returns the number of key slots currently allocated. It is
// informational: a lower-bound hint, not a contract.
func (m *MultiMap[K, V]) Capacity() int {
	return int(m.t.capacity)
}

// Get returns the first value in the key's group, in insertion order.
// It returns ok=false if the key is not present (or its group is
// empty).
func (m *MultiMap[K, V]) Get(key K) (value V, ok bool) {
	if g := m.t.get(key); g != nil && g.len() > 0 {
		return g.Slice()[0], true
	}
	return value, false
}

// GetMut returns a pointer to the first value in the key's group, or
// nil if the key is not present (or its group is empty). The pointer
// is invalidated by any structural change to the map or the group.
func (m *MultiMap[K, V]) GetMut(key K) *V {
	if g := m.t.get(key); g != nil && g.len() > 0 {
		return &g.Slice()[0]
	}
	return nil
}

// GetSlice returns the key's whole group as a slice in insertion
// order, or nil if the key is not present (or its group is empty). The
// slice aliases the map's storage: element writes are visible in the
// map, but the slice must not be grown and is invalidated by any
// structural change to the map or the group.
func (m *MultiMap[K, V]) GetSlice(key K) []V {
	if g := m.t.get(key); g != nil && g.len() > 0 {
		return g.Slice()
	}
	return nil
}

// GetAll returns a mutable handle to the key's group, or ok=false if
// the key is not present. Unlike GetSlice, a key with an empty group
// is still returned, since the handle can repopulate it. The handle is
// invalidated by any structural change to the map.
func (m *MultiMap[K, V]) GetAll(key K) (Values[V], bool) {
	if g := m.t.get(key); g != nil {
		return g, true
	}
	return nil, false
}

// IsMulti reports whether the key is multi-valued: present with more
// than one value in its group. A single-valued or absent key reports
// false.
func (m *MultiMap[K, V]) IsMulti(key K) bool {
	g := m.t.get(key)
	return g != nil && g.len() > 1
}

// MustGet returns the first value in the key's group, panicking if the
// key is not present (or its group is empty). Use it where an absent
// key is a bug in the caller; branch on Get everywhere else.
func (m *MultiMap[K, V]) MustGet(key K) V {
	g := m.t.get(key)
	if g == nil || g.len() == 0 {
		panic("multimap: no entry found for key")
	}
	return g.Slice()[0]
}

// Keys returns a sequence of all keys in arbitrary order. The sequence
// is single-use but Keys may be called again for a fresh one.
func (m *MultiMap[K, V]) Keys() iter.Seq[K] {
	return func(yield func(K) bool) {
		m.t.each(func(s *Slot[K, V]) bool {
			return yield(s.key)
		})
	}
}

// Iter returns a sequence of one pair per key, pairing the key with
// the first value of its group, in arbitrary key order. Keys with
// empty groups are skipped.
func (m *MultiMap[K, V]) Iter() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		m.t.each(func(s *Slot[K, V]) bool {
			if s.group.len() == 0 {
				return true
			}
			return yield(s.key, s.group.Slice()[0])
		})
	}
}

// IterMut is Iter with the first value yielded as a pointer, so it can
// be updated in place.
func (m *MultiMap[K, V]) IterMut() iter.Seq2[K, *V] {
	return func(yield func(K, *V) bool) {
		m.t.each(func(s *Slot[K, V]) bool {
			if s.group.len() == 0 {
				return true
			}
			return yield(s.key, &s.group.Slice()[0])
		})
	}
}

// IterAll returns a sequence of one pair per key, pairing the key with
// its whole group in insertion order, in arbitrary key order. The
// yielded slices alias the map's storage, with the same caveats as
// GetSlice.
func (m *MultiMap[K, V]) IterAll() iter.Seq2[K, []V] {
	return func(yield func(K, []V) bool) {
		m.t.each(func(s *Slot[K, V]) bool {
			return yield(s.key, s.group.Slice())
		})
	}
}

// IterAllMut is IterAll with each group yielded as a mutable Values
// handle, as if by GetAll.
func (m *MultiMap[K, V]) IterAllMut() iter.Seq2[K, Values[V]] {
	return func(yield func(K, Values[V]) bool) {
		m.t.each(func(s *Slot[K, V]) bool {
			return yield(s.key, &s.group)
		})
	}
}

// Clone returns a deep copy of the map: same keys, same groups in the
// same order, same hashing strategy and allocator, independently
// mutable.
func (m *MultiMap[K, V]) Clone() *MultiMap[K, V] {
	c := &MultiMap[K, V]{
		t: table[K, V]{
			hash:  m.t.hash,
			seed:  m.t.seed,
			alloc: m.t.alloc,
			ctrls: emptyCtrls,
		},
	}
	if m.t.capacity > 0 {
		c.t.resize(m.t.capacity)
		m.t.each(func(s *Slot[K, V]) bool {
			h := uintptr(c.t.hash(c.t.seed, s.key))
			i := c.t.uncheckedAdd(h, s.key)
			c.t.slots[i].group = s.group.clone()
			c.t.used++
			return true
		})
	}
	c.t.checkInvariants()
	return c
}

// Equal reports whether two maps hold the same keys with element-wise
// equal groups. Group comparison is order-sensitive; key order is not
// defined and plays no part.
func Equal[K, V comparable](a, b *MultiMap[K, V]) bool {
	return EqualFunc(a, b, func(x, y V) bool { return x == y })
}

// EqualFunc is Equal with a caller-supplied value equality, allowing
// the two maps to hold different value types.
func EqualFunc[K comparable, V1, V2 any](
	a *MultiMap[K, V1], b *MultiMap[K, V2], eq func(V1, V2) bool,
) bool {
	if a.Len() != b.Len() {
		return false
	}
	equal := true
	a.t.each(func(s *Slot[K, V1]) bool {
		g := b.t.get(s.key)
		if g == nil || !slices.EqualFunc(s.group.Slice(), g.Slice(), eq) {
			equal = false
			return false
		}
		return true
	})
	return equal
}

// String renders the map as a mapping from each key to its full
// ordered group, e.g. {1: [42 1337], 2: [99]}. The key order is
// unspecified; the value order within a group is insertion order. An
// empty map renders as {}.
func (m *MultiMap[K, V]) String() string {
	var buf strings.Builder
	buf.WriteByte('{')
	first := true
	m.t.each(func(s *Slot[K, V]) bool {
		if !first {
			buf.WriteString(", ")
		}
		first = false
		fmt.Fprintf(&buf, "%v: %v", s.key, s.group.Slice())
		return true
	})
	buf.WriteByte('}')
	return buf.String()
}
