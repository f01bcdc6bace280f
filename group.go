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
	"iter"
	"slices"
)

// inlineValues is the number of values a group stores directly in its
// table slot before spilling to a heap allocation. The threshold is a
// tuning knob of the group representation, not part of the observable
// contract: a group behaves identically at any inline capacity, it just
// allocates earlier or later. One inline value keeps slots small while
// still making the common single-value-per-key case allocation free.
const inlineValues = 1

// Values is a mutable handle to the group of values stored under a
// single key. It is the only part of the API that exposes raw group
// mutation; everything else goes through MultiMap methods. The
// interface is deliberately narrow so that the group's backing
// representation can change without changing the public contract.
//
// Popping every value through a Values handle leaves the key present
// with an empty group. See the MultiMap comment for how such a key is
// observed.
type Values[V any] interface {
	// Slice returns the group as a mutable slice in insertion order.
	// The slice aliases the group's storage: element writes are visible
	// in the map, but the slice must not be grown and is invalidated by
	// Push, Pop, or any structural operation on the map.
	Slice() []V

	// Push appends a value to the end of the group.
	Push(v V)

	// Pop removes and returns the last value of the group, reporting
	// ok=false if the group is empty.
	Pop() (v V, ok bool)
}

// group is the ordered sequence of values stored under one key. The
// first inlineValues values live directly in the struct (and therefore
// directly in the table slot); further values spill the whole group to
// a heap slice. Once spilled a group stays spilled.
//
// The zero value is an empty group.
type group[V any] struct {
	// n is the number of inline values. It is meaningful only while
	// spill is nil; a spilled group tracks its length in the slice
	// header.
	n     int
	small [inlineValues]V
	spill []V
}

func (g *group[V]) len() int {
	if g.spill != nil {
		return len(g.spill)
	}
	return g.n
}

// Slice returns the group's values as a contiguous mutable slice in
// insertion order. For an unspilled group the slice points into the
// table slot itself.
func (g *group[V]) Slice() []V {
	if g.spill != nil {
		return g.spill
	}
	return g.small[:g.n]
}

// Push appends a value, spilling to the heap if the inline storage is
// full.
func (g *group[V]) Push(v V) {
	if g.spill == nil && g.n < inlineValues {
		g.small[g.n] = v
		g.n++
		return
	}
	g.spillOut(1)
	g.spill = append(g.spill, v)
}

// Pop removes and returns the last value.
func (g *group[V]) Pop() (V, bool) {
	var zero V
	if g.spill != nil {
		l := len(g.spill)
		if l == 0 {
			return zero, false
		}
		v := g.spill[l-1]
		g.spill[l-1] = zero
		g.spill = g.spill[:l-1]
		return v, true
	}
	if g.n == 0 {
		return zero, false
	}
	g.n--
	v := g.small[g.n]
	g.small[g.n] = zero
	return v, true
}

// spillOut moves the inline values to a heap slice with room for extra
// additional values. A no-op if the group has already spilled.
func (g *group[V]) spillOut(extra int) {
	if g.spill != nil {
		return
	}
	s := make([]V, 0, g.n+extra)
	s = append(s, g.small[:g.n]...)
	clear(g.small[:g.n])
	g.spill = s
	g.n = 0
}

// appendSlice appends the values in order, growing the backing storage
// at most once.
func (g *group[V]) appendSlice(vs []V) {
	if g.spill == nil && g.n+len(vs) <= inlineValues {
		copy(g.small[g.n:], vs)
		g.n += len(vs)
		return
	}
	g.spillOut(len(vs))
	g.spill = append(g.spill, vs...)
}

// appendSeq appends the sequence's values in order.
func (g *group[V]) appendSeq(seq iter.Seq[V]) {
	for v := range seq {
		g.Push(v)
	}
}

// retain keeps only the values for which keep returns true, preserving
// the relative order of the survivors. Dropped tail elements are zeroed
// so that values no longer in the group do not keep memory alive.
func (g *group[V]) retain(keep func(v V) bool) {
	s := g.Slice()
	j := 0
	for _, v := range s {
		if keep(v) {
			s[j] = v
			j++
		}
	}
	g.truncate(j)
}

func (g *group[V]) truncate(j int) {
	if g.spill != nil {
		clear(g.spill[j:])
		g.spill = g.spill[:j]
		return
	}
	clear(g.small[j:g.n])
	g.n = j
}

// take returns the group's values as an owned slice in insertion
// order. Inline values are copied out; a spilled group hands over its
// backing slice. The group must not be used afterwards.
func (g *group[V]) take() []V {
	if g.spill != nil {
		return g.spill
	}
	if g.n == 0 {
		return nil
	}
	vs := make([]V, g.n)
	copy(vs, g.small[:g.n])
	return vs
}

// clone returns an independent copy of the group.
func (g *group[V]) clone() group[V] {
	c := *g
	if g.spill != nil {
		c.spill = slices.Clone(g.spill)
	}
	return c
}
