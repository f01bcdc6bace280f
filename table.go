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
	"math/bits"
	"strings"
	"unsafe"
)

// The key-group table is an open-addressing hash table in the style of
// Abseil's Swiss tables (https://abseil.io/about/design/swisstables).
// A hybrid between linear and quadratic probing is used: linear probing
// within windows of windowSize consecutive slots and quadratic probing
// at the window level. Alongside the slot array the table keeps a
// separate metadata array with one "control byte" per slot. 7 bits of a
// control byte are taken from hash(key) and the remaining bit indicates
// whether the slot is empty, full, deleted, or a sentinel. The control
// bytes allow a probe to compare 8 slots at a time through bit tricks
// (SWAR, SIMD within a register).
//
// The table's layout is N-1 slots where N is a power of 2, plus
// N-1+windowSize control bytes. The [N-1:N-1+windowSize] control bytes
// mirror the first windowSize control bytes so that a probe window
// starting near the end of the array always has valid bytes to look
// at. The control byte at index N-1 is always a sentinel, which is
// considered empty for the purposes of probing but is never available
// for storing an entry.
//
// Probing takes the top 57 bits of hash(key), masks them by the
// capacity, and checks the windowSize control bytes at that index.
// Windows are conceptual, not physical: they overlap, and no alignment
// is maintained. Probing continues through windows quadratically until
// a window containing an empty slot (or the sentinel) is found; the
// probe sequence visits every window exactly once, so termination is
// guaranteed in the worst case by the empty slot the growth margin
// always preserves.
//
// Deletion uses tombstones (ctrlDeleted) with an optimization that
// marks a slot as empty outright when we can prove the slot was never
// part of a full window, in which case no probe sequence can depend on
// it to continue. See wasNeverFull.
//
// Unlike a plain hash map, a slot here holds a key and its entire
// group of values (see group). The table consequently has no
// overwriting put: getOrAdd locates a key's group, creating an empty
// one if absent, and callers append into it.

const (
	debug = false

	windowSize       = 8
	maxAvgWindowLoad = 7

	ctrlEmpty    ctrl = 0b10000000
	ctrlDeleted  ctrl = 0b11111110
	ctrlSentinel ctrl = 0b11111111

	bitsetLSB     = 0x0101010101010101
	bitsetMSB     = 0x8080808080808080
	bitsetEmpty   = bitsetLSB * uint64(ctrlEmpty)
	bitsetDeleted = bitsetLSB * uint64(ctrlDeleted)
)

// Slot holds a key and its group of values. It is exported only so
// that an Allocator can allocate slot storage; its fields are not
// accessible outside this package.
type Slot[K comparable, V any] struct {
	key   K
	group group[V]
}

// table maps each distinct key to its group of values. The capacity is
// always of the form 2^N-1 so that it doubles as the probe mask.
type table[K comparable, V any] struct {
	// The hashing strategy applied to keys, and the per-table seed it
	// is called with.
	hash Hash[K]
	seed maphash.Seed
	// The allocator to use for the ctrls and slots slices.
	alloc Allocator[K, V]
	// ctrls is capacity+windowSize in length. ctrls[capacity] is always
	// ctrlSentinel, which is used to stop probe iteration. A copy of
	// the first windowSize-1 elements is mirrored into the remaining
	// slots so that a probe window starting near the end of the array
	// has valid control bytes to look at.
	//
	// When the table is empty, ctrls points at emptyCtrls, which is
	// never modified and exists so that probes need not check for a nil
	// slice.
	ctrls []ctrl
	// slots is capacity in length.
	slots []Slot[K, V]
	// The total number of slots (always 2^N-1). Used as a mask to
	// compute i%N with a bitwise AND.
	capacity uintptr
	// The number of filled slots, i.e. the number of distinct keys
	// resident in the table.
	used int
	// The number of slots we can still fill without rehashing.
	//
	// Tracked separately from used because tombstones do not return
	// growth capacity: a table filled with tombstones must rehash even
	// though it holds few keys, as probe sequences would otherwise grow
	// without bound.
	growthLeft int
}

var emptyCtrls = func() []ctrl {
	v := make([]ctrl, windowSize)
	for i := range v {
		v[i] = ctrlEmpty
	}
	return v
}()

// get returns the group stored under key, or nil if the key is not
// resident.
func (t *table[K, V]) get(key K) *group[V] {
	h := uintptr(t.hash(t.seed, key))

	// To find a key we construct a probe sequence from h1(h) and the
	// capacity and walk its windows. In each window we extract the
	// candidate slots whose control byte equals h2(h) and compare keys;
	// the 7 h2 bits make false candidates rare, so the expected number
	// of key comparisons per lookup stays below one even at high load.
	// A window containing an empty slot terminates the search:
	// insertion never places a key past such a window. Tombstones
	// behave like full slots that never match.
	seq := makeProbeSeq(h1(h), t.capacity)
	for ; ; seq = seq.next() {
		w := &t.ctrls[seq.offset]
		match := w.matchH2(h2(h))

		for match != 0 {
			bit := match.next()
			i := seq.offsetAt(bit)
			s := &t.slots[i]
			if key == s.key {
				return &s.group
			}
			match = match.clear(bit)
		}

		if w.matchEmpty() != 0 {
			return nil
		}
	}
}

// getOrAdd returns the group stored under key, adding the key with an
// empty group if it is not resident. The returned pointer is
// invalidated by any subsequent structural change to the table.
func (t *table[K, V]) getOrAdd(key K) *group[V] {
	h := uintptr(t.hash(t.seed, key))

	seq := makeProbeSeq(h1(h), t.capacity)
	if debug {
		fmt.Printf("getOrAdd(%v): %s\n", key, seq)
	}

	for ; ; seq = seq.next() {
		w := &t.ctrls[seq.offset]
		match := w.matchH2(h2(h))

		for match != 0 {
			bit := match.next()
			i := seq.offsetAt(bit)
			s := &t.slots[i]
			if key == s.key {
				return &s.group
			}
			match = match.clear(bit)
		}

		if w.matchEmpty() != 0 {
			// The key is absent. Before inserting we may decide the
			// table is getting overcrowded (the load factor exceeds 7/8
			// for big tables; small tables use a max load factor of 1).
			if t.growthLeft == 0 {
				t.rehash()
			}
			i := t.uncheckedAdd(h, key)
			t.used++
			t.checkInvariants()
			return &t.slots[i].group
		}
	}
}

// remove deletes key from the table, returning its group and whether
// the key was resident. Removing a non-resident key is a noop.
func (t *table[K, V]) remove(key K) (group[V], bool) {
	h := uintptr(t.hash(t.seed, key))

	seq := makeProbeSeq(h1(h), t.capacity)
	if debug {
		fmt.Printf("remove(%v): %s\n", key, seq)
	}

	for ; ; seq = seq.next() {
		w := &t.ctrls[seq.offset]
		match := w.matchH2(h2(h))

		for match != 0 {
			bit := match.next()
			i := seq.offsetAt(bit)
			s := &t.slots[i]
			if key == s.key {
				g := s.group
				t.used--
				*s = Slot[K, V]{}

				// We normally mark the slot with a tombstone and destroy
				// its contents. If we can prove the slot was never part
				// of a full window we may mark it empty instead, which
				// keeps probe sequences short. It is invalid to mark a
				// slot of a full window empty, as lookups would then
				// terminate at that window rather than probe onwards.
				if t.wasNeverFull(i) {
					t.setCtrl(i, ctrlEmpty)
					t.growthLeft++
				} else {
					t.setCtrl(i, ctrlDeleted)
				}
				t.checkInvariants()
				return g, true
			}
			match = match.clear(bit)
		}

		if w.matchEmpty() != 0 {
			t.checkInvariants()
			return group[V]{}, false
		}
	}
}

// each calls yield sequentially for every resident slot. If yield
// returns false, iteration stops. The table may be mutated during
// iteration, though there is no guarantee that mutations will be
// visible to the iteration: the capacity, controls, and slots are
// snapshotted up front so that iteration remains valid across a
// resize.
func (t *table[K, V]) each(yield func(s *Slot[K, V]) bool) {
	capacity, ctrls, slots := t.capacity, t.ctrls, t.slots

	for i := uintptr(0); i < capacity; i++ {
		// Match full slots, which have a high bit of zero.
		if (ctrls[i] & ctrlEmpty) != ctrlEmpty {
			if !yield(&slots[i]) {
				return
			}
		}
	}
}

// clear removes all keys and groups, retaining the allocated capacity.
func (t *table[K, V]) clear() {
	if t.capacity == 0 {
		// ctrls is the shared emptyCtrls; nothing to reset.
		return
	}
	for i := range t.ctrls {
		t.ctrls[i] = ctrlEmpty
	}
	t.ctrls[t.capacity] = ctrlSentinel
	clear(t.slots)
	t.used = 0
	t.growthLeft = t.emptyGrowthLeft()
	t.checkInvariants()
}

// close releases the table's memory back to its configured allocator.
// It is invalid to use a table after it has been closed, though close
// itself is idempotent.
func (t *table[K, V]) close() {
	if t.capacity > 0 {
		t.alloc.FreeSlots(t.slots)
		t.alloc.FreeControls(unsafeConvertSlice[uint8](t.ctrls))
		t.capacity = 0
		t.used = 0
		t.growthLeft = 0
	}
	t.ctrls = nil
	t.slots = nil
	t.alloc = nil
}

// emptyGrowthLeft returns the growth capacity of the table when no
// slot is occupied.
func (t *table[K, V]) emptyGrowthLeft() int {
	return usableCapacity(t.capacity)
}

// usableCapacity returns the number of keys a table of the given
// capacity can hold without rehashing. If the table fits in a single
// probe window we can fill every slot but one (an empty slot is needed
// to terminate lookups); otherwise the 7/8 load factor applies.
func usableCapacity(capacity uintptr) int {
	if capacity < windowSize {
		return int(capacity) - 1
	}
	return int((capacity * maxAvgWindowLoad) / windowSize)
}

// setCtrl sets the control byte at index i, taking care to mirror the
// byte to the end of the control array if i<windowSize. The mirror
// index is the identity for i in [windowSize,capacity); writing
// unconditionally is faster than testing for the head slots.
func (t *table[K, V]) setCtrl(i uintptr, v ctrl) {
	t.ctrls[i] = v
	t.ctrls[((i-(windowSize-1))&t.capacity)+(windowSize-1)] = v
}

// wasNeverFull returns true if index i was never part of a full
// window, in which case a deletion at i can produce an empty slot
// rather than a tombstone. We look at the windowSize-1 neighbors on
// either side of i: if the count of consecutive non-empty slots
// covering i reaches windowSize, some window over i may once have been
// full and a tombstone is required.
func (t *table[K, V]) wasNeverFull(i uintptr) bool {
	if t.capacity < windowSize {
		// The table fits entirely in a single window, so we will never
		// probe beyond it.
		return true
	}

	indexBefore := (i - windowSize) & t.capacity
	emptyAfter := (&t.ctrls[i]).matchEmpty()
	emptyBefore := (&t.ctrls[indexBefore]).matchEmpty()

	// matchEmpty yields 0x80 per empty byte and 0x00 otherwise. The
	// leading zeros of emptyBefore count the full run ending at i from
	// the left; the trailing zeros of emptyAfter count the full run
	// beginning at i from the right. Their sum is the length of the
	// longest run of full slots containing i.
	if emptyBefore != 0 && emptyAfter != 0 &&
		((bits.TrailingZeros64(uint64(emptyAfter))>>3)+
			(bits.LeadingZeros64(uint64(emptyBefore))>>3)) < windowSize {
		return true
	}
	return false
}

// uncheckedAdd inserts key, known not to be resident, and returns the
// index of its slot. The slot's group is left untouched (zeroed for a
// previously empty or deleted slot).
func (t *table[K, V]) uncheckedAdd(h uintptr, key K) uintptr {
	// Walk the probe sequence for hash(key) and claim the first empty
	// or deleted slot in the first window that has one.
	seq := makeProbeSeq(h1(h), t.capacity)
	if debug {
		fmt.Printf("add(%v): %s\n", key, seq)
	}

	for ; ; seq = seq.next() {
		w := &t.ctrls[seq.offset]
		match := w.matchEmptyOrDeleted()

		if match != 0 {
			i := seq.offsetAt(match.next())
			t.slots[i].key = key
			if t.ctrls[i] == ctrlEmpty {
				t.growthLeft--
			}
			t.setCtrl(i, ctrl(h2(h)))
			if debug {
				fmt.Printf("add(inserting): index=%d used=%d growth-left=%d\n",
					i, t.used+1, t.growthLeft)
			}
			return i
		}
	}
}

// rehash reclaims tombstoned slots, either in place or by resizing to
// double the capacity. Rehashing in place is worthwhile when >= 1/3 of
// the capacity is recoverable: the common case there is that entries
// stay where they are, while a resize must recompute every slot. The
// number of recoverable slots is known exactly because rehash is only
// called with growthLeft == 0, so every slot not in use within the
// load factor is a tombstone.
func (t *table[K, V]) rehash() {
	recoverable := (t.capacity*maxAvgWindowLoad)/windowSize - uintptr(t.used)
	if t.capacity > windowSize && recoverable >= t.capacity/3 {
		t.rehashInPlace()
	} else {
		t.resize(2*t.capacity + 1)
	}
}

// resize allocates a table of newCapacity (of the form 2^N-1, floored
// at windowSize-1), re-adds every resident key, moves its group, and
// discards the old arrays.
func (t *table[K, V]) resize(newCapacity uintptr) {
	if (1 + newCapacity) < windowSize {
		newCapacity = windowSize - 1
	}

	oldCtrls, oldSlots, oldCapacity := t.ctrls, t.slots, t.capacity
	t.slots = t.alloc.AllocSlots(int(newCapacity))
	t.ctrls = unsafeConvertSlice[ctrl](t.alloc.AllocControls(int(newCapacity + windowSize)))
	for i := range t.ctrls {
		t.ctrls[i] = ctrlEmpty
	}
	t.ctrls[newCapacity] = ctrlSentinel
	t.capacity = newCapacity
	t.growthLeft = t.emptyGrowthLeft()

	if debug {
		fmt.Printf("resize: capacity=%d->%d growth-left=%d\n",
			oldCapacity, newCapacity, t.growthLeft)
	}

	for i := uintptr(0); i < oldCapacity; i++ {
		c := oldCtrls[i]
		if c == ctrlEmpty || c == ctrlDeleted {
			continue
		}
		s := &oldSlots[i]
		h := uintptr(t.hash(t.seed, s.key))
		j := t.uncheckedAdd(h, s.key)
		t.slots[j].group = s.group
	}

	if oldCapacity > 0 {
		t.alloc.FreeSlots(oldSlots)
		t.alloc.FreeControls(unsafeConvertSlice[uint8](oldCtrls))
	}

	t.checkInvariants()
}

// rehashInPlace drops all tombstones without changing capacity.
func (t *table[K, V]) rehashInPlace() {
	// We first walk the control bytes and mark every deleted slot as
	// empty and every full slot as deleted. Marking deleted slots empty
	// drops the tombstones but fouls the probe invariant; marking full
	// slots deleted leaves a marker at every slot whose key must be
	// re-placed.
	for i := uintptr(0); i < t.capacity; i += windowSize {
		(&t.ctrls[i]).convertNonFullToEmptyAndFullToDeleted()
	}

	// Fix up the mirrored control bytes and the sentinel.
	for i, n := uintptr(0), uintptr(windowSize-1); i < n; i++ {
		t.ctrls[((i-(windowSize-1))&t.capacity)+(windowSize-1)] = t.ctrls[i]
	}
	t.ctrls[t.capacity] = ctrlSentinel

	// Now walk the deleted (previously full) slots and find the first
	// probe window each key can be placed in, re-establishing the probe
	// invariant. The loop maintains the invariant that there are no
	// deleted slots in [0,i): an entry may be moved into that range if
	// its best window is there, but no slot in it is ever set deleted.
	for i := uintptr(0); i < t.capacity; i++ {
		if t.ctrls[i] != ctrlDeleted {
			continue
		}

		s := &t.slots[i]
		h := uintptr(t.hash(t.seed, s.key))
		seq := makeProbeSeq(h1(h), t.capacity)
		desired := seq

		probeIndex := func(pos uintptr) uintptr {
			return ((pos - desired.offset) & t.capacity) / windowSize
		}

		var target uintptr
		for ; ; seq = seq.next() {
			w := &t.ctrls[seq.offset]
			if match := w.matchEmptyOrDeleted(); match != 0 {
				target = seq.offsetAt(match.next())
				break
			}
		}

		if i == target || probeIndex(i) == probeIndex(target) {
			// The entry already falls within its best probe window;
			// leave it where it is.
			t.setCtrl(i, ctrl(h2(h)))
			continue
		}

		if t.ctrls[target] == ctrlEmpty {
			// Transfer the entry to the empty target slot and mark slot
			// i as empty.
			t.setCtrl(target, ctrl(h2(h)))
			t.slots[target] = *s
			*s = Slot[K, V]{}
			t.setCtrl(i, ctrlEmpty)
			continue
		}

		if t.ctrls[target] == ctrlDeleted {
			// The target slot holds an entry of its own awaiting
			// placement. Swap the two and reprocess slot i, which now
			// holds the target's entry.
			t.setCtrl(target, ctrl(h2(h)))
			t.slots[i], t.slots[target] = t.slots[target], t.slots[i]
			i--
			continue
		}

		panic(fmt.Sprintf("multimap: ctrl at position %d (%02x) should be empty or deleted",
			target, t.ctrls[target]))
	}

	t.growthLeft = int((t.capacity*maxAvgWindowLoad)/windowSize) - t.used

	t.checkInvariants()
}

func (t *table[K, V]) checkInvariants() {
	if invariants {
		if t.capacity > 0 {
			// Verify the mirrored control bytes are in sync.
			for i, n := uintptr(0), uintptr(windowSize-1); i < n; i++ {
				j := ((i - (windowSize - 1)) & t.capacity) + (windowSize - 1)
				ci, cj := t.ctrls[i], t.ctrls[j]
				if ci != cj {
					panic(fmt.Sprintf("invariant failed: ctrl(%d)=%02x != ctrl(%d)=%02x\n%s",
						i, ci, j, cj, t.debugString()))
				}
			}
			// Verify the sentinel.
			if c := t.ctrls[t.capacity]; c != ctrlSentinel {
				panic(fmt.Sprintf("invariant failed: ctrl(%d): expected sentinel, but found %02x\n%s",
					t.capacity, c, t.debugString()))
			}
		}

		// For every resident slot, verify the key can be found again.
		// Count the used and deleted slots to cross-check the cached
		// counts.
		var used, deleted int
		for i := uintptr(0); i < t.capacity; i++ {
			switch c := t.ctrls[i]; c {
			case ctrlDeleted:
				deleted++
			case ctrlEmpty:
			case ctrlSentinel:
				panic(fmt.Sprintf("invariant failed: ctrl(%d): unexpected sentinel", i))
			default:
				s := &t.slots[i]
				if t.get(s.key) == nil {
					h := uintptr(t.hash(t.seed, s.key))
					panic(fmt.Sprintf("invariant failed: slot(%d): %v not found [h2=%02x h1=%07x]\n%s",
						i, s.key, h2(h), h1(h), t.debugString()))
				}
				used++
			}
		}

		if used != t.used {
			panic(fmt.Sprintf("invariant failed: found %d used slots, but used count is %d\n%s",
				used, t.used, t.debugString()))
		}

		growthLeft := int((t.capacity*maxAvgWindowLoad)/windowSize-uintptr(t.used)) - deleted
		if growthLeft != t.growthLeft {
			panic(fmt.Sprintf("invariant failed: found %d growthLeft, but expected %d\n%s",
				t.growthLeft, growthLeft, t.debugString()))
		}
	}
}

func (t *table[K, V]) debugString() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "capacity=%d  used=%d  growth-left=%d\n", t.capacity, t.used, t.growthLeft)
	for i := uintptr(0); i < t.capacity+windowSize; i++ {
		switch c := t.ctrls[i]; c {
		case ctrlEmpty:
			fmt.Fprintf(&buf, "  %4d: empty\n", i)
		case ctrlDeleted:
			fmt.Fprintf(&buf, "  %4d: deleted\n", i)
		case ctrlSentinel:
			fmt.Fprintf(&buf, "  %4d: sentinel\n", i)
		default:
			if i < t.capacity {
				s := &t.slots[i]
				h := uintptr(t.hash(t.seed, s.key))
				fmt.Fprintf(&buf, "  %4d: %v (%d values) [ctrl=%02x h2=%02x]\n",
					i, s.key, s.group.len(), c, h2(h))
			} else {
				fmt.Fprintf(&buf, "  %4d: [ctrl=%02x]\n", i, c)
			}
		}
	}
	return buf.String()
}

type bitset uint64

func (b bitset) next() uintptr {
	return uintptr(bits.TrailingZeros64(uint64(b))) >> 3
}

func (b bitset) clear(i uintptr) bitset {
	return b &^ (bitset(0x80) << (i << 3))
}

func (b bitset) String() string {
	var buf strings.Builder
	buf.Grow(windowSize)
	for i := 0; i < windowSize; i++ {
		if (b & (bitset(0x80) << (i << 3))) != 0 {
			buf.WriteString("1")
		} else {
			buf.WriteString("0")
		}
	}
	return buf.String()
}

// Each slot has a control byte with one of four states: empty,
// deleted, full, and the sentinel. Their bit patterns are:
//
//	   empty: 1 0 0 0 0 0 0 0
//	 deleted: 1 1 1 1 1 1 1 0
//	    full: 0 h h h h h h h  // h represents the H2 hash bits
//	sentinel: 1 1 1 1 1 1 1 1
//
// The match methods treat the receiver as the first byte of a window
// of windowSize control bytes and inspect all of them with a single
// 8-byte load; they assume a little-endian CPU (asserted by a test).
type ctrl uint8

func (c *ctrl) matchH2(h uintptr) bitset {
	// NB: This produces false positive matches for control byte
	// sequences of the form 2^N followed by 2^N+1 when h is 2^N: the
	// borrow of the subtraction leaks into the neighboring byte. The
	// false positives are a rare inefficiency, not a correctness
	// problem: they never occur for ctrlEmpty, ctrlDeleted, or
	// ctrlSentinel, and the subsequent key comparison rejects them.
	v := *(*uint64)((unsafe.Pointer)(c)) ^ (bitsetLSB * uint64(h))
	return bitset(((v - bitsetLSB) &^ v) & bitsetMSB)
}

// matchEmpty returns a bitset where each byte is 0x80 if that control
// byte indicates an empty slot (and 0x00 otherwise).
func (c *ctrl) matchEmpty() bitset {
	v := *(*uint64)((unsafe.Pointer)(c))
	// An empty slot is              1000 0000.
	// A deleted or sentinel slot is 1111 111?.
	// A slot is empty iff bit 7 is set and bit 1 is not.
	return bitset((v &^ (v << 6)) & bitsetMSB)
}

// matchEmptyOrDeleted returns a bitset where each byte is 0x80 if that
// control byte indicates an empty or deleted slot (and 0x00
// otherwise).
func (c *ctrl) matchEmptyOrDeleted() bitset {
	// An empty slot is  1000 0000.
	// A deleted slot is 1111 1110.
	// The sentinel is   1111 1111.
	// A slot is empty or deleted iff bit 7 is set and bit 0 is not.
	v := *(*uint64)((unsafe.Pointer)(c))
	return bitset((v &^ (v << 7)) & bitsetMSB)
}

// convertNonFullToEmptyAndFullToDeleted converts deleted or sentinel
// control bytes in a window to empty control bytes, and control bytes
// of full slots to deleted control bytes.
func (c *ctrl) convertNonFullToEmptyAndFullToDeleted() {
	// Select the MSB, invert, add 1 if the MSB was set, and zero out
	// the low bit:
	//
	//  - if the MSB was set (empty, deleted, or sentinel):
	//     v:             1000 0000
	//     ^v:            0111 1111
	//     ^v + (v >> 7): 1000 0000
	//     &^ bitsetLSB:  1000 0000  = empty slot.
	//
	//  - if the MSB was not set (full):
	//     v:             0000 0000
	//     ^v:            1111 1111
	//     ^v + (v >> 7): 1111 1111
	//     &^ bitsetLSB:  1111 1110  = deleted slot.
	p := (*uint64)((unsafe.Pointer)(c))
	v := *p & bitsetMSB
	*p = (^v + (v >> 7)) &^ bitsetLSB
}

// probeSeq maintains the state for a probe sequence that visits probe
// windows in a triangular progression of the form
//
//	p(i) := windowSize * (i^2 + i)/2 + hash (mod mask+1)
//
// The use of windowSize ensures that consecutive probe steps do not
// overlap; the sequence effectively enumerates window start offsets
// (not aligned to any boundary). Since (i^2+i)/2 is a bijection in
// Z/(2^m), the sequence visits every window exactly once when the
// number of windows is a power of two, which bounds probing by the
// capacity. See https://en.wikipedia.org/wiki/Quadratic_probing.
type probeSeq struct {
	mask   uintptr
	offset uintptr
	index  uintptr
}

func makeProbeSeq(hash, mask uintptr) probeSeq {
	return probeSeq{
		mask:   mask,
		offset: hash & mask,
		index:  0,
	}
}

func (s probeSeq) next() probeSeq {
	s.index += windowSize
	s.offset = (s.offset + s.index) & s.mask
	return s
}

func (s probeSeq) offsetAt(i uintptr) uintptr {
	return (s.offset + i) & s.mask
}

func (s probeSeq) String() string {
	return fmt.Sprintf("mask=%d offset=%d index=%d", s.mask, s.offset, s.index)
}

func unsafeConvertSlice[Dest any, Src any](s []Src) []Dest {
	return unsafe.Slice((*Dest)(unsafe.Pointer(unsafe.SliceData(s))), len(s))
}
