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

import "hash/maphash"

// Hash is a hashing strategy for keys of type K. A MultiMap calls its
// hash with the per-map seed chosen at construction time. A strategy
// must be deterministic for a given seed and should distribute its
// output well across all 64 bits; the table consumes both the high
// bits (probe placement) and the low 7 bits (control bytes) of the
// result.
//
// The default strategy is maphash.Comparable, the same collision
// resistant hashing the Go runtime uses for the builtin map. A custom
// strategy can be substituted with WithHash without changing any table
// semantics.
type Hash[K comparable] func(seed maphash.Seed, key K) uint64

// h1 extracts the probe-placement portion of a hash: the 57 upper
// bits.
func h1(h uintptr) uintptr {
	return h >> 7
}

// h2 extracts the 7 bits not used for h1. These are stored in the
// control byte of an occupied slot.
func h2(h uintptr) uintptr {
	return h & 0x7f
}
