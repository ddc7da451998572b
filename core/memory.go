/* Copyright 2019 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package core

// MemoryBuckets is the number of sort-code buckets in each token
// memory.
var MemoryBuckets = 101

type memEntry struct {
	t    *Token
	next *memEntry
}

// tokenMemory holds tokens bucketed by sort code.  Tokens that
// collide are chained in insertion order, so iteration order is
// deterministic.
type tokenMemory struct {
	buckets []*memEntry
	size    int
}

func newTokenMemory() *tokenMemory {
	return &tokenMemory{
		buckets: make([]*memEntry, MemoryBuckets),
	}
}

func (m *tokenMemory) bucket(t *Token) int {
	n := len(m.buckets)
	return ((t.sortcode % n) + n) % n
}

func (m *tokenMemory) add(t *Token) {
	e := &memEntry{t: t}
	i := m.bucket(t)
	if m.buckets[i] == nil {
		m.buckets[i] = e
	} else {
		last := m.buckets[i]
		for last.next != nil {
			last = last.next
		}
		last.next = e
	}
	m.size++
}

// find returns the stored token that's data-equal to t (or nil).
func (m *tokenMemory) find(t *Token) *Token {
	for e := m.buckets[m.bucket(t)]; e != nil; e = e.next {
		if e.t.dataEquals(t) {
			return e.t
		}
	}
	return nil
}

// remove deletes and returns the stored token that's data-equal to t
// (or returns nil).
func (m *tokenMemory) remove(t *Token) *Token {
	i := m.bucket(t)
	var prev *memEntry
	for e := m.buckets[i]; e != nil; prev, e = e, e.next {
		if !e.t.dataEquals(t) {
			continue
		}
		if prev == nil {
			m.buckets[i] = e.next
		} else {
			prev.next = e.next
		}
		m.size--
		return e.t
	}
	return nil
}

// each calls f on every token until f returns an error.
func (m *tokenMemory) each(f func(*Token) error) error {
	for _, e := range m.buckets {
		for ; e != nil; e = e.next {
			if err := f(e.t); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *tokenMemory) clear() {
	for i := range m.buckets {
		m.buckets[i] = nil
	}
	m.size = 0
}

func (m *tokenMemory) len() int {
	return m.size
}
