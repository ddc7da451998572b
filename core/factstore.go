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

import "sort"

// factStore indexes live facts by identity and by content.
type factStore struct {
	byID  map[int]*Fact
	byKey map[string]*Fact
	next  int
}

func newFactStore() *factStore {
	return &factStore{
		byID:  make(map[int]*Fact, 64),
		byKey: make(map[string]*Fact, 64),
	}
}

func (s *factStore) find(f *Fact) *Fact {
	return s.byKey[f.Key()]
}

func (s *factStore) get(id int) *Fact {
	return s.byID[id]
}

// add stamps the next identity on f and stores it.
func (s *factStore) add(f *Fact) {
	f.ID = s.next
	s.next++
	s.byID[f.ID] = f
	s.byKey[f.Key()] = f
}

func (s *factStore) remove(f *Fact) {
	delete(s.byID, f.ID)
	delete(s.byKey, f.Key())
}

func (s *factStore) len() int {
	return len(s.byID)
}

// list returns the live facts in identity order.
func (s *factStore) list() []*Fact {
	acc := make([]*Fact, 0, len(s.byID))
	for _, f := range s.byID {
		acc = append(acc, f)
	}
	sort.Slice(acc, func(i, j int) bool {
		return acc[i].ID < acc[j].ID
	})
	return acc
}

// clear forgets everything and restarts identities at zero.
func (s *factStore) clear() {
	s.byID = make(map[int]*Fact, 64)
	s.byKey = make(map[string]*Fact, 64)
	s.next = 0
}
