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

package storage

import (
	"context"
	"sort"
	"sync"
)

// MemStorage keeps facts in memory, which is handy for tests and for
// sessions that only need their facts while the process runs.
type MemStorage struct {
	sync.Mutex

	sessions map[string]map[int]*FactState
}

func NewMemStorage() *MemStorage {
	return &MemStorage{
		sessions: make(map[string]map[int]*FactState),
	}
}

func (s *MemStorage) Open(ctx context.Context) error {
	return nil
}

func (s *MemStorage) Close(ctx context.Context) error {
	return nil
}

func (s *MemStorage) MakeSession(ctx context.Context, sid string) error {
	s.Lock()
	if _, have := s.sessions[sid]; !have {
		s.sessions[sid] = make(map[int]*FactState)
	}
	s.Unlock()
	return nil
}

func (s *MemStorage) RemSession(ctx context.Context, sid string) error {
	s.Lock()
	delete(s.sessions, sid)
	s.Unlock()
	return nil
}

func (s *MemStorage) LoadFacts(ctx context.Context, sid string) ([]*FactState, error) {
	s.Lock()
	defer s.Unlock()

	fss := make([]*FactState, 0, len(s.sessions[sid]))
	for _, fs := range s.sessions[sid] {
		fss = append(fss, fs)
	}
	sort.Slice(fss, func(i, j int) bool { return fss[i].ID < fss[j].ID })
	return fss, nil
}

// WriteFacts creates the session if necessary.
func (s *MemStorage) WriteFacts(ctx context.Context, sid string, fss []*FactState) error {
	s.Lock()
	defer s.Unlock()

	facts, have := s.sessions[sid]
	if !have {
		facts = make(map[int]*FactState, len(fss))
		s.sessions[sid] = facts
	}
	for _, fs := range fss {
		if fs.Deleted {
			delete(facts, fs.ID)
			continue
		}
		facts[fs.ID] = fs
	}
	return nil
}
