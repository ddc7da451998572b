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

package sio

import (
	"context"
	"encoding/json"
	"os"
	"sort"
	"sync"

	"github.com/Comcast/jess/storage"
)

// JSONStore is a primitive facility to store a session's facts as
// JSON in a file.
//
// Not glamorous or efficient.
type JSONStore struct {
	// StateOutputFilename, if not empty, will be the filename
	// for writing facts as JSON.
	StateOutputFilename string

	// StateInputFilename optionally gives a filename that
	// contains facts to return when Read is called.
	StateInputFilename string

	// State maps fact identities to facts.
	State map[int]map[string]interface{}

	WG sync.WaitGroup

	mu sync.Mutex
}

func NewJSONStore() *JSONStore {
	return &JSONStore{
		StateOutputFilename: "state.json",
	}
}

// Start does nothing.
func (s *JSONStore) Start(ctx context.Context) error {
	return nil
}

// Stop writes out the state if requested by StateOutputFilename.
//
// This function first waits for s.WG if told to.
func (s *JSONStore) Stop(ctx context.Context, wait bool) error {
	if wait {
		s.WG.Wait()
	}
	return s.WriteState(ctx)
}

// Read reads s.StateInputFilename, which should contain a JSON array
// of facts as written by WriteState.
//
// The State starts over empty since a Session gives restored facts
// new identities (and reports them via Update).
func (s *JSONStore) Read(ctx context.Context) ([]*storage.FactState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.StateOutputFilename != "" {
		s.State = make(map[int]map[string]interface{})
	}
	if s.StateInputFilename == "" {
		return nil, nil
	}
	js, err := os.ReadFile(s.StateInputFilename)
	if err != nil {
		return nil, err
	}
	var fss []*storage.FactState
	if err = json.Unmarshal(js, &fss); err != nil {
		return nil, err
	}
	return fss, nil
}

// Facts returns the State in order of fact identity.
func (s *JSONStore) Facts() []*storage.FactState {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc := make([]*storage.FactState, 0, len(s.State))
	for id, m := range s.State {
		acc = append(acc, &storage.FactState{
			ID:   id,
			Fact: m,
		})
	}
	sort.Slice(acc, func(i, j int) bool { return acc[i].ID < acc[j].ID })
	return acc
}

// WriteState writes all of the facts as JSON.
func (s *JSONStore) WriteState(ctx context.Context) error {
	if s.State == nil || s.StateOutputFilename == "" {
		return nil
	}
	js, err := json.MarshalIndent(s.Facts(), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.StateOutputFilename, js, 0644)
}

// Update applies the Result's changes to the State (if any).
func (s *JSONStore) Update(r *Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.State
	if state == nil {
		return nil
	}
	for _, fs := range r.Changed {
		if fs.Deleted {
			delete(state, fs.ID)
		} else {
			state[fs.ID] = fs.Fact
		}
	}
	return nil
}
