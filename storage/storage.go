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

// Package storage persists the working memory of sessions.
package storage

import (
	"context"
	"sort"

	"github.com/Comcast/jess/core"
)

// FactState is a presentation of a fact as stored in a Storage
// system.
type FactState struct {
	// ID is the fact's identity in the engine that wrote it.
	ID int `json:"id"`

	// Fact is the core.Fact's Map.
	Fact map[string]interface{} `json:"fact,omitempty" yaml:"fact,omitempty"`

	// Deleted indicates that the fact should be removed from
	// storage.
	Deleted bool `json:"-" yaml:"-"`
}

// Storage is a persistence interface for sessions' facts.
type Storage interface {
	Open(ctx context.Context) error

	Close(ctx context.Context) error

	MakeSession(ctx context.Context, sid string) error

	RemSession(ctx context.Context, sid string) error

	// LoadFacts returns the session's stored facts in order of
	// ID.  A session that doesn't exist has no facts.
	LoadFacts(ctx context.Context, sid string) ([]*FactState, error)

	// WriteFacts stores facts and removes those marked Deleted.
	WriteFacts(ctx context.Context, sid string, fss []*FactState) error
}

// AsFactStates presents facts for storage.  The initial-fact isn't
// stored since every Reset asserts it.
func AsFactStates(fs []*core.Fact) []*FactState {
	acc := make([]*FactState, 0, len(fs))
	for _, f := range fs {
		if f.Type == core.InitialFact {
			continue
		}
		acc = append(acc, &FactState{
			ID:   f.ID,
			Fact: f.Map(),
		})
	}
	return acc
}

// AsFacts makes facts (ready for Assert) from stored states, which
// are taken in order of ID.
func AsFacts(fss []*FactState) ([]*core.Fact, error) {
	sorted := make([]*FactState, 0, len(fss))
	for _, fs := range fss {
		if !fs.Deleted {
			sorted = append(sorted, fs)
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	acc := make([]*core.Fact, len(sorted))
	for i, fs := range sorted {
		f, err := core.FactFromMap(fs.Fact)
		if err != nil {
			return nil, err
		}
		acc[i] = f
	}
	return acc, nil
}

// Changes compares the identities of the stored facts with the
// current facts.  The result has every current fact that isn't
// stored and a Deleted entry for every stored fact that's gone.
// Facts never change in place, so a stored identity is up to date.
//
// The returned set is what will be stored after the changes are
// written.
func Changes(stored map[int]bool, facts []*core.Fact) ([]*FactState, map[int]bool) {
	now := make(map[int]bool, len(facts))
	var acc []*FactState
	for _, fs := range AsFactStates(facts) {
		now[fs.ID] = true
		if !stored[fs.ID] {
			acc = append(acc, fs)
		}
	}
	ids := make([]int, 0, len(stored))
	for id := range stored {
		if !now[id] {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	for _, id := range ids {
		acc = append(acc, &FactState{
			ID:      id,
			Deleted: true,
		})
	}
	return acc, now
}
