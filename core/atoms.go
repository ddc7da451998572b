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

import "sync"

// Atom is an interned name.  Type tests compare Atoms rather than
// strings.
type Atom int32

// NoAtom is never returned by Intern.
const NoAtom Atom = -1

// Atoms is an intern table.  Each Engine has its own.
type Atoms struct {
	sync.RWMutex
	ids   map[string]Atom
	names []string
}

func NewAtoms() *Atoms {
	return &Atoms{
		ids: make(map[string]Atom, 32),
	}
}

// Intern returns the Atom for the given name, creating it if
// necessary.
func (as *Atoms) Intern(name string) Atom {
	as.RLock()
	a, have := as.ids[name]
	as.RUnlock()
	if have {
		return a
	}

	as.Lock()
	defer as.Unlock()
	if a, have = as.ids[name]; have {
		return a
	}
	a = Atom(len(as.names))
	as.names = append(as.names, name)
	as.ids[name] = a
	return a
}

// Lookup does not intern.
func (as *Atoms) Lookup(name string) (Atom, bool) {
	as.RLock()
	a, have := as.ids[name]
	as.RUnlock()
	return a, have
}

// Name returns the name for the Atom (or "" if there isn't one).
func (as *Atoms) Name(a Atom) string {
	as.RLock()
	defer as.RUnlock()
	if a < 0 || int(a) >= len(as.names) {
		return ""
	}
	return as.names[a]
}

func (as *Atoms) Len() int {
	as.RLock()
	defer as.RUnlock()
	return len(as.names)
}
