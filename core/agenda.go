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

import (
	"fmt"
	"sort"
	"strings"
)

// Activation is a rule together with a token that satisfies its
// patterns.
type Activation struct {
	rule  *compiledRule
	token *Token
	seq   int
	index int
	fired bool
}

// Rule returns the activated rule.
func (a *Activation) Rule() *Rule {
	return a.rule.rule
}

// Salience is the rule's salience.
func (a *Activation) Salience() int {
	return a.rule.rule.Salience
}

// Token returns the matching token.
func (a *Activation) Token() *Token {
	return a.token
}

// Facts returns the facts (as stored) that matched the rule's
// patterns.  The position of a negated pattern holds nil.
func (a *Activation) Facts() []*Fact {
	fs := a.token.Facts()
	for i, f := range fs {
		if f.ID < 0 {
			fs[i] = nil
			continue
		}
		fs[i] = f.Original()
	}
	return fs
}

// FactIDs returns the identities of the matching facts, skipping
// negated patterns.
func (a *Activation) FactIDs() []int {
	acc := make([]int, 0, a.token.Len())
	for _, f := range a.token.Facts() {
		if 0 <= f.ID {
			acc = append(acc, f.ID)
		}
	}
	return acc
}

// Bindings gives the values of the rule's variables.
func (a *Activation) Bindings() Bindings {
	return a.rule.bindings(a.token)
}

func (a *Activation) String() string {
	ids := a.FactIDs()
	ss := make([]string, len(ids))
	for i, id := range ids {
		ss[i] = fmt.Sprintf("f-%d", id)
	}
	return fmt.Sprintf("[%s] %s: %s", a.rule.rule.Name, strings.Join(ss, ","), a.token)
}

// Strategy breaks ties among activations with the same salience.
type Strategy int

const (
	// Depth prefers the newest activation.
	Depth Strategy = iota

	// Breadth prefers the oldest activation.
	Breadth
)

// ParseStrategy accepts "depth" and "breadth".
func ParseStrategy(s string) (Strategy, error) {
	switch s {
	case "", "depth":
		return Depth, nil
	case "breadth":
		return Breadth, nil
	}
	return Depth, fmt.Errorf("unknown strategy %q", s)
}

func (s Strategy) String() string {
	if s == Breadth {
		return "breadth"
	}
	return "depth"
}

// agenda is an unordered set of pending activations.
type agenda struct {
	acts     []*Activation
	seq      int
	strategy Strategy
}

func (ag *agenda) add(a *Activation) {
	ag.seq++
	a.seq = ag.seq
	a.index = len(ag.acts)
	ag.acts = append(ag.acts, a)
}

func (ag *agenda) remove(a *Activation) bool {
	i := a.index
	if i < 0 || len(ag.acts) <= i || ag.acts[i] != a {
		return false
	}
	last := len(ag.acts) - 1
	ag.acts[i] = ag.acts[last]
	ag.acts[i].index = i
	ag.acts[last] = nil
	ag.acts = ag.acts[:last]
	a.index = -1
	return true
}

func (ag *agenda) before(a, b *Activation) bool {
	if sa, sb := a.Salience(), b.Salience(); sa != sb {
		return sa > sb
	}
	if ag.strategy == Breadth {
		return a.seq < b.seq
	}
	return a.seq > b.seq
}

// next finds (but doesn't remove) the activation to fire next.
func (ag *agenda) next() *Activation {
	var best *Activation
	for _, a := range ag.acts {
		if best == nil || ag.before(a, best) {
			best = a
		}
	}
	return best
}

func (ag *agenda) clear() {
	for _, a := range ag.acts {
		a.index = -1
	}
	ag.acts = nil
}

// sorted returns the activations in firing order.
func (ag *agenda) sorted() []*Activation {
	acc := make([]*Activation, len(ag.acts))
	copy(acc, ag.acts)
	sort.Slice(acc, func(i, j int) bool {
		return ag.before(acc[i], acc[j])
	})
	return acc
}
