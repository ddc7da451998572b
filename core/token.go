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

import "strings"

// Tag says what a Token is doing to the network.
type Tag int

const (
	TagAdd    Tag = iota // A fact arrived.
	TagRemove            // A fact left.
	TagUpdate            // Priming a new rule with an existing fact.
	TagClear             // Flush all memories.
)

func (t Tag) String() string {
	switch t {
	case TagAdd:
		return "ADD"
	case TagRemove:
		return "REMOVE"
	case TagUpdate:
		return "UPDATE"
	case TagClear:
		return "CLEAR"
	}
	return "?"
}

// Token is an immutable, parent-linked sequence of facts: one fact
// per pattern matched so far.
type Token struct {
	parent   *Token
	fact     *Fact
	size     int
	sortcode int
	tag      Tag

	// negcnt is only used by the negated join that stored a copy
	// of this token.
	negcnt int
}

func newToken(f *Fact, tag Tag) *Token {
	return &Token{
		fact:     f,
		size:     1,
		sortcode: f.ID,
		tag:      tag,
	}
}

// extend makes a child token with one more fact.
func (t *Token) extend(f *Fact, tag Tag) *Token {
	return &Token{
		parent:   t,
		fact:     f,
		size:     t.size + 1,
		sortcode: t.sortcode + f.ID,
		tag:      tag,
	}
}

// copy returns a shallow copy (with a fresh negation count) that a
// negated join can own.
func (t *Token) copy() *Token {
	c := *t
	c.negcnt = 0
	return &c
}

// Len is the number of facts in the token.
func (t *Token) Len() int {
	return t.size
}

// Tag returns the token's tag.
func (t *Token) Tag() Tag {
	return t.tag
}

// SortCode is the sum of the token's fact identities.
func (t *Token) SortCode() int {
	return t.sortcode
}

// Fact returns the i-th fact (starting at 0), which takes time
// proportional to the token's length.
func (t *Token) Fact(i int) *Fact {
	if i < 0 || t.size <= i {
		return nil
	}
	for x := t; x != nil; x = x.parent {
		if x.size == i+1 {
			return x.fact
		}
	}
	return nil
}

// Facts returns the token's facts in pattern order.
func (t *Token) Facts() []*Fact {
	acc := make([]*Fact, t.size)
	for x := t; x != nil; x = x.parent {
		acc[x.size-1] = x.fact
	}
	return acc
}

// dataEquals compares the facts structurally.  Tags and negation
// counts are ignored.
func (t *Token) dataEquals(o *Token) bool {
	if t == o {
		return true
	}
	if t.size != o.size || t.sortcode != o.sortcode {
		return false
	}
	for a, b := t, o; a != nil; a, b = a.parent, b.parent {
		if a.parent == b.parent && a.fact == b.fact {
			return true
		}
		if !a.fact.dataEquals(b.fact) {
			return false
		}
	}
	return true
}

func (t *Token) String() string {
	fs := t.Facts()
	ss := make([]string, len(fs))
	for i, f := range fs {
		if f.ID < 0 {
			ss[i] = "<none>"
			continue
		}
		ss[i] = f.String()
	}
	return t.tag.String() + "[" + strings.Join(ss, " ") + "]"
}
