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
	"strings"
)

// Rule is a named set of patterns (the left-hand side) and a list of
// Actions (the right-hand side).
//
// A Rule is what a front end (see package rules) gives to
// Engine.AddRule.
type Rule struct {
	Name     string     `json:"name" yaml:"name"`
	Doc      string     `json:"doc,omitempty" yaml:"doc,omitempty"`
	Salience int        `json:"salience,omitempty" yaml:"salience,omitempty"`
	Patterns []*Pattern `json:"patterns" yaml:"patterns"`
	Actions  []Action   `json:"-" yaml:"-"`
}

// Pattern is one conditional element.
//
// A Pattern with Test set has no Type and no Slots.  Its Calls must
// all return a true value.
type Pattern struct {
	Type    string        `json:"type,omitempty" yaml:"type,omitempty"`
	Negated bool          `json:"not,omitempty" yaml:"not,omitempty"`
	Test    bool          `json:"test,omitempty" yaml:"test,omitempty"`
	Calls   []*FuncCall   `json:"-" yaml:"-"`
	Binding string        `json:"bind,omitempty" yaml:"bind,omitempty"`
	Slots   []SlotPattern `json:"slots,omitempty" yaml:"slots,omitempty"`
}

// SlotPattern constrains one slot.  A single-valued slot has exactly
// one element.  A multislot (including the data of an ordered fact,
// which has the empty Name) has one element per field.  Each element
// is a conjunction of Tests.
type SlotPattern struct {
	Name     string   `json:"name,omitempty" yaml:"name,omitempty"`
	Elements [][]Test `json:"elements" yaml:"elements"`
}

// TestKind says how a Test's Value applies to a field.
type TestKind int

const (
	// TestEq: the field equals the literal, binds or matches the
	// variable, or equals the result of the call.
	TestEq TestKind = iota

	// TestNeq is the negation of TestEq.
	TestNeq

	// TestPred: the call must return a true value.
	TestPred

	// TestRet: the field must equal the value the call returns.
	TestRet
)

func (k TestKind) String() string {
	switch k {
	case TestEq:
		return "eq"
	case TestNeq:
		return "neq"
	case TestPred:
		return "pred"
	case TestRet:
		return "ret"
	}
	return "?"
}

// Test is one constraint on a field.
type Test struct {
	Kind  TestKind `json:"kind" yaml:"kind"`
	Value Value    `json:"value" yaml:"value"`
}

func (t Test) String() string {
	switch t.Kind {
	case TestNeq:
		return "~" + t.Value.String()
	case TestPred:
		return ":" + t.Value.String()
	case TestRet:
		return "=" + t.Value.String()
	}
	if t.Value.Type() == CallType {
		return "=" + t.Value.String()
	}
	return t.Value.String()
}

func (t Test) multi() bool {
	return t.Value.Type() == MultiVariableType
}

// Eq makes an equality test (a literal or a variable).
func Eq(v Value) Test {
	return Test{Kind: TestEq, Value: v}
}

// Neq makes an inequality test.
func Neq(v Value) Test {
	return Test{Kind: TestNeq, Value: v}
}

// Pred makes a predicate test.
func Pred(c *FuncCall) Test {
	return Test{Kind: TestPred, Value: CallOf(c)}
}

// Ret makes a return-value test.
func Ret(c *FuncCall) Test {
	return Test{Kind: TestRet, Value: CallOf(c)}
}

// Elem makes one element from a conjunction of tests.
func Elem(ts ...Test) []Test {
	return ts
}

// OrderedPattern makes a pattern for an ordered fact.  Each element
// is either a Value (which becomes an Eq test) or a []Test.
func OrderedPattern(typ string, elems ...interface{}) *Pattern {
	return &Pattern{
		Type: typ,
		Slots: []SlotPattern{
			{Elements: elements(elems)},
		},
	}
}

// SlotOf makes a SlotPattern.  Each element is either a Value (which
// becomes an Eq test) or a []Test.
func SlotOf(name string, elems ...interface{}) SlotPattern {
	return SlotPattern{
		Name:     name,
		Elements: elements(elems),
	}
}

// NamedPattern makes a pattern for a named-slot fact.
func NamedPattern(typ string, slots ...SlotPattern) *Pattern {
	return &Pattern{
		Type:  typ,
		Slots: slots,
	}
}

// TestPattern makes a test conditional element.
func TestPattern(calls ...*FuncCall) *Pattern {
	return &Pattern{
		Test:  true,
		Calls: calls,
	}
}

// Not returns a negated copy of the pattern.
func Not(p *Pattern) *Pattern {
	q := *p
	q.Negated = true
	return &q
}

// Bind returns a copy of the pattern that binds the fact's identity
// to the variable.
func Bind(name string, p *Pattern) *Pattern {
	q := *p
	q.Binding = name
	return &q
}

func elements(xs []interface{}) [][]Test {
	acc := make([][]Test, 0, len(xs))
	for _, x := range xs {
		switch vv := x.(type) {
		case []Test:
			acc = append(acc, vv)
		case Test:
			acc = append(acc, []Test{vv})
		case Value:
			acc = append(acc, []Test{Eq(vv)})
		default:
			acc = append(acc, []Test{Eq(MustValueOf(x))})
		}
	}
	return acc
}

func (p *Pattern) String() string {
	var b strings.Builder
	if p.Binding != "" {
		b.WriteString("?" + p.Binding + " <- ")
	}
	if p.Negated {
		b.WriteString("(not ")
	}
	if p.Test {
		b.WriteString("(test")
		for _, c := range p.Calls {
			b.WriteString(" " + c.String())
		}
		b.WriteByte(')')
	} else {
		b.WriteString("(" + p.Type)
		for _, s := range p.Slots {
			if s.Name == "" || s.Name == OrderedSlot {
				for _, e := range s.Elements {
					b.WriteString(" " + elemString(e))
				}
				continue
			}
			b.WriteString(" (" + s.Name)
			for _, e := range s.Elements {
				b.WriteString(" " + elemString(e))
			}
			b.WriteByte(')')
		}
		b.WriteByte(')')
	}
	if p.Negated {
		b.WriteByte(')')
	}
	return b.String()
}

func elemString(ts []Test) string {
	ss := make([]string, len(ts))
	for i, t := range ts {
		ss[i] = t.String()
	}
	return strings.Join(ss, "&")
}
