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
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	// OrderedSlot is the name of the single multislot of the
	// implicit template of an ordered fact.
	OrderedSlot = "__data"

	// InitialFact is the type of the fact that Reset asserts
	// first.
	InitialFact = "initial-fact"
)

// SlotDef describes one slot of a Template.
type SlotDef struct {
	Name  string `json:"name" yaml:"name"`
	Multi bool   `json:"multi,omitempty" yaml:"multi,omitempty"`

	// Default is used when an asserted fact doesn't give the
	// slot.  The zero Value is nil, and a multislot's default
	// default is the empty list.
	Default Value `json:"default,omitempty" yaml:"default,omitempty"`
}

// Template gives the shape of facts of a type.
//
// An ordered template has one multislot named OrderedSlot.  Asserting
// an ordered fact of an unknown type creates its ordered template.
type Template struct {
	Name    string    `json:"name" yaml:"name"`
	Doc     string    `json:"doc,omitempty" yaml:"doc,omitempty"`
	Ordered bool      `json:"ordered,omitempty" yaml:"ordered,omitempty"`
	Slots   []SlotDef `json:"slots,omitempty" yaml:"slots,omitempty"`

	atom  Atom
	index map[string]int
}

// OrderedTemplate makes the implicit template for an ordered fact.
func OrderedTemplate(name string) *Template {
	return &Template{
		Name:    name,
		Ordered: true,
	}
}

func (t *Template) init(atoms *Atoms) error {
	if t.Name == "" {
		return errors.New("template has no name")
	}
	if t.Ordered {
		if len(t.Slots) != 0 {
			return fmt.Errorf(`ordered template "%s" can't declare slots`, t.Name)
		}
		t.Slots = []SlotDef{{Name: OrderedSlot, Multi: true, Default: List()}}
	}
	t.index = make(map[string]int, len(t.Slots))
	for i, s := range t.Slots {
		if s.Name == "" {
			return fmt.Errorf(`template "%s" slot %d has no name`, t.Name, i)
		}
		if _, have := t.index[s.Name]; have {
			return fmt.Errorf(`template "%s" has duplicate slot "%s"`, t.Name, s.Name)
		}
		if s.Multi && s.Default.Type() != ListType {
			if s.Default.Type() == NilType {
				t.Slots[i].Default = List()
			} else {
				t.Slots[i].Default = List(s.Default)
			}
		}
		t.index[s.Name] = i
	}
	t.atom = atoms.Intern(t.Name)
	return nil
}

// SlotIndex finds the position of the named slot.  For an ordered
// template, the empty name means OrderedSlot.  Works for templates
// that haven't been given to an Engine yet.
func (t *Template) SlotIndex(name string) (int, bool) {
	if t.Ordered && (name == "" || name == OrderedSlot) {
		return 0, true
	}
	if t.index == nil {
		for i, s := range t.Slots {
			if s.Name == name {
				return i, true
			}
		}
		return 0, false
	}
	i, have := t.index[name]
	return i, have
}

// Fact is a piece of working memory.
//
// A Fact given to Engine.Assert can specify its slots either
// positionally (Slots) or by name (Named).  For an ordered fact,
// Slots are the fields, and embedded lists are flattened.  The Engine
// stores its own shaped copy, which has Slots in template order and
// no Named map.  A stored Fact is never modified.
type Fact struct {
	ID    int              `json:"id"`
	Type  string           `json:"type"`
	Slots []Value          `json:"slots,omitempty"`
	Named map[string]Value `json:"named,omitempty"`

	tmpl *Template
	atom Atom

	// orig is the unsplit fact when this fact was made by a
	// multifield splitter.
	orig *Fact
}

// Ordered makes an ordered fact.
func Ordered(typ string, vs ...Value) *Fact {
	acc := make([]Value, len(vs))
	copy(acc, vs)
	return &Fact{
		ID:    -1,
		Type:  typ,
		Slots: acc,
	}
}

// Unordered makes a named-slot fact.
func Unordered(typ string, slots map[string]Value) *Fact {
	named := make(map[string]Value, len(slots))
	for k, v := range slots {
		named[k] = v
	}
	return &Fact{
		ID:    -1,
		Type:  typ,
		Named: named,
	}
}

// Template returns the template of a stored fact (nil otherwise).
func (f *Fact) Template() *Template {
	return f.tmpl
}

// Original returns the fact as stored.  Facts in tokens can be
// reshaped copies made by multifield splitting.
func (f *Fact) Original() *Fact {
	if f.orig != nil {
		return f.orig
	}
	return f
}

// Slot gets a slot value by name from a stored fact.
func (f *Fact) Slot(name string) (Value, bool) {
	if f.tmpl == nil {
		if f.Named != nil {
			v, have := f.Named[name]
			return v, have
		}
		return Nil, false
	}
	i, have := f.tmpl.SlotIndex(name)
	if !have || len(f.Slots) <= i {
		return Nil, false
	}
	return f.Slots[i], true
}

// Data returns the fields of a stored ordered fact.
func (f *Fact) Data() []Value {
	if f.tmpl == nil || !f.tmpl.Ordered || len(f.Slots) == 0 {
		return nil
	}
	return f.Slots[0].Items()
}

// IsOrdered reports whether the fact has (or would get) an ordered
// template.
func (f *Fact) IsOrdered() bool {
	if f.tmpl != nil {
		return f.tmpl.Ordered
	}
	return f.Named == nil
}

// Key is canonical for the type and contents, ignoring the identity.
// Two live facts never have the same Key.
func (f *Fact) Key() string {
	var b strings.Builder
	b.WriteString(strconv.Quote(f.Type))
	for _, v := range f.Slots {
		b.WriteByte('|')
		b.WriteString(v.Key())
	}
	return b.String()
}

// dataEquals compares identities and contents.  Split copies of one
// fact have the same identity but different contents.
func (f *Fact) dataEquals(g *Fact) bool {
	if f == g {
		return true
	}
	if f.ID != g.ID || f.Type != g.Type || len(f.Slots) != len(g.Slots) {
		return false
	}
	for i, v := range f.Slots {
		if !v.Equal(g.Slots[i]) {
			return false
		}
	}
	return true
}

// withSlot returns a copy of f with slot i replaced.
func (f *Fact) withSlot(i int, v Value) *Fact {
	slots := make([]Value, len(f.Slots))
	copy(slots, f.Slots)
	slots[i] = v
	return &Fact{
		ID:    f.ID,
		Type:  f.Type,
		Slots: slots,
		tmpl:  f.tmpl,
		atom:  f.atom,
		orig:  f.Original(),
	}
}

// String renders the fact like "(foo 1 bar)" or "(person (name fred)
// (age 42))".
func (f *Fact) String() string {
	var b strings.Builder
	b.WriteByte('(')
	b.WriteString(f.Type)
	switch {
	case f.tmpl != nil && f.tmpl.Ordered:
		for _, v := range f.Data() {
			b.WriteByte(' ')
			b.WriteString(v.String())
		}
	case f.tmpl != nil:
		for i, s := range f.tmpl.Slots {
			if len(f.Slots) <= i {
				break
			}
			b.WriteString(" (")
			b.WriteString(s.Name)
			if v := f.Slots[i]; !(s.Multi && v.Len() == 0) {
				b.WriteByte(' ')
				b.WriteString(v.String())
			}
			b.WriteByte(')')
		}
	default:
		for _, v := range f.Slots {
			b.WriteByte(' ')
			b.WriteString(v.String())
		}
		for k, v := range f.Named {
			b.WriteString(" (" + k + " " + v.String() + ")")
		}
	}
	b.WriteByte(')')
	return b.String()
}

// Map gives a plain representation of a stored fact:
//
//	{"id":3,"type":"person","name":"fred","age":42}
//	{"id":4,"type":"foo","data":[1,"bar"]}
func (f *Fact) Map() map[string]interface{} {
	m := map[string]interface{}{
		"type": f.Type,
	}
	if 0 <= f.ID {
		m["id"] = f.ID
	}
	if f.tmpl == nil {
		if f.Named != nil {
			for k, v := range f.Named {
				m[k] = v.Native()
			}
		} else {
			m["data"] = List(f.Slots...).Native()
		}
		return m
	}
	if f.tmpl.Ordered {
		m["data"] = List(f.Data()...).Native()
		return m
	}
	for i, s := range f.tmpl.Slots {
		if i < len(f.Slots) {
			m[s.Name] = f.Slots[i].Native()
		}
	}
	return m
}

func (f *Fact) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.Map())
}

// FactFromMap is the inverse of Map.  A "data" property makes an
// ordered fact; otherwise all properties other than "type" and "id"
// are named slots.
func FactFromMap(m map[string]interface{}) (*Fact, error) {
	typ, is := m["type"].(string)
	if !is || typ == "" {
		return nil, fmt.Errorf("fact %#v needs a string type", m)
	}
	if data, have := m["data"]; have {
		xs, is := data.([]interface{})
		if !is {
			return nil, fmt.Errorf(`fact "data" %#v isn't an array`, data)
		}
		vs := make([]Value, len(xs))
		for i, x := range xs {
			v, err := ValueOf(x)
			if err != nil {
				return nil, err
			}
			vs[i] = v
		}
		return Ordered(typ, vs...), nil
	}
	named := make(map[string]Value, len(m))
	for k, x := range m {
		if k == "type" || k == "id" {
			continue
		}
		v, err := ValueOf(x)
		if err != nil {
			return nil, err
		}
		named[k] = v
	}
	return Unordered(typ, named), nil
}

// flatten splices embedded lists into one list.
func flatten(vs []Value) []Value {
	acc := make([]Value, 0, len(vs))
	for _, v := range vs {
		if v.Type() == ListType {
			acc = append(acc, flatten(v.Items())...)
			continue
		}
		acc = append(acc, v)
	}
	return acc
}

// shape makes the stored form of f according to the template.
func shape(f *Fact, t *Template) (*Fact, error) {
	slots := make([]Value, len(t.Slots))
	switch {
	case t.Ordered:
		if f.Named != nil {
			return nil, &UnknownSlot{
				Template: t.Name,
				Slot:     firstKey(f.Named),
			}
		}
		slots[0] = Value{t: ListType, list: flatten(f.Slots)}
	case f.Named != nil || len(f.Slots) == 0:
		for i, s := range t.Slots {
			slots[i] = s.Default
		}
		for name, v := range f.Named {
			i, have := t.SlotIndex(name)
			if !have {
				return nil, &UnknownSlot{
					Template: t.Name,
					Slot:     name,
				}
			}
			sv, err := slotValue(t, i, v)
			if err != nil {
				return nil, err
			}
			slots[i] = sv
		}
	default:
		if len(f.Slots) != len(t.Slots) {
			return nil, errors.New("fact of type " + t.Name + " has " +
				strconv.Itoa(len(f.Slots)) + " slots, not " + strconv.Itoa(len(t.Slots)))
		}
		for i, v := range f.Slots {
			v, err := slotValue(t, i, v)
			if err != nil {
				return nil, err
			}
			slots[i] = v
		}
	}
	for _, v := range slots {
		if v.IsVariable() || v.Type() == CallType {
			return nil, fmt.Errorf("fact of type %s has unresolved %s", t.Name, v)
		}
	}
	return &Fact{
		ID:    -1,
		Type:  t.Name,
		Slots: slots,
		tmpl:  t,
		atom:  t.atom,
	}, nil
}

func slotValue(t *Template, i int, v Value) (Value, error) {
	s := t.Slots[i]
	if s.Multi {
		if v.Type() == ListType {
			return Value{t: ListType, list: flatten(v.Items())}, nil
		}
		return List(v), nil
	}
	if v.Type() == ListType {
		return Nil, fmt.Errorf(`slot "%s" of %s is not a multislot`, s.Name, t.Name)
	}
	return v, nil
}

func firstKey(m map[string]Value) string {
	for k := range m {
		return k
	}
	return ""
}
