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
	"context"
	"sort"
	"strconv"
	"strings"
)

// Bindings maps variable names (without the leading '?') to values.
type Bindings map[string]Value

func NewBindings() Bindings {
	return make(Bindings, 8)
}

// Extend adds the binding.
//
// The Bindings are modified.
func (bs Bindings) Extend(name string, v Value) Bindings {
	bs[name] = v
	return bs
}

// Remove removes the given variables.
//
// The Bindings are modified.
func (bs Bindings) Remove(names ...string) Bindings {
	for _, name := range names {
		delete(bs, name)
	}
	return bs
}

// Copy makes a shallow copy of the Bindings.
func (bs Bindings) Copy() Bindings {
	acc := make(Bindings, len(bs))
	for k, v := range bs {
		acc[k] = v
	}
	return acc
}

// Native gives the Bindings as plain data with keys like "?x".
func (bs Bindings) Native() map[string]interface{} {
	acc := make(map[string]interface{}, len(bs))
	for k, v := range bs {
		acc["?"+k] = v.Native()
	}
	return acc
}

func (bs Bindings) String() string {
	ks := make([]string, 0, len(bs))
	for k := range bs {
		ks = append(ks, k)
	}
	sort.Strings(ks)
	ss := make([]string, len(ks))
	for i, k := range ks {
		ss[i] = "?" + k + "=" + bs[k].String()
	}
	return "{" + strings.Join(ss, ", ") + "}"
}

// Evaluator evaluates function calls that appear in patterns and in
// rule actions.
//
// The Bindings give the values of the variables the call references.
// An Evaluator is responsible for resolving variables and nested
// calls in the arguments.
type Evaluator interface {
	Eval(ctx context.Context, c *FuncCall, bs Bindings) (Value, error)
}

// EvaluatorFunc lets a plain function be an Evaluator.
type EvaluatorFunc func(ctx context.Context, c *FuncCall, bs Bindings) (Value, error)

func (f EvaluatorFunc) Eval(ctx context.Context, c *FuncCall, bs Bindings) (Value, error) {
	return f(ctx, c, bs)
}

// varRef says where in a token to find a variable's value.  A slot of
// -1 means the identity of the fact.
type varRef struct {
	name string
	pos  int
	slot int
	sub  int
}

func (r varRef) get(t *Token) Value {
	f := t.Fact(r.pos)
	if f == nil {
		return Nil
	}
	if r.slot < 0 {
		return FactID(f.ID)
	}
	return fieldOf(f, r.slot, r.sub)
}

func (r varRef) String() string {
	return "?" + r.name + "@" + strconv.Itoa(r.pos) + "." + strconv.Itoa(r.slot) + "." + strconv.Itoa(r.sub)
}

// compiledCall is a FuncCall with its variable references resolved to
// token positions.
type compiledCall struct {
	call *FuncCall
	refs []varRef
}

func (c *compiledCall) key() string {
	var b strings.Builder
	b.WriteString(c.call.String())
	for _, r := range c.refs {
		b.WriteByte(' ')
		b.WriteString(r.String())
	}
	return b.String()
}

func (c *compiledCall) bindings(t *Token) Bindings {
	bs := make(Bindings, len(c.refs))
	for _, r := range c.refs {
		bs[r.name] = r.get(t)
	}
	return bs
}

func (c *compiledCall) eval(ctx context.Context, e Evaluator, node int, t *Token) (Value, error) {
	if e == nil {
		return Nil, &MatchError{
			Node: node,
			Call: c.call.String(),
			Err:  ErrNoEvaluator,
		}
	}
	v, err := e.Eval(ctx, c.call, c.bindings(t))
	if err != nil {
		return Nil, &MatchError{
			Node: node,
			Call: c.call.String(),
			Err:  err,
		}
	}
	return v, nil
}

// fieldOf gets a slot value, or a single field of a multislot when
// sub isn't negative.
func fieldOf(f *Fact, slot, sub int) Value {
	if slot < 0 || len(f.Slots) <= slot {
		return Nil
	}
	v := f.Slots[slot]
	if sub < 0 {
		return v
	}
	items := v.Items()
	if len(items) <= sub {
		return Nil
	}
	return items[sub]
}
