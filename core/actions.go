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
	"errors"
	"fmt"

	"go.uber.org/zap"
)

var (
	// InterpreterNotFound occurs when you try to Compile an
	// ActionSource, and the required interpreter isn't in the
	// given map of interpreters.
	InterpreterNotFound = errors.New("interpreter not found")

	// DefaultInterpreters will be used in ActionSource.Compile if
	// the given nil interpreters.
	DefaultInterpreters = make(map[string]Interpreter)
)

// Action is (part of) the right-hand side of a rule.
type Action interface {
	// Exec runs the action.  The Firing gives the rule's bindings
	// and access to working memory.
	Exec(context.Context, *Firing) error
}

// FuncAction is a wrapper around a Go function.
type FuncAction struct {
	F func(context.Context, *Firing) error `json:"-" yaml:"-"`
}

// Exec runs the given action.
func (a *FuncAction) Exec(ctx context.Context, f *Firing) error {
	if a == nil || a.F == nil {
		return nil
	}
	return a.F(ctx, f)
}

// Interpreter can compile and execute code for Actions.
type Interpreter interface {
	// Compile can make something that helps when Exec()ing the
	// code later.
	Compile(ctx context.Context, code interface{}) (interface{}, error)

	// Exec executes the code.  The result of previous Compile()
	// might be provided.
	Exec(ctx context.Context, f *Firing, code interface{}, compiled interface{}) error
}

// ActionSource can be compiled to an Action.
type ActionSource struct {
	Interpreter string      `json:"interpreter,omitempty" yaml:",omitempty"`
	Source      interface{} `json:"source"`
}

// Compile attempts to compile the ActionSource into an Action using
// the given interpreters, which defaults to DefaultInterpreters.
func (a *ActionSource) Compile(ctx context.Context, interpreters map[string]Interpreter) (Action, error) {
	if interpreters == nil {
		interpreters = DefaultInterpreters
	}

	interpreter, have := interpreters[a.Interpreter]
	if !have {
		return nil, InterpreterNotFound
	}

	x, err := interpreter.Compile(ctx, a.Source)
	if err != nil {
		return nil, err
	}

	return &FuncAction{
		F: func(ctx context.Context, f *Firing) error {
			return interpreter.Exec(ctx, f, a.Source, x)
		},
	}, nil
}

// CallAction is a function call as an action.
//
// A few names are special: assert, retract, modify, halt, emit, and
// bind.  Everything else goes to the Engine's Evaluator.
type CallAction struct {
	Call *FuncCall
}

func (a *CallAction) String() string {
	return a.Call.String()
}

func (a *CallAction) Exec(ctx context.Context, f *Firing) error {
	c := a.Call
	switch c.Name {
	case "assert":
		for _, arg := range c.Args {
			fact, err := f.factOf(ctx, arg)
			if err != nil {
				return err
			}
			if _, err = f.Assert(ctx, fact); err != nil {
				return err
			}
		}
		return nil

	case "retract":
		for _, arg := range c.Args {
			v, err := f.Resolve(ctx, arg)
			if err != nil {
				return err
			}
			id, ok := v.Int()
			if !ok {
				return fmt.Errorf("can't retract %s", v)
			}
			if _, err = f.RetractID(ctx, int(id)); err != nil {
				return err
			}
		}
		return nil

	case "modify":
		if len(c.Args) == 0 {
			return errors.New("modify needs a fact")
		}
		v, err := f.Resolve(ctx, c.Args[0])
		if err != nil {
			return err
		}
		id, ok := v.Int()
		if !ok {
			return fmt.Errorf("can't modify %s", v)
		}
		old := f.Fact(int(id))
		if old == nil {
			return nil
		}
		slots := make(map[string]Value, len(c.Args)-1)
		for _, arg := range c.Args[1:] {
			name, v, err := f.slotOf(ctx, old.tmpl, arg)
			if err != nil {
				return err
			}
			slots[name] = v
		}
		_, err = f.Modify(ctx, int(id), slots)
		return err

	case "halt":
		f.Halt()
		return nil

	case "emit":
		vs, err := f.resolveAll(ctx, c.Args)
		if err != nil {
			return err
		}
		if len(vs) == 1 {
			f.Emit(vs[0].Native())
		} else {
			f.Emit(List(vs...).Native())
		}
		return nil

	case "bind":
		if len(c.Args) != 2 || !c.Args[0].IsVariable() {
			return errors.New("bind needs a variable and a value")
		}
		v, err := f.Resolve(ctx, c.Args[1])
		if err != nil {
			return err
		}
		f.Bindings[c.Args[0].Text()] = v
		return nil
	}

	_, err := f.Eval(ctx, c)
	return err
}

// Firing is what an Action gets.  It exposes the rule's Bindings and
// working memory.
//
// The engine is locked while the actions run, so actions must use
// these methods rather than calling the Engine.
type Firing struct {
	e   *Engine
	ran *Ran

	Activation *Activation
	Bindings   Bindings
}

// Rule returns the rule that's firing.
func (f *Firing) Rule() *Rule {
	return f.Activation.Rule()
}

// Logger gives the engine's logger.
func (f *Firing) Logger() *zap.Logger {
	return f.e.logger
}

// Assert a fact.  See Engine.Assert.
func (f *Firing) Assert(ctx context.Context, fact *Fact) (int, error) {
	return f.e.assert(ctx, fact)
}

// Retract a fact.  See Engine.Retract.
func (f *Firing) Retract(ctx context.Context, fact *Fact) (bool, error) {
	return f.e.retract(ctx, fact)
}

// RetractID retracts a fact by identity.
func (f *Firing) RetractID(ctx context.Context, id int) (bool, error) {
	return f.e.retractID(ctx, id)
}

// Modify a fact.  See Engine.Modify.
func (f *Firing) Modify(ctx context.Context, id int, slots map[string]Value) (int, error) {
	return f.e.modify(ctx, id, slots)
}

// Fact gets a fact by identity.
func (f *Firing) Fact(id int) *Fact {
	return f.e.facts.get(id)
}

// Facts returns all facts.
func (f *Firing) Facts() []*Fact {
	return f.e.facts.list()
}

// Halt stops Run before the next firing.
func (f *Firing) Halt() {
	f.e.Halt()
}

// Emit adds a message to what Run returns.
func (f *Firing) Emit(x interface{}) {
	f.ran.Emitted = append(f.ran.Emitted, x)
}

// Eval evaluates a call with the Firing's bindings.
func (f *Firing) Eval(ctx context.Context, c *FuncCall) (Value, error) {
	if f.e.eval == nil {
		return Nil, ErrNoEvaluator
	}
	return f.e.eval.Eval(ctx, c, f.Bindings)
}

// Resolve gets the value of a variable, evaluates a call, or resolves
// the elements of a list.  Other values are returned as is.
func (f *Firing) Resolve(ctx context.Context, v Value) (Value, error) {
	switch v.Type() {
	case VariableType, MultiVariableType:
		x, have := f.Bindings[v.Text()]
		if !have {
			return Nil, &UndefinedVariable{
				Rule: f.Rule().Name,
				Name: v.Text(),
			}
		}
		return x, nil
	case CallType:
		return f.Eval(ctx, v.FuncCall())
	case ListType:
		vs, err := f.resolveAll(ctx, v.Items())
		if err != nil {
			return Nil, err
		}
		return List(vs...), nil
	}
	return v, nil
}

func (f *Firing) resolveAll(ctx context.Context, vs []Value) ([]Value, error) {
	acc := make([]Value, len(vs))
	for i, v := range vs {
		x, err := f.Resolve(ctx, v)
		if err != nil {
			return nil, err
		}
		acc[i] = x
	}
	return acc, nil
}

// factOf makes a fact from "(type v ...)" or "(type (slot v ...) ...)".
func (f *Firing) factOf(ctx context.Context, v Value) (*Fact, error) {
	c := v.FuncCall()
	if v.Type() != CallType {
		return nil, fmt.Errorf("can't assert %s", v)
	}
	t, have := f.e.templates[c.Name]
	if !have || t.Ordered {
		vs, err := f.resolveAll(ctx, c.Args)
		if err != nil {
			return nil, err
		}
		return Ordered(c.Name, vs...), nil
	}
	slots := make(map[string]Value, len(c.Args))
	for _, arg := range c.Args {
		name, v, err := f.slotOf(ctx, t, arg)
		if err != nil {
			return nil, err
		}
		slots[name] = v
	}
	return Unordered(c.Name, slots), nil
}

// slotOf resolves "(slot v ...)".
func (f *Firing) slotOf(ctx context.Context, t *Template, v Value) (string, Value, error) {
	if v.Type() != CallType {
		return "", Nil, fmt.Errorf("expected (slot value) but got %s", v)
	}
	c := v.FuncCall()
	vs, err := f.resolveAll(ctx, c.Args)
	if err != nil {
		return "", Nil, err
	}
	i, have := t.SlotIndex(c.Name)
	if !have {
		return "", Nil, &UnknownSlot{Template: t.Name, Slot: c.Name}
	}
	if t.Slots[i].Multi {
		return c.Name, List(vs...), nil
	}
	if len(vs) != 1 {
		return "", Nil, fmt.Errorf("slot %s of %s needs one value", c.Name, t.Name)
	}
	return c.Name, vs[0], nil
}
