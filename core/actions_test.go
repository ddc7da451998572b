/* Copyright 2018 Comcast Cable Communications Management, LLC
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
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestBindingsRemove(t *testing.T) {
	bs := NewBindings()
	bs.Extend("ephemeral", Sym("queso")).Extend("permanent", Sym("tacos"))
	cp := bs.Copy().Remove("ephemeral")
	if _, have := cp["ephemeral"]; have {
		t.Fatal("ephemeral wasn't")
	}
	if _, have := cp["permanent"]; !have {
		t.Fatal("permanent wasn't")
	}
	if _, have := bs["ephemeral"]; !have {
		t.Fatal("Copy didn't copy")
	}
	if s := bs.String(); s != "{?ephemeral=queso, ?permanent=tacos}" {
		t.Fatal(s)
	}
}

func runOne(t *testing.T, e *Engine, r *Rule) (*Ran, error) {
	ctx := context.Background()
	if err := e.AddRule(ctx, r); err != nil {
		t.Fatal(err)
	}
	return e.Run(ctx, nil)
}

func TestCallActionBind(t *testing.T) {
	r := &Rule{
		Name:     "bind",
		Patterns: []*Pattern{OrderedPattern("n", Var("x"))},
		Actions: []Action{
			&CallAction{Call: &FuncCall{Name: "bind", Args: []Value{
				Var("y"), Call("+", Var("x"), Int(1)),
			}}},
			&CallAction{Call: &FuncCall{Name: "emit", Args: []Value{Var("x"), Var("y")}}},
		},
	}
	e := newTestEngine(t)
	mustAssert(t, e, Ordered("n", Int(1)))
	ran, err := runOne(t, e, r)
	if err != nil {
		t.Fatal(err)
	}
	want := []interface{}{[]interface{}{int64(1), int64(2)}}
	if diff := cmp.Diff(want, ran.Emitted); diff != "" {
		t.Fatal(diff)
	}
}

func TestCallActionUndefined(t *testing.T) {
	r := &Rule{
		Name: "oops",
		Actions: []Action{
			&CallAction{Call: &FuncCall{Name: "emit", Args: []Value{Var("nope")}}},
		},
	}
	_, err := runOne(t, newTestEngine(t), r)
	var uv *UndefinedVariable
	if !errors.As(err, &uv) || uv.Name != "nope" {
		t.Fatal(err)
	}
}

func TestCallActionAssertNamed(t *testing.T) {
	e := newTestEngine(t)
	if err := e.Deftemplate(&Template{
		Name:  "person",
		Slots: []SlotDef{{Name: "name"}, {Name: "tags", Multi: true}},
	}); err != nil {
		t.Fatal(err)
	}
	r := &Rule{
		Name:     "hire",
		Patterns: []*Pattern{OrderedPattern("applicant", Var("n"))},
		Actions: []Action{
			&CallAction{Call: &FuncCall{Name: "assert", Args: []Value{
				Call("person", Call("name", Var("n")), Call("tags", Sym("new"), Sym("eager"))),
			}}},
		},
	}
	mustAssert(t, e, Ordered("applicant", Sym("homer")))
	if _, err := runOne(t, e, r); err != nil {
		t.Fatal(err)
	}
	fs := e.Facts()
	f := fs[len(fs)-1]
	if f.Type != "person" {
		t.Fatal(f)
	}
	if tags, _ := f.Slot("tags"); !tags.Equal(List(Sym("new"), Sym("eager"))) {
		t.Fatal(tags)
	}

	bad := &Rule{
		Name: "bad",
		Actions: []Action{
			&CallAction{Call: &FuncCall{Name: "assert", Args: []Value{
				Call("person", Call("name", Sym("a"), Sym("b"))),
			}}},
		},
	}
	if _, err := runOne(t, e, bad); err == nil {
		t.Fatal("two values in a single slot")
	}
}

type echoInterpreter struct{}

func (i *echoInterpreter) Compile(ctx context.Context, code interface{}) (interface{}, error) {
	s, is := code.(string)
	if !is {
		return nil, errors.New("not a string")
	}
	return s + "!", nil
}

func (i *echoInterpreter) Exec(ctx context.Context, f *Firing, code interface{}, compiled interface{}) error {
	f.Emit(compiled)
	return nil
}

func TestActionSource(t *testing.T) {
	ctx := context.Background()
	interpreters := map[string]Interpreter{
		"echo": &echoInterpreter{},
	}

	src := &ActionSource{Interpreter: "echo", Source: "hello"}
	a, err := src.Compile(ctx, interpreters)
	if err != nil {
		t.Fatal(err)
	}
	ran, err := runOne(t, newTestEngine(t), &Rule{Name: "hi", Actions: []Action{a}})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]interface{}{"hello!"}, ran.Emitted); diff != "" {
		t.Fatal(diff)
	}

	src = &ActionSource{Interpreter: "cobol", Source: "DISPLAY 'HELLO'"}
	if _, err = src.Compile(ctx, interpreters); err != InterpreterNotFound {
		t.Fatal(err)
	}

	src = &ActionSource{Interpreter: "echo", Source: 42}
	if _, err = src.Compile(ctx, interpreters); err == nil {
		t.Fatal("should have failed")
	}
}

func TestFiringFacts(t *testing.T) {
	var saw []string
	r := &Rule{
		Name:     "look",
		Patterns: []*Pattern{OrderedPattern("a", Var("x"))},
		Actions: []Action{
			&FuncAction{F: func(ctx context.Context, f *Firing) error {
				for _, fact := range f.Facts() {
					saw = append(saw, fact.String())
				}
				if f.Rule().Name != "look" {
					t.Fatal(f.Rule().Name)
				}
				_, err := f.Retract(ctx, Ordered("a", f.Bindings["x"]))
				return err
			}},
		},
	}
	e := newTestEngine(t)
	mustAssert(t, e, Ordered("a", Int(1)))
	if _, err := runOne(t, e, r); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"(initial-fact)", "(a 1)"}, saw); diff != "" {
		t.Fatal(diff)
	}
	if n := len(e.Facts()); n != 1 {
		t.Fatal(n)
	}
}
