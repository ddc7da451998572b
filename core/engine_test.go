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
	"testing"

	"github.com/google/go-cmp/cmp"
)

// testEval knows a few functions, which is all these tests need.
func testEval(ctx context.Context, c *FuncCall, bs Bindings) (Value, error) {
	args := make([]Value, len(c.Args))
	for i, a := range c.Args {
		switch a.Type() {
		case VariableType, MultiVariableType:
			v, have := bs[a.Text()]
			if !have {
				return Nil, fmt.Errorf("unbound %s", a)
			}
			args[i] = v
		case CallType:
			v, err := testEval(ctx, a.FuncCall(), bs)
			if err != nil {
				return Nil, err
			}
			args[i] = v
		default:
			args[i] = a
		}
	}
	switch c.Name {
	case ">":
		x, _ := args[0].Int()
		y, _ := args[1].Int()
		return Bool(x > y), nil
	case "+":
		var sum int64
		for _, a := range args {
			n, _ := a.Int()
			sum += n
		}
		return Int(sum), nil
	case "length$":
		return Int(int64(args[0].Len())), nil
	case "fail":
		return Nil, errors.New("failed on purpose")
	}
	return Nil, fmt.Errorf("unknown function %s", c.Name)
}

func newTestEngine(t *testing.T, rs ...*Rule) *Engine {
	e := NewEngine(&Options{
		Evaluator: EvaluatorFunc(testEval),
	})
	for _, r := range rs {
		if err := e.AddRule(context.Background(), r); err != nil {
			t.Fatal(err)
		}
	}
	return e
}

func mustAssert(t *testing.T, e *Engine, f *Fact) int {
	id, err := e.Assert(context.Background(), f)
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func mustRetract(t *testing.T, e *Engine, f *Fact) {
	retracted, err := e.Retract(context.Background(), f)
	if err != nil {
		t.Fatal(err)
	}
	if !retracted {
		t.Fatalf("didn't retract %s", f)
	}
}

func checkAgenda(t *testing.T, e *Engine, want int) {
	t.Helper()
	if n := len(e.Agenda()); n != want {
		t.Fatalf("agenda has %d activations, not %d: %v", n, want, e.Agenda())
	}
}

func emitRule(name string, salience int, what Value, ps ...*Pattern) *Rule {
	return &Rule{
		Name:     name,
		Salience: salience,
		Patterns: ps,
		Actions: []Action{
			&CallAction{Call: &FuncCall{Name: "emit", Args: []Value{what}}},
		},
	}
}

// (a ?x) (b ?x)
func abRule(name string) *Rule {
	return emitRule(name, 0, Var("x"),
		OrderedPattern("a", Var("x")),
		OrderedPattern("b", Var("x")))
}

func TestAssertIdempotent(t *testing.T) {
	e := newTestEngine(t)
	f := Ordered("foo", Int(1), Sym("bar"))
	id := mustAssert(t, e, f)
	if id != 1 {
		t.Fatal(id)
	}
	if id = mustAssert(t, e, Ordered("foo", Int(1), Sym("bar"))); id != Duplicate {
		t.Fatal(id)
	}
	// Strict types: 1.0 isn't 1.
	if id = mustAssert(t, e, Ordered("foo", Float(1), Sym("bar"))); id == Duplicate {
		t.Fatal("float collided with integer")
	}
	if n := len(e.Facts()); n != 3 {
		t.Fatal(n)
	}
}

func TestAssertDistinguishesTypes(t *testing.T) {
	e := newTestEngine(t)
	for _, f := range []*Fact{
		Ordered("foo", Int(1)),
		Ordered("foo", Sym("1")),
		Ordered("foo", Str("1")),
		Ordered("foo", Float(1)),
		Ordered("bar", Sym("a b")),
		Ordered("bar", Sym("a"), Sym("b")),
		Ordered("bar", Str("a b")),
	} {
		if id := mustAssert(t, e, f); id == Duplicate {
			t.Fatalf("%s taken as a duplicate", f)
		}
	}

	// Retracting by content removes the symbol, not the integer.
	n := len(e.Facts())
	mustRetract(t, e, Ordered("foo", Sym("1")))
	if m := len(e.Facts()); m != n-1 {
		t.Fatal(m)
	}
	if id := mustAssert(t, e, Ordered("foo", Int(1))); id != Duplicate {
		t.Fatal("integer fact is gone")
	}
	mustRetract(t, e, Ordered("foo", Int(1)))
}

func TestAssertCalls(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	id := mustAssert(t, e, Ordered("total", Call("+", Int(1), Int(2))))
	if s := e.Fact(id).String(); s != "(total 3)" {
		t.Fatal(s)
	}
	if id = mustAssert(t, e, Ordered("total", Int(3))); id != Duplicate {
		t.Fatal(id)
	}
	mustRetract(t, e, Ordered("total", Call("+", Int(2), Int(1))))

	if err := e.Deftemplate(&Template{Name: "counter", Slots: []SlotDef{{Name: "n"}}}); err != nil {
		t.Fatal(err)
	}
	id = mustAssert(t, e, Unordered("counter", map[string]Value{
		"n": Call("+", Int(1), Call("+", Int(1), Int(1))),
	}))
	if n, _ := e.Fact(id).Slot("n"); !n.Equal(Int(3)) {
		t.Fatal(n)
	}

	if _, err := e.Assert(ctx, Ordered("bad", Call("fail"))); err == nil {
		t.Fatal("expected an error")
	}
	if _, err := e.Assert(ctx, Ordered("bad", Var("x"))); err == nil {
		t.Fatal("expected an error")
	}
	if _, err := NewEngine(nil).Assert(ctx, Ordered("bad", Call("+"))); !errors.Is(err, ErrNoEvaluator) {
		t.Fatal(err)
	}
}

func TestAssertFlattens(t *testing.T) {
	e := newTestEngine(t)
	id := mustAssert(t, e, Ordered("foo", Int(1), List(Int(2), Int(3))))
	if id = mustAssert(t, e, Ordered("foo", Int(1), Int(2), Int(3))); id != Duplicate {
		t.Fatal("embedded list wasn't flattened")
	}
}

func TestRetractMissing(t *testing.T) {
	e := newTestEngine(t)
	retracted, err := e.Retract(context.Background(), Ordered("nope"))
	if err != nil {
		t.Fatal(err)
	}
	if retracted {
		t.Fatal("retracted nothing")
	}
	if retracted, err = e.RetractID(context.Background(), 42); err != nil || retracted {
		t.Fatal(retracted, err)
	}
}

func TestAssertRetractSymmetry(t *testing.T) {
	e := newTestEngine(t, abRule("ab"))
	mustAssert(t, e, Ordered("a", Int(1)))
	mustAssert(t, e, Ordered("a", Int(2)))

	before := e.Network()
	checkAgenda(t, e, 0)

	b := Ordered("b", Int(1))
	mustAssert(t, e, b)
	checkAgenda(t, e, 1)

	mustRetract(t, e, b)
	checkAgenda(t, e, 0)

	if diff := cmp.Diff(before, e.Network()); diff != "" {
		t.Fatal(diff)
	}
}

func TestNodeSharing(t *testing.T) {
	r1 := abRule("r1")
	r2 := emitRule("r2", 0, Var("y"),
		OrderedPattern("a", Var("y")),
		OrderedPattern("b", Var("y")),
		OrderedPattern("c", Var("y")))

	e := newTestEngine(t, r1, r2)
	v := e.Network()

	// type+length for a, b, c; two joins; two terminals.
	if n := v.Count(""); n != 10 {
		t.Fatal(n)
	}
	if n := v.Count("join"); n != 2 {
		t.Fatal(n)
	}
	shared := 0
	for _, n := range v.Nodes {
		if n.Kind == "join" && n.Uses == 2 {
			shared++
		}
	}
	if shared != 1 {
		t.Fatalf("%d shared joins", shared)
	}

	if err := e.RemoveRule("r1"); err != nil {
		t.Fatal(err)
	}
	v = e.Network()
	if n := v.Count(""); n != 9 {
		t.Fatal(n)
	}
	for _, n := range v.Nodes {
		if n.Uses != 1 {
			t.Fatalf("node %d (%s) uses %d", n.ID, n.Kind, n.Uses)
		}
	}

	if err := e.RemoveRule("r2"); err != nil {
		t.Fatal(err)
	}
	if n := e.Network().Count(""); n != 0 {
		t.Fatal(n)
	}

	var ur *UnknownRule
	if err := e.RemoveRule("r2"); !errors.As(err, &ur) {
		t.Fatal(err)
	}
}

func TestNodeSharingOneInput(t *testing.T) {
	// Same literal test in two rules shares the one-input chain.
	r1 := emitRule("r1", 0, Var("x"), OrderedPattern("a", Sym("red"), Var("x")))
	r2 := emitRule("r2", 0, Var("y"), OrderedPattern("a", Sym("red"), Var("y")))
	e := newTestEngine(t, r1, r2)
	v := e.Network()
	// type, length, eq; two terminals.
	if n := v.Count(""); n != 5 {
		t.Fatal(n)
	}
	if n := v.Count("eq"); n != 1 {
		t.Fatal(n)
	}
	mustAssert(t, e, Ordered("a", Sym("red"), Int(1)))
	mustAssert(t, e, Ordered("a", Sym("blue"), Int(1)))
	checkAgenda(t, e, 2)
}

func TestJoinRepairing(t *testing.T) {
	e := newTestEngine(t, abRule("ab"))
	a1 := Ordered("a", Int(1))
	mustAssert(t, e, a1)
	mustAssert(t, e, Ordered("a", Int(2)))
	mustAssert(t, e, Ordered("b", Int(1)))
	checkAgenda(t, e, 1)

	mustRetract(t, e, a1)
	checkAgenda(t, e, 0)

	mustAssert(t, e, a1)
	checkAgenda(t, e, 1)

	mustAssert(t, e, Ordered("b", Int(2)))
	checkAgenda(t, e, 2)
}

func TestSelfJoin(t *testing.T) {
	// One fact can match both patterns.
	r := emitRule("pairs", 0, Var("x"),
		OrderedPattern("a", Var("x")),
		OrderedPattern("a", Var("y")))
	e := newTestEngine(t, r)
	a1 := Ordered("a", Int(1))
	mustAssert(t, e, a1)
	checkAgenda(t, e, 1)
	mustAssert(t, e, Ordered("a", Int(2)))
	checkAgenda(t, e, 4)
	mustRetract(t, e, a1)
	checkAgenda(t, e, 1)
}

func TestNegation(t *testing.T) {
	r := emitRule("lonely", 0, Var("x"),
		OrderedPattern("a", Var("x")),
		Not(OrderedPattern("b", Var("x"))))
	e := newTestEngine(t, r)
	ctx := context.Background()

	mustAssert(t, e, Ordered("a", Int(1)))
	checkAgenda(t, e, 1)

	b := Ordered("b", Int(1))
	mustAssert(t, e, b)
	checkAgenda(t, e, 0)

	// Another blocker doesn't change anything.
	mustAssert(t, e, Ordered("b", Int(1), Int(1)))
	mustAssert(t, e, Ordered("b", Int(2)))
	checkAgenda(t, e, 0)

	mustRetract(t, e, b)
	checkAgenda(t, e, 1)

	ran, err := e.Run(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if ran.Fired != 1 {
		t.Fatal(ran.Fired)
	}

	// Blocking and unblocking again re-activates the rule.
	mustAssert(t, e, b)
	checkAgenda(t, e, 0)
	mustRetract(t, e, b)
	checkAgenda(t, e, 1)

	if ran, err = e.Run(ctx, nil); err != nil {
		t.Fatal(err)
	}
	if ran.Fired != 1 {
		t.Fatal(ran.Fired)
	}
}

func TestNegationFirst(t *testing.T) {
	r := emitRule("quiet", 0, Sym("ok"), Not(OrderedPattern("alarm")))
	e := newTestEngine(t, r)
	checkAgenda(t, e, 1)

	alarm := Ordered("alarm")
	mustAssert(t, e, alarm)
	checkAgenda(t, e, 0)
	mustRetract(t, e, alarm)
	checkAgenda(t, e, 1)

	acts := e.Agenda()
	fs := acts[0].Facts()
	if len(fs) != 2 || fs[0].Type != InitialFact || fs[1] != nil {
		t.Fatal(fs)
	}
}

func TestNegationBindings(t *testing.T) {
	// Variables local to a negated pattern are fine inside it.
	r := emitRule("no-pair", 0, Var("x"),
		OrderedPattern("a", Var("x")),
		Not(OrderedPattern("b", Var("x"), Var("z"), Var("z"))))
	e := newTestEngine(t, r)
	mustAssert(t, e, Ordered("a", Int(1)))
	mustAssert(t, e, Ordered("b", Int(1), Int(2), Int(3)))
	checkAgenda(t, e, 1)

	bs := e.Agenda()[0].Bindings()
	if _, have := bs["z"]; have {
		t.Fatal("negated binding leaked")
	}
	if !bs["x"].Equal(Int(1)) {
		t.Fatal(bs)
	}

	mustAssert(t, e, Ordered("b", Int(1), Int(2), Int(2)))
	checkAgenda(t, e, 0)
}

func TestMultifield(t *testing.T) {
	r := emitRule("mf", 0, MultiVar("x"),
		OrderedPattern("foo", MultiVar("x"), Sym("bar")))
	e := newTestEngine(t, r)

	mustAssert(t, e, Ordered("foo", Sym("a"), Sym("b"), Sym("bar")))
	checkAgenda(t, e, 1)
	bs := e.Agenda()[0].Bindings()
	if !bs["x"].Equal(List(Sym("a"), Sym("b"))) {
		t.Fatal(bs)
	}

	mustAssert(t, e, Ordered("foo", Sym("bar")))
	checkAgenda(t, e, 2)
	mustAssert(t, e, Ordered("foo", Sym("a")))
	checkAgenda(t, e, 2)

	mustRetract(t, e, Ordered("foo", Sym("a"), Sym("b"), Sym("bar")))
	checkAgenda(t, e, 1)
	bs = e.Agenda()[0].Bindings()
	if !bs["x"].Equal(List()) {
		t.Fatal(bs)
	}
}

func TestMultifieldSplits(t *testing.T) {
	r := emitRule("mf", 0, Var("y"),
		OrderedPattern("foo", MultiVar("x"), Var("y"), MultiVar("z")))
	e := newTestEngine(t, r)
	mustAssert(t, e, Ordered("foo", Int(1), Int(2), Int(3)))
	checkAgenda(t, e, 3)

	ran, err := e.Run(context.Background(), &Control{Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	got := map[interface{}]bool{}
	for _, x := range ran.Emitted {
		got[x] = true
	}
	for _, n := range []int64{1, 2, 3} {
		if !got[n] {
			t.Fatalf("missing %d in %v", n, ran.Emitted)
		}
	}
}

func TestMultifieldJoin(t *testing.T) {
	// A multifield variable shared across patterns compares lists.
	r := emitRule("same", 0, MultiVar("x"),
		OrderedPattern("a", MultiVar("x")),
		OrderedPattern("b", Sym("tag"), MultiVar("x")))
	e := newTestEngine(t, r)
	mustAssert(t, e, Ordered("a", Int(1), Int(2)))
	mustAssert(t, e, Ordered("b", Sym("tag"), Int(1), Int(2)))
	mustAssert(t, e, Ordered("b", Sym("tag"), Int(1)))
	checkAgenda(t, e, 1)
}

func TestIntraFact(t *testing.T) {
	r := emitRule("twins", 0, Var("x"),
		OrderedPattern("pair", Var("x"), Var("x")))
	other := emitRule("different", 0, Var("x"),
		OrderedPattern("pair", Var("x"), Elem(Neq(Var("x")))))
	e := newTestEngine(t, r, other)
	mustAssert(t, e, Ordered("pair", Int(1), Int(1)))
	mustAssert(t, e, Ordered("pair", Int(1), Int(2)))
	acts := e.Agenda()
	if len(acts) != 2 {
		t.Fatal(acts)
	}
	names := map[string]bool{}
	for _, a := range acts {
		names[a.Rule().Name] = true
	}
	if !names["twins"] || !names["different"] {
		t.Fatal(names)
	}
}

func TestPredicates(t *testing.T) {
	big := emitRule("big", 0, Var("x"),
		OrderedPattern("n", Elem(Eq(Var("x")), Pred(&FuncCall{Name: ">", Args: []Value{Var("x"), Int(3)}}))))
	e := newTestEngine(t, big)
	n1 := Ordered("n", Int(1))
	n5 := Ordered("n", Int(5))
	mustAssert(t, e, n1)
	mustAssert(t, e, n5)
	checkAgenda(t, e, 1)
	mustRetract(t, e, n5)
	checkAgenda(t, e, 0)
	mustRetract(t, e, n1)
	checkAgenda(t, e, 0)
}

func TestRemoveSkipsCalls(t *testing.T) {
	calls := 0
	e := NewEngine(&Options{
		Evaluator: EvaluatorFunc(func(ctx context.Context, c *FuncCall, bs Bindings) (Value, error) {
			calls++
			return testEval(ctx, c, bs)
		}),
	})
	big := emitRule("big", 0, Var("x"),
		OrderedPattern("n", Elem(Eq(Var("x")), Pred(&FuncCall{Name: ">", Args: []Value{Var("x"), Int(3)}}))))
	if err := e.AddRule(context.Background(), big); err != nil {
		t.Fatal(err)
	}
	n5 := Ordered("n", Int(5))
	mustAssert(t, e, n5)
	checkAgenda(t, e, 1)
	before := calls
	mustRetract(t, e, n5)
	checkAgenda(t, e, 0)
	if calls != before {
		t.Fatalf("%d evaluations on retract", calls-before)
	}
}

func TestReturnValue(t *testing.T) {
	r := emitRule("succ", 0, Var("x"),
		OrderedPattern("pair", Var("x"), Elem(Ret(&FuncCall{Name: "+", Args: []Value{Var("x"), Int(1)}}))))
	e := newTestEngine(t, r)
	mustAssert(t, e, Ordered("pair", Int(1), Int(2)))
	mustAssert(t, e, Ordered("pair", Int(1), Int(3)))
	checkAgenda(t, e, 1)
}

func TestJoinPredicate(t *testing.T) {
	r := emitRule("bigger", 0, Var("y"),
		OrderedPattern("a", Var("x")),
		OrderedPattern("b", Elem(Eq(Var("y")), Pred(&FuncCall{Name: ">", Args: []Value{Var("y"), Var("x")}}))))
	e := newTestEngine(t, r)
	if n := e.Network().Count("pred"); n != 0 {
		t.Fatal("cross-pattern predicate in a one-input node")
	}
	mustAssert(t, e, Ordered("a", Int(5)))
	mustAssert(t, e, Ordered("b", Int(3)))
	mustAssert(t, e, Ordered("b", Int(7)))
	checkAgenda(t, e, 1)
	mustRetract(t, e, Ordered("b", Int(7)))
	checkAgenda(t, e, 0)
}

func TestTestCE(t *testing.T) {
	r := emitRule("gt", 0, Var("x"),
		OrderedPattern("a", Var("x")),
		OrderedPattern("b", Var("y")),
		TestPattern(&FuncCall{Name: ">", Args: []Value{Var("x"), Var("y")}}))
	e := newTestEngine(t, r)
	if n := e.Network().Count("test"); n != 1 {
		t.Fatal(n)
	}
	mustAssert(t, e, Ordered("a", Int(5)))
	mustAssert(t, e, Ordered("b", Int(3)))
	mustAssert(t, e, Ordered("b", Int(7)))
	checkAgenda(t, e, 1)
	mustRetract(t, e, Ordered("b", Int(3)))
	checkAgenda(t, e, 0)
}

func TestFactBinding(t *testing.T) {
	r := &Rule{
		Name: "consume",
		Patterns: []*Pattern{
			Bind("f", OrderedPattern("todo", Var("x"))),
		},
		Actions: []Action{
			&CallAction{Call: &FuncCall{Name: "retract", Args: []Value{Var("f")}}},
			&CallAction{Call: &FuncCall{Name: "assert", Args: []Value{Call("done", Var("x"))}}},
		},
	}
	e := newTestEngine(t, r)
	id := mustAssert(t, e, Ordered("todo", Sym("laundry")))
	bs := e.Agenda()[0].Bindings()
	if !bs["f"].Equal(FactID(id)) {
		t.Fatal(bs)
	}
	ran, err := e.Run(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if ran.Fired != 1 || ran.StoppedBecause != Done {
		t.Fatal(ran)
	}
	fs := e.Facts()
	if len(fs) != 2 || fs[1].String() != "(done laundry)" {
		t.Fatal(fs)
	}
}

func TestMatchError(t *testing.T) {
	r := emitRule("oops", 0, Var("x"),
		OrderedPattern("a", Elem(Eq(Var("x")), Pred(&FuncCall{Name: "fail", Args: []Value{Var("x")}}))))
	e := newTestEngine(t, r)
	_, err := e.Assert(context.Background(), Ordered("a", Int(1)))
	var me *MatchError
	if !errors.As(err, &me) {
		t.Fatal(err)
	}

	// No evaluator
	e = NewEngine(nil)
	if err = e.AddRule(context.Background(), r); err != nil {
		t.Fatal(err)
	}
	if _, err = e.Assert(context.Background(), Ordered("a", Int(1))); !errors.Is(err, ErrNoEvaluator) {
		t.Fatal(err)
	}
}

func TestCompileErrors(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	if err := e.Deftemplate(&Template{
		Name:  "person",
		Slots: []SlotDef{{Name: "name"}, {Name: "tags", Multi: true}},
	}); err != nil {
		t.Fatal(err)
	}

	var (
		ce *CompileError
		uv *UndefinedVariable
		us *UnknownSlot
		ut *UnknownTemplate
	)

	type test struct {
		name  string
		rule  *Rule
		check func(error) bool
	}
	tests := []test{
		{
			name: "negated first",
			rule: emitRule("r", 0, Nil, OrderedPattern("a", Elem(Neq(Var("x"))))),
			check: func(err error) bool {
				return errors.As(err, &ce)
			},
		},
		{
			name: "undefined in test",
			rule: emitRule("r", 0, Nil,
				OrderedPattern("a", Var("x")),
				TestPattern(&FuncCall{Name: ">", Args: []Value{Var("y"), Int(1)}})),
			check: func(err error) bool {
				return errors.As(err, &uv)
			},
		},
		{
			name: "negated scope",
			rule: emitRule("r", 0, Nil,
				OrderedPattern("a", Var("x")),
				Not(OrderedPattern("b", Var("y"))),
				OrderedPattern("c", Var("y"))),
			check: func(err error) bool {
				return errors.As(err, &uv) && uv.Name == "y"
			},
		},
		{
			name: "unknown slot",
			rule: emitRule("r", 0, Nil, NamedPattern("person", SlotOf("age", Var("a")))),
			check: func(err error) bool {
				return errors.As(err, &ce) && errors.As(err, &us) && us.Slot == "age"
			},
		},
		{
			name: "multifield in single slot",
			rule: emitRule("r", 0, Nil, NamedPattern("person", SlotOf("name", MultiVar("n")))),
			check: func(err error) bool {
				return errors.As(err, &ce)
			},
		},
		{
			name: "unknown template",
			rule: emitRule("r", 0, Nil, NamedPattern("ghost", SlotOf("boo", Var("b")))),
			check: func(err error) bool {
				return errors.As(err, &ut)
			},
		},
		{
			name: "no name",
			rule: emitRule("", 0, Nil, OrderedPattern("a")),
			check: func(err error) bool {
				return errors.As(err, &ce)
			},
		},
	}

	for _, tst := range tests {
		t.Run(tst.name, func(t *testing.T) {
			err := e.AddRule(ctx, tst.rule)
			if err == nil {
				t.Fatal("should have failed")
			}
			if !tst.check(err) {
				t.Fatalf("unexpected error %#v", err)
			}
			if n := e.Network().Count(""); n != 0 {
				t.Fatalf("network has %d nodes", n)
			}
			if e.Template("a") != nil {
				t.Fatal("failed compilation registered a template")
			}
		})
	}
}

func TestPriming(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	mustAssert(t, e, Ordered("a", Int(1)))
	mustAssert(t, e, Ordered("b", Int(1)))
	mustAssert(t, e, Ordered("c", Int(1)))

	if err := e.AddRule(ctx, abRule("r1")); err != nil {
		t.Fatal(err)
	}
	checkAgenda(t, e, 1)

	if _, err := e.Run(ctx, nil); err != nil {
		t.Fatal(err)
	}
	checkAgenda(t, e, 0)

	// Shares r1's join.  r1 must not fire again.
	r2 := emitRule("r2", 0, Var("y"),
		OrderedPattern("a", Var("y")),
		OrderedPattern("b", Var("y")),
		OrderedPattern("c", Var("y")))
	if err := e.AddRule(ctx, r2); err != nil {
		t.Fatal(err)
	}
	acts := e.Agenda()
	if len(acts) != 1 || acts[0].Rule().Name != "r2" {
		t.Fatal(acts)
	}

	// Negated join built late.
	r3 := emitRule("r3", 0, Var("x"),
		OrderedPattern("a", Var("x")),
		Not(OrderedPattern("d", Var("x"))))
	if err := e.AddRule(ctx, r3); err != nil {
		t.Fatal(err)
	}
	checkAgenda(t, e, 2)
}

func TestRedefineRule(t *testing.T) {
	e := newTestEngine(t, abRule("r"))
	mustAssert(t, e, Ordered("a", Int(1)))
	mustAssert(t, e, Ordered("b", Int(1)))
	checkAgenda(t, e, 1)

	r := emitRule("r", 0, Var("x"), OrderedPattern("c", Var("x")))
	if err := e.AddRule(context.Background(), r); err != nil {
		t.Fatal(err)
	}
	checkAgenda(t, e, 0)
	if n := len(e.Rules()); n != 1 {
		t.Fatal(n)
	}
	// type+length for c and a terminal.
	if n := e.Network().Count(""); n != 3 {
		t.Fatal(n)
	}
}

func TestSalience(t *testing.T) {
	e := newTestEngine(t,
		emitRule("low", -5, Sym("low")),
		emitRule("mid", 0, Sym("mid")),
		emitRule("high", 10, Sym("high")))
	ran, err := e.Run(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"high", "mid", "low"}, ran.Rules); diff != "" {
		t.Fatal(diff)
	}
}

func TestStrategies(t *testing.T) {
	for _, tst := range []struct {
		strategy Strategy
		want     []interface{}
	}{
		{Depth, []interface{}{int64(3), int64(2), int64(1)}},
		{Breadth, []interface{}{int64(1), int64(2), int64(3)}},
	} {
		t.Run(tst.strategy.String(), func(t *testing.T) {
			e := NewEngine(&Options{Strategy: tst.strategy})
			ctx := context.Background()
			if err := e.AddRule(ctx, emitRule("item", 0, Var("x"), OrderedPattern("item", Var("x")))); err != nil {
				t.Fatal(err)
			}
			for i := 1; i <= 3; i++ {
				mustAssert(t, e, Ordered("item", Int(int64(i))))
			}
			ran, err := e.Run(ctx, nil)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tst.want, ran.Emitted); diff != "" {
				t.Fatal(diff)
			}
		})
	}
}

func TestRunControl(t *testing.T) {
	ctx := context.Background()

	t.Run("limit", func(t *testing.T) {
		e := newTestEngine(t,
			emitRule("a", 3, Sym("a")),
			emitRule("b", 2, Sym("b")),
			emitRule("c", 1, Sym("c")))
		ran, err := e.Run(ctx, &Control{Limit: 2})
		if err != nil {
			t.Fatal(err)
		}
		if ran.Fired != 2 || ran.StoppedBecause != Limited {
			t.Fatal(ran)
		}
		checkAgenda(t, e, 1)
	})

	t.Run("halt", func(t *testing.T) {
		halter := &Rule{
			Name:     "halter",
			Salience: 1,
			Actions: []Action{
				&FuncAction{F: func(ctx context.Context, f *Firing) error {
					f.Halt()
					return nil
				}},
			},
		}
		e := newTestEngine(t, halter, emitRule("next", 0, Sym("next")))
		ran, err := e.Run(ctx, nil)
		if err != nil {
			t.Fatal(err)
		}
		if ran.Fired != 1 || ran.StoppedBecause != Halted {
			t.Fatal(ran)
		}
		if ran, err = e.Run(ctx, nil); err != nil {
			t.Fatal(err)
		}
		if ran.Fired != 1 || ran.StoppedBecause != Done {
			t.Fatal(ran)
		}
	})

	t.Run("canceled", func(t *testing.T) {
		e := newTestEngine(t, emitRule("a", 0, Sym("a")))
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		ran, err := e.Run(cctx, nil)
		if err != nil {
			t.Fatal(err)
		}
		if ran.Fired != 0 || ran.StoppedBecause != Canceled {
			t.Fatal(ran)
		}
	})

	t.Run("breakpoint", func(t *testing.T) {
		e := newTestEngine(t,
			emitRule("a", 1, Sym("a")),
			emitRule("b", 0, Sym("b")))
		c := &Control{
			Breakpoints: map[string]Breakpoint{
				"at-b": func(ctx context.Context, a *Activation) bool {
					return a.Rule().Name == "b"
				},
			},
		}
		ran, err := e.Run(ctx, c)
		if err != nil {
			t.Fatal(err)
		}
		if ran.Fired != 1 || ran.StoppedBecause != BreakpointReached || ran.BreakpointId != "at-b" {
			t.Fatal(ran)
		}
	})

	t.Run("action error", func(t *testing.T) {
		r := &Rule{
			Name: "bad",
			Actions: []Action{
				&CallAction{Call: &FuncCall{Name: "no-such-function"}},
			},
		}
		e := newTestEngine(t, r)
		ran, err := e.Run(ctx, nil)
		var ae *ActionError
		if !errors.As(err, &ae) || ae.Rule != "bad" {
			t.Fatal(err)
		}
		if ran.StoppedBecause != InternalError {
			t.Fatal(ran.StoppedBecause)
		}
	})
}

func TestTemplatesAndModify(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	err := e.Deftemplate(&Template{
		Name: "person",
		Slots: []SlotDef{
			{Name: "name"},
			{Name: "age", Default: Int(0)},
			{Name: "tags", Multi: true},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	adults := &Rule{
		Name: "adult",
		Patterns: []*Pattern{
			Bind("p", NamedPattern("person",
				SlotOf("name", Var("n")),
				SlotOf("age", Elem(Eq(Var("a")), Pred(&FuncCall{Name: ">", Args: []Value{Var("a"), Int(17)}}))))),
		},
	}
	if err = e.AddRule(ctx, adults); err != nil {
		t.Fatal(err)
	}

	id := mustAssert(t, e, Unordered("person", map[string]Value{"name": Sym("fred")}))
	f := e.Fact(id)
	if age, _ := f.Slot("age"); !age.Equal(Int(0)) {
		t.Fatal(age)
	}
	if tags, _ := f.Slot("tags"); !tags.Equal(List()) {
		t.Fatal(tags)
	}
	checkAgenda(t, e, 0)

	id2, err := e.Modify(ctx, id, map[string]Value{"age": Int(42)})
	if err != nil {
		t.Fatal(err)
	}
	if id2 == id || e.Fact(id) != nil {
		t.Fatal("modify didn't replace")
	}
	if age, _ := e.Fact(id2).Slot("age"); !age.Equal(Int(42)) {
		t.Fatal(age)
	}
	checkAgenda(t, e, 1)
	if s := e.Fact(id2).String(); s != "(person (name fred) (age 42) (tags))" {
		t.Fatal(s)
	}

	var us *UnknownSlot
	if _, err = e.Assert(ctx, Unordered("person", map[string]Value{"height": Int(2)})); !errors.As(err, &us) {
		t.Fatal(err)
	}
	if _, err = e.Modify(ctx, id2, map[string]Value{"height": Int(2)}); !errors.As(err, &us) {
		t.Fatal(err)
	}
	if _, err = e.Modify(ctx, 0, map[string]Value{"x": Int(2)}); !errors.Is(err, ErrOrderedModify) {
		t.Fatal(err)
	}
	var ut *UnknownTemplate
	if _, err = e.Assert(ctx, Unordered("ghost", map[string]Value{"x": Int(2)})); !errors.As(err, &ut) {
		t.Fatal(err)
	}

	if err = e.Deftemplate(&Template{Name: "person", Slots: []SlotDef{{Name: "x"}}}); err == nil {
		t.Fatal("redefined template")
	}
}

func TestModifyAction(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	if err := e.Deftemplate(&Template{
		Name:  "counter",
		Slots: []SlotDef{{Name: "n", Default: Int(0)}},
	}); err != nil {
		t.Fatal(err)
	}
	incr := &Rule{
		Name: "incr",
		Patterns: []*Pattern{
			Bind("c", NamedPattern("counter",
				SlotOf("n", Elem(Eq(Var("n")), Pred(&FuncCall{Name: ">", Args: []Value{Int(3), Var("n")}}))))),
		},
		Actions: []Action{
			&CallAction{Call: &FuncCall{Name: "modify", Args: []Value{
				Var("c"),
				Call("n", Call("+", Var("n"), Int(1))),
			}}},
		},
	}
	if err := e.AddRule(ctx, incr); err != nil {
		t.Fatal(err)
	}
	mustAssert(t, e, Unordered("counter", nil))
	ran, err := e.Run(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if ran.Fired != 3 {
		t.Fatal(ran.Fired)
	}
	fs := e.Facts()
	if n, _ := fs[len(fs)-1].Slot("n"); !n.Equal(Int(3)) {
		t.Fatal(fs)
	}
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, emitRule("x", 0, Var("v"), OrderedPattern("x", Var("v"))))
	e.Deffacts("startup", Ordered("x", Int(1)), Ordered("x", Int(2)))
	if err := e.Reset(ctx); err != nil {
		t.Fatal(err)
	}
	fs := e.Facts()
	if len(fs) != 3 || fs[0].ID != 0 || fs[0].Type != InitialFact || fs[2].ID != 2 {
		t.Fatal(fs)
	}
	checkAgenda(t, e, 2)
	if _, err := e.Run(ctx, nil); err != nil {
		t.Fatal(err)
	}
	mustAssert(t, e, Ordered("y"))

	if err := e.Reset(ctx); err != nil {
		t.Fatal(err)
	}
	if fs = e.Facts(); len(fs) != 3 {
		t.Fatal(fs)
	}
	checkAgenda(t, e, 2)
	for _, n := range e.Network().Nodes {
		if n.Kind == "terminal" && n.Left != 2 {
			t.Fatal(n)
		}
	}

	if err := e.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	if n := len(e.Rules()); n != 0 {
		t.Fatal(n)
	}
	if fs = e.Facts(); len(fs) != 1 {
		t.Fatal(fs)
	}
}

func TestObservers(t *testing.T) {
	c := make(ChanObserver, 16)
	e := newTestEngine(t, emitRule("x", 0, Var("v"), OrderedPattern("x", Var("v"))))
	unsubscribe := e.Subscribe(c)
	mustAssert(t, e, Ordered("x", Int(1)))

	var kinds []EventKind
	for len(c) > 0 {
		kinds = append(kinds, (<-c).Kind)
	}
	if diff := cmp.Diff([]EventKind{FactAsserted, ActivationCreated}, kinds); diff != "" {
		t.Fatal(diff)
	}

	unsubscribe()
	mustAssert(t, e, Ordered("x", Int(2)))
	if len(c) != 0 {
		t.Fatal("unsubscribed observer notified")
	}
}
