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

package goja

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Comcast/jess/core"
	. "github.com/Comcast/jess/util/testutil"

	"github.com/dop251/goja"
	"github.com/google/go-cmp/cmp"
)

// fire runs a rule matching (go ?x) with ?x bound to 3.  The rule's
// actions are the given ones followed by one that captures the
// bindings.
func fire(ctx context.Context, t *testing.T, as ...core.Action) (*core.Engine, *core.Ran, core.Bindings, error) {
	var got core.Bindings
	as = append(as, &core.FuncAction{
		F: func(ctx context.Context, f *core.Firing) error {
			got = f.Bindings.Copy()
			return nil
		},
	})
	e := core.NewEngine(&core.Options{Evaluator: NewEvaluator(nil)})
	for _, tmpl := range []*core.Template{
		{Name: "person", Slots: []core.SlotDef{{Name: "name"}, {Name: "age"}}},
		{Name: "point", Slots: []core.SlotDef{{Name: "x"}, {Name: "y"}}},
	} {
		if err := e.Deftemplate(tmpl); err != nil {
			t.Fatal(err)
		}
	}
	r := &core.Rule{
		Name:     "go",
		Patterns: []*core.Pattern{core.OrderedPattern("go", core.Var("x"))},
		Actions:  as,
	}
	if err := e.AddRule(ctx, r); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Assert(ctx, core.Ordered("go", core.Int(3))); err != nil {
		t.Fatal(err)
	}
	ran, err := e.Run(ctx, &core.Control{Limit: 10})
	return e, ran, got, err
}

func compile(ctx context.Context, t *testing.T, i *Interpreter, src interface{}) core.Action {
	a := &core.ActionSource{
		Interpreter: "js",
		Source:      src,
	}
	action, err := a.Compile(ctx, map[string]core.Interpreter{"js": i})
	if err != nil {
		t.Fatal(err)
	}
	return action
}

func TestActionsSimple(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	i := NewInterpreter()
	code := `_.out({x: _.bindings.x}); return {likes: "chips", y: _.bindings.x + 1};`
	_, ran, bs, err := fire(ctx, t, compile(ctx, t, i, code))
	if err != nil {
		t.Fatal(err)
	}

	if !bs["likes"].Equal(core.Sym("chips")) {
		t.Fatalf("nothing liked in %s", bs)
	}
	if !bs["y"].Equal(core.Int(4)) {
		t.Fatalf("bad y in %s", bs)
	}
	want := []interface{}{Dwimjs(`{"x":3}`)}
	if diff := cmp.Diff(want, ran.Emitted); diff != "" {
		t.Fatal(diff)
	}
}

func TestActionsWorkingMemory(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	i := NewInterpreter()
	code := `
var id = _.assert("seen", _.bindings.x, "three");
var named = _.assert({type: "person", name: "homer", age: 39});
var older = _.modify(named, {age: 40});
_.retract(id);
var fs = _.facts();
_.out({n: fs.length, age: _.fact(older).age, gone: _.fact(id) === null});
_.halt();
`
	e, ran, _, err := fire(ctx, t, compile(ctx, t, i, code))
	if err != nil {
		t.Fatal(err)
	}
	if ran.StoppedBecause != core.Halted {
		t.Fatal(ran.StoppedBecause)
	}
	// initial-fact, (go 3), and the modified person.
	want := []interface{}{Dwimjs(`{"n":3,"age":40,"gone":true}`)}
	if diff := cmp.Diff(want, ran.Emitted); diff != "" {
		t.Fatal(diff)
	}
	if n := len(e.Facts()); n != 3 {
		t.Fatal(n)
	}
}

func TestActionsAssertSlots(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	i := NewInterpreter()
	e, _, _, err := fire(ctx, t, compile(ctx, t, i, `_.assertSlots("point", {x: _.bindings.x, y: 1.5});`))
	if err != nil {
		t.Fatal(err)
	}
	var found bool
	for _, f := range e.Facts() {
		if f.Type != "point" {
			continue
		}
		found = true
		if x, _ := f.Slot("x"); !x.Equal(core.Int(3)) {
			t.Fatal(f)
		}
		if y, _ := f.Slot("y"); !y.Equal(core.Float(1.5)) {
			t.Fatal(f)
		}
	}
	if !found {
		t.Fatal("no point")
	}
}

func TestActionsTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	i := NewInterpreter()
	i.Testing = true
	_, _, _, err := fire(ctx, t, compile(ctx, t, i, `for (;;) { sleep(10); }`))
	if !errors.Is(err, Interrupted) {
		t.Fatalf("surprised by %v", err)
	}
}

func TestActionsError(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	i := NewInterpreter()
	_, _, _, err := fire(ctx, t, compile(ctx, t, i, `likes + tacos;`))
	var ae *core.ActionError
	if !errors.As(err, &ae) {
		t.Fatalf("didn't protest: %v", err)
	}

	if _, err := i.Compile(ctx, `this won't compile {`); err == nil {
		t.Fatal("didn't protest")
	}

	if _, _, _, err = fire(ctx, t, compile(ctx, t, i, `return 42;`)); err == nil {
		t.Fatal("42 isn't bindings")
	}
}

func TestActionsCronNextGood(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	i := NewInterpreter()
	_, _, bs, err := fire(ctx, t, compile(ctx, t, i, `return {next: _.cronNext("* 0 * * *")};`))
	if err != nil {
		t.Fatal(err)
	}
	next := bs["next"]
	if _, err := time.Parse(time.RFC3339Nano, next.Text()); err != nil {
		t.Fatalf("%s: %s", next, err)
	}
}

func TestActionsCronNextBad(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	i := NewInterpreter()
	if _, _, _, err := fire(ctx, t, compile(ctx, t, i, `return {next: _.cronNext("bad")};`)); err == nil {
		t.Fatal("didn't protest")
	}
}

func TestActionsMatch(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	i := NewInterpreter()
	code := `
var bss = _.match({wants: "?w"}, {wants: "tacos", n: _.bindings.x});
return {wants: bss[0]["?w"], n: bss.length};
`
	_, _, bs, err := fire(ctx, t, compile(ctx, t, i, code))
	if err != nil {
		t.Fatal(err)
	}
	if !bs["wants"].Equal(core.Sym("tacos")) || !bs["n"].Equal(core.Int(1)) {
		t.Fatal(bs)
	}
}

func TestActionsDefaultInterpreters(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	a := &core.ActionSource{
		Interpreter: "goja",
		Source:      `var bs = _.bindings; bs.want = "tacos"; return bs;`,
	}
	action, err := a.Compile(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	_, _, bs, err := fire(ctx, t, action)
	if err != nil {
		t.Fatal(err)
	}
	if !bs["want"].Equal(core.Sym("tacos")) || !bs["x"].Equal(core.Int(3)) {
		t.Fatal(bs)
	}
}

func TestActionsRequireSimple(t *testing.T) {
	code := map[string]interface{}{
		"requires": []interface{}{"foo", "bar"},
		"code":     `return {likes: foo(), side: bar()}`,
	}

	i := NewInterpreter()
	i.LibraryProvider = MakeMapLibraryProvider(map[string]string{
		"foo": `
function foo() {
  var acc = [];
  for (var i = 0; i < 10; i++) {
      acc.push(i);
  }
  return "chips";
}
`,
		"bar": `
require("baz");
function bar() { return baz(); }
`,
		"baz": `function baz() { return "queso"; }`,
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, _, bs, err := fire(ctx, t, compile(ctx, t, i, code))
	if err != nil {
		t.Fatal(err)
	}
	if !bs["likes"].Equal(core.Sym("chips")) || !bs["side"].Equal(core.Sym("queso")) {
		t.Fatal(bs)
	}
}

func TestActionsRequireCycle(t *testing.T) {
	i := NewInterpreter()
	i.LibraryProvider = MakeMapLibraryProvider(map[string]string{
		"a": `require("b");`,
		"b": `require("a");`,
	})
	code := map[string]interface{}{
		"requires": "a",
		"code":     `return null;`,
	}
	if _, err := i.Compile(context.Background(), code); err == nil {
		t.Fatal("should have failed")
	}
}

func TestActionsLibraryCompileError(t *testing.T) {
	i := NewInterpreter()
	i.LibraryProvider = MakeMapLibraryProvider(map[string]string{
		"foo": `
function foo() this cond won't compile { return 0; }
`,
	})
	code := map[string]interface{}{
		"requires": "foo",
		"code":     `return {likes: foo()};`,
	}
	if _, err := i.Compile(context.Background(), code); err == nil {
		t.Fatal("should have failed")
	}
}

func TestActionsRequireHTTP(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `
function foo() { return "queso"; }
`)
	})

	server := httptest.NewServer(handler)
	defer server.Close()

	code := map[string]interface{}{
		"requires": []interface{}{server.URL},
		"code":     `return {wants: foo()}`,
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	i := NewInterpreter()
	_, _, bs, err := fire(ctx, t, compile(ctx, t, i, code))
	if err != nil {
		t.Fatal(err)
	}
	if !bs["wants"].Equal(core.Sym("queso")) {
		t.Fatal(bs)
	}
}

func TestInlineRequires(t *testing.T) {
	src := `require("a");
var x = a() + 1;
require("b") ;
x + b();`
	provider := func(ctx context.Context, name string) (string, error) {
		return fmt.Sprintf("function %s() { return 1; }", name), nil
	}
	got, err := InlineRequires(context.Background(), src, provider)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(got, "require") {
		t.Fatal(got)
	}
	v, err := goja.New().RunString(got)
	if err != nil {
		t.Fatalf("%s: %s", got, err)
	}
	if n := v.ToInteger(); n != 3 {
		t.Fatalf("%s: %d", got, n)
	}

	if _, err = InlineRequires(context.Background(), `require(42);`, provider); err == nil {
		t.Fatal("should have failed")
	}
}

func benchmarkCompiling(b *testing.B, compiling bool) {
	code := `
function radians(num) {
  return num * Math.PI / 180;
}

function haversine(lon1, lat1, lon2, lat2) {
  var R = 6371;
  var dLat = radians(lat2-lat1);
  var dLon = radians(lon2-lon1);
  lat1 = radians(lat1);
  lat2 = radians(lat2);
  var a = Math.sin(dLat/2) * Math.sin(dLat/2) + Math.sin(dLon/2) * Math.sin(dLon/2) * Math.cos(lat1) * Math.cos(lat2);
  return R * 2 * Math.atan2(Math.sqrt(a), Math.sqrt(1-a));
}

return {d: haversine(0, 0, _.bindings.x, _.bindings.x)};
`

	ctx := context.Background()
	i := NewInterpreter()

	var compiled interface{}
	if compiling {
		var err error
		if compiled, err = i.Compile(ctx, code); err != nil {
			b.Fatal(err)
		}
	}

	e := core.NewEngine(nil)
	action := &core.FuncAction{
		F: func(ctx context.Context, f *core.Firing) error {
			for n := 0; n < b.N; n++ {
				if err := i.Exec(ctx, f, code, compiled); err != nil {
					return err
				}
			}
			return nil
		},
	}
	r := &core.Rule{
		Name:     "bench",
		Patterns: []*core.Pattern{core.OrderedPattern("go", core.Var("x"))},
		Actions:  []core.Action{action},
	}
	if err := e.AddRule(ctx, r); err != nil {
		b.Fatal(err)
	}
	if _, err := e.Assert(ctx, core.Ordered("go", core.Int(3))); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	if _, err := e.Run(ctx, nil); err != nil {
		b.Fatal(err)
	}
}

func BenchmarkPrecompile(b *testing.B) {
	benchmarkCompiling(b, true)
}

func BenchmarkNoPrecompile(b *testing.B) {
	benchmarkCompiling(b, false)
}
