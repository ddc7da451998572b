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

package rules

import (
	"context"
	"strings"
	"testing"

	"github.com/Comcast/jess/core"
	"github.com/Comcast/jess/interpreters"

	"github.com/stretchr/testify/require"
)

func personParser() *Parser {
	return NewParser(&core.Template{
		Name: "person",
		Slots: []core.SlotDef{
			{Name: "name"},
			{Name: "age"},
			{Name: "tags", Multi: true},
		},
	})
}

func TestRead(t *testing.T) {
	xs, err := read(`
; A comment.
(a b) (c "d)" ?x&:(> ?x 3)) ; trailing
word`)
	require.NoError(t, err)
	require.Len(t, xs, 3)
	require.Equal(t, `(a b)`, xs[0].String())
	require.Equal(t, `(c "d)" ?x&:(> ?x 3))`, xs[1].String())
	require.Equal(t, "word", xs[2].String())

	for _, src := range []string{`(a`, `)`, `"abc`, `(a "b`, `?x&:(> ?x 3`} {
		_, err := read(src)
		require.Error(t, err, src)
		var se *SyntaxError
		require.ErrorAs(t, err, &se)
	}
}

func TestSplitConjunction(t *testing.T) {
	require.Equal(t, []string{"?x", "~?y", ":(> ?x 3)"}, splitConjunction("?x&~?y&:(> ?x 3)"))
	require.Equal(t, []string{`:(eq ?x "a&b")`}, splitConjunction(`:(eq ?x "a&b")`))
	require.Equal(t, []string{"a", ""}, splitConjunction("a&"))
}

func TestElement(t *testing.T) {
	p := NewParser()

	ts, err := p.Element("?x&~?y&:(> ?x 3)")
	require.NoError(t, err)
	require.Len(t, ts, 3)
	require.Equal(t, core.TestEq, ts[0].Kind)
	require.True(t, ts[0].Value.Equal(core.Var("x")))
	require.Equal(t, core.TestNeq, ts[1].Kind)
	require.True(t, ts[1].Value.Equal(core.Var("y")))
	require.Equal(t, core.TestPred, ts[2].Kind)
	require.Equal(t, "(> ?x 3)", ts[2].Value.String())

	ts, err = p.Element("=(+ ?y 1)")
	require.NoError(t, err)
	require.Len(t, ts, 1)
	require.Equal(t, core.TestRet, ts[0].Kind)

	ts, err = p.Element(`~"a b"`)
	require.NoError(t, err)
	require.True(t, ts[0].Value.Equal(core.Str("a b")))

	for _, src := range []string{"a&", ":(> ?x", "=(", "&b"} {
		_, err := p.Element(src)
		require.Error(t, err, src)
	}
}

func TestPatterns(t *testing.T) {
	p := personParser()
	for src, want := range map[string]string{
		`(a ?x $?rest)`: `(a ?x $?rest)`,
		`?f <- (person (name ?n) (age ?a&:(> ?a 3)))`: `?f <- (person (name ?n) (age ?a&:(> ?a 3)))`,
		`(not (color ~red))`:                          `(not (color ~red))`,
		`(test (> ?x 1) (< ?x 5))`:                    `(test (> ?x 1) (< ?x 5))`,
		`(b "two words" =(+ ?x 1) 2.5)`:               `(b "two words" =(+ ?x 1) 2.5)`,
		`(n ?x&:(js "?x > 3"))`:                       `(n ?x&:(js "?x > 3" ?x))`,
		`(person (tags $? lisp $?))`:                  `(person (tags $? lisp $?))`,
	} {
		ps, err := p.Patterns(src)
		require.NoError(t, err, src)
		require.Len(t, ps, 1, src)
		require.Equal(t, want, ps[0].String())
	}

	for _, src := range []string{
		`(or (a) (b))`,
		`(not (a) (b))`,
		`(person (name))x`,
		`(person name)`,
		`(a (b))`,
		`?f <-`,
		`"str"`,
	} {
		_, err := p.Patterns(src)
		require.Error(t, err, src)
	}
}

func TestPatternFromDocument(t *testing.T) {
	p := personParser()
	for want, x := range map[string]interface{}{
		`(person (age ?a) (name homer))`: map[string]interface{}{
			"type": "person",
			"name": []interface{}{"homer"},
			"age":  "?a",
		},
		`(a 1 ?x)`: []interface{}{"a", 1, "?x"},
		`(a x $?rest)`: map[string]interface{}{
			"type": "a",
			"data": []interface{}{"x", "$?rest"},
		},
		`(not (a ?x))`: map[string]interface{}{"not": "(a ?x)"},
		`?f <- (a)`: map[interface{}]interface{}{
			"bind":    "?f",
			"pattern": []interface{}{"a"},
		},
		`(test (> ?x 2) (js "?x < 9" ?x))`: map[string]interface{}{
			"test": []interface{}{"(> ?x 2)", map[string]interface{}{"js": "?x < 9"}},
		},
	} {
		q, err := p.Pattern(x)
		require.NoError(t, err, want)
		require.Equal(t, want, q.String())
	}

	for _, x := range []interface{}{
		42,
		[]interface{}{},
		[]interface{}{1, 2},
		map[string]interface{}{"name": "homer"},
		map[string]interface{}{"type": "a", "data": "x"},
		map[string]interface{}{"type": "a", "b": []interface{}{[]interface{}{1}}},
		map[string]interface{}{"test": 42},
		map[string]interface{}{"bind": 1, "pattern": "(a)"},
	} {
		_, err := p.Pattern(x)
		require.Error(t, err, "%#v", x)
	}
}

func TestFacts(t *testing.T) {
	p := personParser()

	f, err := p.Fact(`(color red 3 2.5 "x y")`)
	require.NoError(t, err)
	require.Equal(t, "color", f.Type)
	want := []core.Value{core.Sym("red"), core.Int(3), core.Float(2.5), core.Str("x y")}
	require.Len(t, f.Slots, len(want))
	for i, v := range want {
		require.True(t, v.Equal(f.Slots[i]), f.Slots[i].String())
	}

	f, err = p.Fact(`(person (name homer) (tags dad))`)
	require.NoError(t, err)
	tags, _ := f.Slot("tags")
	require.True(t, tags.Equal(core.List(core.Sym("dad"))), tags.String())

	f, err = p.Fact([]interface{}{"point", 1, 2})
	require.NoError(t, err)
	require.Equal(t, "point", f.Type)
	require.Len(t, f.Slots, 2)

	f, err = p.Fact(map[string]interface{}{"type": "person", "name": "bart"})
	require.NoError(t, err)
	name, _ := f.Slot("name")
	require.True(t, name.Equal(core.Sym("bart")))

	for _, x := range []interface{}{
		`(a ?x)`,
		`(a (b c))`,
		`(person (name))`,
		`(a) (b)`,
		[]interface{}{},
		[]interface{}{1},
		42,
	} {
		_, err := p.Fact(x)
		require.Error(t, err, "%#v", x)
	}
}

func TestActions(t *testing.T) {
	ctx := context.Background()
	p := NewParser()
	p.Interpreters = interpreters.Interpreters()

	as, err := p.Actions(ctx, "(assert (a 1)) (emit x)")
	require.NoError(t, err)
	require.Len(t, as, 2)
	require.Equal(t, "(assert (a 1))", as[0].(*core.CallAction).String())

	as, err = p.Actions(ctx, []interface{}{
		"(emit x)",
		map[string]interface{}{"js": "_.out(1);"},
		map[interface{}]interface{}{"interpreter": "noop", "source": "anything"},
	})
	require.NoError(t, err)
	require.Len(t, as, 3)

	for _, x := range []interface{}{
		42,
		"(emit",
		"x",
		map[string]interface{}{"lua": "x"},
		map[string]interface{}{"js": "}"},
		map[string]interface{}{"interpreter": "cobol"},
	} {
		_, err := p.Actions(ctx, x)
		require.Error(t, err, "%#v", x)
	}
}

func TestParseCall(t *testing.T) {
	p := NewParser()
	c, err := p.ParseCall(`(str-cat "a" ?x (+ 1 2))`)
	require.NoError(t, err)
	require.Equal(t, "str-cat", c.Name)
	require.Equal(t, []string{"x"}, c.Variables())

	v, err := p.ParseValue("$?xs")
	require.NoError(t, err)
	require.True(t, v.Equal(core.MultiVar("xs")))

	_, err = p.ParseCall("x")
	require.Error(t, err)
	_, err = p.ParseCall("(a) (b)")
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "one form"))
}
