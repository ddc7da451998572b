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
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/Comcast/jess/core"
	"github.com/Comcast/jess/interpreters/goja"
)

// Parser turns the pieces of a rule base document into core
// structures.
//
// Templates determine whether "(person (name ?n))" is a pattern for
// a named-slot fact or for an ordered fact.  Interpreters compile
// non-native actions; nil means core.DefaultInterpreters.
type Parser struct {
	Templates    map[string]*core.Template
	Interpreters map[string]core.Interpreter
}

// NewParser makes a Parser that knows the given templates.
func NewParser(ts ...*core.Template) *Parser {
	p := &Parser{
		Templates: make(map[string]*core.Template, len(ts)),
	}
	for _, t := range ts {
		p.Templates[t.Name] = t
	}
	return p
}

func (p *Parser) named(typ string) bool {
	t, have := p.Templates[typ]
	return have && !t.Ordered
}

// atomValue interprets a bare word.
func atomValue(w string) core.Value {
	switch {
	case strings.HasPrefix(w, "$?"):
		return core.MultiVar(w[2:])
	case strings.HasPrefix(w, "?"):
		return core.Var(w[1:])
	}
	if n, err := strconv.ParseInt(w, 10, 64); err == nil {
		return core.Int(n)
	}
	if x, err := strconv.ParseFloat(w, 64); err == nil {
		return core.Float(x)
	}
	return core.Sym(w)
}

func (p *Parser) valueOf(s *sexp) (core.Value, error) {
	switch {
	case s.isList:
		c, err := p.callOf(s)
		if err != nil {
			return core.Nil, err
		}
		return core.CallOf(c), nil
	case s.quoted:
		return core.Str(s.word), nil
	}
	return atomValue(s.word), nil
}

func (p *Parser) callOf(s *sexp) (*core.FuncCall, error) {
	name := s.head()
	if name == "" {
		return nil, fmt.Errorf("%s isn't a function call", s)
	}
	c := &core.FuncCall{
		Name: name,
		Args: make([]core.Value, 0, len(s.list)-1),
	}
	for _, x := range s.list[1:] {
		v, err := p.valueOf(x)
		if err != nil {
			return nil, err
		}
		c.Args = append(c.Args, v)
	}
	if name == JSFunction && len(c.Args) == 1 && c.Args[0].Type() == core.StringType {
		return jsCall(c.Args[0].Text()), nil
	}
	return c, nil
}

// ParseCall parses "(name arg ...)".
func (p *Parser) ParseCall(src string) (*core.FuncCall, error) {
	s, err := readOne(src)
	if err != nil {
		return nil, err
	}
	return p.callOf(s)
}

// ParseValue parses one value: a word, a "string", or a call.
func (p *Parser) ParseValue(src string) (core.Value, error) {
	s, err := readOne(src)
	if err != nil {
		return core.Nil, err
	}
	return p.valueOf(s)
}

// literal is a value in an element: a word or a quoted string.
func (p *Parser) literal(src string) (core.Value, error) {
	if strings.HasPrefix(src, `"`) {
		s, err := readOne(src)
		if err != nil {
			return core.Nil, err
		}
		return p.valueOf(s)
	}
	return atomValue(src), nil
}

// Element parses a field constraint like
//
//	?x
//	$?rest
//	~red
//	?x&~?y&:(> ?x 3)
//	=(+ ?y 1)
func (p *Parser) Element(src string) ([]core.Test, error) {
	parts := splitConjunction(src)
	acc := make([]core.Test, 0, len(parts))
	for _, part := range parts {
		switch {
		case part == "":
			return nil, fmt.Errorf("empty constraint in %q", src)
		case strings.HasPrefix(part, "~"):
			v, err := p.literal(part[1:])
			if err != nil {
				return nil, err
			}
			acc = append(acc, core.Neq(v))
		case strings.HasPrefix(part, ":("):
			c, err := p.ParseCall(part[1:])
			if err != nil {
				return nil, err
			}
			acc = append(acc, core.Pred(c))
		case strings.HasPrefix(part, "=("):
			c, err := p.ParseCall(part[1:])
			if err != nil {
				return nil, err
			}
			acc = append(acc, core.Ret(c))
		default:
			v, err := p.literal(part)
			if err != nil {
				return nil, err
			}
			acc = append(acc, core.Eq(v))
		}
	}
	return acc, nil
}

func (p *Parser) elementOf(s *sexp) ([]core.Test, error) {
	switch {
	case s.isList:
		return nil, fmt.Errorf("%s can't be a field constraint", s)
	case s.quoted:
		return core.Elem(core.Eq(core.Str(s.word))), nil
	}
	return p.Element(s.word)
}

// isConstraint reports whether a document string should be read as
// element syntax rather than as a plain value.
func isConstraint(s string) bool {
	if s == "" {
		return false
	}
	switch s[0] {
	case '?', '$', '~', ':', '=', '"':
		return true
	}
	return strings.Contains(s, "&")
}

// elementFrom interprets an element from a document.
func (p *Parser) elementFrom(x interface{}) ([]core.Test, error) {
	switch vv := x.(type) {
	case string:
		if isConstraint(vv) {
			return p.Element(vv)
		}
	case []interface{}, map[string]interface{}:
		return nil, fmt.Errorf("%#v can't be a field constraint", x)
	}
	v, err := core.ValueOf(x)
	if err != nil {
		return nil, err
	}
	return core.Elem(core.Eq(v)), nil
}

func unquestion(s string) string {
	return core.Unquestion(strings.TrimSpace(s))
}

// Patterns parses a sequence of conditional elements:
//
//	?f <- (person (name ?n))
//	(not (dead ?n))
//	(test (> ?n 3))
func (p *Parser) Patterns(src string) ([]*core.Pattern, error) {
	forms, err := read(src)
	if err != nil {
		return nil, err
	}
	var acc []*core.Pattern
	for i := 0; i < len(forms); i++ {
		s := forms[i]
		if !s.isList && !s.quoted && strings.HasPrefix(s.word, "?") &&
			i+2 < len(forms) && forms[i+1].word == "<-" {
			q, err := p.patternOf(forms[i+2])
			if err != nil {
				return nil, err
			}
			acc = append(acc, core.Bind(s.word[1:], q))
			i += 2
			continue
		}
		q, err := p.patternOf(s)
		if err != nil {
			return nil, err
		}
		acc = append(acc, q)
	}
	return acc, nil
}

func (p *Parser) patternOf(s *sexp) (*core.Pattern, error) {
	typ := s.head()
	if typ == "" {
		return nil, fmt.Errorf("%s isn't a pattern", s)
	}
	args := s.list[1:]
	switch typ {
	case "not":
		if len(args) != 1 {
			return nil, fmt.Errorf("not wants one pattern in %s", s)
		}
		q, err := p.patternOf(args[0])
		if err != nil {
			return nil, err
		}
		return core.Not(q), nil
	case "test":
		calls := make([]*core.FuncCall, len(args))
		for i, a := range args {
			c, err := p.callOf(a)
			if err != nil {
				return nil, err
			}
			calls[i] = c
		}
		return core.TestPattern(calls...), nil
	case "and", "or", "exists", "forall", "logical":
		return nil, fmt.Errorf("%s isn't supported", typ)
	}

	if p.named(typ) {
		slots := make([]core.SlotPattern, len(args))
		for i, a := range args {
			name := a.head()
			if name == "" {
				return nil, fmt.Errorf("%s isn't a slot in %s", a, s)
			}
			elems := make([]interface{}, len(a.list)-1)
			for j, e := range a.list[1:] {
				ts, err := p.elementOf(e)
				if err != nil {
					return nil, err
				}
				elems[j] = ts
			}
			slots[i] = core.SlotOf(name, elems...)
		}
		return core.NamedPattern(typ, slots...), nil
	}

	elems := make([]interface{}, len(args))
	for i, a := range args {
		ts, err := p.elementOf(a)
		if err != nil {
			return nil, err
		}
		elems[i] = ts
	}
	return core.OrderedPattern(typ, elems...), nil
}

// Pattern interprets one conditional element from a document.
//
// A string uses the s-expression syntax.  A list is an ordered
// pattern whose first element is the type.  A map is one of
//
//	{not: PATTERN}
//	{test: "(> ?x 3)"} or {test: {js: "?x > 3"}}
//	{bind: "?f", pattern: PATTERN}
//	{type: person, name: "?n", age: "?a&:(> ?a 3)"}
//	{type: foo, data: [a, "$?rest"]}
func (p *Parser) Pattern(x interface{}) (*core.Pattern, error) {
	switch vv := x.(type) {
	case string:
		ps, err := p.Patterns(vv)
		if err != nil {
			return nil, err
		}
		if len(ps) != 1 {
			return nil, fmt.Errorf("wanted one pattern in %q", vv)
		}
		return ps[0], nil
	case []interface{}:
		return p.orderedFrom(vv)
	case map[string]interface{}:
		return p.patternFromMap(vv)
	case map[interface{}]interface{}:
		m, err := stringKeys(vv)
		if err != nil {
			return nil, err
		}
		return p.patternFromMap(m)
	}
	return nil, fmt.Errorf("bad pattern %#v (%T)", x, x)
}

func (p *Parser) orderedFrom(xs []interface{}) (*core.Pattern, error) {
	if len(xs) == 0 {
		return nil, errors.New("empty pattern")
	}
	typ, is := xs[0].(string)
	if !is {
		return nil, fmt.Errorf("pattern type %#v isn't a string", xs[0])
	}
	elems := make([]interface{}, len(xs)-1)
	for i, x := range xs[1:] {
		ts, err := p.elementFrom(x)
		if err != nil {
			return nil, err
		}
		elems[i] = ts
	}
	return core.OrderedPattern(typ, elems...), nil
}

func (p *Parser) patternFromMap(m map[string]interface{}) (*core.Pattern, error) {
	if x, have := m["not"]; have {
		q, err := p.Pattern(x)
		if err != nil {
			return nil, err
		}
		return core.Not(q), nil
	}

	if x, have := m["test"]; have {
		calls, err := p.testCalls(x)
		if err != nil {
			return nil, err
		}
		return core.TestPattern(calls...), nil
	}

	if x, have := m["bind"]; have {
		name, is := x.(string)
		if !is {
			return nil, fmt.Errorf("bind %#v isn't a string", x)
		}
		q, err := p.Pattern(m["pattern"])
		if err != nil {
			return nil, err
		}
		return core.Bind(unquestion(name), q), nil
	}

	typ, is := m["type"].(string)
	if !is {
		return nil, fmt.Errorf("pattern %#v needs a type", m)
	}

	if data, have := m["data"]; have {
		xs, is := data.([]interface{})
		if !is {
			return nil, fmt.Errorf("data %#v isn't a list", data)
		}
		return p.orderedFrom(append([]interface{}{typ}, xs...))
	}

	names := make([]string, 0, len(m))
	for k := range m {
		if k != "type" {
			names = append(names, k)
		}
	}
	sort.Strings(names)

	slots := make([]core.SlotPattern, len(names))
	for i, name := range names {
		var xs []interface{}
		switch vv := m[name].(type) {
		case []interface{}:
			xs = vv
		default:
			xs = []interface{}{vv}
		}
		elems := make([]interface{}, len(xs))
		for j, x := range xs {
			ts, err := p.elementFrom(x)
			if err != nil {
				return nil, fmt.Errorf("slot %s: %w", name, err)
			}
			elems[j] = ts
		}
		slots[i] = core.SlotOf(name, elems...)
	}
	return core.NamedPattern(typ, slots...), nil
}

// jsCall makes the call that the Javascript evaluator handles.
func jsCall(src string) *core.FuncCall {
	return goja.Call(src)
}

func (p *Parser) testCalls(x interface{}) ([]*core.FuncCall, error) {
	switch vv := x.(type) {
	case string:
		forms, err := read(vv)
		if err != nil {
			return nil, err
		}
		acc := make([]*core.FuncCall, len(forms))
		for i, s := range forms {
			if acc[i], err = p.callOf(s); err != nil {
				return nil, err
			}
		}
		return acc, nil
	case map[string]interface{}:
		src, is := vv["js"].(string)
		if !is {
			return nil, fmt.Errorf("bad test %#v", x)
		}
		return []*core.FuncCall{jsCall(src)}, nil
	case map[interface{}]interface{}:
		m, err := stringKeys(vv)
		if err != nil {
			return nil, err
		}
		return p.testCalls(m)
	case []interface{}:
		var acc []*core.FuncCall
		for _, y := range vv {
			cs, err := p.testCalls(y)
			if err != nil {
				return nil, err
			}
			acc = append(acc, cs...)
		}
		return acc, nil
	}
	return nil, fmt.Errorf("bad test %#v", x)
}

// When interprets a rule's left-hand side, which is a string of
// conditional elements or a list of patterns.
func (p *Parser) When(x interface{}) ([]*core.Pattern, error) {
	switch vv := x.(type) {
	case nil:
		return nil, nil
	case string:
		return p.Patterns(vv)
	case []interface{}:
		var acc []*core.Pattern
		for i, y := range vv {
			if s, is := y.(string); is {
				ps, err := p.Patterns(s)
				if err != nil {
					return nil, fmt.Errorf("pattern %d: %w", i, err)
				}
				acc = append(acc, ps...)
				continue
			}
			q, err := p.Pattern(y)
			if err != nil {
				return nil, fmt.Errorf("pattern %d: %w", i, err)
			}
			acc = append(acc, q)
		}
		return acc, nil
	}
	q, err := p.Pattern(x)
	if err != nil {
		return nil, err
	}
	return []*core.Pattern{q}, nil
}

// Fact interprets a fact from a document or from a string like
//
//	(color red green)
//	(person (name homer) (age 39))
//
// A map uses core.FactFromMap, and a list is an ordered fact whose
// first element is the type.
func (p *Parser) Fact(x interface{}) (*core.Fact, error) {
	switch vv := x.(type) {
	case string:
		s, err := readOne(vv)
		if err != nil {
			return nil, err
		}
		return p.factOf(s)
	case map[string]interface{}:
		return core.FactFromMap(vv)
	case map[interface{}]interface{}:
		m, err := stringKeys(vv)
		if err != nil {
			return nil, err
		}
		return core.FactFromMap(m)
	case []interface{}:
		if len(vv) == 0 {
			return nil, errors.New("empty fact")
		}
		typ, is := vv[0].(string)
		if !is {
			return nil, fmt.Errorf("fact type %#v isn't a string", vv[0])
		}
		v, err := core.ValueOf(vv[1:])
		if err != nil {
			return nil, err
		}
		return core.Ordered(typ, v.Items()...), nil
	}
	return nil, fmt.Errorf("bad fact %#v (%T)", x, x)
}

func (p *Parser) factOf(s *sexp) (*core.Fact, error) {
	typ := s.head()
	if typ == "" {
		return nil, fmt.Errorf("%s isn't a fact", s)
	}
	args := s.list[1:]
	if p.named(typ) {
		slots := make(map[string]core.Value, len(args))
		for _, a := range args {
			name := a.head()
			if name == "" {
				return nil, fmt.Errorf("%s isn't a slot in %s", a, s)
			}
			vs, err := p.values(a.list[1:])
			if err != nil {
				return nil, err
			}
			if t := p.Templates[typ]; t != nil {
				if i, have := t.SlotIndex(name); have && t.Slots[i].Multi {
					slots[name] = core.List(vs...)
					continue
				}
			}
			if len(vs) != 1 {
				return nil, fmt.Errorf("slot %s of %s needs one value", name, typ)
			}
			slots[name] = vs[0]
		}
		return core.Unordered(typ, slots), nil
	}
	vs, err := p.values(args)
	if err != nil {
		return nil, err
	}
	return core.Ordered(typ, vs...), nil
}

// values reads fact data.  Variables and calls aren't allowed.
func (p *Parser) values(ss []*sexp) ([]core.Value, error) {
	acc := make([]core.Value, len(ss))
	for i, s := range ss {
		if s.isList {
			return nil, fmt.Errorf("%s can't be fact data", s)
		}
		v, err := p.valueOf(s)
		if err != nil {
			return nil, err
		}
		if v.IsVariable() {
			return nil, fmt.Errorf("%s can't be fact data", s)
		}
		acc[i] = v
	}
	return acc, nil
}

// Actions interprets a rule's right-hand side.
//
// A string is a sequence of calls like
//
//	(retract ?f) (assert (state on)) (printout t "on" crlf)
//
// A map is Javascript: {js: "..."}, or {js: {code: "...",
// requires: [...]}}, or {interpreter: NAME, source: ...}.  A list can
// mix both.
func (p *Parser) Actions(ctx context.Context, x interface{}) ([]core.Action, error) {
	switch vv := x.(type) {
	case nil:
		return nil, nil
	case string:
		forms, err := read(vv)
		if err != nil {
			return nil, err
		}
		acc := make([]core.Action, len(forms))
		for i, s := range forms {
			c, err := p.callOf(s)
			if err != nil {
				return nil, err
			}
			acc[i] = &core.CallAction{Call: c}
		}
		return acc, nil
	case map[interface{}]interface{}:
		m, err := stringKeys(vv)
		if err != nil {
			return nil, err
		}
		return p.Actions(ctx, m)
	case map[string]interface{}:
		var src *core.ActionSource
		if js, have := vv["js"]; have {
			if libs, have := vv["requires"]; have {
				js = map[string]interface{}{
					"code":     js,
					"requires": libs,
				}
			}
			src = &core.ActionSource{Interpreter: JSFunction, Source: js}
		} else if name, is := vv["interpreter"].(string); is {
			src = &core.ActionSource{Interpreter: name, Source: vv["source"]}
		} else {
			return nil, fmt.Errorf("bad action %#v", vv)
		}
		a, err := src.Compile(ctx, p.Interpreters)
		if err != nil {
			return nil, fmt.Errorf("%s action: %w", src.Interpreter, err)
		}
		return []core.Action{a}, nil
	case []interface{}:
		var acc []core.Action
		for _, y := range vv {
			as, err := p.Actions(ctx, y)
			if err != nil {
				return nil, err
			}
			acc = append(acc, as...)
		}
		return acc, nil
	}
	return nil, fmt.Errorf("bad action %#v (%T)", x, x)
}

func stringKeys(m map[interface{}]interface{}) (map[string]interface{}, error) {
	acc := make(map[string]interface{}, len(m))
	for k, v := range m {
		s, is := k.(string)
		if !is {
			return nil, fmt.Errorf("bad key %#v (%T)", k, k)
		}
		acc[s] = v
	}
	return acc, nil
}
