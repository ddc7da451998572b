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

// Package match queries facts (in their plain map form) with
// JSON-ish patterns.
//
// This matcher is for looking at working memory from the outside:
// the session "query" op, the expect harness, and the Javascript
// match() helper.  Rules themselves are compiled into the engine's
// network and don't use this package.
//
// A pattern is plain data.  A string starting with '?' is a
// variable.  "?" alone matches anything without binding.  A variable
// starting with "??" is optional: a map property with that variable
// as its value doesn't have to be present.  In an array, "$?x"
// matches the rest of the array (as an array), which is like a
// multifield variable at the end of a rule pattern.
//
// A map pattern matches a map that has at least the pattern's
// properties.  An array pattern matches element by element.  Numbers
// are compared as float64s.
package match

import (
	"errors"
	"strings"
)

// Matcher holds the matcher's switches.
type Matcher struct {
	// AllowPropertyVariables enables a variable as the key in a
	// map pattern with exactly one property.  Every property of
	// the fact is tried, so there can be several results.
	AllowPropertyVariables bool

	// Inequalities enables numeric inequality variables.
	//
	// The input bindings must include a binding for a variable
	// whose name has "<", ">", "<=", ">=", or "!=" right after
	// the '?'.  A value X matches that variable only if X and the
	// binding Y satisfy the inequality (in that order).  The
	// output bindings then also have X bound to the variable
	// without the inequality.
	//
	// For example, given bindings {"?<n":10}, pattern
	// {"n":"?<n"}, and fact {"n":3}, the match succeeds with
	// bindings {"?<n":10,"?n":3}.
	Inequalities bool
}

// DefaultMatcher has everything turned on.
var DefaultMatcher = &Matcher{
	AllowPropertyVariables: true,
	Inequalities:           true,
}

// Bindings is a map from variables (strings starting with a '?') to
// their values.
type Bindings map[string]interface{}

func NewBindings() Bindings {
	return make(Bindings, 8)
}

// Extend adds the binding.
//
// The Bindings are modified.
func (bs Bindings) Extend(p string, v interface{}) Bindings {
	bs[p] = v
	return bs
}

// Remove removes the given variables.
//
// The Bindings are modified.
func (bs Bindings) Remove(ps ...string) Bindings {
	for _, p := range ps {
		delete(bs, p)
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

// IsVariable reports if the string represents a pattern variable.
func IsVariable(s string) bool {
	return strings.HasPrefix(s, "?")
}

func isOptional(x interface{}) bool {
	s, is := x.(string)
	return is && strings.HasPrefix(s, "??")
}

func isRest(x interface{}) bool {
	s, is := x.(string)
	return is && strings.HasPrefix(s, "$?")
}

// UnknownPatternType is an error that includes the thing that's
// causing the trouble.
type UnknownPatternType struct {
	Pattern interface{}
}

func (e *UnknownPatternType) Error() string {
	return "unknown pattern type"
}

// fudge casts numbers to float64s.
func fudge(x interface{}) interface{} {
	switch vv := x.(type) {
	case float32:
		return float64(vv)
	case int64:
		return float64(vv)
	case int32:
		return float64(vv)
	case int:
		return float64(vv)
	case map[string]string:
		m := make(map[string]interface{}, len(vv))
		for k, v := range vv {
			m[k] = v
		}
		return m
	case []string:
		xs := make([]interface{}, len(vv))
		for i, s := range vv {
			xs[i] = s
		}
		return xs
	}
	return x
}

// Match attempts to match the given fact with the given pattern.
// The given bindings are not modified.  No results (and no error)
// means no match.
func (m *Matcher) Match(pattern interface{}, fact interface{}, bindings Bindings) ([]Bindings, error) {
	if bindings == nil {
		bindings = NewBindings()
	}
	return m.match(pattern, fact, bindings.Copy())
}

// match can modify the bindings.
func (m *Matcher) match(pattern interface{}, fact interface{}, bs Bindings) ([]Bindings, error) {
	pattern = fudge(pattern)
	fact = fudge(fact)

	switch p := pattern.(type) {
	case nil:
		if fact == nil {
			return []Bindings{bs}, nil
		}
		return nil, nil

	case bool:
		if b, is := fact.(bool); is && b == p {
			return []Bindings{bs}, nil
		}
		return nil, nil

	case float64:
		if x, is := fact.(float64); is && x == p {
			return []Bindings{bs}, nil
		}
		return nil, nil

	case string:
		if !IsVariable(p) {
			if s, is := fact.(string); is && s == p {
				return []Bindings{bs}, nil
			}
			return nil, nil
		}
		return m.variable(p, fact, bs)

	case map[string]interface{}:
		f, is := fact.(map[string]interface{})
		if !is {
			return nil, nil
		}
		return m.matchMap(p, f, bs)

	case []interface{}:
		f, is := fact.([]interface{})
		if !is {
			return nil, nil
		}
		return m.matchArray(p, f, bs)
	}
	return nil, &UnknownPatternType{pattern}
}

func (m *Matcher) variable(v string, fact interface{}, bs Bindings) ([]Bindings, error) {
	if v == "?" || v == "??" {
		return []Bindings{bs}, nil
	}
	if using, bss := m.inequal(fact, bs, v); using {
		return bss, nil
	}
	if isOptional(v) {
		v = v[1:]
	}
	if bound, have := bs[v]; have {
		return m.match(bound, fact, bs)
	}
	bs[v] = fact
	return []Bindings{bs}, nil
}

func (m *Matcher) matchMap(p, f map[string]interface{}, bs Bindings) ([]Bindings, error) {
	if len(p) == 1 && m.AllowPropertyVariables {
		for k, v := range p {
			if IsVariable(k) {
				return m.propertyVariable(k, v, f, bs)
			}
		}
	}

	bss := []Bindings{bs}
	for k, v := range p {
		if IsVariable(k) {
			return nil, errors.New(`can't have a variable as a key ("` + k + `") here`)
		}
		fv, have := f[k]
		if !have {
			if isOptional(v) {
				continue
			}
			return nil, nil
		}
		var acc []Bindings
		for _, bs := range bss {
			more, err := m.match(v, fv, bs)
			if err != nil {
				return nil, err
			}
			acc = append(acc, more...)
		}
		if len(acc) == 0 {
			return nil, nil
		}
		bss = acc
	}
	return bss, nil
}

func (m *Matcher) propertyVariable(k string, v interface{}, f map[string]interface{}, bs Bindings) ([]Bindings, error) {
	var acc []Bindings
	for fk, fv := range f {
		keyed, err := m.match(k, fk, bs.Copy())
		if err != nil {
			return nil, err
		}
		for _, kbs := range keyed {
			more, err := m.match(v, fv, kbs)
			if err != nil {
				return nil, err
			}
			acc = append(acc, more...)
		}
	}
	return acc, nil
}

// matchArray goes element by element.  A "$?x" at the end of the
// pattern takes what's left of the fact.
func (m *Matcher) matchArray(p, f []interface{}, bs Bindings) ([]Bindings, error) {
	n := len(p)
	var rest string
	if 0 < n && isRest(p[n-1]) {
		rest = p[n-1].(string)[1:]
		n--
		if len(f) < n {
			return nil, nil
		}
	} else if len(f) != n {
		return nil, nil
	}

	bss := []Bindings{bs}
	for i := 0; i < n; i++ {
		var acc []Bindings
		for _, bs := range bss {
			more, err := m.match(p[i], f[i], bs)
			if err != nil {
				return nil, err
			}
			acc = append(acc, more...)
		}
		if len(acc) == 0 {
			return nil, nil
		}
		bss = acc
	}

	if rest == "" {
		return bss, nil
	}
	tail := make([]interface{}, len(f)-n)
	copy(tail, f[n:])
	var acc []Bindings
	for _, bs := range bss {
		more, err := m.match(rest, tail, bs)
		if err != nil {
			return nil, err
		}
		acc = append(acc, more...)
	}
	return acc, nil
}

// inequal handles inequality variables.  It returns false if v isn't
// one (or isn't usable as one given the bindings and the fact).
func (m *Matcher) inequal(fact interface{}, bs Bindings, v string) (bool, []Bindings) {
	if !m.Inequalities || len(v) < 3 {
		return false, nil
	}
	y, have := bs[v]
	if !have {
		return false, nil
	}
	b, is := fudge(y).(float64)
	if !is {
		return false, nil
	}
	a, is := fact.(float64)
	if !is {
		return false, nil
	}

	var op, plain string
	for _, ie := range []string{"<=", ">=", "!=", ">", "<"} {
		if strings.HasPrefix(v[1:], ie) {
			op = ie
			plain = "?" + v[1+len(ie):]
			break
		}
	}
	if op == "" {
		return false, nil
	}

	var ok bool
	switch op {
	case "<":
		ok = a < b
	case "<=":
		ok = a <= b
	case ">":
		ok = a > b
	case ">=":
		ok = a >= b
	case "!=":
		ok = a != b
	}
	if !ok {
		return true, nil
	}

	if x, given := bs[plain]; given {
		if c, is := fudge(x).(float64); !is || c != a {
			return true, nil
		}
		return true, []Bindings{bs}
	}
	bs[plain] = a
	return true, []Bindings{bs}
}

// Found is a fact and the bindings from one way it matched.
type Found struct {
	Fact     map[string]interface{} `json:"fact"`
	Bindings Bindings               `json:"bindings"`
}

// Query matches the pattern against each fact.  Results are in the
// order of the facts.
func (m *Matcher) Query(pattern interface{}, facts []map[string]interface{}, bs Bindings) ([]Found, error) {
	var acc []Found
	for _, f := range facts {
		bss, err := m.Match(pattern, f, bs)
		if err != nil {
			return nil, err
		}
		for _, b := range bss {
			acc = append(acc, Found{
				Fact:     f,
				Bindings: b,
			})
		}
	}
	return acc, nil
}

// Match uses the DefaultMatcher.
func Match(pattern interface{}, fact interface{}, bindings Bindings) ([]Bindings, error) {
	return DefaultMatcher.Match(pattern, fact, bindings)
}

// Query uses the DefaultMatcher.
func Query(pattern interface{}, facts []map[string]interface{}, bindings Bindings) ([]Found, error) {
	return DefaultMatcher.Query(pattern, facts, bindings)
}
