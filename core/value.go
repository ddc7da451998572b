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
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// ValueType is the closed set of things that can sit in a fact slot
// (or in a pattern, or in the argument list of a function call).
type ValueType int

const (
	NilType           ValueType = iota // The atom nil, which is also the zero Value.
	AtomType                           // A symbol.
	StringType                         // A quoted string.
	IntegerType                        // int64
	FloatType                          // float64
	ListType                           // A sequence of values (multislots).
	FactIDType                         // A fact identity (fact-address variables).
	VariableType                       // ?x in a pattern or call.
	MultiVariableType                  // $?x in a pattern or call.
	CallType                           // A deferred function call.
)

var valueTypeNames = []string{
	"nil", "atom", "string", "integer", "float", "list", "fact-id",
	"variable", "multivariable", "call",
}

func (t ValueType) String() string {
	if t < 0 || int(t) >= len(valueTypeNames) {
		return "unknown"
	}
	return valueTypeNames[t]
}

// Value is an immutable tagged value.
//
// The zero Value is the atom nil.
type Value struct {
	t    ValueType
	s    string
	n    int64
	x    float64
	list []Value
	call *FuncCall
}

var (
	// Nil is the nil atom.
	Nil = Value{}

	// True and False are what predicates return.
	True  = Sym("TRUE")
	False = Sym("FALSE")
)

// Sym makes an atom.  "nil" gives Nil.
func Sym(s string) Value {
	if s == "nil" {
		return Nil
	}
	return Value{t: AtomType, s: s}
}

// Str makes a string.
func Str(s string) Value {
	return Value{t: StringType, s: s}
}

// Int makes an integer.
func Int(n int64) Value {
	return Value{t: IntegerType, n: n}
}

// Float makes a float.
func Float(x float64) Value {
	return Value{t: FloatType, x: x}
}

// Bool gives True or False.
func Bool(b bool) Value {
	if b {
		return True
	}
	return False
}

// List makes a list.  The given slice is copied.
func List(vs ...Value) Value {
	acc := make([]Value, len(vs))
	copy(acc, vs)
	return Value{t: ListType, list: acc}
}

// FactID makes a fact identity value.
func FactID(id int) Value {
	return Value{t: FactIDType, n: int64(id)}
}

// Var makes a single-field variable.  The empty name is the anonymous
// variable.
func Var(name string) Value {
	return Value{t: VariableType, s: name}
}

// MultiVar makes a multifield variable.  The empty name is the
// anonymous multifield variable.
func MultiVar(name string) Value {
	return Value{t: MultiVariableType, s: name}
}

// Call makes a deferred function call.
func Call(name string, args ...Value) Value {
	return Value{t: CallType, call: &FuncCall{Name: name, Args: args}}
}

// CallOf wraps an existing FuncCall.
func CallOf(c *FuncCall) Value {
	return Value{t: CallType, call: c}
}

// Type returns the value's type.
func (v Value) Type() ValueType {
	return v.t
}

// Text returns the name of an atom, the contents of a string, or the
// name of a variable.  Otherwise it returns v.String().
func (v Value) Text() string {
	switch v.t {
	case AtomType, StringType, VariableType, MultiVariableType:
		return v.s
	case NilType:
		return "nil"
	}
	return v.String()
}

// Int returns the value as an integer if the value is numeric.
func (v Value) Int() (int64, bool) {
	switch v.t {
	case IntegerType, FactIDType:
		return v.n, true
	case FloatType:
		return int64(v.x), true
	}
	return 0, false
}

// Float returns the value as a float if the value is numeric.
func (v Value) Float() (float64, bool) {
	switch v.t {
	case IntegerType, FactIDType:
		return float64(v.n), true
	case FloatType:
		return v.x, true
	}
	return 0, false
}

// IsNumber reports whether the value is an integer or a float.
func (v Value) IsNumber() bool {
	return v.t == IntegerType || v.t == FloatType
}

// Items returns the elements of a list.  The caller must not modify
// the returned slice.
func (v Value) Items() []Value {
	if v.t != ListType {
		return nil
	}
	return v.list
}

// Len returns the number of elements in a list (or 0).
func (v Value) Len() int {
	return len(v.list)
}

// FuncCall returns the call of a CallType value (or nil).
func (v Value) FuncCall() *FuncCall {
	return v.call
}

// IsVariable reports whether the value is a variable of either kind.
func (v Value) IsVariable() bool {
	return v.t == VariableType || v.t == MultiVariableType
}

// Truthy is false only for FALSE and nil.
func (v Value) Truthy() bool {
	if v.t == NilType {
		return false
	}
	return !(v.t == AtomType && v.s == "FALSE")
}

// Equal is strict: values of different types are never equal.
// Integer 1 does not equal float 1.0.
func (v Value) Equal(o Value) bool {
	if v.t != o.t {
		return false
	}
	switch v.t {
	case NilType:
		return true
	case AtomType, StringType, VariableType, MultiVariableType:
		return v.s == o.s
	case IntegerType, FactIDType:
		return v.n == o.n
	case FloatType:
		return v.x == o.x
	case ListType:
		if len(v.list) != len(o.list) {
			return false
		}
		for i, x := range v.list {
			if !x.Equal(o.list[i]) {
				return false
			}
		}
		return true
	case CallType:
		return v.call.String() == o.call.String()
	}
	return false
}

// Key returns a canonical string that distinguishes values by type.
func (v Value) Key() string {
	switch v.t {
	case NilType:
		return "n:"
	case AtomType:
		return "a:" + strconv.Quote(v.s)
	case StringType:
		return strconv.Quote(v.s)
	case IntegerType:
		return "i:" + strconv.FormatInt(v.n, 10)
	case FloatType:
		return "f:" + strconv.FormatFloat(v.x, 'g', -1, 64)
	case FactIDType:
		return "<Fact-" + strconv.FormatInt(v.n, 10) + ">"
	case ListType:
		var b strings.Builder
		b.WriteByte('[')
		for i, x := range v.list {
			if 0 < i {
				b.WriteByte(' ')
			}
			b.WriteString(x.Key())
		}
		b.WriteByte(']')
		return b.String()
	}
	return valueTypeNames[v.t] + ":" + v.String()
}

// String renders the value in rule-language syntax.
func (v Value) String() string {
	switch v.t {
	case NilType:
		return "nil"
	case AtomType:
		return v.s
	case StringType:
		return strconv.Quote(v.s)
	case IntegerType:
		return strconv.FormatInt(v.n, 10)
	case FloatType:
		s := strconv.FormatFloat(v.x, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eEn") {
			s += ".0"
		}
		return s
	case FactIDType:
		return "<Fact-" + strconv.FormatInt(v.n, 10) + ">"
	case VariableType:
		return "?" + v.s
	case MultiVariableType:
		return "$?" + v.s
	case ListType:
		ss := make([]string, len(v.list))
		for i, x := range v.list {
			ss[i] = x.String()
		}
		return strings.Join(ss, " ")
	case CallType:
		return v.call.String()
	}
	return "?unknown?"
}

// Native converts the value to plain Go data suitable for JSON.
//
// Atoms and strings both become strings, lists become
// []interface{}, nil becomes nil, fact identities become ints.
func (v Value) Native() interface{} {
	switch v.t {
	case NilType:
		return nil
	case AtomType, StringType:
		return v.s
	case IntegerType:
		return v.n
	case FloatType:
		return v.x
	case FactIDType:
		return int(v.n)
	case ListType:
		acc := make([]interface{}, len(v.list))
		for i, x := range v.list {
			acc[i] = x.Native()
		}
		return acc
	}
	return v.String()
}

// MarshalJSON renders the native form.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Native())
}

// UnmarshalJSON uses ValueOf.
func (v *Value) UnmarshalJSON(bs []byte) error {
	var x interface{}
	if err := json.Unmarshal(bs, &x); err != nil {
		return err
	}
	y, err := ValueOf(x)
	if err != nil {
		return err
	}
	*v = y
	return nil
}

// IsSymbolic reports whether s can be written as a bare atom.
func IsSymbolic(s string) bool {
	if s == "" {
		return false
	}
	if _, err := strconv.ParseFloat(s, 64); err == nil {
		return false
	}
	for i, r := range s {
		if unicode.IsSpace(r) || strings.ContainsRune(`"();&|~`, r) {
			return false
		}
		if i == 0 && (r == '?' || r == '$' || r == ':' || r == '=') {
			return false
		}
	}
	return true
}

// ValueOf converts plain Go data (typically from JSON or YAML) into a
// Value.
//
// Symbolic strings become atoms and other strings become strings.
// Floats with integral values become integers, since JSON numbers
// arrive as float64.
func ValueOf(x interface{}) (Value, error) {
	switch vv := x.(type) {
	case nil:
		return Nil, nil
	case Value:
		return vv, nil
	case *FuncCall:
		return CallOf(vv), nil
	case bool:
		return Bool(vv), nil
	case string:
		if IsSymbolic(vv) {
			return Sym(vv), nil
		}
		return Str(vv), nil
	case int:
		return Int(int64(vv)), nil
	case int32:
		return Int(int64(vv)), nil
	case int64:
		return Int(vv), nil
	case uint64:
		return Int(int64(vv)), nil
	case float32:
		return ValueOf(float64(vv))
	case float64:
		if vv == math.Trunc(vv) && math.Abs(vv) < 1<<53 {
			return Int(int64(vv)), nil
		}
		return Float(vv), nil
	case json.Number:
		if n, err := vv.Int64(); err == nil {
			return Int(n), nil
		}
		f, err := vv.Float64()
		if err != nil {
			return Nil, err
		}
		return Float(f), nil
	case []interface{}:
		acc := make([]Value, len(vv))
		for i, y := range vv {
			z, err := ValueOf(y)
			if err != nil {
				return Nil, err
			}
			acc[i] = z
		}
		return Value{t: ListType, list: acc}, nil
	case []Value:
		return List(vv...), nil
	case []string:
		acc := make([]Value, len(vv))
		for i, s := range vv {
			acc[i], _ = ValueOf(s)
		}
		return Value{t: ListType, list: acc}, nil
	}
	return Nil, fmt.Errorf("can't make a value from %#v (%T)", x, x)
}

// MustValueOf is ValueOf that panics.
func MustValueOf(x interface{}) Value {
	v, err := ValueOf(x)
	if err != nil {
		panic(err)
	}
	return v
}

// FuncCall is a function name and its arguments, which can include
// variables and nested calls.
type FuncCall struct {
	Name string
	Args []Value
}

func (c *FuncCall) String() string {
	if c == nil {
		return "()"
	}
	var b strings.Builder
	b.WriteByte('(')
	b.WriteString(c.Name)
	for _, a := range c.Args {
		b.WriteByte(' ')
		if a.t == ListType {
			b.WriteString("(create$ ")
			b.WriteString(a.String())
			b.WriteByte(')')
			continue
		}
		b.WriteString(a.String())
	}
	b.WriteByte(')')
	return b.String()
}

// Variables returns the names of the variables that the call
// references, including those in nested calls, in order of first
// appearance.
func (c *FuncCall) Variables() []string {
	seen := make(map[string]bool)
	var acc []string
	var walk func(vs []Value)
	walk = func(vs []Value) {
		for _, v := range vs {
			switch v.t {
			case VariableType, MultiVariableType:
				if v.s != "" && !seen[v.s] {
					seen[v.s] = true
					acc = append(acc, v.s)
				}
			case CallType:
				walk(v.call.Args)
			case ListType:
				walk(v.list)
			}
		}
	}
	walk(c.Args)
	return acc
}
