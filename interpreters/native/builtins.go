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

package native

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/Comcast/jess/core"
)

var builtins = map[string]Func{
	">":  compare(func(c int) bool { return c > 0 }),
	"<":  compare(func(c int) bool { return c < 0 }),
	">=": compare(func(c int) bool { return c >= 0 }),
	"<=": compare(func(c int) bool { return c <= 0 }),
	"=":  compare(func(c int) bool { return c == 0 }),
	"<>": compare(func(c int) bool { return c != 0 }),

	"eq":  eq,
	"neq": neq,

	"+":   arith(func(a, b int64) int64 { return a + b }, func(a, b float64) float64 { return a + b }),
	"-":   arith(func(a, b int64) int64 { return a - b }, func(a, b float64) float64 { return a - b }),
	"*":   arith(func(a, b int64) int64 { return a * b }, func(a, b float64) float64 { return a * b }),
	"/":   divide,
	"mod": mod,
	"abs": abs,
	"max": extreme(func(c int) bool { return c > 0 }),
	"min": extreme(func(c int) bool { return c < 0 }),

	"not": not,

	"create$": create,
	"length$": length,
	"nth$":    nth,
	"member$": member,
	"first$":  first,
	"rest$":   rest,

	"str-cat":    strCat,
	"sym-cat":    symCat,
	"str-length": strLength,
	"upcase":     upcase,
	"lowcase":    lowcase,

	"numberp":     typep(core.IntegerType, core.FloatType),
	"integerp":    typep(core.IntegerType),
	"floatp":      typep(core.FloatType),
	"symbolp":     typep(core.AtomType),
	"stringp":     typep(core.StringType),
	"multifieldp": typep(core.ListType),

	"printout": printout,
}

var errArity = errors.New("wrong number of arguments")

func arity(args []core.Value, lo, hi int) error {
	if len(args) < lo || (0 <= hi && hi < len(args)) {
		return errArity
	}
	return nil
}

func number(v core.Value) (float64, error) {
	x, ok := v.Float()
	if !ok {
		return 0, fmt.Errorf("%s is not a number", v)
	}
	return x, nil
}

// cmp compares two numbers, or two atoms or strings.
func cmp(a, b core.Value) (int, error) {
	if a.IsNumber() && b.IsNumber() {
		if a.Type() == core.IntegerType && b.Type() == core.IntegerType {
			x, _ := a.Int()
			y, _ := b.Int()
			switch {
			case x < y:
				return -1, nil
			case x > y:
				return 1, nil
			}
			return 0, nil
		}
		x, _ := a.Float()
		y, _ := b.Float()
		switch {
		case x < y:
			return -1, nil
		case x > y:
			return 1, nil
		}
		return 0, nil
	}
	switch a.Type() {
	case core.AtomType, core.StringType:
		if b.Type() == core.AtomType || b.Type() == core.StringType {
			return strings.Compare(a.Text(), b.Text()), nil
		}
	}
	return 0, fmt.Errorf("can't compare %s and %s", a, b)
}

// compare makes a chained comparison like (< 1 2 3).
func compare(ok func(int) bool) Func {
	return func(ctx context.Context, e *Evaluator, args []core.Value) (core.Value, error) {
		if err := arity(args, 2, -1); err != nil {
			return core.Nil, err
		}
		for i := 1; i < len(args); i++ {
			c, err := cmp(args[i-1], args[i])
			if err != nil {
				return core.Nil, err
			}
			if !ok(c) {
				return core.False, nil
			}
		}
		return core.True, nil
	}
}

func eq(ctx context.Context, e *Evaluator, args []core.Value) (core.Value, error) {
	if err := arity(args, 2, -1); err != nil {
		return core.Nil, err
	}
	for _, a := range args[1:] {
		if !a.Equal(args[0]) {
			return core.False, nil
		}
	}
	return core.True, nil
}

func neq(ctx context.Context, e *Evaluator, args []core.Value) (core.Value, error) {
	if err := arity(args, 2, -1); err != nil {
		return core.Nil, err
	}
	for _, a := range args[1:] {
		if a.Equal(args[0]) {
			return core.False, nil
		}
	}
	return core.True, nil
}

// arith folds integers as integers.  A float anywhere makes the
// result a float.
func arith(fi func(a, b int64) int64, ff func(a, b float64) float64) Func {
	return func(ctx context.Context, e *Evaluator, args []core.Value) (core.Value, error) {
		if err := arity(args, 1, -1); err != nil {
			return core.Nil, err
		}
		ints := true
		for _, a := range args {
			if !a.IsNumber() {
				return core.Nil, fmt.Errorf("%s is not a number", a)
			}
			if a.Type() != core.IntegerType {
				ints = false
			}
		}
		if ints {
			acc, _ := args[0].Int()
			for _, a := range args[1:] {
				n, _ := a.Int()
				acc = fi(acc, n)
			}
			return core.Int(acc), nil
		}
		acc, _ := args[0].Float()
		for _, a := range args[1:] {
			x, _ := a.Float()
			acc = ff(acc, x)
		}
		return core.Float(acc), nil
	}
}

func divide(ctx context.Context, e *Evaluator, args []core.Value) (core.Value, error) {
	if err := arity(args, 2, -1); err != nil {
		return core.Nil, err
	}
	acc, err := number(args[0])
	if err != nil {
		return core.Nil, err
	}
	for _, a := range args[1:] {
		x, err := number(a)
		if err != nil {
			return core.Nil, err
		}
		if x == 0 {
			return core.Nil, errors.New("division by zero")
		}
		acc /= x
	}
	return core.Float(acc), nil
}

func mod(ctx context.Context, e *Evaluator, args []core.Value) (core.Value, error) {
	if err := arity(args, 2, 2); err != nil {
		return core.Nil, err
	}
	a, aok := args[0].Int()
	b, bok := args[1].Int()
	if args[0].Type() == core.IntegerType && args[1].Type() == core.IntegerType && aok && bok {
		if b == 0 {
			return core.Nil, errors.New("division by zero")
		}
		return core.Int(a % b), nil
	}
	x, err := number(args[0])
	if err != nil {
		return core.Nil, err
	}
	y, err := number(args[1])
	if err != nil {
		return core.Nil, err
	}
	if y == 0 {
		return core.Nil, errors.New("division by zero")
	}
	return core.Float(math.Mod(x, y)), nil
}

func abs(ctx context.Context, e *Evaluator, args []core.Value) (core.Value, error) {
	if err := arity(args, 1, 1); err != nil {
		return core.Nil, err
	}
	if n, ok := args[0].Int(); ok && args[0].Type() == core.IntegerType {
		if n < 0 {
			n = -n
		}
		return core.Int(n), nil
	}
	x, err := number(args[0])
	if err != nil {
		return core.Nil, err
	}
	return core.Float(math.Abs(x)), nil
}

func extreme(better func(int) bool) Func {
	return func(ctx context.Context, e *Evaluator, args []core.Value) (core.Value, error) {
		if err := arity(args, 1, -1); err != nil {
			return core.Nil, err
		}
		best := args[0]
		for _, a := range args[1:] {
			c, err := cmp(a, best)
			if err != nil {
				return core.Nil, err
			}
			if better(c) {
				best = a
			}
		}
		return best, nil
	}
}

func not(ctx context.Context, e *Evaluator, args []core.Value) (core.Value, error) {
	if err := arity(args, 1, 1); err != nil {
		return core.Nil, err
	}
	return core.Bool(!args[0].Truthy()), nil
}

func create(ctx context.Context, e *Evaluator, args []core.Value) (core.Value, error) {
	acc := make([]core.Value, 0, len(args))
	for _, a := range args {
		if a.Type() == core.ListType {
			acc = append(acc, a.Items()...)
			continue
		}
		acc = append(acc, a)
	}
	return core.List(acc...), nil
}

func list(v core.Value) ([]core.Value, error) {
	if v.Type() != core.ListType {
		return nil, fmt.Errorf("%s is not a multifield", v)
	}
	return v.Items(), nil
}

func length(ctx context.Context, e *Evaluator, args []core.Value) (core.Value, error) {
	if err := arity(args, 1, 1); err != nil {
		return core.Nil, err
	}
	switch args[0].Type() {
	case core.StringType, core.AtomType:
		return core.Int(int64(len(args[0].Text()))), nil
	}
	xs, err := list(args[0])
	if err != nil {
		return core.Nil, err
	}
	return core.Int(int64(len(xs))), nil
}

// nth is 1-based.
func nth(ctx context.Context, e *Evaluator, args []core.Value) (core.Value, error) {
	if err := arity(args, 2, 2); err != nil {
		return core.Nil, err
	}
	n, ok := args[0].Int()
	if !ok || args[0].Type() != core.IntegerType {
		return core.Nil, fmt.Errorf("%s is not an integer", args[0])
	}
	xs, err := list(args[1])
	if err != nil {
		return core.Nil, err
	}
	if n < 1 || int64(len(xs)) < n {
		return core.Nil, nil
	}
	return xs[n-1], nil
}

// member returns the 1-based position or FALSE.
func member(ctx context.Context, e *Evaluator, args []core.Value) (core.Value, error) {
	if err := arity(args, 2, 2); err != nil {
		return core.Nil, err
	}
	xs, err := list(args[1])
	if err != nil {
		return core.Nil, err
	}
	for i, x := range xs {
		if x.Equal(args[0]) {
			return core.Int(int64(i + 1)), nil
		}
	}
	return core.False, nil
}

func first(ctx context.Context, e *Evaluator, args []core.Value) (core.Value, error) {
	if err := arity(args, 1, 1); err != nil {
		return core.Nil, err
	}
	xs, err := list(args[0])
	if err != nil {
		return core.Nil, err
	}
	if len(xs) == 0 {
		return core.List(), nil
	}
	return core.List(xs[0]), nil
}

func rest(ctx context.Context, e *Evaluator, args []core.Value) (core.Value, error) {
	if err := arity(args, 1, 1); err != nil {
		return core.Nil, err
	}
	xs, err := list(args[0])
	if err != nil {
		return core.Nil, err
	}
	if len(xs) == 0 {
		return core.List(), nil
	}
	return core.List(xs[1:]...), nil
}

// text renders a value without quotes.
func text(v core.Value) string {
	switch v.Type() {
	case core.StringType, core.AtomType:
		return v.Text()
	}
	return v.String()
}

func cat(args []core.Value) string {
	var b strings.Builder
	for _, a := range args {
		b.WriteString(text(a))
	}
	return b.String()
}

func strCat(ctx context.Context, e *Evaluator, args []core.Value) (core.Value, error) {
	return core.Str(cat(args)), nil
}

func symCat(ctx context.Context, e *Evaluator, args []core.Value) (core.Value, error) {
	s := cat(args)
	if s == "" {
		return core.Nil, errors.New("empty symbol")
	}
	return core.Sym(s), nil
}

func strLength(ctx context.Context, e *Evaluator, args []core.Value) (core.Value, error) {
	if err := arity(args, 1, 1); err != nil {
		return core.Nil, err
	}
	return core.Int(int64(len([]rune(text(args[0]))))), nil
}

func recase(f func(string) string) Func {
	return func(ctx context.Context, e *Evaluator, args []core.Value) (core.Value, error) {
		if err := arity(args, 1, 1); err != nil {
			return core.Nil, err
		}
		switch args[0].Type() {
		case core.AtomType:
			return core.Sym(f(args[0].Text())), nil
		case core.StringType:
			return core.Str(f(args[0].Text())), nil
		}
		return core.Nil, fmt.Errorf("%s is not a string or symbol", args[0])
	}
}

var (
	upcase  = recase(strings.ToUpper)
	lowcase = recase(strings.ToLower)
)

func typep(ts ...core.ValueType) Func {
	return func(ctx context.Context, e *Evaluator, args []core.Value) (core.Value, error) {
		if err := arity(args, 1, 1); err != nil {
			return core.Nil, err
		}
		for _, t := range ts {
			if args[0].Type() == t {
				return core.True, nil
			}
		}
		return core.False, nil
	}
}

// printout writes its arguments (after the router, which is
// ignored).  The symbol crlf is a newline.
func printout(ctx context.Context, e *Evaluator, args []core.Value) (core.Value, error) {
	if err := arity(args, 1, -1); err != nil {
		return core.Nil, err
	}
	var b strings.Builder
	for _, a := range args[1:] {
		if a.Type() == core.AtomType && a.Text() == "crlf" {
			b.WriteByte('\n')
			continue
		}
		b.WriteString(text(a))
	}
	return core.Nil, e.print(b.String())
}
