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

// Package native is a core.Evaluator with builtin functions written
// in Go.
package native

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/Comcast/jess/core"

	"go.uber.org/zap"
)

// Func is a builtin.  Its arguments are already resolved: no
// variables and no calls.
type Func func(ctx context.Context, e *Evaluator, args []core.Value) (core.Value, error)

// UnknownFunction is returned for a call to a function that isn't
// defined.
type UnknownFunction struct {
	Name string
}

func (e *UnknownFunction) Error() string {
	return "unknown function " + e.Name
}

// Evaluator evaluates calls with a table of Funcs.
type Evaluator struct {
	// Out is where printout writes.  Defaults to os.Stdout.
	Out io.Writer

	// Logger gets a Debug line for each printout.
	Logger *zap.Logger

	// Fallback, if not nil, evaluates calls to functions that
	// aren't defined here.  Nested calls go through Eval, so they
	// can reach the Fallback too.
	Fallback core.Evaluator

	sync.RWMutex
	funcs map[string]Func
	outMu sync.Mutex
}

// NewEvaluator makes an Evaluator with all the builtins.
func NewEvaluator() *Evaluator {
	e := &Evaluator{
		Out:    os.Stdout,
		Logger: zap.NewNop(),
		funcs:  make(map[string]Func, len(builtins)),
	}
	for name, f := range builtins {
		e.funcs[name] = f
	}
	return e
}

// Define adds or replaces a function.
func (e *Evaluator) Define(name string, f Func) {
	e.Lock()
	e.funcs[name] = f
	e.Unlock()
}

// Defined reports whether there's a function with the given name.
func (e *Evaluator) Defined(name string) bool {
	e.RLock()
	_, have := e.funcs[name]
	e.RUnlock()
	return have
}

// Functions lists the names of the defined functions.
func (e *Evaluator) Functions() []string {
	e.RLock()
	defer e.RUnlock()
	acc := make([]string, 0, len(e.funcs))
	for name := range e.funcs {
		acc = append(acc, name)
	}
	sort.Strings(acc)
	return acc
}

// Eval implements core.Evaluator.
//
// "and", "or", and "if" evaluate their arguments lazily.  Everything
// else gets its arguments resolved first.
func (e *Evaluator) Eval(ctx context.Context, c *core.FuncCall, bs core.Bindings) (core.Value, error) {
	if err := ctx.Err(); err != nil {
		return core.Nil, err
	}

	switch c.Name {
	case "and":
		for _, a := range c.Args {
			v, err := e.Resolve(ctx, a, bs)
			if err != nil {
				return core.Nil, err
			}
			if !v.Truthy() {
				return core.False, nil
			}
		}
		return core.True, nil
	case "or":
		for _, a := range c.Args {
			v, err := e.Resolve(ctx, a, bs)
			if err != nil {
				return core.Nil, err
			}
			if v.Truthy() {
				return core.True, nil
			}
		}
		return core.False, nil
	case "if":
		if len(c.Args) < 2 || 3 < len(c.Args) {
			return core.Nil, fmt.Errorf("if wants 2 or 3 arguments, not %d", len(c.Args))
		}
		v, err := e.Resolve(ctx, c.Args[0], bs)
		if err != nil {
			return core.Nil, err
		}
		if v.Truthy() {
			return e.Resolve(ctx, c.Args[1], bs)
		}
		if len(c.Args) == 3 {
			return e.Resolve(ctx, c.Args[2], bs)
		}
		return core.False, nil
	}

	e.RLock()
	f, have := e.funcs[c.Name]
	e.RUnlock()
	if !have {
		if e.Fallback != nil {
			return e.Fallback.Eval(ctx, c, bs)
		}
		return core.Nil, &UnknownFunction{Name: c.Name}
	}

	args := make([]core.Value, len(c.Args))
	for i, a := range c.Args {
		v, err := e.Resolve(ctx, a, bs)
		if err != nil {
			return core.Nil, err
		}
		args[i] = v
	}
	v, err := f(ctx, e, args)
	if err != nil {
		return core.Nil, fmt.Errorf("%s: %w", c.Name, err)
	}
	return v, nil
}

// Resolve gets a variable's value, evaluates a nested call, or
// resolves the items of a list.
func (e *Evaluator) Resolve(ctx context.Context, v core.Value, bs core.Bindings) (core.Value, error) {
	switch v.Type() {
	case core.VariableType, core.MultiVariableType:
		x, have := bs[v.Text()]
		if !have {
			return core.Nil, &core.UndefinedVariable{Name: v.Text()}
		}
		return x, nil
	case core.CallType:
		return e.Eval(ctx, v.FuncCall(), bs)
	case core.ListType:
		items := v.Items()
		acc := make([]core.Value, len(items))
		for i, x := range items {
			y, err := e.Resolve(ctx, x, bs)
			if err != nil {
				return core.Nil, err
			}
			acc[i] = y
		}
		return core.List(acc...), nil
	}
	return v, nil
}

func (e *Evaluator) print(s string) error {
	e.outMu.Lock()
	defer e.outMu.Unlock()
	if e.Logger != nil {
		e.Logger.Debug("printout", zap.String("text", s))
	}
	if e.Out == nil {
		return nil
	}
	_, err := io.WriteString(e.Out, s)
	return err
}
