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
	"fmt"
	"regexp"
	"sync"

	"github.com/Comcast/jess/core"

	"github.com/dop251/goja"
)

// CallName is the name of the function that Evaluator handles.
const CallName = "js"

// variableRef finds "?x" and "$?x" in a source.  The name has to be a
// Javascript identifier, so "?x-y" is "?x" minus y.
var variableRef = regexp.MustCompile(`\$?\?([A-Za-z_][A-Za-z0-9_]*)`)

// Rewrite replaces variable references with lookups in _.bindings.
//
//	?x > 3 && ?y != "foo"
//
// becomes
//
//	_.bindings["x"] > 3 && _.bindings["y"] != "foo"
func Rewrite(src string) string {
	return variableRef.ReplaceAllString(src, `_.bindings["$1"]`)
}

// Call makes the call that Evaluator handles.  The variables that
// the source references follow the source as arguments, so the
// engine knows what the call needs and supplies their bindings.
func Call(src string) *core.FuncCall {
	args := []core.Value{core.Str(src)}
	seen := make(map[string]bool)
	for _, m := range variableRef.FindAllStringSubmatch(src, -1) {
		name := m[1]
		if seen[name] {
			continue
		}
		seen[name] = true
		if m[0][0] == '$' {
			args = append(args, core.MultiVar(name))
		} else {
			args = append(args, core.Var(name))
		}
	}
	return &core.FuncCall{Name: CallName, Args: args}
}

// Evaluator is a core.Evaluator for calls like
//
//	(js "?x > 3")
//
// The source is an expression, and its value is the call's value.
// Arguments after the source are ignored.  Compiled programs are
// cached by source.
type Evaluator struct {
	Interpreter *Interpreter

	programs sync.Map
}

// NewEvaluator makes an Evaluator that uses the given Interpreter's
// settings.  A nil Interpreter is fine.
func NewEvaluator(i *Interpreter) *Evaluator {
	return &Evaluator{
		Interpreter: i,
	}
}

func (e *Evaluator) program(src string) (*goja.Program, error) {
	if p, have := e.programs.Load(src); have {
		return p.(*goja.Program), nil
	}
	p, err := goja.Compile("", Rewrite(src), true)
	if err != nil {
		return nil, err
	}
	e.programs.Store(src, p)
	return p, nil
}

// Eval implements core.Evaluator.
func (e *Evaluator) Eval(ctx context.Context, c *core.FuncCall, bs core.Bindings) (core.Value, error) {
	if c.Name != CallName {
		return core.Nil, fmt.Errorf("goja can't evaluate %s", c.Name)
	}
	if len(c.Args) == 0 {
		return core.Nil, fmt.Errorf("%s wants source", CallName)
	}
	arg := c.Args[0]
	if t := arg.Type(); t != core.StringType && t != core.AtomType {
		return core.Nil, fmt.Errorf("%s wants source, not %s", CallName, arg)
	}

	p, err := e.program(arg.Text())
	if err != nil {
		return core.Nil, err
	}

	o := goja.New()
	env := map[string]interface{}{
		"bindings": plain(bs),
	}
	o.Set("_", env)
	e.Interpreter.utilities(o, env)

	v, err := run(ctx, o, p)
	if err != nil {
		return core.Nil, err
	}
	return core.ValueOf(export(v))
}
