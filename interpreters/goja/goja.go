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

// Package goja runs Javascript in rules: "js" calls in patterns and
// Javascript rule actions.
//
// See https://github.com/dop251/goja.
package goja

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Comcast/jess/core"
	"github.com/Comcast/jess/match"

	"github.com/dop251/goja"
	"github.com/gorhill/cronexpr"
	"go.uber.org/zap"
)

var (
	// InterruptedMessage is the string value of Interrupted.
	InterruptedMessage = "RuntimeError: timeout"

	// Interrupted is returned by Exec if the execution is
	// interrupted.
	Interrupted = errors.New(InterruptedMessage)

	// MaxRequireDepth limits how deeply libraries can require
	// other libraries.
	MaxRequireDepth = 8
)

func init() {
	i := NewInterpreter()
	core.DefaultInterpreters["goja"] = i
	core.DefaultInterpreters["js"] = i
}

// LibraryProvider resolves a library name into source code.
type LibraryProvider func(ctx context.Context, i *Interpreter, libraryName string) (string, error)

// Interpreter implements core.Interpreter for Javascript rule
// actions.
type Interpreter struct {

	// Testing exposes sleep(ms) to the runtime.
	Testing bool

	// LibraryProvider, if not nil, is used instead of
	// DefaultLibraryProvider.
	LibraryProvider LibraryProvider
}

// NewInterpreter makes a new Interpreter.
func NewInterpreter() *Interpreter {
	return &Interpreter{}
}

// ProvideLibrary resolves the library name into source.  Top-level
// require("name") statements in the library are inlined.
func (i *Interpreter) ProvideLibrary(ctx context.Context, name string) (string, error) {
	return i.library(ctx, name, 0)
}

func (i *Interpreter) library(ctx context.Context, name string, depth int) (string, error) {
	if MaxRequireDepth < depth {
		return "", fmt.Errorf("library '%s' requires too deeply", name)
	}
	p := i.LibraryProvider
	if p == nil {
		p = DefaultLibraryProvider
	}
	src, err := p(ctx, i, name)
	if err != nil {
		return "", err
	}
	return InlineRequires(ctx, src, func(ctx context.Context, name string) (string, error) {
		return i.library(ctx, name, depth+1)
	})
}

// DefaultLibraryProvider reads "file://" libraries relative to the
// current directory.
var DefaultLibraryProvider = MakeFileLibraryProvider(".")

// MakeFileLibraryProvider makes a LibraryProvider that supports names
// that are URLs with protocols "file", "http", and "https".  File
// names are relative to the given directory.
func MakeFileLibraryProvider(dir string) LibraryProvider {
	return func(ctx context.Context, i *Interpreter, name string) (string, error) {
		parts := strings.SplitN(name, "://", 2)
		if len(parts) != 2 {
			return "", fmt.Errorf("bad link '%s'", name)
		}
		switch parts[0] {
		case "file":
			bs, err := os.ReadFile(filepath.Join(dir, parts[1]))
			if err != nil {
				return "", err
			}
			return string(bs), nil
		case "http", "https":
			req, err := http.NewRequestWithContext(ctx, "GET", name, nil)
			if err != nil {
				return "", err
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return "", err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return "", fmt.Errorf("library fetch status %s", resp.Status)
			}
			bs, err := io.ReadAll(resp.Body)
			if err != nil {
				return "", err
			}
			return string(bs), nil
		default:
			return "", fmt.Errorf("unknown protocol '%s'", parts[0])
		}
	}
}

// MakeMapLibraryProvider makes a LibraryProvider backed by a map from
// names to sources.
func MakeMapLibraryProvider(srcs map[string]string) LibraryProvider {
	return func(ctx context.Context, i *Interpreter, name string) (string, error) {
		src, have := srcs[name]
		if !have {
			return "", fmt.Errorf("undefined library '%s'", name)
		}
		return src, nil
	}
}

func wrapSrc(src string) string {
	return fmt.Sprintf("(function() {\n%s\n}());\n", src)
}

// parseSource looks for "code" (or "js") and "requires" properties.
func parseSource(m map[string]interface{}) (code string, libs []string, err error) {
	x, have := m["code"]
	if !have {
		x = m["js"]
	}
	s, is := x.(string)
	if !is {
		return "", nil, errors.New("bad Javascript action code")
	}
	code = s

	switch vv := m["requires"].(type) {
	case nil:
	case string:
		libs = []string{vv}
	case []string:
		libs = vv
	case []interface{}:
		libs = make([]string, 0, len(vv))
		for _, x := range vv {
			s, is := x.(string)
			if !is {
				return "", nil, fmt.Errorf("bad library %#v", x)
			}
			libs = append(libs, s)
		}
	default:
		return "", nil, fmt.Errorf("bad requires %#v", vv)
	}

	return code, libs, nil
}

// AsSource extracts code and library names from an action source,
// which is either a string or a map with "code" and optional
// "requires".
func AsSource(src interface{}) (code string, libs []string, err error) {
	switch vv := src.(type) {
	case string:
		return vv, nil, nil
	case map[interface{}]interface{}:
		m := make(map[string]interface{}, len(vv))
		for k, v := range vv {
			s, ok := k.(string)
			if !ok {
				return "", nil, fmt.Errorf("bad src key (%T)", k)
			}
			m[s] = v
		}
		return parseSource(m)
	case map[string]interface{}:
		return parseSource(vv)
	default:
		return "", nil, fmt.Errorf("bad Javascript source (%T)", src)
	}
}

// Compile prepends the required libraries to the code, which is
// wrapped in a function so that it can "return" bindings.
//
// This method can block if the LibraryProvider blocks.
func (i *Interpreter) Compile(ctx context.Context, src interface{}) (interface{}, error) {
	code, libs, err := AsSource(src)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	for _, lib := range libs {
		s, err := i.ProvideLibrary(ctx, lib)
		if err != nil {
			return nil, err
		}
		b.WriteString(s)
		b.WriteByte('\n')
	}
	b.WriteString(wrapSrc(code))

	p, err := goja.Compile("", b.String(), true)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", err, code)
	}
	return p, nil
}

func protest(o *goja.Runtime, x interface{}) {
	if err, is := x.(error); is {
		x = err.Error()
	}
	panic(o.ToValue(x))
}

// export gives plain Go data for a runtime value.
func export(x goja.Value) interface{} {
	if x == nil || goja.IsUndefined(x) || goja.IsNull(x) {
		return nil
	}
	return x.Export()
}

func valuesOf(o *goja.Runtime, xs []goja.Value) []core.Value {
	acc := make([]core.Value, len(xs))
	for i, x := range xs {
		v, err := core.ValueOf(export(x))
		if err != nil {
			protest(o, err)
		}
		acc[i] = v
	}
	return acc
}

func slotsOf(o *goja.Runtime, x goja.Value) map[string]core.Value {
	m, is := export(x).(map[string]interface{})
	if !is {
		protest(o, "slots should be an object")
	}
	acc := make(map[string]core.Value, len(m))
	for k, y := range m {
		v, err := core.ValueOf(y)
		if err != nil {
			protest(o, err)
		}
		acc[k] = v
	}
	return acc
}

func intOf(o *goja.Runtime, x goja.Value) int {
	switch vv := export(x).(type) {
	case int64:
		return int(vv)
	case float64:
		return int(vv)
	}
	protest(o, "not a fact id")
	return 0
}

// plain gives the bindings with their plain variable names.
func plain(bs core.Bindings) map[string]interface{} {
	acc := make(map[string]interface{}, len(bs))
	for k, v := range bs {
		acc[k] = v.Native()
	}
	return acc
}

// utilities adds the helpers that both actions and "js" calls get.
//
//	gensym(): generate a random string.
//	esc(s): URL query-escape the given string.
//	cronNext(expr): the next time (RFC3339) for the cron expression.
//	match(pat, obj, bs): run the pattern matcher.
func (i *Interpreter) utilities(o *goja.Runtime, env map[string]interface{}) {
	if i != nil && i.Testing {
		o.Set("sleep", func(ms int) {
			time.Sleep(time.Duration(ms) * time.Millisecond)
		})
	}

	env["gensym"] = func() interface{} {
		return core.Gensym(32)
	}

	env["cronNext"] = func(x goja.Value) interface{} {
		s, is := export(x).(string)
		if !is {
			protest(o, "not a string")
		}
		c, err := cronexpr.Parse(s)
		if err != nil {
			protest(o, err)
		}
		return c.Next(time.Now()).UTC().Format(time.RFC3339Nano)
	}

	env["esc"] = func(x goja.Value) interface{} {
		s, is := export(x).(string)
		if !is {
			protest(o, "not a string")
		}
		return url.QueryEscape(s)
	}

	env["match"] = func(pat, x, bs goja.Value) interface{} {
		bindings := match.NewBindings()
		if y := export(bs); y != nil {
			z, err := core.Canonicalize(y)
			if err != nil {
				protest(o, err)
			}
			m, is := z.(map[string]interface{})
			if !is {
				protest(o, "bad bindings")
			}
			bindings = match.Bindings(m)
		}
		p, err := core.Canonicalize(export(pat))
		if err != nil {
			protest(o, err)
		}
		m, err := core.Canonicalize(export(x))
		if err != nil {
			protest(o, err)
		}
		bss, err := match.Match(p, m, bindings)
		if err != nil {
			protest(o, err)
		}
		y, err := core.Canonicalize(bss)
		if err != nil {
			protest(o, err)
		}
		return y
	}
}

// run executes the program and interrupts it if the context is done
// first.
func run(ctx context.Context, o *goja.Runtime, p *goja.Program) (goja.Value, error) {
	ictx, cancel := context.WithCancel(ctx)
	go func() {
		<-ictx.Done()
		// If RunProgram has already returned, this interrupt
		// has no effect.
		o.Interrupt(InterruptedMessage)
	}()

	v, err := o.RunProgram(p)
	cancel()

	if err != nil {
		var ie *goja.InterruptedError
		if errors.As(err, &ie) {
			return nil, Interrupted
		}
		return nil, err
	}
	return v, nil
}

// Exec implements core.Interpreter.
//
// The runtime has a "_" with these properties:
//
//	bindings: the rule's bindings (without the '?').
//	assert(type, v, ...) or assert({type:..., slot:v}): assert a fact
//	  and return its id.
//	assertSlots(type, {slot:v}): assert a fact with named slots.
//	retract(id): retract a fact.
//	modify(id, {slot:v}): modify a fact and return the new id.
//	fact(id), facts(): get working memory as plain objects.
//	halt(): stop running after this activation.
//	out(x): emit x.
//	log(x): log x at Info.
//
// plus the utilities gensym, esc, cronNext, and match.
//
// If the code returns an object, its properties are added to the
// bindings that later actions of the same rule see.
func (i *Interpreter) Exec(ctx context.Context, f *core.Firing, src interface{}, compiled interface{}) error {
	if compiled == nil {
		var err error
		if compiled, err = i.Compile(ctx, src); err != nil {
			return err
		}
	}
	p, is := compiled.(*goja.Program)
	if !is {
		return fmt.Errorf("bad Javascript compilation: %T", compiled)
	}

	o := goja.New()
	env := map[string]interface{}{
		"bindings": plain(f.Bindings),
	}
	o.Set("_", env)
	i.utilities(o, env)

	env["assert"] = func(call goja.FunctionCall) goja.Value {
		var fact *core.Fact
		switch x := export(call.Argument(0)).(type) {
		case map[string]interface{}:
			var err error
			if fact, err = core.FactFromMap(x); err != nil {
				protest(o, err)
			}
		case string:
			fact = core.Ordered(x, valuesOf(o, call.Arguments[1:])...)
		default:
			protest(o, "assert wants a type or an object")
		}
		id, err := f.Assert(ctx, fact)
		if err != nil {
			protest(o, err)
		}
		return o.ToValue(id)
	}

	env["assertSlots"] = func(typ string, slots goja.Value) interface{} {
		id, err := f.Assert(ctx, core.Unordered(typ, slotsOf(o, slots)))
		if err != nil {
			protest(o, err)
		}
		return id
	}

	env["retract"] = func(id goja.Value) interface{} {
		did, err := f.RetractID(ctx, intOf(o, id))
		if err != nil {
			protest(o, err)
		}
		return did
	}

	env["modify"] = func(id, slots goja.Value) interface{} {
		n, err := f.Modify(ctx, intOf(o, id), slotsOf(o, slots))
		if err != nil {
			protest(o, err)
		}
		return n
	}

	env["fact"] = func(id goja.Value) interface{} {
		if fact := f.Fact(intOf(o, id)); fact != nil {
			return fact.Map()
		}
		return nil
	}

	env["facts"] = func() interface{} {
		fs := f.Facts()
		acc := make([]interface{}, len(fs))
		for i, fact := range fs {
			acc[i] = fact.Map()
		}
		return acc
	}

	env["halt"] = func() {
		f.Halt()
	}

	env["out"] = func(x goja.Value) interface{} {
		y, err := core.Canonicalize(export(x))
		if err != nil {
			protest(o, err)
		}
		f.Emit(y)
		return y
	}

	env["log"] = func(x goja.Value) interface{} {
		y := export(x)
		f.Logger().Info("js", zap.String("rule", f.Rule().Name), zap.Any("x", y))
		return y
	}

	v, err := run(ctx, o, p)
	if err != nil {
		return err
	}

	switch vv := export(v).(type) {
	case nil:
	case map[string]interface{}:
		for k, x := range vv {
			y, err := core.ValueOf(x)
			if err != nil {
				return fmt.Errorf("binding %s: %w", k, err)
			}
			f.Bindings[core.Unquestion(k)] = y
		}
	default:
		return fmt.Errorf("%#v (%T) isn't bindings", vv, vv)
	}
	return nil
}
