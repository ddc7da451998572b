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

// Package expect is a tool for testing rule bases.
//
// You construct a Session, which has inputs and expected outputs.
// Then run the session against an sio.Session to see if the expected
// outputs actually appeared.
//
// Specifying what's expected can be simple, as in some literal
// output, or fairly fancy, as in a guard that computes some property
// of a match's bindings.
//
// This package also has support for delays and timeouts.
package expect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Comcast/jess/core"
	"github.com/Comcast/jess/interpreters"
	"github.com/Comcast/jess/match"
	"github.com/Comcast/jess/rules"
	"github.com/Comcast/jess/sio"

	"go.uber.org/zap"
)

// Output describes a message that's expected.
type Output struct {
	// Doc is an opaque documentation string.
	Doc string `json:"doc,omitempty" yaml:"doc,omitempty"`

	// Pattern must be matched by an emitted message.
	Pattern interface{} `json:"pattern,omitempty" yaml:"pattern,omitempty"`

	// Results means the Pattern is matched against whole Results
	// (with "op", "ids", "facts", and so on) as well as emitted
	// messages.
	Results bool `json:"results,omitempty" yaml:"results,omitempty"`

	// Guard is an optional call like "(> ?n 2)" that must return
	// a true value given the match's bindings.
	Guard string `json:"guard,omitempty" yaml:"guard,omitempty"`

	// Bindingss, which is the result of a match (and optional
	// guard), is written during processing.  Just for diagnostics.
	Bindingss []match.Bindings `json:"bs,omitempty" yaml:"bs,omitempty"`

	// Inverted means that matching output isn't desired!
	Inverted bool `json:"inverted,omitempty" yaml:"inverted,omitempty"`

	guard *core.FuncCall
}

// IO is a set of input operations and the outputs they should
// produce.
type IO struct {
	// Doc is an opaque documentation string.
	Doc string `json:"doc,omitempty" yaml:"doc,omitempty"`

	// WaitBefore is the time to wait before sending the first
	// operation.
	WaitBefore time.Duration `json:"waitBefore,omitempty" yaml:"waitBefore,omitempty"`

	// WaitBetween is the time to wait between operations.
	WaitBetween time.Duration `json:"waitBetween,omitempty" yaml:"waitBetween,omitempty"`

	// Inputs are the operations (see sio.Op) to process.
	Inputs []interface{} `json:"inputs,omitempty" yaml:"inputs,omitempty"`

	// WaitAfter is the time to wait after the last operation.
	WaitAfter time.Duration `json:"waitAfter,omitempty" yaml:"waitAfter,omitempty"`

	// OutputSet is the set (not a list) of outputs to verify.
	OutputSet []Output `json:"outputSet,omitempty" yaml:"outputSet,omitempty"`

	// Timeout is the optional timeout for this set.
	// Session.DefaultTimeout is the default value.
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// Session is mostly a sequence of IOs.
type Session struct {
	// Doc is an opaque documentation string.
	Doc string `json:"doc,omitempty" yaml:"doc,omitempty"`

	// IOs is sequence of IOs that this session will run.
	IOs []IO `json:"ios" yaml:"ios"`

	// ParsePatterns will parse IO.OutputSet.Patterns as JSON.
	ParsePatterns bool `json:"parsePatterns,omitempty" yaml:"parsePatterns,omitempty"`

	// DefaultTimeout is the default timeout for each IO.
	DefaultTimeout time.Duration `json:"defaultTimeout,omitempty" yaml:"defaultTimeout,omitempty"`

	// Evaluator evaluates guards.  Defaults to
	// interpreters.Standard().
	Evaluator core.Evaluator `json:"-" yaml:"-"`

	Logger *zap.Logger `json:"-" yaml:"-"`
}

// Failure reports the outputs that an IO didn't get (or got when
// Inverted).
type Failure struct {
	IO       int
	Doc      string
	Missing  []string
	Unwanted []string
}

func (f *Failure) Error() string {
	var acc []string
	if 0 < len(f.Missing) {
		acc = append(acc, "missing "+strings.Join(f.Missing, ", "))
	}
	if 0 < len(f.Unwanted) {
		acc = append(acc, "unwanted "+strings.Join(f.Unwanted, ", "))
	}
	return fmt.Sprintf("io %d (%s): %s", f.IO, f.Doc, strings.Join(acc, "; "))
}

// Run processes all the IOs in the Session with the given sio.Session.
//
// The first failing IO stops the run.
func (s *Session) Run(ctx context.Context, ss *sio.Session) error {
	if s.Evaluator == nil {
		s.Evaluator = interpreters.Standard()
	}
	if s.Logger == nil {
		s.Logger = zap.NewNop()
	}

	for i := range s.IOs {
		if err := s.runIO(ctx, i, ss); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) prepare(o *Output) error {
	if s.ParsePatterns {
		js, is := o.Pattern.(string)
		if !is {
			return fmt.Errorf("pattern %#v isn't a string", o.Pattern)
		}
		var pattern interface{}
		if err := json.Unmarshal([]byte(js), &pattern); err != nil {
			return err
		}
		o.Pattern = pattern
	}
	o.guard = nil
	if o.Guard != "" {
		c, err := rules.NewParser().ParseCall(o.Guard)
		if err != nil {
			return err
		}
		o.guard = c
	}
	o.Bindingss = nil
	return nil
}

func (s *Session) runIO(ctx context.Context, n int, ss *sio.Session) error {
	iop := &s.IOs[n]

	timeout := iop.Timeout
	if timeout == 0 {
		timeout = s.DefaultTimeout
	}
	if 0 < timeout {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	for i := range iop.OutputSet {
		if err := s.prepare(&iop.OutputSet[i]); err != nil {
			return err
		}
	}

	if err := s.pause(ctx, "waitBefore", iop.WaitBefore); err != nil {
		return err
	}

	var unwanted []string
	for i, input := range iop.Inputs {
		if 0 < i {
			if err := s.pause(ctx, "waitBetween", iop.WaitBetween); err != nil {
				return err
			}
		}
		s.Logger.Debug("input", zap.Int("io", n), zap.String("op", sio.JS(input)))
		r, err := ss.Process(ctx, input)
		if err != nil {
			return fmt.Errorf("io %d input %d: %w", n, i, err)
		}
		unwanted = append(unwanted, s.check(ctx, iop, r)...)
	}

	if err := s.pause(ctx, "waitAfter", iop.WaitAfter); err != nil {
		return err
	}

	var missing []string
	for _, o := range iop.OutputSet {
		if !o.Inverted && o.Bindingss == nil {
			missing = append(missing, describe(o))
		}
	}

	if 0 < len(missing) || 0 < len(unwanted) {
		return &Failure{
			IO:       n,
			Doc:      iop.Doc,
			Missing:  missing,
			Unwanted: unwanted,
		}
	}
	return nil
}

// check matches the Result's messages against the outputs and returns
// descriptions of Inverted outputs that matched.
func (s *Session) check(ctx context.Context, iop *IO, r *sio.Result) []string {
	var unwanted []string

	emitted := make([]interface{}, len(r.Emitted))
	for i, x := range r.Emitted {
		emitted[i] = normalize(x)
	}
	whole := normalize(r)

	for i := range iop.OutputSet {
		o := &iop.OutputSet[i]
		if o.Bindingss != nil {
			continue
		}
		msgs := emitted
		if o.Results {
			msgs = append(msgs[:len(msgs):len(msgs)], whole)
		}
		for _, msg := range msgs {
			bss, err := match.Match(o.Pattern, msg, match.NewBindings())
			if err != nil {
				s.Logger.Warn("match", zap.Error(err))
				continue
			}
			if bss = s.guard(ctx, o, bss); bss == nil {
				continue
			}
			o.Bindingss = bss
			if o.Inverted {
				unwanted = append(unwanted, describe(*o))
			}
			break
		}
	}
	return unwanted
}

// guard returns the Bindings that pass the Output's guard.
func (s *Session) guard(ctx context.Context, o *Output, bss []match.Bindings) []match.Bindings {
	if len(bss) == 0 {
		return nil
	}
	if o.guard == nil {
		return bss
	}
	var acc []match.Bindings
	for _, bs := range bss {
		cbs, err := coreBindings(bs)
		if err != nil {
			s.Logger.Warn("guard bindings", zap.Error(err))
			continue
		}
		v, err := s.Evaluator.Eval(ctx, o.guard, cbs)
		if err != nil {
			s.Logger.Warn("guard", zap.String("guard", o.Guard), zap.Error(err))
			continue
		}
		if v.Truthy() {
			acc = append(acc, bs)
		}
	}
	return acc
}

// coreBindings converts match bindings ("?x") to core bindings ("x").
func coreBindings(bs match.Bindings) (core.Bindings, error) {
	acc := make(core.Bindings, len(bs))
	for k, x := range bs {
		v, err := core.ValueOf(x)
		if err != nil {
			return nil, err
		}
		acc[strings.TrimLeft(k, "?")] = v
	}
	return acc, nil
}

// normalize gives a message the form it would have after a trip
// through JSON.
func normalize(x interface{}) interface{} {
	js, err := json.Marshal(x)
	if err != nil {
		return x
	}
	var y interface{}
	if err = json.Unmarshal(js, &y); err != nil {
		return x
	}
	return y
}

func describe(o Output) string {
	if o.Doc != "" {
		return o.Doc
	}
	return sio.JS(o.Pattern)
}

var errCanceled = errors.New("canceled")

func (s *Session) pause(ctx context.Context, why string, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	s.Logger.Debug("pause", zap.String("why", why), zap.Duration("d", d))
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w during %s: %v", errCanceled, why, ctx.Err())
	case <-t.C:
		return nil
	}
}
