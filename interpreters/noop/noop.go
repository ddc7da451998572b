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

// Package noop has an Evaluator and an Interpreter that don't do
// anything.  They let tools compile rule bases without running any
// code.
package noop

import (
	"context"

	"github.com/Comcast/jess/core"

	"go.uber.org/zap"
)

// Evaluator is a core.Evaluator that says TRUE to every call.
type Evaluator struct {
	// Logger, if not nil, gets a Debug line for each call.
	Logger *zap.Logger
}

func (e *Evaluator) Eval(ctx context.Context, c *core.FuncCall, bs core.Bindings) (core.Value, error) {
	if e.Logger != nil {
		e.Logger.Debug("noop eval", zap.Stringer("call", c))
	}
	return core.True, nil
}

// Interpreter is a core.Interpreter that leaves the Firing alone.
type Interpreter struct {
	// Logger, if not nil, gets a Warn line for each compilation
	// and execution.
	Logger *zap.Logger
}

func NewInterpreter() *Interpreter {
	return &Interpreter{}
}

func (i *Interpreter) Compile(ctx context.Context, code interface{}) (interface{}, error) {
	if i.Logger != nil {
		i.Logger.Warn("using noop interpreter for compilation")
	}
	return nil, nil
}

func (i *Interpreter) Exec(ctx context.Context, f *core.Firing, code interface{}, compiled interface{}) error {
	if i.Logger != nil {
		i.Logger.Warn("using noop interpreter for execution", zap.String("rule", f.Rule().Name))
	}
	return nil
}
