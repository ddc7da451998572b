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

// Package interpreters assembles the standard evaluators and
// interpreters.
package interpreters

import (
	"github.com/Comcast/jess/core"
	"github.com/Comcast/jess/interpreters/goja"
	"github.com/Comcast/jess/interpreters/native"
	"github.com/Comcast/jess/interpreters/noop"
)

// Standard returns the native builtins with "js" calls going to
// Javascript.
func Standard() *native.Evaluator {
	e := native.NewEvaluator()
	e.Fallback = goja.NewEvaluator(nil)
	return e
}

// Interpreters returns the interpreters for rule actions by name.
func Interpreters() map[string]core.Interpreter {
	js := goja.NewInterpreter()
	return map[string]core.Interpreter{
		"js":   js,
		"goja": js,
		"noop": noop.NewInterpreter(),
	}
}
