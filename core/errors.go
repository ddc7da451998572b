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

// Compile errors and lookup errors are user errors.  A broken
// negation count is not, and it panics.

import (
	"errors"
	"strconv"
)

// CompileError occurs when a Rule can't be compiled.  The network is
// not modified.
type CompileError struct {
	Rule    string
	Pattern int
	Msg     string

	// Err is the underlying problem, if any.
	Err error
}

func (e *CompileError) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Pattern < 0 {
		return `rule "` + e.Rule + `": ` + msg
	}
	return `rule "` + e.Rule + `" pattern ` + strconv.Itoa(e.Pattern) + `: ` + msg
}

func (e *CompileError) Unwrap() error {
	return e.Err
}

// UndefinedVariable occurs when a variable is used before it's bound
// or when it's used outside the negated pattern that binds it.
type UndefinedVariable struct {
	Rule string
	Name string
}

func (e *UndefinedVariable) Error() string {
	return `undefined variable "?` + e.Name + `" in rule "` + e.Rule + `"`
}

// UnknownSlot occurs when a fact or pattern names a slot its template
// doesn't have.
type UnknownSlot struct {
	Template string
	Slot     string
}

func (e *UnknownSlot) Error() string {
	return `template "` + e.Template + `" has no slot "` + e.Slot + `"`
}

// UnknownTemplate occurs when a named-slot fact or pattern has a type
// without a template.
type UnknownTemplate struct {
	Name string
}

func (e *UnknownTemplate) Error() string {
	return `no template "` + e.Name + `"`
}

// UnknownRule occurs when removing a rule that isn't there.
type UnknownRule struct {
	Name string
}

func (e *UnknownRule) Error() string {
	return `no rule "` + e.Name + `"`
}

// MatchError occurs when a function call in a pattern fails during
// matching.  Propagation stops.
type MatchError struct {
	Node int
	Call string
	Err  error
}

func (e *MatchError) Error() string {
	return `node ` + strconv.Itoa(e.Node) + ` call ` + e.Call + `: ` + e.Err.Error()
}

func (e *MatchError) Unwrap() error {
	return e.Err
}

// ActionError occurs when a rule's action fails.
type ActionError struct {
	Rule   string
	Action int
	Err    error
}

func (e *ActionError) Error() string {
	return `rule "` + e.Rule + `" action ` + strconv.Itoa(e.Action) + `: ` + e.Err.Error()
}

func (e *ActionError) Unwrap() error {
	return e.Err
}

var (
	// ErrNoEvaluator occurs when a function call needs evaluation
	// but the Engine has no Evaluator.
	ErrNoEvaluator = errors.New("no evaluator")

	// ErrOrderedModify occurs when Modify is given an ordered
	// fact.
	ErrOrderedModify = errors.New("can't modify an ordered fact")
)
