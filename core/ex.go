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
	"context"
)

// TurnstileRules makes an example rule set that's useful to have
// around: a coin-operated turnstile.  Working memory holds one
// "state" fact (locked or unlocked), and each "input" fact (coin or
// push) moves the state and emits the new state.
//
// See https://en.wikipedia.org/wiki/Finite-state_machine#Example:_coin-operated_turnstile.
func TurnstileRules() []*Rule {

	makeRule := func(input, target string) *Rule {
		return &Rule{
			Name: input,
			Patterns: []*Pattern{
				Bind("i", OrderedPattern("input", Sym(input))),
				Bind("s", OrderedPattern("state", Elem(Eq(Var(""))))),
			},
			Actions: []Action{
				&CallAction{Call: &FuncCall{Name: "retract", Args: []Value{Var("i"), Var("s")}}},
				&CallAction{Call: &FuncCall{Name: "assert", Args: []Value{Call("state", Sym(target))}}},
				&CallAction{Call: &FuncCall{Name: "emit", Args: []Value{Sym(target)}}},
			},
		}
	}

	return []*Rule{
		makeRule("coin", "unlocked"),
		makeRule("push", "locked"),
	}
}

// TurnstileEngine makes an Engine with the TurnstileRules, reset
// so that the turnstile is locked.
func TurnstileEngine(ctx context.Context, opts *Options) (*Engine, error) {
	e := NewEngine(opts)
	for _, r := range TurnstileRules() {
		if err := e.AddRule(ctx, r); err != nil {
			return nil, err
		}
	}
	e.Deffacts("turnstile", Ordered("state", Sym("locked")))
	if err := e.Reset(ctx); err != nil {
		return nil, err
	}
	return e, nil
}
