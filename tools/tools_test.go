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

package tools

import (
	"context"
	"testing"

	"github.com/Comcast/jess/core"
	"github.com/Comcast/jess/interpreters"
	"github.com/Comcast/jess/rules"
)

func ruleBase(t *testing.T, filename string) *rules.RuleBase {
	rb, err := rules.LoadFile(filename)
	if err != nil {
		t.Fatal(err)
	}
	if err = rb.Compile(context.Background(), interpreters.Interpreters(), false); err != nil {
		t.Fatal(err)
	}
	return rb
}

func engine(t *testing.T, filename string) (*rules.RuleBase, *core.Engine) {
	rb := ruleBase(t, filename)
	e, err := rb.NewEngine(context.Background(), &core.Options{
		Evaluator: interpreters.Standard(),
	}, interpreters.Interpreters())
	if err != nil {
		t.Fatal(err)
	}
	return rb, e
}
