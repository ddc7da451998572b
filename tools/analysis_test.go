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

	"github.com/google/go-cmp/cmp"
)

func TestAnalyze(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rb := ruleBase(t, "../rules/testdata/turnstile.yaml")
	a, err := Analyze(ctx, rb, nil)
	if err != nil {
		t.Fatal(err)
	}

	if a.Rules != 2 || a.Templates != 0 || a.Deffacts != 1 || a.Patterns != 4 {
		t.Fatalf("%#v", a)
	}
	if diff := cmp.Diff([]string{"input", "state"}, a.ImplicitTypes); diff != "" {
		t.Fatal(diff)
	}
	if a.Nodes["terminal"] != 2 {
		t.Fatal(a.Nodes)
	}
	if a.SharedNodes == 0 {
		t.Fatal("expected sharing")
	}
	if a.Actions == 0 {
		t.Fatal("no actions")
	}
}

func TestAnalyzeTemplates(t *testing.T) {
	ctx := context.Background()
	rb, e := engine(t, "../rules/testdata/people.yaml")
	a, err := Analyze(ctx, rb, e)
	if err != nil {
		t.Fatal(err)
	}
	if a.Templates != 1 || len(a.UnusedTemplates) != 0 {
		t.Fatalf("%#v", a)
	}
	if a.Negated != 1 || a.Tests != 1 {
		t.Fatalf("%#v", a)
	}

	if _, err := Analyze(ctx, nil, nil); err == nil {
		t.Fatal("expected an error")
	}
}
