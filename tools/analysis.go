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
	"errors"
	"sort"

	"github.com/Comcast/jess/core"
	"github.com/Comcast/jess/rules"
)

// Analysis summarizes a rule base and the network that an engine
// compiled for it.
type Analysis struct {
	Name string `json:"name,omitempty" yaml:",omitempty"`

	Templates int `json:"templates" yaml:"templates"`
	Rules     int `json:"rules" yaml:"rules"`
	Deffacts  int `json:"deffacts" yaml:"deffacts"`

	// Patterns counts all conditional elements, including the
	// Negated ones and the Tests.
	Patterns int `json:"patterns" yaml:"patterns"`
	Negated  int `json:"negated" yaml:"negated"`
	Tests    int `json:"tests" yaml:"tests"`
	Actions  int `json:"actions" yaml:"actions"`

	// Nodes counts network nodes by kind.
	Nodes map[string]int `json:"nodes" yaml:"nodes"`

	// SharedNodes counts nodes that more than one rule uses.
	SharedNodes int `json:"sharedNodes" yaml:"sharedNodes"`

	// UnusedTemplates are templates that no pattern mentions.
	UnusedTemplates []string `json:"unusedTemplates,omitempty" yaml:",omitempty"`

	// ImplicitTypes are types that patterns mention without a
	// template (so they are ordered).
	ImplicitTypes []string `json:"implicitTypes,omitempty" yaml:",omitempty"`

	// UnmatchedFacts are types of deffacts that no pattern
	// mentions.
	UnmatchedFacts []string `json:"unmatchedFacts,omitempty" yaml:",omitempty"`
}

// Analyze looks at the rule base and the engine's network.  The rule
// base should be installed in the engine.  If the engine is nil,
// Analyze makes one.
func Analyze(ctx context.Context, rb *rules.RuleBase, e *core.Engine) (*Analysis, error) {
	if rb == nil {
		return nil, errors.New("no rule base to analyze")
	}
	if e == nil {
		e = core.NewEngine(nil)
		if err := rb.Install(ctx, e, nil); err != nil {
			return nil, err
		}
	}

	a := &Analysis{
		Name:  rb.Name,
		Rules: len(rb.CoreRules()),
		Nodes: make(map[string]int),
	}

	templates := make(map[string]bool)
	for _, t := range rb.CoreTemplates() {
		templates[t.Name] = true
	}
	a.Templates = len(templates)

	mentioned := make(map[string]bool)
	implicit := make(map[string]bool)
	for _, r := range rb.CoreRules() {
		a.Actions += len(r.Actions)
		for _, p := range r.Patterns {
			a.Patterns++
			if p.Test {
				a.Tests++
				continue
			}
			if p.Negated {
				a.Negated++
			}
			mentioned[p.Type] = true
			if !templates[p.Type] && p.Type != core.InitialFact {
				implicit[p.Type] = true
			}
		}
	}

	unmatched := make(map[string]bool)
	for _, fs := range rb.CoreDeffacts() {
		a.Deffacts += len(fs)
		for _, f := range fs {
			if !mentioned[f.Type] {
				unmatched[f.Type] = true
			}
		}
	}

	unused := make(map[string]bool)
	for name := range templates {
		if !mentioned[name] {
			unused[name] = true
		}
	}

	for _, n := range e.Network().Nodes {
		a.Nodes[n.Kind]++
		if 1 < n.Uses {
			a.SharedNodes++
		}
	}

	a.UnusedTemplates = keysToStringSlice(unused)
	a.ImplicitTypes = keysToStringSlice(implicit)
	a.UnmatchedFacts = keysToStringSlice(unmatched)

	return a, nil
}

// keysToStringSlice returns the sorted keys of the map.
func keysToStringSlice(m map[string]bool) []string {
	var list []string
	for key := range m {
		list = append(list, key)
	}
	sort.Strings(list)
	return list
}
