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

// Package rules reads rule base documents (YAML or JSON) and installs
// them into an engine.
//
// A rule base looks like
//
//	name: turnstile
//	templates:
//	  - name: person
//	    slots: [{name: name}, {name: age, default: 0}]
//	deffacts:
//	  start: ["(state locked)"]
//	rules:
//	  - name: coin
//	    when: |
//	      ?i <- (input coin)
//	      ?s <- (state ?)
//	    then: |
//	      (retract ?i ?s)
//	      (assert (state unlocked))
//	      (emit unlocked)
//
// See Parser for the syntax of patterns, facts, and actions.
package rules

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Comcast/jess/core"
	"github.com/Comcast/jess/interpreters/goja"

	"github.com/jsccast/yaml"
)

// JSFunction is the name of the function that Javascript tests use
// and the interpreter name for Javascript actions.
const JSFunction = goja.CallName

// SlotSource is a slot in a TemplateSource.
type SlotSource struct {
	Name    string      `json:"name" yaml:"name"`
	Multi   bool        `json:"multi,omitempty" yaml:",omitempty"`
	Default interface{} `json:"default,omitempty" yaml:",omitempty"`
}

// TemplateSource is the document form of a core.Template.
type TemplateSource struct {
	Name    string        `json:"name" yaml:"name"`
	Doc     string        `json:"doc,omitempty" yaml:",omitempty"`
	Ordered bool          `json:"ordered,omitempty" yaml:",omitempty"`
	Slots   []*SlotSource `json:"slots,omitempty" yaml:",omitempty"`
}

// Template makes the core.Template.
func (s *TemplateSource) Template() (*core.Template, error) {
	if s.Ordered {
		t := core.OrderedTemplate(s.Name)
		t.Doc = s.Doc
		return t, nil
	}
	t := &core.Template{
		Name:  s.Name,
		Doc:   s.Doc,
		Slots: make([]core.SlotDef, len(s.Slots)),
	}
	for i, ss := range s.Slots {
		v, err := core.ValueOf(ss.Default)
		if err != nil {
			return nil, fmt.Errorf("template %s slot %s: %w", s.Name, ss.Name, err)
		}
		if ss.Multi && v.Type() != core.ListType {
			if v.Type() == core.NilType {
				v = core.List()
			} else {
				v = core.List(v)
			}
		}
		t.Slots[i] = core.SlotDef{
			Name:    ss.Name,
			Multi:   ss.Multi,
			Default: v,
		}
	}
	return t, nil
}

// RuleSource is the document form of a rule.
//
// When is a string of conditional elements or a list of patterns.
// Then is a string of calls, a Javascript action, or a list of those.
type RuleSource struct {
	Name     string      `json:"name" yaml:"name"`
	Doc      string      `json:"doc,omitempty" yaml:",omitempty"`
	Salience int         `json:"salience,omitempty" yaml:",omitempty"`
	When     interface{} `json:"when" yaml:"when"`
	Then     interface{} `json:"then,omitempty" yaml:",omitempty"`
}

// RuleBase is a rule base document.
//
// A RuleBase should be Compiled before use.  Install does that if
// needed.
type RuleBase struct {
	// Name is the name of the rule base.  LoadFile uses the file
	// name if the document doesn't give one.
	Name string `json:"name,omitempty" yaml:",omitempty"`

	// Doc is general documentation.  Markdown is fine.
	Doc string `json:"doc,omitempty" yaml:",omitempty"`

	// Strategy is the conflict resolution strategy ("depth" or
	// "breadth") that engines for this rule base should use.
	Strategy string `json:"strategy,omitempty" yaml:",omitempty"`

	Templates []*TemplateSource `json:"templates,omitempty" yaml:",omitempty"`

	// Deffacts maps a name to facts that every Reset asserts.
	Deffacts map[string][]interface{} `json:"deffacts,omitempty" yaml:",omitempty"`

	Rules []*RuleSource `json:"rules,omitempty" yaml:",omitempty"`

	templates []*core.Template
	deffacts  map[string][]*core.Fact
	rules     []*core.Rule
	parser    *Parser
	compiled  bool
}

// Load parses a YAML (or JSON) rule base.
func Load(bs []byte) (*RuleBase, error) {
	var rb RuleBase
	if err := yaml.Unmarshal(bs, &rb); err != nil {
		return nil, err
	}
	return &rb, nil
}

// LoadFile reads a rule base from a file.  The file can include
// other files (say, Javascript sources) with '%inline("NAME")', where
// NAME is relative to the file's directory.
func LoadFile(filename string) (*RuleBase, error) {
	bs, err := ReadFileWithInlines(filename)
	if err != nil {
		return nil, err
	}
	rb, err := Load(bs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	if rb.Name == "" {
		base := filepath.Base(filename)
		rb.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return rb, nil
}

// Compile parses all of the templates, facts, patterns, and actions.
// Actions for interpreters are compiled with the given interpreters
// (nil means core.DefaultInterpreters).
//
// With force false, a RuleBase that's already compiled is left
// alone.
func (rb *RuleBase) Compile(ctx context.Context, interpreters map[string]core.Interpreter, force bool) error {
	if rb.compiled && !force {
		return nil
	}

	if rb.Strategy != "" {
		if _, err := core.ParseStrategy(rb.Strategy); err != nil {
			return err
		}
	}

	ts := make([]*core.Template, 0, len(rb.Templates))
	for _, s := range rb.Templates {
		t, err := s.Template()
		if err != nil {
			return err
		}
		ts = append(ts, t)
	}
	p := NewParser(ts...)
	p.Interpreters = interpreters

	dfs := make(map[string][]*core.Fact, len(rb.Deffacts))
	for name, xs := range rb.Deffacts {
		fs := make([]*core.Fact, len(xs))
		for i, x := range xs {
			f, err := p.Fact(x)
			if err != nil {
				return fmt.Errorf("deffacts %s: %w", name, err)
			}
			fs[i] = f
		}
		dfs[name] = fs
	}

	rs := make([]*core.Rule, 0, len(rb.Rules))
	seen := make(map[string]bool, len(rb.Rules))
	for i, s := range rb.Rules {
		if s.Name == "" {
			return fmt.Errorf("rule %d has no name", i)
		}
		if seen[s.Name] {
			return fmt.Errorf("rule %s is defined twice", s.Name)
		}
		seen[s.Name] = true
		ps, err := p.When(s.When)
		if err != nil {
			return fmt.Errorf("rule %s: %w", s.Name, err)
		}
		as, err := p.Actions(ctx, s.Then)
		if err != nil {
			return fmt.Errorf("rule %s: %w", s.Name, err)
		}
		rs = append(rs, &core.Rule{
			Name:     s.Name,
			Doc:      s.Doc,
			Salience: s.Salience,
			Patterns: ps,
			Actions:  as,
		})
	}

	rb.templates = ts
	rb.deffacts = dfs
	rb.rules = rs
	rb.parser = p
	rb.compiled = true

	return nil
}

// CoreTemplates returns the compiled templates.
func (rb *RuleBase) CoreTemplates() []*core.Template {
	return rb.templates
}

// CoreRules returns the compiled rules.
func (rb *RuleBase) CoreRules() []*core.Rule {
	return rb.rules
}

// CoreDeffacts returns the compiled deffacts by name.
func (rb *RuleBase) CoreDeffacts() map[string][]*core.Fact {
	return rb.deffacts
}

// Parser returns the Parser that Compile made, which knows the rule
// base's templates.  Before Compile, it's nil.
func (rb *RuleBase) Parser() *Parser {
	return rb.parser
}

// Install compiles the rule base if necessary and then defines its
// templates, deffacts, and rules in the engine.  Install doesn't
// Reset the engine.
func (rb *RuleBase) Install(ctx context.Context, e *core.Engine, interpreters map[string]core.Interpreter) error {
	if err := rb.Compile(ctx, interpreters, false); err != nil {
		return err
	}
	for _, t := range rb.templates {
		if err := e.Deftemplate(t); err != nil {
			return err
		}
	}
	names := make([]string, 0, len(rb.deffacts))
	for name := range rb.deffacts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		e.Deffacts(name, rb.deffacts[name]...)
	}
	for _, r := range rb.rules {
		if err := e.AddRule(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

// NewEngine makes an engine (using the rule base's Strategy unless
// opts already has one), installs the rule base, and resets the
// engine.
func (rb *RuleBase) NewEngine(ctx context.Context, opts *core.Options, interpreters map[string]core.Interpreter) (*core.Engine, error) {
	o := core.Options{}
	if opts != nil {
		o = *opts
	}
	if o.Strategy == core.Depth && rb.Strategy != "" {
		s, err := core.ParseStrategy(rb.Strategy)
		if err != nil {
			return nil, err
		}
		o.Strategy = s
	}
	e := core.NewEngine(&o)
	if err := rb.Install(ctx, e, interpreters); err != nil {
		return nil, err
	}
	if err := e.Reset(ctx); err != nil {
		return nil, err
	}
	return e, nil
}
