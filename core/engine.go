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
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Duplicate is what Assert returns when an equal fact is already in
// working memory.
const Duplicate = -1

// Options configure a new Engine.
type Options struct {
	// Logger defaults to zap.NewNop().
	Logger *zap.Logger

	// Evaluator handles function calls in patterns and actions.
	Evaluator Evaluator

	// Strategy breaks salience ties.
	Strategy Strategy

	Observers []Observer
}

type subscriber struct {
	id int
	o  Observer
}

type deffacts struct {
	name  string
	facts []*Fact
}

// Engine is a working memory, a compiled rule network, and an agenda.
//
// Each exported method locks the engine.  Rule actions run while the
// engine is locked and must use their Firing instead of the Engine.
type Engine struct {
	mu sync.Mutex

	logger *zap.Logger
	eval   Evaluator
	atoms  *Atoms

	templates map[string]*Template
	facts     *factStore
	net       *network
	agenda    *agenda
	rules     map[string]*compiledRule
	ruleNames []string
	deffacts  []*deffacts
	observers []subscriber
	nextSub   int

	halted int32
}

// NewEngine makes an Engine whose working memory holds just the
// initial-fact.
func NewEngine(opts *Options) *Engine {
	if opts == nil {
		opts = &Options{}
	}
	e := &Engine{
		logger:    opts.Logger,
		eval:      opts.Evaluator,
		atoms:     NewAtoms(),
		agenda:    &agenda{strategy: opts.Strategy},
	}
	for _, o := range opts.Observers {
		e.subscribe(o)
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	e.init()
	if _, err := e.assert(context.Background(), Ordered(InitialFact)); err != nil {
		panic(err)
	}
	return e
}

func (e *Engine) init() {
	e.templates = make(map[string]*Template, 16)
	e.facts = newFactStore()
	e.net = newNetwork(e)
	e.rules = make(map[string]*compiledRule, 16)
	e.ruleNames = nil
	e.deffacts = nil
	e.agenda.clear()
}

// Atoms returns the engine's intern table.
func (e *Engine) Atoms() *Atoms {
	return e.atoms
}

// Logger returns the engine's logger.
func (e *Engine) Logger() *zap.Logger {
	return e.logger
}

// Evaluator returns the engine's evaluator (which might be nil).
func (e *Engine) Evaluator() Evaluator {
	return e.eval
}

// Subscribe adds an Observer.  The returned function removes it.
func (e *Engine) Subscribe(o Observer) func() {
	e.mu.Lock()
	id := e.subscribe(o)
	e.mu.Unlock()
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		for i, s := range e.observers {
			if s.id == id {
				e.observers = append(e.observers[:i], e.observers[i+1:]...)
				return
			}
		}
	}
}

func (e *Engine) subscribe(o Observer) int {
	e.nextSub++
	e.observers = append(e.observers, subscriber{id: e.nextSub, o: o})
	return e.nextSub
}

func (e *Engine) notify(ev Event) {
	for _, s := range e.observers {
		s.o.Notify(ev)
	}
}

func (e *Engine) activate(cr *compiledRule, t *Token) *Activation {
	a := &Activation{
		rule:  cr,
		token: t,
		index: -1,
	}
	e.agenda.add(a)
	e.notify(Event{Kind: ActivationCreated, Rule: cr.rule.Name, Activation: a})
	return a
}

func (e *Engine) deactivate(a *Activation) {
	if a == nil || a.fired {
		return
	}
	if e.agenda.remove(a) {
		e.notify(Event{Kind: ActivationRemoved, Rule: a.rule.rule.Name, Activation: a})
	}
}

// Deftemplate defines the shape of facts of a type.  Redefining a
// template with a different shape is an error.
func (e *Engine) Deftemplate(t *Template) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if old, have := e.templates[t.Name]; have {
		if sameShape(old, t) {
			return nil
		}
		return fmt.Errorf(`template "%s" already defined`, t.Name)
	}
	if err := t.init(e.atoms); err != nil {
		return err
	}
	e.templates[t.Name] = t
	e.logger.Debug("template defined", zap.String("template", t.Name), zap.Int("slots", len(t.Slots)))
	return nil
}

func sameShape(a, b *Template) bool {
	if a.Ordered != b.Ordered {
		return false
	}
	if a.Ordered {
		return true
	}
	if len(a.Slots) != len(b.Slots) {
		return false
	}
	for i, s := range a.Slots {
		if s.Name != b.Slots[i].Name || s.Multi != b.Slots[i].Multi {
			return false
		}
	}
	return true
}

// Template finds a template.
func (e *Engine) Template(name string) *Template {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.templates[name]
}

// Templates returns all templates sorted by name.
func (e *Engine) Templates() []*Template {
	e.mu.Lock()
	defer e.mu.Unlock()
	acc := make([]*Template, 0, len(e.templates))
	for _, t := range e.templates {
		acc = append(acc, t)
	}
	sort.Slice(acc, func(i, j int) bool {
		return acc[i].Name < acc[j].Name
	})
	return acc
}

// AddRule compiles a rule into the network.
//
// If the rule can't be compiled, nothing changes.  A rule with the
// same name as an existing rule replaces it.  If there are facts in
// working memory, they are sent through the network so the new rule
// sees them.
func (e *Engine) AddRule(ctx context.Context, r *Rule) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.addRule(ctx, r)
}

func (e *Engine) addRule(ctx context.Context, r *Rule) error {
	c := newCompiler(e, r)
	if err := c.validate(); err != nil {
		e.logger.Debug("rule rejected", zap.String("rule", r.Name), zap.Error(err))
		return err
	}
	if _, have := e.rules[r.Name]; have {
		e.removeRule(r.Name)
	}

	cr := c.build()
	e.rules[r.Name] = cr
	e.ruleNames = append(e.ruleNames, r.Name)
	e.logger.Debug("rule added",
		zap.String("rule", r.Name),
		zap.Int("nodes", len(cr.nodes)),
		zap.Int("network", len(e.net.nodes)))
	e.notify(Event{Kind: RuleAdded, Rule: r.Name})

	if err := e.prime(ctx); err != nil {
		e.logger.Warn("priming failed", zap.String("rule", r.Name), zap.Error(err))
		return err
	}
	return nil
}

// prime sends every fact through the network as an UPDATE.
func (e *Engine) prime(ctx context.Context) error {
	for _, f := range e.facts.list() {
		if err := e.net.propagate(ctx, newToken(f, TagUpdate)); err != nil {
			return err
		}
	}
	return nil
}

// RemoveRule takes a rule out of the network.  Nodes that other rules
// use stay.  The rule's pending activations go away.
func (e *Engine) RemoveRule(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, have := e.rules[name]; !have {
		return &UnknownRule{Name: name}
	}
	e.removeRule(name)
	return nil
}

func (e *Engine) removeRule(name string) {
	cr := e.rules[name]
	cr.term.retire()
	unlinked := 0
	for i := len(cr.nodes) - 1; 0 <= i; i-- {
		n := cr.nodes[i]
		b := n.base()
		b.uses--
		if b.uses <= 0 {
			e.net.unlink(n)
			unlinked++
		}
	}
	delete(e.rules, name)
	for i, s := range e.ruleNames {
		if s == name {
			e.ruleNames = append(e.ruleNames[:i], e.ruleNames[i+1:]...)
			break
		}
	}
	e.logger.Debug("rule removed", zap.String("rule", name), zap.Int("unlinked", unlinked))
	e.notify(Event{Kind: RuleRemoved, Rule: name})
}

// Rule finds a rule.
func (e *Engine) Rule(name string) *Rule {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cr, have := e.rules[name]; have {
		return cr.rule
	}
	return nil
}

// Rules returns the rules in the order they were added.
func (e *Engine) Rules() []*Rule {
	e.mu.Lock()
	defer e.mu.Unlock()
	acc := make([]*Rule, len(e.ruleNames))
	for i, name := range e.ruleNames {
		acc[i] = e.rules[name].rule
	}
	return acc
}

// Deffacts registers facts that every Reset asserts.  They are not
// asserted now.
func (e *Engine) Deffacts(name string, fs ...*Fact) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, d := range e.deffacts {
		if d.name == name {
			d.facts = fs
			return
		}
	}
	e.deffacts = append(e.deffacts, &deffacts{name: name, facts: fs})
}

// Assert adds a fact to working memory and returns its identity.  If
// an equal fact is already there, Assert returns Duplicate.
//
// All matching happens before Assert returns.
func (e *Engine) Assert(ctx context.Context, f *Fact) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.assert(ctx, f)
}

func (e *Engine) shapeFact(ctx context.Context, f *Fact) (*Fact, error) {
	if f == nil {
		return nil, errors.New("nil fact")
	}
	if f.Type == "" {
		return nil, errors.New("fact has no type")
	}
	f, err := e.resolveCalls(ctx, f)
	if err != nil {
		return nil, err
	}
	t, have := e.templates[f.Type]
	if !have {
		if f.Named != nil {
			return nil, &UnknownTemplate{Name: f.Type}
		}
		t = OrderedTemplate(f.Type)
		if err := t.init(e.atoms); err != nil {
			return nil, err
		}
		e.templates[f.Type] = t
	}
	return shape(f, t)
}

// resolveCalls evaluates the function calls in a fact's data, so
// (total (+ 1 2)) is stored as (total 3).  Returns f itself when it
// has no calls.
func (e *Engine) resolveCalls(ctx context.Context, f *Fact) (*Fact, error) {
	if !hasCalls(f.Slots) && !hasCalls(namedValues(f.Named)) {
		return f, nil
	}
	g := &Fact{ID: f.ID, Type: f.Type}
	if f.Slots != nil {
		g.Slots = make([]Value, len(f.Slots))
		for i, v := range f.Slots {
			r, err := e.resolveValue(ctx, f.Type, v)
			if err != nil {
				return nil, err
			}
			g.Slots[i] = r
		}
	}
	if f.Named != nil {
		g.Named = make(map[string]Value, len(f.Named))
		for name, v := range f.Named {
			r, err := e.resolveValue(ctx, f.Type, v)
			if err != nil {
				return nil, err
			}
			g.Named[name] = r
		}
	}
	return g, nil
}

func (e *Engine) resolveValue(ctx context.Context, typ string, v Value) (Value, error) {
	switch v.Type() {
	case CallType:
		if e.eval == nil {
			return Nil, ErrNoEvaluator
		}
		r, err := e.eval.Eval(ctx, v.FuncCall(), NewBindings())
		if err != nil {
			return Nil, fmt.Errorf("fact of type %s: %s: %w", typ, v, err)
		}
		return r, nil
	case ListType:
		items := v.Items()
		acc := make([]Value, len(items))
		for i, x := range items {
			r, err := e.resolveValue(ctx, typ, x)
			if err != nil {
				return Nil, err
			}
			acc[i] = r
		}
		return List(acc...), nil
	}
	return v, nil
}

func hasCalls(vs []Value) bool {
	for _, v := range vs {
		switch v.Type() {
		case CallType:
			return true
		case ListType:
			if hasCalls(v.Items()) {
				return true
			}
		}
	}
	return false
}

func namedValues(m map[string]Value) []Value {
	if len(m) == 0 {
		return nil
	}
	vs := make([]Value, 0, len(m))
	for _, v := range m {
		vs = append(vs, v)
	}
	return vs
}

func (e *Engine) assert(ctx context.Context, f *Fact) (int, error) {
	sf, err := e.shapeFact(ctx, f)
	if err != nil {
		return Duplicate, err
	}
	if e.facts.find(sf) != nil {
		return Duplicate, nil
	}
	e.facts.add(sf)
	e.notify(Event{Kind: FactAsserted, Fact: sf})
	if err := e.net.propagate(ctx, newToken(sf, TagAdd)); err != nil {
		e.logger.Warn("assert", zap.Stringer("fact", sf), zap.Error(err))
		return sf.ID, err
	}
	return sf.ID, nil
}

// Retract removes the fact that's equal to the given one (ignoring
// identity).  If there's no such fact, Retract returns false.
func (e *Engine) Retract(ctx context.Context, f *Fact) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.retract(ctx, f)
}

func (e *Engine) retract(ctx context.Context, f *Fact) (bool, error) {
	sf, err := e.shapeFact(ctx, f)
	if err != nil {
		var ut *UnknownTemplate
		if errors.As(err, &ut) {
			return false, nil
		}
		return false, err
	}
	stored := e.facts.find(sf)
	if stored == nil {
		return false, nil
	}
	return true, e.remove(ctx, stored)
}

// RetractID removes a fact by identity.
func (e *Engine) RetractID(ctx context.Context, id int) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.retractID(ctx, id)
}

func (e *Engine) retractID(ctx context.Context, id int) (bool, error) {
	stored := e.facts.get(id)
	if stored == nil {
		return false, nil
	}
	return true, e.remove(ctx, stored)
}

func (e *Engine) remove(ctx context.Context, stored *Fact) error {
	e.facts.remove(stored)
	e.notify(Event{Kind: FactRetracted, Fact: stored})
	if err := e.net.propagate(ctx, newToken(stored, TagRemove)); err != nil {
		e.logger.Warn("retract", zap.Stringer("fact", stored), zap.Error(err))
		return err
	}
	return nil
}

// Modify retracts a named-slot fact and asserts a copy with the given
// slots changed.  The copy gets a new identity, which is returned.
// If there's no fact with the given identity, Modify returns
// Duplicate.
func (e *Engine) Modify(ctx context.Context, id int, slots map[string]Value) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.modify(ctx, id, slots)
}

func (e *Engine) modify(ctx context.Context, id int, slots map[string]Value) (int, error) {
	old := e.facts.get(id)
	if old == nil {
		return Duplicate, nil
	}
	t := old.tmpl
	if t.Ordered {
		return Duplicate, ErrOrderedModify
	}
	named := make(map[string]Value, len(t.Slots))
	for i, s := range t.Slots {
		named[s.Name] = old.Slots[i]
	}
	for name, v := range slots {
		if _, have := t.SlotIndex(name); !have {
			return Duplicate, &UnknownSlot{Template: t.Name, Slot: name}
		}
		named[name] = v
	}
	if err := e.remove(ctx, old); err != nil {
		return Duplicate, err
	}
	return e.assert(ctx, Unordered(t.Name, named))
}

// Fact gets a fact by identity (or returns nil).
func (e *Engine) Fact(id int) *Fact {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.facts.get(id)
}

// Facts returns working memory in identity order.
func (e *Engine) Facts() []*Fact {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.facts.list()
}

// Agenda returns the pending activations in the order they would
// fire.
func (e *Engine) Agenda() []*Activation {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.agenda.sorted()
}

// Network returns a snapshot of the compiled network.
func (e *Engine) Network() *NetworkView {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.net.view()
}

// Reset empties working memory and the agenda, flushes every node
// memory, and then asserts the initial-fact (as fact 0) and all
// deffacts.
func (e *Engine) Reset(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reset(ctx)
}

func (e *Engine) reset(ctx context.Context) error {
	if err := e.net.propagate(ctx, newToken(placeholder, TagClear)); err != nil {
		return err
	}
	e.agenda.clear()
	e.facts.clear()
	e.notify(Event{Kind: EngineReset})
	if _, err := e.assert(ctx, Ordered(InitialFact)); err != nil {
		return err
	}
	for _, d := range e.deffacts {
		for _, f := range d.facts {
			if _, err := e.assert(ctx, f); err != nil {
				return fmt.Errorf("deffacts %s: %w", d.name, err)
			}
		}
	}
	return nil
}

// Clear forgets everything: rules, templates, deffacts, and facts.
// Working memory then holds just the initial-fact.
func (e *Engine) Clear(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.init()
	e.notify(Event{Kind: EngineCleared})
	_, err := e.assert(ctx, Ordered(InitialFact))
	return err
}
