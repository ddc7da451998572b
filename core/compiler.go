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
	"strings"
)

// binding is an entry in a rule's binding table: where a variable is
// first bound.
type binding struct {
	ref     varRef
	pattern int
	negated bool
}

// compiledRule is a Rule wired into the network.
type compiledRule struct {
	rule     *Rule
	patterns []*Pattern
	vars     map[string]binding
	order    []string

	// nodes are all the nodes this rule uses (each counted once)
	// in the order they were used.
	nodes []Node
	term  *terminal
}

// bindings gets the values of the rule's variables from a complete
// token.  Variables local to negated patterns are omitted.
func (cr *compiledRule) bindings(t *Token) Bindings {
	bs := make(Bindings, len(cr.order))
	for _, name := range cr.order {
		b := cr.vars[name]
		if b.negated {
			continue
		}
		bs[name] = b.ref.get(t)
	}
	return bs
}

// compiler compiles one rule.
//
// First validate checks everything and builds the binding table
// without touching the network.  Then build creates or shares nodes.
type compiler struct {
	e  *Engine
	cr *compiledRule

	// offset is 1 when the initial-fact pattern was prepended.
	offset int

	tmpls     []*Template
	positions []int
	fresh     map[string]*Template
	used      map[Node]bool
}

func newCompiler(e *Engine, r *Rule) *compiler {
	c := &compiler{
		e: e,
		cr: &compiledRule{
			rule: r,
			vars: make(map[string]binding),
		},
		fresh: make(map[string]*Template),
		used:  make(map[Node]bool),
	}
	ps := r.Patterns
	if len(ps) == 0 || ps[0].Negated || ps[0].Test {
		c.offset = 1
		ps = append([]*Pattern{OrderedPattern(InitialFact)}, ps...)
	}
	c.cr.patterns = ps
	return c
}

func (c *compiler) errorf(i int, msg string) error {
	return &CompileError{
		Rule:    c.cr.rule.Name,
		Pattern: i - c.offset,
		Msg:     msg,
	}
}

func (c *compiler) wrap(i int, err error) error {
	return &CompileError{
		Rule:    c.cr.rule.Name,
		Pattern: i - c.offset,
		Err:     err,
	}
}

// template finds the pattern's template.  An ordered pattern of a
// new type gets a fresh ordered template, which is registered only if
// compilation succeeds.
func (c *compiler) template(i int, p *Pattern) (*Template, error) {
	if t, have := c.e.templates[p.Type]; have {
		return t, nil
	}
	if t, have := c.fresh[p.Type]; have {
		return t, nil
	}
	for _, s := range p.Slots {
		if s.Name != "" && s.Name != OrderedSlot {
			return nil, c.wrap(i, &UnknownTemplate{Name: p.Type})
		}
	}
	t := OrderedTemplate(p.Type)
	if err := t.init(c.e.atoms); err != nil {
		return nil, c.wrap(i, err)
	}
	c.fresh[p.Type] = t
	return t, nil
}

// usable checks that a variable can be used at pattern i.
func (c *compiler) usable(i int, name string) (binding, error) {
	b, have := c.cr.vars[name]
	if !have || (b.negated && b.pattern != i) {
		return b, &UndefinedVariable{
			Rule: c.cr.rule.Name,
			Name: name,
		}
	}
	return b, nil
}

func (c *compiler) checkCall(i int, call *FuncCall) error {
	if call == nil {
		return c.errorf(i, "missing function call")
	}
	for _, name := range call.Variables() {
		if _, err := c.usable(i, name); err != nil {
			return err
		}
	}
	return nil
}

func (c *compiler) bind(name string, b binding) {
	c.cr.vars[name] = b
	c.cr.order = append(c.cr.order, name)
}

// validate checks the rule and builds the binding table.
func (c *compiler) validate() error {
	if c.cr.rule.Name == "" {
		return &CompileError{Rule: "", Pattern: -1, Msg: "rule has no name"}
	}
	ps := c.cr.patterns
	c.tmpls = make([]*Template, len(ps))
	c.positions = make([]int, len(ps))
	pos := 0
	for i, p := range ps {
		if p == nil {
			return c.errorf(i, "nil pattern")
		}
		if p.Test {
			c.positions[i] = -1
			if len(p.Calls) == 0 {
				return c.errorf(i, "test has no calls")
			}
			for _, call := range p.Calls {
				if err := c.checkCall(i, call); err != nil {
					return err
				}
			}
			continue
		}
		if p.Type == "" {
			return c.errorf(i, "pattern has no type")
		}
		tmpl, err := c.template(i, p)
		if err != nil {
			return err
		}
		c.tmpls[i] = tmpl
		c.positions[i] = pos

		if p.Binding != "" {
			if p.Negated {
				return c.errorf(i, "can't bind the fact of a negated pattern")
			}
			if _, have := c.cr.vars[p.Binding]; have {
				return c.errorf(i, "fact variable ?"+p.Binding+" already bound")
			}
			c.bind(p.Binding, binding{
				ref:     varRef{name: p.Binding, pos: pos, slot: -1, sub: -1},
				pattern: i,
			})
		}

		seen := make(map[int]bool, len(p.Slots))
		for _, sp := range p.Slots {
			slot, have := tmpl.SlotIndex(sp.Name)
			if !have {
				return c.wrap(i, &UnknownSlot{Template: tmpl.Name, Slot: sp.Name})
			}
			if seen[slot] {
				return c.errorf(i, "slot "+sp.Name+" constrained twice")
			}
			seen[slot] = true
			multi := tmpl.Slots[slot].Multi
			if !multi && len(sp.Elements) != 1 {
				return c.errorf(i, "single slot "+sp.Name+" needs exactly one element")
			}
			for j, elem := range sp.Elements {
				if len(elem) == 0 {
					return c.errorf(i, "empty element")
				}
				sub := -1
				if multi {
					sub = j
				}
				for _, t := range elem {
					if err := c.validateTest(i, pos, slot, sub, multi, t); err != nil {
						return err
					}
				}
			}
		}
		pos++
	}
	return nil
}

func (c *compiler) validateTest(i, pos, slot, sub int, multi bool, t Test) error {
	p := c.cr.patterns[i]
	v := t.Value
	if t.multi() && !multi {
		return c.errorf(i, "multifield "+v.String()+" in a single slot")
	}
	switch {
	case t.Kind == TestPred || t.Kind == TestRet:
		if v.Type() != CallType {
			return c.errorf(i, t.Kind.String()+" test needs a function call")
		}
		return c.checkCall(i, v.FuncCall())
	case v.Type() == CallType:
		return c.checkCall(i, v.FuncCall())
	case v.IsVariable():
		name := v.Text()
		if name == "" {
			if t.Kind == TestNeq {
				return c.errorf(i, "can't negate an anonymous variable")
			}
			return nil
		}
		b, have := c.cr.vars[name]
		if !have {
			if t.Kind == TestNeq {
				return c.errorf(i, "variable ?"+name+" first appears negated")
			}
			c.bind(name, binding{
				ref:     varRef{name: name, pos: pos, slot: slot, sub: sub},
				pattern: i,
				negated: p.Negated,
			})
			return nil
		}
		if b.ref.slot < 0 && b.ref.pos == pos {
			return c.errorf(i, "fact variable ?"+name+" used in its own pattern")
		}
		_, err := c.usable(i, name)
		return err
	}
	return nil
}

// use counts n as used by this rule (once).
func (c *compiler) use(n Node) {
	if c.used[n] {
		return
	}
	c.used[n] = true
	n.base().uses++
	c.cr.nodes = append(c.cr.nodes, n)
}

// share1 finds an existing one-input node under parent with the same
// parameters or makes one.
func (c *compiler) share1(parent Node, cand *node1) Node {
	net := c.e.net
	key := cand.key()
	var found *node1
	if parent == nil {
		for _, r := range net.roots {
			if r.key() == key {
				found = r
				break
			}
		}
	} else {
		for _, e := range parent.base().succ {
			if n, is := e.to.(*node1); is && n.key() == key {
				found = n
				break
			}
		}
	}
	if found == nil {
		found = cand
		net.register(found)
		net.link(parent, found, Left)
	}
	c.use(found)
	return found
}

// compileCall resolves the call's variables.  If local is true, the
// references are relative to a token with just this pattern's fact.
func (c *compiler) compileCall(call *FuncCall, local bool) *compiledCall {
	names := call.Variables()
	cc := &compiledCall{
		call: call,
		refs: make([]varRef, len(names)),
	}
	for i, name := range names {
		r := c.cr.vars[name].ref
		if local {
			r.pos = 0
		}
		cc.refs[i] = r
	}
	return cc
}

// isLocal reports whether all of the call's variables come from the
// pattern at position pos.
func (c *compiler) isLocal(call *FuncCall, pos int) bool {
	for _, name := range call.Variables() {
		if c.cr.vars[name].ref.pos != pos {
			return false
		}
	}
	return true
}

// shapeOf gives the splitter shape for a multislot's elements.
func shapeOf(elems [][]Test) (string, bool) {
	var b strings.Builder
	split := false
	for _, elem := range elems {
		m := false
		for _, t := range elem {
			if t.multi() {
				m = true
			}
		}
		if m {
			split = true
			b.WriteByte('m')
		} else {
			b.WriteByte('s')
		}
	}
	return b.String(), split
}

// alpha builds the one-input chain for pattern i and collects the tests
// that need a join.
func (c *compiler) alpha(i int) (Node, []joinTest) {
	p := c.cr.patterns[i]
	tmpl := c.tmpls[i]
	pos := c.positions[i]

	tail := c.share1(nil, &node1{
		kind:  n1Type,
		value: Sym(tmpl.Name),
		atom:  tmpl.atom,
	})

	slots := p.Slots
	if tmpl.Ordered && len(slots) == 0 {
		slots = []SlotPattern{{}}
	}

	for _, sp := range slots {
		slot, _ := tmpl.SlotIndex(sp.Name)
		if !tmpl.Slots[slot].Multi {
			continue
		}
		if shape, split := shapeOf(sp.Elements); split {
			tail = c.share1(tail, &node1{kind: n1Split, slot: slot, sub: -1, value: Str(shape)})
		} else {
			tail = c.share1(tail, &node1{kind: n1Length, slot: slot, sub: -1, value: Int(int64(len(sp.Elements)))})
		}
	}

	type intra struct {
		kind      node1Kind
		slot, sub int
		other     varRef
	}
	var (
		intras []intra
		joins  []joinTest
	)

	for _, sp := range slots {
		slot, _ := tmpl.SlotIndex(sp.Name)
		multi := tmpl.Slots[slot].Multi
		for j, elem := range sp.Elements {
			sub := -1
			if multi {
				sub = j
			}
			for _, t := range elem {
				v := t.Value
				switch {
				case v.Type() == CallType || t.Kind == TestPred || t.Kind == TestRet:
					call := v.FuncCall()
					local := c.isLocal(call, pos)
					if t.Kind == TestPred {
						if local {
							tail = c.share1(tail, &node1{kind: n1Pred, slot: slot, sub: sub, call: c.compileCall(call, true)})
						} else {
							joins = append(joins, joinTest{kind: jtPred, slot: slot, sub: sub, call: c.compileCall(call, false)})
						}
						continue
					}
					k1, k2 := n1RetEq, jtRetEq
					if t.Kind == TestNeq {
						k1, k2 = n1RetNeq, jtRetNeq
					}
					if local {
						tail = c.share1(tail, &node1{kind: k1, slot: slot, sub: sub, call: c.compileCall(call, true)})
					} else {
						joins = append(joins, joinTest{kind: k2, slot: slot, sub: sub, call: c.compileCall(call, false)})
					}
				case v.IsVariable():
					name := v.Text()
					if name == "" {
						continue
					}
					b := c.cr.vars[name]
					if b.ref.pos == pos {
						if b.ref.slot == slot && b.ref.sub == sub {
							// The binding site.
							continue
						}
						k := n1IntraEq
						if t.Kind == TestNeq {
							k = n1IntraNeq
						}
						intras = append(intras, intra{kind: k, slot: slot, sub: sub, other: b.ref})
						continue
					}
					k := jtEq
					if t.Kind == TestNeq {
						k = jtNeq
					}
					joins = append(joins, joinTest{kind: k, left: b.ref, slot: slot, sub: sub})
				default:
					k := n1Eq
					if t.Kind == TestNeq {
						k = n1Neq
					}
					tail = c.share1(tail, &node1{kind: k, slot: slot, sub: sub, value: v})
				}
			}
		}
	}

	for _, x := range intras {
		tail = c.share1(tail, &node1{
			kind:  x.kind,
			slot:  x.slot,
			sub:   x.sub,
			value: List(Int(int64(x.other.slot)), Int(int64(x.other.sub))),
		})
	}

	return tail, joins
}

// findJoin looks for a non-negated join already wired between the same
// two inputs with the same tests.
func (c *compiler) findJoin(left, right Node, tests []joinTest) *node2 {
	key := testsKey(tests)
	for _, e := range left.base().succ {
		j, is := e.to.(*node2)
		if !is || j.negated || e.side != Left {
			continue
		}
		if j.leftIn == left && j.rightIn == right && testsKey(j.tests) == key {
			return j
		}
	}
	return nil
}

// build wires the rule into the network.  It can't fail after
// validate succeeds.
func (c *compiler) build() *compiledRule {
	for name, t := range c.fresh {
		c.e.templates[name] = t
	}

	net := c.e.net
	var left Node
	for i, p := range c.cr.patterns {
		if p.Test {
			calls := make([]*compiledCall, len(p.Calls))
			for k, call := range p.Calls {
				calls[k] = c.compileCall(call, false)
			}
			tn := &testNode{calls: calls}
			net.register(tn)
			net.link(left, tn, Left)
			c.use(tn)
			left = tn
			continue
		}

		tail, tests := c.alpha(i)
		if left == nil {
			left = tail
			continue
		}

		var j *node2
		if !p.Negated {
			j = c.findJoin(left, tail, tests)
		}
		if j == nil {
			j = newNode2(left, tail, tests, p.Negated)
			net.register(j)
			net.link(left, j, Left)
			net.link(tail, j, Right)
		}
		c.use(j)
		left = j
	}

	term := newTerminal(c.cr)
	net.register(term)
	net.link(left, term, Left)
	c.use(term)
	c.cr.term = term

	return c.cr
}
