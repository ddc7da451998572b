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

import "context"

// terminal turns complete tokens into Activations.
//
// It remembers every token it has seen (fired or not) until a REMOVE
// arrives, so an UPDATE for a token it already has does nothing.
type terminal struct {
	nodeBase
	rule *compiledRule
	mem  *tokenMemory
	acts map[*Token]*Activation
}

func newTerminal(cr *compiledRule) *terminal {
	return &terminal{
		rule: cr,
		mem:  newTokenMemory(),
		acts: make(map[*Token]*Activation),
	}
}

func (n *terminal) Kind() string {
	return "terminal"
}

func (n *terminal) Params() map[string]interface{} {
	return map[string]interface{}{
		"rule":     n.rule.rule.Name,
		"salience": n.rule.rule.Salience,
	}
}

func (n *terminal) callNode(ctx context.Context, t *Token, side Side) (bool, error) {
	e := n.net.e
	switch t.tag {
	case TagClear:
		n.mem.clear()
		n.acts = make(map[*Token]*Activation)
		return false, nil
	case TagRemove:
		stored := n.mem.remove(t)
		if stored == nil {
			return false, nil
		}
		a := n.acts[stored]
		delete(n.acts, stored)
		e.deactivate(a)
		return true, nil
	}

	if n.mem.find(t) != nil {
		return false, nil
	}
	n.mem.add(t)
	n.acts[t] = e.activate(n.rule, t)
	return true, nil
}

// retire takes this terminal's pending activations off the agenda.
func (n *terminal) retire() {
	for _, a := range n.acts {
		n.net.e.deactivate(a)
	}
	n.acts = make(map[*Token]*Activation)
	n.mem.clear()
}
