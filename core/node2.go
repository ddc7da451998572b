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
	"fmt"
	"sort"
	"strconv"
)

type joinTestKind int

const (
	jtEq     joinTestKind = iota // Left value equals right field.
	jtNeq                        // Left value doesn't equal right field.
	jtPred                       // Call over the combined token is true.
	jtRetEq                      // Right field equals call result.
	jtRetNeq                     // Right field doesn't equal call result.
)

var joinTestKindNames = []string{"eq", "neq", "pred", "ret-eq", "ret-neq"}

// joinTest compares something in the left token with a field of the
// right fact.
type joinTest struct {
	kind joinTestKind
	left varRef
	slot int
	sub  int
	call *compiledCall
}

func (jt joinTest) key() string {
	k := joinTestKindNames[jt.kind] + " " + strconv.Itoa(jt.slot) + "." + strconv.Itoa(jt.sub)
	if jt.kind == jtEq || jt.kind == jtNeq {
		k += " " + strconv.Itoa(jt.left.pos) + "." + strconv.Itoa(jt.left.slot) + "." + strconv.Itoa(jt.left.sub)
	}
	if jt.call != nil {
		k += " " + jt.call.key()
	}
	return k
}

func (jt joinTest) String() string {
	switch jt.kind {
	case jtEq, jtNeq:
		op := "=="
		if jt.kind == jtNeq {
			op = "!="
		}
		return fmt.Sprintf("[%d.%d.%d] %s [%d.%d]", jt.left.pos, jt.left.slot, jt.left.sub, op, jt.slot, jt.sub)
	case jtPred:
		return jt.call.call.String()
	}
	return fmt.Sprintf("[%d.%d] %s %s", jt.slot, jt.sub, joinTestKindNames[jt.kind], jt.call.call.String())
}

func testsKey(ts []joinTest) string {
	ks := make([]string, len(ts))
	for i, t := range ts {
		ks[i] = t.key()
	}
	sort.Strings(ks)
	acc := ""
	for _, k := range ks {
		acc += k + ";"
	}
	return acc
}

// placeholder stands in for the missing fact at the position of a
// negated pattern.
var placeholder = &Fact{
	ID:   -1,
	Type: "not",
	atom: NoAtom,
}

// node2 joins tokens from the left with facts from the right.
//
// A negated node2 counts, for each left token, the right facts that
// pass the tests.  It forwards the left token (extended with the
// placeholder) only while that count is zero.
type node2 struct {
	nodeBase
	tests   []joinTest
	negated bool
	left    *tokenMemory
	right   *tokenMemory
	leftIn  Node
	rightIn Node
}

func newNode2(left, right Node, tests []joinTest, negated bool) *node2 {
	return &node2{
		tests:   tests,
		negated: negated,
		left:    newTokenMemory(),
		right:   newTokenMemory(),
		leftIn:  left,
		rightIn: right,
	}
}

func (n *node2) Kind() string {
	if n.negated {
		return "not"
	}
	return "join"
}

func (n *node2) Params() map[string]interface{} {
	ts := make([]string, len(n.tests))
	for i, t := range n.tests {
		ts[i] = t.String()
	}
	ps := map[string]interface{}{
		"left":  n.leftIn.ID(),
		"right": n.rightIn.ID(),
	}
	if 0 < len(ts) {
		ps["tests"] = ts
	}
	return ps
}

// pass runs the tests on the pair.  When calls is false, tests that
// need function calls are considered passed.
func (n *node2) pass(ctx context.Context, lt *Token, rf *Fact, tag Tag, calls bool) (bool, error) {
	var combined *Token
	for _, jt := range n.tests {
		switch jt.kind {
		case jtEq:
			if !jt.left.get(lt).Equal(fieldOf(rf, jt.slot, jt.sub)) {
				return false, nil
			}
		case jtNeq:
			if jt.left.get(lt).Equal(fieldOf(rf, jt.slot, jt.sub)) {
				return false, nil
			}
		default:
			if !calls {
				continue
			}
			if combined == nil {
				combined = lt.extend(rf, tag)
			}
			v, err := jt.call.eval(ctx, n.net.e.eval, n.id, combined)
			if err != nil {
				return false, err
			}
			var ok bool
			switch jt.kind {
			case jtPred:
				ok = v.Truthy()
			case jtRetEq:
				ok = fieldOf(rf, jt.slot, jt.sub).Equal(v)
			case jtRetNeq:
				ok = !fieldOf(rf, jt.slot, jt.sub).Equal(v)
			}
			if !ok {
				return false, nil
			}
		}
	}
	return true, nil
}

func (n *node2) callNode(ctx context.Context, t *Token, side Side) (bool, error) {
	if t.tag == TagClear {
		n.left.clear()
		n.right.clear()
		return false, n.propagate(ctx, t)
	}
	if n.negated {
		if side == Left {
			return n.notLeft(ctx, t)
		}
		return n.notRight(ctx, t)
	}

	mine, other := n.left, n.right
	if side == Right {
		mine, other = n.right, n.left
	}

	switch t.tag {
	case TagAdd:
		mine.add(t)
	case TagUpdate:
		if mine.find(t) == nil {
			mine.add(t)
		}
	case TagRemove:
		if mine.remove(t) == nil {
			return false, nil
		}
	}

	calls := t.tag != TagRemove
	err := other.each(func(o *Token) error {
		lt, rt := t, o
		if side == Right {
			lt, rt = o, t
		}
		ok, err := n.pass(ctx, lt, rt.fact, t.tag, calls)
		if err != nil || !ok {
			return err
		}
		return n.propagate(ctx, lt.extend(rt.fact, t.tag))
	})
	return true, err
}

func (n *node2) notLeft(ctx context.Context, t *Token) (bool, error) {
	switch t.tag {
	case TagRemove:
		stored := n.left.remove(t)
		if stored == nil {
			return false, nil
		}
		if stored.negcnt == 0 {
			return true, n.propagate(ctx, t.extend(placeholder, TagRemove))
		}
		return false, nil
	case TagUpdate:
		if n.left.find(t) != nil {
			return false, nil
		}
	}

	c := t.copy()
	err := n.right.each(func(rt *Token) error {
		ok, err := n.pass(ctx, t, rt.fact, t.tag, true)
		if ok {
			c.negcnt++
		}
		return err
	})
	if err != nil {
		return false, err
	}
	n.left.add(c)
	if c.negcnt == 0 {
		return true, n.propagate(ctx, t.extend(placeholder, t.tag))
	}
	return false, nil
}

func (n *node2) notRight(ctx context.Context, t *Token) (bool, error) {
	switch t.tag {
	case TagUpdate:
		if n.right.find(t) != nil {
			return false, nil
		}
		fallthrough
	case TagAdd:
		n.right.add(t)
		return true, n.left.each(func(lt *Token) error {
			ok, err := n.pass(ctx, lt, t.fact, t.tag, true)
			if err != nil || !ok {
				return err
			}
			lt.negcnt++
			if lt.negcnt == 1 {
				return n.propagate(ctx, lt.extend(placeholder, TagRemove))
			}
			return nil
		})
	case TagRemove:
		if n.right.remove(t) == nil {
			return false, nil
		}
		return true, n.left.each(func(lt *Token) error {
			ok, err := n.pass(ctx, lt, t.fact, t.tag, true)
			if err != nil || !ok {
				return err
			}
			lt.negcnt--
			if lt.negcnt < 0 {
				panic(fmt.Sprintf("negated join %d: negative count for %s", n.id, lt))
			}
			if lt.negcnt == 0 {
				return n.propagate(ctx, lt.extend(placeholder, TagAdd))
			}
			return nil
		})
	}
	return false, nil
}

// testNode evaluates calls over the whole token.  It has no memory and
// occupies no token position.
type testNode struct {
	nodeBase
	calls []*compiledCall
}

func (n *testNode) Kind() string {
	return "test"
}

func (n *testNode) Params() map[string]interface{} {
	cs := make([]string, len(n.calls))
	for i, c := range n.calls {
		cs[i] = c.call.String()
	}
	return map[string]interface{}{
		"calls": cs,
	}
}

func (n *testNode) callNode(ctx context.Context, t *Token, side Side) (bool, error) {
	if t.tag == TagClear || t.tag == TagRemove {
		return true, n.propagate(ctx, t)
	}
	for _, c := range n.calls {
		v, err := c.eval(ctx, n.net.e.eval, n.id, t)
		if err != nil {
			return false, err
		}
		if !v.Truthy() {
			return false, nil
		}
	}
	return true, n.propagate(ctx, t)
}
