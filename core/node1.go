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
	"strconv"
)

type node1Kind int

const (
	n1Type     node1Kind = iota // Fact type.
	n1Split                     // Multifield splitter.
	n1Length                    // Multislot length.
	n1Eq                        // Field equals value.
	n1Neq                       // Field doesn't equal value.
	n1IntraEq                   // Two fields of one fact are equal.
	n1IntraNeq                  // Two fields of one fact differ.
	n1Pred                      // Call returns true.
	n1RetEq                     // Field equals call result.
	n1RetNeq                    // Field doesn't equal call result.
)

var node1KindNames = []string{
	"type", "split", "length", "eq", "neq", "intra-eq", "intra-neq",
	"pred", "ret-eq", "ret-neq",
}

func (k node1Kind) String() string {
	return node1KindNames[k]
}

// node1 is a one-input node that tests a single fact.
//
// The node's identity for sharing is (kind, slot, sub, value).  Intra
// tests put the other field's (slot, sub) in value.  A splitter puts
// the shape of the slot's elements in value, like "sms" for single,
// multi, single.
type node1 struct {
	nodeBase
	kind  node1Kind
	slot  int
	sub   int
	value Value

	atom Atom          // n1Type
	call *compiledCall // n1Pred, n1RetEq, n1RetNeq
}

func (n *node1) Kind() string {
	return n.kind.String()
}

func (n *node1) key() string {
	k := strconv.Itoa(int(n.kind)) + "/" + strconv.Itoa(n.slot) + "/" + strconv.Itoa(n.sub) + "/" + n.value.Key()
	if n.call != nil {
		k += "/" + n.call.key()
	}
	return k
}

func (n *node1) Params() map[string]interface{} {
	ps := map[string]interface{}{}
	switch n.kind {
	case n1Type:
		ps["type"] = n.value.Text()
		return ps
	case n1Split:
		ps["shape"] = n.value.Text()
	case n1Length:
		ps["length"] = n.value.Native()
	case n1Eq, n1Neq:
		ps["value"] = n.value.String()
	case n1IntraEq, n1IntraNeq:
		ps["other"] = n.value.Native()
	}
	ps["slot"] = n.slot
	if 0 <= n.sub {
		ps["sub"] = n.sub
	}
	if n.call != nil {
		ps["call"] = n.call.call.String()
	}
	return ps
}

func (n *node1) callNode(ctx context.Context, t *Token, side Side) (bool, error) {
	if t.tag == TagClear {
		return false, n.propagate(ctx, t)
	}

	if n.kind == n1Split {
		f := t.fact
		matched := false
		err := n.splits(f.Slots[n.slot].Items(), func(parts []Value) error {
			matched = true
			g := f.withSlot(n.slot, Value{t: ListType, list: parts})
			return n.propagate(ctx, newToken(g, t.tag))
		})
		return matched, err
	}

	ok, err := n.test(ctx, t)
	if err != nil || !ok {
		return false, err
	}
	return true, n.propagate(ctx, t)
}

func (n *node1) test(ctx context.Context, t *Token) (bool, error) {
	f := t.fact
	switch n.kind {
	case n1Type:
		return f.atom == n.atom, nil
	case n1Length:
		want, _ := n.value.Int()
		return int64(f.Slots[n.slot].Len()) == want, nil
	case n1Eq:
		return fieldOf(f, n.slot, n.sub).Equal(n.value), nil
	case n1Neq:
		return !fieldOf(f, n.slot, n.sub).Equal(n.value), nil
	case n1IntraEq, n1IntraNeq:
		other := n.value.Items()
		slot, _ := other[0].Int()
		sub, _ := other[1].Int()
		same := fieldOf(f, n.slot, n.sub).Equal(fieldOf(f, int(slot), int(sub)))
		return same == (n.kind == n1IntraEq), nil
	}

	// Function calls.  A REMOVE passes unevaluated: downstream
	// memories ignore tokens they don't hold.
	if t.tag == TagRemove {
		return true, nil
	}
	v, err := n.call.eval(ctx, n.net.e.eval, n.id, t)
	if err != nil {
		return false, err
	}
	switch n.kind {
	case n1Pred:
		return v.Truthy(), nil
	case n1RetEq:
		return fieldOf(f, n.slot, n.sub).Equal(v), nil
	case n1RetNeq:
		return !fieldOf(f, n.slot, n.sub).Equal(v), nil
	}
	return false, nil
}

// splits calls f with each way the items can be carved into the
// node's shape.  A single element takes one item.  A multi element
// takes any number of items, which become a list.
func (n *node1) splits(items []Value, f func([]Value) error) error {
	shape := n.value.Text()
	singles, multis := 0, 0
	for _, c := range shape {
		if c == 'm' {
			multis++
		} else {
			singles++
		}
	}
	extra := len(items) - singles
	if extra < 0 || (multis == 0 && extra != 0) {
		return nil
	}

	widths := make([]int, multis)

	var emit func(i, left int) error
	emit = func(i, left int) error {
		if i == multis-1 || multis == 0 {
			if 0 < multis {
				widths[i] = left
			}
			parts := make([]Value, 0, len(shape))
			at, w := 0, 0
			for _, c := range shape {
				if c == 'm' {
					width := widths[w]
					parts = append(parts, List(items[at:at+width]...))
					at += width
					w++
				} else {
					parts = append(parts, items[at])
					at++
				}
			}
			return f(parts)
		}
		for k := 0; k <= left; k++ {
			widths[i] = k
			if err := emit(i+1, left-k); err != nil {
				return err
			}
		}
		return nil
	}

	return emit(0, extra)
}
