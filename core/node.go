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
	"sort"
)

// Side says which input of a two-input node a token arrives on.
// One-input nodes and terminals only have a Left input.
type Side int

const (
	Left Side = iota
	Right
)

func (s Side) String() string {
	if s == Right {
		return "right"
	}
	return "left"
}

// Node is a vertex in the compiled network.
type Node interface {
	ID() int

	// Kind is a short name like "type", "join", or "terminal".
	Kind() string

	// Params describes the node's tests for display.
	Params() map[string]interface{}

	// Uses is the number of rules that use this node.
	Uses() int

	// callNode is the only way a node changes state.  The
	// returned bool reports whether the token passed the node's
	// own tests.
	callNode(ctx context.Context, t *Token, side Side) (bool, error)

	base() *nodeBase
}

type edge struct {
	to   Node
	side Side
}

type nodeBase struct {
	id      int
	uses    int
	succ    []edge
	parents []Node
	net     *network
}

func (n *nodeBase) ID() int {
	return n.id
}

func (n *nodeBase) Uses() int {
	return n.uses
}

func (n *nodeBase) base() *nodeBase {
	return n
}

func (n *nodeBase) propagate(ctx context.Context, t *Token) error {
	for _, e := range n.succ {
		if _, err := e.to.callNode(ctx, t, e.side); err != nil {
			return err
		}
	}
	return nil
}

func (n *nodeBase) removeSucc(child Node) {
	acc := n.succ[:0]
	for _, e := range n.succ {
		if e.to != child {
			acc = append(acc, e)
		}
	}
	for i := len(acc); i < len(n.succ); i++ {
		n.succ[i] = edge{}
	}
	n.succ = acc
}

func (n *nodeBase) hasSucc(child Node, side Side) bool {
	for _, e := range n.succ {
		if e.to == child && e.side == side {
			return true
		}
	}
	return false
}

// network is the arena of nodes.
type network struct {
	e      *Engine
	nodes  map[int]Node
	roots  []*node1
	byType map[Atom][]*node1
	nextID int
}

func newNetwork(e *Engine) *network {
	return &network{
		e:      e,
		nodes:  make(map[int]Node, 64),
		byType: make(map[Atom][]*node1, 16),
		nextID: 1,
	}
}

func (net *network) register(n Node) {
	b := n.base()
	b.id = net.nextID
	b.net = net
	net.nextID++
	net.nodes[b.id] = n
}

// link wires parent to child.  A nil parent means the child is a root.
func (net *network) link(parent, child Node, side Side) {
	if parent == nil {
		r := child.(*node1)
		net.roots = append(net.roots, r)
		net.byType[r.atom] = append(net.byType[r.atom], r)
		return
	}
	pb := parent.base()
	if pb.hasSucc(child, side) {
		return
	}
	pb.succ = append(pb.succ, edge{to: child, side: side})
	cb := child.base()
	for _, p := range cb.parents {
		if p == parent {
			return
		}
	}
	cb.parents = append(cb.parents, parent)
}

// unlink removes a node that no rule uses.
func (net *network) unlink(n Node) {
	b := n.base()
	if len(b.parents) == 0 {
		if r, is := n.(*node1); is {
			net.roots = removeNode1(net.roots, r)
			net.byType[r.atom] = removeNode1(net.byType[r.atom], r)
			if len(net.byType[r.atom]) == 0 {
				delete(net.byType, r.atom)
			}
		}
	}
	for _, p := range b.parents {
		p.base().removeSucc(n)
	}
	b.parents = nil
	delete(net.nodes, b.id)
}

func removeNode1(ns []*node1, n *node1) []*node1 {
	acc := ns[:0]
	for _, x := range ns {
		if x != n {
			acc = append(acc, x)
		}
	}
	return acc
}

// propagate sends a token from a fact into the roots.  CLEAR goes to
// every root.  Otherwise only roots that test for the fact's type can
// match.
func (net *network) propagate(ctx context.Context, t *Token) error {
	roots := net.roots
	if t.tag != TagClear {
		roots = net.byType[t.fact.atom]
	}
	for _, r := range roots {
		if _, err := r.callNode(ctx, t, Left); err != nil {
			return err
		}
	}
	return nil
}

// NodeInfo describes a node for display and analysis.
type NodeInfo struct {
	ID         int                    `json:"id" yaml:"id"`
	Kind       string                 `json:"kind" yaml:"kind"`
	Params     map[string]interface{} `json:"params,omitempty" yaml:"params,omitempty"`
	Uses       int                    `json:"uses" yaml:"uses"`
	Root       bool                   `json:"root,omitempty" yaml:"root,omitempty"`
	Left       int                    `json:"left,omitempty" yaml:"left,omitempty"`
	Right      int                    `json:"right,omitempty" yaml:"right,omitempty"`
	Successors []EdgeInfo             `json:"succ,omitempty" yaml:"succ,omitempty"`
}

// EdgeInfo is an edge to a successor.
type EdgeInfo struct {
	To   int  `json:"to" yaml:"to"`
	Side Side `json:"side" yaml:"side"`
}

// NetworkView is a snapshot of the compiled network.
type NetworkView struct {
	Nodes []NodeInfo `json:"nodes" yaml:"nodes"`
}

// Count returns the number of nodes of the given kind (or of all
// kinds if kind is empty).
func (v *NetworkView) Count(kind string) int {
	n := 0
	for _, x := range v.Nodes {
		if kind == "" || x.Kind == kind {
			n++
		}
	}
	return n
}

// Node finds a node by id.
func (v *NetworkView) Node(id int) *NodeInfo {
	for i := range v.Nodes {
		if v.Nodes[i].ID == id {
			return &v.Nodes[i]
		}
	}
	return nil
}

func (net *network) view() *NetworkView {
	roots := make(map[int]bool, len(net.roots))
	for _, r := range net.roots {
		roots[r.id] = true
	}
	v := &NetworkView{
		Nodes: make([]NodeInfo, 0, len(net.nodes)),
	}
	for id, n := range net.nodes {
		info := NodeInfo{
			ID:     id,
			Kind:   n.Kind(),
			Params: n.Params(),
			Uses:   n.Uses(),
			Root:   roots[id],
		}
		switch vv := n.(type) {
		case *node2:
			info.Left = vv.left.len()
			info.Right = vv.right.len()
		case *terminal:
			info.Left = vv.mem.len()
		}
		for _, e := range n.base().succ {
			info.Successors = append(info.Successors, EdgeInfo{
				To:   e.to.ID(),
				Side: e.side,
			})
		}
		v.Nodes = append(v.Nodes, info)
	}
	sort.Slice(v.Nodes, func(i, j int) bool {
		return v.Nodes[i].ID < v.Nodes[j].ID
	})
	return v
}
