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

// Package tools renders and analyzes rule bases and their networks.
package tools

import (
	"fmt"
	"html"
	"io"
	"strings"

	"github.com/Comcast/jess/core"

	"gopkg.in/yaml.v2"
)

// kindColors are fill colors by node kind.  Other one-input nodes get
// defaultFill.
var kindColors = map[string]string{
	"type":     "#2d93ad",
	"join":     "#99ddc8",
	"not":      "#f98b8b",
	"test":     "#f2d388",
	"terminal": "#52aa5e",
}

const defaultFill = "#bcf2db"

func fillColor(kind string) string {
	if c, have := kindColors[kind]; have {
		return c
	}
	return defaultFill
}

// paramsLabel renders node parameters as YAML.
func paramsLabel(ps map[string]interface{}) string {
	if len(ps) == 0 {
		return ""
	}
	bs, err := yaml.Marshal(ps)
	if err != nil {
		return err.Error()
	}
	return strings.TrimSpace(string(bs))
}

// DotOpts control Dot's output.
type DotOpts struct {
	// ShowParams adds each node's parameters to its label.
	ShowParams bool

	// ShowMemory adds memory sizes and use counts to labels.
	ShowMemory bool

	// Highlight nodes are drawn in red.
	Highlight map[int]bool
}

// Dot makes a Graphviz dot file for the given network.  Not a pretty
// dot file.
//
// Edges into the right input of a join are dashed.
func Dot(v *core.NetworkView, w io.Writer, opts *DotOpts) error {
	if opts == nil {
		opts = &DotOpts{
			ShowParams: true,
			ShowMemory: true,
		}
	}

	p := func(format string, args ...interface{}) {
		fmt.Fprintf(w, format, args...)
	}

	p("digraph G {\n")
	p(`  graph [ordering=out,rankdir=TB,nodesep=0.3,ranksep=0.6]
  node [shape="record" style="rounded,filled"]
  edge [fontsize = "12"]
`)

	for _, n := range v.Nodes {
		label := fmt.Sprintf("%d %s", n.ID, n.Kind)
		if n.Kind == "terminal" {
			if rule, is := n.Params["rule"].(string); is {
				label = fmt.Sprintf("%d %s", n.ID, html.EscapeString(rule))
			}
		}
		if opts.ShowParams {
			if ps := paramsLabel(n.Params); ps != "" {
				ps = html.EscapeString(ps)
				label += `<FONT POINT-SIZE="8"><BR/>` +
					strings.Replace(ps+"\n", "\n", `<BR ALIGN="LEFT"/>`, -1) +
					`</FONT>`
			}
		}
		if opts.ShowMemory {
			mem := fmt.Sprintf("uses %d", n.Uses)
			switch n.Kind {
			case "join", "not":
				mem += fmt.Sprintf(" left %d right %d", n.Left, n.Right)
			case "terminal":
				mem += fmt.Sprintf(" tokens %d", n.Left)
			}
			label += `<FONT POINT-SIZE="6"><BR/>` + mem + `</FONT>`
		}

		style := "filled"
		if n.Root {
			style += ",bold"
		}
		if 1 < n.Uses {
			style += ",rounded"
		}
		color := "black"
		if opts.Highlight[n.ID] {
			color = "red"
		}
		shape := "record"
		if n.Kind == "terminal" {
			shape = "note"
		}
		p("  n%d [shape=\"%s\", style=\"%s\", color=\"%s\", fillcolor=\"%s\", label=<%s> ]\n",
			n.ID, shape, style, color, fillColor(n.Kind), label)
	}

	for _, n := range v.Nodes {
		for _, e := range n.Successors {
			style := "solid"
			if e.Side == core.Right {
				style = "dashed"
			}
			p("  n%d -> n%d [ style=\"%s\" ]\n", n.ID, e.To, style)
		}
	}

	p("}\n")
	return nil
}
