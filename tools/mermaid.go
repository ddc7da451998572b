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
	"fmt"
	"io"
	"strings"

	"github.com/Comcast/jess/core"
)

type MermaidOpts struct {
	// ShowParams will result in node labels that include the
	// node's parameters.
	ShowParams bool `json:"showParams"`

	// TerminalFill is the fill color for terminal nodes.  Does
	// not apply if TerminalClass is set.
	TerminalFill string `json:"terminalFill,omitempty"`

	// TerminalClass will be the CSS class for terminal nodes.
	TerminalClass string `json:"terminalClass,omitempty"`
}

// Mermaid makes a Mermaid (https://mermaidjs.github.io/) input file
// for the given network.
func Mermaid(v *core.NetworkView, w io.Writer, opts *MermaidOpts) error {
	if opts == nil {
		opts = &MermaidOpts{
			ShowParams:   true,
			TerminalFill: "#bcf2db",
		}
	}

	fmt.Fprintf(w, "graph TB\n")

	for _, n := range v.Nodes {
		label := n.Kind
		if opts.ShowParams {
			if ps := paramsLabel(n.Params); ps != "" {
				ps = strings.Replace(ps, `"`, `'`, -1)
				label += "<br/>" + strings.Replace(ps, "\n", "<br/>", -1)
			}
		}
		nid := fmt.Sprintf("n%d", n.ID)
		if n.Kind == "terminal" {
			fmt.Fprintf(w, "  %s[\"%s\"]\n", nid, label)
			switch {
			case opts.TerminalClass != "":
				fmt.Fprintf(w, "  class %s %s\n", nid, opts.TerminalClass)
			case opts.TerminalFill != "":
				fmt.Fprintf(w, "  style %s fill:%s\n", nid, opts.TerminalFill)
			}
		} else {
			fmt.Fprintf(w, "  %s(\"%s\")\n", nid, label)
		}
	}

	for _, n := range v.Nodes {
		for _, e := range n.Successors {
			arrow := "-->"
			if e.Side == core.Right {
				arrow = "-.->"
			}
			fmt.Fprintf(w, "  n%d %s n%d\n", n.ID, arrow, e.To)
		}
	}

	fmt.Fprintf(w, "\n")
	return nil
}
