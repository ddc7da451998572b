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

package main

import (
	"fmt"

	"github.com/Comcast/jess/interpreters"
	"github.com/Comcast/jess/sio"
	"github.com/Comcast/jess/tools"

	"github.com/spf13/cobra"
)

var (
	showParams bool
	showMemory bool
	cssFiles   []string
)

var dotCmd = &cobra.Command{
	Use:   "dot FILE",
	Short: "Write the compiled network as a Graphviz dot file",
	Long: `Writes the rule base's network (after a reset) in Graphviz dot:

  jess dot rules.yaml | dot -Tpng > rules.png`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, e, err := loadEngine(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return tools.Dot(e.Network(), cmd.OutOrStdout(), &tools.DotOpts{
			ShowParams: showParams,
			ShowMemory: showMemory,
		})
	},
}

var mermaidCmd = &cobra.Command{
	Use:   "mermaid FILE",
	Short: "Write the compiled network as Mermaid input",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, e, err := loadEngine(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return tools.Mermaid(e.Network(), cmd.OutOrStdout(), &tools.MermaidOpts{
			ShowParams:   showParams,
			TerminalFill: "#bcf2db",
		})
	},
}

var htmlCmd = &cobra.Command{
	Use:   "html FILE",
	Short: "Write an HTML page documenting the rule base",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return tools.ReadAndRenderRulesPage(cmd.Context(), args[0], interpreters.Interpreters(), cssFiles, cmd.OutOrStdout())
	},
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze FILE",
	Short: "Report counts, node sharing, and unused templates",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rb, e, err := loadEngine(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		a, err := tools.Analyze(cmd.Context(), rb, e)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), sio.JSON(a))
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{dotCmd, mermaidCmd} {
		c.Flags().BoolVar(&showParams, "params", true, "show node parameters")
	}
	dotCmd.Flags().BoolVar(&showMemory, "memory", true, "show node memory sizes and use counts")
	htmlCmd.Flags().StringSliceVar(&cssFiles, "css", nil, "CSS files for the page")
	rootCmd.AddCommand(dotCmd, mermaidCmd, htmlCmd, analyzeCmd)
}
