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
	"encoding/json"
	"fmt"

	"github.com/Comcast/jess/core"
	"github.com/Comcast/jess/match"
	"github.com/Comcast/jess/sio"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	runFacts  []string
	runLimit  int
	runAgenda bool
)

var runCmd = &cobra.Command{
	Use:   "run FILE",
	Short: "Reset, assert facts, run, and print what happened",
	Long: `Resets an engine for the rule base, asserts any --fact facts, and
runs until the agenda is empty (or --limit firings).  Emitted messages
are printed as "emit" lines, followed by working memory.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rb, e, err := loadEngine(ctx, args[0])
		if err != nil {
			return err
		}
		for _, src := range runFacts {
			f, err := rb.Parser().Fact(src)
			if err != nil {
				return err
			}
			if _, err = e.Assert(ctx, f); err != nil {
				return err
			}
		}

		out := cmd.OutOrStdout()
		if runAgenda {
			for _, a := range e.Agenda() {
				fmt.Fprintf(out, "agenda %s\n", a)
			}
		}

		ran, err := e.Run(ctx, &core.Control{Limit: runLimit})
		if ran != nil {
			for _, x := range ran.Emitted {
				fmt.Fprintf(out, "emit %s\n", sio.JS(x))
			}
			logger.Info("ran",
				zap.Int("fired", ran.Fired),
				zap.Stringer("stoppedBecause", ran.StoppedBecause))
		}
		if err != nil {
			return err
		}
		for _, f := range e.Facts() {
			fmt.Fprintf(out, "f-%d %s\n", f.ID, f)
		}
		return nil
	},
}

var queryCmd = &cobra.Command{
	Use:   "query FILE PATTERN",
	Short: "Run a rule base and then query working memory",
	Long: `Resets and runs an engine for the rule base and then matches the
JSON pattern against every fact's map form:

  jess query people.yaml '{"type":"person","name":"?n","age":"?a"}'`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		var pattern interface{}
		if err := json.Unmarshal([]byte(args[1]), &pattern); err != nil {
			return fmt.Errorf("bad pattern: %w", err)
		}
		_, e, err := loadEngine(ctx, args[0])
		if err != nil {
			return err
		}
		if _, err = e.Run(ctx, &core.Control{Limit: runLimit}); err != nil {
			return err
		}
		facts := e.Facts()
		maps := make([]map[string]interface{}, len(facts))
		for i, f := range facts {
			maps[i] = f.Map()
		}
		found, err := match.Query(pattern, maps, match.NewBindings())
		if err != nil {
			return err
		}
		for _, f := range found {
			fmt.Fprintln(cmd.OutOrStdout(), sio.JS(f))
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringArrayVarP(&runFacts, "fact", "f", nil, "fact to assert after the reset (repeatable)")
	runCmd.Flags().BoolVar(&runAgenda, "agenda", false, "print the agenda before running")
	for _, c := range []*cobra.Command{runCmd, queryCmd} {
		c.Flags().IntVarP(&runLimit, "limit", "n", 0, "maximum rule firings (0 means no limit)")
		rootCmd.AddCommand(c)
	}
}
