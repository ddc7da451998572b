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
	"context"
	"fmt"
	"os"
	"time"

	"github.com/Comcast/jess/interpreters"
	"github.com/Comcast/jess/sio"
	"github.com/Comcast/jess/tools/expect"

	"github.com/jsccast/yaml"
	"github.com/spf13/cobra"
)

var expectTimeout time.Duration

var expectCmd = &cobra.Command{
	Use:   "expect FILE SESSION",
	Short: "Check a rule base against a test session",
	Long: `Runs the inputs in the test SESSION (YAML) against a new session
for the rule base and verifies that the expected outputs appear.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), expectTimeout)
		defer cancel()

		bs, err := os.ReadFile(args[1])
		if err != nil {
			return err
		}
		var s expect.Session
		if err = yaml.Unmarshal(bs, &s); err != nil {
			return err
		}
		s.Evaluator = interpreters.Standard()
		s.Logger = logger

		_, e, err := loadEngine(ctx, args[0])
		if err != nil {
			return err
		}
		ss, err := sio.NewSession(ctx, &sio.SessionConf{AutoRun: autoRun}, e, nil)
		if err != nil {
			return err
		}
		if err = s.Run(ctx, ss); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "passed %d ios\n", len(s.IOs))
		return nil
	},
}

func init() {
	expectCmd.Flags().DurationVar(&expectTimeout, "timeout", 30*time.Second, "overall timeout")
	expectCmd.Flags().BoolVar(&autoRun, "autorun", true, "run after each assert, retract, and modify")
	rootCmd.AddCommand(expectCmd)
}
