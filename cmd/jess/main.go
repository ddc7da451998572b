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

// Package main is the jess command-line tool for running, rendering,
// and serving rule bases.
//
//	jess run rules.yaml --fact '(input coin)'
//	jess query rules.yaml '{"type":"state","data":["?s"]}'
//	jess dot rules.yaml > rules.dot
//	jess serve rules.yaml --coupling stdio --bolt facts.db
//	jess expect rules.yaml rules.test.yaml
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Comcast/jess/core"
	"github.com/Comcast/jess/interpreters"
	"github.com/Comcast/jess/rules"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	verbose  bool
	strategy string

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "jess",
	Short: "A forward-chaining production rule engine",
	Long: `jess compiles rule bases (YAML or JSON) into a Rete network and
runs them against working memory.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config := zap.NewProductionConfig()
		if verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		if logger, err = config.Build(); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging (including engine events)")
	rootCmd.PersistentFlags().StringVar(&strategy, "strategy", "", "conflict resolution strategy (depth or breadth) overriding the rule base's")
}

// loadRuleBase loads and compiles a rule base.
func loadRuleBase(ctx context.Context, filename string) (*rules.RuleBase, error) {
	rb, err := rules.LoadFile(filename)
	if err != nil {
		return nil, err
	}
	if strategy != "" {
		rb.Strategy = strategy
	}
	if err = rb.Compile(ctx, interpreters.Interpreters(), false); err != nil {
		return nil, err
	}
	return rb, nil
}

// loadEngine makes a reset engine for the rule base in the file.
func loadEngine(ctx context.Context, filename string) (*rules.RuleBase, *core.Engine, error) {
	rb, err := loadRuleBase(ctx, filename)
	if err != nil {
		return nil, nil, err
	}
	opts := &core.Options{
		Logger:    logger,
		Evaluator: interpreters.Standard(),
	}
	if verbose {
		opts.Observers = []core.Observer{&core.LogObserver{Logger: logger}}
	}
	e, err := rb.NewEngine(ctx, opts, interpreters.Interpreters())
	if err != nil {
		return nil, nil, err
	}
	return rb, e, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
