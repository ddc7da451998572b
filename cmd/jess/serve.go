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
	"os"

	"github.com/Comcast/jess/core"
	"github.com/Comcast/jess/sio"
	"github.com/Comcast/jess/storage"
	"github.com/Comcast/jess/storage/bolt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	coupling     string
	boltFile     string
	sessionId    string
	autoRun      bool
	serveLimit   int
	stateIn      string
	stateOut     string
	printResults bool
	wsURL        string
	mqttOpts     = sio.DefaultMQTTOptions
)

var serveCmd = &cobra.Command{
	Use:   "serve FILE",
	Short: "Process session operations from stdin, a WebSocket, or MQTT",
	Long: `Serves one session for the rule base.  Each input is a JSON
operation like

  {"op":"assert","fact":"(input coin)"}
  {"op":"run"}
  {"op":"query","pattern":{"type":"state","data":["?s"]}}

With --bolt, working memory is stored in a bbolt database and
restored at startup.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		_, e, err := loadEngine(ctx, args[0])
		if err != nil {
			return err
		}

		c, err := couplings(cmd)
		if err != nil {
			return err
		}

		var st storage.Storage
		if boltFile != "" {
			b, err := bolt.NewStorage(boltFile)
			if err != nil {
				return err
			}
			b.Logger = logger
			if err = b.Open(ctx); err != nil {
				return err
			}
			defer func() {
				if err := b.Close(ctx); err != nil {
					logger.Warn("bolt close", zap.Error(err))
				}
			}()
			st = b
		}

		conf := &sio.SessionConf{
			Id:             sessionId,
			AutoRun:        autoRun,
			HaltOnInputEOF: coupling == "stdio",
			Ctl:            &core.Control{Limit: serveLimit},
		}
		if boltFile != "" && conf.Id == "" {
			return fmt.Errorf("--bolt needs a --session")
		}
		return sio.Serve(ctx, conf, e, st, c)
	},
}

func couplings(cmd *cobra.Command) (sio.Couplings, error) {
	switch coupling {
	case "stdio":
		c := sio.NewStdio()
		c.In = os.Stdin
		c.Out = cmd.OutOrStdout()
		c.Tags = true
		c.PrintResults = printResults
		c.StateInputFilename = stateIn
		c.StateOutputFilename = stateOut
		c.Logger = logger
		return c, nil
	case "ws":
		c := sio.NewWebSocketCouplings(wsURL)
		c.SendResults = printResults
		c.StateInputFilename = stateIn
		c.StateOutputFilename = stateOut
		c.Logger = logger
		return c, nil
	case "mqtt":
		if printResults && mqttOpts.ResultsTopic == "" {
			mqttOpts.ResultsTopic = "jess/results"
		}
		c, err := sio.NewMQTTCouplings(mqttOpts, logger)
		if err != nil {
			return nil, err
		}
		c.StateInputFilename = stateIn
		c.StateOutputFilename = stateOut
		return c, nil
	}
	return nil, fmt.Errorf("unknown coupling %q (want stdio, ws, or mqtt)", coupling)
}

func init() {
	fs := serveCmd.Flags()
	fs.StringVarP(&coupling, "coupling", "c", "stdio", "stdio, ws, or mqtt")
	fs.StringVar(&boltFile, "bolt", "", "bbolt database for working memory")
	fs.StringVar(&sessionId, "session", "", "session id (defaults to a new UUID)")
	fs.BoolVar(&autoRun, "autorun", true, "run after each assert, retract, and modify")
	fs.IntVar(&serveLimit, "limit", 0, "maximum rule firings per run (0 means no limit)")
	fs.StringVar(&stateIn, "state-in", "", "JSON file of facts to restore")
	fs.StringVar(&stateOut, "state-out", "", "JSON file for facts at exit")
	fs.BoolVar(&printResults, "results", false, "output each operation's result")

	fs.StringVar(&wsURL, "url", "ws://localhost:8080", "WebSocket server URL")

	// Follow mosquitto_sub command line args.
	fs.StringVarP(&mqttOpts.Broker, "host", "H", mqttOpts.Broker, "MQTT broker")
	fs.IntVarP(&mqttOpts.Port, "port", "p", mqttOpts.Port, "MQTT broker port")
	fs.StringVarP(&mqttOpts.ClientId, "id", "i", "", "MQTT client id")
	fs.DurationVarP(&mqttOpts.KeepAlive, "keepalive", "k", mqttOpts.KeepAlive, "MQTT keep-alive")
	fs.StringVarP(&mqttOpts.Username, "username", "u", "", "MQTT username")
	fs.StringVarP(&mqttOpts.Password, "pw", "P", "", "MQTT password")
	fs.BoolVar(&mqttOpts.Reconnect, "reconnect", false, "automatically attempt to reconnect")
	fs.BoolVar(&mqttOpts.Clean, "clean", mqttOpts.Clean, "clean MQTT session")
	fs.DurationVar(&mqttOpts.Quiesce, "quiesce", mqttOpts.Quiesce, "disconnection quiescence")
	fs.StringVar(&mqttOpts.CertFilename, "cert", "", "optional cert filename")
	fs.StringVar(&mqttOpts.KeyFilename, "key", "", "optional key filename")
	fs.StringVar(&mqttOpts.CAFilename, "cafile", "", "optional CA cert filename")
	fs.BoolVar(&mqttOpts.Insecure, "insecure", false, "skip broker cert checking")
	fs.StringVarP(&mqttOpts.SubTopics, "topic", "t", "jess/in", "subscription topic(s) as TOPIC[:QOS],...")
	fs.StringVar(&mqttOpts.OutTopic, "out-topic", mqttOpts.OutTopic, "default topic for emitted messages")
	fs.StringVar(&mqttOpts.ResultsTopic, "results-topic", "", "topic for results")
	fs.BoolVar(&mqttOpts.InjectTopic, "inject-topic", mqttOpts.InjectTopic, "put the topic in incoming maps")
	fs.DurationVar(&mqttOpts.InTimeout, "in-timeout", mqttOpts.InTimeout, "timeout for in-bound queuing")

	rootCmd.AddCommand(serveCmd)
}
