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

package sio

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// MQTTOptions follow mosquitto_sub's command line args where they
// can.
type MQTTOptions struct {
	Broker    string
	Port      int
	ClientId  string
	KeepAlive time.Duration
	Username  string
	Password  string
	Reconnect bool
	Clean     bool

	// Quiesce is the disconnection quiescence.
	Quiesce time.Duration

	CertFilename string
	KeyFilename  string
	CAFilename   string
	Insecure     bool

	// SubTopics is a comma-separated list of TOPIC[:QOS].
	SubTopics string

	// InjectTopic puts the topic in the map of incoming
	// messages.
	InjectTopic bool

	// OutTopic is the default topic (TOPIC[:QOS]) for emitted
	// messages.  A map with a "topic" (and maybe a "qos")
	// overrides this default.
	OutTopic string

	// ResultsTopic, if not empty, gets each Result (without its
	// Emitted).
	ResultsTopic string

	// InTimeout bounds the wait to queue an incoming message.
	InTimeout time.Duration
}

// DefaultMQTTOptions is what a command line without any args gives.
var DefaultMQTTOptions = MQTTOptions{
	Broker:      "tcp://localhost",
	Port:        1883,
	KeepAlive:   10 * time.Second,
	Clean:       true,
	Quiesce:     100 * time.Millisecond,
	InjectTopic: true,
	OutTopic:    "jess/out",
	InTimeout:   time.Second,
}

// MQTTCouplings is a Couplings for an MQTT client.
type MQTTCouplings struct {
	Client mqtt.Client
	Opts   MQTTOptions
	Logger *zap.Logger

	JSONStore

	incoming chan interface{}
	outbound chan *Result
	done     chan bool
}

// NewMQTTCouplings makes (but doesn't connect) an MQTT client.
func NewMQTTCouplings(o MQTTOptions, logger *zap.Logger) (*MQTTCouplings, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("%s:%d", o.Broker, o.Port))
	opts.SetClientID(o.ClientId)
	opts.SetKeepAlive(o.KeepAlive)
	opts.Username = o.Username
	opts.Password = o.Password
	opts.AutoReconnect = o.Reconnect
	opts.CleanSession = o.Clean

	tlsConf, err := o.tlsConfig()
	if err != nil {
		return nil, err
	}
	opts.SetTLSConfig(tlsConf)

	opts.OnConnectionLost = func(client mqtt.Client, err error) {
		logger.Warn("MQTT connection lost", zap.Error(err))
	}

	c := &MQTTCouplings{
		Opts:     o,
		Logger:   logger,
		incoming: make(chan interface{}),
		outbound: make(chan *Result),
		done:     make(chan bool),
	}
	c.Client = mqtt.NewClient(opts)

	return c, nil
}

func (o MQTTOptions) tlsConfig() (*tls.Config, error) {
	conf := &tls.Config{
		InsecureSkipVerify: o.Insecure,
	}

	if o.CAFilename != "" {
		rootCAs, _ := x509.SystemCertPool()
		if rootCAs == nil {
			rootCAs = x509.NewCertPool()
		}
		certs, err := os.ReadFile(o.CAFilename)
		if err != nil {
			return nil, fmt.Errorf("couldn't read '%s': %w", o.CAFilename, err)
		}
		if ok := rootCAs.AppendCertsFromPEM(certs); !ok {
			return nil, fmt.Errorf("no certs in '%s'", o.CAFilename)
		}
		conf.RootCAs = rootCAs
	}

	if o.KeyFilename != "" {
		cert, err := tls.LoadX509KeyPair(o.CertFilename, o.KeyFilename)
		if err != nil {
			return nil, err
		}
		conf.Certificates = []tls.Certificate{cert}
	}

	return conf, nil
}

// inMessage parses an incoming payload.  A payload that isn't JSON
// is just a string.
func (c *MQTTCouplings) inMessage(topic string, payload []byte) interface{} {
	var x interface{}
	if err := json.Unmarshal(payload, &x); err != nil {
		c.Logger.Warn("Couldn't JSON-parse payload", zap.ByteString("payload", payload))
		return string(payload)
	}
	if m, is := x.(map[string]interface{}); is && c.Opts.InjectTopic {
		m["topic"] = topic
	}
	return x
}

// inHandler returns a Paho publish handler, which is used to handle
// messages sent to us from the MQTT broker due to our subscriptions.
func (c *MQTTCouplings) inHandler(ctx context.Context) mqtt.MessageHandler {
	return func(client mqtt.Client, msg mqtt.Message) {
		c.Logger.Debug("incoming", zap.String("topic", msg.Topic()), zap.ByteString("payload", msg.Payload()))
		x := c.inMessage(msg.Topic(), msg.Payload())

		to := time.NewTimer(c.Opts.InTimeout)
		defer to.Stop()

		select {
		case <-ctx.Done():
		case c.incoming <- x:
		case <-to.C:
			c.Logger.Warn("dropping incoming due to stall", zap.String("topic", msg.Topic()))
		}
	}
}

// Start connects to the broker, subscribes, and starts publishing
// Results.
func (c *MQTTCouplings) Start(ctx context.Context) error {
	if token := c.Client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	c.Logger.Info("Connected to broker")

	handler := c.inHandler(ctx)
	for _, topic := range strings.Split(c.Opts.SubTopics, ",") {
		topic, qos := parseTopic(topic)
		if topic == "" {
			continue
		}
		c.Logger.Info("Subscribing", zap.String("topic", topic), zap.Int("qos", int(qos)))
		if t := c.Client.Subscribe(topic, qos, handler); t.Wait() && t.Error() != nil {
			return t.Error()
		}
	}

	c.WG.Add(1)
	go func() {
		defer c.WG.Done()
		if err := c.outLoop(ctx); err != nil {
			c.Logger.Error("outLoop", zap.Error(err))
		}
	}()

	return nil
}

// IO returns the channels for incoming messages and outbound Results.
func (c *MQTTCouplings) IO(ctx context.Context) (chan interface{}, chan *Result, chan bool, error) {
	return c.incoming, c.outbound, c.done, nil
}

// outTopic determines the topic and QoS for an emitted message.
func (c *MQTTCouplings) outTopic(x interface{}) (string, byte) {
	topic, qos := parseTopic(c.Opts.OutTopic)
	if m, is := x.(map[string]interface{}); is {
		if s, is := m["topic"].(string); is {
			topic = s
		}
		switch n := m["qos"].(type) {
		case float64:
			qos = byte(n)
		case int64:
			qos = byte(n)
		case int:
			qos = byte(n)
		}
	}
	return topic, qos
}

func (c *MQTTCouplings) publish(topic string, qos byte, x interface{}) error {
	js, err := json.Marshal(x)
	if err != nil {
		c.Logger.Warn("Marshal", zap.Error(err))
		return nil
	}
	token := c.Client.Publish(topic, qos, false, js)
	token.Wait()
	return token.Error()
}

// outLoop forwards Results from the Session to the MQTT broker.
func (c *MQTTCouplings) outLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case r := <-c.outbound:
			for _, x := range r.Emitted {
				topic, qos := c.outTopic(x)
				if err := c.publish(topic, qos, x); err != nil {
					return err
				}
			}
			if c.Opts.ResultsTopic != "" {
				shown := *r
				shown.Emitted = nil
				topic, qos := parseTopic(c.Opts.ResultsTopic)
				if err := c.publish(topic, qos, &shown); err != nil {
					return err
				}
			}
			if err := c.Update(r); err != nil {
				return err
			}
		}
	}
}

// Stop terminates the MQTT session and writes the JSONStore's state.
func (c *MQTTCouplings) Stop(ctx context.Context) error {
	c.Logger.Info("Disconnecting")
	c.WG.Wait()
	c.Client.Disconnect(uint(c.Opts.Quiesce / time.Millisecond))
	close(c.done)
	return c.JSONStore.WriteState(ctx)
}

// parseTopic can extract QoS from a topic name of the form TOPIC:QOS.
func parseTopic(s string) (string, byte) {
	s = strings.TrimSpace(s)
	i := strings.LastIndex(s, ":")
	if i < 0 {
		return s, 0
	}
	var qos byte
	if _, err := fmt.Sscanf(s[i+1:], "%d", &qos); err != nil || 2 < qos {
		return s, 0
	}
	return s[:i], qos
}
