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
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestParseTopic(t *testing.T) {
	for s, want := range map[string]struct {
		topic string
		qos   byte
	}{
		"a/b":     {"a/b", 0},
		"a/b:1":   {"a/b", 1},
		" a/b:2 ": {"a/b", 2},
		"a/b:7":   {"a/b:7", 0},
		"a:b/c":   {"a:b/c", 0},
		"":        {"", 0},
	} {
		topic, qos := parseTopic(s)
		require.Equal(t, want.topic, topic, s)
		require.Equal(t, want.qos, qos, s)
	}
}

func TestMQTTMessages(t *testing.T) {
	c := &MQTTCouplings{
		Opts:   DefaultMQTTOptions,
		Logger: zap.NewNop(),
	}

	x := c.inMessage("jess/in", []byte(`{"op":"facts"}`))
	require.Equal(t, map[string]interface{}{"op": "facts", "topic": "jess/in"}, x)

	x = c.inMessage("jess/in", []byte("hello"))
	require.Equal(t, "hello", x)

	topic, qos := c.outTopic("hello")
	require.Equal(t, "jess/out", topic)
	require.Equal(t, byte(0), qos)

	topic, qos = c.outTopic(map[string]interface{}{"topic": "there", "qos": int64(1)})
	require.Equal(t, "there", topic)
	require.Equal(t, byte(1), qos)
}
