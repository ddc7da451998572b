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
	"encoding/json"
	"net/url"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WebSocketCouplings dials a WebSocket server, reads operations from
// it, and writes emitted messages back.
type WebSocketCouplings struct {
	URL string

	// SendResults also writes each Result (without its Emitted)
	// as a message.
	SendResults bool

	Logger *zap.Logger

	JSONStore

	in   chan interface{}
	out  chan *Result
	done chan bool
	conn *websocket.Conn
}

func NewWebSocketCouplings(u string) *WebSocketCouplings {
	return &WebSocketCouplings{
		URL:    u,
		Logger: zap.NewNop(),
	}
}

// Start creates the WebSocket connection and starts processing it.
func (c *WebSocketCouplings) Start(ctx context.Context) error {
	u, err := url.Parse(c.URL)
	if err != nil {
		return err
	}

	c.in = make(chan interface{})
	c.out = make(chan *Result)
	c.done = make(chan bool)

	c.Logger.Info("wsconnect", zap.String("url", u.String()))
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return err
	}
	c.conn = conn

	go func() {
		defer close(c.done)
		for {
			_, bs, err := conn.ReadMessage()
			if err != nil {
				c.Logger.Debug("ReadMessage", zap.Error(err))
				return
			}
			if len(bs) == 0 {
				continue
			}
			c.Logger.Debug("heard", zap.ByteString("msg", bs))

			var msg interface{}
			if err = json.Unmarshal(bs, &msg); err != nil {
				c.Logger.Warn("Unmarshal", zap.ByteString("msg", bs), zap.Error(err))
				continue
			}

			select {
			case <-ctx.Done():
				return
			case c.in <- msg:
			}
		}
	}()

	c.WG.Add(1)
	go func() {
		defer c.WG.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case r := <-c.out:
				if err := c.write(r); err != nil {
					c.Logger.Error("WriteMessage", zap.Error(err))
					return
				}
				if err := c.Update(r); err != nil {
					c.Logger.Error("Update", zap.Error(err))
					return
				}
			}
		}
	}()

	return nil
}

func (c *WebSocketCouplings) write(r *Result) error {
	msgs := r.Emitted
	if c.SendResults {
		shown := *r
		shown.Emitted = nil
		msgs = append(msgs[:len(msgs):len(msgs)], &shown)
	}
	for _, msg := range msgs {
		js, err := json.Marshal(&msg)
		if err != nil {
			c.Logger.Warn("Marshal", zap.Error(err))
			continue
		}
		if err = c.conn.WriteMessage(websocket.TextMessage, js); err != nil {
			return err
		}
	}
	return nil
}

// IO just returns the channels that Start() initialized.
func (c *WebSocketCouplings) IO(ctx context.Context) (chan interface{}, chan *Result, chan bool, error) {
	return c.in, c.out, c.done, nil
}

// Stop waits for output to finish, terminates the WebSocket
// connection, and writes the JSONStore's state.
func (c *WebSocketCouplings) Stop(ctx context.Context) error {
	c.Logger.Info("Disconnecting")
	c.WG.Wait()
	if c.conn != nil {
		c.conn.Close()
	}
	return c.JSONStore.WriteState(ctx)
}
