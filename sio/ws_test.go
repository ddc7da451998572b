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
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func TestWebSocket(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	heard := make(chan []byte, 8)

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Error(err)
			return
		}
		defer conn.Close()
		ops := []string{
			`{"op":"assert","fact":"(input coin)"}`,
			`{"op":"assert","fact":"(input push)"}`,
		}
		for _, op := range ops {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(op)); err != nil {
				t.Error(err)
				return
			}
		}
		for {
			_, bs, err := conn.ReadMessage()
			if err != nil {
				return
			}
			heard <- bs
		}
	}))
	defer srv.Close()

	c := NewWebSocketCouplings("ws" + strings.TrimPrefix(srv.URL, "http"))
	c.SendResults = true

	errs := make(chan error, 1)
	go func() {
		errs <- Serve(ctx, &SessionConf{AutoRun: true}, turnstile(t, ctx), nil, c)
	}()

	var got []string
	for len(got) < 5 {
		select {
		case bs := <-heard:
			got = append(got, string(bs))
		case <-ctx.Done():
			t.Fatal(got)
		}
	}
	cancel()
	require.NoError(t, <-errs)

	require.Equal(t, `{"op":"restore"}`, got[0])
	require.Equal(t, `"unlocked"`, got[1])
	require.Equal(t, `"locked"`, got[3])

	var r Result
	require.NoError(t, json.Unmarshal([]byte(got[4]), &r))
	require.Equal(t, "assert", r.Op)
	require.Equal(t, 1, r.Fired)
	require.Equal(t, []string{"push"}, r.Rules)
}
