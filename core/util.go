/* Copyright 2018 Comcast Cable Communications Management, LLC
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

package core

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"time"
)

const (
	symLetters = "abcdefghijklmnopqrstuvwxyz"
	symChars   = symLetters + "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// Gensym makes a random symbol of the given length.  The first
// character is always a lowercase letter, so the result is a Sym
// according to ValueOf.
func Gensym(n int) string {
	if n <= 0 {
		return ""
	}
	var b strings.Builder
	b.Grow(n)
	b.WriteByte(symLetters[rand.Intn(len(symLetters))])
	for b.Len() < n {
		b.WriteByte(symChars[rand.Intn(len(symChars))])
	}
	return b.String()
}

// Canonicalize gives x the shape it would have after a JSON round
// trip: string-keyed maps, float64 numbers, and []interface{}.
func Canonicalize(x interface{}) (interface{}, error) {
	js, err := json.Marshal(&x)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: %w", err)
	}
	var y interface{}
	if err = json.Unmarshal(js, &y); err != nil {
		return nil, fmt.Errorf("canonicalize: %w", err)
	}
	return y, nil
}

// Timestamp is the current UTC time in RFC3339Nano.
func Timestamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// Unquestion strips a variable's "$?" or "?" prefix.
func Unquestion(p string) string {
	if s, ok := strings.CutPrefix(p, "$?"); ok {
		return s
	}
	return strings.TrimPrefix(p, "?")
}
