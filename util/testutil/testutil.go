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

// Package testutil has small helpers for tests that compare JSON-ish
// values produced by engines and sessions.
package testutil

import (
	"encoding/json"
	"fmt"

	"github.com/google/go-cmp/cmp"
	"github.com/jsccast/yaml"
)

// JS renders its argument as JSON or as a string indicating an error.
func JS(x interface{}) string {
	bs, err := json.Marshal(&x)
	if err != nil {
		return fmt.Sprintf("%#v", x)
	}
	return string(bs)
}

// Dwimjs, when given a string or bytes, parses that data as JSON.
// When given anything else, just returns what's given.
//
// Panics on bad JSON.
func Dwimjs(x interface{}) interface{} {
	switch vv := x.(type) {
	case []byte:
		return Dwimjs(string(vv))
	case string:
		var v interface{}
		if err := json.Unmarshal([]byte(vv), &v); err != nil {
			panic(err)
		}
		return v
	default:
		return x
	}
}

// Dwimyaml is Dwimjs for YAML, which is handier for writing expected
// emissions inline.  The result has JSON's shape: string-keyed maps
// and float64 numbers.
func Dwimyaml(x interface{}) interface{} {
	switch vv := x.(type) {
	case []byte:
		return Dwimyaml(string(vv))
	case string:
		var v interface{}
		if err := yaml.Unmarshal([]byte(vv), &v); err != nil {
			panic(err)
		}
		return Normalize(v)
	default:
		return x
	}
}

// Normalize gives x the shape it would have after a JSON round trip.
// Values that can't be serialized come back unchanged.
func Normalize(x interface{}) interface{} {
	bs, err := json.Marshal(jsonable(x))
	if err != nil {
		return x
	}
	var y interface{}
	if err = json.Unmarshal(bs, &y); err != nil {
		return x
	}
	return y
}

// jsonable rewrites map[interface{}]interface{} values, which
// encoding/json refuses.
func jsonable(x interface{}) interface{} {
	switch vv := x.(type) {
	case map[interface{}]interface{}:
		m := make(map[string]interface{}, len(vv))
		for k, v := range vv {
			m[fmt.Sprintf("%v", k)] = jsonable(v)
		}
		return m
	case map[string]interface{}:
		m := make(map[string]interface{}, len(vv))
		for k, v := range vv {
			m[k] = jsonable(v)
		}
		return m
	case []interface{}:
		xs := make([]interface{}, len(vv))
		for i, v := range vv {
			xs[i] = jsonable(v)
		}
		return xs
	default:
		return x
	}
}

// JSONDiff reports the differences between want and got after
// normalizing both.  Returns the empty string when they agree.
func JSONDiff(want, got interface{}) string {
	return cmp.Diff(Normalize(want), Normalize(got))
}
