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
	"encoding/json"
	"fmt"
)

func render(x interface{}, indent string) string {
	if x == nil {
		return "null"
	}
	var (
		js  []byte
		err error
	)
	if indent == "" {
		js, err = json.Marshal(&x)
	} else {
		js, err = json.MarshalIndent(&x, "", indent)
	}
	if err != nil {
		return fmt.Sprintf("%#v", x)
	}
	return string(js)
}

// JS renders its argument as compact JSON (or as '%#v' if it can't).
func JS(x interface{}) string {
	return render(x, "")
}

// JSON is JS with indentation.
func JSON(x interface{}) string {
	return render(x, "  ")
}

// shortLimit is where JShort truncates.
const shortLimit = 70

// JShort is JS truncated for log lines.
func JShort(x interface{}) string {
	s := JS(x)
	if len(s) <= shortLimit {
		return s
	}
	return s[:shortLimit] + "..."
}
