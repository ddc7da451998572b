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

package rules

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var inlineDirective = regexp.MustCompile(`%inline *\("([^"]*)"\)`)

// Inline replaces each '%inline("NAME")' in bs with f(NAME).
func Inline(bs []byte, f func(string) ([]byte, error)) ([]byte, error) {
	var acc bytes.Buffer
	last := 0
	for _, loc := range inlineDirective.FindAllSubmatchIndex(bs, -1) {
		acc.Write(bs[last:loc[0]])
		name := string(bs[loc[2]:loc[3]])
		x, err := f(name)
		if err != nil {
			return nil, fmt.Errorf("inline %q: %w", name, err)
		}
		acc.Write(x)
		last = loc[1]
	}
	acc.Write(bs[last:])
	return acc.Bytes(), nil
}

// InlineCycle reports a file that (eventually) inlines itself.
type InlineCycle struct {
	Chain []string
}

func (e *InlineCycle) Error() string {
	return "inline cycle: " + strings.Join(e.Chain, " -> ")
}

// ReadFileWithInlines reads a rule base file and Inlines its
// directives.  Names are relative to the directory of the file that
// mentions them, and inlined files can have their own directives.
func ReadFileWithInlines(filename string) ([]byte, error) {
	return readInlining(filename, nil)
}

func readInlining(filename string, chain []string) ([]byte, error) {
	abs, err := filepath.Abs(filename)
	if err != nil {
		return nil, err
	}
	chain = append(chain[:len(chain):len(chain)], abs)
	for _, seen := range chain[:len(chain)-1] {
		if seen == abs {
			return nil, &InlineCycle{Chain: chain}
		}
	}

	bs, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(filename)
	return Inline(bs, func(name string) ([]byte, error) {
		return readInlining(filepath.Join(dir, name), chain)
	})
}
