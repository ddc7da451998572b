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
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/Comcast/jess/core"
	"github.com/Comcast/jess/interpreters"

	"github.com/stretchr/testify/require"
)

func TestInline(t *testing.T) {
	f := func(name string) ([]byte, error) {
		if name == "missing" {
			return nil, fmt.Errorf("no %s", name)
		}
		return []byte("<" + name + ">"), nil
	}

	bs, err := Inline([]byte(`a %inline("x") b %inline ("y")`), f)
	require.NoError(t, err)
	require.Equal(t, "a <x> b <y>", string(bs))

	bs, err = Inline([]byte("nothing"), f)
	require.NoError(t, err)
	require.Equal(t, "nothing", string(bs))

	_, err = Inline([]byte(`%inline("missing")`), f)
	require.Error(t, err)
	require.Contains(t, err.Error(), `"missing"`)
}

func TestReadFileWithInlinesNested(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "lib")
	require.NoError(t, os.Mkdir(sub, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "top.txt"), []byte(`top %inline("lib/mid.txt")`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "mid.txt"), []byte(`mid %inline("leaf.txt")`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "leaf.txt"), []byte(`leaf`), 0644))

	bs, err := ReadFileWithInlines(filepath.Join(dir, "top.txt"))
	require.NoError(t, err)
	require.Equal(t, "top mid leaf", string(bs))

	require.NoError(t, os.WriteFile(filepath.Join(sub, "leaf.txt"), []byte(`%inline("mid.txt")`), 0644))
	_, err = ReadFileWithInlines(filepath.Join(dir, "top.txt"))
	var cycle *InlineCycle
	require.True(t, errors.As(err, &cycle), "%v", err)
	require.Len(t, cycle.Chain, 4)
}

func TestLoadFileWithInlines(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "double.js"), []byte("_.out(_.bindings.x * 2);"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "double.yaml"), []byte(`
rules:
- name: double
  when: "(n ?x)"
  then:
    js: '%inline("double.js")'
`), 0644))

	rb, err := LoadFile(filepath.Join(dir, "double.yaml"))
	require.NoError(t, err)
	require.Equal(t, "double", rb.Name)

	ctx := context.Background()
	e, err := rb.NewEngine(ctx, &core.Options{Evaluator: interpreters.Standard()}, interpreters.Interpreters())
	require.NoError(t, err)
	_, err = e.Assert(ctx, core.Ordered("n", core.Int(21)))
	require.NoError(t, err)
	ran, err := e.Run(ctx, nil)
	require.NoError(t, err)
	require.Len(t, ran.Emitted, 1)
	require.EqualValues(t, 42, ran.Emitted[0])
}
