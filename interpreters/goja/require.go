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

package goja

import (
	"context"
	"fmt"
	"strings"

	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/parser"
)

// InlineRequires replaces top-level require("name") statements with
// the source that the provider gives for each name.
//
// The source is parsed only to find the require() calls.  The
// rewrite is textual, so the result can still be compiled ahead of
// time.
func InlineRequires(ctx context.Context, src string, provider func(context.Context, string) (string, error)) (string, error) {
	p, err := parser.ParseFile(nil, "", src, 0)
	if err != nil {
		return "", err
	}

	type required struct {
		from, to int
		name     string
	}

	var requires []required

	for _, s := range p.Body {
		exps, is := s.(*ast.ExpressionStatement)
		if !is {
			continue
		}
		call, is := exps.Expression.(*ast.CallExpression)
		if !is {
			continue
		}
		id, is := call.Callee.(*ast.Identifier)
		if !is || id.Name != "require" {
			continue
		}
		if len(call.ArgumentList) != 1 {
			return "", fmt.Errorf("require wants one argument, not %d", len(call.ArgumentList))
		}
		lit, is := call.ArgumentList[0].(*ast.StringLiteral)
		if !is {
			return "", fmt.Errorf("require wants a string literal")
		}
		// Idx values start at 1.
		requires = append(requires, required{
			from: int(exps.Idx0()) - 1,
			to:   int(exps.Idx1()) - 1,
			name: lit.Value.String(),
		})
	}

	if len(requires) == 0 {
		return src, nil
	}

	var b strings.Builder
	at := 0
	for _, r := range requires {
		lib, err := provider(ctx, r.name)
		if err != nil {
			return "", err
		}
		b.WriteString(src[at:r.from])
		b.WriteString(lib)
		b.WriteByte('\n')
		at = r.to
	}
	b.WriteString(src[at:])

	return b.String(), nil
}
