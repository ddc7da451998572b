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

package tools

import (
	"context"
	"fmt"
	"html"
	"io"
	"sort"
	"strings"

	"github.com/Comcast/jess/core"
	"github.com/Comcast/jess/rules"

	md "github.com/russross/blackfriday/v2"
	"gopkg.in/yaml.v2"
)

// source renders a rule's Then (or anything else from a document)
// for display.
func source(x interface{}) string {
	if s, is := x.(string); is {
		return s
	}
	bs, err := yaml.Marshal(x)
	if err != nil {
		return fmt.Sprintf("%#v", x)
	}
	return string(bs)
}

// RenderRulesHTML writes an HTML fragment that documents the rule
// base, which should be compiled.  Docs are Markdown.
func RenderRulesHTML(rb *rules.RuleBase, out io.Writer) error {
	f := func(format string, args ...interface{}) {
		fmt.Fprintf(out, format+"\n", args...)
	}
	esc := html.EscapeString

	if rb.Doc != "" {
		f(`<div class="rulesDoc doc">%s</div>`, md.Run([]byte(rb.Doc)))
	}
	if rb.Strategy != "" {
		f(`<div>strategy: <span class="strategy">%s</span></div>`, esc(rb.Strategy))
	}

	if 0 < len(rb.Templates) {
		f(`<div class="templates"><table>`)
		for _, t := range rb.Templates {
			f(`<tr class="template"><td><span id="t-%s" class="templateName">%s</span></td><td>`, esc(t.Name), esc(t.Name))
			if t.Doc != "" {
				f(`<div class="templateDoc doc">%s</div>`, md.Run([]byte(t.Doc)))
			}
			if t.Ordered {
				f(`<div class="ordered">ordered</div>`)
			}
			if 0 < len(t.Slots) {
				f(`<table class="slots">`)
				for _, s := range t.Slots {
					kind := "slot"
					if s.Multi {
						kind = "multislot"
					}
					def := ""
					if s.Default != nil {
						def = esc(fmt.Sprintf("%v", s.Default))
					}
					f(`<tr><td>%s</td><td><code>%s</code></td><td><code>%s</code></td></tr>`, kind, esc(s.Name), def)
				}
				f(`</table>`)
			}
			f(`</td></tr>`)
		}
		f(`</table></div>`)
	}

	if deffacts := rb.CoreDeffacts(); 0 < len(deffacts) {
		names := make([]string, 0, len(deffacts))
		for name := range deffacts {
			names = append(names, name)
		}
		sort.Strings(names)
		f(`<div class="deffacts"><table>`)
		for _, name := range names {
			f(`<tr><td><span class="deffactsName">%s</span></td><td><pre>`, esc(name))
			for _, fact := range deffacts[name] {
				f(`%s`, esc(fact.String()))
			}
			f(`</pre></td></tr>`)
		}
		f(`</table></div>`)
	}

	compiled := make(map[string]*core.Rule, len(rb.CoreRules()))
	for _, r := range rb.CoreRules() {
		compiled[r.Name] = r
	}

	f(`<div class="rules"><table>`)
	for _, r := range rb.Rules {
		f(`<tr class="rule"><td><span id="r-%s" class="ruleName">%s</span></td><td>`, esc(r.Name), esc(r.Name))
		if r.Doc != "" {
			f(`<div class="ruleDoc doc">%s</div>`, md.Run([]byte(r.Doc)))
		}
		if r.Salience != 0 {
			f(`<div>salience: <span class="salience">%d</span></div>`, r.Salience)
		}
		f(`<table>`)
		if c, have := compiled[r.Name]; have {
			ps := make([]string, len(c.Patterns))
			for i, p := range c.Patterns {
				ps[i] = esc(p.String())
			}
			f(`<tr><td>when</td><td><div class="code"><pre>%s</pre></div></td></tr>`, strings.Join(ps, "\n"))
		}
		if r.Then != nil {
			f(`<tr><td>then</td><td><div class="code"><pre>%s</pre></div></td></tr>`, esc(source(r.Then)))
		}
		f(`</table>`)
		f(`</td></tr>`)
	}
	f(`</table></div>`)

	return nil
}

// RenderRulesPage writes a complete HTML page for the rule base.
func RenderRulesPage(rb *rules.RuleBase, out io.Writer, cssFiles []string) error {
	if cssFiles == nil {
		cssFiles = []string{"/static/rules-html.css"}
	}

	fmt.Fprintf(out, `<!DOCTYPE html>
<meta charset="utf-8">
<html>
  <head>
  <title>%s</title>
`, html.EscapeString(rb.Name))

	for _, cssFile := range cssFiles {
		fmt.Fprintf(out, "  <link href=\"%s\" rel=\"stylesheet\">\n", cssFile)
	}

	fmt.Fprintf(out, `
  </head>
  <body>
    <h1>%s</h1>
`, html.EscapeString(rb.Name))

	if err := RenderRulesHTML(rb, out); err != nil {
		return err
	}

	fmt.Fprintf(out, `
  </body>
</html>
`)

	return nil
}

// ReadAndRenderRulesPage loads and compiles a rule base and then
// writes its page.
func ReadAndRenderRulesPage(ctx context.Context, filename string, interpreters map[string]core.Interpreter, cssFiles []string, out io.Writer) error {
	rb, err := rules.LoadFile(filename)
	if err != nil {
		return err
	}
	if err = rb.Compile(ctx, interpreters, false); err != nil {
		return err
	}
	return RenderRulesPage(rb, out, cssFiles)
}
