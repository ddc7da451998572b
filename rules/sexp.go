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
	"fmt"
	"strings"
)

// sexp is what the reader produces: a word, a quoted string, or a
// list.
type sexp struct {
	word   string
	quoted bool
	list   []*sexp
	isList bool
}

func (s *sexp) String() string {
	switch {
	case s.isList:
		ss := make([]string, len(s.list))
		for i, x := range s.list {
			ss[i] = x.String()
		}
		return "(" + strings.Join(ss, " ") + ")"
	case s.quoted:
		return fmt.Sprintf("%q", s.word)
	}
	return s.word
}

// head gives the first word of a list (or "").
func (s *sexp) head() string {
	if !s.isList || len(s.list) == 0 || s.list[0].isList || s.list[0].quoted {
		return ""
	}
	return s.list[0].word
}

// SyntaxError reports where reading went wrong.
type SyntaxError struct {
	Src string
	At  int
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%s at %d in %q", e.Msg, e.At, e.Src)
}

type reader struct {
	src string
	at  int
}

// read parses all of the forms in src.
func read(src string) ([]*sexp, error) {
	r := &reader{src: src}
	var acc []*sexp
	for {
		r.space()
		if r.done() {
			return acc, nil
		}
		x, err := r.form()
		if err != nil {
			return nil, err
		}
		acc = append(acc, x)
	}
}

// readOne parses exactly one form.
func readOne(src string) (*sexp, error) {
	xs, err := read(src)
	if err != nil {
		return nil, err
	}
	if len(xs) != 1 {
		return nil, &SyntaxError{Src: src, Msg: fmt.Sprintf("wanted one form, not %d", len(xs))}
	}
	return xs[0], nil
}

func (r *reader) errorf(format string, args ...interface{}) error {
	return &SyntaxError{Src: r.src, At: r.at, Msg: fmt.Sprintf(format, args...)}
}

func (r *reader) done() bool {
	return len(r.src) <= r.at
}

func (r *reader) peek() byte {
	return r.src[r.at]
}

func (r *reader) space() {
	for !r.done() {
		switch c := r.peek(); {
		case c == ';':
			for !r.done() && r.peek() != '\n' {
				r.at++
			}
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			r.at++
		default:
			return
		}
	}
}

func (r *reader) form() (*sexp, error) {
	switch r.peek() {
	case '(':
		r.at++
		x := &sexp{isList: true}
		for {
			r.space()
			if r.done() {
				return nil, r.errorf("missing )")
			}
			if r.peek() == ')' {
				r.at++
				return x, nil
			}
			y, err := r.form()
			if err != nil {
				return nil, err
			}
			x.list = append(x.list, y)
		}
	case ')':
		return nil, r.errorf("unexpected )")
	case '"':
		s, err := r.quoted()
		if err != nil {
			return nil, err
		}
		return &sexp{word: s, quoted: true}, nil
	}
	return r.word()
}

func (r *reader) quoted() (string, error) {
	r.at++
	var b strings.Builder
	for !r.done() {
		c := r.peek()
		r.at++
		switch c {
		case '"':
			return b.String(), nil
		case '\\':
			if r.done() {
				return "", r.errorf("unterminated string")
			}
			switch e := r.peek(); e {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			default:
				b.WriteByte(e)
			}
			r.at++
		default:
			b.WriteByte(c)
		}
	}
	return "", r.errorf("unterminated string")
}

// word reads a token up to space or a paren.  A constraint like
// "?x&:(> ?x 3)" is one word: a '(' right after ':' or '=' starts a
// group that's part of the word.
func (r *reader) word() (*sexp, error) {
	from := r.at
	for !r.done() {
		c := r.peek()
		if c == '(' {
			if r.at == from || (r.src[r.at-1] != ':' && r.src[r.at-1] != '=') {
				break
			}
			if err := r.group(); err != nil {
				return nil, err
			}
			continue
		}
		if c == ')' || c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == ';' {
			break
		}
		if c == '"' {
			if _, err := r.quoted(); err != nil {
				return nil, err
			}
			continue
		}
		r.at++
	}
	if r.at == from {
		return nil, r.errorf("expected a word")
	}
	return &sexp{word: r.src[from:r.at]}, nil
}

// group skips a balanced parenthesized group.
func (r *reader) group() error {
	depth := 0
	for !r.done() {
		switch r.peek() {
		case '"':
			if _, err := r.quoted(); err != nil {
				return err
			}
			continue
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				r.at++
				return nil
			}
		}
		r.at++
	}
	return r.errorf("missing )")
}

// splitConjunction splits "a&b&:(c)" at top-level '&'s.
func splitConjunction(s string) []string {
	var acc []string
	depth, from := 0, 0
	quoted := false
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '"' && (i == 0 || s[i-1] != '\\'):
			quoted = !quoted
		case quoted:
		case c == '(':
			depth++
		case c == ')':
			depth--
		case c == '&' && depth == 0:
			acc = append(acc, s[from:i])
			from = i + 1
		}
	}
	return append(acc, s[from:])
}
