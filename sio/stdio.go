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
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Comcast/jess/core"

	"go.uber.org/zap"
)

// Stdio couples a session to line-oriented input and output,
// usually stdin and stdout.
//
// Each input line is a JSON operation or, when it starts with '(', a
// fact to assert.  Blank lines and lines starting with '#' are
// ignored, and "quit" ends the input.  Output lines are "emit" lines
// for emitted values and, optionally, "result" lines.
//
// The embedded JSONStore can keep the facts in a file.
type Stdio struct {
	// In is coupled to session input.
	In io.Reader

	// Out is coupled to session output.
	Out io.Writer

	// Timestamps prepends a timestamp to each output line.
	Timestamps bool

	// EchoInput writes input lines (prepended with "input") to
	// the output.
	EchoInput bool

	// Tags prefixes each line with its kind ("input", "emit",
	// "result").
	Tags bool

	// PadTags right-aligns tags.
	PadTags bool

	// PrintResults writes each Result (without its Emitted) as
	// JSON.
	PrintResults bool

	JSONStore

	// InputEOF will be closed on EOF from stdin.
	InputEOF chan bool

	// WriteStatePerMsg writes the state file after every
	// operation.
	WriteStatePerMsg bool

	Logger *zap.Logger
}

// NewStdio makes a Stdio on os.Stdin and os.Stdout.
func NewStdio() *Stdio {
	return &Stdio{
		In:       os.Stdin,
		Out:      os.Stdout,
		InputEOF: make(chan bool),
		Logger:   zap.NewNop(),
	}
}

// Start does nothing.
func (s *Stdio) Start(ctx context.Context) error {
	return nil
}

// Stop waits for output to finish and then writes the state file if
// there is one.
func (s *Stdio) Stop(ctx context.Context) error {
	return s.JSONStore.Stop(ctx, true)
}

// printf writes one line of output with the configured decorations.
func (s *Stdio) printf(tag, format string, args ...interface{}) {
	var prefix strings.Builder
	if s.Timestamps {
		fmt.Fprintf(&prefix, "%-31s ", core.Timestamp())
	}
	if s.Tags {
		if s.PadTags {
			tag = fmt.Sprintf("%10s", tag)
		}
		prefix.WriteString(tag + " ")
	}
	fmt.Fprintf(s.Out, prefix.String()+format, args...)
}

// parseLine turns an input line into a message.  A line starting with
// '(' is shorthand for asserting that fact.  Returns nil for lines
// that should be skipped.
func (s *Stdio) parseLine(line string) interface{} {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return nil
	}
	if strings.HasPrefix(line, "(") {
		return map[string]interface{}{
			"op":   "assert",
			"fact": line,
		}
	}
	var msg interface{}
	if err := json.Unmarshal([]byte(line), &msg); err != nil {
		s.Logger.Warn("bad input", zap.String("line", JShort(line)), zap.Error(err))
		return nil
	}
	return msg
}

// read forwards input messages until EOF, "quit", or ctx is done.
func (s *Stdio) read(ctx context.Context, in chan interface{}, done chan bool) {
	defer func() {
		close(done)
		if s.InputEOF != nil {
			close(s.InputEOF)
		}
		s.Logger.Debug("stdio input done")
	}()

	lines := bufio.NewScanner(s.In)
	lines.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for lines.Scan() {
		line := lines.Text()
		if strings.TrimSpace(line) == "quit" {
			return
		}
		if s.EchoInput {
			s.printf("input", "%s\n", line)
		}
		msg := s.parseLine(line)
		if msg == nil {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case in <- msg:
		}
	}
	if err := lines.Err(); err != nil {
		s.Logger.Error("stdin", zap.Error(err))
	}
}

// write prints what it gets from out until out is closed or ctx is
// done.
func (s *Stdio) write(ctx context.Context, out chan *Result) {
	defer s.WG.Done()
	for {
		select {
		case <-ctx.Done():
			s.Logger.Debug("stdio output done")
			return
		case r := <-out:
			if r == nil {
				return
			}
			for _, x := range r.Emitted {
				s.printf("emit", "%s\n", JS(x))
			}
			if s.PrintResults {
				shown := *r
				shown.Emitted = nil
				s.printf("result", "%s\n", JS(shown))
			}
			if err := s.Update(r); err != nil {
				s.Logger.Error("Update", zap.Error(err))
			}
			if s.WriteStatePerMsg {
				if err := s.WriteState(ctx); err != nil {
					s.Logger.Error("WriteState", zap.Error(err))
				}
			}
		}
	}
}

// IO returns channels for reading from In and writing to Out.
func (s *Stdio) IO(ctx context.Context) (chan interface{}, chan *Result, chan bool, error) {
	var (
		in   = make(chan interface{})
		out  = make(chan *Result)
		done = make(chan bool)
	)

	// Not in s.WG since a read can block indefinitely.
	go s.read(ctx, in, done)

	s.WG.Add(1)
	go s.write(ctx, out)

	return in, out, done, nil
}
