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

// Package sio couples an engine session to the outside world.
//
// A Session owns one engine and processes operations that arrive
// from its Couplings:
//
//	{"op":"assert","fact":"(input coin)"}
//	{"op":"assert","facts":[{"type":"person","name":"homer","age":39}]}
//	{"op":"retract","id":3}
//	{"op":"modify","id":4,"slots":{"age":40}}
//	{"op":"run","limit":100}
//	{"op":"facts"}
//	{"op":"query","pattern":{"type":"person","name":"?who"}}
//	{"op":"agenda"}
//	{"op":"rules"}
//	{"op":"reset"}
//	{"op":"halt"}
//
// Each operation gives one Result, which the Couplings deliver.
package sio

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/Comcast/jess/core"
	"github.com/Comcast/jess/match"
	"github.com/Comcast/jess/rules"
	"github.com/Comcast/jess/storage"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Op is a request to a Session.
type Op struct {
	// Op is the operation: assert, retract, modify, run, facts,
	// query, agenda, rules, reset, or halt.
	Op string `json:"op"`

	// Tag is copied to the Result.
	Tag string `json:"tag,omitempty" yaml:",omitempty"`

	// Fact and Facts are facts to assert (or to retract by
	// content).  A fact is a string like "(color red)" or a map
	// like {"type":"color","data":["red"]}.
	Fact  interface{}   `json:"fact,omitempty" yaml:",omitempty"`
	Facts []interface{} `json:"facts,omitempty" yaml:",omitempty"`

	// ID and IDs are fact identities for retract and modify.
	ID  *int  `json:"id,omitempty" yaml:",omitempty"`
	IDs []int `json:"ids,omitempty" yaml:",omitempty"`

	// Slots are the new values for modify.
	Slots map[string]interface{} `json:"slots,omitempty" yaml:",omitempty"`

	// Limit overrides the session's firing limit for this run.
	Limit int `json:"limit,omitempty" yaml:",omitempty"`

	// Pattern is a match pattern for query.
	Pattern interface{} `json:"pattern,omitempty" yaml:",omitempty"`
}

// AsOp gets an Op from something that looks like one.
func AsOp(msg interface{}) (*Op, error) {
	if op, is := msg.(*Op); is {
		return op, nil
	}
	js, err := json.Marshal(&msg)
	if err != nil {
		return nil, err
	}
	var op Op
	if err = json.Unmarshal(js, &op); err != nil {
		return nil, err
	}
	if op.Op == "" {
		return nil, fmt.Errorf("no op in %s", js)
	}
	return &op, nil
}

// Result represents all visible output from processing an Op.
type Result struct {
	Op  string `json:"op"`
	Tag string `json:"tag,omitempty"`

	// IDs are the identities of asserted (or modified) facts.
	// core.Duplicate marks a fact that was already there.
	IDs []int `json:"ids,omitempty"`

	// Emitted is what rule actions emitted, in order.
	Emitted []interface{} `json:"emitted,omitempty"`

	// Fired is the number of rule firings.
	Fired          int      `json:"fired,omitempty"`
	Rules          []string `json:"rules,omitempty"`
	StoppedBecause string   `json:"stoppedBecause,omitempty"`

	Facts []map[string]interface{} `json:"facts,omitempty"`

	// Found are query results.
	Found []match.Found `json:"found,omitempty"`

	Agenda []string `json:"agenda,omitempty"`

	Err string `json:"err,omitempty"`

	// Changed are the net working memory changes for storage.
	Changed []*storage.FactState `json:"-"`
}

// UnknownOp is returned for an Op that a Session doesn't know.
type UnknownOp struct {
	Op string
}

func (e *UnknownOp) Error() string {
	return "unknown op " + e.Op
}

// SessionConf provides some basic Session parameters.
type SessionConf struct {
	// Id defaults to a new UUID.
	Id string `json:"id,omitempty" yaml:",omitempty"`

	// Ctl is used by every run.
	Ctl *core.Control `json:"-" yaml:"-"`

	// AutoRun runs the engine after each assert, retract, and
	// modify.
	AutoRun bool `json:"autoRun,omitempty" yaml:",omitempty"`

	// HaltOnInputEOF makes Loop return when the input is done.
	HaltOnInputEOF bool `json:"haltOnInputEOF,omitempty" yaml:",omitempty"`
}

// Session represents an engine and associated gear to support
// operation processing, with I/O coupled via two channels (in and
// out).
type Session struct {
	Conf *SessionConf

	Engine *core.Engine

	// Storage, if not nil, gets working memory changes after each
	// operation.
	Storage storage.Storage

	Logger *zap.Logger

	// stored is the set of fact identities that have been
	// reported as Changed.
	stored map[int]bool

	in   chan interface{}
	out  chan *Result
	done chan bool

	sync.Mutex
}

// NewSession makes a session for the engine with the given
// configuration and couplings.
//
// The coupling's IO() method is called to obtain the session's in/out
// channels.  Couplings can be nil for a session that's only used via
// Process.
func NewSession(ctx context.Context, conf *SessionConf, e *core.Engine, couplings Couplings) (*Session, error) {
	var (
		in   chan interface{}
		out  chan *Result
		done chan bool
		err  error
	)
	if couplings != nil {
		if in, out, done, err = couplings.IO(ctx); err != nil {
			return nil, err
		}
	}
	if conf == nil {
		conf = &SessionConf{}
	}
	if conf.Id == "" {
		conf.Id = uuid.NewString()
	}
	if conf.Ctl == nil {
		conf.Ctl = core.DefaultControl
	}
	return &Session{
		Conf:   conf,
		Engine: e,
		Logger: e.Logger(),
		stored: make(map[int]bool, 32),
		in:     in,
		out:    out,
		done:   done,
	}, nil
}

// Restore replaces working memory with the given stored facts.  If
// s.Storage isn't nil, its facts for this session are included.
// With no stored facts, working memory is left alone.
//
// Restored facts get new identities, so the old ones are removed from
// Storage.  The returned Result reports all of working memory as
// Changed.
func (s *Session) Restore(ctx context.Context, fss []*storage.FactState) (*Result, error) {
	s.Lock()
	defer s.Unlock()

	r := &Result{Op: "restore"}

	if s.Storage != nil {
		if err := s.Storage.MakeSession(ctx, s.Conf.Id); err != nil {
			return nil, err
		}
		more, err := s.Storage.LoadFacts(ctx, s.Conf.Id)
		if err != nil {
			return nil, err
		}
		gone := make([]*storage.FactState, len(more))
		for i, fs := range more {
			gone[i] = &storage.FactState{ID: fs.ID, Deleted: true}
		}
		if err := s.Storage.WriteFacts(ctx, s.Conf.Id, gone); err != nil {
			return nil, err
		}
		fss = append(fss, more...)
	}

	fs, err := storage.AsFacts(fss)
	if err != nil {
		return nil, err
	}

	if 0 < len(fs) {
		for _, f := range s.Engine.Facts() {
			if f.Type == core.InitialFact {
				continue
			}
			if _, err := s.Engine.RetractID(ctx, f.ID); err != nil {
				return nil, err
			}
		}
		for _, f := range fs {
			if _, err := s.Engine.Assert(ctx, f); err != nil {
				return nil, err
			}
		}
	}

	s.Logger.Info("restored", zap.String("sid", s.Conf.Id), zap.Int("facts", len(fs)))

	s.stored = make(map[int]bool, len(fs))
	if r.Changed, err = s.changes(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Session) parser() *rules.Parser {
	return rules.NewParser(s.Engine.Templates()...)
}

func (s *Session) facts(op *Op) ([]*core.Fact, error) {
	xs := op.Facts
	if op.Fact != nil {
		xs = append([]interface{}{op.Fact}, xs...)
	}
	if len(xs) == 0 {
		return nil, fmt.Errorf("%s needs a fact", op.Op)
	}
	p := s.parser()
	acc := make([]*core.Fact, len(xs))
	for i, x := range xs {
		f, err := p.Fact(x)
		if err != nil {
			return nil, err
		}
		acc[i] = f
	}
	return acc, nil
}

func (s *Session) ids(op *Op) []int {
	ids := op.IDs
	if op.ID != nil {
		ids = append([]int{*op.ID}, ids...)
	}
	return ids
}

// Halt stops a run in progress.  Safe to call from any goroutine.
func (s *Session) Halt() {
	s.Engine.Halt()
}

// Process processes the given operation and returns the results,
// which can then be processed by the session's Result coupling.
//
// The Result is never nil.  When there's an error, the Result's Err
// has its text.
func (s *Session) Process(ctx context.Context, msg interface{}) (*Result, error) {
	s.Logger.Debug("Process", zap.String("msg", JShort(msg)))

	r := &Result{}

	op, err := AsOp(msg)
	if err != nil {
		r.Err = err.Error()
		return r, err
	}
	r.Op = op.Op
	r.Tag = op.Tag

	if op.Op == "halt" {
		s.Halt()
		return r, nil
	}

	s.Lock()
	defer s.Unlock()

	if err = s.process(ctx, op, r); err == nil {
		r.Changed, err = s.changes(ctx)
	}
	if err != nil {
		r.Err = err.Error()
	}
	return r, err
}

func (s *Session) process(ctx context.Context, op *Op, r *Result) error {
	e := s.Engine
	autoRun := false

	switch op.Op {
	case "assert":
		fs, err := s.facts(op)
		if err != nil {
			return err
		}
		for _, f := range fs {
			id, err := e.Assert(ctx, f)
			if err != nil {
				return err
			}
			r.IDs = append(r.IDs, id)
		}
		autoRun = true

	case "retract":
		for _, id := range s.ids(op) {
			if _, err := e.RetractID(ctx, id); err != nil {
				return err
			}
		}
		if op.Fact != nil || 0 < len(op.Facts) {
			fs, err := s.facts(op)
			if err != nil {
				return err
			}
			for _, f := range fs {
				if _, err := e.Retract(ctx, f); err != nil {
					return err
				}
			}
		}
		autoRun = true

	case "modify":
		if op.ID == nil {
			return fmt.Errorf("modify needs an id")
		}
		slots := make(map[string]core.Value, len(op.Slots))
		for k, x := range op.Slots {
			v, err := core.ValueOf(x)
			if err != nil {
				return err
			}
			slots[k] = v
		}
		id, err := e.Modify(ctx, *op.ID, slots)
		if err != nil {
			return err
		}
		r.IDs = append(r.IDs, id)
		autoRun = true

	case "run":
		return s.run(ctx, op, r)

	case "facts":
		r.Facts = factMaps(e.Facts())

	case "query":
		found, err := match.Query(op.Pattern, factMaps(e.Facts()), match.NewBindings())
		if err != nil {
			return err
		}
		r.Found = found

	case "agenda":
		for _, a := range e.Agenda() {
			r.Agenda = append(r.Agenda, a.String())
		}

	case "rules":
		for _, rule := range e.Rules() {
			r.Rules = append(r.Rules, rule.Name)
		}

	case "reset":
		return e.Reset(ctx)

	default:
		return &UnknownOp{Op: op.Op}
	}

	if autoRun && s.Conf.AutoRun {
		return s.run(ctx, op, r)
	}
	return nil
}

func (s *Session) run(ctx context.Context, op *Op, r *Result) error {
	ctl := s.Conf.Ctl
	if 0 < op.Limit {
		ctl = ctl.Copy()
		ctl.Limit = op.Limit
	}
	ran, err := s.Engine.Run(ctx, ctl)
	if ran != nil {
		r.Emitted = append(r.Emitted, ran.Emitted...)
		r.Fired += ran.Fired
		r.Rules = append(r.Rules, ran.Rules...)
		r.StoppedBecause = ran.StoppedBecause.String()
	}
	return err
}

// changes computes the net working memory changes since this method
// was previously called and writes them to Storage.
func (s *Session) changes(ctx context.Context) ([]*storage.FactState, error) {
	changed, now := storage.Changes(s.stored, s.Engine.Facts())
	if s.Storage != nil && 0 < len(changed) {
		if err := s.Storage.WriteFacts(ctx, s.Conf.Id, changed); err != nil {
			return nil, err
		}
	}
	s.stored = now
	return changed, nil
}

func factMaps(fs []*core.Fact) []map[string]interface{} {
	acc := make([]map[string]interface{}, len(fs))
	for i, f := range fs {
		acc[i] = f.Map()
	}
	return acc
}

// Loop starts the input processing loop in the current goroutine.
//
// This loop calls Process on each message that arrives via the input
// coupling, and the loop halts when ctx.Done().
func (s *Session) Loop(ctx context.Context) error {
	s.Logger.Debug("Session.Loop starting", zap.String("sid", s.Conf.Id))
LOOP:
	for {
		select {
		case <-s.done:
			if s.Conf.HaltOnInputEOF {
				s.Logger.Debug("Session.Loop shutting down (done)")
				break LOOP
			}
			// Don't spin on a closed channel.
			s.done = nil
		case <-ctx.Done():
			s.Logger.Debug("Session.Loop shutting down (ctx.Done)")
			break LOOP
		case msg := <-s.in:
			if msg == nil {
				break LOOP
			}
			r, err := s.Process(ctx, msg)
			if err != nil {
				s.Logger.Warn("Process", zap.String("sid", s.Conf.Id), zap.Error(err))
			}
			s.Deliver(ctx, r)
		}
	}

	s.Logger.Debug("Session.Loop done")
	return nil
}

// Deliver sends the Result to the session's Result coupling.
func (s *Session) Deliver(ctx context.Context, r *Result) {
	select {
	case <-ctx.Done():
	case s.out <- r:
	}
}
