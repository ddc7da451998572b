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

package core

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"
)

var (
	// EmittedMessagesInitialCap is the initial capacity for
	// slices of emitted messages.
	EmittedMessagesInitialCap = 16

	// DefaultControl will be used by Run if the given control is
	// nil.
	DefaultControl = &Control{}
)

// StopReason represents the possible reasons for Run to return.
type StopReason int

const (
	Done              StopReason = iota // The agenda is empty.
	Limited                             // Too many firings.
	Halted                              // Somebody called Halt.
	Canceled                            // The context is done.
	BreakpointReached                   // A Breakpoint said so.
	InternalError                       // An action failed.
)

var stopReasonNames = []string{
	"Done", "Limited", "Halted", "Canceled", "BreakpointReached", "InternalError",
}

func (r StopReason) String() string {
	if r < 0 || int(r) >= len(stopReasonNames) {
		return "Unknown"
	}
	return stopReasonNames[r]
}

func (r StopReason) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// Breakpoint is an *Activation predicate.
//
// When a Breakpoint returns true for the next Activation, Run stops
// before firing it.
type Breakpoint func(context.Context, *Activation) bool

// Control influences how Run operates.
type Control struct {
	// Limit is the maximum number of rule firings.  Zero means no
	// limit.
	Limit       int
	Breakpoints map[string]Breakpoint
}

func (c *Control) Copy() *Control {
	bs := make(map[string]Breakpoint, len(c.Breakpoints))
	for id, b := range c.Breakpoints {
		bs[id] = b
	}
	return &Control{
		Limit:       c.Limit,
		Breakpoints: bs,
	}
}

// Ran reports what Run did.
type Ran struct {
	Fired          int        `json:"fired"`
	Rules          []string   `json:"rules,omitempty" yaml:",omitempty"`
	StoppedBecause StopReason `json:"stoppedBecause"`
	BreakpointId   string     `json:"breakpoint,omitempty" yaml:",omitempty"`

	// Emitted are the messages that actions emitted.
	Emitted []interface{} `json:"emitted,omitempty" yaml:",omitempty"`
}

func newRan() *Ran {
	return &Ran{
		Emitted: make([]interface{}, 0, EmittedMessagesInitialCap),
	}
}

// Halt makes Run stop before the next firing.  Safe to call from
// any goroutine.
func (e *Engine) Halt() {
	atomic.StoreInt32(&e.halted, 1)
}

// Run fires activations until the agenda is empty, the Control's
// Limit is reached, a Breakpoint stops things, Halt is called, or the
// context is done.
//
// The engine is locked for each firing, not for the whole Run, so
// other goroutines can assert facts between firings.  Actions must
// use the given Firing rather than the Engine.
func (e *Engine) Run(ctx context.Context, c *Control) (*Ran, error) {
	if c == nil {
		c = DefaultControl
	}
	atomic.StoreInt32(&e.halted, 0)

	ran := newRan()
	for {
		if 0 < c.Limit && c.Limit <= ran.Fired {
			ran.StoppedBecause = Limited
			return ran, nil
		}
		if ctx.Err() != nil {
			ran.StoppedBecause = Canceled
			return ran, nil
		}
		if atomic.LoadInt32(&e.halted) == 1 {
			ran.StoppedBecause = Halted
			return ran, nil
		}
		more, err := e.step(ctx, c, ran)
		if err != nil {
			ran.StoppedBecause = InternalError
			return ran, err
		}
		if !more {
			return ran, nil
		}
	}
}

// step fires the next activation.  It returns false if there wasn't
// one (or if a Breakpoint stopped things).
func (e *Engine) step(ctx context.Context, c *Control, ran *Ran) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	a := e.agenda.next()
	if a == nil {
		ran.StoppedBecause = Done
		return false, nil
	}
	for id, bp := range c.Breakpoints {
		if bp(ctx, a) {
			ran.StoppedBecause = BreakpointReached
			ran.BreakpointId = id
			return false, nil
		}
	}

	e.agenda.remove(a)
	a.fired = true
	r := a.rule.rule
	ran.Fired++
	ran.Rules = append(ran.Rules, r.Name)
	e.notify(Event{Kind: RuleFired, Rule: r.Name, Activation: a})

	f := &Firing{
		e:          e,
		ran:        ran,
		Activation: a,
		Bindings:   a.Bindings(),
	}
	for i, act := range r.Actions {
		if err := act.Exec(ctx, f); err != nil {
			e.logger.Warn("action failed",
				zap.String("rule", r.Name),
				zap.Int("action", i),
				zap.Error(err))
			return false, &ActionError{
				Rule:   r.Name,
				Action: i,
				Err:    err,
			}
		}
	}
	return true, nil
}
