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
	"go.uber.org/zap"
)

// EventKind says what happened.
type EventKind int

const (
	FactAsserted EventKind = iota
	FactRetracted
	RuleAdded
	RuleRemoved
	ActivationCreated
	ActivationRemoved
	RuleFired
	EngineReset
	EngineCleared
)

var eventKindNames = []string{
	"fact-asserted", "fact-retracted", "rule-added", "rule-removed",
	"activation-created", "activation-removed", "rule-fired",
	"reset", "cleared",
}

func (k EventKind) String() string {
	if k < 0 || int(k) >= len(eventKindNames) {
		return "unknown"
	}
	return eventKindNames[k]
}

// Event is something an Observer hears about.
type Event struct {
	Kind       EventKind
	Fact       *Fact
	Rule       string
	Activation *Activation
}

// Observer hears about engine events.
//
// Notify is called synchronously while the engine holds its lock, so
// an Observer must not call the Engine.
type Observer interface {
	Notify(Event)
}

// ObserverFunc lets a plain function be an Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) Notify(e Event) {
	f(e)
}

// ChanObserver forwards events to a channel.  If the channel isn't
// ready, the event is dropped.
type ChanObserver chan Event

func (c ChanObserver) Notify(e Event) {
	select {
	case c <- e:
	default:
	}
}

// LogObserver writes events to a zap.Logger at Debug level.
type LogObserver struct {
	Logger *zap.Logger
}

func (o *LogObserver) Notify(e Event) {
	if o == nil || o.Logger == nil {
		return
	}
	fields := make([]zap.Field, 0, 3)
	if e.Fact != nil {
		fields = append(fields, zap.Int("id", e.Fact.ID), zap.Stringer("fact", e.Fact))
	}
	if e.Rule != "" {
		fields = append(fields, zap.String("rule", e.Rule))
	}
	if e.Activation != nil {
		fields = append(fields, zap.Ints("facts", e.Activation.FactIDs()))
	}
	o.Logger.Debug(e.Kind.String(), fields...)
}
