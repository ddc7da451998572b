/* Copyright 2018-2019 Comcast Cable Communications Management, LLC
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

// Package core provides a forward-chaining production-rule engine
// based on the Rete algorithm.
//
// The primary type is Engine.  An Engine has a working memory of
// Facts, a network compiled from Rules, and an agenda of Activations.
// A Rule has Patterns (its left-hand side) and Actions (its
// right-hand side).  When the facts in working memory satisfy all of
// a rule's patterns, the rule gets an Activation on the agenda.
// Engine.Run fires activations, highest salience first.
//
// Asserting or retracting a fact sends a Token through the network.
// One-input nodes test single facts (type, slot values, function
// calls).  Join nodes combine tokens from earlier patterns with facts
// that match the next pattern, and they remember what they've seen.
// Negated joins count the facts that would block a token.  Nodes are
// shared among rules when their tests are the same.
//
// Function calls in patterns and actions are evaluated by an
// Evaluator, which the Engine gets via Options.  See package
// interpreters.  Rules are usually written in YAML or JSON and loaded
// by package rules.
//
// An Action runs while the Engine is locked.  An Action changes
// working memory through the Firing it receives.  An Action must not
// call the Engine's methods directly, which would deadlock.
package core
