// Package jess provides a forward-chaining production-rule engine
// built on a Rete network.
//
// The engine, its working memory, and the network compiler are in
// package 'core'.  Rule bases are loaded by package 'rules'.  Package
// 'sio' connects an engine to the outside world, and the command-line
// tool is in `cmd/jess`.
package jess
