/*
 * This Source Code Form is subject to the terms of the Mozilla Public License, v. 2.0.
 * If a copy of the MPL was not distributed with this file, You can obtain one at
 * https://mozilla.org/MPL/2.0/.
 */

// Package aes256filter is the top-level facade: the five operations a host
// storage framework drives a filter through (init, prepare, process,
// finish, plus static identity), backed by internal/core's cipher engine
// and internal/provision's key provisioning.
package aes256filter

import (
	"github.com/skylable/aes256filter/internal/core"
	"github.com/skylable/aes256filter/internal/provision"
)

// Re-exported so callers need only import this package for the common
// path: provision.Params to describe a Prepare call, provision.Option /
// the With* constructors to tune it, core.Mode / core.Action for the
// process loop.
type (
	Params = provision.Params
	Option = provision.Option
	Mode   = core.Mode
	Action = core.Action
)

const (
	Upload       = core.Upload
	Download     = core.Download
	ActionNormal = core.ActionNormal
	ActionRepeat = core.ActionRepeat
	ActionEnd    = core.ActionDataEnd
)

var (
	WithLogger             = provision.WithLogger
	WithPasswordReader     = provision.WithPasswordReader
	WithKeyCacheEncryption = provision.WithKeyCacheEncryption
)

// Filter is one open session: the host framework calls Init once per
// process, Prepare once per file to obtain a ready session, Process
// repeatedly until the stream is consumed, and Finish exactly once to
// release the session's sensitive state.
type Filter struct {
	session *core.Session
}

// Init is a no-op per spec.md §4.6 -- the filter's process-level state
// (the crypto library version check) is established lazily, once, inside
// the first Prepare call, rather than requiring a separate explicit init
// step a host must remember to call first.
func (f *Filter) Init() error {
	return nil
}

// Prepare provisions this Filter's session: see provision.Prepare for the
// full key-acquisition/fingerprint/cache algorithm.
func (f *Filter) Prepare(p Params, opts ...Option) error {
	session, err := provision.Prepare(p, opts...)
	if err != nil {
		return err
	}
	f.session = session
	return nil
}

// Process drives the underlying session's block-streaming state machine.
// See core.Session.Process for the exact semantics.
func (f *Filter) Process(in, out []byte, action Action) (int, Action, error) {
	return f.session.Process(in, out, action)
}

// Finish releases this Filter's session. Safe to call even if Prepare was
// never called or already failed.
func (f *Filter) Finish() error {
	if f.session == nil {
		return nil
	}
	return f.session.Finish()
}
