/*
 * This Source Code Form is subject to the terms of the Mozilla Public License, v. 2.0.
 * If a copy of the MPL was not distributed with this file, You can obtain one at
 * https://mozilla.org/MPL/2.0/.
 */

// Package crypto holds the low-level sensitive-memory and error-handling
// primitives shared by the rest of the filter.
package crypto

import (
	"sync"

	"github.com/skylable/aes256filter/secure"
)

// SecureBuffer is a fixed-capacity byte region that best-effort locks its
// pages against swap for its whole life and is always zeroed before its
// backing memory is released. It forbids implicit copies: Data returns the
// live backing slice, not a clone, so callers must treat the returned slice
// as borrowed and never retain it past Destroy.
type SecureBuffer struct {
	buf    []byte
	mu     sync.Mutex
	zeroed bool
	unlock func()
}

// NewSecureBuffer allocates a zeroed SecureBuffer of the given size and
// attempts to lock it into memory (best effort; locking failures never
// cause an error, only degrade to unlocked memory).
func NewSecureBuffer(size int) *SecureBuffer {
	buf := make([]byte, size)
	return wrapSecureBuffer(buf)
}

// NewSecureBufferFromBytes creates a SecureBuffer holding a copy of b.
// It attempts to lock the memory to prevent swapping (best effort).
func NewSecureBufferFromBytes(b []byte) (*SecureBuffer, error) {
	buf := make([]byte, len(b))
	copy(buf, b)
	return wrapSecureBuffer(buf), nil
}

func wrapSecureBuffer(buf []byte) *SecureBuffer {
	unlock := func() {}
	if err := secure.LockMemory(buf); err == nil {
		unlock = func() {
			_ = secure.UnlockMemory(buf)
		}
	}
	return &SecureBuffer{buf: buf, unlock: unlock}
}

// Data returns the buffer contents. The returned slice aliases the internal
// storage; it is only valid until the next call to Destroy.
func (s *SecureBuffer) Data() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf
}

// Len reports the buffer's fixed capacity.
func (s *SecureBuffer) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buf)
}

// CopyFrom overwrites the buffer contents with src. len(src) must equal the
// buffer's capacity.
func (s *SecureBuffer) CopyFrom(src []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copy(s.buf, src)
}

// Destroy zeroes the buffer, unlocks memory, and marks it destroyed. It is
// idempotent and safe to call more than once, including from an error path
// that also hits the normal teardown.
func (s *SecureBuffer) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.zeroed {
		secure.Zero(s.buf)
		s.zeroed = true

		if s.unlock != nil {
			s.unlock()
		}
	}
}
