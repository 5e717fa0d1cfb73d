/*
 * This Source Code Form is subject to the terms of the Mozilla Public License, v. 2.0.
 * If a copy of the MPL was not distributed with this file, You can obtain one at
 * https://mozilla.org/MPL/2.0/.
 */

package core

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha1" // #nosec G505 -- used only as an HMAC PRF for IV chaining, never for collision resistance; see design notes
	"crypto/sha512"
	"fmt"
	"hash"

	xcrypto "github.com/skylable/aes256filter/internal/crypto"
)

// Session is the per-open-file state held across many Process calls,
// created by provisioning and destroyed by Finish. It must never be reused
// after Finish: the type intentionally exposes no way to "revive" a
// finished session, so misuse (calling Process after Finish) is a
// programming error caught by a nil-pointer panic on the released cipher
// and hash contexts rather than silently
// producing garbage.
type Session struct {
	mode Mode

	key *xcrypto.SecureBuffer // KeySize bytes: KMac || KEnc

	cipherBlock cipher.Block // aes.NewCipher(kEnc)
	ivHash      hash.Hash    // HMAC-SHA-1 keyed with kMac, chains the per-block IV
	mac         hash.Hash    // HMAC-SHA-512 keyed with kMac, authenticates each wire block

	ivState []byte // sha1.Size scratch, all-zero for the first block

	in       []byte // wireBlockCapacity-sized input staging
	inFilled int

	out       []byte // wireBlockCapacity-sized output staging
	outFilled int
	outLeft   int

	endSeen            bool
	producedSinceInput int
	decryptFailed      bool

	keyCachePath string

	finished bool
}

// threshold returns block_capacity: the number of staged bytes that
// triggers processing one block, which differs by mode (spec.md §3).
func (s *Session) threshold() int {
	if s.mode == Upload {
		return BlockSize
	}
	return wireBlockCapacity
}

// NewSession allocates a Session for the given 64-byte master key and mode.
// The caller's key slice is copied into session-owned SensitiveBuffer
// storage; NewSession does not zero the caller's slice (provisioning does
// that once it has handed the key to the session, per spec.md §4.4 step 5).
func NewSession(key []byte, mode Mode, keyCachePath string) (*Session, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("core: invalid key length %d, want %d", len(key), KeySize)
	}

	keyBuf, err := xcrypto.NewSecureBufferFromBytes(key)
	if err != nil {
		return nil, fmt.Errorf("core: allocate key buffer: %w", err)
	}
	kMac := keyBuf.Data()[:HalfKeySize]
	kEnc := keyBuf.Data()[HalfKeySize:]

	block, err := aes.NewCipher(kEnc)
	if err != nil {
		keyBuf.Destroy()
		return nil, fmt.Errorf("core: init AES cipher: %w", err)
	}

	s := &Session{
		mode:         mode,
		key:          keyBuf,
		cipherBlock:  block,
		ivHash:       hmac.New(sha1.New, kMac),
		mac:          hmac.New(sha512.New, kMac),
		ivState:      make([]byte, sha1.Size),
		in:           make([]byte, wireBlockCapacity),
		out:          make([]byte, wireBlockCapacity),
		keyCachePath: keyCachePath,
	}
	return s, nil
}

// DecryptFailed reports whether any Process call has ever failed
// authentication on this session.
func (s *Session) DecryptFailed() bool {
	return s.decryptFailed
}

// KeyCachePath returns the filesystem path (if any) this session's key was
// loaded from or persisted to, for zeroization bookkeeping.
func (s *Session) KeyCachePath() string {
	return s.keyCachePath
}

// Finish is idempotent teardown: zero and release the HMAC contexts, zero
// the cipher state, unlock and zero the key, and mark the session
// unusable. It must succeed on every exit path, including after a prior
// Process failure.
func (s *Session) Finish() error {
	if s.finished {
		return nil
	}
	s.finished = true

	zeroHash(s.ivHash)
	zeroHash(s.mac)
	s.ivHash = nil
	s.mac = nil
	s.cipherBlock = nil

	for i := range s.ivState {
		s.ivState[i] = 0
	}
	for i := range s.in {
		s.in[i] = 0
	}
	for i := range s.out {
		s.out[i] = 0
	}

	if s.key != nil {
		s.key.Destroy()
	}
	s.keyCachePath = ""
	return nil
}

// zeroHash resets a keyed hash.Hash so no running digest state lingers in
// memory beyond Finish. hash.Hash has no explicit zero API; Reset()
// re-derives the inner/outer pads from the key each time it's invoked, so
// the only way to drop the key material is to release the reference, which
// Finish does right after calling zeroHash. Mirrors the teacher's pattern of explicit defensive zeroing
// at every sensitive type's teardown (see SecureBuffer.Destroy).
func zeroHash(h hash.Hash) {
	if h == nil {
		return
	}
	h.Reset()
}
