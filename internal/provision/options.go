/*
 * This Source Code Form is subject to the terms of the Mozilla Public License, v. 2.0.
 * If a copy of the MPL was not distributed with this file, You can obtain one at
 * https://mozilla.org/MPL/2.0/.
 */

// Package provision implements KeyProvisioning (spec.md §4.4): reconciling
// configuration metadata, an optional local key cache file, and an
// optional interactive password prompt into a ready core.Session.
package provision

import "github.com/skylable/aes256filter/internal/logging"

// config holds Prepare's tunables, generalized from the teacher's
// functional-options pattern (internal/core/options.go in the teacher
// repo) from chunk-size/progress/checksum knobs to provisioning knobs.
type config struct {
	logger         *logging.Logger
	passwordReader PasswordReader

	// cacheWrap and cachePassphrase configure optional sealing of the
	// on-disk key cache file (<cfgdir>/key). The default, cacheWrapNone,
	// matches spec.md's plain-file behavior exactly; sealing is an
	// additive option, never required to read a cache another process
	// wrote without it.
	cacheWrap       cacheWrapKDF
	cachePassphrase []byte
}

// Option configures a Prepare call.
type Option func(*config)

// WithLogger directs Prepare's Notice/Warning/Error output to l instead of
// the package default (stderr).
func WithLogger(l *logging.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithPasswordReader overrides how Prepare obtains an interactive
// password. Tests use this to supply scripted input instead of a real
// tty; production callers normally leave this unset and get
// termPasswordReader, which reads from the controlling terminal via
// golang.org/x/term.
func WithPasswordReader(r PasswordReader) Option {
	return func(c *config) { c.passwordReader = r }
}

// WithKeyCacheEncryption seals the on-disk key cache file with a secret
// independent of the volume password, derived via Argon2id (or PBKDF2,
// when useArgon2 is false) and expanded with HKDF into the AES-256-GCM
// key that wraps the cached master key. This is additive: spec.md's
// compatibility requirement (a plain 0600 file another aes256
// implementation can read) remains the default with no option set.
func WithKeyCacheEncryption(passphrase []byte, useArgon2 bool) Option {
	kdf := cacheWrapPBKDF2
	if useArgon2 {
		kdf = cacheWrapArgon2
	}
	return func(c *config) {
		c.cacheWrap = kdf
		c.cachePassphrase = passphrase
	}
}

func newConfig(opts []Option) *config {
	c := &config{
		logger:         logging.Default(),
		passwordReader: termPasswordReader{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}
