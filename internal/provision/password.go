/*
 * This Source Code Form is subject to the terms of the Mozilla Public License, v. 2.0.
 * If a copy of the MPL was not distributed with this file, You can obtain one at
 * https://mozilla.org/MPL/2.0/.
 */

package provision

import (
	"bytes"
	"fmt"
	"os"
	"sync"

	"golang.org/x/term"

	"github.com/skylable/aes256filter/internal/kdf"
	"github.com/skylable/aes256filter/secure"

	xcrypto "github.com/skylable/aes256filter/internal/crypto"
)

// minPasswordLength is the minimum accepted interactive password length
// (spec.md §4.4).
const minPasswordLength = 8

// PasswordReader obtains one line of sensitive input from whatever
// interactive surface the host provides. The returned slice is callee-
// owned scratch; ReadPassword callers must zero it after use.
type PasswordReader interface {
	ReadPassword(prompt string) ([]byte, error)
}

// termMu serializes interactive prompts across concurrent Prepare calls:
// spec.md §5 requires sessions needing interactive input to be prepared
// sequentially, not concurrently, since they all share one tty.
var termMu sync.Mutex

// termPasswordReader reads a password from the controlling terminal with
// echo disabled, grounded on golang.org/x/term.ReadPassword — the
// idiomatic Go replacement for hand-rolled termios manipulation.
type termPasswordReader struct{}

func (termPasswordReader) ReadPassword(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	defer fmt.Fprintln(os.Stderr)

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, xcrypto.WrapError("read password", xcrypto.ErrPasswordAbort)
	}

	pw, err := term.ReadPassword(fd)
	if err != nil {
		return nil, xcrypto.WrapError("read password", xcrypto.ErrPasswordAbort)
	}
	// term.ReadPassword's buffer isn't ours to keep growing the process's
	// resident sensitive-data footprint; lock it for the short window
	// between here and the caller's use-then-Zero.
	if err := secure.LockMemory(pw); err != nil {
		// Best effort: an unprivileged process (no CAP_IPC_LOCK, low
		// RLIMIT_MEMLOCK) can't mlock and that's not fatal, matching
		// the original filter's silent degradation.
		_ = err
	}
	return pw, nil
}

// burn zeroes b and releases any memory lock taken on it, in that order
// so the lock covers the buffer's entire sensitive lifetime.
func burn(b []byte) {
	secure.Zero(b)
	_ = secure.UnlockMemory(b)
}

// getPassword implements the password-prompt portion of spec.md §4.4's
// last paragraph: minimum length 8, sensitive buffers locked for the
// prompt's lifetime and zeroed immediately after, short or mismatched
// input causing a silent re-prompt, derive() applied to the confirmed
// plaintext.
//
// repeat requests a second, confirming prompt (upload of a
// not-yet-fingerprinted volume, or any paranoid-mode upload).
func getPassword(c *config, mode string, repeat bool, salt []byte) ([]byte, error) {
	termMu.Lock()
	defer termMu.Unlock()

	for {
		prompt := fmt.Sprintf("[aes256]: Enter %s password: ", mode)
		pass1, err := c.passwordReader.ReadPassword(prompt)
		if err != nil {
			return nil, err
		}

		if len(pass1) < minPasswordLength {
			burn(pass1)
			c.logger.Warning("password must be at least %d characters long", minPasswordLength)
			continue
		}

		if repeat {
			pass2, err := c.passwordReader.ReadPassword("[aes256]: Re-enter encryption password: ")
			if err != nil {
				burn(pass1)
				return nil, err
			}
			equal := bytes.Equal(pass1, pass2)
			burn(pass2)
			if !equal {
				burn(pass1)
				c.logger.Warning("passwords don't match")
				continue
			}
		}

		key, err := kdf.Derive(pass1, salt)
		burn(pass1)
		if err != nil {
			return nil, xcrypto.WrapError("derive key from password", err)
		}
		return key, nil
	}
}
