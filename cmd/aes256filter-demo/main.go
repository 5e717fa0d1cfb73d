/*
 * This Source Code Form is subject to the terms of the Mozilla Public License, v. 2.0.
 * If a copy of the MPL was not distributed with this file, You can obtain one at
 * https://mozilla.org/MPL/2.0/.
 */

// Command aes256filter-demo drives the aes256filter package's
// EncryptFile/DecryptFile convenience wrappers from the command line,
// grounded on the teacher repo's examples/with-password/main.go pattern:
// a minimal flag-driven harness for exercising password-based encryption
// interactively, generalized here to the streaming block-cipher filter.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/skylable/aes256filter"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "aes256filter-demo:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("aes256filter-demo", flag.ContinueOnError)
	mode := fs.String("mode", "", "encrypt or decrypt")
	in := fs.String("in", "", "input file path")
	out := fs.String("out", "", "output file path")
	cfgDir := fs.String("cfgdir", "", "volume configuration directory (salt, key cache, fingerprint)")
	checksum := fs.String("checksum", "", "decrypt only: expected SHA-256 of the recovered plaintext, hex-encoded")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *in == "" || *out == "" || *cfgDir == "" {
		fs.Usage()
		return errors.New("-in, -out and -cfgdir are required")
	}

	switch *mode {
	case "encrypt":
		return aes256filter.EncryptFile(*in, *out, *cfgDir)
	case "decrypt":
		if *checksum == "" {
			return aes256filter.DecryptFile(*in, *out, *cfgDir)
		}
		return aes256filter.DecryptFileVerify(*in, *out, *cfgDir, *checksum)
	default:
		return fmt.Errorf("unknown -mode %q, want \"encrypt\" or \"decrypt\"", *mode)
	}
}
