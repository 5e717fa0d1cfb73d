/*
 * This Source Code Form is subject to the terms of the Mozilla Public License, v. 2.0.
 * If a copy of the MPL was not distributed with this file, You can obtain one at
 * https://mozilla.org/MPL/2.0/.
 */

package aes256filter

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"github.com/skylable/aes256filter/internal/core"
	"github.com/skylable/aes256filter/internal/provision"
)

// defaultIOBufferSize is the scratch buffer size EncryptFile/DecryptFile
// read and write in, independent of the filter's own 16384-byte logical
// block size. ioBufferSize lets an operator override it for constrained
// environments, generalized from the teacher's FILEENCRYPT_CHUNKSIZE_LIMIT
// environment override (internal/core/options.go in the teacher repo).
const defaultIOBufferSize = 256 * 1024

const ioBufferSizeEnvVar = "AES256FILTER_IO_BUFFER"

func ioBufferSize() int {
	v := os.Getenv(ioBufferSizeEnvVar)
	if v == "" {
		return defaultIOBufferSize
	}
	n, err := humanize.ParseBytes(v)
	if err != nil || n == 0 {
		return defaultIOBufferSize
	}
	return int(n)
}

const saltFileName = "salt"
const fpSidecarName = "fp"

// loadOrCreateVolumeConfig is the sidecar-file stand-in for the
// custom-metadata store a real host storage framework would carry
// alongside the object: a fresh 16-byte salt is generated once per
// configDir, and the fingerprint written by the first Prepare call is
// persisted next to it for every later Prepare to pick back up.
func loadOrCreateVolumeConfig(configDir string) (cfgData []byte, meta map[string][]byte, err error) {
	if err := os.MkdirAll(configDir, 0o700); err != nil {
		return nil, nil, fmt.Errorf("create config dir %s: %w", configDir, err)
	}

	saltPath := filepath.Join(configDir, saltFileName)
	salt, err := os.ReadFile(saltPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		salt = make([]byte, core.SaltSize)
		if _, rerr := rand.Read(salt); rerr != nil {
			return nil, nil, fmt.Errorf("generate volume salt: %w", rerr)
		}
		if werr := os.WriteFile(saltPath, salt, 0o600); werr != nil {
			return nil, nil, fmt.Errorf("write volume salt: %w", werr)
		}
	case err != nil:
		return nil, nil, fmt.Errorf("read volume salt: %w", err)
	}

	meta = make(map[string][]byte)
	fpPath := filepath.Join(configDir, fpSidecarName)
	if fp, ferr := os.ReadFile(fpPath); ferr == nil {
		meta[provision.CustomMetaFingerprintKey] = fp
		cfgData = append(append([]byte{}, salt...), fp...)
	} else {
		// No fingerprint yet: ship the salt in the "nogenkey" shape
		// (SaltSize+1 bytes) rather than bare SaltSize bytes, which
		// would collide with Prepare's paranoid-mode case and disable
		// key caching and fingerprinting for the life of the volume.
		cfgData = append(append([]byte{}, salt...), 0x00)
	}
	return cfgData, meta, nil
}

// persistVolumeConfig writes back any fingerprint Prepare minted during a
// first upload, so subsequent calls against the same configDir find it.
func persistVolumeConfig(configDir string, meta map[string][]byte) error {
	fp, ok := meta[provision.CustomMetaFingerprintKey]
	if !ok {
		return nil
	}
	return os.WriteFile(filepath.Join(configDir, fpSidecarName), fp, 0o600)
}

// EncryptFile reads plaintext from inPath, drives it through a freshly
// prepared Filter in Upload mode, and writes wire-format ciphertext to
// outPath. configDir holds the volume's salt and (after the first call)
// its key fingerprint and cached key, the way a real host's per-volume
// cfgdir would. Grounded on the teacher's fileencrypt.go convenience
// wrappers (EncryptFile/DecryptFile), generalized from whole-file AEAD
// encryption to driving the pull-style Process state machine in a loop.
func EncryptFile(inPath, outPath, configDir string, opts ...Option) error {
	return streamFile(inPath, outPath, configDir, Upload, nil, opts...)
}

// DecryptFile is EncryptFile's inverse: it reads wire-format ciphertext
// from inPath and writes recovered plaintext to outPath.
func DecryptFile(inPath, outPath, configDir string, opts ...Option) error {
	return streamFile(inPath, outPath, configDir, Download, nil, opts...)
}

// DecryptFileVerify is DecryptFile, additionally checksumming the recovered
// plaintext as Process streams it out and comparing it against expectedHex
// (a hex-encoded SHA-256) once the whole stream has been produced. Unlike a
// separate post-hoc whole-file read, the checksum is accumulated from the
// same bytes the block cipher's authentication already vouched for.
func DecryptFileVerify(inPath, outPath, configDir, expectedHex string, opts ...Option) error {
	sum := core.NewChecksumWriter()
	if err := streamFile(inPath, outPath, configDir, Download, sum, opts...); err != nil {
		return err
	}
	ok, err := sum.Verify(expectedHex)
	if err != nil {
		return fmt.Errorf("verify checksum: %w", err)
	}
	if !ok {
		return fmt.Errorf("checksum mismatch: recovered plaintext does not match %s", expectedHex)
	}
	return nil
}

func streamFile(inPath, outPath, configDir string, mode Mode, tee io.Writer, opts ...Option) error {
	cfgData, meta, err := loadOrCreateVolumeConfig(configDir)
	if err != nil {
		return err
	}

	in, err := os.Open(inPath) // #nosec G304 -- caller-supplied path, library is designed for file operations
	if err != nil {
		return fmt.Errorf("open %s: %w", inPath, err)
	}
	defer in.Close()

	out, err := os.OpenFile(outPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600) // #nosec G304
	if err != nil {
		return fmt.Errorf("create %s: %w", outPath, err)
	}
	defer out.Close()

	f := &Filter{}
	if err := f.Prepare(Params{
		Filename:   inPath,
		ConfigDir:  configDir,
		ConfigData: cfgData,
		CustomMeta: meta,
		Mode:       mode,
	}, opts...); err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer f.Finish()

	if err := persistVolumeConfig(configDir, meta); err != nil {
		return fmt.Errorf("persist volume fingerprint: %w", err)
	}

	var w io.Writer = out
	if tee != nil {
		w = io.MultiWriter(out, tee)
	}

	if err := pump(f, in, w); err != nil {
		return err
	}
	return nil
}

// pump feeds in through f.Process in ioBufferSize()-sized chunks until the
// stream ends, writing every produced byte to out. It implements the host
// side of spec.md §4.5's process contract: a Repeat result means call
// again with the identical input slice (more output is staged); a Normal
// result means the slice was fully consumed and it's time to read the
// next chunk; a DataEnd result means the filter has nothing left to
// produce, ever, and pump must stop.
func pump(f *Filter, in io.Reader, out io.Writer) error {
	inBuf := make([]byte, ioBufferSize())
	outBuf := make([]byte, ioBufferSize())

	var (
		chunk       []byte
		action      = ActionNormal
		streamEnded bool
	)

	for {
		if chunk == nil {
			if streamEnded {
				chunk = inBuf[:0]
				action = ActionEnd
			} else {
				n, rerr := in.Read(inBuf)
				if rerr != nil && rerr != io.EOF {
					return fmt.Errorf("read input: %w", rerr)
				}
				switch {
				case n == 0:
					streamEnded = true
					chunk = inBuf[:0]
					action = ActionEnd
				case rerr == io.EOF:
					streamEnded = true
					chunk = inBuf[:n]
					action = ActionEnd
				default:
					chunk = inBuf[:n]
					action = ActionNormal
				}
			}
		}

		produced, nextAction, err := f.Process(chunk, outBuf, action)
		if err != nil {
			return fmt.Errorf("process: %w", err)
		}
		if produced > 0 {
			if _, werr := out.Write(outBuf[:produced]); werr != nil {
				return fmt.Errorf("write output: %w", werr)
			}
		}

		switch nextAction {
		case ActionRepeat:
			action = ActionRepeat
		case ActionEnd:
			return nil
		default: // ActionNormal: this chunk is fully consumed
			chunk = nil
			if streamEnded && produced == 0 {
				return nil
			}
		}
	}
}
