/*
 * This Source Code Form is subject to the terms of the Mozilla Public License, v. 2.0.
 * If a copy of the MPL was not distributed with this file, You can obtain one at
 * https://mozilla.org/MPL/2.0/.
 */

package core

import (
	"crypto/cipher"

	xcrypto "github.com/skylable/aes256filter/internal/crypto"
)

// encryptBlock encrypts the L staged plaintext bytes in s.in into s.out,
// chaining the IV from s.ivState and appending a truncated HMAC-SHA-512
// tag. It implements spec.md §4.5.3.
func (s *Session) encryptBlock(plaintext []byte) {
	// IV chaining: reset ivHash, feed the previous iv_state followed by
	// the new plaintext, take the digest. The first IVSize bytes become
	// this block's IV; the full digest becomes the next iv_state.
	s.ivHash.Reset()
	s.ivHash.Write(s.ivState)
	s.ivHash.Write(plaintext)
	digest := s.ivHash.Sum(nil)
	iv := make([]byte, IVSize)
	copy(iv, digest[:IVSize])
	copy(s.ivState, digest)

	copy(s.out[:IVSize], iv)

	padded := make([]byte, ((len(plaintext)/cipherBlock)+1)*cipherBlock)
	n := pkcs7Pad(padded, plaintext)
	padded = padded[:n]

	cbc := cipher.NewCBCEncrypter(s.cipherBlock, iv)
	cbc.CryptBlocks(s.out[IVSize:IVSize+n], padded)

	s.outFilled = IVSize + n

	s.mac.Reset()
	s.mac.Write(s.out[:s.outFilled])
	tag := s.mac.Sum(nil)[:MACSize]
	copy(s.out[s.outFilled:s.outFilled+MACSize], tag)
	s.outFilled += MACSize
}

// decryptBlock authenticates and decrypts the L staged wire bytes in s.in
// into s.out. It implements spec.md §4.5.4: the HMAC tag is verified in
// constant time before any plaintext is produced, and CBC padding
// failures are reported the same way as an authentication failure.
func (s *Session) decryptBlock(wire []byte) error {
	if len(wire) < IVSize+MACSize {
		s.decryptFailed = true
		return xcrypto.WrapError("decrypt block", xcrypto.ErrAuthenticationFailure)
	}

	ivCiphertext := wire[:len(wire)-MACSize]
	tagReceived := wire[len(wire)-MACSize:]

	s.mac.Reset()
	s.mac.Write(ivCiphertext)
	tagComputed := s.mac.Sum(nil)[:MACSize]

	if !constantTimeEqual(tagReceived, tagComputed) {
		s.decryptFailed = true
		return xcrypto.WrapError("decrypt block", xcrypto.ErrAuthenticationFailure)
	}

	iv := ivCiphertext[:IVSize]
	ciphertext := ivCiphertext[IVSize:]
	if len(ciphertext) == 0 || len(ciphertext)%cipherBlock != 0 {
		s.decryptFailed = true
		return xcrypto.WrapError("decrypt block", xcrypto.ErrAuthenticationFailure)
	}

	plain := make([]byte, len(ciphertext))
	cbc := cipher.NewCBCDecrypter(s.cipherBlock, iv)
	cbc.CryptBlocks(plain, ciphertext)

	n, err := pkcs7Unpad(plain)
	if err != nil {
		s.decryptFailed = true
		return xcrypto.WrapError("decrypt block", err)
	}

	s.outFilled = copy(s.out, plain[:n])
	return nil
}
