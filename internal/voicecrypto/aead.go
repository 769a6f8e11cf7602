// Package voicecrypto implements the aead_xchacha20_poly1305_rtpsize
// encryption suite, using the real XChaCha20-Poly1305 AEAD from
// golang.org/x/crypto rather than hand-rolling the primitive.
package voicecrypto

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// Mode identifies a negotiated encryption suite. Only one suite is
// required by this core; the type exists so negotiation fails closed on
// an unknown string rather than dispatching by name at send time.
type Mode string

// ModeXChaCha20Poly1305RTPSize is the one encryption suite this core
// implements, matching Discord's wire name.
const ModeXChaCha20Poly1305RTPSize Mode = "aead_xchacha20_poly1305_rtpsize"

// Supported returns the suites this core can negotiate, in preference
// order, for intersecting against a Ready payload's advertised modes.
func Supported() []Mode {
	return []Mode{ModeXChaCha20Poly1305RTPSize}
}

// Negotiate picks the first mode in offered (server-advertised order)
// that this core supports.
func Negotiate(offered []string) (Mode, bool) {
	supported := Supported()
	for _, candidate := range offered {
		for _, mode := range supported {
			if string(mode) == candidate {
				return mode, true
			}
		}
	}
	return "", false
}

// Cipher encrypts RTP payloads under a fixed 32-byte session secret key
// using a monotonically increasing nonce counter.
type Cipher struct {
	aead  cipherAEAD
	nonce uint32
}

// cipherAEAD is the subset of cipher.AEAD this package needs, kept
// narrow so tests can substitute a fake if ever needed.
type cipherAEAD interface {
	Seal(dst, nonce, plaintext, additionalData []byte) []byte
	Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
	NonceSize() int
	Overhead() int
}

// NewCipher builds a Cipher for the given mode and 32-byte secret key
// delivered in SessionDescription.
func NewCipher(mode Mode, secretKey []byte) (*Cipher, error) {
	if mode != ModeXChaCha20Poly1305RTPSize {
		return nil, fmt.Errorf("voicecrypto: unsupported mode %q", mode)
	}
	aead, err := chacha20poly1305.NewX(secretKey)
	if err != nil {
		return nil, fmt.Errorf("voicecrypto: init aead: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// Encrypt seals audio under header as associated data and returns the
// full wire layout: header ‖ ciphertext ‖ auth_tag ‖ nonce_prefix(4).
// The nonce counter is incremented (mod 2^32) on every call.
func (c *Cipher) Encrypt(header, audio []byte) []byte {
	nonce := make([]byte, c.aead.NonceSize())
	binary.BigEndian.PutUint32(nonce[0:4], c.nonce)

	sealed := c.aead.Seal(nil, nonce, audio, header)
	c.nonce++

	out := make([]byte, 0, len(header)+len(sealed)+4)
	out = append(out, header...)
	out = append(out, sealed...)
	out = append(out, nonce[0:4]...)
	return out
}

// Decrypt reverses Encrypt given the wire packet, the secret-derived
// Cipher, and the number of bytes in the RTP header used as associated
// data. It is provided for round-trip testing of the wire format.
func (c *Cipher) Decrypt(packet []byte, headerLen int) ([]byte, error) {
	if len(packet) < headerLen+4 {
		return nil, fmt.Errorf("voicecrypto: packet too short")
	}
	header := packet[:headerLen]
	noncePrefix := packet[len(packet)-4:]
	ciphertext := packet[headerLen : len(packet)-4]

	nonce := make([]byte, c.aead.NonceSize())
	copy(nonce[0:4], noncePrefix)

	return c.aead.Open(nil, nonce, ciphertext, header)
}

// NonceCounter returns the next nonce value that will be used, primarily
// for tests asserting strict monotonic increase.
func (c *Cipher) NonceCounter() uint32 { return c.nonce }
