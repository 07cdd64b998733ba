// Package keyagree derives the shared secret of an AirNFC connection from
// messages exchanged over the acoustic link.
//
// The algorithm is pluggable through Agreement; X25519 is the default.
package keyagree

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

const (
	SecretSize = 32
	TagSize    = 8
)

var (
	ErrBadPeerMessage = errors.New("keyagree: malformed peer message")
	ErrNotDerived     = errors.New("keyagree: secret not derived yet")
)

// Agreement is one side of a two-party key agreement.
type Agreement interface {
	// PublicMessage is sent to the peer, possibly several times.
	PublicMessage() []byte

	// Derive computes the shared secret from the peer's public message. Both
	// sides get the same SecretSize bytes.
	Derive(peer []byte) ([]byte, error)

	// ConfirmationTag proves knowledge of secret. The tag of each direction
	// differs, so a device never accepts its own tag as the peer's.
	ConfirmationTag(secret []byte, own bool) ([]byte, error)
}

// Factory creates a fresh Agreement for every connection attempt.
type Factory func() (Agreement, error)

type X25519 struct {
	private [curve25519.ScalarSize]byte
	public  []byte
	peer    []byte
}

// NewX25519 draws a private key from random, crypto/rand if nil.
func NewX25519(random io.Reader) (*X25519, error) {
	if random == nil {
		random = rand.Reader
	}
	k := &X25519{}
	if _, err := io.ReadFull(random, k.private[:]); err != nil {
		return nil, fmt.Errorf("keyagree: failed to generate private key: %w", err)
	}
	pub, err := curve25519.X25519(k.private[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("keyagree: failed to compute public key: %w", err)
	}
	k.public = pub
	return k, nil
}

func DefaultFactory() (Agreement, error) {
	return NewX25519(nil)
}

func (k *X25519) PublicMessage() []byte {
	return append([]byte(nil), k.public...)
}

func (k *X25519) Derive(peer []byte) ([]byte, error) {
	if len(peer) != curve25519.PointSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrBadPeerMessage, len(peer))
	}
	shared, err := curve25519.X25519(k.private[:], peer)
	if err != nil {
		// low order points give an all-zero result
		return nil, fmt.Errorf("%w: %w", ErrBadPeerMessage, err)
	}
	k.peer = append([]byte(nil), peer...)

	lo, hi := k.public, k.peer
	if bytes.Compare(lo, hi) > 0 {
		lo, hi = hi, lo
	}
	info := append(append([]byte("airnfc secret"), lo...), hi...)
	return expand(shared, info, SecretSize)
}

func (k *X25519) ConfirmationTag(secret []byte, own bool) ([]byte, error) {
	if k.peer == nil {
		return nil, ErrNotDerived
	}
	sender := k.peer
	if own {
		sender = k.public
	}
	return expand(secret, append([]byte("confirm"), sender...), TagSize)
}

func expand(secret, info []byte, n int) ([]byte, error) {
	out := make([]byte, n)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, info), out); err != nil {
		return nil, fmt.Errorf("keyagree: hkdf: %w", err)
	}
	return out, nil
}
