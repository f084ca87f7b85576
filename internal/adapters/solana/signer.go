package solana

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"sync"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"

	"github.com/alejandrodnm/dexscalper/internal/domain"
)

const (
	signatureLen = ed25519.SignatureSize
	pubkeyLen    = ed25519.PublicKeySize
	// versioned messages set the high bit of the first byte
	versionPrefixMask = 0x80
)

var errShortTx = errors.New("transaction too short")

// KeypairSigner signs Solana wire transactions with a local ed25519 keypair.
type KeypairSigner struct {
	mu      sync.RWMutex
	priv    ed25519.PrivateKey
	pub     ed25519.PublicKey
	address string
}

// NewKeypairSigner decodes a base58 secret key (64-byte keypair or 32-byte seed).
// Invalid key material is a configuration error.
func NewKeypairSigner(secret string) (*KeypairSigner, error) {
	raw, err := base58.Decode(secret)
	if err != nil {
		return nil, fmt.Errorf("solana.NewKeypairSigner: decode key: %w", domain.ErrConfiguration)
	}

	var priv ed25519.PrivateKey
	switch len(raw) {
	case ed25519.SeedSize:
		priv = ed25519.NewKeyFromSeed(raw)
	case ed25519.PrivateKeySize:
		priv = ed25519.NewKeyFromSeed(raw[:ed25519.SeedSize])
		if !bytes.Equal(priv[ed25519.SeedSize:], raw[ed25519.SeedSize:]) {
			return nil, fmt.Errorf("solana.NewKeypairSigner: public half does not match seed: %w", domain.ErrConfiguration)
		}
	default:
		return nil, fmt.Errorf("solana.NewKeypairSigner: key is %d bytes: %w", len(raw), domain.ErrConfiguration)
	}

	pub := priv.Public().(ed25519.PublicKey)
	if _, err := new(edwards25519.Point).SetBytes(pub); err != nil {
		return nil, fmt.Errorf("solana.NewKeypairSigner: public key not on curve: %w", domain.ErrConfiguration)
	}

	return &KeypairSigner{priv: priv, pub: pub, address: base58.Encode(pub)}, nil
}

// Address returns the wallet's base58 public key.
func (s *KeypairSigner) Address() string {
	return s.address
}

// Sign fills the first signature slot of tx. The fee payer (first account
// key of the message) must be this wallet.
func (s *KeypairSigner) Sign(_ context.Context, tx []byte) (domain.SignedTransaction, error) {
	s.mu.RLock()
	priv := s.priv
	s.mu.RUnlock()
	if priv == nil {
		return domain.SignedTransaction{}, fmt.Errorf("solana.Sign: key wiped: %w", domain.ErrSignerUnrecoverable)
	}

	nsig, off, err := readShortVec(tx, 0)
	if err != nil || nsig < 1 {
		return domain.SignedTransaction{}, fmt.Errorf("solana.Sign: signature count: %w", domain.ErrSigning)
	}
	msgStart := off + nsig*signatureLen
	if msgStart >= len(tx) {
		return domain.SignedTransaction{}, fmt.Errorf("solana.Sign: %w: %w", errShortTx, domain.ErrSigning)
	}
	msg := tx[msgStart:]

	payer, err := feePayer(msg)
	if err != nil {
		return domain.SignedTransaction{}, fmt.Errorf("solana.Sign: %w: %w", err, domain.ErrSigning)
	}
	if !bytes.Equal(payer, s.pub) {
		return domain.SignedTransaction{}, fmt.Errorf("solana.Sign: fee payer %s is not wallet %s: %w",
			base58.Encode(payer), s.address, domain.ErrSigning)
	}

	sig := ed25519.Sign(priv, msg)
	signed := make([]byte, len(tx))
	copy(signed, tx)
	copy(signed[off:off+signatureLen], sig)

	return domain.SignedTransaction{Raw: signed, Signature: base58.Encode(sig)}, nil
}

// Wipe zeroes the key. Any later Sign fails with domain.ErrSignerUnrecoverable.
func (s *KeypairSigner) Wipe() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.priv {
		s.priv[i] = 0
	}
	s.priv = nil
}

// feePayer returns the first account key of a legacy or v0 message.
func feePayer(msg []byte) ([]byte, error) {
	off := 0
	if msg[0]&versionPrefixMask != 0 {
		off++
	}
	off += 3 // header: required sigs, readonly signed, readonly unsigned
	nkeys, off, err := readShortVec(msg, off)
	if err != nil {
		return nil, err
	}
	if nkeys < 1 || off+pubkeyLen > len(msg) {
		return nil, errShortTx
	}
	return msg[off : off+pubkeyLen], nil
}

// readShortVec decodes a compact-u16 length at b[off:].
func readShortVec(b []byte, off int) (n, next int, err error) {
	for i := 0; i < 3; i++ {
		if off+i >= len(b) {
			return 0, 0, errShortTx
		}
		c := b[off+i]
		n |= int(c&0x7f) << (7 * i)
		if c&0x80 == 0 {
			return n, off + i + 1, nil
		}
	}
	return 0, 0, errors.New("shortvec overflow")
}
