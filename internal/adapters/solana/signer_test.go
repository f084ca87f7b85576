package solana

import (
	"context"
	"crypto/ed25519"
	"errors"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/dexscalper/internal/domain"
)

// appendShortVec encodes n as compact-u16.
func appendShortVec(b []byte, n int) []byte {
	for {
		c := byte(n & 0x7f)
		n >>= 7
		if n == 0 {
			return append(b, c)
		}
		b = append(b, c|0x80)
	}
}

func newTestKey(t *testing.T) ed25519.PrivateKey {
	t.Helper()
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = byte(i + 1)
	}
	return ed25519.NewKeyFromSeed(seed)
}

// buildTx arma una transacción sin firmar: 1 slot de firma vacío y un
// mensaje con payer como primera cuenta.
func buildTx(payer []byte, versioned bool) []byte {
	tx := appendShortVec(nil, 1)
	tx = append(tx, make([]byte, signatureLen)...)
	if versioned {
		tx = append(tx, versionPrefixMask)
	}
	tx = append(tx, 1, 0, 1) // header
	tx = appendShortVec(tx, 2)
	tx = append(tx, payer...)
	tx = append(tx, make([]byte, pubkeyLen)...) // program
	tx = append(tx, make([]byte, 32)...)        // blockhash
	tx = appendShortVec(tx, 0)                  // instrucciones
	return tx
}

func TestNewKeypairSigner_AcceptsKeypairAndSeed(t *testing.T) {
	priv := newTestKey(t)
	want := base58.Encode(priv.Public().(ed25519.PublicKey))

	full, err := NewKeypairSigner(base58.Encode(priv))
	require.NoError(t, err)
	assert.Equal(t, want, full.Address())

	seed, err := NewKeypairSigner(base58.Encode(priv.Seed()))
	require.NoError(t, err)
	assert.Equal(t, want, seed.Address())
}

func TestNewKeypairSigner_InvalidIsConfiguration(t *testing.T) {
	priv := newTestKey(t)
	tampered := append([]byte(nil), priv...)
	tampered[40] ^= 0xff

	for name, secret := range map[string]string{
		"not base58":      "0OIl",
		"wrong length":    base58.Encode([]byte{1, 2, 3}),
		"mismatched half": base58.Encode(tampered),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := NewKeypairSigner(secret)
			assert.True(t, errors.Is(err, domain.ErrConfiguration), "got %v", err)
		})
	}
}

func TestSign_FillsFirstSlot(t *testing.T) {
	for _, versioned := range []bool{false, true} {
		priv := newTestKey(t)
		pub := priv.Public().(ed25519.PublicKey)
		s, err := NewKeypairSigner(base58.Encode(priv))
		require.NoError(t, err)
		tx := buildTx(pub, versioned)

		signed, err := s.Sign(context.Background(), tx)

		require.NoError(t, err)
		require.Len(t, signed.Raw, len(tx))
		sig := signed.Raw[1 : 1+signatureLen]
		msg := signed.Raw[1+signatureLen:]
		assert.True(t, ed25519.Verify(pub, msg, sig), "versioned=%v", versioned)
		assert.Equal(t, base58.Encode(sig), signed.Signature)
		assert.Equal(t, make([]byte, signatureLen), tx[1:1+signatureLen], "input must not be mutated")
	}
}

func TestSign_WrongPayer(t *testing.T) {
	s, err := NewKeypairSigner(base58.Encode(newTestKey(t)))
	require.NoError(t, err)
	other := make([]byte, pubkeyLen)
	other[0] = 9

	_, err = s.Sign(context.Background(), buildTx(other, false))

	assert.True(t, errors.Is(err, domain.ErrSigning), "got %v", err)
	assert.Equal(t, domain.KindFatal, domain.Classify(err))
}

func TestSign_Malformed(t *testing.T) {
	s, err := NewKeypairSigner(base58.Encode(newTestKey(t)))
	require.NoError(t, err)

	for name, tx := range map[string][]byte{
		"empty":         {},
		"no signatures": {0, 1, 2, 3},
		"truncated":     append([]byte{1}, make([]byte, 10)...),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := s.Sign(context.Background(), tx)
			assert.True(t, errors.Is(err, domain.ErrSigning), "got %v", err)
		})
	}
}

func TestSign_AfterWipeIsUnrecoverable(t *testing.T) {
	priv := newTestKey(t)
	s, err := NewKeypairSigner(base58.Encode(priv))
	require.NoError(t, err)

	s.Wipe()
	_, err = s.Sign(context.Background(), buildTx(priv.Public().(ed25519.PublicKey), false))

	assert.True(t, errors.Is(err, domain.ErrSignerUnrecoverable), "got %v", err)
}

func TestShortVec_RoundTrip(t *testing.T) {
	for _, n := range []int{0, 1, 127, 128, 300, 16383, 16384} {
		b := appendShortVec(nil, n)
		got, next, err := readShortVec(b, 0)
		require.NoError(t, err)
		assert.Equal(t, n, got)
		assert.Equal(t, len(b), next)
	}
}
