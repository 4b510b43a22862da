// memo.go - ECDH-sealed memos carrying note secrets through public logs.
//
// A memo seals the four secrets a recipient needs to reconstruct a note
// (amount, blinding, secret, nullifier preimage) to their Baby Jubjub key.
// The wire format is fixed length so ciphertexts are indistinguishable:
//
//	| ephemeral pub x (32B) | ephemeral pub y (32B) | nonce (12B) | ct+tag |
//
// Every decryption failure collapses into the single ErrMemoReject so a scan
// over candidate memos leaks nothing about why one was not ours.

package memo

import (
	"crypto/cipher"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"math/big"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"zktoken/internal/curve"
	"zktoken/internal/keys"
	"zktoken/internal/zkhash"
)

const (
	// HKDFInfo is the domain-separation string for the memo key derivation.
	HKDFInfo = "zktoken-memo-v1"

	pointBytes     = 32
	nonceBytes     = chacha20poly1305.NonceSize
	fieldSlots     = 4
	plaintextBytes = fieldSlots * 32

	// MemoBytes is the total sealed length, independent of content.
	MemoBytes = 2*pointBytes + nonceBytes + plaintextBytes + chacha20poly1305.Overhead
)

// ErrMemoReject is the only error Decrypt returns: wrong length, bad curve
// point, tag mismatch and malformed plaintext are deliberately
// indistinguishable.
var ErrMemoReject = errors.New("memo: reject")

// Secrets is the fixed-layout memo plaintext.
type Secrets struct {
	Amount            uint64
	Blinding          *big.Int
	Secret            *big.Int
	NullifierPreimage *big.Int
}

// Encrypt seals s to the recipient key. A fresh ephemeral keypair and nonce
// are sampled from rng per memo; the AEAD key is HKDF-SHA-256 over the
// big-endian x-coordinate of the shared point.
func Encrypt(rng io.Reader, s Secrets, recipient curve.Point) ([]byte, error) {
	if err := curve.Validate(recipient); err != nil {
		return nil, fmt.Errorf("memo: recipient key: %w", err)
	}
	eph, err := keys.Generate(rng)
	if err != nil {
		return nil, fmt.Errorf("memo: ephemeral key: %w", err)
	}
	shared, err := curve.ScalarMul(eph.Priv, recipient)
	if err != nil {
		return nil, fmt.Errorf("memo: shared point: %w", err)
	}
	aead, err := aeadFromShared(shared)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, nonceBytes)
	if _, err := io.ReadFull(rng, nonce); err != nil {
		return nil, fmt.Errorf("memo: nonce: %w", err)
	}

	plaintext, err := encodeSecrets(s)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, MemoBytes)
	out = append(out, fieldTo32(eph.Pub.XBig())...)
	out = append(out, fieldTo32(eph.Pub.YBig())...)
	out = append(out, nonce...)
	out = aead.Seal(out, nonce, plaintext, nil)
	return out, nil
}

// Decrypt opens a memo with the recipient's private scalar. Any failure
// returns ErrMemoReject.
func Decrypt(sealed []byte, priv *big.Int) (Secrets, error) {
	if len(sealed) != MemoBytes {
		return Secrets{}, ErrMemoReject
	}
	ephX := new(big.Int).SetBytes(sealed[:pointBytes])
	ephY := new(big.Int).SetBytes(sealed[pointBytes : 2*pointBytes])
	if ephX.Cmp(zkhash.Modulus()) >= 0 || ephY.Cmp(zkhash.Modulus()) >= 0 {
		return Secrets{}, ErrMemoReject
	}
	eph := curve.FromBig(ephX, ephY)
	if curve.Validate(eph) != nil {
		return Secrets{}, ErrMemoReject
	}
	shared, err := curve.ScalarMul(priv, eph)
	if err != nil {
		return Secrets{}, ErrMemoReject
	}
	aead, err := aeadFromShared(shared)
	if err != nil {
		return Secrets{}, ErrMemoReject
	}
	nonce := sealed[2*pointBytes : 2*pointBytes+nonceBytes]
	plaintext, err := aead.Open(nil, nonce, sealed[2*pointBytes+nonceBytes:], nil)
	if err != nil {
		return Secrets{}, ErrMemoReject
	}
	s, err := decodeSecrets(plaintext)
	if err != nil {
		return Secrets{}, ErrMemoReject
	}
	return s, nil
}

func aeadFromShared(shared curve.Point) (cipher.AEAD, error) {
	kdf := hkdf.New(sha256.New, fieldTo32(shared.XBig()), nil, []byte(HKDFInfo))
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("memo: hkdf: %w", err)
	}
	return chacha20poly1305.New(key)
}

// encodeSecrets packs the four scalars as 32-byte big-endian words.
func encodeSecrets(s Secrets) ([]byte, error) {
	if s.Blinding == nil || s.Secret == nil || s.NullifierPreimage == nil {
		return nil, errors.New("memo: nil secret field")
	}
	out := make([]byte, 0, plaintextBytes)
	out = append(out, fieldTo32(new(big.Int).SetUint64(s.Amount))...)
	out = append(out, fieldTo32(s.Blinding)...)
	out = append(out, fieldTo32(s.Secret)...)
	out = append(out, fieldTo32(s.NullifierPreimage)...)
	return out, nil
}

func decodeSecrets(plaintext []byte) (Secrets, error) {
	if len(plaintext) != plaintextBytes {
		return Secrets{}, errors.New("memo: bad plaintext length")
	}
	amountWord := new(big.Int).SetBytes(plaintext[:32])
	if amountWord.BitLen() > 64 {
		return Secrets{}, errors.New("memo: amount overflows 64 bits")
	}
	return Secrets{
		Amount:            amountWord.Uint64(),
		Blinding:          new(big.Int).SetBytes(plaintext[32:64]),
		Secret:            new(big.Int).SetBytes(plaintext[64:96]),
		NullifierPreimage: new(big.Int).SetBytes(plaintext[96:128]),
	}, nil
}

func fieldTo32(v *big.Int) []byte {
	buf := make([]byte, 32)
	v.FillBytes(buf)
	return buf
}
