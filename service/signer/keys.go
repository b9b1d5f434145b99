package signer

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/gagliardetto/solana-go"
)

// KeyDerivationError reports a secret that cannot produce a keypair.
type KeyDerivationError struct {
	Reason string
}

func (e *KeyDerivationError) Error() string {
	return "key derivation failed: " + e.Reason
}

// KeyPair is an ed25519 keypair derived from a secret passphrase.
type KeyPair struct {
	private solana.PrivateKey
	public  solana.PublicKey
}

// DeriveKeyPair hashes the secret with SHA-256 and uses the digest as the
// ed25519 seed. The same secret always yields the same keypair.
func DeriveKeyPair(secret string) (*KeyPair, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, &KeyDerivationError{Reason: "secret is empty"}
	}
	if !utf8.ValidString(secret) {
		return nil, &KeyDerivationError{Reason: "secret is not valid utf-8"}
	}

	seed := sha256.Sum256([]byte(secret))
	priv := solana.PrivateKey(ed25519.NewKeyFromSeed(seed[:]))
	return &KeyPair{private: priv, public: priv.PublicKey()}, nil
}

// PublicKey returns a copy of the raw 32-byte public key.
func (k *KeyPair) PublicKey() []byte {
	return append([]byte(nil), k.public[:]...)
}

// PublicKeyHex is the lowercase hex form nodes expect.
func (k *KeyPair) PublicKeyHex() string {
	return hex.EncodeToString(k.public[:])
}

// PublicKeyBase58 is the base58 rendering used by explorers.
func (k *KeyPair) PublicKeyBase58() string {
	return k.public.String()
}

// Wipe zeroes the private key. The KeyPair must not be used afterwards.
func (k *KeyPair) Wipe() {
	for i := range k.private {
		k.private[i] = 0
	}
}

func (k *KeyPair) sign(digest []byte) ([]byte, error) {
	if len(k.private) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("private key has %d bytes", len(k.private))
	}
	sig, err := k.private.Sign(digest)
	if err != nil {
		return nil, err
	}
	return sig[:], nil
}

// Address is the 20-byte binary address of a public key: the first 20 bytes
// of its SHA-256 hash.
func Address(publicKey []byte) []byte {
	h := sha256.Sum256(publicKey)
	return append([]byte(nil), h[:20]...)
}

// LegacyAddress renders the "U"-prefixed numeric address: the first eight
// bytes of SHA-256(publicKey), read little-endian, in decimal.
func LegacyAddress(publicKey []byte) string {
	h := sha256.Sum256(publicKey)
	return "U" + strconv.FormatUint(binary.LittleEndian.Uint64(h[:8]), 10)
}

// ParseAddress accepts a hex-encoded binary address.
func ParseAddress(s string) ([]byte, error) {
	b, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("failed to decode address: %w", err)
	}
	if len(b) != 20 {
		return nil, fmt.Errorf("address must be 20 bytes, got %d", len(b))
	}
	return b, nil
}
