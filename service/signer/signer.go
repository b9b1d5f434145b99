package signer

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"

	"github.com/brojonat/nodekit/service/txn"
)

// Network identifiers of the public Lisk-style networks.
const (
	MainnetNetworkID = "4c09e6a781fc4c7bdb936ee815de8f94190f8a7519becd9de2081832be309a99"
	TestnetNetworkID = "15f0dacc1060e91818224a94286b13aa04279c640bd5d6f193182031d133df7c"
	BetanetNetworkID = "ef3844327d1fd0fc5785291806150c937797bdb34a748c9cd932b7e859e9ca0c"
)

// NetworkID is mixed into every signed digest so a signature for one network
// is never valid on another.
type NetworkID []byte

// ParseNetworkID decodes a 32-byte hex network identifier.
func ParseNetworkID(s string) (NetworkID, error) {
	b, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("failed to decode network identifier: %w", err)
	}
	if len(b) != sha256.Size {
		return nil, fmt.Errorf("network identifier must be %d bytes, got %d", sha256.Size, len(b))
	}
	return NetworkID(b), nil
}

// MustNetworkID is ParseNetworkID for constants.
func MustNetworkID(s string) NetworkID {
	id, err := ParseNetworkID(s)
	if err != nil {
		panic(err)
	}
	return id
}

func (id NetworkID) String() string { return hex.EncodeToString(id) }

// SigningError reports why a transaction could not be signed. The input
// transaction is never modified when it is returned.
type SigningError struct {
	Reason string
	Err    error
}

func (e *SigningError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("signing failed: %s: %v", e.Reason, e.Err)
	}
	return "signing failed: " + e.Reason
}

func (e *SigningError) Unwrap() error { return e.Err }

// Digest is SHA-256(networkID ++ signing bytes of tx).
func Digest(tx *txn.Transaction, networkID NetworkID) [sha256.Size]byte {
	h := sha256.New()
	h.Write(networkID)
	h.Write(txn.SigningBytes(tx))
	var out [sha256.Size]byte
	copy(out[:], h.Sum(nil))
	return out
}

// SecondDigest is SHA-256(networkID ++ canonical bytes of tx carrying only its
// first signature). The co-signature covers the already-signed form.
func SecondDigest(tx *txn.Transaction, networkID NetworkID) [sha256.Size]byte {
	signed := *tx
	signed.Signatures = tx.Signatures[:1]
	h := sha256.New()
	h.Write(networkID)
	h.Write(txn.CanonicalBytes(&signed))
	var out [sha256.Size]byte
	copy(out[:], h.Sum(nil))
	return out
}

// TransactionID is the hex SHA-256 of the full canonical bytes, signatures
// included.
func TransactionID(tx *txn.Transaction) string {
	sum := sha256.Sum256(txn.CanonicalBytes(tx))
	return hex.EncodeToString(sum[:])
}

// Sign returns a signed copy of tx. The sender public key is filled in from
// kp when empty. When second is non-nil and tx is not itself a
// second-passphrase registration, a co-signature is appended. tx is left
// untouched on both success and failure.
func Sign(tx *txn.Transaction, kp *KeyPair, networkID NetworkID, second *KeyPair) (*txn.Transaction, error) {
	if tx == nil {
		return nil, &SigningError{Reason: "transaction is nil"}
	}
	if kp == nil {
		return nil, &SigningError{Reason: "keypair is nil"}
	}
	if len(networkID) == 0 {
		return nil, &SigningError{Reason: "network identifier is empty"}
	}

	signed := tx.Clone()
	signed.Signatures = nil
	signed.ID = ""

	if len(signed.SenderPublicKey) == 0 {
		signed.SenderPublicKey = kp.PublicKey()
	} else if !bytes.Equal(signed.SenderPublicKey, kp.public[:]) {
		return nil, &SigningError{Reason: "sender public key does not match keypair"}
	}

	if err := signed.Validate(); err != nil {
		return nil, &SigningError{Reason: "invalid transaction", Err: err}
	}

	digest := Digest(signed, networkID)

	first, err := kp.sign(digest[:])
	if err != nil {
		return nil, &SigningError{Reason: "primary signature", Err: err}
	}
	signed.Signatures = [][]byte{first}

	if second != nil && !signed.IsSecondPassphraseRegistration() {
		coDigest := SecondDigest(signed, networkID)
		co, err := second.sign(coDigest[:])
		if err != nil {
			return nil, &SigningError{Reason: "second signature", Err: err}
		}
		signed.Signatures = append(signed.Signatures, co)
	}

	signed.ID = TransactionID(signed)
	return signed, nil
}

// Verify reports whether the first signature of tx is valid for its sender
// public key under networkID. Malformed input yields false.
func Verify(tx *txn.Transaction, networkID NetworkID) bool {
	if tx == nil || len(tx.Signatures) == 0 {
		return false
	}
	if !verifiable(tx, tx.SenderPublicKey, 0) {
		return false
	}
	digest := Digest(tx, networkID)
	return verifyDigest(tx.SenderPublicKey, tx.Signatures[0], digest[:])
}

// VerifySecond checks the co-signature of tx against secondPublicKey. The
// co-signature is over the form of tx carrying only the first signature.
func VerifySecond(tx *txn.Transaction, networkID NetworkID, secondPublicKey []byte) bool {
	if tx == nil || len(tx.Signatures) < 2 {
		return false
	}
	if !verifiable(tx, secondPublicKey, 1) {
		return false
	}
	digest := SecondDigest(tx, networkID)
	return verifyDigest(secondPublicKey, tx.Signatures[1], digest[:])
}

// verifiable rejects shapes that cannot carry a valid signature at idx,
// including a typed-nil asset.
func verifiable(tx *txn.Transaction, publicKey []byte, idx int) bool {
	if len(publicKey) != ed25519.PublicKeySize || len(tx.Signatures[idx]) != ed25519.SignatureSize {
		return false
	}
	return !txn.IsNilAsset(tx.Asset)
}

func verifyDigest(publicKey, signature, digest []byte) bool {
	var sig solana.Signature
	copy(sig[:], signature)
	return sig.Verify(solana.PublicKeyFromBytes(publicKey), digest)
}

// Recompute returns a copy of tx with Fee set to the byte length of tx's
// canonical encoding times feePerByte. The copy keeps tx's signatures, which
// are stale once the fee changes, so it must be signed again.
func Recompute(tx *txn.Transaction, feePerByte uint64) *txn.Transaction {
	out := tx.Clone()
	out.Fee = uint64(len(txn.CanonicalBytes(tx))) * feePerByte
	return out
}

// MinimumFee is the fee a node will accept for tx once it carries
// signatureCount signatures. Placeholder signatures stand in so the size
// matches the signed form.
func MinimumFee(tx *txn.Transaction, feePerByte uint64, signatureCount int) uint64 {
	probe := tx.Clone()
	probe.Signatures = make([][]byte, signatureCount)
	for i := range probe.Signatures {
		probe.Signatures[i] = make([]byte, ed25519.SignatureSize)
	}
	return uint64(len(txn.CanonicalBytes(probe))) * feePerByte
}
