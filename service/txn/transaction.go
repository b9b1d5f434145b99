package txn

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"unicode/utf8"
)

// Transaction is the chain-agnostic transaction shape. Signatures are ordered:
// the first is the sender's, an optional second is the co-signature.
type Transaction struct {
	ModuleID        uint32
	AssetID         uint32
	Nonce           uint64
	Fee             uint64
	SenderPublicKey []byte
	Asset           Asset
	Signatures      [][]byte

	// ID is set by signing; it is not part of the canonical bytes.
	ID string
}

// NewTransfer builds an unsigned token transfer.
func NewTransfer(amount uint64, recipient []byte, data string, nonce uint64, senderPublicKey []byte) *Transaction {
	return &Transaction{
		ModuleID:        ModuleToken,
		AssetID:         AssetTransfer,
		Nonce:           nonce,
		SenderPublicKey: senderPublicKey,
		Asset: &TransferAsset{
			Amount:           amount,
			RecipientAddress: recipient,
			Data:             data,
		},
	}
}

// NewSecondPassphraseRegistration builds an unsigned registration of a
// co-signing key.
func NewSecondPassphraseRegistration(secondPublicKey []byte, nonce uint64, senderPublicKey []byte) *Transaction {
	return &Transaction{
		ModuleID:        ModuleKeys,
		AssetID:         AssetRegisterSecondPassphrase,
		Nonce:           nonce,
		SenderPublicKey: senderPublicKey,
		Asset:           &SecondPassphraseAsset{PublicKey: secondPublicKey},
	}
}

// NewDelegateRegistration builds an unsigned delegate registration.
func NewDelegateRegistration(username string, nonce uint64, senderPublicKey []byte) *Transaction {
	return &Transaction{
		ModuleID:        ModuleDPoS,
		AssetID:         AssetRegisterDelegate,
		Nonce:           nonce,
		SenderPublicKey: senderPublicKey,
		Asset:           &DelegateAsset{Username: username},
	}
}

// IsSecondPassphraseRegistration reports whether tx registers a co-signing key.
// Such a transaction is never co-signed itself.
func (tx *Transaction) IsSecondPassphraseRegistration() bool {
	return tx.ModuleID == ModuleKeys && tx.AssetID == AssetRegisterSecondPassphrase
}

// Clone returns a deep copy. Asset values are shared; all asset types in this
// package are treated as immutable once attached.
func (tx *Transaction) Clone() *Transaction {
	c := *tx
	c.SenderPublicKey = append([]byte(nil), tx.SenderPublicKey...)
	if tx.Signatures != nil {
		c.Signatures = make([][]byte, len(tx.Signatures))
		for i, s := range tx.Signatures {
			c.Signatures[i] = append([]byte(nil), s...)
		}
	}
	return &c
}

// Validate checks the structural constraints a node would reject on.
func (tx *Transaction) Validate() error {
	var errs []error

	if len(tx.SenderPublicKey) != 0 && len(tx.SenderPublicKey) != PublicKeyLength {
		errs = append(errs, fmt.Errorf("sender public key must be %d bytes, got %d", PublicKeyLength, len(tx.SenderPublicKey)))
	}
	if IsNilAsset(tx.Asset) {
		return errors.Join(append(errs, errors.New("asset is required"))...)
	}

	switch a := tx.Asset.(type) {
	case *TransferAsset:
		if len(a.RecipientAddress) != AddressLength {
			errs = append(errs, fmt.Errorf("recipient address must be %d bytes, got %d", AddressLength, len(a.RecipientAddress)))
		}
		if len(a.Data) > MaxDataLength {
			errs = append(errs, fmt.Errorf("data must be at most %d bytes", MaxDataLength))
		}
		if !utf8.ValidString(a.Data) {
			errs = append(errs, errors.New("data must be valid utf-8"))
		}
	case *SecondPassphraseAsset:
		if len(a.PublicKey) != PublicKeyLength {
			errs = append(errs, fmt.Errorf("second public key must be %d bytes", PublicKeyLength))
		}
	case *DelegateAsset:
		if a.Username == "" || len(a.Username) > 20 {
			errs = append(errs, errors.New("username must be 1 to 20 characters"))
		}
	}

	return errors.Join(errs...)
}

// RequestBody is the JSON shape nodes accept for a submitted transaction.
type RequestBody struct {
	ModuleID        uint32         `json:"moduleID"`
	AssetID         uint32         `json:"assetID"`
	Nonce           string         `json:"nonce"`
	Fee             string         `json:"fee"`
	SenderPublicKey string         `json:"senderPublicKey"`
	Asset           map[string]any `json:"asset"`
	Signatures      []string       `json:"signatures"`
	ID              string         `json:"id,omitempty"`
}

// RequestOptions renders tx for submission. 64-bit integers are strings so
// they survive JSON consumers that parse numbers as doubles.
func (tx *Transaction) RequestOptions() RequestBody {
	body := RequestBody{
		ModuleID:        tx.ModuleID,
		AssetID:         tx.AssetID,
		Nonce:           strconv.FormatUint(tx.Nonce, 10),
		Fee:             strconv.FormatUint(tx.Fee, 10),
		SenderPublicKey: hex.EncodeToString(tx.SenderPublicKey),
		Signatures:      make([]string, 0, len(tx.Signatures)),
		ID:              tx.ID,
	}
	if tx.Asset != nil {
		body.Asset = tx.Asset.Options()
	}
	for _, s := range tx.Signatures {
		body.Signatures = append(body.Signatures, hex.EncodeToString(s))
	}
	return body
}
