package txn

import (
	"encoding/hex"
	"fmt"
	"strconv"

	"google.golang.org/protobuf/encoding/protowire"
)

// Module and asset ids of the supported transaction kinds.
const (
	ModuleToken uint32 = 2
	ModuleKeys  uint32 = 4
	ModuleDPoS  uint32 = 5

	AssetTransfer                 uint32 = 0
	AssetRegisterSecondPassphrase uint32 = 0
	AssetRegisterDelegate         uint32 = 0
)

const (
	AddressLength   = 20
	PublicKeyLength = 32
	MaxDataLength   = 64
)

// Asset is the kind-specific payload of a transaction.
type Asset interface {
	// Bytes is the canonical encoding, embedded as a length-delimited field.
	Bytes() []byte
	// Options is the JSON shape used when submitting to a node.
	Options() map[string]any
}

// TransferAsset moves Amount base units to RecipientAddress.
type TransferAsset struct {
	Amount           uint64
	RecipientAddress []byte
	Data             string
}

func (a *TransferAsset) Bytes() []byte {
	if a == nil {
		return nil
	}
	var b []byte
	b = appendUvarintField(b, 1, a.Amount)
	b = appendBytesField(b, 2, a.RecipientAddress)
	b = appendBytesField(b, 3, []byte(a.Data))
	return b
}

func (a *TransferAsset) Options() map[string]any {
	if a == nil {
		return nil
	}
	return map[string]any{
		"amount":           strconv.FormatUint(a.Amount, 10),
		"recipientAddress": hex.EncodeToString(a.RecipientAddress),
		"data":             a.Data,
	}
}

// SecondPassphraseAsset registers PublicKey as the account's co-signing key.
type SecondPassphraseAsset struct {
	PublicKey []byte
}

func (a *SecondPassphraseAsset) Bytes() []byte {
	if a == nil {
		return nil
	}
	return appendBytesField(nil, 1, a.PublicKey)
}

func (a *SecondPassphraseAsset) Options() map[string]any {
	if a == nil {
		return nil
	}
	return map[string]any{"publicKey": hex.EncodeToString(a.PublicKey)}
}

// DelegateAsset registers the sender as a delegate under Username.
type DelegateAsset struct {
	Username string
}

func (a *DelegateAsset) Bytes() []byte {
	if a == nil {
		return nil
	}
	return appendBytesField(nil, 1, []byte(a.Username))
}

func (a *DelegateAsset) Options() map[string]any {
	if a == nil {
		return nil
	}
	return map[string]any{"username": a.Username}
}

// RawAsset carries asset bytes of a kind this package does not model.
type RawAsset []byte

func (a RawAsset) Bytes() []byte { return []byte(a) }

func (a RawAsset) Options() map[string]any {
	return map[string]any{"raw": hex.EncodeToString(a)}
}

// IsNilAsset reports whether a is nil or a nil pointer of a known kind.
func IsNilAsset(a Asset) bool {
	switch v := a.(type) {
	case nil:
		return true
	case *TransferAsset:
		return v == nil
	case *SecondPassphraseAsset:
		return v == nil
	case *DelegateAsset:
		return v == nil
	case RawAsset:
		return v == nil
	}
	return false
}

type assetKey struct{ module, asset uint32 }

var assetDecoders = map[assetKey]func([]byte) (Asset, error){
	{ModuleToken, AssetTransfer}:               decodeTransfer,
	{ModuleKeys, AssetRegisterSecondPassphrase}: decodeSecondPassphrase,
	{ModuleDPoS, AssetRegisterDelegate}:         decodeDelegate,
}

func decodeAsset(module, asset uint32, b []byte) (Asset, error) {
	dec, ok := assetDecoders[assetKey{module, asset}]
	if !ok {
		if b == nil {
			return nil, nil
		}
		return RawAsset(b), nil
	}
	a, err := dec(b)
	if err != nil {
		return nil, fmt.Errorf("failed to decode asset %d:%d: %w", module, asset, err)
	}
	return a, nil
}

// fieldReader walks a flat message of varint and bytes fields.
type fieldReader struct {
	b []byte
}

func (r *fieldReader) next() (protowire.Number, uint64, []byte, error) {
	num, typ, n := protowire.ConsumeTag(r.b)
	if n < 0 {
		return 0, 0, nil, fmt.Errorf("%w: %w", ErrMalformed, protowire.ParseError(n))
	}
	r.b = r.b[n:]

	switch typ {
	case protowire.VarintType:
		v, n := protowire.ConsumeVarint(r.b)
		if n < 0 {
			return 0, 0, nil, fmt.Errorf("%w: %w", ErrMalformed, protowire.ParseError(n))
		}
		r.b = r.b[n:]
		return num, v, nil, nil
	case protowire.BytesType:
		v, n := protowire.ConsumeBytes(r.b)
		if n < 0 {
			return 0, 0, nil, fmt.Errorf("%w: %w", ErrMalformed, protowire.ParseError(n))
		}
		r.b = r.b[n:]
		return num, 0, append([]byte(nil), v...), nil
	default:
		return 0, 0, nil, fmt.Errorf("%w: unsupported wire type %d", ErrMalformed, typ)
	}
}

func decodeTransfer(b []byte) (Asset, error) {
	a := &TransferAsset{}
	r := &fieldReader{b: b}
	for len(r.b) > 0 {
		num, v, raw, err := r.next()
		if err != nil {
			return nil, err
		}
		switch num {
		case 1:
			a.Amount = v
		case 2:
			a.RecipientAddress = raw
		case 3:
			a.Data = string(raw)
		default:
			return nil, fmt.Errorf("%w: unknown transfer field %d", ErrMalformed, num)
		}
	}
	return a, nil
}

func decodeSecondPassphrase(b []byte) (Asset, error) {
	a := &SecondPassphraseAsset{}
	r := &fieldReader{b: b}
	for len(r.b) > 0 {
		num, _, raw, err := r.next()
		if err != nil {
			return nil, err
		}
		if num != 1 {
			return nil, fmt.Errorf("%w: unknown field %d", ErrMalformed, num)
		}
		a.PublicKey = raw
	}
	return a, nil
}

func decodeDelegate(b []byte) (Asset, error) {
	a := &DelegateAsset{}
	r := &fieldReader{b: b}
	for len(r.b) > 0 {
		num, _, raw, err := r.next()
		if err != nil {
			return nil, err
		}
		if num != 1 {
			return nil, fmt.Errorf("%w: unknown field %d", ErrMalformed, num)
		}
		a.Username = string(raw)
	}
	return a, nil
}
