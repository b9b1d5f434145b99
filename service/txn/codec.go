package txn

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of the transaction envelope. The order here is the order on
// the wire and must not change.
const (
	fieldModuleID protowire.Number = iota + 1
	fieldAssetID
	fieldNonce
	fieldFee
	fieldSenderPublicKey
	fieldAsset
	fieldSignatures
)

var ErrMalformed = errors.New("malformed transaction bytes")

// EncodeVarint returns the LEB128 encoding of v.
func EncodeVarint(v uint64) []byte {
	return protowire.AppendVarint(nil, v)
}

// DecodeVarint reads one varint from the front of b and returns the value and
// the number of bytes consumed.
func DecodeVarint(b []byte) (uint64, int, error) {
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, 0, fmt.Errorf("failed to decode varint: %w", protowire.ParseError(n))
	}
	return v, n, nil
}

// CanonicalBytes is the deterministic wire form of tx, signatures included.
func CanonicalBytes(tx *Transaction) []byte {
	return appendTransaction(nil, tx, true)
}

// SigningBytes is the wire form of tx with every signature left out. This is
// what gets signed.
func SigningBytes(tx *Transaction) []byte {
	return appendTransaction(nil, tx, false)
}

func appendTransaction(b []byte, tx *Transaction, withSignatures bool) []byte {
	b = appendUvarintField(b, fieldModuleID, uint64(tx.ModuleID))
	b = appendUvarintField(b, fieldAssetID, uint64(tx.AssetID))
	b = appendUvarintField(b, fieldNonce, tx.Nonce)
	b = appendUvarintField(b, fieldFee, tx.Fee)
	b = appendBytesField(b, fieldSenderPublicKey, tx.SenderPublicKey)

	var asset []byte
	if tx.Asset != nil {
		asset = tx.Asset.Bytes()
	}
	b = appendBytesField(b, fieldAsset, asset)

	if withSignatures {
		for _, sig := range tx.Signatures {
			b = appendBytesField(b, fieldSignatures, sig)
		}
	}
	return b
}

func appendUvarintField(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBytesField(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

// Decode parses canonical bytes back into a Transaction. Fields must appear in
// canonical order; the asset is decoded according to the module and asset ids,
// falling back to RawAsset for unregistered pairs. ID is left empty.
func Decode(b []byte) (*Transaction, error) {
	tx := &Transaction{}
	var assetBytes []byte
	last := protowire.Number(0)

	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: %w", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]

		if num < last || (num == last && num != fieldSignatures) {
			return nil, fmt.Errorf("%w: field %d out of order", ErrMalformed, num)
		}
		last = num

		switch num {
		case fieldModuleID, fieldAssetID, fieldNonce, fieldFee:
			if typ != protowire.VarintType {
				return nil, fmt.Errorf("%w: field %d has wire type %d", ErrMalformed, num, typ)
			}
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: %w", ErrMalformed, protowire.ParseError(n))
			}
			b = b[n:]
			if (num == fieldModuleID || num == fieldAssetID) && v > math.MaxUint32 {
				return nil, fmt.Errorf("%w: field %d overflows uint32", ErrMalformed, num)
			}
			switch num {
			case fieldModuleID:
				tx.ModuleID = uint32(v)
			case fieldAssetID:
				tx.AssetID = uint32(v)
			case fieldNonce:
				tx.Nonce = v
			case fieldFee:
				tx.Fee = v
			}
		case fieldSenderPublicKey, fieldAsset, fieldSignatures:
			if typ != protowire.BytesType {
				return nil, fmt.Errorf("%w: field %d has wire type %d", ErrMalformed, num, typ)
			}
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: %w", ErrMalformed, protowire.ParseError(n))
			}
			b = b[n:]
			v = append([]byte(nil), v...)
			switch num {
			case fieldSenderPublicKey:
				tx.SenderPublicKey = v
			case fieldAsset:
				assetBytes = v
			case fieldSignatures:
				tx.Signatures = append(tx.Signatures, v)
			}
		default:
			return nil, fmt.Errorf("%w: unknown field %d", ErrMalformed, num)
		}
	}

	asset, err := decodeAsset(tx.ModuleID, tx.AssetID, assetBytes)
	if err != nil {
		return nil, err
	}
	tx.Asset = asset
	return tx, nil
}
