package signer

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brojonat/nodekit/service/txn"
)

const (
	testSecret       = "wagon stock borrow episode laundry kitten salute link globe zero feed marble"
	testSecondSecret = "decide cloth sketch outer vague drama slide goose rail mutual lend thing"
)

var testNet = MustNetworkID(TestnetNetworkID)

func recipient() []byte { return bytes.Repeat([]byte{0x07}, txn.AddressLength) }

func mustKeyPair(t *testing.T, secret string) *KeyPair {
	t.Helper()
	kp, err := DeriveKeyPair(secret)
	require.NoError(t, err)
	return kp
}

func TestDeriveKeyPair_Deterministic(t *testing.T) {
	a := mustKeyPair(t, testSecret)
	b := mustKeyPair(t, testSecret)
	c := mustKeyPair(t, testSecondSecret)

	assert.Equal(t, a.PublicKey(), b.PublicKey())
	assert.NotEqual(t, a.PublicKey(), c.PublicKey())
	assert.Len(t, a.PublicKey(), ed25519.PublicKeySize)

	seed := sha256.Sum256([]byte(testSecret))
	want := ed25519.NewKeyFromSeed(seed[:]).Public().(ed25519.PublicKey)
	assert.Equal(t, []byte(want), a.PublicKey())
	assert.Equal(t, hex.EncodeToString(want), a.PublicKeyHex())
	assert.NotEmpty(t, a.PublicKeyBase58())
}

func TestDeriveKeyPair_Malformed(t *testing.T) {
	for _, secret := range []string{"", "   ", string([]byte{0xff, 0xfe})} {
		_, err := DeriveKeyPair(secret)
		var kerr *KeyDerivationError
		assert.True(t, errors.As(err, &kerr), "secret %q", secret)
	}
}

func TestSignVerify_RoundTrip(t *testing.T) {
	kp := mustKeyPair(t, testSecret)
	amount, err := txn.ParseAmount("1.5")
	require.NoError(t, err)

	tx := txn.NewTransfer(amount, recipient(), "", 1, nil)
	tx.Fee = 100000

	signed, err := Sign(tx, kp, testNet, nil)
	require.NoError(t, err)

	assert.True(t, Verify(signed, testNet))
	assert.Len(t, signed.Signatures, 1)
	assert.Equal(t, kp.PublicKey(), signed.SenderPublicKey)
	assert.Equal(t, TransactionID(signed), signed.ID)
	assert.Len(t, signed.ID, 64)

	assert.Empty(t, tx.Signatures, "input untouched")
	assert.Empty(t, tx.SenderPublicKey, "input untouched")

	again, err := Sign(tx, kp, testNet, nil)
	require.NoError(t, err)
	assert.Equal(t, signed.ID, again.ID, "ed25519 signatures are deterministic")
}

func TestVerify_WrongNetwork(t *testing.T) {
	kp := mustKeyPair(t, testSecret)
	signed, err := Sign(txn.NewTransfer(1, recipient(), "", 0, nil), kp, testNet, nil)
	require.NoError(t, err)

	assert.False(t, Verify(signed, MustNetworkID(MainnetNetworkID)))
}

func TestVerify_TamperDetection(t *testing.T) {
	kp := mustKeyPair(t, testSecret)
	other := mustKeyPair(t, testSecondSecret)

	base := txn.NewTransfer(150000000, recipient(), "memo", 3, nil)
	base.Fee = 2000
	signed, err := Sign(base, kp, testNet, nil)
	require.NoError(t, err)
	require.True(t, Verify(signed, testNet))

	tamper := map[string]func(*txn.Transaction){
		"module":    func(tx *txn.Transaction) { tx.ModuleID++ },
		"asset id":  func(tx *txn.Transaction) { tx.AssetID++ },
		"nonce":     func(tx *txn.Transaction) { tx.Nonce++ },
		"fee":       func(tx *txn.Transaction) { tx.Fee++ },
		"sender":    func(tx *txn.Transaction) { tx.SenderPublicKey = other.PublicKey() },
		"amount":    func(tx *txn.Transaction) { tx.Asset = &txn.TransferAsset{Amount: 1, RecipientAddress: recipient(), Data: "memo"} },
		"recipient": func(tx *txn.Transaction) { tx.Asset = &txn.TransferAsset{Amount: 150000000, RecipientAddress: make([]byte, 20), Data: "memo"} },
		"data":      func(tx *txn.Transaction) { tx.Asset = &txn.TransferAsset{Amount: 150000000, RecipientAddress: recipient(), Data: "memo!"} },
		"signature": func(tx *txn.Transaction) { tx.Signatures[0][0] ^= 0x01 },
	}

	for name, mutate := range tamper {
		t.Run(name, func(t *testing.T) {
			tx := signed.Clone()
			mutate(tx)
			assert.False(t, Verify(tx, testNet))
		})
	}
}

func TestVerify_MalformedNeverPanics(t *testing.T) {
	kp := mustKeyPair(t, testSecret)
	signed, err := Sign(txn.NewTransfer(1, recipient(), "", 0, nil), kp, testNet, nil)
	require.NoError(t, err)

	short := signed.Clone()
	short.Signatures[0] = short.Signatures[0][:10]

	badKey := signed.Clone()
	badKey.SenderPublicKey = []byte{1, 2, 3}

	cases := []*txn.Transaction{
		nil,
		{},
		short,
		badKey,
		{Signatures: [][]byte{nil}},
		{
			SenderPublicKey: kp.PublicKey(),
			Asset:           (*txn.TransferAsset)(nil),
			Signatures:      [][]byte{make([]byte, ed25519.SignatureSize)},
		},
	}
	for _, tx := range cases {
		assert.NotPanics(t, func() { assert.False(t, Verify(tx, testNet)) })
	}
	assert.False(t, Verify(signed, nil))
}

func TestSign_SecondSignature(t *testing.T) {
	kp := mustKeyPair(t, testSecret)
	second := mustKeyPair(t, testSecondSecret)

	signed, err := Sign(txn.NewTransfer(5, recipient(), "", 2, nil), kp, testNet, second)
	require.NoError(t, err)
	require.Len(t, signed.Signatures, 2)

	assert.True(t, Verify(signed, testNet))
	assert.True(t, VerifySecond(signed, testNet, second.PublicKey()))
	assert.False(t, VerifySecond(signed, testNet, kp.PublicKey()))

	// The co-signature covers the bytes carrying the first signature.
	firstOnly := signed.Clone()
	firstOnly.Signatures = firstOnly.Signatures[:1]
	h := sha256.New()
	h.Write(testNet)
	h.Write(txn.CanonicalBytes(firstOnly))
	assert.True(t, ed25519.Verify(second.PublicKey(), h.Sum(nil), signed.Signatures[1]))

	unsigned := Digest(signed, testNet)
	assert.False(t, ed25519.Verify(second.PublicKey(), unsigned[:], signed.Signatures[1]))

	tampered := signed.Clone()
	tampered.Signatures[0] = bytes.Repeat([]byte{0x01}, ed25519.SignatureSize)
	assert.False(t, VerifySecond(tampered, testNet, second.PublicKey()))
}

func TestSign_SecondPassphraseRegistrationNotCoSigned(t *testing.T) {
	kp := mustKeyPair(t, testSecret)
	second := mustKeyPair(t, testSecondSecret)

	reg := txn.NewSecondPassphraseRegistration(second.PublicKey(), 0, nil)
	signed, err := Sign(reg, kp, testNet, second)
	require.NoError(t, err)

	assert.Len(t, signed.Signatures, 1)
	assert.True(t, Verify(signed, testNet))
	assert.False(t, VerifySecond(signed, testNet, second.PublicKey()))
}

func TestSign_AllOrNothing(t *testing.T) {
	kp := mustKeyPair(t, testSecret)
	other := mustKeyPair(t, testSecondSecret)

	tx := txn.NewTransfer(1, recipient(), "", 0, other.PublicKey())
	tx.Signatures = [][]byte{{0xaa}}
	before := txn.CanonicalBytes(tx)

	_, err := Sign(tx, kp, testNet, nil)
	var serr *SigningError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, before, txn.CanonicalBytes(tx))

	_, err = Sign(txn.NewTransfer(1, []byte{1}, "", 0, nil), kp, testNet, nil)
	assert.ErrorAs(t, err, &serr)

	_, err = Sign(nil, kp, testNet, nil)
	assert.ErrorAs(t, err, &serr)

	_, err = Sign(tx, nil, testNet, nil)
	assert.ErrorAs(t, err, &serr)
}

func TestSign_ReplacesExistingSignatures(t *testing.T) {
	kp := mustKeyPair(t, testSecret)
	tx := txn.NewTransfer(1, recipient(), "", 0, kp.PublicKey())
	tx.Signatures = [][]byte{bytes.Repeat([]byte{0x01}, 64), bytes.Repeat([]byte{0x02}, 64)}

	signed, err := Sign(tx, kp, testNet, nil)
	require.NoError(t, err)
	assert.Len(t, signed.Signatures, 1)
	assert.True(t, Verify(signed, testNet))
}

func TestRecompute(t *testing.T) {
	kp := mustKeyPair(t, testSecret)
	tx := txn.NewTransfer(150000000, recipient(), "", 1, kp.PublicKey())

	for _, perByte := range []uint64{0, 1, 1000, 12345} {
		got := Recompute(tx, perByte)
		assert.Equal(t, uint64(len(txn.CanonicalBytes(tx)))*perByte, got.Fee)
		assert.Equal(t, uint64(0), tx.Fee, "input untouched")
	}

	signed, err := Sign(tx, kp, testNet, nil)
	require.NoError(t, err)

	bumped := Recompute(signed, 1000)
	assert.Equal(t, uint64(len(txn.CanonicalBytes(signed)))*1000, bumped.Fee)
	assert.Equal(t, signed.Signatures, bumped.Signatures)
	assert.False(t, Verify(bumped, testNet), "fee is signed, so a recomputed fee needs a new signature")

	resigned, err := Sign(bumped, kp, testNet, nil)
	require.NoError(t, err)
	assert.True(t, Verify(resigned, testNet))
	assert.Equal(t, bumped.Fee, resigned.Fee)
}

func TestMinimumFee(t *testing.T) {
	kp := mustKeyPair(t, testSecret)
	tx := txn.NewTransfer(1, recipient(), "", 0, kp.PublicKey())

	one := MinimumFee(tx, 1000, 1)
	two := MinimumFee(tx, 1000, 2)
	assert.Greater(t, two, one)
	assert.Equal(t, uint64(0), MinimumFee(tx, 0, 1))
}

func TestParseNetworkID(t *testing.T) {
	id, err := ParseNetworkID(MainnetNetworkID)
	require.NoError(t, err)
	assert.Equal(t, MainnetNetworkID, id.String())

	_, err = ParseNetworkID("zz")
	assert.Error(t, err)
	_, err = ParseNetworkID("abcd")
	assert.Error(t, err)
}

func TestAddresses(t *testing.T) {
	kp := mustKeyPair(t, testSecret)
	addr := Address(kp.PublicKey())
	assert.Len(t, addr, 20)

	h := sha256.Sum256(kp.PublicKey())
	assert.Equal(t, h[:20], addr)

	legacy := LegacyAddress(kp.PublicKey())
	assert.Regexp(t, `^U[0-9]+$`, legacy)
	assert.Equal(t, legacy, LegacyAddress(kp.PublicKey()))

	parsed, err := ParseAddress(hex.EncodeToString(addr))
	require.NoError(t, err)
	assert.Equal(t, addr, parsed)

	_, err = ParseAddress("0102")
	assert.Error(t, err)
}

func TestKeyPair_Wipe(t *testing.T) {
	kp := mustKeyPair(t, testSecret)
	kp.Wipe()
	for _, b := range kp.private {
		assert.Zero(t, b)
	}
}
