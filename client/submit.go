package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/brojonat/nodekit/service/signer"
	"github.com/brojonat/nodekit/service/txn"
)

// SecretStore hands out the signing passphrase on demand. Nothing in this
// package keeps the secret beyond the call that asked for it.
type SecretStore interface {
	Secret(ctx context.Context) (string, error)
}

// SecondSecretStore is implemented by stores that also hold a co-signing
// passphrase.
type SecondSecretStore interface {
	SecondSecret(ctx context.Context) (string, error)
}

// StaticSecret is a SecretStore for a secret already in memory.
type StaticSecret string

func (s StaticSecret) Secret(context.Context) (string, error) { return string(s), nil }

// SubmitResult is the node's acknowledgement of a submitted transaction.
type SubmitResult struct {
	Envelope
	TransactionID string `json:"transactionId"`
	Data          struct {
		TransactionID string `json:"transactionId"`
	} `json:"data"`
}

// ID returns whichever transaction id field the node filled in.
func (r SubmitResult) ID() string {
	if r.TransactionID != "" {
		return r.TransactionID
	}
	return r.Data.TransactionID
}

// SubmitTransaction posts a signed transaction to path and returns the id the
// node reports, falling back to tx.ID.
func SubmitTransaction(ctx context.Context, s *Service, path string, tx *txn.Transaction) (string, error) {
	if len(tx.Signatures) == 0 {
		return "", fmt.Errorf("transaction is not signed")
	}

	res, err := Call[SubmitResult](ctx, s, Request{
		Method: http.MethodPost,
		Path:   path,
		Body:   map[string]any{"transaction": tx.RequestOptions()},
	})
	if err != nil {
		return "", err
	}
	if id := res.ID(); id != "" {
		return id, nil
	}
	return tx.ID, nil
}

// SignOptions controls SignAndSubmit.
type SignOptions struct {
	NetworkID  signer.NetworkID
	FeePerByte uint64
	Path       string
}

// SignAndSubmit signs tx with the secret from store, sets its fee from
// FeePerByte, signs again over the final fee, and submits it. An empty secret
// yields ErrNotLogged.
func SignAndSubmit(ctx context.Context, s *Service, store SecretStore, tx *txn.Transaction, opts SignOptions) (*txn.Transaction, string, error) {
	signed, err := SignWithStore(ctx, store, tx, opts.NetworkID, opts.FeePerByte)
	if s.metrics != nil {
		s.metrics.RecordTransactionSigned(err)
	}
	if err != nil {
		return nil, "", err
	}

	id, err := SubmitTransaction(ctx, s, opts.Path, signed)
	if err != nil {
		return signed, "", err
	}
	s.logger.InfoContext(ctx, "transaction submitted",
		"chain", s.chain,
		"id", id,
		"fee", signed.Fee,
	)
	return signed, id, nil
}

// SignWithStore derives keys from store and returns a signed copy of tx with
// its fee recomputed at feePerByte. A zero feePerByte keeps tx.Fee.
func SignWithStore(ctx context.Context, store SecretStore, tx *txn.Transaction, networkID signer.NetworkID, feePerByte uint64) (*txn.Transaction, error) {
	if store == nil {
		return nil, ErrNotLogged
	}
	secret, err := store.Secret(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read secret: %w", err)
	}
	if strings.TrimSpace(secret) == "" {
		return nil, ErrNotLogged
	}

	kp, err := signer.DeriveKeyPair(secret)
	if err != nil {
		return nil, err
	}
	defer kp.Wipe()

	var second *signer.KeyPair
	if ss, ok := store.(SecondSecretStore); ok {
		secondSecret, err := ss.SecondSecret(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to read second secret: %w", err)
		}
		if secondSecret != "" {
			second, err = signer.DeriveKeyPair(secondSecret)
			if err != nil {
				return nil, err
			}
			defer second.Wipe()
		}
	}

	signed, err := signer.Sign(tx, kp, networkID, second)
	if err != nil {
		return nil, err
	}
	if feePerByte == 0 {
		return signed, nil
	}

	signed, err = signer.Sign(signer.Recompute(signed, feePerByte), kp, networkID, second)
	if err != nil {
		return nil, err
	}
	if !signer.Verify(signed, networkID) {
		return nil, errors.New("signed transaction failed verification")
	}
	return signed, nil
}
