package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/brojonat/nodekit/client"
	"github.com/brojonat/nodekit/service/config"
	"github.com/brojonat/nodekit/service/signer"
	"github.com/brojonat/nodekit/service/txn"
)

const defaultSubmitPath = "/api/transactions"

func transferFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "recipient",
			Usage:    "Recipient binary address (hex)",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "amount",
			Usage:    "Amount in whole coins, e.g. 1.5",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "data",
			Usage: "Transfer data (at most 64 bytes)",
		},
		&cli.Uint64Flag{
			Name:  "nonce",
			Usage: "Sender account nonce",
		},
		&cli.Uint64Flag{
			Name:  "fee-per-byte",
			Usage: "Fee per encoded byte (defaults to MIN_FEE_PER_BYTE)",
		},
		&cli.BoolFlag{
			Name:  "second",
			Usage: "Co-sign with a second passphrase (NODEKIT_SECOND_PASSPHRASE or prompt)",
		},
	}
}

// signedTransfer builds the transfer described by the flags and signs it.
func signedTransfer(c *cli.Context, cfg *config.Config) (*txn.Transaction, error) {
	recipient, err := signer.ParseAddress(c.String("recipient"))
	if err != nil {
		return nil, err
	}
	amount, err := txn.ParseAmount(c.String("amount"))
	if err != nil {
		return nil, err
	}

	feePerByte := cfg.MinFeePerByte
	if c.IsSet("fee-per-byte") {
		feePerByte = c.Uint64("fee-per-byte")
	}

	tx := txn.NewTransfer(amount, recipient, c.String("data"), c.Uint64("nonce"), nil)
	store := passphraseStore{withSecond: c.Bool("second")}
	return client.SignWithStore(c.Context, store, tx, cfg.NetworkID, feePerByte)
}

type signedOutput struct {
	ID          string          `json:"id"`
	Fee         string          `json:"fee"`
	Bytes       string          `json:"bytes"`
	Transaction txn.RequestBody `json:"transaction"`
}

func newSignedOutput(tx *txn.Transaction) signedOutput {
	return signedOutput{
		ID:          tx.ID,
		Fee:         txn.FormatAmount(tx.Fee),
		Bytes:       hex.EncodeToString(txn.CanonicalBytes(tx)),
		Transaction: tx.RequestOptions(),
	}
}

func txSignCommand() *cli.Command {
	return &cli.Command{
		Name:  "sign",
		Usage: "Sign a transfer offline and print it",
		Flags: transferFlags(),
		Action: func(c *cli.Context) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			signed, err := signedTransfer(c, cfg)
			if err != nil {
				return fmt.Errorf("failed to sign transaction: %w", err)
			}
			return outputJSON(c.App.Writer, newSignedOutput(signed))
		},
	}
}

func txVerifyCommand() *cli.Command {
	return &cli.Command{
		Name:      "verify",
		Usage:     "Decode canonical transaction bytes and verify the sender signature",
		ArgsUsage: "HEX",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "second-public-key",
				Usage: "Also verify the co-signature against this public key (hex)",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: transaction bytes (hex)")
			}
			raw, err := hex.DecodeString(strings.TrimSpace(c.Args().First()))
			if err != nil {
				return fmt.Errorf("failed to decode hex: %w", err)
			}
			tx, err := txn.Decode(raw)
			if err != nil {
				return err
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			if !signer.Verify(tx, cfg.NetworkID) {
				return fmt.Errorf("signature is not valid for network %s", cfg.NetworkID)
			}
			if spk := c.String("second-public-key"); spk != "" {
				pub, err := hex.DecodeString(spk)
				if err != nil {
					return fmt.Errorf("failed to decode second public key: %w", err)
				}
				if !signer.VerifySecond(tx, cfg.NetworkID, pub) {
					return fmt.Errorf("second signature is not valid")
				}
			}

			tx.ID = signer.TransactionID(tx)
			if c.Bool("json") {
				return outputJSON(c.App.Writer, newSignedOutput(tx))
			}
			fmt.Fprintf(c.App.Writer, "✓ Signature valid\n")
			fmt.Fprintf(c.App.Writer, "  ID:     %s\n", tx.ID)
			fmt.Fprintf(c.App.Writer, "  Sender: %s\n", hex.EncodeToString(tx.SenderPublicKey))
			fmt.Fprintf(c.App.Writer, "  Fee:    %s\n", txn.FormatAmount(tx.Fee))
			return nil
		},
	}
}

func txSendCommand() *cli.Command {
	flags := append(transferFlags(),
		&cli.StringFlag{
			Name:  "path",
			Usage: "Submission path on the node",
			Value: defaultSubmitPath,
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "Overall submission timeout",
			Value: 30 * time.Second,
		},
	)
	return &cli.Command{
		Name:  "send",
		Usage: "Sign a transfer and submit it to the first responsive node",
		Flags: flags,
		Action: func(c *cli.Context) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			signed, err := signedTransfer(c, cfg)
			if err != nil {
				return fmt.Errorf("failed to sign transaction: %w", err)
			}

			svc, err := newService(c, cfg)
			if err != nil {
				return err
			}
			defer svc.Close()

			ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
			defer cancel()

			id, err := client.SubmitTransaction(ctx, svc, c.String("path"), signed)
			if err != nil {
				return fmt.Errorf("failed to submit transaction: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(c.App.Writer, map[string]string{"id": id})
			}
			fmt.Fprintf(c.App.Writer, "✓ Transaction submitted: %s\n", id)
			return nil
		},
	}
}

func keysShowCommand() *cli.Command {
	return &cli.Command{
		Name:  "show",
		Usage: "Derive the key pair of the passphrase and print its public identity",
		Action: func(c *cli.Context) error {
			secret, err := passphraseStore{}.Secret(c.Context)
			if err != nil {
				return err
			}
			kp, err := signer.DeriveKeyPair(secret)
			if err != nil {
				return err
			}
			defer kp.Wipe()

			pub := kp.PublicKey()
			out := map[string]string{
				"public_key":        kp.PublicKeyHex(),
				"public_key_base58": kp.PublicKeyBase58(),
				"address":           hex.EncodeToString(signer.Address(pub)),
				"legacy_address":    signer.LegacyAddress(pub),
			}
			if c.Bool("json") {
				return outputJSON(c.App.Writer, out)
			}
			fmt.Fprintf(c.App.Writer, "Public key:     %s\n", out["public_key"])
			fmt.Fprintf(c.App.Writer, "Base58:         %s\n", out["public_key_base58"])
			fmt.Fprintf(c.App.Writer, "Address:        %s\n", out["address"])
			fmt.Fprintf(c.App.Writer, "Legacy address: %s\n", out["legacy_address"])
			return nil
		},
	}
}
