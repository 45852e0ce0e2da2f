package remitlib

import (
	"errors"
	"fmt"
	"strings"

	"github.com/stellar/go/amount"
	"github.com/stellar/go/keypair"
	"github.com/stellar/go/txnbuild"
)

// Signer holds the sender's key pair. Parse it before touching the network so
// a bad seed costs no round-trip.
type Signer struct {
	kp *keypair.Full
}

func ParseSigner(secret string) (*Signer, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, &CryptoError{Key: "sender secret", Err: errors.New("empty seed")}
	}
	kp, err := keypair.ParseFull(secret)
	if err != nil {
		return nil, &CryptoError{Key: "sender secret", Err: err}
	}
	return &Signer{kp: kp}, nil
}

func (s *Signer) Address() string { return s.kp.Address() }

// Sign adds the single signature over the transaction hash for the network
// identified by passphrase.
func (s *Signer) Sign(u *UnsignedTransaction, passphrase string) (*SignedEnvelope, error) {
	if passphrase == "" {
		return nil, &ConfigError{Field: "network"}
	}
	if src := u.Source(); src != s.Address() {
		return nil, &SigningError{Err: fmt.Errorf("transaction source %s does not match signer %s", src, s.Address())}
	}
	if n := len(u.tx.Signatures()); n != 0 {
		return nil, &SigningError{Err: fmt.Errorf("transaction already carries %d signatures", n)}
	}

	signed, err := u.tx.Sign(passphrase, s.kp)
	if err != nil {
		return nil, &SigningError{Err: err}
	}
	b64, err := signed.Base64()
	if err != nil {
		return nil, &SigningError{Err: err}
	}
	hash, err := signed.HashHex(passphrase)
	if err != nil {
		return nil, &SigningError{Err: err}
	}
	return &SignedEnvelope{tx: signed, xdr: b64, hash: hash}, nil
}

// Sign parses secret and signs u with it.
func Sign(u *UnsignedTransaction, secret, passphrase string) (*SignedEnvelope, error) {
	s, err := ParseSigner(secret)
	if err != nil {
		return nil, err
	}
	return s.Sign(u, passphrase)
}

// SignedEnvelope is the wire-ready transaction.
type SignedEnvelope struct {
	tx   *txnbuild.Transaction
	xdr  string
	hash string
}

// Base64 is the canonical text form posted to the gateway.
func (e *SignedEnvelope) Base64() string { return e.xdr }

// Hash is the hex transaction hash the ledger will report on success.
func (e *SignedEnvelope) Hash() string { return e.hash }

func (e *SignedEnvelope) Sequence() int64 { return e.tx.SequenceNumber() }

func (e *SignedEnvelope) Details() (EnvelopeDetails, error) { return detailsOf(e.tx) }

// EnvelopeDetails is the decoded content of a payment envelope.
type EnvelopeDetails struct {
	Source      string
	Destination string
	Amount      int64
	Asset       string
	Memo        string
	Sequence    int64
	Fee         int64
	Signatures  int
}

func DecodeEnvelope(b64 string) (EnvelopeDetails, error) {
	tx, err := decodeTransaction(b64)
	if err != nil {
		return EnvelopeDetails{}, err
	}
	return detailsOf(tx)
}

// VerifyEnvelope checks that one of the envelope's signatures was made by
// address for the network identified by passphrase.
func VerifyEnvelope(b64, address, passphrase string) error {
	tx, err := decodeTransaction(b64)
	if err != nil {
		return err
	}
	kp, err := keypair.ParseAddress(address)
	if err != nil {
		return &CryptoError{Key: "signer address", Err: err}
	}
	hash, err := tx.Hash(passphrase)
	if err != nil {
		return &SigningError{Err: err}
	}
	for _, sig := range tx.Signatures() {
		if kp.Verify(hash[:], sig.Signature) == nil {
			return nil
		}
	}
	return &SigningError{Err: errors.New("no signature matches the signer on this network")}
}

func decodeTransaction(b64 string) (*txnbuild.Transaction, error) {
	generic, err := txnbuild.TransactionFromXDR(b64)
	if err != nil {
		return nil, &ParseError{What: "envelope", Err: err}
	}
	tx, ok := generic.Transaction()
	if !ok {
		return nil, &ParseError{What: "envelope", Err: errors.New("fee bump envelopes are not supported")}
	}
	return tx, nil
}

func detailsOf(tx *txnbuild.Transaction) (EnvelopeDetails, error) {
	ops := tx.Operations()
	if len(ops) != 1 {
		return EnvelopeDetails{}, &ParseError{What: "envelope", Err: fmt.Errorf("want 1 operation, got %d", len(ops))}
	}
	payment, ok := ops[0].(*txnbuild.Payment)
	if !ok {
		return EnvelopeDetails{}, &ParseError{What: "envelope", Err: fmt.Errorf("operation is %T, not a payment", ops[0])}
	}
	stroops, err := amount.ParseInt64(payment.Amount)
	if err != nil {
		return EnvelopeDetails{}, &ParseError{What: "payment amount", Err: err}
	}

	asset := "native"
	if !payment.Asset.IsNative() {
		asset = payment.Asset.GetCode() + ":" + payment.Asset.GetIssuer()
	}

	var memo string
	if m, ok := tx.Memo().(txnbuild.MemoText); ok {
		memo = string(m)
	}

	return EnvelopeDetails{
		Source:      tx.SourceAccount().AccountID,
		Destination: payment.Destination,
		Amount:      stroops,
		Asset:       asset,
		Memo:        memo,
		Sequence:    tx.SequenceNumber(),
		Fee:         tx.BaseFee(),
		Signatures:  len(tx.Signatures()),
	}, nil
}
