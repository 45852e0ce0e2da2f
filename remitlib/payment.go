package remitlib

import (
	"fmt"
	"unicode/utf8"

	"github.com/stellar/go/amount"
	"github.com/stellar/go/keypair"
	"github.com/stellar/go/txnbuild"
)

// PaymentIntent is one native payment, amounts in stroops. A zero Fee means
// the network minimum.
type PaymentIntent struct {
	SenderAddress   string
	ReceiverAddress string
	Amount          int64
	Memo            string
	Fee             int64
}

func NewPaymentIntent(sender, receiver string, stroops int64, memo string, fee int64) (PaymentIntent, error) {
	intent := PaymentIntent{
		SenderAddress:   sender,
		ReceiverAddress: receiver,
		Amount:          stroops,
		Memo:            memo,
		Fee:             fee,
	}
	if err := intent.Validate(); err != nil {
		return PaymentIntent{}, err
	}
	return intent, nil
}

// Validate checks everything that can be checked without the network.
func (p PaymentIntent) Validate() error {
	if p.Amount <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidAmount, p.Amount)
	}
	if len(p.Memo) > MaxMemoBytes {
		return fmt.Errorf("%w: %d bytes, at most %d allowed", ErrInvalidMemo, len(p.Memo), MaxMemoBytes)
	}
	if !utf8.ValidString(p.Memo) {
		return fmt.Errorf("%w: not valid UTF-8", ErrInvalidMemo)
	}
	if p.Fee != 0 && p.Fee < MinimumFee {
		return fmt.Errorf("%w: %d < %d", ErrInvalidFee, p.Fee, MinimumFee)
	}
	if _, err := keypair.ParseAddress(p.SenderAddress); err != nil {
		return &CryptoError{Key: "sender address", Err: err}
	}
	if _, err := keypair.ParseAddress(p.ReceiverAddress); err != nil {
		return &CryptoError{Key: "receiver address", Err: err}
	}
	return nil
}

func (p PaymentIntent) fee() int64 {
	if p.Fee == 0 {
		return MinimumFee
	}
	return p.Fee
}

// UnsignedTransaction is a single-payment transaction ready to be signed.
type UnsignedTransaction struct {
	tx *txnbuild.Transaction
}

func (u *UnsignedTransaction) Sequence() int64 { return u.tx.SequenceNumber() }

func (u *UnsignedTransaction) Source() string { return u.tx.SourceAccount().AccountID }

func (u *UnsignedTransaction) Base64() (string, error) { return u.tx.Base64() }

// Build wraps the payment into a transaction using seq.Sequence+1. Identical
// arguments always yield byte-identical transactions.
func Build(intent PaymentIntent, seq AccountSequence) (*UnsignedTransaction, error) {
	if err := intent.Validate(); err != nil {
		return nil, err
	}
	if seq.Sequence < 0 {
		return nil, fmt.Errorf("negative sequence %d for %s", seq.Sequence, seq.AccountID)
	}
	if seq.AccountID != "" && seq.AccountID != intent.SenderAddress {
		return nil, fmt.Errorf("sequence belongs to %s, not sender %s", seq.AccountID, intent.SenderAddress)
	}

	var memo txnbuild.Memo
	if intent.Memo != "" {
		memo = txnbuild.MemoText(intent.Memo)
	}

	source := txnbuild.NewSimpleAccount(intent.SenderAddress, seq.Sequence)
	tx, err := txnbuild.NewTransaction(
		txnbuild.TransactionParams{
			SourceAccount:        &source,
			IncrementSequenceNum: true,
			BaseFee:              intent.fee(),
			Memo:                 memo,
			Preconditions:        txnbuild.Preconditions{TimeBounds: txnbuild.NewInfiniteTimeout()},
			Operations: []txnbuild.Operation{
				&txnbuild.Payment{
					Destination: intent.ReceiverAddress,
					Amount:      amount.StringFromInt64(intent.Amount),
					Asset:       txnbuild.NativeAsset{},
				},
			},
		},
	)
	if err != nil {
		return nil, fmt.Errorf("build payment transaction: %w", err)
	}
	log.Debugf("transaction built: source=%s sequence=%d fee=%d", intent.SenderAddress, tx.SequenceNumber(), intent.fee())

	return &UnsignedTransaction{tx: tx}, nil
}
