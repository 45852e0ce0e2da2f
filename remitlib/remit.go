package remitlib

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// State is a step of a payment run. Runs only move forward; a failure from
// any state goes straight to StateFailed.
type State int

const (
	StateInit State = iota
	StateSequenceFetched
	StateBuilt
	StateSigned
	StateSubmitted
	StateSucceeded
	StateFailed
)

var stateNames = [...]string{
	StateInit:            "init",
	StateSequenceFetched: "sequence-fetched",
	StateBuilt:           "built",
	StateSigned:          "signed",
	StateSubmitted:       "submitted",
	StateSucceeded:       "succeeded",
	StateFailed:          "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// PaymentRequest is what a caller hands to Send. Amount is in stroops; a zero
// Fee means the network minimum.
type PaymentRequest struct {
	SenderSecret    string
	ReceiverAddress string
	Amount          int64
	Memo            string
	Fee             int64
	// DryRun stops after signing; nothing is submitted.
	DryRun bool
}

// Receipt describes how far a run got. Hash is known once the envelope is
// signed, Ledger only after the gateway accepted it.
type Receipt struct {
	RunID    string
	State    State
	Sender   string
	Receiver string
	Amount   int64
	Memo     string
	Sequence int64
	Hash     string
	Ledger   int32
	Envelope string
	Outcome  Outcome
}

type sequenceSource interface {
	FetchSequence(ctx context.Context, accountID string) (AccountSequence, error)
}

type envelopeSubmitter interface {
	Submit(ctx context.Context, env *SignedEnvelope) (Outcome, error)
}

// Remitter runs the fetch, build, sign and submit pipeline for one payment
// at a time per sender. Running two payments from the same sender at once is
// unsafe: both may read the same sequence number.
type Remitter struct {
	passphrase string
	fetcher    sequenceSource
	submitter  envelopeSubmitter
	observer   Observer
}

type Option func(*Remitter)

func WithRetryPolicy(p RetryPolicy) Option {
	return func(r *Remitter) {
		if f, ok := r.fetcher.(*SequenceFetcher); ok {
			f.Retry = p
		}
	}
}

func WithObserver(o Observer) Option {
	return func(r *Remitter) {
		if o != nil {
			r.observer = o
		}
	}
}

func NewRemitter(g *Gateway, passphrase string, opts ...Option) *Remitter {
	r := &Remitter{
		passphrase: passphrase,
		fetcher:    NewSequenceFetcher(g, DefaultRetryPolicy()),
		submitter:  NewSubmitter(g),
		observer:   NopObserver{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Send runs one payment. Keys and the intent are validated before the first
// request goes out. On failure the returned error is a *StageError and the
// receipt records the state reached.
func (r *Remitter) Send(ctx context.Context, req PaymentRequest) (*Receipt, error) {
	rc := &Receipt{
		RunID:    uuid.NewString(),
		State:    StateInit,
		Receiver: req.ReceiverAddress,
		Amount:   req.Amount,
		Memo:     req.Memo,
	}
	logger := log.WithField("run_id", rc.RunID)

	fail := func(step string, err error) (*Receipt, error) {
		reached := rc.State
		rc.State = StateFailed
		logger.WithFields(logrus.Fields{"state": reached, "step": step}).WithError(err).Debug("payment failed")
		return rc, &StageError{Reached: reached, Step: step, Err: err}
	}

	signer, err := ParseSigner(req.SenderSecret)
	if err != nil {
		return fail("validate sender", err)
	}
	rc.Sender = signer.Address()

	intent, err := NewPaymentIntent(signer.Address(), req.ReceiverAddress, req.Amount, req.Memo, req.Fee)
	if err != nil {
		return fail("validate payment", err)
	}

	logger.WithField("account", rc.Sender).Info("fetching sender sequence")
	seq, err := r.fetcher.FetchSequence(ctx, signer.Address())
	if err != nil {
		return fail("fetch sequence", err)
	}
	rc.State = StateSequenceFetched

	tx, err := Build(intent, seq)
	if err != nil {
		return fail("build transaction", err)
	}
	rc.State = StateBuilt
	rc.Sequence = tx.Sequence()

	env, err := signer.Sign(tx, r.passphrase)
	if err != nil {
		return fail("sign transaction", err)
	}
	rc.State = StateSigned
	rc.Hash = env.Hash()
	rc.Envelope = env.Base64()

	if req.DryRun {
		logger.WithField("hash", rc.Hash).Info("dry run, not submitting")
		return rc, nil
	}

	logger.WithFields(logrus.Fields{"sequence": rc.Sequence, "hash": rc.Hash}).Info("submitting transaction")
	r.observer.TransactionAttempted()
	started := time.Now()
	outcome, err := r.submitter.Submit(ctx, env)
	r.observer.ObserveSubmission(time.Since(started))
	if err != nil {
		r.observer.TransactionFailed()
		return fail("submit transaction", err)
	}
	rc.State = StateSubmitted
	rc.Outcome = outcome

	if err := outcome.Err(); err != nil {
		r.observer.TransactionFailed()
		return fail("submit transaction", err)
	}
	r.observer.TransactionSucceeded()

	if outcome.Hash != rc.Hash {
		logger.Warnf("gateway reported hash %s, expected %s", outcome.Hash, rc.Hash)
	}
	rc.Hash = outcome.Hash
	rc.Ledger = outcome.Ledger
	rc.State = StateSucceeded
	logger.WithFields(logrus.Fields{"hash": rc.Hash, "ledger": rc.Ledger}).Info("transaction submitted")

	return rc, nil
}
