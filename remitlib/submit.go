package remitlib

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"
)

type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota + 1
	OutcomeRejected
	OutcomeTransportError
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeRejected:
		return "rejected"
	case OutcomeTransportError:
		return "transport-error"
	}
	return "unknown"
}

// Outcome is the classified answer to a submission.
//
// Success carries Hash and Ledger. Rejected carries the HTTP Status and Body,
// the result codes when present, and an Action when the code is one we
// recognize. TransportError carries Transport, and Status when the gateway
// answered 504; whether such an envelope was applied is unknown, so it is
// never reported as retryable.
type Outcome struct {
	Kind OutcomeKind

	Hash   string
	Ledger int32

	Status         int
	Code           string
	OperationCodes []string
	Action         string
	Detail         string
	Body           string
	RetryPipeline  bool

	Transport *TransportError
}

// Err maps the outcome onto the error taxonomy; nil for success.
func (o Outcome) Err() error {
	switch o.Kind {
	case OutcomeSuccess:
		return nil
	case OutcomeTransportError:
		return o.Transport
	case OutcomeRejected:
		if o.Action != "" {
			return &LedgerRejection{
				Status:         o.Status,
				Code:           o.Code,
				OperationCodes: o.OperationCodes,
				Action:         o.Action,
				Retryable:      o.RetryPipeline,
			}
		}
		return &UnclassifiedRejection{
			Status:         o.Status,
			Code:           o.Code,
			OperationCodes: o.OperationCodes,
			Body:           o.Body,
		}
	}
	return errors.New("empty submission outcome")
}

// Retryable reports whether building a new transaction from a freshly fetched
// sequence can succeed where this one failed.
func (o Outcome) Retryable() bool {
	return o.Kind == OutcomeRejected && o.RetryPipeline
}

type rejection struct {
	action    string
	retryable bool
}

var transactionCodes = map[string]rejection{
	"tx_bad_seq":              {"stale sequence, re-fetch and retry", true},
	"tx_insufficient_balance": {"insufficient balance, fund the account", false},
	"tx_insufficient_fee":     {"fee below the current network rate, raise the fee and retry", true},
	"tx_bad_auth":             {"bad signature, check the sender secret and network", false},
	"tx_no_source_account":    {"sender account does not exist, create and fund it first", false},
	"tx_too_early":            {"transaction not yet valid, retry later", true},
	"tx_too_late":             {"transaction expired, rebuild and retry", true},
}

var operationCodes = map[string]rejection{
	"op_underfunded":    {"insufficient balance, fund the account", false},
	"op_no_destination": {"receiver account does not exist, create it first", false},
	"op_line_full":      {"receiver cannot hold more of the asset", false},
	"op_malformed":      {"malformed payment operation", false},
}

type problemResponse struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Extras struct {
		ResultCodes struct {
			Transaction string   `json:"transaction"`
			Operations  []string `json:"operations"`
		} `json:"result_codes"`
	} `json:"extras"`
}

type successResponse struct {
	Hash   string `json:"hash"`
	Ledger int32  `json:"ledger"`
}

// Submitter posts signed envelopes. It never resends: a second post of an
// applied envelope cannot help, and a rebuilt one would be a second payment.
type Submitter struct {
	Gateway *Gateway
}

func NewSubmitter(g *Gateway) *Submitter {
	return &Submitter{Gateway: g}
}

// Submit returns an error only when the outcome cannot be classified at all,
// e.g. a 2xx answer without a hash.
func (s *Submitter) Submit(ctx context.Context, env *SignedEnvelope) (Outcome, error) {
	u, err := s.Gateway.endpoint("transactions")
	if err != nil {
		return Outcome{}, err
	}

	form := url.Values{"tx": {env.Base64()}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader(form.Encode()))
	if err != nil {
		return Outcome{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	log.WithField("hash", env.Hash()).Debug("> submitting transaction")
	status, body, err := s.Gateway.do(req)
	if err != nil {
		var te *TransportError
		if errors.As(err, &te) {
			return Outcome{Kind: OutcomeTransportError, Transport: te}, nil
		}
		return Outcome{}, err
	}

	if status/100 == 2 {
		return parseSuccess(body)
	}
	if status == http.StatusGatewayTimeout {
		log.WithField("hash", env.Hash()).Warn("< submission timed out at the gateway, outcome unknown")
		return Outcome{
			Kind:   OutcomeTransportError,
			Status: status,
			Body:   string(body),
			Transport: &TransportError{
				Op:  req.Method + " " + req.URL.Redacted(),
				Err: fmt.Errorf("%w: %s", ErrGatewayTimeout, abbreviate(string(body))),
			},
		}, nil
	}

	outcome := classify(status, body)
	log.WithFields(logrus.Fields{
		"status": status,
		"code":   outcome.Code,
	}).Debug("< transaction rejected")
	return outcome, nil
}

func parseSuccess(body []byte) (Outcome, error) {
	var r successResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return Outcome{}, &ParseError{What: "submission response", Body: string(body), Err: err}
	}
	if r.Hash == "" {
		return Outcome{}, &ParseError{What: "submission response", Body: string(body), Err: errors.New("missing `hash`")}
	}
	log.Debugf("< transaction, 'payment' posted in ledger: %v", r.Ledger)
	return Outcome{Kind: OutcomeSuccess, Hash: r.Hash, Ledger: r.Ledger}, nil
}

// classify reads extras.result_codes from a problem body. Bodies that are not
// JSON, or carry no code, end up as unclassified rejections.
func classify(status int, body []byte) Outcome {
	outcome := Outcome{Kind: OutcomeRejected, Status: status, Body: string(body)}

	var p problemResponse
	if err := json.Unmarshal(body, &p); err != nil {
		return outcome
	}
	outcome.Code = p.Extras.ResultCodes.Transaction
	outcome.OperationCodes = p.Extras.ResultCodes.Operations
	outcome.Detail = strings.TrimSpace(p.Title + ": " + p.Detail)
	outcome.Detail = strings.Trim(outcome.Detail, ": ")

	if r, ok := transactionCodes[outcome.Code]; ok {
		outcome.Action, outcome.RetryPipeline = r.action, r.retryable
		return outcome
	}
	if outcome.Code == "tx_failed" {
		for _, c := range outcome.OperationCodes {
			if r, ok := operationCodes[c]; ok {
				outcome.Action, outcome.RetryPipeline = r.action, r.retryable
				break
			}
		}
	}
	return outcome
}
