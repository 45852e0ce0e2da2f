package remitlib

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

type AccountSequence struct {
	AccountID string
	Sequence  int64
}

type Balance struct {
	AssetType string `json:"asset_type"`
	AssetCode string `json:"asset_code,omitempty"`
	Issuer    string `json:"asset_issuer,omitempty"`
	Balance   string `json:"balance"`
}

type Account struct {
	AccountID string    `json:"account_id"`
	Sequence  int64     `json:"sequence,string"`
	Balances  []Balance `json:"balances"`
}

type accountResponse struct {
	AccountID string    `json:"account_id"`
	Sequence  *string   `json:"sequence"`
	Balances  []Balance `json:"balances"`
}

// SequenceFetcher reads accounts from the gateway. 5xx answers and transport
// failures are retried per Retry; 4xx answers and bad bodies are not.
type SequenceFetcher struct {
	Gateway *Gateway
	Retry   RetryPolicy
}

func NewSequenceFetcher(g *Gateway, p RetryPolicy) *SequenceFetcher {
	return &SequenceFetcher{Gateway: g, Retry: p}
}

func (f *SequenceFetcher) FetchSequence(ctx context.Context, accountID string) (AccountSequence, error) {
	account, err := f.FetchAccount(ctx, accountID)
	if err != nil {
		return AccountSequence{}, err
	}
	return AccountSequence{AccountID: account.AccountID, Sequence: account.Sequence}, nil
}

func (f *SequenceFetcher) FetchAccount(ctx context.Context, accountID string) (Account, error) {
	u, err := f.Gateway.endpoint("accounts", accountID)
	if err != nil {
		return Account{}, err
	}

	var body []byte
	attempts := 0
	op := func() error {
		attempts++
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Accept", "application/json")

		status, b, err := f.Gateway.do(req)
		if err != nil {
			if isTransient(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		if status/100 == 2 {
			body = b
			return nil
		}

		se := &HTTPStatusError{Method: http.MethodGet, URL: u, Status: status, Body: string(b)}
		if se.Transient() {
			return se
		}
		return backoff.Permanent(se)
	}
	notify := func(err error, wait time.Duration) {
		log.WithFields(logrus.Fields{
			"account": accountID,
			"attempt": attempts,
			"wait":    wait,
		}).Debugf("account fetch failed, retrying: %v", err)
	}

	if err := backoff.RetryNotify(op, f.Retry.backOff(ctx), notify); err != nil {
		if isTransient(err) {
			return Account{}, &RetryExhaustedError{Attempts: attempts, Last: err}
		}
		return Account{}, err
	}

	log.WithFields(logrus.Fields{"account": accountID, "attempts": attempts}).Debug("account loaded")
	return parseAccount(body, accountID)
}

func parseAccount(body []byte, accountID string) (Account, error) {
	var r accountResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return Account{}, &ParseError{What: "account response", Body: string(body), Err: err}
	}
	if r.Sequence == nil {
		return Account{}, &ParseError{What: "account response", Body: string(body), Err: errors.New("missing `sequence`")}
	}
	seq, err := strconv.ParseInt(*r.Sequence, 10, 64)
	if err != nil {
		return Account{}, &ParseError{What: "account sequence", Body: string(body), Err: err}
	}
	if seq < 0 {
		return Account{}, &ParseError{What: "account sequence", Body: string(body), Err: errors.New("negative sequence")}
	}
	if r.AccountID == "" {
		r.AccountID = accountID
	}
	return Account{AccountID: r.AccountID, Sequence: seq, Balances: r.Balances}, nil
}
