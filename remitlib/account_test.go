package remitlib

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(b backoff.BackOff) []time.Duration {
	var waits []time.Duration
	for i := 0; i < 20; i++ {
		d := b.NextBackOff()
		waits = append(waits, d)
		if d == backoff.Stop {
			break
		}
	}
	return waits
}

func TestDefaultRetryPolicySchedule(t *testing.T) {
	p := DefaultRetryPolicy()
	assert.Equal(t, 3, p.MaxAttempts)
	assert.Equal(t, []time.Duration{
		300 * time.Millisecond,
		600 * time.Millisecond,
		backoff.Stop,
	}, drain(p.backOff(context.Background())))
}

func TestRetryPolicyCapsDelay(t *testing.T) {
	p := DefaultRetryPolicy()
	p.MaxAttempts = 6
	assert.Equal(t, []time.Duration{
		300 * time.Millisecond,
		600 * time.Millisecond,
		1200 * time.Millisecond,
		2 * time.Second,
		2 * time.Second,
		backoff.Stop,
	}, drain(p.backOff(context.Background())))
}

func TestRetryPolicyStopsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, []time.Duration{backoff.Stop}, drain(DefaultRetryPolicy().backOff(ctx)))
}

func TestFetchSequenceWaitsFollowPolicy(t *testing.T) {
	h := newFakeHorizon(t)
	h.onAccount(reply{http.StatusServiceUnavailable, "unavailable"})

	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	previous := log
	SetLogger(logger)
	t.Cleanup(func() { SetLogger(previous) })

	_, err := NewSequenceFetcher(h.gateway(), DefaultRetryPolicy()).FetchSequence(context.Background(), randomKeypair(t).Address())
	var exhausted *RetryExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)

	var waits []time.Duration
	for _, e := range hook.AllEntries() {
		if w, ok := e.Data["wait"].(time.Duration); ok {
			waits = append(waits, w)
		}
	}
	assert.Equal(t, []time.Duration{300 * time.Millisecond, 600 * time.Millisecond}, waits)
}

func TestFetchSequenceRetriesServerErrors(t *testing.T) {
	h := newFakeHorizon(t)
	id := randomKeypair(t).Address()
	h.onAccount(
		reply{http.StatusServiceUnavailable, "unavailable"},
		reply{http.StatusServiceUnavailable, "unavailable"},
		reply{http.StatusOK, accountBody(id, 100)},
	)

	seq, err := NewSequenceFetcher(h.gateway(), fastRetry()).FetchSequence(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, AccountSequence{AccountID: id, Sequence: 100}, seq)

	accounts, _ := h.calls()
	assert.Equal(t, 3, accounts)
}

func TestFetchSequenceGivesUpAfterBudget(t *testing.T) {
	h := newFakeHorizon(t)
	h.onAccount(reply{http.StatusInternalServerError, "boom"})

	_, err := NewSequenceFetcher(h.gateway(), fastRetry()).FetchSequence(context.Background(), randomKeypair(t).Address())

	var exhausted *RetryExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)

	var se *HTTPStatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusInternalServerError, se.Status)

	accounts, _ := h.calls()
	assert.Equal(t, 3, accounts)
}

func TestFetchSequenceClientErrorIsNotRetried(t *testing.T) {
	h := newFakeHorizon(t)
	h.onAccount(reply{http.StatusNotFound, `{"status":404,"title":"Resource Missing"}`})

	_, err := NewSequenceFetcher(h.gateway(), fastRetry()).FetchSequence(context.Background(), randomKeypair(t).Address())

	var se *HTTPStatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.Status)
	assert.False(t, se.Transient())
	assert.True(t, IsNotFound(err))

	var exhausted *RetryExhaustedError
	assert.False(t, errors.As(err, &exhausted))

	accounts, _ := h.calls()
	assert.Equal(t, 1, accounts)
}

func TestFetchSequenceBadBodies(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "<html>"},
		{"missing sequence", `{"account_id":"x"}`},
		{"numeric sequence", `{"sequence":100}`},
		{"non numeric sequence", `{"sequence":"abc"}`},
		{"negative sequence", `{"sequence":"-1"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newFakeHorizon(t)
			h.onAccount(reply{http.StatusOK, tt.body})

			_, err := NewSequenceFetcher(h.gateway(), fastRetry()).FetchSequence(context.Background(), randomKeypair(t).Address())

			var pe *ParseError
			require.ErrorAs(t, err, &pe)
			accounts, _ := h.calls()
			assert.Equal(t, 1, accounts, "parse errors must not be retried")
		})
	}
}

func TestFetchAccountBalances(t *testing.T) {
	h := newFakeHorizon(t)
	id := randomKeypair(t).Address()
	h.onAccount(reply{http.StatusOK, accountBody(id, 7)})

	account, err := NewSequenceFetcher(h.gateway(), fastRetry()).FetchAccount(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, account.AccountID)
	assert.Equal(t, int64(7), account.Sequence)
	require.Len(t, account.Balances, 1)
	assert.Equal(t, "native", account.Balances[0].AssetType)
	assert.Equal(t, "100.0000000", account.Balances[0].Balance)
}

func TestFetchSequenceRetriesConnectionFailures(t *testing.T) {
	h := newFakeHorizon(t)
	g := h.gateway()
	h.server.Close()

	_, err := NewSequenceFetcher(g, fastRetry()).FetchSequence(context.Background(), randomKeypair(t).Address())

	var exhausted *RetryExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)

	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, TransportConnection, te.Kind())
}

func TestFetchSequenceStopsOnCancel(t *testing.T) {
	h := newFakeHorizon(t)
	h.onAccount(reply{http.StatusServiceUnavailable, "unavailable"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewSequenceFetcher(h.gateway(), DefaultRetryPolicy()).FetchSequence(ctx, randomKeypair(t).Address())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGatewayEndpoint(t *testing.T) {
	u, err := MakeGateway("https://horizon-testnet.stellar.org/", nil).endpoint("accounts", "GABC")
	require.NoError(t, err)
	assert.Equal(t, "https://horizon-testnet.stellar.org/accounts/GABC", u)

	u, err = MakeGateway("http://127.0.0.1:8000/horizon", nil).endpoint("transactions")
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:8000/horizon/transactions", u)

	_, err = MakeGateway("horizon.local", nil).endpoint("transactions")
	var ce *ConfigError
	assert.ErrorAs(t, err, &ce)
}

func TestHTTPClientPacesRequests(t *testing.T) {
	h := newFakeHorizon(t)
	h.onAccount(reply{http.StatusOK, `{"sequence":"1"}`})
	g := MakeGateway(h.server.URL, NewHTTPClient(5*time.Second, 20))
	f := NewSequenceFetcher(g, fastRetry())

	started := time.Now()
	for i := 0; i < 3; i++ {
		_, err := f.FetchSequence(context.Background(), randomKeypair(t).Address())
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(started), 90*time.Millisecond)
}
