package monitor

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsCount(t *testing.T) {
	m := NewMetrics()

	m.TransactionAttempted()
	m.TransactionAttempted()
	m.TransactionSucceeded()
	m.TransactionFailed()
	m.ObserveSubmission(250 * time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.attempts))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.successes))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures))
	assert.Equal(t, 1, testutil.CollectAndCount(m.duration))

	expected := `
# HELP stellar_remit_transactions_total Payment submissions attempted.
# TYPE stellar_remit_transactions_total counter
stellar_remit_transactions_total 2
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "stellar_remit_transactions_total"))
}

func get(t *testing.T, h http.Handler, path string) (int, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec.Code, rec.Body.String()
}

func TestRouter(t *testing.T) {
	m := NewMetrics()
	m.TransactionAttempted()
	r := NewRouter(m)

	code, body := get(t, r, "/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "OK", body)

	code, body = get(t, r, "/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "stellar_remit_transactions_total 1")
	assert.Contains(t, body, "stellar_remit_transactions_success_total 0")
	assert.Contains(t, body, "stellar_remit_transaction_duration_seconds_count 0")
	assert.Contains(t, body, "go_goroutines")

	code, _ = get(t, r, "/nope")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestServeStopsWithContext(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx, l, NewMetrics(), logger)
	}()

	resp, err := http.Get("http://" + l.Addr().String() + "/health")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, "OK", string(body))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("monitor did not stop")
	}
	assert.Equal(t, "monitor stopped", hook.LastEntry().Message)
}

func TestRunRejectsBadAddress(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	err := Run(context.Background(), "not-an-address", NewMetrics(), logger)
	assert.Error(t, err)
}
