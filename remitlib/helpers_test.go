package remitlib

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stellar/go/keypair"
	"github.com/stretchr/testify/require"
)

// fakeHorizon serves /accounts/{id} from a scripted list of answers and
// records every envelope posted to /transactions.
type fakeHorizon struct {
	mu             sync.Mutex
	accountReplies []reply
	submitReply    reply
	accountCalls   int
	submitCalls    int
	envelopes      []string

	server *httptest.Server
}

type reply struct {
	status int
	body   string
}

func newFakeHorizon(t *testing.T) *fakeHorizon {
	t.Helper()
	h := &fakeHorizon{}
	mux := http.NewServeMux()
	mux.HandleFunc("/accounts/", h.serveAccount)
	mux.HandleFunc("/transactions", h.serveSubmit)
	h.server = httptest.NewServer(mux)
	t.Cleanup(h.server.Close)
	return h
}

func (h *fakeHorizon) serveAccount(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if r.Method != http.MethodGet {
		http.Error(w, "method", http.StatusMethodNotAllowed)
		return
	}
	i := h.accountCalls
	h.accountCalls++
	if len(h.accountReplies) == 0 {
		http.Error(w, "no scripted reply", http.StatusInternalServerError)
		return
	}
	if i >= len(h.accountReplies) {
		i = len(h.accountReplies) - 1
	}
	w.WriteHeader(h.accountReplies[i].status)
	_, _ = w.Write([]byte(h.accountReplies[i].body))
}

func (h *fakeHorizon) serveSubmit(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if r.Method != http.MethodPost {
		http.Error(w, "method", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.submitCalls++
	h.envelopes = append(h.envelopes, r.PostForm.Get("tx"))
	if h.submitReply.status == 0 {
		http.Error(w, "no scripted reply", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(h.submitReply.status)
	_, _ = w.Write([]byte(h.submitReply.body))
}

func (h *fakeHorizon) onAccount(replies ...reply) { h.accountReplies = replies }

func (h *fakeHorizon) onSubmit(status int, body string) { h.submitReply = reply{status, body} }

func (h *fakeHorizon) calls() (accounts, submits int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.accountCalls, h.submitCalls
}

func (h *fakeHorizon) posted() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.envelopes...)
}

func (h *fakeHorizon) gateway() *Gateway {
	return MakeGateway(h.server.URL, h.server.Client())
}

func accountBody(id string, seq int64) string {
	return fmt.Sprintf(`{"account_id":%q,"sequence":"%d","balances":[{"asset_type":"native","balance":"100.0000000"}]}`, id, seq)
}

func fastRetry() RetryPolicy {
	return RetryPolicy{BaseDelay: time.Millisecond, Multiplier: 2, MaxDelay: 5 * time.Millisecond, MaxAttempts: 3}
}

func randomKeypair(t *testing.T) *keypair.Full {
	t.Helper()
	kp, err := keypair.Random()
	require.NoError(t, err)
	return kp
}

// recordingObserver counts what the pipeline reports.
type recordingObserver struct {
	mu                            sync.Mutex
	attempts, successes, failures int
	observations                  int
}

func (o *recordingObserver) TransactionAttempted() { o.mu.Lock(); o.attempts++; o.mu.Unlock() }
func (o *recordingObserver) TransactionSucceeded() { o.mu.Lock(); o.successes++; o.mu.Unlock() }
func (o *recordingObserver) TransactionFailed()    { o.mu.Lock(); o.failures++; o.mu.Unlock() }
func (o *recordingObserver) ObserveSubmission(time.Duration) {
	o.mu.Lock()
	o.observations++
	o.mu.Unlock()
}
