package remitlib

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/stellar/go/network"
	"github.com/stellar/go/txnbuild"
	"golang.org/x/time/rate"
)

// MinimumFee is the network minimum base fee per operation, in stroops.
var MinimumFee int64 = txnbuild.MinBaseFee

var DefaultAmount int64 = 1_000_000 // stroops
var DefaultMemo = "Remittance"

// MaxMemoBytes is the protocol ceiling for text memos.
const MaxMemoBytes = 28

const futureNetworkPassphrase = "Test SDF Future Network ; October 2022"

// maxBodyBytes bounds how much of a gateway response is read into memory.
const maxBodyBytes = 1 << 20

// NetworkPassphrase resolves a network name to its passphrase. Unknown names are
// taken as a literal passphrase so private networks work too.
func NetworkPassphrase(name string) string {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "test", "testnet":
		return network.TestNetworkPassphrase
	case "public", "pubnet", "mainnet":
		return network.PublicNetworkPassphrase
	case "future", "futurenet":
		return futureNetworkPassphrase
	}
	return name
}

// Gateway is a horizon endpoint together with the transport used to reach it.
// The client is shared by every request of a payment and keeps no transaction
// state between them.
type Gateway struct {
	URL  string
	HTTP *http.Client
}

func MakeGateway(horizonURL string, client *http.Client) *Gateway {
	if client == nil {
		client = NewHTTPClient(30*time.Second, 0)
	}
	return &Gateway{
		URL:  strings.TrimRight(strings.TrimSpace(horizonURL), "/"),
		HTTP: client,
	}
}

// NewHTTPClient returns a client with the given timeout. When requestsPerSecond
// is positive, outbound requests are paced so a single process stays under
// the gateway's rate limit.
func NewHTTPClient(timeout time.Duration, requestsPerSecond float64) *http.Client {
	var rt http.RoundTripper = http.DefaultTransport
	if requestsPerSecond > 0 {
		rt = &pacedTransport{
			next:    rt,
			limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
		}
	}
	return &http.Client{Timeout: timeout, Transport: rt}
}

type pacedTransport struct {
	next    http.RoundTripper
	limiter *rate.Limiter
}

func (t *pacedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return t.next.RoundTrip(req)
}

func (g *Gateway) endpoint(elem ...string) (string, error) {
	u, err := url.Parse(g.URL)
	if err != nil {
		return "", &ConfigError{Field: "horizon_url", Err: err}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", &ConfigError{Field: "horizon_url", Err: errors.New("scheme must be http or https")}
	}
	u.Path = path.Join(append([]string{"/", u.Path}, elem...)...)
	return u.String(), nil
}

// do sends req and reads the whole (bounded) body. Only failures to get a
// response at all are returned as errors; status handling is left to callers.
func (g *Gateway) do(req *http.Request) (int, []byte, error) {
	op := req.Method + " " + req.URL.Redacted()

	response, err := g.HTTP.Do(req)
	if err != nil {
		return 0, nil, &TransportError{Op: op, Err: err}
	}
	defer response.Body.Close()

	body, err := io.ReadAll(io.LimitReader(response.Body, maxBodyBytes))
	if err != nil {
		return response.StatusCode, nil, &TransportError{Op: op, Err: err}
	}
	return response.StatusCode, body, nil
}

func transportKind(err error) TransportKind {
	if errors.Is(err, context.Canceled) {
		return TransportCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrGatewayTimeout) {
		return TransportTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return TransportTimeout
	}
	return TransportConnection
}
