package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/template"

	"github.com/stellar/go/amount"

	"github.com/0rlych1kk4/stellar-remit/remitlib"
)

var sentTemplate = template.Must(template.New("sent").Parse(strings.TrimSpace(`
{{ .amount }} XLM sent from {{ .from }} to {{ .to }} successfully

      hash: {{ .hash }}
    ledger: {{ .ledger }}
  sequence: {{ .sequence }}
      memo: {{ .memo }}
    run id: {{ .run }}
`) + "\n"))

var dryRunTemplate = template.Must(template.New("dry-run").Parse(strings.TrimSpace(`
{{ .amount }} XLM from {{ .from }} to {{ .to }} signed, not submitted

      hash: {{ .hash }}
  sequence: {{ .sequence }}
      memo: {{ .memo }}
    run id: {{ .run }}
  envelope:
{{ .envelope }}
`) + "\n"))

func printReceipt(w io.Writer, rc *remitlib.Receipt) error {
	t := sentTemplate
	if rc.State != remitlib.StateSucceeded {
		t = dryRunTemplate
	}
	return t.Execute(w, map[string]interface{}{
		"amount":   amount.StringFromInt64(rc.Amount),
		"from":     rc.Sender,
		"to":       rc.Receiver,
		"hash":     rc.Hash,
		"ledger":   rc.Ledger,
		"sequence": rc.Sequence,
		"memo":     fmt.Sprintf("%q", rc.Memo),
		"run":      rc.RunID,
		"envelope": rc.Envelope,
	})
}

// hintFor suggests what to do about a failed run, or returns "".
func hintFor(err error) string {
	var se *remitlib.StageError
	if errors.As(err, &se) && se.Reached >= remitlib.StateSigned {
		var lr *remitlib.LedgerRejection
		if errors.As(err, &lr) && lr.Code == "tx_insufficient_fee" {
			return "hint: the payment was not applied; run the command again with a higher --fee"
		}
		if remitlib.Retryable(err) {
			return "hint: the payment was not applied; run the command again to retry with a fresh sequence"
		}
		var te *remitlib.TransportError
		if errors.As(err, &te) {
			return "hint: the submission may or may not have been applied; check the sender's transactions before retrying"
		}
		return ""
	}
	if remitlib.IsNotFound(err) {
		return "hint: the sender account does not exist on this network; fund it first"
	}
	var re *remitlib.RetryExhaustedError
	if errors.As(err, &re) {
		return "hint: horizon kept failing; check --horizon and try again later"
	}
	return ""
}
