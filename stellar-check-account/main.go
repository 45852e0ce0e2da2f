package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/stellar/go/keypair"

	"github.com/0rlych1kk4/stellar-remit/config"
	"github.com/0rlych1kk4/stellar-remit/remitlib"
)

var log *logrus.Logger

type options struct {
	configFile string
	dotEnv     string
	horizon    string
	verbose    bool
}

func init() {
	log = logrus.New()
	log.Level = logrus.InfoLevel
	log.Out = os.Stderr
	remitlib.SetLogger(log)
}

func newRootCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "stellar-check-account <public address>...",
		Short:         "Print the sequence and balances of accounts",
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.verbose {
				log.Level = logrus.DebugLevel
			}

			addresses, err := parseAddresses(args)
			if err != nil {
				return err
			}

			cfg, err := config.Load(config.Options{File: opts.configFile, DotEnv: opts.dotEnv})
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("horizon") {
				cfg.HorizonURL = strings.TrimSpace(opts.horizon)
			}
			if err := cfg.ValidateGateway(); err != nil {
				return err
			}

			gateway := remitlib.MakeGateway(cfg.HorizonURL, remitlib.NewHTTPClient(cfg.Timeout, cfg.RequestsPerSecond))
			fetcher := remitlib.NewSequenceFetcher(gateway, remitlib.DefaultRetryPolicy())
			return checkAccounts(cmd.Context(), cmd.OutOrStdout(), fetcher, addresses)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.configFile, "config", "", "YAML config file")
	f.StringVar(&opts.dotEnv, "env-file", ".env", "dotenv file")
	f.StringVar(&opts.horizon, "horizon", "", "horizon server address")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "verbose")
	return cmd
}

// parseAddresses accepts public addresses and secret seeds; seeds are reduced
// to their address.
func parseAddresses(args []string) ([]string, error) {
	var addresses, invalid []string
	for _, a := range args {
		kp, err := keypair.Parse(strings.TrimSpace(a))
		if err != nil {
			invalid = append(invalid, a)
			continue
		}
		addresses = append(addresses, kp.Address())
	}
	if len(invalid) > 0 {
		return nil, fmt.Errorf("found invalid public address or secret seed: %s", strings.Join(invalid, ", "))
	}
	return addresses, nil
}

type accountFetcher interface {
	FetchAccount(ctx context.Context, accountID string) (remitlib.Account, error)
}

// checkAccounts prints every account it can load. Missing accounts are
// logged and skipped; any other failure stops the run.
func checkAccounts(ctx context.Context, w io.Writer, f accountFetcher, addresses []string) error {
	for _, address := range addresses {
		account, err := f.FetchAccount(ctx, address)
		if remitlib.IsNotFound(err) {
			log.Errorf("account, '%s' does not exist", address)
			continue
		}
		if err != nil {
			return err
		}

		s, err := json.MarshalIndent(account, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(s))
	}
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand(&options{}).ExecuteContext(ctx); err != nil {
		log.Error(err)
		stop()
		os.Exit(1)
	}
}
