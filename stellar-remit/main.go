package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/0rlych1kk4/stellar-remit/config"
	"github.com/0rlych1kk4/stellar-remit/monitor"
	"github.com/0rlych1kk4/stellar-remit/remitlib"
)

var log *logrus.Logger

type options struct {
	configFile string
	dotEnv     string
	verbose    bool
	dryRun     bool
	serve      bool

	horizon  string
	secret   string
	receiver string
	amount   int64
	memo     string
	fee      int64
	network  string
	monitor  string
}

func init() {
	log = logrus.New()
	log.Level = logrus.InfoLevel
	log.Out = os.Stderr
}

func newRootCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stellar-remit [receiver address]",
		Short: "Send a native XLM payment",
		Long: strings.TrimSpace(`
Sends one native payment from the sender's account. The sender's sequence is
fetched with retry, the transaction is built and signed locally, and the signed
envelope is submitted exactly once.

Settings come from config/default.yaml, .env and STELLAR_* variables; flags win.`),
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts, args)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cmd, cfg, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.configFile, "config", "", "YAML config file (default config/default.yaml when present)")
	f.StringVar(&opts.dotEnv, "env-file", ".env", "dotenv file")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "verbose")
	f.BoolVar(&opts.dryRun, "dry-run", false, "build and sign, but do not submit")
	f.BoolVar(&opts.serve, "serve", false, "keep serving /metrics after the payment until interrupted")

	f.StringVar(&opts.horizon, "horizon", "", "horizon server address")
	f.StringVar(&opts.secret, "secret", "", "sender's secret seed")
	f.StringVar(&opts.receiver, "to", "", "receiver's public address")
	f.Int64Var(&opts.amount, "amount", remitlib.DefaultAmount, "amount in stroops")
	f.StringVar(&opts.memo, "memo", remitlib.DefaultMemo, "text memo, at most 28 bytes")
	f.Int64Var(&opts.fee, "fee", remitlib.MinimumFee, "base fee in stroops")
	f.StringVar(&opts.network, "network", "testnet", "testnet, public, futurenet or a literal passphrase")
	f.StringVar(&opts.monitor, "monitor-addr", "", "address for /health and /metrics, empty to disable")

	return cmd
}

func loadConfig(cmd *cobra.Command, opts *options, args []string) (config.Config, error) {
	if opts.verbose {
		log.Level = logrus.DebugLevel
	}

	cfg, err := config.Load(config.Options{File: opts.configFile, DotEnv: opts.dotEnv})
	if err != nil {
		return cfg, err
	}

	f := cmd.Flags()
	if f.Changed("horizon") {
		cfg.HorizonURL = opts.horizon
	}
	if f.Changed("secret") {
		cfg.SenderSecret = opts.secret
	}
	if f.Changed("to") {
		cfg.ReceiverAddress = opts.receiver
	}
	if len(args) > 0 {
		cfg.ReceiverAddress = args[0]
	}
	if f.Changed("amount") {
		cfg.Amount = opts.amount
	}
	if f.Changed("memo") {
		cfg.Memo = opts.memo
	}
	if f.Changed("fee") {
		cfg.Fee = opts.fee
	}
	if f.Changed("network") {
		cfg.Network = opts.network
	}
	if f.Changed("monitor-addr") {
		cfg.MonitorAddr = opts.monitor
	}

	cfg.HorizonURL = strings.TrimSpace(cfg.HorizonURL)
	cfg.SenderSecret = strings.TrimSpace(cfg.SenderSecret)
	cfg.ReceiverAddress = strings.TrimSpace(cfg.ReceiverAddress)

	log.WithFields(cfg.Fields()).Debug("configuration loaded")
	return cfg, cfg.Validate()
}

func run(ctx context.Context, cmd *cobra.Command, cfg config.Config, opts *options) error {
	remitlib.SetLogger(log)

	metrics := monitor.NewMetrics()
	monitorDone := make(chan struct{})
	monitorCtx, stopMonitor := context.WithCancel(ctx)
	defer func() {
		stopMonitor()
		<-monitorDone
	}()
	go func() {
		defer close(monitorDone)
		if cfg.MonitorAddr == "" {
			return
		}
		if err := monitor.Run(monitorCtx, cfg.MonitorAddr, metrics, log); err != nil {
			log.WithError(err).Warn("monitor is not available")
		}
	}()

	gateway := remitlib.MakeGateway(cfg.HorizonURL, remitlib.NewHTTPClient(cfg.Timeout, cfg.RequestsPerSecond))
	remitter := remitlib.NewRemitter(
		gateway,
		remitlib.NetworkPassphrase(cfg.Network),
		remitlib.WithObserver(metrics),
	)

	receipt, err := remitter.Send(ctx, remitlib.PaymentRequest{
		SenderSecret:    cfg.SenderSecret,
		ReceiverAddress: cfg.ReceiverAddress,
		Amount:          cfg.Amount,
		Memo:            cfg.Memo,
		Fee:             cfg.Fee,
		DryRun:          opts.dryRun,
	})
	if err != nil {
		if hint := hintFor(err); hint != "" {
			fmt.Fprintln(cmd.ErrOrStderr(), hint)
		}
		return err
	}

	if err := printReceipt(cmd.OutOrStdout(), receipt); err != nil {
		return err
	}

	if opts.serve && cfg.MonitorAddr != "" {
		log.Info("payment done, serving metrics until interrupted")
		<-ctx.Done()
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
