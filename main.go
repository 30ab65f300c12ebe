package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"jupiterdash/pkg/app"
	"jupiterdash/pkg/config"
	"jupiterdash/pkg/models"
	"jupiterdash/pkg/rpc"
	"jupiterdash/pkg/server"
	"jupiterdash/pkg/tui"
	"jupiterdash/pkg/wallet"
	"jupiterdash/pkg/watcher"

	"github.com/rs/zerolog"
)

// Version should be set during build
var Version = "dev"

func main() {
	testFlag := flag.Bool("t", false, "Test configuration and exit")
	testLongFlag := flag.Bool("test", false, "Test configuration and exit")
	jsonFlag := flag.Bool("json", false, "Output test results as JSON")
	initFlag := flag.Bool("init", false, "Write a default configuration file and exit")
	forceFlag := flag.Bool("force", false, "With -init, back up and overwrite an existing configuration")
	restoreFlag := flag.Bool("restore", false, "Restore the most recent configuration backup and exit")
	configFlag := flag.String("config", "", "Path to configuration file")
	versionFlag := flag.Bool("version", false, "Print version and exit")
	serverFlag := flag.Bool("server", false, "Run in headless server mode")
	portFlag := flag.Int("port", 0, "Port for API server (overrides server.port; serves the API alongside the TUI)")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("jupiterdash version %s\n", Version)
		os.Exit(0)
	}

	cfgInput := *configFlag
	if cfgInput == "" && len(flag.Args()) > 0 {
		cfgInput = flag.Args()[0]
	}
	path, err := config.GetConfigPath(cfgInput)
	if err != nil {
		fmt.Printf("Error determining config path: %v\n", err)
		os.Exit(1)
	}

	if *restoreFlag {
		if err := config.RestoreLastBackup(path); err != nil {
			fmt.Printf("Error restoring backup: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Restored last backup to %s\n", path)
		os.Exit(0)
	}

	if *initFlag {
		if err := initConfig(path, *forceFlag); err != nil {
			fmt.Printf("Error writing config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Wrote default configuration to %s\n", path)
		os.Exit(0)
	}

	cfg, err := config.LoadConfigFromFile(path)
	if err != nil {
		fmt.Printf("Error loading config from %s: %v\n", path, err)
		os.Exit(1)
	}

	if *testFlag || *testLongFlag {
		os.Exit(runTest(context.Background(), os.Stdout, path, cfg, *jsonFlag))
	}

	if err := cfg.Validate(); err != nil {
		fmt.Printf("Invalid configuration at %s: %v\n", path, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, closeLog, err := newLogger(cfg, *serverFlag)
	if err != nil {
		fmt.Printf("Error opening log: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = closeLog.Close() }()

	if err := run(ctx, cfg, logger, *serverFlag, *portFlag); err != nil {
		logger.Error().Err(err).Msg("exiting")
		fmt.Println(err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger zerolog.Logger, headless bool, portOverride int) error {
	client, err := rpc.Dial(ctx, cfg.RPCURL, cfg.RequestTimeout())
	if err != nil {
		return err
	}
	defer client.Close()

	var prompter *tui.Prompter
	var walletPrompter wallet.Prompter
	if cfg.Wallet.Mode == config.WalletKeystore {
		if headless || cfg.Wallet.PassphraseFile != "" {
			fp, err := wallet.NewFilePrompter(cfg.Wallet.PassphraseFile)
			if err != nil {
				return err
			}
			walletPrompter = fp
		} else {
			prompter = tui.NewPrompter()
			walletPrompter = prompter
		}
	}

	provider, closeProvider, err := newProvider(ctx, cfg, client, walletPrompter)
	if err != nil {
		return err
	}
	defer closeProvider()

	to, value, err := cfg.TransferTarget()
	if err != nil {
		return err
	}
	connector := wallet.NewConnector(provider, wallet.Transfer{To: to, Value: value}, logger)

	w := watcher.NewWatcher(client, connector, watcher.Options{
		Interval:        cfg.PollInterval(),
		Symbol:          cfg.Symbol,
		GasHistoryLimit: cfg.GasHistoryLimit,
	}, logger)
	w.Start(ctx)
	defer w.Stop()

	actions := app.NewActions(connector, w, app.SystemClipboard{}, logger)

	port := apiPort(cfg, portOverride)
	srv := server.NewServer(actions, w, server.Options{
		Host:           cfg.Server.Host,
		Port:           port,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		QRSize:         cfg.QRSize,
	}, logger)

	if headless {
		logger.Info().Str("rpc", cfg.RPCURL).Str("wallet", cfg.Wallet.Mode).Msg("running in server mode")
		return srv.Start(ctx)
	}

	if port != 0 {
		go func() {
			if err := srv.Start(ctx); err != nil {
				logger.Error().Err(err).Msg("server error")
			}
		}()
	}
	return tui.Start(ctx, actions, w, prompter, Version)
}

// newProvider builds the wallet provider for the configured mode. A nil
// provider means no wallet; connect then reports it as unavailable.
func newProvider(ctx context.Context, cfg config.Config, client *rpc.Client, prompter wallet.Prompter) (wallet.Provider, func(), error) {
	nop := func() {}
	switch cfg.Wallet.Mode {
	case config.WalletRemote:
		p, err := wallet.NewRemoteProvider(ctx, cfg.Wallet.SignerURL)
		if err != nil {
			return nil, nop, err
		}
		return p, p.Close, nil
	case config.WalletKeystore:
		return wallet.NewKeystoreProvider(cfg.Wallet.KeystoreDir, cfg.Wallet.Account, client.Conn(), prompter), nop, nil
	}
	return nil, nop, nil
}

// newLogger writes to stderr in server mode and to a file otherwise, since
// the TUI owns the terminal.
func newLogger(cfg config.Config, headless bool) (zerolog.Logger, io.Closer, error) {
	zerolog.SetGlobalLevel(cfg.LogLevel())
	if headless {
		out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
		return zerolog.New(out).With().Timestamp().Logger(), nopCloser{}, nil
	}

	path := cfg.Log.File
	if path == "" {
		path = config.DefaultLogPath()
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return zerolog.Nop(), nil, err
	}
	return zerolog.New(f).With().Timestamp().Logger(), f, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// apiPort is the API port: -port, then server.port. Zero keeps the API off
// alongside the TUI.
func apiPort(cfg config.Config, override int) int {
	if override != 0 {
		return override
	}
	return cfg.Server.Port
}

// initConfig writes the defaults. An existing file is only replaced with
// force, and SaveConfig keeps a timestamped backup of it.
func initConfig(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use -force to back it up and overwrite)", path)
	}
	return config.SaveConfig(config.Default(), path)
}

// runTest validates the configuration and probes the RPC endpoint. It
// returns the process exit code.
func runTest(ctx context.Context, out io.Writer, path string, cfg config.Config, asJSON bool) int {
	report := models.TestReport{
		ConfigPath:     path,
		ValidStructure: true,
		WalletMode:     cfg.Wallet.Mode,
	}

	if !asJSON {
		fmt.Fprintf(out, "Testing configuration at: %s\n", path)
	}

	if err := cfg.Validate(); err != nil {
		report.ValidStructure = false
		for _, e := range splitErrors(err) {
			report.StructureErrors = append(report.StructureErrors, e.Error())
			if !asJSON {
				fmt.Fprintf(out, "Error: %s\n", e)
			}
		}
	}

	if !asJSON {
		fmt.Fprintf(out, "RPC: %s ... ", cfg.RPCURL)
	}
	timeout := cfg.RequestTimeout()
	if timeout <= 0 {
		timeout = rpc.DefaultTimeout
	}
	report.RPC = rpc.Probe(ctx, cfg.RPCURL, timeout)
	if !asJSON {
		if report.RPC.Status == "ok" {
			fmt.Fprintf(out, "OK (ChainID: %d, Block: %d, %dms)\n", report.RPC.ChainID, report.RPC.BlockNumber, report.RPC.LatencyMs)
		} else {
			fmt.Fprintf(out, "Failed: %s\n", report.RPC.Error)
		}
	}

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		_ = enc.Encode(report)
	}
	if !report.ValidStructure || report.RPC.Status != "ok" {
		return 1
	}
	return 0
}

func splitErrors(err error) []error {
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		return joined.Unwrap()
	}
	return []error{err}
}
