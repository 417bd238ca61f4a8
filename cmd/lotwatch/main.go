package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/go-pkgz/lgr"
	"github.com/jessevdk/go-flags"

	"github.com/umputun/lotwatch/pkg/config"
	"github.com/umputun/lotwatch/pkg/llm"
	"github.com/umputun/lotwatch/pkg/notify"
	"github.com/umputun/lotwatch/pkg/scheduler"
	"github.com/umputun/lotwatch/pkg/source"
	"github.com/umputun/lotwatch/pkg/store"
)

// Opts with all CLI options
type Opts struct {
	Config   string        `short:"c" long:"config" env:"CONFIG" description:"config file, built-in defaults if not set"`
	Webhook  string        `long:"webhook" env:"DISCORD_WEBHOOK_URL" description:"chat webhook url, overrides config"`
	StateDir string        `long:"state-dir" env:"STATE_DIR" description:"state directory, overrides config"`
	Retry    int           `long:"retry" env:"RETRY" description:"fetch attempts per request, overrides config"`
	Every    time.Duration `long:"every" env:"EVERY" description:"repeat runs with this interval instead of a single run"`

	DryRun     bool `long:"dry-run" env:"DRY_RUN" description:"print notifications instead of sending, don't save state"`
	ForceNight bool `long:"force-night" description:"treat the run as inside quiet hours"`
	ForceDay   bool `long:"force-day" description:"treat the run as outside quiet hours"`
	NoCache    bool `long:"no-cache" description:"bypass the seller cache"`

	// Common options
	Debug   bool `long:"dbg" env:"DEBUG" description:"debug mode"`
	Quiet   bool `short:"q" long:"quiet" description:"log errors only"`
	Version bool `short:"V" long:"version" description:"show version info"`
	NoColor bool `long:"no-color" env:"NO_COLOR" description:"disable color output"`
}

var revision = "unknown"

func main() {
	var opts Opts
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	if opts.Version {
		fmt.Printf("Version: %s\nGolang: %s\n", revision, runtime.Version())
		os.Exit(0)
	}

	setupLog(opts.Debug, opts.Quiet, opts.NoColor, opts.Webhook)
	log.Printf("[INFO] starting lotwatch version %s", revision)

	ctx, cancel := context.WithCancel(context.Background())

	// handle termination signals
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		log.Print("[INFO] termination signal received")
		cancel()
	}()

	err := run(ctx, opts)
	cancel()
	if err != nil {
		log.Printf("[ERROR] %v", err)
		os.Exit(1)
	}
}

// run loads the config, wires dependencies and executes one run, or runs in a loop with --every.
// Returns errors only for invalid options or configuration, run failures are logged.
func run(ctx context.Context, opts Opts) error {
	if opts.ForceNight && opts.ForceDay {
		return errors.New("--force-night and --force-day are mutually exclusive")
	}

	cfg, err := config.Load(opts.Config)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyOverrides(cfg, opts)
	if cfg.Notify.WebhookURL == "" && !opts.DryRun {
		return errors.New("webhook url is required, set notify.webhook_url or --webhook")
	}
	setupLog(opts.Debug, opts.Quiet, opts.NoColor, cfg.Notify.WebhookURL, cfg.LLM.APIKey)

	backend, closeBackend, err := makeBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeBackend()

	fetcher, err := source.NewFetcher(source.Options{
		Timeout:    cfg.Fetch.Timeout,
		Retries:    cfg.Fetch.Retries,
		RetryDelay: cfg.Fetch.RetryDelay,
		UserAgent:  cfg.Fetch.UserAgent,
		ProxyURL:   cfg.Fetch.ProxyURL,
	})
	if err != nil {
		return fmt.Errorf("failed to make fetcher: %w", err)
	}

	params := scheduler.Params{
		Config:  cfg,
		Source:  fetcher,
		Backend: backend,
		Notifier: notify.NewWebhook(notify.Options{
			URL:     cfg.Notify.WebhookURL,
			Timeout: cfg.Notify.Timeout,
			Retries: cfg.Notify.Retries,
		}),
		DryRun:     opts.DryRun,
		ForceNight: opts.ForceNight,
		ForceDay:   opts.ForceDay,
		NoCache:    opts.NoCache,
	}
	if cfg.ContentFilter.Enabled && cfg.LLM.Enabled() {
		params.Tagger = llm.NewTagger(cfg.LLM)
		log.Printf("[INFO] content filter uses %s at %s", cfg.LLM.Model, cfg.LLM.Endpoint)
	}

	runner, err := scheduler.NewRunner(params)
	if err != nil {
		return fmt.Errorf("failed to make runner: %w", err)
	}

	if opts.Every > 0 {
		log.Printf("[INFO] running every %v", opts.Every)
		runner.Loop(ctx, opts.Every)
		return nil
	}

	rep, err := runner.Run(ctx)
	if err != nil {
		return fmt.Errorf("run failed: %w", err)
	}
	if rep.Failed || rep.Recovered {
		log.Printf("[WARN] run %s finished with errors, failed delivery: %v, recovered: %v", rep.RunID, rep.Failed, rep.Recovered)
	}
	return nil
}

// applyOverrides puts CLI options over the loaded config
func applyOverrides(cfg *config.Config, opts Opts) {
	if opts.Webhook != "" {
		cfg.Notify.WebhookURL = opts.Webhook
	}
	if opts.Retry > 0 {
		cfg.Fetch.Retries = opts.Retry
	}
	if opts.StateDir != "" {
		if cfg.State.DSN == config.DefaultDSN(cfg.State.Dir) {
			cfg.State.DSN = config.DefaultDSN(opts.StateDir)
		}
		cfg.State.Dir = opts.StateDir
	}
}

// makeBackend opens the configured state backend, the returned func closes it
func makeBackend(ctx context.Context, cfg *config.Config) (store.Backend, func(), error) {
	if cfg.State.Backend != config.BackendSQLite {
		return store.NewFileBackend(cfg.State.Dir), func() {}, nil
	}
	if err := os.MkdirAll(cfg.State.Dir, 0o750); err != nil {
		return nil, nil, fmt.Errorf("failed to make state dir: %w", err)
	}
	db, err := store.NewSQLiteBackend(ctx, cfg.State.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open state database: %w", err)
	}
	return db, func() {
		if err := db.Close(); err != nil {
			log.Printf("[WARN] failed to close state database: %v", err)
		}
	}, nil
}

// setupLog configures lgr and the std logger, secrets are masked in the output
func setupLog(dbg, quiet, noColor bool, secs ...string) {
	var logOpts []lgr.Option
	switch {
	case dbg:
		logOpts = []lgr.Option{lgr.Debug, lgr.Msec, lgr.LevelBraces, lgr.StackTraceOnError}
	case quiet:
		logOpts = []lgr.Option{lgr.Out(io.Discard)}
	default:
		logOpts = []lgr.Option{lgr.Msec, lgr.LevelBraces}
	}

	if !noColor {
		colorizer := lgr.Mapper{
			ErrorFunc:  func(s string) string { return color.New(color.FgHiRed).Sprint(s) },
			WarnFunc:   func(s string) string { return color.New(color.FgRed).Sprint(s) },
			InfoFunc:   func(s string) string { return color.New(color.FgYellow).Sprint(s) },
			DebugFunc:  func(s string) string { return color.New(color.FgWhite).Sprint(s) },
			CallerFunc: func(s string) string { return color.New(color.FgBlue).Sprint(s) },
			TimeFunc:   func(s string) string { return color.New(color.FgCyan).Sprint(s) },
		}
		logOpts = append(logOpts, lgr.Map(colorizer))
	}

	var nonEmpty []string
	for _, s := range secs {
		if s != "" {
			nonEmpty = append(nonEmpty, s)
		}
	}
	if len(nonEmpty) > 0 {
		logOpts = append(logOpts, lgr.Secret(nonEmpty...))
	}
	lgr.SetupStdLogger(logOpts...)
	lgr.Setup(logOpts...)
}
