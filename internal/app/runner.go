package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ggonzalez94/squad-agent/internal/agent"
	"github.com/ggonzalez94/squad-agent/internal/cache"
	"github.com/ggonzalez94/squad-agent/internal/chain"
	"github.com/ggonzalez94/squad-agent/internal/command"
	"github.com/ggonzalez94/squad-agent/internal/config"
	"github.com/ggonzalez94/squad-agent/internal/dispatch"
	clierr "github.com/ggonzalez94/squad-agent/internal/errors"
	"github.com/ggonzalez94/squad-agent/internal/httpx"
	"github.com/ggonzalez94/squad-agent/internal/journal"
	"github.com/ggonzalez94/squad-agent/internal/ledger"
	"github.com/ggonzalez94/squad-agent/internal/model"
	"github.com/ggonzalez94/squad-agent/internal/out"
	"github.com/ggonzalez94/squad-agent/internal/pricefeed"
	"github.com/ggonzalez94/squad-agent/internal/schema"
	"github.com/ggonzalez94/squad-agent/internal/signer"
	"github.com/ggonzalez94/squad-agent/internal/transport"
	"github.com/ggonzalez94/squad-agent/internal/version"
	"github.com/spf13/cobra"
)

// LedgerDialer opens the chain connection used by the dispatcher. The
// returned close func releases it.
type LedgerDialer func(ctx context.Context, settings config.Settings, recorder ledger.Recorder, logger *slog.Logger) (dispatch.Ledger, func(), error)

type Runner struct {
	stdin      io.Reader
	stdout     io.Writer
	stderr     io.Writer
	now        func() time.Time
	dialLedger LedgerDialer
}

func NewRunner() *Runner {
	return NewRunnerWithWriters(os.Stdout, os.Stderr)
}

func NewRunnerWithWriters(stdout, stderr io.Writer) *Runner {
	return &Runner{
		stdin:      os.Stdin,
		stdout:     stdout,
		stderr:     stderr,
		now:        time.Now,
		dialLedger: dialChainLedger,
	}
}

type runtimeState struct {
	runner      *Runner
	flags       config.GlobalFlags
	settings    config.Settings
	logger      *slog.Logger
	journal     *journal.Store
	priceStore  *cache.Store
	closers     []func()
	lastCommand string
	exitCode    int
}

func (r *Runner) Run(args []string) int {
	state := &runtimeState{runner: r, flags: config.GlobalFlags{Workers: -1}}
	root := state.newRootCommand()
	root.SetArgs(args)
	root.SetIn(r.stdin)
	root.SetOut(r.stdout)
	root.SetErr(r.stderr)
	root.SilenceUsage = true
	root.SilenceErrors = true

	err := root.Execute()
	state.close()
	err = normalizeRunError(err)
	if err == nil {
		return state.exitCode
	}
	state.renderError(err)
	return clierr.ExitCode(err)
}

func (s *runtimeState) newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   version.CLIName,
		Short: "Chat agent for squad wallets and on-chain games",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			s.lastCommand = trimRootPath(cmd.CommandPath())
			if cmd.Name() == "help" || cmd.Name() == "version" {
				return nil
			}
			settings, err := config.Load(s.flags)
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "load configuration", err)
			}
			s.settings = settings
			s.logger = newLogger(s.runner.stderr, settings.LogLevel)
			return nil
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return clierr.Wrap(clierr.CodeUsage, "parse flags", err)
	})

	cmd.PersistentFlags().StringVar(&s.flags.ConfigPath, "config", "", "Path to config file")
	cmd.PersistentFlags().BoolVar(&s.flags.JSON, "json", false, "Output JSON")
	cmd.PersistentFlags().BoolVar(&s.flags.Plain, "plain", false, "Output plain text (default)")
	cmd.PersistentFlags().StringVar(&s.flags.LogLevel, "log-level", "", "Log level: debug|info|warn|error")
	cmd.PersistentFlags().StringVar(&s.flags.EnableCommands, "enable-commands", "", "Allowlist chat commands (comma-separated)")
	cmd.PersistentFlags().StringVar(&s.flags.Timeout, "timeout", "", "Price provider request timeout")
	cmd.PersistentFlags().StringVar(&s.flags.Chain, "chain", "", "Chain slug, alias or id")
	cmd.PersistentFlags().StringVar(&s.flags.RPCURL, "rpc-url", "", "RPC URL override for the selected chain")
	cmd.PersistentFlags().StringVar(&s.flags.KeySource, "key-source", "", "Signer key source: auto|env|file|keystore")
	cmd.PersistentFlags().BoolVar(&s.flags.NoCache, "no-cache", false, "Keep price quotes in memory only")

	cmd.AddCommand(s.newRunCommand())
	cmd.AddCommand(s.newExecCommand())
	cmd.AddCommand(s.newCommandsCommand())
	cmd.AddCommand(s.newSchemaCommand())
	cmd.AddCommand(s.newJournalCommand())
	cmd.AddCommand(newVersionCommand())
	return cmd
}

func newVersionCommand() *cobra.Command {
	var long bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print CLI version",
		Run: func(cmd *cobra.Command, args []string) {
			if long {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.Long())
				return
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.CLIVersion)
		},
	}
	cmd.Flags().BoolVar(&long, "long", false, "Print extended build metadata")
	return cmd
}

func (s *runtimeState) newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Serve chat commands over the configured transport",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			d, err := s.buildDispatcher(ctx)
			if err != nil {
				return err
			}
			t, err := s.newTransport()
			if err != nil {
				return err
			}
			a := agent.New(t, d, agent.Options{Workers: s.settings.Workers, Logger: s.logger})
			return a.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&s.flags.Transport, "transport", "", "Transport: console|telegram|nats")
	cmd.Flags().IntVar(&s.flags.Workers, "workers", -1, "Concurrent conversation workers")
	cmd.Flags().StringVar(&s.flags.Sender, "sender", "", "Sender address for console messages")
	return cmd
}

func (s *runtimeState) newExecCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exec <message...>",
		Short: "Handle a single chat message and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := s.buildDispatcher(cmd.Context())
			if err != nil {
				return err
			}
			text := strings.Join(args, " ")
			parsed := command.Parse(text, s.settings.ConsoleSender, transport.ConsoleConversation)
			res := d.Handle(cmd.Context(), parsed)
			reply, _ := res.Reply()
			s.exitCode = int(res.Code())
			if s.settings.OutputMode == "json" {
				return s.emitSuccess(model.ExecResult{Command: parsed.Name, Kind: res.Kind.String(), Reply: reply})
			}
			if reply != "" {
				_, _ = fmt.Fprintln(s.runner.stdout, reply)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&s.flags.Sender, "sender", "", "Sender address for the message")
	return cmd
}

// catalog builds the command set without a ledger or price feed; no handler
// runs.
func (s *runtimeState) catalog() *dispatch.Dispatcher {
	return dispatch.NewDefault(nil, nil, dispatch.Options{EnabledCommands: s.settings.EnableCommands, Logger: s.logger})
}

func (s *runtimeState) newCommandsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "commands",
		Short: "List chat commands enabled by the current configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.emitSuccess(s.catalog().Names())
		},
	}
}

func (s *runtimeState) newSchemaCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schema [command path]",
		Short: "Print machine-readable CLI and chat command schema",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var chat []schema.ChatCommandSchema
			for _, desc := range s.catalog().Describe() {
				chat = append(chat, schema.ChatCommandSchema{Name: desc.Name, Usage: desc.Usage, Summary: desc.Summary})
			}
			doc, err := schema.Build(cmd.Root(), strings.Join(args, " "), chat)
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "build schema", err)
			}
			return s.emitSuccess(doc)
		},
	}
}

func (s *runtimeState) newJournalCommand() *cobra.Command {
	root := &cobra.Command{Use: "journal", Short: "Inspect recorded ledger submissions"}

	var status string
	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List recent submissions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st := journal.Status(strings.ToLower(strings.TrimSpace(status)))
			switch st {
			case "", journal.StatusSubmitted, journal.StatusConfirmed, journal.StatusFailed, journal.StatusTimeout:
			default:
				return clierr.New(clierr.CodeUsage, fmt.Sprintf("unsupported status %q", status))
			}
			store, err := s.openJournal()
			if err != nil {
				return err
			}
			entries, err := store.List(st, limit)
			if err != nil {
				return clierr.Wrap(clierr.CodeInternal, "list journal", err)
			}
			return s.emitSuccess(entries)
		},
	}
	list.Flags().StringVar(&status, "status", "", "Filter by status: submitted|confirmed|failed|timeout")
	list.Flags().IntVar(&limit, "limit", 20, "Maximum entries to return")

	show := &cobra.Command{
		Use:   "show <op-id>",
		Short: "Show one submission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := s.openJournal()
			if err != nil {
				return err
			}
			entry, err := store.Get(strings.TrimSpace(args[0]))
			if errors.Is(err, journal.ErrNotFound) {
				return clierr.Wrap(clierr.CodeNotFound, "journal show", err)
			}
			if err != nil {
				return clierr.Wrap(clierr.CodeInternal, "journal show", err)
			}
			return s.emitSuccess(entry)
		},
	}

	root.AddCommand(list)
	root.AddCommand(show)
	return root
}

// buildDispatcher wires the signer, ledger, price feed and optional stores
// into the default command set.
func (s *runtimeState) buildDispatcher(ctx context.Context) (*dispatch.Dispatcher, error) {
	settings := s.settings

	var recorder ledger.Recorder
	if settings.JournalEnabled {
		store, err := s.openJournal()
		if err != nil {
			return nil, err
		}
		recorder = store
	}

	l, closeLedger, err := s.runner.dialLedger(ctx, settings, recorder, s.logger)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, closeLedger)

	var priceCache pricefeed.Cache
	if settings.SharedPriceCache {
		store, err := cache.Open(settings.PriceCachePath, settings.PriceCacheLockPath)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeInternal, "open price cache", err)
		}
		s.priceStore = store
		if err := store.Prune(s.runner.now().Add(-settings.PriceCacheTTL)); err != nil {
			s.logger.Warn("price cache prune failed", "err", err)
		}
		priceCache = pricefeed.NewStoreCache(store, s.logger)
	}
	provider := pricefeed.NewCoinMarketCap(httpx.New(settings.Timeout), settings.PriceAPIBase, settings.PriceAPIKey, settings.PriceCurrency)
	feed := pricefeed.New(provider, priceCache, pricefeed.Options{
		TTL:      settings.PriceCacheTTL,
		Currency: settings.PriceCurrency,
		Logger:   s.logger,
	})

	return dispatch.NewDefault(l, feed, dispatch.Options{
		MinWager:        settings.MinWager,
		MaxWager:        settings.MaxWager,
		EnabledCommands: settings.EnableCommands,
		Chain:           settings.Chain,
		Logger:          s.logger,
	}), nil
}

func dialChainLedger(ctx context.Context, settings config.Settings, recorder ledger.Recorder, logger *slog.Logger) (dispatch.Ledger, func(), error) {
	rpcURL, err := chain.ResolveRPCURL(settings.RPCURL, settings.Chain)
	if err != nil {
		return nil, nil, clierr.Wrap(clierr.CodeUsage, "resolve rpc url", err)
	}
	txSigner, err := signer.FromEnv(settings.KeySource, "")
	if err != nil {
		return nil, nil, err
	}
	client, err := ledger.Dial(ctx, rpcURL, txSigner, ledger.Contracts{
		WalletFactory: settings.WalletFactory,
		GameManager:   settings.GameManager,
		XPBadges:      settings.XPBadges,
	}, ledger.Options{
		PollInterval:   settings.PollInterval,
		ConfirmTimeout: settings.ConfirmTimeout,
		GasMultiplier:  settings.GasMultiplier,
		Recorder:       recorder,
		Logger:         logger,
	})
	if err != nil {
		return nil, nil, err
	}
	logger.Info("ledger connected", "chain", settings.Chain.Slug, "chain_id", settings.Chain.ID, "signer", client.SignerAddress().Hex())
	return client, client.Close, nil
}

func (s *runtimeState) newTransport() (transport.Transport, error) {
	settings := s.settings
	switch settings.Transport {
	case config.TransportTelegram:
		return transport.NewTelegram(transport.TelegramConfig{
			Token:     settings.TelegramToken,
			AllowFrom: settings.TelegramAllowFrom,
			Senders:   settings.TelegramSenders,
			Logger:    s.logger,
		}), nil
	case config.TransportNATS:
		return transport.NewNATS(transport.NATSConfig{
			URL:            settings.NATSURL,
			InboundSubject: settings.NATSInboundSubject,
			OutboundPrefix: settings.NATSOutboundPrefix,
			Logger:         s.logger,
		}), nil
	case config.TransportConsole:
		return transport.NewConsole(transport.ConsoleConfig{
			In:     s.runner.stdin,
			Out:    s.runner.stdout,
			Sender: settings.ConsoleSender,
			Logger: s.logger,
		}), nil
	default:
		return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("unsupported transport %q", settings.Transport))
	}
}

func (s *runtimeState) openJournal() (*journal.Store, error) {
	if s.journal != nil {
		return s.journal, nil
	}
	store, err := journal.Open(s.settings.JournalPath, s.settings.JournalLockPath)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "open journal", err)
	}
	s.journal = store
	return store, nil
}

func (s *runtimeState) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if s.closers[i] != nil {
			s.closers[i]()
		}
	}
	if s.journal != nil {
		_ = s.journal.Close()
	}
	if s.priceStore != nil {
		_ = s.priceStore.Close()
	}
}

func (s *runtimeState) emitSuccess(data any) error {
	env := model.Envelope{
		Version: model.EnvelopeVersion,
		Success: true,
		Data:    data,
		Meta:    s.meta(),
	}
	return out.Render(s.runner.stdout, env, s.outputMode(), s.outputMode() == "plain")
}

func (s *runtimeState) renderError(err error) {
	message := err.Error()
	if cErr, ok := clierr.As(err); ok {
		message = cErr.Message
		if cErr.Cause != nil {
			message = fmt.Sprintf("%s: %v", cErr.Message, cErr.Cause)
		}
	}
	code := clierr.CodeOf(err)
	env := model.Envelope{
		Version: model.EnvelopeVersion,
		Success: false,
		Error: &model.ErrorBody{
			Code:    clierr.ExitCode(err),
			Type:    code.String(),
			Message: message,
		},
		Meta: s.meta(),
	}
	_ = out.Render(s.runner.stderr, env, s.outputMode(), false)
}

func (s *runtimeState) meta() model.EnvelopeMeta {
	cmd := s.lastCommand
	if cmd == "" {
		cmd = version.CLIName
	}
	return model.EnvelopeMeta{
		RequestID: newRequestID(),
		Timestamp: s.runner.now().UTC(),
		Command:   cmd,
	}
}

func (s *runtimeState) outputMode() string {
	if s.settings.OutputMode == "json" || s.flags.JSON {
		return "json"
	}
	return "plain"
}

func newLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

func newRequestID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}

func trimRootPath(path string) string {
	parts := strings.Fields(path)
	if len(parts) <= 1 {
		return ""
	}
	return strings.Join(parts[1:], " ")
}

func normalizeRunError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := clierr.As(err); ok {
		return err
	}
	if isLikelyUsageError(err) {
		return clierr.Wrap(clierr.CodeUsage, "invalid command input", err)
	}
	return clierr.Wrap(clierr.CodeInternal, "execute command", err)
}

func isLikelyUsageError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	patterns := []string{
		"unknown command",
		"unknown flag",
		"required flag(s)",
		"flag needs an argument",
		"requires at least",
		"requires exactly",
		"accepts ",
		"invalid argument",
		"invalid args",
	}
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
