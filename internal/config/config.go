package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ggonzalez94/squad-agent/internal/chain"
	"github.com/ggonzalez94/squad-agent/internal/dispatch"
	clierr "github.com/ggonzalez94/squad-agent/internal/errors"
	"github.com/ggonzalez94/squad-agent/internal/policy"
	"github.com/ggonzalez94/squad-agent/internal/pricefeed"
	"github.com/ggonzalez94/squad-agent/internal/units"
	"gopkg.in/yaml.v3"
)

const (
	TransportConsole  = "console"
	TransportTelegram = "telegram"
	TransportNATS     = "nats"

	defaultChain = "base-sepolia"
)

type GlobalFlags struct {
	ConfigPath     string
	JSON           bool
	Plain          bool
	LogLevel       string
	EnableCommands string
	Timeout        string
	Chain          string
	RPCURL         string
	KeySource      string
	Transport      string
	// Workers < 0 means unset.
	Workers int
	Sender  string
	NoCache bool
}

type Settings struct {
	OutputMode     string
	LogLevel       string
	EnableCommands []string
	Timeout        time.Duration

	Chain          chain.Chain
	RPCURL         string
	ConfirmTimeout time.Duration
	PollInterval   time.Duration
	GasMultiplier  float64

	WalletFactory common.Address
	GameManager   common.Address
	XPBadges      common.Address

	KeySource string

	MinWager *big.Int
	MaxWager *big.Int

	PriceAPIBase       string
	PriceAPIKey        string
	PriceCurrency      string
	PriceCacheTTL      time.Duration
	SharedPriceCache   bool
	PriceCachePath     string
	PriceCacheLockPath string

	JournalEnabled  bool
	JournalPath     string
	JournalLockPath string

	Transport string
	Workers   int

	ConsoleSender string

	TelegramToken     string
	TelegramAllowFrom []string
	TelegramSenders   map[string]string

	NATSURL            string
	NATSInboundSubject string
	NATSOutboundPrefix string
}

type fileConfig struct {
	Output         string   `yaml:"output"`
	Timeout        string   `yaml:"timeout"`
	LogLevel       string   `yaml:"log_level"`
	EnableCommands []string `yaml:"enable_commands"`
	Transport      string   `yaml:"transport"`
	Workers        *int     `yaml:"workers"`
	Chain          struct {
		ID             string   `yaml:"id"`
		RPCURL         string   `yaml:"rpc_url"`
		ConfirmTimeout string   `yaml:"confirm_timeout"`
		PollInterval   string   `yaml:"poll_interval"`
		GasMultiplier  *float64 `yaml:"gas_multiplier"`
	} `yaml:"chain"`
	Contracts struct {
		WalletFactory string `yaml:"wallet_factory"`
		GameManager   string `yaml:"game_manager"`
		XPBadges      string `yaml:"xp_badges"`
	} `yaml:"contracts"`
	Signer struct {
		KeySource string `yaml:"key_source"`
	} `yaml:"signer"`
	Games struct {
		MinWager string `yaml:"min_wager"`
		MaxWager string `yaml:"max_wager"`
	} `yaml:"games"`
	Price struct {
		APIBase       string `yaml:"api_base"`
		APIKey        string `yaml:"api_key"`
		APIKeyEnv     string `yaml:"api_key_env"`
		Currency      string `yaml:"currency"`
		CacheTTL      string `yaml:"cache_ttl"`
		SharedCache   *bool  `yaml:"shared_cache"`
		CachePath     string `yaml:"cache_path"`
		CacheLockPath string `yaml:"cache_lock_path"`
	} `yaml:"price"`
	Journal struct {
		Enabled  *bool  `yaml:"enabled"`
		Path     string `yaml:"path"`
		LockPath string `yaml:"lock_path"`
	} `yaml:"journal"`
	Console struct {
		Sender string `yaml:"sender"`
	} `yaml:"console"`
	Telegram struct {
		Token     string            `yaml:"token"`
		TokenEnv  string            `yaml:"token_env"`
		AllowFrom []string          `yaml:"allow_from"`
		Senders   map[string]string `yaml:"senders"`
	} `yaml:"telegram"`
	NATS struct {
		URL            string `yaml:"url"`
		InboundSubject string `yaml:"inbound_subject"`
		OutboundPrefix string `yaml:"outbound_prefix"`
	} `yaml:"nats"`
}

// raw carries string-typed values that are resolved once every layer has
// been applied.
type raw struct {
	chain         string
	walletFactory string
	gameManager   string
	xpBadges      string
	minWager      string
	maxWager      string
}

func Load(flags GlobalFlags) (Settings, error) {
	settings, err := defaultSettings()
	if err != nil {
		return Settings{}, err
	}
	pending := raw{chain: defaultChain}

	cfgPath, err := resolveConfigPath(flags.ConfigPath)
	if err != nil {
		return Settings{}, err
	}
	if err := applyFileConfig(cfgPath, &settings, &pending); err != nil {
		return Settings{}, err
	}

	applyEnv(&settings, &pending)

	if err := applyFlags(flags, &settings, &pending); err != nil {
		return Settings{}, err
	}

	if err := resolve(&settings, pending); err != nil {
		return Settings{}, err
	}
	return settings, nil
}

func defaultSettings() (Settings, error) {
	dataDir, err := defaultDataDir()
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		OutputMode:         "plain",
		LogLevel:           "info",
		Timeout:            10 * time.Second,
		ConfirmTimeout:     2 * time.Minute,
		PollInterval:       2 * time.Second,
		GasMultiplier:      1.2,
		KeySource:          "auto",
		PriceCurrency:      "USD",
		PriceCacheTTL:      pricefeed.DefaultTTL,
		PriceCachePath:     filepath.Join(dataDir, "cache.db"),
		PriceCacheLockPath: filepath.Join(dataDir, "cache.lock"),
		JournalEnabled:     true,
		JournalPath:        filepath.Join(dataDir, "journal.db"),
		JournalLockPath:    filepath.Join(dataDir, "journal.lock"),
		Transport:          TransportConsole,
		Workers:            1,
	}, nil
}

func resolveConfigPath(input string) (string, error) {
	if strings.TrimSpace(input) != "" {
		return input, nil
	}
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "squadbot", "config.yaml"), nil
}

func defaultDataDir() (string, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".cache")
	}
	return filepath.Join(base, "squadbot"), nil
}

func applyFileConfig(path string, settings *Settings, pending *raw) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return clierr.Wrap(clierr.CodeUsage, "read config", err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return clierr.Wrap(clierr.CodeUsage, "parse config yaml", err)
	}

	if cfg.Output != "" {
		settings.OutputMode = strings.ToLower(cfg.Output)
	}
	if cfg.LogLevel != "" {
		settings.LogLevel = strings.ToLower(cfg.LogLevel)
	}
	if len(cfg.EnableCommands) > 0 {
		settings.EnableCommands = cfg.EnableCommands
	}
	if cfg.Transport != "" {
		settings.Transport = strings.ToLower(cfg.Transport)
	}
	if cfg.Workers != nil {
		settings.Workers = *cfg.Workers
	}
	durations := []struct {
		key   string
		value string
		dest  *time.Duration
	}{
		{"timeout", cfg.Timeout, &settings.Timeout},
		{"chain.confirm_timeout", cfg.Chain.ConfirmTimeout, &settings.ConfirmTimeout},
		{"chain.poll_interval", cfg.Chain.PollInterval, &settings.PollInterval},
		{"price.cache_ttl", cfg.Price.CacheTTL, &settings.PriceCacheTTL},
	}
	for _, d := range durations {
		if d.value == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			return clierr.Wrap(clierr.CodeUsage, "config "+d.key, err)
		}
		*d.dest = parsed
	}

	if cfg.Chain.ID != "" {
		pending.chain = cfg.Chain.ID
	}
	if cfg.Chain.RPCURL != "" {
		settings.RPCURL = cfg.Chain.RPCURL
	}
	if cfg.Chain.GasMultiplier != nil {
		settings.GasMultiplier = *cfg.Chain.GasMultiplier
	}
	if cfg.Contracts.WalletFactory != "" {
		pending.walletFactory = cfg.Contracts.WalletFactory
	}
	if cfg.Contracts.GameManager != "" {
		pending.gameManager = cfg.Contracts.GameManager
	}
	if cfg.Contracts.XPBadges != "" {
		pending.xpBadges = cfg.Contracts.XPBadges
	}
	if cfg.Signer.KeySource != "" {
		settings.KeySource = strings.ToLower(cfg.Signer.KeySource)
	}
	if cfg.Games.MinWager != "" {
		pending.minWager = cfg.Games.MinWager
	}
	if cfg.Games.MaxWager != "" {
		pending.maxWager = cfg.Games.MaxWager
	}

	if cfg.Price.APIBase != "" {
		settings.PriceAPIBase = cfg.Price.APIBase
	}
	if cfg.Price.APIKey != "" {
		settings.PriceAPIKey = cfg.Price.APIKey
	}
	if cfg.Price.APIKeyEnv != "" {
		settings.PriceAPIKey = os.Getenv(cfg.Price.APIKeyEnv)
	}
	if cfg.Price.Currency != "" {
		settings.PriceCurrency = strings.ToUpper(cfg.Price.Currency)
	}
	if cfg.Price.SharedCache != nil {
		settings.SharedPriceCache = *cfg.Price.SharedCache
	}
	if cfg.Price.CachePath != "" {
		settings.PriceCachePath = cfg.Price.CachePath
	}
	if cfg.Price.CacheLockPath != "" {
		settings.PriceCacheLockPath = cfg.Price.CacheLockPath
	}

	if cfg.Journal.Enabled != nil {
		settings.JournalEnabled = *cfg.Journal.Enabled
	}
	if cfg.Journal.Path != "" {
		settings.JournalPath = cfg.Journal.Path
	}
	if cfg.Journal.LockPath != "" {
		settings.JournalLockPath = cfg.Journal.LockPath
	}

	if cfg.Console.Sender != "" {
		settings.ConsoleSender = cfg.Console.Sender
	}
	if cfg.Telegram.Token != "" {
		settings.TelegramToken = cfg.Telegram.Token
	}
	if cfg.Telegram.TokenEnv != "" {
		settings.TelegramToken = os.Getenv(cfg.Telegram.TokenEnv)
	}
	if len(cfg.Telegram.AllowFrom) > 0 {
		settings.TelegramAllowFrom = cfg.Telegram.AllowFrom
	}
	if len(cfg.Telegram.Senders) > 0 {
		settings.TelegramSenders = cfg.Telegram.Senders
	}
	if cfg.NATS.URL != "" {
		settings.NATSURL = cfg.NATS.URL
	}
	if cfg.NATS.InboundSubject != "" {
		settings.NATSInboundSubject = cfg.NATS.InboundSubject
	}
	if cfg.NATS.OutboundPrefix != "" {
		settings.NATSOutboundPrefix = cfg.NATS.OutboundPrefix
	}
	return nil
}

func applyEnv(settings *Settings, pending *raw) {
	if v := os.Getenv("SQUAD_OUTPUT"); v != "" {
		settings.OutputMode = strings.ToLower(v)
	}
	if v := os.Getenv("SQUAD_LOG_LEVEL"); v != "" {
		settings.LogLevel = strings.ToLower(v)
	}
	if v := os.Getenv("SQUAD_ENABLE_COMMANDS"); v != "" {
		settings.EnableCommands = splitList(v)
	}
	if v := os.Getenv("SQUAD_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.Timeout = d
		}
	}
	if v := os.Getenv("SQUAD_CHAIN"); v != "" {
		pending.chain = v
	}
	if v := os.Getenv("SQUAD_RPC_URL"); v != "" {
		settings.RPCURL = v
	}
	if v := os.Getenv("SQUAD_CONFIRM_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.ConfirmTimeout = d
		}
	}
	if v := os.Getenv("SQUAD_WALLET_FACTORY"); v != "" {
		pending.walletFactory = v
	}
	if v := os.Getenv("SQUAD_GAME_MANAGER"); v != "" {
		pending.gameManager = v
	}
	if v := os.Getenv("SQUAD_XP_BADGES"); v != "" {
		pending.xpBadges = v
	}
	if v := os.Getenv("SQUAD_KEY_SOURCE"); v != "" {
		settings.KeySource = strings.ToLower(v)
	}
	if v := os.Getenv("SQUAD_CMC_API_KEY"); v != "" {
		settings.PriceAPIKey = v
	}
	if v := os.Getenv("SQUAD_PRICE_CURRENCY"); v != "" {
		settings.PriceCurrency = strings.ToUpper(v)
	}
	if v := os.Getenv("SQUAD_PRICE_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.PriceCacheTTL = d
		}
	}
	if v := os.Getenv("SQUAD_JOURNAL_PATH"); v != "" {
		settings.JournalPath = v
	}
	if v := os.Getenv("SQUAD_TRANSPORT"); v != "" {
		settings.Transport = strings.ToLower(v)
	}
	if v := os.Getenv("SQUAD_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			settings.Workers = n
		}
	}
	if v := os.Getenv("SQUAD_CONSOLE_SENDER"); v != "" {
		settings.ConsoleSender = v
	}
	if v := os.Getenv("SQUAD_TELEGRAM_TOKEN"); v != "" {
		settings.TelegramToken = v
	}
	if v := os.Getenv("SQUAD_NATS_URL"); v != "" {
		settings.NATSURL = v
	}
}

func applyFlags(flags GlobalFlags, settings *Settings, pending *raw) error {
	if flags.JSON && flags.Plain {
		return clierr.New(clierr.CodeUsage, "cannot use --json and --plain together")
	}
	if flags.JSON {
		settings.OutputMode = "json"
	}
	if flags.Plain {
		settings.OutputMode = "plain"
	}
	if flags.LogLevel != "" {
		settings.LogLevel = strings.ToLower(flags.LogLevel)
	}
	if strings.TrimSpace(flags.EnableCommands) != "" {
		settings.EnableCommands = splitList(flags.EnableCommands)
	}
	if flags.Timeout != "" {
		d, err := time.ParseDuration(flags.Timeout)
		if err != nil {
			return clierr.Wrap(clierr.CodeUsage, "parse --timeout", err)
		}
		settings.Timeout = d
	}
	if flags.Chain != "" {
		pending.chain = flags.Chain
	}
	if flags.RPCURL != "" {
		settings.RPCURL = flags.RPCURL
	}
	if flags.KeySource != "" {
		settings.KeySource = strings.ToLower(flags.KeySource)
	}
	if flags.Transport != "" {
		settings.Transport = strings.ToLower(flags.Transport)
	}
	if flags.Workers >= 0 {
		settings.Workers = flags.Workers
	}
	if flags.Sender != "" {
		settings.ConsoleSender = flags.Sender
	}
	if flags.NoCache {
		settings.SharedPriceCache = false
	}
	return nil
}

func resolve(settings *Settings, pending raw) error {
	if settings.OutputMode != "json" && settings.OutputMode != "plain" {
		return clierr.New(clierr.CodeUsage, "output must be json or plain")
	}
	switch settings.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return clierr.New(clierr.CodeUsage, fmt.Sprintf("log_level must be debug, info, warn or error, got %q", settings.LogLevel))
	}
	switch settings.Transport {
	case TransportConsole, TransportTelegram, TransportNATS:
	default:
		return clierr.New(clierr.CodeUsage, fmt.Sprintf("transport must be console, telegram or nats, got %q", settings.Transport))
	}
	if settings.Timeout <= 0 {
		settings.Timeout = 10 * time.Second
	}
	if settings.Workers < 1 {
		settings.Workers = 1
	}
	if settings.ConfirmTimeout <= 0 {
		return clierr.New(clierr.CodeUsage, "chain.confirm_timeout must be positive")
	}
	if settings.PollInterval <= 0 {
		return clierr.New(clierr.CodeUsage, "chain.poll_interval must be positive")
	}
	if settings.GasMultiplier < 1 {
		return clierr.New(clierr.CodeUsage, "chain.gas_multiplier must be at least 1")
	}
	if settings.PriceCacheTTL <= 0 {
		return clierr.New(clierr.CodeUsage, "price.cache_ttl must be positive")
	}
	if err := policy.ValidateAllowlist(settings.EnableCommands, dispatch.BuiltinNames()); err != nil {
		return err
	}

	c, err := chain.Parse(pending.chain)
	if err != nil {
		return clierr.Wrap(clierr.CodeUsage, "chain.id", err)
	}
	settings.Chain = c

	contracts := []struct {
		key   string
		value string
		dest  *common.Address
	}{
		{"contracts.wallet_factory", pending.walletFactory, &settings.WalletFactory},
		{"contracts.game_manager", pending.gameManager, &settings.GameManager},
		{"contracts.xp_badges", pending.xpBadges, &settings.XPBadges},
	}
	for _, ct := range contracts {
		v := strings.TrimSpace(ct.value)
		if v == "" {
			continue
		}
		if !common.IsHexAddress(v) {
			return clierr.New(clierr.CodeUsage, fmt.Sprintf("%s is not a valid address: %q", ct.key, v))
		}
		*ct.dest = common.HexToAddress(v)
	}

	settings.MinWager = new(big.Int).Set(dispatch.DefaultMinWager)
	settings.MaxWager = new(big.Int).Set(dispatch.DefaultMaxWager)
	if pending.minWager != "" {
		if settings.MinWager, err = units.ParseEther(pending.minWager); err != nil {
			return clierr.Wrap(clierr.CodeUsage, "games.min_wager", err)
		}
	}
	if pending.maxWager != "" {
		if settings.MaxWager, err = units.ParseEther(pending.maxWager); err != nil {
			return clierr.Wrap(clierr.CodeUsage, "games.max_wager", err)
		}
	}
	if settings.MinWager.Sign() <= 0 || settings.MinWager.Cmp(settings.MaxWager) > 0 {
		return clierr.New(clierr.CodeUsage, "games.min_wager must be positive and not above games.max_wager")
	}

	if settings.Transport == TransportTelegram && strings.TrimSpace(settings.TelegramToken) == "" {
		return clierr.New(clierr.CodeUsage, "telegram transport requires telegram.token or SQUAD_TELEGRAM_TOKEN")
	}
	return nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}
