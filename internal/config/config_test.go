package config

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	clierr "github.com/ggonzalez94/squad-agent/internal/errors"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func unset() GlobalFlags {
	return GlobalFlags{Workers: -1}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", t.TempDir())
	flags := unset()
	flags.ConfigPath = filepath.Join(t.TempDir(), "missing.yaml")
	settings, err := Load(flags)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.Chain.Slug != "base-sepolia" || settings.Transport != TransportConsole || settings.Workers != 1 {
		t.Fatalf("unexpected defaults %+v", settings)
	}
	if settings.PriceCacheTTL != time.Minute || !settings.JournalEnabled {
		t.Fatalf("unexpected price/journal defaults ttl=%s journal=%v", settings.PriceCacheTTL, settings.JournalEnabled)
	}
	if settings.MinWager.Cmp(big.NewInt(1_000_000_000_000_000)) != 0 {
		t.Fatalf("unexpected min wager %s", settings.MinWager)
	}
}

func TestLoadPrecedenceFlagsOverEnvOverFile(t *testing.T) {
	path := writeConfig(t, "transport: nats\nworkers: 2\nchain:\n  id: base\nprice:\n  currency: eur\n")

	t.Setenv("SQUAD_TRANSPORT", "console")
	t.Setenv("SQUAD_WORKERS", "3")
	flags := unset()
	flags.ConfigPath = path
	flags.Workers = 5
	settings, err := Load(flags)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.Transport != TransportConsole {
		t.Fatalf("expected env to beat file, got %s", settings.Transport)
	}
	if settings.Workers != 5 {
		t.Fatalf("expected flag to win, got workers=%d", settings.Workers)
	}
	if settings.Chain.ID != 8453 || settings.PriceCurrency != "EUR" {
		t.Fatalf("expected file values to apply, got chain=%d currency=%s", settings.Chain.ID, settings.PriceCurrency)
	}
}

func TestLoadContractsAndWagers(t *testing.T) {
	path := writeConfig(t, `
contracts:
  wallet_factory: "0x00000000000000000000000000000000000000f1"
  game_manager: "0x00000000000000000000000000000000000000f2"
games:
  min_wager: "0.01"
  max_wager: "0.5"
telegram:
  token_env: TEST_SQUAD_BOT_TOKEN
  senders:
    "42": "0x00000000000000000000000000000000000000aa"
`)
	t.Setenv("TEST_SQUAD_BOT_TOKEN", "123:abc")
	t.Setenv("SQUAD_XP_BADGES", "0x00000000000000000000000000000000000000f3")
	flags := unset()
	flags.ConfigPath = path
	flags.Transport = "telegram"
	settings, err := Load(flags)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.WalletFactory != common.HexToAddress("0x00000000000000000000000000000000000000f1") {
		t.Fatalf("unexpected wallet factory %s", settings.WalletFactory.Hex())
	}
	if settings.XPBadges.Big().Int64() != 0xf3 {
		t.Fatalf("expected env xp badges address, got %s", settings.XPBadges.Hex())
	}
	if settings.MinWager.String() != "10000000000000000" || settings.MaxWager.String() != "500000000000000000" {
		t.Fatalf("unexpected wagers %s..%s", settings.MinWager, settings.MaxWager)
	}
	if settings.TelegramToken != "123:abc" || settings.TelegramSenders["42"] == "" {
		t.Fatalf("unexpected telegram settings %+v", settings)
	}
}

func TestLoadValidationErrorsAreUsage(t *testing.T) {
	cases := map[string]string{
		"unknown command": "enable_commands: [price, teleport]\n",
		"bad address":     "contracts:\n  game_manager: nope\n",
		"bad transport":   "transport: carrier-pigeon\n",
		"bad duration":    "chain:\n  confirm_timeout: soon\n",
		"inverted wagers": "games:\n  min_wager: \"2\"\n  max_wager: \"1\"\n",
		"telegram token":  "transport: telegram\n",
		"bad yaml":        "transport: [\n",
	}
	t.Setenv("SQUAD_TELEGRAM_TOKEN", "")
	for name, body := range cases {
		flags := unset()
		flags.ConfigPath = writeConfig(t, body)
		_, err := Load(flags)
		if err == nil {
			t.Fatalf("%s: expected error", name)
		}
		if code := clierr.CodeOf(err); code != clierr.CodeUsage {
			t.Fatalf("%s: expected usage error, got %v (%v)", name, code, err)
		}
	}
}

func TestLoadEnableCommandsFromFlag(t *testing.T) {
	flags := unset()
	flags.ConfigPath = writeConfig(t, "enable_commands: [price]\n")
	flags.EnableCommands = " price, /Balance ,"
	settings, err := Load(flags)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(settings.EnableCommands) != 2 || settings.EnableCommands[1] != "/Balance" {
		t.Fatalf("unexpected allowlist %v", settings.EnableCommands)
	}
}

func TestLoadMutuallyExclusiveOutputFlags(t *testing.T) {
	flags := unset()
	flags.JSON = true
	flags.Plain = true
	if _, err := Load(flags); err == nil {
		t.Fatal("expected error with --json and --plain")
	}
}
