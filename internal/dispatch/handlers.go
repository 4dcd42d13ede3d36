package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"regexp"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ggonzalez94/squad-agent/internal/chain"
	"github.com/ggonzalez94/squad-agent/internal/command"
	clierr "github.com/ggonzalez94/squad-agent/internal/errors"
	"github.com/ggonzalez94/squad-agent/internal/ledger"
	"github.com/ggonzalez94/squad-agent/internal/policy"
	"github.com/ggonzalez94/squad-agent/internal/pricefeed"
	"github.com/ggonzalez94/squad-agent/internal/units"
)

// Ledger is the contract surface the built-in handlers use. *ledger.Client
// satisfies it.
type Ledger interface {
	CreateWallet(ctx context.Context, owner common.Address, name string) (ledger.WalletCreation, error)
	Deposit(ctx context.Context, wallet common.Address, amount *big.Int) (ledger.DepositResult, error)
	CreateGame(ctx context.Context, kind ledger.GameKind, wager *big.Int) (ledger.GameCreation, error)
	JoinGame(ctx context.Context, gameID *big.Int, wager *big.Int) (ledger.Receipt, error)
	GetBalance(ctx context.Context, account common.Address) (*big.Int, error)
	GetXP(ctx context.Context, account common.Address) (*big.Int, error)
	GetLevel(ctx context.Context, account common.Address) (*big.Int, error)
	GetBadges(ctx context.Context, account common.Address) ([]*big.Int, error)
	GetGame(ctx context.Context, gameID *big.Int) (ledger.Game, error)
	ListUserWallets(ctx context.Context, account common.Address) ([]common.Address, error)
	WalletName(ctx context.Context, wallet common.Address) (string, error)
	ListActiveGames(ctx context.Context) ([]ledger.Game, error)
	Leaderboard(ctx context.Context, limit int) ([]ledger.LeaderboardEntry, error)
}

type Prices interface {
	GetQuote(ctx context.Context, symbol string) pricefeed.Quote
}

const (
	DefaultLeaderboardLimit = 10
	MaxLeaderboardLimit     = 50
)

var (
	DefaultMinWager = big.NewInt(1_000_000_000_000_000)     // 0.001 ETH
	DefaultMaxWager = big.NewInt(1_000_000_000_000_000_000) // 1 ETH
)

type Options struct {
	MinWager        *big.Int
	MaxWager        *big.Int
	EnabledCommands []string
	// Chain adds explorer links to transaction replies when it has an explorer.
	Chain  chain.Chain
	Logger *slog.Logger
}

type route struct {
	name    string
	usage   string
	summary string
	minArgs int
	maxArgs int
	fn      func(ctx context.Context, cmd command.Command) Result
}

func (r route) Usage() string   { return r.usage }
func (r route) Summary() string { return r.summary }

func (r route) Handle(ctx context.Context, cmd command.Command) Result {
	if n := len(cmd.Args); n < r.minArgs || n > r.maxArgs {
		return Failure(KindInvalidArguments, "wrong number of arguments for /"+r.name, "Usage: "+r.usage)
	}
	return r.fn(ctx, cmd)
}

type handlers struct {
	ledger Ledger
	prices Prices
	opts   Options
	d      *Dispatcher
}

// BuiltinNames lists every built-in command that enable_commands may name.
func BuiltinNames() []string {
	return []string{"help", "create-wallet", "deposit", "balance", "wallets", "play", "join", "games", "xp", "leaderboard", "price"}
}

// NewDefault builds a dispatcher with the built-in command set. Commands left
// out of a non-empty EnabledCommands are not registered; help and the chat
// fallback always are.
func NewDefault(l Ledger, p Prices, opts Options) *Dispatcher {
	if opts.MinWager == nil {
		opts.MinWager = DefaultMinWager
	}
	if opts.MaxWager == nil {
		opts.MaxWager = DefaultMaxWager
	}
	d := New(opts.Logger)
	h := &handlers{ledger: l, prices: p, opts: opts, d: d}

	routes := []route{
		{name: "help", usage: "/help", summary: "list available commands", fn: h.help},
		{name: "create-wallet", usage: "/create-wallet <name>", summary: "create a squad wallet you belong to", minArgs: 1, maxArgs: 1, fn: h.createWallet},
		{name: "deposit", usage: "/deposit <amount>", summary: "deposit ETH into your squad wallet", minArgs: 1, maxArgs: 1, fn: h.deposit},
		{name: "balance", usage: "/balance [address]", summary: "show a squad wallet balance", maxArgs: 1, fn: h.balance},
		{name: "wallets", usage: "/wallets", summary: "list your squad wallets", fn: h.wallets},
		{name: "play", usage: "/play <dice|coin> <wager>", summary: "start a game with an ETH wager", minArgs: 2, maxArgs: 2, fn: h.play},
		{name: "join", usage: "/join <gameId> [wager]", summary: "join a pending game at its wager", minArgs: 1, maxArgs: 2, fn: h.join},
		{name: "games", usage: "/games", summary: "list active games", fn: h.games},
		{name: "xp", usage: "/xp [address]", summary: "show level, XP and badges", maxArgs: 1, fn: h.xp},
		{name: "leaderboard", usage: "/leaderboard [limit]", summary: "top players by XP", maxArgs: 1, fn: h.leaderboard},
		{name: "price", usage: "/price <symbol>", summary: "token price in fiat", minArgs: 1, maxArgs: 1, fn: h.price},
	}
	for _, r := range routes {
		if r.name != "help" && !policy.CommandAllowed(opts.EnabledCommands, r.name) {
			continue
		}
		d.Register(r.name, r)
	}
	d.Register(command.Chat, route{name: command.Chat, usage: "<text>", minArgs: 1, maxArgs: 1, fn: h.chat})
	return d
}

func (h *handlers) help(context.Context, command.Command) Result {
	return Success(h.d.helpText())
}

func (h *handlers) createWallet(ctx context.Context, cmd command.Command) Result {
	owner, fail, ok := senderAddress(cmd)
	if !ok {
		return fail
	}
	name := cmd.Args[0]
	res, err := h.ledger.CreateWallet(ctx, owner, name)
	if err != nil {
		return FromError(err, "Usage: /create-wallet <name>")
	}
	return Success(fmt.Sprintf("✅ Squad wallet %q created\nAddress: %s\n%s",
		name, res.WalletAddress.Hex(), h.txLines(res.TxHash)))
}

func (h *handlers) deposit(ctx context.Context, cmd command.Command) Result {
	amount, err := units.ParseEther(cmd.Args[0])
	if err != nil || amount.Sign() <= 0 {
		return Failure(KindInvalidArguments, fmt.Sprintf("invalid amount %q: must be a positive ETH value", cmd.Args[0]), "Usage: /deposit <amount>, e.g. /deposit 0.05")
	}
	owner, fail, ok := senderAddress(cmd)
	if !ok {
		return fail
	}
	wallet, fail, ok := h.primaryWallet(ctx, owner)
	if !ok {
		return fail
	}
	res, err := h.ledger.Deposit(ctx, wallet, amount)
	if err != nil {
		return FromError(err, "")
	}
	newBalance := "n/a"
	if res.NewBalance != nil {
		newBalance = units.FormatEther(res.NewBalance, 4) + " ETH"
	}
	return Success(fmt.Sprintf("💰 Deposited %s ETH into %s\nNew balance: %s\n%s",
		units.FormatEtherCompact(amount), wallet.Hex(), newBalance, h.txLines(res.TxHash)))
}

func (h *handlers) balance(ctx context.Context, cmd command.Command) Result {
	var target common.Address
	if len(cmd.Args) == 1 {
		addr, fail, ok := parseAddress(cmd.Args[0], "Usage: /balance [address]")
		if !ok {
			return fail
		}
		target = addr
	} else {
		owner, fail, ok := senderAddress(cmd)
		if !ok {
			return fail
		}
		wallet, fail, ok := h.primaryWallet(ctx, owner)
		if !ok {
			return fail
		}
		target = wallet
	}
	wei, err := h.ledger.GetBalance(ctx, target)
	if err != nil {
		return FromError(err, "")
	}
	return Success(fmt.Sprintf("💼 Balance of %s: %s ETH", target.Hex(), units.FormatEther(wei, 4)))
}

func (h *handlers) wallets(ctx context.Context, cmd command.Command) Result {
	owner, fail, ok := senderAddress(cmd)
	if !ok {
		return fail
	}
	wallets, err := h.ledger.ListUserWallets(ctx, owner)
	if err != nil {
		return FromError(err, "")
	}
	if len(wallets) == 0 {
		return Success("👛 You have no squad wallets yet. Create one with /create-wallet <name>.")
	}
	var b strings.Builder
	b.WriteString("👛 Your squad wallets:")
	for i, wallet := range wallets {
		name, err := h.ledger.WalletName(ctx, wallet)
		if err != nil || strings.TrimSpace(name) == "" {
			name = "(unnamed)"
		}
		marker := ""
		if i == 0 {
			marker = " [primary]"
		}
		fmt.Fprintf(&b, "\n%d. %s %s%s", i+1, name, wallet.Hex(), marker)
	}
	return Success(b.String())
}

func (h *handlers) play(ctx context.Context, cmd command.Command) Result {
	const usage = "Usage: /play <dice|coin> <wager>, e.g. /play dice 0.01"
	kind, ok := ledger.ParseGameKind(cmd.Args[0])
	if !ok {
		return Failure(KindInvalidArguments, fmt.Sprintf("unknown game %q", cmd.Args[0]), usage)
	}
	wager, err := units.ParseEther(cmd.Args[1])
	if err != nil || wager.Sign() <= 0 {
		return Failure(KindInvalidArguments, fmt.Sprintf("invalid wager %q", cmd.Args[1]), usage)
	}
	if wager.Cmp(h.opts.MinWager) < 0 || wager.Cmp(h.opts.MaxWager) > 0 {
		return Failure(KindInvalidArguments,
			fmt.Sprintf("wager must be between %s and %s ETH", units.FormatEtherCompact(h.opts.MinWager), units.FormatEtherCompact(h.opts.MaxWager)),
			usage)
	}
	res, err := h.ledger.CreateGame(ctx, kind, wager)
	if err != nil {
		return FromError(err, "")
	}
	return Success(fmt.Sprintf("%s %s game #%s created\nWager: %s ETH\n%s\nOthers can join with /join %s",
		gameIcon(kind), gameTitle(kind), res.GameID, units.FormatEtherCompact(wager), h.txLines(res.TxHash), res.GameID))
}

func (h *handlers) join(ctx context.Context, cmd command.Command) Result {
	const usage = "Usage: /join <gameId> [wager]"
	id, ok := new(big.Int).SetString(cmd.Args[0], 10)
	if !ok || id.Sign() <= 0 {
		return Failure(KindInvalidArguments, fmt.Sprintf("invalid game id %q", cmd.Args[0]), usage)
	}
	game, err := h.ledger.GetGame(ctx, id)
	if err != nil {
		if clierr.CodeOf(err) == clierr.CodeNotFound {
			return Failure(KindNotFound, fmt.Sprintf("game #%s not found", id), "List open games with /games.")
		}
		return FromError(err, "")
	}
	if game.State != ledger.GameStatePending {
		return Failure(KindInvalidArguments, fmt.Sprintf("game #%s is %s; only pending games can be joined", id, game.State), "List open games with /games.")
	}
	if len(cmd.Args) == 2 {
		wager, err := units.ParseEther(cmd.Args[1])
		if err != nil || wager.Cmp(game.Wager) != 0 {
			return Failure(KindInvalidArguments,
				fmt.Sprintf("wager %s does not match game #%s wager of %s ETH", cmd.Args[1], id, units.FormatEtherCompact(game.Wager)),
				"Omit the wager to join at the recorded amount.")
		}
	}
	receipt, err := h.ledger.JoinGame(ctx, id, game.Wager)
	if err != nil {
		return FromError(err, "")
	}
	return Success(fmt.Sprintf("%s Joined %s game #%s\nWager: %s ETH\n%s",
		gameIcon(game.Kind), strings.ToLower(gameTitle(game.Kind)), id, units.FormatEtherCompact(game.Wager), h.txLines(receipt.TxHash)))
}

func (h *handlers) games(ctx context.Context, _ command.Command) Result {
	games, err := h.ledger.ListActiveGames(ctx)
	if err != nil {
		return FromError(err, "")
	}
	if len(games) == 0 {
		return Success("🎮 No active games. Start one with /play dice 0.01")
	}
	var b strings.Builder
	b.WriteString("🎮 Active games:")
	for _, g := range games {
		fmt.Fprintf(&b, "\n#%s %s %s | wager %s ETH | %d player(s) | %s",
			g.ID, gameIcon(g.Kind), g.Kind, units.FormatEtherCompact(g.Wager), len(g.Players), g.State)
		if g.Winner != nil {
			fmt.Fprintf(&b, " | winner %s", g.Winner.Hex())
		}
	}
	return Success(b.String())
}

func (h *handlers) xp(ctx context.Context, cmd command.Command) Result {
	var target common.Address
	if len(cmd.Args) == 1 {
		addr, fail, ok := parseAddress(cmd.Args[0], "Usage: /xp [address]")
		if !ok {
			return fail
		}
		target = addr
	} else {
		owner, fail, ok := senderAddress(cmd)
		if !ok {
			return fail
		}
		target = owner
	}
	level, err := h.ledger.GetLevel(ctx, target)
	if err != nil {
		return FromError(err, "")
	}
	xp, err := h.ledger.GetXP(ctx, target)
	if err != nil {
		return FromError(err, "")
	}
	badges, err := h.ledger.GetBadges(ctx, target)
	if err != nil {
		return FromError(err, "")
	}
	badgeText := "none"
	if len(badges) > 0 {
		ids := make([]string, 0, len(badges))
		for _, b := range badges {
			ids = append(ids, "#"+b.String())
		}
		badgeText = strings.Join(ids, ", ")
	}
	return Success(fmt.Sprintf("⭐ Stats for %s\nLevel: %s\nXP: %s\nBadges: %s", target.Hex(), level, xp, badgeText))
}

func (h *handlers) leaderboard(ctx context.Context, cmd command.Command) Result {
	limit := DefaultLeaderboardLimit
	if len(cmd.Args) == 1 {
		n, err := strconv.Atoi(cmd.Args[0])
		if err != nil || n < 1 || n > MaxLeaderboardLimit {
			return Failure(KindInvalidArguments, fmt.Sprintf("limit must be between 1 and %d", MaxLeaderboardLimit), "Usage: /leaderboard [limit]")
		}
		limit = n
	}
	entries, err := h.ledger.Leaderboard(ctx, limit)
	if err != nil {
		return FromError(err, "")
	}
	if len(entries) == 0 {
		return Success("🏆 The leaderboard is empty. Play a game to earn XP.")
	}
	var b strings.Builder
	b.WriteString("🏆 Leaderboard:")
	for _, e := range entries {
		fmt.Fprintf(&b, "\n%s %s %s XP", rankLabel(e.Rank), e.Address.Hex(), e.XP)
	}
	return Success(b.String())
}

func (h *handlers) price(ctx context.Context, cmd command.Command) Result {
	symbol := pricefeed.NormalizeSymbol(cmd.Args[0])
	if symbol == "" {
		return Failure(KindInvalidArguments, "missing token symbol", "Usage: /price <symbol>, e.g. /price ETH")
	}
	return Success(FormatQuote(h.prices.GetQuote(ctx, symbol)))
}

var (
	priceOfPhrase     = regexp.MustCompile(`(?i)\bprice\s+(?:of\s+|for\s+)?\$?([a-z][a-z0-9]{1,9})\b`)
	symbolPricePhrase = regexp.MustCompile(`(?i)\$?\b([a-z][a-z0-9]{1,9})\s+price\b`)
	xpWord            = regexp.MustCompile(`\bxp\b`)
)

var chatStopwords = map[string]bool{"the": true, "a": true, "an": true, "this": true, "that": true, "what": true, "current": true, "token": true, "is": true, "my": true}

// chatSymbol finds a ticker in phrases like "btc price" or "price of eth".
func chatSymbol(text string) string {
	for _, re := range []*regexp.Regexp{symbolPricePhrase, priceOfPhrase} {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			if !chatStopwords[strings.ToLower(m[1])] {
				return m[1]
			}
		}
	}
	return ""
}

func (h *handlers) chat(ctx context.Context, cmd command.Command) Result {
	text := cmd.Args[0]
	lower := strings.ToLower(text)

	if symbol := chatSymbol(text); symbol != "" {
		if _, ok := h.d.lookup("price"); ok {
			return h.price(ctx, command.Command{Name: "price", Args: []string{symbol}, Sender: cmd.Sender, ConversationID: cmd.ConversationID})
		}
	}
	switch {
	case strings.Contains(lower, "help"), strings.Contains(lower, "command"):
		return Success(h.d.helpText())
	case strings.Contains(lower, "price"):
		return Success("📈 Ask me for a price with /price <symbol>, e.g. /price ETH")
	case strings.Contains(lower, "balance"):
		return Success("💼 Check your squad wallet with /balance, or any address with /balance <address>.")
	case strings.Contains(lower, "wallet"):
		return Success("👛 Create a squad wallet with /create-wallet <name> and list yours with /wallets.")
	case strings.Contains(lower, "game"), strings.Contains(lower, "play"), strings.Contains(lower, "dice"), strings.Contains(lower, "coin"):
		return Success("🎲 Start a game with /play <dice|coin> <wager> or see open ones with /games.")
	case xpWord.MatchString(lower), strings.Contains(lower, "level"), strings.Contains(lower, "leaderboard"):
		return Success("⭐ See your progress with /xp and the top players with /leaderboard.")
	default:
		return Success("👋 Hi! I run squad wallets and games on-chain for your group. Type /help to see what I can do.")
	}
}

func (h *handlers) primaryWallet(ctx context.Context, owner common.Address) (common.Address, Result, bool) {
	wallets, err := h.ledger.ListUserWallets(ctx, owner)
	if err != nil {
		return common.Address{}, FromError(err, ""), false
	}
	if len(wallets) == 0 {
		return common.Address{}, Failure(KindNotFound, "no wallet found for "+owner.Hex(), "Create one with /create-wallet <name>."), false
	}
	return wallets[0], Result{}, true
}

func (h *handlers) txLines(hash string) string {
	line := "Tx: " + hash
	if url := h.opts.Chain.TxURL(hash); url != "" {
		line += "\n🔗 " + url
	}
	return line
}

func senderAddress(cmd command.Command) (common.Address, Result, bool) {
	if !common.IsHexAddress(cmd.Sender) {
		return common.Address{}, Failure(KindInvalidArguments,
			"this command needs your wallet address, and none is linked to this chat",
			"Ask the operator to map your account to an address, or pass one explicitly where the command allows it."), false
	}
	return common.HexToAddress(cmd.Sender), Result{}, true
}

func parseAddress(v, usage string) (common.Address, Result, bool) {
	if !common.IsHexAddress(v) {
		return common.Address{}, Failure(KindInvalidArguments, fmt.Sprintf("invalid address %q", v), usage), false
	}
	return common.HexToAddress(v), Result{}, true
}

func gameIcon(kind ledger.GameKind) string {
	if kind == ledger.GameKindCoin {
		return "🪙"
	}
	return "🎲"
}

func gameTitle(kind ledger.GameKind) string {
	if kind == ledger.GameKindCoin {
		return "Coin flip"
	}
	return "Dice"
}

func rankLabel(rank int) string {
	switch rank {
	case 1:
		return "🥇"
	case 2:
		return "🥈"
	case 3:
		return "🥉"
	default:
		return fmt.Sprintf("%d.", rank)
	}
}
