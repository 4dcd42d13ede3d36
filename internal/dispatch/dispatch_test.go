package dispatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ggonzalez94/squad-agent/internal/chain"
	"github.com/ggonzalez94/squad-agent/internal/command"
	clierr "github.com/ggonzalez94/squad-agent/internal/errors"
	"github.com/ggonzalez94/squad-agent/internal/ledger"
	"github.com/ggonzalez94/squad-agent/internal/pricefeed"
)

const (
	senderHex = "0x0000000000000000000000000000000000000ABC"
	walletHex = "0x0000000000000000000000000000000000000DEF"
	txHash    = "0x1111111111111111111111111111111111111111111111111111111111111111"
)

type fakeLedger struct {
	mu    sync.Mutex
	calls []string

	wallets     []common.Address
	walletNames map[common.Address]string
	balance     *big.Int
	games       map[int64]ledger.Game
	active      []ledger.Game
	xp, level   *big.Int
	badges      []*big.Int
	board       []ledger.LeaderboardEntry
	err         error

	createOwner common.Address
	createName  string
	joinWager   *big.Int
	depositTo   common.Address
}

func (f *fakeLedger) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
}

func (f *fakeLedger) called(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == name {
			n++
		}
	}
	return n
}

func (f *fakeLedger) CreateWallet(_ context.Context, owner common.Address, name string) (ledger.WalletCreation, error) {
	f.record("CreateWallet")
	f.createOwner, f.createName = owner, name
	if f.err != nil {
		return ledger.WalletCreation{}, f.err
	}
	return ledger.WalletCreation{Receipt: ledger.Receipt{TxHash: txHash}, WalletAddress: common.HexToAddress(walletHex)}, nil
}

func (f *fakeLedger) Deposit(_ context.Context, wallet common.Address, _ *big.Int) (ledger.DepositResult, error) {
	f.record("Deposit")
	f.depositTo = wallet
	if f.err != nil {
		return ledger.DepositResult{}, f.err
	}
	return ledger.DepositResult{Receipt: ledger.Receipt{TxHash: txHash}, NewBalance: f.balance}, nil
}

func (f *fakeLedger) CreateGame(_ context.Context, _ ledger.GameKind, _ *big.Int) (ledger.GameCreation, error) {
	f.record("CreateGame")
	if f.err != nil {
		return ledger.GameCreation{}, f.err
	}
	return ledger.GameCreation{Receipt: ledger.Receipt{TxHash: txHash}, GameID: big.NewInt(12)}, nil
}

func (f *fakeLedger) JoinGame(_ context.Context, _ *big.Int, wager *big.Int) (ledger.Receipt, error) {
	f.record("JoinGame")
	f.joinWager = wager
	if f.err != nil {
		return ledger.Receipt{}, f.err
	}
	return ledger.Receipt{TxHash: txHash}, nil
}

func (f *fakeLedger) GetBalance(context.Context, common.Address) (*big.Int, error) {
	f.record("GetBalance")
	return f.balance, nil
}

func (f *fakeLedger) GetXP(context.Context, common.Address) (*big.Int, error) {
	f.record("GetXP")
	return f.xp, nil
}

func (f *fakeLedger) GetLevel(context.Context, common.Address) (*big.Int, error) {
	f.record("GetLevel")
	return f.level, nil
}

func (f *fakeLedger) GetBadges(context.Context, common.Address) ([]*big.Int, error) {
	f.record("GetBadges")
	return f.badges, nil
}

func (f *fakeLedger) GetGame(_ context.Context, id *big.Int) (ledger.Game, error) {
	f.record("GetGame")
	g, ok := f.games[id.Int64()]
	if !ok {
		return ledger.Game{}, clierr.New(clierr.CodeNotFound, "game not found")
	}
	return g, nil
}

func (f *fakeLedger) ListUserWallets(context.Context, common.Address) ([]common.Address, error) {
	f.record("ListUserWallets")
	return f.wallets, nil
}

func (f *fakeLedger) WalletName(_ context.Context, wallet common.Address) (string, error) {
	return f.walletNames[wallet], nil
}

func (f *fakeLedger) ListActiveGames(context.Context) ([]ledger.Game, error) {
	f.record("ListActiveGames")
	return f.active, nil
}

func (f *fakeLedger) Leaderboard(_ context.Context, limit int) ([]ledger.LeaderboardEntry, error) {
	f.record("Leaderboard")
	if limit < len(f.board) {
		return f.board[:limit], nil
	}
	return f.board, nil
}

func (f *fakeLedger) submissions() int {
	return f.called("CreateWallet") + f.called("Deposit") + f.called("CreateGame") + f.called("JoinGame")
}

type stubProvider struct {
	calls int32
	quote pricefeed.Quote
	err   error
}

func (p *stubProvider) Fetch(_ context.Context, symbol string) (pricefeed.Quote, error) {
	atomic.AddInt32(&p.calls, 1)
	if p.err != nil {
		return pricefeed.Quote{}, p.err
	}
	q := p.quote
	q.Symbol = symbol
	return q, nil
}

type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time { return c.now }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func newTestDispatcher(l *fakeLedger, p pricefeed.Provider, clock *testClock) *Dispatcher {
	if clock == nil {
		clock = &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	}
	feed := pricefeed.New(p, pricefeed.NewMemoryCache(), pricefeed.Options{
		Now:    clock.Now,
		Rand:   rand.New(rand.NewSource(1)),
		Logger: quietLogger(),
	})
	return NewDefault(l, feed, Options{Logger: quietLogger()})
}

func run(d *Dispatcher, text string) Result {
	return d.Handle(context.Background(), command.Parse(text, senderHex, "conv-1"))
}

func TestCreateWalletRepliesWithAddressAndTx(t *testing.T) {
	l := &fakeLedger{}
	d := newTestDispatcher(l, &stubProvider{}, nil)

	res := run(d, "/create-wallet Squad1")
	if !res.OK() {
		t.Fatalf("expected success, got %+v", res)
	}
	if l.called("CreateWallet") != 1 || l.createName != "Squad1" || l.createOwner != common.HexToAddress(senderHex) {
		t.Fatalf("unexpected CreateWallet call: owner=%s name=%q", l.createOwner.Hex(), l.createName)
	}
	if !strings.Contains(res.Text, common.HexToAddress(walletHex).Hex()) || !strings.Contains(res.Text, txHash) {
		t.Fatalf("expected wallet address and tx hash in reply: %s", res.Text)
	}
}

func TestPriceReplyFormatsProviderQuote(t *testing.T) {
	provider := &stubProvider{quote: pricefeed.Quote{Price: 2000, Change24h: 1.5, Currency: "USD"}}
	d := newTestDispatcher(&fakeLedger{}, provider, nil)

	res := run(d, "/price ETH")
	if !res.OK() {
		t.Fatalf("expected success, got %+v", res)
	}
	for _, want := range []string{"2000.00", "+1.50%", "Volume 24h: n/a", "Market cap: n/a"} {
		if !strings.Contains(res.Text, want) {
			t.Fatalf("expected %q in reply: %s", want, res.Text)
		}
	}
}

func TestPriceCacheLawThroughDispatcher(t *testing.T) {
	clock := &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	provider := &stubProvider{quote: pricefeed.Quote{Price: 2000, Change24h: 1.5}}
	d := newTestDispatcher(&fakeLedger{}, provider, clock)

	first := run(d, "/price eth")
	clock.now = clock.now.Add(30 * time.Second)
	second := run(d, "/price ETH")
	if got := atomic.LoadInt32(&provider.calls); got != 1 {
		t.Fatalf("expected one fetch within the window, got %d", got)
	}
	if first.Text != second.Text {
		t.Fatalf("expected identical replies within the window:\n%s\n%s", first.Text, second.Text)
	}
	clock.now = clock.now.Add(61 * time.Second)
	run(d, "/price ETH")
	if got := atomic.LoadInt32(&provider.calls); got != 2 {
		t.Fatalf("expected exactly one more fetch after expiry, got %d", got)
	}
}

func TestPriceFallbackIsStillSuccess(t *testing.T) {
	provider := &stubProvider{err: clierr.New(clierr.CodeUnavailable, "provider down")}
	d := newTestDispatcher(&fakeLedger{}, provider, nil)

	res := run(d, "/price BTC")
	if !res.OK() {
		t.Fatalf("expected success on fallback, got %+v", res)
	}
	if !strings.Contains(res.Text, "BTC: $") || !strings.Contains(res.Text, "estimated") {
		t.Fatalf("expected numeric fallback price with note: %s", res.Text)
	}
}

func TestDepositRejectsNegativeWithoutLedgerCall(t *testing.T) {
	l := &fakeLedger{}
	d := newTestDispatcher(l, &stubProvider{}, nil)

	res := run(d, "/deposit -1")
	if res.Kind != KindInvalidArguments {
		t.Fatalf("expected invalid arguments, got %s", res.Kind)
	}
	if !strings.HasPrefix(res.Text, FailureMarker) {
		t.Fatalf("expected failure marker: %s", res.Text)
	}
	if len(l.calls) != 0 {
		t.Fatalf("expected no ledger calls, got %v", l.calls)
	}
}

func TestDepositUsesPrimaryWallet(t *testing.T) {
	primary := common.HexToAddress(walletHex)
	l := &fakeLedger{
		wallets: []common.Address{primary, common.HexToAddress("0x0000000000000000000000000000000000000999")},
		balance: big.NewInt(1_234_567_000_000_000_000),
	}
	d := newTestDispatcher(l, &stubProvider{}, nil)

	res := run(d, "/deposit 0.5")
	if !res.OK() {
		t.Fatalf("expected success, got %+v", res)
	}
	if l.depositTo != primary {
		t.Fatalf("expected deposit into primary wallet, got %s", l.depositTo.Hex())
	}
	for _, want := range []string{"0.5 ETH", "1.2345 ETH", txHash} {
		if !strings.Contains(res.Text, want) {
			t.Fatalf("expected %q in reply: %s", want, res.Text)
		}
	}
}

func TestDepositWithoutWalletIsNotFound(t *testing.T) {
	l := &fakeLedger{}
	d := newTestDispatcher(l, &stubProvider{}, nil)

	res := run(d, "/deposit 0.1")
	if res.Kind != KindNotFound || !strings.Contains(res.Text, "/create-wallet") {
		t.Fatalf("expected not found with guidance, got %+v", res)
	}
	if l.submissions() != 0 {
		t.Fatal("expected no submission")
	}
}

func TestJoinUnknownGameIsNotFound(t *testing.T) {
	l := &fakeLedger{games: map[int64]ledger.Game{}}
	d := newTestDispatcher(l, &stubProvider{}, nil)

	res := run(d, "/join 999")
	if res.Kind != KindNotFound {
		t.Fatalf("expected not found, got %+v", res)
	}
	if l.submissions() != 0 {
		t.Fatal("expected no submission")
	}
}

func TestJoinMatchesRecordedWager(t *testing.T) {
	wager := big.NewInt(10_000_000_000_000_000)
	l := &fakeLedger{games: map[int64]ledger.Game{
		3: {ID: big.NewInt(3), Kind: ledger.GameKindDice, Wager: wager, State: ledger.GameStatePending},
	}}
	d := newTestDispatcher(l, &stubProvider{}, nil)

	res := run(d, "/join 3")
	if !res.OK() {
		t.Fatalf("expected success, got %+v", res)
	}
	if l.joinWager.Cmp(wager) != 0 {
		t.Fatalf("expected join at recorded wager, got %s", l.joinWager)
	}

	res = run(d, "/join 3 0.02")
	if res.Kind != KindInvalidArguments {
		t.Fatalf("expected invalid arguments on mismatched wager, got %+v", res)
	}
	if l.called("JoinGame") != 1 {
		t.Fatal("expected mismatched wager to skip submission")
	}
}

func TestJoinRejectsNonPendingGame(t *testing.T) {
	l := &fakeLedger{games: map[int64]ledger.Game{
		4: {ID: big.NewInt(4), Wager: big.NewInt(1), State: ledger.GameStateCompleted},
	}}
	d := newTestDispatcher(l, &stubProvider{}, nil)

	if res := run(d, "/join 4"); res.Kind != KindInvalidArguments {
		t.Fatalf("expected invalid arguments, got %+v", res)
	}
}

func TestPlayEnforcesWagerBounds(t *testing.T) {
	l := &fakeLedger{}
	d := newTestDispatcher(l, &stubProvider{}, nil)

	for _, text := range []string{"/play dice 5", "/play dice 0.0001", "/play poker 0.01", "/play dice"} {
		if res := run(d, text); res.Kind != KindInvalidArguments {
			t.Fatalf("%s: expected invalid arguments, got %+v", text, res)
		}
	}
	if l.submissions() != 0 {
		t.Fatal("expected no submissions")
	}
	res := run(d, "/play coin 0.01")
	if !res.OK() || !strings.Contains(res.Text, "#12") || !strings.Contains(res.Text, "0.01 ETH") {
		t.Fatalf("unexpected play reply %+v", res)
	}
}

func TestLedgerFailureCarriesCode(t *testing.T) {
	l := &fakeLedger{err: clierr.New(clierr.CodeTimeout, "timed out waiting for confirmation")}
	d := newTestDispatcher(l, &stubProvider{}, nil)

	res := run(d, "/play dice 0.01")
	if res.Kind != KindLedger || res.LedgerCode != clierr.CodeTimeout {
		t.Fatalf("expected ledger timeout, got %+v", res)
	}
	if !strings.Contains(res.Text, "timed out waiting") || !strings.Contains(res.Text, "explorer") {
		t.Fatalf("expected underlying message and guidance: %s", res.Text)
	}
	if res.Code() != clierr.CodeTimeout {
		t.Fatalf("unexpected exit code mapping %v", res.Code())
	}
	if l.called("CreateGame") != 1 {
		t.Fatal("expected exactly one submission attempt")
	}
}

func TestSenderScopedCommandWithoutSender(t *testing.T) {
	d := newTestDispatcher(&fakeLedger{}, &stubProvider{}, nil)
	res := d.Handle(context.Background(), command.Parse("/wallets", "", "c"))
	if res.Kind != KindInvalidArguments {
		t.Fatalf("expected invalid arguments, got %+v", res)
	}
}

func TestReadCommandsRepeatEqual(t *testing.T) {
	l := &fakeLedger{
		wallets: []common.Address{common.HexToAddress(walletHex)},
		balance: big.NewInt(2_000_000_000_000_000_000),
		xp:      big.NewInt(250),
		level:   big.NewInt(3),
		badges:  []*big.Int{big.NewInt(1), big.NewInt(4)},
	}
	d := newTestDispatcher(l, &stubProvider{}, nil)

	for _, text := range []string{"/balance", "/xp"} {
		a, b := run(d, text), run(d, text)
		if !a.OK() || a.Text != b.Text {
			t.Fatalf("%s: expected equal successful replies:\n%s\n%s", text, a.Text, b.Text)
		}
	}
	if l.called("GetBalance") != 2 {
		t.Fatal("expected every balance read to hit the ledger")
	}
	xp := run(d, "/xp")
	for _, want := range []string{"Level: 3", "XP: 250", "#1, #4"} {
		if !strings.Contains(xp.Text, want) {
			t.Fatalf("expected %q in reply: %s", want, xp.Text)
		}
	}
	if bal := run(d, "/balance"); !strings.Contains(bal.Text, "2.0000 ETH") {
		t.Fatalf("expected 4-decimal balance: %s", bal.Text)
	}
}

func TestBalanceRejectsBadAddress(t *testing.T) {
	d := newTestDispatcher(&fakeLedger{}, &stubProvider{}, nil)
	if res := run(d, "/balance nope"); res.Kind != KindInvalidArguments {
		t.Fatalf("expected invalid arguments, got %+v", res)
	}
}

func TestLeaderboardLimitAndFields(t *testing.T) {
	a := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	l := &fakeLedger{board: []ledger.LeaderboardEntry{
		{Rank: 1, Address: a, XP: big.NewInt(900)},
		{Rank: 2, Address: common.HexToAddress("0x00000000000000000000000000000000000000a2"), XP: big.NewInt(400)},
	}}
	d := newTestDispatcher(l, &stubProvider{}, nil)

	res := run(d, "/leaderboard 1")
	if !res.OK() || !strings.Contains(res.Text, a.Hex()) || !strings.Contains(res.Text, "900 XP") {
		t.Fatalf("unexpected leaderboard reply %+v", res)
	}
	if strings.Contains(res.Text, "400 XP") {
		t.Fatalf("expected limit to apply: %s", res.Text)
	}
	if res := run(d, "/leaderboard 51"); res.Kind != KindInvalidArguments {
		t.Fatalf("expected invalid arguments for limit over max, got %+v", res)
	}
}

func TestGamesListsActiveGames(t *testing.T) {
	l := &fakeLedger{active: []ledger.Game{
		{ID: big.NewInt(5), Kind: ledger.GameKindCoin, Wager: big.NewInt(10_000_000_000_000_000), Players: []common.Address{{}}, State: ledger.GameStatePending},
	}}
	d := newTestDispatcher(l, &stubProvider{}, nil)

	res := run(d, "/games")
	for _, want := range []string{"#5", "coin", "0.01 ETH", "1 player(s)", "pending"} {
		if !strings.Contains(res.Text, want) {
			t.Fatalf("expected %q in reply: %s", want, res.Text)
		}
	}
}

func TestWalletsListsNames(t *testing.T) {
	w := common.HexToAddress(walletHex)
	l := &fakeLedger{wallets: []common.Address{w}, walletNames: map[common.Address]string{w: "Squad1"}}
	d := newTestDispatcher(l, &stubProvider{}, nil)

	res := run(d, "/wallets")
	if !strings.Contains(res.Text, "Squad1") || !strings.Contains(res.Text, w.Hex()) {
		t.Fatalf("unexpected wallets reply: %s", res.Text)
	}
}

func TestChatFallback(t *testing.T) {
	provider := &stubProvider{quote: pricefeed.Quote{Price: 3500, Change24h: -2}}
	d := newTestDispatcher(&fakeLedger{}, provider, nil)

	res := run(d, "hello there")
	if !res.OK() || !strings.Contains(res.Text, "/help") {
		t.Fatalf("expected conversational reply, got %+v", res)
	}
	res = run(d, "what is the price of eth?")
	if !res.OK() || !strings.Contains(res.Text, "ETH: $3500.00") || !strings.Contains(res.Text, "-2.00%") {
		t.Fatalf("expected price answer, got %s", res.Text)
	}
	res = run(d, "how do I check my balance")
	if !strings.Contains(res.Text, "/balance") {
		t.Fatalf("expected balance pointer, got %s", res.Text)
	}
	res = run(d, "that is expensive")
	if strings.Contains(res.Text, "/xp") {
		t.Fatalf("expected no xp hint inside a word, got %s", res.Text)
	}
	res = run(d, "how much XP do I have")
	if !strings.Contains(res.Text, "/xp") {
		t.Fatalf("expected xp pointer, got %s", res.Text)
	}
}

func TestUnknownAndNoop(t *testing.T) {
	d := newTestDispatcher(&fakeLedger{}, &stubProvider{}, nil)

	res := run(d, "/swap 1 eth")
	if res.Kind != KindUnknownCommand || !strings.Contains(res.Text, "/help") {
		t.Fatalf("expected unknown command, got %+v", res)
	}
	if res := run(d, "/"); res.Kind != KindUnknownCommand {
		t.Fatalf("expected lone marker to be unknown, got %+v", res)
	}
	if _, ok := run(d, "   ").Reply(); ok {
		t.Fatal("expected no reply for empty input")
	}
}

func TestReservedNamesAsSlashCommandsAreUnknown(t *testing.T) {
	d := newTestDispatcher(&fakeLedger{}, &stubProvider{}, nil)
	for _, text := range []string{"/__noop__", "/__chat__ hi", "/ help"} {
		res := run(d, text)
		if res.Kind != KindUnknownCommand {
			t.Fatalf("%q: expected unknown command, got %+v", text, res)
		}
		if reply, ok := res.Reply(); !ok || !strings.Contains(reply, "/help") {
			t.Fatalf("%q: expected a single reply pointing at /help, got %q", text, reply)
		}
	}
}

func TestHelpListsSortedCommands(t *testing.T) {
	d := newTestDispatcher(&fakeLedger{}, &stubProvider{}, nil)
	res := run(d, "/help")
	balance := strings.Index(res.Text, "/balance [address]")
	price := strings.Index(res.Text, "/price <symbol>")
	if balance < 0 || price < 0 || balance > price {
		t.Fatalf("expected sorted usage lines: %s", res.Text)
	}
	if strings.Contains(res.Text, command.Chat) {
		t.Fatal("chat fallback must not be listed")
	}
}

func TestEnabledCommandsAllowlist(t *testing.T) {
	d := NewDefault(&fakeLedger{}, pricefeed.New(&stubProvider{}, nil, pricefeed.Options{Logger: quietLogger()}), Options{
		EnabledCommands: []string{"price"},
		Logger:          quietLogger(),
	})
	if res := run(d, "/play dice 0.01"); res.Kind != KindUnknownCommand {
		t.Fatalf("expected disabled command to be unknown, got %+v", res)
	}
	if res := run(d, "/help"); !res.OK() {
		t.Fatal("expected help to stay registered")
	}
	if names := d.Names(); len(names) != 2 {
		t.Fatalf("expected help and price only, got %v", names)
	}
}

func TestPanickingHandlerIsInternalFailure(t *testing.T) {
	d := New(quietLogger())
	d.Register("boom", HandlerFunc(func(context.Context, command.Command) Result { panic("kaboom") }))

	res := d.Handle(context.Background(), command.Command{Name: "boom"})
	if res.Kind != KindInternal || !strings.HasPrefix(res.Text, FailureMarker) {
		t.Fatalf("expected internal failure, got %+v", res)
	}
}

func TestRegisterLastWins(t *testing.T) {
	d := New(quietLogger())
	d.Register("x", HandlerFunc(func(context.Context, command.Command) Result { return Success("one") }))
	d.Register("X", HandlerFunc(func(context.Context, command.Command) Result { return Success("two") }))
	if res := d.Handle(context.Background(), command.Command{Name: "x"}); res.Text != "two" {
		t.Fatalf("expected last registration to win, got %q", res.Text)
	}
}

func TestTxLinesIncludeExplorer(t *testing.T) {
	base, err := chain.Parse("base")
	if err != nil {
		t.Fatalf("parse chain: %v", err)
	}
	h := &handlers{opts: Options{Chain: base}}
	if lines := h.txLines(txHash); !strings.Contains(lines, "/tx/"+txHash) {
		t.Fatalf("expected explorer link: %s", lines)
	}
}

func TestFromErrorUntypedIsInternal(t *testing.T) {
	res := FromError(errors.New("boom"), "")
	if res.Kind != KindInternal || res.Code() != clierr.CodeInternal {
		t.Fatalf("unexpected mapping %+v", res)
	}
}

func TestFormatHelpers(t *testing.T) {
	cases := []struct{ got, want string }{
		{FormatPrice(2000), "2000.00"},
		{FormatPrice(0.99985), "0.999850"},
		{FormatChange(1.5), "+1.50%"},
		{FormatChange(-0.25), "-0.25%"},
		{FormatCompact(999), "999.00"},
		{FormatCompact(1500), "1.50K"},
		{FormatCompact(2_500_000), "2.50M"},
		{FormatCompact(420_000_000_000), "420.00B"},
		{FormatCompact(999.999), "1.00K"},
		{FormatCompact(999_999.999), "1.00M"},
		{FormatCompact(999_999_999.999), "1.00B"},
		{FormatCompact(-999_999.999), "-1.00M"},
	}
	for _, tc := range cases {
		if tc.got != tc.want {
			t.Fatalf("expected %q, got %q", tc.want, tc.got)
		}
	}
}

func TestChatSymbol(t *testing.T) {
	cases := map[string]string{
		"what is the price of eth?": "eth",
		"btc price pls":             "btc",
		"what's the price":          "",
		"hello there":               "",
	}
	for text, want := range cases {
		if got := chatSymbol(text); got != want {
			t.Fatalf("%q: expected %q, got %q", text, want, got)
		}
	}
}
