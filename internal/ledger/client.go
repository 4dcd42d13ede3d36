package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	clierr "github.com/ggonzalez94/squad-agent/internal/errors"
	"github.com/ggonzalez94/squad-agent/internal/journal"
	"github.com/ggonzalez94/squad-agent/internal/signer"
)

// Backend is the subset of an Ethereum JSON-RPC connection the client needs.
// *ethclient.Client satisfies it.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	Close()
}

// Recorder persists submission attempts. Failures are logged, never surfaced.
type Recorder interface {
	Record(entry journal.Entry) error
}

type Contracts struct {
	WalletFactory common.Address
	GameManager   common.Address
	XPBadges      common.Address
}

type Options struct {
	PollInterval   time.Duration
	ConfirmTimeout time.Duration
	GasMultiplier  float64
	Recorder       Recorder
	Logger         *slog.Logger
}

func DefaultOptions() Options {
	return Options{
		PollInterval:   2 * time.Second,
		ConfirmTimeout: 2 * time.Minute,
		GasMultiplier:  1.2,
	}
}

type Client struct {
	backend   Backend
	signer    signer.Signer
	contracts Contracts
	opts      Options
	logger    *slog.Logger
	now       func() time.Time
}

func New(backend Backend, txSigner signer.Signer, contracts Contracts, opts Options) *Client {
	defaults := DefaultOptions()
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaults.PollInterval
	}
	if opts.ConfirmTimeout <= 0 {
		opts.ConfirmTimeout = defaults.ConfirmTimeout
	}
	if opts.GasMultiplier <= 1 {
		opts.GasMultiplier = defaults.GasMultiplier
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		backend:   backend,
		signer:    txSigner,
		contracts: contracts,
		opts:      opts,
		logger:    logger,
		now:       time.Now,
	}
}

// Dial connects to rpcURL. An unreachable node is a network error.
func Dial(ctx context.Context, rpcURL string, txSigner signer.Signer, contracts Contracts, opts Options) (*Client, error) {
	if strings.TrimSpace(rpcURL) == "" {
		return nil, clierr.New(clierr.CodeUsage, "missing rpc url")
	}
	backend, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeNetwork, "connect rpc", err)
	}
	return New(backend, txSigner, contracts, opts), nil
}

func (c *Client) Close() {
	if c != nil && c.backend != nil {
		c.backend.Close()
	}
}

// SignerAddress is the account that pays for every submission.
func (c *Client) SignerAddress() common.Address {
	if c.signer == nil {
		return common.Address{}
	}
	return c.signer.Address()
}

func (c *Client) GetBalance(ctx context.Context, account common.Address) (*big.Int, error) {
	balance, err := c.backend.BalanceAt(ctx, account, nil)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeNetwork, "read balance", err)
	}
	return balance, nil
}

func (c *Client) GetXP(ctx context.Context, account common.Address) (*big.Int, error) {
	return c.callUint(ctx, xpBadgesABI, c.contracts.XPBadges, "getUserXP", account)
}

func (c *Client) GetLevel(ctx context.Context, account common.Address) (*big.Int, error) {
	return c.callUint(ctx, xpBadgesABI, c.contracts.XPBadges, "getUserLevel", account)
}

func (c *Client) GetBadges(ctx context.Context, account common.Address) ([]*big.Int, error) {
	out, err := c.call(ctx, xpBadgesABI, c.contracts.XPBadges, "getUserBadges", account)
	if err != nil {
		return nil, err
	}
	badges, ok := out[0].([]*big.Int)
	if !ok {
		return nil, decodeErr("getUserBadges")
	}
	return badges, nil
}

func (c *Client) Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	out, err := c.call(ctx, xpBadgesABI, c.contracts.XPBadges, "getLeaderboard", big.NewInt(int64(limit)))
	if err != nil {
		return nil, err
	}
	users, ok := out[0].([]common.Address)
	if !ok {
		return nil, decodeErr("getLeaderboard")
	}
	xp, ok := out[1].([]*big.Int)
	if !ok || len(xp) != len(users) {
		return nil, decodeErr("getLeaderboard")
	}
	entries := make([]LeaderboardEntry, 0, len(users))
	for i, user := range users {
		if len(entries) == limit {
			break
		}
		entries = append(entries, LeaderboardEntry{Rank: i + 1, Address: user, XP: xp[i]})
	}
	return entries, nil
}

func (c *Client) ListUserWallets(ctx context.Context, account common.Address) ([]common.Address, error) {
	out, err := c.call(ctx, walletFactoryABI, c.contracts.WalletFactory, "getUserWallets", account)
	if err != nil {
		return nil, err
	}
	wallets, ok := out[0].([]common.Address)
	if !ok {
		return nil, decodeErr("getUserWallets")
	}
	return wallets, nil
}

func (c *Client) WalletName(ctx context.Context, wallet common.Address) (string, error) {
	out, err := c.call(ctx, squadWalletABI, wallet, "name")
	if err != nil {
		return "", err
	}
	name, ok := out[0].(string)
	if !ok {
		return "", decodeErr("name")
	}
	return name, nil
}

// GetGame returns NotFound for ids the game manager does not know.
func (c *Client) GetGame(ctx context.Context, gameID *big.Int) (Game, error) {
	if gameID == nil || gameID.Sign() <= 0 {
		return Game{}, clierr.New(clierr.CodeNotFound, fmt.Sprintf("game %s not found", gameID))
	}
	out, err := c.call(ctx, gameManagerABI, c.contracts.GameManager, "getGame", gameID)
	if err != nil {
		if clierr.CodeOf(err) == clierr.CodeReverted {
			return Game{}, clierr.Wrap(clierr.CodeNotFound, fmt.Sprintf("game %s not found", gameID), err)
		}
		return Game{}, err
	}
	game, err := decodeGame(out)
	if err != nil {
		return Game{}, err
	}
	if game.Creator == (common.Address{}) {
		return Game{}, clierr.New(clierr.CodeNotFound, fmt.Sprintf("game %s not found", gameID))
	}
	return game, nil
}

func (c *Client) ListActiveGames(ctx context.Context) ([]Game, error) {
	out, err := c.call(ctx, gameManagerABI, c.contracts.GameManager, "getActiveGames")
	if err != nil {
		return nil, err
	}
	ids, ok := out[0].([]*big.Int)
	if !ok {
		return nil, decodeErr("getActiveGames")
	}
	games := make([]Game, 0, len(ids))
	for _, id := range ids {
		game, err := c.GetGame(ctx, id)
		if err != nil {
			if clierr.CodeOf(err) == clierr.CodeNotFound {
				continue
			}
			return nil, err
		}
		games = append(games, game)
	}
	return games, nil
}

func decodeGame(out []any) (Game, error) {
	if len(out) != 7 {
		return Game{}, decodeErr("getGame")
	}
	id, ok1 := out[0].(*big.Int)
	kind, ok2 := out[1].(uint8)
	creator, ok3 := out[2].(common.Address)
	wager, ok4 := out[3].(*big.Int)
	players, ok5 := out[4].([]common.Address)
	state, ok6 := out[5].(uint8)
	winner, ok7 := out[6].(common.Address)
	if !(ok1 && ok2 && ok3 && ok4 && ok5 && ok6 && ok7) {
		return Game{}, decodeErr("getGame")
	}
	game := Game{
		ID:      id,
		Kind:    GameKind(kind),
		Creator: creator,
		Wager:   wager,
		Players: players,
		State:   GameState(state),
	}
	if winner != (common.Address{}) {
		game.Winner = &winner
	}
	return game, nil
}

func (c *Client) callUint(ctx context.Context, contractABI abi.ABI, to common.Address, method string, args ...any) (*big.Int, error) {
	out, err := c.call(ctx, contractABI, to, method, args...)
	if err != nil {
		return nil, err
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, decodeErr(method)
	}
	return v, nil
}

// call performs a read-only eth_call at the latest block. Results are never
// cached.
func (c *Client) call(ctx context.Context, contractABI abi.ABI, to common.Address, method string, args ...any) ([]any, error) {
	if to == (common.Address{}) {
		return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("contract address for %s is not configured", method))
	}
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "pack "+method, err)
	}
	msg := ethereum.CallMsg{From: c.SignerAddress(), To: &to, Data: data}
	raw, err := c.backend.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, classifyExecutionError(method, err)
	}
	out, err := contractABI.Unpack(method, raw)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeNetwork, "decode "+method+" result", err)
	}
	if len(out) == 0 {
		return nil, decodeErr(method)
	}
	return out, nil
}

func decodeErr(method string) error {
	return clierr.New(clierr.CodeNetwork, fmt.Sprintf("unexpected %s result shape", method))
}
