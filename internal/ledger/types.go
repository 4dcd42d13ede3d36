package ledger

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

type GameKind uint8

const (
	GameKindDice GameKind = 0
	GameKindCoin GameKind = 1
)

func (k GameKind) String() string {
	switch k {
	case GameKindDice:
		return "dice"
	case GameKindCoin:
		return "coin"
	default:
		return fmt.Sprintf("kind-%d", uint8(k))
	}
}

// ParseGameKind accepts "dice" and "coin" (or "coinflip").
func ParseGameKind(v string) (GameKind, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "dice":
		return GameKindDice, true
	case "coin", "coinflip", "coin-flip":
		return GameKindCoin, true
	default:
		return 0, false
	}
}

type GameState uint8

const (
	GameStatePending   GameState = 0
	GameStateActive    GameState = 1
	GameStateCompleted GameState = 2
	GameStateCancelled GameState = 3
)

func (s GameState) String() string {
	switch s {
	case GameStatePending:
		return "pending"
	case GameStateActive:
		return "active"
	case GameStateCompleted:
		return "completed"
	case GameStateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("state-%d", uint8(s))
	}
}

// Receipt is returned only once a transaction has a successful receipt.
type Receipt struct {
	TxHash      string
	BlockNumber uint64
	ConfirmedAt time.Time
}

type WalletCreation struct {
	Receipt
	WalletAddress common.Address
}

type DepositResult struct {
	Receipt
	NewBalance *big.Int
}

type GameCreation struct {
	Receipt
	GameID *big.Int
}

type Game struct {
	ID      *big.Int
	Kind    GameKind
	Creator common.Address
	Wager   *big.Int
	Players []common.Address
	State   GameState
	// Winner is nil until the game completes.
	Winner *common.Address
}

type LeaderboardEntry struct {
	Rank    int
	Address common.Address
	XP      *big.Int
}
