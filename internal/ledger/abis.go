package ledger

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// ABI fragments for the squad contracts. Only the members the agent calls are
// listed.
const (
	WalletFactoryABI = `[
		{"name":"createSquadWallet","type":"function","stateMutability":"nonpayable","inputs":[{"name":"name","type":"string"},{"name":"members","type":"address[]"},{"name":"memberNames","type":"string[]"}],"outputs":[{"name":"","type":"address"}]},
		{"name":"getUserWallets","type":"function","stateMutability":"view","inputs":[{"name":"user","type":"address"}],"outputs":[{"name":"","type":"address[]"}]},
		{"name":"SquadWalletCreated","type":"event","anonymous":false,"inputs":[{"name":"wallet","type":"address","indexed":true},{"name":"creator","type":"address","indexed":true},{"name":"name","type":"string","indexed":false}]}
	]`

	SquadWalletABI = `[
		{"name":"deposit","type":"function","stateMutability":"payable","inputs":[],"outputs":[]},
		{"name":"getBalance","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"name","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
		{"name":"isMember","type":"function","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"bool"}]}
	]`

	GameManagerABI = `[
		{"name":"createDiceGame","type":"function","stateMutability":"payable","inputs":[{"name":"wager","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"createCoinFlipGame","type":"function","stateMutability":"payable","inputs":[{"name":"wager","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"joinGame","type":"function","stateMutability":"payable","inputs":[{"name":"gameId","type":"uint256"}],"outputs":[]},
		{"name":"getGame","type":"function","stateMutability":"view","inputs":[{"name":"gameId","type":"uint256"}],"outputs":[{"name":"id","type":"uint256"},{"name":"gameType","type":"uint8"},{"name":"creator","type":"address"},{"name":"wager","type":"uint256"},{"name":"players","type":"address[]"},{"name":"state","type":"uint8"},{"name":"winner","type":"address"}]},
		{"name":"getActiveGames","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256[]"}]},
		{"name":"GameCreated","type":"event","anonymous":false,"inputs":[{"name":"gameId","type":"uint256","indexed":true},{"name":"gameType","type":"uint8","indexed":false},{"name":"creator","type":"address","indexed":true},{"name":"wager","type":"uint256","indexed":false}]}
	]`

	XPBadgesABI = `[
		{"name":"getUserXP","type":"function","stateMutability":"view","inputs":[{"name":"user","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"getUserLevel","type":"function","stateMutability":"view","inputs":[{"name":"user","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"getUserBadges","type":"function","stateMutability":"view","inputs":[{"name":"user","type":"address"}],"outputs":[{"name":"","type":"uint256[]"}]},
		{"name":"getLeaderboard","type":"function","stateMutability":"view","inputs":[{"name":"limit","type":"uint256"}],"outputs":[{"name":"users","type":"address[]"},{"name":"xp","type":"uint256[]"}]}
	]`
)

var (
	walletFactoryABI = mustABI(WalletFactoryABI)
	squadWalletABI   = mustABI(SquadWalletABI)
	gameManagerABI   = mustABI(GameManagerABI)
	xpBadgesABI      = mustABI(XPBadgesABI)
)

func mustABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}
