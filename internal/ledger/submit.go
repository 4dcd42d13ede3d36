package ledger

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	clierr "github.com/ggonzalez94/squad-agent/internal/errors"
	"github.com/ggonzalez94/squad-agent/internal/journal"
)

// CreateWallet deploys a squad wallet with owner as its single member.
func (c *Client) CreateWallet(ctx context.Context, owner common.Address, name string) (WalletCreation, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return WalletCreation{}, clierr.New(clierr.CodeInvalidArguments, "wallet name is required")
	}
	data, err := walletFactoryABI.Pack("createSquadWallet", name, []common.Address{owner}, []string{""})
	if err != nil {
		return WalletCreation{}, clierr.Wrap(clierr.CodeInternal, "pack createSquadWallet", err)
	}
	receipt, result, err := c.transact(ctx, "create_wallet", c.contracts.WalletFactory, big.NewInt(0), data)
	if err != nil {
		return WalletCreation{}, err
	}
	event := walletFactoryABI.Events["SquadWalletCreated"]
	log := findLog(receipt, c.contracts.WalletFactory, event)
	if log == nil || len(log.Topics) < 2 {
		return WalletCreation{}, clierr.New(clierr.CodeInternal, "wallet created but SquadWalletCreated event missing from receipt "+result.TxHash)
	}
	return WalletCreation{
		Receipt:       result,
		WalletAddress: common.BytesToAddress(log.Topics[1].Bytes()),
	}, nil
}

// Deposit sends amount wei into wallet and reads the balance after
// confirmation.
func (c *Client) Deposit(ctx context.Context, wallet common.Address, amount *big.Int) (DepositResult, error) {
	if amount == nil || amount.Sign() <= 0 {
		return DepositResult{}, clierr.New(clierr.CodeInvalidArguments, "deposit amount must be positive")
	}
	data, err := squadWalletABI.Pack("deposit")
	if err != nil {
		return DepositResult{}, clierr.Wrap(clierr.CodeInternal, "pack deposit", err)
	}
	_, result, err := c.transact(ctx, "deposit", wallet, amount, data)
	if err != nil {
		return DepositResult{}, err
	}
	balance, err := c.GetBalance(ctx, wallet)
	if err != nil {
		// Confirmed already; balance is informational only.
		c.logger.Warn("read balance after deposit failed", "wallet", wallet.Hex(), "err", err)
	}
	return DepositResult{Receipt: result, NewBalance: balance}, nil
}

// CreateGame opens a game and stakes wager from the signer.
func (c *Client) CreateGame(ctx context.Context, kind GameKind, wager *big.Int) (GameCreation, error) {
	if wager == nil || wager.Sign() <= 0 {
		return GameCreation{}, clierr.New(clierr.CodeInvalidArguments, "wager must be positive")
	}
	method := "createDiceGame"
	if kind == GameKindCoin {
		method = "createCoinFlipGame"
	}
	data, err := gameManagerABI.Pack(method, wager)
	if err != nil {
		return GameCreation{}, clierr.Wrap(clierr.CodeInternal, "pack "+method, err)
	}
	receipt, result, err := c.transact(ctx, "create_game_"+kind.String(), c.contracts.GameManager, wager, data)
	if err != nil {
		return GameCreation{}, err
	}
	log := findLog(receipt, c.contracts.GameManager, gameManagerABI.Events["GameCreated"])
	if log == nil || len(log.Topics) < 2 {
		return GameCreation{}, clierr.New(clierr.CodeInternal, "game created but GameCreated event missing from receipt "+result.TxHash)
	}
	return GameCreation{
		Receipt: result,
		GameID:  new(big.Int).SetBytes(log.Topics[1].Bytes()),
	}, nil
}

// JoinGame stakes wager into gameID. The recorded wager is checked before
// anything is submitted.
func (c *Client) JoinGame(ctx context.Context, gameID *big.Int, wager *big.Int) (Receipt, error) {
	game, err := c.GetGame(ctx, gameID)
	if err != nil {
		return Receipt{}, err
	}
	if wager == nil || game.Wager.Cmp(wager) != 0 {
		return Receipt{}, clierr.New(clierr.CodeReverted, fmt.Sprintf("wager mismatch: game %s requires %s wei", gameID, game.Wager))
	}
	data, err := gameManagerABI.Pack("joinGame", gameID)
	if err != nil {
		return Receipt{}, clierr.Wrap(clierr.CodeInternal, "pack joinGame", err)
	}
	_, result, err := c.transact(ctx, "join_game", c.contracts.GameManager, wager, data)
	if err != nil {
		return Receipt{}, err
	}
	return result, nil
}

func findLog(receipt *types.Receipt, emitter common.Address, event abi.Event) *types.Log {
	if receipt == nil {
		return nil
	}
	for _, log := range receipt.Logs {
		if log == nil || len(log.Topics) == 0 {
			continue
		}
		if log.Address == emitter && log.Topics[0] == event.ID {
			return log
		}
	}
	return nil
}

// transact simulates, prices, signs, broadcasts and waits for one
// transaction. It submits at most once and never retries.
func (c *Client) transact(ctx context.Context, kind string, to common.Address, value *big.Int, data []byte) (*types.Receipt, Receipt, error) {
	if c.signer == nil {
		return nil, Receipt{}, clierr.New(clierr.CodeSigner, "missing signer")
	}
	if to == (common.Address{}) {
		return nil, Receipt{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("target contract for %s is not configured", kind))
	}
	from := c.signer.Address()

	chainID, err := c.backend.ChainID(ctx)
	if err != nil {
		return nil, Receipt{}, clierr.Wrap(clierr.CodeNetwork, "read chain id", err)
	}
	msg := ethereum.CallMsg{From: from, To: &to, Value: value, Data: data}

	if _, err := c.backend.CallContract(ctx, msg, nil); err != nil {
		return nil, Receipt{}, classifyExecutionError("simulate "+kind, err)
	}
	gasLimit, err := c.backend.EstimateGas(ctx, msg)
	if err != nil {
		return nil, Receipt{}, classifyExecutionError("estimate gas", err)
	}
	gasLimit = uint64(float64(gasLimit) * c.opts.GasMultiplier)

	tipCap, err := c.backend.SuggestGasTipCap(ctx)
	if err != nil {
		tipCap = big.NewInt(2_000_000_000) // 2 gwei fallback
	}
	header, err := c.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, Receipt{}, clierr.Wrap(clierr.CodeNetwork, "fetch latest header", err)
	}
	baseFee := header.BaseFee
	if baseFee == nil {
		baseFee = big.NewInt(1_000_000_000)
	}
	feeCap := new(big.Int).Mul(baseFee, big.NewInt(2))
	feeCap.Add(feeCap, tipCap)

	nonce, err := c.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, Receipt{}, clierr.Wrap(clierr.CodeNetwork, "fetch nonce", err)
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       gasLimit,
		To:        &to,
		Value:     value,
		Data:      data,
	})
	signed, err := c.signer.SignTx(chainID, tx)
	if err != nil {
		return nil, Receipt{}, clierr.Wrap(clierr.CodeSigner, "sign transaction", err)
	}

	entry := journal.NewEntry(kind, chainID.Int64(), from.Hex(), to.Hex(), value.String())
	entry.TxHash = signed.Hash().Hex()
	c.record(entry)

	if err := c.backend.SendTransaction(ctx, signed); err != nil {
		typed := classifySendError(err)
		c.finish(&entry, journal.StatusFailed, 0, typed)
		return nil, Receipt{}, typed
	}
	c.logger.Info("transaction submitted", "kind", kind, "tx_hash", entry.TxHash, "nonce", nonce)

	receipt, err := c.waitForReceipt(ctx, signed.Hash())
	if err != nil {
		status := journal.StatusFailed
		if clierr.CodeOf(err) == clierr.CodeTimeout {
			status = journal.StatusTimeout
		}
		var block uint64
		if receipt != nil && receipt.BlockNumber != nil {
			block = receipt.BlockNumber.Uint64()
		}
		c.finish(&entry, status, block, err)
		return nil, Receipt{}, err
	}

	result := Receipt{TxHash: entry.TxHash, ConfirmedAt: c.now().UTC()}
	if receipt.BlockNumber != nil {
		result.BlockNumber = receipt.BlockNumber.Uint64()
	}
	c.finish(&entry, journal.StatusConfirmed, result.BlockNumber, nil)
	c.logger.Info("transaction confirmed", "kind", kind, "tx_hash", entry.TxHash, "block", result.BlockNumber)
	return receipt, result, nil
}

// waitForReceipt polls until a receipt appears or ConfirmTimeout elapses. On
// timeout the transaction may still land later; it is not replaced.
func (c *Client) waitForReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	waitCtx, cancel := context.WithTimeout(ctx, c.opts.ConfirmTimeout)
	defer cancel()
	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()
	for {
		receipt, err := c.backend.TransactionReceipt(waitCtx, hash)
		if err == nil && receipt != nil {
			if receipt.Status == types.ReceiptStatusSuccessful {
				return receipt, nil
			}
			return receipt, clierr.New(clierr.CodeReverted, "transaction reverted on-chain: "+hash.Hex())
		}
		// Polling errors other than not-found are treated as transient.
		select {
		case <-waitCtx.Done():
			return nil, clierr.Wrap(clierr.CodeTimeout, "timed out waiting for confirmation of "+hash.Hex(), waitCtx.Err())
		case <-ticker.C:
		}
	}
}

func (c *Client) record(entry journal.Entry) {
	if c.opts.Recorder == nil {
		return
	}
	if err := c.opts.Recorder.Record(entry); err != nil {
		c.logger.Warn("journal write failed", "op_id", entry.OpID, "err", err)
	}
}

func (c *Client) finish(entry *journal.Entry, status journal.Status, block uint64, err error) {
	entry.Status = status
	entry.BlockNumber = block
	if err != nil {
		entry.Error = err.Error()
	}
	entry.Touch()
	c.record(*entry)
}
