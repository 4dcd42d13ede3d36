package ledger

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	clierr "github.com/ggonzalez94/squad-agent/internal/errors"
)

// classifyExecutionError maps an eth_call or gas estimation failure to a
// ledger error code. The decoded revert reason is kept in the message.
func classifyExecutionError(op string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := clierr.As(err); ok {
		return err
	}
	reason := revertReason(err)
	lowerMsg := strings.ToLower(err.Error())
	lowerReason := strings.ToLower(reason)

	message := op + " failed"
	if reason != "" {
		message = fmt.Sprintf("%s reverted: %s", op, reason)
	}
	switch {
	case strings.Contains(lowerMsg, "insufficient funds"):
		return clierr.Wrap(clierr.CodeInsufficientFunds, op+": insufficient funds for value plus gas", err)
	case isNotAMember(lowerMsg) || isNotAMember(lowerReason):
		return clierr.Wrap(clierr.CodeNotAMember, message, err)
	case reason != "" && strings.Contains(lowerReason, "insufficient"):
		return clierr.Wrap(clierr.CodeInsufficientFunds, message, err)
	case reason != "" || strings.Contains(lowerMsg, "execution reverted"):
		return clierr.Wrap(clierr.CodeReverted, message, err)
	default:
		return clierr.Wrap(clierr.CodeNetwork, message, err)
	}
}

// classifySendError maps a broadcast failure. Nodes report balance problems
// at submission time as plain strings.
func classifySendError(err error) error {
	lower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lower, "insufficient funds"):
		return clierr.Wrap(clierr.CodeInsufficientFunds, "broadcast transaction: insufficient funds", err)
	case strings.Contains(lower, "execution reverted"):
		return classifyExecutionError("broadcast transaction", err)
	default:
		return clierr.Wrap(clierr.CodeNetwork, "broadcast transaction", err)
	}
}

func isNotAMember(lower string) bool {
	return strings.Contains(lower, "not a member") || strings.Contains(lower, "notamember") || strings.Contains(lower, "not member")
}

// revertReason extracts a human readable reason from JSON-RPC error data.
func revertReason(err error) string {
	var dataErr rpc.DataError
	if !errors.As(err, &dataErr) {
		return ""
	}
	var raw []byte
	switch data := dataErr.ErrorData().(type) {
	case string:
		raw = common.FromHex(data)
	case []byte:
		raw = data
	default:
		return ""
	}
	return decodeRevertData(raw)
}

func decodeRevertData(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	if reason, err := abi.UnpackRevert(data); err == nil {
		return reason
	}
	if len(data) >= 4 {
		return fmt.Sprintf("custom error 0x%x", data[:4])
	}
	return ""
}
