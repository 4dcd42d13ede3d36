package dispatch

import (
	"strings"

	clierr "github.com/ggonzalez94/squad-agent/internal/errors"
)

// FailureMarker prefixes every failure reply.
const FailureMarker = "❌"

type Kind int

const (
	KindSuccess Kind = iota
	KindInvalidArguments
	KindUnknownCommand
	KindNotFound
	KindLedger
	KindPriceUnavailable
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindInvalidArguments:
		return "invalid_arguments"
	case KindUnknownCommand:
		return "unknown_command"
	case KindNotFound:
		return "not_found"
	case KindLedger:
		return "ledger_error"
	case KindPriceUnavailable:
		return "price_unavailable"
	default:
		return "internal"
	}
}

// Result is the outcome of one command. A no-reply result sends nothing.
type Result struct {
	Kind Kind
	Text string
	// LedgerCode refines KindLedger failures.
	LedgerCode clierr.Code
	noReply    bool
}

func Success(text string) Result {
	return Result{Kind: KindSuccess, Text: text}
}

func NoReply() Result {
	return Result{noReply: true}
}

// Failure formats message and an optional guidance line behind the failure
// marker.
func Failure(kind Kind, message, guidance string) Result {
	text := FailureMarker + " " + strings.TrimSpace(message)
	if g := strings.TrimSpace(guidance); g != "" {
		text += "\n" + g
	}
	return Result{Kind: kind, Text: text}
}

func (r Result) OK() bool { return !r.noReply && r.Kind == KindSuccess }

func (r Result) IsNoReply() bool { return r.noReply }

// Reply returns the text to send, or false when nothing should be sent.
func (r Result) Reply() (string, bool) {
	if r.noReply {
		return "", false
	}
	return r.Text, true
}

// Code maps the result to the process-level error code used by the CLI.
func (r Result) Code() clierr.Code {
	switch r.Kind {
	case KindSuccess:
		return clierr.CodeSuccess
	case KindInvalidArguments:
		return clierr.CodeInvalidArguments
	case KindUnknownCommand:
		return clierr.CodeUnknownCommand
	case KindNotFound:
		return clierr.CodeNotFound
	case KindLedger:
		if r.LedgerCode != clierr.CodeSuccess {
			return r.LedgerCode
		}
		return clierr.CodeNetwork
	case KindPriceUnavailable:
		return clierr.CodePriceUnavailable
	default:
		return clierr.CodeInternal
	}
}

// FromError maps a typed error into a failure, keeping the underlying message.
func FromError(err error, guidance string) Result {
	code := clierr.CodeOf(err)
	message := err.Error()
	switch {
	case code == clierr.CodeInvalidArguments || code == clierr.CodeUsage:
		return Failure(KindInvalidArguments, message, guidance)
	case code == clierr.CodeNotFound:
		return Failure(KindNotFound, message, guidance)
	case code == clierr.CodeUnknownCommand:
		return Failure(KindUnknownCommand, message, guidance)
	case code == clierr.CodePriceUnavailable:
		return Failure(KindPriceUnavailable, message, guidance)
	case clierr.IsLedger(code):
		if g := ledgerGuidance(code); g != "" {
			guidance = g
		}
		res := Failure(KindLedger, message, guidance)
		res.LedgerCode = code
		return res
	default:
		return Failure(KindInternal, message, guidance)
	}
}

func ledgerGuidance(code clierr.Code) string {
	switch code {
	case clierr.CodeInsufficientFunds:
		return "Top up the agent account or use a smaller amount."
	case clierr.CodeNotAMember:
		return "Only members of this squad wallet can do that."
	case clierr.CodeReverted:
		return "The contract rejected the transaction. Check the arguments and try again."
	case clierr.CodeTimeout:
		return "The transaction may still confirm. Check the explorer before re-issuing the command."
	case clierr.CodeNetwork:
		return "The chain node is unreachable right now. Try again shortly."
	default:
		return ""
	}
}
