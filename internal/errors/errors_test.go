package errors

import (
	"fmt"
	"testing"
)

func TestCodeOfUnwrapsTypedErrors(t *testing.T) {
	base := New(CodeReverted, "transaction reverted on-chain")
	wrapped := fmt.Errorf("join game: %w", base)
	if got := CodeOf(wrapped); got != CodeReverted {
		t.Fatalf("expected reverted code, got %v", got)
	}
	if got := CodeOf(fmt.Errorf("plain")); got != CodeInternal {
		t.Fatalf("expected internal code for untyped error, got %v", got)
	}
	if got := ExitCode(nil); got != 0 {
		t.Fatalf("expected exit 0 for nil error, got %d", got)
	}
}

func TestWrapKeepsCauseInMessage(t *testing.T) {
	err := Wrap(CodeNetwork, "connect rpc", fmt.Errorf("dial tcp: refused"))
	if err.Error() != "connect rpc: dial tcp: refused" {
		t.Fatalf("unexpected message: %s", err.Error())
	}
}

func TestIsLedger(t *testing.T) {
	for _, code := range []Code{CodeInsufficientFunds, CodeNotAMember, CodeReverted, CodeTimeout, CodeNetwork} {
		if !IsLedger(code) {
			t.Fatalf("expected %s to be a ledger code", code)
		}
	}
	if IsLedger(CodeNotFound) {
		t.Fatal("not_found should not be a ledger code")
	}
}
