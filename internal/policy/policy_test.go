package policy

import (
	"testing"

	clierr "github.com/ggonzalez94/squad-agent/internal/errors"
)

func TestCommandAllowed(t *testing.T) {
	if !CommandAllowed(nil, "play") {
		t.Fatal("expected empty allowlist to allow everything")
	}
	if !CommandAllowed([]string{"/Price", "balance"}, "price") {
		t.Fatal("expected command to be allowed")
	}
	if CommandAllowed([]string{"price"}, "play") {
		t.Fatal("expected command to be blocked")
	}
}

func TestValidateAllowlist(t *testing.T) {
	known := []string{"price", "play"}
	if err := ValidateAllowlist([]string{"PRICE"}, known); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := ValidateAllowlist([]string{"price", "swap"}, known)
	if clierr.CodeOf(err) != clierr.CodeUsage {
		t.Fatalf("expected usage error, got %v", err)
	}
}
