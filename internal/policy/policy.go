package policy

import (
	"fmt"
	"sort"
	"strings"

	clierr "github.com/ggonzalez94/squad-agent/internal/errors"
)

// CommandAllowed reports whether name passes the enable_commands allowlist.
// An empty allowlist enables everything.
func CommandAllowed(allowlist []string, name string) bool {
	if len(allowlist) == 0 {
		return true
	}
	norm := Normalize(name)
	for _, allowed := range allowlist {
		if Normalize(allowed) == norm {
			return true
		}
	}
	return false
}

// ValidateAllowlist rejects allowlist entries that name no known command.
func ValidateAllowlist(allowlist, known []string) error {
	index := make(map[string]struct{}, len(known))
	for _, name := range known {
		index[Normalize(name)] = struct{}{}
	}
	var unknown []string
	for _, allowed := range allowlist {
		if _, ok := index[Normalize(allowed)]; !ok {
			unknown = append(unknown, allowed)
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	sort.Strings(unknown)
	return clierr.New(clierr.CodeUsage, fmt.Sprintf("enable_commands lists unknown commands: %s", strings.Join(unknown, ", ")))
}

// Normalize lowercases and strips the command marker ("/Play" -> "play").
func Normalize(v string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(v)), "/")
}
