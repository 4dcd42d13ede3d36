package chain

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

type Chain struct {
	Name       string
	Slug       string
	ID         int64
	DefaultRPC string
	Explorer   string
}

func (c Chain) CAIP2() string {
	return fmt.Sprintf("eip155:%d", c.ID)
}

// TxURL returns an explorer link for hash, or "" when the chain has no explorer.
func (c Chain) TxURL(hash string) string {
	if c.Explorer == "" || hash == "" {
		return ""
	}
	return strings.TrimRight(c.Explorer, "/") + "/tx/" + hash
}

var chainBySlug = map[string]Chain{
	"base":         {Name: "Base", Slug: "base", ID: 8453, DefaultRPC: "https://mainnet.base.org", Explorer: "https://basescan.org"},
	"base-sepolia": {Name: "Base Sepolia", Slug: "base-sepolia", ID: 84532, DefaultRPC: "https://sepolia.base.org", Explorer: "https://sepolia.basescan.org"},
	"ethereum":     {Name: "Ethereum", Slug: "ethereum", ID: 1, DefaultRPC: "https://eth.llamarpc.com", Explorer: "https://etherscan.io"},
	"sepolia":      {Name: "Sepolia", Slug: "sepolia", ID: 11155111, DefaultRPC: "https://rpc.sepolia.org", Explorer: "https://sepolia.etherscan.io"},
	"optimism":     {Name: "Optimism", Slug: "optimism", ID: 10, DefaultRPC: "https://mainnet.optimism.io", Explorer: "https://optimistic.etherscan.io"},
	"arbitrum":     {Name: "Arbitrum", Slug: "arbitrum", ID: 42161, DefaultRPC: "https://arb1.arbitrum.io/rpc", Explorer: "https://arbiscan.io"},
	"localhost":    {Name: "Localhost", Slug: "localhost", ID: 31337, DefaultRPC: "http://127.0.0.1:8545"},
}

var aliases = map[string]string{
	"mainnet": "ethereum",
	"basesep": "base-sepolia",
	"hardhat": "localhost",
	"anvil":   "localhost",
}

// Parse resolves a chain slug, alias, numeric id or eip155 CAIP-2 reference.
func Parse(input string) (Chain, error) {
	norm := strings.ToLower(strings.TrimSpace(input))
	if norm == "" {
		return Chain{}, fmt.Errorf("chain is required")
	}
	if alias, ok := aliases[norm]; ok {
		norm = alias
	}
	if c, ok := chainBySlug[norm]; ok {
		return c, nil
	}
	norm = strings.TrimPrefix(norm, "eip155:")
	id, err := strconv.ParseInt(norm, 10, 64)
	if err != nil || id <= 0 {
		return Chain{}, fmt.Errorf("unsupported chain %q (known: %s)", input, strings.Join(Slugs(), ", "))
	}
	if c, ok := ByID(id); ok {
		return c, nil
	}
	return Chain{Name: fmt.Sprintf("eip155:%d", id), Slug: norm, ID: id}, nil
}

func ByID(id int64) (Chain, bool) {
	for _, c := range chainBySlug {
		if c.ID == id {
			return c, true
		}
	}
	return Chain{}, false
}

func Slugs() []string {
	out := make([]string, 0, len(chainBySlug))
	for slug := range chainBySlug {
		out = append(out, slug)
	}
	sort.Strings(out)
	return out
}

// ResolveRPCURL prefers an explicit override and falls back to the chain default.
func ResolveRPCURL(override string, c Chain) (string, error) {
	if strings.TrimSpace(override) != "" {
		return strings.TrimSpace(override), nil
	}
	if c.DefaultRPC != "" {
		return c.DefaultRPC, nil
	}
	return "", fmt.Errorf("no default rpc configured for chain id %d; set chain.rpc_url", c.ID)
}
