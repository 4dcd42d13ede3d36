package schema

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Document describes the CLI command tree and the chat commands the agent
// answers to.
type Document struct {
	CLI  CommandSchema       `json:"cli"`
	Chat []ChatCommandSchema `json:"chat,omitempty"`
}

type CommandSchema struct {
	Path        string          `json:"path"`
	Use         string          `json:"use"`
	Short       string          `json:"short"`
	Aliases     []string        `json:"aliases,omitempty"`
	Flags       []FlagSchema    `json:"flags,omitempty"`
	Subcommands []CommandSchema `json:"subcommands,omitempty"`
}

type FlagSchema struct {
	Name      string `json:"name"`
	Shorthand string `json:"shorthand,omitempty"`
	Type      string `json:"type"`
	Usage     string `json:"usage"`
	Default   string `json:"default,omitempty"`
}

type ChatCommandSchema struct {
	Name    string `json:"name"`
	Usage   string `json:"usage"`
	Summary string `json:"summary,omitempty"`
}

// Build serializes the subtree at commandPath ("" for root). Chat commands
// are attached only when the root is requested.
func Build(root *cobra.Command, commandPath string, chat []ChatCommandSchema) (Document, error) {
	cmd := root
	path := strings.TrimSpace(commandPath)
	for _, p := range strings.Fields(path) {
		next := findChild(cmd, p)
		if next == nil {
			return Document{}, fmt.Errorf("command not found: %s", commandPath)
		}
		cmd = next
	}
	doc := Document{CLI: serialize(cmd)}
	if path == "" {
		doc.Chat = chat
	}
	return doc, nil
}

func findChild(cmd *cobra.Command, name string) *cobra.Command {
	for _, c := range cmd.Commands() {
		if c.Name() == name || slices.Contains(c.Aliases, name) {
			return c
		}
	}
	return nil
}

func serialize(cmd *cobra.Command) CommandSchema {
	s := CommandSchema{
		Path:    strings.TrimSpace(cmd.CommandPath()),
		Use:     cmd.Use,
		Short:   cmd.Short,
		Aliases: cmd.Aliases,
		Flags:   collectFlags(cmd),
	}
	for _, sub := range cmd.Commands() {
		if sub.Hidden {
			continue
		}
		s.Subcommands = append(s.Subcommands, serialize(sub))
	}
	return s
}

func collectFlags(cmd *cobra.Command) []FlagSchema {
	items := []FlagSchema{}
	cmd.NonInheritedFlags().VisitAll(func(f *pflag.Flag) {
		items = append(items, FlagSchema{
			Name:      f.Name,
			Shorthand: f.Shorthand,
			Type:      f.Value.Type(),
			Usage:     f.Usage,
			Default:   f.DefValue,
		})
	})
	return items
}
