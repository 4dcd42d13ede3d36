package command

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// Marker prefixes every slash command.
	Marker = "/"
	// Chat carries free text that did not start with Marker. Its only arg is the
	// original text.
	Chat = "__chat__"
	// Noop is produced for empty input and never answered.
	Noop = "__noop__"
)

type Command struct {
	Name           string
	Args           []string
	Sender         string
	ConversationID string

	noop bool
	chat bool
}

// IsNoop reports empty input. No slash command is ever a no-op.
func (c Command) IsNoop() bool { return c.noop }

// IsChat reports free text bound for the Chat handler.
func (c Command) IsChat() bool { return c.chat }

// Reserved reports names that only Parse may assign. A slash command carrying
// one of them is unknown.
func Reserved(name string) bool { return name == Chat || name == Noop }

// Parse turns raw message text into a Command. Tokens are split on runs of
// whitespace; there is no quoting or escaping.
func Parse(raw, sender, conversationID string) Command {
	cmd := Command{Sender: strings.TrimSpace(sender), ConversationID: conversationID}
	trimmed := strings.TrimSpace(raw)
	switch {
	case trimmed == "":
		cmd.Name = Noop
		cmd.noop = true
	case strings.HasPrefix(trimmed, Marker):
		rest := strings.TrimPrefix(trimmed, Marker)
		// The name starts right after the marker; "/ help" has none.
		if first, _ := utf8.DecodeRuneInString(rest); rest == "" || unicode.IsSpace(first) {
			cmd.Name = ""
			break
		}
		fields := strings.Fields(rest)
		cmd.Name = strings.ToLower(fields[0])
		if len(fields) > 1 {
			cmd.Args = fields[1:]
		}
	default:
		cmd.Name = Chat
		cmd.Args = []string{raw}
		cmd.chat = true
	}
	return cmd
}
