// Package command recognises user-issued bridge commands embedded in
// relayed messages and runs the account-linking (bind) protocol.
package command

import (
	"strings"

	"github.com/hollowdong/chatbridge/internal/bridge"
)

// Kind enumerates the closed command grammar.
type Kind int

const (
	KindHelp Kind = iota
	KindBind
	KindConfirmBind
	KindUnbind
)

// Command is one parsed user command.
type Command struct {
	Kind Kind
	Args []string
}

// keywords maps command tokens (including the Chinese aliases) to kinds.
// Matching is case-sensitive by keyword.
var keywords = map[string]Kind{
	"help":         KindHelp,
	"帮助":           KindHelp,
	"bind":         KindBind,
	"绑定":           KindBind,
	"confirm-bind": KindConfirmBind,
	"确认绑定":         KindConfirmBind,
	"unbind":       KindUnbind,
	"解除绑定":         KindUnbind,
}

// Parse recognises a command in a canonical chain: the first Plain
// segment, trimmed, must begin with "!" (full-width "！" accepted).
// Tokenisation is whitespace-split after the prefix.
func Parse(chain bridge.Chain) (Command, bool) {
	text := strings.TrimSpace(chain.FirstPlain())
	var rest string
	switch {
	case strings.HasPrefix(text, "!"):
		rest = text[1:]
	case strings.HasPrefix(text, "！"):
		rest = strings.TrimPrefix(text, "！")
	default:
		return Command{}, false
	}
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return Command{}, false
	}
	kind, ok := keywords[fields[0]]
	if !ok {
		return Command{}, false
	}
	return Command{Kind: kind, Args: fields[1:]}, true
}
