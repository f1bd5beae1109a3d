package router

import (
	"regexp"
	"slices"
	"strings"

	kit "remindbot/internal/transport"
)

// Telegram accepts lowercase Latin command names only.
var menuName = regexp.MustCompile(`^[a-z][a-z0-9_]{0,31}$`)

const (
	maxMenu     = 100
	maxMenuDesc = 256
)

// menuCommands lists public Menu commands by canonical name, sorted. Cyrillic
// and multi-word aliases keep working in chat but never reach the menu.
func menuCommands(cmds []Command) []kit.BotCommand {
	var out []kit.BotCommand
	for _, c := range cmds {
		if !c.Menu || c.Access == AccessOwnerOnly || !menuName.MatchString(c.Name) {
			continue
		}
		if slices.ContainsFunc(out, func(b kit.BotCommand) bool { return b.Command == c.Name }) {
			continue
		}
		desc := strings.Join(strings.Fields(c.Description), " ")
		if desc == "" {
			desc = c.Name
		}
		if rs := []rune(desc); len(rs) > maxMenuDesc {
			desc = string(rs[:maxMenuDesc])
		}
		out = append(out, kit.BotCommand{Command: c.Name, Description: desc})
	}
	slices.SortFunc(out, func(a, b kit.BotCommand) int { return strings.Compare(a.Command, b.Command) })
	if len(out) > maxMenu {
		out = out[:maxMenu]
	}
	return out
}
