package adapter

import (
	"context"
	"slices"
	"strings"
	"unicode/utf8"

	tele "gopkg.in/telebot.v4"

	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

// textLimit stays under Telegram's 4096 character cap with room for entities.
const textLimit = 4000

// SendText delivers text in as many messages as needed and returns the
// reference of the first one.
func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	so := &tele.SendOptions{ThreadID: to.ThreadID}
	if opt != nil {
		so.ParseMode = opt.ParseMode
		so.DisableWebPagePreview = opt.DisablePreview
	}
	chat := &tele.Chat{ID: to.ChatID}

	var first kit.MessageRef
	for i, part := range chunkText(text, textLimit, strings.EqualFold(so.ParseMode, tele.ModeHTML)) {
		if err := ctx.Err(); err != nil {
			return first, err
		}
		m, err := a.bot.Send(chat, part, so)
		if err != nil {
			return first, err
		}
		if i == 0 {
			first = kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: m.ID}
		}
	}
	return first, nil
}

// chunkText splits s into pieces of at most limit runes. It breaks at line
// ends where it can; a line longer than limit is cut hard, and with html set
// the cut moves back before an unclosed tag.
func chunkText(s string, limit int, html bool) []string {
	if utf8.RuneCountInString(s) <= limit {
		return []string{s}
	}
	var (
		out []string
		cur []rune
	)
	for _, line := range strings.Split(s, "\n") {
		rs := []rune(line)
		if len(cur) > 0 && len(cur)+1+len(rs) <= limit {
			cur = append(append(cur, '\n'), rs...)
			continue
		}
		if len(cur) > 0 {
			out = append(out, string(cur))
			cur = cur[:0]
		}
		for len(rs) > limit {
			cut := limit
			if html {
				if lt := lastRune(rs[:limit], '<'); lt > 0 && lt > lastRune(rs[:limit], '>') {
					cut = lt
				}
			}
			out = append(out, string(rs[:cut]))
			rs = rs[cut:]
		}
		cur = append(cur, rs...)
	}
	if len(cur) > 0 {
		out = append(out, string(cur))
	}
	return out
}

func lastRune(rs []rune, r rune) int {
	for i := len(rs) - 1; i >= 0; i-- {
		if rs[i] == r {
			return i
		}
	}
	return -1
}

// UpdateMenuCommands calls setMyCommands when cmds differ from the last
// list that was accepted.
func (a *Adapter) UpdateMenuCommands(_ context.Context, cmds []kit.BotCommand) error {
	a.menuMu.Lock()
	defer a.menuMu.Unlock()
	if a.menu != nil && slices.Equal(a.menu, cmds) {
		return nil
	}
	list := make([]tele.Command, 0, len(cmds))
	for _, c := range cmds {
		if c.Command != "" {
			list = append(list, tele.Command{Text: c.Command, Description: c.Description})
		}
	}
	if err := a.bot.SetCommands(list); err != nil {
		return err
	}
	a.menu = slices.Clone(cmds)
	a.log.Info("menu updated", logx.Int("commands", len(list)))
	return nil
}
