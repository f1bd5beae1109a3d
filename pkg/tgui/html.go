// Package tgui formats text for Telegram's HTML parse mode.
package tgui

import (
	"html"
	"strconv"
)

// Esc escapes the characters Telegram HTML treats as markup.
func Esc(s string) string { return html.EscapeString(s) }

func Bold(s string) string { return "<b>" + Esc(s) + "</b>" }

func Code(s string) string { return "<code>" + Esc(s) + "</code>" }

// Mention links to a user by ID, so it works without a username.
// An empty name is shown as "id<N>".
func Mention(name string, userID int64) string {
	id := strconv.FormatInt(userID, 10)
	if name == "" {
		name = "id" + id
	}
	return `<a href="tg://user?id=` + id + `">` + Esc(name) + "</a>"
}

// Clip keeps the first n runes of s and marks a cut with "…".
func Clip(s string, n int) string {
	if n <= 0 {
		return ""
	}
	kept := 0
	for i := range s {
		if kept == n {
			return s[:i] + "…"
		}
		kept++
	}
	return s
}
