package adapter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

func TestChunkText(t *testing.T) {
	require.Equal(t, []string{"short"}, chunkText("short", 10, false))

	long := strings.Repeat("a", 6) + "\n" + strings.Repeat("b", 6)
	require.Equal(t, []string{"aaaaaa", "bbbbbb"}, chunkText(long, 10, false))

	require.Equal(t, []string{"a\nb\nc", "dddd"}, chunkText("a\nb\nc\ndddd", 6, false))

	html := "abcdef<b>x</b>"
	parts := chunkText(html, 8, true)
	require.Equal(t, "abcdef", parts[0])
	require.Equal(t, html, strings.Join(parts, ""))

	plain := chunkText(html, 8, false)
	require.Equal(t, "abcdef<b", plain[0])

	cyr := strings.Repeat("ж", 9)
	require.Equal(t, []string{"жжжж", "жжжж", "ж"}, chunkText(cyr, 4, false))
}

func TestForwardDropsWhenFull(t *testing.T) {
	a, err := New(Config{Token: "T0K", Offline: true}, logx.Nop())
	require.NoError(t, err)

	up := kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{Text: "x"}}
	a.forward(up)
	require.Zero(t, a.dropped.Load(), "no consumer means nothing to drop")

	out := make(chan kit.Update, 1)
	var send chan<- kit.Update = out
	a.out.Store(&send)
	a.forward(up)
	a.forward(up)
	require.Len(t, out, 1)
	require.Equal(t, uint64(1), a.dropped.Load())
}

func TestToUpdate(t *testing.T) {
	_, ok := toUpdate(nil)
	require.False(t, ok)

	m := &tele.Message{
		ID:       5,
		Text:     "!remind 5 tea",
		ThreadID: 3,
		Chat:     &tele.Chat{ID: 42, Type: tele.ChatPrivate},
		Sender:   &tele.User{ID: 42, FirstName: "Ann", LastName: " Lee ", Username: "ann"},
	}
	up, ok := toUpdate(m)
	require.True(t, ok)
	assert.Equal(t, kit.UpdateMessage, up.Kind)
	assert.Equal(t, "Ann Lee", up.Message.FromName)
	assert.Equal(t, "ann", up.Message.FromUsername)
	assert.True(t, up.Message.IsPrivate)
	assert.Equal(t, 3, up.Message.ThreadID)

	m.Chat = &tele.Chat{ID: -100, Type: tele.ChatSuperGroup}
	m.Sender = &tele.User{ID: 7, FirstName: "  ", Username: "bob"}
	up, _ = toUpdate(m)
	assert.False(t, up.Message.IsPrivate)
	assert.Equal(t, "bob", up.Message.FromName)
}

func TestUpdateMenuCommandsSkipsUnchanged(t *testing.T) {
	var calls atomic.Int32
	var got struct {
		Commands []struct {
			Command string `json:"command"`
		} `json:"commands"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/botT0K/setMyCommands", r.URL.Path)
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"ok":true,"result":true}`))
	}))
	defer srv.Close()

	a, err := New(Config{Token: "T0K", APIURL: srv.URL, Offline: true}, logx.Nop())
	require.NoError(t, err)

	cmds := []kit.BotCommand{{Command: "remind", Description: "set a reminder"}, {Command: "reminders"}}
	require.NoError(t, a.UpdateMenuCommands(context.Background(), cmds))
	require.NoError(t, a.UpdateMenuCommands(context.Background(), cmds))
	require.Equal(t, int32(1), calls.Load())
	require.Len(t, got.Commands, 2)
	require.Equal(t, "remind", got.Commands[0].Command)
}

func TestNewRejectsEmptyToken(t *testing.T) {
	_, err := New(Config{Token: "  "}, logx.Nop())
	require.Error(t, err)
}
