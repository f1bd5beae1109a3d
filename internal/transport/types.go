// Package transport holds the chat-platform neutral types shared by the
// Telegram adapter, the command router and the reminder notifier.
package transport

import "context"

type UpdateKind string

const UpdateMessage UpdateKind = "message"

type Update struct {
	Kind    UpdateKind
	Message *Message
}

// Message is an incoming text message.
type Message struct {
	ID     int
	ChatID int64
	// ThreadID is the forum topic, 0 outside topics.
	ThreadID     int
	FromID       int64
	FromUsername string
	FromName     string
	Text         string
	IsPrivate    bool
}

// ChatTarget addresses a chat and, in forum groups, one of its topics.
type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

// DirectTarget is the private chat with userID. Telegram uses the user ID as
// the chat ID.
func DirectTarget(userID int64) ChatTarget { return ChatTarget{ChatID: userID} }

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// Adapter is a running connection to a chat platform.
type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
}

type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is implemented by adapters whose platform shows a
// command menu.
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}
