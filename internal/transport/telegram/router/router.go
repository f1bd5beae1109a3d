// Package router turns chat messages into command invocations. Commands are
// addressed by a prefix plus one or more alias words; several commands may
// share an alias and are then told apart by whether arguments follow.
package router

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"remindbot/internal/runtime/supervisor"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

type Access int

const (
	AccessEveryone Access = iota
	AccessOwnerOnly
)

// ArgPolicy selects among commands sharing an alias.
type ArgPolicy int

const (
	ArgsAny ArgPolicy = iota
	ArgsNone
	ArgsRequired
)

type Command struct {
	// Name is the canonical word and is always matched as an alias.
	Name string
	// Aliases may span several words ("clear reminders").
	Aliases     []string
	Description string
	Args        ArgPolicy
	Access      Access
	Menu        bool
	Timeout     time.Duration
	Handle      HandlerFunc
}

type Request struct {
	Message *kit.Message
	Chat    kit.ChatTarget
	FromID  int64
	Command string
	// Args keeps the original casing and inner spacing.
	Args   string
	ReqID  string
	Logger logx.Logger

	owner bool
	out   kit.Adapter
}

var replyOpts = &kit.SendOptions{ParseMode: "HTML", DisablePreview: true}

// Reply sends HTML back to the originating chat and topic.
func (r *Request) Reply(ctx context.Context, html string) error {
	_, err := r.out.SendText(ctx, r.Chat, html, replyOpts)
	return err
}

func (r *Request) IsOwner() bool { return r.owner }

var DefaultPrefixes = []string{"!", "/"}

type Router struct {
	log     logx.Logger
	out     kit.Adapter
	workers int
	queue   int
	sups    *supervisor.Registry

	mu       sync.RWMutex
	root     *cmdNode
	owners   []int64
	prefixes []string
}

type Option func(*Router)

// WithWorkers sets the handler pool size; zero or less means two.
func WithWorkers(n int) Option { return func(r *Router) { r.workers = n } }

func WithQueue(n int) Option { return func(r *Router) { r.queue = n } }

func WithPrefixes(p []string) Option { return func(r *Router) { r.SetPrefixes(p) } }

// WithRegistry publishes the dispatcher supervisor under "telegram.router"
// while Run is active.
func WithRegistry(reg *supervisor.Registry) Option { return func(r *Router) { r.sups = reg } }

func New(log logx.Logger, out kit.Adapter, owners []int64, opts ...Option) *Router {
	r := &Router{
		log:      log,
		out:      out,
		queue:    256,
		root:     newRoot(),
		owners:   slices.Clone(owners),
		prefixes: slices.Clone(DefaultPrefixes),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *Router) SetOwners(owners []int64) {
	r.mu.Lock()
	r.owners = slices.Clone(owners)
	r.mu.Unlock()
}

// SetPrefixes replaces the accepted prefixes; blank input restores the defaults.
func (r *Router) SetPrefixes(p []string) {
	var keep []string
	for _, s := range p {
		if s = strings.TrimSpace(s); s != "" {
			keep = append(keep, s)
		}
	}
	if len(keep) == 0 {
		keep = slices.Clone(DefaultPrefixes)
	}
	r.mu.Lock()
	r.prefixes = keep
	r.mu.Unlock()
}

// SetCommands installs cmds and pushes the menu to adapters that support it.
func (r *Router) SetCommands(cmds []Command) {
	root := newRoot()
	var live []Command
	for _, c := range cmds {
		if c.Handle == nil || strings.TrimSpace(c.Name) == "" {
			continue
		}
		root.add(splitRoute(c.Name), c)
		for _, a := range c.Aliases {
			if route := splitRoute(a); len(route) > 0 {
				root.add(route, c)
			}
		}
		live = append(live, c)
	}
	r.mu.Lock()
	r.root = root
	r.mu.Unlock()

	up, ok := r.out.(kit.CommandMenuUpdater)
	if !ok {
		return
	}
	if menu := menuCommands(live); len(menu) > 0 {
		go r.pushMenu(up, menu)
	}
}

func (r *Router) pushMenu(up kit.CommandMenuUpdater, menu []kit.BotCommand) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := up.UpdateMenuCommands(ctx, menu); err != nil {
		r.log.Warn("menu update failed", logx.Err(err))
	}
}

// Resolve classifies msg. ok is false for anything that is not a known
// command; callers ignore such messages.
func (r *Router) Resolve(msg *kit.Message) (req *Request, cmd Command, ok bool) {
	r.mu.RLock()
	root, prefixes := r.root, r.prefixes
	owner := slices.Contains(r.owners, msg.FromID)
	r.mu.RUnlock()

	body, found := cutPrefix(strings.TrimSpace(msg.Text), prefixes)
	if !found {
		return nil, cmd, false
	}
	words := strings.Fields(foldCase(body))
	if len(words) == 0 {
		return nil, cmd, false
	}
	// "/remind@somebot" addresses this bot in groups.
	if at := strings.IndexByte(words[0], '@'); at > 0 {
		words[0] = words[0][:at]
	}
	node, used := root.match(words)
	if node == nil {
		return nil, cmd, false
	}
	args := cutFields(body, used)
	if cmd, ok = node.pick(args != ""); !ok {
		return nil, cmd, false
	}
	return &Request{
		Message: msg,
		Chat:    kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID},
		FromID:  msg.FromID,
		Command: cmd.Name,
		Args:    args,
		owner:   owner,
		out:     r.out,
	}, cmd, true
}

func cutPrefix(text string, prefixes []string) (string, bool) {
	for _, p := range prefixes {
		if rest, ok := strings.CutPrefix(text, p); ok {
			return rest, true
		}
	}
	return "", false
}

// cutFields drops the first n fields of s and trims the remainder.
func cutFields(s string, n int) string {
	for ; n > 0; n-- {
		s = strings.TrimLeftFunc(s, unicode.IsSpace)
		i := strings.IndexFunc(s, unicode.IsSpace)
		if i < 0 {
			return ""
		}
		s = s[i:]
	}
	return strings.TrimSpace(s)
}

// foldCase builds a Caser per call; Casers carry state.
func foldCase(s string) string { return cases.Lower(language.Und).String(s) }
