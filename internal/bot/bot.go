// Package bot routes inbound chat events to the conversation, entitlement
// and ledger components and produces the reply to render.
package bot

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ykvlv/redeem-bot/internal/conversation"
	"github.com/ykvlv/redeem-bot/internal/entitlement"
	"github.com/ykvlv/redeem-bot/internal/ledger"
	"github.com/ykvlv/redeem-bot/internal/notify"
	"github.com/ykvlv/redeem-bot/internal/store"
)

// Kind classifies an inbound event.
type Kind int

const (
	KindText Kind = iota
	KindCommand
	KindCallback
)

// Callback action tags carried by the main menu buttons.
const (
	ActionRedeem  = "redeem"
	ActionBuy     = "buy"
	ActionService = "service"
	ActionDev     = "dev"
)

// Event is a transport-neutral inbound event.
type Event struct {
	UserID      int64
	DisplayName string
	Kind        Kind

	Command string   // without the leading slash, e.g. "genk"
	Args    []string // whitespace-split arguments
	RawArgs string   // argument text as typed, for messages that keep formatting

	Action string // callback tag
	Text   string // free text
}

// Reply is what the transport should show the user. A zero Reply means
// "say nothing".
type Reply struct {
	Text   string
	Format notify.Format
	Menu   bool // attach the main menu buttons
}

// Empty reports whether there is nothing to send.
func (r Reply) Empty() bool { return r.Text == "" }

func text(s string) Reply { return Reply{Text: s} }

// Options is the static configuration of the bot.
type Options struct {
	Admins     []int64
	DevContact string
	Services   string
}

// Bot handles events. It is safe for concurrent use; events of different
// users are independent.
type Bot struct {
	users   store.UserStore
	tracker *conversation.Tracker
	engine  *entitlement.Engine
	ledger  *ledger.Ledger
	fanout  *notify.Fanout
	log     *zap.Logger

	admins     map[int64]struct{}
	devContact string
	services   string
	requestID  func() string
}

// New creates a Bot. Empty Options.Services falls back to DefaultServices.
func New(
	opts Options,
	users store.UserStore,
	tracker *conversation.Tracker,
	engine *entitlement.Engine,
	keys *ledger.Ledger,
	fanout *notify.Fanout,
	log *zap.Logger,
) *Bot {
	admins := make(map[int64]struct{}, len(opts.Admins))
	for _, id := range opts.Admins {
		admins[id] = struct{}{}
	}
	services := strings.TrimSpace(opts.Services)
	if services == "" {
		services = DefaultServices
	}
	return &Bot{
		users:      users,
		tracker:    tracker,
		engine:     engine,
		ledger:     keys,
		fanout:     fanout,
		log:        log.Named("bot"),
		admins:     admins,
		devContact: opts.DevContact,
		services:   services,
		requestID:  func() string { return uuid.NewString()[:8] },
	}
}

// IsAdmin reports whether id is in the configured admin set.
func (b *Bot) IsAdmin(id int64) bool {
	_, ok := b.admins[id]
	return ok
}

// Handle processes one event and returns the reply for its sender.
func (b *Bot) Handle(ctx context.Context, ev Event) Reply {
	if err := b.users.UpsertUser(ctx, ev.UserID, ev.DisplayName); err != nil {
		b.log.Error("upsert user failed", zap.Int64("user_id", ev.UserID), zap.Error(err))
		return text(textInternal)
	}

	var (
		r   Reply
		err error
	)
	switch ev.Kind {
	case KindCommand:
		r, err = b.handleCommand(ctx, ev)
	case KindCallback:
		r, err = b.handleCallback(ctx, ev)
	default:
		r, err = b.handleText(ctx, ev)
	}
	if err != nil {
		return b.translate(ev, err)
	}
	return r
}

// translate turns a handler error into the single message the user sees.
func (b *Bot) translate(ev Event, err error) Reply {
	switch {
	case errors.Is(err, ErrValidation):
		var ve *validationError
		if errors.As(err, &ve) {
			return text(ve.msg)
		}
		return text(textInternal)
	case errors.Is(err, ErrUnauthorized):
		b.log.Warn("unauthorized command", zap.Int64("user_id", ev.UserID), zap.String("command", ev.Command))
		return text(textUnauthorized)
	case errors.Is(err, ErrForbidden):
		return text(textBanned)
	default:
		b.log.Error("handle event failed",
			zap.Int64("user_id", ev.UserID),
			zap.String("command", ev.Command),
			zap.String("action", ev.Action),
			zap.Error(err),
		)
		return text(textInternal)
	}
}
