// Package telegram adapts Telegram updates to bot events and renders replies.
package telegram

import (
	"context"
	"fmt"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/ykvlv/redeem-bot/internal/bot"
	"github.com/ykvlv/redeem-bot/internal/notify"
)

// API is the subset of *tgbotapi.BotAPI the router uses.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Handler turns an event into a reply.
type Handler interface {
	Handle(ctx context.Context, ev bot.Event) bot.Reply
}

// Router wires Telegram updates to the bot and sends its replies back.
// It also implements notify.Sender.
type Router struct {
	api     API
	handler Handler
	log     *zap.Logger
	sem     chan struct{}
	wg      sync.WaitGroup
}

// NewRouter creates a router that handles at most workers updates at once.
func NewRouter(api API, handler Handler, workers int, log *zap.Logger) *Router {
	if workers < 1 {
		workers = 1
	}
	return &Router{
		api:     api,
		handler: handler,
		log:     log.Named("telegram"),
		sem:     make(chan struct{}, workers),
	}
}

// SetHandler replaces the event handler. It must be called before Run.
func (r *Router) SetHandler(h Handler) { r.handler = h }

// Run consumes updates until ctx is done or the channel is closed, then waits
// for in-flight updates to finish.
func (r *Router) Run(ctx context.Context, updates <-chan tgbotapi.Update) {
	defer r.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return
		case upd, ok := <-updates:
			if !ok {
				return
			}
			select {
			case r.sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			r.wg.Add(1)
			go r.dispatch(ctx, upd)
		}
	}
}

func (r *Router) dispatch(ctx context.Context, upd tgbotapi.Update) {
	defer r.wg.Done()
	defer func() { <-r.sem }()
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("update handler panicked",
				zap.Int("update_id", upd.UpdateID),
				zap.Any("panic", p),
				zap.Stack("stack"),
			)
		}
	}()
	r.HandleUpdate(ctx, upd)
}

// HandleUpdate routes a single update to the bot.
func (r *Router) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	switch {
	case upd.Message != nil:
		r.handleMessage(ctx, upd.Message)
	case upd.CallbackQuery != nil:
		r.handleCallback(ctx, upd.CallbackQuery)
	}
}

func (r *Router) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	ev, ok := messageEvent(msg)
	if !ok {
		return
	}
	reply := r.handler.Handle(ctx, ev)
	if reply.Empty() {
		return
	}
	if _, err := r.api.Send(newMessage(msg.Chat.ID, reply)); err != nil {
		r.log.Warn("send reply failed", zap.Int64("chat_id", msg.Chat.ID), zap.Error(err))
	}
}

func (r *Router) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.From == nil {
		return
	}
	if _, err := r.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		r.log.Debug("answer callback failed", zap.String("callback_id", cb.ID), zap.Error(err))
	}

	reply := r.handler.Handle(ctx, bot.Event{
		UserID:      cb.From.ID,
		DisplayName: cb.From.UserName,
		Kind:        bot.KindCallback,
		Action:      cb.Data,
	})
	if reply.Empty() {
		return
	}

	var c tgbotapi.Chattable
	if cb.Message != nil {
		c = editMessage(cb.Message.Chat.ID, cb.Message.MessageID, reply)
	} else {
		c = newMessage(cb.From.ID, reply)
	}
	if _, err := r.api.Send(c); err != nil {
		r.log.Warn("send callback reply failed", zap.Int64("user_id", cb.From.ID), zap.Error(err))
	}
}

// SendMessage delivers an unsolicited message.
func (r *Router) SendMessage(ctx context.Context, chatID int64, text string, format notify.Format) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := r.api.Send(newMessage(chatID, bot.Reply{Text: text, Format: format})); err != nil {
		return fmt.Errorf("send to %d: %w", chatID, err)
	}
	return nil
}

// messageEvent converts a message. Messages without a sender or without any
// text are dropped.
func messageEvent(msg *tgbotapi.Message) (bot.Event, bool) {
	if msg.From == nil {
		return bot.Event{}, false
	}
	ev := bot.Event{UserID: msg.From.ID, DisplayName: msg.From.UserName}
	if msg.IsCommand() {
		ev.Kind = bot.KindCommand
		ev.Command = strings.ToLower(msg.Command())
		ev.RawArgs = msg.CommandArguments()
		ev.Args = strings.Fields(ev.RawArgs)
		return ev, true
	}
	ev.Kind = bot.KindText
	ev.Text = msg.Text
	if ev.Text == "" {
		ev.Text = msg.Caption
	}
	if ev.Text == "" {
		// Stickers, voice notes and bare media carry no text.
		return bot.Event{}, false
	}
	return ev, true
}

func newMessage(chatID int64, reply bot.Reply) tgbotapi.MessageConfig {
	m := tgbotapi.NewMessage(chatID, reply.Text)
	m.ParseMode = parseMode(reply.Format)
	if reply.Menu {
		m.ReplyMarkup = mainMenuKeyboard()
	}
	return m
}

func editMessage(chatID int64, messageID int, reply bot.Reply) tgbotapi.EditMessageTextConfig {
	m := tgbotapi.NewEditMessageText(chatID, messageID, reply.Text)
	m.ParseMode = parseMode(reply.Format)
	if reply.Menu {
		kb := mainMenuKeyboard()
		m.ReplyMarkup = &kb
	}
	return m
}

func parseMode(f notify.Format) string {
	if f == notify.Markdown {
		return tgbotapi.ModeMarkdown
	}
	return ""
}
