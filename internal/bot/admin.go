package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ykvlv/redeem-bot/internal/domain"
	"github.com/ykvlv/redeem-bot/internal/notify"
	"github.com/ykvlv/redeem-bot/internal/store"
)

type adminHandler func(b *Bot, ctx context.Context, ev Event) (Reply, error)

// adminCommands are only available to ids in Options.Admins.
var adminCommands = map[string]adminHandler{
	"genk":      (*Bot).genKey,
	"broadcast": (*Bot).broadcast,
	"ban":       (*Bot).ban,
	"unban":     (*Bot).unban,
	"reply":     (*Bot).reply,
	"keyinfo":   (*Bot).keyInfo,
	"stats":     (*Bot).stats,
}

func (b *Bot) genKey(ctx context.Context, ev Event) (Reply, error) {
	if len(ev.Args) == 0 {
		return Reply{}, invalid(usageGenKey)
	}
	days, err := domain.ParseDays(ev.Args[0])
	if err != nil {
		return Reply{}, invalid(usageGenKey)
	}
	k, err := b.ledger.Issue(ctx, days, ev.UserID)
	if err != nil {
		return Reply{}, err
	}
	return Reply{Text: fmt.Sprintf(textKeyGenerated, k.Token, k.Days), Format: notify.Markdown}, nil
}

func (b *Bot) broadcast(ctx context.Context, ev Event) (Reply, error) {
	msg := strings.TrimSpace(ev.RawArgs)
	if msg == "" {
		return Reply{}, invalid(usageBroadcast)
	}
	n, err := b.fanout.Broadcast(ctx, fmt.Sprintf(textBroadcastFmt, msg))
	if err != nil {
		return Reply{}, err
	}
	return text(fmt.Sprintf(textBroadcastOK, n)), nil
}

func (b *Bot) ban(ctx context.Context, ev Event) (Reply, error) {
	return b.setBanned(ctx, ev, true)
}

func (b *Bot) unban(ctx context.Context, ev Event) (Reply, error) {
	return b.setBanned(ctx, ev, false)
}

func (b *Bot) setBanned(ctx context.Context, ev Event, banned bool) (Reply, error) {
	usage, done := usageUnban, textUnbannedFmt
	if banned {
		usage, done = usageBan, textBannedFmt
	}
	if len(ev.Args) == 0 {
		return Reply{}, invalid(usage)
	}
	id, err := domain.ParseUserID(ev.Args[0])
	if err != nil {
		return Reply{}, invalid(textBadUserID)
	}
	if err := b.users.SetBanned(ctx, id, banned); err != nil {
		return Reply{}, fmt.Errorf("set banned: %w", err)
	}
	if banned {
		// Drop any half-finished flow of the banned user.
		if err := b.tracker.Expect(ctx, id, domain.ExpectNone); err != nil {
			b.log.Warn("clear state of banned user failed", zap.Int64("user_id", id), zap.Error(err))
		}
	}
	b.log.Info("ban flag changed", zap.Int64("user_id", id), zap.Bool("banned", banned), zap.Int64("by", ev.UserID))
	return text(fmt.Sprintf(done, id)), nil
}

func (b *Bot) reply(ctx context.Context, ev Event) (Reply, error) {
	if len(ev.Args) < 2 {
		return Reply{}, invalid(usageReply)
	}
	id, err := domain.ParseUserID(ev.Args[0])
	if err != nil {
		return Reply{}, invalid(textBadUserID)
	}
	msg := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(ev.RawArgs), ev.Args[0]))
	if err := b.fanout.Direct(ctx, id, fmt.Sprintf(textAdminReply, msg)); err != nil {
		b.log.Warn("admin reply failed", zap.Int64("user_id", id), zap.Error(err))
		return text(fmt.Sprintf(textSendFailed, err)), nil
	}
	return text(textSent), nil
}

func (b *Bot) keyInfo(ctx context.Context, ev Event) (Reply, error) {
	if len(ev.Args) == 0 {
		return Reply{}, invalid(usageKeyInfo)
	}
	k, err := b.ledger.Lookup(ctx, ev.Args[0])
	if errors.Is(err, store.ErrNotFound) {
		return text(textKeyNotFound), nil
	}
	if err != nil {
		return Reply{}, err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Key: %s\nDays: %d\nCreated: %s", k.Token, k.Days, k.CreatedAt.Format(time.RFC3339))
	if k.CreatedBy != 0 {
		fmt.Fprintf(&sb, " by %d", k.CreatedBy)
	}
	if !k.Used {
		sb.WriteString("\nStatus: unused")
		return text(sb.String()), nil
	}
	sb.WriteString("\nStatus: used")
	if k.UsedBy != nil {
		fmt.Fprintf(&sb, " by %d", *k.UsedBy)
	}
	if k.UsedAt != nil {
		fmt.Fprintf(&sb, " at %s", k.UsedAt.Format(time.RFC3339))
	}
	return text(sb.String()), nil
}

func (b *Bot) stats(ctx context.Context, _ Event) (Reply, error) {
	users, err := b.users.CountUsers(ctx)
	if err != nil {
		return Reply{}, fmt.Errorf("count users: %w", err)
	}
	premium, err := b.users.ListPremium(ctx)
	if err != nil {
		return Reply{}, fmt.Errorf("list premium: %w", err)
	}
	active := 0
	for i := range premium {
		if b.engine.IsPremiumValid(&premium[i]) {
			active++
		}
	}
	ks, err := b.ledger.Stats(ctx)
	if err != nil {
		return Reply{}, fmt.Errorf("key stats: %w", err)
	}
	return text(fmt.Sprintf(textStatsFmt, users, active, ks.Issued, ks.Used)), nil
}
