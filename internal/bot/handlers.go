package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ykvlv/redeem-bot/internal/domain"
	"github.com/ykvlv/redeem-bot/internal/entitlement"
	"github.com/ykvlv/redeem-bot/internal/ledger"
)

// loadUser returns the user record; the row exists because Handle upserted it.
func (b *Bot) loadUser(ctx context.Context, id int64) (*domain.User, error) {
	u, err := b.users.GetUser(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// --- Commands ---

func (b *Bot) handleCommand(ctx context.Context, ev Event) (Reply, error) {
	if h, ok := adminCommands[ev.Command]; ok {
		if !b.IsAdmin(ev.UserID) {
			return Reply{}, ErrUnauthorized
		}
		return h(b, ctx, ev)
	}

	u, err := b.loadUser(ctx, ev.UserID)
	if err != nil {
		return Reply{}, err
	}
	if u.Banned {
		return Reply{}, ErrForbidden
	}

	switch ev.Command {
	case "start":
		return Reply{Text: textWelcome, Menu: true}, nil
	case "enterkey":
		if len(ev.Args) > 0 {
			return b.redeemKey(ctx, u, ev.Args[0])
		}
		return b.expect(ctx, u.ID, domain.ExpectKey, textEnterKey)
	case "status":
		return b.status(u), nil
	case "cancel":
		had, err := b.tracker.Cancel(ctx, u.ID)
		if err != nil {
			return Reply{}, err
		}
		if !had {
			return text(textNothingToCancel), nil
		}
		return text(textCancelled), nil
	default:
		return text(textFallback), nil
	}
}

func (b *Bot) status(u *domain.User) Reply {
	s := b.engine.Status(u)
	if s.Premium {
		left := s.Remaining.Round(time.Minute)
		return text(fmt.Sprintf(textStatusPremium, s.Until.Format("2006-01-02 15:04 MST"), left))
	}
	free := "used"
	if s.FreeAvailable {
		free = "available"
	}
	return text(fmt.Sprintf(textStatusFree, free))
}

// --- Menu buttons ---

func (b *Bot) handleCallback(ctx context.Context, ev Event) (Reply, error) {
	u, err := b.loadUser(ctx, ev.UserID)
	if err != nil {
		return Reply{}, err
	}
	if u.Banned {
		return Reply{}, ErrForbidden
	}

	switch ev.Action {
	case ActionRedeem:
		d := b.engine.CanEnterRedeemFlow(u)
		if !d.Allowed {
			if d.Reason == entitlement.ReasonBanned {
				return Reply{}, ErrForbidden
			}
			return text(textFreeLimit), nil
		}
		return b.expect(ctx, u.ID, domain.ExpectRedeemDetails, textEnterDetails)
	case ActionBuy:
		return b.expect(ctx, u.ID, domain.ExpectKey, textEnterKey)
	case ActionService:
		return text(b.services), nil
	case ActionDev:
		return text(b.devContact), nil
	default:
		b.log.Debug("unknown callback", zap.String("action", ev.Action))
		return Reply{}, nil
	}
}

func (b *Bot) expect(ctx context.Context, userID int64, e domain.Expectation, prompt string) (Reply, error) {
	if err := b.tracker.Expect(ctx, userID, e); err != nil {
		return Reply{}, fmt.Errorf("set expectation: %w", err)
	}
	return text(prompt), nil
}

// --- Free text ---

func (b *Bot) handleText(ctx context.Context, ev Event) (Reply, error) {
	u, err := b.loadUser(ctx, ev.UserID)
	if err != nil {
		return Reply{}, err
	}
	if u.Banned {
		// Banned users are ignored without touching their state.
		return Reply{}, nil
	}
	if ev.Text == "" {
		// Not free text; the pending expectation stays.
		return Reply{}, nil
	}

	e, err := b.tracker.Take(ctx, u.ID)
	if err != nil {
		return Reply{}, fmt.Errorf("take expectation: %w", err)
	}

	switch e {
	case domain.ExpectKey:
		return b.redeemKey(ctx, u, ev.Text)
	case domain.ExpectRedeemDetails:
		return b.submitRedeemDetails(ctx, u, ev.Text)
	default:
		return text(textFallback), nil
	}
}

func (b *Bot) redeemKey(ctx context.Context, u *domain.User, raw string) (Reply, error) {
	token := domain.NormalizeToken(raw)
	out, err := b.engine.RedeemKey(ctx, u, token)
	if err != nil {
		return Reply{}, err
	}

	switch out.Status {
	case ledger.NotFound:
		return text(textKeyInvalid), nil
	case ledger.AlreadyUsed:
		return text(textKeyUsed), nil
	}

	b.fanout.NotifyAdmins(ctx, fmt.Sprintf(alertKeyUsed, u.Mention(), token, out.Days))
	return text(fmt.Sprintf(textKeyActivated, out.Days)), nil
}

func (b *Bot) submitRedeemDetails(ctx context.Context, u *domain.User, raw string) (Reply, error) {
	details := strings.TrimSpace(raw)
	if details == "" {
		return text(textEmptyDetails), nil
	}
	if err := b.engine.FinalizeRedeemSubmission(ctx, u); err != nil {
		return Reply{}, err
	}

	id := b.requestID()
	delivered := b.fanout.NotifyAdmins(ctx, fmt.Sprintf(alertRedeemDetail, id, u.Mention(), details))
	b.log.Info("redeem request forwarded",
		zap.String("request_id", id),
		zap.Int64("user_id", u.ID),
		zap.Int("admins_reached", delivered),
	)
	return text(textRequestSent), nil
}
