package domain

import (
	"strconv"
	"time"
)

// User is the durable per-user record the bot keeps for every identity it has seen.
type User struct {
	ID             int64
	DisplayName    string // best effort, refreshed on every event
	Banned         bool
	PremiumUntil   *time.Time // UTC, nil when no premium was granted or it was swept
	FreeRedeemUsed bool
	CreatedAt      time.Time // UTC
}

// PremiumActive reports whether the premium window is still open at now.
// The boundary is exclusive: premium that ends exactly at now is lapsed.
func (u *User) PremiumActive(now time.Time) bool {
	if u == nil || u.PremiumUntil == nil {
		return false
	}
	return u.PremiumUntil.After(now)
}

// Mention renders the user for admin-facing messages, e.g. "@alice (42)".
func (u *User) Mention() string {
	return Mention(u.ID, u.DisplayName)
}

// Mention renders an id and an optional display name as "@name (id)".
func Mention(id int64, name string) string {
	sid := strconv.FormatInt(id, 10)
	if name == "" {
		return "(" + sid + ")"
	}
	return "@" + name + " (" + sid + ")"
}
