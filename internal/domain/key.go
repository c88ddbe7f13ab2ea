package domain

import "time"

// Key is a single-use redemption key worth Days of premium.
type Key struct {
	Token     string
	Days      int
	CreatedAt time.Time // UTC
	CreatedBy int64     // admin that issued the key, 0 if unknown
	Used      bool
	UsedBy    *int64     // nil until redeemed
	UsedAt    *time.Time // UTC, nil until redeemed
}
