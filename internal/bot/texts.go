package bot

// User-facing texts.
const (
	textWelcome      = "Welcome! Choose an option:"
	textFallback     = "Use the buttons (send /start to see)."
	textBanned       = "You are banned."
	textUnauthorized = "Unauthorized."
	textInternal     = "Something went wrong. Please try again later."

	textFreeLimit    = "Free users can only redeem once. Buy premium for unlimited requests."
	textEnterDetails = "Enter Details for redeem request (send your message now):"
	textEmptyDetails = "Redeem details cannot be empty. Open the menu with /start and try again."
	textRequestSent  = "Your redeem request has been sent to admin."

	textEnterKey     = "Enter your premium key now (use /enterkey or just send the key):"
	textKeyInvalid   = "Key invalid."
	textKeyUsed      = "Key already used."
	textKeyActivated = "Premium activated for %d days. Thank you!"

	textCancelled       = "Cancelled."
	textNothingToCancel = "Nothing to cancel."

	textStatusPremium = "⭐ Premium active until %s (%s left)."
	textStatusFree    = "You are on the free plan. Free redeem request: %s."

	usageGenKey    = "Usage: /genk <days>"
	usageBroadcast = "Usage: /broadcast <message>"
	usageBan       = "Usage: /ban <user_id>"
	usageUnban     = "Usage: /unban <user_id>"
	usageReply     = "Usage: /reply <user_id> <message>"
	usageKeyInfo   = "Usage: /keyinfo <key>"
	textBadUserID  = "Invalid user id."

	textKeyGenerated = "Generated key: `%s` for %d days"
	textBroadcastFmt = "[Broadcast]\n\n%s"
	textBroadcastOK  = "Broadcast sent to %d users."
	textBannedFmt    = "Banned %d"
	textUnbannedFmt  = "Unbanned %d"
	textAdminReply   = "[Admin Reply]\n\n%s"
	textSent         = "Sent."
	textSendFailed   = "Failed: %v"
	textKeyNotFound  = "Key not found."
	textStatsFmt     = "Users: %d\nActive premium: %d\nKeys issued: %d\nKeys used: %d"

	// Admin alerts.
	alertKeyUsed      = "User %s used key %s for %d days."
	alertRedeemDetail = "📥 Redeem Request #%s from %s:\n\n%s"
)

// DefaultServices is shown when no catalogue is configured.
const DefaultServices = "1. Prime Video\n2. Spotify\n3. Crunchyroll\n4. Turbo VPN\n5. Hotspot Shield VPN"
