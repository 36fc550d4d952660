package redis

import (
	"fmt"
	"strings"
)

const ns = "tixnights:v1"

func KeyInventory(nightKey string) string {
	return fmt.Sprintf("%s:inventory:%s", ns, nightKey)
}

func KeyHold(sessionID, nightKey string) string {
	return fmt.Sprintf("%s:hold:%s:%s", ns, sessionID, nightKey)
}

func patternHoldsForNight(nightKey string) string {
	return fmt.Sprintf("%s:hold:*:%s", ns, escapeGlob(nightKey))
}

func patternHoldsForSession(sessionID string) string {
	return fmt.Sprintf("%s:hold:%s:*", ns, escapeGlob(sessionID))
}

func patternHolds() string {
	return ns + ":hold:*"
}

func KeyLock(name string) string {
	return fmt.Sprintf("%s:lock:%s", ns, name)
}

func KeyWebhookEvent(eventID string) string {
	return fmt.Sprintf("%s:webhook:event:%s", ns, eventID)
}

func KeyIdemCheckout(idemKey string) string {
	return fmt.Sprintf("%s:idem:checkout:%s", ns, idemKey)
}

func KeyRateLimit(scope, id string) string {
	return fmt.Sprintf("%s:rl:%s:%s", ns, scope, id)
}

func ChannelNightsChanged() string {
	return ns + ":nights:changed"
}

func escapeGlob(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)
	return r.Replace(s)
}
