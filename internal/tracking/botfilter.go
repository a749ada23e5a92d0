package tracking

import (
	"regexp"
	"strings"
)

// BotFilter decides whether an open-pixel hit came from automated
// infrastructure rather than a human mail client. Filtered hits still get
// the pixel response but are never written to the store.
type BotFilter struct {
	botPattern *regexp.Regexp
	ipPrefixes []string
}

// NewBotFilter creates a filter with the standard crawler patterns and the
// Gmail image-proxy prefetch fingerprint.
func NewBotFilter() *BotFilter {
	return &BotFilter{
		botPattern: regexp.MustCompile(`(?i)bot|crawler|spider|headless|preview|phantom`),
		ipPrefixes: []string{"66.249.", "74.125.", "64.233."},
	}
}

// IsBot reports whether the request fingerprint matches a known bot.
func (f *BotFilter) IsBot(userAgent, sourceIP string) bool {
	if f.botPattern.MatchString(userAgent) {
		return true
	}
	return f.isProviderPrefetch(userAgent, sourceIP)
}

// isProviderPrefetch matches Gmail's image proxy, which fetches pixels at
// delivery time before the recipient ever opens the mail. The proxy
// identifies itself with a frozen UA pairing and Google egress ranges.
func (f *BotFilter) isProviderPrefetch(userAgent, sourceIP string) bool {
	if !strings.Contains(userAgent, "Chrome/42.0.2311.135") || !strings.Contains(userAgent, "Edge/12.246") {
		return false
	}
	for _, prefix := range f.ipPrefixes {
		if strings.HasPrefix(sourceIP, prefix) {
			return true
		}
	}
	return false
}
