package sender

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/ignite/campaign-engine/internal/campaign"
)

var hrefPattern = regexp.MustCompile(`href="([^"]+)"`)

// RewriteLinks routes every anchor in the body through the click-redirect
// endpoint and appends the open pixel. Links that already point at the
// tracking host are left alone so a resend never double-wraps them, and
// image sources are untouched because only anchors carry clicks.
func RewriteLinks(body, trackingDomain, campaignID, messageID, recipient string) string {
	shortID := campaign.ShortID(campaignID)

	rewritten := hrefPattern.ReplaceAllStringFunc(body, func(match string) string {
		target := hrefPattern.FindStringSubmatch(match)[1]
		if strings.Contains(target, "/tracking/") || strings.HasPrefix(target, "mailto:") || strings.HasPrefix(target, "#") {
			return match
		}
		clickURL := fmt.Sprintf("https://%s/campaigns/%s/tracking/click?message_id=%s&url=%s&recipient=%s",
			trackingDomain, shortID,
			url.QueryEscape(messageID),
			url.QueryEscape(target),
			url.QueryEscape(recipient))
		return fmt.Sprintf(`href="%s"`, clickURL)
	})

	pixel := fmt.Sprintf(`<img src="https://%s/campaigns/%s/tracking/open?message_id=%s&recipient=%s" width="1" height="1" alt="" style="display:none"/>`,
		trackingDomain, shortID,
		url.QueryEscape(messageID),
		url.QueryEscape(recipient))

	if idx := strings.LastIndex(strings.ToLower(rewritten), "</body>"); idx >= 0 {
		return rewritten[:idx] + pixel + rewritten[idx:]
	}
	return rewritten + pixel
}
