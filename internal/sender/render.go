package sender

import (
	"log"

	"github.com/osteele/liquid"
)

var liquidEngine = liquid.NewEngine()

// RenderTemplate expands liquid placeholders in a subject or body. The
// recipient address is the main binding; campaign and message ids are
// exposed for advanced templates. A template that fails to parse is sent
// as-is rather than blocking the whole batch.
func RenderTemplate(tmpl, recipient, campaignID, messageID string) string {
	if tmpl == "" {
		return tmpl
	}

	out, err := liquidEngine.ParseAndRenderString(tmpl, liquid.Bindings{
		"recipient":   recipient,
		"email":       recipient,
		"campaign_id": campaignID,
		"message_id":  messageID,
	})
	if err != nil {
		log.Printf("[Sender] template render failed, sending raw: %v", err)
		return tmpl
	}
	return out
}
