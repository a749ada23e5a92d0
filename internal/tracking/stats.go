package tracking

// CampaignStats is the aggregate view of one campaign's tracking events.
// Counts are unique recipients, not raw event rows: at-least-once delivery
// and repeat opens must not inflate them.
type CampaignStats struct {
	CampaignID      string  `json:"campaign_id"`
	TotalRecipients int     `json:"total_recipients"`
	TotalSent       int     `json:"total_sent"`
	UniqueOpens     int     `json:"unique_opens"`
	UniqueClicks    int     `json:"unique_clicks"`
	Bounces         int     `json:"bounces"`
	Complaints      int     `json:"complaints"`
	OpenRate        float64 `json:"open_rate"`
	ClickRate       float64 `json:"click_rate"`
}

// ComputeStats folds an event list into campaign stats. The fold is pure:
// no state survives between calls, so replayed events are naturally
// absorbed by the uniqueness sets.
func ComputeStats(campaignID string, totalRecipients int, events []Event) CampaignStats {
	sends := make(map[string]bool)
	opens := make(map[string]bool)
	clicks := make(map[string]bool)
	bounces := make(map[string]bool)
	complaints := make(map[string]bool)

	for _, evt := range events {
		key := evt.RecipientPrimary
		if key == "" && len(evt.Recipients) > 0 {
			key = evt.Recipients[0]
		}
		if key == "" {
			continue
		}

		switch evt.EventType {
		case EventSend, EventDelivery:
			sends[key] = true
		case EventOpen:
			if evt.VerifiedHumanOpen() {
				opens[key] = true
			}
		case EventClick:
			clicks[key] = true
		case EventBounce:
			bounces[key] = true
		case EventComplaint:
			complaints[key] = true
		}
	}

	stats := CampaignStats{
		CampaignID:      campaignID,
		TotalRecipients: totalRecipients,
		TotalSent:       len(sends),
		UniqueOpens:     len(opens),
		UniqueClicks:    len(clicks),
		Bounces:         len(bounces),
		Complaints:      len(complaints),
	}
	if stats.TotalSent == 0 {
		stats.TotalSent = totalRecipients
	}
	if totalRecipients > 0 {
		stats.OpenRate = clampRate(float64(stats.UniqueOpens) / float64(totalRecipients) * 100)
		stats.ClickRate = clampRate(float64(stats.UniqueClicks) / float64(totalRecipients) * 100)
	}
	return stats
}

// OpenedRecipients returns the set of recipients with a verified-human
// open. This set drives the drip branch decision.
func OpenedRecipients(events []Event) map[string]bool {
	opened := make(map[string]bool)
	for _, evt := range events {
		if evt.EventType != EventOpen || !evt.VerifiedHumanOpen() {
			continue
		}
		key := evt.RecipientPrimary
		if key == "" && len(evt.Recipients) > 0 {
			key = evt.Recipients[0]
		}
		if key != "" {
			opened[key] = true
		}
	}
	return opened
}

// clampRate caps a percentage at 100. Heuristic attribution can credit a
// campaign with more unique openers than recipients in edge cases; the
// rate must not exceed 100 regardless.
func clampRate(rate float64) float64 {
	if rate > 100 {
		return 100
	}
	return rate
}
