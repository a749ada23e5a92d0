package api

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/campaign-engine/internal/campaign"
	"github.com/ignite/campaign-engine/internal/tracking"
)

func sendAndOpen(campaignID, recipient string) []tracking.Event {
	return []tracking.Event{
		{MessageID: "msg-s-" + recipient, EventType: tracking.EventSend, CampaignID: campaignID, RecipientPrimary: recipient},
		{MessageID: "msg-o-" + recipient, EventType: tracking.EventOpen, CampaignID: campaignID, RecipientPrimary: recipient},
	}
}

func TestCampaignStatsRollsUpResends(t *testing.T) {
	env := newTestEnv(campaign.Campaign{
		CampaignID:   "campaign#stat0001",
		EmailID:      campaign.EmailIDRegular,
		Recipients:   []string{"alice@example.com", "bob@example.com"},
		CampaignType: campaign.TypeRegular,
	})
	env.events.byCampaign["campaign#stat0001"] = sendAndOpen("campaign#stat0001", "alice@example.com")
	// Bob only engaged with the resend; his open still counts here.
	env.events.byOriginal["campaign#stat0001"] = sendAndOpen("campaign#resend01", "bob@example.com")

	rec := env.do(http.MethodGet, "/campaigns/stat0001/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, float64(2), body["unique_opens"])
	assert.Equal(t, float64(2), body["total_sent"])
	assert.Equal(t, float64(100), body["open_rate"])
}

func TestCampaignStatsNotFound(t *testing.T) {
	env := newTestEnv()
	rec := env.do(http.MethodGet, "/campaigns/nope0000/stats", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCampaignStatsServedFromCache(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	env := newTestEnv(campaign.Campaign{
		CampaignID:   "campaign#stat0002",
		EmailID:      campaign.EmailIDRegular,
		Recipients:   []string{"alice@example.com"},
		CampaignType: campaign.TypeRegular,
	})
	env.svc = NewService(env.campaigns, env.events, env.sendQueue, env.sendTimer, env.followup, env.webhook, rdb, time.Minute)
	env.events.byCampaign["campaign#stat0002"] = sendAndOpen("campaign#stat0002", "alice@example.com")

	rec := env.do(http.MethodGet, "/campaigns/stat0002/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	first := decodeBody(t, rec)

	// New events arrive, but within the TTL the cached fold is served.
	env.events.byCampaign["campaign#stat0002"] = nil
	rec = env.do(http.MethodGet, "/campaigns/stat0002/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, first, decodeBody(t, rec))

	// After the TTL the fold runs fresh.
	mr.FastForward(2 * time.Minute)
	rec = env.do(http.MethodGet, "/campaigns/stat0002/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), decodeBody(t, rec)["unique_opens"])
}

func TestTrackingFeedNewestFirst(t *testing.T) {
	env := newTestEnv()
	env.events.byCampaign["campaign#feed0001"] = []tracking.Event{
		{MessageID: "msg-1", EventType: tracking.EventSend, Timestamp: "2026-03-01T10:00:00Z"},
		{MessageID: "msg-2", EventType: tracking.EventOpen, Timestamp: "2026-03-01T12:00:00Z"},
		{MessageID: "msg-3", EventType: tracking.EventClick, Timestamp: "2026-03-01T11:00:00Z"},
	}

	rec := env.do(http.MethodGet, "/campaigns/feed0001/tracking", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, float64(3), body["count"])
	events := body["events"].([]interface{})
	first := events[0].(map[string]interface{})
	assert.Equal(t, "msg-2", first["message_id"])
}

func TestDripDashboard(t *testing.T) {
	now := time.Now().UTC()
	activeDrip := campaign.Campaign{
		CampaignID:   "campaign#dash0001",
		EmailID:      campaign.EmailIDMain,
		UserID:       "user-1",
		Recipients:   []string{"alice@example.com"},
		CampaignType: campaign.TypeDrip,
		Status:       campaign.StatusSent,
		Timestamp:    now.Format(time.RFC3339),
		DripConfig: &campaign.DripConfig{
			Email1:   campaign.DripEmail{Subject: "fresh"},
			WaitDays: 1,
		},
	}
	doneDrip := campaign.Campaign{
		CampaignID:   "campaign#dash0002",
		EmailID:      campaign.EmailIDMain,
		UserID:       "user-1",
		Recipients:   []string{"bob@example.com"},
		CampaignType: campaign.TypeDrip,
		Status:       campaign.StatusOpened,
		Timestamp:    now.Add(-72 * time.Hour).Format(time.RFC3339),
		DripConfig: &campaign.DripConfig{
			Email1:   campaign.DripEmail{Subject: "old"},
			WaitDays: 1,
		},
	}
	otherUser := campaign.Campaign{
		CampaignID:   "campaign#dash0003",
		EmailID:      campaign.EmailIDMain,
		UserID:       "user-2",
		CampaignType: campaign.TypeDrip,
		Timestamp:    now.Format(time.RFC3339),
	}

	env := newTestEnv(activeDrip, doneDrip, otherUser)

	rec := env.do(http.MethodGet, "/drip-campaigns?user_id=user-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	summary := body["summary"].(map[string]interface{})
	assert.Equal(t, float64(2), summary["total"])
	assert.Equal(t, float64(1), summary["active"])
	assert.Equal(t, float64(1), summary["completed"])

	// Newest first.
	campaigns := body["campaigns"].([]interface{})
	require.Len(t, campaigns, 2)
	newest := campaigns[0].(map[string]interface{})
	assert.Equal(t, "campaign#dash0001", newest["campaign_id"])
	assert.Equal(t, true, newest["active"])
}

func TestDripDashboardRequiresUser(t *testing.T) {
	env := newTestEnv()
	rec := env.do(http.MethodGet, "/drip-campaigns", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSESWebhookAlwaysAcks(t *testing.T) {
	env := newTestEnv()

	rec := env.do(http.MethodPost, "/webhooks/ses", map[string]string{"eventType": "Open"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, env.webhook.bodies, 1)

	// Processing failures still ack so SNS does not redeliver forever.
	env.webhook.err = errors.New("malformed payload")
	rec = env.do(http.MethodPost, "/webhooks/ses", map[string]string{"bad": "payload"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealth(t *testing.T) {
	env := newTestEnv()
	rec := env.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
