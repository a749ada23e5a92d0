package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/campaign-engine/internal/campaign"
	"github.com/ignite/campaign-engine/internal/queue"
	"github.com/ignite/campaign-engine/internal/tracking"
)

type testEnv struct {
	campaigns *memCampaigns
	events    *memEvents
	sendQueue *memPublisher
	sendTimer *memTimer
	followup  *memTimer
	webhook   *memWebhook
	svc       *Service
}

func newTestEnv(rows ...campaign.Campaign) *testEnv {
	env := &testEnv{
		campaigns: newMemCampaigns(rows...),
		events:    newMemEvents(),
		sendQueue: &memPublisher{},
		sendTimer: newMemTimer(),
		followup:  newMemTimer(),
		webhook:   &memWebhook{},
	}
	env.svc = NewService(env.campaigns, env.events, env.sendQueue, env.sendTimer, env.followup, env.webhook, nil, time.Minute)
	return env
}

func (env *testEnv) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	env.svc.Routes().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func validCreateRequest() CreateCampaignRequest {
	return CreateCampaignRequest{
		UserID:     "user-1",
		Subject:    "Hello",
		Body:       "<p>Hi</p>",
		Recipients: []string{"alice@example.com", "bob@example.com"},
	}
}

func TestCreateCampaignEnqueuesImmediately(t *testing.T) {
	env := newTestEnv()

	rec := env.do(http.MethodPost, "/campaigns", validCreateRequest())
	require.Equal(t, http.StatusCreated, rec.Code)

	body := decodeBody(t, rec)
	campaignID := body["campaign_id"].(string)
	assert.Equal(t, string(campaign.StatusScheduled), body["status"])

	require.Len(t, env.sendQueue.jobs, 1)
	job := env.sendQueue.jobs[0]
	assert.Equal(t, campaignID, job.CampaignID)
	assert.Equal(t, campaign.EmailIDRegular, job.EmailID)
	assert.Equal(t, queue.StepRegular, job.EmailStep)
	assert.Equal(t, []string{"alice@example.com", "bob@example.com"}, job.Recipients)

	// The row was persisted before the publish.
	row, err := env.campaigns.GetRow(context.Background(), campaignID, campaign.EmailIDRegular)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, campaign.StatusScheduled, row.Status)
}

func TestCreateCampaignWriteFailureSendsNothing(t *testing.T) {
	env := newTestEnv()
	env.campaigns.putErr = errors.New("dynamodb unavailable")

	rec := env.do(http.MethodPost, "/campaigns", validCreateRequest())

	// No record means no dispatch: the publisher must never run.
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Empty(t, env.sendQueue.jobs)
}

func TestCreateCampaignDispatchFailureLeavesRowScheduled(t *testing.T) {
	env := newTestEnv()
	env.sendQueue.err = errors.New("sqs unavailable")

	rec := env.do(http.MethodPost, "/campaigns", validCreateRequest())
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	// The client gets the id back so the send can be retried.
	body := decodeBody(t, rec)
	campaignID := body["campaign_id"].(string)
	require.NotEmpty(t, campaignID)

	row, err := env.campaigns.GetRow(context.Background(), campaignID, campaign.EmailIDRegular)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, campaign.StatusScheduled, row.Status)
}

func TestCreateCampaignScheduledUsesTimer(t *testing.T) {
	env := newTestEnv()

	req := validCreateRequest()
	req.ScheduleTime = time.Now().Add(2 * time.Hour).UTC().Format(time.RFC3339)

	rec := env.do(http.MethodPost, "/campaigns", req)
	require.Equal(t, http.StatusCreated, rec.Code)

	// Future sends go through the scheduler, not straight onto the queue.
	assert.Empty(t, env.sendQueue.jobs)
	assert.Len(t, env.sendTimer.registered, 1)
}

func TestCreateCampaignPastScheduleSendsNow(t *testing.T) {
	env := newTestEnv()

	req := validCreateRequest()
	req.ScheduleTime = time.Now().Add(-time.Hour).UTC().Format(time.RFC3339)

	rec := env.do(http.MethodPost, "/campaigns", req)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Len(t, env.sendQueue.jobs, 1)
	assert.Empty(t, env.sendTimer.registered)
}

func TestCreateDripCampaignRegistersFollowup(t *testing.T) {
	env := newTestEnv()

	req := CreateCampaignRequest{
		UserID:       "user-1",
		Recipients:   []string{"alice@example.com"},
		CampaignType: campaign.TypeDrip,
		DripConfig: &campaign.DripConfig{
			Email1:   campaign.DripEmail{Subject: "welcome", Body: "<p>1</p>"},
			EmailA:   campaign.DripEmail{Subject: "thanks", Body: "<p>a</p>"},
			EmailB:   campaign.DripEmail{Subject: "nudge", Body: "<p>b</p>"},
			WaitDays: 2,
		},
	}

	rec := env.do(http.MethodPost, "/campaigns", req)
	require.Equal(t, http.StatusCreated, rec.Code)

	body := decodeBody(t, rec)
	campaignID := body["campaign_id"].(string)

	require.Len(t, env.sendQueue.jobs, 1)
	assert.Equal(t, queue.StepEmail1, env.sendQueue.jobs[0].EmailStep)
	assert.Equal(t, campaign.EmailIDMain, env.sendQueue.jobs[0].EmailID)

	// The branch decision timer is named after the campaign.
	name := "drip-followup-" + campaign.ShortID(campaignID)
	at, ok := env.followup.registered[name]
	require.True(t, ok, "follow-up timer must be registered")
	assert.WithinDuration(t, time.Now().UTC().Add(48*time.Hour), at, time.Minute)
}

func TestCreateCampaignValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*CreateCampaignRequest)
	}{
		{"no recipients", func(r *CreateCampaignRequest) { r.Recipients = nil }},
		{"bad address", func(r *CreateCampaignRequest) { r.Recipients = []string{"not-an-email"} }},
		{"no subject", func(r *CreateCampaignRequest) { r.Subject = "" }},
		{"no body", func(r *CreateCampaignRequest) { r.Body = "" }},
		{"unknown type", func(r *CreateCampaignRequest) { r.CampaignType = "broadcast" }},
		{"drip without config", func(r *CreateCampaignRequest) { r.CampaignType = campaign.TypeDrip }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv()
			req := validCreateRequest()
			tt.mutate(&req)

			rec := env.do(http.MethodPost, "/campaigns", req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, env.sendQueue.jobs)
		})
	}
}

func TestDeleteCampaign(t *testing.T) {
	env := newTestEnv(campaign.Campaign{
		CampaignID:   "campaign#del00001",
		EmailID:      campaign.EmailIDRegular,
		CampaignType: campaign.TypeRegular,
	})
	env.events.byCampaign["campaign#del00001"] = []tracking.Event{{MessageID: "msg-1", EventType: tracking.EventSend}}

	rec := env.do(http.MethodDelete, "/campaigns/del00001", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, []string{"campaign#del00001"}, env.campaigns.deleted)
	// Tracking rows cascade.
	assert.Equal(t, []string{"campaign#del00001"}, env.events.deletes)
}

func TestDeleteCampaignNotFound(t *testing.T) {
	env := newTestEnv()
	rec := env.do(http.MethodDelete, "/campaigns/nope0000", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteDripCampaignCancelsTimer(t *testing.T) {
	env := newTestEnv(campaign.Campaign{
		CampaignID:   "campaign#drip9999",
		EmailID:      campaign.EmailIDMain,
		CampaignType: campaign.TypeDrip,
	})

	rec := env.do(http.MethodDelete, "/drip-campaigns/drip9999", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, []string{"drip-followup-drip9999"}, env.followup.cancelled)
	assert.Equal(t, []string{"campaign#drip9999"}, env.campaigns.deleted)
}

func TestDeleteDripCampaignRejectsRegular(t *testing.T) {
	env := newTestEnv(campaign.Campaign{
		CampaignID:   "campaign#reg00001",
		EmailID:      campaign.EmailIDMain,
		CampaignType: campaign.TypeRegular,
	})

	rec := env.do(http.MethodDelete, "/drip-campaigns/reg00001", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, env.campaigns.deleted)
}

func TestResendUnopenedClonesForNonOpeners(t *testing.T) {
	env := newTestEnv(campaign.Campaign{
		CampaignID:   "campaign#orig0001",
		EmailID:      campaign.EmailIDRegular,
		UserID:       "user-1",
		Subject:      "Hello",
		Body:         "<p>Hi</p>",
		Recipients:   []string{"alice@example.com", "bob@example.com", "carol@example.com"},
		CampaignType: campaign.TypeRegular,
		Status:       campaign.StatusOpened,
	})
	env.events.byCampaign["campaign#orig0001"] = []tracking.Event{{
		MessageID:        "msg-1",
		EventType:        tracking.EventOpen,
		RecipientPrimary: "alice@example.com",
	}}

	rec := env.do(http.MethodPost, "/campaigns/orig0001/resend-unopened", nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "campaign#orig0001", body["original_campaign_id"])
	assert.Equal(t, float64(2), body["recipients"])

	require.Len(t, env.sendQueue.jobs, 1)
	job := env.sendQueue.jobs[0]
	assert.Equal(t, []string{"bob@example.com", "carol@example.com"}, job.Recipients)
	assert.NotEqual(t, "campaign#orig0001", job.CampaignID)

	// The clone row points back at the original for stats rollup.
	clone, err := env.campaigns.GetRow(context.Background(), job.CampaignID, job.EmailID)
	require.NoError(t, err)
	require.NotNil(t, clone)
	assert.Equal(t, "campaign#orig0001", clone.OriginalCampaignID)
	assert.Equal(t, campaign.TypeRegular, clone.CampaignType)
	assert.Equal(t, "Hello", clone.Subject)
}

func TestResendUnopenedAllOpened(t *testing.T) {
	env := newTestEnv(campaign.Campaign{
		CampaignID:   "campaign#orig0002",
		EmailID:      campaign.EmailIDRegular,
		Subject:      "Hello",
		Body:         "<p>Hi</p>",
		Recipients:   []string{"alice@example.com"},
		CampaignType: campaign.TypeRegular,
	})
	env.events.byCampaign["campaign#orig0002"] = []tracking.Event{{
		MessageID:        "msg-1",
		EventType:        tracking.EventOpen,
		RecipientPrimary: "alice@example.com",
	}}

	rec := env.do(http.MethodPost, "/campaigns/orig0002/resend-unopened", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, env.sendQueue.jobs)
}
