package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/campaign-engine/internal/campaign"
	"github.com/ignite/campaign-engine/internal/drip"
	"github.com/ignite/campaign-engine/internal/queue"
	"github.com/ignite/campaign-engine/internal/tracking"
)

// CreateCampaignRequest is the body of POST /campaigns.
type CreateCampaignRequest struct {
	UserID       string               `json:"user_id"`
	Subject      string               `json:"subject"`
	Body         string               `json:"body"`
	Recipients   []string             `json:"recipients"`
	CampaignType string               `json:"campaign_type"`
	DripConfig   *campaign.DripConfig `json:"drip_config"`
	ScheduleTime string               `json:"schedule_time"` // RFC3339, optional
}

// HandleCreateCampaign creates a regular or drip campaign. The campaign
// row is persisted before anything is enqueued; if the write fails nothing
// has been sent and the client gets the error. If dispatch fails after the
// write, the campaign stays in SCHEDULED, which is visible and retryable.
func (s *Service) HandleCreateCampaign(w http.ResponseWriter, r *http.Request) {
	var req CreateCampaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.CampaignType == "" {
		req.CampaignType = campaign.TypeRegular
	}
	if msg := validateCreate(&req); msg != "" {
		respondError(w, http.StatusBadRequest, msg)
		return
	}

	var scheduleAt time.Time
	if req.ScheduleTime != "" {
		t, err := time.Parse(time.RFC3339, req.ScheduleTime)
		if err != nil {
			respondError(w, http.StatusBadRequest, "schedule_time must be RFC3339")
			return
		}
		scheduleAt = t
	}

	c := &campaign.Campaign{
		CampaignID:   campaign.NewID(),
		UserID:       req.UserID,
		Recipients:   req.Recipients,
		CampaignType: req.CampaignType,
		Status:       campaign.StatusScheduled,
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
	}
	step := queue.StepRegular
	if req.CampaignType == campaign.TypeDrip {
		c.EmailID = campaign.EmailIDMain
		c.DripConfig = req.DripConfig
		step = queue.StepEmail1
	} else {
		c.EmailID = campaign.EmailIDRegular
		c.Subject = req.Subject
		c.Body = req.Body
	}

	// Write before send. A failure here is fatal for the request: no
	// record means no dispatch.
	if err := s.campaigns.Put(r.Context(), c); err != nil {
		log.Printf("[API] campaign write failed: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to persist campaign")
		return
	}

	if err := s.dispatchInitial(r, c, step, scheduleAt); err != nil {
		log.Printf("[API] dispatch failed for %s, campaign left SCHEDULED: %v", c.CampaignID, err)
		respondJSON(w, http.StatusInternalServerError, map[string]string{
			"error":       "campaign persisted but dispatch failed",
			"campaign_id": c.CampaignID,
		})
		return
	}

	if c.IsDrip() {
		s.registerFollowup(r, c)
	}

	respondJSON(w, http.StatusCreated, map[string]string{
		"campaign_id": c.CampaignID,
		"status":      string(c.Status),
	})
}

func (s *Service) dispatchInitial(r *http.Request, c *campaign.Campaign, step string, scheduleAt time.Time) error {
	job := queue.SendJob{
		CampaignID: c.CampaignID,
		EmailID:    c.EmailID,
		EmailStep:  step,
		Recipients: c.Recipients,
	}

	if !scheduleAt.IsZero() && scheduleAt.After(time.Now()) {
		if s.sendTimer == nil {
			return fmt.Errorf("scheduled sends are not configured")
		}
		name := "campaign-send-" + campaign.ShortID(c.CampaignID)
		return s.sendTimer.RegisterOneShot(r.Context(), name, scheduleAt, job)
	}
	return s.sendQueue.Publish(r.Context(), job)
}

// registerFollowup schedules the drip branch decision. A scheduling
// failure does not fail the create: the first email is already on its
// way, and the schedule can be recreated by support tooling.
func (s *Service) registerFollowup(r *http.Request, c *campaign.Campaign) {
	if s.followupTimer == nil || c.DripConfig == nil {
		log.Printf("[API] no follow-up timer configured, drip %s will not branch", c.CampaignID)
		return
	}

	name := drip.FollowupScheduleName(c.CampaignID)
	at := time.Now().UTC().Add(c.DripConfig.WaitDuration())
	err := s.followupTimer.RegisterOneShot(r.Context(), name, at, queue.FollowupJob{
		CampaignID: c.CampaignID,
		ScheduleID: name,
	})
	if err != nil {
		log.Printf("[API] registering follow-up for %s failed: %v", c.CampaignID, err)
	}
}

func validateCreate(req *CreateCampaignRequest) string {
	if len(req.Recipients) == 0 {
		return "recipients are required"
	}
	for _, r := range req.Recipients {
		if !strings.Contains(r, "@") {
			return "invalid recipient address: " + r
		}
	}

	switch req.CampaignType {
	case campaign.TypeRegular:
		if req.Subject == "" || req.Body == "" {
			return "subject and body are required"
		}
	case campaign.TypeDrip:
		dc := req.DripConfig
		if dc == nil {
			return "drip_config is required for drip campaigns"
		}
		if dc.Email1.Subject == "" || dc.EmailA.Subject == "" || dc.EmailB.Subject == "" {
			return "drip_config must define email1, emailA and emailB"
		}
		if dc.WaitDays <= 0 {
			return "drip_config.wait_days must be positive"
		}
	default:
		return "campaign_type must be regular or drip"
	}
	return ""
}

// HandleDeleteCampaign removes a regular campaign and, best-effort, its
// tracking events.
func (s *Service) HandleDeleteCampaign(w http.ResponseWriter, r *http.Request) {
	campaignID := pathCampaignID(r)

	rows, err := s.campaigns.Get(r.Context(), campaignID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load campaign")
		return
	}
	if len(rows) == 0 {
		respondError(w, http.StatusNotFound, "campaign not found")
		return
	}

	s.cascadeTrackingDelete(r, campaignID)

	if err := s.campaigns.Delete(r.Context(), campaignID); err != nil {
		log.Printf("[API] deleting campaign %s: %v", campaignID, err)
		respondError(w, http.StatusInternalServerError, "failed to delete campaign")
		return
	}
	s.cache.Invalidate(r.Context(), campaignID)

	respondJSON(w, http.StatusOK, map[string]string{"deleted": campaignID})
}

// HandleDeleteDripCampaign removes a drip campaign: cancel the follow-up
// timer, cascade the tracking delete, then remove the campaign rows. Timer
// and tracking failures are warn-only; the follow-up handler tolerates an
// orphan timer by re-checking existence at fire time.
func (s *Service) HandleDeleteDripCampaign(w http.ResponseWriter, r *http.Request) {
	campaignID := pathCampaignID(r)

	main, err := s.campaigns.GetRow(r.Context(), campaignID, campaign.EmailIDMain)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load campaign")
		return
	}
	if main == nil {
		respondError(w, http.StatusNotFound, "drip campaign not found")
		return
	}
	if !main.IsDrip() {
		respondError(w, http.StatusBadRequest, "campaign is not a drip campaign")
		return
	}

	if s.followupTimer != nil {
		if err := s.followupTimer.Cancel(r.Context(), drip.FollowupScheduleName(campaignID)); err != nil {
			log.Printf("[API] cancelling follow-up for %s: %v", campaignID, err)
		}
	}

	s.cascadeTrackingDelete(r, campaignID)

	if err := s.campaigns.Delete(r.Context(), campaignID); err != nil {
		log.Printf("[API] deleting drip campaign %s: %v", campaignID, err)
		respondError(w, http.StatusInternalServerError, "failed to delete campaign")
		return
	}
	s.cache.Invalidate(r.Context(), campaignID)

	respondJSON(w, http.StatusOK, map[string]string{"deleted": campaignID})
}

func (s *Service) cascadeTrackingDelete(r *http.Request, campaignID string) {
	deleted, err := s.events.DeleteByCampaign(r.Context(), campaignID)
	if err != nil {
		log.Printf("[API] tracking cascade for %s incomplete after %d deletes: %v", campaignID, deleted, err)
	}
}

// HandleResendUnopened clones a campaign for the recipients who never
// opened it. The clone is a regular campaign carrying the original id as a
// back-reference, so its events roll up to the original in reporting.
func (s *Service) HandleResendUnopened(w http.ResponseWriter, r *http.Request) {
	campaignID := pathCampaignID(r)

	base, err := s.baseRow(r, campaignID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load campaign")
		return
	}
	if base == nil {
		respondError(w, http.StatusNotFound, "campaign not found")
		return
	}

	events, err := s.events.ListByCampaign(r.Context(), campaignID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load tracking events")
		return
	}
	opened := tracking.OpenedRecipients(events)

	var unopened []string
	for _, recipient := range base.Recipients {
		if !opened[recipient] {
			unopened = append(unopened, recipient)
		}
	}
	if len(unopened) == 0 {
		respondError(w, http.StatusBadRequest, "every recipient has opened this campaign")
		return
	}

	subject, body := base.Subject, base.Body
	if base.DripConfig != nil {
		subject, body = base.DripConfig.Email1.Subject, base.DripConfig.Email1.Body
	}

	clone := &campaign.Campaign{
		CampaignID:         campaign.NewID(),
		EmailID:            campaign.NewResendEmailID(),
		UserID:             base.UserID,
		Subject:            subject,
		Body:               body,
		Recipients:         unopened,
		CampaignType:       campaign.TypeRegular,
		Status:             campaign.StatusScheduled,
		Timestamp:          time.Now().UTC().Format(time.RFC3339),
		OriginalCampaignID: base.CampaignID,
	}

	if err := s.campaigns.Put(r.Context(), clone); err != nil {
		log.Printf("[API] resend clone write failed: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to persist resend campaign")
		return
	}

	err = s.sendQueue.Publish(r.Context(), queue.SendJob{
		CampaignID: clone.CampaignID,
		EmailID:    clone.EmailID,
		EmailStep:  queue.StepRegular,
		Recipients: clone.Recipients,
	})
	if err != nil {
		log.Printf("[API] resend dispatch failed for %s: %v", clone.CampaignID, err)
		respondJSON(w, http.StatusInternalServerError, map[string]string{
			"error":       "resend persisted but dispatch failed",
			"campaign_id": clone.CampaignID,
		})
		return
	}

	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"campaign_id":          clone.CampaignID,
		"original_campaign_id": base.CampaignID,
		"recipients":           len(unopened),
	})
}

// baseRow finds the defining row of a campaign: email#main for drips,
// email#regular otherwise, falling back to the first row present.
func (s *Service) baseRow(r *http.Request, campaignID string) (*campaign.Campaign, error) {
	rows, err := s.campaigns.Get(r.Context(), campaignID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	for i := range rows {
		if rows[i].EmailID == campaign.EmailIDMain || rows[i].EmailID == campaign.EmailIDRegular {
			return &rows[i], nil
		}
	}
	return &rows[0], nil
}

func pathCampaignID(r *http.Request) string {
	short := chi.URLParam(r, "campaignID")
	if strings.HasPrefix(short, "campaign#") {
		return short
	}
	return "campaign#" + short
}
