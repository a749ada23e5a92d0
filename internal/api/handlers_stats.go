package api

import (
	"net/http"
	"sort"
	"time"

	"github.com/ignite/campaign-engine/internal/campaign"
	"github.com/ignite/campaign-engine/internal/drip"
	"github.com/ignite/campaign-engine/internal/tracking"
)

// HandleCampaignStats returns the aggregated stats for one campaign.
// Events attributed to resends roll up through original_campaign_id.
func (s *Service) HandleCampaignStats(w http.ResponseWriter, r *http.Request) {
	campaignID := pathCampaignID(r)

	if cached := s.cache.Get(r.Context(), campaignID); cached != nil {
		respondJSON(w, http.StatusOK, cached)
		return
	}

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
	if resendEvents, err := s.events.ListByOriginalCampaign(r.Context(), campaignID); err == nil {
		events = append(events, resendEvents...)
	}

	stats := tracking.ComputeStats(campaignID, len(base.Recipients), events)
	s.cache.Put(r.Context(), stats)

	respondJSON(w, http.StatusOK, stats)
}

// HandleTrackingFeed returns a campaign's raw tracking events, newest
// first.
func (s *Service) HandleTrackingFeed(w http.ResponseWriter, r *http.Request) {
	campaignID := pathCampaignID(r)

	events, err := s.events.ListByCampaign(r.Context(), campaignID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load tracking events")
		return
	}

	sort.Slice(events, func(i, j int) bool {
		return events[i].Timestamp > events[j].Timestamp
	})

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"campaign_id": campaignID,
		"count":       len(events),
		"events":      events,
	})
}

// HandleDripDashboard lists a user's drip campaigns with per-campaign
// stats and an active/completed summary.
func (s *Service) HandleDripDashboard(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		respondError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	rows, err := s.campaigns.ListByUser(r.Context(), userID, campaign.TypeDrip)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load campaigns")
		return
	}

	now := time.Now().UTC()
	summaries := []drip.Summary{}
	active := 0
	for i := range rows {
		if rows[i].EmailID != campaign.EmailIDMain {
			continue
		}
		events, err := s.events.ListByCampaign(r.Context(), rows[i].CampaignID)
		if err != nil {
			events = nil
		}
		summary := drip.Summarize(&rows[i], events, now)
		if summary.Active {
			active++
		}
		summaries = append(summaries, summary)
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].CreatedAt > summaries[j].CreatedAt
	})

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"campaigns": summaries,
		"summary": map[string]int{
			"total":     len(summaries),
			"active":    active,
			"completed": len(summaries) - active,
		},
	})
}
