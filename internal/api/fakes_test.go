package api

import (
	"context"
	"time"

	"github.com/ignite/campaign-engine/internal/campaign"
	"github.com/ignite/campaign-engine/internal/queue"
	"github.com/ignite/campaign-engine/internal/tracking"
)

type memCampaigns struct {
	rows    map[string]*campaign.Campaign // keyed campaign_id|email_id
	putErr  error
	deleted []string
}

func newMemCampaigns(rows ...campaign.Campaign) *memCampaigns {
	m := &memCampaigns{rows: make(map[string]*campaign.Campaign)}
	for i := range rows {
		cp := rows[i]
		m.rows[cp.CampaignID+"|"+cp.EmailID] = &cp
	}
	return m
}

func (m *memCampaigns) Put(ctx context.Context, c *campaign.Campaign) error {
	if m.putErr != nil {
		return m.putErr
	}
	cp := *c
	m.rows[cp.CampaignID+"|"+cp.EmailID] = &cp
	return nil
}

func (m *memCampaigns) Get(ctx context.Context, campaignID string) ([]campaign.Campaign, error) {
	var out []campaign.Campaign
	for _, row := range m.rows {
		if row.CampaignID == campaignID {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (m *memCampaigns) GetRow(ctx context.Context, campaignID, emailID string) (*campaign.Campaign, error) {
	if row, ok := m.rows[campaignID+"|"+emailID]; ok {
		cp := *row
		return &cp, nil
	}
	return nil, nil
}

func (m *memCampaigns) Delete(ctx context.Context, campaignID string) error {
	for key, row := range m.rows {
		if row.CampaignID == campaignID {
			delete(m.rows, key)
		}
	}
	m.deleted = append(m.deleted, campaignID)
	return nil
}

func (m *memCampaigns) ListByUser(ctx context.Context, userID, campaignType string) ([]campaign.Campaign, error) {
	var out []campaign.Campaign
	for _, row := range m.rows {
		if row.UserID != userID {
			continue
		}
		if campaignType != "" && row.CampaignType != campaignType {
			continue
		}
		out = append(out, *row)
	}
	return out, nil
}

type memEvents struct {
	byCampaign map[string][]tracking.Event
	byOriginal map[string][]tracking.Event
	deletes    []string
}

func newMemEvents() *memEvents {
	return &memEvents{
		byCampaign: make(map[string][]tracking.Event),
		byOriginal: make(map[string][]tracking.Event),
	}
}

func (m *memEvents) ListByCampaign(ctx context.Context, campaignID string) ([]tracking.Event, error) {
	return m.byCampaign[campaignID], nil
}

func (m *memEvents) ListByOriginalCampaign(ctx context.Context, originalCampaignID string) ([]tracking.Event, error) {
	return m.byOriginal[originalCampaignID], nil
}

func (m *memEvents) DeleteByCampaign(ctx context.Context, campaignID string) (int, error) {
	n := len(m.byCampaign[campaignID])
	delete(m.byCampaign, campaignID)
	m.deletes = append(m.deletes, campaignID)
	return n, nil
}

type memPublisher struct {
	jobs []queue.SendJob
	err  error
}

func (m *memPublisher) Publish(ctx context.Context, job interface{}) error {
	if m.err != nil {
		return m.err
	}
	m.jobs = append(m.jobs, job.(queue.SendJob))
	return nil
}

type memTimer struct {
	registered map[string]time.Time
	cancelled  []string
	err        error
}

func newMemTimer() *memTimer {
	return &memTimer{registered: make(map[string]time.Time)}
}

func (m *memTimer) RegisterOneShot(ctx context.Context, name string, at time.Time, payload interface{}) error {
	if m.err != nil {
		return m.err
	}
	m.registered[name] = at
	return nil
}

func (m *memTimer) Cancel(ctx context.Context, name string) error {
	m.cancelled = append(m.cancelled, name)
	return nil
}

type memWebhook struct {
	bodies [][]byte
	err    error
}

func (m *memWebhook) ProcessWebhook(ctx context.Context, body []byte) error {
	m.bodies = append(m.bodies, body)
	return m.err
}
