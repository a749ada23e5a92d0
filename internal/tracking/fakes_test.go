package tracking

import (
	"context"
	"time"

	"github.com/ignite/campaign-engine/internal/campaign"
)

// memEventStore is an in-memory EventStore for tests.
type memEventStore struct {
	events map[string]*Event // keyed message_id|event_type
	putErr error
	puts   int
}

func newMemEventStore() *memEventStore {
	return &memEventStore{events: make(map[string]*Event)}
}

func eventKey(messageID string, eventType EventType) string {
	return messageID + "|" + string(eventType)
}

func (m *memEventStore) PutEvent(ctx context.Context, evt *Event) error {
	if m.putErr != nil {
		return m.putErr
	}
	m.puts++
	cp := *evt
	m.events[eventKey(evt.MessageID, evt.EventType)] = &cp
	return nil
}

func (m *memEventStore) GetEvent(ctx context.Context, messageID string, eventType EventType) (*Event, error) {
	if evt, ok := m.events[eventKey(messageID, eventType)]; ok {
		cp := *evt
		return &cp, nil
	}
	return nil, nil
}

func (m *memEventStore) FindBySESMessageID(ctx context.Context, sesMessageID string, eventType EventType) (*Event, error) {
	for _, evt := range m.events {
		if evt.SESMessageID == sesMessageID && evt.EventType == eventType {
			cp := *evt
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memEventStore) FindByRecipient(ctx context.Context, messageID, recipient string, eventType EventType) (*Event, error) {
	for _, evt := range m.events {
		if evt.MessageID == messageID && evt.RecipientPrimary == recipient && evt.EventType == eventType {
			cp := *evt
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memEventStore) ListByCampaign(ctx context.Context, campaignID string) ([]Event, error) {
	var out []Event
	for _, evt := range m.events {
		if evt.CampaignID == campaignID {
			out = append(out, *evt)
		}
	}
	return out, nil
}

// memCampaignStore is an in-memory campaign store for tests. It implements
// CampaignLookup and CampaignStatusStore.
type memCampaignStore struct {
	rows        map[string]*campaign.Campaign // keyed campaign_id|email_id
	updateCalls int
	// interposeStatus, when set, mutates the named row between a caller's
	// read and its conditional write to simulate a concurrent writer.
	interposeStatus campaign.Status
	interposeKey    string
	interposed      bool
}

func newMemCampaignStore(rows ...campaign.Campaign) *memCampaignStore {
	m := &memCampaignStore{rows: make(map[string]*campaign.Campaign)}
	for i := range rows {
		cp := rows[i]
		m.rows[cp.CampaignID+"|"+cp.EmailID] = &cp
	}
	return m
}

func (m *memCampaignStore) Get(ctx context.Context, campaignID string) ([]campaign.Campaign, error) {
	var out []campaign.Campaign
	for _, row := range m.rows {
		if row.CampaignID == campaignID {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (m *memCampaignStore) UpdateStatusFrom(ctx context.Context, campaignID, emailID string, from, to campaign.Status) error {
	key := campaignID + "|" + emailID
	if m.interposeStatus != "" && key == m.interposeKey && !m.interposed {
		m.rows[key].Status = m.interposeStatus
		m.interposed = true
	}

	m.updateCalls++
	row, ok := m.rows[key]
	if !ok {
		return campaign.ErrStatusConflict
	}
	if row.Status != from {
		return campaign.ErrStatusConflict
	}
	row.Status = to
	return nil
}

func (m *memCampaignStore) ScanRecentByRecipient(ctx context.Context, recipient string, from, to time.Time) ([]campaign.Campaign, error) {
	var out []campaign.Campaign
	for _, row := range m.rows {
		created := row.CreatedAt()
		if created.Before(from) || created.After(to) {
			continue
		}
		for _, r := range row.Recipients {
			if r == recipient {
				out = append(out, *row)
				break
			}
		}
	}
	return out, nil
}

func (m *memCampaignStore) status(campaignID, emailID string) campaign.Status {
	return m.rows[campaignID+"|"+emailID].Status
}
