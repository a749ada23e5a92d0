package tracking

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/ignite/campaign-engine/internal/campaign"
)

// Archiver stores raw provider payloads for later audit. Optional; a nil
// archiver disables archival.
type Archiver interface {
	Archive(ctx context.Context, key string, payload []byte)
}

// CampaignOriginReader resolves the resend back-reference so pixel events
// roll up to the original campaign in reporting.
type CampaignOriginReader interface {
	Get(ctx context.Context, campaignID string) ([]campaign.Campaign, error)
}

// Processor is the ingest pipeline for tracking events: normalize,
// attribute, persist, reconcile status. Ingestion is availability-first;
// downstream status failures are logged, never bubbled into the response
// path.
type Processor struct {
	events     EventStore
	campaigns  CampaignOriginReader
	resolver   Resolver
	reconciler *Reconciler
	archiver   Archiver
}

func NewProcessor(events EventStore, campaigns CampaignOriginReader, resolver Resolver, reconciler *Reconciler, archiver Archiver) *Processor {
	return &Processor{
		events:     events,
		campaigns:  campaigns,
		resolver:   resolver,
		reconciler: reconciler,
		archiver:   archiver,
	}
}

// ProcessWebhook handles one provider webhook body end to end.
func (p *Processor) ProcessWebhook(ctx context.Context, body []byte) error {
	payload, err := UnwrapSNS(body)
	if err != nil {
		var skip *ErrSkipMessage
		if errors.As(err, &skip) {
			return nil
		}
		return err
	}

	evt, err := Normalize(payload)
	if err != nil {
		log.Printf("[Ingest] dropping malformed provider event: %v", err)
		return err
	}

	attr, err := p.resolver.Resolve(ctx, evt)
	if err != nil {
		log.Printf("[Ingest] attribution failed for %s, persisting unattributed: %v", evt.SESMessageID, err)
	}

	record := &Event{
		MessageID:        evt.SESMessageID,
		EventType:        evt.EventType,
		SESMessageID:     evt.SESMessageID,
		Timestamp:        evt.Timestamp.Format(time.RFC3339),
		Recipients:       evt.Recipients,
		RecipientPrimary: evt.PrimaryRecipient(),
	}
	record.SetRaw(RawEvent{Provider: "ses"})

	if attr != nil {
		record.CampaignID = attr.CampaignID
		record.OriginalCampaignID = attr.OriginalCampaignID
		if attr.TrackingMessageID != "" {
			record.MessageID = attr.TrackingMessageID
		}
	} else {
		record.Unattributed = true
	}

	if err := p.events.PutEvent(ctx, record); err != nil {
		return fmt.Errorf("persisting %s event: %w", evt.EventType, err)
	}

	if attr == nil {
		if p.archiver != nil {
			key := fmt.Sprintf("unattributed/%s/%s.json", evt.Timestamp.UTC().Format("2006/01/02"), evt.SESMessageID)
			p.archiver.Archive(ctx, key, payload)
		}
		log.Printf("[Ingest] %s event %s persisted unattributed", evt.EventType, evt.SESMessageID)
		return nil
	}

	if err := p.reconciler.ApplyEvent(ctx, attr.CampaignID, string(evt.EventType)); err != nil {
		log.Printf("[Ingest] status merge failed for %s: %v", attr.CampaignID, err)
	}
	return nil
}

// RecordOpen persists a verified pixel hit and merges OPENED into the
// campaign. The bot filter has already run by the time we get here, so
// every recorded open carries verified_human=true.
func (p *Processor) RecordOpen(ctx context.Context, campaignID, messageID, recipient string, raw RawEvent) error {
	verified := true
	raw.VerifiedHuman = &verified

	record := &Event{
		MessageID:          messageID,
		EventType:          EventOpen,
		CampaignID:         campaignID,
		OriginalCampaignID: p.originFor(ctx, campaignID),
		Timestamp:          time.Now().UTC().Format(time.RFC3339),
		Recipients:         []string{recipient},
		RecipientPrimary:   recipient,
	}
	record.SetRaw(raw)

	if err := p.events.PutEvent(ctx, record); err != nil {
		return fmt.Errorf("persisting open: %w", err)
	}
	if err := p.reconciler.ApplyEvent(ctx, campaignID, string(EventOpen)); err != nil {
		log.Printf("[Ingest] status merge failed for %s: %v", campaignID, err)
	}
	return nil
}

// RecordClick persists a click redirect hit, merging repeats into the
// existing row by appending to click_timestamps, and merges CLICKED into
// the campaign.
func (p *Processor) RecordClick(ctx context.Context, campaignID, messageID, recipient, url string, raw RawEvent) error {
	now := time.Now().UTC().Format(time.RFC3339)
	raw.URL = url

	record, err := p.events.FindByRecipient(ctx, messageID, recipient, EventClick)
	if err != nil {
		log.Printf("[Ingest] click lookup failed for %s, writing fresh row: %v", messageID, err)
		record = nil
	}

	if record != nil {
		record.ClickTimestamps = append(record.ClickTimestamps, now)
		record.Timestamp = now
	} else {
		record = &Event{
			MessageID:          messageID,
			EventType:          EventClick,
			CampaignID:         campaignID,
			OriginalCampaignID: p.originFor(ctx, campaignID),
			Timestamp:          now,
			Recipients:         []string{recipient},
			RecipientPrimary:   recipient,
			ClickTimestamps:    []string{now},
		}
	}
	record.SetRaw(raw)

	if err := p.events.PutEvent(ctx, record); err != nil {
		return fmt.Errorf("persisting click: %w", err)
	}
	if err := p.reconciler.ApplyEvent(ctx, campaignID, string(EventClick)); err != nil {
		log.Printf("[Ingest] status merge failed for %s: %v", campaignID, err)
	}
	return nil
}

// originFor finds the campaign's resend back-reference. Campaigns that are
// not resend clones roll up to themselves.
func (p *Processor) originFor(ctx context.Context, campaignID string) string {
	if p.campaigns == nil {
		return campaignID
	}
	rows, err := p.campaigns.Get(ctx, campaignID)
	if err != nil {
		log.Printf("[Ingest] origin lookup failed for %s: %v", campaignID, err)
		return campaignID
	}
	for _, row := range rows {
		if row.OriginalCampaignID != "" {
			return row.OriginalCampaignID
		}
	}
	return campaignID
}
