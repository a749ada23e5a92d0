package sender

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/ignite/campaign-engine/internal/campaign"
	"github.com/ignite/campaign-engine/internal/queue"
	"github.com/ignite/campaign-engine/internal/tracking"
)

// EventRecorder persists dispatch-time tracking rows.
type EventRecorder interface {
	PutEvent(ctx context.Context, evt *tracking.Event) error
}

// CampaignUpdater is the campaign-store surface the dispatcher needs.
type CampaignUpdater interface {
	SetUnverifiedEmails(ctx context.Context, campaignID, emailID string, emails []string) error
}

// StatusApplier merges a send outcome into campaign status.
type StatusApplier interface {
	ApplyStatus(ctx context.Context, campaignID string, status campaign.Status) error
}

// Dispatcher runs the per-recipient send loop for one campaign step:
// mint a tracking id, personalize, wrap links, send, and record the
// outcome as a tracking row. The Send row written here carries the
// provider message id that later webhook events are matched against.
type Dispatcher struct {
	sender         EmailSender
	events         EventRecorder
	campaigns      CampaignUpdater
	status         StatusApplier
	trackingDomain string
	fromEmail      string
}

func NewDispatcher(sender EmailSender, events EventRecorder, campaigns CampaignUpdater, status StatusApplier, trackingDomain, fromEmail string) *Dispatcher {
	return &Dispatcher{
		sender:         sender,
		events:         events,
		campaigns:      campaigns,
		status:         status,
		trackingDomain: trackingDomain,
		fromEmail:      fromEmail,
	}
}

// Dispatch sends one email step to the given recipients and merges the
// resulting status into the campaign.
func (d *Dispatcher) Dispatch(ctx context.Context, c *campaign.Campaign, step string, recipients []string) error {
	subject, body, err := stepContent(c, step)
	if err != nil {
		return err
	}
	if len(recipients) == 0 {
		recipients = c.Recipients
	}

	var sent, failed int
	var unverified []string

	for _, recipient := range recipients {
		messageID := "msg-" + uuid.New().String()

		renderedSubject := RenderTemplate(subject, recipient, c.CampaignID, messageID)
		renderedBody := RenderTemplate(body, recipient, c.CampaignID, messageID)
		renderedBody = RewriteLinks(renderedBody, d.trackingDomain, c.CampaignID, messageID, recipient)

		providerID, err := d.sender.Send(ctx, &Message{
			FromEmail:  d.fromEmail,
			To:         recipient,
			Subject:    renderedSubject,
			HTMLBody:   renderedBody,
			CampaignID: c.CampaignID,
			MessageID:  messageID,
		})

		switch {
		case err == nil:
			sent++
			d.recordEvent(ctx, c, messageID, recipient, tracking.EventSend, providerID, "")
		case IsVerificationError(err):
			unverified = append(unverified, recipient)
			d.recordEvent(ctx, c, messageID, recipient, tracking.EventUnverified, "", err.Error())
		default:
			failed++
			log.Printf("[Sender] send failed campaign=%s to=%s: %v", c.CampaignID, redactEmail(recipient), err)
			d.recordEvent(ctx, c, messageID, recipient, tracking.EventFailed, "", err.Error())
		}
	}

	if len(unverified) > 0 {
		if err := d.campaigns.SetUnverifiedEmails(ctx, c.CampaignID, c.EmailID, unverified); err != nil {
			log.Printf("[Sender] recording unverified recipients failed for %s: %v", c.CampaignID, err)
		}
		d.requestVerifications(ctx, unverified)
	}

	outcome := outcomeStatus(sent, failed, len(unverified), len(recipients))
	if err := d.status.ApplyStatus(ctx, c.CampaignID, outcome); err != nil {
		log.Printf("[Sender] status merge failed for %s: %v", c.CampaignID, err)
	}

	log.Printf("[Sender] campaign=%s step=%s sent=%d failed=%d unverified=%d -> %s",
		c.CampaignID, step, sent, failed, len(unverified), outcome)
	return nil
}

// identityVerifier is implemented by senders that can kick off SES
// identity verification for a rejected address.
type identityVerifier interface {
	RequestVerification(ctx context.Context, email string) error
}

// requestVerifications starts verification for every rejected address so
// the owner gets the SES confirmation email. Best effort; the campaign is
// already marked PENDING_VERIFICATION either way.
func (d *Dispatcher) requestVerifications(ctx context.Context, emails []string) {
	verifier, ok := d.sender.(identityVerifier)
	if !ok {
		return
	}
	for _, email := range emails {
		if err := verifier.RequestVerification(ctx, email); err != nil {
			log.Printf("[Sender] %v", err)
		}
	}
}

func (d *Dispatcher) recordEvent(ctx context.Context, c *campaign.Campaign, messageID, recipient string, eventType tracking.EventType, providerID, sendErr string) {
	evt := &tracking.Event{
		MessageID:          messageID,
		EventType:          eventType,
		SESMessageID:       providerID,
		CampaignID:         c.CampaignID,
		OriginalCampaignID: c.OriginalCampaignID,
		Timestamp:          nowRFC3339(),
		Recipients:         []string{recipient},
		RecipientPrimary:   recipient,
	}
	if sendErr != "" {
		evt.SetRaw(tracking.RawEvent{Error: sendErr})
	}
	if err := d.events.PutEvent(ctx, evt); err != nil {
		log.Printf("[Sender] recording %s event failed for %s: %v", eventType, messageID, err)
	}
}

// stepContent resolves the subject and body for a send step from the
// campaign row, so edits made after enqueue are picked up at send time.
func stepContent(c *campaign.Campaign, step string) (subject, body string, err error) {
	switch step {
	case queue.StepRegular, "":
		return c.Subject, c.Body, nil
	case queue.StepEmail1, queue.StepEmailA, queue.StepEmailB:
		if c.DripConfig == nil {
			return "", "", fmt.Errorf("campaign %s has no drip config for step %s", c.CampaignID, step)
		}
		switch step {
		case queue.StepEmail1:
			return c.DripConfig.Email1.Subject, c.DripConfig.Email1.Body, nil
		case queue.StepEmailA:
			return c.DripConfig.EmailA.Subject, c.DripConfig.EmailA.Body, nil
		default:
			return c.DripConfig.EmailB.Subject, c.DripConfig.EmailB.Body, nil
		}
	default:
		return "", "", fmt.Errorf("unknown email step %q", step)
	}
}

func outcomeStatus(sent, failed, unverified, total int) campaign.Status {
	switch {
	case sent == total && total > 0:
		return campaign.StatusSent
	case unverified > 0:
		return campaign.StatusPendingVerification
	case sent > 0:
		return campaign.StatusPartiallySent
	default:
		return campaign.StatusFailed
	}
}
