package tracking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func evtFor(recipient string, eventType EventType) Event {
	return Event{
		MessageID:        "msg-" + recipient,
		EventType:        eventType,
		Recipients:       []string{recipient},
		RecipientPrimary: recipient,
	}
}

func TestComputeStatsUniqueCounts(t *testing.T) {
	events := []Event{
		evtFor("alice@example.com", EventSend),
		evtFor("bob@example.com", EventSend),
		evtFor("carol@example.com", EventSend),
		evtFor("alice@example.com", EventOpen),
		evtFor("bob@example.com", EventOpen),
		evtFor("alice@example.com", EventClick),
		evtFor("carol@example.com", EventBounce),
	}

	stats := ComputeStats("campaign#stat0001", 3, events)
	assert.Equal(t, 3, stats.TotalSent)
	assert.Equal(t, 2, stats.UniqueOpens)
	assert.Equal(t, 1, stats.UniqueClicks)
	assert.Equal(t, 1, stats.Bounces)
	assert.Equal(t, 0, stats.Complaints)
	assert.InDelta(t, 66.66, stats.OpenRate, 0.01)
	assert.InDelta(t, 33.33, stats.ClickRate, 0.01)
}

func TestComputeStatsAbsorbsReplays(t *testing.T) {
	// Replaying the same event batch five times must not change anything:
	// the fold is keyed on unique recipients.
	batch := []Event{
		evtFor("alice@example.com", EventSend),
		evtFor("alice@example.com", EventOpen),
		evtFor("alice@example.com", EventClick),
	}

	var replayed []Event
	for i := 0; i < 5; i++ {
		replayed = append(replayed, batch...)
	}

	once := ComputeStats("campaign#stat0002", 1, batch)
	five := ComputeStats("campaign#stat0002", 1, replayed)
	assert.Equal(t, once, five)
}

func TestComputeStatsSkipsUnverifiedOpens(t *testing.T) {
	unverified := false
	verified := true

	botOpen := evtFor("alice@example.com", EventOpen)
	botOpen.SetRaw(RawEvent{VerifiedHuman: &unverified})

	humanOpen := evtFor("bob@example.com", EventOpen)
	humanOpen.SetRaw(RawEvent{VerifiedHuman: &verified})

	// Rows written before the flag existed carry no raw blob at all; they
	// count as opens so historical stats keep their numbers.
	legacyOpen := evtFor("carol@example.com", EventOpen)

	stats := ComputeStats("campaign#stat0003", 3, []Event{botOpen, humanOpen, legacyOpen})
	assert.Equal(t, 2, stats.UniqueOpens)
}

func TestComputeStatsRatesClampAt100(t *testing.T) {
	// Heuristic attribution can credit more openers than recipients.
	events := []Event{
		evtFor("alice@example.com", EventOpen),
		evtFor("bob@example.com", EventOpen),
		evtFor("carol@example.com", EventOpen),
	}

	stats := ComputeStats("campaign#stat0004", 1, events)
	assert.Equal(t, float64(100), stats.OpenRate)
}

func TestComputeStatsSentFallsBackToRecipients(t *testing.T) {
	// No send rows yet (events arrived before the sends were recorded):
	// total_sent reports the recipient count rather than zero.
	events := []Event{evtFor("alice@example.com", EventOpen)}

	stats := ComputeStats("campaign#stat0005", 4, events)
	assert.Equal(t, 4, stats.TotalSent)
}

func TestComputeStatsFallsBackToRecipientList(t *testing.T) {
	evt := Event{
		MessageID:  "msg-norecip",
		EventType:  EventSend,
		Recipients: []string{"dave@example.com"},
	}

	stats := ComputeStats("campaign#stat0006", 1, []Event{evt})
	assert.Equal(t, 1, stats.TotalSent)
}

func TestOpenedRecipients(t *testing.T) {
	unverified := false

	botOpen := evtFor("bot@example.com", EventOpen)
	botOpen.SetRaw(RawEvent{VerifiedHuman: &unverified})

	opened := OpenedRecipients([]Event{
		evtFor("alice@example.com", EventOpen),
		evtFor("alice@example.com", EventOpen),
		evtFor("bob@example.com", EventClick),
		botOpen,
	})

	assert.Equal(t, map[string]bool{"alice@example.com": true}, opened)
}
