package campaign

// Status is the lifecycle status of a campaign. Statuses are ordered by
// priority; a campaign's status only ever moves to an equal or higher
// priority, so late or replayed tracking events can never regress it.
type Status string

const (
	StatusScheduled           Status = "SCHEDULED"
	StatusPendingVerification Status = "PENDING_VERIFICATION"
	StatusSent                Status = "SENT"
	StatusPartiallySent       Status = "PARTIALLY_SENT"
	StatusOpened              Status = "OPENED"
	StatusClicked             Status = "CLICKED"
	StatusFailed              Status = "FAILED"
)

var statusPriority = map[Status]int{
	StatusScheduled:           0,
	StatusPendingVerification: 1,
	StatusSent:                2,
	StatusPartiallySent:       2,
	StatusOpened:              3,
	StatusClicked:             4,
	StatusFailed:              5,
}

// Priority returns the merge rank of the status. Unknown statuses rank
// lowest so they never clobber a known one.
func (s Status) Priority() int {
	if p, ok := statusPriority[s]; ok {
		return p
	}
	return -1
}

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	_, ok := statusPriority[s]
	return ok
}

// ShouldReplace reports whether s may overwrite current under the
// monotonic merge rule. Equal priority is allowed so repeat events can
// refresh metadata without regressing the status.
func (s Status) ShouldReplace(current Status) bool {
	return s.Priority() >= current.Priority()
}

// StatusForEvent maps a provider event type to the campaign status it
// implies. The bool is false for event types that carry no status
// transition (for example Unsubscribe).
func StatusForEvent(eventType string) (Status, bool) {
	switch eventType {
	case "Send", "Delivery":
		return StatusSent, true
	case "Open":
		return StatusOpened, true
	case "Click":
		return StatusClicked, true
	case "Bounce", "Complaint", "Reject", "Rendering Failure":
		return StatusFailed, true
	default:
		return "", false
	}
}
