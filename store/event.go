package store

import "time"

type EventType uint8

const (
	EventUnknown EventType = iota
	EventPurchaseStarted
	EventPurchaseSucceeded
	EventPurchaseFailed
	EventRestored
)

func (t EventType) String() string {
	switch t {
	case EventPurchaseStarted:
		return "purchase_started"
	case EventPurchaseSucceeded:
		return "purchase_succeeded"
	case EventPurchaseFailed:
		return "purchase_failed"
	case EventRestored:
		return "restored"
	default:
		return "unknown"
	}
}

// Event is a purchase lifecycle event. Events are keyed by product ID on the
// controller's bus; restore events have an empty key.
type Event struct {
	Type      EventType
	Timestamp time.Time

	Info    PurchaseInfo
	Receipt string

	// Reason is set for EventPurchaseFailed and for failed EventRestored.
	Reason error

	// Restored is the restore outcome for EventRestored.
	Restored bool
}
