package watcher

// EventType defines the type of event being broadcast.
type EventType string

const (
	EventSnapshotUpdated   EventType = "snapshot_updated"
	EventWalletConnected   EventType = "wallet_connected"
	EventTransferSubmitted EventType = "transfer_submitted"
)

// Event represents a dashboard event.
type Event struct {
	Type EventType   `json:"type"`
	Data interface{} `json:"data"`
}

// Subscriber is a channel that receives events.
type Subscriber chan Event
