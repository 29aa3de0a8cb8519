package bus

import "time"

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Row-change event kinds, one per observed table mutation. These mirror the
// backend change feed: the payload is a Change carrying the new row.
const (
	KindChatInserted    = "change.chats.insert"
	KindChatUpdated     = "change.chats.update"
	KindMessageInserted = "change.chat_messages.insert"
)

// Change is the payload of change.* events: a row-level mutation on one of
// the observed tables.
type Change struct {
	Table string // "chats" or "chat_messages"
	Type  string // "INSERT" or "UPDATE"
	New   any    // the new row
}

// NewChange builds a change.* event for publication.
func NewChange(kind, table, typ string, row any) Event {
	return Event{
		Kind:      kind,
		Timestamp: time.Now(),
		Payload:   Change{Table: table, Type: typ, New: row},
	}
}
