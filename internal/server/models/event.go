package models

import "time"

// EventKind names a vault mutation recorded in the activity journal.
type EventKind string

const (
	EventCreate  EventKind = "create"
	EventDelete  EventKind = "delete"
	EventRename  EventKind = "rename"
	EventMove    EventKind = "move"
	EventLock    EventKind = "lock"
	EventUnlock  EventKind = "unlock"
	EventUpload  EventKind = "upload"
	EventExpired EventKind = "expired"
)

// Event is one journal row.
type Event struct {
	ID        string
	Kind      EventKind
	Path      string
	Detail    string
	Actor     string
	CreatedAt time.Time
}
