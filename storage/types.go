// Copyright 2026 The Hummingbird Authors
//
// SPDX-License-Identifier: AGPL-3.0-only

package storage

import (
	"encoding/json"

	"github.com/matrix-org/gomatrixserverlib/spec"
	"github.com/tidwall/gjson"
)

// User is a fixed account loaded from configuration at startup. The set of
// users never changes while the process runs; only the profile fields are
// mutable.
type User struct {
	Localpart   string
	Password    string
	DisplayName string
	AvatarURL   string
}

// Device is created at login and destroyed at logout. The transaction map
// provides per-device send idempotency: a replayed (device, txn) pair maps
// back to the event id of the original send.
type Device struct {
	ID           string
	UserID       string
	AccessToken  string
	DisplayName  string
	transactions map[string]string
}

// Event is a room timeline entry. Events are immutable once created:
// redaction replaces the stored event with a redacted copy rather than
// mutating it, so snapshots handed out earlier stay race-free.
type Event struct {
	EventID        string
	Type           string
	Sender         string
	RoomID         string
	OriginServerTS spec.Timestamp
	Content        json.RawMessage
	StateKey       *string

	// Redacts carries the target event id on m.room.redaction events.
	Redacts string

	// RedactedBecause points at the m.room.redaction event once this event
	// has been redacted. Rendered as unsigned.redacted_because on the wire.
	RedactedBecause *Event

	// Seq is the global sequence number stamped at append time. Never
	// exposed on the wire; it is the cursor alphabet of /sync.
	Seq int64
}

// Membership returns content.membership for member events, or "" otherwise.
func (e *Event) Membership() string {
	return gjson.GetBytes(e.Content, "membership").Str
}

// PartialEvent carries the caller-supplied parts of an event about to be
// appended. The store fills in the id, timestamp and sequence number.
type PartialEvent struct {
	Type     string
	Sender   string
	Content  json.RawMessage
	StateKey *string
	Redacts  string
}

// StateKeyTuple is the composite key of the room state map.
type StateKeyTuple struct {
	EventType string
	StateKey  string
}

// Room holds the full history of every event ever appended (timeline) and
// the latest state event per (type, state_key) pair. Rooms are never
// deleted.
type Room struct {
	RoomID   string
	Version  string
	State    map[StateKeyTuple]*Event
	Timeline []*Event
}

// MediaItem is an uploaded blob, immutable once stored.
type MediaItem struct {
	MediaID     string
	Bytes       []byte
	ContentType string
	FileName    string
}

// AccountDataItem is one account-data entry. RoomID is empty for global
// account data. At most one item exists per (user, room, type) triple.
type AccountDataItem struct {
	UserID  string
	RoomID  string
	Type    string
	Content json.RawMessage
	Seq     int64
}

// Receipt records the latest read position of a user in a room. At most one
// receipt exists per (room, user, type) triple.
type Receipt struct {
	UserID      string
	EventID     string
	TS          spec.Timestamp
	ReceiptType string
	Seq         int64
}
