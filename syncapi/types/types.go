// Copyright 2026 The Hummingbird Authors
//
// SPDX-License-Identifier: AGPL-3.0-only

package types

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/matrix-org/gomatrixserverlib/spec"

	"github.com/hummingbird-im/hummingbird/storage"
)

// StreamPosition is a point in the global mutation sequence. Sync cursors
// are rendered as "s<decimal>"; the only promise clients get is that the
// server accepts back any token it issued.
type StreamPosition int64

func (p StreamPosition) String() string {
	return "s" + strconv.FormatInt(int64(p), 10)
}

// ParseStreamPosition turns a since token back into a position.
func ParseStreamPosition(token string) (StreamPosition, error) {
	rest, ok := strings.CutPrefix(token, "s")
	if !ok {
		return 0, fmt.Errorf("invalid sync token %q", token)
	}
	n, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid sync token %q", token)
	}
	return StreamPosition(n), nil
}

// ClientEvent is the wire form of an event. The internal sequence number is
// never serialized.
type ClientEvent struct {
	EventID        string                 `json:"event_id,omitempty"`
	Type           string                 `json:"type"`
	Sender         string                 `json:"sender,omitempty"`
	RoomID         string                 `json:"room_id,omitempty"`
	OriginServerTS spec.Timestamp         `json:"origin_server_ts,omitempty"`
	Content        json.RawMessage        `json:"content"`
	StateKey       *string                `json:"state_key,omitempty"`
	Redacts        string                 `json:"redacts,omitempty"`
	Unsigned       map[string]interface{} `json:"unsigned,omitempty"`
}

// ToClientEvent renders a stored event for the wire, stamping unsigned.age
// relative to now and attaching redacted_because where applicable. Room ids
// are omitted inside sync payloads; callers that need one set it themselves.
func ToClientEvent(ev *storage.Event, now time.Time) ClientEvent {
	ce := ClientEvent{
		EventID:        ev.EventID,
		Type:           ev.Type,
		Sender:         ev.Sender,
		OriginServerTS: ev.OriginServerTS,
		Content:        ev.Content,
		StateKey:       ev.StateKey,
		Redacts:        ev.Redacts,
		Unsigned: map[string]interface{}{
			"age": now.UnixMilli() - int64(ev.OriginServerTS),
		},
	}
	if ev.RedactedBecause != nil {
		because := ToClientEvent(ev.RedactedBecause, now)
		because.Unsigned = nil
		ce.Unsigned["redacted_because"] = because
	}
	return ce
}

// ToStrippedEvent renders the invitee's view of a state event: type,
// state_key, content and sender only.
func ToStrippedEvent(ev *storage.Event) ClientEvent {
	return ClientEvent{
		Type:     ev.Type,
		Sender:   ev.Sender,
		Content:  ev.Content,
		StateKey: ev.StateKey,
	}
}

// Response is the top-level /sync payload.
type Response struct {
	NextBatch   string       `json:"next_batch"`
	AccountData ClientEvents `json:"account_data"`
	Rooms       RoomsResponse `json:"rooms"`
}

type ClientEvents struct {
	Events []ClientEvent `json:"events"`
}

type RoomsResponse struct {
	Join   map[string]JoinResponse   `json:"join"`
	Invite map[string]InviteResponse `json:"invite"`
}

type JoinResponse struct {
	Summary             Summary             `json:"summary"`
	State               ClientEvents        `json:"state"`
	Timeline            Timeline            `json:"timeline"`
	Ephemeral           ClientEvents        `json:"ephemeral"`
	AccountData         ClientEvents        `json:"account_data"`
	UnreadNotifications UnreadNotifications `json:"unread_notifications"`
}

type InviteResponse struct {
	InviteState ClientEvents `json:"invite_state"`
}

type Timeline struct {
	Events    []ClientEvent `json:"events"`
	Limited   bool          `json:"limited"`
	PrevBatch string        `json:"prev_batch,omitempty"`
}

type Summary struct {
	Heroes             []string `json:"m.heroes,omitempty"`
	JoinedMemberCount  *int     `json:"m.joined_member_count,omitempty"`
	InvitedMemberCount *int     `json:"m.invited_member_count,omitempty"`
}

// UnreadNotifications is always zeroed: there is no push-rule evaluation.
type UnreadNotifications struct {
	HighlightCount    int `json:"highlight_count"`
	NotificationCount int `json:"notification_count"`
}

// NewResponse returns an empty response with the containers initialised so
// the serialized form always carries rooms.join / rooms.invite /
// account_data.events, matching what clients expect.
func NewResponse() *Response {
	return &Response{
		AccountData: ClientEvents{Events: []ClientEvent{}},
		Rooms: RoomsResponse{
			Join:   make(map[string]JoinResponse),
			Invite: make(map[string]InviteResponse),
		},
	}
}

// IsEmpty reports whether the response carries nothing a blocked /sync
// would want to deliver: no joined-room entries, no invites and no global
// account data.
func (r *Response) IsEmpty() bool {
	return len(r.Rooms.Join) == 0 && len(r.Rooms.Invite) == 0 && len(r.AccountData.Events) == 0
}
