// Copyright 2026 The Hummingbird Authors
//
// SPDX-License-Identifier: AGPL-3.0-only

package storage

import (
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/matrix-org/gomatrixserverlib/spec"
	"github.com/tidwall/sjson"

	"github.com/hummingbird-im/hummingbird/internal/eventutil"
)

var (
	ErrRoomNotFound   = errors.New("room not found")
	ErrEventNotFound  = errors.New("event not found")
	ErrDeviceNotFound = errors.New("device not found")
	ErrAliasTaken     = errors.New("alias already mapped to a room")
)

// UserNotifier wakes any /sync request blocked on behalf of a user. The
// store calls it strictly after the global sequence has advanced and the
// mutation is visible, so a woken request always observes the change.
type UserNotifier interface {
	NotifyUser(userID string)
}

type accountDataKey struct {
	userID   string
	roomID   string
	dataType string
}

type receiptKey struct {
	userID      string
	receiptType string
}

// Database is the single source of truth for the whole process: users,
// devices, rooms, aliases, media, account data, receipts and the global
// sequence all live here, guarded by one mutex. The sequence increment and
// the mutation it stamps always share a critical section, which is what
// makes "items with seq > since" a sound change query.
type Database struct {
	mu         sync.Mutex
	serverName string
	users      map[string]*User
	devices    map[string]*Device
	tokens     map[string]*Device
	rooms      map[string]*Room
	aliases    map[string]string
	media      map[string]*MediaItem
	accounts   map[accountDataKey]*AccountDataItem
	receipts   map[string]map[receiptKey]*Receipt
	seq        int64
	notifier   UserNotifier
}

func NewDatabase(serverName string, users []User) *Database {
	d := &Database{
		serverName: serverName,
		users:      make(map[string]*User, len(users)),
		devices:    make(map[string]*Device),
		tokens:     make(map[string]*Device),
		rooms:      make(map[string]*Room),
		aliases:    make(map[string]string),
		media:      make(map[string]*MediaItem),
		accounts:   make(map[accountDataKey]*AccountDataItem),
		receipts:   make(map[string]map[receiptKey]*Receipt),
	}
	for i := range users {
		u := users[i]
		d.users[u.Localpart] = &u
	}
	return d
}

// SetNotifier wires the sync notifier in after construction. Must be called
// before the server accepts requests.
func (d *Database) SetNotifier(n UserNotifier) {
	d.notifier = n
}

func (d *Database) ServerName() string { return d.serverName }

// UserID renders the full Matrix user id for a configured localpart.
func (d *Database) UserID(localpart string) string {
	return "@" + localpart + ":" + d.serverName
}

// GlobalSeq returns the current value of the global sequence. Sync cursors
// are this number rendered as "s<N>".
func (d *Database) GlobalSeq() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.seq
}

func (d *Database) notify(userIDs ...string) {
	if d.notifier == nil {
		return
	}
	seen := make(map[string]struct{}, len(userIDs))
	for _, userID := range userIDs {
		if _, ok := seen[userID]; ok {
			continue
		}
		seen[userID] = struct{}{}
		d.notifier.NotifyUser(userID)
	}
}

// ---------------------------------------------------------------------------
// Users and devices

// UserByLocalpart returns a copy of the configured account, if any.
func (d *Database) UserByLocalpart(localpart string) (User, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[localpart]
	if !ok {
		return User{}, false
	}
	return *u, true
}

// UserByID looks an account up by its full @localpart:server form.
func (d *Database) UserByID(userID string) (User, bool) {
	localpart, ok := d.localpart(userID)
	if !ok {
		return User{}, false
	}
	return d.UserByLocalpart(localpart)
}

func (d *Database) localpart(userID string) (string, bool) {
	if !strings.HasPrefix(userID, "@") {
		return "", false
	}
	rest := userID[1:]
	idx := strings.IndexByte(rest, ':')
	if idx < 0 || rest[idx+1:] != d.serverName {
		return "", false
	}
	return rest[:idx], true
}

// CreateDevice allocates a fresh device with an indexed access token.
func (d *Database) CreateDevice(userID, displayName string) *Device {
	d.mu.Lock()
	defer d.mu.Unlock()
	dev := &Device{
		ID:           eventutil.NewDeviceID(),
		UserID:       userID,
		AccessToken:  eventutil.NewAccessToken(),
		DisplayName:  displayName,
		transactions: make(map[string]string),
	}
	d.devices[dev.ID] = dev
	d.tokens[dev.AccessToken] = dev
	return dev
}

// DeviceByAccessToken is the O(1) bearer-token lookup used on every
// authenticated request.
func (d *Database) DeviceByAccessToken(token string) (*Device, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	dev, ok := d.tokens[token]
	return dev, ok
}

// RemoveDevice drops the device, its token index entry and its transaction
// map. Used at logout.
func (d *Database) RemoveDevice(deviceID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	dev, ok := d.devices[deviceID]
	if !ok {
		return
	}
	delete(d.tokens, dev.AccessToken)
	delete(d.devices, deviceID)
	dev.transactions = nil
}

// ---------------------------------------------------------------------------
// Rooms and events

// CreateRoom allocates a fresh room with empty state and timeline.
func (d *Database) CreateRoom() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	room := &Room{
		RoomID:  eventutil.NewRoomID(d.serverName),
		Version: "10",
		State:   make(map[StateKeyTuple]*Event),
	}
	d.rooms[room.RoomID] = room
	return room.RoomID
}

func (d *Database) RoomExists(roomID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.rooms[roomID]
	return ok
}

// appendEventLocked is the single place events come into being: advance the
// sequence, stamp it, append to the timeline and install into the state map
// when a state key is present. Callers must hold d.mu.
func (d *Database) appendEventLocked(room *Room, partial PartialEvent) *Event {
	d.seq++
	content := partial.Content
	if content == nil {
		content = json.RawMessage("{}")
	}
	ev := &Event{
		EventID:        eventutil.NewEventID(d.serverName),
		Type:           partial.Type,
		Sender:         partial.Sender,
		RoomID:         room.RoomID,
		OriginServerTS: spec.AsTimestamp(time.Now()),
		Content:        content,
		StateKey:       partial.StateKey,
		Redacts:        partial.Redacts,
		Seq:            d.seq,
	}
	room.Timeline = append(room.Timeline, ev)
	if ev.StateKey != nil {
		room.State[StateKeyTuple{EventType: ev.Type, StateKey: *ev.StateKey}] = ev
	}
	return ev
}

// AddEvent appends an event to the room. Notification of affected users is
// the caller's job, and must happen after this returns.
func (d *Database) AddEvent(roomID string, partial PartialEvent) (*Event, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	room, ok := d.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return d.appendEventLocked(room, partial), nil
}

// SendEvent appends a client message event with per-device transaction
// idempotency. A replayed (device, txn) pair returns the original event
// without touching the timeline.
func (d *Database) SendEvent(roomID, deviceID, txnID string, partial PartialEvent) (*Event, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	room, ok := d.rooms[roomID]
	if !ok {
		return nil, false, ErrRoomNotFound
	}
	dev, ok := d.devices[deviceID]
	if !ok {
		return nil, false, ErrDeviceNotFound
	}
	if prior, ok := dev.transactions[txnID]; ok {
		for _, ev := range room.Timeline {
			if ev.EventID == prior {
				return ev, true, nil
			}
		}
		// Transaction map points at an event we no longer know about;
		// treat as a fresh send.
	}
	ev := d.appendEventLocked(room, partial)
	dev.transactions[txnID] = ev.EventID
	return ev, false, nil
}

// RedactEvent appends an m.room.redaction event and blanks the target in
// one critical section. The target is replaced with a redacted copy rather
// than mutated, so snapshots taken earlier keep the original bytes.
func (d *Database) RedactEvent(roomID, deviceID, txnID, sender, targetEventID string, content json.RawMessage) (*Event, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	room, ok := d.rooms[roomID]
	if !ok {
		return nil, false, ErrRoomNotFound
	}
	dev, ok := d.devices[deviceID]
	if !ok {
		return nil, false, ErrDeviceNotFound
	}
	if prior, ok := dev.transactions[txnID]; ok {
		for _, ev := range room.Timeline {
			if ev.EventID == prior {
				return ev, true, nil
			}
		}
	}
	var target *Event
	targetIdx := -1
	for i, ev := range room.Timeline {
		if ev.EventID == targetEventID {
			target, targetIdx = ev, i
			break
		}
	}
	if target == nil {
		return nil, false, ErrEventNotFound
	}
	redaction := d.appendEventLocked(room, PartialEvent{
		Type:    spec.MRoomRedaction,
		Sender:  sender,
		Content: content,
		Redacts: targetEventID,
	})
	redacted := *target
	redacted.Content = json.RawMessage("{}")
	redacted.RedactedBecause = redaction
	room.Timeline[targetIdx] = &redacted
	if redacted.StateKey != nil {
		key := StateKeyTuple{EventType: redacted.Type, StateKey: *redacted.StateKey}
		if cur, ok := room.State[key]; ok && cur.EventID == redacted.EventID {
			room.State[key] = &redacted
		}
	}
	dev.transactions[txnID] = redaction.EventID
	return redaction, false, nil
}

// EventByID finds an event in the room's timeline.
func (d *Database) EventByID(roomID, eventID string) (*Event, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	room, ok := d.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	for _, ev := range room.Timeline {
		if ev.EventID == eventID {
			return ev, nil
		}
	}
	return nil, ErrEventNotFound
}

// TimelineSince returns the events with seq > sinceSeq in timeline order.
// sinceSeq 0 yields the full timeline.
func (d *Database) TimelineSince(roomID string, sinceSeq int64) []*Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	room, ok := d.rooms[roomID]
	if !ok {
		return nil
	}
	var events []*Event
	for _, ev := range room.Timeline {
		if ev.Seq > sinceSeq {
			events = append(events, ev)
		}
	}
	return events
}

// CurrentState returns the current state events of the room ordered by
// sequence number.
func (d *Database) CurrentState(roomID string) []*Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	room, ok := d.rooms[roomID]
	if !ok {
		return nil
	}
	events := make([]*Event, 0, len(room.State))
	for _, ev := range room.State {
		events = append(events, ev)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Seq < events[j].Seq })
	return events
}

// StateEvent returns the current state event at (type, state key), if any.
func (d *Database) StateEvent(roomID, eventType, stateKey string) (*Event, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	room, ok := d.rooms[roomID]
	if !ok {
		return nil, false
	}
	ev, ok := room.State[StateKeyTuple{EventType: eventType, StateKey: stateKey}]
	return ev, ok
}

// Membership derives a user's membership in a room from the current
// m.room.member state event, or "" when there is none.
func (d *Database) Membership(roomID, userID string) string {
	ev, ok := d.StateEvent(roomID, spec.MRoomMember, userID)
	if !ok {
		return ""
	}
	return ev.Membership()
}

// RoomsForUser scans every room and returns the ids where the user has the
// given membership, sorted for deterministic sync payloads. A linear scan
// is fine at the target scale.
func (d *Database) RoomsForUser(userID, membership string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var roomIDs []string
	for roomID, room := range d.rooms {
		ev, ok := room.State[StateKeyTuple{EventType: spec.MRoomMember, StateKey: userID}]
		if ok && ev.Membership() == membership {
			roomIDs = append(roomIDs, roomID)
		}
	}
	sort.Strings(roomIDs)
	return roomIDs
}

// MembersWithMembership returns the user ids whose membership in the room
// is one of the given values.
func (d *Database) MembersWithMembership(roomID string, memberships ...string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	room, ok := d.rooms[roomID]
	if !ok {
		return nil
	}
	var userIDs []string
	for key, ev := range room.State {
		if key.EventType != spec.MRoomMember {
			continue
		}
		got := ev.Membership()
		for _, want := range memberships {
			if got == want {
				userIDs = append(userIDs, key.StateKey)
				break
			}
		}
	}
	sort.Strings(userIDs)
	return userIDs
}

// JoinedUsers is the notification fan-out set for most room mutations.
func (d *Database) JoinedUsers(roomID string) []string {
	return d.MembersWithMembership(roomID, spec.Join)
}

// ---------------------------------------------------------------------------
// Aliases

// SetAlias maps a #name:server alias to a room. At most one room per alias.
func (d *Database) SetAlias(alias, roomID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.aliases[alias]; ok {
		return ErrAliasTaken
	}
	d.aliases[alias] = roomID
	return nil
}

func (d *Database) ResolveAlias(alias string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	roomID, ok := d.aliases[alias]
	return roomID, ok
}

// ---------------------------------------------------------------------------
// Media

// StoreMedia keeps the blob in memory and returns the allocated media id.
func (d *Database) StoreMedia(contentType, fileName string, data []byte) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	item := &MediaItem{
		MediaID:     eventutil.NewMediaID(),
		Bytes:       data,
		ContentType: contentType,
		FileName:    fileName,
	}
	d.media[item.MediaID] = item
	return item.MediaID
}

func (d *Database) Media(mediaID string) (*MediaItem, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	item, ok := d.media[mediaID]
	return item, ok
}

// ---------------------------------------------------------------------------
// Account data

// SetAccountData replaces any existing entry for the (user, room, type)
// triple, advances the sequence and wakes the user's sync.
func (d *Database) SetAccountData(userID, roomID, dataType string, content json.RawMessage) {
	d.mu.Lock()
	d.seq++
	key := accountDataKey{userID: userID, roomID: roomID, dataType: dataType}
	d.accounts[key] = &AccountDataItem{
		UserID:  userID,
		RoomID:  roomID,
		Type:    dataType,
		Content: content,
		Seq:     d.seq,
	}
	d.mu.Unlock()
	d.notify(userID)
}

func (d *Database) AccountData(userID, roomID, dataType string) (*AccountDataItem, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	item, ok := d.accounts[accountDataKey{userID: userID, roomID: roomID, dataType: dataType}]
	return item, ok
}

// AccountDataSince returns the user's account data with seq > sinceSeq,
// split into global entries and per-room entries, each ordered by sequence.
// sinceSeq 0 yields everything, which is the initial-sync case.
func (d *Database) AccountDataSince(userID string, sinceSeq int64) ([]*AccountDataItem, map[string][]*AccountDataItem) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var global []*AccountDataItem
	rooms := make(map[string][]*AccountDataItem)
	for key, item := range d.accounts {
		if key.userID != userID || item.Seq <= sinceSeq {
			continue
		}
		if key.roomID == "" {
			global = append(global, item)
		} else {
			rooms[key.roomID] = append(rooms[key.roomID], item)
		}
	}
	sort.Slice(global, func(i, j int) bool { return global[i].Seq < global[j].Seq })
	for roomID := range rooms {
		items := rooms[roomID]
		sort.Slice(items, func(i, j int) bool { return items[i].Seq < items[j].Seq })
	}
	return global, rooms
}

// ---------------------------------------------------------------------------
// Receipts

// SetReceipt replaces any existing receipt of the same (room, user, type)
// and advances the sequence. Waking the room's members is the caller's job.
func (d *Database) SetReceipt(roomID, receiptType, userID, eventID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seq++
	byRoom, ok := d.receipts[roomID]
	if !ok {
		byRoom = make(map[receiptKey]*Receipt)
		d.receipts[roomID] = byRoom
	}
	byRoom[receiptKey{userID: userID, receiptType: receiptType}] = &Receipt{
		UserID:      userID,
		EventID:     eventID,
		TS:          spec.AsTimestamp(time.Now()),
		ReceiptType: receiptType,
		Seq:         d.seq,
	}
}

// Receipts returns every receipt in the room, ordered by user then type.
func (d *Database) Receipts(roomID string) []*Receipt {
	d.mu.Lock()
	defer d.mu.Unlock()
	byRoom := d.receipts[roomID]
	receipts := make([]*Receipt, 0, len(byRoom))
	for _, r := range byRoom {
		receipts = append(receipts, r)
	}
	sort.Slice(receipts, func(i, j int) bool {
		if receipts[i].UserID != receipts[j].UserID {
			return receipts[i].UserID < receipts[j].UserID
		}
		return receipts[i].ReceiptType < receipts[j].ReceiptType
	})
	return receipts
}

// ---------------------------------------------------------------------------
// Profiles

// Profile returns the current display name and avatar URL for a user.
func (d *Database) Profile(userID string) (displayName, avatarURL string, ok bool) {
	localpart, ok := d.localpart(userID)
	if !ok {
		return "", "", false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[localpart]
	if !ok {
		return "", "", false
	}
	return u.DisplayName, u.AvatarURL, true
}

// UpdateMemberProfile updates the stored profile fields and re-issues the
// user's m.room.member state event in every room they are joined to,
// preserving the rest of the member content. Every joined member of each
// affected room is woken.
func (d *Database) UpdateMemberProfile(userID string, displayName, avatarURL *string) error {
	localpart, ok := d.localpart(userID)
	if !ok {
		return ErrEventNotFound
	}
	d.mu.Lock()
	u, ok := d.users[localpart]
	if !ok {
		d.mu.Unlock()
		return ErrEventNotFound
	}
	if displayName != nil {
		u.DisplayName = *displayName
	}
	if avatarURL != nil {
		u.AvatarURL = *avatarURL
	}
	notifySet := map[string]struct{}{userID: {}}
	for _, room := range d.rooms {
		memberKey := StateKeyTuple{EventType: spec.MRoomMember, StateKey: userID}
		current, ok := room.State[memberKey]
		if !ok || current.Membership() != spec.Join {
			continue
		}
		content := current.Content
		if displayName != nil {
			content, _ = sjson.SetBytes(content, "displayname", *displayName)
		}
		if avatarURL != nil {
			content, _ = sjson.SetBytes(content, "avatar_url", *avatarURL)
		}
		stateKey := userID
		d.appendEventLocked(room, PartialEvent{
			Type:     spec.MRoomMember,
			Sender:   userID,
			Content:  content,
			StateKey: &stateKey,
		})
		for key, ev := range room.State {
			if key.EventType == spec.MRoomMember && ev.Membership() == spec.Join {
				notifySet[key.StateKey] = struct{}{}
			}
		}
	}
	d.mu.Unlock()
	userIDs := make([]string, 0, len(notifySet))
	for id := range notifySet {
		userIDs = append(userIDs, id)
	}
	sort.Strings(userIDs)
	d.notify(userIDs...)
	return nil
}
