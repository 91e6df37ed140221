// Copyright 2026 The Hummingbird Authors
//
// SPDX-License-Identifier: AGPL-3.0-only

package sync

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/matrix-org/gomatrixserverlib/spec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hummingbird-im/hummingbird/storage"
	"github.com/hummingbird-im/hummingbird/syncapi/types"
)

func testPool(t *testing.T) (*RequestPool, *storage.Database, *Notifier) {
	t.Helper()
	db := storage.NewDatabase("test.local", []storage.User{
		{Localpart: "alice", Password: "secret", DisplayName: "Alice"},
		{Localpart: "bob", Password: "hunter2", DisplayName: "Bob"},
	})
	n := NewNotifier()
	db.SetNotifier(n)
	return NewRequestPool(db, n), db, n
}

func joinRoom(t *testing.T, db *storage.Database, roomID, userID string) {
	t.Helper()
	content, err := json.Marshal(map[string]string{"membership": spec.Join})
	require.NoError(t, err)
	stateKey := userID
	_, err = db.AddEvent(roomID, storage.PartialEvent{
		Type:     spec.MRoomMember,
		Sender:   userID,
		Content:  content,
		StateKey: &stateKey,
	})
	require.NoError(t, err)
}

func inviteUser(t *testing.T, db *storage.Database, roomID, sender, target string) {
	t.Helper()
	content, err := json.Marshal(map[string]string{"membership": spec.Invite})
	require.NoError(t, err)
	stateKey := target
	_, err = db.AddEvent(roomID, storage.PartialEvent{
		Type:     spec.MRoomMember,
		Sender:   sender,
		Content:  content,
		StateKey: &stateKey,
	})
	require.NoError(t, err)
}

func syncOnce(t *testing.T, rp *RequestPool, userID, since string) *types.Response {
	t.Helper()
	url := "/_matrix/client/v3/sync"
	if since != "" {
		url += "?since=" + since
	}
	req := httptest.NewRequest("GET", url, nil)
	sr, errRes := parseSyncRequest(req)
	require.Nil(t, errRes)
	return rp.currentSyncForUser(userID, sr)
}

func TestInitialSyncCarriesFullRoom(t *testing.T) {
	rp, db, _ := testPool(t)
	alice := db.UserID("alice")
	roomID := db.CreateRoom()
	joinRoom(t, db, roomID, alice)
	_, err := db.AddEvent(roomID, storage.PartialEvent{
		Type:    "m.room.message",
		Sender:  alice,
		Content: json.RawMessage(`{"body":"hello"}`),
	})
	require.NoError(t, err)

	res := syncOnce(t, rp, alice, "")
	require.Contains(t, res.Rooms.Join, roomID)
	jr := res.Rooms.Join[roomID]
	assert.Len(t, jr.State.Events, 1, "full state on initial sync")
	assert.Len(t, jr.Timeline.Events, 2, "member event plus message")
	require.NotNil(t, jr.Summary.JoinedMemberCount)
	assert.Equal(t, 1, *jr.Summary.JoinedMemberCount)
	assert.Equal(t, types.StreamPosition(db.GlobalSeq()).String(), res.NextBatch)
}

func TestIncrementalSyncReturnsOnlyNewEvents(t *testing.T) {
	rp, db, _ := testPool(t)
	alice := db.UserID("alice")
	roomID := db.CreateRoom()
	joinRoom(t, db, roomID, alice)

	first := syncOnce(t, rp, alice, "")
	_, err := db.AddEvent(roomID, storage.PartialEvent{
		Type:    "m.room.message",
		Sender:  alice,
		Content: json.RawMessage(`{"body":"new"}`),
	})
	require.NoError(t, err)

	res := syncOnce(t, rp, alice, first.NextBatch)
	require.Contains(t, res.Rooms.Join, roomID)
	jr := res.Rooms.Join[roomID]
	require.Len(t, jr.Timeline.Events, 1)
	assert.JSONEq(t, `{"body":"new"}`, string(jr.Timeline.Events[0].Content))
	assert.Equal(t, first.NextBatch, jr.Timeline.PrevBatch)
}

func TestIncrementalSyncOmitsQuietRooms(t *testing.T) {
	rp, db, _ := testPool(t)
	alice := db.UserID("alice")
	roomID := db.CreateRoom()
	joinRoom(t, db, roomID, alice)

	first := syncOnce(t, rp, alice, "")
	res := syncOnce(t, rp, alice, first.NextBatch)
	assert.NotContains(t, res.Rooms.Join, roomID)
	assert.True(t, res.IsEmpty())
	assert.Equal(t, first.NextBatch, res.NextBatch, "no mutation, same position")
}

func TestSameSinceSameAnswer(t *testing.T) {
	rp, db, _ := testPool(t)
	alice := db.UserID("alice")
	roomID := db.CreateRoom()
	joinRoom(t, db, roomID, alice)
	first := syncOnce(t, rp, alice, "")
	_, err := db.AddEvent(roomID, storage.PartialEvent{
		Type:    "m.room.message",
		Sender:  alice,
		Content: json.RawMessage(`{"body":"repeat"}`),
	})
	require.NoError(t, err)

	a := syncOnce(t, rp, alice, first.NextBatch)
	b := syncOnce(t, rp, alice, first.NextBatch)
	// Identical modulo the unsigned.age stamp, so compare the parts that
	// must not drift.
	assert.Equal(t, a.NextBatch, b.NextBatch)
	require.Contains(t, a.Rooms.Join, roomID)
	require.Contains(t, b.Rooms.Join, roomID)
	assert.Equal(t,
		a.Rooms.Join[roomID].Timeline.Events[0].EventID,
		b.Rooms.Join[roomID].Timeline.Events[0].EventID)
	assert.Equal(t, len(a.Rooms.Join[roomID].Timeline.Events), len(b.Rooms.Join[roomID].Timeline.Events))
}

func TestInviteAppearsStripped(t *testing.T) {
	rp, db, _ := testPool(t)
	alice := db.UserID("alice")
	bob := db.UserID("bob")
	roomID := db.CreateRoom()
	joinRoom(t, db, roomID, alice)

	before := syncOnce(t, rp, bob, "")
	assert.NotContains(t, before.Rooms.Invite, roomID)

	inviteUser(t, db, roomID, alice, bob)
	res := syncOnce(t, rp, bob, before.NextBatch)
	require.Contains(t, res.Rooms.Invite, roomID)
	for _, ev := range res.Rooms.Invite[roomID].InviteState.Events {
		assert.Empty(t, ev.EventID, "stripped events carry no event id")
		assert.Zero(t, ev.OriginServerTS)
	}

	// The invite is not re-delivered once synced past.
	later := syncOnce(t, rp, bob, res.NextBatch)
	assert.NotContains(t, later.Rooms.Invite, roomID)
}

func TestAccountDataInSync(t *testing.T) {
	rp, db, _ := testPool(t)
	alice := db.UserID("alice")
	roomID := db.CreateRoom()
	joinRoom(t, db, roomID, alice)
	first := syncOnce(t, rp, alice, "")

	db.SetAccountData(alice, "", "m.direct", json.RawMessage(`{"global":true}`))
	db.SetAccountData(alice, roomID, "m.tag", json.RawMessage(`{"room":true}`))

	res := syncOnce(t, rp, alice, first.NextBatch)
	require.Len(t, res.AccountData.Events, 1)
	assert.Equal(t, "m.direct", res.AccountData.Events[0].Type)
	require.Contains(t, res.Rooms.Join, roomID)
	jr := res.Rooms.Join[roomID]
	require.Len(t, jr.AccountData.Events, 1)
	assert.Equal(t, "m.tag", jr.AccountData.Events[0].Type)
	assert.Empty(t, jr.Timeline.Events, "account data alone adds no timeline entries")
}

func TestReceiptsShipAsEphemeral(t *testing.T) {
	rp, db, _ := testPool(t)
	alice := db.UserID("alice")
	roomID := db.CreateRoom()
	joinRoom(t, db, roomID, alice)
	ev, err := db.AddEvent(roomID, storage.PartialEvent{
		Type:    "m.room.message",
		Sender:  alice,
		Content: json.RawMessage(`{"body":"read me"}`),
	})
	require.NoError(t, err)
	first := syncOnce(t, rp, alice, "")

	db.SetReceipt(roomID, "m.read", alice, ev.EventID)
	res := syncOnce(t, rp, alice, first.NextBatch)
	require.Contains(t, res.Rooms.Join, roomID)
	jr := res.Rooms.Join[roomID]
	require.Len(t, jr.Ephemeral.Events, 1)
	receipt := jr.Ephemeral.Events[0]
	assert.Equal(t, "m.receipt", receipt.Type)
	var content map[string]map[string]map[string]map[string]int64
	require.NoError(t, json.Unmarshal(receipt.Content, &content))
	require.Contains(t, content, ev.EventID)
	require.Contains(t, content[ev.EventID], "m.read")
	assert.Contains(t, content[ev.EventID]["m.read"], alice)
}

func TestLongPollWakesOnNewEvent(t *testing.T) {
	rp, db, _ := testPool(t)
	alice := db.UserID("alice")
	roomID := db.CreateRoom()
	joinRoom(t, db, roomID, alice)
	dev := db.CreateDevice(alice, "")
	first := syncOnce(t, rp, alice, "")

	go func() {
		time.Sleep(30 * time.Millisecond)
		_, err := db.AddEvent(roomID, storage.PartialEvent{
			Type:    "m.room.message",
			Sender:  alice,
			Content: json.RawMessage(`{"body":"wake up"}`),
		})
		if err == nil {
			for _, member := range db.JoinedUsers(roomID) {
				rp.notifier.NotifyUser(member)
			}
		}
	}()

	req := httptest.NewRequest("GET", "/_matrix/client/v3/sync?since="+first.NextBatch+"&timeout=5000", nil)
	start := time.Now()
	jsonRes := rp.OnIncomingSyncRequest(req, dev)
	elapsed := time.Since(start)
	assert.Less(t, elapsed, 2*time.Second, "must wake well before the timeout")

	res, ok := jsonRes.JSON.(*types.Response)
	require.True(t, ok)
	require.Contains(t, res.Rooms.Join, roomID)
	assert.Len(t, res.Rooms.Join[roomID].Timeline.Events, 1)
}

func TestEventRacingTheListenerRegistrationIsNotLost(t *testing.T) {
	rp, db, n := testPool(t)
	alice := db.UserID("alice")
	roomID := db.CreateRoom()
	joinRoom(t, db, roomID, alice)
	first := syncOnce(t, rp, alice, "")
	since, err := types.ParseStreamPosition(first.NextBatch)
	require.NoError(t, err)
	sr := syncRequest{since: since, timeout: 5 * time.Second}

	// Replay the long-poll path step by step with a write landing in the
	// worst spot: after the first build, before the listener exists.
	res := rp.currentSyncForUser(alice, sr)
	require.True(t, res.IsEmpty())

	_, err = db.AddEvent(roomID, storage.PartialEvent{
		Type:    "m.room.message",
		Sender:  alice,
		Content: json.RawMessage(`{"body":"racing"}`),
	})
	require.NoError(t, err)
	n.NotifyUser(alice)

	// Registration happens first, then the store is re-checked. The
	// rebuild must observe the write instead of parking on the listener.
	listener := n.GetListener(alice)
	defer listener.Close()
	res = rp.currentSyncForUser(alice, sr)
	require.False(t, res.IsEmpty(), "a write before registration must be seen by the re-check")
	require.Contains(t, res.Rooms.Join, roomID)
	assert.Len(t, res.Rooms.Join[roomID].Timeline.Events, 1)
}

func TestFullStateSyncParksWhenNothingNew(t *testing.T) {
	rp, db, _ := testPool(t)
	alice := db.UserID("alice")
	dev := db.CreateDevice(alice, "")
	first := syncOnce(t, rp, alice, "")

	// full_state with no rooms and no new data is still a long poll.
	url := "/_matrix/client/v3/sync?full_state=true&since=" + first.NextBatch + "&timeout=20"
	req := httptest.NewRequest("GET", url, nil)
	start := time.Now()
	jsonRes := rp.OnIncomingSyncRequest(req, dev)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	res, ok := jsonRes.JSON.(*types.Response)
	require.True(t, ok)
	assert.True(t, res.IsEmpty())
}

func TestLongPollTimesOutEmpty(t *testing.T) {
	rp, db, _ := testPool(t)
	alice := db.UserID("alice")
	dev := db.CreateDevice(alice, "")
	first := syncOnce(t, rp, alice, "")

	req := httptest.NewRequest("GET", "/_matrix/client/v3/sync?since="+first.NextBatch+"&timeout=20", nil)
	start := time.Now()
	jsonRes := rp.OnIncomingSyncRequest(req, dev)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	res, ok := jsonRes.JSON.(*types.Response)
	require.True(t, ok)
	assert.True(t, res.IsEmpty())
	assert.Equal(t, first.NextBatch, res.NextBatch)
}

func TestParseSyncRequest(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		wantErr bool
		initial bool
		since   types.StreamPosition
		timeout time.Duration
	}{
		{name: "initial", query: "", initial: true},
		{name: "since", query: "?since=s42", since: 42},
		{name: "timeout", query: "?since=s1&timeout=30000", since: 1, timeout: 30 * time.Second},
		{name: "bad since", query: "?since=wat", wantErr: true},
		{name: "negative timeout", query: "?timeout=-1", wantErr: true},
		{name: "bad timeout", query: "?timeout=soon", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/_matrix/client/v3/sync"+tc.query, nil)
			sr, errRes := parseSyncRequest(req)
			if tc.wantErr {
				require.NotNil(t, errRes)
				return
			}
			require.Nil(t, errRes)
			assert.Equal(t, tc.initial, sr.initial)
			assert.Equal(t, tc.since, sr.since)
			assert.Equal(t, tc.timeout, sr.timeout)
		})
	}
}
