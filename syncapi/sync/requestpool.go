// Copyright 2026 The Hummingbird Authors
//
// SPDX-License-Identifier: AGPL-3.0-only

package sync

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/matrix-org/gomatrixserverlib/spec"
	"github.com/matrix-org/util"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/hummingbird-im/hummingbird/storage"
	"github.com/hummingbird-im/hummingbird/syncapi/types"
)

var syncRequests = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "hummingbird",
		Subsystem: "syncapi",
		Name:      "sync_requests_total",
		Help:      "Number of /sync requests, by kind",
	},
	[]string{"kind"},
)

func init() {
	prometheus.MustRegister(syncRequests)
}

// RequestPool services /sync requests: it builds the response for the
// user's position and parks the request on the Notifier when there is
// nothing to deliver yet.
type RequestPool struct {
	db       *storage.Database
	notifier *Notifier
}

func NewRequestPool(db *storage.Database, n *Notifier) *RequestPool {
	return &RequestPool{db: db, notifier: n}
}

type syncRequest struct {
	since     types.StreamPosition
	initial   bool
	fullState bool
	timeout   time.Duration
}

func parseSyncRequest(req *http.Request) (syncRequest, *util.JSONResponse) {
	var sr syncRequest
	query := req.URL.Query()
	if since := query.Get("since"); since != "" {
		pos, err := types.ParseStreamPosition(since)
		if err != nil {
			return sr, &util.JSONResponse{
				Code: http.StatusBadRequest,
				JSON: spec.InvalidParam(err.Error()),
			}
		}
		sr.since = pos
	} else {
		sr.initial = true
	}
	if timeout := query.Get("timeout"); timeout != "" {
		ms, err := strconv.ParseInt(timeout, 10, 64)
		if err != nil || ms < 0 {
			return sr, &util.JSONResponse{
				Code: http.StatusBadRequest,
				JSON: spec.InvalidParam("timeout must be a non-negative integer"),
			}
		}
		sr.timeout = time.Duration(ms) * time.Millisecond
	}
	sr.fullState = query.Get("full_state") == "true"
	return sr, nil
}

// OnIncomingSyncRequest blocks its goroutine until a response is ready or
// the requested timeout elapses.
func (rp *RequestPool) OnIncomingSyncRequest(req *http.Request, device *storage.Device) util.JSONResponse {
	logger := util.GetLogger(req.Context())
	sr, errRes := parseSyncRequest(req)
	if errRes != nil {
		return *errRes
	}
	userID := device.UserID
	logger.WithFields(log.Fields{
		"user_id":    userID,
		"since":      sr.since,
		"timeout":    sr.timeout,
		"full_state": sr.fullState,
	}).Debug("Incoming /sync request")

	if sr.initial {
		syncRequests.WithLabelValues("initial").Inc()
	} else {
		syncRequests.WithLabelValues("incremental").Inc()
	}

	res := rp.currentSyncForUser(userID, sr)
	if !sr.initial && sr.timeout > 0 && res.IsEmpty() {
		// Register the listener before deciding the response really is
		// empty. A mutation landing between the first build and the
		// registration is caught by the rebuild; one landing after the
		// registration signals the listener. Without the re-check a
		// write in that gap would sleep out the full timeout.
		listener := rp.notifier.GetListener(userID)
		defer listener.Close()
		res = rp.currentSyncForUser(userID, sr)
		if res.IsEmpty() {
			// A timeout wake yields the same empty payload with a
			// fresh next_batch, which is the contract.
			listener.Wait(req.Context(), sr.timeout)
			res = rp.currentSyncForUser(userID, sr)
		}
	}
	return util.JSONResponse{
		Code: http.StatusOK,
		JSON: res,
	}
}

// currentSyncForUser assembles the whole payload for one user at one
// position. The next_batch position is captured before any reads so a
// mutation racing the build is re-delivered on the next sync rather than
// silently skipped.
func (rp *RequestPool) currentSyncForUser(userID string, sr syncRequest) *types.Response {
	now := time.Now()
	res := types.NewResponse()
	res.NextBatch = types.StreamPosition(rp.db.GlobalSeq()).String()
	sinceSeq := int64(sr.since)

	globalData, roomData := rp.db.AccountDataSince(userID, sinceSeq)
	for _, item := range globalData {
		res.AccountData.Events = append(res.AccountData.Events, types.ClientEvent{
			Type:    item.Type,
			Content: item.Content,
		})
	}

	for _, roomID := range rp.db.RoomsForUser(userID, spec.Join) {
		newEvents := rp.db.TimelineSince(roomID, sinceSeq)
		receipts := rp.db.Receipts(roomID)
		if !sr.initial && !sr.fullState &&
			len(newEvents) == 0 && len(roomData[roomID]) == 0 && !anyReceiptSince(receipts, sinceSeq) {
			continue
		}

		jr := types.JoinResponse{
			State:       types.ClientEvents{Events: []types.ClientEvent{}},
			Timeline:    types.Timeline{Events: []types.ClientEvent{}, PrevBatch: sr.since.String()},
			Ephemeral:   types.ClientEvents{Events: []types.ClientEvent{}},
			AccountData: types.ClientEvents{Events: []types.ClientEvent{}},
		}

		if sr.initial || sr.fullState {
			for _, ev := range rp.db.CurrentState(roomID) {
				jr.State.Events = append(jr.State.Events, types.ToClientEvent(ev, now))
			}
		} else {
			// Approximation: only the state events inside the window.
			// The prior full-state sync established the base and the
			// summary below carries the member counts.
			for _, ev := range newEvents {
				if ev.StateKey != nil {
					jr.State.Events = append(jr.State.Events, types.ToClientEvent(ev, now))
				}
			}
		}
		for _, ev := range newEvents {
			jr.Timeline.Events = append(jr.Timeline.Events, types.ToClientEvent(ev, now))
		}
		// The full receipt set ships on every inclusion; clients merge
		// m.receipt content rather than diff it.
		if len(receipts) > 0 {
			jr.Ephemeral.Events = append(jr.Ephemeral.Events, receiptsEvent(receipts))
		}
		for _, item := range roomData[roomID] {
			jr.AccountData.Events = append(jr.AccountData.Events, types.ClientEvent{
				Type:    item.Type,
				Content: item.Content,
			})
		}
		jr.Summary = rp.roomSummary(roomID, userID)
		res.Rooms.Join[roomID] = jr
	}

	for _, roomID := range rp.db.RoomsForUser(userID, spec.Invite) {
		if !sr.initial && !sr.fullState {
			inviteEv, ok := rp.db.StateEvent(roomID, spec.MRoomMember, userID)
			if !ok || inviteEv.Seq <= sinceSeq {
				continue
			}
		}
		stripped := []types.ClientEvent{}
		for _, ev := range rp.db.CurrentState(roomID) {
			stripped = append(stripped, types.ToStrippedEvent(ev))
		}
		res.Rooms.Invite[roomID] = types.InviteResponse{
			InviteState: types.ClientEvents{Events: stripped},
		}
	}

	return res
}

func (rp *RequestPool) roomSummary(roomID, userID string) types.Summary {
	joined := rp.db.MembersWithMembership(roomID, spec.Join)
	invited := rp.db.MembersWithMembership(roomID, spec.Invite)
	var heroes []string
	for _, list := range [][]string{joined, invited} {
		for _, member := range list {
			if member == userID || len(heroes) >= 5 {
				continue
			}
			heroes = append(heroes, member)
		}
	}
	joinedCount, invitedCount := len(joined), len(invited)
	return types.Summary{
		Heroes:             heroes,
		JoinedMemberCount:  &joinedCount,
		InvitedMemberCount: &invitedCount,
	}
}

func anyReceiptSince(receipts []*storage.Receipt, sinceSeq int64) bool {
	for _, r := range receipts {
		if r.Seq > sinceSeq {
			return true
		}
	}
	return false
}

// receiptsEvent folds every receipt in a room into the single m.receipt
// ephemeral event shape: {event_id: {receipt_type: {user_id: {ts}}}}.
func receiptsEvent(receipts []*storage.Receipt) types.ClientEvent {
	content := make(map[string]map[string]map[string]map[string]int64)
	for _, r := range receipts {
		byType, ok := content[r.EventID]
		if !ok {
			byType = make(map[string]map[string]map[string]int64)
			content[r.EventID] = byType
		}
		byUser, ok := byType[r.ReceiptType]
		if !ok {
			byUser = make(map[string]map[string]int64)
			byType[r.ReceiptType] = byUser
		}
		byUser[r.UserID] = map[string]int64{"ts": int64(r.TS)}
	}
	raw, err := json.Marshal(content)
	if err != nil {
		raw = json.RawMessage("{}")
	}
	return types.ClientEvent{
		Type:    "m.receipt",
		Content: raw,
	}
}
