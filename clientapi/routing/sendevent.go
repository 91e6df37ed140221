// Copyright 2026 The Hummingbird Authors
//
// SPDX-License-Identifier: AGPL-3.0-only

package routing

import (
	"net/http"

	"github.com/matrix-org/gomatrixserverlib/spec"
	"github.com/matrix-org/util"
	log "github.com/sirupsen/logrus"

	"github.com/hummingbird-im/hummingbird/clientapi/httputil"
	"github.com/hummingbird-im/hummingbird/storage"
	"github.com/hummingbird-im/hummingbird/syncapi/sync"
)

type sendResponse struct {
	EventID string `json:"event_id"`
}

// SendEvent appends a message event to the room timeline. Replays of a
// known (device, txn) pair return the original event id with the original
// success code and never touch the timeline.
func SendEvent(req *http.Request, device *storage.Device, db *storage.Database, notifier *sync.Notifier, roomID, eventType, txnID string) util.JSONResponse {
	if db.Membership(roomID, device.UserID) != spec.Join {
		return util.JSONResponse{
			Code: http.StatusForbidden,
			JSON: spec.Forbidden("You are not in this room."),
		}
	}
	content, resErr := httputil.ReadJSONContent(req)
	if resErr != nil {
		return *resErr
	}

	ev, replayed, err := db.SendEvent(roomID, device.ID, txnID, storage.PartialEvent{
		Type:    eventType,
		Sender:  device.UserID,
		Content: content,
	})
	if err != nil {
		return httputil.StorageErrorResponse(req, err)
	}
	if !replayed {
		for _, member := range db.JoinedUsers(roomID) {
			notifier.NotifyUser(member)
		}
	}

	util.GetLogger(req.Context()).WithFields(log.Fields{
		"room_id":  roomID,
		"event_id": ev.EventID,
		"type":     eventType,
		"replayed": replayed,
	}).Debug("Sent event")
	return util.JSONResponse{
		Code: http.StatusOK,
		JSON: sendResponse{EventID: ev.EventID},
	}
}

// RedactEvent appends an m.room.redaction event and blanks the target's
// content, leaving unsigned.redacted_because behind on the target.
func RedactEvent(req *http.Request, device *storage.Device, db *storage.Database, notifier *sync.Notifier, roomID, eventID, txnID string) util.JSONResponse {
	if db.Membership(roomID, device.UserID) != spec.Join {
		return util.JSONResponse{
			Code: http.StatusForbidden,
			JSON: spec.Forbidden("You are not in this room."),
		}
	}
	content, resErr := httputil.ReadJSONContent(req)
	if resErr != nil {
		return *resErr
	}

	redaction, replayed, err := db.RedactEvent(roomID, device.ID, txnID, device.UserID, eventID, content)
	if err != nil {
		return httputil.StorageErrorResponse(req, err)
	}
	if !replayed {
		for _, member := range db.MembersWithMembership(roomID, spec.Join, spec.Invite) {
			notifier.NotifyUser(member)
		}
	}
	return util.JSONResponse{
		Code: http.StatusOK,
		JSON: sendResponse{EventID: redaction.EventID},
	}
}
