// Copyright 2026 The Hummingbird Authors
//
// SPDX-License-Identifier: AGPL-3.0-only

package routing

import (
	"net/http"

	"github.com/matrix-org/gomatrixserverlib/spec"
	"github.com/matrix-org/util"

	"github.com/hummingbird-im/hummingbird/storage"
	"github.com/hummingbird-im/hummingbird/syncapi/sync"
)

// SetReceipt records a read receipt against an event and wakes every joined
// member, whose next /sync carries the room's full m.receipt set.
func SetReceipt(req *http.Request, device *storage.Device, db *storage.Database, notifier *sync.Notifier, roomID, receiptType, eventID string) util.JSONResponse {
	if receiptType != "m.read" && receiptType != "m.read.private" && receiptType != "m.fully_read" {
		return util.JSONResponse{
			Code: http.StatusBadRequest,
			JSON: spec.InvalidParam("Unknown receipt type"),
		}
	}
	if !db.RoomExists(roomID) {
		return util.JSONResponse{
			Code: http.StatusNotFound,
			JSON: spec.NotFound("Room not found"),
		}
	}
	if db.Membership(roomID, device.UserID) != spec.Join {
		return util.JSONResponse{
			Code: http.StatusForbidden,
			JSON: spec.Forbidden("You are not in this room."),
		}
	}

	db.SetReceipt(roomID, receiptType, device.UserID, eventID)
	for _, member := range db.JoinedUsers(roomID) {
		notifier.NotifyUser(member)
	}
	return util.JSONResponse{
		Code: http.StatusOK,
		JSON: struct{}{},
	}
}
