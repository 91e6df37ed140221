// Copyright 2026 The Hummingbird Authors
//
// SPDX-License-Identifier: AGPL-3.0-only

package routing

import (
	"net/http"
	"time"

	"github.com/matrix-org/gomatrixserverlib/spec"
	"github.com/matrix-org/util"

	"github.com/hummingbird-im/hummingbird/clientapi/httputil"
	"github.com/hummingbird-im/hummingbird/storage"
	"github.com/hummingbird-im/hummingbird/syncapi/types"
)

// RoomState returns the room's full current state as an array of client
// events. Only joined members may look.
func RoomState(req *http.Request, device *storage.Device, db *storage.Database, roomID string) util.JSONResponse {
	if !db.RoomExists(roomID) {
		return util.JSONResponse{
			Code: http.StatusNotFound,
			JSON: spec.NotFound("Room not found"),
		}
	}
	if db.Membership(roomID, device.UserID) != spec.Join {
		return util.JSONResponse{
			Code: http.StatusForbidden,
			JSON: spec.Forbidden("You aren't a member of the room."),
		}
	}
	now := time.Now()
	state := db.CurrentState(roomID)
	events := make([]types.ClientEvent, 0, len(state))
	for _, ev := range state {
		ce := types.ToClientEvent(ev, now)
		ce.RoomID = roomID
		events = append(events, ce)
	}
	return util.JSONResponse{
		Code: http.StatusOK,
		JSON: events,
	}
}

// RoomStateEvent returns the content of one current state event, addressed
// by (type, state key).
func RoomStateEvent(req *http.Request, device *storage.Device, db *storage.Database, roomID, eventType, stateKey string) util.JSONResponse {
	if !db.RoomExists(roomID) {
		return util.JSONResponse{
			Code: http.StatusNotFound,
			JSON: spec.NotFound("Room not found"),
		}
	}
	if db.Membership(roomID, device.UserID) != spec.Join {
		return util.JSONResponse{
			Code: http.StatusForbidden,
			JSON: spec.Forbidden("You aren't a member of the room."),
		}
	}
	ev, ok := db.StateEvent(roomID, eventType, stateKey)
	if !ok {
		return util.JSONResponse{
			Code: http.StatusNotFound,
			JSON: spec.NotFound("Cannot find state event"),
		}
	}
	return util.JSONResponse{
		Code: http.StatusOK,
		JSON: ev.Content,
	}
}

// GetEvent returns a single timeline event by id, room id included.
func GetEvent(req *http.Request, device *storage.Device, db *storage.Database, roomID, eventID string) util.JSONResponse {
	if db.Membership(roomID, device.UserID) != spec.Join {
		return util.JSONResponse{
			Code: http.StatusForbidden,
			JSON: spec.Forbidden("You aren't a member of the room."),
		}
	}
	ev, err := db.EventByID(roomID, eventID)
	if err != nil {
		return httputil.StorageErrorResponse(req, err)
	}
	ce := types.ToClientEvent(ev, time.Now())
	ce.RoomID = roomID
	return util.JSONResponse{
		Code: http.StatusOK,
		JSON: ce,
	}
}
