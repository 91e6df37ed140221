// Copyright 2026 The Hummingbird Authors
//
// SPDX-License-Identifier: AGPL-3.0-only

package routing

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/matrix-org/gomatrixserverlib/spec"
	"github.com/matrix-org/util"
	"github.com/tidwall/gjson"

	"github.com/hummingbird-im/hummingbird/clientapi/httputil"
	"github.com/hummingbird-im/hummingbird/storage"
	"github.com/hummingbird-im/hummingbird/syncapi/sync"
)

type joinResponse struct {
	RoomID string `json:"room_id"`
}

// JoinRoom handles both POST /join/{roomIdOrAlias} and
// POST /rooms/{roomId}/join. Joining a room you are already in is a no-op
// that still reports success.
func JoinRoom(req *http.Request, device *storage.Device, db *storage.Database, notifier *sync.Notifier, roomIDOrAlias string) util.JSONResponse {
	roomID := roomIDOrAlias
	if strings.HasPrefix(roomIDOrAlias, "#") {
		resolved, ok := db.ResolveAlias(roomIDOrAlias)
		if !ok {
			return util.JSONResponse{
				Code: http.StatusNotFound,
				JSON: spec.NotFound("Unknown room alias"),
			}
		}
		roomID = resolved
	}
	if !db.RoomExists(roomID) {
		return util.JSONResponse{
			Code: http.StatusNotFound,
			JSON: spec.NotFound("Room not found"),
		}
	}

	userID := device.UserID
	switch db.Membership(roomID, userID) {
	case spec.Join:
		return util.JSONResponse{
			Code: http.StatusOK,
			JSON: joinResponse{RoomID: roomID},
		}
	case spec.Invite:
		// invited users may always accept
	default:
		joinRules, ok := db.StateEvent(roomID, spec.MRoomJoinRules, "")
		if !ok || gjson.GetBytes(joinRules.Content, "join_rule").Str != "public" {
			return util.JSONResponse{
				Code: http.StatusForbidden,
				JSON: spec.Forbidden("You are not invited to this room."),
			}
		}
	}

	displayName, _, _ := db.Profile(userID)
	content, err := json.Marshal(map[string]interface{}{
		"membership":  spec.Join,
		"displayname": displayName,
	})
	if err != nil {
		return httputil.StorageErrorResponse(req, err)
	}
	stateKey := userID
	if _, err := db.AddEvent(roomID, storage.PartialEvent{
		Type:     spec.MRoomMember,
		Sender:   userID,
		Content:  content,
		StateKey: &stateKey,
	}); err != nil {
		return httputil.StorageErrorResponse(req, err)
	}

	for _, member := range db.MembersWithMembership(roomID, spec.Join, spec.Invite) {
		notifier.NotifyUser(member)
	}
	return util.JSONResponse{
		Code: http.StatusOK,
		JSON: joinResponse{RoomID: roomID},
	}
}

type inviteRequest struct {
	UserID string `json:"user_id"`
	Reason string `json:"reason"`
}

// InviteToRoom appends an invite membership for the target and wakes them.
func InviteToRoom(req *http.Request, device *storage.Device, db *storage.Database, notifier *sync.Notifier, roomID string) util.JSONResponse {
	var r inviteRequest
	if resErr := httputil.UnmarshalJSONRequest(req, &r); resErr != nil {
		return *resErr
	}
	if r.UserID == "" {
		return util.JSONResponse{
			Code: http.StatusBadRequest,
			JSON: spec.BadJSON("'user_id' must be supplied."),
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

	content := map[string]interface{}{"membership": spec.Invite}
	if r.Reason != "" {
		content["reason"] = r.Reason
	}
	raw, err := json.Marshal(content)
	if err != nil {
		return httputil.StorageErrorResponse(req, err)
	}
	stateKey := r.UserID
	if _, err := db.AddEvent(roomID, storage.PartialEvent{
		Type:     spec.MRoomMember,
		Sender:   device.UserID,
		Content:  raw,
		StateKey: &stateKey,
	}); err != nil {
		return httputil.StorageErrorResponse(req, err)
	}

	notifier.NotifyUser(r.UserID)
	return util.JSONResponse{
		Code: http.StatusOK,
		JSON: struct{}{},
	}
}

// LeaveRoom appends a leave membership for the caller. Works from both the
// joined and the invited state (the latter is an invite rejection).
func LeaveRoom(req *http.Request, device *storage.Device, db *storage.Database, notifier *sync.Notifier, roomID string) util.JSONResponse {
	if !db.RoomExists(roomID) {
		return util.JSONResponse{
			Code: http.StatusNotFound,
			JSON: spec.NotFound("Room not found"),
		}
	}
	userID := device.UserID
	membership := db.Membership(roomID, userID)
	if membership != spec.Join && membership != spec.Invite {
		return util.JSONResponse{
			Code: http.StatusForbidden,
			JSON: spec.Forbidden("You are not in this room."),
		}
	}

	// Notify set is captured before the leave so the departing user's
	// own sync picks it up too.
	members := db.MembersWithMembership(roomID, spec.Join, spec.Invite)

	raw, err := json.Marshal(map[string]string{"membership": spec.Leave})
	if err != nil {
		return httputil.StorageErrorResponse(req, err)
	}
	stateKey := userID
	if _, err := db.AddEvent(roomID, storage.PartialEvent{
		Type:     spec.MRoomMember,
		Sender:   userID,
		Content:  raw,
		StateKey: &stateKey,
	}); err != nil {
		return httputil.StorageErrorResponse(req, err)
	}

	for _, member := range members {
		notifier.NotifyUser(member)
	}
	return util.JSONResponse{
		Code: http.StatusOK,
		JSON: struct{}{},
	}
}
