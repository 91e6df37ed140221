// Copyright 2026 The Hummingbird Authors
//
// SPDX-License-Identifier: AGPL-3.0-only

package routing

import (
	"net/http"

	"github.com/matrix-org/gomatrixserverlib/spec"
	"github.com/matrix-org/util"

	"github.com/hummingbird-im/hummingbird/clientapi/httputil"
	"github.com/hummingbird-im/hummingbird/storage"
)

// GetAccountData returns one account data blob by type. roomID is "" for
// the global scope. Users can only read their own account data.
func GetAccountData(req *http.Request, device *storage.Device, db *storage.Database, userID, roomID, dataType string) util.JSONResponse {
	if userID != device.UserID {
		return util.JSONResponse{
			Code: http.StatusForbidden,
			JSON: spec.Forbidden("userID does not match the current user"),
		}
	}
	if roomID != "" && !db.RoomExists(roomID) {
		return util.JSONResponse{
			Code: http.StatusNotFound,
			JSON: spec.NotFound("Room not found"),
		}
	}
	item, ok := db.AccountData(userID, roomID, dataType)
	if !ok {
		return util.JSONResponse{
			Code: http.StatusNotFound,
			JSON: spec.NotFound("Account data not found"),
		}
	}
	return util.JSONResponse{
		Code: http.StatusOK,
		JSON: item.Content,
	}
}

// SaveAccountData replaces the blob for (user, room, type), advancing the
// global sequence so the change reaches the user's next /sync.
func SaveAccountData(req *http.Request, device *storage.Device, db *storage.Database, userID, roomID, dataType string) util.JSONResponse {
	if userID != device.UserID {
		return util.JSONResponse{
			Code: http.StatusForbidden,
			JSON: spec.Forbidden("userID does not match the current user"),
		}
	}
	if roomID != "" && !db.RoomExists(roomID) {
		return util.JSONResponse{
			Code: http.StatusNotFound,
			JSON: spec.NotFound("Room not found"),
		}
	}
	content, resErr := httputil.ReadJSONContent(req)
	if resErr != nil {
		return *resErr
	}
	db.SetAccountData(userID, roomID, dataType, content)
	return util.JSONResponse{
		Code: http.StatusOK,
		JSON: struct{}{},
	}
}
