// Copyright 2026 The Hummingbird Authors
//
// SPDX-License-Identifier: AGPL-3.0-only

package routing

import (
	"net/http"

	"github.com/matrix-org/gomatrixserverlib/spec"
	"github.com/matrix-org/util"

	"github.com/hummingbird-im/hummingbird/storage"
)

type directoryResponse struct {
	RoomID  string   `json:"room_id"`
	Servers []string `json:"servers"`
}

// DirectoryRoom resolves a #alias:server to its room id. The server list is
// always just this homeserver.
func DirectoryRoom(req *http.Request, db *storage.Database, alias string) util.JSONResponse {
	roomID, ok := db.ResolveAlias(alias)
	if !ok {
		return util.JSONResponse{
			Code: http.StatusNotFound,
			JSON: spec.NotFound("Room alias not found"),
		}
	}
	return util.JSONResponse{
		Code: http.StatusOK,
		JSON: directoryResponse{
			RoomID:  roomID,
			Servers: []string{db.ServerName()},
		},
	}
}
