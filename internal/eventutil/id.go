// Copyright 2026 The Hummingbird Authors
//
// SPDX-License-Identifier: AGPL-3.0-only

package eventutil

import (
	"github.com/google/uuid"
	"github.com/matrix-org/util"
)

// Identifier construction for everything the server hands out. Event and
// room ids follow the Matrix wire shapes ("$random:server", "!random:server");
// device and media ids are plain UUIDs, access tokens are opaque random
// strings long enough to be unguessable.

func NewEventID(serverName string) string {
	return "$" + util.RandomString(18) + ":" + serverName
}

func NewRoomID(serverName string) string {
	return "!" + util.RandomString(18) + ":" + serverName
}

func NewDeviceID() string {
	return uuid.NewString()
}

func NewMediaID() string {
	return uuid.NewString()
}

func NewAccessToken() string {
	return util.RandomString(32)
}
