// Copyright 2026 The Hummingbird Authors
//
// SPDX-License-Identifier: AGPL-3.0-only

package routing

import (
	"encoding/json"
	"net/http"

	"github.com/matrix-org/gomatrixserverlib/spec"
	"github.com/matrix-org/util"
	"github.com/tidwall/sjson"

	"github.com/hummingbird-im/hummingbird/clientapi/httputil"
	"github.com/hummingbird-im/hummingbird/storage"
	"github.com/hummingbird-im/hummingbird/syncapi/sync"
)

type createRoomRequest struct {
	Visibility                string              `json:"visibility"`
	RoomAliasName             string              `json:"room_alias_name"`
	Name                      string              `json:"name"`
	Topic                     string              `json:"topic"`
	Invite                    []string            `json:"invite"`
	Preset                    string              `json:"preset"`
	IsDirect                  bool                `json:"is_direct"`
	InitialState              []initialStateEvent `json:"initial_state"`
	CreationContent           json.RawMessage     `json:"creation_content"`
	PowerLevelContentOverride json.RawMessage     `json:"power_level_content_override"`
}

type initialStateEvent struct {
	Type     string          `json:"type"`
	StateKey string          `json:"state_key"`
	Content  json.RawMessage `json:"content"`
}

type createRoomResponse struct {
	RoomID string `json:"room_id"`
}

// CreateRoom allocates a room and installs the preset state bundle, the
// creator's membership, optional name/alias/initial state, and one invite
// per requested user — in that order, each append advancing the global
// sequence.
func CreateRoom(req *http.Request, device *storage.Device, db *storage.Database, notifier *sync.Notifier) util.JSONResponse {
	var r createRoomRequest
	if resErr := httputil.UnmarshalJSONRequest(req, &r); resErr != nil {
		return *resErr
	}

	preset := r.Preset
	if preset == "" {
		if r.Visibility == "public" {
			preset = spec.PresetPublicChat
		} else {
			preset = spec.PresetPrivateChat
		}
	}
	switch preset {
	case spec.PresetPrivateChat, spec.PresetTrustedPrivateChat, spec.PresetPublicChat:
	default:
		return util.JSONResponse{
			Code: http.StatusBadRequest,
			JSON: spec.BadJSON("preset must be any of 'private_chat', 'trusted_private_chat', 'public_chat'"),
		}
	}

	userID := device.UserID
	roomID := db.CreateRoom()

	addState := func(eventType, stateKey string, content json.RawMessage) *util.JSONResponse {
		_, err := db.AddEvent(roomID, storage.PartialEvent{
			Type:     eventType,
			Sender:   userID,
			Content:  content,
			StateKey: &stateKey,
		})
		if err != nil {
			res := httputil.StorageErrorResponse(req, err)
			return &res
		}
		return nil
	}
	marshalState := func(eventType, stateKey string, content interface{}) *util.JSONResponse {
		raw, err := json.Marshal(content)
		if err != nil {
			res := httputil.StorageErrorResponse(req, err)
			return &res
		}
		return addState(eventType, stateKey, raw)
	}

	createContent := r.CreationContent
	if len(createContent) == 0 {
		createContent = json.RawMessage("{}")
	}
	createContent, _ = sjson.SetBytes(createContent, "creator", userID)
	createContent, _ = sjson.SetBytes(createContent, "room_version", "10")
	if resErr := addState(spec.MRoomCreate, "", createContent); resErr != nil {
		return *resErr
	}

	joinRule, historyVisibility, guestAccess := "invite", "shared", "can_join"
	if preset == spec.PresetPublicChat {
		joinRule, historyVisibility, guestAccess = "public", "shared", "forbidden"
	}
	if resErr := marshalState(spec.MRoomJoinRules, "", map[string]string{"join_rule": joinRule}); resErr != nil {
		return *resErr
	}
	if resErr := marshalState("m.room.history_visibility", "", map[string]string{"history_visibility": historyVisibility}); resErr != nil {
		return *resErr
	}
	if resErr := marshalState("m.room.guest_access", "", map[string]string{"guest_access": guestAccess}); resErr != nil {
		return *resErr
	}

	powerUsers := map[string]interface{}{userID: 100}
	if preset == spec.PresetTrustedPrivateChat {
		for _, invitee := range r.Invite {
			powerUsers[invitee] = 100
		}
	}
	powerLevels := map[string]interface{}{
		"users":          powerUsers,
		"users_default":  0,
		"events_default": 0,
		"state_default":  50,
		"ban":            50,
		"kick":           50,
		"redact":         50,
		"invite":         0,
	}
	if len(r.PowerLevelContentOverride) > 0 {
		if err := json.Unmarshal(r.PowerLevelContentOverride, &powerLevels); err != nil {
			return util.JSONResponse{
				Code: http.StatusBadRequest,
				JSON: spec.BadJSON("malformed power_level_content_override"),
			}
		}
	}
	if resErr := marshalState(spec.MRoomPowerLevels, "", powerLevels); resErr != nil {
		return *resErr
	}

	displayName, _, _ := db.Profile(userID)
	creatorMember := map[string]interface{}{
		"membership":  spec.Join,
		"displayname": displayName,
	}
	if r.IsDirect {
		creatorMember["is_direct"] = true
	}
	if resErr := marshalState(spec.MRoomMember, userID, creatorMember); resErr != nil {
		return *resErr
	}

	if r.Name != "" {
		if resErr := marshalState(spec.MRoomName, "", map[string]string{"name": r.Name}); resErr != nil {
			return *resErr
		}
	}
	if r.Topic != "" {
		if resErr := marshalState(spec.MRoomTopic, "", map[string]string{"topic": r.Topic}); resErr != nil {
			return *resErr
		}
	}

	if r.RoomAliasName != "" {
		alias := "#" + r.RoomAliasName + ":" + db.ServerName()
		if err := db.SetAlias(alias, roomID); err != nil {
			return util.JSONResponse{
				Code: http.StatusBadRequest,
				JSON: spec.BadJSON("room_alias_name is already in use"),
			}
		}
		if resErr := marshalState(spec.MRoomCanonicalAlias, "", map[string]string{"alias": alias}); resErr != nil {
			return *resErr
		}
	}

	for _, ev := range r.InitialState {
		content := ev.Content
		if len(content) == 0 {
			content = json.RawMessage("{}")
		}
		if resErr := addState(ev.Type, ev.StateKey, content); resErr != nil {
			return *resErr
		}
	}

	for _, invitee := range r.Invite {
		inviteMember := map[string]interface{}{
			"membership": spec.Invite,
		}
		if r.IsDirect {
			inviteMember["is_direct"] = true
		}
		if resErr := marshalState(spec.MRoomMember, invitee, inviteMember); resErr != nil {
			return *resErr
		}
	}

	notifier.NotifyUser(userID)
	for _, invitee := range r.Invite {
		notifier.NotifyUser(invitee)
	}

	util.GetLogger(req.Context()).WithField("room_id", roomID).Debug("Created room")
	return util.JSONResponse{
		Code: http.StatusOK,
		JSON: createRoomResponse{RoomID: roomID},
	}
}
