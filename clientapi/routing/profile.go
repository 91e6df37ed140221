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

type profileResponse struct {
	DisplayName string `json:"displayname,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// GetProfile returns the full profile of any known user. Profiles are
// world-readable, no auth required.
func GetProfile(req *http.Request, db *storage.Database, userID string) util.JSONResponse {
	displayName, avatarURL, ok := db.Profile(userID)
	if !ok {
		return util.JSONResponse{
			Code: http.StatusNotFound,
			JSON: spec.NotFound("Profile not found"),
		}
	}
	return util.JSONResponse{
		Code: http.StatusOK,
		JSON: profileResponse{DisplayName: displayName, AvatarURL: avatarURL},
	}
}

// GetDisplayName returns just the displayname field of a profile.
func GetDisplayName(req *http.Request, db *storage.Database, userID string) util.JSONResponse {
	displayName, _, ok := db.Profile(userID)
	if !ok {
		return util.JSONResponse{
			Code: http.StatusNotFound,
			JSON: spec.NotFound("Profile not found"),
		}
	}
	return util.JSONResponse{
		Code: http.StatusOK,
		JSON: struct {
			DisplayName string `json:"displayname,omitempty"`
		}{displayName},
	}
}

// GetAvatarURL returns just the avatar_url field of a profile.
func GetAvatarURL(req *http.Request, db *storage.Database, userID string) util.JSONResponse {
	_, avatarURL, ok := db.Profile(userID)
	if !ok {
		return util.JSONResponse{
			Code: http.StatusNotFound,
			JSON: spec.NotFound("Profile not found"),
		}
	}
	return util.JSONResponse{
		Code: http.StatusOK,
		JSON: struct {
			AvatarURL string `json:"avatar_url,omitempty"`
		}{avatarURL},
	}
}

// SetDisplayName updates the caller's display name and fans the change out
// as fresh m.room.member events in every room they are joined to.
func SetDisplayName(req *http.Request, device *storage.Device, db *storage.Database, userID string) util.JSONResponse {
	if userID != device.UserID {
		return util.JSONResponse{
			Code: http.StatusForbidden,
			JSON: spec.Forbidden("userID does not match the current user"),
		}
	}
	var r struct {
		DisplayName string `json:"displayname"`
	}
	if resErr := httputil.UnmarshalJSONRequest(req, &r); resErr != nil {
		return *resErr
	}
	if err := db.UpdateMemberProfile(userID, &r.DisplayName, nil); err != nil {
		return httputil.StorageErrorResponse(req, err)
	}
	return util.JSONResponse{
		Code: http.StatusOK,
		JSON: struct{}{},
	}
}

// SetAvatarURL updates the caller's avatar URL, with the same member-event
// fan-out as SetDisplayName.
func SetAvatarURL(req *http.Request, device *storage.Device, db *storage.Database, userID string) util.JSONResponse {
	if userID != device.UserID {
		return util.JSONResponse{
			Code: http.StatusForbidden,
			JSON: spec.Forbidden("userID does not match the current user"),
		}
	}
	var r struct {
		AvatarURL string `json:"avatar_url"`
	}
	if resErr := httputil.UnmarshalJSONRequest(req, &r); resErr != nil {
		return *resErr
	}
	if err := db.UpdateMemberProfile(userID, nil, &r.AvatarURL); err != nil {
		return httputil.StorageErrorResponse(req, err)
	}
	return util.JSONResponse{
		Code: http.StatusOK,
		JSON: struct{}{},
	}
}
