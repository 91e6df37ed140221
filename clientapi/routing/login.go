// Copyright 2026 The Hummingbird Authors
//
// SPDX-License-Identifier: AGPL-3.0-only

package routing

import (
	"net/http"
	"strings"

	"github.com/matrix-org/gomatrixserverlib/spec"
	"github.com/matrix-org/util"

	"github.com/hummingbird-im/hummingbird/clientapi/httputil"
	"github.com/hummingbird-im/hummingbird/storage"
)

type flows struct {
	Flows []flow `json:"flows"`
}

type flow struct {
	Type string `json:"type"`
}

// LoginFlows advertises the only supported login mechanism.
func LoginFlows(req *http.Request) util.JSONResponse {
	return util.JSONResponse{
		Code: http.StatusOK,
		JSON: flows{Flows: []flow{{Type: "m.login.password"}}},
	}
}

type loginIdentifier struct {
	Type string `json:"type"`
	User string `json:"user"`
}

type loginRequest struct {
	Identifier               *loginIdentifier `json:"identifier"`
	User                     string           `json:"user"`
	Password                 string           `json:"password"`
	InitialDeviceDisplayName string           `json:"initial_device_display_name"`
}

type loginResponse struct {
	UserID      string `json:"user_id"`
	AccessToken string `json:"access_token"`
	DeviceID    string `json:"device_id"`
	HomeServer  string `json:"home_server"`
}

// Login checks the password against the configured account set and mints a
// device with a fresh access token. Both the modern identifier form and the
// legacy top-level "user" field are accepted.
func Login(req *http.Request, db *storage.Database) util.JSONResponse {
	var r loginRequest
	if resErr := httputil.UnmarshalJSONRequest(req, &r); resErr != nil {
		return *resErr
	}
	username := r.User
	if r.Identifier != nil {
		if r.Identifier.Type != "m.id.user" {
			return util.JSONResponse{
				Code: http.StatusBadRequest,
				JSON: spec.InvalidParam("Unsupported identifier type"),
			}
		}
		username = r.Identifier.User
	}
	if username == "" {
		return util.JSONResponse{
			Code: http.StatusBadRequest,
			JSON: spec.BadJSON("A username must be supplied."),
		}
	}
	if r.Password == "" {
		return util.JSONResponse{
			Code: http.StatusBadRequest,
			JSON: spec.BadJSON("A password must be supplied."),
		}
	}
	localpart := username
	if strings.HasPrefix(username, "@") {
		rest := username[1:]
		if idx := strings.IndexByte(rest, ':'); idx >= 0 {
			if rest[idx+1:] != db.ServerName() {
				return util.JSONResponse{
					Code: http.StatusForbidden,
					JSON: spec.Forbidden("The server name is not known."),
				}
			}
			localpart = rest[:idx]
		}
	}
	user, ok := db.UserByLocalpart(localpart)
	if !ok || user.Password != r.Password {
		return util.JSONResponse{
			Code: http.StatusForbidden,
			JSON: spec.Forbidden("The username or password was incorrect."),
		}
	}
	device := db.CreateDevice(db.UserID(localpart), r.InitialDeviceDisplayName)
	return util.JSONResponse{
		Code: http.StatusOK,
		JSON: loginResponse{
			UserID:      device.UserID,
			AccessToken: device.AccessToken,
			DeviceID:    device.ID,
			HomeServer:  db.ServerName(),
		},
	}
}

// Logout revokes the device the request authenticated with.
func Logout(req *http.Request, device *storage.Device, db *storage.Database) util.JSONResponse {
	db.RemoveDevice(device.ID)
	return util.JSONResponse{
		Code: http.StatusOK,
		JSON: struct{}{},
	}
}

type whoamiResponse struct {
	UserID   string `json:"user_id"`
	DeviceID string `json:"device_id"`
}

func WhoAmI(req *http.Request, device *storage.Device) util.JSONResponse {
	return util.JSONResponse{
		Code: http.StatusOK,
		JSON: whoamiResponse{UserID: device.UserID, DeviceID: device.ID},
	}
}
