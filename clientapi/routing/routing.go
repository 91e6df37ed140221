// Copyright 2026 The Hummingbird Authors
//
// SPDX-License-Identifier: AGPL-3.0-only

package routing

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/matrix-org/util"

	"github.com/hummingbird-im/hummingbird/internal/httputil"
	"github.com/hummingbird-im/hummingbird/setup/config"
	"github.com/hummingbird-im/hummingbird/storage"
	"github.com/hummingbird-im/hummingbird/syncapi/sync"
)

// Setup registers every client-server API route on the public client mux.
// Handlers live in their own files; this is the one place the URL surface
// is spelled out.
func Setup(
	publicAPIMux *mux.Router,
	cfg *config.Hummingbird,
	db *storage.Database,
	rp *sync.RequestPool,
	notifier *sync.Notifier,
) {
	v3mux := publicAPIMux.PathPrefix("/{apiversion:(?:r0|v3)}/").Subrouter()

	publicAPIMux.Handle("/versions",
		httputil.MakeExternalAPI("versions", func(req *http.Request) util.JSONResponse {
			return util.JSONResponse{
				Code: http.StatusOK,
				JSON: struct {
					Versions         []string        `json:"versions"`
					UnstableFeatures map[string]bool `json:"unstable_features"`
				}{
					Versions: []string{
						"v1.0", "v1.1", "v1.2", "v1.3", "v1.4", "v1.5", "v1.6",
					},
					UnstableFeatures: map[string]bool{},
				},
			}
		}),
	).Methods(http.MethodGet, http.MethodOptions)

	v3mux.Handle("/login",
		httputil.MakeExternalAPI("login_flows", func(req *http.Request) util.JSONResponse {
			return LoginFlows(req)
		}),
	).Methods(http.MethodGet, http.MethodOptions)
	v3mux.Handle("/login",
		httputil.MakeExternalAPI("login", func(req *http.Request) util.JSONResponse {
			return Login(req, db)
		}),
	).Methods(http.MethodPost, http.MethodOptions)
	v3mux.Handle("/logout",
		httputil.MakeAuthAPI("logout", db, func(req *http.Request, device *storage.Device) util.JSONResponse {
			return Logout(req, device, db)
		}),
	).Methods(http.MethodPost, http.MethodOptions)
	v3mux.Handle("/account/whoami",
		httputil.MakeAuthAPI("whoami", db, func(req *http.Request, device *storage.Device) util.JSONResponse {
			return WhoAmI(req, device)
		}),
	).Methods(http.MethodGet, http.MethodOptions)

	v3mux.Handle("/sync",
		httputil.MakeAuthAPI("sync", db, func(req *http.Request, device *storage.Device) util.JSONResponse {
			return rp.OnIncomingSyncRequest(req, device)
		}),
	).Methods(http.MethodGet, http.MethodOptions)

	v3mux.Handle("/createRoom",
		httputil.MakeAuthAPI("createRoom", db, func(req *http.Request, device *storage.Device) util.JSONResponse {
			return CreateRoom(req, device, db, notifier)
		}),
	).Methods(http.MethodPost, http.MethodOptions)
	v3mux.Handle("/join/{roomIDOrAlias}",
		httputil.MakeAuthAPI("join", db, func(req *http.Request, device *storage.Device) util.JSONResponse {
			vars := httputil.Vars(req)
			return JoinRoom(req, device, db, notifier, vars["roomIDOrAlias"])
		}),
	).Methods(http.MethodPost, http.MethodOptions)
	v3mux.Handle("/rooms/{roomID}/join",
		httputil.MakeAuthAPI("join", db, func(req *http.Request, device *storage.Device) util.JSONResponse {
			vars := httputil.Vars(req)
			return JoinRoom(req, device, db, notifier, vars["roomID"])
		}),
	).Methods(http.MethodPost, http.MethodOptions)
	v3mux.Handle("/rooms/{roomID}/invite",
		httputil.MakeAuthAPI("invite", db, func(req *http.Request, device *storage.Device) util.JSONResponse {
			vars := httputil.Vars(req)
			return InviteToRoom(req, device, db, notifier, vars["roomID"])
		}),
	).Methods(http.MethodPost, http.MethodOptions)
	v3mux.Handle("/rooms/{roomID}/leave",
		httputil.MakeAuthAPI("leave", db, func(req *http.Request, device *storage.Device) util.JSONResponse {
			vars := httputil.Vars(req)
			return LeaveRoom(req, device, db, notifier, vars["roomID"])
		}),
	).Methods(http.MethodPost, http.MethodOptions)

	v3mux.Handle("/rooms/{roomID}/send/{eventType}/{txnID}",
		httputil.MakeAuthAPI("send_message", db, func(req *http.Request, device *storage.Device) util.JSONResponse {
			vars := httputil.Vars(req)
			return SendEvent(req, device, db, notifier, vars["roomID"], vars["eventType"], vars["txnID"])
		}),
	).Methods(http.MethodPut, http.MethodOptions)
	v3mux.Handle("/rooms/{roomID}/redact/{eventID}/{txnID}",
		httputil.MakeAuthAPI("redact", db, func(req *http.Request, device *storage.Device) util.JSONResponse {
			vars := httputil.Vars(req)
			return RedactEvent(req, device, db, notifier, vars["roomID"], vars["eventID"], vars["txnID"])
		}),
	).Methods(http.MethodPut, http.MethodOptions)

	v3mux.Handle("/rooms/{roomID}/state",
		httputil.MakeAuthAPI("room_state", db, func(req *http.Request, device *storage.Device) util.JSONResponse {
			vars := httputil.Vars(req)
			return RoomState(req, device, db, vars["roomID"])
		}),
	).Methods(http.MethodGet, http.MethodOptions)
	v3mux.Handle("/rooms/{roomID}/state/{type}",
		httputil.MakeAuthAPI("room_state", db, func(req *http.Request, device *storage.Device) util.JSONResponse {
			vars := httputil.Vars(req)
			return RoomStateEvent(req, device, db, vars["roomID"], vars["type"], "")
		}),
	).Methods(http.MethodGet, http.MethodOptions)
	v3mux.Handle("/rooms/{roomID}/state/{type}/{stateKey}",
		httputil.MakeAuthAPI("room_state", db, func(req *http.Request, device *storage.Device) util.JSONResponse {
			vars := httputil.Vars(req)
			return RoomStateEvent(req, device, db, vars["roomID"], vars["type"], vars["stateKey"])
		}),
	).Methods(http.MethodGet, http.MethodOptions)
	v3mux.Handle("/rooms/{roomID}/event/{eventID}",
		httputil.MakeAuthAPI("get_event", db, func(req *http.Request, device *storage.Device) util.JSONResponse {
			vars := httputil.Vars(req)
			return GetEvent(req, device, db, vars["roomID"], vars["eventID"])
		}),
	).Methods(http.MethodGet, http.MethodOptions)

	v3mux.Handle("/rooms/{roomID}/receipt/{receiptType}/{eventID}",
		httputil.MakeAuthAPI("receipt", db, func(req *http.Request, device *storage.Device) util.JSONResponse {
			vars := httputil.Vars(req)
			return SetReceipt(req, device, db, notifier, vars["roomID"], vars["receiptType"], vars["eventID"])
		}),
	).Methods(http.MethodPost, http.MethodOptions)

	v3mux.Handle("/directory/room/{roomAlias}",
		httputil.MakeExternalAPI("directory_room", func(req *http.Request) util.JSONResponse {
			vars := httputil.Vars(req)
			return DirectoryRoom(req, db, vars["roomAlias"])
		}),
	).Methods(http.MethodGet, http.MethodOptions)

	v3mux.Handle("/profile/{userID}",
		httputil.MakeExternalAPI("profile", func(req *http.Request) util.JSONResponse {
			vars := httputil.Vars(req)
			return GetProfile(req, db, vars["userID"])
		}),
	).Methods(http.MethodGet, http.MethodOptions)
	v3mux.Handle("/profile/{userID}/displayname",
		httputil.MakeExternalAPI("profile", func(req *http.Request) util.JSONResponse {
			vars := httputil.Vars(req)
			return GetDisplayName(req, db, vars["userID"])
		}),
	).Methods(http.MethodGet, http.MethodOptions)
	v3mux.Handle("/profile/{userID}/displayname",
		httputil.MakeAuthAPI("profile", db, func(req *http.Request, device *storage.Device) util.JSONResponse {
			vars := httputil.Vars(req)
			return SetDisplayName(req, device, db, vars["userID"])
		}),
	).Methods(http.MethodPut, http.MethodOptions)
	v3mux.Handle("/profile/{userID}/avatar_url",
		httputil.MakeExternalAPI("profile", func(req *http.Request) util.JSONResponse {
			vars := httputil.Vars(req)
			return GetAvatarURL(req, db, vars["userID"])
		}),
	).Methods(http.MethodGet, http.MethodOptions)
	v3mux.Handle("/profile/{userID}/avatar_url",
		httputil.MakeAuthAPI("profile", db, func(req *http.Request, device *storage.Device) util.JSONResponse {
			vars := httputil.Vars(req)
			return SetAvatarURL(req, device, db, vars["userID"])
		}),
	).Methods(http.MethodPut, http.MethodOptions)

	v3mux.Handle("/user/{userID}/account_data/{type}",
		httputil.MakeAuthAPI("account_data", db, func(req *http.Request, device *storage.Device) util.JSONResponse {
			vars := httputil.Vars(req)
			return GetAccountData(req, device, db, vars["userID"], "", vars["type"])
		}),
	).Methods(http.MethodGet, http.MethodOptions)
	v3mux.Handle("/user/{userID}/account_data/{type}",
		httputil.MakeAuthAPI("account_data", db, func(req *http.Request, device *storage.Device) util.JSONResponse {
			vars := httputil.Vars(req)
			return SaveAccountData(req, device, db, vars["userID"], "", vars["type"])
		}),
	).Methods(http.MethodPut, http.MethodOptions)
	v3mux.Handle("/user/{userID}/rooms/{roomID}/account_data/{type}",
		httputil.MakeAuthAPI("account_data", db, func(req *http.Request, device *storage.Device) util.JSONResponse {
			vars := httputil.Vars(req)
			return GetAccountData(req, device, db, vars["userID"], vars["roomID"], vars["type"])
		}),
	).Methods(http.MethodGet, http.MethodOptions)
	v3mux.Handle("/user/{userID}/rooms/{roomID}/account_data/{type}",
		httputil.MakeAuthAPI("account_data", db, func(req *http.Request, device *storage.Device) util.JSONResponse {
			vars := httputil.Vars(req)
			return SaveAccountData(req, device, db, vars["userID"], vars["roomID"], vars["type"])
		}),
	).Methods(http.MethodPut, http.MethodOptions)
}
