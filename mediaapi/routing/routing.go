// Copyright 2026 The Hummingbird Authors
//
// SPDX-License-Identifier: AGPL-3.0-only

package routing

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/matrix-org/util"

	"github.com/hummingbird-im/hummingbird/internal/httputil"
	"github.com/hummingbird-im/hummingbird/storage"
)

// Setup registers the media repository routes. Upload is authenticated;
// download is open, matching the unauthenticated media endpoints clients
// still rely on.
func Setup(publicAPIMux *mux.Router, db *storage.Database) {
	v3mux := publicAPIMux.PathPrefix("/{apiversion:(?:r0|v1|v3)}/").Subrouter()

	v3mux.Handle("/upload",
		httputil.MakeAuthAPI("upload", db, func(req *http.Request, device *storage.Device) util.JSONResponse {
			return Upload(req, device, db)
		}),
	).Methods(http.MethodPost, http.MethodOptions)

	download := func(w http.ResponseWriter, req *http.Request) {
		vars := httputil.Vars(req)
		Download(w, req, db, vars["serverName"], vars["mediaID"])
	}
	v3mux.HandleFunc("/download/{serverName}/{mediaID}", download).
		Methods(http.MethodGet, http.MethodHead, http.MethodOptions)
}
