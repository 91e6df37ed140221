// Copyright 2026 The Hummingbird Authors
//
// SPDX-License-Identifier: AGPL-3.0-only

package routing

import (
	"net/http"
	"strconv"

	"github.com/matrix-org/gomatrixserverlib/spec"
	"github.com/matrix-org/util"

	"github.com/hummingbird-im/hummingbird/internal/httputil"
	"github.com/hummingbird-im/hummingbird/storage"
)

// Download streams a stored blob back with its original content type. It
// writes raw bytes on success, so it runs outside the JSON handler wrappers
// and only falls back to them for errors.
func Download(w http.ResponseWriter, req *http.Request, db *storage.Database, serverName, mediaID string) {
	util.SetCORSHeaders(w)
	if req.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if serverName != db.ServerName() {
		httputil.WriteJSONResponse(w, util.JSONResponse{
			Code: http.StatusNotFound,
			JSON: spec.NotFound("Unknown server name"),
		})
		return
	}
	item, ok := db.Media(mediaID)
	if !ok {
		httputil.WriteJSONResponse(w, util.JSONResponse{
			Code: http.StatusNotFound,
			JSON: spec.NotFound("Media not found"),
		})
		return
	}

	contentType := item.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(item.Bytes)))
	if item.FileName != "" {
		w.Header().Set("Content-Disposition", `inline; filename="`+item.FileName+`"`)
	}
	w.WriteHeader(http.StatusOK)
	if req.Method != http.MethodHead {
		_, _ = w.Write(item.Bytes)
	}
}
