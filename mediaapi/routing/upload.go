// Copyright 2026 The Hummingbird Authors
//
// SPDX-License-Identifier: AGPL-3.0-only

package routing

import (
	"io"
	"net/http"

	"github.com/matrix-org/gomatrixserverlib/spec"
	"github.com/matrix-org/util"
	log "github.com/sirupsen/logrus"

	"github.com/hummingbird-im/hummingbird/storage"
)

// maxUploadSize bounds a single upload. Everything is held in memory so
// this is also a memory bound per request.
const maxUploadSize = 50 * 1024 * 1024

type uploadResponse struct {
	ContentURI string `json:"content_uri"`
}

// Upload reads the raw request body into the media store and returns the
// mxc:// URI it is now addressable by.
func Upload(req *http.Request, device *storage.Device, db *storage.Database) util.JSONResponse {
	contentType := req.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	fileName := req.URL.Query().Get("filename")

	body, err := io.ReadAll(io.LimitReader(req.Body, maxUploadSize+1))
	if err != nil {
		util.GetLogger(req.Context()).WithError(err).Error("Failed to read upload body")
		return util.JSONResponse{
			Code: http.StatusInternalServerError,
			JSON: spec.InternalServerError{},
		}
	}
	if len(body) > maxUploadSize {
		return util.JSONResponse{
			Code: http.StatusRequestEntityTooLarge,
			JSON: spec.Unknown("Upload request body is too large"),
		}
	}

	mediaID := db.StoreMedia(contentType, fileName, body)
	util.GetLogger(req.Context()).WithFields(log.Fields{
		"media_id":     mediaID,
		"content_type": contentType,
		"size_bytes":   len(body),
	}).Info("Stored media")

	return util.JSONResponse{
		Code: http.StatusOK,
		JSON: uploadResponse{
			ContentURI: "mxc://" + db.ServerName() + "/" + mediaID,
		},
	}
}
