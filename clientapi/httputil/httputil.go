// Copyright 2026 The Hummingbird Authors
//
// SPDX-License-Identifier: AGPL-3.0-only

package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"unicode/utf8"

	"github.com/matrix-org/gomatrixserverlib/spec"
	"github.com/matrix-org/util"

	"github.com/hummingbird-im/hummingbird/storage"
)

// UnmarshalJSONRequest into the given interface pointer. Returns an error
// JSON response if there was a problem unmarshalling. Calling this function
// consumes the request body.
func UnmarshalJSONRequest(req *http.Request, iface interface{}) *util.JSONResponse {
	// encoding/json allows invalid utf-8, matrix does not
	body, err := io.ReadAll(req.Body)
	if err != nil {
		util.GetLogger(req.Context()).WithError(err).Error("io.ReadAll failed")
		return &util.JSONResponse{
			Code: http.StatusInternalServerError,
			JSON: spec.InternalServerError{},
		}
	}
	return UnmarshalJSON(body, iface)
}

func UnmarshalJSON(body []byte, iface interface{}) *util.JSONResponse {
	if !utf8.Valid(body) {
		return &util.JSONResponse{
			Code: http.StatusBadRequest,
			JSON: spec.NotJSON("Body contains invalid UTF-8"),
		}
	}
	if err := json.Unmarshal(body, iface); err != nil {
		return &util.JSONResponse{
			Code: http.StatusBadRequest,
			JSON: spec.BadJSON("The request body could not be decoded into valid JSON. " + err.Error()),
		}
	}
	return nil
}

// ReadJSONContent reads the request body as a raw JSON document. An empty
// body is treated as an empty object, which is what clients mean when they
// PUT without a payload.
func ReadJSONContent(req *http.Request) (json.RawMessage, *util.JSONResponse) {
	body, err := io.ReadAll(req.Body)
	if err != nil {
		util.GetLogger(req.Context()).WithError(err).Error("io.ReadAll failed")
		return nil, &util.JSONResponse{
			Code: http.StatusInternalServerError,
			JSON: spec.InternalServerError{},
		}
	}
	if len(body) == 0 {
		return json.RawMessage("{}"), nil
	}
	var content json.RawMessage
	if resErr := UnmarshalJSON(body, &content); resErr != nil {
		return nil, resErr
	}
	return content, nil
}

// StorageErrorResponse maps the store's sentinel errors onto the Matrix
// error shapes handlers return. Anything unexpected is logged and becomes
// a 500 M_UNKNOWN.
func StorageErrorResponse(req *http.Request, err error) util.JSONResponse {
	switch {
	case errors.Is(err, storage.ErrRoomNotFound):
		return util.JSONResponse{
			Code: http.StatusNotFound,
			JSON: spec.NotFound("Room not found"),
		}
	case errors.Is(err, storage.ErrEventNotFound):
		return util.JSONResponse{
			Code: http.StatusNotFound,
			JSON: spec.NotFound("Event not found"),
		}
	case errors.Is(err, storage.ErrDeviceNotFound):
		return util.JSONResponse{
			Code: http.StatusUnauthorized,
			JSON: spec.UnknownToken("Device no longer exists"),
		}
	default:
		util.GetLogger(req.Context()).WithError(err).Error("Request failed")
		return util.JSONResponse{
			Code: http.StatusInternalServerError,
			JSON: spec.Unknown(err.Error()),
		}
	}
}
