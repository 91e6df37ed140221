// Copyright 2026 The Hummingbird Authors
//
// SPDX-License-Identifier: AGPL-3.0-only

package auth

import (
	"net/http"
	"strings"

	"github.com/matrix-org/gomatrixserverlib/spec"
	"github.com/matrix-org/util"

	"github.com/hummingbird-im/hummingbird/storage"
)

// VerifyUserFromRequest resolves the Authorization bearer token to the
// device it was issued to. The two failure modes map to the Matrix error
// codes clients distinguish: no usable token at all (M_MISSING_TOKEN) and
// a token the server does not recognise (M_UNKNOWN_TOKEN).
func VerifyUserFromRequest(req *http.Request, db *storage.Database) (*storage.Device, *util.JSONResponse) {
	token, err := extractAccessToken(req)
	if err != nil {
		return nil, &util.JSONResponse{
			Code: http.StatusUnauthorized,
			JSON: spec.MissingToken(err.Error()),
		}
	}
	device, ok := db.DeviceByAccessToken(token)
	if !ok {
		return nil, &util.JSONResponse{
			Code: http.StatusUnauthorized,
			JSON: spec.UnknownToken("Unknown access token"),
		}
	}
	return device, nil
}

type tokenError string

func (e tokenError) Error() string { return string(e) }

// extractAccessToken reads the Authorization header. Only the Bearer
// scheme is accepted.
func extractAccessToken(req *http.Request) (string, error) {
	authBearer := req.Header.Get("Authorization")
	if authBearer == "" {
		return "", tokenError("Missing access token")
	}
	parts := strings.SplitN(authBearer, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", tokenError("Invalid Authorization header")
	}
	return parts[1], nil
}
