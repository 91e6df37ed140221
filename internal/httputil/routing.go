// Copyright 2026 The Hummingbird Authors
//
// SPDX-License-Identifier: AGPL-3.0-only

package httputil

import (
	"net/http"
	"net/url"

	"github.com/gorilla/mux"
)

// URLDecodeMapValues is a function that iterates over all values of a
// map[string]string and URL unescapes them. The routers use encoded paths
// because room ids contain ':' and event ids contain '$'.
func URLDecodeMapValues(vmap map[string]string) (map[string]string, error) {
	decoded := make(map[string]string, len(vmap))
	for key, value := range vmap {
		decodedVal, err := url.PathUnescape(value)
		if err != nil {
			return make(map[string]string), err
		}
		decoded[key] = decodedVal
	}
	return decoded, nil
}

// Vars returns the URL-decoded mux vars for a request. Undecodable values
// fall back to their raw form rather than failing the request.
func Vars(req *http.Request) map[string]string {
	decoded, err := URLDecodeMapValues(mux.Vars(req))
	if err != nil {
		return mux.Vars(req)
	}
	return decoded
}
