// Copyright 2026 The Hummingbird Authors
//
// SPDX-License-Identifier: AGPL-3.0-only

package httputil

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/matrix-org/gomatrixserverlib/spec"
	"github.com/matrix-org/util"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/hummingbird-im/hummingbird/clientapi/auth"
	"github.com/hummingbird-im/hummingbird/storage"
)

var requestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "hummingbird",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Time spent handling each request",
	},
	[]string{"handler"},
)

var registerMetrics sync.Once

func init() {
	registerMetrics.Do(func() {
		prometheus.MustRegister(requestDuration)
	})
}

// MakeExternalAPI turns a util.JSONResponse-based handler into an
// http.Handler with CORS headers, request logging, panic recovery and a
// duration metric. Unauthenticated endpoints use this directly.
func MakeExternalAPI(metricsName string, f func(*http.Request) util.JSONResponse) http.Handler {
	h := util.MakeJSONAPI(util.NewJSONRequestHandler(f))
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		util.SetCORSHeaders(w)
		if req.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		start := time.Now()
		h.ServeHTTP(w, req)
		requestDuration.WithLabelValues(metricsName).Observe(time.Since(start).Seconds())
	})
}

// MakeAuthAPI is MakeExternalAPI plus bearer-token verification: the
// wrapped handler receives the device resolved from the Authorization
// header, or the client gets the 401 the verifier produced.
func MakeAuthAPI(metricsName string, db *storage.Database, f func(*http.Request, *storage.Device) util.JSONResponse) http.Handler {
	wrapped := func(req *http.Request) util.JSONResponse {
		device, errRes := auth.VerifyUserFromRequest(req, db)
		if errRes != nil {
			return *errRes
		}
		return f(req, device)
	}
	return MakeExternalAPI(metricsName, wrapped)
}

// Routers groups the public muxes by path prefix the way the external
// listener mounts them.
type Routers struct {
	Client *mux.Router
	Media  *mux.Router
}

const (
	PublicClientPathPrefix = "/_matrix/client/"
	PublicMediaPathPrefix  = "/_matrix/media/"
)

func NewRouters() Routers {
	r := Routers{
		Client: mux.NewRouter().SkipClean(true).UseEncodedPath().PathPrefix(PublicClientPathPrefix).Subrouter(),
		Media:  mux.NewRouter().SkipClean(true).UseEncodedPath().PathPrefix(PublicMediaPathPrefix).Subrouter(),
	}
	for _, router := range []*mux.Router{r.Client, r.Media} {
		router.NotFoundHandler = NotFoundCORSHandler
		router.MethodNotAllowedHandler = NotAllowedHandler
	}
	return r
}

// WriteJSONResponse serialises a util.JSONResponse outside of the
// MakeJSONAPI wrappers. Used by the not-found handlers and by media
// download, which writes raw bytes on success but JSON errors.
func WriteJSONResponse(w http.ResponseWriter, res util.JSONResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(res.Code)
	if err := json.NewEncoder(w).Encode(res.JSON); err != nil {
		logrus.WithError(err).Error("Failed to encode JSON response")
	}
}

// NotFoundCORSHandler returns 404 M_UNRECOGNIZED with CORS headers for
// routes nothing matched.
var NotFoundCORSHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
	util.SetCORSHeaders(w)
	if req.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	WriteJSONResponse(w, util.JSONResponse{
		Code: http.StatusNotFound,
		JSON: spec.Unrecognized("Unrecognized request"),
	})
})

// NotAllowedHandler returns 405 M_UNRECOGNIZED when a route matched with
// the wrong method.
var NotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
	util.SetCORSHeaders(w)
	if req.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	WriteJSONResponse(w, util.JSONResponse{
		Code: http.StatusMethodNotAllowed,
		JSON: spec.Unrecognized("Method not allowed"),
	})
})
