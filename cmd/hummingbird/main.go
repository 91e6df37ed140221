// Copyright 2026 The Hummingbird Authors
//
// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	clientrouting "github.com/hummingbird-im/hummingbird/clientapi/routing"
	"github.com/hummingbird-im/hummingbird/internal/httputil"
	mediarouting "github.com/hummingbird-im/hummingbird/mediaapi/routing"
	"github.com/hummingbird-im/hummingbird/setup/config"
	"github.com/hummingbird-im/hummingbird/storage"
	"github.com/hummingbird-im/hummingbird/syncapi/sync"
)

var configPath = flag.String("config", "hummingbird.yaml", "The path to the config file")

func main() {
	flag.Parse()

	logrus.SetFormatter(&logrus.TextFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000000000Z07:00",
		FullTimestamp:   true,
	})
	if _, ok := os.LookupEnv("HUMMINGBIRD_DEBUG"); ok {
		logrus.SetLevel(logrus.DebugLevel)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.WithError(err).Fatalf("Failed to load config file %q", *configPath)
	}

	users := make([]storage.User, 0, len(cfg.Users))
	for _, u := range cfg.Users {
		users = append(users, storage.User{
			Localpart:   u.Localpart,
			Password:    u.Password,
			DisplayName: u.DisplayName,
		})
	}
	db := storage.NewDatabase(cfg.ServerName, users)
	notifier := sync.NewNotifier()
	db.SetNotifier(notifier)
	rp := sync.NewRequestPool(db, notifier)

	routers := httputil.NewRouters()
	clientrouting.Setup(routers.Client, cfg, db, rp, notifier)
	mediarouting.Setup(routers.Media, db)

	externalMux := http.NewServeMux()
	externalMux.Handle(httputil.PublicClientPathPrefix, routers.Client)
	externalMux.Handle(httputil.PublicMediaPathPrefix, routers.Media)
	externalMux.Handle("/metrics", promhttp.Handler())
	externalMux.HandleFunc("/health", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	addr := fmt.Sprintf("%s:%d", cfg.BindAddress, cfg.Port)
	logrus.WithFields(logrus.Fields{
		"server_name": cfg.ServerName,
		"address":     addr,
		"users":       len(cfg.Users),
	}).Info("Starting hummingbird")

	// No write timeout: /sync requests park for up to their client-chosen
	// long-poll window.
	srv := &http.Server{
		Addr:    addr,
		Handler: externalMux,
	}
	if err := srv.ListenAndServe(); err != nil {
		logrus.WithError(err).Fatal("Failed to serve HTTP")
	}
}
