// The fieldsync agent runs on the technician's device: it owns the local
// store, captures entities while offline, and drains the mutation queue to
// the remote system of record when connectivity allows.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/fieldsync-io/fieldsync/internal/capture"
	"github.com/fieldsync-io/fieldsync/internal/config"
	"github.com/fieldsync-io/fieldsync/internal/connectivity"
	"github.com/fieldsync-io/fieldsync/internal/logging"
	"github.com/fieldsync-io/fieldsync/internal/queue"
	"github.com/fieldsync-io/fieldsync/internal/remote"
	"github.com/fieldsync-io/fieldsync/internal/scheduler"
	"github.com/fieldsync-io/fieldsync/internal/store"
	syncengine "github.com/fieldsync-io/fieldsync/internal/sync"
	"github.com/fieldsync-io/fieldsync/internal/sync/objstore"
)

func main() {
	// .env is optional; real deployments configure via the environment.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Init(os.Stdout, "info")
		logging.Error("Invalid configuration", err, nil)
		os.Exit(1)
	}
	logging.Init(os.Stdout, cfg.LogLevel)

	st, err := store.Open(cfg.DataDir)
	if err != nil {
		logging.Error("Failed to open local store", err, logging.Fields{"data_dir": cfg.DataDir})
		os.Exit(1)
	}
	defer st.Close()

	q := queue.NewManager(st)
	if err := q.Load(); err != nil {
		logging.Error("Failed to load sync queue", err, nil)
		os.Exit(1)
	}

	client := remote.NewClient(remote.Config{
		BaseURL: cfg.RemoteBaseURL,
		Timeout: cfg.RemoteTimeout,
	})
	sessions := remote.StaticSession{TenantID: cfg.TenantID, Token: cfg.SessionToken}

	var objects syncengine.ObjectUploader
	if cfg.ObjectStoreConfigured() {
		minioStore, err := objstore.New(objstore.Config{
			Endpoint:  cfg.ObjectEndpoint,
			Bucket:    cfg.ObjectBucket,
			AccessKey: cfg.ObjectAccessKey,
			SecretKey: cfg.ObjectSecretKey,
			UseSSL:    cfg.ObjectUseSSL,
		})
		if err != nil {
			logging.Error("Failed to configure object store", err, nil)
			os.Exit(1)
		}
		ensureCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := minioStore.EnsureBucket(ensureCtx); err != nil {
			// Non-fatal: the device may be offline at startup. Uploads
			// fail and retry like any other dispatch.
			logging.Warn("Could not verify photo bucket", logging.Fields{"error": err.Error()})
		}
		cancel()
		objects = minioStore
	}

	monitor := connectivity.NewMonitor(
		connectivity.HTTPProbe(cfg.RemoteBaseURL+"/api/health", 5*time.Second),
		cfg.ProbeInterval,
	)

	device := capture.StaticDevice{ID: cfg.DeviceID}
	adapter := capture.NewAdapter(st, q, client, sessions, monitor, device)

	hub := NewWSHub()
	monitor.Subscribe(hub.ConnectivityChanged)

	engine := syncengine.NewEngine(syncengine.Deps{
		Queue:        q,
		Sessions:     sessions,
		Handlers:     syncengine.DefaultRegistry(client, objects),
		Connectivity: monitor,
		Records:      adapter,
		Notifier:     hub,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched := scheduler.New(engine, monitor, scheduler.Config{DrainInterval: cfg.DrainInterval})
	sched.Start(ctx)
	monitor.Start(ctx)

	server := NewServer(engine, adapter, q, sched, hub)
	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      server.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		logging.Info("Agent listening", logging.Fields{
			"addr":   cfg.ListenAddr,
			"online": monitor.Online(),
			"queued": q.Len(),
		})
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error("HTTP server failed", err, nil)
			cancel()
		}
	}()

	// Anything queued from a previous run goes out as soon as we can.
	if monitor.Online() {
		sched.Trigger()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case <-ctx.Done():
	}

	logging.Info("Shutting down", nil)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)

	monitor.Stop()
	sched.Stop()
}
