package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/strata/pkg/access"
	"github.com/cuemby/strata/pkg/config"
	"github.com/cuemby/strata/pkg/cryptoplug"
	"github.com/cuemby/strata/pkg/cryptoplug/x509plugin"
	"github.com/cuemby/strata/pkg/docstore"
	"github.com/cuemby/strata/pkg/kvstore"
	"github.com/cuemby/strata/pkg/kvstore/boltkv"
	"github.com/cuemby/strata/pkg/metrics"
	"github.com/cuemby/strata/pkg/outbox"
	"github.com/cuemby/strata/pkg/strlog"
	"github.com/cuemby/strata/pkg/taskrt"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the document store, producer queue and access checker",
	Long: `serve opens the bbolt-backed key/value file, provisions the
producer queue's and access checker's collections, starts the task
runtime, and exposes Prometheus metrics plus health/readiness endpoints
until interrupted.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("config", "", "Path to a YAML config file (thread_count, db, producer settings)")
	serveCmd.Flags().String("data-dir", "./strata-data", "Directory for the bbolt data file")
	serveCmd.Flags().String("metrics-addr", "127.0.0.1:9090", "Address for /metrics, /health, /ready, /live")
	serveCmd.Flags().String("peer-addr", "", "UDP address of a peer to deliver outbox messages to (unset: messages are marked sent with no remote delivery)")
	serveCmd.Flags().Int("workers", 4, "Task runtime worker goroutines")
}

func runServe(cmd *cobra.Command, args []string) error {
	log := strlog.Global()

	cfgPath, _ := cmd.Flags().GetString("config")
	dataDir, _ := cmd.Flags().GetString("data-dir")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
	peerAddr, _ := cmd.Flags().GetString("peer-addr")
	workers, _ := cmd.Flags().GetInt("workers")

	var cfg *config.Config
	if cfgPath != "" {
		loaded, _, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded
		if workers <= 0 {
			workers = cfg.ThreadCount
		}
	}

	db, err := boltkv.Open(dataDir, "strata.db", boltkv.WithLogger(log))
	if err != nil {
		return fmt.Errorf("opening data store: %w", err)
	}
	defer db.Close()

	ca := x509plugin.New(db)
	if err := ca.Init(); err != nil {
		return fmt.Errorf("initializing crypto plugin: %w", err)
	}
	cryptoplug.Register(ca)
	if authority, err := ca.CertAuthority(); err == nil {
		log.Info("crypto plugin ready", "plugin", ca.Name(), "root_cert_bytes", len(authority.RootCertDER()))
	}

	rt := taskrt.New(taskrt.Config{Workers: workers, Logger: &log})
	defer rt.Stop()

	store := docstore.New(db, docstore.WithLogger(log))

	var transport outbox.Transport = nopTransport{}
	if peerAddr != "" {
		udp, err := newUDPTransport(peerAddr)
		if err != nil {
			return fmt.Errorf("dialing peer %q: %w", peerAddr, err)
		}
		defer udp.Close()
		transport = udp
	}

	queueOpts := []outbox.Option{outbox.WithLogger(log)}
	if cfg != nil {
		queueOpts = append(queueOpts,
			outbox.WithDefaultTTL(cfg.Producer.MessageTTL.Std()),
			outbox.WithRetryInterval(cfg.Producer.DequeueRetryInterval.Std()),
		)
	}
	queue, err := outbox.New(store, rt, transport, queueOpts...)
	if err != nil {
		return fmt.Errorf("constructing producer queue: %w", err)
	}
	ctx := context.Background()
	if err := queue.EnsureModel(ctx); err != nil {
		return fmt.Errorf("provisioning producer queue: %w", err)
	}
	if err := queue.Start(ctx); err != nil {
		return fmt.Errorf("resuming producer queue: %w", err)
	}

	checker, err := access.New(store, rt, access.WithLogger(log))
	if err != nil {
		return fmt.Errorf("constructing access checker: %w", err)
	}
	if err := checker.EnsureModels(ctx); err != nil {
		return fmt.Errorf("provisioning access checker: %w", err)
	}

	metrics.SetVersion(Version)
	metrics.RegisterComponent("kvstore", true, "open")
	metrics.RegisterComponent("docstore", true, "ready")
	metrics.RegisterComponent("access", true, "ready")

	// kvstore, docstore and access all sit on the one open bbolt file;
	// a transaction that can't commit (disk full, file gone read-only)
	// catches all three failing at once, so one probe backs all three
	// registered components.
	dbProbe := func(ctx context.Context) error {
		return db.View(ctx, func(kvstore.Tx) error { return nil })
	}
	healthCtx, cancelHealth := context.WithCancel(context.Background())
	defer cancelHealth()
	go metrics.WatchComponent(healthCtx, "kvstore", 15*time.Second, dbProbe)
	go metrics.WatchComponent(healthCtx, "docstore", 15*time.Second, dbProbe)
	go metrics.WatchComponent(healthCtx, "access", 15*time.Second, dbProbe)

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/health", metrics.HealthHandler())
	mux.Handle("/ready", metrics.ReadyHandler())
	mux.Handle("/live", metrics.LivenessHandler())
	srv := &http.Server{Addr: metricsAddr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("metrics server: %w", err)
		}
	}()
	log.Info("strata serving", "data_dir", dataDir, "metrics_addr", metricsAddr, "workers", workers)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Info("shutting down")
	case err := <-errCh:
		log.Error("serve error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	return nil
}
