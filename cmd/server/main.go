package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bootcforge/bootcforge/internal/api"
	"github.com/bootcforge/bootcforge/internal/build"
	"github.com/bootcforge/bootcforge/internal/config"
	"github.com/bootcforge/bootcforge/internal/events"
	"github.com/bootcforge/bootcforge/internal/export"
	"github.com/bootcforge/bootcforge/internal/history"
	"github.com/bootcforge/bootcforge/internal/journal"
	"github.com/bootcforge/bootcforge/internal/metrics"
	"github.com/bootcforge/bootcforge/internal/podman"
	"github.com/bootcforge/bootcforge/internal/prereq"
	"github.com/bootcforge/bootcforge/internal/storage"
	"github.com/bootcforge/bootcforge/internal/telemetry"
	"github.com/bootcforge/bootcforge/internal/vm"
)

// journalRetention is how long published events are kept locally.
const journalRetention = 7 * 24 * time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var podmanClient *podman.Client
	if cfg.PodmanBinary != "" {
		podmanClient, err = podman.NewClientWithBinary(cfg.PodmanBinary)
	} else {
		podmanClient, err = podman.NewClient()
	}
	if err != nil {
		log.Fatalf("failed to initialize podman: %v", err)
	}
	if version, err := podmanClient.Version(ctx); err != nil {
		log.Printf("bootcforge: podman not responding, builds will fail until it is: %v", err)
	} else {
		log.Printf("bootcforge: using podman %s (%s)", version, podmanClient.BinaryPath())
	}

	// History ledger
	ledger := history.New(cfg.DataDir)
	if err := ledger.Load(ctx, podmanClient); err != nil {
		log.Fatalf("failed to load history: %v", err)
	}
	log.Printf("bootcforge: history at %s (%d builds)", ledger.Path(), len(ledger.All()))

	notifier, err := history.NewNotifier(cfg.DataDir)
	if err != nil {
		log.Printf("bootcforge: history watcher not available: %v (continuing without live history)", err)
	} else {
		defer notifier.Close()
		go notifier.Run(ctx)
	}

	// Event journal, synced to NATS when configured
	jrnl, err := journal.Open(cfg.DataDir)
	if err != nil {
		log.Fatalf("failed to open event journal: %v", err)
	}
	defer jrnl.Close()
	go pruneJournal(ctx, jrnl)

	if cfg.NATSURL != "" {
		host, _ := os.Hostname()
		publisher, err := events.NewPublisher(cfg.NATSURL, host, jrnl)
		if err != nil {
			log.Printf("bootcforge: NATS publisher not available: %v (events stay in the local journal)", err)
		} else {
			publisher.Start()
			defer publisher.Stop()
			log.Printf("bootcforge: publishing build events to %s", events.StreamName)
		}
	}

	usage := telemetry.New(cfg.SegmentWriteKey, cfg.DataDir, cfg.TelemetryEnabled)
	defer usage.Close()

	homeDir, err := os.UserHomeDir()
	if err != nil {
		log.Printf("bootcforge: no home directory, AWS credentials cannot be mounted: %v", err)
	}

	tracker := api.NewTracker()
	orchestrator := build.New(build.Options{
		Engine:       podmanClient,
		History:      ledger,
		Prompt:       build.AutoPrompt{},
		Prereqs:      prereq.New(podmanClient),
		Events:       jrnl,
		Usage:        usage,
		BuilderImage: build.BuilderImage(cfg.Builder),
		HomeDir:      homeDir,
		MaxRetries:   cfg.MaxNotFoundRetries,
		Timeout:      time.Duration(cfg.BuildTimeoutMinutes) * time.Minute,
		OnProgress:   tracker.Update,
	})

	server := api.NewServer(orchestrator, ledger, orchestrator.Lifecycle(), tracker, cfg.APIKey)
	server.SetDefaultEngine(cfg.DefaultEngine)
	server.SetPrereqChecker(prereq.New(podmanClient))
	server.SetVMDeps(vm.NewManager(), vm.WebsocketAddr)
	server.SetEventLog(jrnl)
	if notifier != nil {
		server.SetNotifier(notifier)
	}

	s3cfg := storage.S3Config{
		Endpoint:        cfg.S3Endpoint,
		Bucket:          cfg.S3Bucket,
		Region:          cfg.S3Region,
		AccessKeyID:     cfg.S3AccessKeyID,
		SecretAccessKey: cfg.S3SecretAccessKey,
		ForcePathStyle:  cfg.S3ForcePathStyle,
	}
	exporter := export.New(nil, storage.ExportKey)
	if s3cfg.Enabled() {
		store, err := storage.NewExportStore(s3cfg)
		if err != nil {
			log.Printf("bootcforge: failed to initialize export store: %v (continuing with local exports only)", err)
		} else {
			exporter = export.New(store, storage.ExportKey)
			log.Printf("bootcforge: S3 export store configured (bucket=%s, region=%s)", cfg.S3Bucket, cfg.S3Region)
		}
	}
	server.SetExporter(exporter)

	if cfg.MetricsAddr != "" {
		metricsSrv := metrics.StartMetricsServer(cfg.MetricsAddr)
		defer metricsSrv.Close()
		log.Printf("bootcforge: metrics on %s", cfg.MetricsAddr)
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	addr := fmt.Sprintf(":%d", cfg.Port)
	log.Printf("bootcforge: starting server on %s (builder=%s, data=%s)", addr, cfg.Builder, cfg.DataDir)

	go func() {
		if err := server.Start(addr); err != nil {
			log.Printf("server error: %v", err)
		}
	}()

	<-quit
	log.Println("bootcforge: shutting down...")
	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("error closing server: %v", err)
	}
}

// pruneJournal drops old published events once an hour.
func pruneJournal(ctx context.Context, j *journal.Journal) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := j.PruneSynced(journalRetention)
			if err != nil {
				log.Printf("bootcforge: journal prune failed: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("bootcforge: pruned %d published events", n)
			}
		}
	}
}
