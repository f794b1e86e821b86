package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"

	"github.com/luas-archive/collector/internal/batch"
	"github.com/luas-archive/collector/internal/collector"
	"github.com/luas-archive/collector/internal/config"
	"github.com/luas-archive/collector/internal/db"
	"github.com/luas-archive/collector/internal/realtime/luas"
	"github.com/luas-archive/collector/internal/scheduler"
	"github.com/luas-archive/collector/internal/snapshot"
	"github.com/luas-archive/collector/internal/status"
	"github.com/luas-archive/collector/internal/stops"
)

func main() {
	log.Println("Starting Luas forecast collector...")

	// .env is optional; real environment variables take precedence
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	log.Printf("Config loaded: poll_interval=%v, overlap=%s, failure_policy=%s, historic_dir=%s",
		cfg.PollInterval, cfg.OverlapPolicy, cfg.FailurePolicy, cfg.HistoricDir)

	// ═══════════════════════════════════════════════════════
	// PHASE 1: Stop list (no stops, no collection)
	// ═══════════════════════════════════════════════════════
	registry, err := stops.LoadFile(cfg.StopsFile)
	if err != nil {
		log.Fatalf("Failed to load stop identifiers: %v", err)
	}

	// ═══════════════════════════════════════════════════════
	// PHASE 2: Pipeline
	// ═══════════════════════════════════════════════════════
	failurePolicy, err := batch.ParseFailurePolicy(cfg.FailurePolicy)
	if err != nil {
		log.Fatalf("Invalid failure policy: %v", err)
	}
	overlapPolicy, err := scheduler.ParseOverlapPolicy(cfg.OverlapPolicy)
	if err != nil {
		log.Fatalf("Invalid overlap policy: %v", err)
	}

	client := luas.NewClient(luas.ClientOptions{
		BaseURL:   cfg.LuasBaseURL,
		Timeout:   cfg.FetchTimeout,
		RateLimit: cfg.FetchRateLimit,
		Burst:     cfg.FetchBurst,
	})
	aggregator := batch.NewAggregator(client, batch.Options{
		Policy:      failurePolicy,
		Retries:     cfg.RetryAttempts,
		MaxInFlight: cfg.MaxInFlight,
		Location:    cfg.Location,
	})
	coll := collector.New(registry, aggregator, snapshot.NewWriter(cfg.HistoricDir))

	// ═══════════════════════════════════════════════════════
	// PHASE 3: Optional relational sinks
	// ═══════════════════════════════════════════════════════
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var sqliteDB *db.DB
	if cfg.SQLiteDatabase != "" {
		sqliteDB, err = db.Connect(cfg.SQLiteDatabase)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer sqliteDB.Close()

		if err := sqliteDB.EnsureSchema(ctx); err != nil {
			log.Fatalf("Failed to ensure database schema: %v", err)
		}
		coll.AddSink("sqlite", sqliteDB)
	}

	var pg *db.Postgres
	if cfg.DatabaseURL != "" {
		pg, err = db.ConnectPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			// the archive database is a downstream consumer; files are still written
			log.Printf("Warning: PostgreSQL sink disabled: %v", err)
		} else {
			defer pg.Close()
			if err := pg.EnsureSchema(ctx); err != nil {
				log.Fatalf("Failed to ensure PostgreSQL schema: %v", err)
			}
			coll.AddSink("postgres", pg)
		}
	}

	// ═══════════════════════════════════════════════════════
	// PHASE 4: Status endpoint
	// ═══════════════════════════════════════════════════════
	var statusSrv *status.Server
	if cfg.StatusPort != "" {
		statusSrv = status.NewServer(coll, registry.Len(), cfg.PollInterval, cfg.StatusPort)
		if sqliteDB != nil {
			statusSrv.AddDatabase("sqlite", sqliteDB)
		}
		if pg != nil {
			statusSrv.AddDatabase("postgres", pg)
		}
		go func() {
			if err := statusSrv.Start(); err != nil {
				log.Printf("Status server stopped: %v", err)
			}
		}()
	}

	// ═══════════════════════════════════════════════════════
	// PHASE 5: Scheduling
	// ═══════════════════════════════════════════════════════
	sched := scheduler.New(scheduler.Options{
		Interval:      cfg.PollInterval,
		Policy:        overlapPolicy,
		MaxConcurrent: cfg.MaxConcurrentCycles,
		RunOnStart:    cfg.RunOnStart,
	}, func(ctx context.Context) {
		runCycle(ctx, coll, sqliteDB, cfg)
	})

	done := make(chan struct{})
	go func() {
		sched.Run(ctx)
		close(done)
	}()

	log.Printf("Collector running (%d stops, poll every %v)", registry.Len(), cfg.PollInterval)

	// ═══════════════════════════════════════════════════════
	// PHASE 6: Graceful Shutdown
	// ═══════════════════════════════════════════════════════
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Println("Shutting down...")
	cancel()
	<-done

	if statusSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := statusSrv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Status server shutdown error: %v", err)
		}
		shutdownCancel()
	}

	started, skipped := sched.Stats()
	log.Printf("Goodbye! (%d cycles run, %d ticks skipped)", started, skipped)
}

func runCycle(ctx context.Context, coll *collector.Collector, sqliteDB *db.DB, cfg *config.Config) {
	coll.RunCycle(ctx)

	// Cleanup old data
	if sqliteDB != nil && cfg.RetentionDuration > 0 {
		if err := sqliteDB.Cleanup(ctx, cfg.RetentionDuration); err != nil {
			log.Printf("Cleanup error: %v", err)
		}
	}
}
