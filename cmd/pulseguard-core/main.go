// Command pulseguard-core runs the full monitoring engine as a single
// process: the admin API, the check scheduler/runner pipeline, and
// (optionally) ACME-backed TLS termination. Multiple instances of this
// binary pointed at the same Redis/sqlite backends form one cluster, with
// exactly one becoming the scheduler's master at a time.
package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/pulseguard/core/pkg/acme"
	"github.com/pulseguard/core/pkg/api"
	"github.com/pulseguard/core/pkg/config"
	"github.com/pulseguard/core/pkg/coordination"
	"github.com/pulseguard/core/pkg/events"
	"github.com/pulseguard/core/pkg/incident"
	"github.com/pulseguard/core/pkg/probe"
	"github.com/pulseguard/core/pkg/resolver"
	"github.com/pulseguard/core/pkg/runner"
	"github.com/pulseguard/core/pkg/scheduler"
	"github.com/pulseguard/core/pkg/store"
	"github.com/pulseguard/core/pkg/telemetry"
	"github.com/pulseguard/core/pkg/uptime"
)

func main() {
	log.Println("🩺 Starting PulseGuard Core...")

	environment := os.Getenv("PULSEGUARD_ENV")
	if environment == "" {
		environment = "development"
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Failed to load configuration: %v", err)
	}
	log.Printf("📋 Environment: %s", environment)

	db, err := store.NewDB(cfg)
	if err != nil {
		log.Fatalf("❌ Failed to initialize database: %v", err)
	}
	defer db.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("❌ Failed to reach Redis at %s: %v", cfg.Redis.Addr, err)
	}

	registry := prometheus.NewRegistry()
	metrics := telemetry.New(registry)

	res := resolver.New()
	probes := probe.NewRegistry(res)
	emitter := events.NewEmitter(rdb)
	reducer := incident.NewReducer(db.IncidentStore(), emitter, metrics)
	accountant := uptime.NewAccountant(db.MonitorStore(), db.CheckStore())

	lock := coordination.NewRedisLock(rdb)
	queue := coordination.NewRedisQueue(rdb)
	sched := scheduler.New(cfg.Scheduler.NodeName, lock, queue, db.MonitorStore(), cfg.Scheduler)

	checkRunner := runner.New(
		db.MonitorStore(),
		db.CheckStore(),
		probes,
		reducer,
		accountant,
		emitter,
		sched.EnqueueScheduled,
		metrics,
	)
	sched.SetRunner(checkRunner)
	sched.SetMetrics(metrics)

	schedCtx, cancelSched := context.WithCancel(context.Background())
	sched.Start(schedCtx)
	log.Printf("⚙️  Scheduler running as node %s (concurrency target from config)", cfg.Scheduler.NodeName)

	var acmeClient *acme.Client
	if cfg.ACME.Enabled {
		acmeClient, err = acme.NewClient(cfg)
		if err != nil {
			log.Fatalf("❌ Failed to initialize ACME client: %v", err)
		}
		go serveChallengeResponder(acmeClient)
	}

	metricsHandler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	router := api.NewRouter(environment, db.MonitorStore(), sched, cfg.Probe, metricsHandler)

	server := &http.Server{
		Addr:           fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
		Handler:        router,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}
	if acmeClient != nil {
		server.TLSConfig = &tls.Config{
			GetCertificate: func(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
				return acmeClient.GetCertificate(hello.ServerName)
			},
		}
	}

	go func() {
		log.Printf("🚀 API server listening on %s", server.Addr)
		var serveErr error
		if acmeClient != nil {
			serveErr = server.ListenAndServeTLS("", "")
		} else {
			serveErr = server.ListenAndServe()
		}
		if serveErr != nil && serveErr != http.ErrServerClosed {
			log.Fatalf("❌ API server failed: %v", serveErr)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("🛑 Shutting down PulseGuard Core...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("⚠️  API server forced to shutdown: %v", err)
	}

	cancelSched()
	sched.Wait()

	log.Println("✅ Shutdown complete")
}

// serveChallengeResponder serves ACME HTTP-01 challenges on plain port 80,
// independently of the admin API's own (typically TLS) listener.
func serveChallengeResponder(client *acme.Client) {
	log.Println("🔑 ACME challenge responder listening on :80")
	if err := http.ListenAndServe(":80", client.ChallengeHandler()); err != nil && err != http.ErrServerClosed {
		log.Printf("⚠️  ACME challenge responder stopped: %v", err)
	}
}
