package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"vetcare.app/internal/audit"
	"vetcare.app/internal/auth"
	"vetcare.app/internal/httpapi"
	"vetcare.app/internal/obs"
	"vetcare.app/internal/store/memory"
	"vetcare.app/internal/store/redisstore"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	_ = godotenv.Load()

	obs.Init()
	obs.InitBuildInfo(version, commit)

	dsn := os.Getenv("VETCARE_PG_DSN")
	if dsn == "" {
		log.Fatal("missing DSN: set VETCARE_PG_DSN")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	secret := os.Getenv("VETCARE_JWT_SECRET")
	issuer, err := auth.NewTokenIssuer(secret)
	if err != nil {
		log.Fatalf("token issuer: %v", err)
	}

	// Redis backs sessions and login throttling when configured; otherwise
	// an in-process store keeps single-node deployments working.
	var (
		sessions auth.SessionStore
		limiter  auth.RateLimitStore
		cache    httpapi.Pinger
	)
	if addr := os.Getenv("VETCARE_REDIS_ADDR"); addr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		rs, err := redisstore.Open(ctx, addr, os.Getenv("VETCARE_REDIS_PASSWORD"), envInt("VETCARE_REDIS_DB", 0))
		cancel()
		if err != nil {
			log.Fatalf("open redis: %v", err)
		}
		sessions, limiter, cache = rs, rs, rs
	} else {
		mem := memory.New()
		defer mem.Close()
		sessions, limiter = mem, mem
	}

	svc, err := auth.NewService(
		auth.NewPGCredentialStore(db),
		sessions,
		limiter,
		issuer,
		auth.WithAuditSink(audit.Sink{}),
	)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}

	api := httpapi.New(svc, httpapi.ReadyProbe{DB: db, Cache: cache}, version)

	addr := os.Getenv("VETCARE_HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting vetcare-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	_ = db.Close()
	log.Println("Stopped")
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
