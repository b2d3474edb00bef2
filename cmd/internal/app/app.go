// Package app wires the attendance server runtime: config, logging, backends, HTTP routes, and the realtime gateway.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/007-bg/Live-Attendance-System/cmd/identity"
	"github.com/007-bg/Live-Attendance-System/cmd/identity/ids"
	"github.com/007-bg/Live-Attendance-System/cmd/internal/attendance"
	attendanceapi "github.com/007-bg/Live-Attendance-System/cmd/internal/attendance/api"
	"github.com/007-bg/Live-Attendance-System/cmd/internal/auth"
	"github.com/007-bg/Live-Attendance-System/cmd/internal/realtime"
	"github.com/007-bg/Live-Attendance-System/cmd/security/token"
)

// closer is one owned resource released at shutdown, in reverse acquisition order.
type closer struct {
	name  string
	close func() error
}

// App is the attendance server runtime: it owns the backends, HTTP wiring and the realtime gateway.
type App struct {
	cfg Config
	log Logger

	registry *prometheus.Registry
	closers  []closer

	dbPool *pgxpool.Pool
	rdb    *redis.Client
	sqlite *attendance.SQLiteSink

	manager *attendance.Manager
	hub     *realtime.Hub
	ws      *realtime.WSGateway
	api     *attendanceapi.Handler
}

// New constructs a fully wired App instance from config and logger.
func New(cfg Config, log Logger) (_ *App, err error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}
	if err := ValidateSecurityConfig(cfg); err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, log: log, registry: prometheus.NewRegistry()}
	defer func() {
		if err != nil {
			a.closeAll()
		}
	}()

	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	tokens, err := token.NewManager(token.Config{
		Secret: []byte(cfg.JWTSecret),
		Issuer: cfg.JWTIssuer,
		TTL:    cfg.JWTTTL,
	})
	if err != nil {
		return nil, err
	}

	ctx := context.Background()

	directory, sink, err := a.newPersistence(ctx)
	if err != nil {
		return nil, err
	}
	store, err := a.newSessionStore(ctx)
	if err != nil {
		return nil, err
	}

	lifecycleMetrics, err := attendance.NewMetrics(a.registry)
	if err != nil {
		return nil, err
	}
	a.manager, err = attendance.NewManager(attendance.Config{
		Store:     store,
		Sink:      sink,
		Directory: directory,
		Logger:    log,
		Metrics:   lifecycleMetrics,
		NewID:     ids.NewULID,
	})
	if err != nil {
		return nil, err
	}

	resolver, err := auth.NewResolver(tokens, directory)
	if err != nil {
		return nil, err
	}

	wsMetrics, err := realtime.NewMetrics(a.registry)
	if err != nil {
		return nil, err
	}
	a.hub = realtime.NewHub(log, wsMetrics)
	a.ws, err = realtime.NewWSGateway(log, a.hub, a.manager, resolver, wsMetrics, realtime.GatewayConfig{
		AllowedOrigins:     cfg.WSAllowedOrigins,
		OriginRequired:     cfg.WSOriginRequired,
		InsecureSkipVerify: cfg.WSInsecureSkipVerify,
		SendQueueSize:      cfg.WSSendQueue,
		WriteTimeout:       cfg.WSWriteTimeout,
		ReadIdleTimeout:    cfg.WSReadIdleTimeout,
		HeartbeatInterval:  cfg.WSHeartbeatInterval,
		HeartbeatTimeout:   cfg.WSHeartbeatTimeout,
		RateEvents:         cfg.WSRateEvents,
		RateWindow:         cfg.WSRateWindow,
	})
	if err != nil {
		return nil, err
	}

	var auditor attendanceapi.Auditor = attendanceapi.LogAuditor{Log: log}
	if a.dbPool != nil {
		auditor = attendanceapi.NewPostgresAuditor(a.dbPool, cfg.DBSchema, log)
	}
	a.api, err = attendanceapi.NewHandler(log, a.manager, directory, resolver,
		attendanceapi.WithAuditor(auditor),
		attendanceapi.WithTrustProxy(cfg.TrustProxy),
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// newPersistence picks the directory and the attendance sink.
// Postgres backs both when configured; otherwise the directory is seeded from a
// file and records go to SQLite (when a path is set) or memory.
func (a *App) newPersistence(ctx context.Context) (identity.Store, attendance.Sink, error) {
	cfg := a.cfg

	if cfg.DatabaseURL != "" {
		pool, err := NewDBPool(ctx, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres: %w", err)
		}
		a.dbPool = pool
		a.own("postgres", func() error { pool.Close(); return nil })

		directory, err := identity.NewPostgresStore(pool, identity.WithSchema(cfg.DBSchema))
		if err != nil {
			return nil, nil, err
		}
		sink, err := attendance.NewPostgresSink(pool, attendance.WithSchema(cfg.DBSchema))
		if err != nil {
			return nil, nil, err
		}
		if err := sink.EnsureSchema(ctx); err != nil {
			return nil, nil, err
		}
		a.own("sink.postgres", sink.Close)
		a.log.Info("persistence.postgres", "schema", cfg.DBSchema)
		return directory, sink, nil
	}

	directory := identity.NewInMemoryStore()
	if cfg.DirectoryFile != "" {
		if err := directory.LoadFile(cfg.DirectoryFile); err != nil {
			return nil, nil, err
		}
		a.log.Info("directory.file", "path", cfg.DirectoryFile)
	} else {
		a.log.Warn("directory.empty", "hint", EnvPrefix+"DIRECTORY_FILE or "+EnvPrefix+"DATABASE_URL")
	}

	if cfg.SQLitePath != "" {
		sink, err := attendance.OpenSQLiteSink(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		a.sqlite = sink
		a.own("sink.sqlite", sink.Close)
		a.log.Info("persistence.sqlite", "path", cfg.SQLitePath)
		return directory, sink, nil
	}

	a.log.Info("persistence.inmemory")
	return directory, attendance.NewInMemorySink(), nil
}

// newSessionStore picks Redis when configured, else the in-process store.
func (a *App) newSessionStore(ctx context.Context) (attendance.SessionStore, error) {
	cfg := a.cfg

	if cfg.RedisURL == "" {
		a.log.Info("session_store.inmemory", "ttl", cfg.SessionTTL)
		return attendance.NewInMemoryStore(attendance.WithMemoryTTL(cfg.SessionTTL)), nil
	}

	rdb, err := NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	a.rdb = rdb
	a.own("redis", rdb.Close)

	store, err := attendance.NewRedisStore(rdb,
		attendance.WithKeyPrefix(cfg.SessionKeyPrefix),
		attendance.WithRedisTTL(cfg.SessionTTL),
	)
	if err != nil {
		return nil, err
	}
	a.log.Info("session_store.redis", "prefix", cfg.SessionKeyPrefix, "ttl", cfg.SessionTTL)
	return store, nil
}

func (a *App) own(name string, fn func() error) {
	a.closers = append(a.closers, closer{name: name, close: fn})
}

func (a *App) closeAll() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.close(); err != nil {
			a.log.Error("resource.close.fail", "resource", c.name, "err", err)
		}
	}
	a.closers = nil
}

// Handler returns the fully wrapped HTTP handler.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	registerHTTP(mux, a)
	return WithRequestLogging(WithSecurityHeaders(mux), a.log)
}

// Run starts the HTTP server and blocks until context cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}
	// Hijacked websocket connections are not tracked by Shutdown.
	srv.RegisterOnShutdown(func() { a.hub.Shutdown() })

	a.log.Info("server.start",
		"addr", a.cfg.HTTPAddr,
		"postgres", a.dbPool != nil,
		"redis", a.rdb != nil,
		"sqlite", a.sqlite != nil,
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		a.closeAll()
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := srv.Shutdown(shutdownCtx)
	if err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
	}

	a.closeAll()
	a.log.Info("server.stopped")
	return err
}

// Close releases owned backends without running the server.
func (a *App) Close() {
	a.closeAll()
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
