package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vilass86/cardgame/internal/config"
	"github.com/vilass86/cardgame/internal/db"
	"github.com/vilass86/cardgame/internal/escrow"
	httpServer "github.com/vilass86/cardgame/internal/http"
	"github.com/vilass86/cardgame/internal/http/handlers"
	"github.com/vilass86/cardgame/internal/http/middleware"
	"github.com/vilass86/cardgame/internal/ledger"
	"github.com/vilass86/cardgame/internal/logger"
	"github.com/vilass86/cardgame/internal/metrics"
	"github.com/vilass86/cardgame/internal/randomness"
	"github.com/vilass86/cardgame/internal/repository"
	"github.com/vilass86/cardgame/internal/service"
	"github.com/vilass86/cardgame/internal/vrf"
	"github.com/vilass86/cardgame/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

var version = "dev"

func main() {
	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogJSON)
	service.InitJWT(cfg.JWTSecret)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	checks := map[string]handlers.Check{}

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		var err error
		rdb, err = db.ConnectRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			logger.Fatal("failed to connect redis", "error", err)
		}
		defer rdb.Close()
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}
	middleware.InitRedisRateLimiter(rdb)

	var (
		host  ledger.Host
		audit *repository.AuditRepository
	)
	switch cfg.LedgerBackend {
	case config.BackendPostgres:
		pool := db.Connect(cfg.DatabaseURL)
		defer pool.Close()
		host = repository.NewStore(pool)
		audit = repository.NewAuditRepository(pool)
		checks["database"] = pool.Ping
	default:
		logger.Warn("using in-memory ledger; state is lost on restart")
		host = ledger.NewMemory()
	}

	// oracle: an external prover behind a Redis stream, or an in-process one
	var (
		oracle randomness.Oracle
		pub    *vrf.PublicKey
		local  *randomness.LocalOracle
	)
	if rdb != nil {
		var err error
		pub, err = vrf.ParsePublicKey(cfg.VRFPublicKey)
		if err != nil {
			logger.Fatal("invalid VRF_PUBLIC_KEY", "error", err)
		}
		oracle = randomness.NewRedisOracle(rdb, cfg.OracleStream)
		logger.Info("redis oracle configured", "stream", cfg.OracleStream)
	} else {
		key, err := vrf.ParsePrivateKey(cfg.VRFSecretKey)
		if err != nil {
			logger.Fatal("invalid VRF_SECRET_KEY", "error", err)
		}
		if cfg.VRFPublicKey != "" && cfg.VRFPublicKey != key.Public().Hex() {
			logger.Fatal("VRF_PUBLIC_KEY does not match VRF_SECRET_KEY")
		}
		pub = key.Public()
		local = randomness.NewLocalOracle(key, cfg.OracleDelay)
		oracle = local
		logger.Warn("in-process oracle configured; the operator holds the VRF key")
	}

	hub := ws.NewHub()
	sinks := []service.EventSink{service.LogSink{}, metrics.Sink{}, hub}
	if audit != nil {
		sinks = append(sinks, service.NewAuditService(audit))
	}

	sessions := service.NewSessionService(
		host,
		randomness.NewCoordinator(pub, oracle),
		escrow.New(cfg.HouseAccount),
		service.Options{
			MinStake:      cfg.MinStake,
			MaxStake:      cfg.MaxStake,
			MaxCapacity:   cfg.MaxCapacity,
			DefaultTTL:    cfg.DefaultTTL,
			MaxTTL:        cfg.MaxTTL,
			RakeBps:       cfg.RakeBps,
			DefaultRanker: cfg.DefaultRanker,
			AutoResolve:   cfg.AutoResolve,
		},
		sinks...,
	)
	if local != nil {
		local.Bind(sessions)
		defer local.Wait()
	}

	h := handlers.NewHandler(sessions, service.NewBalanceService(host))
	h.DevTokens = cfg.AuthDevTokens
	if audit != nil {
		h.Audit = audit
	}

	hub.StartCleanup(ctx)
	go service.NewSweeper(sessions, cfg.SweepInterval).Run(ctx)

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())

	// CORS for a browser client on another origin
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" && (cfg.AllowedOrigin == "*" || origin == cfg.AllowedOrigin) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
			c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		}
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	httpServer.RegisterRoutes(r, httpServer.Deps{
		Handler: h,
		Health:  handlers.NewHealthHandler(version, checks),
		Hub:     hub,
		Config:  cfg,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server started", "port", cfg.AppPort, "backend", cfg.LedgerBackend, "version", version)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("listen failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	logger.Info("server exited")
}
