// Package main runs the arcade lobby: the control listener that admits
// players, the engine registry that hosts the game room, and the optional
// cycle audit log.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"net/netip"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/cory-johannsen/wamlobby/internal/config"
	"github.com/cory-johannsen/wamlobby/internal/driver"
	"github.com/cory-johannsen/wamlobby/internal/engine"
	"github.com/cory-johannsen/wamlobby/internal/frontend/control"
	"github.com/cory-johannsen/wamlobby/internal/frontend/status"
	"github.com/cory-johannsen/wamlobby/internal/lobby"
	"github.com/cory-johannsen/wamlobby/internal/observability"
	"github.com/cory-johannsen/wamlobby/internal/server"
	"github.com/cory-johannsen/wamlobby/internal/storage/postgres"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "", "path to configuration file (defaults and ARCADE_* env when empty)")
	healthInterval := flag.Duration("db-health-interval", 30*time.Second, "audit-log database health check interval")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting lobby",
		zap.String("control_addr", cfg.Lobby.Addr()),
		zap.String("engine_addr", cfg.Engine.Addr()),
		zap.String("room", cfg.Engine.RoomName),
	)

	ctx := context.Background()
	lifecycle := server.NewLifecycle(logger)

	// Cycle audit log
	var (
		recorder lobby.Recorder
		cycles   status.CycleReader
		dbHealth status.HealthChecker
	)
	if cfg.Database.Enabled {
		dbStart := time.Now()
		pool, err := postgres.NewPool(ctx, cfg.Database)
		if err != nil {
			logger.Fatal("connecting to database", zap.Error(err))
		}
		logger.Info("database connected",
			zap.String("host", cfg.Database.Host),
			zap.Int("port", cfg.Database.Port),
			zap.String("database", cfg.Database.Name),
			zap.Duration("elapsed", time.Since(dbStart)),
		)
		repo := postgres.NewCycleRepository(pool.DB())
		recorder, cycles, dbHealth = repo, repo, pool
		lifecycle.Add("postgres", healthService(pool, *healthInterval, logger))
	}

	// Engine registry
	engineLog := observability.Component(logger, "engine")
	registry := engine.NewRegistry()
	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(engine.UnaryLogging(engineLog)))
	engine.Register(grpcServer, engine.NewService(registry, engineLog))

	engineLis, err := net.Listen("tcp", cfg.Engine.Addr())
	if err != nil {
		logger.Fatal("listening for engine registry", zap.String("addr", cfg.Engine.Addr()), zap.Error(err))
	}
	lifecycle.Add("engine", &server.FuncService{
		StartFn: func() error {
			logger.Info("engine registry listening", zap.String("addr", engineLis.Addr().String()))
			return grpcServer.Serve(engineLis)
		},
		StopFn: grpcServer.GracefulStop,
	})

	engineConn, err := grpc.NewClient(engineLis.Addr().String(),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		logger.Fatal("creating engine client", zap.Error(err))
	}
	defer engineConn.Close()

	// Coordinator and control channel
	settings, err := sessionSettings(cfg)
	if err != nil {
		logger.Fatal("building session settings", zap.Error(err))
	}
	coord := lobby.NewCoordinator(
		settings,
		engine.NewHost(registry, engineConn, cfg.Engine.RoomName, cfg.Engine.BoardSize, engineLog),
		driver.NewAnnouncer(cfg.Engine.RoomName, cfg.Driver, observability.Component(logger, "driver")),
		recorder,
		observability.Component(logger, "coordinator"),
	)

	controlLog := observability.Component(logger, "control")
	acceptor := control.NewAcceptor(cfg.Lobby, lobby.NewHandler(coord, controlLog), controlLog)
	lifecycle.Add("control", &server.FuncService{
		StartFn: acceptor.ListenAndServe,
		StopFn: func() {
			acceptor.Stop()
			coord.ResetSession(context.Background())
			drainCtx, cancel := context.WithTimeout(context.Background(), cfg.Engine.CallTimeout)
			defer cancel()
			if err := coord.Close(drainCtx); err != nil {
				logger.Warn("draining audit events", zap.Error(err))
			}
		},
	})

	if cfg.Status.Enabled {
		statusLog := observability.Component(logger, "status")
		statusSrv := status.NewServer(cfg.Status, status.NewRouter(coord, cycles, dbHealth, statusLog), statusLog)
		lifecycle.Add("status", &server.FuncService{
			StartFn: statusSrv.ListenAndServe,
			StopFn:  statusSrv.Stop,
		})
	}

	logger.Info("lobby initialized",
		zap.Duration("startup", time.Since(start)),
		zap.Bool("audit_log", recorder != nil),
	)

	if err := lifecycle.Run(ctx); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

// sessionSettings converts the session section into coordinator settings.
func sessionSettings(cfg config.Config) (lobby.Settings, error) {
	s := lobby.Settings{
		GamePort:    cfg.Session.GamePort,
		Host:        cfg.Session.AdvertiseHost,
		CallTimeout: cfg.Engine.CallTimeout,
	}
	if cfg.Session.BroadcastGroup != "" {
		group, err := netip.ParseAddr(cfg.Session.BroadcastGroup)
		if err != nil {
			return lobby.Settings{}, fmt.Errorf("parsing broadcast group: %w", err)
		}
		s.Group = group
	}
	return s, nil
}

// healthService pings the audit-log database until stopped, then closes the pool.
func healthService(pool *postgres.Pool, every time.Duration, logger *zap.Logger) server.Service {
	done := make(chan struct{})
	return &server.FuncService{
		StartFn: func() error {
			ticker := time.NewTicker(every)
			defer ticker.Stop()
			for {
				select {
				case <-done:
					return nil
				case <-ticker.C:
					if err := pool.Health(context.Background(), 5*time.Second); err != nil {
						logger.Warn("database health check failed", zap.Error(err))
					}
				}
			}
		},
		StopFn: func() {
			close(done)
			pool.Close()
		},
	}
}
