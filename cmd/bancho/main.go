package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dungeongate/bancho/internal/bancho"
	"github.com/dungeongate/bancho/internal/collab"
	"github.com/dungeongate/bancho/internal/irc"
	"github.com/dungeongate/bancho/internal/jobs"
	"github.com/dungeongate/bancho/internal/transport"
	"github.com/dungeongate/bancho/pkg/config"
	"github.com/dungeongate/bancho/pkg/logging"
	"github.com/dungeongate/bancho/pkg/metrics"
)

var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

const serviceName = "bancho"

func main() {
	var (
		configFile  = flag.String("config", "configs/bancho.yaml", "Path to configuration file")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("bancho\nVersion: %s\nBuild Time: %s\nGit Commit: %s\n", version, buildTime, gitCommit)
		return
	}

	cfg, err := loadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(serviceName, cfg.Logging)
	logger.Info("starting bancho", "version", version)

	metricsRegistry := metrics.NewRegistry(serviceName, version, buildTime, gitCommit, logger)
	if cfg.Monitoring.Enabled {
		go func() {
			if err := metricsRegistry.StartMetricsServer(cfg.Monitoring.Addr); err != nil {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		logger.Info("metrics server starting", "address", cfg.Monitoring.Addr)
	}

	repo, closeRepo, err := initRepository(cfg)
	if err != nil {
		logger.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer closeRepo()

	svc := bancho.New(cfg, repo, collab.NewMemoryRanking(), collab.BcryptVerifier{}, collab.NullGeoResolver{}, metricsRegistry.Service, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tcpServer := transport.NewTCPServer(svc, logging.NewServiceLogger(serviceName, "tcp", cfg.Logging))
	if err := tcpServer.Start(ctx, cfg.Server.TCPAddr); err != nil {
		logger.Error("tcp server failed to start", "error", err)
		os.Exit(1)
	}

	httpServer := transport.NewHTTPServer(svc, logging.NewServiceLogger(serviceName, "http", cfg.Logging))
	if err := httpServer.Start(ctx, cfg.Server.HTTPAddr); err != nil {
		logger.Error("http server failed to start", "error", err)
		os.Exit(1)
	}

	ircGateway := irc.NewGateway(svc.Router, svc.Registry, repo, svc.Verifier, logging.NewServiceLogger(serviceName, "irc", cfg.Logging))
	ircListener, err := net.Listen("tcp", cfg.Server.IRCAddr)
	if err != nil {
		logger.Error("irc listener failed to start", "error", err)
		os.Exit(1)
	}
	go func() {
		if err := ircGateway.Serve(ctx, ircListener); err != nil {
			logger.Error("irc gateway failed", "error", err)
		}
	}()
	logger.Info("irc gateway listening", "address", cfg.Server.IRCAddr)

	sweep := jobs.NewSweep(svc.Registry, svc, logging.NewServiceLogger(serviceName, "jobs", cfg.Logging))
	go sweep.Run(ctx)

	waitForShutdown(ctx, cancel, svc, tcpServer, httpServer, metricsRegistry, logger)
}

func loadConfig(path string) (config.Config, error) {
	if _, err := os.Stat(path); err == nil {
		return config.Load(path)
	}

	candidates := []string{
		"./configs/bancho.yaml",
		"/etc/bancho/bancho.yaml",
	}
	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return config.Load(candidate)
		}
	}

	fmt.Fprintf(os.Stderr, "warning: no configuration file found, using defaults\n")
	cfg := config.Default()
	cfg.Logging = logging.LegacyConfig()
	return cfg, nil
}

// initRepository builds the Repository collaborator from the persistence
// driver named in config: "memory" for local development, or one of the
// three SQL drivers wired in collab.SQLRepository.
func initRepository(cfg config.Config) (collab.Repository, func(), error) {
	if cfg.Persistence.Driver == "" || cfg.Persistence.Driver == "memory" {
		return collab.NewMemoryRepository(), func() {}, nil
	}

	repo, err := collab.NewSQLRepository(cfg.Persistence.Driver, cfg.Persistence.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect %s repository: %w", cfg.Persistence.Driver, err)
	}
	return repo, func() { _ = repo.Close() }, nil
}

func waitForShutdown(ctx context.Context, cancel context.CancelFunc, svc *bancho.Service, tcpServer *transport.TCPServer, httpServer *transport.HTTPServer, metricsRegistry *metrics.Registry, logger *slog.Logger) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received, starting graceful shutdown")
	svc.Bus.Fire("shutdown")
	cancel()

	_ = tcpServer.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Error("error stopping http server", "error", err)
	}
	if err := metricsRegistry.StopMetricsServer(shutdownCtx); err != nil {
		logger.Error("error stopping metrics server", "error", err)
	}

	time.Sleep(500 * time.Millisecond)
	logger.Info("bancho shutdown complete")
}
