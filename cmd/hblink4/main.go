package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/dbehnke/hblink4/pkg/config"
	"github.com/dbehnke/hblink4/pkg/events"
	"github.com/dbehnke/hblink4/pkg/logger"
	"github.com/dbehnke/hblink4/pkg/metrics"
	"github.com/dbehnke/hblink4/pkg/server"
)

var (
	version   = "dev"
	gitCommit = "unknown"
	buildTime = "unknown"
)

func main() {
	var configFile string
	var validateOnly bool

	root := &cobra.Command{
		Use:     "hblink4",
		Short:   "hblink4 is a HomeBrew protocol DMR repeater and bridge server",
		Version: fmt.Sprintf("%s (%s, built %s)", version, gitCommit, buildTime),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configFile, validateOnly)
		},
		SilenceUsage: true,
	}
	root.Flags().StringVarP(&configFile, "config", "c", "config.yaml", "path to configuration file")
	root.Flags().BoolVar(&validateOnly, "validate", false, "validate configuration and exit")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(configFile string, validateOnly bool) error {
	startupLog, err := logger.New(logger.Config{Level: "info", Format: "text"})
	if err != nil {
		return fmt.Errorf("failed to initialize startup logger: %w", err)
	}
	startupLog.Info("starting hblink4",
		logger.String("version", version),
		logger.String("commit", gitCommit),
		logger.String("build_time", buildTime))

	cfg, err := config.Load(configFile)
	if err != nil {
		startupLog.Error("failed to load configuration", logger.Error(err))
		return err
	}

	if validateOnly {
		if _, err := cfg.BuildAccessController(); err != nil {
			startupLog.Error("configuration is invalid", logger.Error(err))
			return err
		}
		startupLog.Info("configuration is valid")
		return nil
	}

	log, err := logger.New(cfg.LoggerConfig())
	if err != nil {
		startupLog.Error("failed to initialize logger from config", logger.Error(err))
		return err
	}

	ctrl, err := cfg.BuildAccessController()
	if err != nil {
		log.Error("failed to build access controller", logger.Error(err))
		return err
	}
	outboundConfigs := cfg.BuildOutboundConfigs()
	bridgeRouter := cfg.BuildBridgeRouter()

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	emitter := events.New(events.Config{
		Enabled: cfg.Global.Dashboard.Enabled,
		Network: cfg.Global.Dashboard.Network,
		Address: cfg.Global.Dashboard.Address,
	}, log.WithComponent("events"))

	engineCfg := server.Config{
		BindIPv4:       cfg.Global.BindIPv4,
		PortIPv4:       cfg.Global.PortIPv4,
		BindIPv6:       cfg.Global.BindIPv6,
		PortIPv6:       cfg.Global.PortIPv6,
		DisableIPv6:    cfg.Global.DisableIPv6,
		PingTime:       durationFromSeconds(cfg.Global.PingTime),
		MaxMissed:      cfg.Global.MaxMissed,
		StreamTimeout:  durationFromSeconds(cfg.Global.StreamTimeout),
		StreamHangTime: durationFromSeconds(cfg.Global.StreamHangTime),
		UserCacheTTL:   time.Duration(cfg.Global.UserCache.Timeout) * time.Second,
	}

	engine, err := server.New(engineCfg, ctrl, outboundConfigs, bridgeRouter, emitter, collector, log)
	if err != nil {
		log.Error("failed to build engine", logger.Error(err))
		return err
	}

	metricsServer := metrics.NewServer(metrics.ServerConfig{
		Enabled: cfg.Metrics.Enabled,
		Bind:    cfg.Metrics.Bind,
		Port:    cfg.Metrics.Port,
	}, registry, log.WithComponent("metrics"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := metricsServer.Start(ctx); err != nil && err != context.Canceled {
			log.Error("metrics server error", logger.Error(err))
		}
	}()
	go func() {
		defer wg.Done()
		if err := engine.Run(ctx); err != nil {
			log.Error("engine stopped with error", logger.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("received shutdown signal", logger.String("signal", sig.String()))

	cancel()
	wg.Wait()

	log.Info("hblink4 stopped")
	return nil
}

func durationFromSeconds(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}
