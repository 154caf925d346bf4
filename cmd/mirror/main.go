package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/copyfx/mirror/internal/engine"
	"github.com/copyfx/mirror/internal/journal"
	"github.com/copyfx/mirror/internal/ops"
	"github.com/copyfx/mirror/internal/symbolmap"
	"github.com/copyfx/mirror/internal/transport"
	"github.com/copyfx/mirror/internal/venue"
	"github.com/copyfx/mirror/pkg/config"
	"github.com/copyfx/mirror/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "config file path (.yaml)")
	dryRun := flag.Bool("dry-run", false, "log events instead of POSTing them")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *dryRun {
		cfg.DryRun = true
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.LogLevel,
		OutputFile: cfg.LogFile,
		MaxSize:    100,
		MaxBackups: 3,
		MaxAge:     7,
		Compress:   true,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	mapper := symbolmap.New(cfg.SymbolMap.StripPrefixes, cfg.SymbolMap.StripSuffixes, cfg.SymbolMap.Overrides)
	gateway := venue.NewClient(cfg.GatewayURL, cfg.BridgeTimeout.D())

	var deliverer engine.Deliverer
	var bridge *transport.Bridge
	if cfg.DryRun {
		logrus.Info("dry-run enabled, events will be logged only")
		deliverer = transport.NewDryRunDeliverer(mapper)
	} else {
		bridge = transport.NewBridge(cfg.BridgeURL, cfg.BridgeTimeout.D(), mapper)
		deliverer = bridge
	}

	eng := engine.New(engine.Config{
		Magic:           cfg.Magic,
		PollInterval:    cfg.PollInterval.D(),
		Retention:       cfg.DedupWindow.D(),
		NotifyDebounce:  cfg.NotifyDebounce.D(),
		DeliveryTimeout: cfg.BridgeTimeout.D(),
	}, gateway, deliverer)

	var jnl *journal.Journal
	if cfg.JournalPath != "" {
		jnl, err = journal.Open(cfg.JournalPath)
		if err != nil {
			logrus.Errorf("open journal: %v", err)
			os.Exit(1)
		}
		defer jnl.Close()
		eng.SetRecorder(jnl)
	}

	// Startup connectivity check against the gateway; the bridge may come up
	// later, delivery failures are tolerated by design.
	pingCtx, pingCancel := context.WithTimeout(rootCtx, 10*time.Second)
	if err := gateway.Ping(pingCtx); err != nil {
		pingCancel()
		logrus.Errorf("gateway unreachable: %v", err)
		os.Exit(1)
	}
	pingCancel()

	if err := eng.Prime(rootCtx); err != nil {
		logrus.Errorf("prime snapshot: %v", err)
		os.Exit(1)
	}

	if cfg.GatewayWSURL != "" {
		stream := venue.NewStream(cfg.GatewayWSURL, eng.HandleOrderTerminal)
		go stream.Run(rootCtx)
	} else {
		logrus.Warn("no notification stream configured, relying on polling only")
	}

	var opsServer *ops.Server
	if cfg.OpsAddr != "" {
		var bridgePinger ops.Pinger
		if bridge != nil {
			bridgePinger = bridge
		}
		opsServer = ops.NewServer(cfg.OpsAddr, eng, jnl, bridgePinger, gateway)
		opsServer.Start()
	}

	go eng.Run(rootCtx)
	logrus.Info("mirror started, press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	logrus.Info("shutdown signal received, stopping...")
	rootCancel()

	if opsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := opsServer.Shutdown(shutdownCtx); err != nil {
			logrus.Warnf("ops server shutdown: %v", err)
		}
		cancel()
	}
	logrus.Info("mirror stopped")
}
