// Package main is the entry point for the self-modifying daemon: it wires
// the event pipeline, decision engine, module registry/loader, sandbox,
// hot-reload coordinator, state manager, traffic controller, safety
// gatekeeper, loop detector, audit trail, self-upgrade state machine and
// orchestrator together, then runs until a shutdown signal or control
// command arrives.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/autodevd/daemon/internal/adminhttp"
	"github.com/autodevd/daemon/internal/audit"
	"github.com/autodevd/daemon/internal/checkpoint"
	"github.com/autodevd/daemon/internal/config"
	"github.com/autodevd/daemon/internal/controlproto"
	"github.com/autodevd/daemon/internal/decision"
	"github.com/autodevd/daemon/internal/event"
	"github.com/autodevd/daemon/internal/loopdetect"
	"github.com/autodevd/daemon/internal/module"
	"github.com/autodevd/daemon/internal/orchestrator"
	"github.com/autodevd/daemon/internal/reload"
	"github.com/autodevd/daemon/internal/safety"
	"github.com/autodevd/daemon/internal/state"
	"github.com/autodevd/daemon/internal/traffic"
	"github.com/autodevd/daemon/internal/upgrade"
	"github.com/autodevd/daemon/pkg/logger"
)

const (
	serviceName    = "autodevd"
	serviceVersion = "0.1.0"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		showVersion  = flag.Bool("version", false, "Show version information")
		showHelp     = flag.Bool("help", false, "Show help information")
		configPath   = flag.String("config", "", "Path to a YAML config file")
		restoreState = flag.String("restore-state", "", "Path to a state-handoff file written by a self-upgrade, consumed once on startup")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s version %s\n", serviceName, serviceVersion)
		return 0
	}
	if *showHelp {
		fmt.Printf("%s - autonomous self-modifying development daemon\n\n", serviceName)
		fmt.Printf("Usage: %s [options]\n\n", os.Args[0])
		flag.PrintDefaults()
		return 0
	}

	cfg, err := config.LoadDaemonConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 1
	}

	log := logger.NewLogger(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	log.Info("starting", "service", serviceName, "version", serviceVersion, "mode", cfg.Mode)

	l := newLayout(cfg.DataDir)
	if err := l.ensure(); err != nil {
		log.Error("failed to create on-disk layout", "error", err)
		return 1
	}

	if *restoreState != "" {
		restoreHandoffState(log, *restoreState)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := buildDaemon(ctx, cfg, l, log)
	if err != nil {
		log.Error("failed to wire daemon components", "error", err)
		return 1
	}
	defer d.close()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return d.orch.Run(gctx) })
	g.Go(func() error {
		if err := d.control.Serve(gctx); err != nil {
			log.Warn("control protocol server stopped", "error", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := d.admin.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn("admin http server stopped", "error", err)
		}
		return nil
	})

	// SIGHUP triggers a hot-reload sweep rather than process restart,
	// mirroring the teacher's debounced config-reload signal handler.
	sighup := make(chan os.Signal, 1)
	signal.Notify(sighup, syscall.SIGHUP)
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-sighup:
				log.Info("SIGHUP received, scheduling a module reload sweep")
				d.watcher.QueueUserCommand("sighup", map[string]string{"action": "reload-sweep"})
			}
		}
	})

	<-ctx.Done()
	log.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_ = d.orch.Submit(shutdownCtx, orchestrator.ControlCommand{Kind: orchestrator.CmdStop})
	_ = d.admin.Shutdown(shutdownCtx)
	_ = d.control.Close()

	if err := g.Wait(); err != nil && err != context.Canceled {
		log.Error("daemon exited with error", "error", err)
		return 1
	}
	log.Info("shutdown complete")
	return 0
}

func restoreHandoffState(log *slog.Logger, path string) {
	state, err := upgrade.Load(path)
	if err != nil {
		log.Warn("failed to load state-handoff file", "path", path, "error", err)
		return
	}
	if err := upgrade.Restore(state); err != nil {
		log.Warn("failed to restore environment from state-handoff file", "path", path, "error", err)
		return
	}
	log.Info("restored state from self-upgrade handoff", "path", path, "previous_version", state.Version)
	_ = os.Remove(path)
}

// daemon bundles every long-lived component main needs to start, run and
// stop, so close() can release them in one place.
type daemon struct {
	orch    *orchestrator.Orchestrator
	watcher *event.Watcher
	control *controlproto.Server
	admin   *http.Server

	auditTrail *audit.Trail
	stateMgr   *state.Manager
}

func (d *daemon) close() {
	if d.auditTrail != nil {
		_ = d.auditTrail.Verify(context.Background(), 0)
	}
	if d.stateMgr != nil {
		_ = d.stateMgr // snapshots live in the store; nothing to flush explicitly
	}
}

func buildDaemon(ctx context.Context, cfg *config.DaemonConfig, l layout, log *slog.Logger) (*daemon, error) {
	auditStore, err := newAuditStore(ctx, cfg, l)
	if err != nil {
		return nil, fmt.Errorf("audit store: %w", err)
	}
	trail, err := audit.NewTrail(ctx, auditStore, nil, log)
	if err != nil {
		return nil, fmt.Errorf("audit trail: %w", err)
	}
	rec := auditAdapter{trail: trail}

	pipeline := event.NewPipeline(event.Config{
		DedupWindow:     cfg.Event.DedupWindow,
		RateLimitPerMin: cfg.Event.RateLimitPerMin,
		RateLimitWindow: cfg.Event.RateLimitWindow,
		Logger:          log,
		Metrics:         event.NewMetrics(prometheus.DefaultRegisterer),
	})
	watchDirs := cfg.Event.WatchDirs
	if len(watchDirs) == 0 {
		watchDirs = []string{l.modules}
	}
	watcher, err := event.NewWatcher(pipeline, []string{"spec"}, cfg.Event.HealthTick, log)
	if err != nil {
		return nil, fmt.Errorf("watcher: %w", err)
	}
	for _, dir := range watchDirs {
		if err := watcher.Add(dir); err != nil {
			log.Warn("failed to watch directory", "dir", dir, "error", err)
		}
	}

	cache, err := decision.NewCacheTier(cfg.Decision.CacheCapacity, cfg.Decision.CacheTTL)
	if err != nil {
		return nil, fmt.Errorf("decision cache: %w", err)
	}
	engine := decision.NewEngine(decision.Config{
		Patterns:  decision.NewPatternIndex(),
		Templates: decision.NewTemplateIndex(),
		Cache:     cache,
		Similar:   decision.NewSimilarityIndex(),
		Budget:    decision.NewBudget(cfg.Decision.DailyTokenBudget),
		Breaker:   decision.NewCircuitBreaker(cfg.Decision.BreakerThreshold, cfg.Decision.BreakerCooldown),
		Logger:    log,
	})

	registry := module.NewRegistry()
	loader := module.NewLoader(registry, nativeModuleFactory, log)

	stateStore, err := newStateStore(ctx, cfg, l)
	if err != nil {
		return nil, fmt.Errorf("state store: %w", err)
	}
	stateMgr := state.NewManager(state.Config{
		RingCapacity: cfg.State.RingCapacity,
		Store:        stateStore,
		FullEvery:    cfg.State.FullEvery,
		Logger:       log,
	})

	trafficCtl := traffic.NewController(traffic.Config{Audit: auditTrafficAdapter{rec: rec}})

	reloadCoord := reload.NewCoordinator(reload.Config{
		Registry: registry,
		Loader:   loader,
		Traffic:  trafficCtl,
		State:    stateMgr,
		Verifier: reload.NewDefaultVerifier(nil),
		Audit:    rec,
		Logger:   log,
		Policy:   reload.DefaultPolicy(),
	})

	checkpoints := checkpoint.NewStore(100)
	checker := checkpoint.NewChecker(checkpoints)

	gateChain := safety.NewGateChain(false,
		safety.NewStaticGate(20, 50),
		safety.NewSemanticGate(nil),
		safety.NewSecurityGate(nil, nil),
		safety.NewPerformanceGate(500, nil),
		safety.NewReversibilityGate(checker),
	)

	loopGuard := loopdetect.New(loopdetect.Config{
		Cooldown:      cfg.LoopDetect.Cooldown,
		MaxPerMinute:  cfg.LoopDetect.MaxPerMinute,
		CriticalPaths: cfg.LoopDetect.CriticalPaths,
	})

	binaryPath := cfg.Upgrade.BinaryPath
	if binaryPath == "" {
		if exe, err := os.Executable(); err == nil {
			binaryPath = exe
		}
	}
	upgrader := upgrade.NewUpgrader(upgrade.Deps{
		Config: upgrade.Config{
			BinaryPath:          binaryPath,
			StagingDir:          l.staging,
			BackupDir:           l.backups,
			VerificationTimeout: cfg.Upgrade.VerificationTimeout,
			KeepVersions:        cfg.Upgrade.KeepVersions,
			BuildCommand:        cfg.Upgrade.BuildCommand,
			DryRun:              cfg.Upgrade.DryRun,
		},
		Audit:  rec,
		Logger: log,
	})

	mode := parseMode(cfg.Mode)
	status := &statusAdapter{startedAt: time.Now()}
	orch := orchestrator.New(orchestrator.Config{
		Events:           countingEvents{pipeline: pipeline, status: status},
		Decisions:        engine,
		Gates:            gateChain,
		Proposer:         &noopProposer{logger: log},
		Executor:         &moduleExecutor{logger: log},
		Applier:          &moduleApplier{reloadCoord: reloadCoord, upgrader: upgrader, version: serviceVersion, logger: log},
		Checkpoints:      checkpointAdapter{store: checkpoints},
		LoopGuard:        loopGuard,
		Audit:            rec,
		Logger:           log,
		Mode:             mode,
		MaxChangesPerDay: cfg.MaxChangesPerDay,
	})
	status.orch = orch

	control, err := controlproto.Listen(l.controlPortFile(), controlproto.Deps{
		Status:  status,
		Metrics: metricsAdapter{engine: engine},
		Queue:   pipeline,
		Shutdown: shutdownFunc(func(reason string) {
			log.Info("control protocol requested shutdown", "reason", reason)
			go func() { _ = orch.Submit(context.Background(), orchestrator.ControlCommand{Kind: orchestrator.CmdStop}) }()
		}),
		Logger: log,
	})
	if err != nil {
		return nil, fmt.Errorf("control protocol: %w", err)
	}

	adminRouter := adminhttp.NewRouter(adminhttp.Config{Health: status, Logger: log})
	adminSrv := &http.Server{Addr: cfg.Admin.Addr, Handler: adminRouter}

	return &daemon{
		orch:       orch,
		watcher:    watcher,
		control:    control,
		admin:      adminSrv,
		auditTrail: trail,
		stateMgr:   stateMgr,
	}, nil
}

func parseMode(m string) orchestrator.Mode {
	switch m {
	case "assisted":
		return orchestrator.ModeAssisted
	case "semi_autonomous":
		return orchestrator.ModeSemiAutonomous
	case "fully_autonomous":
		return orchestrator.ModeFullyAutonomous
	default:
		return orchestrator.ModeObservation
	}
}

// shutdownFunc adapts a bare function to controlproto.Shutdowner.
type shutdownFunc func(reason string)

func (f shutdownFunc) RequestShutdown(reason string) { f(reason) }

// auditTrafficAdapter narrows auditAdapter (action/initiator/result/ref)
// down to traffic.AuditLogger's (moduleID, action, reason) shape.
type auditTrafficAdapter struct {
	rec auditAdapter
}

func (a auditTrafficAdapter) Record(moduleID, action, reason string) {
	_ = a.rec.Append(context.Background(), action, moduleID, reason, "")
}

func newAuditStore(ctx context.Context, cfg *config.DaemonConfig, l layout) (audit.Store, error) {
	switch cfg.Audit.Backend {
	case "sqlite":
		path := cfg.Audit.DSN
		if path == "" {
			path = filepath.Join(l.root, "audit.db")
		}
		return audit.NewSQLiteStore(ctx, path, nil)
	case "postgres":
		return audit.NewPostgresStore(ctx, cfg.Audit.DSN, nil)
	default:
		return audit.NewMemStore(), nil
	}
}

func newStateStore(ctx context.Context, cfg *config.DaemonConfig, l layout) (state.Store, error) {
	switch cfg.State.Backend {
	case "sqlite":
		path := cfg.State.DSN
		if path == "" {
			path = filepath.Join(l.snapshots, "state.db")
		}
		return state.NewSQLiteStore(ctx, path, nil)
	case "postgres":
		return state.NewPostgresStore(ctx, cfg.State.DSN, nil)
	default:
		return nil, nil
	}
}

