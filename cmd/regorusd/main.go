// regorusd -- link-layer neighbor discovery daemon.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime/trace"
	"syscall"
	"time"

	"connectrpc.com/grpchealth"
	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/sync/errgroup"

	"github.com/dantte-lp/regorus/internal/config"
	regorusmetrics "github.com/dantte-lp/regorus/internal/metrics"
	"github.com/dantte-lp/regorus/internal/netio"
	"github.com/dantte-lp/regorus/internal/regorus"
	"github.com/dantte-lp/regorus/internal/server"
	appversion "github.com/dantte-lp/regorus/internal/version"
	"github.com/dantte-lp/regorus/pkg/regorusapi"
)

// shutdownTimeout is the maximum time to wait for HTTP servers to drain
// active connections during graceful shutdown.
const shutdownTimeout = 10 * time.Second

// flightRecorderMinAge is the minimum window age for the flight recorder.
// Captures the last 2s of execution traces, enough for two retry ticks.
const flightRecorderMinAge = 2 * time.Second

// flightRecorderMaxBytes is the upper bound on flight recorder window size.
const flightRecorderMaxBytes = 2 * 1024 * 1024 // 2 MiB

func main() {
	os.Exit(run())
}

func run() int {
	// 1. Parse flags.
	configPath := flag.String("config", "", "path to configuration file (YAML)")
	traceDump := flag.String("trace-dump", "", "write the flight recorder window to this file on shutdown")
	flag.Parse()

	// 2. Load config.
	cfg, err := loadConfig(*configPath)
	if err != nil {
		// Logger is not set up yet; use a temporary stderr logger.
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("failed to load configuration",
			slog.String("error", err.Error()),
		)
		return 1
	}

	// 3. Set up logger with dynamic level support for SIGHUP reload.
	logLevel := new(slog.LevelVar)
	logLevel.Set(config.ParseLogLevel(cfg.Log.Level))
	logger := newLoggerWithLevel(cfg.Log, logLevel)

	logger.Info("regorusd starting",
		slog.String("version", appversion.Version),
		slog.String("api_addr", cfg.API.Addr),
		slog.String("metrics_addr", cfg.Metrics.Addr),
		slog.String("ethertype", fmt.Sprintf("%#04x", cfg.Engine.EtherType)),
	)

	// 4. Start flight recorder for post-mortem debugging.
	fr := startFlightRecorder(logger)

	// 5. Create Prometheus metrics collector.
	reg := prometheus.NewRegistry()
	collector := regorusmetrics.NewCollector(reg)

	// 6. Create ports, receiver and engine. Ports resolve interfaces for the
	// engine and hand every opened socket to the receiver.
	recv := netio.NewReceiver(logger)
	ports := netio.NewPorts(netio.NetlinkResolver{}, netio.OpenFrameConn, cfg.Engine.EtherType, logger,
		netio.WithPortHook(recv.Attach),
	)
	defer closePorts(ports, logger)

	engine := regorus.NewEngine(ports, logger,
		regorus.WithMetrics(collector),
		regorus.WithRetryBudget(cfg.Engine.RetryBudget),
		regorus.WithRetryInterval(cfg.Engine.RetryInterval),
		regorus.WithEtherType(cfg.Engine.EtherType),
		regorus.WithQueueCapacity(cfg.Engine.QueueCapacity),
	)
	defer engine.Close()

	d := &daemonState{
		cfg:        cfg,
		configPath: *configPath,
		traceDump:  *traceDump,
		logLevel:   logLevel,
		engine:     engine,
		ports:      ports,
		recv:       recv,
		collector:  collector,
		reg:        reg,
		fr:         fr,
		logger:     logger,
	}

	// 7. Run servers.
	if err := d.run(); err != nil {
		logger.Error("regorusd exited with error",
			slog.String("error", err.Error()),
		)
		return 1
	}

	logger.Info("regorusd stopped")
	return 0
}

// daemonState bundles the long-lived components wired by run.
type daemonState struct {
	cfg        *config.Config
	configPath string
	traceDump  string
	logLevel   *slog.LevelVar

	engine    *regorus.Engine
	ports     *netio.Ports
	recv      *netio.Receiver
	collector *regorusmetrics.Collector
	reg       *prometheus.Registry
	fr        *trace.FlightRecorder

	logger *slog.Logger
}

// run sets up and runs the engine, receive loops, link monitor, API and
// metrics servers using an errgroup with a signal-aware context for
// graceful shutdown.
func (d *daemonState) run() error {
	metricsSrv := newMetricsServer(d.cfg.Metrics, d.reg)
	apiSrv := newAPIServer(d.cfg.API, d.engine, d.logger)

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	// Dispatcher: the single consumer of the work queue.
	g.Go(func() error {
		return d.engine.Run(gCtx)
	})

	// Receive loops for every opened port, delivering into the engine.
	g.Go(func() error {
		return d.recv.Run(gCtx, d.engine)
	})

	// Listen-only ports answer peers' Pings without a local card.
	d.openListenPorts()

	d.startLinkMonitor(gCtx, g)
	startHTTPServers(gCtx, g, d.cfg, apiSrv, metricsSrv, d.logger)
	d.startDaemonGoroutines(gCtx, g)

	// Reconcile declarative probes from config at startup.
	d.reconcileProbes(gCtx, d.cfg)

	notifyReady(d.logger)

	// Shutdown goroutine: waits for context cancellation.
	g.Go(func() error {
		<-gCtx.Done()
		return d.gracefulShutdown(gCtx, apiSrv, metricsSrv)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("run servers: %w", err)
	}
	return nil
}

// openListenPorts opens the configured listen interfaces. Failures are
// logged; the daemon keeps running with the ports it could open.
func (d *daemonState) openListenPorts() {
	for _, name := range d.cfg.Engine.Listen {
		if _, err := d.ports.Open(name); err != nil {
			d.logger.Warn("failed to open listen port",
				slog.String("interface", name),
				slog.String("error", err.Error()),
			)
		}
	}
}

// closePorts closes every open port, logging any error.
func closePorts(ports *netio.Ports, logger *slog.Logger) {
	if err := ports.Close(); err != nil {
		logger.Warn("failed to close ports",
			slog.String("error", err.Error()),
		)
	}
}

// -------------------------------------------------------------------------
// Link Monitor — netlink link updates -> engine + ports
// -------------------------------------------------------------------------

// startLinkMonitor runs the interface monitor and applies its events.
func (d *daemonState) startLinkMonitor(ctx context.Context, g *errgroup.Group) {
	mon := netio.NewInterfaceMonitor(d.logger)

	g.Go(func() error {
		// Link tracking is advisory; discovery keeps working without it.
		if err := mon.Run(ctx); err != nil {
			d.logger.Warn("link monitor stopped",
				slog.String("error", err.Error()),
			)
		}
		return nil
	})

	g.Go(func() error {
		for ev := range mon.Events() {
			d.applyLinkEvent(ev)
		}
		return mon.Close()
	})
}

// applyLinkEvent updates the port's running flag and the card's link
// state. Events for interfaces without a port are ignored.
func (d *daemonState) applyLinkEvent(ev netio.InterfaceEvent) {
	up := ev.Up && !ev.Removed
	if !d.ports.SetRunning(ev.IfName, up) {
		return
	}

	d.engine.LinkChanged(ev.IfName, up)

	state := "down"
	switch {
	case ev.Removed:
		state = "removed"
	case up:
		state = "up"
	}
	d.collector.IncLinkEvents(ev.IfName, state)
}

// startHTTPServers registers the API and metrics HTTP server goroutines.
func startHTTPServers(
	ctx context.Context,
	g *errgroup.Group,
	cfg *config.Config,
	apiSrv *http.Server,
	metricsSrv *http.Server,
	logger *slog.Logger,
) {
	lc := net.ListenConfig{}

	g.Go(func() error {
		logger.Info("API server listening", slog.String("addr", cfg.API.Addr))
		return listenAndServe(ctx, &lc, apiSrv, cfg.API.Addr)
	})

	g.Go(func() error {
		logger.Info("metrics server listening",
			slog.String("addr", cfg.Metrics.Addr),
			slog.String("path", cfg.Metrics.Path),
		)
		return listenAndServe(ctx, &lc, metricsSrv, cfg.Metrics.Addr)
	})
}

// startDaemonGoroutines registers the watchdog and SIGHUP reload goroutines.
func (d *daemonState) startDaemonGoroutines(ctx context.Context, g *errgroup.Group) {
	g.Go(func() error {
		return runWatchdog(ctx, d.logger)
	})

	sigHUP := make(chan os.Signal, 1)
	signal.Notify(sigHUP, syscall.SIGHUP)
	g.Go(func() error {
		defer signal.Stop(sigHUP)
		d.handleSIGHUP(ctx, sigHUP)
		return nil
	})
}

// -------------------------------------------------------------------------
// Systemd Integration — sd_notify + watchdog
// -------------------------------------------------------------------------

// notifyReady sends READY=1 to systemd.
func notifyReady(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		logger.Warn("failed to notify systemd readiness",
			slog.String("error", err.Error()),
		)
		return
	}
	if sent {
		logger.Info("notified systemd: READY")
	}
}

// notifyStopping sends STOPPING=1 to systemd.
func notifyStopping(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyStopping)
	if err != nil {
		logger.Warn("failed to notify systemd stopping",
			slog.String("error", err.Error()),
		)
		return
	}
	if sent {
		logger.Info("notified systemd: STOPPING")
	}
}

// runWatchdog sends keepalives to systemd at half of WatchdogSec. It
// returns immediately when no watchdog is configured.
func runWatchdog(ctx context.Context, logger *slog.Logger) error {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		logger.Warn("failed to check systemd watchdog",
			slog.String("error", err.Error()),
		)
		return nil
	}
	if interval == 0 {
		logger.Debug("systemd watchdog not configured, skipping keepalive")
		return nil
	}

	tickInterval := interval / 2
	logger.Info("systemd watchdog enabled",
		slog.Duration("watchdog_sec", interval),
		slog.Duration("keepalive_interval", tickInterval),
	)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, wdErr := daemon.SdNotify(false, daemon.SdNotifyWatchdog); wdErr != nil {
				logger.Warn("failed to send watchdog keepalive",
					slog.String("error", wdErr.Error()),
				)
			}
		}
	}
}

// -------------------------------------------------------------------------
// SIGHUP Reload — log level + probe reconciliation
// -------------------------------------------------------------------------

// handleSIGHUP reloads configuration on every SIGHUP until ctx is done.
func (d *daemonState) handleSIGHUP(ctx context.Context, sigHUP <-chan os.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sigHUP:
			d.logger.Info("received SIGHUP, reloading configuration")
			d.reloadConfig(ctx)
		}
	}
}

// reloadConfig loads a fresh configuration, updates the log level and
// creates cards for newly declared probes. Engine parameters (retry
// budget, interval, ethertype) take effect only on restart. Errors keep
// the previous configuration in effect.
func (d *daemonState) reloadConfig(ctx context.Context) {
	newCfg, err := loadConfig(d.configPath)
	if err != nil {
		d.logger.Error("failed to reload configuration, keeping current settings",
			slog.String("error", err.Error()),
		)
		return
	}

	oldLevel := d.logLevel.Level()
	newLevel := config.ParseLogLevel(newCfg.Log.Level)
	d.logLevel.Set(newLevel)

	d.logger.Info("configuration reloaded",
		slog.String("old_log_level", oldLevel.String()),
		slog.String("new_log_level", newLevel.String()),
	)

	if engineSettingsChanged(d.cfg.Engine, newCfg.Engine) {
		d.logger.Warn("engine settings changed, restart required to apply them")
	}

	d.reconcileProbes(ctx, newCfg)
}

// engineSettingsChanged reports whether a reload touched settings that are
// fixed for the lifetime of the engine.
func engineSettingsChanged(old, cur config.EngineConfig) bool {
	return old.RetryBudget != cur.RetryBudget ||
		old.RetryInterval != cur.RetryInterval ||
		old.EtherType != cur.EtherType ||
		old.QueueCapacity != cur.QueueCapacity
}

// reconcileProbes ensures a card exists for every declarative probe.
// Cards are never removed.
func (d *daemonState) reconcileProbes(ctx context.Context, cfg *config.Config) {
	desired := cfg.ProbeInterfaces()
	if len(desired) == 0 {
		d.logger.Debug("no declarative probes in config, skipping reconciliation")
		return
	}

	created, err := d.engine.ReconcileProbes(ctx, desired)
	if err != nil {
		d.logger.Warn("some declarative probes failed",
			slog.String("error", err.Error()),
		)
	}

	d.logger.Info("declarative probes reconciled",
		slog.Int("desired", len(desired)),
		slog.Int("created", created),
	)
}

// -------------------------------------------------------------------------
// Graceful Shutdown — stop engine + dump trace + stop servers
// -------------------------------------------------------------------------

// gracefulShutdown signals systemd, closes the engine so pending work and
// timers are released, dumps the flight recorder and shuts down the HTTP
// servers.
//
// The parent context is already cancelled when this function is called.
func (d *daemonState) gracefulShutdown(ctx context.Context, servers ...*http.Server) error {
	d.logger.Info("initiating graceful shutdown")
	notifyStopping(d.logger)

	// Close before the servers so WatchCards streams end.
	d.engine.Close()

	if d.fr != nil {
		d.dumpFlightRecorder()
		d.fr.Stop()
		d.logger.Debug("flight recorder stopped")
	}

	// context.WithoutCancel detaches from the parent's cancellation so we
	// can enforce our own drain timeout.
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	var shutdownErr error
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			shutdownErr = errors.Join(shutdownErr, fmt.Errorf("shutdown server: %w", err))
		}
	}
	return shutdownErr
}

// -------------------------------------------------------------------------
// Flight Recorder — Go 1.26 runtime/trace
// -------------------------------------------------------------------------

// startFlightRecorder starts a rolling execution trace window that can be
// written out on shutdown.
func startFlightRecorder(logger *slog.Logger) *trace.FlightRecorder {
	fr := trace.NewFlightRecorder(trace.FlightRecorderConfig{
		MinAge:   flightRecorderMinAge,
		MaxBytes: flightRecorderMaxBytes,
	})

	if err := fr.Start(); err != nil {
		logger.Warn("failed to start flight recorder",
			slog.String("error", err.Error()),
		)
		return nil
	}

	logger.Info("flight recorder started",
		slog.Duration("min_age", flightRecorderMinAge),
		slog.Uint64("max_bytes", flightRecorderMaxBytes),
	)

	return fr
}

// dumpFlightRecorder writes the current trace window to the -trace-dump
// file, if one was given.
func (d *daemonState) dumpFlightRecorder() {
	if d.traceDump == "" {
		return
	}

	f, err := os.Create(d.traceDump)
	if err != nil {
		d.logger.Warn("failed to create trace dump",
			slog.String("path", d.traceDump),
			slog.String("error", err.Error()),
		)
		return
	}

	n, err := d.fr.WriteTo(f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		d.logger.Warn("failed to write trace dump",
			slog.String("path", d.traceDump),
			slog.String("error", err.Error()),
		)
		return
	}

	d.logger.Info("flight recorder dumped",
		slog.String("path", d.traceDump),
		slog.Int64("bytes", n),
	)
}

// -------------------------------------------------------------------------
// Server Setup
// -------------------------------------------------------------------------

// listenAndServe creates a TCP listener using the ListenConfig and serves
// HTTP requests until the server is shut down.
func listenAndServe(ctx context.Context, lc *net.ListenConfig, srv *http.Server, addr string) error {
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve on %s: %w", addr, err)
	}
	return nil
}

// newMetricsServer creates an HTTP server for the Prometheus metrics endpoint.
func newMetricsServer(cfg config.MetricsConfig, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// newAPIServer creates an HTTP server for the ConnectRPC control API,
// wrapped with h2c so gRPC clients can connect over plaintext HTTP/2.
// Includes standard gRPC health checking (grpc.health.v1).
func newAPIServer(cfg config.APIConfig, engine *regorus.Engine, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()

	path, handler := server.New(engine, logger,
		server.LoggingInterceptorOption(logger),
		server.RecoveryInterceptorOption(logger),
	)
	mux.Handle(path, handler)

	checker := grpchealth.NewStaticChecker(
		grpchealth.HealthV1ServiceName,
		regorusapi.ServiceName,
	)
	mux.Handle(grpchealth.NewHandler(checker))

	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           h2c.NewHandler(mux, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// loadConfig loads configuration from a file path or returns defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load config from %s: %w", path, err)
		}
		return cfg, nil
	}
	return config.DefaultConfig(), nil
}

// newLoggerWithLevel creates a structured logger using a shared LevelVar
// for dynamic log level changes via SIGHUP reload.
func newLoggerWithLevel(cfg config.LogConfig, level *slog.LevelVar) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
