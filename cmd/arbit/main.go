// Command arbit is the operator-facing CLI: it loads configuration, wires
// one or more venue adapters, and either runs the live supervisor(s) or
// answers one of the read-only diagnostic subcommands.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/arbitgo/triarb/internal/attempt"
	"github.com/arbitgo/triarb/internal/config"
	"github.com/arbitgo/triarb/internal/diagnostics"
	"github.com/arbitgo/triarb/internal/domain"
	"github.com/arbitgo/triarb/internal/gateway"
	"github.com/arbitgo/triarb/internal/gateway/native"
	"github.com/arbitgo/triarb/internal/monitor"
	"github.com/arbitgo/triarb/internal/persistence"
	"github.com/arbitgo/triarb/internal/supervisor"
	"github.com/arbitgo/triarb/internal/triangle"
)

const (
	exitOK       = 0
	exitFatal    = 1
	exitBadUsage = 2
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: arbit <fitness|live|keys-check|markets-limits|config-discover|hybrid> [flags]")
		os.Exit(exitBadUsage)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var code int
	switch cmd {
	case "fitness":
		code = runFitness(args)
	case "live":
		code = runLive(args)
	case "keys-check":
		code = runKeysCheck(args)
	case "markets-limits":
		code = runMarketsLimits(args)
	case "config-discover":
		code = runConfigDiscover(args)
	case "hybrid":
		code = runHybrid(args)
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q\n", cmd)
		code = exitBadUsage
	}
	os.Exit(code)
}

func initLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "DEBUG":
		logLevel = slog.LevelDebug
	case "WARN":
		logLevel = slog.LevelWarn
	case "ERROR":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)
	return logger
}

func configureRuntime(cfg config.RuntimeConfig, logger *slog.Logger) {
	if cfg.GoMaxProcs > 0 {
		runtime.GOMAXPROCS(cfg.GoMaxProcs)
	}
	if cfg.GOGC > 0 {
		debug.SetGCPercent(cfg.GOGC)
	}
	logger.Info("runtime configured", "GOMAXPROCS", runtime.GOMAXPROCS(0), "GOGC", cfg.GOGC, "GOMEMLIMIT", cfg.GoMemLimit)
}

func loadConfig(path string, logger *slog.Logger) (*config.Config, int) {
	cfg, err := config.Load(path)
	if err != nil {
		logger.Error("failed to load configuration", "path", path, "error", err)
		return nil, exitFatal
	}
	return cfg, exitOK
}

// buildAdapter constructs the live adapter for one venue and, when dry-run
// is requested, wraps it in gateway.DryRunAdapter so every subcommand shares
// the exact same market-data and order-placement code path regardless of
// mode.
func buildAdapter(venueName string, venueCfg config.VenueConfig, cfg *config.Config, dryRun bool, logger *slog.Logger) gateway.Adapter {
	apiKey := os.Getenv(strings.ToUpper(venueName) + "_API_KEY")
	apiSecret := os.Getenv(strings.ToUpper(venueName) + "_API_SECRET")

	var adapter gateway.Adapter = native.New(venueName, venueCfg.WsURL, venueCfg.RestURL, apiKey, apiSecret, logger)

	if dryRun {
		initial := map[string]domain.Balance{
			"USDT": {Venue: venueName, Asset: "USDT", Free: cfg.DryRun.InitialCapitalUSDT},
		}
		adapter = gateway.NewDryRunAdapter(adapter, initial, cfg.DryRun.SimulatedLatencyMs, cfg.DryRun.RejectRatePct, logger)
	}
	return adapter
}

func manualTriangles(venueCfg config.VenueConfig) []triangle.Triangle {
	out := make([]triangle.Triangle, 0, len(venueCfg.Triangles))
	for _, t := range venueCfg.Triangles {
		out = append(out, triangle.Triangle{AB: t.AB, BC: t.BC, AC: t.AC})
	}
	return out
}

// resolveTakerFee prefers a configured fee override over the process-wide
// default. The engine charges one taker fee per venue, not per leg, so when
// a venue pins more than one symbol's fee the highest is used — understating
// the edge is safe, overstating it risks an attempt that clears the gate on
// paper but loses money after real fees.
func resolveTakerFee(venueCfg config.VenueConfig, defaultFee float64) float64 {
	fee := defaultFee
	for _, override := range venueCfg.FeeOverrides {
		if override.Taker > fee {
			fee = override.Taker
		}
	}
	return fee
}

func parseCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// startMetricsServer runs the Prometheus exporter until ctx is canceled.
func startMetricsServer(ctx context.Context, port int, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", monitor.MetricsHandler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	server := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics server starting", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("metrics server error", "error", err)
	}
}

// newVenueSupervisor wires one venue's adapter, persistence store, metrics,
// and notifier into a supervisor.VenueSupervisor, ready to Run.
func newVenueSupervisor(venueName string, venueCfg config.VenueConfig, cfg *config.Config, metrics *monitor.Metrics, logger *slog.Logger) (*supervisor.VenueSupervisor, func(), error) {
	adapter := buildAdapter(venueName, venueCfg, cfg, cfg.Arbitrage.DryRun, logger)

	dbPath := fmt.Sprintf(cfg.Persistence.PersistencePathTemplate, venueName)
	store, err := persistence.NewSQLiteStore(dbPath, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("open sqlite store for %s: %w", venueName, err)
	}

	var coldStore *persistence.PostgresColdStore
	var asyncWriter *persistence.AsyncWriter
	if cfg.Persistence.ColdStoreDSN != "" {
		coldStore, err = persistence.NewPostgresColdStore(context.Background(), cfg.Persistence.ColdStoreDSN, cfg.Persistence.ColdStorePoolSize, logger)
		if err != nil {
			logger.Warn("PostgreSQL cold store unavailable, continuing without it", "venue", venueName, "error", err)
		}
	}
	asyncWriter = persistence.NewAsyncWriter(coldStore, 10000, logger)
	mirrored := persistence.NewMirroredStore(store, asyncWriter)

	notifier := monitor.NewNotifier(cfg.Monitoring.NotificationWebhook, time.Minute, time.Minute, logger)

	scfg := supervisor.Config{
		Venue: venueName,
		Engine: attempt.Config{
			Venue:          venueName,
			NotionalUSD:    cfg.Arbitrage.NotionalPerTradeUSD,
			MinEdgeBps:     cfg.Arbitrage.NetThresholdBps,
			MaxSlippageBps: cfg.Arbitrage.MaxSlippageBps,
			TakerFee:       resolveTakerFee(venueCfg, cfg.Arbitrage.TakerFee),
		},
		SymbolAliases:    venueCfg.SymbolAliases,
		ManualTriangles:  manualTriangles(venueCfg),
		StalenessHorizon: cfg.Arbitrage.StalenessHorizon(),
		Heartbeat:        cfg.Arbitrage.Heartbeat(),
		AttemptNotify:    cfg.Arbitrage.AttemptNotify,
	}

	sup := supervisor.New(scfg, adapter, mirrored, metrics, notifier, logger)

	writerCtx, cancelWriter := context.WithCancel(context.Background())
	go asyncWriter.Run(writerCtx)
	stop := func() {
		cancelWriter()
		asyncWriter.Stop()
	}

	return sup, stop, nil
}

func runLive(args []string) int {
	fs := flag.NewFlagSet("live", flag.ContinueOnError)
	configPath := fs.String("config", "configs/config.yaml", "path to configuration file")
	venuesCSV := fs.String("venues", "", "comma-separated venues to run (default: all enabled)")
	venue := fs.String("venue", "", "single venue to run")
	if err := fs.Parse(args); err != nil {
		return exitBadUsage
	}

	logger := initLogger("INFO")
	cfg, code := loadConfig(*configPath, logger)
	if code != exitOK {
		return code
	}
	logger = initLogger(cfg.System.LogLevel)
	configureRuntime(cfg.Runtime, logger)

	selected := parseCSV(*venuesCSV)
	if *venue != "" {
		selected = append(selected, *venue)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	tracerShutdown, err := monitor.InitTracer(cfg.System.InstanceID, logger)
	if err != nil {
		logger.Warn("tracing disabled", "error", err)
		tracerShutdown = func(context.Context) error { return nil }
	}

	reg := prometheus.DefaultRegisterer
	metrics := monitor.NewMetrics(reg)
	go startMetricsServer(ctx, cfg.Monitoring.MetricsPort, logger)

	var supervisors []*supervisor.VenueSupervisor
	var stoppers []func()
	for name, venueCfg := range cfg.Venues {
		if !venueCfg.Enabled {
			continue
		}
		if len(selected) > 0 && !contains(selected, name) {
			continue
		}
		sup, stop, err := newVenueSupervisor(name, venueCfg, cfg, metrics, logger)
		if err != nil {
			logger.Error("failed to build venue supervisor", "venue", name, "error", err)
			return exitFatal
		}
		supervisors = append(supervisors, sup)
		stoppers = append(stoppers, stop)
	}
	if len(supervisors) == 0 {
		logger.Error("no enabled venues matched selection")
		return exitFatal
	}

	multi := supervisor.NewMultiSupervisor(logger)
	done := make(chan error, 1)
	go func() { done <- multi.Run(ctx, supervisors) }()

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	case err := <-done:
		for _, stop := range stoppers {
			stop()
		}
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		tracerShutdown(shutdownCtx)
		shutdownCancel()
		if err != nil {
			logger.Error("supervisors exited with error", "error", err)
			return exitFatal
		}
		return exitOK
	}

	<-done
	for _, stop := range stoppers {
		stop()
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	tracerShutdown(shutdownCtx)
	shutdownCancel()
	logger.Info("shutdown complete")
	return exitOK
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// runFitness samples live books for a fixed duration without ever placing
// orders unless --simulate is set, in which case fills are synthesized
// against the same books via gateway.DryRunAdapter.
func runFitness(args []string) int {
	fs := flag.NewFlagSet("fitness", flag.ContinueOnError)
	configPath := fs.String("config", "configs/config.yaml", "path to configuration file")
	secs := fs.Int("secs", 60, "sampling duration in seconds")
	simulate := fs.Bool("simulate", false, "synthesize fills via dry-run instead of pure observation")
	persist := fs.Bool("persist", false, "persist sampled attempts to the venue's store")
	symbolsCSV := fs.String("symbols", "", "comma-separated symbol subset (parsed but not applied; every discovered leg is sampled)")
	if err := fs.Parse(args); err != nil {
		return exitBadUsage
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: arbit fitness <venue> [flags]")
		return exitBadUsage
	}
	venueName := fs.Arg(0)

	logger := initLogger("INFO")
	cfg, code := loadConfig(*configPath, logger)
	if code != exitOK {
		return code
	}
	venueCfg, ok := cfg.Venues[venueName]
	if !ok {
		logger.Error("unknown venue", "venue", venueName)
		return exitFatal
	}

	adapter := buildAdapter(venueName, venueCfg, cfg, *simulate, logger)
	defer adapter.Close()

	metrics := monitor.NewMetrics(prometheus.NewRegistry())
	notifier := monitor.NewNotifier("", time.Hour, time.Hour, logger)

	var store persistence.Store
	if *persist {
		dbPath := fmt.Sprintf(cfg.Persistence.PersistencePathTemplate, venueName)
		sqliteStore, err := persistence.NewSQLiteStore(dbPath, logger)
		if err != nil {
			logger.Error("failed to open persistence store", "error", err)
			return exitFatal
		}
		defer sqliteStore.Close()
		store = sqliteStore
	} else {
		store = noopStore{}
	}

	scfg := supervisor.Config{
		Venue: venueName,
		Engine: attempt.Config{
			Venue:          venueName,
			NotionalUSD:    cfg.Arbitrage.NotionalPerTradeUSD,
			MinEdgeBps:     cfg.Arbitrage.NetThresholdBps,
			MaxSlippageBps: cfg.Arbitrage.MaxSlippageBps,
			TakerFee:       resolveTakerFee(venueCfg, cfg.Arbitrage.TakerFee),
		},
		SymbolAliases:    venueCfg.SymbolAliases,
		ManualTriangles:  manualTriangles(venueCfg),
		StalenessHorizon: cfg.Arbitrage.StalenessHorizon(),
		Heartbeat:        time.Duration(*secs) * time.Second,
		AttemptNotify:    false,
	}
	_ = parseCSV(*symbolsCSV) // parsed only; no per-symbol filter is applied, so fitness samples every discovered leg.

	sup := supervisor.New(scfg, adapter, store, metrics, notifier, logger)

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(*secs)*time.Second)
	defer cancel()

	if err := sup.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("fitness run failed", "error", err)
		return exitFatal
	}
	return exitOK
}

// noopStore discards everything it is given, used by fitness runs that did
// not request --persist.
type noopStore struct{}

func (noopStore) Migrate(context.Context) error { return nil }
func (noopStore) InsertTriangle(context.Context, triangle.Triangle) (uuid.UUID, error) {
	return uuid.Nil, nil
}
func (noopStore) InsertAttempt(context.Context, uuid.UUID, domain.TriangleAttempt, []domain.Fill) error {
	return nil
}
func (noopStore) Close() error { return nil }

func runKeysCheck(args []string) int {
	fs := flag.NewFlagSet("keys-check", flag.ContinueOnError)
	configPath := fs.String("config", "configs/config.yaml", "path to configuration file")
	if err := fs.Parse(args); err != nil {
		return exitBadUsage
	}

	logger := initLogger("INFO")
	cfg, code := loadConfig(*configPath, logger)
	if code != exitOK {
		return code
	}

	failed := false
	for name, venueCfg := range cfg.Venues {
		if !venueCfg.Enabled {
			continue
		}
		adapter := buildAdapter(name, venueCfg, cfg, false, logger)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		markets, err := adapter.LoadMarkets(ctx)
		if err != nil {
			logger.Error("keys-check: failed to load markets", "venue", name, "error", err)
			failed = true
			cancel()
			adapter.Close()
			continue
		}
		var sample string
		for symbol := range markets {
			sample = symbol
			break
		}
		if sample != "" {
			if _, err := adapter.FetchOrderBook(ctx, sample, 5); err != nil {
				logger.Error("keys-check: failed to fetch order book", "venue", name, "symbol", sample, "error", err)
				failed = true
			}
		}
		cancel()
		adapter.Close()
		logger.Info("keys-check passed", "venue", name, "markets", len(markets))
	}

	if failed {
		return exitFatal
	}
	return exitOK
}

func runMarketsLimits(args []string) int {
	fs := flag.NewFlagSet("markets-limits", flag.ContinueOnError)
	configPath := fs.String("config", "configs/config.yaml", "path to configuration file")
	symbolsCSV := fs.String("symbols", "", "restrict output to a comma-separated symbol subset")
	if err := fs.Parse(args); err != nil {
		return exitBadUsage
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: arbit markets-limits <venue> [flags]")
		return exitBadUsage
	}
	venueName := fs.Arg(0)

	logger := initLogger("INFO")
	cfg, code := loadConfig(*configPath, logger)
	if code != exitOK {
		return code
	}
	venueCfg, ok := cfg.Venues[venueName]
	if !ok {
		logger.Error("unknown venue", "venue", venueName)
		return exitFatal
	}

	adapter := buildAdapter(venueName, venueCfg, cfg, false, logger)
	defer adapter.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	markets, err := adapter.LoadMarkets(ctx)
	if err != nil {
		logger.Error("failed to load markets", "error", err)
		return exitFatal
	}

	filter := parseCSV(*symbolsCSV)
	fmt.Println("symbol,min_notional,maker_bps,taker_bps")
	for symbol, info := range markets {
		if len(filter) > 0 && !contains(filter, symbol) {
			continue
		}
		fees, err := adapter.FetchFees(ctx, symbol)
		if err != nil {
			logger.Warn("failed to fetch fees", "symbol", symbol, "error", err)
			continue
		}
		fmt.Println(gateway.FormatMarketLimits(symbol, info.MinNotional.String(), fees.Maker, fees.Taker))
	}
	return exitOK
}

func runConfigDiscover(args []string) int {
	fs := flag.NewFlagSet("config-discover", flag.ContinueOnError)
	configPath := fs.String("config", "configs/config.yaml", "path to configuration file")
	write := fs.Bool("write", false, "persist discovered triangles to the venue's store")
	if err := fs.Parse(args); err != nil {
		return exitBadUsage
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: arbit config-discover <venue> [--write]")
		return exitBadUsage
	}
	venueName := fs.Arg(0)

	logger := initLogger("INFO")
	cfg, code := loadConfig(*configPath, logger)
	if code != exitOK {
		return code
	}
	venueCfg, ok := cfg.Venues[venueName]
	if !ok {
		logger.Error("unknown venue", "venue", venueName)
		return exitFatal
	}

	adapter := buildAdapter(venueName, venueCfg, cfg, false, logger)
	defer adapter.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	markets, err := adapter.LoadMarkets(ctx)
	if err != nil {
		logger.Error("failed to load markets", "error", err)
		return exitFatal
	}

	meta := make(map[string]triangle.MarketMeta, len(markets))
	for symbol, info := range markets {
		meta[symbol] = triangle.MarketMeta{Symbol: symbol, Active: info.Active}
	}
	triangles := triangle.FilterByMarkets(triangle.Discover(meta), meta)

	fmt.Printf("discovered %d triangles for %s\n", len(triangles), venueName)
	for _, tri := range triangles {
		fmt.Printf("%s / %s / %s\n", tri.AB, tri.BC, tri.AC)
	}

	if *write {
		dbPath := fmt.Sprintf(cfg.Persistence.PersistencePathTemplate, venueName)
		store, err := persistence.NewSQLiteStore(dbPath, logger)
		if err != nil {
			logger.Error("failed to open persistence store", "error", err)
			return exitFatal
		}
		defer store.Close()
		for _, tri := range triangles {
			if _, err := store.InsertTriangle(ctx, tri); err != nil {
				logger.Error("failed to persist triangle", "triangle", tri, "error", err)
				return exitFatal
			}
		}
		logger.Info("persisted discovered triangles", "count", len(triangles), "venue", venueName)
	}

	return exitOK
}

// runHybrid samples a read-only cross-venue net-edge estimate for three legs
// that may each live on a different venue. It never places orders and never
// persists anything; the result is logged and recorded as a gauge only.
func runHybrid(args []string) int {
	fs := flag.NewFlagSet("hybrid", flag.ContinueOnError)
	configPath := fs.String("config", "configs/config.yaml", "path to configuration file")
	legsCSV := fs.String("legs", "", "three comma-separated symbols: AB,BC,AC")
	venuesCSV := fs.String("venues", "", "comma-separated symbol=venue pairs, e.g. ETH/USDT=kcex,ETH/BTC=nobitex")
	secs := fs.Int("secs", 10, "how long to sample, in seconds")
	if err := fs.Parse(args); err != nil {
		return exitBadUsage
	}

	legs := parseCSV(*legsCSV)
	if len(legs) != 3 {
		fmt.Fprintln(os.Stderr, "usage: arbit hybrid --legs AB,BC,AC --venues SYM=venue,... [--secs N]")
		return exitBadUsage
	}

	logger := initLogger("INFO")
	cfg, code := loadConfig(*configPath, logger)
	if code != exitOK {
		return code
	}

	venueFor := parseSymbolVenueMap(*venuesCSV)
	defaultVenue := ""
	for name, venueCfg := range cfg.Venues {
		if venueCfg.Enabled {
			defaultVenue = name
			break
		}
	}

	adapters := make(map[string]gateway.Adapter)
	legFor := func(symbol string) diagnostics.Leg {
		venueName := venueFor[symbol]
		if venueName == "" {
			venueName = defaultVenue
		}
		adapter, ok := adapters[venueName]
		if !ok {
			adapter = buildAdapter(venueName, cfg.Venues[venueName], cfg, false, logger)
			adapters[venueName] = adapter
		}
		return diagnostics.Leg{Venue: venueName, Symbol: symbol, Adapter: adapter}
	}

	ab, bc, ac := legFor(legs[0]), legFor(legs[1]), legFor(legs[2])
	defer func() {
		for _, adapter := range adapters {
			adapter.Close()
		}
	}()

	metrics := monitor.NewMetrics(prometheus.NewRegistry())
	estimator := diagnostics.NewHybridEstimator(ab, bc, ac, metrics, logger)

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(*secs)*time.Second)
	defer cancel()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return exitOK
		case <-ticker.C:
			if _, err := estimator.Sample(ctx); err != nil {
				logger.Warn("hybrid sample failed", "error", err)
			}
		}
	}
}

func parseSymbolVenueMap(s string) map[string]string {
	out := make(map[string]string)
	for _, pair := range parseCSV(s) {
		sym, venueName, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		out[strings.TrimSpace(sym)] = strings.TrimSpace(venueName)
	}
	return out
}
