// Command streamer serves live crypto prices, indicators, alerts and
// market feeds to WebSocket clients.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"coinstream/config"
	"coinstream/internal/alert"
	"coinstream/internal/gateway"
	"coinstream/internal/indicator"
	"coinstream/internal/logger"
	"coinstream/internal/marketdata/source"
	"coinstream/internal/marketdata/tfbuilder"
	"coinstream/internal/metrics"
	"coinstream/internal/model"
	"coinstream/internal/notification"
	"coinstream/internal/scheduler"
	redisstore "coinstream/internal/store/redis"
	sqlitestore "coinstream/internal/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logger.Init("streamer", logger.ParseLevel(cfg.LogLevel))

	if err := run(cfg, log); err != nil {
		log.Error("streamer exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	prom := metrics.New()

	// ---- Storage ----
	var (
		barStore   model.BarStore
		alertStore model.AlertStore = alert.NewMemoryStore()
		sqlPinger  metrics.Pinger
	)
	if cfg.SQLitePath != "" {
		db, err := sqlitestore.Open(cfg.SQLitePath, log)
		if err != nil {
			return fmt.Errorf("sqlite: %w", err)
		}
		defer db.Close()
		barStore, alertStore, sqlPinger = db, db, db
	} else {
		log.Warn("SQLITE_PATH empty, running without persistence")
	}

	// ---- Redis mirror ----
	var (
		mirror      model.EventMirror
		redisPinger metrics.Pinger
	)
	if cfg.RedisAddr != "" {
		m, err := redisstore.New(redisstore.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, log)
		if err != nil {
			log.Warn("redis unavailable, continuing without mirror", "error", err)
		} else {
			defer m.Close()
			m.OnDrop = prom.MirrorDropped.Inc
			m.OnFlush = func(n int) { prom.MirrorFlushed.Add(float64(n)) }
			prom.GaugeFunc("redis_circuit_breaker_state", "Redis mirror breaker state (0=closed, 1=open, 2=half-open)",
				func() float64 { return float64(m.Breaker().CurrentState()) })
			go m.Run(ctx)
			mirror, redisPinger = m, m
		}
	}

	// ---- Price sources ----
	sim := source.NewSimulated(cfg.SimSeed, cfg.BasePrices)
	var prices model.PriceSource
	switch cfg.PriceSource {
	case config.SourceSimulated:
		prices = sim
	case config.SourceLive:
		prices = source.NewLive(source.LiveConfig{
			BaseURL:    cfg.BinanceBaseURL,
			QuoteAsset: cfg.QuoteAsset,
			Timeout:    cfg.PriceTimeout,
		})
	default:
		fb := source.NewFallback(source.NewLive(source.LiveConfig{
			BaseURL:    cfg.BinanceBaseURL,
			QuoteAsset: cfg.QuoteAsset,
			Timeout:    cfg.PriceTimeout,
		}), sim, log.With("component", "price_source"))
		fb.OnFallback = func(symbol, op string, _ error) {
			prom.PriceFallbacks.WithLabelValues(symbol, op).Inc()
		}
		prices = fb
	}

	// ---- Indicators + warmup ----
	engine := indicator.NewEngine()
	engine.OnStale = func(model.Bar) { prom.StaleBars.Inc() }
	engine.OnAccepted = func(s model.SeriesSnapshot) {
		prom.IndicatorUpdates.WithLabelValues(string(s.Timeframe)).Inc()
	}

	builder := tfbuilder.New(cfg.Timeframes)
	builder.OnStale = prom.StaleBars.Inc

	warm := &indicator.Warmup{
		Engine: engine,
		Store:  barStore,
		Source: prices,
		Limit:  cfg.WarmupBars,
		Log:    log.With("component", "warmup"),
	}
	if cfg.WarmupBars > 0 {
		n := warm.Run(ctx, cfg.Symbols, cfg.Timeframes)
		log.Info("warmup complete", "bars", n)
	}
	for _, s := range engine.Snapshots() {
		builder.Seed(model.Bar{
			Symbol:    s.Symbol,
			Timeframe: s.Timeframe,
			OpenTime:  s.OpenTime,
			Open:      s.Close,
			High:      s.Close,
			Low:       s.Close,
			Close:     s.Close,
		})
	}

	// ---- Fan-out ----
	broadcaster := gateway.NewBroadcaster(gateway.NewRegistry(), mirror, log.With("component", "broadcaster"))
	broadcaster.OnPublish = func(event string, delivered int) {
		prom.EventsPublished.WithLabelValues(event).Inc()
		prom.Deliveries.Add(float64(delivered))
	}
	broadcaster.OnEvict = func(_ string, err error) {
		prom.ClientEvictions.WithLabelValues(gateway.EvictReason(err)).Inc()
	}
	prom.GaugeFunc("clients_connected", "Connected WebSocket clients",
		func() float64 { return float64(broadcaster.Clients()) })
	prom.GaugeFunc("active_topics", "Topics with at least one subscriber",
		func() float64 {
			_, topics := broadcaster.Registry().Stats()
			return float64(topics)
		})

	hub := gateway.NewHub(gateway.HubConfig{
		Symbols:       cfg.Symbols,
		ClientBuffer:  cfg.ClientBuffer,
		DefaultTopics: model.DefaultTopics,
	}, broadcaster, log)
	hub.OnDisconnect = func(reason string) { prom.ClientDisconnects.WithLabelValues(reason).Inc() }
	hub.OnEvict = func(reason string) { prom.ClientEvictions.WithLabelValues(reason).Inc() }

	// ---- Alerts ----
	evaluator := alert.NewEvaluator(alert.Config{
		Store:      alertStore,
		Indicators: engine,
		Publisher:  broadcaster,
		Notifier:   buildNotifier(cfg, log),
		Log:        log,
	})
	evaluator.OnTrigger = func(model.AlertSpec) { prom.AlertsTriggered.Inc() }

	// ---- Health ----
	health := metrics.NewHealthStatus(sqlPinger, redisPinger)
	health.Clients = broadcaster.Clients
	health.StartLivenessChecker(ctx, 10*time.Second)
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, prom, health, log)
	metricsSrv.Start()

	// ---- Jobs ----
	ticker := scheduler.NewPriceTicker(scheduler.PriceTickConfig{
		Symbols:   cfg.Symbols,
		Source:    prices,
		Builder:   builder,
		Engine:    engine,
		Store:     barStore,
		Alerts:    evaluator,
		Publisher: broadcaster,
		Interval:  cfg.PriceInterval,
		Timeout:   cfg.PriceTimeout,
		Log:       log,
	})
	ticker.OnQuote = func(q model.Quote) {
		prom.PriceTicks.WithLabelValues(q.Symbol, q.Source).Inc()
		health.RecordTick(q.Timestamp, q.Source)
	}
	ticker.OnBar = func(b model.Bar) { prom.BarsClosed.WithLabelValues(string(b.Timeframe)).Inc() }
	ticker.OnStoreError = func(op string, _ error) { prom.StoreWriteErrors.WithLabelValues(op).Inc() }

	feeds := scheduler.NewFeeds(scheduler.FeedConfig{
		Symbols:    cfg.Symbols,
		Timeframe:  cfg.Timeframes[0],
		Quotes:     ticker,
		Indicators: engine,
		Publisher:  broadcaster,
		Seed:       cfg.SimSeed,
	})

	sched := scheduler.New(log)
	sched.OnRun = func(job string, d time.Duration, err error) {
		prom.JobRuns.WithLabelValues(job).Inc()
		prom.JobDuration.WithLabelValues(job).Observe(d.Seconds())
		if err != nil {
			prom.JobFailures.WithLabelValues(job).Inc()
		}
	}
	for _, j := range scheduler.StandardJobs(ticker, feeds, scheduler.Intervals{
		Price:     cfg.PriceInterval,
		Overview:  cfg.OverviewInterval,
		Sentiment: cfg.SentimentInterval,
		News:      cfg.NewsInterval,
		Strategy:  cfg.StrategyInterval,
	}) {
		sched.Add(j)
	}
	sched.Start(ctx)

	// ---- HTTP ----
	mux := http.NewServeMux()
	gateway.RegisterRoutes(mux, hub, gateway.API{
		Alerts:     evaluator,
		Indicators: engine,
		Quotes:     ticker,
		DefaultTF:  cfg.Timeframes[0],
	})
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	srvErr := make(chan error, 1)
	go func() {
		log.Info("http server listening", "addr", cfg.ListenAddr, "symbols", cfg.Symbols, "timeframes", cfg.Timeframes)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case runErr = <-srvErr:
		log.Error("http server failed", "error", runErr)
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", "error", err)
	}
	log.Info("closing clients", "count", broadcaster.DetachAll())
	sched.Wait()
	if err := metricsSrv.Stop(shutdownCtx); err != nil {
		log.Warn("metrics shutdown", "error", err)
	}
	log.Info("streamer stopped")
	return runErr
}

func buildNotifier(cfg *config.Config, log *slog.Logger) notification.Notifier {
	var out notification.Multi
	if cfg.AlertWebhookURL != "" {
		out = append(out, notification.NewWebhookNotifier(cfg.AlertWebhookURL))
	}
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		out = append(out, notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID))
	}
	if len(out) == 0 {
		return notification.NewLogNotifier(log)
	}
	return out
}
