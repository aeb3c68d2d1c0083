package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"certpass/internal/audit"
	"certpass/internal/booster"
	"certpass/internal/dgc/certverify"
	"certpass/internal/platform/config"
	"certpass/internal/platform/httpserver"
	"certpass/internal/platform/kafka"
	"certpass/internal/platform/logger"
	"certpass/internal/platform/metrics"
	platformredis "certpass/internal/platform/redis"
	"certpass/internal/rules"
	"certpass/internal/rules/certlogic"
	"certpass/internal/rules/ports"
	"certpass/internal/rules/remote"
	"certpass/internal/rules/store"
	"certpass/internal/scanner"
	httptransport "certpass/internal/transport/http"
	"certpass/internal/trust"
	"certpass/internal/worker"
)

// main wires the dependency graph, starts the background sync loops and the
// HTTP server, and shuts everything down on SIGINT/SIGTERM. Business logic
// lives in the internal services.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("service stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	// Shared state backends. Without redis the in-memory stores serve a
	// single replica.
	redisClient, err := platformredis.New(cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	var (
		ruleStore        ports.RuleStore     = store.NewMemoryRuleStore()
		boosterRuleStore ports.RuleStore     = store.NewMemoryRuleStore()
		valueSetStore    ports.ValueSetStore = store.NewMemoryValueSetStore()
		countryStore     ports.CountryStore  = store.NewMemoryCountryStore()
		updateStore      ports.UpdateStore   = store.NewMemoryUpdateStore()
		snapshots        trust.SnapshotStore = trust.NewMemorySnapshotStore()
	)
	if redisClient != nil {
		ruleStore = store.NewRedisRuleStore(redisClient.Client, "certpass:rules")
		boosterRuleStore = store.NewRedisRuleStore(redisClient.Client, "certpass:boosterrules")
		valueSetStore = store.NewRedisValueSetStore(redisClient.Client, "certpass:valuesets")
		countryStore = store.NewRedisCountryStore(redisClient.Client, "certpass:countries")
		updateStore = store.NewRedisUpdateStore(redisClient.Client, "certpass:updates")
		snapshots = trust.NewRedisSnapshotStore(redisClient.Client, "certpass:trustlist")
	}

	// Trust list: pinned anchor, verified snapshot restore, periodic refresh.
	anchor, err := trust.ParsePublicKey([]byte(cfg.TrustAnchorPEM))
	if err != nil {
		return err
	}
	trustStore := trust.NewStore(trust.DscList{})
	trustService, err := trust.NewService(
		&trust.HTTPFetcher{BaseURL: cfg.TrustBaseURL},
		trust.NewListDecoder(anchor),
		trustStore,
		trust.WithLogger(log),
		trust.WithSnapshotStore(snapshots),
	)
	if err != nil {
		return err
	}
	if err := trustService.Restore(ctx); err != nil {
		log.Warn("trust list snapshot not restored", "error", err)
	}
	m.TrustListSize.Set(float64(trustStore.Len()))

	refreshTrust := func(ctx context.Context) error {
		err := trustService.Run(ctx)
		m.TrustListSize.Set(float64(trustStore.Len()))
		return err
	}

	// Rule and value set sync against the distribution hosts.
	rulesRemote := remote.NewClient(cfg.RulesBaseURL)
	boosterRemote := remote.NewClient(cfg.BoosterBaseURL)
	repoOpts := []rules.RepositoryOption{rules.WithLogger(log), rules.WithFetchLimit(cfg.FetchLimit)}

	rulesRepo, err := rules.NewRulesRepository(rulesRemote, ruleStore, updateStore, repoOpts...)
	if err != nil {
		return err
	}
	valueSetsRepo, err := rules.NewValueSetsRepository(rulesRemote, valueSetStore, updateStore, repoOpts...)
	if err != nil {
		return err
	}
	boosterRepo, err := rules.NewBoosterRulesRepository(boosterRemote, boosterRuleStore, updateStore, repoOpts...)
	if err != nil {
		return err
	}
	countriesRepo, err := rules.NewCountriesRepository(rulesRemote, countryStore, updateStore, repoOpts...)
	if err != nil {
		return err
	}

	// Bundled assets keep a fresh deployment usable before the first sync.
	if cfg.SeedDir != "" {
		if err := rules.SeedFromDir(ctx, cfg.SeedDir, rulesRepo, valueSetsRepo, countriesRepo, log); err != nil {
			return err
		}
	}

	// Check pipeline.
	verifier, err := certverify.New(trustStore, certverify.NewBlacklist(cfg.BlacklistHashes...))
	if err != nil {
		return err
	}
	evaluator := certlogic.New()
	ruleValidator, err := rules.NewValidator(ruleStore, valueSetStore, evaluator, rules.WithValidatorLogger(log))
	if err != nil {
		return err
	}

	// Audit trail: bounded inbox, background persistence, optional kafka.
	auditService := audit.NewService(
		audit.WithServiceLogger(log),
		audit.WithDropCounter(m.AuditDropsTotal.Inc),
	)
	var auditStore audit.Store = audit.NewMemoryStore()
	if cfg.PostgresDSN != "" {
		db, err := sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			return err
		}
		defer db.Close()
		auditStore = audit.NewPostgresStore(db)
	}
	var sink audit.Sink = audit.NoopSink{}
	if cfg.KafkaBrokers != "" {
		producer, err := kafka.NewProducer(kafka.Config{Brokers: cfg.KafkaBrokers, Retries: 3}, log)
		if err != nil {
			return err
		}
		defer producer.Close()
		sink = audit.NewKafkaSink(producer, cfg.KafkaTopic)
	}
	auditWorker := audit.NewWorker(auditStore, sink, auditService.Inbox(), log)

	scanService, err := scanner.New(verifier, ruleValidator, cfg.CheckCountry,
		scanner.WithLogger(log),
		scanner.WithAudit(auditService),
		scanner.WithScanRecorder(m),
	)
	if err != nil {
		return err
	}

	// Booster notifications over the stored certificate groups.
	groupStore := booster.NewMemoryGroupStore()
	boosterEngine, err := booster.NewEngine(groupStore, boosterRuleStore, valueSetStore, evaluator,
		booster.WithEngineLogger(log),
	)
	if err != nil {
		return err
	}

	// Background refresh loops.
	runner := worker.NewRunner(worker.WithRunnerLogger(log), worker.WithRecorder(m))
	recomputeBoosters := func(ctx context.Context) error {
		err := boosterEngine.Run(ctx)
		outcome := "success"
		if err != nil {
			outcome = "failure"
		}
		m.BoosterRunsTotal.WithLabelValues(outcome).Inc()
		return err
	}
	jobs := []worker.Job{
		{Name: rules.KindTrustList, Interval: cfg.SyncInterval, Run: refreshTrust},
		{Name: rules.KindRules, Interval: cfg.SyncInterval, Run: rulesRepo.Load},
		{Name: rules.KindValueSets, Interval: cfg.SyncInterval, Run: valueSetsRepo.Load},
		{Name: rules.KindBoosterRules, Interval: cfg.SyncInterval, Run: boosterRepo.Load},
		{Name: rules.KindCountries, Interval: cfg.SyncInterval, Run: countriesRepo.Load},
		{Name: "booster", Interval: cfg.BoosterInterval, Run: recomputeBoosters},
	}
	for _, job := range jobs {
		if err := runner.Register(job); err != nil {
			return err
		}
	}

	// HTTP surface.
	syncJobs := map[string]httptransport.SyncJob{
		rules.KindTrustList:    refreshTrust,
		rules.KindRules:        rulesRepo.Load,
		rules.KindValueSets:    valueSetsRepo.Load,
		rules.KindBoosterRules: boosterRepo.Load,
		rules.KindCountries:    countriesRepo.Load,
	}
	health := map[string]httptransport.HealthCheck{}
	if redisClient != nil {
		health["redis"] = redisClient.Health
	}
	router := httptransport.NewRouter(httptransport.RouterConfig{
		Handler:     httptransport.New(scanService, syncJobs, updateStore, log),
		AdminJWTKey: cfg.AdminJWTKey,
		Logger:      log,
		Health:      health,
	})
	srv := httpserver.New(cfg.Addr, router)

	log.Info("starting certpass verifier", "addr", cfg.Addr)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error { return runner.Run(ctx) })
	group.Go(func() error {
		err := auditWorker.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	group.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return group.Wait()
}
