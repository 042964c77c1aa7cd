package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"stablebond/config"
	"stablebond/core/events"
	"stablebond/native/bank"
	"stablebond/native/stable"
	"stablebond/observability/logging"
	telemetry "stablebond/observability/otel"
	"stablebond/services/stabled/adapters"
	svcconfig "stablebond/services/stabled/config"
	"stablebond/services/stabled/indexer"
	"stablebond/services/stabled/oracle"
	"stablebond/services/stabled/server"
	"stablebond/services/stabled/storage"
	kv "stablebond/storage"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/stabled/config.yaml", "path to stabled configuration file")
	flag.Parse()

	cfg, err := svcconfig.Load(cfgPath)
	if err != nil {
		log.Fatalf("stabled: load config: %v", err)
	}

	env := strings.TrimSpace(cfg.Environment)
	if env == "" {
		env = strings.TrimSpace(os.Getenv("STABLE_ENV"))
	}
	logger, logCloser := logging.SetupWithOptions(logging.Options{
		Service:    "stabled",
		Env:        env,
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	defer logCloser.Close()

	endpoint := strings.TrimSpace(cfg.Telemetry.Endpoint)
	if endpoint == "" {
		endpoint = strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	}
	insecure := cfg.Telemetry.Insecure
	if value := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			insecure = parsed
		}
	}
	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "stabled",
		Environment: env,
		Endpoint:    endpoint,
		Insecure:    insecure,
		Headers:     telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		log.Fatalf("stabled: init telemetry: %v", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	state, err := openState(cfg.State)
	if err != nil {
		log.Fatalf("stabled: open state: %v", err)
	}
	defer state.Close()

	dsn, err := storage.FileDSN(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("stabled: resolve storage DSN: %v", err)
	}
	store, err := storage.Open(dsn)
	if err != nil {
		log.Fatalf("stabled: open storage: %v", err)
	}
	defer store.Close()
	logger.Info("stabled: storage opened", "dsn", logging.RedactDSN(dsn))

	var emitter events.Emitter = events.NoopEmitter{}
	var lister server.EventLister
	if !cfg.Indexer.Disabled {
		indexDSN := strings.TrimSpace(cfg.Indexer.DSN)
		if indexDSN == "" {
			indexDSN = dsn
		}
		db, err := indexer.Open(indexDSN)
		if err != nil {
			log.Fatalf("stabled: open event index: %v", err)
		}
		idx, err := indexer.New(db, logger)
		if err != nil {
			log.Fatalf("stabled: event index: %v", err)
		}
		emitter = idx
		lister = idx
		logger.Info("stabled: event index opened", "dsn", logging.RedactDSN(indexDSN))
	}

	registry := adapters.NewRegistry(cfg.Oracle.Retries)
	registry.Logger = logger
	feeds, err := registry.BuildFeeds(cfg.Feeds)
	if err != nil {
		log.Fatalf("stabled: build feeds: %v", err)
	}
	mgr, err := oracle.New(store, feeds, cfg.Oracle.Interval.Duration, cfg.Oracle.MaxAge.Duration, cfg.Oracle.MinSources, oracle.WithLogger(logger))
	if err != nil {
		log.Fatalf("stabled: oracle manager: %v", err)
	}

	var gen *config.Genesis
	params := stable.DefaultParams()
	if path := strings.TrimSpace(cfg.GenesisPath); path != "" {
		gen, err = config.Load(path)
		if err != nil {
			log.Fatalf("stabled: load genesis: %v", err)
		}
		params = gen.Params
	}

	engine, err := stable.NewEngine(state, mgr, func(txn kv.Txn) stable.Transfers {
		return bank.NewLedger(txn)
	}, params)
	if err != nil {
		log.Fatalf("stabled: stable engine: %v", err)
	}
	engine.SetKYC(store)
	engine.SetEmitter(emitter)
	engine.SetLogger(logger)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if gen != nil {
		applied, err := config.Apply(rootCtx, engine, gen, time.Now().UTC())
		if err != nil {
			log.Fatalf("stabled: apply genesis: %v", err)
		}
		if applied {
			logger.Info("stabled: genesis applied", "path", cfg.GenesisPath, "assets", len(gen.Assets), "bonds", len(gen.Bonds))
		} else {
			logger.Info("stabled: state already initialised, genesis skipped", "path", cfg.GenesisPath)
		}
	}

	authenticator, err := server.NewAuthenticator(server.AuthConfig{
		HMACSecret: cfg.Auth.HMACSecret,
		Issuer:     cfg.Auth.Issuer,
		Audience:   cfg.Auth.Audience,
		ClockSkew:  cfg.Auth.ClockSkew.Duration,
	}, logger)
	if err != nil {
		log.Fatalf("stabled: configure auth: %v", err)
	}
	limit := server.RateLimit{
		RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
		Burst:             cfg.RateLimit.Burst,
	}
	srv, err := server.New(server.Config{
		ListenAddress: cfg.ListenAddress,
		RateLimit:     limit,
	}, server.Runtime{
		Engine:  engine,
		Feeds:   mgr,
		Events:  lister,
		KYC:     store,
		Limiter: server.NewRateLimiter(limit),
	}, authenticator, logger)
	if err != nil {
		log.Fatalf("stabled: server: %v", err)
	}

	go func() {
		if err := mgr.Run(rootCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("stabled: oracle manager exited", "error", err)
			stop()
		}
	}()

	if err := srv.Run(rootCtx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("stabled: http server error", "error", err)
		os.Exit(1)
	}
}

func openState(cfg svcconfig.StateConfig) (kv.Database, error) {
	switch cfg.Backend {
	case svcconfig.BackendMemory:
		slog.Warn("stabled: engine state is in memory and will not survive a restart")
		return kv.NewMemDB(), nil
	case svcconfig.BackendLevelDB:
		return kv.NewLevelDB(cfg.Path)
	case svcconfig.BackendBolt:
		return kv.NewBoltDB(cfg.Path, nil)
	default:
		return nil, fmt.Errorf("unknown state backend %q", cfg.Backend)
	}
}
