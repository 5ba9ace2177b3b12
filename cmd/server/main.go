package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/dealdesk/dealdesk/internal/bus"
	"github.com/dealdesk/dealdesk/internal/catalog"
	"github.com/dealdesk/dealdesk/internal/config"
	"github.com/dealdesk/dealdesk/internal/db"
	"github.com/dealdesk/dealdesk/internal/metrics"
	"github.com/dealdesk/dealdesk/internal/negotiation"
	"github.com/dealdesk/dealdesk/internal/reasoning"
	"github.com/dealdesk/dealdesk/internal/server"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: ./configs/config.yaml)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	config.InitLogger(cfg.App.LogLevel, cfg.App.LogFormat)
	log.Info().
		Str("version", cfg.App.Version).
		Str("environment", cfg.App.Environment).
		Msg("Starting DealDesk")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Secrets from Vault override file/env values when enabled; failure is
	// non-fatal and falls back to the environment.
	vaultCfg := config.GetVaultConfigFromEnv()
	if vaultCfg.Enabled {
		if err := config.LoadSecretsFromVault(ctx, cfg, vaultCfg); err != nil {
			log.Warn().Err(err).Msg("Vault secrets unavailable, using environment values")
		}
	}

	cat, err := catalog.Load(cfg.Catalog.Dir)
	if err != nil {
		log.Fatal().Err(err).Str("dir", cfg.Catalog.Dir).Msg("Failed to load catalog")
	}
	log.Info().
		Int("products", len(cat.LoadProducts())).
		Int("counterparties", len(cat.Counterparties())).
		Msg("Catalog loaded")

	// Event bus: embedded server for single-binary deployments, external URL
	// otherwise. The negotiation engine works without it, so failures degrade.
	natsURL := cfg.NATS.URL
	if cfg.NATS.Embedded {
		ns, url, err := bus.StartEmbeddedServer("127.0.0.1", -1)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to start embedded NATS server")
		}
		defer ns.Shutdown()
		natsURL = url
	}
	eventBus, err := bus.Connect(bus.Config{URL: natsURL, Prefix: "dealdesk."})
	if err != nil {
		log.Error().Err(err).Msg("Event bus unavailable, continuing without it")
		eventBus = nil
	} else {
		defer eventBus.Close()
	}

	// Outcome store is optional: no database URL means nothing is persisted
	var store *db.DB
	if cfg.Database.URL != "" {
		store, err = db.New(ctx, cfg.Database.URL, int32(cfg.Database.PoolSize))
		if err != nil {
			log.Error().Err(err).Msg("Outcome store unavailable, continuing without it")
			store = nil
		} else {
			defer store.Close()
		}
	}

	var cache *reasoning.ResponseCache
	if cfg.Reasoning.EnableCaching {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.GetRedisAddr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		cache = reasoning.NewResponseCache(redisClient, cfg.Reasoning.GetCacheTTL())
	}

	svc := reasoning.NewClient(reasoning.ClientConfig{
		Endpoint:    cfg.Reasoning.Endpoint,
		APIKey:      cfg.Reasoning.APIKey,
		Model:       cfg.Reasoning.Model,
		Temperature: cfg.Reasoning.Temperature,
		MaxTokens:   cfg.Reasoning.MaxTokens,
		MaxRetries:  cfg.Reasoning.MaxRetries,
		Timeout:     cfg.Reasoning.GetTimeout(),
		Cache:       cache,
	})

	var recorder negotiation.OutcomeRecorder
	var sink negotiation.Sink
	if store != nil {
		recorder = store
	}
	if eventBus != nil {
		sink = eventBus
	}

	orchestrator := negotiation.New(negotiation.Config{
		Rounds:              cfg.Negotiation.Rounds,
		DisclosureFromRound: cfg.Negotiation.DisclosureFromRound,
		PublisherBuffer:     cfg.Negotiation.EventBuffer,
	}, cat, svc, sink, recorder, log.Logger)

	var metricsServer *metrics.Server
	if cfg.Monitoring.EnableMetrics {
		metricsServer = metrics.NewServer(cfg.Monitoring.PrometheusPort, log.Logger)
		go func() {
			if err := metricsServer.Start(); err != nil {
				log.Error().Err(err).Msg("Metrics server error")
			}
		}()

		updater := metrics.NewUpdater(store.Pool(), 15*time.Second)
		go updater.Start(ctx)
		defer updater.Stop()
	}

	httpServer := server.NewServer(server.Config{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		StaticDir:    cfg.Server.StaticDir,
		Orchestrator: orchestrator,
		Catalog:      cat,
		DB:           store,
		Bus:          eventBus,
	})

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- httpServer.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		log.Error().Err(err).Msg("Server error")
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	}

	log.Info().Msg("Shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Failed to stop HTTP server gracefully")
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Failed to stop metrics server gracefully")
		}
	}

	log.Info().Msg("DealDesk stopped")
}
