package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"entgo.io/ent/dialect"
	"github.com/hashicorp/go-hclog"
	_ "modernc.org/sqlite"

	"github.com/matthewbaird/reportfilter/internal/compiler"
	"github.com/matthewbaird/reportfilter/internal/engine"
	"github.com/matthewbaird/reportfilter/internal/eventbus"
	"github.com/matthewbaird/reportfilter/internal/history"
	"github.com/matthewbaird/reportfilter/internal/planner"
	"github.com/matthewbaird/reportfilter/internal/server"
	"github.com/matthewbaird/reportfilter/internal/tablemap"
)

const eventBufferSize = 256

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := hclog.New(&hclog.LoggerOptions{
		Name:       "reportfilter",
		Level:      hclog.LevelFromString(envString("LOG_LEVEL", "info")),
		JSONFormat: envBool(nil, "LOG_JSON", false),
	})
	if err := run(ctx, logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger hclog.Logger) error {
	mapping := tablemap.Default()
	if path := os.Getenv("TABLE_MAPPING"); path != "" {
		m, err := tablemap.Load(path)
		if err != nil {
			return err
		}
		mapping = m
		logger.Info("loaded table mapping", "path", path, "entities", m.Len())
	}

	optCfg := compiler.OptimizationConfig{
		MaxOrConditionsForIn: envInt(logger, "MAX_OR_CONDITIONS_FOR_IN", compiler.DefaultOptimizationConfig().MaxOrConditionsForIn),
		MaxInValues:          envInt(logger, "MAX_IN_VALUES", compiler.DefaultOptimizationConfig().MaxInValues),
	}
	batchCfg := planner.BatchConfig{
		MaxBatchSize:          envInt(logger, "MAX_BATCH_SIZE", planner.DefaultMaxBatchSize),
		EnableBatchProcessing: envBool(logger, "ENABLE_BATCH_PROCESSING", true),
	}

	reg, err := compiler.NewRegistry(mapping, optCfg, logger)
	if err != nil {
		return err
	}
	c, err := reg.Lookup(envString("SQL_DIALECT", dialect.Postgres))
	if err != nil {
		return err
	}

	dsn := envString("DATABASE_URL", "file:reportfilter.db")
	store, err := history.OpenSQLite(ctx, dsn, logger)
	if err != nil {
		return err
	}
	defer store.Close()
	logger.Info("history store ready", "dsn", dsn)

	bus := eventbus.New(eventBufferSize, logger)
	stats := eventbus.NewStatsConsumer()
	bus.Subscribe("log", eventbus.NewLogConsumer(logger))
	bus.Subscribe("stats", stats)
	bus.Subscribe("history", history.NewRecorder(store))
	// Requests finishing during graceful shutdown still publish; the bus
	// outlives the server and is drained by Stop.
	bus.Start(context.WithoutCancel(ctx))
	defer bus.Stop()

	eng, err := engine.New(
		engine.WithCompiler(c),
		engine.WithBatchConfig(batchCfg),
		engine.WithPublisher(bus),
		engine.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	return server.Run(ctx, server.Config{
		Port:    envInt(logger, "PORT", 8080),
		Engine:  eng,
		Mapping: mapping,
		Stats:   stats,
		History: store,
		Logger:  logger,
	})
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(logger hclog.Logger, key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		logger.Warn("ignoring invalid integer", "env", key, "value", v)
		return def
	}
	return n
}

func envBool(logger hclog.Logger, key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		if logger != nil {
			logger.Warn("ignoring invalid boolean", "env", key, "value", v)
		}
		return def
	}
	return b
}
