package main

import (
	"context"
	"log"
	"messenger/internal/messenger"
	"messenger/internal/server"
	"messenger/internal/storage"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type appConfig struct {
	Env      string `env:"APP_ENV" envDefault:"development"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"debug"`
}

func newLogger(cfg appConfig) (*zap.Logger, error) {
	zapCfg := zap.NewDevelopmentConfig()
	if cfg.Env == "production" {
		zapCfg = zap.NewProductionConfig()
	}

	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return nil, err
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}

func main() {
	// .env is optional, real environment variables take precedence
	_ = godotenv.Load()

	appCfg := appConfig{}
	if err := env.Parse(&appCfg); err != nil {
		log.Fatalf("Cannot parse app config: %v", err)
	}

	logger, err := newLogger(appCfg)
	if err != nil {
		log.Fatalf("Cannot build logger: %v", err)
	}
	defer logger.Sync()

	sugar := logger.Sugar()
	sugar.Info("Application is starting")

	cfg := server.EnvConfig{}
	if err := env.Parse(&cfg); err != nil {
		sugar.Fatalf("Cannot parse env config: %v", err)
	}

	dbCfg := storage.Config{}
	if err := env.Parse(&dbCfg); err != nil {
		sugar.Fatalf("Cannot parse database config: %v", err)
	}

	ctx := context.Background()
	store, err := storage.New(ctx, sugar, dbCfg.DSN(), storage.ConnectionTimeout(30*time.Second))
	if err != nil {
		sugar.Fatalf("Cannot create Store instance: %v", err)
	}

	if err := store.Migrate(ctx); err != nil {
		sugar.Fatalf("Cannot apply schema: %v", err)
	}

	serverOpts := []server.Option{
		server.WithEnvConfig(cfg),
		server.RegisterAfterShutdown(func() {
			sugar.Info("Closing store")
			store.Close()
			sugar.Info("Store is closed")
		}),
	}

	srv, err := server.NewServer(sugar, messenger.New(sugar, store, messenger.SystemClock), serverOpts...)
	if err != nil {
		sugar.Fatalf("Cannot create Server instance: %v", err)
	}

	if err := srv.Start(); err != nil {
		sugar.Fatalf("Cannot start http srv: %v", err)
	}
}
