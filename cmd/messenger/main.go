package main

import (
	"context"
	"log"
	"messenger/internal/console"
	"messenger/internal/messenger"
	"messenger/internal/storage"
	"os"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type appConfig struct {
	Env      string `env:"APP_ENV" envDefault:"development"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"warn"`
}

// newLogger writes to stderr only so that log lines do not mix with the console output
func newLogger(cfg appConfig) (*zap.Logger, error) {
	zapCfg := zap.NewDevelopmentConfig()
	if cfg.Env == "production" {
		zapCfg = zap.NewProductionConfig()
	}
	zapCfg.OutputPaths = []string{"stderr"}

	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return nil, err
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}

func main() {
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

	dbCfg := storage.Config{}
	if err := env.Parse(&dbCfg); err != nil {
		sugar.Fatalf("Cannot parse database config: %v", err)
	}

	ctx := context.Background()
	store, err := storage.New(ctx, sugar, dbCfg.DSN(), storage.ConnectionTimeout(10*time.Second))
	if err != nil {
		sugar.Fatalf("Cannot create Store instance: %v", err)
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		sugar.Fatalf("Cannot apply schema: %v", err)
	}

	c := console.New(sugar, messenger.New(sugar, store, messenger.SystemClock), os.Stdin, os.Stdout)
	if err := c.Run(ctx); err != nil {
		sugar.Errorf("Reading commands: %v", err)
	}
}
