package main

import (
	"context"
	"log"

	"github.com/joho/godotenv"

	"relayq/internal/app"
	"relayq/pkg/config"
	"relayq/pkg/logger"
	"relayq/pkg/shutdown"
)

func main() {
	// build metadata - set via ldflags during build/release
	var version = "dev"

	_ = godotenv.Load(".env")
	addrVal, dbVal, cfgVal, setFlags := config.ParseCommandFlags()

	cfgPath := config.ResolveConfigPath(cfgVal, setFlags["config"])
	cfg, envUsed, err := config.LoadEffective(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// explicit flags win over env and file values
	if setFlags["addr"] && addrVal != "" {
		cfg.Server.Address = addrVal
		cfg.Server.Port = 0 // addr flag carries the full host:port
	}
	if setFlags["db"] && dbVal != "" {
		cfg.Storage.DBPath = dbVal
	}

	logger.InitWithLevel(cfg.Logging.Level)
	logger.Info("starting", "version", version, "db", cfg.Storage.DBPath, "addr", cfg.Addr(), "env_overrides", envUsed)

	a, err := app.New(cfg, version)
	if err != nil {
		shutdown.Abort("initialization failed", err, cfg.Storage.DBPath)
	}

	ctx, cancel := shutdown.SetupSignalHandler(context.Background())
	defer cancel()

	if err := a.Run(ctx); err != nil {
		shutdown.Abort("daemon exited with error", err, cfg.Storage.DBPath)
	}
	logger.Info("stopped")
}
