package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/leafsii/leafsii-farm/internal/api"
	"github.com/leafsii/leafsii-farm/internal/config"
	"github.com/leafsii/leafsii-farm/internal/initializer"
	"github.com/leafsii/leafsii-farm/internal/log"
	"github.com/leafsii/leafsii-farm/internal/service"
	"github.com/leafsii/leafsii-farm/pkg/kv"
	_ "github.com/leafsii/leafsii-farm/pkg/kv/memory"
	_ "github.com/leafsii/leafsii-farm/pkg/kv/redis"
)

var (
	flags      = flag.NewFlagSet("initializer", flag.ExitOnError)
	genesisArg = flags.String("genesis", "", "genesis file (default FARM_GENESIS_PATH or genesis.json)")
	printToken = flags.Bool("print-token", false, "print an admin bearer token after initializing")
	tokenTTL   = flags.Duration("token-ttl", 24*time.Hour, "lifetime of the printed token; 0 never expires")
)

func main() {
	flags.Parse(os.Args[1:])

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := log.NewSugar(cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	path := *genesisArg
	if path == "" {
		path = cfg.Farm.GenesisPath
	}
	if path == "" {
		path = "genesis.json"
	}

	genesis, err := initializer.ReadGenesis(path)
	if errors.Is(err, os.ErrNotExist) {
		genesis = initializer.DefaultGenesis(cfg.Farm.Admin)
		if err := initializer.WriteGenesis(path, genesis); err != nil {
			logger.Fatalw("Failed to write default genesis", "path", path, "error", err)
		}
		logger.Infow("Wrote default genesis", "path", path)
	} else if err != nil {
		logger.Fatalw("Failed to read genesis", "path", path, "error", err)
	}

	kvStore, err := kv.NewStoreFromConfig(cfg.KV())
	if err != nil {
		logger.Fatalw("Failed to open farm state store", "error", err)
	}
	defer kvStore.Close()
	if cfg.KV().Backend == kv.BackendMemory {
		logger.Warnw("Initializing an in-memory store; state is lost on exit")
	}

	svc := service.New(kvStore, service.Options{Logger: logger, Faucet: cfg.Farm.DevFaucet})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result, err := initializer.Initialize(ctx, svc, genesis, logger)
	if err != nil {
		logger.Fatalw("Initialization failed", "error", err)
	}

	fmt.Println("authority: ", result.Authority)
	fmt.Println("created:   ", result.Created)
	fmt.Println("new pools: ", result.NewPools)
	if result.Funded != "" {
		fmt.Println("funded:    ", result.Funded)
	}

	if *printToken {
		token, err := api.NewAuthenticator(cfg.Security.JWTSecret).IssueToken(result.Authority, *tokenTTL)
		if err != nil {
			logger.Fatalw("Failed to issue token", "error", err)
		}
		fmt.Println("token:     ", token)
	}
}
