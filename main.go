package main

import (
	"context"
	"log"
	"os"
	"time"

	"teamassist/internal/api"
	"teamassist/internal/auth"
	"teamassist/internal/cache"
	"teamassist/internal/config"
	"teamassist/internal/memory"
	"teamassist/internal/risk"
	"teamassist/internal/service/ai"
	"teamassist/internal/service/assistant"
	"teamassist/internal/storage"
	"teamassist/internal/worker"

	"github.com/gin-gonic/gin"
)

func main() {
	cfgPath := os.Getenv("TEAMASSIST_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	dbType := os.Getenv("TEAMASSIST_DB")
	if dbType == "" {
		dbType = "sqlite3"
	}
	log.Printf("dbType: %s\n", dbType)
	db, err := storage.Open(dbType, cfg)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()
	if err := storage.Migrate(db, dbType); err != nil {
		log.Fatalf("migrate database: %v", err)
	}
	store := storage.NewStore(db)

	rdb, err := cache.NewClient(cfg)
	if err != nil {
		log.Printf("redis unavailable, identity and token caching disabled: %v", err)
		rdb = nil
	} else {
		defer rdb.Close()
	}

	var cipher memory.Cipher
	if cfg.BasicConfig.EncryptMessages {
		cipher, err = memory.NewCipherFromEnv()
		if err != nil {
			log.Fatalf("message encryption enabled but unusable: %v", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	kb, err := ai.LoadKnowledgeBase(ctx, cfg.BasicConfig.KnowledgeDir)
	if err != nil {
		log.Printf("knowledge base disabled: %v", err)
		kb = nil
	}

	provider := cfg.BasicConfig.Provider
	if provider == "" {
		provider = "openai"
	}
	aiService, err := ai.NewService(cfg, provider, kb)
	if err != nil {
		log.Fatalf("init ai service: %v", err)
	}

	resolver := assistant.NewIdentityResolver(store, rdb)
	mem := memory.NewManager(store, resolver, aiService, cipher, cfg.Memory)
	assistantService := assistant.NewService(store, resolver, mem, risk.NewStoreLogger(store), aiService)

	authService := auth.NewService(db, rdb, 24*time.Hour)
	authService.StartTokenCleaner(ctx, auth.DefaultTokenCleanupInterval)

	dispatcher := worker.NewDispatcher(
		cfg.BasicConfig.MinWorkers,
		cfg.BasicConfig.MaxWorkers,
		cfg.BasicConfig.QueueSize,
		time.Duration(cfg.BasicConfig.WorkerIdleTimeout)*time.Minute,
	)
	defer dispatcher.Stop()

	handlers := api.NewHandler(assistantService, authService, store, dispatcher)

	router := gin.Default()
	handlers.RegisterRoutes(router)

	addr := cfg.BasicConfig.ServerAddress
	if addr == "" {
		addr = ":8090"
	}

	if err := router.Run(addr); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}
