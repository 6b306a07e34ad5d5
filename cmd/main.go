package main

import (
  "context"
  "fmt"
  "os"
  "os/signal"
  "syscall"

  "github.com/brian-alan-huynh/BearFrom-Intelligent-Search-Engine/internal/clients/pinecone"
  redisclient "github.com/brian-alan-huynh/BearFrom-Intelligent-Search-Engine/internal/clients/redis"
  "github.com/brian-alan-huynh/BearFrom-Intelligent-Search-Engine/internal/db"
  "github.com/brian-alan-huynh/BearFrom-Intelligent-Search-Engine/internal/logger"
  "github.com/brian-alan-huynh/BearFrom-Intelligent-Search-Engine/internal/queue"
  "github.com/brian-alan-huynh/BearFrom-Intelligent-Search-Engine/internal/repos"
  "github.com/brian-alan-huynh/BearFrom-Intelligent-Search-Engine/internal/services"
  "github.com/brian-alan-huynh/BearFrom-Intelligent-Search-Engine/internal/sessions"
  "github.com/brian-alan-huynh/BearFrom-Intelligent-Search-Engine/internal/utils"
)

// application is the request-facing service surface. Routing lives in the API
// layer, which attaches to this struct; the core binary owns construction,
// lifecycle, and the background consumer.
type application struct {
  Auth     services.AuthService
  Activity services.ActivityService
  Pfp      services.PfpService
  Vector   services.VectorService
}

func main() {
  // Logger
  logMode := os.Getenv("LOG_MODE")
  if logMode == "" {
    logMode = "development"
  }
  log, err := logger.New(logMode)
  if err != nil {
    fmt.Printf("Failed to init logger: %v\n", err)
    os.Exit(1)
  }
  defer log.Sync()

  ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
  defer stop()

  // Postgres
  postgresService, err := db.NewPostgresService(log)
  if err != nil {
    log.Error("Postgres init failed", "error", err)
    os.Exit(1)
  }
  if err = postgresService.AutoMigrateAll(); err != nil {
    log.Warn("Postgres auto migration failed", "error", err)
  }
  thePG := postgresService.DB()

  // Redis (session store + offload queue share one connection pool)
  rdb, err := redisclient.New(log)
  if err != nil {
    log.Error("Redis init failed", "error", err)
    os.Exit(1)
  }
  defer rdb.Close()

  // Repos
  log.Info("Setting up Repos from main...")
  userRepo := repos.NewUserRepo(thePG, log)
  userPreferencesRepo := repos.NewUserPreferencesRepo(thePG, log)
  userSearchHistoryRepo := repos.NewUserSearchHistoryRepo(thePG, log)

  // Session store
  sessionStore, err := sessions.NewStore(log, rdb)
  if err != nil {
    log.Error("Could not init SessionStore", "error", err)
    os.Exit(1)
  }

  // Offload queue producer
  producer, err := queue.NewProducer(log, rdb)
  if err != nil {
    log.Error("Could not init QueueProducer", "error", err)
    os.Exit(1)
  }
  defer producer.Close()

  // External side-effect clients
  log.Info("Setting up external clients from main...")
  bucketService, err := services.NewBucketService(log)
  if err != nil {
    log.Error("Could not init BucketService", "error", err)
    os.Exit(1)
  }
  pineconeClient, err := pinecone.New(log, pinecone.Config{
    APIKey: utils.GetEnv("PINECONE_API_KEY", "", log),
  })
  if err != nil {
    log.Error("Could not init PineconeClient", "error", err)
    os.Exit(1)
  }
  vectorStore, err := pinecone.NewVectorStore(log, pineconeClient)
  if err != nil {
    log.Error("Could not init PineconeVectorStore", "error", err)
    os.Exit(1)
  }

  // Offload queue consumer
  executors, err := queue.NewExecutors(log, bucketService, vectorStore)
  if err != nil {
    log.Error("Could not init QueueExecutors", "error", err)
    os.Exit(1)
  }
  consumer, err := queue.NewConsumer(log, rdb, executors)
  if err != nil {
    log.Error("Could not init QueueConsumer", "error", err)
    os.Exit(1)
  }
  consumerDone := make(chan error, 1)
  go func() {
    consumerDone <- consumer.Run(ctx)
  }()

  // Services
  log.Info("Setting up Services from main...")
  reconcileService := services.NewReconcileService(thePG, log, sessionStore, userRepo, userPreferencesRepo, userSearchHistoryRepo)
  app := &application{
    Auth:     services.NewAuthService(thePG, log, userRepo, reconcileService, sessionStore),
    Activity: services.NewActivityService(log, sessionStore, userPreferencesRepo, userSearchHistoryRepo),
    Pfp:      services.NewPfpService(log, userRepo, producer, bucketService),
    Vector:   services.NewVectorService(log, producer, sessionStore, vectorStore),
  }
  _ = app

  log.Info("BearFrom core is up")

  <-ctx.Done()
  log.Info("Shutdown signal received, draining...")
  if err := <-consumerDone; err != nil {
    log.Error("Queue consumer exited with error", "error", err)
  }
  if err := producer.Close(); err != nil {
    log.Warn("Producer final flush failed", "error", err)
  }
}
