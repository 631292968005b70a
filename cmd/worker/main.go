package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/vaultsweep/vaultsweep/internal/config"
	"github.com/vaultsweep/vaultsweep/internal/db"
	"github.com/vaultsweep/vaultsweep/internal/kms"
	"github.com/vaultsweep/vaultsweep/internal/notifications"
	"github.com/vaultsweep/vaultsweep/internal/queue"
	"github.com/vaultsweep/vaultsweep/internal/storage"
	"github.com/vaultsweep/vaultsweep/internal/worker"
	"github.com/vaultsweep/vaultsweep/pkg/logger"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	zlog := logger.Must(cfg.App.Env)
	defer zlog.Sync()

	// 1. Init DB
	database, err := db.Connect(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}
	defer database.Close()

	// 2. Init KMS
	if cfg.KMS.Key == "" {
		log.Fatal("KMS key is required (VAULTSWEEP_KMS_KEY)")
	}
	kmsService, err := kms.New(cfg.KMS.Key)
	if err != nil {
		log.Fatalf("failed to init kms: %v", err)
	}

	// 3. Init Storage
	var backend storage.Backend
	var storeErr error
	switch cfg.Storage.Backend {
	case "s3":
		backend, storeErr = storage.New(ctx, cfg.S3, "s3-default")
	case "fs":
		backend, storeErr = storage.NewFSStore(cfg.Storage.FSRoot)
	default:
		log.Fatalf("unknown storage backend: %s", cfg.Storage.Backend)
	}
	if storeErr != nil {
		log.Fatalf("failed to init storage backend %s: %v", cfg.Storage.Backend, storeErr)
	}
	store := storage.NewMultiStore(backend)

	// 4. Policy table
	table, err := cfg.PolicyTable()
	if err != nil {
		log.Fatalf("invalid policy config: %v", err)
	}

	// 5. Notifications
	var notifier notifications.Notifier = &notifications.ConsoleNotifier{}
	if cfg.Notifications.WebhookURL != "" {
		notifier = notifications.NewWebhookNotifier(cfg.Notifications.WebhookURL)
	}

	// 6. Init Queue
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	queueClient := asynq.NewClient(redisOpt)
	defer queueClient.Close()

	// 7. Init Processor
	factory := worker.NewEngineFactory(database, kmsService, store, table, cfg.Worker, zlog)
	pruneProcessor := worker.NewPruneProcessor(database.Users, database.PruneRuns, factory, notifier, zlog)

	// 8. Start Scheduler
	scheduler := worker.NewSweepScheduler(database.Users, queueClient, table, zlog, cfg.Worker.SchedulerInterval)
	go scheduler.Run(ctx)

	// 9. Start Worker Server
	srv := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Worker.Concurrency,
			Queues: map[string]int{
				queue.QueueCritical: 6,
				queue.QueueDefault:  3,
				queue.QueueLow:      1,
			},
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypePruneRun, pruneProcessor.ProcessTask)

	go func() {
		if err := srv.Run(mux); err != nil {
			log.Fatalf("could not run server: %v", err)
		}
	}()

	// 10. Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down worker...")
	srv.Shutdown()
}
