package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/scheduler"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/campaign-engine/internal/api"
	"github.com/ignite/campaign-engine/internal/archive"
	"github.com/ignite/campaign-engine/internal/campaign"
	"github.com/ignite/campaign-engine/internal/config"
	"github.com/ignite/campaign-engine/internal/drip"
	"github.com/ignite/campaign-engine/internal/queue"
	"github.com/ignite/campaign-engine/internal/tracking"
)

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	cfg, err := config.LoadFromEnv(cfgPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	ctx := context.Background()
	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		log.Fatalf("loading AWS config: %v", err)
	}

	ddb := dynamodb.NewFromConfig(awsCfg)
	campaignStore := campaign.NewStore(ddb, cfg.Storage.CampaignTable)
	trackingStore := tracking.NewStore(ddb, cfg.Storage.TrackingTable)

	sqsClient := sqs.NewFromConfig(awsCfg)
	if cfg.Queues.SendQueueURL == "" {
		log.Fatal("queues.send_queue_url (SQS_SEND_QUEUE_URL) is required")
	}
	sendPub := queue.NewPublisher(sqsClient, cfg.Queues.SendQueueURL)

	var sendTimer, followupTimer drip.TimerService
	if cfg.Drip.SchedulerRoleARN != "" {
		schedClient := scheduler.NewFromConfig(awsCfg)
		if cfg.Queues.SendQueueARN != "" {
			sendTimer = drip.NewSchedulerService(schedClient, cfg.Drip.SchedulerGroup, cfg.Drip.SchedulerRoleARN, cfg.Queues.SendQueueARN)
		}
		if cfg.Queues.FollowupQueueARN != "" {
			followupTimer = drip.NewSchedulerService(schedClient, cfg.Drip.SchedulerGroup, cfg.Drip.SchedulerRoleARN, cfg.Queues.FollowupQueueARN)
		}
	}
	if followupTimer == nil {
		log.Println("[Server] no follow-up scheduler configured, drip campaigns will not branch")
	}

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	var archiver tracking.Archiver
	if cfg.Archive.Enabled && cfg.Archive.Bucket != "" {
		archiver = archive.NewS3Archiver(s3.NewFromConfig(awsCfg), cfg.Archive.Bucket)
	}

	resolver := tracking.NewTieredResolver(
		tracking.NewIndexedResolver(trackingStore),
		tracking.NewHeuristicResolver(campaignStore, tracking.DefaultAttributionWindow),
	)
	reconciler := tracking.NewReconciler(campaignStore)
	processor := tracking.NewProcessor(trackingStore, campaignStore, resolver, reconciler, archiver)

	svc := api.NewService(campaignStore, trackingStore, sendPub, sendTimer, followupTimer, processor, rdb, cfg.Redis.StatsTTL())

	addr := fmt.Sprintf("%s:%d", cfg.Server.GetHost(), cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      svc.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("campaign API listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down campaign API...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
}

func loadAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	if profile := cfg.AWS.GetProfile(); profile != "" {
		return awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.AWS.Region),
			awsconfig.WithSharedConfigProfile(profile),
		)
	}
	return awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
}
