package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/campaign-engine/internal/campaign"
	"github.com/ignite/campaign-engine/internal/config"
	"github.com/ignite/campaign-engine/internal/drip"
	"github.com/ignite/campaign-engine/internal/queue"
	"github.com/ignite/campaign-engine/internal/sender"
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
	if cfg.Queues.SendQueueURL == "" {
		log.Fatal("queues.send_queue_url (SQS_SEND_QUEUE_URL) is required")
	}
	if cfg.Tracking.Domain == "" {
		log.Fatal("tracking.domain (TRACKING_DOMAIN) is required")
	}
	if cfg.SES.FromEmail == "" {
		log.Fatal("ses.from_email (SES_FROM_EMAIL) is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		log.Fatalf("loading AWS config: %v", err)
	}

	ddb := dynamodb.NewFromConfig(awsCfg)
	campaignStore := campaign.NewStore(ddb, cfg.Storage.CampaignTable)
	trackingStore := tracking.NewStore(ddb, cfg.Storage.TrackingTable)
	reconciler := tracking.NewReconciler(campaignStore)

	sesSender, err := sender.NewSESSender(ctx, cfg.SES.AccessKey, cfg.SES.SecretKey, cfg.SES.Region, cfg.SES.ConfigurationSet)
	if err != nil {
		log.Fatalf("initializing SES sender: %v", err)
	}

	dispatcher := sender.NewDispatcher(sesSender, trackingStore, campaignStore, reconciler, cfg.Tracking.Domain, cfg.SES.FromEmail)

	sqsClient := sqs.NewFromConfig(awsCfg)
	sendConsumer := queue.NewConsumer(sqsClient, cfg.Queues.SendQueueURL, "send", sender.SendJobHandler(campaignStore, dispatcher))
	sendConsumer.Start(ctx)
	defer sendConsumer.Stop()

	if cfg.Queues.FollowupQueueURL != "" {
		var rdb *redis.Client
		if cfg.Redis.Addr != "" {
			rdb = redis.NewClient(&redis.Options{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
		}
		sendPub := queue.NewPublisher(sqsClient, cfg.Queues.SendQueueURL)
		followup := drip.NewFollowupHandler(campaignStore, trackingStore, sendPub, rdb)
		followupConsumer := queue.NewConsumer(sqsClient, cfg.Queues.FollowupQueueURL, "followup", followup.HandleMessage)
		followupConsumer.Start(ctx)
		defer followupConsumer.Stop()
	} else {
		log.Println("[Worker] no follow-up queue configured, drip branching disabled")
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down worker...")
	cancel()
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
