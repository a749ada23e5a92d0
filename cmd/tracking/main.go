package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/ignite/campaign-engine/internal/campaign"
	"github.com/ignite/campaign-engine/internal/config"
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

	port := cfg.Server.Port
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			port = p
		}
	}

	awsCfg, err := loadAWSConfig(context.Background(), cfg)
	if err != nil {
		log.Fatalf("loading AWS config: %v", err)
	}

	ddb := dynamodb.NewFromConfig(awsCfg)
	campaignStore := campaign.NewStore(ddb, cfg.Storage.CampaignTable)
	trackingStore := tracking.NewStore(ddb, cfg.Storage.TrackingTable)

	reconciler := tracking.NewReconciler(campaignStore)
	resolver := tracking.NewTieredResolver(
		tracking.NewIndexedResolver(trackingStore),
		tracking.NewHeuristicResolver(campaignStore, tracking.DefaultAttributionWindow),
	)
	processor := tracking.NewProcessor(trackingStore, campaignStore, resolver, reconciler, nil)
	handler := tracking.NewHandler(processor, tracking.NewBotFilter())

	addr := fmt.Sprintf("%s:%d", cfg.Server.GetHost(), port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler.Routes(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("tracking service listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down tracking service...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Shutdown(ctx)
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
