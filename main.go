package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/digitalaxis/axisgate/cmd"
	"github.com/digitalaxis/axisgate/internal/gateway"
	"github.com/digitalaxis/axisgate/internal/hub"
	"github.com/digitalaxis/axisgate/internal/metrics"
	"github.com/digitalaxis/axisgate/internal/rest"
	inmemRoom "github.com/digitalaxis/axisgate/internal/storage/room/inmemory"
	"github.com/digitalaxis/axisgate/internal/utils"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML config file")
	flag.Parse()

	bootLogger, _ := zap.NewDevelopment()
	config, err := cmd.LoadConfig(*configPath, bootLogger)
	if err != nil {
		bootLogger.Fatal("Invalid configuration", zap.Error(err))
	}
	_ = bootLogger.Sync()

	logger, err := utils.NewCustomLogger(config.Apps.LogLevel, config.Apps.LogToFiles)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	broker, err := newBroker(config, logger)
	if err != nil {
		logger.Fatal("Failed to set up hub broker", zap.Error(err))
	}

	realtimeHub := hub.New(&hub.Config{
		Rooms:      inmemRoom.NewStorage(logger),
		Broker:     broker,
		SendBuffer: config.Apps.Hub.SendBuffer,
		Logger:     logger,
	})

	var appMetrics *metrics.Metrics
	if config.Apps.Rest.Metrics {
		appMetrics = metrics.NewMetrics()
		appMetrics.RegisterHub(realtimeHub.Stats)
	}

	restApp, err := rest.NewRest(context.Background(), &rest.Config{
		Port:             config.Apps.Rest.Port,
		AllowedOrigins:   config.Apps.Rest.AllowedOrigins,
		AuthRateLimit:    config.Apps.Rest.AuthRateLimit,
		RequestTimeout:   config.Apps.Rest.RequestTimeout,
		JwtSecret:        config.Apps.Rest.JWT.Secret,
		JwtTTL:           config.Apps.Rest.JWT.TTL,
		UsersStorageType: config.Storage.Users.Type,
		PostgresDSN:      config.Storage.Users.PostgresDSN,
		Gateway: gateway.Config{
			PredictURL: config.Model.PredictURL,
			HealthURL:  config.Model.HealthURL,
			Timeout:    config.Model.Timeout,
			MaxRetries: config.Model.MaxRetries,
		},
		Hub:     realtimeHub,
		Metrics: appMetrics,
		Logger:  logger,
	})
	if err != nil {
		logger.Fatal("Failed to set up rest app", zap.Error(err))
	}

	appsManager := cmd.NewAppsManager(logger)

	appsManager.Register(cmd.HubApp, realtimeHub)
	appsManager.Register(cmd.RestApp, restApp)
	appsManager.RunAll()
	if appsManager.WaitForShutdown() {
		_ = logger.Sync()
		os.Exit(1)
	}
}

// newBroker returns nil for in-process delivery.
func newBroker(config *cmd.Config, logger *zap.Logger) (hub.Broker, error) {
	if config.Apps.Hub.Broker != hub.RedisBrokerType {
		logger.Info("Using local hub broker")
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Apps.Hub.RedisAddress,
		Password: config.Apps.Hub.RedisPassword,
		DB:       config.Apps.Hub.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	logger.Info("Using redis hub broker", zap.String("address", config.Apps.Hub.RedisAddress))
	return hub.NewRedisBroker(client, config.Apps.Hub.RedisChannel, logger), nil
}
