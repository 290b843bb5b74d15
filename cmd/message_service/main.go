package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"civic_message_service/internal/directory"
	"civic_message_service/internal/messaging/app"
	"civic_message_service/internal/messaging/domain"
	"civic_message_service/internal/messaging/repository"
	"civic_message_service/internal/messaging/router"
	"civic_message_service/pkg/config"
	"civic_message_service/pkg/database"
	"civic_message_service/pkg/logger"
	"civic_message_service/pkg/middlewares"

	"github.com/gofiber/fiber/v2"
	fiber_log "github.com/gofiber/fiber/v2/middleware/logger"
	"go.uber.org/zap"
)

func main() {
	logger.Log = logger.Initialize(config.EnvConfig.MessageService, config.EnvConfig.MessageServiceLogPath)
	cfg := config.LoadConfig[config.Messaging](config.EnvConfig.MessageService, config.EnvConfig.MessageServiceYAMLPath)

	ctx := context.Background()

	// PostgreSQL holds conversations and messages
	pgDSN := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		cfg.PostgreSQL.Host, cfg.PostgreSQL.User, cfg.PostgreSQL.Password, cfg.PostgreSQL.Database, cfg.PostgreSQL.Port)
	db, err := database.NewDatabaseConnection(database.Connection{
		ConnectStr:    pgDSN,
		RetryCount:    cfg.PostgreSQL.RetryCount,
		RetryInterval: time.Duration(cfg.PostgreSQL.RetryInterval),
	})
	if err != nil {
		logger.Log.Fatal("Unable to connect to postgres database after retries", zap.Error(err))
	}
	if err := db.AutoMigrate(&domain.Conversation{}, &domain.Message{}); err != nil {
		logger.Log.Fatal("auto migrate failed", zap.Error(err))
	}

	// Mongo holds the shared user directory
	mongoURI := fmt.Sprintf("mongodb://%s:%s@%s:%d", cfg.Mongo.User, cfg.Mongo.Password, cfg.Mongo.Host, cfg.Mongo.Port)
	mongo, err := database.NewMongoDB(ctx,
		database.Connection{
			ConnectStr:    mongoURI,
			RetryCount:    cfg.Mongo.RetryCount,
			RetryInterval: time.Duration(cfg.Mongo.RetryInterval),
		},
		cfg.Mongo.Database)
	if err != nil {
		logger.Log.Fatal(
			"Unable to connect to mongoDB database after retries",
			zap.String("address", fmt.Sprintf("[%s]", mongoURI)),
			zap.Error(err),
		)
	}
	defer mongo.Close(ctx)

	// Redis holds presence, typing indicators and the presence pub/sub
	masterName, sentinel := config.GetRedisSetting()
	redisClient, err := database.NewRedisClient(masterName, sentinel, cfg.Redis.RedisDB)
	if err != nil {
		logger.Log.Fatal(fmt.Sprintf("connect redis err : %v", err))
	}

	// RabbitMQ carries push alerts for offline recipients. Optional: a
	// failed connect degrades to no offline pushes instead of refusing to
	// start.
	var dispatcher repository.PushDispatcher
	rabbitConn, err := database.ConnectRabbitMQWithRetry(database.Connection{
		ConnectStr:    cfg.Rabbit.URL,
		RetryCount:    cfg.Rabbit.RetryCount,
		RetryInterval: time.Duration(cfg.Rabbit.RetryInterval),
	})
	if err != nil {
		logger.Log.Warn("rabbitmq unavailable, offline push disabled", zap.Error(err))
	} else {
		defer rabbitConn.Close()
		channel, err := database.GetRabbitMQChannelWithRetry(rabbitConn, cfg.Rabbit.RetryCount, time.Duration(cfg.Rabbit.RetryInterval))
		if err != nil {
			logger.Log.Warn("rabbitmq channel unavailable, offline push disabled", zap.Error(err))
		} else {
			dispatcher = repository.NewAMQPPushDispatcher(database.NewRabbitRepository(channel), cfg.Rabbit.Exchange)
		}
	}

	// Kafka carries the message lifecycle stream. Optional as well.
	var events repository.EventStream
	kafkaWriter, err := database.NewKafkaWriterWithRetry(database.KafkaConnection{
		Brokers:       cfg.Kafka.Brokers,
		Topic:         cfg.Kafka.Topic,
		RetryCount:    cfg.Kafka.RetryCount,
		RetryInterval: time.Duration(cfg.Kafka.RetryInterval),
	})
	if err != nil {
		logger.Log.Warn("kafka unavailable, lifecycle events disabled", zap.Error(err))
	} else {
		defer kafkaWriter.Close()
		events = repository.NewKafkaEventStream(kafkaWriter)
	}

	convRepo := repository.NewConversationRepository(db)
	msgRepo := repository.NewMessageRepository(db)
	presenceRepo := repository.NewPresenceRepository(redisClient)
	typingRepo := repository.NewTypingRepository(redisClient, cfg.TypingTTL)
	pubsub := repository.NewRedisPubSub(redisClient)
	users := directory.NewMongoUserDirectory(mongo.Database)

	registry := app.NewConnectionRegistry()

	conversationUC := app.NewConversationUseCase(convRepo)
	messageUC := app.NewMessageUseCase(convRepo, msgRepo, cfg.MaxMessageLength)
	deliveryUC := app.NewDeliveryUseCase(messageUC, convRepo, msgRepo, presenceRepo, registry, dispatcher, events)
	typingUC := app.NewTypingUseCase(convRepo, typingRepo, registry)
	callRelay := app.NewCallRelayUseCase(convRepo, registry)

	wsHandler := app.NewMessagingWebsocketHandler(conversationUC, messageUC, deliveryUC, typingUC, callRelay, presenceRepo, registry, pubsub)
	restHandler := app.NewMessagingRestHandler(conversationUC, messageUC, deliveryUC, typingUC, presenceRepo, users)

	r := fiber.New()
	file, err := os.OpenFile(fmt.Sprintf("%s/access.log", config.EnvConfig.MessageServiceLogPath), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		log.Fatalf("Failed to open log file: %v", err)
	}
	defer file.Close()

	r.Use(fiber_log.New(fiber_log.Config{
		Output: file,
	}))

	router.RegisterRoutes(r, middlewares.NewJWTResolver(), wsHandler, restHandler)

	port := ":" + cfg.Port
	log.Printf("Message Service listening on %s", port)
	if err := r.Listen(port); err != nil {
		log.Fatalf("Failed to start Fiber: %v", err)
	}
}
