package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Domenick1991/deskbooking/config"
	"github.com/Domenick1991/deskbooking/internal/bootstrap"
	"github.com/Domenick1991/deskbooking/internal/email"
	"github.com/Domenick1991/deskbooking/internal/kafka"
	"github.com/Domenick1991/deskbooking/internal/logging"
	"github.com/Domenick1991/deskbooking/internal/notify"
	"github.com/Domenick1991/deskbooking/internal/queue"
	"github.com/Domenick1991/deskbooking/internal/service/booking"
	"github.com/Domenick1991/deskbooking/internal/service/group"
	"github.com/Domenick1991/deskbooking/internal/service/scheduler"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := logging.New(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := bootstrap.OpenPostgres(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	redisQueue := queue.NewRedisQueue(cfg.Redis, cfg.Scheduler.TaskRetention())
	defer redisQueue.Close()
	if err := redisQueue.Ping(ctx); err != nil {
		log.Fatalf("connect redis: %v", err)
	}

	producer := kafka.NewProducer(cfg.Kafka.Brokers, logger)
	defer producer.Close()
	if err := producer.CheckConnection(ctx); err != nil {
		logger.Warn("kafka unreachable, events and invitations will fail until it recovers", "error", err)
	}

	publisher, closePublisher, err := bootstrap.NewPublisher(cfg, producer)
	if err != nil {
		log.Fatalf("events publisher: %v", err)
	}
	defer closePublisher()

	repos := bootstrap.NewRepositories(pool)
	jobScheduler := bootstrap.NewScheduler(cfg, repos, redisQueue, scheduler.WithLogger(logger))

	bookingService := booking.NewBookingService(
		repos.Bookings,
		repos.Tables,
		repos.Accounts,
		repos.Groups,
		repos.Tx,
		jobScheduler,
		publisher,
		booking.WithGraceWindow(cfg.Booking.GraceWindow()),
		booking.WithLogger(logger),
	)
	groupService := group.NewGroupService(
		repos.Groups,
		repos.Bookings,
		repos.Tx,
		bookingService,
		jobScheduler,
		publisher,
		email.NewOutbox(producer.Retrying(3), cfg.Kafka.OutboundTopic),
		group.NewContactResolver(cfg.Booking.DefaultPhoneRegion),
		notify.NewCatalog(cfg.Booking.FallbackLocale),
		group.WithGuestLocale(cfg.Booking.FallbackLocale),
		group.WithLogger(logger),
	)

	if err := bootstrap.Run(ctx, cfg, logger, bookingService, groupService); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
