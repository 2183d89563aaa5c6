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
	"github.com/Domenick1991/deskbooking/internal/service/lifecycle"
	"github.com/Domenick1991/deskbooking/internal/service/scheduler"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
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
	logger := logging.New(cfg.Log.Level).With("process", "worker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := bootstrap.OpenPostgres(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	redisQueue := queue.NewRedisQueue(cfg.Redis, cfg.Scheduler.TaskRetention())
	defer redisQueue.Close()

	producer := kafka.NewProducer(cfg.Kafka.Brokers, logger)
	defer producer.Close()

	publisher, closePublisher, err := bootstrap.NewPublisher(cfg, producer)
	if err != nil {
		log.Fatalf("events publisher: %v", err)
	}
	defer closePublisher()

	repos := bootstrap.NewRepositories(pool)
	jobScheduler := bootstrap.NewScheduler(cfg, repos, redisQueue, scheduler.WithLogger(logger))
	catalog := notify.NewCatalog(cfg.Booking.FallbackLocale)

	lifecycleService := lifecycle.NewService(
		repos.Bookings,
		repos.Accounts,
		repos.Groups,
		jobScheduler,
		notify.NewKafkaNotifier(producer, cfg.Kafka.NotificationsTopic),
		catalog,
		publisher,
		lifecycle.WithStrict(cfg.Scheduler.StrictJobs),
		lifecycle.WithAdminAccounts(cfg.Booking.AdminAccountIDs...),
		lifecycle.WithLogger(logger),
	)

	var sender email.Messenger = email.NewLogSender(logger)
	if cfg.Mail.MailerSendKey != "" {
		sender = email.NewDirect(
			email.NewMailerSend(cfg.Mail.MailerSendKey, cfg.Mail.FromName, cfg.Mail.FromEmail),
			email.NewLogSender(logger),
		)
	}
	dispatcher := email.NewDispatcher(sender, logger)

	outbound := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.OutboundTopic, logger)
	defer outbound.Close()
	notifications := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.NotificationsTopic, logger)
	defer notifications.Close()

	runner := queue.NewRunner(
		redisQueue,
		lifecycleService.Handle,
		cfg.Scheduler.PollInterval(),
		cfg.Scheduler.Concurrency,
		queue.WithLogger(logger),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return runner.Run(ctx) })
	g.Go(func() error {
		scheduler.RunEvery(ctx, logger, "sweep", cfg.Scheduler.SweepInterval(), func(ctx context.Context) error {
			res, err := jobScheduler.Sweep(ctx)
			if res.Submitted > 0 || res.Failed > 0 {
				logger.Info("jobs promoted", "submitted", res.Submitted, "skipped", res.Skipped, "failed", res.Failed)
			}
			return err
		})
		return nil
	})
	g.Go(func() error {
		scheduler.RunEvery(ctx, logger, "purge", cfg.Scheduler.PurgeInterval(), func(ctx context.Context) error {
			_, err := jobScheduler.Purge(ctx)
			return err
		})
		return nil
	})
	g.Go(func() error {
		scheduler.RunEvery(ctx, logger, "check_booking_status", cfg.Scheduler.StatusSweepInterval(), func(ctx context.Context) error {
			_, err := lifecycleService.CheckBookingStatus(ctx)
			return err
		})
		return nil
	})
	g.Go(func() error { return outbound.Consume(ctx, dispatcher.HandleOutbound) })
	g.Go(func() error { return notifications.Consume(ctx, dispatcher.HandleNotification) })

	logger.Info("worker started")
	if err := g.Wait(); err != nil && ctx.Err() == nil {
		log.Fatalf("worker stopped: %v", err)
	}
	logger.Info("worker stopped")
}
