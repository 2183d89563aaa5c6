package bootstrap

import (
	"context"
	"fmt"

	"github.com/Domenick1991/deskbooking/config"
	"github.com/Domenick1991/deskbooking/internal/events"
	"github.com/Domenick1991/deskbooking/internal/kafka"
	"github.com/Domenick1991/deskbooking/internal/queue"
	"github.com/Domenick1991/deskbooking/internal/repository"
	"github.com/Domenick1991/deskbooking/internal/service/scheduler"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repositories groups the Postgres-backed stores shared by the api and worker processes.
type Repositories struct {
	Bookings repository.BookingRepository
	Tables   repository.TableRepository
	Accounts repository.AccountRepository
	Groups   repository.GroupRepository
	Jobs     repository.JobRepository
	Tx       repository.Transactor
}

func OpenPostgres(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if cfg.Migrate {
		if err := repository.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	return pool, nil
}

func NewRepositories(db repository.DB) Repositories {
	return Repositories{
		Bookings: repository.NewBookingRepository(db),
		Tables:   repository.NewTableRepository(db),
		Accounts: repository.NewAccountRepository(db),
		Groups:   repository.NewGroupRepository(db),
		Jobs:     repository.NewJobRepository(db),
		Tx:       repository.NewTransactor(db),
	}
}

// NewPublisher returns the booking event publisher selected by events.driver. The returned
// close function releases the broker connection when it is owned by the publisher.
func NewPublisher(cfg *config.Config, producer *kafka.Producer) (events.Publisher, func() error, error) {
	switch cfg.Events.Driver {
	case "nats":
		p, err := events.NewNATSPublisher(cfg.NATS.URL, "desk")
		if err != nil {
			return nil, nil, err
		}
		return p, p.Close, nil
	case "kafka":
		return events.NewKafkaPublisher(producer, cfg.Kafka.BookingEventsTopic), func() error { return nil }, nil
	case "none":
		return events.Nop{}, func() error { return nil }, nil
	}
	return nil, nil, fmt.Errorf("unknown events driver %q", cfg.Events.Driver)
}

func NewScheduler(cfg *config.Config, repos Repositories, q *queue.RedisQueue, opts ...scheduler.Option) *scheduler.Scheduler {
	timing := scheduler.Timing{
		Grace:          cfg.Booking.GraceWindow(),
		OncomingNotice: cfg.Booking.OncomingNotice(),
		EndingSoon:     cfg.Booking.EndingSoon(),
		Lookahead:      cfg.Scheduler.Lookahead(),
	}
	return scheduler.NewScheduler(repos.Jobs, q, timing, cfg.Booking.FallbackLocale, opts...)
}
