package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const envPrefix = "DESK"

type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	GRPC      GRPCConfig      `yaml:"grpc"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	NATS      NATSConfig      `yaml:"nats"`
	Events    EventsConfig    `yaml:"events"`
	Auth      AuthConfig      `yaml:"auth"`
	Mail      MailConfig      `yaml:"mail"`
	Booking   BookingConfig   `yaml:"booking"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Log       LogConfig       `yaml:"log"`
}

type HTTPConfig struct {
	Address    string `yaml:"address" envconfig:"ADDRESS"`
	SwaggerDir string `yaml:"swagger_dir" envconfig:"SWAGGER_DIR"`
}

type GRPCConfig struct {
	Address string `yaml:"address" envconfig:"ADDRESS"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host" envconfig:"HOST"`
	Port     int    `yaml:"port" envconfig:"PORT"`
	User     string `yaml:"user" envconfig:"USER"`
	Password string `yaml:"password" envconfig:"PASSWORD"`
	Name     string `yaml:"name" envconfig:"NAME"`
	SSLMode  string `yaml:"ssl_mode" envconfig:"SSL_MODE"`
	MaxConns int32  `yaml:"max_conns" envconfig:"MAX_CONNS"`
	Migrate  bool   `yaml:"migrate" envconfig:"MIGRATE"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s", d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type RedisConfig struct {
	Addr     string `yaml:"addr" envconfig:"ADDR"`
	Password string `yaml:"password" envconfig:"PASSWORD"`
	DB       int    `yaml:"db" envconfig:"DB"`
}

type KafkaConfig struct {
	Brokers            []string `yaml:"brokers" envconfig:"BROKERS"`
	BookingEventsTopic string   `yaml:"booking_events_topic" envconfig:"BOOKING_EVENTS_TOPIC"`
	NotificationsTopic string   `yaml:"notifications_topic" envconfig:"NOTIFICATIONS_TOPIC"`
	OutboundTopic      string   `yaml:"outbound_topic" envconfig:"OUTBOUND_TOPIC"`
	GroupID            string   `yaml:"group_id" envconfig:"GROUP_ID"`
}

type NATSConfig struct {
	URL string `yaml:"url" envconfig:"URL"`
}

// EventsConfig selects the broker booking events are published to: "kafka" or "nats".
type EventsConfig struct {
	Driver string `yaml:"driver" envconfig:"DRIVER"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" envconfig:"JWT_SECRET"`
}

type MailConfig struct {
	MailerSendKey string `yaml:"mailersend_key" envconfig:"MAILERSEND_KEY"`
	FromName      string `yaml:"from_name" envconfig:"FROM_NAME"`
	FromEmail     string `yaml:"from_email" envconfig:"FROM_EMAIL"`
}

type BookingConfig struct {
	GraceWindowMinutes    int      `yaml:"grace_window_minutes" envconfig:"GRACE_WINDOW_MINUTES"`
	OncomingNoticeMinutes int      `yaml:"oncoming_notice_minutes" envconfig:"ONCOMING_NOTICE_MINUTES"`
	EndingSoonMinutes     int      `yaml:"ending_soon_minutes" envconfig:"ENDING_SOON_MINUTES"`
	FallbackLocale        string   `yaml:"fallback_locale" envconfig:"FALLBACK_LOCALE"`
	DefaultPhoneRegion    string   `yaml:"default_phone_region" envconfig:"DEFAULT_PHONE_REGION"`
	AdminAccountIDs       []string `yaml:"admin_account_ids" envconfig:"ADMIN_ACCOUNT_IDS"`
}

type SchedulerConfig struct {
	LookaheadMinutes     int  `yaml:"lookahead_minutes" envconfig:"LOOKAHEAD_MINUTES"`
	SweepIntervalSeconds int  `yaml:"sweep_interval_seconds" envconfig:"SWEEP_INTERVAL_SECONDS"`
	PurgeIntervalMinutes int  `yaml:"purge_interval_minutes" envconfig:"PURGE_INTERVAL_MINUTES"`
	StatusSweepHours     int  `yaml:"status_sweep_hours" envconfig:"STATUS_SWEEP_HOURS"`
	PollIntervalSeconds  int  `yaml:"poll_interval_seconds" envconfig:"POLL_INTERVAL_SECONDS"`
	Concurrency          int  `yaml:"concurrency" envconfig:"CONCURRENCY"`
	TaskRetentionMinutes int  `yaml:"task_retention_minutes" envconfig:"TASK_RETENTION_MINUTES"`
	StrictJobs           bool `yaml:"strict_jobs" envconfig:"STRICT_JOBS"`
}

type LogConfig struct {
	Level string `yaml:"level" envconfig:"LEVEL"`
}

func (b BookingConfig) GraceWindow() time.Duration {
	return time.Duration(b.GraceWindowMinutes) * time.Minute
}

func (b BookingConfig) OncomingNotice() time.Duration {
	return time.Duration(b.OncomingNoticeMinutes) * time.Minute
}

func (b BookingConfig) EndingSoon() time.Duration {
	return time.Duration(b.EndingSoonMinutes) * time.Minute
}

func (s SchedulerConfig) Lookahead() time.Duration {
	return time.Duration(s.LookaheadMinutes) * time.Minute
}

func (s SchedulerConfig) SweepInterval() time.Duration {
	return time.Duration(s.SweepIntervalSeconds) * time.Second
}

func (s SchedulerConfig) PurgeInterval() time.Duration {
	return time.Duration(s.PurgeIntervalMinutes) * time.Minute
}

func (s SchedulerConfig) StatusSweepInterval() time.Duration {
	return time.Duration(s.StatusSweepHours) * time.Hour
}

func (s SchedulerConfig) PollInterval() time.Duration {
	return time.Duration(s.PollIntervalSeconds) * time.Second
}

func (s SchedulerConfig) TaskRetention() time.Duration {
	return time.Duration(s.TaskRetentionMinutes) * time.Minute
}

// LoadConfig reads the YAML file at path, applies DESK_* environment overrides and fills
// defaults for anything left unset.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to apply env overrides: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.HTTP.Address == "" {
		c.HTTP.Address = ":8080"
	}
	if c.GRPC.Address == "" {
		c.GRPC.Address = ":9090"
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = 10
	}
	if c.Events.Driver == "" {
		c.Events.Driver = "kafka"
	}
	if c.Booking.GraceWindowMinutes == 0 {
		c.Booking.GraceWindowMinutes = 60
	}
	if c.Booking.OncomingNoticeMinutes == 0 {
		c.Booking.OncomingNoticeMinutes = 60
	}
	if c.Booking.EndingSoonMinutes == 0 {
		c.Booking.EndingSoonMinutes = 15
	}
	if c.Booking.FallbackLocale == "" {
		c.Booking.FallbackLocale = "ru"
	}
	if c.Booking.DefaultPhoneRegion == "" {
		c.Booking.DefaultPhoneRegion = "RU"
	}
	if c.Scheduler.LookaheadMinutes == 0 {
		c.Scheduler.LookaheadMinutes = 15
	}
	if c.Scheduler.SweepIntervalSeconds == 0 {
		c.Scheduler.SweepIntervalSeconds = 60
	}
	if c.Scheduler.PurgeIntervalMinutes == 0 {
		c.Scheduler.PurgeIntervalMinutes = 60
	}
	if c.Scheduler.StatusSweepHours == 0 {
		c.Scheduler.StatusSweepHours = 24
	}
	if c.Scheduler.PollIntervalSeconds == 0 {
		c.Scheduler.PollIntervalSeconds = 5
	}
	if c.Scheduler.Concurrency == 0 {
		c.Scheduler.Concurrency = 4
	}
	if c.Scheduler.TaskRetentionMinutes == 0 {
		c.Scheduler.TaskRetentionMinutes = 2 * c.Scheduler.LookaheadMinutes
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}
