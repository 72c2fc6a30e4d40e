package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type DatabaseSettings struct {
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Name     string `mapstructure:"name"`

	MaxOpenConns int `mapstructure:"max_open_conns"`
	MaxIdleConns int `mapstructure:"max_idle_conns"`
}

type PubSubSettings struct {
	ProjectId          string `mapstructure:"project_id"`
	CredentialsJSON    string `mapstructure:"credentials_json"`
	EventTopic         string `mapstructure:"event_topic"`
	EventSubscription  string `mapstructure:"event_subscription"`
	NotificationTopic  string `mapstructure:"notification_topic"`
	MaxOutstandingMsgs int    `mapstructure:"max_outstanding_messages"`
}

type ScheduleSettings struct {
	Detectors      string `mapstructure:"detectors"`
	SnoozeWake     string `mapstructure:"snooze_wake"`
	HealthSnapshot string `mapstructure:"health_snapshot"`
	GoalRefresh    string `mapstructure:"goal_refresh"`
	OutboxDrain    string `mapstructure:"outbox_drain"`
	KPIRollup      string `mapstructure:"kpi_rollup"`
}

type Settings struct {
	LogLevel       string        `mapstructure:"log_level"`
	StoreDriver    string        `mapstructure:"store_driver"`
	RedisAddress   string        `mapstructure:"redis_address"`
	RedisPassword  string        `mapstructure:"redis_password"`
	MetricsAddress string        `mapstructure:"metrics_address"`
	LockTTL        time.Duration `mapstructure:"lock_ttl"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl"`

	// EnforceIdempotency turns on the per-event replay guard. Off by default:
	// events are assumed to be delivered at most once.
	EnforceIdempotency bool `mapstructure:"enforce_idempotency"`

	Database   DatabaseSettings `mapstructure:"database"`
	PubSub     PubSubSettings   `mapstructure:"pubsub"`
	Schedule   ScheduleSettings `mapstructure:"schedule"`
	Thresholds Thresholds       `mapstructure:"thresholds"`
}

const envPrefix = "OPS"

// Load reads .env, an optional YAML file and OPS_* environment variables, in
// increasing order of precedence.
func Load(path string) (*Settings, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = os.Getenv("OPS_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Settings) Validate() error {
	switch s.StoreDriver {
	case "memory", "mysql":
	default:
		return fmt.Errorf("store_driver must be memory or mysql, got %q", s.StoreDriver)
	}
	t := s.Thresholds
	sum := t.WeightFinancial + t.WeightOperational + t.WeightQuality + t.WeightHR + t.WeightCustomer
	if sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("health weights must sum to 1.0, got %.3f", sum)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("store_driver", "memory")
	v.SetDefault("redis_address", os.Getenv("REDIS_ADDRESS"))
	v.SetDefault("redis_password", os.Getenv("REDIS_PASSWORD"))
	v.SetDefault("metrics_address", ":9090")
	v.SetDefault("lock_ttl", 30*time.Second)
	v.SetDefault("cache_ttl", time.Hour)
	v.SetDefault("enforce_idempotency", false)

	v.SetDefault("database.user", os.Getenv("DB_USER"))
	v.SetDefault("database.password", os.Getenv("DB_PASSWORD"))
	v.SetDefault("database.host", os.Getenv("DB_HOST"))
	v.SetDefault("database.port", os.Getenv("DB_PORT"))
	v.SetDefault("database.name", os.Getenv("DB_NAME"))
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.max_idle_conns", 25)

	v.SetDefault("pubsub.project_id", pubSubProjectFromEnv())
	v.SetDefault("pubsub.credentials_json", os.Getenv("PUBSUB_CREDENTIALS_JSON"))
	v.SetDefault("pubsub.event_topic", "ops-domain-events")
	v.SetDefault("pubsub.event_subscription", "ops-cascade-worker")
	v.SetDefault("pubsub.notification_topic", "ops-notifications")
	v.SetDefault("pubsub.max_outstanding_messages", 10)

	v.SetDefault("schedule.detectors", "*/15 * * * *")
	v.SetDefault("schedule.snooze_wake", "* * * * *")
	v.SetDefault("schedule.health_snapshot", "0 6 * * *")
	v.SetDefault("schedule.goal_refresh", "30 6 * * *")
	v.SetDefault("schedule.outbox_drain", "* * * * *")
	v.SetDefault("schedule.kpi_rollup", "15 0 * * *")

	// Register every threshold key so OPS_THRESHOLDS_* overrides are picked up.
	defaults := reflect.ValueOf(DefaultThresholds())
	typ := defaults.Type()
	for i := 0; i < typ.NumField(); i++ {
		key := typ.Field(i).Tag.Get("mapstructure")
		if key == "" {
			continue
		}
		v.SetDefault("thresholds."+key, defaults.Field(i).Interface())
	}
}

func pubSubProjectFromEnv() string {
	for _, key := range []string{"PUBSUB_PROJECT_ID", "GOOGLE_CLOUD_PROJECT", "GCP_PROJECT"} {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return ""
}
