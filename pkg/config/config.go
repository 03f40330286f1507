package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Auth       AuthConfig
	Logging    LoggingConfig
	Live       LiveConfig
	Pipeline   PipelineConfig
	Audit      AuditConfig
	ClickHouse ClickHouseConfig
	Kafka      KafkaConfig
	Outbox     OutboxRelayConfig
	Documents  DocumentsConfig
	CORS       CORSConfig
}

type ServerConfig struct {
	HTTPPort    int           `mapstructure:"http_port"`
	MetricsPort int           `mapstructure:"metrics_port"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
}

type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"` // postgres or memory
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	SSLMode      string `mapstructure:"ssl_mode"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	AutoMigrate  bool   `mapstructure:"auto_migrate"`
}

type RedisConfig struct {
	Addresses   []string `mapstructure:"addresses"`
	Password    string   `mapstructure:"password"`
	DB          int      `mapstructure:"db"`
	PoolSize    int      `mapstructure:"pool_size"`
	ClusterMode bool     `mapstructure:"cluster_mode"`
}

// Enabled reports whether at least one redis address is configured.
func (c RedisConfig) Enabled() bool {
	return len(c.Addresses) > 0 && c.Addresses[0] != ""
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	Issuer    string        `mapstructure:"issuer"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

type LiveConfig struct {
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	SendBufferSize int           `mapstructure:"send_buffer_size"`
	Channel        string        `mapstructure:"channel"`
}

type StageConfig struct {
	ID    string `mapstructure:"id"`
	Name  string `mapstructure:"name"`
	Order int    `mapstructure:"order"`
}

type PipelineConfig struct {
	Stages          []StageConfig `mapstructure:"stages"`
	StrictFromStage bool          `mapstructure:"strict_from_stage"`
	MoveLockTTL     time.Duration `mapstructure:"move_lock_ttl"`
}

type AuditConfig struct {
	Driver string `mapstructure:"driver"` // postgres, clickhouse or memory
}

type ClickHouseConfig struct {
	Hosts    []string `mapstructure:"hosts"`
	Database string   `mapstructure:"database"`
	User     string   `mapstructure:"user"`
	Password string   `mapstructure:"password"`
}

type KafkaConfig struct {
	Brokers    []string `mapstructure:"brokers"`
	ClientID   string   `mapstructure:"client_id"`
	EventTopic string   `mapstructure:"event_topic"`
	DLQTopic   string   `mapstructure:"dlq_topic"`
}

type OutboxRelayConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	BatchSize    int           `mapstructure:"batch_size"`
}

type DocumentsConfig struct {
	Driver          string `mapstructure:"driver"` // gcs or memory
	Bucket          string `mapstructure:"bucket"`
	CredentialsJSON string `mapstructure:"credentials_json"`
	MaxUploadBytes  int64  `mapstructure:"max_upload_bytes"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// DefaultStages is the board used when no stages are configured.
var DefaultStages = []StageConfig{
	{ID: "new", Name: "New", Order: 1},
	{ID: "reviewing", Name: "Reviewing", Order: 2},
	{ID: "docs", Name: "Docs", Order: 3},
	{ID: "underwriting", Name: "Underwriting", Order: 4},
	{ID: "approved", Name: "Approved", Order: 5},
	{ID: "funded", Name: "Funded", Order: 6},
}

func Load() (*Config, error) {
	// .env is optional; real deployments inject the environment directly.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/staffportal/")
	v.AddConfigPath(".")

	v.SetEnvPrefix("STAFFPORTAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if len(cfg.Pipeline.Stages) == 0 {
		cfg.Pipeline.Stages = DefaultStages
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.metrics_port", 9091)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("redis.pool_size", 100)
	v.SetDefault("auth.issuer", "staffportal")
	v.SetDefault("auth.token_ttl", "12h")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("live.ping_interval", "30s")
	v.SetDefault("live.write_timeout", "10s")
	v.SetDefault("live.send_buffer_size", 32)
	v.SetDefault("live.channel", "sp:events:live")
	v.SetDefault("pipeline.strict_from_stage", false)
	v.SetDefault("pipeline.move_lock_ttl", "0s")
	v.SetDefault("audit.driver", "postgres")
	v.SetDefault("kafka.client_id", "staffportal-outbox-relay")
	v.SetDefault("kafka.event_topic", "staffportal.pipeline.events")
	v.SetDefault("kafka.dlq_topic", "staffportal.pipeline.events.dlq")
	v.SetDefault("outbox.poll_interval", "5s")
	v.SetDefault("outbox.batch_size", 100)
	v.SetDefault("documents.driver", "memory")
	v.SetDefault("documents.max_upload_bytes", 25<<20)
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
