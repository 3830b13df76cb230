package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	pkgconfig "github.com/inamkkkk/take-it-and-go/pkg/config"
	"github.com/inamkkkk/take-it-and-go/pkg/database"
	"github.com/inamkkkk/take-it-and-go/pkg/log"
	"github.com/inamkkkk/take-it-and-go/pkg/pubsub"
)

type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	GRPC         GRPCConfig         `mapstructure:"grpc"`
	WebSocket    WebSocketConfig    `mapstructure:"websocket"`
	Auth         AuthConfig         `mapstructure:"auth"`
	Chat         ChatConfig         `mapstructure:"chat"`
	Store        StoreConfig        `mapstructure:"store"`
	Database     database.Config    `mapstructure:"database"`
	Cassandra    CassandraConfig    `mapstructure:"cassandra"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Cache        CacheConfig        `mapstructure:"cache"`
	Registry     RegistryConfig     `mapstructure:"registry"`
	Participants ParticipantsConfig `mapstructure:"participants"`
	IDGen        IDGenConfig        `mapstructure:"idgen"`
	Events       pubsub.Config      `mapstructure:"events"`
	Log          log.Config         `mapstructure:"log"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port" validate:"min=1,max=65535"`
}

type GRPCConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port" validate:"min=1,max=65535"`
}

type WebSocketConfig struct {
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size" validate:"min=1"`
	SendBufferSize int           `mapstructure:"send_buffer_size" validate:"min=1"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret" validate:"required"`
	TokenTTL  time.Duration `mapstructure:"-"` // parsed from token_ttl, accepts "1d"
	Issuer    string        `mapstructure:"issuer"`
}

type ChatConfig struct {
	HistoryLimit  int           `mapstructure:"history_limit" validate:"min=0"`
	MaxBodyLength int           `mapstructure:"max_body_length" validate:"min=1"`
	StoreTimeout  time.Duration `mapstructure:"store_timeout"`
}

type StoreConfig struct {
	Driver string `mapstructure:"driver" validate:"oneof=memory sql cassandra"`
}

type CassandraConfig struct {
	Hosts          []string      `mapstructure:"hosts"`
	Keyspace       string        `mapstructure:"keyspace"`
	Consistency    string        `mapstructure:"consistency"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	Timeout        time.Duration `mapstructure:"timeout"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	NumConns       int           `mapstructure:"num_conns"`
	MaxRetries     int           `mapstructure:"max_retries"`
	AutoMigrate    bool          `mapstructure:"auto_migrate"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type CacheConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	KeyPrefix string        `mapstructure:"key_prefix"`
	TTL       time.Duration `mapstructure:"ttl"`
}

type RegistryConfig struct {
	Driver            string        `mapstructure:"driver" validate:"oneof=none redis"`
	KeyPrefix         string        `mapstructure:"key_prefix"`
	AdvertiseAddress  string        `mapstructure:"advertise_address"`
	TTL               time.Duration `mapstructure:"ttl"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
}

type ParticipantsConfig struct {
	Driver string `mapstructure:"driver" validate:"oneof=open sql"`
}

type IDGenConfig struct {
	Type        string `mapstructure:"type" validate:"oneof=ulid uuid ksuid nanoid cuid2 snowflake"`
	MachineID   int64  `mapstructure:"machine_id" validate:"min=0,max=1023"`
	Epoch       int64  `mapstructure:"epoch"`
	NanoIDSize  int    `mapstructure:"nanoid_size"`
	CUID2Length int    `mapstructure:"cuid2_length"`
}

// UsesSQL reports whether any component needs the gorm connection.
func (c *Config) UsesSQL() bool {
	return c.Store.Driver == "sql" || c.Participants.Driver == "sql"
}

// UsesRedis reports whether any component needs the shared Redis client.
func (c *Config) UsesRedis() bool {
	return c.Cache.Enabled || c.Registry.Driver == "redis"
}

func Load() (*Config, error) {
	v, err := pkgconfig.Load("./config", "config")
	if err != nil {
		return nil, err
	}

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3000)

	v.SetDefault("grpc.enabled", true)
	v.SetDefault("grpc.host", "0.0.0.0")
	v.SetDefault("grpc.port", 50061)

	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.max_message_size", 16384)
	v.SetDefault("websocket.send_buffer_size", 256)
	v.SetDefault("websocket.allowed_origins", []string{})

	v.SetDefault("auth.token_ttl", "24h")
	v.SetDefault("auth.issuer", "take-it-and-go")

	v.SetDefault("chat.history_limit", 50)
	v.SetDefault("chat.max_body_length", 4000)
	v.SetDefault("chat.store_timeout", "5s")

	v.SetDefault("store.driver", "memory")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.file_path", "chat.db")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", 30)
	v.SetDefault("database.log_level", "silent")
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("cassandra.hosts", []string{"localhost:9042"})
	v.SetDefault("cassandra.keyspace", "chat")
	v.SetDefault("cassandra.consistency", "LOCAL_QUORUM")
	v.SetDefault("cassandra.timeout", "5s")
	v.SetDefault("cassandra.connect_timeout", "10s")
	v.SetDefault("cassandra.num_conns", 2)
	v.SetDefault("cassandra.max_retries", 3)
	v.SetDefault("cassandra.auto_migrate", false)

	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.key_prefix", "chat:history")
	v.SetDefault("cache.ttl", "30s")

	v.SetDefault("registry.driver", "none")
	v.SetDefault("registry.key_prefix", "chat")
	v.SetDefault("registry.ttl", "30s")
	v.SetDefault("registry.heartbeat_interval", "10s")

	v.SetDefault("participants.driver", "open")

	v.SetDefault("idgen.type", "ulid")
	v.SetDefault("idgen.machine_id", 1)
	v.SetDefault("idgen.epoch", 1704067200000)
	v.SetDefault("idgen.nanoid_size", 21)
	v.SetDefault("idgen.cuid2_length", 24)

	v.SetDefault("events.driver", "none")
	v.SetDefault("events.redis.address", "localhost:6379")
	v.SetDefault("events.redis.pool_size", 10)
	v.SetDefault("events.redis.read_timeout", "3s")
	v.SetDefault("events.redis.write_timeout", "3s")
	v.SetDefault("events.kafka.brokers", "localhost:9092")
	v.SetDefault("events.kafka.partitions", 4)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("log.service_name", "chat-service")

	// Names used by the existing deployment environment.
	v.BindEnv("auth.jwt_secret", "JWT_SECRET")
	v.BindEnv("auth.token_ttl", "JWT_EXPIRES_IN")
	v.BindEnv("server.port", "PORT")
	v.BindEnv("log.level", "LOG_LEVEL")
	v.BindEnv("redis.address", "REDIS_ADDR")
	v.BindEnv("events.kafka.brokers", "KAFKA_BROKERS")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Auth.TokenTTL, err = parseDuration(v.GetString("auth.token_ttl"), 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("invalid auth.token_ttl: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks struct-level constraints.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// parseDuration accepts Go durations ("90s") and the day suffix used by the
// previous deployment ("1d", "7d").
func parseDuration(s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	if n, ok := strings.CutSuffix(s, "d"); ok {
		days, err := strconv.Atoi(n)
		if err != nil {
			return 0, err
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}
