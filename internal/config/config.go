package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Events    EventsConfig    `mapstructure:"events"`
	Store     StoreConfig     `mapstructure:"store"`
	MySQL     MySQLConfig     `mapstructure:"mysql"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Registry  RegistryConfig  `mapstructure:"registry"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Bridge    BridgeConfig    `mapstructure:"bridge"`
	Client    ClientConfig    `mapstructure:"client"`
	Log       LogConfig       `mapstructure:"log"`
	Instance  InstanceConfig  `mapstructure:"instance"`
}

// ServerConfig is the RPC listener.
type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Host string `mapstructure:"host"`
}

// EventsConfig is the WebSocket listener remote listeners connect to.
type EventsConfig struct {
	Port int    `mapstructure:"port"`
	Host string `mapstructure:"host"`
	// AdvertiseURL is the address published in the service registry.
	AdvertiseURL string `mapstructure:"advertise_url"`
}

type StoreConfig struct {
	// Driver is either "memory" or "mysql".
	Driver string `mapstructure:"driver"`
}

type MySQLConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	Migrate         bool          `mapstructure:"migrate"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type RegistryConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

type SchedulerConfig struct {
	TickInterval      time.Duration `mapstructure:"tick_interval"`
	RetryDelay        time.Duration `mapstructure:"retry_delay"`
	ReconcileInterval time.Duration `mapstructure:"reconcile_interval"`
}

type BridgeConfig struct {
	OutboxSize      int           `mapstructure:"outbox_size"`
	DeliveryTimeout time.Duration `mapstructure:"delivery_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
}

type ClientConfig struct {
	ServerURL      string        `mapstructure:"server_url"`
	EventsURL      string        `mapstructure:"events_url"`
	Identity       string        `mapstructure:"identity"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type InstanceConfig struct {
	ID string `mapstructure:"id"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("events.port", 8081)
	v.SetDefault("events.host", "0.0.0.0")
	v.SetDefault("events.advertise_url", "ws://localhost:8081")
	v.SetDefault("store.driver", "memory")
	v.SetDefault("mysql.dsn", "auction_user:auction_pass@tcp(localhost:3306)/auction_db?parseTime=true")
	v.SetDefault("mysql.max_open_conns", 25)
	v.SetDefault("mysql.max_idle_conns", 10)
	v.SetDefault("mysql.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("mysql.migrate", true)
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("registry.ttl", 30*time.Second)
	v.SetDefault("scheduler.tick_interval", time.Second)
	v.SetDefault("scheduler.retry_delay", 5*time.Second)
	v.SetDefault("scheduler.reconcile_interval", time.Minute)
	v.SetDefault("bridge.outbox_size", 256)
	v.SetDefault("bridge.delivery_timeout", 5*time.Second)
	v.SetDefault("bridge.write_timeout", 5*time.Second)
	v.SetDefault("client.server_url", "http://localhost:8080")
	v.SetDefault("client.events_url", "ws://localhost:8081")
	v.SetDefault("client.identity", "")
	v.SetDefault("client.request_timeout", 10*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("instance.id", "auction-engine-1")
}

func bindEnv(v *viper.Viper) {
	// Environment variable mappings
	v.BindEnv("server.port", "SERVER_PORT")
	v.BindEnv("server.host", "SERVER_HOST")
	v.BindEnv("events.port", "EVENTS_PORT")
	v.BindEnv("events.host", "EVENTS_HOST")
	v.BindEnv("events.advertise_url", "EVENTS_ADVERTISE_URL")
	v.BindEnv("store.driver", "STORE_DRIVER")
	v.BindEnv("mysql.dsn", "MYSQL_DSN")
	v.BindEnv("mysql.max_open_conns", "MYSQL_MAX_OPEN_CONNS")
	v.BindEnv("mysql.max_idle_conns", "MYSQL_MAX_IDLE_CONNS")
	v.BindEnv("mysql.conn_max_lifetime", "MYSQL_CONN_MAX_LIFETIME")
	v.BindEnv("mysql.migrate", "MYSQL_MIGRATE")
	v.BindEnv("redis.enabled", "REDIS_ENABLED")
	v.BindEnv("redis.address", "REDIS_ADDRESS")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("redis.db", "REDIS_DB")
	v.BindEnv("registry.ttl", "REGISTRY_TTL")
	v.BindEnv("scheduler.tick_interval", "SCHEDULER_TICK_INTERVAL")
	v.BindEnv("scheduler.retry_delay", "SCHEDULER_RETRY_DELAY")
	v.BindEnv("scheduler.reconcile_interval", "SCHEDULER_RECONCILE_INTERVAL")
	v.BindEnv("bridge.outbox_size", "BRIDGE_OUTBOX_SIZE")
	v.BindEnv("bridge.delivery_timeout", "BRIDGE_DELIVERY_TIMEOUT")
	v.BindEnv("bridge.write_timeout", "BRIDGE_WRITE_TIMEOUT")
	v.BindEnv("client.server_url", "CLIENT_SERVER_URL")
	v.BindEnv("client.events_url", "CLIENT_EVENTS_URL")
	v.BindEnv("client.identity", "CLIENT_IDENTITY")
	v.BindEnv("client.request_timeout", "CLIENT_REQUEST_TIMEOUT")
	v.BindEnv("log.level", "LOG_LEVEL")
	v.BindEnv("instance.id", "INSTANCE_ID")
}

func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// Configuration file settings
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/auction-engine/")

	v.AutomaticEnv()
	bindEnv(v)

	// The file is optional, defaults and environment still apply without it.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	return decode(v)
}

// LoadFromFile loads configuration from a specific file path. Keys missing
// from the file keep their defaults.
func LoadFromFile(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	bindEnv(v)
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "memory", "mysql":
	default:
		return fmt.Errorf("store.driver must be memory or mysql, got %q", c.Store.Driver)
	}
	if c.Scheduler.TickInterval <= 0 {
		return fmt.Errorf("scheduler.tick_interval must be positive")
	}
	if c.Bridge.OutboxSize <= 0 {
		return fmt.Errorf("bridge.outbox_size must be positive")
	}
	return nil
}

func (c *Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) EventsAddr() string {
	return fmt.Sprintf("%s:%d", c.Events.Host, c.Events.Port)
}

// GetConfigString returns a formatted string representation of the config
func (c *Config) GetConfigString() string {
	return fmt.Sprintf(
		"Server: %s, Events: %s, Store: %s, Redis: %t (%s), Instance: %s",
		c.ServerAddr(),
		c.EventsAddr(),
		c.Store.Driver,
		c.Redis.Enabled,
		c.Redis.Address,
		c.Instance.ID,
	)
}
