// Package config loads the relayer configuration from a TOML file, a .env
// file and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the full relayer configuration.
type Config struct {
	HTTP    HTTPConfig    `toml:"http"`
	Log     LogConfig     `toml:"log"`
	Storage StorageConfig `toml:"storage"`
	Dedup   DedupConfig   `toml:"dedup"`
	Monitor MonitorConfig `toml:"monitor"`
	Notify  NotifyConfig  `toml:"notify"`
	Swap    SwapConfig    `toml:"swap"`
	EVM     []EVMConfig   `toml:"evm"`
	Sui     []SuiConfig   `toml:"sui"`
}

// HTTPConfig configures the REST server.
type HTTPConfig struct {
	Addr            string        `toml:"addr"`
	ReadTimeout     time.Duration `toml:"read_timeout"`
	WriteTimeout    time.Duration `toml:"write_timeout"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `toml:"level"`  // debug, info, warn, error
	Format string `toml:"format"` // json, console
}

// StorageConfig selects the swap and cursor stores.
type StorageConfig struct {
	Backend     string `toml:"backend"` // memory, postgres
	PostgresDSN string `toml:"postgres_dsn"`
	// Pool sizing; zero keeps the pgx defaults.
	PostgresMaxConns        int32         `toml:"postgres_max_conns"`
	PostgresMaxConnLifetime time.Duration `toml:"postgres_max_conn_lifetime"`
	// ClickHouseDSN enables the chain event audit log when set.
	ClickHouseDSN string `toml:"clickhouse_dsn"`
}

// DedupConfig configures the dedup marker cache.
type DedupConfig struct {
	Backend       string        `toml:"backend"` // memory, redis
	TTL           time.Duration `toml:"ttl"`
	MemorySize    int           `toml:"memory_size"`
	RedisAddrs    []string      `toml:"redis_addrs"`
	RedisPassword string        `toml:"redis_password"`
	RedisDB       int           `toml:"redis_db"`
	KeyPrefix     string        `toml:"key_prefix"`
}

// MonitorConfig configures the event monitor.
type MonitorConfig struct {
	Workers       int           `toml:"workers"`
	QueueSize     int           `toml:"queue_size"`
	RetryAttempts int           `toml:"retry_attempts"`
	RetryBackoff  time.Duration `toml:"retry_backoff"`
}

// NotifyConfig configures the notification dispatcher and its sinks.
type NotifyConfig struct {
	QueueSize    int      `toml:"queue_size"`
	Policy       string   `toml:"policy"` // drop, block
	Log          bool     `toml:"log"`
	WebSocket    bool     `toml:"websocket"`
	KafkaBrokers []string `toml:"kafka_brokers"`
	KafkaTopic   string   `toml:"kafka_topic"`
}

// SwapConfig configures the swap coordinator.
type SwapConfig struct {
	HashAlgorithm string `toml:"hash_algorithm"` // sha3-256, keccak256, sha256
}

// EVMConfig configures one EVM chain watcher.
type EVMConfig struct {
	ChainID       string        `toml:"chain_id"`
	RPCURL        string        `toml:"rpc_url"`
	Contract      string        `toml:"contract"`
	Confirmations *uint64       `toml:"confirmations"` // nil means DefaultEVMConfirmations
	PollInterval  time.Duration `toml:"poll_interval"`
	BatchSize     uint64        `toml:"batch_size"`
	StartBlock    uint64        `toml:"start_block"`
}

// ConfirmationDepth returns the configured depth or the default.
func (e EVMConfig) ConfirmationDepth() uint64 {
	if e.Confirmations == nil {
		return DefaultEVMConfirmations
	}
	return *e.Confirmations
}

// SuiConfig configures one Sui chain watcher.
type SuiConfig struct {
	ChainID         string        `toml:"chain_id"`
	RPCURL          string        `toml:"rpc_url"`
	Package         string        `toml:"package"`
	Module          string        `toml:"module"`
	Confirmations   uint64        `toml:"confirmations"`
	PollInterval    time.Duration `toml:"poll_interval"`
	PageSize        int           `toml:"page_size"`
	StartCheckpoint uint64        `toml:"start_checkpoint"`
}

// Defaults returns the configuration used for every unset value.
func Defaults() Config {
	return Config{
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Storage: StorageConfig{
			Backend: "memory",
		},
		Dedup: DedupConfig{
			Backend:    "memory",
			TTL:        24 * time.Hour,
			MemorySize: 100000,
			KeyPrefix:  "htlc:",
		},
		Monitor: MonitorConfig{
			Workers:       8,
			QueueSize:     256,
			RetryAttempts: 3,
			RetryBackoff:  500 * time.Millisecond,
		},
		Notify: NotifyConfig{
			QueueSize: 1024,
			Policy:    "drop",
			Log:       true,
			WebSocket: true,
		},
		Swap: SwapConfig{
			HashAlgorithm: "sha3-256",
		},
	}
}

// Chain defaults applied per entry.
const (
	DefaultEVMConfirmations = 12
	DefaultEVMPollInterval  = 5 * time.Second
	DefaultEVMBatchSize     = 2000
	DefaultSuiPollInterval  = 2 * time.Second
	DefaultSuiPageSize      = 50
	DefaultSuiModule        = "cross_chain_auction"
)

// Load reads the .env file, the TOML file at path (optional when empty) and
// the environment overrides, then validates the result.
func Load(path string) (*Config, error) {
	LoadEnvFile(".env")

	cfg := Defaults()
	if path != "" {
		md, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return nil, fmt.Errorf("decode config %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("unknown config keys: %v", undecoded)
		}
	}

	cfg.applyEnv()
	cfg.applyChainDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadEnvFile sets variables from a KEY=VALUE file. Variables already set
// in the environment are never overridden. A missing file is ignored.
func LoadEnvFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)

		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}

// applyEnv overrides secrets and endpoints from the environment.
func (c *Config) applyEnv() {
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		c.Storage.PostgresDSN = v
		if c.Storage.Backend == "memory" {
			c.Storage.Backend = "postgres"
		}
	}
	if v := os.Getenv("CLICKHOUSE_DSN"); v != "" {
		c.Storage.ClickHouseDSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Dedup.RedisAddrs = splitList(v)
		c.Dedup.Backend = "redis"
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Dedup.RedisPassword = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Notify.KafkaBrokers = splitList(v)
	}
	if v := os.Getenv("EVM_RPC_URL"); v != "" && len(c.EVM) > 0 {
		c.EVM[0].RPCURL = v
	}
	if v := os.Getenv("SUI_RPC_URL"); v != "" && len(c.Sui) > 0 {
		c.Sui[0].RPCURL = v
	}
}

func (c *Config) applyChainDefaults() {
	for i := range c.EVM {
		e := &c.EVM[i]
		if e.PollInterval <= 0 {
			e.PollInterval = DefaultEVMPollInterval
		}
		if e.BatchSize == 0 {
			e.BatchSize = DefaultEVMBatchSize
		}
	}
	for i := range c.Sui {
		s := &c.Sui[i]
		if s.PollInterval <= 0 {
			s.PollInterval = DefaultSuiPollInterval
		}
		if s.PageSize <= 0 {
			s.PageSize = DefaultSuiPageSize
		}
		if s.Module == "" {
			s.Module = DefaultSuiModule
		}
	}
}

// Validate reports every invalid value.
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		bad("log.level: unknown level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		bad("log.format: unknown format %q", c.Log.Format)
	}

	switch c.Storage.Backend {
	case "memory":
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			bad("storage.postgres_dsn is required for the postgres backend")
		}
		if c.Storage.PostgresMaxConns < 0 {
			bad("storage.postgres_max_conns must not be negative")
		}
	default:
		bad("storage.backend: unknown backend %q", c.Storage.Backend)
	}

	switch c.Dedup.Backend {
	case "memory":
		if c.Dedup.MemorySize <= 0 {
			bad("dedup.memory_size must be positive")
		}
	case "redis":
		if len(c.Dedup.RedisAddrs) == 0 {
			bad("dedup.redis_addrs is required for the redis backend")
		}
	default:
		bad("dedup.backend: unknown backend %q", c.Dedup.Backend)
	}
	if c.Dedup.TTL <= 0 {
		bad("dedup.ttl must be positive")
	}

	if c.Monitor.Workers <= 0 {
		bad("monitor.workers must be positive")
	}
	if c.Monitor.QueueSize <= 0 {
		bad("monitor.queue_size must be positive")
	}

	switch c.Notify.Policy {
	case "drop", "block":
	default:
		bad("notify.policy: unknown policy %q", c.Notify.Policy)
	}
	if len(c.Notify.KafkaBrokers) > 0 && c.Notify.KafkaTopic == "" {
		bad("notify.kafka_topic is required when kafka brokers are set")
	}

	switch strings.ToLower(c.Swap.HashAlgorithm) {
	case "sha3-256", "keccak256", "sha256":
	default:
		bad("swap.hash_algorithm: unknown algorithm %q", c.Swap.HashAlgorithm)
	}

	seen := make(map[string]bool)
	chainID := func(kind, id string) {
		switch {
		case id == "":
			bad("%s: chain_id is required", kind)
		case seen[id]:
			bad("%s: duplicate chain_id %q", kind, id)
		}
		seen[id] = true
	}
	for i, e := range c.EVM {
		chainID(fmt.Sprintf("evm[%d]", i), e.ChainID)
		if e.RPCURL == "" {
			bad("evm[%d].rpc_url is required", i)
		}
		if !strings.HasPrefix(e.Contract, "0x") {
			bad("evm[%d].contract must be a 0x address", i)
		}
	}
	for i, s := range c.Sui {
		chainID(fmt.Sprintf("sui[%d]", i), s.ChainID)
		if s.RPCURL == "" {
			bad("sui[%d].rpc_url is required", i)
		}
		if !strings.HasPrefix(s.Package, "0x") {
			bad("sui[%d].package must be a 0x object id", i)
		}
	}

	return errors.Join(errs...)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
