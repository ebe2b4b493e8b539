package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, "memory", cfg.Dedup.Backend)
	assert.Equal(t, 24*time.Hour, cfg.Dedup.TTL)
	assert.Equal(t, 100000, cfg.Dedup.MemorySize)
	assert.Equal(t, 8, cfg.Monitor.Workers)
	assert.Equal(t, 256, cfg.Monitor.QueueSize)
	assert.Equal(t, 1024, cfg.Notify.QueueSize)
	assert.Equal(t, "drop", cfg.Notify.Policy)
	assert.Equal(t, "sha3-256", cfg.Swap.HashAlgorithm)
	assert.Empty(t, cfg.EVM)
	assert.Empty(t, cfg.Sui)
}

const sampleConfig = `
[http]
addr = ":9000"

[log]
level = "debug"
format = "console"

[dedup]
ttl = "48h"

[monitor]
workers = 4

[[evm]]
chain_id = "sepolia"
rpc_url = "http://localhost:8545"
contract = "0x1111111111111111111111111111111111111111"

[[evm]]
chain_id = "anvil"
rpc_url = "http://localhost:8546"
contract = "0x2222222222222222222222222222222222222222"
confirmations = 0
batch_size = 100

[[sui]]
chain_id = "sui-testnet"
rpc_url = "https://fullnode.testnet.sui.io"
package = "0xabc"
poll_interval = "500ms"
`

func TestLoad_File(t *testing.T) {
	cfg, err := Load(writeFile(t, "relayer.toml", sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.HTTP.Addr)
	assert.Equal(t, 30*time.Second, cfg.HTTP.ShutdownTimeout, "unset values keep defaults")
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 48*time.Hour, cfg.Dedup.TTL)
	assert.Equal(t, 4, cfg.Monitor.Workers)
	assert.Equal(t, 256, cfg.Monitor.QueueSize)

	require.Len(t, cfg.EVM, 2)
	assert.Equal(t, uint64(DefaultEVMConfirmations), cfg.EVM[0].ConfirmationDepth())
	assert.Equal(t, DefaultEVMPollInterval, cfg.EVM[0].PollInterval)
	assert.Equal(t, uint64(DefaultEVMBatchSize), cfg.EVM[0].BatchSize)
	assert.Equal(t, uint64(0), cfg.EVM[1].ConfirmationDepth(), "explicit zero is kept")
	assert.Equal(t, uint64(100), cfg.EVM[1].BatchSize)

	require.Len(t, cfg.Sui, 1)
	assert.Equal(t, 500*time.Millisecond, cfg.Sui[0].PollInterval)
	assert.Equal(t, DefaultSuiPageSize, cfg.Sui[0].PageSize)
	assert.Equal(t, DefaultSuiModule, cfg.Sui[0].Module)
	assert.Equal(t, uint64(0), cfg.Sui[0].Confirmations)
}

func TestLoad_UnknownKey(t *testing.T) {
	_, err := Load(writeFile(t, "bad.toml", "[monitor]\nworkerz = 3\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "workerz")
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "postgres://u:p@db/htlc")
	t.Setenv("REDIS_ADDR", "redis-a:6379, redis-b:6379")
	t.Setenv("REDIS_PASSWORD", "secret")
	t.Setenv("CLICKHOUSE_DSN", "clickhouse://ch:9000/htlc")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("EVM_RPC_URL", "http://override:8545")
	t.Setenv("SUI_RPC_URL", "http://override:9000")

	path := writeFile(t, "relayer.toml", sampleConfig+"\n[notify]\nkafka_topic = \"swaps\"\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Storage.Backend)
	assert.Equal(t, "postgres://u:p@db/htlc", cfg.Storage.PostgresDSN)
	assert.Equal(t, "clickhouse://ch:9000/htlc", cfg.Storage.ClickHouseDSN)
	assert.Equal(t, "redis", cfg.Dedup.Backend)
	assert.Equal(t, []string{"redis-a:6379", "redis-b:6379"}, cfg.Dedup.RedisAddrs)
	assert.Equal(t, "secret", cfg.Dedup.RedisPassword)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Notify.KafkaBrokers)
	assert.Equal(t, "http://override:8545", cfg.EVM[0].RPCURL)
	assert.Equal(t, "http://localhost:8546", cfg.EVM[1].RPCURL)
	assert.Equal(t, "http://override:9000", cfg.Sui[0].RPCURL)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		want   string
	}{
		{"log level", func(c *Config) { c.Log.Level = "trace" }, "log.level"},
		{"storage backend", func(c *Config) { c.Storage.Backend = "mongo" }, "storage.backend"},
		{"postgres dsn", func(c *Config) { c.Storage.Backend = "postgres" }, "postgres_dsn"},
		{"postgres pool size", func(c *Config) {
			c.Storage = StorageConfig{Backend: "postgres", PostgresDSN: "postgres://db/htlc", PostgresMaxConns: -1}
		}, "postgres_max_conns"},
		{"dedup ttl", func(c *Config) { c.Dedup.TTL = 0 }, "dedup.ttl"},
		{"redis addrs", func(c *Config) { c.Dedup.Backend = "redis" }, "redis_addrs"},
		{"policy", func(c *Config) { c.Notify.Policy = "spill" }, "notify.policy"},
		{"kafka topic", func(c *Config) { c.Notify.KafkaBrokers = []string{"k:9092"} }, "kafka_topic"},
		{"hash", func(c *Config) { c.Swap.HashAlgorithm = "md5" }, "hash_algorithm"},
		{"missing chain id", func(c *Config) {
			c.EVM = []EVMConfig{{RPCURL: "http://x", Contract: "0x1"}}
		}, "chain_id is required"},
		{"duplicate chain id", func(c *Config) {
			c.EVM = []EVMConfig{{ChainID: "a", RPCURL: "http://x", Contract: "0x1"}}
			c.Sui = []SuiConfig{{ChainID: "a", RPCURL: "http://y", Package: "0x2"}}
		}, "duplicate chain_id"},
		{"sui package", func(c *Config) {
			c.Sui = []SuiConfig{{ChainID: "sui", RPCURL: "http://y", Package: "abc"}}
		}, "package"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.modify(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	cfg := Defaults()
	assert.NoError(t, cfg.Validate())
}

func TestLoadEnvFile(t *testing.T) {
	path := writeFile(t, ".env", "# comment\nHTLC_TEST_A=from-file\nHTLC_TEST_B = \"quoted\"\nbroken line\nHTLC_TEST_C=keep\n")
	t.Setenv("HTLC_TEST_C", "from-env")
	t.Setenv("HTLC_TEST_A", "")
	t.Setenv("HTLC_TEST_B", "")

	LoadEnvFile(path)

	assert.Equal(t, "from-file", os.Getenv("HTLC_TEST_A"))
	assert.Equal(t, "quoted", os.Getenv("HTLC_TEST_B"))
	assert.Equal(t, "from-env", os.Getenv("HTLC_TEST_C"))

	LoadEnvFile(filepath.Join(t.TempDir(), "missing"))
}
