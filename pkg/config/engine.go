package config

import (
	"encoding/json"
	"os"
	"runtime"

	"github.com/pg-sharding/colexec/pkg/execlog"
)

type Engine struct {
	LogLevel   string `json:"log_level" toml:"log_level" yaml:"log_level"`
	LogFile    string `json:"log_file" toml:"log_file" yaml:"log_file"`
	PrettyLogs bool   `json:"pretty_logs" toml:"pretty_logs" yaml:"pretty_logs"`

	ThreadPoolSize   int  `json:"thread_pool_size" toml:"thread_pool_size" yaml:"thread_pool_size"`
	Verbose          bool `json:"verbose" toml:"verbose" yaml:"verbose"`
	CacheWindowExprs bool `json:"cache_window_exprs" toml:"cache_window_exprs" yaml:"cache_window_exprs"`
	Streaming        bool `json:"streaming" toml:"streaming" yaml:"streaming"`
	PolicyCheck      bool `json:"policy_check" toml:"policy_check" yaml:"policy_check"`
	AllowThreading   bool `json:"allow_threading" toml:"allow_threading" yaml:"allow_threading"`

	// rows below which sum/min/max never split across the pool
	ParallelReduceThreshold int `json:"parallel_reduce_threshold" toml:"parallel_reduce_threshold" yaml:"parallel_reduce_threshold"`

	Validator    ValidatorCfg `json:"validator" toml:"validator" yaml:"validator"`
	JaegerConfig JaegerCfg    `json:"jaeger" toml:"jaeger" yaml:"jaeger"`
}

type ValidatorCfg struct {
	// Local runs the in-process reference validator instead of dialing Addr.
	Local             bool   `json:"local" toml:"local" yaml:"local"`
	Addr              string `json:"addr" toml:"addr" yaml:"addr"`
	Retries           uint64 `json:"retries" toml:"retries" yaml:"retries"`
	BackoffMs         int    `json:"backoff_ms" toml:"backoff_ms" yaml:"backoff_ms"`
	TimeoutMs         int    `json:"timeout_ms" toml:"timeout_ms" yaml:"timeout_ms"`
	CompressThreshold int    `json:"compress_threshold" toml:"compress_threshold" yaml:"compress_threshold"`
}

type JaegerCfg struct {
	Enabled    bool    `json:"enabled" toml:"enabled" yaml:"enabled"`
	Service    string  `json:"service" toml:"service" yaml:"service"`
	JaegerUrl  string  `json:"jaeger_url" toml:"jaeger_url" yaml:"jaeger_url"`
	AgentAddr  string  `json:"agent_addr" toml:"agent_addr" yaml:"agent_addr"`
	SampleRate float64 `json:"sample_rate" toml:"sample_rate" yaml:"sample_rate"`
}

var cfgEngine = DefaultEngine()

// DefaultEngine returns the configuration used when no file is loaded.
func DefaultEngine() Engine {
	return Engine{
		LogLevel:                "info",
		PrettyLogs:              true,
		ThreadPoolSize:          runtime.NumCPU(),
		CacheWindowExprs:        true,
		AllowThreading:          true,
		ParallelReduceThreshold: 100_000,
		Validator: ValidatorCfg{
			Local:             true,
			Retries:           3,
			BackoffMs:         50,
			TimeoutMs:         5000,
			CompressThreshold: 1 << 16,
		},
		JaegerConfig: JaegerCfg{
			Service:    "colexec",
			SampleRate: 1,
		},
	}
}

// LoadEngineCfg loads the engine configuration from the specified file path.
//
// Parameters:
//   - cfgPath (string): The path of the configuration file.
//
// Returns:
//   - error: An error if any occurred during the loading process.
func LoadEngineCfg(cfgPath string) error {
	file, err := os.Open(cfgPath)
	if err != nil {
		return err
	}
	defer func(file *os.File) {
		if err := file.Close(); err != nil {
			execlog.Zero.Error().Err(err).Msg("failed to close config file")
		}
	}(file)

	loaded := DefaultEngine()
	if err := initConfig(file, &loaded); err != nil {
		return err
	}
	if loaded.ThreadPoolSize <= 0 {
		loaded.ThreadPoolSize = runtime.NumCPU()
	}
	cfgEngine = loaded

	configBytes, err := json.MarshalIndent(cfgEngine, "", "  ")
	if err != nil {
		return err
	}

	execlog.Zero.Info().Msg("Running config: " + string(configBytes))
	return nil
}

func EngineConfig() *Engine {
	return &cfgEngine
}
