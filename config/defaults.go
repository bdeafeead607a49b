package config

import "time"

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Database:   DefaultDatabaseConfig(),
		Redis:      DefaultRedisConfig(),
		Heartbeat:  DefaultHeartbeatConfig(),
		Scanner:    DefaultScannerConfig(),
		CodeSearch: DefaultCodeSearchConfig(),
		Trace:      DefaultTraceConfig(),
		Server:     DefaultServerConfig(),
		Log:        DefaultLogConfig(),
	}
}

// DefaultDatabaseConfig returns the default store configuration.
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
		OpTimeout:       3 * time.Second,
	}
}

// DefaultRedisConfig returns the default notification configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Enabled: false,
		Addr:    "localhost:6379",
		DB:      0,
	}
}

// DefaultHeartbeatConfig returns the default heartbeat configuration.
func DefaultHeartbeatConfig() HeartbeatConfig {
	return HeartbeatConfig{
		DebounceInterval: 30 * time.Second,
	}
}

// DefaultScannerConfig returns the default scanner configuration.
func DefaultScannerConfig() ScannerConfig {
	return ScannerConfig{
		PollInterval:       60 * time.Second,
		StalenessThreshold: 5 * time.Minute,
		MaxConcurrent:      2,
		ExtractionTimeout:  10 * time.Minute,
		OpTimeout:          30 * time.Second,
	}
}

// DefaultCodeSearchConfig returns the default code-search daemon client
// configuration.
func DefaultCodeSearchConfig() CodeSearchConfig {
	return CodeSearchConfig{
		Timeout: 2 * time.Second,
	}
}

// DefaultTraceConfig returns the default trace configuration. Tracing is off
// until both endpoint and token are provided.
func DefaultTraceConfig() TraceConfig {
	return TraceConfig{
		Timeout: 5 * time.Second,
	}
}

// DefaultServerConfig returns the default daemon HTTP configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		MetricsPort:     9273,
		ShutdownTimeout: 15 * time.Second,
	}
}

// DefaultLogConfig returns the default log configuration.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:       "info",
		Format:      "json",
		OutputPaths: []string{"stderr"},
	}
}
