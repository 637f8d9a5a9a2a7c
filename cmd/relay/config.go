package main

import "time"

type Config struct {
	Host                 string        `env:"HOST,default=localhost"`
	Port                 int           `env:"PORT,default=8080"`
	LogLevel             string        `env:"LOG_LEVEL,default=INFO"`
	BadgerFilepath       string        `env:"BADGER_FILEPATH,required=true"`
	BlugeFilepath        string        `env:"BLUGE_FILEPATH"`
	LangConfidence       float64       `env:"LANG_CONFIDENCE,default=0.2"`
	ReplayLimit          int           `env:"REPLAY_LIMIT,default=50"`
	HistoryLimit         int           `env:"HISTORY_LIMIT,default=100"`
	BannedTopics         string        `env:"BANNED_TOPICS"`
	FilterMessages       bool          `env:"FILTER_MESSAGES,default=false"`
	NumberOfShards       int           `env:"NUMBER_OF_SHARDS,default=8"`
	ShardBufferSize      int           `env:"SHARD_BUFFER_SIZE,default=256"`
	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,default=256"`
	StorageTimeout       time.Duration `env:"STORAGE_TIMEOUT,default=2s"`
	WriteWait            time.Duration `env:"WRITE_WAIT,default=10s"`
	PongWait             time.Duration `env:"PONG_WAIT,default=60s"`
	MaxMessageSize       int64         `env:"MAX_MESSAGE_SIZE,default=4096"`
	MaxMessageLength     int           `env:"MAX_MESSAGE_LENGTH,default=1000"`
	RateLimitBurst       int           `env:"RATE_LIMIT_BURST,default=5"`
	RateLimitInterval    time.Duration `env:"RATE_LIMIT_INTERVAL,default=1s"`
	AllowedOrigins       string        `env:"ALLOWED_ORIGINS,default=*"`
	TokenSecret          string        `env:"TOKEN_SECRET"`
	RestartInterval      time.Duration `env:"RESTART_INTERVAL,default=1s"`
	HealthInterval       time.Duration `env:"HEALTH_INTERVAL,default=5s"`
	ShutdownTimeout      time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`
}
