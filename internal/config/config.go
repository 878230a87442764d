// Package config 全局配置加载与管理。
//
// 所有字段通过 struct tag 声明环境变量映射:
//
//	`env:"VAR_NAME" default:"value" min:"0"`
//
// Load() 使用反射自动填充，无需手动逐行赋值。
package config

import (
	"github.com/agentbridge/go-agent-bridge/pkg/util"
)

// Config 应用全局配置，字段名与 .env 变量一一对应。
type Config struct {
	// 流式发布
	CoalesceIntervalMS int `env:"COALESCE_INTERVAL_MS" default:"50" min:"1"`

	// 传输截断
	TruncateThreshold int     `env:"TRUNCATE_THRESHOLD" default:"20000" min:"1024"`
	TruncateHeadRatio float64 `env:"TRUNCATE_HEAD_RATIO" default:"0.65" min:"0.1"`

	// 后端 agent 进程桥
	BridgeCommand           string `env:"BRIDGE_COMMAND" default:"agent-backend serve"`
	BridgePort              int    `env:"BRIDGE_PORT" default:"4810" min:"1"`
	BridgeStartupTimeoutSec int    `env:"BRIDGE_STARTUP_TIMEOUT_SEC" default:"30" min:"1"`
	BridgeReadIdleSec       int    `env:"BRIDGE_READ_IDLE_SEC" default:"120" min:"10"`
	BridgeReconnectMax      int    `env:"BRIDGE_RECONNECT_MAX" default:"5" min:"0"`
	BridgeStdoutLimitBytes  int    `env:"BRIDGE_STDOUT_LIMIT_BYTES" default:"65536" min:"1024"`

	// PostgreSQL (仅作为 snapshot 来源只读访问, 持久化归后端所有)
	PostgresConnStr     string `env:"POSTGRES_CONNECTION_STRING"`
	PostgresSchema      string `env:"POSTGRES_SCHEMA" default:"public"`
	PostgresPoolMinSize int    `env:"POSTGRES_POOL_MIN_SIZE" default:"1" min:"1"`
	PostgresPoolMaxSize int    `env:"POSTGRES_POOL_MAX_SIZE" default:"4" min:"1"`

	// Debug HTTP
	DebugServerAddr    string `env:"DEBUG_SERVER_ADDR" default:"127.0.0.1:4811"`
	DebugServerEnabled bool   `env:"DEBUG_SERVER_ENABLED" default:"true"`

	// 历史加载
	HistoryLoadLimit int `env:"HISTORY_LOAD_LIMIT" default:"200" min:"1"`

	// 日志
	AppEnv string `env:"APP_ENV" default:"production"`
	LogDir string `env:"LOG_DIR" default:".agent-bridge/logs"`
}

// Load 从环境变量加载配置 (通过反射读取 struct tag)。
func Load() *Config {
	var cfg Config
	util.LoadFromEnv(&cfg)
	return &cfg
}
