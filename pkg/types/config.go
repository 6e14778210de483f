package types

import "time"

// Config 主配置结构
type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Market   MarketConfig   `mapstructure:"market"`
	Alert    AlertConfig    `mapstructure:"alert"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Database DatabaseConfig `mapstructure:"database"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Network  NetworkConfig  `mapstructure:"network"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`       // 日志级别
	FilePath   string `mapstructure:"file_path"`   // 日志输出目录
	MaxSize    int    `mapstructure:"max_size"`    // 日志文件大小 单位：MB，超限后会自动切割
	MaxAge     int    `mapstructure:"max_age"`     // 日志文件存放时间 单位：天
	MaxBackups int    `mapstructure:"max_backups"` // 日志文件备份数量
	Compress   bool   `mapstructure:"compress"`    // 日志文件压缩
}

// TelegramConfig Telegram机器人配置
type TelegramConfig struct {
	BotToken      string `mapstructure:"bot_token"`
	PollTimeout   int    `mapstructure:"poll_timeout"`   // getUpdates长轮询超时 单位：秒
	SendRetries   uint64 `mapstructure:"send_retries"`   // 发送失败重试次数
	ConsoleMirror bool   `mapstructure:"console_mirror"` // 同时输出到控制台
}

// MarketConfig 行情数据配置
type MarketConfig struct {
	BaseURL  string       `mapstructure:"base_url"`
	Symbol   string       `mapstructure:"symbol"`
	Interval string       `mapstructure:"interval"` // K线周期，如 15m
	Limit    int          `mapstructure:"limit"`    // 每次拉取的K线数量
	Stream   StreamConfig `mapstructure:"stream"`
}

// StreamConfig WebSocket K线推送配置
type StreamConfig struct {
	Enabled              bool          `mapstructure:"enabled"`
	Endpoint             string        `mapstructure:"endpoint"`
	ReconnectInterval    time.Duration `mapstructure:"reconnect_interval"`
	PingInterval         time.Duration `mapstructure:"ping_interval"`
	MaxReconnectAttempts int           `mapstructure:"max_reconnect_attempts"`
}

// AlertConfig 预警配置
type AlertConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"` // 轮询周期
	RSIPeriod    int           `mapstructure:"rsi_period"`
	RSILow       float64       `mapstructure:"rsi_low"`
	RSIHigh      float64       `mapstructure:"rsi_high"`
	Timezone     string        `mapstructure:"timezone"` // K线时间展示时区
}

// StorageConfig 聊天状态持久化配置
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`    // file 或 redis
	StateFile string `mapstructure:"state_file"` // backend=file 时的JSON文件路径
}

// RedisConfig Redis配置
type RedisConfig struct {
	URL      string `mapstructure:"url"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Key      string `mapstructure:"key"` // 保存聊天状态的key
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
}

// MySQLConfig MySQL配置，Host为空时不记录预警历史
type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// MetricsConfig Prometheus指标配置
type MetricsConfig struct {
	Listen string `mapstructure:"listen"` // 为空时不启动 /metrics
}

// NetworkConfig 网络配置
type NetworkConfig struct {
	Proxy   string        `mapstructure:"proxy"`   // HTTP代理地址，如 http://127.0.0.1:7890
	Timeout time.Duration `mapstructure:"timeout"` // 网络超时时间
}
