package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"rsi-sentry/pkg/types"
)

// Load 加载配置，优先级：环境变量 > config.local.yaml > config.yaml > 默认值
func Load() (*types.Config, error) {
	// .env 不存在时忽略
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	// 设置默认值
	setDefaults(v)

	// 读取环境变量，log.level -> LOG_LEVEL
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("telegram.bot_token", "BOT_TOKEN", "TELEGRAM_BOT_TOKEN")

	// 优先尝试读取本地配置文件
	v.SetConfigName("config.local")
	if err := v.ReadInConfig(); err != nil {
		// 如果本地配置文件不存在，尝试读取默认配置文件
		v.SetConfigName("config")
		if err := v.ReadInConfig(); err != nil {
			var configFileNotFoundError viper.ConfigFileNotFoundError
			if !errors.As(err, &configFileNotFoundError) {
				return nil, err
			}
		}
	}

	var config types.Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate 校验必填项和取值范围
func Validate(cfg *types.Config) error {
	if cfg.Telegram.BotToken == "" {
		return errors.New("telegram.bot_token is required (set BOT_TOKEN)")
	}
	if cfg.Alert.RSIPeriod < 2 {
		return fmt.Errorf("alert.rsi_period must be >= 2, got %d", cfg.Alert.RSIPeriod)
	}
	if cfg.Alert.RSILow < 0 || cfg.Alert.RSIHigh > 100 || cfg.Alert.RSILow >= cfg.Alert.RSIHigh {
		return fmt.Errorf("alert thresholds must satisfy 0 <= rsi_low < rsi_high <= 100, got %v/%v",
			cfg.Alert.RSILow, cfg.Alert.RSIHigh)
	}
	if cfg.Alert.PollInterval < time.Second {
		return fmt.Errorf("alert.poll_interval must be at least 1s, got %v", cfg.Alert.PollInterval)
	}
	if _, err := time.LoadLocation(cfg.Alert.Timezone); err != nil {
		return fmt.Errorf("alert.timezone: %w", err)
	}
	if cfg.Market.Limit <= cfg.Alert.RSIPeriod {
		return fmt.Errorf("market.limit (%d) must exceed alert.rsi_period (%d)", cfg.Market.Limit, cfg.Alert.RSIPeriod)
	}
	switch cfg.Storage.Backend {
	case "file":
		if cfg.Storage.StateFile == "" {
			return errors.New("storage.state_file is required for the file backend")
		}
	case "redis":
		if cfg.Redis.URL == "" {
			return errors.New("redis.url is required for the redis backend")
		}
	default:
		return fmt.Errorf("storage.backend must be file or redis, got %q", cfg.Storage.Backend)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file_path", "logs")
	v.SetDefault("log.max_size", 200)
	v.SetDefault("log.max_age", 30)
	v.SetDefault("log.max_backups", 7)
	v.SetDefault("log.compress", false)
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.poll_timeout", 30)
	v.SetDefault("telegram.send_retries", 3)
	v.SetDefault("telegram.console_mirror", false)
	v.SetDefault("market.base_url", "https://api.binance.com/api/v3")
	v.SetDefault("market.symbol", "BTCUSDT")
	v.SetDefault("market.interval", "15m")
	v.SetDefault("market.limit", 200)
	v.SetDefault("market.stream.enabled", false)
	v.SetDefault("market.stream.endpoint", "wss://stream.binance.com:9443/ws")
	v.SetDefault("market.stream.reconnect_interval", 5*time.Second)
	v.SetDefault("market.stream.ping_interval", 20*time.Second)
	v.SetDefault("market.stream.max_reconnect_attempts", 10)
	v.SetDefault("alert.poll_interval", 5*time.Second)
	v.SetDefault("alert.rsi_period", 14)
	v.SetDefault("alert.rsi_low", 30.0)
	v.SetDefault("alert.rsi_high", 70.0)
	v.SetDefault("alert.timezone", "Asia/Kolkata")
	v.SetDefault("storage.backend", "file")
	v.SetDefault("storage.state_file", "data.json")
	v.SetDefault("redis.url", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key", "rsi-sentry:chats")
	v.SetDefault("database.mysql.host", "")
	v.SetDefault("database.mysql.port", 3306)
	v.SetDefault("database.mysql.username", "")
	v.SetDefault("database.mysql.password", "")
	v.SetDefault("database.mysql.database", "")
	v.SetDefault("database.mysql.max_idle_conns", 2)
	v.SetDefault("database.mysql.max_open_conns", 5)
	v.SetDefault("metrics.listen", "")
	v.SetDefault("network.proxy", "")
	v.SetDefault("network.timeout", 30*time.Second)
}
