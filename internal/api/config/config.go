package config

import (
	"errors"
	"fmt"

	"github.com/spf13/viper"
)

// Cfg 全局可访问的配置实例
var Cfg *Config

// LoadConfig 从文件加载配置并填充到 Cfg
func LoadConfig() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")

	viper.SetEnvPrefix("HOMESTEAD")
	viper.AutomaticEnv()
	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("config file not found: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	Cfg = &cfg

	return nil
}

func setDefaults() {
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("jwt.issuer", "Homestead")
	viper.SetDefault("jwt.expire_hour", 24)
	viper.SetDefault("im.presence_backend", "local")
	viper.SetDefault("im.notify_timeout_ms", 3000)
	viper.SetDefault("im.max_text_length", 4000)
	viper.SetDefault("im.receipt_retention_days", 7)
	viper.SetDefault("im.receipt_prune_spec", "0 30 3 * * *")
	viper.SetDefault("im.send_queue_size", 256)
	viper.SetDefault("kafka.producer.timeout", 3)
	viper.SetDefault("kafka.producer.retry_max", 3)
	viper.SetDefault("kafka.producer.required_acks", 1)
}
