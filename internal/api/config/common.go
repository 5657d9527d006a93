package config

// Config 配置主体
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	DB       DBConfig       `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Mongo    MongoConfig    `mapstructure:"mongo"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Logstash LogstashConfig `mapstructure:"logstash"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	IM       IMConfig       `mapstructure:"im"`
}

// ServerConfig Server配置
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// DBConfig 数据库配置
type DBConfig struct {
	DSN         string `mapstructure:"dsn"`
	MaxIdle     int    `mapstructure:"max_idle"`
	MaxOpen     int    `mapstructure:"max_open"`
	MaxLifetime int    `mapstructure:"max_lifetime"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// MongoConfig MongoDB配置，站内通知收件箱
type MongoConfig struct {
	URL      string `mapstructure:"url"`
	Database string `mapstructure:"database"`
	Enable   bool   `mapstructure:"enable"`
}

type KafkaConfig struct {
	Brokers  []string       `mapstructure:"brokers"`
	Sasl     SaslConfig     `mapstructure:"sasl"`
	Producer ProducerConfig `mapstructure:"producer"`
	Enable   bool           `mapstructure:"enable"`
}

type SaslConfig struct {
	Enable   bool   `mapstructure:"enable"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type ProducerConfig struct {
	Topic        string `mapstructure:"topic"`
	Timeout      int    `mapstructure:"timeout"`
	RetryMax     int    `mapstructure:"retry_max"`
	RequiredAcks int    `mapstructure:"required_acks"`
}

// LogstashConfig 远程日志
type LogstashConfig struct {
	Address string `mapstructure:"address"`
	Index   string `mapstructure:"index"`
	Token   string `mapstructure:"token"`
}

type JWTConfig struct {
	Secret     string `mapstructure:"secret"`
	Issuer     string `mapstructure:"issuer"`
	ExpireHour int    `mapstructure:"expire_hour"`
}

// IMConfig 即时通讯相关配置
type IMConfig struct {
	// PresenceBackend local: 单进程路由; redis: 通过 Redis Pub/Sub 跨实例路由
	PresenceBackend      string `mapstructure:"presence_backend"`
	NotifyTimeoutMs      int    `mapstructure:"notify_timeout_ms"`
	MaxTextLength        int    `mapstructure:"max_text_length"`
	ReceiptRetentionDays int    `mapstructure:"receipt_retention_days"`
	ReceiptPruneSpec     string `mapstructure:"receipt_prune_spec"`
	SendQueueSize        int    `mapstructure:"send_queue_size"`
}
