package config

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App     AppConfig              `mapstructure:"app"`
	DB      DBConfig               `mapstructure:"db"`
	Redis   RedisConfig            `mapstructure:"redis"`
	Kafka   KafkaConfig            `mapstructure:"kafka"`
	Bus     BusConfig              `mapstructure:"bus"`
	Queue   QueueConfig            `mapstructure:"queue"`
	Signer  SignerConfig           `mapstructure:"signer"`
	Chains  map[string]ChainConfig `mapstructure:"chains"`
	Sender  SenderConfig           `mapstructure:"sender"`
	Watcher WatcherConfig          `mapstructure:"watcher"`
}

type AppConfig struct {
	Env         string `mapstructure:"env"`
	HttpPort    string `mapstructure:"http_port"`
	MetricsPort string `mapstructure:"metrics_port"` // worker 进程暴露 /metrics 的端口
}

type DBConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
}

// DSN 构造 gorm 使用的 key=value 形式连接串
func (c DBConfig) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		c.Host, c.User, c.Password, c.Name, c.Port)
}

// URL 构造 golang-migrate 使用的 URL 形式连接串
func (c DBConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Name)
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
}

// BusConfig 事件总线 (tx.sent / tx.status)
type BusConfig struct {
	Type                  string        `mapstructure:"type"` // "kafka" or "redis"
	ConnectMaxAttempts    int           `mapstructure:"connect_max_attempts"`
	ConnectInitialBackoff time.Duration `mapstructure:"connect_initial_backoff"`
	ConnectMaxBackoff     time.Duration `mapstructure:"connect_max_backoff"`
}

// QueueConfig 待签名队列 (Redis Stream)
type QueueConfig struct {
	Stream       string        `mapstructure:"stream"`
	BlockTimeout time.Duration `mapstructure:"block_timeout"`
}

// SignerConfig 签名私钥来源，优先级: private_key > keystore_path > mnemonic
type SignerConfig struct {
	PrivateKey     string `mapstructure:"private_key"`
	KeystorePath   string `mapstructure:"keystore_path"`
	Password       string `mapstructure:"password"` // 通常通过环境变量 SIGNER_PASSWORD 传入
	Mnemonic       string `mapstructure:"mnemonic"`
	DerivationPath string `mapstructure:"derivation_path"`
}

type ChainConfig struct {
	Name       string `mapstructure:"name"`
	ChainID    int64  `mapstructure:"chain_id"`
	HexChainID string `mapstructure:"hex_chain_id"`
	RpcUrl     string `mapstructure:"rpc_url"`
}

type SenderConfig struct {
	MaxAttempts    int           `mapstructure:"max_attempts"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	ErrorPause     time.Duration `mapstructure:"error_pause"`
	MaxNotReady    int           `mapstructure:"max_not_ready"`
	ResumeCursor   bool          `mapstructure:"resume_cursor"`
	ConsumerName   string        `mapstructure:"consumer_name"`
}

type WatcherConfig struct {
	Interval              time.Duration `mapstructure:"interval"`
	RequiredConfirmations uint64        `mapstructure:"required_confirmations"`
	TrackFinality         bool          `mapstructure:"track_finality"`
	BatchSize             int           `mapstructure:"batch_size"` // 分页大小，每个 tick 仍会扫完全部记录
}

var Global Config

// Init 加载 config.yaml + 环境变量到 Global
func Init() {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("Fatal error config file: %s \n", err)
	}
	Global = *cfg
	log.Printf("Configuration loaded successfully. Env: %s", Global.App.Env)
}

// Load 读取配置但不修改 Global，方便测试
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config") // name of config file (without extension)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// 环境变量: watcher.required_confirmations -> WATCHER_REQUIRED_CONFIRMATIONS
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Printf("Warning: Config file not found, using defaults and environment variables")
		} else {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}
	return &cfg, nil
}

// ChainList 按名称排序返回链配置，保证每个 tick 的扫描顺序稳定
func (c Config) ChainList() []ChainConfig {
	names := make([]string, 0, len(c.Chains))
	for name := range c.Chains {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]ChainConfig, 0, len(names))
	for _, name := range names {
		chain := c.Chains[name]
		if chain.Name == "" {
			chain.Name = name
		}
		out = append(out, chain)
	}
	return out
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "development")
	v.SetDefault("app.http_port", "3000")
	v.SetDefault("app.metrics_port", "9100")

	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", "5432")
	v.SetDefault("db.user", "tx_user")
	v.SetDefault("db.password", "tx_password")
	v.SetDefault("db.name", "tx_db")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})

	v.SetDefault("bus.type", "kafka")
	v.SetDefault("bus.connect_max_attempts", 10)
	v.SetDefault("bus.connect_initial_backoff", 2*time.Second)
	v.SetDefault("bus.connect_max_backoff", 30*time.Second)

	v.SetDefault("queue.stream", "tx:to-sign")
	v.SetDefault("queue.block_timeout", 5*time.Second)

	v.SetDefault("signer.private_key", "")
	v.SetDefault("signer.keystore_path", "")
	v.SetDefault("signer.password", "")
	v.SetDefault("signer.mnemonic", "")
	v.SetDefault("signer.derivation_path", "m/44'/60'/0'/0/0")

	// 支持的链: RPC 地址通过环境变量注入，例如 CHAINS_BSC_TESTNET_RPC_URL
	v.SetDefault("chains.ethereum_sepolia.name", "Ethereum Sepolia")
	v.SetDefault("chains.ethereum_sepolia.chain_id", 11155111)
	v.SetDefault("chains.ethereum_sepolia.hex_chain_id", "0xaa36a7")
	v.SetDefault("chains.ethereum_sepolia.rpc_url", "")
	v.SetDefault("chains.polygon_amoy.name", "Polygon Amoy")
	v.SetDefault("chains.polygon_amoy.chain_id", 80002)
	v.SetDefault("chains.polygon_amoy.hex_chain_id", "0x13882")
	v.SetDefault("chains.polygon_amoy.rpc_url", "")
	v.SetDefault("chains.bsc_testnet.name", "BSC Testnet")
	v.SetDefault("chains.bsc_testnet.chain_id", 97)
	v.SetDefault("chains.bsc_testnet.hex_chain_id", "0x61")
	v.SetDefault("chains.bsc_testnet.rpc_url", "")

	v.SetDefault("sender.max_attempts", 5)
	v.SetDefault("sender.initial_backoff", time.Second)
	v.SetDefault("sender.error_pause", 5*time.Second)
	v.SetDefault("sender.max_not_ready", 3)
	v.SetDefault("sender.resume_cursor", false)
	v.SetDefault("sender.consumer_name", "tx-sender")

	v.SetDefault("watcher.interval", 10*time.Second)
	v.SetDefault("watcher.required_confirmations", 3)
	v.SetDefault("watcher.track_finality", false)
	v.SetDefault("watcher.batch_size", 100)
}
