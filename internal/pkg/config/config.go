// internal/pkg/config/config.go
package config

import (
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config 汇总了所有服务共享的基础设施配置。
// 每个服务的 main 加载同一份文件，只使用自己关心的部分。
type Config struct {
	Infra    Infra    `yaml:"infra"`
	Topics   Topics   `yaml:"topics"`
	Services Services `yaml:"services"`
	Auth     Auth     `yaml:"auth"`
}

type Infra struct {
	MySQLDSN  string   `yaml:"mysqlDsn"`
	RedisAddr string   `yaml:"redisAddr"`
	Kafka     []string `yaml:"kafkaBrokers"`
	Zookeeper []string `yaml:"zookeeperServers"`
	Jaeger    string   `yaml:"jaegerEndpoint"`
}

// Topics 为每种 Saga 事件配置路由名。
// 路由名是配置而不是常量：同一套代码可以在不同环境里接到不同的主题上。
type Topics struct {
	CheckoutInitiated    string `yaml:"checkoutInitiated"`
	StockCommitRequested string `yaml:"stockCommitRequested"`
	StockCommitFailed    string `yaml:"stockCommitFailed"`
	OrderCancelled       string `yaml:"orderCancelled"`
}

// Services 记录各下游服务的基地址。服务发现属于外部边界，
// 这里只做静态配置 + 环境变量覆盖。
type Services struct {
	ProductURL string `yaml:"productUrl"`
	OrderURL   string `yaml:"orderUrl"`
	UserURL    string `yaml:"userUrl"`
}

type Auth struct {
	AccessSecret  string        `yaml:"accessSecret"`
	RefreshSecret string        `yaml:"refreshSecret"`
	AccessExpire  time.Duration `yaml:"accessExpire"`
	RefreshExpire time.Duration `yaml:"refreshExpire"`
	// ServiceToken 是服务间调用的能力凭证，由 user-service 在边界处校验。
	ServiceToken string `yaml:"serviceToken"`
}

// Load 读取 YAML 配置文件并应用环境变量覆盖。
// path 为空时使用 CONFIG_PATH，再退回默认值。
func Load(path string) (*Config, error) {
	if path == "" {
		path = getEnv("CONFIG_PATH", "configs/config.yaml")
	}

	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
		// 没有配置文件时完全依赖默认值和环境变量，方便本地开发
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parse config %s", path)
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Infra: Infra{
			MySQLDSN:  "root:root@tcp(localhost:3306)/mercado?charset=utf8mb4&parseTime=True&loc=Local",
			RedisAddr: "localhost:6379",
			Kafka:     []string{"localhost:9092"},
			Zookeeper: []string{"localhost:2181"},
			Jaeger:    "http://localhost:14268/api/traces",
		},
		Topics: Topics{
			CheckoutInitiated:    "cart.checkout-initiated",
			StockCommitRequested: "product.stock-commit-requested",
			StockCommitFailed:    "order.stock-commit-failed",
			OrderCancelled:       "product.order-cancelled",
		},
		Services: Services{
			ProductURL: "http://localhost:8083",
			OrderURL:   "http://localhost:8082",
			UserURL:    "http://localhost:8084",
		},
		Auth: Auth{
			AccessExpire:  15 * time.Minute,
			RefreshExpire: 7 * 24 * time.Hour,
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	cfg.Infra.MySQLDSN = getEnv("MYSQL_DSN", cfg.Infra.MySQLDSN)
	cfg.Infra.RedisAddr = getEnv("REDIS_ADDR", cfg.Infra.RedisAddr)
	cfg.Infra.Jaeger = getEnv("JAEGER_ENDPOINT", cfg.Infra.Jaeger)
	if v, ok := os.LookupEnv("KAFKA_BROKERS"); ok {
		cfg.Infra.Kafka = strings.Split(v, ",")
	}
	if v, ok := os.LookupEnv("ZOOKEEPER_SERVERS"); ok {
		cfg.Infra.Zookeeper = strings.Split(v, ",")
	}
	cfg.Services.ProductURL = getEnv("PRODUCT_SERVICE_URL", cfg.Services.ProductURL)
	cfg.Services.OrderURL = getEnv("ORDER_SERVICE_URL", cfg.Services.OrderURL)
	cfg.Services.UserURL = getEnv("USER_SERVICE_URL", cfg.Services.UserURL)
	cfg.Auth.AccessSecret = getEnv("AUTH_ACCESS_SECRET", cfg.Auth.AccessSecret)
	cfg.Auth.RefreshSecret = getEnv("AUTH_REFRESH_SECRET", cfg.Auth.RefreshSecret)
	cfg.Auth.ServiceToken = getEnv("SERVICE_TOKEN", cfg.Auth.ServiceToken)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
