// internal/pkg/bootstrap/config.go
package bootstrap

import (
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Config 是服务的全量配置，来自 yaml 文件加环境变量覆盖
type Config struct {
	Infra struct {
		MySQL struct {
			DSN string `yaml:"dsn"`
		} `yaml:"mysql"`
		Redis struct {
			Addr string `yaml:"addr"`
			DB   int    `yaml:"db"`
		} `yaml:"redis"`
		Kafka struct {
			Brokers []string `yaml:"brokers"`
		} `yaml:"kafka"`
		Zookeeper struct {
			Enabled bool     `yaml:"enabled"`
			Servers []string `yaml:"servers"`
		} `yaml:"zookeeper"`
		Jaeger struct {
			Endpoint string `yaml:"endpoint"`
		} `yaml:"jaeger"`
		Nacos struct {
			Enabled     bool   `yaml:"enabled"`
			ServerAddrs string `yaml:"serverAddrs"`
			Namespace   string `yaml:"namespace"`
			Group       string `yaml:"group"`
		} `yaml:"nacos"`
	} `yaml:"infra"`

	Inventory struct {
		ReservationTTLMinutes int     `yaml:"reservationTtlMinutes"`
		SweepIntervalMinutes  int     `yaml:"sweepIntervalMinutes"`
		AllocationMaxAttempts int     `yaml:"allocationMaxAttempts"`
		WarehouseCacheSeconds int     `yaml:"warehouseCacheSeconds"`
		EligibilityRule       string  `yaml:"eligibilityRule"`
		BaseDeliveryFee       float64 `yaml:"baseDeliveryFee"`
		PerKmFee              float64 `yaml:"perKmFee"`
		BaseKm                float64 `yaml:"baseKm"`
		DefaultFreeRadiusKm   float64 `yaml:"defaultFreeRadiusKm"`
	} `yaml:"inventory"`
}

var (
	currentConfig *Config
	configOnce    sync.Once
)

// Init 加载配置。文件路径取 CONFIG_PATH，缺省 config.yaml；
// 文件不存在时使用内置默认值，方便本地直接起服务。
func Init() {
	configOnce.Do(func() {
		cfg := defaultConfig()

		path := getEnv("CONFIG_PATH", "config.yaml")
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				log.Fatal().Err(err).Str("path", path).Msg("invalid config file")
			}
			log.Info().Str("path", path).Msg("config loaded")
		} else {
			log.Warn().Str("path", path).Msg("config file not found, using defaults")
		}

		applyEnvOverrides(cfg)
		currentConfig = cfg
	})
}

// GetCurrentConfig 返回已加载的配置；未 Init 时返回默认值
func GetCurrentConfig() *Config {
	if currentConfig == nil {
		Init()
	}
	return currentConfig
}

func defaultConfig() *Config {
	cfg := &Config{}
	cfg.Infra.MySQL.DSN = "root:root@tcp(localhost:3306)/qcom?charset=utf8mb4&parseTime=True&loc=Local"
	cfg.Infra.Redis.Addr = "localhost:6379"
	cfg.Infra.Kafka.Brokers = []string{"localhost:9092"}
	cfg.Infra.Jaeger.Endpoint = "http://localhost:14268/api/traces"
	cfg.Infra.Nacos.Group = "DEFAULT_GROUP"
	cfg.Inventory.ReservationTTLMinutes = 15
	cfg.Inventory.SweepIntervalMinutes = 5
	cfg.Inventory.AllocationMaxAttempts = 3
	cfg.Inventory.WarehouseCacheSeconds = 60
	cfg.Inventory.BaseDeliveryFee = 20
	cfg.Inventory.PerKmFee = 6
	cfg.Inventory.BaseKm = 3
	cfg.Inventory.DefaultFreeRadiusKm = 5
	return cfg
}

func applyEnvOverrides(cfg *Config) {
	if v, ok := os.LookupEnv("MYSQL_DSN"); ok {
		cfg.Infra.MySQL.DSN = v
	}
	if v, ok := os.LookupEnv("REDIS_ADDR"); ok {
		cfg.Infra.Redis.Addr = v
	}
	if v, ok := os.LookupEnv("KAFKA_BROKERS"); ok {
		cfg.Infra.Kafka.Brokers = strings.Split(v, ",")
	}
	if v, ok := os.LookupEnv("ZOOKEEPER_SERVERS"); ok {
		cfg.Infra.Zookeeper.Enabled = true
		cfg.Infra.Zookeeper.Servers = strings.Split(v, ",")
	}
	if v, ok := os.LookupEnv("JAEGER_ENDPOINT"); ok {
		cfg.Infra.Jaeger.Endpoint = v
	}
	if v, ok := os.LookupEnv("NACOS_SERVER_ADDRS"); ok {
		cfg.Infra.Nacos.Enabled = true
		cfg.Infra.Nacos.ServerAddrs = v
	}
	if v, ok := os.LookupEnv("NACOS_NAMESPACE"); ok {
		cfg.Infra.Nacos.Namespace = v
	}
	if v, ok := os.LookupEnv("NACOS_GROUP"); ok {
		cfg.Infra.Nacos.Group = v
	}
}

// getEnv 从环境变量读取配置，带缺省值
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
