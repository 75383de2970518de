package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/quantbot/gotrader/pkg/secretstore"
)

// secretPrefix 凭证引用前缀：值形如 secret://binance_api_key 时从 secretstore 解析
const secretPrefix = "secret://"

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level      string `yaml:"level"`
	OutputFile string `yaml:"outputFile"`
	MaxSize    int    `yaml:"maxSize"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAge     int    `yaml:"maxAge"`
	Compress   bool   `yaml:"compress"`
}

// MetricsConfig debug/metrics 服务配置
type MetricsConfig struct {
	Listen string `yaml:"listen"` // 为空则不启动
}

// BusConfig 事件总线配置
type BusConfig struct {
	QueueSize int `yaml:"queueSize"`
}

// SecretsConfig badger 凭证库配置（可选）
type SecretsConfig struct {
	Path          string `yaml:"path"`
	EncryptionKey string `yaml:"encryptionKey"` // 32字节，hex 或 base64；支持 ${ENV} 展开
}

// VenueConfig 单个交易所配置
type VenueConfig struct {
	Connector       string `yaml:"connector"` // 连接器类型标签（静态注册表里的 key）
	WSURL           string `yaml:"wsURL"`
	BaseURL         string `yaml:"baseURL"`
	APIKey          string `yaml:"apiKey"`
	APISecret       string `yaml:"apiSecret"`
	RecvWindowMS    int64  `yaml:"recvWindow"`      // 签名请求 recvWindow（毫秒），默认 5000
	OrderRatePerSec int    `yaml:"orderRatePerSec"` // 下单速率上限，默认 10/s
}

// StrategyConfig 单个策略实例配置
type StrategyConfig struct {
	Name     string                 `yaml:"name"`     // 实例名（也是 strategy_id）
	Strategy string                 `yaml:"strategy"` // 策略类型标签（静态注册表里的 key）
	Enabled  bool                   `yaml:"enabled"`
	Params   map[string]interface{} `yaml:"params"`
}

// Venue 返回策略绑定的交易所名（params.venue）
func (s StrategyConfig) Venue() string {
	if v, ok := s.Params["venue"].(string); ok {
		return v
	}
	return ""
}

// Symbol 返回策略绑定的交易对（params.symbol）
func (s StrategyConfig) Symbol() string {
	if v, ok := s.Params["symbol"].(string); ok {
		return v
	}
	return ""
}

// RiskConfig 风控配置
type RiskConfig struct {
	MaxOrderQuantity string        `yaml:"maxOrderQuantity"` // 单笔最大数量（decimal 字符串）
	MaxLiveOrders    int           `yaml:"maxLiveOrders"`    // 活跃订单数上限
	FailureTripCount int           `yaml:"failureTripCount"` // 连续失败多少次后熔断
	ResetInterval    time.Duration `yaml:"resetInterval"`    // 熔断恢复间隔
}

// AnalyticsConfig 绩效模块配置
type AnalyticsConfig struct {
	Enabled bool   `yaml:"enabled"`
	DBPath  string `yaml:"dbPath"` // sqlite 文件路径，为空则只保留内存计数
}

// Config 顶层配置
type Config struct {
	Logging    LoggingConfig             `yaml:"logging"`
	Metrics    MetricsConfig             `yaml:"metrics"`
	Bus        BusConfig                 `yaml:"bus"`
	Secrets    SecretsConfig             `yaml:"secrets"`
	Venues     map[string]VenueConfig    `yaml:"venues"`
	Strategies []StrategyConfig          `yaml:"strategies"`
	Risk       RiskConfig                `yaml:"risk"`
	Analytics  AnalyticsConfig           `yaml:"analytics"`
}

// LoadEnvFiles 加载 .env 文件（存在才加载，不存在不报错）
func LoadEnvFiles(paths ...string) {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
		}
	}
}

// LoadFromFile 从 YAML 文件加载配置
// 凭证字段支持 ${ENV_VAR} 展开；展开发生在反序列化之前
func LoadFromFile(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "读取配置文件 %s", path)
	}

	// ${VAR} 形式的环境变量展开（未设置的变量展开为空串，由 Validate 兜底）
	expanded := os.Expand(string(raw), func(key string) string {
		return os.Getenv(key)
	})

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, errors.Wrapf(err, "解析配置文件 %s", path)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.MaxSize == 0 {
		c.Logging.MaxSize = 100
	}
	if c.Logging.MaxBackups == 0 {
		c.Logging.MaxBackups = 3
	}
	if c.Logging.MaxAge == 0 {
		c.Logging.MaxAge = 7
	}
	if c.Bus.QueueSize == 0 {
		c.Bus.QueueSize = 2048
	}
	if c.Risk.MaxLiveOrders == 0 {
		c.Risk.MaxLiveOrders = 10
	}
	if c.Risk.FailureTripCount == 0 {
		c.Risk.FailureTripCount = 5
	}
	if c.Risk.ResetInterval == 0 {
		c.Risk.ResetInterval = time.Minute
	}
	for name, v := range c.Venues {
		if v.RecvWindowMS == 0 {
			v.RecvWindowMS = 5000
		}
		if v.OrderRatePerSec == 0 {
			v.OrderRatePerSec = 10
		}
		c.Venues[name] = v
	}
}

// Validate 校验配置；配置错误是致命的，启动中止
func (c *Config) Validate() error {
	if len(c.Venues) == 0 {
		return errors.New("配置缺少 venues")
	}
	for name, v := range c.Venues {
		if strings.TrimSpace(v.Connector) == "" {
			return errors.Errorf("venue %s 缺少 connector 类型", name)
		}
	}
	for _, s := range c.Strategies {
		if !s.Enabled {
			continue
		}
		if strings.TrimSpace(s.Strategy) == "" {
			return errors.Errorf("策略 %s 缺少 strategy 类型", s.Name)
		}
		venue := s.Venue()
		if venue == "" {
			return errors.Errorf("策略 %s 缺少 params.venue", s.Name)
		}
		if _, ok := c.Venues[venue]; !ok {
			return errors.Errorf("策略 %s 引用了未配置的 venue %s", s.Name, venue)
		}
	}
	return nil
}

// ResolveSecrets 解析 secret:// 引用的凭证字段
// 未配置 secretstore 时，存在 secret:// 引用视为配置错误
func (c *Config) ResolveSecrets() error {
	needsStore := false
	for _, v := range c.Venues {
		if strings.HasPrefix(v.APIKey, secretPrefix) || strings.HasPrefix(v.APISecret, secretPrefix) {
			needsStore = true
			break
		}
	}
	if !needsStore {
		return nil
	}
	if strings.TrimSpace(c.Secrets.Path) == "" {
		return errors.New("配置使用了 secret:// 凭证但未配置 secrets.path")
	}

	key, err := secretstore.ParseKey(c.Secrets.EncryptionKey)
	if err != nil {
		return errors.Wrap(err, "解析 secrets.encryptionKey")
	}
	store, err := secretstore.Open(secretstore.OpenOptions{
		Path:          c.Secrets.Path,
		EncryptionKey: key,
		ReadOnly:      true,
	})
	if err != nil {
		return errors.Wrap(err, "打开凭证库")
	}
	defer store.Close()

	for name, v := range c.Venues {
		if v.APIKey, err = resolveSecret(store, v.APIKey); err != nil {
			return errors.Wrapf(err, "venue %s apiKey", name)
		}
		if v.APISecret, err = resolveSecret(store, v.APISecret); err != nil {
			return errors.Wrapf(err, "venue %s apiSecret", name)
		}
		c.Venues[name] = v
	}
	return nil
}

func resolveSecret(store *secretstore.Store, val string) (string, error) {
	if !strings.HasPrefix(val, secretPrefix) {
		return val, nil
	}
	key := strings.TrimPrefix(val, secretPrefix)
	out, found, err := store.GetString(key)
	if err != nil {
		return "", err
	}
	if !found {
		return "", errors.Errorf("凭证库中不存在 key %q", key)
	}
	return out, nil
}
