package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Log       Logger    `mapstructure:"logger"`
	DB        Database  `mapstructure:"database"`
	API       API       `mapstructure:"api"`
	Backtest  Backtest  `mapstructure:"backtest"`
	Risk      Risk      `mapstructure:"risk"`
	Binance   Binance   `mapstructure:"binance"`
	Cache     Cache     `mapstructure:"cache"`
	Scheduler Scheduler `mapstructure:"scheduler"`
	Sweep     Sweep     `mapstructure:"sweep"`
}

type Logger struct {
	Level    string `mapstructure:"level"`
	Encoding string `mapstructure:"encoding"`
}

type Database struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"name"`
	SSLMode         string `mapstructure:"ssl_mode"`
	TimeZone        string `mapstructure:"time_zone"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime string `mapstructure:"conn_max_lifetime"`
	LogLevel        string `mapstructure:"log_level"`
}

type API struct {
	Port              int           `mapstructure:"port"`
	RateLimitPerSec   float64       `mapstructure:"rate_limit_per_sec"`
	RateLimitBurst    int           `mapstructure:"rate_limit_burst"`
	RateLimitExpireIn time.Duration `mapstructure:"rate_limit_expire_in"`
}

// Backtest holds the run-level defaults applied when a request does not
// override them.
type Backtest struct {
	InitialCash    float64 `mapstructure:"initial_cash"`
	SlippagePct    float64 `mapstructure:"slippage_pct"`
	CommissionPct  float64 `mapstructure:"commission_pct"`
	MaxVolumeShare float64 `mapstructure:"max_volume_share"`
	RiskFreeRate   float64 `mapstructure:"risk_free_rate"`
}

// Risk holds the default risk policy. Every field can be overridden per
// request.
type Risk struct {
	MaxPortfolioDrawdown   float64 `mapstructure:"max_portfolio_drawdown"`
	MaxPositionSize        float64 `mapstructure:"max_position_size"`
	MinCashRatio           float64 `mapstructure:"min_cash_ratio"`
	MaxCashRatio           float64 `mapstructure:"max_cash_ratio"`
	MaxConcurrentPositions int     `mapstructure:"max_concurrent_positions"`
	MaxPairwiseCorrelation float64 `mapstructure:"max_pairwise_correlation"`
	CorrelationLookback    int     `mapstructure:"correlation_lookback"`
	StopLossPct            float64 `mapstructure:"stop_loss_pct"`
	EnableCircuitBreaker   bool    `mapstructure:"enable_circuit_breaker"`
	VolatilityTarget       float64 `mapstructure:"volatility_target"`
	VolatilityLookback     int     `mapstructure:"volatility_lookback"`
}

type Binance struct {
	BaseURL             string        `mapstructure:"base_url"`
	Timeout             time.Duration `mapstructure:"timeout"`
	MaxRequestPerMinute int           `mapstructure:"max_request_per_minute"`
}

type Cache struct {
	DefaultExpiration time.Duration `mapstructure:"default_expiration"`
	CleanupInterval   time.Duration `mapstructure:"cleanup_interval"`
}

type Scheduler struct {
	CronSpec        string        `mapstructure:"cron_spec"`
	MaxConcurrency  int           `mapstructure:"max_concurrency"`
	TimeoutDuration time.Duration `mapstructure:"timeout_duration"`
}

type Sweep struct {
	MaxConcurrency int `mapstructure:"max_concurrency"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	viper.SetConfigType("yaml")
	viper.SetConfigName("config")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	setDefaults()

	// A missing config file is fine; defaults and env vars cover it.
	_ = viper.ReadInConfig()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.encoding", "json")

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.name", "backtest")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.max_open_conns", 20)
	viper.SetDefault("database.conn_max_lifetime", "30m")
	viper.SetDefault("database.log_level", "Warn")

	viper.SetDefault("api.port", 8080)
	viper.SetDefault("api.rate_limit_per_sec", 10)
	viper.SetDefault("api.rate_limit_burst", 20)
	viper.SetDefault("api.rate_limit_expire_in", 3*time.Minute)

	viper.SetDefault("backtest.initial_cash", 100000)
	viper.SetDefault("backtest.slippage_pct", 0.0005)
	viper.SetDefault("backtest.commission_pct", 0.001)
	viper.SetDefault("backtest.max_volume_share", 0.1)
	viper.SetDefault("backtest.risk_free_rate", 0.02)

	viper.SetDefault("risk.max_portfolio_drawdown", 0.2)
	viper.SetDefault("risk.max_position_size", 0.1)
	viper.SetDefault("risk.min_cash_ratio", 0.05)
	viper.SetDefault("risk.max_cash_ratio", 1.0)
	viper.SetDefault("risk.max_concurrent_positions", 10)
	viper.SetDefault("risk.max_pairwise_correlation", 0.8)
	viper.SetDefault("risk.correlation_lookback", 30)
	viper.SetDefault("risk.stop_loss_pct", 0.05)
	viper.SetDefault("risk.enable_circuit_breaker", true)
	viper.SetDefault("risk.volatility_target", 0.0)
	viper.SetDefault("risk.volatility_lookback", 20)

	viper.SetDefault("binance.base_url", "https://api.binance.com")
	viper.SetDefault("binance.timeout", 10*time.Second)
	viper.SetDefault("binance.max_request_per_minute", 1200)

	viper.SetDefault("cache.default_expiration", 15*time.Minute)
	viper.SetDefault("cache.cleanup_interval", 30*time.Minute)

	viper.SetDefault("scheduler.cron_spec", "0 1 * * *")
	viper.SetDefault("scheduler.max_concurrency", 2)
	viper.SetDefault("scheduler.timeout_duration", 30*time.Minute)

	viper.SetDefault("sweep.max_concurrency", 4)
}
