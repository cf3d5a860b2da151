package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Server      Server       `mapstructure:"server"`
	Database    Database     `mapstructure:"database"`
	Logger      Logger       `mapstructure:"logger"`
	Simulation  Simulation   `mapstructure:"simulation"`
	Trading     Trading      `mapstructure:"trading"`
	Client      Client       `mapstructure:"client"`
	Instruments []Instrument `mapstructure:"instruments"`
}

// Server holds the configuration for the HTTP API.
type Server struct {
	Port           int           `mapstructure:"port"`
	RateLimit      float64       `mapstructure:"rate_limit"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
}

// Database holds the configuration for the database.
type Database struct {
	DSN string `mapstructure:"dsn"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Simulation holds the price random-walk parameters.
type Simulation struct {
	TickInterval     time.Duration `mapstructure:"tick_interval"`
	EquityVolatility float64       `mapstructure:"equity_volatility"`
	CryptoVolatility float64       `mapstructure:"crypto_volatility"`
	MeanReversion    float64       `mapstructure:"mean_reversion"`
	FloorRatio       float64       `mapstructure:"floor_ratio"`
	CeilingRatio     float64       `mapstructure:"ceiling_ratio"`
	// Seed fixes the random source; 0 seeds from the clock.
	Seed uint64 `mapstructure:"seed"`
}

// Trading holds order limits and history paging.
type Trading struct {
	MaxQuantity       float64 `mapstructure:"max_quantity"`
	MaxInitialCapital float64 `mapstructure:"max_initial_capital"`
	DefaultPageSize   int     `mapstructure:"default_page_size"`
	MaxPageSize       int     `mapstructure:"max_page_size"`
}

// Client holds settings for the simctl REST client.
type Client struct {
	BaseURL        string  `mapstructure:"base_url"`
	UserID         uint64  `mapstructure:"user_id"`
	RateLimit      float64 `mapstructure:"rate_limit"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// Instrument is a catalog entry seeded into the database at startup.
type Instrument struct {
	Symbol    string  `mapstructure:"symbol"`
	Name      string  `mapstructure:"name"`
	Kind      string  `mapstructure:"kind"`
	Sector    string  `mapstructure:"sector"`
	BasePrice float64 `mapstructure:"base_price"`
}

// LoadConfig reads configuration from file or environment variables.
// A missing config file is not an error; defaults and the environment apply.
func LoadConfig(path string) (config Config, err error) {
	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yml")

	v.SetEnvPrefix("SIM")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err = v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return
		}
		err = nil
	}

	err = v.Unmarshal(&config)
	return
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.rate_limit", 10) // orders per second per user
	v.SetDefault("server.rate_limit_burst", 20)
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)

	v.SetDefault("database.dsn", "file:simulator.db?_busy_timeout=5000")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")

	v.SetDefault("simulation.tick_interval", 5*time.Second)
	v.SetDefault("simulation.equity_volatility", 0.003)
	v.SetDefault("simulation.crypto_volatility", 0.008)
	v.SetDefault("simulation.mean_reversion", 0.001)
	v.SetDefault("simulation.floor_ratio", 0.01)
	v.SetDefault("simulation.ceiling_ratio", 5.0)

	v.SetDefault("trading.max_quantity", 1_000_000)
	v.SetDefault("trading.max_initial_capital", 100_000_000)
	v.SetDefault("trading.default_page_size", 50)
	v.SetDefault("trading.max_page_size", 200)

	v.SetDefault("client.base_url", "http://localhost:8080")
	v.SetDefault("client.rate_limit", 5)
	v.SetDefault("client.rate_limit_burst", 5)
}
