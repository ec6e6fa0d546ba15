package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	CORS         CORSConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Shipping     ShippingConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if _, err := cfg.Shipping.FallbackPrice(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"CACTILIA_APP_ENV" required:"true"`
	Port         string `envconfig:"CACTILIA_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"CACTILIA_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"CACTILIA_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"CACTILIA_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

type ServiceConfig struct {
	Kind string `envconfig:"CACTILIA_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"CACTILIA_DB_DSN"`
	Driver string `envconfig:"CACTILIA_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"CACTILIA_DB_HOST"`
	LegacyPort     int    `envconfig:"CACTILIA_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"CACTILIA_DB_USER"`
	LegacyPassword string `envconfig:"CACTILIA_DB_PASSWORD"`
	LegacyName     string `envconfig:"CACTILIA_DB_NAME"`
	LegacySSLMode  string `envconfig:"CACTILIA_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"CACTILIA_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CACTILIA_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CACTILIA_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CACTILIA_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"CACTILIA_REDIS_URL" required:"true"`
	Address      string        `envconfig:"CACTILIA_REDIS_ADDR"`
	Password     string        `envconfig:"CACTILIA_REDIS_PASSWORD"`
	DB           int           `envconfig:"CACTILIA_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CACTILIA_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CACTILIA_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CACTILIA_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CACTILIA_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CACTILIA_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"CACTILIA_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"CACTILIA_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"CACTILIA_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"CACTILIA_GOOGLE_APPLICATION_CREDENTIALS"`
}

// PubSubConfig names the topics the API publishes to. An empty data-quality topic
// disables publishing; issues are still logged.
type PubSubConfig struct {
	DataQualityTopic string `envconfig:"CACTILIA_PUBSUB_DATA_QUALITY_TOPIC"`
}

// Enabled reports whether Pub/Sub publishing is configured.
func (p PubSubConfig) Enabled() bool {
	return strings.TrimSpace(p.DataQualityTopic) != ""
}

type ShippingConfig struct {
	FallbackBasePrice string        `envconfig:"CACTILIA_SHIPPING_FALLBACK_BASE_PRICE" default:"150"`
	FetchConcurrency  int           `envconfig:"CACTILIA_SHIPPING_FETCH_CONCURRENCY" default:"8"`
	MaxBundleVariants int           `envconfig:"CACTILIA_SHIPPING_MAX_BUNDLE_VARIANTS" default:"25"`
	PostalIndexLookup bool          `envconfig:"CACTILIA_SHIPPING_POSTAL_INDEX_LOOKUP" default:"false"`
	SelectionTTL      time.Duration `envconfig:"CACTILIA_SHIPPING_SELECTION_TTL" default:"30m"`
	Currency          string        `envconfig:"CACTILIA_SHIPPING_CURRENCY" default:"MXN"`
	QuoteRateLimit    int           `envconfig:"CACTILIA_SHIPPING_QUOTE_RATE_LIMIT" default:"120"`
	QuoteRateWindow   time.Duration `envconfig:"CACTILIA_SHIPPING_QUOTE_RATE_WINDOW" default:"1m"`
}

// FallbackPrice parses the fallback base price charged for misconfigured rules.
func (s ShippingConfig) FallbackPrice() (decimal.Decimal, error) {
	value, err := decimal.NewFromString(strings.TrimSpace(s.FallbackBasePrice))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s %q: %w", EnvShippingFallbackPrice, s.FallbackBasePrice, err)
	}
	if value.IsNegative() {
		return decimal.Zero, fmt.Errorf("%s must not be negative", EnvShippingFallbackPrice)
	}
	return value, nil
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if strings.EqualFold(db.Driver, DBDriverSQLite) {
		return fmt.Errorf("%s is required for the sqlite driver", EnvDBDSN)
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
