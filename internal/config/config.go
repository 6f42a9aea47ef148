package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"

	"mdshare/internal/auth"
	"mdshare/internal/domain"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"Server"`
	Database    DatabaseConfig    `mapstructure:"Database"`
	Redis       RedisConfig       `mapstructure:"Redis"`
	ObjectStore ObjectStoreConfig `mapstructure:"ObjectStore"`
	Quota       QuotaConfig       `mapstructure:"Quota"`
	Auth        auth.Config       `mapstructure:"Auth"`
	Sweeper     SweeperConfig     `mapstructure:"Sweeper"`
}

type ServerConfig struct {
	Port     string `mapstructure:"Port"`
	GRPCPort string `mapstructure:"GRPCPort"`
	Env      string `mapstructure:"Env"`
}

type DatabaseConfig struct {
	// Driver is "postgres" or "memory".
	Driver   string `mapstructure:"Driver"`
	Host     string `mapstructure:"Host"`
	Port     string `mapstructure:"Port"`
	User     string `mapstructure:"User"`
	Password string `mapstructure:"Password"`
	Name     string `mapstructure:"Name"`
	SSLMode  string `mapstructure:"SSLMode"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"Addr"`
	Password string `mapstructure:"Password"`
	DB       int    `mapstructure:"DB"`
}

type ObjectStoreConfig struct {
	// Kind is "cos" or "s3". In s3 mode the secret key is handed to
	// uploaders so they can sign SigV4 requests.
	Kind          string        `mapstructure:"Kind"`
	Bucket        string        `mapstructure:"Bucket"`
	Region        string        `mapstructure:"Region"`
	Domain        string        `mapstructure:"Domain"`
	Endpoint      string        `mapstructure:"Endpoint"`
	UsePathStyle  bool          `mapstructure:"UsePathStyle"`
	SecretID      string        `mapstructure:"SecretID"`
	SecretKey     string        `mapstructure:"SecretKey"`
	CredentialTTL time.Duration `mapstructure:"CredentialTTL"`
	PathRoot      string        `mapstructure:"PathRoot"`
}

type QuotaConfig struct {
	// Backend is "postgres", "redis" or "memory".
	Backend           string `mapstructure:"Backend"`
	DefaultLimitBytes int64  `mapstructure:"DefaultLimitBytes"`
}

type SweeperConfig struct {
	Enabled  bool          `mapstructure:"Enabled"`
	Interval time.Duration `mapstructure:"Interval"`
	Grace    time.Duration `mapstructure:"Grace"`
}

// Nested keys and the flat environment names that override them. The same
// flat names may appear in the env file.
var envBindings = [][2]string{
	{"Server.Port", "HTTP_PORT"},
	{"Server.GRPCPort", "GRPC_PORT"},
	{"Server.Env", "APP_ENV"},
	{"Database.Driver", "DATABASE_DRIVER"},
	{"Database.Host", "DATABASE_HOST"},
	{"Database.Port", "DATABASE_PORT"},
	{"Database.User", "DATABASE_USER"},
	{"Database.Password", "DATABASE_PASSWORD"},
	{"Database.Name", "DATABASE_NAME"},
	{"Database.SSLMode", "DATABASE_SSLMODE"},
	{"Redis.Addr", "REDIS_ADDR"},
	{"Redis.Password", "REDIS_PASSWORD"},
	{"Redis.DB", "REDIS_DB"},
	{"ObjectStore.Kind", "OBJECT_STORE_KIND"},
	{"ObjectStore.Bucket", "COS_BUCKET_NAME"},
	{"ObjectStore.Region", "COS_REGION"},
	{"ObjectStore.Domain", "COS_DOMAIN"},
	{"ObjectStore.Endpoint", "COS_ENDPOINT"},
	{"ObjectStore.UsePathStyle", "COS_PATH_STYLE"},
	{"ObjectStore.SecretID", "COS_SECRETID"},
	{"ObjectStore.SecretKey", "COS_SECRETKEY"},
	{"ObjectStore.CredentialTTL", "COS_CREDENTIAL_TTL"},
	{"ObjectStore.PathRoot", "COS_PATH_ROOT"},
	{"Quota.Backend", "QUOTA_BACKEND"},
	{"Quota.DefaultLimitBytes", "QUOTA_DEFAULT_LIMIT_BYTES"},
	{"Auth.JWTSecret", "JWT_SECRET"},
	{"Auth.Issuer", "JWT_ISSUER"},
	{"Auth.AdminRole", "JWT_ADMIN_ROLE"},
	{"Sweeper.Enabled", "SWEEPER_ENABLED"},
	{"Sweeper.Interval", "SWEEPER_INTERVAL"},
	{"Sweeper.Grace", "SWEEPER_GRACE"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("Server.Port", "2525")
	v.SetDefault("Server.GRPCPort", "50051")
	v.SetDefault("Server.Env", "development")
	v.SetDefault("Database.Driver", "postgres")
	v.SetDefault("Database.SSLMode", "disable")
	v.SetDefault("Redis.Addr", "localhost:6379")
	v.SetDefault("ObjectStore.Kind", "cos")
	v.SetDefault("ObjectStore.Region", "ap-beijing")
	v.SetDefault("ObjectStore.CredentialTTL", 30*time.Minute)
	v.SetDefault("ObjectStore.PathRoot", "mdshare")
	v.SetDefault("Quota.Backend", "postgres")
	v.SetDefault("Quota.DefaultLimitBytes", domain.DefaultQuotaLimit)
	v.SetDefault("Auth.AdminRole", "admin")
	v.SetDefault("Sweeper.Interval", time.Hour)
	v.SetDefault("Sweeper.Grace", 24*time.Hour)
}

// NewConfig reads path (an env-style file) and applies environment
// overrides. A missing file is not an error: the environment alone may be
// enough.
func NewConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetConfigType("env")

	for _, b := range envBindings {
		if err := v.BindEnv(b[0], b[1]); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", b[1], err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("Warning: using only environment variables: %v\n", err)
	}

	// Flat keys from the file apply unless the real environment has them.
	for _, b := range envBindings {
		if _, ok := os.LookupEnv(b[1]); ok {
			continue
		}
		if v.InConfig(b[1]) {
			v.Set(b[0], v.Get(b[1]))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres":
		if c.Database.Host == "" ||
			c.Database.Port == "" ||
			c.Database.User == "" ||
			c.Database.Password == "" ||
			c.Database.Name == "" {
			return fmt.Errorf("database configuration is incomplete: host=%s, port=%s, user=%s, name=%s",
				c.Database.Host, c.Database.Port, c.Database.User, c.Database.Name)
		}
	case "memory":
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}

	switch c.Quota.Backend {
	case "postgres":
		if c.Database.Driver != "postgres" {
			return fmt.Errorf("quota backend postgres requires the postgres database driver")
		}
	case "redis", "memory":
	default:
		return fmt.Errorf("unknown quota backend %q", c.Quota.Backend)
	}
	if c.Quota.DefaultLimitBytes <= 0 {
		return fmt.Errorf("default quota limit must be positive")
	}

	switch c.ObjectStore.Kind {
	case "cos", "s3":
	default:
		return fmt.Errorf("unknown object store kind %q", c.ObjectStore.Kind)
	}

	// Missing object store secrets are not fatal at startup: credential
	// issuance reports them per request.
	return c.Auth.Validate()
}

func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		c.Password,
		c.Name,
		c.SSLMode,
	)
}

func (c *DatabaseConfig) URL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.Name,
		c.SSLMode,
	)
}

// S3Endpoint is the S3-compatible API endpoint for admin operations.
func (c *ObjectStoreConfig) S3Endpoint() string {
	if c.Endpoint != "" {
		return c.Endpoint
	}
	if c.Kind == "cos" {
		return fmt.Sprintf("https://cos.%s.myqcloud.com", c.Region)
	}
	return ""
}
