// Package settings loads process configuration for the gocred server.
//
// Sources are layered, later ones winning: built-in defaults, a YAML file
// (--config or GOCRED_CONFIG), a .env file, the process environment, and
// finally command-line flags. The .env file is read without touching the
// process environment.
package settings

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	goCred "github.com/MrEthical07/goCred"
	"github.com/MrEthical07/goCred/secret"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Settings is the full server configuration.
type Settings struct {
	HTTP     HTTPSettings     `yaml:"http"`
	Log      LogSettings      `yaml:"log"`
	Database DatabaseSettings `yaml:"database"`
	Redis    RedisSettings    `yaml:"redis"`
	Tokens   TokenSettings    `yaml:"tokens"`
	Security SecuritySettings `yaml:"security"`
	SMTP     SMTPSettings     `yaml:"smtp"`
	Google   GoogleSettings   `yaml:"google"`
	Metrics  MetricsSettings  `yaml:"metrics"`
	Audit    AuditSettings    `yaml:"audit"`
}

type HTTPSettings struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	SecureCookies   bool          `yaml:"secure_cookies"`
}

type LogSettings struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type DatabaseSettings struct {
	URL string `yaml:"url"`
	// PurgeInterval is how often expired revocation rows are deleted.
	PurgeInterval time.Duration `yaml:"purge_interval"`
}

type RedisSettings struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// TokenSettings holds the four signing secrets and lifetimes.
type TokenSettings struct {
	AccessUserSecret   string        `yaml:"access_user_secret"`
	RefreshUserSecret  string        `yaml:"refresh_user_secret"`
	AccessAdminSecret  string        `yaml:"access_admin_secret"`
	RefreshAdminSecret string        `yaml:"refresh_admin_secret"`
	AccessTTL          time.Duration `yaml:"access_ttl"`
	RefreshTTL         time.Duration `yaml:"refresh_ttl"`
	Issuer             string        `yaml:"issuer"`
	Audience           string        `yaml:"audience"`
}

type SecuritySettings struct {
	BcryptCost           int    `yaml:"bcrypt_cost"`
	EncryptionKey        string `yaml:"encryption_key"`
	RequireEmailConfirm  bool   `yaml:"require_email_confirm"`
	AllowFederatedSignUp bool   `yaml:"allow_federated_signup"`
	EnableIPThrottle     bool   `yaml:"enable_ip_throttle"`
}

type SMTPSettings struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	From        string `yaml:"from"`
	ImplicitTLS bool   `yaml:"implicit_tls"`
}

type GoogleSettings struct {
	ClientID string `yaml:"client_id"`
}

type MetricsSettings struct {
	Enabled           bool `yaml:"enabled"`
	LatencyHistograms bool `yaml:"latency_histograms"`
}

type AuditSettings struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns settings usable for local development once secrets are set.
func Default() Settings {
	engine := goCred.DefaultConfig()
	return Settings{
		HTTP: HTTPSettings{
			Addr:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Log:      LogSettings{Level: "info", Format: "json"},
		Database: DatabaseSettings{PurgeInterval: time.Hour},
		Redis:    RedisSettings{Addr: "localhost:6379"},
		Tokens: TokenSettings{
			AccessTTL:  engine.JWT.AccessTTL,
			RefreshTTL: engine.JWT.RefreshTTL,
		},
		Security: SecuritySettings{
			BcryptCost:           engine.Password.BcryptCost,
			RequireEmailConfirm:  engine.Security.RequireEmailConfirm,
			AllowFederatedSignUp: engine.Security.AllowFederatedSignUp,
		},
		SMTP:    SMTPSettings{Port: 465, ImplicitTLS: true},
		Metrics: MetricsSettings{Enabled: true},
	}
}

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// Load builds Settings from args (without the program name) and the
// environment seen through lookup.
func Load(args []string, lookup LookupFunc) (Settings, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	s := Default()

	flagSet := pflag.NewFlagSet("gocred-server", pflag.ContinueOnError)
	fl := bindFlags(flagSet, s)
	if err := flagSet.Parse(args); err != nil {
		return Settings{}, err
	}

	configPath := fl.configPath
	if !flagSet.Changed("config") {
		configPath, _ = lookup("GOCRED_CONFIG")
	}
	if configPath != "" {
		if err := loadYAML(configPath, &s); err != nil {
			return Settings{}, err
		}
	}

	dotenv, err := readDotenv(fl.envFile)
	if err != nil {
		return Settings{}, err
	}
	env := func(key string) (string, bool) {
		if v, ok := lookup(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}
	if err := applyEnv(&s, env); err != nil {
		return Settings{}, err
	}

	fl.apply(flagSet, &s)

	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func loadYAML(path string, s *Settings) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("settings: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, s); err != nil {
		return fmt.Errorf("settings: parse %s: %w", path, err)
	}
	return nil
}

func readDotenv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	values, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("settings: read %s: %w", path, err)
	}
	return values, nil
}

// applyEnv reads the variable names the deployed service already uses.
func applyEnv(s *Settings, env LookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := env(key); ok && v != "" {
			*dst = v
		}
	}
	str("PORT", &s.HTTP.Addr)
	if !strings.Contains(s.HTTP.Addr, ":") {
		s.HTTP.Addr = ":" + s.HTTP.Addr
	}
	str("LOG_LEVEL", &s.Log.Level)
	str("LOG_FORMAT", &s.Log.Format)
	str("DATABASE_URL", &s.Database.URL)
	str("REDIS_ADDR", &s.Redis.Addr)
	str("REDIS_PASSWORD", &s.Redis.Password)
	str("ACCESS_USER_TOKEN_SIGNATURE", &s.Tokens.AccessUserSecret)
	str("REFRESH_USER_TOKEN_SIGNATURE", &s.Tokens.RefreshUserSecret)
	str("ACCESS_ADMIN_TOKEN_SIGNATURE", &s.Tokens.AccessAdminSecret)
	str("REFRESH_ADMIN_TOKEN_SIGNATURE", &s.Tokens.RefreshAdminSecret)
	str("ENCRYPTION_SECRET_KEY", &s.Security.EncryptionKey)
	str("WEB_CLIENT_ID", &s.Google.ClientID)
	str("SMTP_HOST", &s.SMTP.Host)
	str("SMTP_USERNAME", &s.SMTP.Username)
	str("SMTP_PASSWORD", &s.SMTP.Password)
	str("SMTP_FROM", &s.SMTP.From)
	if v, ok := env("NODE_ENV"); ok && v == "production" {
		s.HTTP.SecureCookies = true
	}

	durations := map[string]*time.Duration{
		"ACCESS_TOKEN_EXPIRES_IN":  &s.Tokens.AccessTTL,
		"REFRESH_TOKEN_EXPIRES_IN": &s.Tokens.RefreshTTL,
	}
	for key, dst := range durations {
		if v, ok := env(key); ok && v != "" {
			d, err := ParseDuration(v)
			if err != nil {
				return fmt.Errorf("settings: %s: %w", key, err)
			}
			*dst = d
		}
	}

	ints := map[string]*int{
		"SALT_ROUNDS": &s.Security.BcryptCost,
		"REDIS_DB":    &s.Redis.DB,
		"SMTP_PORT":   &s.SMTP.Port,
	}
	for key, dst := range ints {
		if v, ok := env(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("settings: %s: %w", key, err)
			}
			*dst = n
		}
	}
	return nil
}

// ParseDuration accepts a bare number of seconds or a Go duration string.
func ParseDuration(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(v)
}

type flagValues struct {
	configPath string
	envFile    string
	addr       string
	logLevel   string
	logFormat  string
	dbURL      string
	redisAddr  string
	metrics    bool
	audit      bool
}

func bindFlags(flagSet *pflag.FlagSet, s Settings) *flagValues {
	fl := &flagValues{}
	flagSet.StringVar(&fl.configPath, "config", "", "path to a YAML settings file")
	flagSet.StringVar(&fl.envFile, "env-file", ".env", "path to a .env file; missing files are ignored")
	flagSet.StringVar(&fl.addr, "addr", s.HTTP.Addr, "HTTP listen address")
	flagSet.StringVar(&fl.logLevel, "log-level", s.Log.Level, "log level (debug, info, warn, error)")
	flagSet.StringVar(&fl.logFormat, "log-format", s.Log.Format, "log format (json, text)")
	flagSet.StringVar(&fl.dbURL, "database-url", "", "PostgreSQL connection string")
	flagSet.StringVar(&fl.redisAddr, "redis-addr", s.Redis.Addr, "Redis address")
	flagSet.BoolVar(&fl.metrics, "metrics", s.Metrics.Enabled, "enable in-process metrics")
	flagSet.BoolVar(&fl.audit, "audit", s.Audit.Enabled, "emit audit events to the log")
	return fl
}

// apply writes only the flags set on the command line.
func (fl *flagValues) apply(flagSet *pflag.FlagSet, s *Settings) {
	if flagSet.Changed("addr") {
		s.HTTP.Addr = fl.addr
	}
	if flagSet.Changed("log-level") {
		s.Log.Level = fl.logLevel
	}
	if flagSet.Changed("log-format") {
		s.Log.Format = fl.logFormat
	}
	if flagSet.Changed("database-url") {
		s.Database.URL = fl.dbURL
	}
	if flagSet.Changed("redis-addr") {
		s.Redis.Addr = fl.redisAddr
	}
	if flagSet.Changed("metrics") {
		s.Metrics.Enabled = fl.metrics
	}
	if flagSet.Changed("audit") {
		s.Audit.Enabled = fl.audit
	}
}

// Validate checks the settings the server cannot start without.
func (s Settings) Validate() error {
	required := []struct{ name, value string }{
		{"ACCESS_USER_TOKEN_SIGNATURE", s.Tokens.AccessUserSecret},
		{"REFRESH_USER_TOKEN_SIGNATURE", s.Tokens.RefreshUserSecret},
		{"ACCESS_ADMIN_TOKEN_SIGNATURE", s.Tokens.AccessAdminSecret},
		{"REFRESH_ADMIN_TOKEN_SIGNATURE", s.Tokens.RefreshAdminSecret},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("%w: %s", goCred.ErrConfigurationMissing, r.name)
		}
	}
	if s.Database.URL == "" {
		return fmt.Errorf("%w: DATABASE_URL", goCred.ErrConfigurationMissing)
	}
	switch s.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("settings: unknown log format %q", s.Log.Format)
	}
	return nil
}

// Secrets builds the signing secret resolver.
func (s Settings) Secrets() (*secret.Resolver, error) {
	r, err := secret.New(map[secret.Level]secret.Pair{
		secret.LevelBearer: {Access: s.Tokens.AccessUserSecret, Refresh: s.Tokens.RefreshUserSecret},
		secret.LevelSystem: {Access: s.Tokens.AccessAdminSecret, Refresh: s.Tokens.RefreshAdminSecret},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", goCred.ErrConfigurationMissing, err)
	}
	return r, nil
}

// EngineConfig overlays these settings on goCred.DefaultConfig.
func (s Settings) EngineConfig() goCred.Config {
	cfg := goCred.DefaultConfig()
	cfg.JWT.AccessTTL = s.Tokens.AccessTTL
	cfg.JWT.RefreshTTL = s.Tokens.RefreshTTL
	cfg.JWT.Issuer = s.Tokens.Issuer
	cfg.JWT.Audience = s.Tokens.Audience
	cfg.Password.BcryptCost = s.Security.BcryptCost
	cfg.Security.RequireEmailConfirm = s.Security.RequireEmailConfirm
	cfg.Security.AllowFederatedSignUp = s.Security.AllowFederatedSignUp
	cfg.Security.EnableIPThrottle = s.Security.EnableIPThrottle
	cfg.Metrics.Enabled = s.Metrics.Enabled
	cfg.Metrics.EnableLatencyHistograms = s.Metrics.Enabled && s.Metrics.LatencyHistograms
	cfg.Audit.Enabled = s.Audit.Enabled
	return cfg
}
