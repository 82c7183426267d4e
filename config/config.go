package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"cpswap/crypto"
	"cpswap/native/discount"
	"cpswap/native/fees"
	"cpswap/storage"
)

// Audit drivers accepted by AuditConfig.Driver.
const (
	AuditDriverSQLite   = "sqlite"
	AuditDriverPostgres = "postgres"
)

// Config captures runtime configuration for discountd.
type Config struct {
	Environment        string          `toml:"Environment" yaml:"environment"`
	ListenAddress      string          `toml:"ListenAddress" yaml:"listen"`
	DataDir            string          `toml:"DataDir" yaml:"data_dir"`
	StorageBackend     string          `toml:"StorageBackend" yaml:"storage_backend"`
	AdminAddress       string          `toml:"AdminAddress" yaml:"admin_address"`
	AdminKeystorePath  string          `toml:"AdminKeystorePath,omitempty" yaml:"admin_keystore,omitempty"`
	AuthorityMode      string          `toml:"AuthorityMode" yaml:"authority_mode"`
	FeeRateDenominator uint64          `toml:"FeeRateDenominator" yaml:"fee_rate_denominator"`
	SignatureMaxAge    Duration        `toml:"SignatureMaxAge" yaml:"signature_max_age"`
	Audit              AuditConfig     `toml:"Audit" yaml:"audit"`
	Auth               AuthConfig      `toml:"Auth" yaml:"auth"`
	RateLimit          RateLimitConfig `toml:"RateLimit" yaml:"rate_limit"`
	Logging            LoggingConfig   `toml:"Logging" yaml:"logging"`
	Telemetry          TelemetryConfig `toml:"Telemetry" yaml:"telemetry"`
}

type loadOptions struct {
	keystore []crypto.KeystoreOption
}

// Option customises Load.
type Option func(*loadOptions)

// WithKeystoreOptions forwards options to the admin keystore generated for a
// fresh configuration.
func WithKeystoreOptions(opts ...crypto.KeystoreOption) Option {
	return func(o *loadOptions) {
		o.keystore = append(o.keystore, opts...)
	}
}

// Load loads the configuration from the given path. Files ending in .yaml or
// .yml are decoded as YAML, everything else as TOML. A missing file is
// replaced by a development default bound to a freshly generated admin key.
func Load(path string, opts ...Option) (*Config, error) {
	options := loadOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path, options)
	} else if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if isYAML(path) {
		if err := decodeYAML(path, cfg); err != nil {
			return nil, err
		}
	} else {
		meta, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("config file %s has unknown key %q", path, undecoded[0].String())
		}
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}

func decodeYAML(path string, cfg *Config) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer file.Close()
	dec := yaml.NewDecoder(file)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.Environment) == "" {
		c.Environment = "development"
	}
	if c.ListenAddress == "" {
		c.ListenAddress = ":7081"
	}
	if c.DataDir == "" {
		c.DataDir = "./discount-data"
	}
	if c.StorageBackend == "" {
		c.StorageBackend = storage.BackendLevelDB
	}
	if c.AuthorityMode == "" {
		c.AuthorityMode = discount.AuthorityStrict
	}
	if c.FeeRateDenominator == 0 {
		c.FeeRateDenominator = fees.FeeRateDenominator
	}
	if c.SignatureMaxAge.Duration == 0 {
		c.SignatureMaxAge.Duration = 5 * time.Minute
	}
	if c.Audit.Driver == "" {
		c.Audit.Driver = AuditDriverSQLite
	}
	if c.Audit.DSN == "" && strings.EqualFold(c.Audit.Driver, AuditDriverSQLite) {
		c.Audit.DSN = filepath.Join(c.DataDir, "audit.sqlite")
	}
	if c.Auth.ClockSkew.Duration == 0 {
		c.Auth.ClockSkew.Duration = 2 * time.Minute
	}
	if c.RateLimit.RequestsPerMinute == 0 {
		c.RateLimit.RequestsPerMinute = 120
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 20
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.File != "" {
		if c.Logging.MaxSizeMB == 0 {
			c.Logging.MaxSizeMB = 100
		}
		if c.Logging.MaxBackups == 0 {
			c.Logging.MaxBackups = 5
		}
		if c.Logging.MaxAgeDays == 0 {
			c.Logging.MaxAgeDays = 28
		}
	}
}

// Schedule builds the fee schedule from FeeRateDenominator.
func (c *Config) Schedule() (fees.Schedule, error) {
	return fees.NewSchedule(c.FeeRateDenominator)
}

// Authority builds the configured authority strategy.
func (c *Config) Authority() (discount.Authority, error) {
	mode := strings.ToLower(strings.TrimSpace(c.AuthorityMode))
	if mode == discount.AuthorityPermissive {
		if c.IsProduction() {
			return nil, errPermissiveInProduction
		}
		return discount.NewAuthority(mode, [20]byte{})
	}
	admin, err := c.AdminAccount()
	if err != nil {
		return nil, err
	}
	return discount.NewAuthority(mode, admin)
}

// AuthSecret resolves the HMAC secret, preferring the environment variable
// named by HMACSecretEnv.
func (c *Config) AuthSecret() string {
	if env := strings.TrimSpace(c.Auth.HMACSecretEnv); env != "" {
		if value := strings.TrimSpace(os.Getenv(env)); value != "" {
			return value
		}
	}
	return strings.TrimSpace(c.Auth.HMACSecret)
}

// createDefault creates and saves a default configuration file whose admin
// is a newly generated key stored next to it.
func createDefault(path string, options loadOptions) (*Config, error) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}

	keystorePath := defaultKeystorePath(path)
	if err := crypto.SaveToKeystore(keystorePath, key, "", options.keystore...); err != nil {
		return nil, err
	}

	cfg := &Config{
		Environment:       "development",
		AdminAddress:      key.PubKey().Address().String(),
		AdminKeystorePath: keystorePath,
		AuthorityMode:     discount.AuthorityStrict,
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if isYAML(path) {
		enc := yaml.NewEncoder(f)
		defer enc.Close()
		return enc.Encode(cfg)
	}
	return toml.NewEncoder(f).Encode(cfg)
}

func defaultKeystorePath(configPath string) string {
	dir := filepath.Dir(configPath)
	if dir == "." || dir == "" {
		dir = ""
	}
	return filepath.Join(dir, "admin.keystore")
}
