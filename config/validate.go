package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"cpswap/crypto"
	"cpswap/native/discount"
	"cpswap/storage"
)

// EnvironmentProduction is the only environment in which permissive
// authority is refused outright.
const EnvironmentProduction = "production"

var (
	// MaxSignatureAge bounds how far in the future a signed update may expire.
	MaxSignatureAge = 24 * time.Hour

	errPermissiveInProduction = errors.New("config: permissive authority mode is forbidden in production")
)

// Validate enforces the invariants the service relies on at startup.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config: nil config")
	}
	if c.FeeRateDenominator == 0 {
		return errors.New("config: FeeRateDenominator must be positive")
	}
	if strings.TrimSpace(c.ListenAddress) == "" {
		return errors.New("config: ListenAddress required")
	}
	switch strings.ToLower(strings.TrimSpace(c.StorageBackend)) {
	case storage.BackendLevelDB, storage.BackendBolt, storage.BackendMemory:
	default:
		return fmt.Errorf("config: unknown StorageBackend %q", c.StorageBackend)
	}
	mode := strings.ToLower(strings.TrimSpace(c.AuthorityMode))
	switch mode {
	case discount.AuthorityStrict:
		if _, err := c.AdminAccount(); err != nil {
			return err
		}
	case discount.AuthorityPermissive:
		if c.IsProduction() {
			return errPermissiveInProduction
		}
	default:
		return fmt.Errorf("config: unknown AuthorityMode %q", c.AuthorityMode)
	}
	if c.SignatureMaxAge.Duration <= 0 || c.SignatureMaxAge.Duration > MaxSignatureAge {
		return fmt.Errorf("config: SignatureMaxAge must be within (0, %s]", MaxSignatureAge)
	}
	switch strings.ToLower(strings.TrimSpace(c.Audit.Driver)) {
	case AuditDriverSQLite, AuditDriverPostgres:
	default:
		return fmt.Errorf("config: unknown audit driver %q", c.Audit.Driver)
	}
	if strings.TrimSpace(c.Audit.DSN) == "" {
		return errors.New("config: audit DSN required")
	}
	if c.Auth.Enabled && c.AuthSecret() == "" {
		return errors.New("config: auth enabled without an HMAC secret")
	}
	if c.RateLimit.RequestsPerMinute < 0 || c.RateLimit.Burst < 0 {
		return errors.New("config: rate limit values must not be negative")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return errors.New("config: telemetry SampleRatio must be within [0, 1]")
	}
	return nil
}

// IsProduction reports whether the configured environment is production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), EnvironmentProduction)
}

// AdminAccount decodes AdminAddress into the raw account identity.
func (c *Config) AdminAccount() ([20]byte, error) {
	raw := strings.TrimSpace(c.AdminAddress)
	if raw == "" {
		return [20]byte{}, errors.New("config: AdminAddress required in strict authority mode")
	}
	account, err := crypto.ParseAccount(raw)
	if err != nil {
		return [20]byte{}, fmt.Errorf("config: invalid AdminAddress: %w", err)
	}
	if account == ([20]byte{}) {
		return [20]byte{}, errors.New("config: AdminAddress must not be the zero account")
	}
	return account, nil
}
