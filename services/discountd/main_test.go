package discountd

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"cpswap/config"
	"cpswap/crypto"
)

func writeConfig(t *testing.T, dir, admin string) string {
	t.Helper()
	path := filepath.Join(dir, "discountd.toml")
	body := fmt.Sprintf(`
Environment = "test"
ListenAddress = "127.0.0.1:0"
DataDir = %q
StorageBackend = "bolt"
AdminAddress = %q
AuthorityMode = "strict"
SignatureMaxAge = "2m"

[Audit]
Driver = "sqlite"
DSN = %q
`, filepath.Join(dir, "state.db"), admin, filepath.Join(dir, "audit.sqlite"))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestBuildServesDiscounts(t *testing.T) {
	dir := t.TempDir()
	admin, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	cfg, err := config.Load(writeConfig(t, dir, admin.PubKey().Address().String()))
	require.NoError(t, err)

	daemon, err := Build(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, daemon.Close()) })

	user := [20]byte{0x77}
	_, err = daemon.Engine.CreateUserDiscount(context.Background(), user, user)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/discounts/"+crypto.FormatAccount(user), nil)
	daemon.Server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	history, err := daemon.Journal.History(context.Background(), user, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
}

func TestBuildRejectsPermissiveProduction(t *testing.T) {
	cfg := &config.Config{
		Environment:        config.EnvironmentProduction,
		AuthorityMode:      "permissive",
		FeeRateDenominator: 1_000_000,
	}
	_, err := Build(cfg, nil)
	require.Error(t, err)
}

func TestLogFile(t *testing.T) {
	require.Nil(t, logFile(config.LoggingConfig{}))
	got := logFile(config.LoggingConfig{File: "/var/log/discountd.log", MaxSizeMB: 10})
	require.NotNil(t, got)
	require.Equal(t, 10, got.MaxSizeMB)
}
