package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := load(viper.New(), t.TempDir())
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.ServerPort)
	require.Equal(t, 168*time.Hour, cfg.Auth.TokenTTL)
	require.Equal(t, 10, cfg.Auth.BcryptCost)
	require.True(t, cfg.Auth.AllowSignup)
	require.Equal(t, "info", cfg.Log.Level)
	require.Equal(t, 5*time.Second, cfg.ShutdownTimeout)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	yaml := []byte("SERVER_PORT: \":9090\"\nAUTH:\n  ISSUER: school.test\n  TOKEN_TTL: 1h\nLOG:\n  FORMAT: console\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o600))
	t.Setenv("MCSH_AUTH_JWT_SIGNING_KEY", "from-env")
	t.Setenv("MCSH_DATABASE_URL", "postgres://env/db")

	cfg, err := load(viper.New(), dir)
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.ServerPort)
	require.Equal(t, "school.test", cfg.Auth.Issuer)
	require.Equal(t, time.Hour, cfg.Auth.TokenTTL)
	require.Equal(t, "console", cfg.Log.Format)
	require.Equal(t, "from-env", cfg.Auth.JWTSigningKey)
	require.Equal(t, "postgres://env/db", cfg.DatabaseURL)
}

func TestValidate(t *testing.T) {
	base := Config{
		Auth: AuthConfig{JWTSigningKey: "k", TokenTTL: time.Hour},
		Log:  LogConfig{Level: "info", Format: "json"},
	}
	require.NoError(t, base.Validate())

	noKey := base
	noKey.Auth.JWTSigningKey = ""
	require.Error(t, noKey.Validate())

	badTTL := base
	badTTL.Auth.TokenTTL = 0
	require.Error(t, badTTL.Validate())

	badLevel := base
	badLevel.Log.Level = "loud"
	require.Error(t, badLevel.Validate())

	badFormat := base
	badFormat.Log.Format = "xml"
	require.Error(t, badFormat.Validate())
}
