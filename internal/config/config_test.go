package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setEnvs(t *testing.T, envs map[string]string) {
	t.Helper()
	for k, v := range envs {
		t.Setenv(k, v)
	}
}

func productionEnv() map[string]string {
	return map[string]string{
		"ENVIRONMENT":    "production",
		"JWT_SECRET":     strings.Repeat("j", 40),
		"TOKEN_HASH_KEY": strings.Repeat("h", 40),
	}
}

func TestLoad_Defaults(t *testing.T) {
	setEnvs(t, map[string]string{"ENVIRONMENT": "development"})

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, StorePostgres, cfg.Store)
	assert.Equal(t, SessionStoreRedis, cfg.SessionStore)
	assert.Equal(t, NotifierKafka, cfg.Notifier)
	assert.Equal(t, 2*time.Hour, cfg.SessionTTL)
	assert.Equal(t, 15*time.Minute, cfg.PasswordResetTTL)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, defaultJWTSecret, cfg.JWTSecret)
	assert.Equal(t, 2.0, cfg.RateLimit().RPS)
	assert.Equal(t, 10, cfg.RateLimit().Burst)
	assert.Empty(t, cfg.RateLimit().TrustedProxies)
}

func TestLoad_Production_AcceptsExplicitSecrets(t *testing.T) {
	setEnvs(t, productionEnv())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "production", cfg.Environment)
}

func TestLoad_Production_RejectsDefaults(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		wantErr string
	}{
		{"default jwt secret", "JWT_SECRET", defaultJWTSecret, "JWT_SECRET must be explicitly set"},
		{"short jwt secret", "JWT_SECRET", "short", "JWT_SECRET must be at least 32"},
		{"default hash key", "TOKEN_HASH_KEY", defaultTokenHashKey, "TOKEN_HASH_KEY must be explicitly set"},
		{"memory store", "STORE", "memory", "memory backends"},
		{"memory sessions", "SESSION_STORE", "memory", "memory backends"},
		{"log notifier", "NOTIFIER", "log", "log notifier"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			envs := productionEnv()
			envs[tt.key] = tt.value
			setEnvs(t, envs)

			cfg, err := Load()
			assert.Nil(t, cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_RejectsUnknownBackend(t *testing.T) {
	setEnvs(t, map[string]string{"ENVIRONMENT": "development", "STORE": "mongo"})

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STORE")
}

func TestLoad_RejectsInvalidPort(t *testing.T) {
	setEnvs(t, map[string]string{"ENVIRONMENT": "development", "HTTP_PORT": "70000"})

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_RejectsInvertedTokenExpiry(t *testing.T) {
	setEnvs(t, map[string]string{
		"ENVIRONMENT":              "development",
		"JWT_ACCESS_TOKEN_EXPIRY":  "2h",
		"JWT_REFRESH_TOKEN_EXPIRY": "1h",
	})

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refresh token expiry")
}

func TestConfig_Postgres(t *testing.T) {
	setEnvs(t, map[string]string{"ENVIRONMENT": "development", "POSTGRES_HOST": "db", "POSTGRES_DB": "onboarding"})

	cfg, err := Load()
	require.NoError(t, err)
	pg := cfg.Postgres()
	assert.Equal(t, "db", pg.Host)
	assert.Equal(t, "onboarding", pg.DBName)
	assert.Equal(t, int32(20), pg.MaxConns)
}

func TestLoad_TrustedProxies(t *testing.T) {
	setEnvs(t, map[string]string{"ENVIRONMENT": "development", "TRUSTED_PROXIES": "10.0.0.0/8, 192.0.2.7"})

	cfg, err := Load()
	require.NoError(t, err)
	proxies := cfg.RateLimit().TrustedProxies
	require.Len(t, proxies, 2)
	assert.Equal(t, "10.0.0.0/8", proxies[0].String())
	assert.Equal(t, "192.0.2.7/32", proxies[1].String())
}

func TestLoad_RejectsInvalidTrustedProxy(t *testing.T) {
	setEnvs(t, map[string]string{"ENVIRONMENT": "development", "TRUSTED_PROXIES": "10.0.0.0/33"})

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TRUSTED_PROXIES")
}
