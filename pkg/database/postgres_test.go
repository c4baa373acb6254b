package database

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPostgresConfig_DSN_EscapesCredentials(t *testing.T) {
	cfg := PostgresConfig{
		Host: "db", Port: 5432, User: "celm", Password: "p@ss/word", DBName: "onboarding", SSLMode: "disable",
	}
	assert.Equal(t, "postgres://celm:p%40ss%2Fword@db:5432/onboarding?sslmode=disable", cfg.DSN())
}

func TestBackoff_GrowsWithJitter(t *testing.T) {
	for attempt, base := range []time.Duration{time.Second, 2 * time.Second, 4 * time.Second} {
		d := backoff(attempt)
		assert.GreaterOrEqual(t, d, base*3/4)
		assert.LessOrEqual(t, d, base*5/4)
	}
}
