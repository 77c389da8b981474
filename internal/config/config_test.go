package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "sqlite://./data/test.db")
	t.Setenv("OPENAI_MODEL_CHAT", "llama-3.3-70b-versatile")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 3, cfg.TopK)
	assert.Equal(t, 60*time.Second, cfg.ModelTimeout)
	assert.Equal(t, "llama-3.3-70b-versatile", cfg.SummaryModel)

	driver, dsn, err := cfg.Database()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", driver)
	assert.Equal(t, "./data/test.db", dsn)
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	_, err := Load()
	assert.Error(t, err)
}

func TestDatabaseScheme(t *testing.T) {
	tests := []struct {
		url    string
		driver string
		ok     bool
	}{
		{"postgres://u:p@localhost/med", "postgres", true},
		{"postgresql://localhost/med", "postgres", true},
		{"sqlite://chat_history.db", "sqlite", true},
		{"memory://", "memory", true},
		{"mysql://localhost/med", "", false},
	}
	for _, tt := range tests {
		c := &Config{DatabaseURL: tt.url}
		driver, _, err := c.Database()
		if !tt.ok {
			assert.Error(t, err, tt.url)
			continue
		}
		require.NoError(t, err, tt.url)
		assert.Equal(t, tt.driver, driver)
	}
}
