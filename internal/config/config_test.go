package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"product-catalog-backend/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CATALOG_DATABASE_URL", "postgres://localhost/catalog")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "development", cfg.Server.Environment)
	assert.Equal(t, 60*time.Second, cfg.Server.PipelineTimeout)
	assert.Equal(t, int64(10<<20), cfg.MaxUploadBytes())
	assert.Equal(t, 20, cfg.Server.MaxFiles)
	assert.Equal(t, 4, cfg.Server.Concurrency)
	assert.Equal(t, "local", cfg.Storage.Backend)
	assert.Equal(t, "gemini-2.5-flash", cfg.Gemini.Model)
	assert.Equal(t, 30*time.Second, cfg.Gemini.Timeout)
	assert.Equal(t, 5, cfg.Search.MaxResults)
	assert.Equal(t, "product.created", cfg.Events.RoutingKey)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://db/catalog")
	t.Setenv("PORT", "9090")
	t.Setenv("CATALOG_SERVER_ENVIRONMENT", "production")
	t.Setenv("CATALOG_SERVER_ALLOWED_ORIGINS", "https://a.example.com,https://*.example.org")
	t.Setenv("CATALOG_SERVER_PIPELINE_TIMEOUT", "90s")
	t.Setenv("CATALOG_STORAGE_BACKEND", "supabase")
	t.Setenv("CATALOG_STORAGE_SUPABASE_URL", "https://x.supabase.co")
	t.Setenv("CATALOG_STORAGE_SUPABASE_KEY", "service-key")
	t.Setenv("CATALOG_GEMINI_API_KEY", "gemini-key")
	t.Setenv("CATALOG_SEARCH_MAX_RESULTS", "8")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres://db/catalog", cfg.Database.URL)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, []string{"https://a.example.com", "https://*.example.org"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 90*time.Second, cfg.Server.PipelineTimeout)
	assert.Equal(t, "supabase", cfg.Storage.Backend)
	assert.Equal(t, "gemini-key", cfg.Gemini.APIKey)
	assert.Equal(t, 8, cfg.Search.MaxResults)
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{
			name: "missing database url",
			env:  map[string]string{},
		},
		{
			name: "supabase without key",
			env: map[string]string{
				"CATALOG_DATABASE_URL":         "postgres://db",
				"CATALOG_STORAGE_BACKEND":      "supabase",
				"CATALOG_STORAGE_SUPABASE_URL": "https://x.supabase.co",
			},
		},
		{
			name: "unknown backend",
			env: map[string]string{
				"CATALOG_DATABASE_URL":    "postgres://db",
				"CATALOG_STORAGE_BACKEND": "s3",
			},
		},
		{
			name: "zero upload size",
			env: map[string]string{
				"CATALOG_DATABASE_URL":         "postgres://db",
				"CATALOG_SERVER_MAX_UPLOAD_MB": "0",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("CATALOG_DATABASE_URL", "")
			t.Setenv("DATABASE_URL", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := config.Load()
			assert.Error(t, err)
		})
	}
}
