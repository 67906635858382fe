package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromViper_Defaults(t *testing.T) {
	cfg, err := FromViper(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "0.0.0.0:8080", cfg.ListenAddr())
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "itv.db", cfg.Database.Path)
	assert.Equal(t, time.Second, cfg.Geocoding.Delay)
	assert.Equal(t, 720*time.Hour, cfg.Cache.GeocodeTTL)
	assert.False(t, cfg.StrictProvinces)
	assert.Equal(t, "exact", cfg.DedupeStrategy)
	assert.Zero(t, cfg.Storage.Retention)
	assert.True(t, cfg.IsDevelopment())
}

func TestFromViper_EnvironmentOverrides(t *testing.T) {
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("DB_USER", "itv")
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("DB_PORT", "5433")
	t.Setenv("GEOCODE_DELAY", "250ms")
	t.Setenv("VALIDATION_STRICT_PROVINCES", "true")
	t.Setenv("SOURCE_CAT_PATH", "/data/ITV-CAT.xml")

	cfg, err := FromViper(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "host=localhost port=5433 user=itv password=secret dbname=itv sslmode=disable",
		cfg.Database.GetDatabaseURL())
	assert.Equal(t, 250*time.Millisecond, cfg.Geocoding.Delay)
	assert.True(t, cfg.StrictProvinces)
	assert.Equal(t, "/data/ITV-CAT.xml", cfg.SourcePath("cat"))
	assert.Empty(t, cfg.SourcePath("mur"))
}

func TestFromViper_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{
			name: "postgres without user",
			env:  map[string]string{"DB_DRIVER": "postgres"},
			want: "DB_USER is required",
		},
		{
			name: "postgres without password",
			env:  map[string]string{"DB_DRIVER": "postgres", "DB_USER": "itv"},
			want: "DB_PASSWORD is required",
		},
		{
			name: "unknown driver",
			env:  map[string]string{"DB_DRIVER": "oracle"},
			want: "unsupported DB_DRIVER",
		},
		{
			name: "unknown dedupe strategy",
			env:  map[string]string{"DEDUPE_STRATEGY": "fuzzy"},
			want: "unsupported DEDUPE_STRATEGY",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := FromViper(viper.New())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
