package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshsymonds/advisor/internal/cache"
	"github.com/joshsymonds/advisor/internal/config"
	"github.com/joshsymonds/advisor/internal/models"
	"github.com/joshsymonds/advisor/pkg/logger"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Database.DSN = filepath.Join(dir, "db", "advisor.db")
	cfg.Artifacts.BaseDir = filepath.Join(dir, "artifacts")
	cfg.Cache.Dir = filepath.Join(dir, "cache")
	return cfg
}

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		cacheType string
		wantCache bool
	}{
		{name: "memory cache", cacheType: "memory", wantCache: true},
		{name: "file cache", cacheType: "file", wantCache: true},
		{name: "no cache", cacheType: "none", wantCache: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.Cache.Backend = tt.cacheType

			a, err := New(context.Background(), cfg, logger.NewMockLogger())
			require.NoError(t, err)
			t.Cleanup(func() { _ = a.Close() })

			assert.NotNil(t, a.Service)
			assert.NotNil(t, a.DB)
			assert.NotNil(t, a.Blobs)
			assert.NotNil(t, a.Locker)
			assert.Equal(t, tt.wantCache, a.Cache != nil)

			r, err := a.Service.CreateReport(context.Background(), models.ReportCost, "Quarterly")
			require.NoError(t, err)
			assert.Equal(t, models.StatusPending, r.Status)
		})
	}
}

func TestNewRejectsBadDictionary(t *testing.T) {
	cfg := testConfig(t)
	cfg.Classifier.Dictionary = filepath.Join(t.TempDir(), "missing.yaml")

	a, err := New(context.Background(), cfg, logger.NewMockLogger())
	require.Error(t, err)
	assert.Nil(t, a)
}

func TestBuilderOptions(t *testing.T) {
	rc := config.Default().Report
	rc.TopN = 5
	rc.SecurityWeights = map[string]float64{"Critical": 20, "HIGH": 10}

	opts := BuilderOptions(rc)
	assert.Equal(t, 5, opts.TopN)
	assert.Equal(t, "USD", opts.DefaultCurrency)
	assert.Equal(t, map[string]float64{"critical": 20, "high": 10}, opts.SecurityWeights)
	assert.NotEmpty(t, opts.EffortHours)
}

func TestNewConverter(t *testing.T) {
	tests := []struct {
		name    string
		mode    string
		wantErr bool
	}{
		{name: "auto", mode: "auto"},
		{name: "primary only", mode: "primary"},
		{name: "fallback only", mode: "fallback"},
		{name: "empty means auto", mode: ""},
		{name: "unknown", mode: "laser", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewConverter(config.ConverterConfig{
				Mode:           tt.mode,
				Timeout:        time.Second,
				WkhtmltopdfBin: "wkhtmltopdf",
			}, logger.NewMockLogger())
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, c)
		})
	}
}

func TestOpenCache(t *testing.T) {
	c, err := openCache(config.CacheConfig{Backend: "none"}, nil)
	require.NoError(t, err)
	assert.Nil(t, c)

	c, err = openCache(config.CacheConfig{Backend: "memory"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &cache.MemoryCache{}, c)
}
