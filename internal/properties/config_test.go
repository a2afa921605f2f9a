package properties

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "LANDSAT/LC09/C02/T1_TOA", cfg.Collection)
	assert.Equal(t, 30.0, cfg.ExportScale)
	assert.Equal(t, 13, cfg.MapZoomStart)
	assert.Equal(t, []string{"B10", "B4", "B5", "QA_PIXEL", "B2", "B3"}, cfg.Bands.All())
	assert.Equal(t, []string{"blue", "yellow", "red"}, cfg.Presets["lst"].Palette)
}

func TestLoadConfigOverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lst.yaml")
	content := `
cloud_cover_threshold: 20
start_date: "2023-06-01"
end_date: "2023-07-01"
constants:
  lse_coefficient: 0.004
  lse_constant: 0.986
  wavelength: 0.00115
  rho: 1.4388
presets:
  thermal:
    bands: [BT]
    min: 10
    max: 50
    palette: [black, white]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 20.0, cfg.CloudCoverThreshold)
	assert.Equal(t, "B10", cfg.Bands.Thermal)
	assert.Contains(t, cfg.Presets, "thermal")
	assert.Contains(t, cfg.Presets, "natural")

	start, end, err := cfg.DateRange()
	require.NoError(t, err)
	assert.Equal(t, "2023-06-01", start.Format(DateLayout))
	assert.Equal(t, "2023-07-01", end.Format(DateLayout))
}

func TestLoadConfigRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lst.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cloud_cover: 3\n"), 0644))

	_, err := LoadConfig(path)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"non epsg crs", func(c *Config) { c.TargetCRS = "WGS84" }},
		{"zero scale", func(c *Config) { c.ExportScale = 0 }},
		{"inverted dates", func(c *Config) { c.StartDate, c.EndDate = c.EndDate, c.StartDate }},
		{"missing thermal band", func(c *Config) { c.Bands.Thermal = "" }},
		{"missing lst preset", func(c *Config) { delete(c.Presets, "lst") }},
		{"two band preset", func(c *Config) { c.Presets["bad"] = Preset{Bands: []string{"B1", "B2"}, Max: 1} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Presets = map[string]Preset{}
			for k, v := range DefaultConfig().Presets {
				cfg.Presets[k] = v
			}
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestWithDates(t *testing.T) {
	cfg, err := DefaultConfig().WithDates("2024-01-01", "")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01", cfg.StartDate)
	assert.Equal(t, DefaultConfig().EndDate, cfg.EndDate)
}

func TestEPSGCode(t *testing.T) {
	code, err := EPSGCode("epsg:32633")
	require.NoError(t, err)
	assert.Equal(t, 32633, code)

	_, err = EPSGCode("EPSG:abc")
	assert.Error(t, err)

	assert.True(t, IsGeographic("EPSG:4326"))
	assert.False(t, IsGeographic("EPSG:32633"))
}
