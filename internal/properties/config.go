package properties

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

var ErrInvalidConfig = errors.New("invalid configuration")

const DateLayout = "2006-01-02"

// Constants holds the physical constants of the emissivity and LST formulas.
type Constants struct {
	LSECoefficient float64 `yaml:"lse_coefficient"`
	LSEConstant    float64 `yaml:"lse_constant"`
	Wavelength     float64 `yaml:"wavelength"`
	Rho            float64 `yaml:"rho"`
}

type Bands struct {
	Thermal string   `yaml:"thermal"`
	Red     string   `yaml:"red"`
	NIR     string   `yaml:"nir"`
	QA      string   `yaml:"qa"`
	Extra   []string `yaml:"extra"`
}

// All returns the distinct band ids to be fetched for a scene.
func (b Bands) All() []string {
	seen := map[string]bool{}
	var out []string
	for _, name := range append([]string{b.Thermal, b.Red, b.NIR, b.QA}, b.Extra...) {
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

type Preset struct {
	Bands   []string `yaml:"bands"`
	Min     float64  `yaml:"min"`
	Max     float64  `yaml:"max"`
	Gamma   float64  `yaml:"gamma"`
	Palette []string `yaml:"palette"`
}

type Expression struct {
	Name       string `yaml:"name"`
	Expression string `yaml:"expression"`
}

type Config struct {
	Collection          string            `yaml:"collection"`
	CloudCoverThreshold float64           `yaml:"cloud_cover_threshold"`
	ExportScale         float64           `yaml:"export_scale"`
	TargetCRS           string            `yaml:"target_crs"`
	MaxPixels           float64           `yaml:"max_pixels"`
	StartDate           string            `yaml:"start_date"`
	EndDate             string            `yaml:"end_date"`
	Bands               Bands             `yaml:"bands"`
	Constants           Constants         `yaml:"constants"`
	TOASolarCorrection  bool              `yaml:"toa_solar_correction"`
	MapZoomStart        int               `yaml:"map_zoom_start"`
	MaxOverlaySize      int               `yaml:"max_overlay_size"`
	Presets             map[string]Preset `yaml:"presets"`
	Expressions         []Expression      `yaml:"expressions"`
	VectorMaskDir       string            `yaml:"vector_mask_dir"`
	OutputDir           string            `yaml:"output_dir"`
	CacheDir            string            `yaml:"cache_dir"`
	Workers             int               `yaml:"workers"`
	DownloadConcurrency int               `yaml:"download_concurrency"`
	Notify              bool              `yaml:"notify"`
}

func DefaultConfig() Config {
	return Config{
		Collection:          "LANDSAT/LC09/C02/T1_TOA",
		CloudCoverThreshold: 10,
		ExportScale:         30,
		TargetCRS:           "EPSG:4326",
		MaxPixels:           1e9,
		StartDate:           "2024-08-01",
		EndDate:             "2024-08-31",
		Bands: Bands{
			Thermal: "B10",
			Red:     "B4",
			NIR:     "B5",
			QA:      "QA_PIXEL",
			Extra:   []string{"B2", "B3"},
		},
		Constants: Constants{
			LSECoefficient: 0.004,
			LSEConstant:    0.986,
			Wavelength:     0.00115,
			Rho:            1.4388,
		},
		MapZoomStart:   13,
		MaxOverlaySize: 2048,
		Presets: map[string]Preset{
			"natural": {Bands: []string{"B4", "B3", "B2"}, Min: 0, Max: 0.3, Gamma: 1.4},
			"ndvi":    {Bands: []string{"NDVI"}, Min: -1, Max: 1, Palette: []string{"blue", "white", "green"}},
			"lst":     {Bands: []string{"LST"}, Min: 20, Max: 40, Palette: []string{"blue", "yellow", "red"}},
			"toa":     {Bands: []string{"B4", "B3", "B2"}, Min: 0, Max: 0.2},
		},
		VectorMaskDir:       DataPath("vector_mask"),
		OutputDir:           DataPath("output"),
		CacheDir:            DataPath("cache"),
		DownloadConcurrency: 4,
	}
}

// LoadConfig overlays the YAML file at path, when given, on the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, cfg.Validate()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := ParseConfig(data, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func ParseConfig(data []byte, cfg *Config) error {
	presets := cfg.Presets
	cfg.Presets = nil
	if err := yaml.UnmarshalStrict(data, cfg); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	// presets from the file extend the defaults instead of replacing them
	merged := make(map[string]Preset, len(presets)+len(cfg.Presets))
	for name, p := range presets {
		merged[name] = p
	}
	for name, p := range cfg.Presets {
		merged[name] = p
	}
	cfg.Presets = merged
	return nil
}

func (c Config) Validate() error {
	if c.Collection == "" {
		return fmt.Errorf("%w: collection is required", ErrInvalidConfig)
	}
	if _, err := EPSGCode(c.TargetCRS); err != nil {
		return err
	}
	if c.ExportScale <= 0 {
		return fmt.Errorf("%w: export_scale must be positive, got %v", ErrInvalidConfig, c.ExportScale)
	}
	if c.MaxPixels <= 0 {
		return fmt.Errorf("%w: max_pixels must be positive", ErrInvalidConfig)
	}
	start, end, err := c.DateRange()
	if err != nil {
		return err
	}
	if !start.Before(end) {
		return fmt.Errorf("%w: start_date %s must be before end_date %s", ErrInvalidConfig, c.StartDate, c.EndDate)
	}
	if c.Bands.Thermal == "" || c.Bands.Red == "" || c.Bands.NIR == "" || c.Bands.QA == "" {
		return fmt.Errorf("%w: thermal, red, nir and qa bands are required", ErrInvalidConfig)
	}
	if c.Constants.Rho == 0 {
		return fmt.Errorf("%w: rho must not be zero", ErrInvalidConfig)
	}
	for _, name := range []string{"natural", "lst"} {
		if _, ok := c.Presets[name]; !ok {
			return fmt.Errorf("%w: preset %q is required", ErrInvalidConfig, name)
		}
	}
	for name, p := range c.Presets {
		if len(p.Bands) != 1 && len(p.Bands) != 3 {
			return fmt.Errorf("%w: preset %q must reference 1 or 3 bands", ErrInvalidConfig, name)
		}
		if p.Max <= p.Min {
			return fmt.Errorf("%w: preset %q max must be greater than min", ErrInvalidConfig, name)
		}
	}
	for _, e := range c.Expressions {
		if e.Name == "" || e.Expression == "" {
			return fmt.Errorf("%w: expressions need a name and an expression", ErrInvalidConfig)
		}
	}
	return nil
}

// DateRange parses the configured window. The end date is exclusive.
func (c Config) DateRange() (time.Time, time.Time, error) {
	start, err := time.Parse(DateLayout, c.StartDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: start_date: %v", ErrInvalidConfig, err)
	}
	end, err := time.Parse(DateLayout, c.EndDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: end_date: %v", ErrInvalidConfig, err)
	}
	return start, end, nil
}

// WithDates returns a copy of the configuration with the date window replaced.
// Empty values keep the current ones.
func (c Config) WithDates(start, end string) (Config, error) {
	if start != "" {
		c.StartDate = start
	}
	if end != "" {
		c.EndDate = end
	}
	return c, c.Validate()
}

// EPSGCode extracts the numeric code out of an "EPSG:nnnn" string.
func EPSGCode(crs string) (int, error) {
	code, ok := strings.CutPrefix(strings.ToUpper(strings.TrimSpace(crs)), "EPSG:")
	if !ok {
		return 0, fmt.Errorf("%w: crs %q is not an EPSG code", ErrInvalidConfig, crs)
	}
	n, err := strconv.Atoi(code)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: crs %q is not an EPSG code", ErrInvalidConfig, crs)
	}
	return n, nil
}

// IsGeographic reports whether the CRS is expressed in degrees.
func IsGeographic(crs string) bool {
	code, err := EPSGCode(crs)
	if err != nil {
		return false
	}
	switch code {
	case 4326, 4269, 4258, 4617, 4674, 4283:
		return true
	}
	return false
}
