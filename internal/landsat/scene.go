package landsat

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/forest-guardian/landsat-lst/internal/imagery"
)

// SceneInfo is the traceability record of the selected scene, decoded from an
// id such as LANDSAT/LC09/C02/T1_TOA/LC09_190031_20240811.
type SceneInfo struct {
	CodeSatellite   string    `json:"code_satellite"`
	TypeSatellite   string    `json:"type_satellite"`
	TypeCollection  string    `json:"type_collection"`
	TierQuality     string    `json:"tier_quality"`
	TypeImage       string    `json:"type_image"`
	ProductID       string    `json:"product_id"`
	WRSPath         int       `json:"wrs_path"`
	WRSRow          int       `json:"wrs_row"`
	AcquisitionTime time.Time `json:"date_time_acquisition"`
}

func (s SceneInfo) String() string {
	tier := s.TierQuality
	if s.TypeImage != "" {
		tier += " " + s.TypeImage
	}
	return fmt.Sprintf("%s %s %s tier %s path %03d row %03d acquired %s",
		s.CodeSatellite, s.TypeSatellite, s.TypeCollection, tier,
		s.WRSPath, s.WRSRow, s.AcquisitionTime.UTC().Format(time.DateTime))
}

// Mission returns a display name such as "Landsat 9" for LC09.
func (s SceneInfo) Mission() string {
	digits := strings.TrimLeft(s.TypeSatellite, "ABCDEFGHIJKLMNOPQRSTUVWXYZ")
	n, err := strconv.Atoi(digits)
	if err != nil {
		return s.CodeSatellite
	}
	return fmt.Sprintf("Landsat %d", n)
}

func ParseSceneID(id string, acquired time.Time) (SceneInfo, error) {
	parts := strings.Split(id, "/")
	if len(parts) != 5 {
		return SceneInfo{}, fmt.Errorf("invalid scene id %q: expected 5 path elements, got %d", id, len(parts))
	}
	// raw collections such as T1 carry no image type
	tier, kind, _ := strings.Cut(parts[3], "_")
	if tier == "" {
		return SceneInfo{}, fmt.Errorf("invalid scene id %q: collection %q has no tier", id, parts[3])
	}
	info := SceneInfo{
		CodeSatellite:   parts[0],
		TypeSatellite:   parts[1],
		TypeCollection:  parts[2],
		TierQuality:     tier,
		TypeImage:       kind,
		ProductID:       parts[4],
		AcquisitionTime: acquired.UTC(),
	}

	product := strings.Split(parts[4], "_")
	if len(product) != 3 || len(product[1]) != 6 {
		return SceneInfo{}, fmt.Errorf("invalid product id %q", parts[4])
	}
	info.WRSPath, _ = strconv.Atoi(product[1][:3])
	info.WRSRow, _ = strconv.Atoi(product[1][3:])
	if acquired.IsZero() {
		date, err := time.Parse("20060102", product[2])
		if err != nil {
			return SceneInfo{}, fmt.Errorf("invalid acquisition date in %q: %w", parts[4], err)
		}
		info.AcquisitionTime = date
	}
	return info, nil
}

// Calibration holds the per-scene constants of the thermal band.
type Calibration struct {
	RadianceMult float64 `json:"radiance_mult"`
	RadianceAdd  float64 `json:"radiance_add"`
	K1           float64 `json:"k1"`
	K2           float64 `json:"k2"`
	SunElevation float64 `json:"sun_elevation"`
}

// CalibrationFor reads the radiance rescaling and thermal constants of band
// (for example B10) from the scene metadata.
func CalibrationFor(scene imagery.Scene, band string) (Calibration, error) {
	number := strings.TrimPrefix(strings.ToUpper(band), "B")
	if _, err := strconv.Atoi(number); err != nil {
		return Calibration{}, fmt.Errorf("thermal band %q is not a numbered band", band)
	}

	var cal Calibration
	fields := []struct {
		property string
		target   *float64
	}{
		{"RADIANCE_MULT_BAND_" + number, &cal.RadianceMult},
		{"RADIANCE_ADD_BAND_" + number, &cal.RadianceAdd},
		{"K1_CONSTANT_BAND_" + number, &cal.K1},
		{"K2_CONSTANT_BAND_" + number, &cal.K2},
		{"SUN_ELEVATION", &cal.SunElevation},
	}
	for _, f := range fields {
		v, ok := scene.Property(f.property)
		if !ok {
			return Calibration{}, fmt.Errorf("scene %s has no %s property", scene.ID, f.property)
		}
		*f.target = v
	}
	if cal.K1 <= 0 || cal.K2 <= 0 {
		return Calibration{}, fmt.Errorf("scene %s has non-positive thermal constants K1=%v K2=%v", scene.ID, cal.K1, cal.K2)
	}
	return cal, nil
}
