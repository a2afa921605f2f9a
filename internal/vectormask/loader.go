package vectormask

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/airbusgeo/godal"
	"github.com/forest-guardian/landsat-lst/internal/geo"
	"github.com/paulmach/orb/geojson"
	"github.com/sirupsen/logrus"
)

var (
	ErrNoFileFound       = errors.New("no vector mask file found")
	ErrUnsupportedFormat = errors.New("unsupported vector mask format")
)

var supportedExtensions = map[string]bool{
	".geojson": true,
	".json":    true,
	".shp":     true,
	".gpkg":    true,
}

// files that travel with a shapefile and are never a mask on their own
var sidecarExtensions = map[string]bool{
	".dbf": true,
	".shx": true,
	".prj": true,
	".cpg": true,
	".sbn": true,
	".sbx": true,
	".qix": true,
	".qmd": true,
	".xml": true,
}

// FindMaskFile returns the first candidate of dir in lexical order together
// with the candidates that were ignored.
func FindMaskFile(dir string) (string, []string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil, fmt.Errorf("%w: directory %s does not exist", ErrNoFileFound, dir)
		}
		return "", nil, fmt.Errorf("error reading vector mask folder: %w", err)
	}

	var candidates []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		if sidecarExtensions[strings.ToLower(filepath.Ext(name))] {
			continue
		}
		candidates = append(candidates, name)
	}
	if len(candidates) == 0 {
		return "", nil, fmt.Errorf("%w in %s", ErrNoFileFound, dir)
	}
	sort.Strings(candidates)

	chosen := candidates[0]
	if !supportedExtensions[strings.ToLower(filepath.Ext(chosen))] {
		return "", nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, chosen)
	}
	return filepath.Join(dir, chosen), candidates[1:], nil
}

// Load reads the mask file found in dir and reprojects it to targetCRS.
func Load(dir, targetCRS string) (*ROI, error) {
	path, ignored, err := FindMaskFile(dir)
	if err != nil {
		return nil, err
	}
	if len(ignored) > 0 {
		logrus.WithFields(logrus.Fields{"file": filepath.Base(path), "ignored": ignored}).Warn("more than one vector mask found, using the first one")
	}
	return LoadFile(path, targetCRS)
}

func LoadFile(path, targetCRS string) (*ROI, error) {
	if !supportedExtensions[strings.ToLower(filepath.Ext(path))] {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Base(path))
	}
	ds, err := godal.Open(path, godal.VectorOnly(), godal.ErrLogger(func(ec godal.ErrorCategory, code int, msg string) error {
		if ec == godal.CE_Warning {
			return nil
		}
		return fmt.Errorf("gdal error %d: %s", code, msg)
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to open vector mask %s: %w", path, err)
	}
	defer ds.Close()

	dst, err := geo.SpatialRef(targetCRS)
	if err != nil {
		return nil, err
	}
	defer dst.Close()

	var features []Feature
	skipped := 0
	for _, layer := range ds.Layers() {
		layer.ResetReading()
		for {
			feat := layer.NextFeature()
			if feat == nil {
				break
			}
			f, ok, err := readFeature(feat, dst)
			feat.Close()
			if err != nil {
				return nil, fmt.Errorf("failed to read feature of %s: %w", path, err)
			}
			if !ok {
				skipped++
				continue
			}
			features = append(features, f)
		}
	}
	if skipped > 0 {
		logrus.WithFields(logrus.Fields{"file": filepath.Base(path), "skipped": skipped}).Warn("ignoring non polygonal features")
	}
	return NewROI(path, targetCRS, features)
}

func readFeature(feat *godal.Feature, dst *godal.SpatialRef) (Feature, bool, error) {
	geom := feat.Geometry()
	if geom == nil || geom.Empty() {
		return Feature{}, false, nil
	}
	wkb, err := geom.WKB()
	if err != nil {
		return Feature{}, false, fmt.Errorf("failed to export geometry to WKB: %w", err)
	}
	g, err := godal.NewGeometryFromWKB(wkb, geom.SpatialRef())
	if err != nil {
		return Feature{}, false, fmt.Errorf("failed to copy geometry: %w", err)
	}
	defer g.Close()
	if err := g.Reproject(dst); err != nil {
		return Feature{}, false, fmt.Errorf("failed to reproject geometry: %w", err)
	}
	js, err := g.GeoJSON()
	if err != nil {
		return Feature{}, false, fmt.Errorf("failed to export geometry to GeoJSON: %w", err)
	}
	parsed, err := geojson.UnmarshalGeometry([]byte(js))
	if err != nil {
		return Feature{}, false, fmt.Errorf("failed to parse GeoJSON: %w", err)
	}

	properties := map[string]string{}
	for name, field := range feat.Fields() {
		properties[name] = field.String()
	}
	f, ok := NewFeature(parsed.Coordinates, properties)
	return f, ok, nil
}
