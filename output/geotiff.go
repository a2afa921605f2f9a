package output

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/airbusgeo/godal"
	"github.com/forest-guardian/landsat-lst/internal/geo"
	"github.com/forest-guardian/landsat-lst/internal/raster"
)

// NoData replaces masked pixels in exported rasters.
const NoData = -9999.0

// WriteGeoTIFF exports the named bands of img as a Float64 GeoTIFF, one
// raster band per image band.
func WriteGeoTIFF(path string, img *raster.Image, bands ...string) error {
	if len(bands) == 0 {
		return fmt.Errorf("no band to export")
	}
	selected, err := img.Select(bands...)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return fmt.Errorf("failed to create output folder: %w", err)
	}

	grid := img.Grid
	ds, err := godal.Create(godal.GTiff, path, len(bands), godal.Float64, grid.Width, grid.Height,
		godal.CreationOption("COMPRESS=DEFLATE"))
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := writeDataset(ds, selected, bands); err != nil {
		ds.Close()
		return err
	}
	return ds.Close()
}

func writeDataset(ds *godal.Dataset, img *raster.Image, bands []string) error {
	if err := ds.SetGeoTransform(img.Grid.GeoTransform); err != nil {
		return fmt.Errorf("failed to set geotransform: %w", err)
	}
	sr, err := geo.SpatialRef(img.Grid.CRS)
	if err != nil {
		return err
	}
	defer sr.Close()
	if err := ds.SetSpatialRef(sr); err != nil {
		return fmt.Errorf("failed to set spatial reference: %w", err)
	}

	for i, gb := range ds.Bands() {
		b, err := img.Band(bands[i])
		if err != nil {
			return err
		}
		values := make([]float64, len(b.Data))
		for j, v := range b.Data {
			if math.IsNaN(v) {
				v = NoData
			}
			values[j] = v
		}
		if err := gb.SetNoData(NoData); err != nil {
			return fmt.Errorf("failed to set nodata on %s: %w", b.Name, err)
		}
		if err := gb.Write(0, 0, values, b.Width, b.Height); err != nil {
			return fmt.Errorf("failed to write band %s: %w", b.Name, err)
		}
	}
	return nil
}
