package output

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/forest-guardian/landsat-lst/internal/geo"
	"github.com/forest-guardian/landsat-lst/internal/raster"
	"github.com/gocarina/gocsv"
)

// createFile opens an artifact for writing.
var createFile = func(path string) (io.WriteCloser, error) {
	return os.Create(path)
}

// PixelValue is one valid pixel of a stage band.
type PixelValue struct {
	X         int     `csv:"x"`
	Y         int     `csv:"y"`
	Longitude float64 `csv:"longitude"`
	Latitude  float64 `csv:"latitude"`
	Value     float64 `csv:"value"`
}

// PixelValues lists the valid pixels of band with the lon/lat of their
// centers. Masked pixels are skipped.
func PixelValues(grid raster.Grid, band *raster.Band) ([]PixelValue, error) {
	var rows []PixelValue
	var xs, ys []float64
	for y := 0; y < band.Height; y++ {
		for x := 0; x < band.Width; x++ {
			if !band.Valid(x, y) {
				continue
			}
			cx, cy := grid.PixelCenter(x, y)
			xs = append(xs, cx)
			ys = append(ys, cy)
			rows = append(rows, PixelValue{X: x, Y: y, Value: band.At(x, y)})
		}
	}
	if err := geo.Transform(grid.CRS, geo.WGS84, xs, ys); err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].Longitude = xs[i]
		rows[i].Latitude = ys[i]
	}
	return rows, nil
}

// WriteStageDump writes <stage>_info.csv with every valid pixel and
// <stage>_info.txt with the band statistics. It returns the csv path.
func WriteStageDump(dir, stage string, grid raster.Grid, band *raster.Band) (string, error) {
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return "", fmt.Errorf("failed to create output folder: %w", err)
	}
	rows, err := PixelValues(grid, band)
	if err != nil {
		return "", err
	}

	base := filepath.Join(dir, strings.ToLower(stage)+"_info")
	file, err := createFile(base + ".csv")
	if err != nil {
		return "", fmt.Errorf("failed to create %s dump: %w", stage, err)
	}
	if len(rows) == 0 {
		// gocsv needs at least one element to emit a header
		_, err = io.WriteString(file, "x,y,longitude,latitude,value\n")
	} else {
		err = gocsv.Marshal(&rows, file)
	}
	if err != nil {
		file.Close()
		return "", fmt.Errorf("failed to write %s dump: %w", stage, err)
	}
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("failed to close %s dump: %w", stage, err)
	}

	stats := raster.Reduce(band)
	summary := fmt.Sprintf("band: %s\nwidth: %d\nheight: %d\nvalid pixels: %d\nmasked pixels: %d\nmin: %v\nmax: %v\nmean: %v\n",
		band.Name, band.Width, band.Height, stats.Count, len(band.Data)-stats.Count, stats.Min, stats.Max, stats.Mean)
	if err := os.WriteFile(base+".txt", []byte(summary), 0644); err != nil {
		return "", fmt.Errorf("failed to write %s summary: %w", stage, err)
	}
	return base + ".csv", nil
}

// ReadStageDump loads a csv written by WriteStageDump.
func ReadStageDump(path string) ([]PixelValue, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	var rows []PixelValue
	if err := gocsv.UnmarshalFile(file, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return rows, nil
}
