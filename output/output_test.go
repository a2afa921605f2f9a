package output

import (
	"encoding/json"
	"errors"
	"image/png"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/airbusgeo/godal"
	"github.com/forest-guardian/landsat-lst/internal/landsat"
	"github.com/forest-guardian/landsat-lst/internal/raster"
	"github.com/forest-guardian/landsat-lst/internal/render"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	godal.RegisterAll()
	os.Exit(m.Run())
}

func lstImage(t *testing.T) *raster.Image {
	t.Helper()
	img := raster.NewImage("scene", raster.Grid{
		Width: 2, Height: 2, GeoTransform: [6]float64{12, 0.01, 0, 42, 0, -0.01}, CRS: "EPSG:4326",
	})
	b, err := raster.NewBandFromData("LST", 2, 2, []float64{25.5, math.NaN(), 30, 35.25})
	require.NoError(t, err)
	require.NoError(t, img.AddBand(b))
	return img
}

func TestWriteStageDump(t *testing.T) {
	img := lstImage(t)
	band, err := img.Band("LST")
	require.NoError(t, err)
	dir := t.TempDir()

	path, err := WriteStageDump(dir, "LST", img.Grid, band)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "lst_info.csv"), path)

	rows, err := ReadStageDump(path)
	require.NoError(t, err)
	require.Len(t, rows, 3, "masked pixel is skipped")
	assert.Equal(t, PixelValue{X: 0, Y: 0, Longitude: 12.005, Latitude: 41.995, Value: 25.5}, roundRow(rows[0]))
	assert.Equal(t, 1, rows[2].X)
	assert.Equal(t, 1, rows[2].Y)
	assert.Equal(t, 35.25, rows[2].Value)

	summary, err := os.ReadFile(filepath.Join(dir, "lst_info.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(summary), "valid pixels: 3")
	assert.Contains(t, string(summary), "masked pixels: 1")
	assert.Contains(t, string(summary), "max: 35.25")
}

func roundRow(r PixelValue) PixelValue {
	r.Longitude = math.Round(r.Longitude*1e6) / 1e6
	r.Latitude = math.Round(r.Latitude*1e6) / 1e6
	return r
}

func TestWriteStageDumpAllMasked(t *testing.T) {
	b, err := raster.NewBandFromData("PV", 1, 1, []float64{math.NaN()})
	require.NoError(t, err)
	dir := t.TempDir()
	path, err := WriteStageDump(dir, "pv", raster.Grid{Width: 1, Height: 1, CRS: "EPSG:4326"}, b)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "x,y,longitude,latitude,value", strings.TrimSpace(string(data)))
}

var errDiskFull = errors.New("disk full")

// flushFailure writes through to a real file but fails to close it.
type flushFailure struct{ *os.File }

func (f flushFailure) Close() error {
	f.File.Close()
	return errDiskFull
}

func failOnClose(t *testing.T) {
	t.Helper()
	previous := createFile
	createFile = func(path string) (io.WriteCloser, error) {
		f, err := os.Create(path)
		if err != nil {
			return nil, err
		}
		return flushFailure{f}, nil
	}
	t.Cleanup(func() { createFile = previous })
}

func TestWritersReportCloseErrors(t *testing.T) {
	failOnClose(t)
	img := lstImage(t)
	band, err := img.Band("LST")
	require.NoError(t, err)

	_, err = WriteStageDump(t.TempDir(), "LST", img.Grid, band)
	assert.ErrorIs(t, err, errDiskFull)

	err = WriteReport(filepath.Join(t.TempDir(), "report.json"), &Report{RunID: "run"})
	assert.ErrorIs(t, err, errDiskFull)
}

func TestWriteGeoTIFF(t *testing.T) {
	img := lstImage(t)
	path := filepath.Join(t.TempDir(), "lst.tif")
	require.NoError(t, WriteGeoTIFF(path, img, "LST"))

	ds, err := godal.Open(path, godal.RasterOnly())
	require.NoError(t, err)
	defer ds.Close()

	st := ds.Structure()
	assert.Equal(t, 2, st.SizeX)
	assert.Equal(t, 2, st.SizeY)
	assert.Equal(t, 1, st.NBands)
	gt, err := ds.GeoTransform()
	require.NoError(t, err)
	assert.Equal(t, img.Grid.GeoTransform, gt)

	band := ds.Bands()[0]
	nd, ok := band.NoData()
	require.True(t, ok)
	assert.Equal(t, NoData, nd)
	values := make([]float64, 4)
	require.NoError(t, band.Read(0, 0, values, 2, 2))
	assert.Equal(t, []float64{25.5, NoData, 30, 35.25}, values)

	assert.ErrorIs(t, WriteGeoTIFF(path, img, "BT"), raster.ErrBandNotFound)
}

func TestWriteReport(t *testing.T) {
	cloud := 3.2
	report := &Report{
		RunID:      "run-1",
		StartedAt:  time.Date(2024, 9, 1, 10, 0, 0, 0, time.UTC),
		SceneID:    "LANDSAT/LC09/C02/T1_TOA/LC09_190031_20240811",
		Scene:      landsat.SceneInfo{CodeSatellite: "LANDSAT", TypeSatellite: "LC09", WRSPath: 190, WRSRow: 31},
		CloudCover: &cloud,
		Stages: []StageSummary{
			{Stage: "lst", Band: "LST", Stats: raster.Stats{Min: 20, Max: 40, Mean: 30, Count: 3}},
			{Stage: "pv", Band: "PV", Stats: raster.Stats{Min: math.NaN(), Max: math.NaN(), Mean: math.NaN()}},
		},
		Artifacts: map[string]string{"lst_map": "landsat_LST.html"},
	}
	path := filepath.Join(t.TempDir(), "run", "report.json")
	require.NoError(t, WriteReport(path, report))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "run-1", decoded["run_id"])
	assert.Equal(t, 3.2, decoded["cloud_cover"])
	scene := decoded["scene"].(map[string]interface{})
	assert.Equal(t, "LC09", scene["type_satellite"])
	stages := decoded["stages"].([]interface{})
	require.Len(t, stages, 2)
	assert.Nil(t, stages[1].(map[string]interface{})["stats"].(map[string]interface{})["min"])
}

func TestWritePreview(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lst.png")
	params := render.Params{Bands: []string{"LST"}, Min: 20, Max: 40, Palette: []string{"blue", "yellow", "red"}}
	require.NoError(t, WritePreview(path, lstImage(t), params, "LST", 64))

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()
	decoded, err := png.Decode(file)
	require.NoError(t, err)
	assert.Greater(t, decoded.Bounds().Dy(), 2, "legend is drawn below the image")
}
