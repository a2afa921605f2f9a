package earthengine

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sync"

	"github.com/airbusgeo/godal"
	"github.com/forest-guardian/landsat-lst/internal/geo"
	"github.com/forest-guardian/landsat-lst/internal/imagery"
	"github.com/forest-guardian/landsat-lst/internal/properties"
	"github.com/forest-guardian/landsat-lst/internal/raster"
	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ComputeGrid lays a north-up grid over the request region at the requested
// scale. Geographic CRSs get the scale converted to degrees.
func ComputeGrid(req imagery.FetchRequest) (raster.Grid, error) {
	if req.Scale <= 0 {
		return raster.Grid{}, fmt.Errorf("scale must be positive, got %v", req.Scale)
	}
	pixel := req.Scale
	if properties.IsGeographic(req.CRS) {
		pixel = geo.MetersToDegrees(req.Scale)
	}
	width := int(math.Ceil((req.Region.Max[0] - req.Region.Min[0]) / pixel))
	height := int(math.Ceil((req.Region.Max[1] - req.Region.Min[1]) / pixel))
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}
	if req.MaxPixels > 0 && float64(width)*float64(height) > req.MaxPixels {
		return raster.Grid{}, fmt.Errorf("%w: %dx%d pixels, budget %.0f", ErrTooManyPixels, width, height, req.MaxPixels)
	}
	return raster.Grid{
		Width:        width,
		Height:       height,
		GeoTransform: [6]float64{req.Region.Min[0], pixel, 0, req.Region.Max[1], 0, -pixel},
		CRS:          req.CRS,
	}, nil
}

type pixelsRequest struct {
	FileFormat string   `json:"fileFormat"`
	BandIDs    []string `json:"bandIds"`
	Grid       struct {
		Dimensions struct {
			Width  int `json:"width"`
			Height int `json:"height"`
		} `json:"dimensions"`
		AffineTransform struct {
			ScaleX     float64 `json:"scaleX"`
			ShearX     float64 `json:"shearX"`
			TranslateX float64 `json:"translateX"`
			ShearY     float64 `json:"shearY"`
			ScaleY     float64 `json:"scaleY"`
			TranslateY float64 `json:"translateY"`
		} `json:"affineTransform"`
		CRSCode string `json:"crsCode"`
	} `json:"grid"`
}

func newPixelsRequest(band string, grid raster.Grid) pixelsRequest {
	var r pixelsRequest
	r.FileFormat = "GEO_TIFF"
	r.BandIDs = []string{band}
	r.Grid.Dimensions.Width = grid.Width
	r.Grid.Dimensions.Height = grid.Height
	gt := grid.GeoTransform
	r.Grid.AffineTransform.TranslateX = gt[0]
	r.Grid.AffineTransform.ScaleX = gt[1]
	r.Grid.AffineTransform.ShearX = gt[2]
	r.Grid.AffineTransform.TranslateY = gt[3]
	r.Grid.AffineTransform.ShearY = gt[4]
	r.Grid.AffineTransform.ScaleY = gt[5]
	r.Grid.CRSCode = grid.CRS
	return r
}

// FetchScene downloads every requested band of the scene resampled onto the
// request grid. Downloads are kept on disk and reused on later runs.
func (c *Client) FetchScene(ctx context.Context, scene imagery.Scene, req imagery.FetchRequest) (*raster.Image, error) {
	hc, err := c.authorized()
	if err != nil {
		return nil, err
	}
	grid, err := ComputeGrid(req)
	if err != nil {
		return nil, err
	}
	for _, band := range req.Bands {
		if len(scene.Bands) > 0 && !scene.HasBand(band) {
			return nil, fmt.Errorf("scene %s has no band %s", scene.ID, band)
		}
	}

	dir := filepath.Join(c.opts.CacheDir, "images", path.Base(scene.ID))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	gridKey := c.listings.Key(grid.Width, grid.Height, grid.GeoTransform, grid.CRS)[:12]

	bands := make([]*raster.Band, len(req.Bands))
	progressBar := progressbar.Default(int64(len(req.Bands)), "Downloading bands")
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.DownloadConcurrency)
	for i, name := range req.Bands {
		g.Go(func() error {
			fileName := filepath.Join(dir, fmt.Sprintf("%s_%s.tif", name, gridKey))
			if _, err := os.Stat(fileName); err != nil {
				if err := c.downloadBand(gctx, hc, scene, name, grid, fileName); err != nil {
					return err
				}
			}
			band, err := ReadBand(fileName, name, grid)
			if err != nil {
				return err
			}
			bands[i] = band
			mu.Lock()
			progressBar.Add(1)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	img := raster.NewImage(scene.ID, grid)
	for _, b := range bands {
		if err := img.AddBand(b); err != nil {
			return nil, err
		}
	}
	c.log.WithFields(logrus.Fields{"scene": scene.ID, "bands": img.BandNames(), "width": grid.Width, "height": grid.Height}).Info("scene fetched")
	return img, nil
}

func (c *Client) downloadBand(ctx context.Context, hc *http.Client, scene imagery.Scene, band string, grid raster.Grid, fileName string) error {
	endpoint := fmt.Sprintf("%s/%s:getPixels", c.opts.BaseURL, scene.Name)
	resp, err := c.do(ctx, hc, http.MethodPost, endpoint, newPixelsRequest(band, grid))
	if err != nil {
		return fmt.Errorf("failed to download band %s of %s: %w", band, scene.ID, err)
	}
	defer resp.Body.Close()

	tmpFile := fileName + ".tmp"
	out, err := os.Create(tmpFile)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", tmpFile, err)
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.Remove(tmpFile)
		return fmt.Errorf("failed to save band %s to %s: %w", band, fileName, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmpFile)
		return err
	}
	if err := os.Rename(tmpFile, fileName); err != nil {
		os.Remove(tmpFile)
		return fmt.Errorf("failed to rename %s: %w", tmpFile, err)
	}
	return nil
}

// ReadBand loads the first band of a GeoTIFF as a raster band. No-data values
// become masked pixels.
func ReadBand(fileName, name string, grid raster.Grid) (*raster.Band, error) {
	ds, err := godal.Open(fileName, godal.RasterOnly(), godal.ErrLogger(func(ec godal.ErrorCategory, code int, msg string) error {
		if ec == godal.CE_Warning {
			return nil
		}
		return fmt.Errorf("gdal error %d: %s", code, msg)
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", fileName, err)
	}
	defer ds.Close()

	structure := ds.Structure()
	if structure.SizeX != grid.Width || structure.SizeY != grid.Height {
		return nil, fmt.Errorf("%w: %s is %dx%d, expected %dx%d", raster.ErrSizeMismatch, fileName, structure.SizeX, structure.SizeY, grid.Width, grid.Height)
	}
	dsBands := ds.Bands()
	if len(dsBands) == 0 {
		return nil, fmt.Errorf("%s has no raster band", fileName)
	}

	data := make([]float64, grid.Width*grid.Height)
	if err := dsBands[0].Read(0, 0, data, grid.Width, grid.Height); err != nil {
		return nil, fmt.Errorf("failed to read raster data of %s: %w", fileName, err)
	}
	if nodata, ok := dsBands[0].NoData(); ok {
		for i, v := range data {
			if v == nodata || (math.IsNaN(nodata) && math.IsNaN(v)) {
				data[i] = math.NaN()
			}
		}
	}
	return raster.NewBandFromData(name, grid.Width, grid.Height, data)
}
