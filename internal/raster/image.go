package raster

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrBandExists   = errors.New("band already exists")
	ErrBandNotFound = errors.New("band not found")
	ErrSizeMismatch = errors.New("band size does not match image grid")
)

// Grid describes the pixel lattice shared by every band of an image.
// GeoTransform follows the GDAL convention.
type Grid struct {
	Width        int        `json:"width"`
	Height       int        `json:"height"`
	GeoTransform [6]float64 `json:"geo_transform"`
	CRS          string     `json:"crs"`
}

func (g Grid) Size() int {
	return g.Width * g.Height
}

// PixelCenter returns the CRS coordinates of the center of pixel (x, y).
func (g Grid) PixelCenter(x, y int) (float64, float64) {
	px, py := float64(x)+0.5, float64(y)+0.5
	gt := g.GeoTransform
	return gt[0] + px*gt[1] + py*gt[2], gt[3] + px*gt[4] + py*gt[5]
}

// Bounds returns minX, minY, maxX, maxY of a north-up grid.
func (g Grid) Bounds() [4]float64 {
	gt := g.GeoTransform
	x0, y0 := gt[0], gt[3]
	x1 := gt[0] + float64(g.Width)*gt[1] + float64(g.Height)*gt[2]
	y1 := gt[3] + float64(g.Width)*gt[4] + float64(g.Height)*gt[5]
	return [4]float64{math.Min(x0, x1), math.Min(y0, y1), math.Max(x0, x1), math.Max(y0, y1)}
}

// Band is a single named layer. NaN marks masked pixels.
type Band struct {
	Name   string
	Width  int
	Height int
	Data   []float64
}

func NewBand(name string, width, height int) *Band {
	return &Band{Name: name, Width: width, Height: height, Data: make([]float64, width*height)}
}

func NewBandFromData(name string, width, height int, data []float64) (*Band, error) {
	if len(data) != width*height {
		return nil, fmt.Errorf("%w: band %s has %d values for a %dx%d grid", ErrSizeMismatch, name, len(data), width, height)
	}
	return &Band{Name: name, Width: width, Height: height, Data: data}, nil
}

func (b *Band) At(x, y int) float64 {
	return b.Data[y*b.Width+x]
}

func (b *Band) Set(x, y int, v float64) {
	b.Data[y*b.Width+x] = v
}

func (b *Band) Valid(x, y int) bool {
	return !math.IsNaN(b.At(x, y))
}

func (b *Band) ValidCount() int {
	count := 0
	for _, v := range b.Data {
		if !math.IsNaN(v) {
			count++
		}
	}
	return count
}

func (b *Band) Clone(name string) *Band {
	data := make([]float64, len(b.Data))
	copy(data, b.Data)
	return &Band{Name: name, Width: b.Width, Height: b.Height, Data: data}
}

// Image is an ordered set of bands on one grid. Bands can be appended but
// never replaced or removed.
type Image struct {
	ID    string
	Grid  Grid
	bands []*Band
	index map[string]int
}

func NewImage(id string, grid Grid) *Image {
	return &Image{ID: id, Grid: grid, index: map[string]int{}}
}

func (img *Image) AddBand(b *Band) error {
	if _, ok := img.index[b.Name]; ok {
		return fmt.Errorf("%w: %s", ErrBandExists, b.Name)
	}
	if b.Width != img.Grid.Width || b.Height != img.Grid.Height || len(b.Data) != b.Width*b.Height {
		return fmt.Errorf("%w: %s is %dx%d, grid is %dx%d", ErrSizeMismatch, b.Name, b.Width, b.Height, img.Grid.Width, img.Grid.Height)
	}
	img.index[b.Name] = len(img.bands)
	img.bands = append(img.bands, b)
	return nil
}

func (img *Image) Band(name string) (*Band, error) {
	i, ok := img.index[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s in image %s", ErrBandNotFound, name, img.ID)
	}
	return img.bands[i], nil
}

func (img *Image) HasBand(name string) bool {
	_, ok := img.index[name]
	return ok
}

func (img *Image) BandNames() []string {
	names := make([]string, len(img.bands))
	for i, b := range img.bands {
		names[i] = b.Name
	}
	return names
}

// Select returns an image exposing only the named bands. Band data is shared.
func (img *Image) Select(names ...string) (*Image, error) {
	out := NewImage(img.ID, img.Grid)
	for _, name := range names {
		b, err := img.Band(name)
		if err != nil {
			return nil, err
		}
		if err := out.AddBand(b); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// UpdateMask returns a copy of the image where every pixel with keep false is
// masked in every band. Already masked pixels stay masked.
func (img *Image) UpdateMask(keep []bool) (*Image, error) {
	if len(keep) != img.Grid.Size() {
		return nil, fmt.Errorf("%w: mask has %d values for %d pixels", ErrSizeMismatch, len(keep), img.Grid.Size())
	}
	out := NewImage(img.ID, img.Grid)
	for _, b := range img.bands {
		masked := b.Clone(b.Name)
		for i, k := range keep {
			if !k {
				masked.Data[i] = math.NaN()
			}
		}
		if err := out.AddBand(masked); err != nil {
			return nil, err
		}
	}
	return out, nil
}
