package raster

import (
	"encoding/json"
	"fmt"
	"math"
	"runtime"
	"sync"

	"github.com/gammazero/workerpool"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Kernel computes one output pixel from the input pixel values, in the order
// the inputs were given. It is only called when every input is valid.
type Kernel func(x, y int, values []float64) (float64, error)

// Map evaluates kernel on every pixel of the inputs, row by row on a worker
// pool, and returns the resulting band. A masked input pixel yields a masked
// output pixel. The first kernel error aborts the computation.
func Map(name string, workers int, kernel Kernel, inputs ...*Band) (*Band, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("no input bands for %s", name)
	}
	width, height := inputs[0].Width, inputs[0].Height
	for _, in := range inputs[1:] {
		if in.Width != width || in.Height != height {
			return nil, fmt.Errorf("%w: %s is %dx%d, %s is %dx%d", ErrSizeMismatch, inputs[0].Name, width, height, in.Name, in.Width, in.Height)
		}
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	out := NewBand(name, width, height)
	wp := workerpool.New(workers)
	errChan := make(chan error, 1)
	var stopProcessing sync.Once

	for y := 0; y < height; y++ {
		row := y
		wp.Submit(func() {
			values := make([]float64, len(inputs))
			for x := 0; x < width; x++ {
				i := row*width + x
				masked := false
				for j, in := range inputs {
					values[j] = in.Data[i]
					if math.IsNaN(values[j]) {
						masked = true
						break
					}
				}
				if masked {
					out.Data[i] = math.NaN()
					continue
				}
				v, err := kernel(x, row, values)
				if err != nil {
					stopProcessing.Do(func() { errChan <- err })
					return
				}
				out.Data[i] = v
			}
		})
	}
	wp.StopWait()
	close(errChan)

	if err := <-errChan; err != nil {
		return nil, err
	}
	return out, nil
}

// Stats is the result of a region reduction over the valid pixels of a band.
type Stats struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Mean  float64 `json:"mean"`
	Count int     `json:"count"`
}

// MarshalJSON writes NaN fields as null since JSON has no NaN.
func (s Stats) MarshalJSON() ([]byte, error) {
	nullable := func(v float64) *float64 {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil
		}
		return &v
	}
	return json.Marshal(struct {
		Min   *float64 `json:"min"`
		Max   *float64 `json:"max"`
		Mean  *float64 `json:"mean"`
		Count int      `json:"count"`
	}{nullable(s.Min), nullable(s.Max), nullable(s.Mean), s.Count})
}

// Reduce computes min, max and mean over the valid pixels of b. Count is zero
// and the other fields NaN when nothing is valid.
func Reduce(b *Band) Stats {
	stats := Stats{Min: math.Inf(1), Max: math.Inf(-1)}
	sum := 0.0
	for _, v := range b.Data {
		if math.IsNaN(v) {
			continue
		}
		stats.Count++
		sum += v
		stats.Min = math.Min(stats.Min, v)
		stats.Max = math.Max(stats.Max, v)
	}
	if stats.Count == 0 {
		return Stats{Min: math.NaN(), Max: math.NaN(), Mean: math.NaN()}
	}
	stats.Mean = sum / float64(stats.Count)
	return stats
}

// ClipMask marks the pixels whose center falls inside region. The region must
// be expressed in the grid CRS.
func ClipMask(grid Grid, region orb.MultiPolygon) []bool {
	keep := make([]bool, grid.Size())
	bound := region.Bound()
	for y := 0; y < grid.Height; y++ {
		for x := 0; x < grid.Width; x++ {
			cx, cy := grid.PixelCenter(x, y)
			p := orb.Point{cx, cy}
			if !bound.Contains(p) {
				continue
			}
			keep[y*grid.Width+x] = planar.MultiPolygonContains(region, p)
		}
	}
	return keep
}

// Clip masks every pixel outside region.
func Clip(img *Image, region orb.MultiPolygon) (*Image, error) {
	return img.UpdateMask(ClipMask(img.Grid, region))
}
