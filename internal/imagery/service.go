// Package imagery defines the contract between the LST workflow and the remote
// Earth-observation platform, plus a local engine for the operations that run
// on already fetched arrays.
package imagery

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/forest-guardian/landsat-lst/internal/raster"
	"github.com/forest-guardian/landsat-lst/internal/render"
	"github.com/paulmach/orb"
)

// Scene is one image of a remote collection.
type Scene struct {
	// ID is the collection path plus product id, for example
	// LANDSAT/LC09/C02/T1_TOA/LC09_190031_20240811.
	ID         string                 `json:"id"`
	Name       string                 `json:"name"`
	StartTime  time.Time              `json:"start_time"`
	Properties map[string]interface{} `json:"properties"`
	Bands      []string               `json:"bands"`
}

// Property returns a numeric metadata property.
func (s Scene) Property(name string) (float64, bool) {
	switch v := s.Properties[name].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	}
	return 0, false
}

func (s Scene) HasBand(name string) bool {
	for _, b := range s.Bands {
		if b == name {
			return true
		}
	}
	return false
}

type CollectionQuery struct {
	Collection string
	// Region is expressed in WGS84 lon/lat.
	Region        orb.Bound
	Start         time.Time
	End           time.Time
	MaxCloudCover float64
}

// FetchRequest describes the output grid of a scene download.
type FetchRequest struct {
	Bands []string
	CRS   string
	// Scale is the pixel size in meters.
	Scale float64
	// Region is expressed in CRS units.
	Region    orb.Bound
	MaxPixels float64
}

type Reducer string

const (
	ReducerMinMax Reducer = "minMax"
	ReducerMean   Reducer = "mean"
)

const (
	HandleImage = "image"
	HandleTiles = "tiles"
)

// TileHandle is what a map needs to display a rendered raster: either a single
// image overlay with its WGS84 bounds or an XYZ tile URL template.
type TileHandle struct {
	Kind string `json:"kind"`
	URL  string `json:"url"`
	// Bounds are west, south, east, north in degrees.
	Bounds      [4]float64    `json:"bounds"`
	LegendURL   string        `json:"legend_url,omitempty"`
	Attribution string        `json:"attribution,omitempty"`
	Params      render.Params `json:"params"`
}

type Service interface {
	FilterCollection(ctx context.Context, q CollectionQuery) ([]Scene, error)
	FetchScene(ctx context.Context, scene Scene, req FetchRequest) (*raster.Image, error)
	EvaluateExpression(ctx context.Context, img *raster.Image, name, expression string, params map[string]float64) (*raster.Band, error)
	ReduceRegion(ctx context.Context, band *raster.Band, reducer Reducer) (raster.Stats, error)
	GetTileHandle(ctx context.Context, img *raster.Image, params render.Params) (*TileHandle, error)
}

func (q CollectionQuery) Validate() error {
	if q.Collection == "" {
		return fmt.Errorf("collection is required")
	}
	if !q.Start.Before(q.End) {
		return fmt.Errorf("start %s must be before end %s", q.Start.Format(time.DateOnly), q.End.Format(time.DateOnly))
	}
	return nil
}
