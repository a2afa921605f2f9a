package imagery

import (
	"context"
	"fmt"

	"github.com/forest-guardian/landsat-lst/internal/geo"
	"github.com/forest-guardian/landsat-lst/internal/raster"
	"github.com/forest-guardian/landsat-lst/internal/render"
)

// Local runs expression evaluation, region reduction and overlay rendering on
// arrays held in memory. Remote clients embed it for everything that does not
// need the network.
type Local struct {
	Workers        int
	MaxOverlaySize int
}

func (l Local) EvaluateExpression(ctx context.Context, img *raster.Image, name, expression string, params map[string]float64) (*raster.Band, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	expr, err := raster.ParseExpression(expression)
	if err != nil {
		return nil, err
	}
	return expr.Evaluate(img, name, params, l.Workers)
}

func (l Local) ReduceRegion(ctx context.Context, band *raster.Band, reducer Reducer) (raster.Stats, error) {
	if err := ctx.Err(); err != nil {
		return raster.Stats{}, err
	}
	switch reducer {
	case ReducerMinMax, ReducerMean:
		return raster.Reduce(band), nil
	}
	return raster.Stats{}, fmt.Errorf("unsupported reducer %q", reducer)
}

func (l Local) GetTileHandle(ctx context.Context, img *raster.Image, params render.Params) (*TileHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rendered, err := render.Render(img, params, l.MaxOverlaySize)
	if err != nil {
		return nil, fmt.Errorf("failed to render %v: %w", params.Bands, err)
	}
	data, err := render.EncodePNG(rendered)
	if err != nil {
		return nil, err
	}
	bounds, err := geo.BoundsToWGS84(img.Grid.CRS, img.Grid.Bounds())
	if err != nil {
		return nil, err
	}

	handle := &TileHandle{
		Kind:        HandleImage,
		URL:         render.DataURL(data),
		Bounds:      bounds,
		Attribution: "USGS Landsat",
		Params:      params,
	}
	if len(params.Palette) > 0 {
		legend, err := render.Legend(params, params.Bands[0])
		if err != nil {
			return nil, err
		}
		legendData, err := render.EncodePNG(legend)
		if err != nil {
			return nil, err
		}
		handle.LegendURL = render.DataURL(legendData)
	}
	return handle, nil
}
