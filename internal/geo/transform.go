package geo

import (
	"fmt"
	"math"

	"github.com/airbusgeo/godal"
	"github.com/forest-guardian/landsat-lst/internal/properties"
)

const WGS84 = "EPSG:4326"

func SpatialRef(crs string) (*godal.SpatialRef, error) {
	code, err := properties.EPSGCode(crs)
	if err != nil {
		return nil, err
	}
	sr, err := godal.NewSpatialRefFromEPSG(code)
	if err != nil {
		return nil, fmt.Errorf("failed to create spatial reference for %s: %w", crs, err)
	}
	return sr, nil
}

func sameCRS(a, b string) bool {
	ca, errA := properties.EPSGCode(a)
	cb, errB := properties.EPSGCode(b)
	return errA == nil && errB == nil && ca == cb
}

// Transform reprojects the coordinates in place from one CRS to another.
// Coordinates are in x/y (lon/lat) order.
func Transform(from, to string, xs, ys []float64) error {
	if len(xs) != len(ys) {
		return fmt.Errorf("coordinate slices differ in length: %d != %d", len(xs), len(ys))
	}
	if sameCRS(from, to) || len(xs) == 0 {
		return nil
	}
	srcSR, err := SpatialRef(from)
	if err != nil {
		return err
	}
	defer srcSR.Close()
	dstSR, err := SpatialRef(to)
	if err != nil {
		return err
	}
	defer dstSR.Close()

	tr, err := godal.NewTransform(srcSR, dstSR)
	if err != nil {
		return fmt.Errorf("failed to create transform %s -> %s: %w", from, to, err)
	}
	defer tr.Close()

	if err := tr.TransformEx(xs, ys, nil, nil); err != nil {
		return fmt.Errorf("transform error: %w", err)
	}
	return nil
}

// BoundsToWGS84 converts minX, minY, maxX, maxY from crs into
// west, south, east, north. Edge midpoints are sampled as well so a
// projected box maps onto its full geographic extent.
func BoundsToWGS84(crs string, b [4]float64) ([4]float64, error) {
	midX, midY := (b[0]+b[2])/2, (b[1]+b[3])/2
	xs := []float64{b[0], b[2], b[2], b[0], midX, b[2], midX, b[0]}
	ys := []float64{b[1], b[1], b[3], b[3], b[1], midY, b[3], midY}
	if err := Transform(crs, WGS84, xs, ys); err != nil {
		return [4]float64{}, err
	}
	out := [4]float64{math.Inf(1), math.Inf(1), math.Inf(-1), math.Inf(-1)}
	for i := range xs {
		out[0] = math.Min(out[0], xs[i])
		out[1] = math.Min(out[1], ys[i])
		out[2] = math.Max(out[2], xs[i])
		out[3] = math.Max(out[3], ys[i])
	}
	return out, nil
}

// MetersToDegrees approximates a ground distance as degrees of latitude.
func MetersToDegrees(meters float64) float64 {
	return meters / 111_320.0
}
