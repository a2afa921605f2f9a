package vectormask

import (
	"errors"
	"fmt"

	"github.com/forest-guardian/landsat-lst/internal/geo"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

var ErrNoPolygon = errors.New("vector mask contains no polygon")

type Feature struct {
	Geometry   orb.MultiPolygon
	Properties map[string]string
	Centroid   orb.Point
}

// NewFeature keeps the polygonal parts of g. Other geometry types yield
// ok == false.
func NewFeature(g orb.Geometry, properties map[string]string) (Feature, bool) {
	var mp orb.MultiPolygon
	collect(g, &mp)
	if len(mp) == 0 {
		return Feature{}, false
	}
	centroid, _ := planar.CentroidArea(mp)
	return Feature{Geometry: mp, Properties: properties, Centroid: centroid}, true
}

func collect(g orb.Geometry, mp *orb.MultiPolygon) {
	switch v := g.(type) {
	case orb.Polygon:
		*mp = append(*mp, v)
	case orb.MultiPolygon:
		*mp = append(*mp, v...)
	case orb.Collection:
		for _, child := range v {
			collect(child, mp)
		}
	}
}

// ROI is the region of interest expressed in the target CRS. It is not
// modified after loading.
type ROI struct {
	Source   string
	CRS      string
	Features []Feature

	region         orb.MultiPolygon
	centroid       orb.Point
	centroidLonLat orb.Point
	boundLonLat    orb.Bound
}

func NewROI(source, crs string, features []Feature) (*ROI, error) {
	if len(features) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoPolygon, source)
	}
	roi := &ROI{Source: source, CRS: crs, Features: features}

	var sumX, sumY float64
	for _, f := range features {
		roi.region = append(roi.region, f.Geometry...)
		sumX += f.Centroid[0]
		sumY += f.Centroid[1]
	}
	n := float64(len(features))
	roi.centroid = orb.Point{sumX / n, sumY / n}

	xs, ys := []float64{roi.centroid[0]}, []float64{roi.centroid[1]}
	if err := geo.Transform(crs, geo.WGS84, xs, ys); err != nil {
		return nil, err
	}
	roi.centroidLonLat = orb.Point{xs[0], ys[0]}

	b := roi.region.Bound()
	lonLat, err := geo.BoundsToWGS84(crs, [4]float64{b.Min[0], b.Min[1], b.Max[0], b.Max[1]})
	if err != nil {
		return nil, err
	}
	roi.boundLonLat = orb.Bound{Min: orb.Point{lonLat[0], lonLat[1]}, Max: orb.Point{lonLat[2], lonLat[3]}}
	return roi, nil
}

// Region returns every polygon part of every feature as one multipolygon.
func (r *ROI) Region() orb.MultiPolygon {
	return r.region
}

// Coordinates returns the exterior ring of every polygon part, one entry per
// part.
func (r *ROI) Coordinates() [][]orb.Point {
	out := make([][]orb.Point, 0, len(r.region))
	for _, p := range r.region {
		if len(p) == 0 {
			continue
		}
		ring := make([]orb.Point, len(p[0]))
		copy(ring, p[0])
		out = append(out, ring)
	}
	return out
}

// Centroid is the mean of the feature centroids in the ROI CRS.
func (r *ROI) Centroid() orb.Point {
	return r.centroid
}

func (r *ROI) CentroidLonLat() orb.Point {
	return r.centroidLonLat
}

func (r *ROI) Bound() orb.Bound {
	return r.region.Bound()
}

func (r *ROI) BoundLonLat() orb.Bound {
	return r.boundLonLat
}
