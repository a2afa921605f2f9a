package landsat

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/forest-guardian/landsat-lst/internal/imagery"
	"github.com/forest-guardian/landsat-lst/internal/raster"
	"github.com/paulmach/orb"
	"github.com/sirupsen/logrus"
)

var ErrEmptyCollection = errors.New("no images found in the collection")

const (
	cloudBit  = 1 << 3
	shadowBit = 1 << 4
)

type Params struct {
	Collection string
	// Region is the ROI in the target CRS, RegionLonLat its WGS84 extent.
	Region        orb.MultiPolygon
	RegionLonLat  orb.Bound
	Start         time.Time
	End           time.Time
	MaxCloudCover float64
	CRS           string
	Scale         float64
	MaxPixels     float64
	Bands         []string
	ThermalBand   string
	QABand        string
}

type Acquisition struct {
	Scene       imagery.Scene `json:"scene"`
	Info        SceneInfo     `json:"info"`
	Calibration Calibration   `json:"calibration"`
	Candidates  int           `json:"candidates"`
	Image       *raster.Image `json:"-"`
}

// Acquire selects the most recent scene matching the filters, downloads its
// bands on the target grid, masks clouds and clips it to the ROI.
func Acquire(ctx context.Context, svc imagery.Service, p Params) (*Acquisition, error) {
	log := logrus.WithField("stage", "acquisition")

	scenes, err := svc.FilterCollection(ctx, imagery.CollectionQuery{
		Collection:    p.Collection,
		Region:        p.RegionLonLat,
		Start:         p.Start,
		End:           p.End,
		MaxCloudCover: p.MaxCloudCover,
	})
	if err != nil {
		return nil, err
	}
	candidates := FilterCandidates(scenes, p.Start, p.End, p.MaxCloudCover)
	log.WithFields(logrus.Fields{"listed": len(scenes), "candidates": len(candidates)}).Info("collection filtered")

	scene, err := SelectMostRecent(candidates)
	if err != nil {
		return nil, err
	}
	info, err := ParseSceneID(scene.ID, scene.StartTime)
	if err != nil {
		return nil, err
	}
	cal, err := CalibrationFor(scene, p.ThermalBand)
	if err != nil {
		return nil, err
	}
	log.WithField("scene", scene.ID).Info(info.String())

	img, err := svc.FetchScene(ctx, scene, imagery.FetchRequest{
		Bands:     p.Bands,
		CRS:       p.CRS,
		Scale:     p.Scale,
		Region:    p.Region.Bound(),
		MaxPixels: p.MaxPixels,
	})
	if err != nil {
		return nil, err
	}
	img, err = MaskClouds(img, p.QABand)
	if err != nil {
		return nil, err
	}
	img, err = raster.Clip(img, p.Region)
	if err != nil {
		return nil, err
	}

	return &Acquisition{Scene: scene, Info: info, Calibration: cal, Candidates: len(candidates), Image: img}, nil
}

// FilterCandidates keeps the scenes acquired in [start, end) whose cloud cover
// is known and strictly below maxCloudCover.
func FilterCandidates(scenes []imagery.Scene, start, end time.Time, maxCloudCover float64) []imagery.Scene {
	var out []imagery.Scene
	for _, s := range scenes {
		if s.StartTime.Before(start) || !s.StartTime.Before(end) {
			continue
		}
		cloud, ok := s.Property("CLOUD_COVER")
		if !ok || cloud >= maxCloudCover {
			continue
		}
		out = append(out, s)
	}
	return out
}

// SortByRecency returns a copy of scenes ordered from the latest acquisition
// to the oldest. Ties are broken by id so the order is deterministic.
func SortByRecency(scenes []imagery.Scene) []imagery.Scene {
	sorted := make([]imagery.Scene, len(scenes))
	copy(sorted, scenes)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].StartTime.Equal(sorted[j].StartTime) {
			return sorted[i].ID > sorted[j].ID
		}
		return sorted[i].StartTime.After(sorted[j].StartTime)
	})
	return sorted
}

// SelectMostRecent returns the scene with the latest acquisition time.
func SelectMostRecent(scenes []imagery.Scene) (imagery.Scene, error) {
	if len(scenes) == 0 {
		return imagery.Scene{}, ErrEmptyCollection
	}
	return SortByRecency(scenes)[0], nil
}

// CloudMask keeps the pixels whose QA value has the cloud and cloud shadow
// bits cleared.
func CloudMask(qa *raster.Band) []bool {
	keep := make([]bool, len(qa.Data))
	for i, v := range qa.Data {
		if math.IsNaN(v) {
			continue
		}
		bits := int64(v)
		keep[i] = bits&cloudBit == 0 && bits&shadowBit == 0
	}
	return keep
}

// MaskClouds masks cloudy pixels in every band. Applying it twice gives the
// same image as applying it once.
func MaskClouds(img *raster.Image, qaBand string) (*raster.Image, error) {
	qa, err := img.Band(qaBand)
	if err != nil {
		return nil, fmt.Errorf("cloud mask: %w", err)
	}
	return img.UpdateMask(CloudMask(qa))
}
