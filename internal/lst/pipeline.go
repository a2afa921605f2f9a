// Package lst derives land surface temperature from a calibrated Landsat scene
// through six stages: TOA radiance, brightness temperature, NDVI, proportion
// of vegetation, emissivity and LST. Every stage appends one band to the
// image and may only read bands produced before it.
package lst

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/forest-guardian/landsat-lst/internal/imagery"
	"github.com/forest-guardian/landsat-lst/internal/landsat"
	"github.com/forest-guardian/landsat-lst/internal/raster"
	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
)

var (
	ErrDegenerateStatistics = errors.New("degenerate NDVI statistics")
	ErrInvalidEmissivity    = errors.New("non-positive emissivity")
	ErrNonFiniteValue       = errors.New("non-finite value")
)

type Stage string

const (
	StageTOA        Stage = "toa"
	StageBT         Stage = "bt"
	StageNDVI       Stage = "ndvi"
	StagePV         Stage = "pv"
	StageEmissivity Stage = "emissivity"
	StageLST        Stage = "lst"
)

var Stages = []Stage{StageTOA, StageBT, StageNDVI, StagePV, StageEmissivity, StageLST}

// band names appended to the image
const (
	BandTOA        = "TOA"
	BandBT         = "BT"
	BandNDVI       = "NDVI"
	BandPV         = "PV"
	BandEmissivity = "EMISSIVITY"
	BandLST        = "LST"
)

type Constants struct {
	LSECoefficient float64
	LSEConstant    float64
	Wavelength     float64
	Rho            float64
}

func DefaultConstants() Constants {
	return Constants{LSECoefficient: 0.004, LSEConstant: 0.986, Wavelength: 0.00115, Rho: 1.4388}
}

// Reducer computes region statistics over a band.
type Reducer interface {
	ReduceRegion(ctx context.Context, band *raster.Band, reducer imagery.Reducer) (raster.Stats, error)
}

// Observer is notified after every stage with the band it produced.
type Observer func(stage Stage, band *raster.Band) error

type Input struct {
	Thermal     *raster.Band
	Red         *raster.Band
	NIR         *raster.Band
	Calibration landsat.Calibration
}

// NewInput picks the raw bands the pipeline reads out of img.
func NewInput(img *raster.Image, thermal, red, nir string, cal landsat.Calibration) (Input, error) {
	in := Input{Calibration: cal}
	var err error
	if in.Thermal, err = img.Band(thermal); err != nil {
		return Input{}, err
	}
	if in.Red, err = img.Band(red); err != nil {
		return Input{}, err
	}
	if in.NIR, err = img.Band(nir); err != nil {
		return Input{}, err
	}
	return in, nil
}

type Result struct {
	TOA        *raster.Band
	BT         *raster.Band
	NDVI       *raster.Band
	PV         *raster.Band
	Emissivity *raster.Band
	LST        *raster.Band
	NDVIStats  raster.Stats
	Image      *raster.Image
}

// Output exposes only the LST band. Intermediate bands stay on Image.
func (r *Result) Output() (*raster.Image, error) {
	return r.Image.Select(BandLST)
}

type Pipeline struct {
	constants       Constants
	reducer         Reducer
	workers         int
	observer        Observer
	solarCorrection bool
	progress        bool
	log             *logrus.Entry
}

type Option func(*Pipeline)

func WithWorkers(n int) Option {
	return func(p *Pipeline) { p.workers = n }
}

func WithObserver(o Observer) Option {
	return func(p *Pipeline) { p.observer = o }
}

func WithProgress(enabled bool) Option {
	return func(p *Pipeline) { p.progress = enabled }
}

// WithSolarCorrection divides TOA radiance by the cosine of the solar zenith.
//
// Deprecated: the corrected radiance is not physically meaningful for thermal
// bands. Only use it to reproduce older results.
func WithSolarCorrection(enabled bool) Option {
	return func(p *Pipeline) { p.solarCorrection = enabled }
}

func New(constants Constants, reducer Reducer, opts ...Option) (*Pipeline, error) {
	if constants.Rho == 0 {
		return nil, fmt.Errorf("rho must not be zero")
	}
	if reducer == nil {
		return nil, fmt.Errorf("a reducer is required")
	}
	p := &Pipeline{constants: constants, reducer: reducer, log: logrus.WithField("component", "lst")}
	for _, opt := range opts {
		opt(p)
	}
	if p.solarCorrection {
		p.log.Warn("solar angle correction of TOA radiance is deprecated")
	}
	return p, nil
}

// Run executes the six stages in order and appends their bands to img.
func (p *Pipeline) Run(ctx context.Context, img *raster.Image, in Input) (*Result, error) {
	var progressBar *progressbar.ProgressBar
	if p.progress {
		progressBar = progressbar.Default(int64(len(Stages)), "Computing LST")
	}
	res := &Result{Image: img}

	finish := func(stage Stage, band *raster.Band, started time.Time) error {
		if err := img.AddBand(band); err != nil {
			return err
		}
		p.log.WithFields(logrus.Fields{"stage": stage, "valid": band.ValidCount(), "took": time.Since(started).Round(time.Millisecond)}).Debug("stage finished")
		if p.observer != nil {
			if err := p.observer(stage, band); err != nil {
				return fmt.Errorf("%s observer: %w", stage, err)
			}
		}
		if progressBar != nil {
			progressBar.Add(1)
		}
		return ctx.Err()
	}

	var err error
	started := time.Now()
	if res.TOA, err = p.TOA(in.Thermal, in.Calibration); err != nil {
		return nil, stageErr(StageTOA, err)
	}
	if err := finish(StageTOA, res.TOA, started); err != nil {
		return nil, err
	}

	started = time.Now()
	if res.BT, err = p.BrightnessTemperature(res.TOA, in.Calibration); err != nil {
		return nil, stageErr(StageBT, err)
	}
	if err := finish(StageBT, res.BT, started); err != nil {
		return nil, err
	}

	started = time.Now()
	if res.NDVI, err = p.NDVI(in.NIR, in.Red); err != nil {
		return nil, stageErr(StageNDVI, err)
	}
	if err := finish(StageNDVI, res.NDVI, started); err != nil {
		return nil, err
	}

	// statistics barrier: PV needs the region extremes of NDVI
	started = time.Now()
	if res.NDVIStats, err = p.reducer.ReduceRegion(ctx, res.NDVI, imagery.ReducerMinMax); err != nil {
		return nil, stageErr(StagePV, fmt.Errorf("failed to reduce NDVI: %w", err))
	}
	if res.PV, err = p.ProportionOfVegetation(res.NDVI, res.NDVIStats); err != nil {
		return nil, stageErr(StagePV, err)
	}
	if err := finish(StagePV, res.PV, started); err != nil {
		return nil, err
	}

	started = time.Now()
	if res.Emissivity, err = p.Emissivity(res.PV); err != nil {
		return nil, stageErr(StageEmissivity, err)
	}
	if err := finish(StageEmissivity, res.Emissivity, started); err != nil {
		return nil, err
	}

	started = time.Now()
	if res.LST, err = p.LandSurfaceTemperature(res.BT, res.Emissivity); err != nil {
		return nil, stageErr(StageLST, err)
	}
	if err := finish(StageLST, res.LST, started); err != nil {
		return nil, err
	}
	return res, nil
}

func (p *Pipeline) TOA(thermal *raster.Band, cal landsat.Calibration) (*raster.Band, error) {
	return raster.Map(BandTOA, p.workers, func(x, y int, v []float64) (float64, error) {
		if p.solarCorrection {
			return SolarCorrectedTOAValue(v[0], cal.RadianceMult, cal.RadianceAdd, cal.SunElevation), nil
		}
		return TOAValue(v[0], cal.RadianceMult, cal.RadianceAdd), nil
	}, thermal)
}

// BrightnessTemperature masks pixels with non-positive radiance, which only
// occur on fill values.
func (p *Pipeline) BrightnessTemperature(toa *raster.Band, cal landsat.Calibration) (*raster.Band, error) {
	return raster.Map(BandBT, p.workers, func(x, y int, v []float64) (float64, error) {
		if v[0] <= 0 {
			return math.NaN(), nil
		}
		return finite(BandBT, BrightnessTemperatureValue(v[0], cal.K1, cal.K2), x, y)
	}, toa)
}

func (p *Pipeline) NDVI(nir, red *raster.Band) (*raster.Band, error) {
	return raster.Map(BandNDVI, p.workers, func(x, y int, v []float64) (float64, error) {
		if v[0]+v[1] == 0 {
			return math.NaN(), nil
		}
		return NDVIValue(v[0], v[1]), nil
	}, nir, red)
}

func (p *Pipeline) ProportionOfVegetation(ndvi *raster.Band, stats raster.Stats) (*raster.Band, error) {
	if stats.Count == 0 || math.IsNaN(stats.Min) || math.IsNaN(stats.Max) {
		return nil, fmt.Errorf("%w: no valid NDVI pixel in the region", ErrDegenerateStatistics)
	}
	if stats.Max == stats.Min {
		return nil, fmt.Errorf("%w: NDVI min and max are both %v", ErrDegenerateStatistics, stats.Min)
	}
	return raster.Map(BandPV, p.workers, func(x, y int, v []float64) (float64, error) {
		return ProportionOfVegetationValue(v[0], stats.Min, stats.Max), nil
	}, ndvi)
}

func (p *Pipeline) Emissivity(pv *raster.Band) (*raster.Band, error) {
	c := p.constants
	return raster.Map(BandEmissivity, p.workers, func(x, y int, v []float64) (float64, error) {
		e := EmissivityValue(v[0], c.LSECoefficient, c.LSEConstant)
		if e <= 0 {
			return 0, fmt.Errorf("%w: %v at pixel (%d, %d)", ErrInvalidEmissivity, e, x, y)
		}
		return e, nil
	}, pv)
}

func (p *Pipeline) LandSurfaceTemperature(bt, emissivity *raster.Band) (*raster.Band, error) {
	c := p.constants
	return raster.Map(BandLST, p.workers, func(x, y int, v []float64) (float64, error) {
		if v[1] <= 0 {
			return 0, fmt.Errorf("%w: %v at pixel (%d, %d)", ErrInvalidEmissivity, v[1], x, y)
		}
		return finite(BandLST, LSTValue(v[0], v[1], c.Wavelength, c.Rho), x, y)
	}, bt, emissivity)
}

func stageErr(stage Stage, err error) error {
	return fmt.Errorf("%s stage: %w", stage, err)
}

// finite fails on values only a broken calibration or a singular denominator
// can produce. Masked inputs never reach it.
func finite(band string, v float64, x, y int) (float64, error) {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, fmt.Errorf("%w: %s is %v at pixel (%d, %d)", ErrNonFiniteValue, band, v, x, y)
	}
	return v, nil
}
