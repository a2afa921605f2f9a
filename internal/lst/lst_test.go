package lst

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/forest-guardian/landsat-lst/internal/imagery"
	"github.com/forest-guardian/landsat-lst/internal/landsat"
	"github.com/forest-guardian/landsat-lst/internal/raster"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var calibration = landsat.Calibration{
	RadianceMult: 3.342e-4,
	RadianceAdd:  0.1,
	K1:           774.8853,
	K2:           1321.0789,
	SunElevation: 55,
}

func band(t *testing.T, name string, w, h int, values ...float64) *raster.Band {
	t.Helper()
	b, err := raster.NewBandFromData(name, w, h, values)
	require.NoError(t, err)
	return b
}

func newPipeline(t *testing.T, opts ...Option) *Pipeline {
	t.Helper()
	p, err := New(DefaultConstants(), imagery.Local{}, opts...)
	require.NoError(t, err)
	return p
}

func TestBrightnessTemperatureValue(t *testing.T) {
	want := 1321.0789/(math.Log(774.8853/10)+1) - 273.15
	assert.InDelta(t, want, BrightnessTemperatureValue(10, 774.8853, 1321.0789), 1e-9)
	// roughly -26 C for this radiance
	assert.InDelta(t, -26.2, BrightnessTemperatureValue(10, 774.8853, 1321.0789), 0.5)
}

func TestProportionOfVegetationValue(t *testing.T) {
	assert.InDelta(t, 0.25, ProportionOfVegetationValue(0.3, -0.2, 0.8), 1e-12)
	assert.InDelta(t, 0.0, ProportionOfVegetationValue(-0.2, -0.2, 0.8), 1e-12)
	assert.InDelta(t, 1.0, ProportionOfVegetationValue(0.8, -0.2, 0.8), 1e-12)
}

func TestTOASolarCorrection(t *testing.T) {
	dn := band(t, "B10", 1, 1, 30000)
	plain, err := newPipeline(t).TOA(dn, calibration)
	require.NoError(t, err)
	assert.InDelta(t, 3.342e-4*30000+0.1, plain.Data[0], 1e-9)

	corrected, err := newPipeline(t, WithSolarCorrection(true)).TOA(dn, calibration)
	require.NoError(t, err)
	assert.InDelta(t, plain.Data[0]/math.Cos(35*math.Pi/180), corrected.Data[0], 1e-9)
}

func TestBrightnessTemperatureMasksNonPositiveRadiance(t *testing.T) {
	toa := band(t, "TOA", 3, 1, 10, 0, -1)
	bt, err := newPipeline(t).BrightnessTemperature(toa, calibration)
	require.NoError(t, err)
	assert.False(t, math.IsNaN(bt.Data[0]))
	assert.True(t, math.IsNaN(bt.Data[1]))
	assert.True(t, math.IsNaN(bt.Data[2]))
}

func TestNDVIMasksZeroDenominator(t *testing.T) {
	nir := band(t, "B5", 3, 1, 0.4, 0, 0.1)
	red := band(t, "B4", 3, 1, 0.1, 0, 0.1)
	ndvi, err := newPipeline(t).NDVI(nir, red)
	require.NoError(t, err)
	assert.InDelta(t, 0.6, ndvi.Data[0], 1e-12)
	assert.True(t, math.IsNaN(ndvi.Data[1]))
	assert.InDelta(t, 0.0, ndvi.Data[2], 1e-12)
}

func TestProportionOfVegetationRange(t *testing.T) {
	ndvi := band(t, "NDVI", 5, 1, -0.2, 0.1, 0.3, math.NaN(), 0.8)
	p := newPipeline(t)
	pv, err := p.ProportionOfVegetation(ndvi, raster.Reduce(ndvi))
	require.NoError(t, err)
	for i, v := range pv.Data {
		if i == 3 {
			assert.True(t, math.IsNaN(v))
			continue
		}
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
	}
	assert.InDelta(t, 0.25, pv.Data[2], 1e-12)
}

func TestProportionOfVegetationDegenerate(t *testing.T) {
	p := newPipeline(t)

	flat := band(t, "NDVI", 2, 1, 0.4, 0.4)
	_, err := p.ProportionOfVegetation(flat, raster.Reduce(flat))
	assert.ErrorIs(t, err, ErrDegenerateStatistics)

	empty := band(t, "NDVI", 2, 1, math.NaN(), math.NaN())
	_, err = p.ProportionOfVegetation(empty, raster.Reduce(empty))
	assert.ErrorIs(t, err, ErrDegenerateStatistics)
}

func TestEmissivityRejectsNonPositive(t *testing.T) {
	c := DefaultConstants()
	c.LSEConstant = -0.5
	p, err := New(c, imagery.Local{})
	require.NoError(t, err)

	pv := band(t, "PV", 2, 1, math.NaN(), 0.5)
	_, err = p.Emissivity(pv)
	require.ErrorIs(t, err, ErrInvalidEmissivity)
	assert.Contains(t, err.Error(), "pixel (1, 0)")
}

func TestNonFiniteValuesFail(t *testing.T) {
	p := newPipeline(t)

	broken := calibration
	broken.K2 = math.Inf(1)
	_, err := p.BrightnessTemperature(band(t, "TOA", 2, 1, math.NaN(), 10), broken)
	require.ErrorIs(t, err, ErrNonFiniteValue)
	assert.Contains(t, err.Error(), "BT is +Inf at pixel (1, 0)")

	bt := band(t, "BT", 2, 1, 25, math.Inf(1))
	emissivity := band(t, "EMISSIVITY", 2, 1, 0.99, 0.99)
	_, err = p.LandSurfaceTemperature(bt, emissivity)
	require.ErrorIs(t, err, ErrNonFiniteValue)
	assert.Contains(t, err.Error(), "pixel (1, 0)")
}

func TestNewValidates(t *testing.T) {
	c := DefaultConstants()
	c.Rho = 0
	_, err := New(c, imagery.Local{})
	assert.Error(t, err)

	_, err = New(DefaultConstants(), nil)
	assert.Error(t, err)
}

func lstImage(t *testing.T) *raster.Image {
	t.Helper()
	img := raster.NewImage("LC09_L1TP_191031_20240815_20240815_02_T1", raster.Grid{
		Width: 2, Height: 2, GeoTransform: [6]float64{12, 0.001, 0, 42, 0, -0.001}, CRS: "EPSG:4326",
	})
	require.NoError(t, img.AddBand(band(t, "B10", 2, 2, 28000, 29000, math.NaN(), 30000)))
	require.NoError(t, img.AddBand(band(t, "B4", 2, 2, 0.10, 0.08, 0.05, 0.20)))
	require.NoError(t, img.AddBand(band(t, "B5", 2, 2, 0.30, 0.40, 0.45, 0.22)))
	return img
}

func TestRunMatchesClosedForm(t *testing.T) {
	img := lstImage(t)
	var seen []Stage
	p := newPipeline(t, WithWorkers(2), WithObserver(func(stage Stage, b *raster.Band) error {
		seen = append(seen, stage)
		return nil
	}))

	in, err := NewInput(img, "B10", "B4", "B5", calibration)
	require.NoError(t, err)
	res, err := p.Run(context.Background(), img, in)
	require.NoError(t, err)

	assert.Equal(t, Stages, seen)
	assert.Equal(t, []string{"B10", "B4", "B5", BandTOA, BandBT, BandNDVI, BandPV, BandEmissivity, BandLST}, img.BandNames())

	dn := []float64{28000, 29000, math.NaN(), 30000}
	red := []float64{0.10, 0.08, 0.05, 0.20}
	nir := []float64{0.30, 0.40, 0.45, 0.22}
	ndvi := make([]float64, 4)
	min, max := math.Inf(1), math.Inf(-1)
	for i := range ndvi {
		ndvi[i] = (nir[i] - red[i]) / (nir[i] + red[i])
		min = math.Min(min, ndvi[i])
		max = math.Max(max, ndvi[i])
	}
	assert.InDelta(t, min, res.NDVIStats.Min, 1e-12)
	assert.InDelta(t, max, res.NDVIStats.Max, 1e-12)

	for i := range dn {
		if math.IsNaN(dn[i]) {
			assert.True(t, math.IsNaN(res.LST.Data[i]), "masked thermal pixel stays masked")
			continue
		}
		toa := calibration.RadianceMult*dn[i] + calibration.RadianceAdd
		bt := calibration.K2/(math.Log(calibration.K1/toa)+1) - 273.15
		pv := math.Pow((ndvi[i]-min)/(max-min), 2)
		em := 0.004*pv + 0.986
		want := bt / (1 + (0.00115*bt/1.4388)*math.Log(em))
		assert.InDelta(t, want, res.LST.Data[i], 1e-6)
		assert.False(t, math.IsInf(res.LST.Data[i], 0))
	}

	out, err := res.Output()
	require.NoError(t, err)
	assert.Equal(t, []string{BandLST}, out.BandNames())
}

func TestRunStopsOnObserverError(t *testing.T) {
	img := lstImage(t)
	boom := errors.New("disk full")
	p := newPipeline(t, WithObserver(func(stage Stage, b *raster.Band) error {
		if stage == StageNDVI {
			return boom
		}
		return nil
	}))
	in, err := NewInput(img, "B10", "B4", "B5", calibration)
	require.NoError(t, err)

	_, err = p.Run(context.Background(), img, in)
	assert.ErrorIs(t, err, boom)
	assert.False(t, img.HasBand(BandPV))
}

func TestRunHonoursCancellation(t *testing.T) {
	img := lstImage(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	in, err := NewInput(img, "B10", "B4", "B5", calibration)
	require.NoError(t, err)

	_, err = newPipeline(t).Run(ctx, img, in)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewInputMissingBand(t *testing.T) {
	_, err := NewInput(lstImage(t), "B11", "B4", "B5", calibration)
	assert.ErrorIs(t, err, raster.ErrBandNotFound)
}

func TestRunReportsFailingStage(t *testing.T) {
	img := raster.NewImage("flat", raster.Grid{Width: 2, Height: 1, CRS: "EPSG:4326"})
	require.NoError(t, img.AddBand(band(t, "B10", 2, 1, 28000, 29000)))
	require.NoError(t, img.AddBand(band(t, "B4", 2, 1, 0.1, 0.1)))
	require.NoError(t, img.AddBand(band(t, "B5", 2, 1, 0.3, 0.3)))
	in, err := NewInput(img, "B10", "B4", "B5", calibration)
	require.NoError(t, err)

	_, err = newPipeline(t).Run(context.Background(), img, in)
	require.ErrorIs(t, err, ErrDegenerateStatistics)
	assert.Contains(t, err.Error(), "pv stage")
	assert.True(t, img.HasBand(BandNDVI), "bands of completed stages stay on the image")
}
