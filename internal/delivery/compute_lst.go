package delivery

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/forest-guardian/landsat-lst/internal/imagery"
	"github.com/forest-guardian/landsat-lst/internal/landsat"
	"github.com/forest-guardian/landsat-lst/internal/lst"
	"github.com/forest-guardian/landsat-lst/internal/properties"
	"github.com/forest-guardian/landsat-lst/internal/raster"
	"github.com/forest-guardian/landsat-lst/internal/vectormask"
	"github.com/forest-guardian/landsat-lst/internal/visualization"
	"github.com/forest-guardian/landsat-lst/output"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	NaturalMapFile = "landsat_natural_image_map.html"
	LSTMapFile     = "landsat_LST.html"
	GeoTIFFFile    = "lst.tif"
	PreviewFile    = "lst.png"
	ReportFile     = "report.json"
)

type Options struct {
	// RunID names the output folder. A random one is used when empty.
	RunID    string
	Progress bool
}

type Result struct {
	RunID       string
	OutputDir   string
	ROI         *vectormask.ROI
	Acquisition *landsat.Acquisition
	LST         *lst.Result
	Report      *output.Report
}

// ComputeLST runs mask loading, scene acquisition, the LST pipeline and the
// map exports. Every failure is returned as a *StageError.
func ComputeLST(ctx context.Context, cfg properties.Config, svc imagery.Service, opts Options) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, stageError(StepConfiguration, err)
	}
	start, end, err := cfg.DateRange()
	if err != nil {
		return nil, stageError(StepConfiguration, err)
	}

	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	dir := filepath.Join(cfg.OutputDir, runID)
	log := logrus.WithField("run", runID)
	report := &output.Report{
		RunID:      runID,
		StartedAt:  time.Now().UTC(),
		Collection: cfg.Collection,
		StartDate:  cfg.StartDate,
		EndDate:    cfg.EndDate,
		Steps:      map[string]string{},
		Artifacts:  map[string]string{},
	}
	res := &Result{RunID: runID, OutputDir: dir, Report: report}

	step := func(name string) func() {
		started := time.Now()
		return func() {
			took := time.Since(started).Round(time.Millisecond)
			report.Steps[name] = took.String()
			log.WithFields(logrus.Fields{"stage": name, "duration": took}).Info("step finished")
		}
	}

	done := step(StepVectorMask)
	roi, err := vectormask.Load(cfg.VectorMaskDir, cfg.TargetCRS)
	if err != nil {
		return nil, stageError(StepVectorMask, err)
	}
	res.ROI = roi
	report.Region = regionSummary(roi)
	done()

	done = step(StepAcquisition)
	acq, err := landsat.Acquire(ctx, svc, landsat.Params{
		Collection:    cfg.Collection,
		Region:        roi.Region(),
		RegionLonLat:  roi.BoundLonLat(),
		Start:         start,
		End:           end,
		MaxCloudCover: cfg.CloudCoverThreshold,
		CRS:           cfg.TargetCRS,
		Scale:         cfg.ExportScale,
		MaxPixels:     cfg.MaxPixels,
		Bands:         cfg.Bands.All(),
		ThermalBand:   cfg.Bands.Thermal,
		QABand:        cfg.Bands.QA,
	})
	if err != nil {
		return nil, stageError(StepAcquisition, err)
	}
	res.Acquisition = acq
	report.SceneID = acq.Scene.ID
	report.Scene = acq.Info
	report.Calibration = acq.Calibration
	report.Candidates = acq.Candidates
	if cloud, ok := acq.Scene.Property("CLOUD_COVER"); ok {
		report.CloudCover = &cloud
	}
	done()

	mapper := visualization.NewMapper(svc, visualization.PresetsFromConfig(cfg.Presets), roi.CentroidLonLat(), cfg.MapZoomStart)
	mission := acq.Info.Mission()

	done = step(StepNaturalMap)
	naturalPath := filepath.Join(dir, NaturalMapFile)
	if _, err := mapper.SetNewMap(ctx, nil, acq.Image, "natural", mission+" Natural Color", naturalPath); err != nil {
		return nil, stageError(StepNaturalMap, err)
	}
	report.Artifacts["natural_map"] = NaturalMapFile
	done()

	done = step(StepPipeline)
	img := acq.Image
	lastStage := time.Now()
	pipeline, err := lst.New(lst.Constants(cfg.Constants), svc,
		lst.WithWorkers(cfg.Workers),
		lst.WithProgress(opts.Progress),
		lst.WithSolarCorrection(cfg.TOASolarCorrection),
		lst.WithObserver(func(stage lst.Stage, band *raster.Band) error {
			path, err := output.WriteStageDump(dir, string(stage), img.Grid, band)
			if err != nil {
				return err
			}
			now := time.Now()
			report.Stages = append(report.Stages, output.StageSummary{
				Stage:    string(stage),
				Band:     band.Name,
				Stats:    raster.Reduce(band),
				Duration: now.Sub(lastStage),
				Dump:     filepath.Base(path),
			})
			lastStage = now
			return nil
		}),
	)
	if err != nil {
		return nil, stageError(StepPipeline, err)
	}
	in, err := lst.NewInput(img, cfg.Bands.Thermal, cfg.Bands.Red, cfg.Bands.NIR, acq.Calibration)
	if err != nil {
		return nil, stageError(StepPipeline, err)
	}
	lstResult, err := pipeline.Run(ctx, img, in)
	if err != nil {
		return nil, stageError(StepPipeline, err)
	}
	res.LST = lstResult
	done()

	if len(cfg.Expressions) > 0 {
		done = step(StepExpressions)
		if err := evaluateExpressions(ctx, svc, img, dir, cfg.Expressions, report); err != nil {
			return nil, stageError(StepExpressions, err)
		}
		done()
	}

	done = step(StepLSTMap)
	lstImage, err := lstResult.Output()
	if err != nil {
		return nil, stageError(StepLSTMap, err)
	}
	if _, err := mapper.SetNewMap(ctx, nil, lstImage, "lst", mission+" LST Color", filepath.Join(dir, LSTMapFile)); err != nil {
		return nil, stageError(StepLSTMap, err)
	}
	report.Artifacts["lst_map"] = LSTMapFile
	done()

	done = step(StepExport)
	if err := export(dir, cfg, lstImage, report); err != nil {
		return nil, stageError(StepExport, err)
	}
	done()

	return res, nil
}

func evaluateExpressions(ctx context.Context, svc imagery.Service, img *raster.Image, dir string, expressions []properties.Expression, report *output.Report) error {
	for _, e := range expressions {
		started := time.Now()
		band, err := svc.EvaluateExpression(ctx, img, e.Name, e.Expression, nil)
		if err != nil {
			return fmt.Errorf("%s: %w", e.Name, err)
		}
		if err := img.AddBand(band); err != nil {
			return err
		}
		path, err := output.WriteStageDump(dir, e.Name, img.Grid, band)
		if err != nil {
			return err
		}
		report.Stages = append(report.Stages, output.StageSummary{
			Stage:    "expression",
			Band:     band.Name,
			Stats:    raster.Reduce(band),
			Duration: time.Since(started),
			Dump:     filepath.Base(path),
		})
	}
	return nil
}

func export(dir string, cfg properties.Config, lstImage *raster.Image, report *output.Report) error {
	if err := output.WriteGeoTIFF(filepath.Join(dir, GeoTIFFFile), lstImage, lst.BandLST); err != nil {
		return err
	}
	report.Artifacts["geotiff"] = GeoTIFFFile

	params, err := visualization.PresetsFromConfig(cfg.Presets).Get("lst")
	if err != nil {
		return err
	}
	if err := output.WritePreview(filepath.Join(dir, PreviewFile), lstImage, params, "LST (°C)", cfg.MaxOverlaySize); err != nil {
		return err
	}
	report.Artifacts["preview"] = PreviewFile

	report.FinishedAt = time.Now().UTC()
	report.Artifacts["report"] = ReportFile
	return output.WriteReport(filepath.Join(dir, ReportFile), report)
}

func regionSummary(roi *vectormask.ROI) output.RegionSummary {
	b := roi.BoundLonLat()
	c := roi.CentroidLonLat()
	return output.RegionSummary{
		Source:      roi.Source,
		CRS:         roi.CRS,
		Features:    len(roi.Features),
		CentroidLon: c[0],
		CentroidLat: c[1],
		Bounds:      [4]float64{b.Min[0], b.Min[1], b.Max[0], b.Max[1]},
	}
}
