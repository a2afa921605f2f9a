package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/forest-guardian/landsat-lst/internal/delivery"
	"github.com/forest-guardian/landsat-lst/internal/imagery"
	"github.com/forest-guardian/landsat-lst/internal/properties"
	"github.com/forest-guardian/landsat-lst/internal/visualization"
	"github.com/sirupsen/logrus"
)

type Notifier interface {
	SendError(ctx context.Context, message string) error
	SendSuccess(ctx context.Context, message string) error
}

// ServiceFactory connects to the imagery platform. It is only called by the
// operations that need remote data.
type ServiceFactory func(ctx context.Context) (imagery.Service, error)

// App binds the CLI operations to a configuration.
type App struct {
	Config   properties.Config
	Service  ServiceFactory
	Notifier Notifier
	Progress bool
}

func (a *App) notifyError(ctx context.Context, err error) {
	if !a.Config.Notify || a.Notifier == nil {
		return
	}
	if nerr := a.Notifier.SendError(ctx, err.Error()); nerr != nil {
		PrintError(fmt.Sprintf("Failed to send notification: %s", nerr.Error()))
	}
}

func (a *App) notifySuccess(ctx context.Context, message string) {
	if !a.Config.Notify || a.Notifier == nil {
		return
	}
	if err := a.Notifier.SendSuccess(ctx, message); err != nil {
		PrintError(fmt.Sprintf("Failed to send notification: %s", err.Error()))
	}
}

// ComputeLST runs the full computation and prints where the artifacts went.
func (a *App) ComputeLST(ctx context.Context, runID string) error {
	PrintWarning(fmt.Sprintf("- A vector mask (.geojson, .shp or .gpkg) should be present in %s.\n- Only the first file in lexical order is used.", a.Config.VectorMaskDir))

	svc, err := a.Service(ctx)
	if err != nil {
		a.notifyError(ctx, err)
		return err
	}
	started := time.Now()
	res, err := delivery.ComputeLST(ctx, a.Config, svc, delivery.Options{RunID: runID, Progress: a.Progress})
	if err != nil {
		a.notifyError(ctx, err)
		return err
	}

	info := res.Acquisition.Info
	stats := res.LST.LST
	message := fmt.Sprintf("Successful LST computation!\nScene: %s\n%s\nValid pixels: %d of %d\nResults located at: %s\nTook: %s",
		res.Acquisition.Scene.ID, info.String(), stats.ValidCount(), len(stats.Data), res.OutputDir,
		time.Since(started).Round(time.Millisecond))
	PrintSuccess(message)
	for _, name := range []string{delivery.NaturalMapFile, delivery.LSTMapFile, delivery.GeoTIFFFile, delivery.ReportFile} {
		printItem("%s/%s", res.OutputDir, name)
	}
	a.notifySuccess(ctx, message)
	return nil
}

func (a *App) ListScenes(ctx context.Context) error {
	svc, err := a.Service(ctx)
	if err != nil {
		return err
	}
	scenes, err := delivery.ListScenes(ctx, a.Config, svc)
	if err != nil {
		return err
	}
	fmt.Fprintf(Output, "\n%sScenes between %s and %s with cloud cover below %v%%:%s\n",
		ColorGreen, a.Config.StartDate, a.Config.EndDate, a.Config.CloudCoverThreshold, ColorReset)
	for i, s := range scenes {
		cloud, _ := s.Property("CLOUD_COVER")
		marker := ""
		if i == 0 {
			marker = " (selected)"
		}
		printItem("%s  %s  cloud %.2f%%%s", s.StartTime.UTC().Format(time.DateTime), s.ID, cloud, marker)
	}
	return nil
}

func (a *App) DescribeMask() error {
	roi, err := delivery.DescribeMask(a.Config)
	if err != nil {
		return err
	}
	c := roi.CentroidLonLat()
	b := roi.BoundLonLat()
	fmt.Fprintf(Output, "\n%sVector mask %s:%s\n", ColorGreen, roi.Source, ColorReset)
	printItem("features: %d", len(roi.Features))
	printItem("polygons: %d", len(roi.Coordinates()))
	printItem("centroid: %.6f, %.6f (lon, lat)", c[0], c[1])
	printItem("bounds: %.6f, %.6f, %.6f, %.6f", b.Min[0], b.Min[1], b.Max[0], b.Max[1])
	for i, f := range roi.Features {
		logrus.WithFields(logrus.Fields{"feature": i, "properties": f.Properties}).Debug("mask feature")
	}
	return nil
}

func (a *App) ListPresets() {
	presets := visualization.PresetsFromConfig(a.Config.Presets)
	fmt.Fprintf(Output, "\n%sVisualization presets:%s\n", ColorGreen, ColorReset)
	for _, name := range presets.Names() {
		p := presets[name]
		line := fmt.Sprintf("%s: bands %s, range [%v, %v]", name, strings.Join(p.Bands, ","), p.Min, p.Max)
		if p.Gamma != 0 {
			line += fmt.Sprintf(", gamma %v", p.Gamma)
		}
		if len(p.Palette) > 0 {
			line += ", palette " + strings.Join(p.Palette, ",")
		}
		printItem("%s", line)
	}
}
