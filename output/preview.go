package output

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fogleman/gg"
	"github.com/forest-guardian/landsat-lst/internal/raster"
	"github.com/forest-guardian/landsat-lst/internal/render"
)

// WritePreview saves a PNG with the rendered image on a white background and
// its legend underneath, for viewing without a browser.
func WritePreview(path string, img *raster.Image, params render.Params, title string, maxSize int) error {
	rendered, err := render.Render(img, params, maxSize)
	if err != nil {
		return err
	}
	width, height := rendered.Bounds().Dx(), rendered.Bounds().Dy()

	legendHeight, legendWidth := 0, 0
	dcLegend, err := legendImage(params, title)
	if err != nil {
		return err
	}
	if dcLegend != nil {
		legendHeight = dcLegend.Height() + 10
		legendWidth = dcLegend.Width()
	}
	canvasWidth := width
	if legendWidth > canvasWidth {
		canvasWidth = legendWidth
	}

	dc := gg.NewContext(canvasWidth, height+legendHeight+20)
	dc.SetRGB(1, 1, 1)
	dc.Clear()
	dc.DrawImage(rendered, 0, 0)
	if dcLegend != nil {
		dc.DrawImage(dcLegend.Image(), 0, height+10)
	} else {
		dc.SetRGB(0, 0, 0)
		dc.DrawStringAnchored(title, 10, float64(height+10), 0, 0.5)
	}

	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return fmt.Errorf("failed to create output folder: %w", err)
	}
	if err := dc.SavePNG(path); err != nil {
		return fmt.Errorf("failed to save preview: %w", err)
	}
	return nil
}

func legendImage(params render.Params, title string) (*gg.Context, error) {
	if len(params.Palette) == 0 {
		return nil, nil
	}
	legend, err := render.Legend(params, title)
	if err != nil {
		return nil, err
	}
	return gg.NewContextForImage(legend), nil
}
