package render

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"
	"math"

	"github.com/fogleman/gg"
	"github.com/forest-guardian/landsat-lst/internal/raster"
	"github.com/nfnt/resize"
)

// Params describes how band values map to colors. One band with a palette
// produces a color ramp, one band without palette a gray ramp, three bands an
// RGB composite.
type Params struct {
	Bands   []string `json:"bands"`
	Min     float64  `json:"min"`
	Max     float64  `json:"max"`
	Gamma   float64  `json:"gamma,omitempty"`
	Palette []string `json:"palette,omitempty"`
}

func (p Params) Validate() error {
	if len(p.Bands) != 1 && len(p.Bands) != 3 {
		return fmt.Errorf("visualization needs 1 or 3 bands, got %d", len(p.Bands))
	}
	if p.Max <= p.Min {
		return fmt.Errorf("visualization max %v must be greater than min %v", p.Max, p.Min)
	}
	if len(p.Palette) > 0 && len(p.Bands) != 1 {
		return fmt.Errorf("a palette can only be applied to a single band")
	}
	if p.Gamma < 0 {
		return fmt.Errorf("gamma must be positive, got %v", p.Gamma)
	}
	return nil
}

// stretch maps v into [0, 1] with the min/max window and gamma.
func (p Params) stretch(v float64) float64 {
	t := (v - p.Min) / (p.Max - p.Min)
	t = math.Max(0, math.Min(1, t))
	if p.Gamma > 0 && p.Gamma != 1 {
		t = math.Pow(t, 1/p.Gamma)
	}
	return t
}

// Render draws the selected bands of img. Masked pixels are transparent.
// When maxSize is positive the result is downscaled to fit in a
// maxSize x maxSize box.
func Render(img *raster.Image, p Params, maxSize int) (image.Image, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	bands := make([]*raster.Band, len(p.Bands))
	for i, name := range p.Bands {
		b, err := img.Band(name)
		if err != nil {
			return nil, err
		}
		bands[i] = b
	}

	var ramp []uint8
	if len(p.Palette) > 0 {
		colors, err := GradientRamp(p.Palette)
		if err != nil {
			return nil, err
		}
		ramp = make([]uint8, 0, len(colors)*3)
		for _, c := range colors {
			ramp = append(ramp, c.R, c.G, c.B)
		}
	}

	w, h := img.Grid.Width, img.Grid.Height
	dc := gg.NewContext(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			values := make([]float64, len(bands))
			masked := false
			for i, b := range bands {
				values[i] = b.At(x, y)
				if math.IsNaN(values[i]) {
					masked = true
				}
			}
			if masked {
				continue
			}
			switch {
			case len(bands) == 3:
				dc.SetRGBA255(level(p.stretch(values[0])), level(p.stretch(values[1])), level(p.stretch(values[2])), 255)
			case ramp != nil:
				i := level(p.stretch(values[0])) * 3
				dc.SetRGBA255(int(ramp[i]), int(ramp[i+1]), int(ramp[i+2]), 255)
			default:
				g := level(p.stretch(values[0]))
				dc.SetRGBA255(g, g, g, 255)
			}
			dc.SetPixel(x, y)
		}
	}

	out := dc.Image()
	if maxSize > 0 && (w > maxSize || h > maxSize) {
		out = resize.Thumbnail(uint(maxSize), uint(maxSize), out, resize.NearestNeighbor)
	}
	return out, nil
}

func level(t float64) int {
	return int(math.Round(t * 255))
}

// Legend draws a horizontal color bar with the min and max labels.
func Legend(p Params, title string) (image.Image, error) {
	if len(p.Palette) == 0 {
		return nil, fmt.Errorf("legend needs a palette")
	}
	const width, height, margin = 260.0, 56.0, 10.0
	dc := gg.NewContext(width, height)
	dc.SetRGBA255(255, 255, 255, 220)
	dc.DrawRoundedRectangle(0, 0, width, height, 6)
	dc.Fill()

	grad := gg.NewLinearGradient(margin, 0, width-margin, 0)
	for i, name := range p.Palette {
		c, err := ParseColor(name)
		if err != nil {
			return nil, err
		}
		offset := 0.0
		if len(p.Palette) > 1 {
			offset = float64(i) / float64(len(p.Palette)-1)
		}
		grad.AddColorStop(offset, c)
	}
	dc.SetFillStyle(grad)
	dc.DrawRectangle(margin, 22, width-2*margin, 14)
	dc.Fill()

	dc.SetRGB(0, 0, 0)
	dc.DrawStringAnchored(title, width/2, 12, 0.5, 0.5)
	dc.DrawStringAnchored(formatValue(p.Min), margin, 46, 0, 0.5)
	dc.DrawStringAnchored(formatValue(p.Max), width-margin, 46, 1, 0.5)
	return dc.Image(), nil
}

func formatValue(v float64) string {
	if v == math.Trunc(v) {
		return fmt.Sprintf("%.0f", v)
	}
	return fmt.Sprintf("%.2f", v)
}

func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func DataURL(pngData []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngData)
}
