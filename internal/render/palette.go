package render

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"
)

var namedColors = map[string]color.RGBA{
	"black":     {0, 0, 0, 255},
	"white":     {255, 255, 255, 255},
	"red":       {255, 0, 0, 255},
	"green":     {0, 128, 0, 255},
	"darkgreen": {0, 100, 0, 255},
	"lime":      {0, 255, 0, 255},
	"blue":      {0, 0, 255, 255},
	"yellow":    {255, 255, 0, 255},
	"orange":    {255, 165, 0, 255},
	"purple":    {128, 0, 128, 255},
	"cyan":      {0, 255, 255, 255},
	"magenta":   {255, 0, 255, 255},
	"gray":      {128, 128, 128, 255},
	"brown":     {165, 42, 42, 255},
}

// ParseColor accepts CSS color names and hex strings with or without '#'.
func ParseColor(s string) (color.RGBA, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if c, ok := namedColors[s]; ok {
		return c, nil
	}
	hex := strings.TrimPrefix(s, "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 {
		return color.RGBA{}, fmt.Errorf("unknown color %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("unknown color %q", s)
	}
	return color.RGBA{uint8(v >> 16), uint8(v >> 8), uint8(v), 255}, nil
}

func lerp(a, b uint8, t float64) uint8 {
	return uint8(float64(a) + (float64(b)-float64(a))*t + 0.5)
}

// GradientRamp interpolates the palette into a ramp of 256 colors. The first
// and last entries are exactly the first and last palette colors.
func GradientRamp(palette []string) ([]color.RGBA, error) {
	if len(palette) == 0 {
		return nil, fmt.Errorf("empty palette")
	}
	colors := make([]color.RGBA, len(palette))
	for i, name := range palette {
		c, err := ParseColor(name)
		if err != nil {
			return nil, err
		}
		colors[i] = c
	}

	ramp := make([]color.RGBA, 256)
	if len(colors) == 1 {
		for i := range ramp {
			ramp[i] = colors[0]
		}
		return ramp, nil
	}

	bins := float64(len(colors) - 1)
	for i := range ramp {
		pos := float64(i) / 255 * bins
		section := int(pos)
		if section >= len(colors)-1 {
			section = len(colors) - 2
		}
		t := pos - float64(section)
		a, b := colors[section], colors[section+1]
		ramp[i] = color.RGBA{lerp(a.R, b.R, t), lerp(a.G, b.G, t), lerp(a.B, b.B, t), 255}
	}
	return ramp, nil
}
