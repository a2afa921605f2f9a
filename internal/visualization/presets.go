package visualization

import (
	"errors"
	"fmt"
	"sort"

	"github.com/forest-guardian/landsat-lst/internal/properties"
	"github.com/forest-guardian/landsat-lst/internal/render"
)

var ErrUnknownPreset = errors.New("unknown visualization preset")

// Presets maps a preset name (natural, ndvi, lst, toa, ...) to its rendering
// parameters.
type Presets map[string]render.Params

func PresetsFromConfig(presets map[string]properties.Preset) Presets {
	out := make(Presets, len(presets))
	for name, p := range presets {
		out[name] = render.Params{
			Bands:   append([]string(nil), p.Bands...),
			Min:     p.Min,
			Max:     p.Max,
			Gamma:   p.Gamma,
			Palette: append([]string(nil), p.Palette...),
		}
	}
	return out
}

func (p Presets) Get(name string) (render.Params, error) {
	params, ok := p[name]
	if !ok {
		return render.Params{}, fmt.Errorf("%w: %q (available: %v)", ErrUnknownPreset, name, p.Names())
	}
	return params, nil
}

func (p Presets) Names() []string {
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
