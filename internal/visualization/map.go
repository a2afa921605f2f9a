// Package visualization writes self-contained Leaflet maps with rendered
// raster overlays on top of an OpenStreetMap base layer.
package visualization

import (
	"context"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"

	"github.com/forest-guardian/landsat-lst/internal/imagery"
	"github.com/forest-guardian/landsat-lst/internal/raster"
	"github.com/forest-guardian/landsat-lst/internal/render"
	"github.com/paulmach/orb"
	"github.com/sirupsen/logrus"
)

var createFile = func(path string) (io.WriteCloser, error) {
	return os.Create(path)
}

// TileProvider turns an image and rendering parameters into something a map
// can display. imagery.Service implementations satisfy it.
type TileProvider interface {
	GetTileHandle(ctx context.Context, img *raster.Image, params render.Params) (*imagery.TileHandle, error)
}

type Layer struct {
	Name   string              `json:"name"`
	Handle *imagery.TileHandle `json:"handle"`
}

// Map is an in-memory description of the HTML page. Center is lon/lat.
type Map struct {
	Center orb.Point
	Zoom   int
	Layers []Layer
}

func NewMap(center orb.Point, zoom int) *Map {
	return &Map{Center: center, Zoom: zoom}
}

func (m *Map) AddLayer(ctx context.Context, svc TileProvider, img *raster.Image, params render.Params, name string) error {
	handle, err := svc.GetTileHandle(ctx, img, params)
	if err != nil {
		return fmt.Errorf("failed to get tile handle for layer %s: %w", name, err)
	}
	if handle.Kind != imagery.HandleImage && handle.Kind != imagery.HandleTiles {
		return fmt.Errorf("unsupported tile handle kind %q", handle.Kind)
	}
	m.Layers = append(m.Layers, Layer{Name: name, Handle: handle})
	return nil
}

type pageData struct {
	Title  string
	Lat    float64
	Lon    float64
	Zoom   int
	Layers []Layer
}

// Save writes the map as a single HTML file. Overlays are embedded as data
// URLs so the page only needs network access for Leaflet and the base map.
func (m *Map) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return fmt.Errorf("failed to create map folder: %w", err)
	}
	file, err := createFile(path)
	if err != nil {
		return fmt.Errorf("failed to create map file: %w", err)
	}

	title := "Landsat map"
	if len(m.Layers) > 0 {
		title = m.Layers[len(m.Layers)-1].Name
	}
	data := pageData{Title: title, Lat: m.Center[1], Lon: m.Center[0], Zoom: m.Zoom, Layers: m.Layers}
	if err := pageTemplate.Execute(file, data); err != nil {
		file.Close()
		return fmt.Errorf("failed to render map %s: %w", path, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close map %s: %w", path, err)
	}
	logrus.WithField("file", path).Info("map has been saved")
	return nil
}

// Mapper builds maps centred on the region of interest.
type Mapper struct {
	svc     TileProvider
	presets Presets
	center  orb.Point
	zoom    int
}

func NewMapper(svc TileProvider, presets Presets, center orb.Point, zoom int) *Mapper {
	return &Mapper{svc: svc, presets: presets, center: center, zoom: zoom}
}

// SetNewMap adds img rendered with the named preset to m and saves it to
// path. A nil m starts a fresh map. A nil img only initialises the map.
func (v *Mapper) SetNewMap(ctx context.Context, m *Map, img *raster.Image, preset, name, path string) (*Map, error) {
	if m == nil {
		logrus.WithFields(logrus.Fields{"lon": v.center[0], "lat": v.center[1], "zoom": v.zoom}).Debug("setting initial map")
		m = NewMap(v.center, v.zoom)
	}
	if img == nil {
		return m, nil
	}
	params, err := v.presets.Get(preset)
	if err != nil {
		return nil, err
	}
	if err := m.AddLayer(ctx, v.svc, img, params, name); err != nil {
		return nil, err
	}
	if err := m.Save(path); err != nil {
		return nil, err
	}
	return m, nil
}

var pageTemplate = template.Must(template.New("map").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>{{.Title}}</title>
<link rel="stylesheet" href="https://unpkg.com/leaflet@1.9.4/dist/leaflet.css">
<script src="https://unpkg.com/leaflet@1.9.4/dist/leaflet.js"></script>
<style>
html, body, #map { height: 100%; margin: 0; }
.legend { background: white; padding: 4px; border-radius: 4px; }
</style>
</head>
<body>
<div id="map"></div>
<script>
var map = L.map("map").setView([{{.Lat}}, {{.Lon}}], {{.Zoom}});
var base = L.tileLayer("https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png", {
  maxZoom: 19,
  attribution: "&copy; OpenStreetMap contributors"
}).addTo(map);
var overlays = {};
var layers = {{.Layers}};
layers.forEach(function (layer) {
  var h = layer.handle;
  var overlay;
  if (h.kind === "tiles") {
    overlay = L.tileLayer(h.url, {attribution: h.attribution});
  } else {
    overlay = L.imageOverlay(h.url, [[h.bounds[1], h.bounds[0]], [h.bounds[3], h.bounds[2]]], {attribution: h.attribution});
  }
  overlay.addTo(map);
  overlays[layer.name] = overlay;
  if (h.legend_url) {
    var legend = L.control({position: "bottomright"});
    legend.onAdd = function () {
      var div = L.DomUtil.create("div", "legend");
      var img = document.createElement("img");
      img.src = h.legend_url;
      div.appendChild(img);
      return div;
    };
    legend.addTo(map);
  }
});
L.control.layers({"OpenStreetMap": base}, overlays).addTo(map);
</script>
</body>
</html>
`))
