package earthengine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/forest-guardian/landsat-lst/internal/imagery"
	"github.com/paulmach/orb/geojson"
	"github.com/sirupsen/logrus"
)

type listImagesResponse struct {
	Images []struct {
		Name       string                 `json:"name"`
		ID         string                 `json:"id"`
		StartTime  time.Time              `json:"startTime"`
		Properties map[string]interface{} `json:"properties"`
		Bands      []struct {
			ID string `json:"id"`
		} `json:"bands"`
	} `json:"images"`
	NextPageToken string `json:"nextPageToken"`
}

// FilterCollection lists the images of a collection intersecting the region
// inside [Start, End) with a cloud cover below the threshold.
func (c *Client) FilterCollection(ctx context.Context, q imagery.CollectionQuery) ([]imagery.Scene, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	hc, err := c.authorized()
	if err != nil {
		return nil, err
	}

	region, err := json.Marshal(geojson.NewGeometry(q.Region.ToPolygon()))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal region: %w", err)
	}
	params := url.Values{}
	params.Set("startTime", q.Start.UTC().Format(time.RFC3339))
	params.Set("endTime", q.End.UTC().Format(time.RFC3339))
	params.Set("region", string(region))
	params.Set("filter", fmt.Sprintf("CLOUD_COVER < %g", q.MaxCloudCover))
	params.Set("view", "FULL")
	params.Set("pageSize", "100")

	key := c.listings.Key(q.Collection, params.Encode())
	if scenes, ok := c.listings.Get(key); ok {
		c.log.WithField("collection", q.Collection).Debug("using cached scene listing")
		return scenes, nil
	}

	var scenes []imagery.Scene
	for {
		var page listImagesResponse
		endpoint := c.assetURL(q.Collection) + ":listImages?" + params.Encode()
		if err := c.doJSON(ctx, hc, http.MethodGet, endpoint, nil, &page); err != nil {
			return nil, fmt.Errorf("failed to list images of %s: %w", q.Collection, err)
		}
		for _, img := range page.Images {
			scene := imagery.Scene{
				ID:         img.ID,
				Name:       img.Name,
				StartTime:  img.StartTime,
				Properties: img.Properties,
			}
			for _, b := range img.Bands {
				scene.Bands = append(scene.Bands, b.ID)
			}
			scenes = append(scenes, scene)
		}
		if page.NextPageToken == "" {
			break
		}
		params.Set("pageToken", page.NextPageToken)
	}

	c.log.WithFields(logrus.Fields{"collection": q.Collection, "scenes": len(scenes)}).Info("collection filtered")
	if err := c.listings.Set(key, scenes); err != nil {
		c.log.WithError(err).Warn("failed to cache scene listing")
	}
	return scenes, nil
}
