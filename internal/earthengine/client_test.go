package earthengine

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/airbusgeo/godal"
	"github.com/forest-guardian/landsat-lst/internal/imagery"
	"github.com/forest-guardian/landsat-lst/internal/geo"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

const (
	collection = "LANDSAT/LC09/C02/T1_TOA"
	sceneID    = "LANDSAT/LC09/C02/T1_TOA/LC09_190031_20240811"
	sceneName  = "projects/earthengine-public/assets/" + sceneID
)

func TestMain(m *testing.M) {
	godal.RegisterAll()
	os.Exit(m.Run())
}

type mockEarthEngine struct {
	server        *httptest.Server
	tokenCalls    atomic.Int32
	pixelCalls    atomic.Int32
	rejectToken   bool
	rejectAssets  bool
	tiff          []byte
	lastPixelsReq pixelsRequest
}

func newMockEarthEngine(t *testing.T) *mockEarthEngine {
	t.Helper()
	m := &mockEarthEngine{}
	m.server = httptest.NewServer(http.HandlerFunc(m.handle))
	t.Cleanup(m.server.Close)
	return m
}

func (m *mockEarthEngine) handle(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/token" {
		m.tokenCalls.Add(1)
		if m.rejectToken {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"error":"invalid_client"}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"tok-1","token_type":"Bearer","expires_in":3600}`)
		return
	}

	if m.rejectAssets || r.Header.Get("Authorization") != "Bearer tok-1" {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"error":{"code":403,"message":"permission denied","status":"PERMISSION_DENIED"}}`)
		return
	}

	switch {
	case r.URL.Path == "/projects/earthengine-public/assets/"+collection:
		fmt.Fprintf(w, `{"type":"IMAGE_COLLECTION","id":%q}`, collection)
	case strings.HasSuffix(r.URL.Path, ":listImages"):
		if r.URL.Query().Get("pageToken") == "" {
			fmt.Fprintf(w, `{"images":[{"name":%q,"id":%q,"startTime":"2024-08-11T09:40:12Z","properties":{"CLOUD_COVER":2.5},"bands":[{"id":"B10"},{"id":"QA_PIXEL"}]}],"nextPageToken":"p2"}`, sceneName, sceneID)
			return
		}
		fmt.Fprint(w, `{"images":[{"name":"projects/earthengine-public/assets/LANDSAT/LC09/C02/T1_TOA/LC09_190031_20240726","id":"LANDSAT/LC09/C02/T1_TOA/LC09_190031_20240726","startTime":"2024-07-26T09:40:05Z","properties":{"CLOUD_COVER":7.1}}]}`)
	case r.URL.Path == "/"+sceneName+":getPixels":
		m.pixelCalls.Add(1)
		_ = json.NewDecoder(r.Body).Decode(&m.lastPixelsReq)
		w.Header().Set("Content-Type", "image/tiff")
		w.Write(m.tiff)
	default:
		http.NotFound(w, r)
	}
}

func (m *mockEarthEngine) client(t *testing.T, cacheDir string) *Client {
	return New(Options{
		BaseURL:      m.server.URL,
		TokenURL:     m.server.URL + "/token",
		ClientID:     "id",
		ClientSecret: "secret",
		Collection:   collection,
		CacheDir:     cacheDir,
	})
}

func TestInitializeAuthenticatesWithoutCachedToken(t *testing.T) {
	mock := newMockEarthEngine(t)
	cacheDir := t.TempDir()

	require.NoError(t, mock.client(t, cacheDir).Initialize(context.Background()))
	assert.Equal(t, int32(1), mock.tokenCalls.Load())

	// the token is now cached, a second client does not authenticate again
	require.NoError(t, mock.client(t, cacheDir).Initialize(context.Background()))
	assert.Equal(t, int32(1), mock.tokenCalls.Load())
}

func TestCachedTokenIsRefreshedAfterExpiring(t *testing.T) {
	mock := newMockEarthEngine(t)
	c := mock.client(t, t.TempDir())
	// valid at handshake, expired (within the oauth2 expiry delta) a second later
	require.NoError(t, c.tokens.Set(c.tokenKey(), oauth2.Token{
		AccessToken: "tok-1",
		TokenType:   "Bearer",
		Expiry:      time.Now().Add(10*time.Second + 500*time.Millisecond),
	}))

	require.NoError(t, c.Initialize(context.Background()))
	assert.Equal(t, int32(0), mock.tokenCalls.Load())

	time.Sleep(time.Second)

	scenes, err := c.FilterCollection(context.Background(), imagery.CollectionQuery{
		Collection: collection,
		Start:      time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC),
		End:        time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Len(t, scenes, 2)
	assert.Equal(t, int32(1), mock.tokenCalls.Load())

	refreshed, ok := c.tokens.Get(c.tokenKey())
	require.True(t, ok)
	assert.True(t, refreshed.Expiry.After(time.Now().Add(time.Hour-time.Minute)))
}

func TestInitializeFailsWithRejectedCredentials(t *testing.T) {
	mock := newMockEarthEngine(t)
	mock.rejectToken = true

	err := mock.client(t, t.TempDir()).Initialize(context.Background())
	assert.ErrorIs(t, err, ErrAuthentication)
}

func TestInitializeRetriesOnlyOnce(t *testing.T) {
	mock := newMockEarthEngine(t)
	mock.rejectAssets = true

	err := mock.client(t, t.TempDir()).Initialize(context.Background())
	assert.ErrorIs(t, err, ErrAuthentication)
	assert.Equal(t, int32(1), mock.tokenCalls.Load())
}

func TestInitializeWithoutCredentials(t *testing.T) {
	mock := newMockEarthEngine(t)
	c := New(Options{BaseURL: mock.server.URL, CacheDir: t.TempDir()})

	err := c.Initialize(context.Background())
	assert.ErrorIs(t, err, ErrAuthentication)
	assert.Equal(t, int32(0), mock.tokenCalls.Load())
}

func TestFilterCollectionFollowsPages(t *testing.T) {
	mock := newMockEarthEngine(t)
	c := mock.client(t, t.TempDir())
	require.NoError(t, c.Initialize(context.Background()))

	q := imagery.CollectionQuery{
		Collection:    collection,
		Region:        orb.Bound{Min: orb.Point{12.4, 41.8}, Max: orb.Point{12.6, 42.0}},
		Start:         time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC),
		End:           time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC),
		MaxCloudCover: 10,
	}
	scenes, err := c.FilterCollection(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, scenes, 2)

	assert.Equal(t, sceneID, scenes[0].ID)
	assert.Equal(t, sceneName, scenes[0].Name)
	assert.Equal(t, []string{"B10", "QA_PIXEL"}, scenes[0].Bands)
	cloud, ok := scenes[1].Property("CLOUD_COVER")
	assert.True(t, ok)
	assert.Equal(t, 7.1, cloud)
}

func TestFilterCollectionRequiresInitialize(t *testing.T) {
	mock := newMockEarthEngine(t)
	_, err := mock.client(t, t.TempDir()).FilterCollection(context.Background(), imagery.CollectionQuery{
		Collection: collection,
		Start:      time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC),
		End:        time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC),
	})
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestComputeGrid(t *testing.T) {
	geographic, err := ComputeGrid(imagery.FetchRequest{
		CRS:    "EPSG:4326",
		Scale:  30,
		Region: orb.Bound{Min: orb.Point{12.4, 41.8}, Max: orb.Point{12.5, 41.85}},
	})
	require.NoError(t, err)
	pixel := geo.MetersToDegrees(30)
	assert.Equal(t, int(math.Ceil(0.1/pixel)), geographic.Width)
	assert.Equal(t, int(math.Ceil(0.05/pixel)), geographic.Height)
	assert.InDelta(t, 12.4, geographic.GeoTransform[0], 1e-12)
	assert.InDelta(t, 41.85, geographic.GeoTransform[3], 1e-12)
	assert.InDelta(t, -pixel, geographic.GeoTransform[5], 1e-15)

	projected, err := ComputeGrid(imagery.FetchRequest{
		CRS:    "EPSG:32633",
		Scale:  30,
		Region: orb.Bound{Min: orb.Point{300000, 4600000}, Max: orb.Point{303000, 4601500}},
	})
	require.NoError(t, err)
	assert.Equal(t, 100, projected.Width)
	assert.Equal(t, 50, projected.Height)

	_, err = ComputeGrid(imagery.FetchRequest{
		CRS:       "EPSG:32633",
		Scale:     30,
		Region:    orb.Bound{Min: orb.Point{300000, 4600000}, Max: orb.Point{303000, 4601500}},
		MaxPixels: 1000,
	})
	assert.ErrorIs(t, err, ErrTooManyPixels)
}

func writeTIFF(t *testing.T, fileName string, width, height int, values []float64) []byte {
	t.Helper()
	ds, err := godal.Create(godal.GTiff, fileName, 1, godal.Float64, width, height)
	require.NoError(t, err)
	require.NoError(t, ds.SetGeoTransform([6]float64{0, 30, 0, 60, 0, -30}))
	require.NoError(t, ds.Bands()[0].SetNoData(-9999))
	require.NoError(t, ds.Bands()[0].Write(0, 0, values, width, height))
	require.NoError(t, ds.Close())
	data, err := os.ReadFile(fileName)
	require.NoError(t, err)
	return data
}

func TestFetchSceneDownloadsOnce(t *testing.T) {
	mock := newMockEarthEngine(t)
	mock.tiff = writeTIFF(t, filepath.Join(t.TempDir(), "b10.tif"), 3, 2, []float64{1, 2, 3, 4, -9999, 6})
	cacheDir := t.TempDir()
	c := mock.client(t, cacheDir)
	require.NoError(t, c.Initialize(context.Background()))

	scene := imagery.Scene{ID: sceneID, Name: sceneName, Bands: []string{"B10", "QA_PIXEL"}}
	req := imagery.FetchRequest{
		Bands:  []string{"B10"},
		CRS:    "EPSG:32633",
		Scale:  30,
		Region: orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{90, 60}},
	}
	img, err := c.FetchScene(context.Background(), scene, req)
	require.NoError(t, err)

	assert.Equal(t, []string{"B10"}, mock.lastPixelsReq.BandIDs)
	assert.Equal(t, "GEO_TIFF", mock.lastPixelsReq.FileFormat)
	assert.Equal(t, 3, mock.lastPixelsReq.Grid.Dimensions.Width)
	assert.Equal(t, "EPSG:32633", mock.lastPixelsReq.Grid.CRSCode)

	b10, err := img.Band("B10")
	require.NoError(t, err)
	assert.Equal(t, 6.0, b10.At(2, 1))
	assert.False(t, b10.Valid(1, 1), "no-data becomes masked")

	_, err = c.FetchScene(context.Background(), scene, req)
	require.NoError(t, err)
	assert.Equal(t, int32(1), mock.pixelCalls.Load())
}

func TestFetchSceneRejectsUnknownBand(t *testing.T) {
	mock := newMockEarthEngine(t)
	c := mock.client(t, t.TempDir())
	require.NoError(t, c.Initialize(context.Background()))

	_, err := c.FetchScene(context.Background(), imagery.Scene{ID: sceneID, Name: sceneName, Bands: []string{"B10"}}, imagery.FetchRequest{
		Bands:  []string{"B4"},
		CRS:    "EPSG:32633",
		Scale:  30,
		Region: orb.Bound{Max: orb.Point{90, 60}},
	})
	assert.Error(t, err)
}
