package geocode

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orgfinder/internal/config"
	"orgfinder/internal/model"
)

func TestNominatimGeocode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))

		switch r.URL.Query().Get("q") {
		case "penn station, Philadelphia, PA":
			w.Write([]byte(`[{"lat": "39.9556", "lon": "-75.1820", "display_name": "30th Street Station"}]`))
		case "broken":
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			w.Write([]byte(`[]`))
		}
	}))
	defer server.Close()

	n := NewNominatim(&config.GeocodingConfig{BaseURL: server.URL + "/", UserAgent: "test-agent", Timeout: time.Second}, nil)
	ctx := context.Background()

	c, err := n.Geocode(ctx, "penn station, Philadelphia, PA")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, model.Coordinates{Latitude: 39.9556, Longitude: -75.182}, *c)

	c, err = n.Geocode(ctx, "nowhereville")
	require.NoError(t, err)
	assert.Nil(t, c)

	_, err = n.Geocode(ctx, "broken")
	assert.ErrorIs(t, err, ErrProvider)
}

type countingGeocoder struct {
	calls  int
	result *model.Coordinates
	err    error
}

func (g *countingGeocoder) Geocode(ctx context.Context, query string) (*model.Coordinates, error) {
	g.calls++
	return g.result, g.err
}

func newTestCache(t *testing.T, next Geocoder) (*RedisCache, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisCache(client, next, time.Hour, "test:geocode:", nil), mr
}

func TestRedisCacheHit(t *testing.T) {
	next := &countingGeocoder{result: &model.Coordinates{Latitude: 39.97, Longitude: -75.13}}
	cache, mr := newTestCache(t, next)
	ctx := context.Background()

	require.NoError(t, cache.Ping(ctx))

	c, err := cache.Geocode(ctx, "Fishtown")
	require.NoError(t, err)
	require.NotNil(t, c)

	c, err = cache.Geocode(ctx, "  fishtown ")
	require.NoError(t, err)
	assert.Equal(t, 39.97, c.Latitude)
	assert.Equal(t, 1, next.calls)

	assert.True(t, mr.Exists("test:geocode:fishtown"))
	assert.Equal(t, time.Hour, mr.TTL("test:geocode:fishtown"))
}

func TestRedisCacheStoresMisses(t *testing.T) {
	next := &countingGeocoder{}
	cache, mr := newTestCache(t, next)
	ctx := context.Background()

	c, err := cache.Geocode(ctx, "nowhereville")
	require.NoError(t, err)
	assert.Nil(t, c)

	c, err = cache.Geocode(ctx, "nowhereville")
	require.NoError(t, err)
	assert.Nil(t, c)
	assert.Equal(t, 1, next.calls)

	val, err := mr.Get("test:geocode:nowhereville")
	require.NoError(t, err)
	assert.Equal(t, missMarker, val)
}

func TestRedisCacheSkipsErrors(t *testing.T) {
	next := &countingGeocoder{err: errors.New("provider down")}
	cache, mr := newTestCache(t, next)
	ctx := context.Background()

	_, err := cache.Geocode(ctx, "kensington")
	require.Error(t, err)
	assert.False(t, mr.Exists("test:geocode:kensington"))

	_, err = cache.Geocode(ctx, "kensington")
	require.Error(t, err)
	assert.Equal(t, 2, next.calls)
}

func TestRedisCacheUnavailable(t *testing.T) {
	next := &countingGeocoder{result: &model.Coordinates{Latitude: 1, Longitude: 2}}
	cache, mr := newTestCache(t, next)
	mr.Close()

	c, err := cache.Geocode(context.Background(), "temple")
	require.NoError(t, err)
	assert.Equal(t, 1.0, c.Latitude)
	assert.Equal(t, 1, next.calls)
}
