package decentlab_test

import (
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/eawag-uwo/sensorhealth/internal/decentlab"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const twoSeriesResponse = `{"results":[{"statement_id":0,"series":[
	{"name":"measurements","tags":{"uqk":"317.distance"},"columns":["time","value"],"values":[[1560038400000,1.5],[1560039000000,null]]},
	{"name":"measurements","tags":{"uqk":"317.battery"},"columns":["time","value"],"values":[[1560038400000,3.6]]}
]}]}`

func newTestClient(t *testing.T, srv *httptest.Server) *decentlab.Client {
	t.Helper()
	client, err := decentlab.NewClient(&decentlab.ClientConfig{
		Logger:          logger,
		APIKey:          "secret",
		BaseURL:         srv.URL,
		HTTPClient:      srv.Client(),
		MaxTries:        3,
		InitialInterval: time.Millisecond,
	})
	require.NoError(t, err)
	return client
}

func TestSensorHealth_Decentlab_Client_Query(t *testing.T) {
	t.Parallel()

	t.Run("request and points", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/datasources/proxy/1/query", r.URL.Path)
			assert.Equal(t, "main", r.URL.Query().Get("db"))
			assert.Equal(t, "ms", r.URL.Query().Get("epoch"))
			assert.Contains(t, r.URL.Query().Get("q"), "node =~ /^317$/")
			assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
			_, _ = w.Write([]byte(twoSeriesResponse))
		}))
		defer srv.Close()

		points, err := newTestClient(t, srv).Query(t.Context(), decentlab.Query{Device: "317"})
		require.NoError(t, err)
		require.Len(t, points, 3)

		t0 := time.Date(2019, 6, 9, 0, 0, 0, 0, time.UTC)
		assert.Equal(t, decentlab.Point{Time: t0, Series: "317.battery", Value: 3.6}, points[0])
		assert.Equal(t, decentlab.Point{Time: t0, Series: "317.distance", Value: 1.5}, points[1])
		assert.Equal(t, t0.Add(10*time.Minute), points[2].Time)
		assert.True(t, math.IsNaN(points[2].Value))
	})

	t.Run("no series", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"results":[{"statement_id":0}]}`))
		}))
		defer srv.Close()

		_, err := newTestClient(t, srv).Query(t.Context(), decentlab.Query{})
		require.ErrorIs(t, err, decentlab.ErrNoSeries)
	})

	t.Run("retries server errors", func(t *testing.T) {
		t.Parallel()
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) < 3 {
				http.Error(w, "busy", http.StatusServiceUnavailable)
				return
			}
			_, _ = w.Write([]byte(twoSeriesResponse))
		}))
		defer srv.Close()

		points, err := newTestClient(t, srv).Query(t.Context(), decentlab.Query{})
		require.NoError(t, err)
		assert.Len(t, points, 3)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("client errors are not retried", func(t *testing.T) {
		t.Parallel()
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			http.Error(w, "bad token", http.StatusUnauthorized)
		}))
		defer srv.Close()

		_, err := newTestClient(t, srv).Query(t.Context(), decentlab.Query{})
		require.ErrorContains(t, err, "401")
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("query error", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"results":[{"statement_id":0,"error":"invalid regex"}]}`))
		}))
		defer srv.Close()

		_, err := newTestClient(t, srv).Query(t.Context(), decentlab.Query{})
		require.ErrorContains(t, err, "invalid regex")
	})
}

func TestSensorHealth_Decentlab_ClientConfig(t *testing.T) {
	t.Parallel()
	_, err := decentlab.NewClient(&decentlab.ClientConfig{Logger: logger, APIKey: "k"})
	require.ErrorContains(t, err, "domain is required")
	_, err = decentlab.NewClient(&decentlab.ClientConfig{Logger: logger, Domain: "x.decentlab.com"})
	require.ErrorContains(t, err, "api key is required")
}
