package geocoding

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/akolanti/ChatAnalyzer/internal/config"
	"github.com/akolanti/ChatAnalyzer/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNominatim_Geocode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "chatanalyzer-test", r.Header.Get("User-Agent"))
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		if r.URL.Query().Get("q") == "nowhere" {
			_, _ = w.Write([]byte(`[]`))
			return
		}
		_, _ = w.Write([]byte(`[{"lat":"45.4862","lon":"9.2046","display_name":"Stazione Centrale, Milano"}]`))
	}))
	defer srv.Close()

	n := NewNominatim(srv.URL, "chatanalyzer-test")
	res, err := n.Geocode(context.Background(), "Stazione Centrale Milano")
	require.NoError(t, err)
	assert.InDelta(t, 45.4862, res.Point.Lat, 1e-9)
	assert.InDelta(t, 9.2046, res.Point.Lon, 1e-9)
	assert.Equal(t, "Stazione Centrale, Milano", res.Address)

	_, err = n.Geocode(context.Background(), "nowhere")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestNominatim_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "2")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewNominatim(srv.URL, "ua").Geocode(context.Background(), "Milano")
	var callErr *llm.CallError
	require.True(t, errors.As(err, &callErr))
	assert.Equal(t, llm.RateLimited, callErr.Class)
}

func TestGoogle_Statuses(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		notFound bool
		class    llm.ErrorClass
	}{
		{"zero results", `{"status":"ZERO_RESULTS","results":[]}`, true, ""},
		{"quota", `{"status":"OVER_QUERY_LIMIT"}`, false, llm.RateLimited},
		{"bad key", `{"status":"REQUEST_DENIED","error_message":"The provided API key is invalid."}`, false, llm.Fatal},
		{"unknown", `{"status":"UNKNOWN_ERROR"}`, false, llm.Transient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewGoogle(srv.URL, "key").Geocode(context.Background(), "Milano")
			require.Error(t, err)
			if tt.notFound {
				assert.True(t, errors.Is(err, ErrNotFound))
				return
			}
			var callErr *llm.CallError
			require.True(t, errors.As(err, &callErr))
			assert.Equal(t, tt.class, callErr.Class)
		})
	}
}

func TestGoogle_Geocode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.URL.Query().Get("key"))
		assert.Equal(t, "Piazza Duomo, Milano", r.URL.Query().Get("address"))
		_, _ = w.Write([]byte(`{"status":"OK","results":[{"formatted_address":"Piazza del Duomo, 20122 Milano MI","geometry":{"location":{"lat":45.4641,"lng":9.1919}}}]}`))
	}))
	defer srv.Close()

	g := NewGoogle(srv.URL, "secret")
	res, err := g.Geocode(context.Background(), "Piazza Duomo, Milano")
	require.NoError(t, err)
	assert.InDelta(t, 45.4641, res.Point.Lat, 1e-9)
	assert.InDelta(t, 9.1919, res.Point.Lon, 1e-9)
	assert.Equal(t, "Piazza del Duomo, 20122 Milano MI", res.Address)
	assert.Equal(t, config.GoogleMinInterval, g.MinInterval())
}

func TestNew(t *testing.T) {
	g, err := New(config.GeocodingProviderFree, "")
	require.NoError(t, err)
	assert.Equal(t, config.GeocodingProviderFree, g.Name())

	_, err = New(config.GeocodingProviderGoogle, "")
	assert.Error(t, err)

	_, err = New("bing", "")
	assert.Error(t, err)
}
