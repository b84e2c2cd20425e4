package geocoding

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/akolanti/ChatAnalyzer/internal/config"
	"github.com/akolanti/ChatAnalyzer/internal/customHttpClient"
	"github.com/akolanti/ChatAnalyzer/internal/domain/findingModel"
	"github.com/akolanti/ChatAnalyzer/internal/llm"
	"github.com/akolanti/ChatAnalyzer/pkg/logger_i"
	"github.com/tidwall/gjson"
)

// Google is the commercial Geocoding API.
type Google struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *logger_i.Logger
}

func NewGoogle(baseURL string, apiKey string) *Google {
	return &Google{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: customHttpClient.New(config.GeocodingTimeout),
		logger:     logger_i.NewLogger("geocoding_google"),
	}
}

func (g *Google) Name() string               { return config.GeocodingProviderGoogle }
func (g *Google) MinInterval() time.Duration { return config.GoogleMinInterval }

func (g *Google) Geocode(ctx context.Context, query string) (Result, error) {
	params := url.Values{}
	params.Set("address", query)
	params.Set("key", g.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return Result{}, fmt.Errorf("building request: %w", err)
	}
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return Result{}, llm.Classify(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, llm.NewTransient(resp.StatusCode, "reading response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Result{}, llm.FromHTTPStatus(resp.StatusCode, resp.Header, string(body))
	}

	//the API reports most failures in a 200 body
	doc := gjson.ParseBytes(body)
	switch status := doc.Get("status").String(); status {
	case "OK":
	case "ZERO_RESULTS":
		return Result{}, ErrNotFound
	case "OVER_QUERY_LIMIT", "OVER_DAILY_LIMIT":
		return Result{}, llm.NewRateLimited(0, status)
	case "REQUEST_DENIED":
		return Result{}, llm.NewFatal(http.StatusForbidden, doc.Get("error_message").String(), llm.ErrUnauthorized)
	case "INVALID_REQUEST":
		return Result{}, llm.NewFatal(http.StatusBadRequest, doc.Get("error_message").String(), nil)
	default:
		return Result{}, llm.NewTransient(resp.StatusCode, "geocoder status "+status, nil)
	}

	first := doc.Get("results.0")
	location := first.Get("geometry.location")
	if !location.Exists() {
		return Result{}, ErrNotFound
	}
	result := Result{
		Point:   findingModel.Point{Lat: location.Get("lat").Float(), Lon: location.Get("lng").Float()},
		Address: first.Get("formatted_address").String(),
	}
	g.logger.Debug("geocoded", "query", query, "lat", result.Point.Lat, "lon", result.Point.Lon)
	return result, nil
}
