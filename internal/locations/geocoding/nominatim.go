package geocoding

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/akolanti/ChatAnalyzer/internal/config"
	"github.com/akolanti/ChatAnalyzer/internal/customHttpClient"
	"github.com/akolanti/ChatAnalyzer/internal/domain/findingModel"
	"github.com/akolanti/ChatAnalyzer/internal/llm"
	"github.com/akolanti/ChatAnalyzer/pkg/logger_i"
	"github.com/tidwall/gjson"
)

// Nominatim is the free OpenStreetMap service. Its usage policy asks for an
// identifying User-Agent and at most one request per second.
type Nominatim struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	logger     *logger_i.Logger
}

func NewNominatim(baseURL string, userAgent string) *Nominatim {
	return &Nominatim{
		baseURL:    baseURL,
		userAgent:  userAgent,
		httpClient: customHttpClient.New(config.GeocodingTimeout),
		logger:     logger_i.NewLogger("geocoding_nominatim"),
	}
}

func (n *Nominatim) Name() string               { return config.GeocodingProviderFree }
func (n *Nominatim) MinInterval() time.Duration { return config.NominatimMinInterval }

func (n *Nominatim) Geocode(ctx context.Context, query string) (Result, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("limit", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return Result{}, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("User-Agent", n.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := n.httpClient.Do(req)
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

	first := gjson.GetBytes(body, "0")
	if !first.Exists() {
		return Result{}, ErrNotFound
	}
	lat, lon := first.Get("lat"), first.Get("lon")
	if !lat.Exists() || !lon.Exists() {
		return Result{}, ErrNotFound
	}
	result := Result{
		Point:   findingModel.Point{Lat: lat.Float(), Lon: lon.Float()},
		Address: strings.TrimSpace(first.Get("display_name").String()),
	}
	n.logger.Debug("geocoded", "query", query, "lat", result.Point.Lat, "lon", result.Point.Lon)
	return result, nil
}
