package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const (
	openMeteoGeocodingURL = "https://geocoding-api.open-meteo.com/v1/search"
	openMeteoForecastURL  = "https://api.open-meteo.com/v1/forecast"

	httpUserAgent  = "tripwright/0.1"
	httpTimeout    = 8 * time.Second
	weatherDailyQ  = "temperature_2m_max,temperature_2m_min,precipitation_sum"
	weatherAutoTZ  = "auto"
	weatherSource  = "open-meteo"
)

// WeatherClient fetches daily forecasts from Open-Meteo. Fetch failures
// degrade to search links instead of errors so a dead network never
// blocks a run.
type WeatherClient struct {
	HTTPClient  *http.Client
	GeocodeURL  string
	ForecastURL string
}

// NewWeatherClient returns a client with production endpoints. A nil
// httpClient gets a default with an 8 second timeout.
func NewWeatherClient(httpClient *http.Client) *WeatherClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: httpTimeout}
	}
	return &WeatherClient{
		HTTPClient:  httpClient,
		GeocodeURL:  openMeteoGeocodingURL,
		ForecastURL: openMeteoForecastURL,
	}
}

// Summary returns a forecast summary for the destination over the date
// range. Missing dates yield seasonal guidance links; fetch failures
// yield fallback search links.
func (c *WeatherClient) Summary(ctx context.Context, destination, startDate, endDate string) map[string]any {
	if startDate == "" || endDate == "" {
		return map[string]any{
			"summary": "Weather requires dates; providing seasonal guidance instead.",
			"details": fmt.Sprintf("Search: '%s weather by month' for seasonal norms.", destination),
			"links": linkMaps([]Link{
				{Label: "Weather search", URL: GoogleWeatherSearchLink(destination + " weather")},
			}),
		}
	}

	result, err := c.fetchForecast(ctx, destination, startDate, endDate)
	if err != nil {
		return map[string]any{
			"summary": "Unable to fetch live weather; providing seasonal guidance links instead.",
			"details": "Network may be unavailable or the provider could not be reached.",
			"links": linkMaps([]Link{
				{Label: "Weather search", URL: GoogleWeatherSearchLink(destination + " weather " + startDate)},
			}),
		}
	}
	return result
}

type geocodeResponse struct {
	Results []struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"results"`
}

type forecastResponse struct {
	Daily map[string]json.RawMessage `json:"daily"`
}

func (c *WeatherClient) fetchForecast(ctx context.Context, destination, startDate, endDate string) (map[string]any, error) {
	geoParams := url.Values{}
	geoParams.Set("name", destination)
	geoParams.Set("count", "1")
	geoParams.Set("language", "en")
	geoParams.Set("format", "json")

	var geo geocodeResponse
	if err := getJSON(ctx, c.HTTPClient, c.GeocodeURL+"?"+geoParams.Encode(), &geo); err != nil {
		return nil, err
	}
	if len(geo.Results) == 0 {
		return nil, fmt.Errorf("no geocoding results for %q", destination)
	}

	fcParams := url.Values{}
	fcParams.Set("latitude", fmt.Sprintf("%g", geo.Results[0].Latitude))
	fcParams.Set("longitude", fmt.Sprintf("%g", geo.Results[0].Longitude))
	fcParams.Set("start_date", startDate)
	fcParams.Set("end_date", endDate)
	fcParams.Set("daily", weatherDailyQ)
	fcParams.Set("timezone", weatherAutoTZ)

	var fc forecastResponse
	if err := getJSON(ctx, c.HTTPClient, c.ForecastURL+"?"+fcParams.Encode(), &fc); err != nil {
		return nil, err
	}
	if len(fc.Daily) == 0 {
		return nil, fmt.Errorf("no forecast data for %q", destination)
	}

	tempsMax := dailyFloats(fc.Daily, "temperature_2m_max")
	tempsMin := dailyFloats(fc.Daily, "temperature_2m_min")
	precip := dailyFloats(fc.Daily, "precipitation_sum")

	summary := "Weather forecast fetched."
	if len(tempsMax) > 0 && len(tempsMin) > 0 {
		summary = fmt.Sprintf("Forecast highs ~%.0f-%.0f°C; lows ~%.0f-%.0f°C.",
			minOf(tempsMax), maxOf(tempsMax), minOf(tempsMin), maxOf(tempsMin))
	}
	if len(precip) > 0 {
		summary += fmt.Sprintf(" Total precipitation over range ~%.0fmm.", sumOf(precip))
	}

	daily := make(map[string]any, len(fc.Daily))
	for k, raw := range fc.Daily {
		var v any
		if err := json.Unmarshal(raw, &v); err == nil {
			daily[k] = v
		}
	}
	return map[string]any{"summary": summary, "daily": daily, "source": weatherSource}, nil
}

func getJSON(ctx context.Context, client *http.Client, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", httpUserAgent)

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, rawURL)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, out)
}

func dailyFloats(daily map[string]json.RawMessage, key string) []float64 {
	raw, ok := daily[key]
	if !ok {
		return nil
	}
	var vals []float64
	if err := json.Unmarshal(raw, &vals); err != nil {
		return nil
	}
	return vals
}

func minOf(vals []float64) float64 {
	m := vals[0]
	for _, v := range vals[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func maxOf(vals []float64) float64 {
	m := vals[0]
	for _, v := range vals[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func sumOf(vals []float64) float64 {
	var s float64
	for _, v := range vals {
		s += v
	}
	return s
}
