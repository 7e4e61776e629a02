// ABOUTME: Windy point-forecast v2 client
// ABOUTME: Converts the provider's parallel arrays into per-timestamp samples in metric units

package providers

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/tidwall/gjson"
)

// DefaultWindyURL is the Windy point-forecast v2 endpoint.
const DefaultWindyURL = "https://api.windy.com/api/point-forecast/v2"

// ForecastSample is the forecast at one timestamp.
type ForecastSample struct {
	Time        time.Time `json:"time"`
	TempC       float64   `json:"temp_c"`
	DewpointC   float64   `json:"dewpoint_c"`
	WindSpeed   float64   `json:"wind_speed_ms"`
	WindGust    float64   `json:"wind_gust_ms"`
	Humidity    float64   `json:"humidity_pct"`
	PressureHPa float64   `json:"pressure_hpa"`
	PrecipMM    float64   `json:"precip_3h_mm"`
}

// PointForecast is a forecast time series for a coordinate.
type PointForecast struct {
	Lat     float64          `json:"lat"`
	Lon     float64          `json:"lon"`
	Model   string           `json:"model"`
	Samples []ForecastSample `json:"samples"`
}

// WindyClient talks to the Windy point-forecast API.
type WindyClient struct {
	fetch   *Fetcher
	baseURL string
	apiKey  string
}

// NewWindyClient creates a client. An empty baseURL uses DefaultWindyURL.
func NewWindyClient(fetch *Fetcher, baseURL, apiKey string) *WindyClient {
	if baseURL == "" {
		baseURL = DefaultWindyURL
	}
	return &WindyClient{fetch: fetch, baseURL: baseURL, apiKey: apiKey}
}

const kelvinOffset = 273.15

// PointForecast returns the GFS surface forecast at lat/lon.
func (c *WindyClient) PointForecast(ctx context.Context, lat, lon float64) (*PointForecast, error) {
	if c.apiKey == "" {
		return nil, errors.New("windy api key is not configured")
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return nil, fmt.Errorf("coordinates out of range: %g, %g", lat, lon)
	}

	payload := map[string]any{
		"lat":        lat,
		"lon":        lon,
		"model":      "gfs",
		"parameters": []string{"wind", "windGust", "temp", "dewpoint", "rh", "pressure", "precip"},
		"levels":     []string{"surface"},
		"key":        c.apiKey,
	}

	data, err := c.fetch.PostJSON(ctx, c.baseURL, payload)
	if err != nil {
		return nil, fmt.Errorf("windy point forecast: %w", err)
	}

	return parsePointForecast(data, lat, lon), nil
}

func parsePointForecast(data gjson.Result, lat, lon float64) *PointForecast {
	series := func(key string) []gjson.Result {
		return data.Get(gjson.Escape(key)).Array()
	}
	at := func(values []gjson.Result, i int) float64 {
		if i < len(values) {
			return values[i].Float()
		}
		return 0
	}
	celsius := func(values []gjson.Result, i int) float64 {
		if i < len(values) {
			return round1(values[i].Float() - kelvinOffset)
		}
		return 0
	}

	ts := series("ts")
	windU := series("wind_u-surface")
	windV := series("wind_v-surface")
	gust := series("gust-surface")
	temp := series("temp-surface")
	dew := series("dewpoint-surface")
	rh := series("rh-surface")
	pressure := series("pressure-surface")
	precip := series("past3hprecip-surface")

	pf := &PointForecast{Lat: lat, Lon: lon, Model: "gfs"}
	for i, t := range ts {
		u, v := at(windU, i), at(windV, i)
		pf.Samples = append(pf.Samples, ForecastSample{
			Time:        time.UnixMilli(t.Int()).UTC(),
			TempC:       celsius(temp, i),
			DewpointC:   celsius(dew, i),
			WindSpeed:   round1(math.Hypot(u, v)),
			WindGust:    round1(at(gust, i)),
			Humidity:    round1(at(rh, i)),
			PressureHPa: round1(at(pressure, i) / 100),
			PrecipMM:    round1(at(precip, i) * 1000),
		})
	}
	return pf
}

func round1(f float64) float64 {
	return math.Round(f*10) / 10
}
