// ABOUTME: weatherapi.com client for current conditions, forecasts, and astronomy
// ABOUTME: Maps provider JSON onto small typed results consumed by the weather agent

package providers

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// DefaultWeatherURL is the weatherapi.com v1 endpoint.
const DefaultWeatherURL = "http://api.weatherapi.com/v1"

// CurrentWeather is the current conditions at a location.
type CurrentWeather struct {
	Location   string  `json:"location"`
	Region     string  `json:"region"`
	Country    string  `json:"country"`
	TempC      float64 `json:"temp_c"`
	TempF      float64 `json:"temp_f"`
	Condition  string  `json:"condition"`
	Humidity   int     `json:"humidity"`
	WindKph    float64 `json:"wind_kph"`
	FeelsLikeC float64 `json:"feelslike_c"`
}

// ForecastDay is one day of a forecast.
type ForecastDay struct {
	Date      string  `json:"date"`
	MaxTempC  float64 `json:"max_temp_c"`
	MinTempC  float64 `json:"min_temp_c"`
	Condition string  `json:"condition"`
	PrecipMM  float64 `json:"precip_mm"`
	Sunrise   string  `json:"sunrise"`
	Sunset    string  `json:"sunset"`
}

// Forecast is a multi-day forecast for a location.
type Forecast struct {
	Location string        `json:"location"`
	Days     []ForecastDay `json:"days"`
}

// Astronomy holds sun and moon times for a location.
type Astronomy struct {
	Location  string `json:"location"`
	Sunrise   string `json:"sunrise"`
	Sunset    string `json:"sunset"`
	Moonrise  string `json:"moonrise"`
	Moonset   string `json:"moonset"`
	MoonPhase string `json:"moon_phase"`
}

// WeatherClient talks to weatherapi.com.
type WeatherClient struct {
	fetch   *Fetcher
	baseURL string
	apiKey  string
}

// NewWeatherClient creates a client. An empty baseURL uses DefaultWeatherURL.
func NewWeatherClient(fetch *Fetcher, baseURL, apiKey string) *WeatherClient {
	if baseURL == "" {
		baseURL = DefaultWeatherURL
	}
	return &WeatherClient{fetch: fetch, baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey}
}

// Current returns the current conditions for a city.
func (c *WeatherClient) Current(ctx context.Context, city string) (*CurrentWeather, error) {
	data, err := c.get(ctx, "current.json", url.Values{"q": {city}, "aqi": {"no"}})
	if err != nil {
		return nil, err
	}
	cur := data.Get("current")
	return &CurrentWeather{
		Location:   data.Get("location.name").String(),
		Region:     data.Get("location.region").String(),
		Country:    data.Get("location.country").String(),
		TempC:      cur.Get("temp_c").Float(),
		TempF:      cur.Get("temp_f").Float(),
		Condition:  cur.Get("condition.text").String(),
		Humidity:   int(cur.Get("humidity").Int()),
		WindKph:    cur.Get("wind_kph").Float(),
		FeelsLikeC: cur.Get("feelslike_c").Float(),
	}, nil
}

// Forecast returns a forecast for 1 to 14 days; days is clamped to that range.
func (c *WeatherClient) Forecast(ctx context.Context, city string, days int) (*Forecast, error) {
	days = max(1, min(days, 14))
	data, err := c.get(ctx, "forecast.json", url.Values{
		"q":      {city},
		"days":   {strconv.Itoa(days)},
		"aqi":    {"no"},
		"alerts": {"no"},
	})
	if err != nil {
		return nil, err
	}

	f := &Forecast{Location: data.Get("location.name").String()}
	for _, day := range data.Get("forecast.forecastday").Array() {
		f.Days = append(f.Days, ForecastDay{
			Date:      day.Get("date").String(),
			MaxTempC:  day.Get("day.maxtemp_c").Float(),
			MinTempC:  day.Get("day.mintemp_c").Float(),
			Condition: day.Get("day.condition.text").String(),
			PrecipMM:  day.Get("day.totalprecip_mm").Float(),
			Sunrise:   day.Get("astro.sunrise").String(),
			Sunset:    day.Get("astro.sunset").String(),
		})
	}
	return f, nil
}

// Astronomy returns today's sun and moon times for a city.
func (c *WeatherClient) Astronomy(ctx context.Context, city string) (*Astronomy, error) {
	data, err := c.get(ctx, "astronomy.json", url.Values{"q": {city}})
	if err != nil {
		return nil, err
	}
	astro := data.Get("astronomy.astro")
	return &Astronomy{
		Location:  data.Get("location.name").String(),
		Sunrise:   astro.Get("sunrise").String(),
		Sunset:    astro.Get("sunset").String(),
		Moonrise:  astro.Get("moonrise").String(),
		Moonset:   astro.Get("moonset").String(),
		MoonPhase: astro.Get("moon_phase").String(),
	}, nil
}

func (c *WeatherClient) get(ctx context.Context, endpoint string, params url.Values) (gjson.Result, error) {
	if c.apiKey == "" {
		return gjson.Result{}, errors.New("weather api key is not configured")
	}
	params.Set("key", c.apiKey)
	params.Set("lang", "en")

	data, err := c.fetch.GetJSON(ctx, c.baseURL+"/"+endpoint, params, nil)
	if err != nil {
		// weatherapi reports bad locations as 400 with {"error": {"message": ...}}
		var httpErr *HTTPError
		if errors.As(err, &httpErr) {
			if msg := gjson.Get(httpErr.Body, "error.message"); msg.Exists() {
				return gjson.Result{}, fmt.Errorf("weather %s: %s", endpoint, msg.String())
			}
		}
		return gjson.Result{}, fmt.Errorf("weather %s: %w", endpoint, err)
	}
	return data, nil
}
