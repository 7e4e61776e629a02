// ABOUTME: Weather agent type backed by weatherapi.com
// ABOUTME: Extracts a city, forecast horizon, and astronomy flag, fetches conditions, and answers with them

package builtins

import (
	"context"
	"fmt"
	"strings"

	"github.com/2389/agentdesk/internal/agent"
	"github.com/2389/agentdesk/internal/providers"
)

const weatherSystem = `You are an intelligent weather assistant that provides accurate weather information.
Base every statement about current or future weather on the supplied data. Be friendly and concise.`

const weatherSchema = `{"type":"object","properties":{"city":{"type":"string"},"forecast":{"type":"boolean","description":"true if the user asks about future days"},"days":{"type":"integer","minimum":1,"maximum":14},"astronomy":{"type":"boolean","description":"true if the user asks about sunrise, sunset, or the moon"}},"required":["city"]}`

// defaultForecastDays is used when a forecast is requested without a horizon.
const defaultForecastDays = 7

type weatherAgent struct {
	base
	source WeatherSource
}

type weatherData struct {
	Current   *providers.CurrentWeather `json:"current"`
	Forecast  *providers.Forecast       `json:"forecast,omitempty"`
	Astronomy *providers.Astronomy      `json:"astronomy,omitempty"`
}

func (d Deps) newWeather(spec agent.Spec) (agent.Handle, error) {
	if d.Weather == nil {
		return nil, fmt.Errorf("weather: %w", ErrProviderUnavailable)
	}
	return &weatherAgent{base: d.newBase(spec, weatherSystem), source: d.Weather}, nil
}

func (a *weatherAgent) Process(ctx context.Context, prompt string) (string, error) {
	params, err := a.extract(ctx, weatherSchema, prompt)
	if err != nil {
		return "", err
	}

	city := strings.TrimSpace(params.Get("city").String())
	if city == "" {
		// No location yet; let the model ask for one
		return a.complete(ctx, prompt)
	}

	current, err := a.source.Current(ctx, city)
	if err != nil {
		return "", err
	}
	data := weatherData{Current: current}

	if params.Get("forecast").Bool() {
		days := int(params.Get("days").Int())
		if days <= 0 {
			days = defaultForecastDays
		}
		if data.Forecast, err = a.source.Forecast(ctx, city, days); err != nil {
			return "", err
		}
	}

	if params.Get("astronomy").Bool() {
		if data.Astronomy, err = a.source.Astronomy(ctx, city); err != nil {
			return "", err
		}
	}

	return a.answerWith(ctx, prompt, data)
}
