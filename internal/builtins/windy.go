// ABOUTME: Windy agent type backed by the Windy point-forecast API
// ABOUTME: Extracts coordinates, fetches the surface forecast, and answers with it

package builtins

import (
	"context"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/2389/agentdesk/internal/agent"
	"github.com/2389/agentdesk/internal/providers"
)

const windySystem = `You are a meteorological assistant using Windy forecast data.
Report temperature, wind speed and gusts, humidity, pressure, and precipitation for the requested point.`

const windySchema = `{"type":"object","properties":{"place":{"type":"string"},"lat":{"type":"number","minimum":-90,"maximum":90},"lon":{"type":"number","minimum":-180,"maximum":180}},"required":["lat","lon"],"description":"if the user names a place, give its approximate coordinates"}`

// windySamples limits how many forecast steps are handed to the model.
const windySamples = 8

type windyAgent struct {
	base
	source WindySource
}

func (d Deps) newWindy(spec agent.Spec) (agent.Handle, error) {
	if d.Windy == nil {
		return nil, fmt.Errorf("windy: %w", ErrProviderUnavailable)
	}
	return &windyAgent{base: d.newBase(spec, windySystem), source: d.Windy}, nil
}

func (a *windyAgent) Process(ctx context.Context, prompt string) (string, error) {
	params, err := a.extract(ctx, windySchema, prompt)
	if err != nil {
		return "", err
	}

	lat, lon := params.Get("lat"), params.Get("lon")
	if lat.Type != gjson.Number || lon.Type != gjson.Number {
		return a.complete(ctx, prompt)
	}

	forecast, err := a.source.PointForecast(ctx, lat.Float(), lon.Float())
	if err != nil {
		return "", err
	}
	if len(forecast.Samples) > windySamples {
		forecast.Samples = forecast.Samples[:windySamples]
	}

	return a.answerWith(ctx, prompt, struct {
		Place    string                   `json:"place,omitempty"`
		Forecast *providers.PointForecast `json:"forecast"`
	}{params.Get("place").String(), forecast})
}
