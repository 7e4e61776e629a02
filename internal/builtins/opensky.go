// ABOUTME: OpenSky agent type for live aircraft positions, airport or aircraft flight lists, and tracks
// ABOUTME: Extracts a query mode and its parameters, calls OpenSky, and answers with the results

package builtins

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/2389/agentdesk/internal/agent"
	"github.com/2389/agentdesk/internal/providers"
)

const openSkySystem = `You are an aviation assistant with access to live OpenSky Network data.
Describe aircraft positions, flights, and airport traffic using only the supplied data.`

const openSkySchema = `{"type":"object","properties":{
"mode":{"type":"string","enum":["area","airport","aircraft","track"],"description":"track: the path one aircraft flew"},
"bbox":{"type":"object","properties":{"lat_min":{"type":"number"},"lat_max":{"type":"number"},"lon_min":{"type":"number"},"lon_max":{"type":"number"}}},
"airport":{"type":"string","description":"ICAO airport code, e.g. EPWA"},
"icao24":{"type":"string","description":"aircraft transponder hex code"},
"hours":{"type":"integer","minimum":1,"maximum":48,"description":"how far back to look"}},
"required":["mode"]}`

const (
	// maxStatesInPrompt limits how many state vectors are handed to the model.
	maxStatesInPrompt = 50
	// maxTrackPointsInPrompt limits the waypoints of one track.
	maxTrackPointsInPrompt = 100
	defaultHoursBack       = 2
	defaultTrackHoursBack  = 1
	maxHoursBack           = 48
)

type openSkyAgent struct {
	base
	source AirspaceSource
	now    func() time.Time
}

func (d Deps) newOpenSky(spec agent.Spec) (agent.Handle, error) {
	if d.Sky == nil {
		return nil, fmt.Errorf("opensky: %w", ErrProviderUnavailable)
	}
	return &openSkyAgent{base: d.newBase(spec, openSkySystem), source: d.Sky, now: d.Now}, nil
}

func (a *openSkyAgent) Process(ctx context.Context, prompt string) (string, error) {
	params, err := a.extract(ctx, openSkySchema, prompt)
	if err != nil {
		return "", err
	}

	mode := params.Get("mode").String()
	hours := int(params.Get("hours").Int())
	if hours <= 0 {
		hours = defaultHoursBack
		if mode == "track" {
			hours = defaultTrackHoursBack
		}
	}
	hours = min(hours, maxHoursBack)
	end := a.now()
	begin := end.Add(-time.Duration(hours) * time.Hour)

	var data any
	switch mode {
	case "area":
		bbox := bboxParam(params.Get("bbox"))
		if bbox == nil {
			// The global state list is too large to be useful in a reply
			return a.complete(ctx, prompt)
		}
		states, err := a.source.States(ctx, bbox)
		if err != nil {
			return "", err
		}
		total := len(states)
		if total > maxStatesInPrompt {
			states = states[:maxStatesInPrompt]
		}
		data = map[string]any{"bbox": *bbox, "total_aircraft": total, "aircraft": states}

	case "airport":
		airport := strings.ToUpper(strings.TrimSpace(params.Get("airport").String()))
		if airport == "" {
			return a.complete(ctx, prompt)
		}
		arrivals, err := a.source.ArrivalsByAirport(ctx, airport, begin, end)
		if err != nil {
			return "", err
		}
		departures, err := a.source.DeparturesByAirport(ctx, airport, begin, end)
		if err != nil {
			return "", err
		}
		data = map[string]any{"airport": airport, "hours": hours, "arrivals": arrivals, "departures": departures}

	case "aircraft":
		icao24 := strings.ToLower(strings.TrimSpace(params.Get("icao24").String()))
		if icao24 == "" {
			return a.complete(ctx, prompt)
		}
		flights, err := a.source.FlightsByAircraft(ctx, icao24, begin, end)
		if err != nil {
			return "", err
		}
		data = map[string]any{"icao24": icao24, "hours": hours, "flights": flights}

	case "track":
		icao24 := strings.ToLower(strings.TrimSpace(params.Get("icao24").String()))
		if icao24 == "" {
			return a.complete(ctx, prompt)
		}
		track, err := a.source.Track(ctx, icao24, begin)
		if err != nil {
			return "", err
		}
		total := len(track.Path)
		if total > maxTrackPointsInPrompt {
			track.Path = track.Path[total-maxTrackPointsInPrompt:]
		}
		data = map[string]any{"icao24": icao24, "hours_back": hours, "total_points": total, "track": track}

	default:
		return a.complete(ctx, prompt)
	}

	return a.answerWith(ctx, prompt, data)
}

// bboxParam reads an extracted bounding box. Missing or null corners and
// boxes without area yield nil.
func bboxParam(b gjson.Result) *providers.BBox {
	if !b.IsObject() {
		return nil
	}
	corners := [4]float64{}
	for i, key := range []string{"lat_min", "lat_max", "lon_min", "lon_max"} {
		v := b.Get(key)
		if v.Type != gjson.Number {
			return nil
		}
		corners[i] = v.Float()
	}
	bbox := providers.BBox{LatMin: corners[0], LatMax: corners[1], LonMin: corners[2], LonMax: corners[3]}.Normalize()
	if bbox.LatMin == bbox.LatMax || bbox.LonMin == bbox.LonMax {
		return nil
	}
	return &bbox
}
