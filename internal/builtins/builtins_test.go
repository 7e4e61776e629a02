// ABOUTME: Tests for the built-in agent types using a scripted completer and fake providers
// ABOUTME: Checks parameter extraction, provider calls, fallbacks, and the airspace statistics

package builtins

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/agentdesk/internal/agent"
	"github.com/2389/agentdesk/internal/llm"
	"github.com/2389/agentdesk/internal/providers"
	"github.com/2389/agentdesk/internal/store"
)

// scriptedLLM answers extraction requests with extraction and everything
// else with "answer".
type scriptedLLM struct {
	mu         sync.Mutex
	extraction string
	requests   []llm.Request
}

func (s *scriptedLLM) Complete(_ context.Context, req llm.Request) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if strings.HasPrefix(req.System, extractionSystem) {
		return s.extraction, nil
	}
	return "answer", nil
}

func (s *scriptedLLM) last() llm.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[len(s.requests)-1]
}

type fakeWeather struct {
	city      string
	days      int
	astroCity string
}

func (f *fakeWeather) Current(_ context.Context, city string) (*providers.CurrentWeather, error) {
	f.city = city
	return &providers.CurrentWeather{Location: city, TempC: 21.5, Condition: "Sunny"}, nil
}

func (f *fakeWeather) Forecast(_ context.Context, city string, days int) (*providers.Forecast, error) {
	f.days = days
	return &providers.Forecast{Location: city}, nil
}

func (f *fakeWeather) Astronomy(_ context.Context, city string) (*providers.Astronomy, error) {
	f.astroCity = city
	return &providers.Astronomy{Location: city, Sunrise: "06:41 AM", MoonPhase: "Waxing Gibbous"}, nil
}

type fakeWindy struct{ lat, lon float64 }

func (f *fakeWindy) PointForecast(_ context.Context, lat, lon float64) (*providers.PointForecast, error) {
	f.lat, f.lon = lat, lon
	samples := make([]providers.ForecastSample, 20)
	return &providers.PointForecast{Lat: lat, Lon: lon, Model: "gfs", Samples: samples}, nil
}

type fakeSky struct {
	states     []providers.StateVector
	bbox       *providers.BBox
	airport    string
	icao24     string
	begin, end time.Time
	trackAt    time.Time
	track      *providers.Track
	err        error
}

func (f *fakeSky) States(_ context.Context, bbox *providers.BBox) ([]providers.StateVector, error) {
	f.bbox = bbox
	return f.states, f.err
}

func (f *fakeSky) ArrivalsByAirport(_ context.Context, airport string, begin, end time.Time) ([]providers.Flight, error) {
	f.airport, f.begin, f.end = airport, begin, end
	return []providers.Flight{{ICAO24: "abc123", EstArrivalAirport: airport}}, f.err
}

func (f *fakeSky) DeparturesByAirport(_ context.Context, airport string, begin, end time.Time) ([]providers.Flight, error) {
	return []providers.Flight{{ICAO24: "def456", EstDepartureAirport: airport}}, f.err
}

func (f *fakeSky) FlightsByAircraft(_ context.Context, icao24 string, begin, end time.Time) ([]providers.Flight, error) {
	f.icao24, f.begin, f.end = icao24, begin, end
	return nil, f.err
}

func (f *fakeSky) Track(_ context.Context, icao24 string, at time.Time) (*providers.Track, error) {
	f.icao24, f.trackAt = icao24, at
	if f.track == nil {
		return &providers.Track{ICAO24: icao24, Path: []providers.Waypoint{}}, f.err
	}
	return f.track, f.err
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// resolve registers the built-ins, stores an agent of agentType, and
// resolves it through the registry.
func resolve(t *testing.T, deps Deps, agentType, systemPrompt string) (*agent.Bound, error) {
	t.Helper()
	s := store.NewMockStore()
	require.NoError(t, s.CreateAgentConfig(context.Background(), &store.AgentConfig{
		ID:           "a1",
		Name:         "Test",
		Type:         agentType,
		SystemPrompt: systemPrompt,
		Temperature:  0.3,
		CreatedAt:    fixedNow,
	}))
	reg := agent.NewRegistry(s, nil)
	require.NoError(t, Register(reg, deps))
	return reg.Resolve(context.Background(), "a1")
}

func TestRegister(t *testing.T) {
	reg := agent.NewRegistry(store.NewMockStore(), nil)
	require.NoError(t, Register(reg, Deps{LLM: &scriptedLLM{}}))
	assert.Equal(t, []string{"generic", "opensky", "sky_analysis", "weather", "windy"}, reg.Types())

	assert.Error(t, Register(agent.NewRegistry(store.NewMockStore(), nil), Deps{}))
}

func TestGeneric_UsesConfiguredPersona(t *testing.T) {
	fake := &scriptedLLM{}
	h, err := resolve(t, Deps{LLM: fake}, TypeGeneric, "You are a pirate.")
	require.NoError(t, err)

	reply, err := h.Process(context.Background(), "USER: hi")
	require.NoError(t, err)
	assert.Equal(t, "answer", reply)

	req := fake.last()
	assert.Equal(t, "You are a pirate.", req.System)
	assert.Equal(t, "USER: hi", req.Prompt)
	assert.InDelta(t, 0.3, req.Temperature, 1e-9)
}

func TestGeneric_DefaultPersona(t *testing.T) {
	fake := &scriptedLLM{}
	h, err := resolve(t, Deps{LLM: fake}, TypeGeneric, "")
	require.NoError(t, err)

	_, err = h.Process(context.Background(), "USER: hi")
	require.NoError(t, err)
	assert.Equal(t, genericSystem, fake.last().System)
}

func TestProviderTypes_FailWithoutProvider(t *testing.T) {
	for _, typ := range []string{TypeWeather, TypeWindy, TypeOpenSky, TypeSkyAnalysis} {
		t.Run(typ, func(t *testing.T) {
			_, err := resolve(t, Deps{LLM: &scriptedLLM{}}, typ, "")
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrProviderUnavailable)
		})
	}
}

func TestWeather_CurrentAndForecast(t *testing.T) {
	fake := &scriptedLLM{extraction: "```json\n{\"city\":\"Warsaw\",\"forecast\":true,\"days\":null}\n```"}
	weather := &fakeWeather{}
	h, err := resolve(t, Deps{LLM: fake, Weather: weather}, TypeWeather, "")
	require.NoError(t, err)

	reply, err := h.Process(context.Background(), "USER: weather in Warsaw this week?")
	require.NoError(t, err)
	assert.Equal(t, "answer", reply)

	assert.Equal(t, "Warsaw", weather.city)
	assert.Equal(t, defaultForecastDays, weather.days)

	final := fake.last()
	assert.Contains(t, final.Prompt, `"temp_c": 21.5`)
	assert.Contains(t, final.Prompt, "USER: weather in Warsaw this week?")
	require.Len(t, fake.requests, 2)
	assert.Zero(t, fake.requests[0].Temperature)
}

func TestWeather_Astronomy(t *testing.T) {
	fake := &scriptedLLM{extraction: `{"city":"Lviv","astronomy":true}`}
	weather := &fakeWeather{}
	h, err := resolve(t, Deps{LLM: fake, Weather: weather}, TypeWeather, "")
	require.NoError(t, err)

	_, err = h.Process(context.Background(), "USER: when is sunrise in Lviv?")
	require.NoError(t, err)
	assert.Equal(t, "Lviv", weather.astroCity)
	assert.Zero(t, weather.days, "no forecast was asked for")
	assert.Contains(t, fake.last().Prompt, `"moon_phase": "Waxing Gibbous"`)
}

func TestWeather_AstronomyOnlyWhenAsked(t *testing.T) {
	fake := &scriptedLLM{extraction: `{"city":"Lviv"}`}
	weather := &fakeWeather{}
	h, err := resolve(t, Deps{LLM: fake, Weather: weather}, TypeWeather, "")
	require.NoError(t, err)

	_, err = h.Process(context.Background(), "USER: weather in Lviv")
	require.NoError(t, err)
	assert.Empty(t, weather.astroCity)
	assert.NotContains(t, fake.last().Prompt, `"astronomy"`)
}

func TestWeather_NoCityFallsBackToCompletion(t *testing.T) {
	fake := &scriptedLLM{extraction: `{"city":null}`}
	weather := &fakeWeather{}
	h, err := resolve(t, Deps{LLM: fake, Weather: weather}, TypeWeather, "")
	require.NoError(t, err)

	_, err = h.Process(context.Background(), "USER: what's it like outside?")
	require.NoError(t, err)
	assert.Empty(t, weather.city)
	assert.Equal(t, "USER: what's it like outside?", fake.last().Prompt)
}

func TestExtraction_RejectsNonJSON(t *testing.T) {
	fake := &scriptedLLM{extraction: "I cannot help with that"}
	h, err := resolve(t, Deps{LLM: fake, Weather: &fakeWeather{}}, TypeWeather, "")
	require.NoError(t, err)

	_, err = h.Process(context.Background(), "USER: hi")
	assert.ErrorContains(t, err, "not a JSON object")
}

func TestWindy_FetchesPointAndTrimsSamples(t *testing.T) {
	fake := &scriptedLLM{extraction: `{"place":"Gdansk","lat":54.35,"lon":18.65}`}
	windy := &fakeWindy{}
	h, err := resolve(t, Deps{LLM: fake, Windy: windy}, TypeWindy, "")
	require.NoError(t, err)

	_, err = h.Process(context.Background(), "USER: wind in Gdansk?")
	require.NoError(t, err)
	assert.InDelta(t, 54.35, windy.lat, 1e-9)
	assert.InDelta(t, 18.65, windy.lon, 1e-9)
	assert.Contains(t, fake.last().Prompt, `"place": "Gdansk"`)
	assert.Equal(t, windySamples, strings.Count(fake.last().Prompt, `"time"`))
}

func TestWindy_MissingCoordinatesFallBack(t *testing.T) {
	fake := &scriptedLLM{extraction: `{"place":"somewhere","lat":null,"lon":null}`}
	windy := &fakeWindy{}
	h, err := resolve(t, Deps{LLM: fake, Windy: windy}, TypeWindy, "")
	require.NoError(t, err)

	_, err = h.Process(context.Background(), "USER: wind?")
	require.NoError(t, err)
	assert.Zero(t, windy.lat)
	assert.Equal(t, "USER: wind?", fake.last().Prompt)
}

func TestOpenSky_Modes(t *testing.T) {
	deps := func(fake *scriptedLLM, sky *fakeSky) Deps {
		return Deps{LLM: fake, Sky: sky, Now: func() time.Time { return fixedNow }}
	}

	t.Run("area", func(t *testing.T) {
		fake := &scriptedLLM{extraction: `{"mode":"area","bbox":{"lat_min":49,"lat_max":54.8,"lon_min":14.1,"lon_max":24.2}}`}
		sky := &fakeSky{states: make([]providers.StateVector, 60)}
		h, err := resolve(t, deps(fake, sky), TypeOpenSky, "")
		require.NoError(t, err)

		_, err = h.Process(context.Background(), "USER: planes over Poland")
		require.NoError(t, err)
		require.NotNil(t, sky.bbox)
		assert.InDelta(t, 24.2, sky.bbox.LonMax, 1e-9)
		assert.Contains(t, fake.last().Prompt, `"total_aircraft": 60`)
	})

	t.Run("airport", func(t *testing.T) {
		fake := &scriptedLLM{extraction: `{"mode":"airport","airport":"epwa","hours":3}`}
		sky := &fakeSky{}
		h, err := resolve(t, deps(fake, sky), TypeOpenSky, "")
		require.NoError(t, err)

		_, err = h.Process(context.Background(), "USER: arrivals at Chopin")
		require.NoError(t, err)
		assert.Equal(t, "EPWA", sky.airport)
		assert.Equal(t, fixedNow, sky.end)
		assert.Equal(t, fixedNow.Add(-3*time.Hour), sky.begin)
		assert.Contains(t, fake.last().Prompt, "def456")
	})

	t.Run("aircraft clamps hours", func(t *testing.T) {
		fake := &scriptedLLM{extraction: `{"mode":"aircraft","icao24":"ABC123","hours":500}`}
		sky := &fakeSky{}
		h, err := resolve(t, deps(fake, sky), TypeOpenSky, "")
		require.NoError(t, err)

		_, err = h.Process(context.Background(), "USER: where was abc123")
		require.NoError(t, err)
		assert.Equal(t, "abc123", sky.icao24)
		assert.Equal(t, fixedNow.Add(-maxHoursBack*time.Hour), sky.begin)
	})

	t.Run("track defaults to one hour back", func(t *testing.T) {
		fake := &scriptedLLM{extraction: `{"mode":"track","icao24":"3C6444"}`}
		sky := &fakeSky{track: &providers.Track{
			ICAO24:   "3c6444",
			Callsign: "DLH9LF",
			Path:     make([]providers.Waypoint, maxTrackPointsInPrompt+20),
		}}
		h, err := resolve(t, deps(fake, sky), TypeOpenSky, "")
		require.NoError(t, err)

		_, err = h.Process(context.Background(), "USER: show the route of 3c6444")
		require.NoError(t, err)
		assert.Equal(t, "3c6444", sky.icao24)
		assert.Equal(t, fixedNow.Add(-time.Hour), sky.trackAt)
		assert.Len(t, sky.track.Path, maxTrackPointsInPrompt)
		prompt := fake.last().Prompt
		assert.Contains(t, prompt, `"total_points": 120`)
		assert.Contains(t, prompt, "DLH9LF")
	})

	t.Run("track honours hours", func(t *testing.T) {
		fake := &scriptedLLM{extraction: `{"mode":"track","icao24":"abc123","hours":5}`}
		sky := &fakeSky{}
		h, err := resolve(t, deps(fake, sky), TypeOpenSky, "")
		require.NoError(t, err)

		_, err = h.Process(context.Background(), "USER: where did abc123 fly")
		require.NoError(t, err)
		assert.Equal(t, fixedNow.Add(-5*time.Hour), sky.trackAt)
		assert.Contains(t, fake.last().Prompt, `"total_points": 0`)
	})

	t.Run("track without aircraft falls back", func(t *testing.T) {
		fake := &scriptedLLM{extraction: `{"mode":"track","icao24":null}`}
		sky := &fakeSky{}
		h, err := resolve(t, deps(fake, sky), TypeOpenSky, "")
		require.NoError(t, err)

		_, err = h.Process(context.Background(), "USER: show a track")
		require.NoError(t, err)
		assert.True(t, sky.trackAt.IsZero())
		assert.Equal(t, "USER: show a track", fake.last().Prompt)
	})

	t.Run("unusable bbox falls back", func(t *testing.T) {
		for _, bbox := range []string{
			`{"lat_min":null,"lat_max":null,"lon_min":null,"lon_max":null}`,
			`{"lat_min":0,"lat_max":0,"lon_min":0,"lon_max":0}`,
			`{"lat_min":50,"lat_max":50,"lon_min":14,"lon_max":24}`,
			`{"lat_min":49,"lat_max":54}`,
		} {
			fake := &scriptedLLM{extraction: `{"mode":"area","bbox":` + bbox + `}`}
			sky := &fakeSky{}
			h, err := resolve(t, deps(fake, sky), TypeOpenSky, "")
			require.NoError(t, err)

			_, err = h.Process(context.Background(), "USER: planes nearby")
			require.NoError(t, err)
			assert.Nil(t, sky.bbox, bbox)
			assert.Equal(t, "USER: planes nearby", fake.last().Prompt, bbox)
		}
	})

	t.Run("reversed bbox corners are normalized", func(t *testing.T) {
		fake := &scriptedLLM{extraction: `{"mode":"area","bbox":{"lat_min":54.8,"lat_max":49,"lon_min":24.2,"lon_max":14.1}}`}
		sky := &fakeSky{}
		h, err := resolve(t, deps(fake, sky), TypeOpenSky, "")
		require.NoError(t, err)

		_, err = h.Process(context.Background(), "USER: planes over Poland")
		require.NoError(t, err)
		require.NotNil(t, sky.bbox)
		assert.InDelta(t, 49, sky.bbox.LatMin, 1e-9)
		assert.InDelta(t, 24.2, sky.bbox.LonMax, 1e-9)
	})

	t.Run("unknown mode falls back", func(t *testing.T) {
		fake := &scriptedLLM{extraction: `{"mode":"other"}`}
		sky := &fakeSky{}
		h, err := resolve(t, deps(fake, sky), TypeOpenSky, "")
		require.NoError(t, err)

		_, err = h.Process(context.Background(), "USER: hello")
		require.NoError(t, err)
		assert.Nil(t, sky.bbox)
		assert.Equal(t, "USER: hello", fake.last().Prompt)
	})

	t.Run("provider error", func(t *testing.T) {
		fake := &scriptedLLM{extraction: `{"mode":"airport","airport":"EPWA"}`}
		sky := &fakeSky{err: errors.New("boom")}
		h, err := resolve(t, deps(fake, sky), TypeOpenSky, "")
		require.NoError(t, err)

		_, err = h.Process(context.Background(), "USER: arrivals")
		assert.ErrorContains(t, err, "boom")
	})
}

func TestCountryBounds(t *testing.T) {
	name, b, ok := CountryBounds("  Poland ")
	require.True(t, ok)
	assert.Equal(t, "poland", name)
	assert.InDelta(t, 49.0, b.LatMin, 1e-9)

	name, _, ok = CountryBounds("kingdom")
	require.True(t, ok)
	assert.Equal(t, "united kingdom", name)

	_, _, ok = CountryBounds("atlantis")
	assert.False(t, ok)

	_, _, ok = CountryBounds("")
	assert.False(t, ok)
}

func TestAnalyzeAirspace(t *testing.T) {
	bbox := providers.BBox{LatMin: 0, LatMax: 10, LonMin: 0, LonMax: 10}
	states := []providers.StateVector{
		{ICAO24: "a", Callsign: "LOT123", OriginCountry: "Poland", HasPosition: true, Latitude: 0.5, Longitude: 0.5, BaroAltitude: 11000, Velocity: 250},
		{ICAO24: "b", Callsign: "LOT456", OriginCountry: "Poland", HasPosition: true, Latitude: 0.7, Longitude: 0.2, BaroAltitude: 5000, Velocity: 150},
		{ICAO24: "c", Callsign: "DLH9", OriginCountry: "Germany", HasPosition: true, Latitude: 10, Longitude: 10, BaroAltitude: 500, Velocity: 40},
		{ICAO24: "d", Callsign: "X", OriginCountry: "Germany", OnGround: true},
	}

	stats := AnalyzeAirspace("test", bbox, states)

	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 3, stats.Airborne)
	assert.Equal(t, 1, stats.OnGround)
	assert.Equal(t, []Count{{"Germany", 2}, {"Poland", 2}}, stats.OriginCountries)
	assert.Equal(t, []Count{{"LOT", 2}, {"DLH", 1}}, stats.Airlines)
	assert.Equal(t, map[string]int{"low": 1, "medium": 1, "high": 1, "unknown": 1}, stats.Altitudes)
	// 250 m/s = 900 km/h, 150 m/s = 540 km/h, 40 m/s = 144 km/h
	assert.Equal(t, map[string]int{"slow": 1, "medium": 1, "fast": 1, "unknown": 1}, stats.Speeds)

	assert.Equal(t, 2, stats.OccupiedZones)
	assert.Equal(t, 2, stats.MaxDensity)
	assert.InDelta(t, 1.5, stats.AverageDensity, 1e-9)
	require.Len(t, stats.TopZones, 2)
	assert.Equal(t, Zone{Row: 0, Col: 0, Count: 2}, stats.TopZones[0])
	// The upper edge lands in the last cell
	assert.Equal(t, Zone{Row: 9, Col: 9, Count: 1}, stats.TopZones[1])
}

func TestSkyAnalysis(t *testing.T) {
	t.Run("known country", func(t *testing.T) {
		fake := &scriptedLLM{extraction: `{"country":"Germany"}`}
		sky := &fakeSky{states: []providers.StateVector{{ICAO24: "a", OriginCountry: "Germany"}}}
		h, err := resolve(t, Deps{LLM: fake, Sky: sky}, TypeSkyAnalysis, "")
		require.NoError(t, err)

		reply, err := h.Process(context.Background(), "USER: traffic over Germany")
		require.NoError(t, err)
		assert.Equal(t, "answer", reply)
		require.NotNil(t, sky.bbox)
		assert.InDelta(t, 47.3, sky.bbox.LatMin, 1e-9)
		assert.Contains(t, fake.last().Prompt, `"country": "germany"`)
	})

	t.Run("unknown country lists supported ones", func(t *testing.T) {
		fake := &scriptedLLM{extraction: `{"country":"Atlantis"}`}
		sky := &fakeSky{}
		h, err := resolve(t, Deps{LLM: fake, Sky: sky}, TypeSkyAnalysis, "")
		require.NoError(t, err)

		reply, err := h.Process(context.Background(), "USER: traffic over Atlantis")
		require.NoError(t, err)
		assert.Contains(t, reply, `"Atlantis"`)
		assert.Contains(t, reply, "poland")
		assert.Nil(t, sky.bbox)
	})
}

func TestJSONObject(t *testing.T) {
	assert.Equal(t, `{"a":1}`, jsonObject("sure! ```json\n{\"a\":1}\n```"))
	assert.Empty(t, jsonObject("no braces"))
	assert.Empty(t, jsonObject("} backwards {"))
}
