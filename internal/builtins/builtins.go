// ABOUTME: Registers the built-in agent types and provides their shared completion helpers
// ABOUTME: Each type extracts JSON parameters with the LLM, fetches provider data, then answers

package builtins

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/2389/agentdesk/internal/agent"
	"github.com/2389/agentdesk/internal/llm"
	"github.com/2389/agentdesk/internal/providers"
)

// Type keys of the built-in agents.
const (
	TypeGeneric     = "generic"
	TypeWeather     = "weather"
	TypeWindy       = "windy"
	TypeOpenSky     = "opensky"
	TypeSkyAnalysis = "sky_analysis"
)

// ErrProviderUnavailable is returned by a factory whose data provider is not configured.
var ErrProviderUnavailable = errors.New("data provider not configured")

// WeatherSource supplies city weather.
type WeatherSource interface {
	Current(ctx context.Context, city string) (*providers.CurrentWeather, error)
	Forecast(ctx context.Context, city string, days int) (*providers.Forecast, error)
	Astronomy(ctx context.Context, city string) (*providers.Astronomy, error)
}

// WindySource supplies point forecasts.
type WindySource interface {
	PointForecast(ctx context.Context, lat, lon float64) (*providers.PointForecast, error)
}

// AirspaceSource supplies aircraft states, flights, and tracks.
type AirspaceSource interface {
	States(ctx context.Context, bbox *providers.BBox) ([]providers.StateVector, error)
	ArrivalsByAirport(ctx context.Context, airport string, begin, end time.Time) ([]providers.Flight, error)
	DeparturesByAirport(ctx context.Context, airport string, begin, end time.Time) ([]providers.Flight, error)
	FlightsByAircraft(ctx context.Context, icao24 string, begin, end time.Time) ([]providers.Flight, error)
	Track(ctx context.Context, icao24 string, t time.Time) (*providers.Track, error)
}

// Deps are the collaborators the built-in agents draw on. Only LLM is
// required; a type whose provider is nil fails construction.
type Deps struct {
	LLM     llm.Completer
	Weather WeatherSource
	Windy   WindySource
	Sky     AirspaceSource
	Now     func() time.Time
	Logger  *slog.Logger
}

// Register adds every built-in type to reg.
func Register(reg *agent.Registry, deps Deps) error {
	if deps.LLM == nil {
		return errors.New("builtins: completer is required")
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	deps.Logger = deps.Logger.With("component", "builtins")

	factories := []struct {
		key     string
		factory agent.Factory
	}{
		{TypeGeneric, deps.newGeneric},
		{TypeWeather, deps.newWeather},
		{TypeWindy, deps.newWindy},
		{TypeOpenSky, deps.newOpenSky},
		{TypeSkyAnalysis, deps.newSkyAnalysis},
	}
	for _, f := range factories {
		if err := reg.Register(f.key, f.factory); err != nil {
			return fmt.Errorf("registering %s: %w", f.key, err)
		}
	}
	return nil
}

// base carries what every built-in handle needs.
type base struct {
	spec   agent.Spec
	llm    llm.Completer
	system string
	logger *slog.Logger
}

func (d Deps) newBase(spec agent.Spec, defaultSystem string) base {
	system := spec.SystemPrompt
	if system == "" {
		system = defaultSystem
	}
	return base{
		spec:   spec,
		llm:    d.LLM,
		system: system,
		logger: d.Logger.With("agent_id", spec.AgentID, "type", spec.Type),
	}
}

// complete answers the transcript with the agent's persona.
func (b base) complete(ctx context.Context, prompt string) (string, error) {
	return b.llm.Complete(ctx, llm.Request{
		System:      b.system,
		Prompt:      prompt,
		Temperature: b.spec.Temperature,
	})
}

const extractionSystem = `You extract parameters from a conversation for an API call.
Reply with a single JSON object matching this JSON schema and nothing else.
Use null for values the user did not give. Schema:
`

// extract asks the completer for the parameters described by schema and
// returns the parsed object.
func (b base) extract(ctx context.Context, schema, prompt string) (gjson.Result, error) {
	reply, err := b.llm.Complete(ctx, llm.Request{
		System:      extractionSystem + schema,
		Prompt:      prompt,
		Temperature: 0,
	})
	if err != nil {
		return gjson.Result{}, fmt.Errorf("extracting parameters: %w", err)
	}

	raw := jsonObject(reply)
	if raw == "" || !gjson.Valid(raw) {
		return gjson.Result{}, fmt.Errorf("extracting parameters: reply is not a JSON object: %q", truncate(reply, 120))
	}
	params := gjson.Parse(raw)
	b.logger.Debug("extracted parameters", "params", params.Raw)
	return params, nil
}

// answerWith asks the completer to answer the transcript using data.
func (b base) answerWith(ctx context.Context, prompt string, data any) (string, error) {
	encoded, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding provider data: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("DATA (JSON, fetched just now):\n")
	sb.Write(encoded)
	sb.WriteString("\n\nCONVERSATION:\n")
	sb.WriteString(prompt)
	sb.WriteString("\n\nAnswer the last USER message using the data above.")
	return b.complete(ctx, sb.String())
}

// jsonObject returns the outermost {...} in s, tolerating code fences and
// surrounding prose.
func jsonObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return ""
	}
	return s[start : end+1]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
