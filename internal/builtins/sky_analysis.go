// ABOUTME: Sky analysis agent type that summarizes a country's airspace from OpenSky state vectors
// ABOUTME: Holds the country bounding-box table and the traffic statistics computed before answering

package builtins

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/2389/agentdesk/internal/agent"
	"github.com/2389/agentdesk/internal/providers"
)

const skyAnalysisSystem = `You are an airspace analyst. Summarize the traffic situation over the requested country:
volume, airborne versus on-ground share, dominant origin countries and airlines, altitude and speed profile, and hot spots.`

const skyAnalysisSchema = `{"type":"object","properties":{"country":{"type":"string","description":"country name in English"}},"required":["country"]}`

// countryBounds maps lower-case country names to lat/lon boxes.
var countryBounds = map[string]providers.BBox{
	"poland":                 {LatMin: 49.0, LatMax: 54.8, LonMin: 14.1, LonMax: 24.2},
	"ukraine":                {LatMin: 44.3, LatMax: 52.4, LonMin: 22.1, LonMax: 40.2},
	"germany":                {LatMin: 47.3, LatMax: 55.1, LonMin: 5.9, LonMax: 15.0},
	"france":                 {LatMin: 41.4, LatMax: 51.1, LonMin: -5.1, LonMax: 9.6},
	"spain":                  {LatMin: 27.6, LatMax: 43.8, LonMin: -18.2, LonMax: 4.3},
	"italy":                  {LatMin: 35.5, LatMax: 47.1, LonMin: 6.6, LonMax: 18.5},
	"united kingdom":         {LatMin: 49.9, LatMax: 60.8, LonMin: -8.6, LonMax: 1.8},
	"netherlands":            {LatMin: 50.8, LatMax: 53.6, LonMin: 3.4, LonMax: 7.2},
	"belgium":                {LatMin: 49.5, LatMax: 51.5, LonMin: 2.5, LonMax: 6.4},
	"czech republic":         {LatMin: 48.6, LatMax: 51.1, LonMin: 12.1, LonMax: 18.9},
	"austria":                {LatMin: 46.4, LatMax: 49.0, LonMin: 9.5, LonMax: 17.2},
	"switzerland":            {LatMin: 45.8, LatMax: 47.8, LonMin: 5.9, LonMax: 10.5},
	"slovakia":               {LatMin: 47.7, LatMax: 49.6, LonMin: 16.8, LonMax: 22.6},
	"hungary":                {LatMin: 45.7, LatMax: 48.6, LonMin: 16.1, LonMax: 22.9},
	"romania":                {LatMin: 43.6, LatMax: 48.3, LonMin: 20.3, LonMax: 29.7},
	"bulgaria":               {LatMin: 41.2, LatMax: 44.2, LonMin: 22.4, LonMax: 28.6},
	"greece":                 {LatMin: 34.8, LatMax: 41.7, LonMin: 19.4, LonMax: 29.6},
	"turkey":                 {LatMin: 35.8, LatMax: 42.1, LonMin: 25.7, LonMax: 44.8},
	"norway":                 {LatMin: 57.9, LatMax: 71.2, LonMin: 4.6, LonMax: 31.3},
	"sweden":                 {LatMin: 55.3, LatMax: 69.1, LonMin: 11.1, LonMax: 24.2},
	"finland":                {LatMin: 59.8, LatMax: 70.1, LonMin: 20.5, LonMax: 31.6},
	"denmark":                {LatMin: 54.6, LatMax: 57.8, LonMin: 8.1, LonMax: 15.2},
	"portugal":               {LatMin: 32.4, LatMax: 42.2, LonMin: -31.3, LonMax: -6.2},
	"ireland":                {LatMin: 51.4, LatMax: 55.4, LonMin: -10.5, LonMax: -6.0},
	"croatia":                {LatMin: 42.4, LatMax: 46.5, LonMin: 13.5, LonMax: 19.4},
	"serbia":                 {LatMin: 42.2, LatMax: 46.2, LonMin: 18.8, LonMax: 23.0},
	"bosnia and herzegovina": {LatMin: 42.6, LatMax: 45.3, LonMin: 15.7, LonMax: 19.6},
	"slovenia":               {LatMin: 45.4, LatMax: 46.9, LonMin: 13.4, LonMax: 16.6},
	"montenegro":             {LatMin: 41.9, LatMax: 43.5, LonMin: 18.4, LonMax: 20.4},
	"north macedonia":        {LatMin: 40.9, LatMax: 42.4, LonMin: 20.5, LonMax: 23.0},
	"albania":                {LatMin: 39.6, LatMax: 42.7, LonMin: 19.3, LonMax: 21.1},
	"latvia":                 {LatMin: 55.7, LatMax: 58.1, LonMin: 21.0, LonMax: 28.2},
	"lithuania":              {LatMin: 53.9, LatMax: 56.4, LonMin: 21.0, LonMax: 26.8},
	"estonia":                {LatMin: 57.5, LatMax: 59.7, LonMin: 21.8, LonMax: 28.2},
	"moldova":                {LatMin: 45.5, LatMax: 48.5, LonMin: 26.6, LonMax: 30.1},
	"belarus":                {LatMin: 51.3, LatMax: 56.2, LonMin: 23.2, LonMax: 32.8},
	"usa":                    {LatMin: 24.4, LatMax: 71.4, LonMin: -179.1, LonMax: -66.9},
	"canada":                 {LatMin: 41.7, LatMax: 83.1, LonMin: -141.0, LonMax: -52.6},
	"japan":                  {LatMin: 24.0, LatMax: 45.6, LonMin: 122.9, LonMax: 153.9},
	"south korea":            {LatMin: 33.1, LatMax: 38.6, LonMin: 124.6, LonMax: 131.9},
	"china":                  {LatMin: 18.2, LatMax: 53.6, LonMin: 73.5, LonMax: 134.8},
	"australia":              {LatMin: -43.6, LatMax: -10.7, LonMin: 113.3, LonMax: 153.6},
}

// CountryBounds returns the bounding box for a country name. Exact matches
// win; otherwise the first name (alphabetically) that contains or is
// contained by the query is used.
func CountryBounds(name string) (string, providers.BBox, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return "", providers.BBox{}, false
	}
	if b, ok := countryBounds[key]; ok {
		return key, b, true
	}
	for _, k := range Countries() {
		if strings.Contains(k, key) || strings.Contains(key, k) {
			return k, countryBounds[k], true
		}
	}
	return "", providers.BBox{}, false
}

// Countries lists the supported country names, sorted.
func Countries() []string {
	names := make([]string, 0, len(countryBounds))
	for k := range countryBounds {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Count is a labelled tally.
type Count struct {
	Key string `json:"key"`
	N   int    `json:"n"`
}

// Zone is one cell of the density grid.
type Zone struct {
	Row   int `json:"row"`
	Col   int `json:"col"`
	Count int `json:"count"`
}

// AirspaceStats summarizes state vectors inside a bounding box.
type AirspaceStats struct {
	Country         string         `json:"country"`
	BBox            providers.BBox `json:"bbox"`
	Total           int            `json:"total_aircraft"`
	Airborne        int            `json:"airborne"`
	OnGround        int            `json:"on_ground"`
	OriginCountries []Count        `json:"origin_countries"`
	Airlines        []Count        `json:"airlines"`
	Altitudes       map[string]int `json:"altitude_bands"`
	Speeds          map[string]int `json:"speed_bands"`
	OccupiedZones   int            `json:"occupied_zones"`
	MaxDensity      int            `json:"max_zone_density"`
	AverageDensity  float64        `json:"average_zone_density"`
	TopZones        []Zone         `json:"top_zones"`
}

const (
	gridSize = 10
	topN     = 10
)

// AnalyzeAirspace computes traffic statistics for states inside bbox.
func AnalyzeAirspace(country string, bbox providers.BBox, states []providers.StateVector) AirspaceStats {
	bbox = bbox.Normalize()
	stats := AirspaceStats{
		Country:   country,
		BBox:      bbox,
		Total:     len(states),
		Altitudes: map[string]int{"low": 0, "medium": 0, "high": 0, "unknown": 0},
		Speeds:    map[string]int{"slow": 0, "medium": 0, "fast": 0, "unknown": 0},
	}

	origins := map[string]int{}
	airlines := map[string]int{}
	grid := map[[2]int]int{}
	latStep := (bbox.LatMax - bbox.LatMin) / gridSize
	lonStep := (bbox.LonMax - bbox.LonMin) / gridSize

	for _, s := range states {
		if s.OnGround {
			stats.OnGround++
		} else {
			stats.Airborne++
		}
		if s.OriginCountry != "" {
			origins[s.OriginCountry]++
		}
		if len(s.Callsign) >= 3 {
			airlines[s.Callsign[:3]]++
		}

		switch alt := s.BaroAltitude; {
		case alt <= 0:
			stats.Altitudes["unknown"]++
		case alt < 3000:
			stats.Altitudes["low"]++
		case alt < 10000:
			stats.Altitudes["medium"]++
		default:
			stats.Altitudes["high"]++
		}

		switch kmh := s.Velocity * 3.6; {
		case kmh <= 0:
			stats.Speeds["unknown"]++
		case kmh < 200:
			stats.Speeds["slow"]++
		case kmh < 800:
			stats.Speeds["medium"]++
		default:
			stats.Speeds["fast"]++
		}

		if s.HasPosition && latStep > 0 && lonStep > 0 {
			row := clampCell(int((s.Latitude - bbox.LatMin) / latStep))
			col := clampCell(int((s.Longitude - bbox.LonMin) / lonStep))
			grid[[2]int{row, col}]++
		}
	}

	stats.OriginCountries = topCounts(origins, topN)
	stats.Airlines = topCounts(airlines, topN)

	stats.OccupiedZones = len(grid)
	positioned := 0
	zones := make([]Zone, 0, len(grid))
	for cell, n := range grid {
		positioned += n
		stats.MaxDensity = max(stats.MaxDensity, n)
		zones = append(zones, Zone{Row: cell[0], Col: cell[1], Count: n})
	}
	if len(grid) > 0 {
		stats.AverageDensity = float64(positioned) / float64(len(grid))
	}
	sort.Slice(zones, func(i, j int) bool {
		if zones[i].Count != zones[j].Count {
			return zones[i].Count > zones[j].Count
		}
		if zones[i].Row != zones[j].Row {
			return zones[i].Row < zones[j].Row
		}
		return zones[i].Col < zones[j].Col
	})
	if len(zones) > 5 {
		zones = zones[:5]
	}
	stats.TopZones = zones

	return stats
}

func clampCell(i int) int {
	return max(0, min(i, gridSize-1))
}

func topCounts(m map[string]int, n int) []Count {
	counts := make([]Count, 0, len(m))
	for k, v := range m {
		counts = append(counts, Count{Key: k, N: v})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].N != counts[j].N {
			return counts[i].N > counts[j].N
		}
		return counts[i].Key < counts[j].Key
	})
	if len(counts) > n {
		counts = counts[:n]
	}
	return counts
}

type skyAnalysisAgent struct {
	base
	source AirspaceSource
}

func (d Deps) newSkyAnalysis(spec agent.Spec) (agent.Handle, error) {
	if d.Sky == nil {
		return nil, fmt.Errorf("sky_analysis: %w", ErrProviderUnavailable)
	}
	return &skyAnalysisAgent{base: d.newBase(spec, skyAnalysisSystem), source: d.Sky}, nil
}

func (a *skyAnalysisAgent) Process(ctx context.Context, prompt string) (string, error) {
	params, err := a.extract(ctx, skyAnalysisSchema, prompt)
	if err != nil {
		return "", err
	}

	requested := params.Get("country").String()
	if strings.TrimSpace(requested) == "" {
		return a.complete(ctx, prompt)
	}

	country, bbox, ok := CountryBounds(requested)
	if !ok {
		return fmt.Sprintf("I could not find coordinates for %q. Supported countries: %s.",
			requested, strings.Join(Countries(), ", ")), nil
	}

	states, err := a.source.States(ctx, &bbox)
	if err != nil {
		return "", err
	}

	return a.answerWith(ctx, prompt, AnalyzeAirspace(country, bbox, states))
}
