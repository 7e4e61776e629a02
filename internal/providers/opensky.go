// ABOUTME: OpenSky Network REST client for state vectors, flights, and tracks
// ABOUTME: Decodes the positional state arrays and treats 404 flight lookups as empty results

package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// DefaultOpenSkyURL is the OpenSky Network REST API root.
const DefaultOpenSkyURL = "https://opensky-network.org/api"

// BBox is a latitude/longitude bounding box in degrees.
type BBox struct {
	LatMin float64 `json:"lat_min"`
	LatMax float64 `json:"lat_max"`
	LonMin float64 `json:"lon_min"`
	LonMax float64 `json:"lon_max"`
}

// Normalize returns the box with min/max ordered.
func (b BBox) Normalize() BBox {
	return BBox{
		LatMin: min(b.LatMin, b.LatMax),
		LatMax: max(b.LatMin, b.LatMax),
		LonMin: min(b.LonMin, b.LonMax),
		LonMax: max(b.LonMin, b.LonMax),
	}
}

// StateVector is one aircraft's reported state.
type StateVector struct {
	ICAO24        string  `json:"icao24"`
	Callsign      string  `json:"callsign,omitempty"`
	OriginCountry string  `json:"origin_country"`
	LastContact   int64   `json:"last_contact"`
	HasPosition   bool    `json:"has_position"`
	Longitude     float64 `json:"longitude,omitempty"`
	Latitude      float64 `json:"latitude,omitempty"`
	BaroAltitude  float64 `json:"baro_altitude_m,omitempty"` // 0 when unknown
	OnGround      bool    `json:"on_ground"`
	Velocity      float64 `json:"velocity_ms,omitempty"` // 0 when unknown
	TrueTrack     float64 `json:"true_track,omitempty"`
	VerticalRate  float64 `json:"vertical_rate,omitempty"`
	GeoAltitude   float64 `json:"geo_altitude_m,omitempty"`
	Squawk        string  `json:"squawk,omitempty"`
}

// Flight is one flight as estimated by OpenSky.
type Flight struct {
	ICAO24              string    `json:"icao24"`
	Callsign            string    `json:"callsign,omitempty"`
	EstDepartureAirport string    `json:"departure_airport,omitempty"`
	EstArrivalAirport   string    `json:"arrival_airport,omitempty"`
	FirstSeen           time.Time `json:"first_seen"`
	LastSeen            time.Time `json:"last_seen"`
}

// Waypoint is one point of a track.
type Waypoint struct {
	Time         time.Time `json:"time"`
	Latitude     float64   `json:"latitude"`
	Longitude    float64   `json:"longitude"`
	BaroAltitude float64   `json:"baro_altitude_m"`
	TrueTrack    float64   `json:"true_track"`
	OnGround     bool      `json:"on_ground"`
}

// Track is an aircraft's trajectory.
type Track struct {
	ICAO24    string     `json:"icao24"`
	Callsign  string     `json:"callsign,omitempty"`
	StartTime time.Time  `json:"start_time"`
	EndTime   time.Time  `json:"end_time"`
	Path      []Waypoint `json:"path"`
}

// OpenSkyClient talks to the OpenSky Network API.
type OpenSkyClient struct {
	fetch    *Fetcher
	baseURL  string
	username string
	password string
}

// NewOpenSkyClient creates a client. Credentials are optional; anonymous
// access has lower rate limits and no historical flight data.
func NewOpenSkyClient(fetch *Fetcher, baseURL, username, password string) *OpenSkyClient {
	if baseURL == "" {
		baseURL = DefaultOpenSkyURL
	}
	return &OpenSkyClient{
		fetch:    fetch,
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		password: password,
	}
}

// States returns current state vectors, optionally limited to a bounding box.
func (c *OpenSkyClient) States(ctx context.Context, bbox *BBox) ([]StateVector, error) {
	params := url.Values{}
	if bbox != nil {
		b := bbox.Normalize()
		params.Set("lamin", formatCoord(b.LatMin))
		params.Set("lamax", formatCoord(b.LatMax))
		params.Set("lomin", formatCoord(b.LonMin))
		params.Set("lomax", formatCoord(b.LonMax))
	}

	data, err := c.get(ctx, "/states/all", params)
	if err != nil {
		return nil, fmt.Errorf("opensky states: %w", err)
	}

	states := []StateVector{}
	for _, row := range data.Get("states").Array() {
		states = append(states, parseState(row.Array()))
	}
	return states, nil
}

func parseState(f []gjson.Result) StateVector {
	field := func(i int) gjson.Result {
		if i < len(f) {
			return f[i]
		}
		return gjson.Result{}
	}
	sv := StateVector{
		ICAO24:        field(0).String(),
		Callsign:      strings.TrimSpace(field(1).String()),
		OriginCountry: field(2).String(),
		LastContact:   field(4).Int(),
		Longitude:     field(5).Float(),
		Latitude:      field(6).Float(),
		BaroAltitude:  field(7).Float(),
		OnGround:      field(8).Bool(),
		Velocity:      field(9).Float(),
		TrueTrack:     field(10).Float(),
		VerticalRate:  field(11).Float(),
		GeoAltitude:   field(13).Float(),
		Squawk:        field(14).String(),
	}
	sv.HasPosition = field(5).Type == gjson.Number && field(6).Type == gjson.Number
	return sv
}

// ArrivalsByAirport returns flights that arrived at an ICAO airport in [begin, end].
func (c *OpenSkyClient) ArrivalsByAirport(ctx context.Context, airport string, begin, end time.Time) ([]Flight, error) {
	return c.flights(ctx, "/flights/arrival", url.Values{"airport": {strings.ToUpper(airport)}}, begin, end)
}

// DeparturesByAirport returns flights that departed an ICAO airport in [begin, end].
func (c *OpenSkyClient) DeparturesByAirport(ctx context.Context, airport string, begin, end time.Time) ([]Flight, error) {
	return c.flights(ctx, "/flights/departure", url.Values{"airport": {strings.ToUpper(airport)}}, begin, end)
}

// FlightsByAircraft returns flights flown by an aircraft in [begin, end].
func (c *OpenSkyClient) FlightsByAircraft(ctx context.Context, icao24 string, begin, end time.Time) ([]Flight, error) {
	return c.flights(ctx, "/flights/aircraft", url.Values{"icao24": {strings.ToLower(icao24)}}, begin, end)
}

func (c *OpenSkyClient) flights(ctx context.Context, path string, params url.Values, begin, end time.Time) ([]Flight, error) {
	params.Set("begin", strconv.FormatInt(begin.Unix(), 10))
	params.Set("end", strconv.FormatInt(end.Unix(), 10))

	data, err := c.get(ctx, path, params)
	if StatusOf(err) == http.StatusNotFound {
		// OpenSky answers 404 when no flights match
		return []Flight{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opensky %s: %w", path, err)
	}

	flights := []Flight{}
	for _, f := range data.Array() {
		flights = append(flights, Flight{
			ICAO24:              f.Get("icao24").String(),
			Callsign:            strings.TrimSpace(f.Get("callsign").String()),
			EstDepartureAirport: f.Get("estDepartureAirport").String(),
			EstArrivalAirport:   f.Get("estArrivalAirport").String(),
			FirstSeen:           time.Unix(f.Get("firstSeen").Int(), 0).UTC(),
			LastSeen:            time.Unix(f.Get("lastSeen").Int(), 0).UTC(),
		})
	}
	return flights, nil
}

// Track returns the trajectory of an aircraft at time t. A zero t asks for
// the live track. An unknown track yields an empty path.
func (c *OpenSkyClient) Track(ctx context.Context, icao24 string, t time.Time) (*Track, error) {
	params := url.Values{"icao24": {strings.ToLower(icao24)}, "time": {"0"}}
	if !t.IsZero() {
		params.Set("time", strconv.FormatInt(t.Unix(), 10))
	}

	data, err := c.get(ctx, "/tracks/all", params)
	if StatusOf(err) == http.StatusNotFound {
		return &Track{ICAO24: strings.ToLower(icao24), Path: []Waypoint{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opensky track: %w", err)
	}

	track := &Track{
		ICAO24:    data.Get("icao24").String(),
		Callsign:  strings.TrimSpace(data.Get("callsign").String()),
		StartTime: time.Unix(data.Get("startTime").Int(), 0).UTC(),
		EndTime:   time.Unix(data.Get("endTime").Int(), 0).UTC(),
	}
	for _, p := range data.Get("path").Array() {
		f := p.Array()
		if len(f) < 6 {
			continue
		}
		track.Path = append(track.Path, Waypoint{
			Time:         time.Unix(f[0].Int(), 0).UTC(),
			Latitude:     f[1].Float(),
			Longitude:    f[2].Float(),
			BaroAltitude: f[3].Float(),
			TrueTrack:    f[4].Float(),
			OnGround:     f[5].Bool(),
		})
	}
	return track, nil
}

func (c *OpenSkyClient) get(ctx context.Context, path string, params url.Values) (gjson.Result, error) {
	return c.fetch.GetJSON(ctx, c.baseURL+path, params, func(req *http.Request) {
		if c.username != "" {
			req.SetBasicAuth(c.username, c.password)
		}
	})
}

func formatCoord(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
