package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"log"
	"math"
	"net/http"
	"net/url"
	"time"
)

const defaultBaseURL = "https://api.openweathermap.org/data/2.5/weather"

// ErrUnavailable indicates the oracle could not produce a verified reading.
// Callers degrade to Estimate instead of surfacing it.
var ErrUnavailable = errors.New("temperature oracle unavailable")

// TemperatureSource is the oracle contract: a location resolves to an
// independently sourced temperature reading.
type TemperatureSource interface {
	Temperature(ctx context.Context, location string) (float64, error)
}

// Reading is a full weather observation for display purposes; the ledger core
// consumes only Temperature.
type Reading struct {
	Temperature float64   `json:"temperature"`
	Humidity    float64   `json:"humidity"`
	Conditions  string    `json:"conditions"`
	Location    string    `json:"location"`
	Timestamp   time.Time `json:"timestamp"`
}

// Client fetches verified temperatures from the OpenWeather API
type Client struct {
	apiKey     string
	baseURL    string
	country    string
	httpClient *http.Client
}

func NewClient(apiKey string) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		country: "IN",
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type weatherPayload struct {
	Main struct {
		Temp     float64 `json:"temp"`
		Humidity float64 `json:"humidity"`
	} `json:"main"`
	Weather []struct {
		Description string `json:"description"`
	} `json:"weather"`
	Name string `json:"name"`
}

// Temperature returns the oracle reading for a location, rounded to one
// decimal place.
func (c *Client) Temperature(ctx context.Context, location string) (float64, error) {
	payload, err := c.fetch(ctx, location)
	if err != nil {
		return 0, err
	}
	return round1(payload.Main.Temp), nil
}

// Verify returns the full weather observation for a location
func (c *Client) Verify(ctx context.Context, location string) (*Reading, error) {
	payload, err := c.fetch(ctx, location)
	if err != nil {
		return nil, err
	}

	conditions := "Unknown"
	if len(payload.Weather) > 0 {
		conditions = payload.Weather[0].Description
	}
	name := payload.Name
	if name == "" {
		name = location
	}

	return &Reading{
		Temperature: round1(payload.Main.Temp),
		Humidity:    payload.Main.Humidity,
		Conditions:  conditions,
		Location:    name,
		Timestamp:   time.Now(),
	}, nil
}

func (c *Client) fetch(ctx context.Context, location string) (*weatherPayload, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("%w: no API key configured", ErrUnavailable)
	}

	query := url.Values{}
	query.Set("q", location+","+c.country)
	query.Set("appid", c.apiKey)
	query.Set("units", "metric")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %s", ErrUnavailable, resp.Status)
	}

	var payload weatherPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &payload, nil
}

// baseTemperatures seeds the fallback estimate per known location
var baseTemperatures = map[string]float64{
	"Mumbai":    32,
	"Delhi":     28,
	"Bangalore": 24,
	"Chennai":   30,
	"Kolkata":   29,
	"Hyderabad": 26,
	"Pune":      25,
	"Ahmedabad": 31,
	"Jaipur":    27,
	"Lucknow":   23,
	"Surat":     33,
	"Kanpur":    26,
	"Nagpur":    29,
	"Indore":    27,
	"Thane":     31,
}

// Estimate returns a deterministic location-keyed temperature estimate. The
// same location always yields the same estimate, so event validity stays
// stable across retries during an oracle outage.
func Estimate(location string) float64 {
	base, ok := baseTemperatures[location]
	if !ok {
		base = 25
	}

	h := fnv.New32a()
	h.Write([]byte(location))
	variation := float64(h.Sum32()%100)/10.0 - 5.0 // [-5.0, 4.9]

	return round1(base + variation)
}

// Resolve is the single fallback policy for custody-event verification: ask
// the source, and degrade to the deterministic estimate on any failure. It
// never returns an error, so recording an event cannot fail on oracle outage.
func Resolve(ctx context.Context, src TemperatureSource, location string) float64 {
	if src != nil {
		temp, err := src.Temperature(ctx, location)
		if err == nil {
			return temp
		}
		log.Printf("[Oracle] Lookup for %q failed: %v; using estimate", location, err)
	}
	return Estimate(location)
}

// EstimateReading returns a full fallback observation for display endpoints
func EstimateReading(location string) *Reading {
	temp := Estimate(location)
	conditions := "Moderate"
	switch {
	case temp > 30:
		conditions = "Hot"
	case temp < 10:
		conditions = "Cold"
	}
	return &Reading{
		Temperature: temp,
		Humidity:    50,
		Conditions:  conditions,
		Location:    location,
		Timestamp:   time.Now(),
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
