package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultUserAgent = "grocery-orders/1.0"

var ErrEmptyQuery = errors.New("geocoding query is empty")

// Place is a geocoding search hit.
type Place struct {
	Coordinate
	DisplayName string `json:"display_name"`
}

// ReverseResult is a reverse-geocoded address.
type ReverseResult struct {
	DisplayName string            `json:"display_name"`
	Address     map[string]string `json:"address"`
}

// GeocodingClient talks to a Nominatim-compatible geocoder.
type GeocodingClient struct {
	baseURL   string
	userAgent string
	limit     int
	client    *http.Client
}

func NewGeocodingClient(baseURL string) *GeocodingClient {
	return &GeocodingClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: defaultUserAgent,
		limit:     5,
		client:    &http.Client{Timeout: 10 * time.Second},
	}
}

type nominatimPlace struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// Search resolves free text into candidate places.
func (c *GeocodingClient) Search(ctx context.Context, query string) ([]Place, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	params := url.Values{}
	params.Set("format", "json")
	params.Set("q", query)
	params.Set("limit", strconv.Itoa(c.limit))

	var raw []nominatimPlace
	if err := c.get(ctx, "/search", params, &raw); err != nil {
		return nil, err
	}

	places := make([]Place, 0, len(raw))
	for _, p := range raw {
		lat, errLat := strconv.ParseFloat(p.Lat, 64)
		lon, errLon := strconv.ParseFloat(p.Lon, 64)
		if errLat != nil || errLon != nil {
			continue
		}
		places = append(places, Place{
			Coordinate:  Coordinate{Latitude: lat, Longitude: lon},
			DisplayName: p.DisplayName,
		})
	}
	return places, nil
}

// Reverse returns the address at the given point.
func (c *GeocodingClient) Reverse(ctx context.Context, point Coordinate) (*ReverseResult, error) {
	if err := point.Validate(); err != nil {
		return nil, err
	}
	params := url.Values{}
	params.Set("format", "json")
	params.Set("lat", strconv.FormatFloat(point.Latitude, 'f', -1, 64))
	params.Set("lon", strconv.FormatFloat(point.Longitude, 'f', -1, 64))

	var res ReverseResult
	if err := c.get(ctx, "/reverse", params, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *GeocodingClient) get(ctx context.Context, path string, params url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: unexpected status %d, body: %s", ErrProviderUnavailable, resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrProviderUnavailable, err)
	}
	return nil
}
