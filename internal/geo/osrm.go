package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OSRMClient is a RoutingProvider backed by an OSRM-compatible HTTP API.
type OSRMClient struct {
	baseURL string
	profile string
	client  *http.Client
}

type osrmResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Routes  []struct {
		Distance float64         `json:"distance"`
		Geometry json.RawMessage `json:"geometry"`
	} `json:"routes"`
}

func NewOSRMClient(baseURL string) *OSRMClient {
	return &OSRMClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		profile: "driving",
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *OSRMClient) Route(ctx context.Context, origin, destination Coordinate) (*Route, error) {
	// OSRM takes lon,lat pairs.
	url := fmt.Sprintf("%s/route/v1/%s/%f,%f;%f,%f?overview=simplified&geometries=polyline",
		c.baseURL, c.profile,
		origin.Longitude, origin.Latitude,
		destination.Longitude, destination.Latitude,
	)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: unexpected status %d, body: %s", ErrProviderUnavailable, resp.StatusCode, string(body))
	}

	var res osrmResponse
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrProviderUnavailable, err)
	}
	if res.Code != "Ok" {
		return nil, fmt.Errorf("%w: routing code %s: %s", ErrProviderUnavailable, res.Code, res.Message)
	}
	if len(res.Routes) == 0 {
		return nil, fmt.Errorf("%w: no route", ErrProviderUnavailable)
	}

	route := &Route{DistanceMeters: res.Routes[0].Distance}
	var polyline string
	if err := json.Unmarshal(res.Routes[0].Geometry, &polyline); err == nil {
		route.Geometry = polyline
	}
	return route, nil
}
