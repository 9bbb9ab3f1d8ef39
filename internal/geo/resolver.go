package geo

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

const (
	SourceRouting   = "routing"
	SourceHaversine = "haversine"
)

var tracer = otel.Tracer("github.com/example/grocery-orders/internal/geo")

// Route is a road route returned by a routing provider.
type Route struct {
	DistanceMeters float64
	Geometry       string
}

// RoutingProvider looks up a road route between two points.
type RoutingProvider interface {
	Route(ctx context.Context, origin, destination Coordinate) (*Route, error)
}

// Distance is the outcome of a resolution.
type Distance struct {
	Km     float64 `json:"distance_km"`
	Source string  `json:"source"`
}

// Resolver turns two coordinates into a billable distance. It prefers the
// routing provider and falls back to haversine × RoadBufferFactor on any
// provider failure, so only invalid input produces an error.
type Resolver struct {
	provider RoutingProvider
	timeout  time.Duration
	logger   *zap.Logger
}

func NewResolver(provider RoutingProvider, timeout time.Duration, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{provider: provider, timeout: timeout, logger: logger}
}

// Resolve returns the distance in km between origin and destination.
func (r *Resolver) Resolve(ctx context.Context, origin, destination Coordinate) (float64, error) {
	d, err := r.ResolveDetailed(ctx, origin, destination)
	if err != nil {
		return 0, err
	}
	return d.Km, nil
}

// ResolveDetailed is Resolve plus the source the distance came from.
func (r *Resolver) ResolveDetailed(ctx context.Context, origin, destination Coordinate) (Distance, error) {
	if err := origin.Validate(); err != nil {
		return Distance{}, fmt.Errorf("origin: %w", err)
	}
	if err := destination.Validate(); err != nil {
		return Distance{}, fmt.Errorf("destination: %w", err)
	}
	if origin == destination {
		return Distance{Km: 0, Source: SourceHaversine}, nil
	}

	ctx, span := tracer.Start(ctx, "geo.Resolve")
	defer span.End()

	km, err := r.routeKm(ctx, origin, destination)
	if err == nil {
		span.SetAttributes(attribute.String("geo.source", SourceRouting), attribute.Float64("geo.distance_km", km))
		return Distance{Km: km, Source: SourceRouting}, nil
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, "routing failed")
	r.logger.Warn("routing provider failed, using haversine fallback",
		zap.String("origin", origin.String()),
		zap.String("destination", destination.String()),
		zap.Error(err),
	)

	km = HaversineKm(origin, destination) * RoadBufferFactor
	span.SetAttributes(attribute.String("geo.source", SourceHaversine), attribute.Float64("geo.distance_km", km))
	return Distance{Km: km, Source: SourceHaversine}, nil
}

func (r *Resolver) routeKm(ctx context.Context, origin, destination Coordinate) (float64, error) {
	if r.provider == nil {
		return 0, fmt.Errorf("%w: no routing provider configured", ErrProviderUnavailable)
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	route, err := r.provider.Route(ctx, origin, destination)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return 0, fmt.Errorf("%w: timeout: %v", ErrProviderUnavailable, err)
		}
		return 0, err
	}
	if route == nil || math.IsNaN(route.DistanceMeters) || route.DistanceMeters < 0 {
		return 0, fmt.Errorf("%w: missing route", ErrProviderUnavailable)
	}
	return route.DistanceMeters / 1000, nil
}
