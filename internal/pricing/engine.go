package pricing

import (
	"errors"
	"fmt"
	"slices"
)

var ErrDistanceExceeded = errors.New("delivery distance exceeds the store's delivery radius")

// Reasons a quote carries a zero charge.
const (
	ReasonFreeDistance   = "within_free_distance"
	ReasonFreeThreshold  = "subtotal_above_threshold"
	ReasonBelowSlabRange = "below_smallest_slab"
)

// ComputeDeliveryCharge returns the delivery fee for a distance and cart
// subtotal. It is pure; the max-distance check belongs to the caller.
func ComputeDeliveryCharge(distanceKm, cartSubtotal float64, settings DeliverySettings) float64 {
	charge, _ := computeCharge(distanceKm, cartSubtotal, settings)
	return charge
}

func computeCharge(distanceKm, cartSubtotal float64, settings DeliverySettings) (float64, string) {
	if distanceKm <= settings.FreeDistanceLimitKm {
		return 0, ReasonFreeDistance
	}
	if cartSubtotal >= settings.FreeDeliveryThresholdAmount {
		return 0, ReasonFreeThreshold
	}

	slab, ok := selectSlab(distanceKm, settings.Slabs)
	if !ok {
		return 0, ReasonBelowSlabRange
	}
	return slab.ChargeAmount, ""
}

// selectSlab picks the last slab, ordered by min distance, whose min is at or
// below distanceKm. Gaps between slabs resolve to the nearest lower slab.
func selectSlab(distanceKm float64, slabs []DeliverySlab) (DeliverySlab, bool) {
	sorted := slices.Clone(slabs)
	slices.SortStableFunc(sorted, func(a, b DeliverySlab) int {
		switch {
		case a.MinDistanceKm < b.MinDistanceKm:
			return -1
		case a.MinDistanceKm > b.MinDistanceKm:
			return 1
		}
		return 0
	})

	var (
		picked DeliverySlab
		found  bool
	)
	for _, slab := range sorted {
		if slab.MinDistanceKm <= distanceKm {
			picked, found = slab, true
		}
	}
	return picked, found
}

// Quote is the priced delivery for a checkout.
type Quote struct {
	DistanceKm         float64 `json:"distance_km"`
	DeliveryCharge     float64 `json:"delivery_charge"`
	FreeDeliveryReason string  `json:"free_delivery_reason,omitempty"`
}

// BuildQuote enforces the delivery radius and prices the delivery.
func BuildQuote(distanceKm, cartSubtotal float64, settings DeliverySettings) (Quote, error) {
	if distanceKm > settings.MaxDeliveryDistanceKm {
		return Quote{}, fmt.Errorf("%w: %.2f km > %.2f km", ErrDistanceExceeded, distanceKm, settings.MaxDeliveryDistanceKm)
	}
	charge, reason := computeCharge(distanceKm, cartSubtotal, settings)
	return Quote{DistanceKm: distanceKm, DeliveryCharge: charge, FreeDeliveryReason: reason}, nil
}
