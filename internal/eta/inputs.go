package eta

import (
	"math"
	"sort"

	"github.com/chrisdamba/foodmarket/internal/models"
)

const earthRadiusKm = 6371.0 // Earth's radius in kilometers

// PrepPercentiles returns nearest-rank p50 and p90 of historical prep times.
func PrepPercentiles(samples []float64) (p50, p90 float64) {
	if len(samples) == 0 {
		return 0, 0
	}
	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)
	return nearestRank(sorted, 0.5), nearestRank(sorted, 0.9)
}

func nearestRank(sorted []float64, p float64) float64 {
	rank := int(math.Ceil(p * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1]
}

// PrepMinutes extracts the observed prep duration of each completed order.
func PrepMinutes(orders []models.Order) []float64 {
	samples := make([]float64, 0, len(orders))
	for _, order := range orders {
		if order.PrepStartTime.IsZero() || order.PickupTime.IsZero() {
			continue
		}
		samples = append(samples, order.PickupTime.Sub(order.PrepStartTime).Minutes())
	}
	return samples
}

// ReliabilityFromOrders scores how closely a restaurant's pickup estimates
// matched reality over its recent orders. No history counts as reliable.
func ReliabilityFromOrders(orders []models.Order) float64 {
	var reliabilitySum float64
	var counted int
	for _, order := range orders {
		if order.PrepStartTime.IsZero() || order.PickupTime.IsZero() || order.EstimatedPickupTime.IsZero() {
			continue
		}
		// calculate preparation time accuracy
		estimatedPrep := order.EstimatedPickupTime.Sub(order.PrepStartTime)
		actualPrep := order.PickupTime.Sub(order.PrepStartTime)
		prepAccuracy := 1.0 - math.Min(1.0, math.Abs(actualPrep.Minutes()-estimatedPrep.Minutes())/30.0)

		// cancelled orders count as an item-accuracy miss
		orderAccuracy := 1.0
		if order.Status == models.OrderStatusCancelled {
			orderAccuracy = 0
		}

		reliabilitySum += prepAccuracy*0.7 + orderAccuracy*0.3
		counted++
	}
	if counted == 0 {
		return 1.0
	}
	return reliabilitySum / float64(counted)
}

// TravelMinutes estimates courier travel time from straight-line distance.
func TravelMinutes(from, to models.Location, speedKmh float64) float64 {
	if speedKmh <= 0 {
		return 0
	}
	return Distance(from, to) / speedKmh * 60
}

// Distance is the haversine distance in kilometers.
func Distance(loc1, loc2 models.Location) float64 {
	lat1 := degreesToRadians(loc1.Lat)
	lon1 := degreesToRadians(loc1.Lon)
	lat2 := degreesToRadians(loc2.Lat)
	lon2 := degreesToRadians(loc2.Lon)

	dlat := lat2 - lat1
	dlon := lon2 - lon1
	a := math.Pow(math.Sin(dlat/2), 2) + math.Cos(lat1)*math.Cos(lat2)*math.Pow(math.Sin(dlon/2), 2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}

func degreesToRadians(degrees float64) float64 {
	return degrees * math.Pi / 180
}
