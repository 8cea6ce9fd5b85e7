package factories

import (
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/lucsky/cuid"

	"github.com/chrisdamba/foodmarket/internal/models"
)

var allCuisines = []string{"Italian", "Indian", "American", "Japanese", "Mexican", "Chinese", "Thai", "Greek", "French", "Mediterranean"}

type RestaurantFactory struct {
	slugCache sync.Map // to track used slugs
}

// CreateRestaurant places a restaurant uniformly within radiusKm of center.
func (rf *RestaurantFactory) CreateRestaurant(center models.Location, radiusKm float64) models.Restaurant {
	name := fake.Company().Name()
	return models.Restaurant{
		ID:          cuid.New(),
		Name:        name,
		SlugName:    rf.createUniqueSlug(name),
		Town:        fake.Address().City(),
		Location:    RandomLocation(center, radiusKm),
		Cuisines:    []string{allCuisines[fake.IntBetween(0, len(allCuisines)-1)]},
		Rating:      fake.Float64(1, 1, 5),
		AvgPrepTime: fake.Float64(0, 10, 35),
	}
}

// RandomLocation returns a point inside a box of radiusKm around center.
func RandomLocation(center models.Location, radiusKm float64) models.Location {
	latRange := radiusKm / 111.0
	lonRange := latRange / math.Cos(center.Lat*math.Pi/180.0)
	return models.Location{
		Lat: center.Lat + (fake.Float64(6, 0, 2)-1)*latRange,
		Lon: center.Lon + (fake.Float64(6, 0, 2)-1)*lonRange,
	}
}

func (rf *RestaurantFactory) createUniqueSlug(name string) string {
	base := strings.ToLower(strings.ReplaceAll(name, " ", "-"))
	base = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			return r
		}
		return -1
	}, base)

	slug := base
	counter := 1

	for {
		if _, exists := rf.slugCache.LoadOrStore(slug, true); !exists {
			return slug
		}
		slug = fmt.Sprintf("%s-%d", base, counter)
		counter++
	}
}
