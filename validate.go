package hgt

import (
	"fmt"
	"math"
)

// MaxBatchLocations is the maximum number of locations in one batch query.
const MaxBatchLocations = 100

// A ValidationError reports a user-correctable problem with a query.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// ValidateCoordinate checks that lat is in [-90, 90] and lon is in
// [-180, 180]. Both must hold.
func ValidateCoordinate(lat, lon float64) (Coordinate, error) {
	if math.IsNaN(lat) || lat < -90 || 90 < lat ||
		math.IsNaN(lon) || lon < -180 || 180 < lon {
		return Coordinate{}, &ValidationError{
			Field:   "location",
			Message: "lat must be between -90 and 90, lon must be between -180 and 180",
		}
	}
	return Coordinate{Lat: lat, Lon: lon}, nil
}

// ValidateLocations checks a batch of [lon, lat] pairs and returns them as
// coordinates in the same order.
func ValidateLocations(locations [][]float64) ([]Coordinate, error) {
	if len(locations) > MaxBatchLocations {
		return nil, &ValidationError{
			Field:   "locations",
			Message: fmt.Sprintf("max %d locations allowed per request", MaxBatchLocations),
		}
	}
	coords := make([]Coordinate, len(locations))
	for i, location := range locations {
		if len(location) != 2 {
			return nil, &ValidationError{
				Field:   fmt.Sprintf("locations[%d]", i),
				Message: fmt.Sprintf("locations[%d] %v: every location array must contain exactly 2 values", i, location),
			}
		}
		coord, err := ValidateCoordinate(location[1], location[0])
		if err != nil {
			return nil, err
		}
		coords[i] = coord
	}
	return coords, nil
}
