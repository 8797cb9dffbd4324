package hgt

import (
	"context"
	"log/slog"
	"math"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	queryCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hgt_query_cache_hits_total",
		Help: "The total number of hits on the query cache",
	})
	queryCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hgt_query_cache_misses_total",
		Help: "The total number of misses on the query cache",
	})
	queryCacheErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hgt_query_cache_errors_total",
		Help: "The total number of failed query cache operations",
	})
)

// An ElevationService answers elevation queries from a TileSet.
type ElevationService struct {
	tileSet *TileSet
	cache   Cache
	logger  *slog.Logger
}

// An ElevationServiceOption sets an option on an ElevationService.
type ElevationServiceOption func(*ElevationService)

// NewElevationService returns a new ElevationService reading from tileSet.
func NewElevationService(tileSet *TileSet, options ...ElevationServiceOption) *ElevationService {
	s := &ElevationService{
		tileSet: tileSet,
		logger:  slog.Default(),
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// WithCache sets the query cache. A nil cache disables caching.
func WithCache(cache Cache) ElevationServiceOption {
	return func(s *ElevationService) {
		s.cache = cache
	}
}

func WithLogger(logger *slog.Logger) ElevationServiceOption {
	return func(s *ElevationService) {
		s.logger = logger
	}
}

// TileSet returns s's tile set.
func (s *ElevationService) TileSet() *TileSet {
	return s.tileSet
}

// Elevation returns the elevation at coord in meters. If no tile covers
// coord it returns NoData and a nil error.
func (s *ElevationService) Elevation(ctx context.Context, coord Coordinate, method Method) (float64, error) {
	if !method.valid() {
		return 0, &InvalidMethodError{Name: method.String()}
	}

	ref, ok, err := s.tileSet.Locate(ctx, coord)
	if err != nil {
		return 0, err
	}
	if !ok {
		return NoData, nil
	}

	fracRow, fracCol := s.FractionalPosition(coord)

	var key string
	if s.cache != nil {
		key = CacheKey(ref, fracRow, fracCol, method)
		switch value, ok, err := s.cache.Get(ctx, key); {
		case err != nil:
			queryCacheErrors.Inc()
			s.logger.WarnContext(ctx, "query cache get failed", "key", key, "err", err)
		case ok:
			queryCacheHits.Inc()
			return value, nil
		default:
			queryCacheMisses.Inc()
		}
	}

	tile, err := s.tileSet.Tile(ctx, ref)
	if err != nil {
		return 0, err
	}

	elevation, err := Interpolate(tile, method, fracRow, fracCol)
	if err != nil {
		return 0, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, elevation); err != nil {
			queryCacheErrors.Inc()
			s.logger.WarnContext(ctx, "query cache set failed", "key", key, "err", err)
		}
	}

	return elevation, nil
}

// Elevations returns the elevations at coords, in order. It stops at the
// first error.
func (s *ElevationService) Elevations(ctx context.Context, coords []Coordinate, method Method) ([]float64, error) {
	elevations := make([]float64, len(coords))
	for i, coord := range coords {
		elevation, err := s.Elevation(ctx, coord, method)
		if err != nil {
			return nil, err
		}
		elevations[i] = elevation
	}
	return elevations, nil
}

// FractionalPosition returns coord's offset within its tile in grid units,
// counted from the tile's south-west corner.
func (s *ElevationService) FractionalPosition(coord Coordinate) (fracRow, fracCol float64) {
	scale := float64(s.tileSet.Samples() - 1)
	fracRow = (coord.Lat - math.Floor(coord.Lat)) * scale
	fracCol = (coord.Lon - math.Floor(coord.Lon)) * scale
	return fracRow, fracCol
}
