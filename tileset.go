package hgt

import (
	"context"
	"io/fs"
	"strconv"

	"github.com/cockroachdb/errors"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/singleflight"
)

var (
	missingTiles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hgt_missing_tiles_total",
		Help: "The total number of lookups for tiles absent from the archive",
	})
	tileCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hgt_tile_cache_hits_total",
		Help: "The total number of hits on the tile cache",
	})
	tileCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hgt_tile_cache_misses_total",
		Help: "The total number of misses on the tile cache",
	})
	tileCacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hgt_tile_cache_evictions_total",
		Help: "The total number of evictions from the tile cache",
	})
	tileCacheStale = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hgt_tile_cache_stale_total",
		Help: "The total number of cached tiles discarded because the archive file changed",
	})
)

// A TileFilenameFunc returns the archive filename for a tile id.
type TileFilenameFunc func(TileID) string

// A TileRef is a located tile: its id, its filename in the archive and the
// version of that file when it was located.
type TileRef struct {
	ID       TileID
	Filename string
	Version  string
}

type cachedTile struct {
	version string
	tile    *Tile
}

// A TileSet is an archive of HGT tiles.
type TileSet struct {
	fsys             fs.FS
	samples          int
	tileFilenameFunc TileFilenameFunc
	cacheSize        int
	tileCache        *lru.Cache[TileID, cachedTile]
	loads            singleflight.Group
}

// A TileSetOption sets an option on a TileSet.
type TileSetOption func(*TileSet)

// NewTileSet returns a new TileSet with the given options.
func NewTileSet(options ...TileSetOption) (*TileSet, error) {
	s := &TileSet{
		samples:          SRTM1Samples,
		tileFilenameFunc: TileID.Filename,
		cacheSize:        8,
	}
	for _, option := range options {
		option(s)
	}

	if s.fsys == nil {
		return nil, errors.New("tile set: no filesystem")
	}
	if s.samples < 2 {
		return nil, errors.Newf("tile set: invalid sample count %d", s.samples)
	}

	if s.cacheSize > 0 {
		var err error
		s.tileCache, err = lru.New[TileID, cachedTile](s.cacheSize)
		if err != nil {
			return nil, err
		}
	}
	return s, nil
}

// WithTileCacheSize sets the number of decoded tiles kept in memory. Zero
// disables the tile cache. Each SRTM1 tile takes about 26MB.
func WithTileCacheSize(cacheSize int) TileSetOption {
	return func(s *TileSet) {
		s.cacheSize = cacheSize
	}
}

func WithFS(fsys fs.FS) TileSetOption {
	return func(s *TileSet) {
		s.fsys = fsys
	}
}

func WithSamples(samples int) TileSetOption {
	return func(s *TileSet) {
		s.samples = samples
	}
}

func WithTileFilenameFunc(tileFilenameFunc TileFilenameFunc) TileSetOption {
	return func(s *TileSet) {
		s.tileFilenameFunc = tileFilenameFunc
	}
}

// Samples returns the number of samples per tile row.
func (s *TileSet) Samples() int {
	return s.samples
}

// Locate returns the tile that holds coord. If the archive has no file for
// it, ok is false and err is nil.
func (s *TileSet) Locate(ctx context.Context, coord Coordinate) (ref TileRef, ok bool, err error) {
	id := TileIDFor(coord.Lat, coord.Lon)
	filename := s.tileFilenameFunc(id)
	switch fileInfo, err := fs.Stat(s.fsys, filename); {
	case errors.Is(err, fs.ErrNotExist):
		missingTiles.Inc()
		return TileRef{}, false, nil
	case err != nil:
		return TileRef{}, false, &DecodeError{Filename: filename, Err: err}
	case !fileInfo.Mode().IsRegular():
		missingTiles.Inc()
		return TileRef{}, false, nil
	default:
		return TileRef{
			ID:       id,
			Filename: filename,
			Version:  strconv.FormatInt(fileInfo.ModTime().UnixNano(), 36) + "-" + strconv.FormatInt(fileInfo.Size(), 36),
		}, true, nil
	}
}

// Tile returns the decoded tile for ref, using the cache if possible. A cached
// tile whose version differs from ref's is replaced. Concurrent misses for the
// same tile version share one decode; misses for different tiles decode in
// parallel.
func (s *TileSet) Tile(ctx context.Context, ref TileRef) (*Tile, error) {
	if s.tileCache == nil {
		return OpenTile(s.fsys, ref.Filename, s.samples)
	}

	if cached, ok := s.tileCache.Get(ref.ID); ok && cached.version == ref.Version {
		tileCacheHits.Inc()
		return cached.tile, nil
	}

	value, err, _ := s.loads.Do(ref.ID.String()+"@"+ref.Version, func() (any, error) {
		if cached, ok := s.tileCache.Get(ref.ID); ok {
			if cached.version == ref.Version {
				tileCacheHits.Inc()
				return cached.tile, nil
			}
			tileCacheStale.Inc()
		}

		tileCacheMisses.Inc()

		tile, err := OpenTile(s.fsys, ref.Filename, s.samples)
		if err != nil {
			return nil, err
		}

		// Adding replaces a stale entry for the same id without evicting.
		if eviction := s.tileCache.Add(ref.ID, cachedTile{
			version: ref.Version,
			tile:    tile,
		}); eviction {
			tileCacheEvictions.Inc()
		}

		return tile, nil
	})
	if err != nil {
		return nil, err
	}
	return value.(*Tile), nil
}
