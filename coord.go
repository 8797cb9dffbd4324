package hgt

import (
	"fmt"
	"math"
)

// NoData is the sample value that marks a data void. It is also returned for
// coordinates that no tile in the archive covers.
const NoData = -32768

// Sample counts for the supported HGT resolutions.
const (
	SRTM1Samples = 3601 // One arc-second.
	SRTM3Samples = 1201 // Three arc-second.
)

// A Coordinate is a WGS84 latitude/longitude pair in degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// A TileID identifies a 1°×1° tile, e.g. N00E012.
type TileID struct {
	NS  byte
	Lat int
	EW  byte
	Lon int
}

// TileIDFor returns the id of the tile that holds lat, lon. The hemisphere
// is chosen from the sign of the raw value and the magnitude by truncating
// its absolute value, so -0.5 maps to S00 and -1.5 to S01.
func TileIDFor(lat, lon float64) TileID {
	id := TileID{
		NS:  'N',
		Lat: int(math.Abs(lat)),
		EW:  'E',
		Lon: int(math.Abs(lon)),
	}
	if lat < 0 {
		id.NS = 'S'
	}
	if lon < 0 {
		id.EW = 'W'
	}
	return id
}

// String returns id's canonical name.
func (id TileID) String() string {
	return fmt.Sprintf("%c%02d%c%03d", id.NS, id.Lat, id.EW, id.Lon)
}

// Filename returns the archive filename of id.
func (id TileID) Filename() string {
	return id.String() + ".hgt"
}
