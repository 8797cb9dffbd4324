package hgt

import (
	"encoding/binary"
	"io"
	"io/fs"

	"github.com/cockroachdb/errors"
)

// A DecodeError is returned when a tile file cannot be read or is truncated.
type DecodeError struct {
	Filename string
	Err      error
}

func (e *DecodeError) Error() string {
	return "decode " + e.Filename + ": " + e.Err.Error()
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// A Tile is a decoded HGT raster. Row 0 is the northernmost row and column 0
// the westernmost column. A Tile is immutable once decoded.
type Tile struct {
	samples int
	data    []int16
}

// NewTile returns a Tile of samples×samples backed by data, which must hold
// samples*samples values in row-major, north-first order.
func NewTile(samples int, data []int16) (*Tile, error) {
	if samples < 2 || len(data) != samples*samples {
		return nil, errors.Newf("tile: got %d values, expected %d", len(data), samples*samples)
	}
	return &Tile{
		samples: samples,
		data:    data,
	}, nil
}

// DecodeTile reads exactly samples*samples big-endian int16 values from r.
func DecodeTile(r io.Reader, samples int) (*Tile, error) {
	buf := make([]byte, 2*samples*samples)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	data := make([]int16, samples*samples)
	for i := range data {
		data[i] = int16(binary.BigEndian.Uint16(buf[2*i : 2*i+2]))
	}
	return NewTile(samples, data)
}

// OpenTile decodes filename from fsys. Any failure is returned as a
// *DecodeError.
func OpenTile(fsys fs.FS, filename string, samples int) (*Tile, error) {
	file, err := fsys.Open(filename)
	if err != nil {
		return nil, &DecodeError{Filename: filename, Err: err}
	}
	defer file.Close()

	tile, err := DecodeTile(file, samples)
	if err != nil {
		return nil, &DecodeError{Filename: filename, Err: err}
	}
	return tile, nil
}

// Samples returns the number of rows (and columns) in t.
func (t *Tile) Samples() int {
	return t.samples
}

// At returns the sample at row, col.
func (t *Tile) At(row, col int) int16 {
	return t.data[row*t.samples+col]
}

// Grid returns the sample at grid position x, y where y counts rows from the
// southern edge.
func (t *Tile) Grid(x, y int) float64 {
	return float64(t.At(t.samples-1-y, x))
}
