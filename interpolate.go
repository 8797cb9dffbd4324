package hgt

import (
	"math"

	"github.com/cockroachdb/errors"
)

// A neighborhood is the 2×2 cell around a fractional grid position. Points
// are in grid units, x to the east and y to the north, and are listed in the
// order (x0, y0+1), (x0+1, y0+1), (x0+1, y0), (x0, y0) with V[i] the sample
// at (X[i], Y[i]).
type neighborhood struct {
	X [4]float64
	Y [4]float64
	V [4]float64
}

func newNeighborhood(tile *Tile, x0, y0 int) neighborhood {
	var n neighborhood
	for i, p := range [4][2]int{
		{x0, y0 + 1},
		{x0 + 1, y0 + 1},
		{x0 + 1, y0},
		{x0, y0},
	} {
		n.X[i] = float64(p[0])
		n.Y[i] = float64(p[1])
		n.V[i] = tile.Grid(p[0], p[1])
	}
	return n
}

// A kernel interpolates at grid position x, y inside the cell n. Kernels read
// only the four samples of n.
type kernel func(n neighborhood, x, y float64) float64

var kernels = map[Method]kernel{
	MethodNearest: interpolateNearest,
	MethodLinear:  interpolateLinear,
	MethodCubic:   interpolateCubic,
}

// Interpolate returns the elevation in tile at the fractional position
// fracRow, fracCol, both in grid units and counted from the south-west
// corner.
//
// MethodNone and positions on the southern or western sample line return the
// nearest sample without interpolating, so a query never needs a neighboring
// tile.
func Interpolate(tile *Tile, method Method, fracRow, fracCol float64) (float64, error) {
	maxIndex := float64(tile.samples - 1)
	if !(0 <= fracRow && fracRow <= maxIndex) || !(0 <= fracCol && fracCol <= maxIndex) {
		return 0, errors.Newf("fractional position (%v, %v) outside tile", fracRow, fracCol)
	}

	row := int(math.RoundToEven(fracRow))
	col := int(math.RoundToEven(fracCol))
	if method == MethodNone || fracRow == 0 || fracCol == 0 {
		return tile.Grid(col, row), nil
	}

	k, ok := kernels[method]
	if !ok {
		return 0, &InvalidMethodError{Name: method.String()}
	}

	x0 := min(int(fracCol), tile.samples-2)
	y0 := min(int(fracRow), tile.samples-2)
	return k(newNeighborhood(tile, x0, y0), fracCol, fracRow), nil
}

// interpolateNearest returns the value of the closest point of n. Ties go to
// the earlier point.
func interpolateNearest(n neighborhood, x, y float64) float64 {
	best := 0
	bestDist := math.Inf(1)
	for i := range n.V {
		dx, dy := x-n.X[i], y-n.Y[i]
		if dist := dx*dx + dy*dy; dist < bestDist {
			best = i
			bestDist = dist
		}
	}
	return n.V[best]
}

// interpolateLinear interpolates bilinearly over n.
func interpolateLinear(n neighborhood, x, y float64) float64 {
	t := x - n.X[3]
	u := y - n.Y[3]
	v00, v10, v01, v11 := n.V[3], n.V[2], n.V[0], n.V[1]
	return (1-t)*(1-u)*v00 +
		t*(1-u)*v10 +
		(1-t)*u*v01 +
		t*u*v11
}
