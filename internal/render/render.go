// Package render draws tiles as images for debugging.
package render

import (
	"image"
	"image/color"
	"image/png"
	"io"
	"slices"

	"github.com/cockroachdb/errors"
	"golang.org/x/image/draw"

	"github.com/twpayne/go-hgt"
)

// DefaultSize is the default width and height of rendered images in pixels.
const DefaultSize = 720

type stop struct {
	at float64
	c  color.RGBA
}

// A Colormap maps values in [0, 1] to colors by linear interpolation between
// stops.
type Colormap []stop

var colormaps = map[string]Colormap{
	"terrain": {
		{0, color.RGBA{0x33, 0x33, 0x99, 0xff}},
		{0.15, color.RGBA{0x00, 0x99, 0xff, 0xff}},
		{0.25, color.RGBA{0x00, 0xcc, 0x66, 0xff}},
		{0.5, color.RGBA{0xff, 0xff, 0x99, 0xff}},
		{0.75, color.RGBA{0x80, 0x5c, 0x54, 0xff}},
		{1, color.RGBA{0xff, 0xff, 0xff, 0xff}},
	},
	"gist_earth": {
		{0, color.RGBA{0x00, 0x00, 0x00, 0xff}},
		{0.25, color.RGBA{0x2d, 0x6c, 0x8c, 0xff}},
		{0.5, color.RGBA{0x4f, 0x9a, 0x4f, 0xff}},
		{0.75, color.RGBA{0xb4, 0xa3, 0x6a, 0xff}},
		{1, color.RGBA{0xfd, 0xfb, 0xfb, 0xff}},
	},
	"ocean": {
		{0, color.RGBA{0x00, 0x80, 0x00, 0xff}},
		{0.5, color.RGBA{0x00, 0x00, 0x80, 0xff}},
		{1, color.RGBA{0xff, 0xff, 0xff, 0xff}},
	},
	"jet": {
		{0, color.RGBA{0x00, 0x00, 0x80, 0xff}},
		{0.125, color.RGBA{0x00, 0x00, 0xff, 0xff}},
		{0.375, color.RGBA{0x00, 0xff, 0xff, 0xff}},
		{0.625, color.RGBA{0xff, 0xff, 0x00, 0xff}},
		{0.875, color.RGBA{0xff, 0x00, 0x00, 0xff}},
		{1, color.RGBA{0x80, 0x00, 0x00, 0xff}},
	},
	"rainbow": {
		{0, color.RGBA{0x80, 0x00, 0xff, 0xff}},
		{0.25, color.RGBA{0x00, 0xb4, 0xeb, 0xff}},
		{0.5, color.RGBA{0x80, 0xff, 0xb4, 0xff}},
		{0.75, color.RGBA{0xff, 0xb4, 0x61, 0xff}},
		{1, color.RGBA{0xff, 0x00, 0x00, 0xff}},
	},
	"viridis": {
		{0, color.RGBA{0x44, 0x01, 0x54, 0xff}},
		{0.25, color.RGBA{0x3b, 0x52, 0x8b, 0xff}},
		{0.5, color.RGBA{0x21, 0x91, 0x8c, 0xff}},
		{0.75, color.RGBA{0x5e, 0xc9, 0x62, 0xff}},
		{1, color.RGBA{0xfd, 0xe7, 0x25, 0xff}},
	},
	"cividis": {
		{0, color.RGBA{0x00, 0x22, 0x4e, 0xff}},
		{0.5, color.RGBA{0x7c, 0x7b, 0x78, 0xff}},
		{1, color.RGBA{0xfe, 0xe8, 0x38, 0xff}},
	},
	"plasma": {
		{0, color.RGBA{0x0d, 0x08, 0x87, 0xff}},
		{0.25, color.RGBA{0x7e, 0x03, 0xa8, 0xff}},
		{0.5, color.RGBA{0xcc, 0x47, 0x78, 0xff}},
		{0.75, color.RGBA{0xf8, 0x95, 0x40, 0xff}},
		{1, color.RGBA{0xf0, 0xf9, 0x21, 0xff}},
	},
	"inferno": {
		{0, color.RGBA{0x00, 0x00, 0x04, 0xff}},
		{0.25, color.RGBA{0x57, 0x10, 0x6e, 0xff}},
		{0.5, color.RGBA{0xbc, 0x37, 0x54, 0xff}},
		{0.75, color.RGBA{0xf9, 0x8e, 0x09, 0xff}},
		{1, color.RGBA{0xfc, 0xff, 0xa4, 0xff}},
	},
}

var markColor = color.RGBA{0xff, 0x00, 0x00, 0xff}

// Colormaps returns the names of the available colormaps, sorted.
func Colormaps() []string {
	names := make([]string, 0, len(colormaps))
	for name := range colormaps {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// LookupColormap returns the colormap called name.
func LookupColormap(name string) (Colormap, bool) {
	colormap, ok := colormaps[name]
	return colormap, ok
}

// At returns the color at v, clamped to [0, 1].
func (m Colormap) At(v float64) color.RGBA {
	if v <= m[0].at {
		return m[0].c
	}
	for i := 1; i < len(m); i++ {
		if v <= m[i].at {
			t := (v - m[i-1].at) / (m[i].at - m[i-1].at)
			return color.RGBA{
				R: lerp(m[i-1].c.R, m[i].c.R, t),
				G: lerp(m[i-1].c.G, m[i].c.G, t),
				B: lerp(m[i-1].c.B, m[i].c.B, t),
				A: 0xff,
			}
		}
	}
	return m[len(m)-1].c
}

func lerp(a, b uint8, t float64) uint8 {
	return uint8(float64(a) + (float64(b)-float64(a))*t + 0.5)
}

// Image returns tile colored with colormap, north up. Data voids are
// transparent.
func Image(tile *hgt.Tile, colormap Colormap) *image.RGBA {
	samples := tile.Samples()
	lo, hi := int16(32767), int16(-32767)
	for row := 0; row < samples; row++ {
		for col := 0; col < samples; col++ {
			if v := tile.At(row, col); v != hgt.NoData {
				lo, hi = min(lo, v), max(hi, v)
			}
		}
	}
	scale := 0.0
	if hi > lo {
		scale = 1 / (float64(hi) - float64(lo))
	}

	img := image.NewRGBA(image.Rect(0, 0, samples, samples))
	for row := 0; row < samples; row++ {
		for col := 0; col < samples; col++ {
			v := tile.At(row, col)
			if v == hgt.NoData {
				continue
			}
			img.SetRGBA(col, row, colormap.At((float64(v)-float64(lo))*scale))
		}
	}
	return img
}

// WritePNG renders tile as a size×size PNG to w and marks the sample at grid
// position x, y (y counted from the south) with a cross.
func WritePNG(w io.Writer, tile *hgt.Tile, colormapName string, x, y, size int) error {
	colormap, ok := LookupColormap(colormapName)
	if !ok {
		return errors.Newf("unknown colormap %q", colormapName)
	}
	if size <= 0 {
		size = DefaultSize
	}

	src := Image(tile, colormap)
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	samples := tile.Samples()
	px := x * size / samples
	py := (samples - 1 - y) * size / samples
	const arm = 6
	for d := -arm; d <= arm; d++ {
		dst.SetRGBA(px+d, py+d, markColor)
		dst.SetRGBA(px+d, py-d, markColor)
	}

	return png.Encode(w, dst)
}
