package render

import (
	"bytes"
	"image/color"
	"image/png"
	"testing"

	"github.com/alecthomas/assert/v2"

	"github.com/twpayne/go-hgt"
)

func newTestTile(t *testing.T, samples int) *hgt.Tile {
	t.Helper()
	data := make([]int16, samples*samples)
	for i := range data {
		data[i] = int16(i)
	}
	data[0] = hgt.NoData
	tile, err := hgt.NewTile(samples, data)
	assert.NoError(t, err)
	return tile
}

func TestColormaps(t *testing.T) {
	assert.Equal(t, []string{
		"cividis",
		"gist_earth",
		"inferno",
		"jet",
		"ocean",
		"plasma",
		"rainbow",
		"terrain",
		"viridis",
	}, Colormaps())
}

func TestColormap_At(t *testing.T) {
	colormap, ok := LookupColormap("ocean")
	assert.True(t, ok)
	assert.Equal(t, color.RGBA{0x00, 0x80, 0x00, 0xff}, colormap.At(-1))
	assert.Equal(t, color.RGBA{0x00, 0x80, 0x00, 0xff}, colormap.At(0))
	assert.Equal(t, color.RGBA{0x00, 0x40, 0x40, 0xff}, colormap.At(0.25))
	assert.Equal(t, color.RGBA{0x00, 0x00, 0x80, 0xff}, colormap.At(0.5))
	assert.Equal(t, color.RGBA{0xff, 0xff, 0xff, 0xff}, colormap.At(2))

	_, ok = LookupColormap("hot")
	assert.False(t, ok)
}

func TestImage(t *testing.T) {
	tile := newTestTile(t, 5)
	colormap, _ := LookupColormap("jet")
	img := Image(tile, colormap)
	assert.Equal(t, 5, img.Bounds().Dx())
	assert.Equal(t, 5, img.Bounds().Dy())
	assert.Equal(t, color.RGBA{}, img.RGBAAt(0, 0))
	assert.Equal(t, colormap.At(0), img.RGBAAt(1, 0))
	assert.Equal(t, colormap.At(1), img.RGBAAt(4, 4))
}

func TestWritePNG(t *testing.T) {
	tile := newTestTile(t, 5)
	var buf bytes.Buffer
	assert.NoError(t, WritePNG(&buf, tile, "terrain", 2, 2, 50))
	img, err := png.Decode(&buf)
	assert.NoError(t, err)
	assert.Equal(t, 50, img.Bounds().Dx())
	assert.Equal(t, 50, img.Bounds().Dy())
	r, g, b, a := img.At(20, 20).RGBA()
	assert.Equal(t, [4]uint32{0xffff, 0, 0, 0xffff}, [4]uint32{r, g, b, a})
}

func TestWritePNG_UnknownColormap(t *testing.T) {
	tile := newTestTile(t, 5)
	var buf bytes.Buffer
	assert.Error(t, WritePNG(&buf, tile, "hot", 0, 0, 0))
	assert.Equal(t, 0, buf.Len())
}
