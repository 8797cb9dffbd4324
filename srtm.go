package hgt

import (
	"io/fs"
)

// NewSRTM returns a TileSet for a flat directory of one arc-second SRTM
// tiles named like N00E012.hgt.
func NewSRTM(fsys fs.FS, options ...TileSetOption) (*TileSet, error) {
	return NewTileSet(append(
		[]TileSetOption{
			WithFS(fsys),
			WithSamples(SRTM1Samples),
			WithTileFilenameFunc(TileID.Filename),
		},
		options...,
	)...)
}
