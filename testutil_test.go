package hgt

import (
	"encoding/binary"
	"testing/fstest"
	"time"
)

const testSamples = 9

// encodeTile returns the HGT encoding of a samples×samples tile whose value
// at grid position x, y (y counted from the south) is f(x, y).
func encodeTile(samples int, f func(x, y int) int16) []byte {
	data := make([]byte, 0, 2*samples*samples)
	for row := 0; row < samples; row++ {
		y := samples - 1 - row
		for x := 0; x < samples; x++ {
			data = binary.BigEndian.AppendUint16(data, uint16(f(x, y)))
		}
	}
	return data
}

// planeSample is an inclined plane with distinct values at every sample.
func planeSample(x, y int) int16 {
	return int16(100 + 3*x + 7*y)
}

func newTestFS(files map[string]func(x, y int) int16) fstest.MapFS {
	fsys := make(fstest.MapFS)
	for name, f := range files {
		fsys[name] = &fstest.MapFile{
			Data:    encodeTile(testSamples, f),
			ModTime: time.Unix(1700000000, 0),
		}
	}
	return fsys
}
