// Package hash fingerprints input PDFs and rendered page images.
package hash

import (
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"math/bits"
	"os"

	"golang.org/x/image/draw"
)

// PageFile returns the difference hash of the image stored at path.
func PageFile(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("hash: open page: %w", err)
	}
	defer func() { _ = f.Close() }()

	img, _, err := image.Decode(f)
	if err != nil {
		return 0, fmt.Errorf("hash: decode page %s: %w", path, err)
	}
	return Page(img), nil
}

// Page computes a 64-bit difference hash: the image is scaled to 9x8 grey
// pixels and each bit records whether a pixel is brighter than its right
// neighbour.
func Page(img image.Image) uint64 {
	small := image.NewGray(image.Rect(0, 0, 9, 8))
	draw.CatmullRom.Scale(small, small.Bounds(), img, img.Bounds(), draw.Src, nil)

	var h uint64
	var bit uint
	for y := range 8 {
		for x := range 8 {
			if luma(small.At(x, y)) > luma(small.At(x+1, y)) {
				h |= 1 << bit
			}
			bit++
		}
	}
	return h
}

func luma(c color.Color) uint8 {
	return color.GrayModel.Convert(c).(color.Gray).Y
}

// Distance is the number of differing bits between two page hashes.
func Distance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// SamePage reports whether two hashes may belong to the same page image.
// Text pages with a shared layout often collide at this size, so a match
// must be confirmed with FileDigest before a page is dropped.
func SamePage(a, b uint64) bool {
	return a == b
}
