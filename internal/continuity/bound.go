package continuity

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"
)

var qualityLadder = []int{85, 75, 65, 55, 45, 35}

const minSeedEdge = 16

// ErrSeedTooLarge is returned when no quality/size combination fits the budget.
var ErrSeedTooLarge = errors.New("seed image cannot be reduced below the byte budget")

// Bound returns data unchanged when it already fits maxBytes. Otherwise it re-encodes
// the image walking down the quality ladder, halving the dimensions whenever the lowest
// quality still does not fit.
func Bound(data []byte, maxBytes int) ([]byte, error) {
	if maxBytes <= 0 || len(data) <= maxBytes {
		return data, nil
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode seed image: %w", err)
	}

	var buf bytes.Buffer
	for {
		for _, quality := range qualityLadder {
			buf.Reset()
			if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
				return nil, fmt.Errorf("encode seed image: %w", err)
			}
			if buf.Len() <= maxBytes {
				return append([]byte(nil), buf.Bytes()...), nil
			}
		}
		bounds := img.Bounds()
		w, h := bounds.Dx()/2, bounds.Dy()/2
		if w < minSeedEdge || h < minSeedEdge {
			return nil, ErrSeedTooLarge
		}
		img = halve(img, w, h)
	}
}

func halve(src image.Image, w, h int) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}
