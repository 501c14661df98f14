// Package composite stacks same-sized tile images bottom to top.
package composite

import (
	"fmt"
	"image"
	"image/color"
	"math"
)

// Layer is one image in a stack. Opacity scales its alpha; 0 means opaque.
type Layer struct {
	Image   image.Image
	Opacity float64
}

// Stack draws layers in order over base (nil for a transparent start).
// Every image must be tileSize x tileSize.
func Stack(base image.Image, layers []Layer, tileSize int) (*image.NRGBA, error) {
	if tileSize <= 0 {
		return nil, fmt.Errorf("tile size must be positive")
	}

	expectedBounds := image.Rect(0, 0, tileSize, tileSize)
	dst := image.NewNRGBA(expectedBounds)

	if base != nil {
		if base.Bounds() != expectedBounds {
			return nil, fmt.Errorf("base bounds %v do not match expected %v", base.Bounds(), expectedBounds)
		}
		for y := expectedBounds.Min.Y; y < expectedBounds.Max.Y; y++ {
			for x := expectedBounds.Min.X; x < expectedBounds.Max.X; x++ {
				dst.Set(x, y, base.At(x, y))
			}
		}
	}

	for i, layer := range layers {
		if layer.Image == nil {
			continue
		}
		if layer.Image.Bounds() != expectedBounds {
			return nil, fmt.Errorf("layer %d bounds %v do not match expected %v", i, layer.Image.Bounds(), expectedBounds)
		}

		opacity := layer.Opacity
		if opacity <= 0 || opacity > 1 {
			opacity = 1
		}
		alphaOver(dst, layer.Image, opacity)
	}

	return dst, nil
}

func alphaOver(dst *image.NRGBA, src image.Image, opacity float64) {
	bounds := dst.Bounds()

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			s := color.NRGBAModel.Convert(src.At(x, y)).(color.NRGBA)
			if s.A == 0 {
				continue
			}

			d := dst.NRGBAAt(x, y)

			sa := float64(s.A) / 255.0 * opacity
			da := float64(d.A) / 255.0

			outA := sa + da*(1.0-sa)
			if outA == 0 {
				dst.SetNRGBA(x, y, color.NRGBA{})
				continue
			}

			blend := func(srcVal, dstVal uint8) uint8 {
				srcPremult := float64(srcVal) * sa
				dstPremult := float64(dstVal) * da
				outPremult := srcPremult + dstPremult*(1.0-sa)
				return uint8(math.Round(outPremult / outA))
			}

			dst.SetNRGBA(x, y, color.NRGBA{
				R: blend(s.R, d.R),
				G: blend(s.G, d.G),
				B: blend(s.B, d.B),
				A: uint8(math.Round(outA * 255.0)),
			})
		}
	}
}
