package composite

import (
	"image"
	"image/color"
	"math"
	"testing"
)

func fillRect(img *image.NRGBA, rect image.Rectangle, c color.NRGBA) {
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
}

func blendNRGBA(top, bottom color.NRGBA) color.NRGBA {
	sa := float64(top.A) / 255.0
	ba := float64(bottom.A) / 255.0

	outA := sa + ba*(1.0-sa)
	if outA == 0 {
		return color.NRGBA{}
	}

	blend := func(s, b uint8) uint8 {
		sp := float64(s) * sa
		bp := float64(b) * ba
		outPremult := sp + bp*(1.0-sa)
		return uint8(math.Round(outPremult / outA))
	}

	return color.NRGBA{
		R: blend(top.R, bottom.R),
		G: blend(top.G, bottom.G),
		B: blend(top.B, bottom.B),
		A: uint8(math.Round(outA * 255.0)),
	}
}

func expectColor(t *testing.T, got color.NRGBA, want color.NRGBA, context string) {
	t.Helper()
	if got != want {
		t.Fatalf("%s: expected %+v, got %+v", context, want, got)
	}
}

func TestStackUsesOrderAndTransparency(t *testing.T) {
	tileSize := 4

	polygons := image.NewNRGBA(image.Rect(0, 0, tileSize, tileSize))
	fillRect(polygons, polygons.Bounds(), color.NRGBA{B: 255, A: 255})

	parks := image.NewNRGBA(image.Rect(0, 0, tileSize, tileSize))
	fillRect(parks, image.Rect(0, 0, tileSize/2, tileSize/2), color.NRGBA{G: 255, A: 255})

	roads := image.NewNRGBA(image.Rect(0, 0, tileSize, tileSize))
	for y := 0; y < tileSize; y++ {
		roads.SetNRGBA(1, y, color.NRGBA{R: 255, A: 128})
	}

	out, err := Stack(nil, []Layer{{Image: polygons}, {Image: parks}, {Image: roads}}, tileSize)
	if err != nil {
		t.Fatalf("Stack returned error: %v", err)
	}

	expectColor(t, out.NRGBAAt(0, 0), color.NRGBA{G: 255, A: 255}, "second layer should sit above the first")
	expectColor(t, out.NRGBAAt(3, 3), color.NRGBA{B: 255, A: 255}, "first layer should show where the second is transparent")

	expectedRoad := blendNRGBA(
		color.NRGBA{R: 255, A: 128},
		color.NRGBA{G: 255, A: 255},
	)
	expectColor(t, out.NRGBAAt(1, 1), expectedRoad, "road should alpha-blend on top of parks")
	expectColor(t, out.NRGBAAt(0, 1), color.NRGBA{G: 255, A: 255}, "neighbor pixel remains aligned")
}

func TestStackOpacity(t *testing.T) {
	red := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	fillRect(red, red.Bounds(), color.NRGBA{R: 255, A: 255})

	out, err := Stack(nil, []Layer{{Image: red, Opacity: 0.5}}, 2)
	if err != nil {
		t.Fatalf("Stack returned error: %v", err)
	}
	expectColor(t, out.NRGBAAt(0, 0), color.NRGBA{R: 255, A: 128}, "half opacity halves alpha")

	base := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	fillRect(base, base.Bounds(), color.NRGBA{R: 255, G: 255, B: 255, A: 255})

	out, err = Stack(base, []Layer{{Image: red, Opacity: 0.5}}, 2)
	if err != nil {
		t.Fatalf("Stack returned error: %v", err)
	}
	expectColor(t, out.NRGBAAt(1, 1), color.NRGBA{R: 255, G: 128, B: 128, A: 255}, "faded layer over base")
}

func TestStackValidatesBounds(t *testing.T) {
	badLayer := image.NewNRGBA(image.Rect(1, 1, 3, 3)) // wrong origin/size

	if _, err := Stack(nil, []Layer{{Image: badLayer}}, 4); err == nil {
		t.Fatal("expected error for mismatched bounds")
	}
	if _, err := Stack(badLayer, nil, 4); err == nil {
		t.Fatal("expected error for mismatched base")
	}
	if _, err := Stack(nil, nil, 0); err == nil {
		t.Fatal("expected error for zero tile size")
	}
}
