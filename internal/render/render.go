// Package render turns a decoded source image into the puzzle and reveal
// surfaces. Every function here is pure: same image and size, same pixels.
package render

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	xdraw "golang.org/x/image/draw"
	"reveal-challenge-service/internal/domain"
)

// Size is an output surface in pixels.
type Size struct {
	W int `json:"w"`
	H int `json:"h"`
}

func (s Size) Valid() bool { return s.W > 0 && s.H > 0 }

func (s Size) rect() image.Rectangle { return image.Rect(0, 0, s.W, s.H) }

var (
	borderColor     = color.RGBA{R: 0xe8, G: 0xd5, B: 0xb0, A: 0xff}
	silhouetteColor = color.RGBA{R: 0x2b, G: 0x24, B: 0x3d, A: 0xff}
	placeholderFill = color.RGBA{R: 0xd9, G: 0xd4, B: 0xcc, A: 0xff}
)

// Render produces the puzzle view for mode.
func Render(src image.Image, mode domain.RenderMode, size Size) *image.RGBA {
	if mode == domain.Silhouette {
		return SilhouetteView(src, size)
	}
	return CenterTileView(src, size)
}

// CenterTileView crops the largest centered square, keeps only the middle
// cell of a 3x3 grid and scales it to fill size.
func CenterTileView(src image.Image, size Size) *image.RGBA {
	dst := image.NewRGBA(size.rect())
	if !size.Valid() {
		return dst
	}
	cell := CenterCell(src.Bounds())
	if !cell.Empty() {
		xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, cell, draw.Src, nil)
	}
	vignette(dst, 0.28)
	stroke(dst, borderColor, borderWidth(size))
	return dst
}

// CenterCell is the middle cell of the 3x3 grid over the largest centered square of b.
func CenterCell(b image.Rectangle) image.Rectangle {
	side := b.Dx()
	if b.Dy() < side {
		side = b.Dy()
	}
	if side <= 0 {
		return image.Rectangle{}
	}
	x0 := b.Min.X + (b.Dx()-side)/2
	y0 := b.Min.Y + (b.Dy()-side)/2
	lo := side / 3
	hi := side - side/3
	if hi <= lo {
		// images under 3px: the whole square is the center
		return image.Rect(x0, y0, x0+side, y0+side)
	}
	return image.Rect(x0+lo, y0+lo, x0+hi, y0+hi)
}

// SilhouetteView letterboxes the source, fills every visible pixel with a flat
// color keeping its alpha, and lays it over a soft ground shadow.
func SilhouetteView(src image.Image, size Size) *image.RGBA {
	dst := image.NewRGBA(size.rect())
	if !size.Valid() {
		return dst
	}
	fit := ContainRect(src.Bounds(), size)
	if fit.Empty() {
		return dst
	}
	groundShadow(dst, fit)

	layer := image.NewRGBA(size.rect())
	xdraw.CatmullRom.Scale(layer, fit, src, src.Bounds(), draw.Src, nil)
	Stencil(layer, silhouetteColor)
	draw.Draw(dst, dst.Bounds(), layer, image.Point{}, draw.Over)

	vignette(dst, 0.22)
	return dst
}

// RevealView letterboxes the untouched source with a border.
func RevealView(src image.Image, size Size) *image.RGBA {
	dst := image.NewRGBA(size.rect())
	if !size.Valid() {
		return dst
	}
	if fit := ContainRect(src.Bounds(), size); !fit.Empty() {
		xdraw.CatmullRom.Scale(dst, fit, src, src.Bounds(), draw.Over, nil)
	}
	stroke(dst, borderColor, borderWidth(size))
	return dst
}

// Placeholder is shown in place of an image that failed to load.
func Placeholder(size Size) *image.RGBA {
	dst := image.NewRGBA(size.rect())
	if !size.Valid() {
		return dst
	}
	draw.Draw(dst, dst.Bounds(), image.NewUniform(placeholderFill), image.Point{}, draw.Src)
	stroke(dst, borderColor, borderWidth(size))
	return dst
}

// ContainRect scales src to fit inside size preserving aspect ratio, centered.
func ContainRect(src image.Rectangle, size Size) image.Rectangle {
	if src.Empty() || !size.Valid() {
		return image.Rectangle{}
	}
	scale := math.Min(float64(size.W)/float64(src.Dx()), float64(size.H)/float64(src.Dy()))
	w := int(math.Round(float64(src.Dx()) * scale))
	h := int(math.Round(float64(src.Dy()) * scale))
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	x := (size.W - w) / 2
	y := (size.H - h) / 2
	return image.Rect(x, y, x+w, y+h)
}

// Stencil replaces the color of every pixel with c while keeping its alpha.
// Pixels are premultiplied, so the channels scale with the kept alpha.
func Stencil(img *image.RGBA, c color.RGBA) {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.PixOffset(b.Min.X, y)
		for x := 0; x < b.Dx(); x++ {
			i := row + 4*x
			a := uint32(img.Pix[i+3])
			if a == 0 {
				continue
			}
			img.Pix[i+0] = uint8(uint32(c.R) * a / 0xff)
			img.Pix[i+1] = uint8(uint32(c.G) * a / 0xff)
			img.Pix[i+2] = uint8(uint32(c.B) * a / 0xff)
		}
	}
}

func borderWidth(size Size) int {
	m := size.W
	if size.H < m {
		m = size.H
	}
	if w := m / 100; w > 1 {
		return w
	}
	return 1
}
