package render

import (
	"image"
	"image/color"
	"image/draw"
	"math"
)

// stroke paints a solid frame of width w along the edges.
func stroke(img *image.RGBA, c color.RGBA, w int) {
	b := img.Bounds()
	if w <= 0 || b.Empty() {
		return
	}
	u := image.NewUniform(c)
	for _, r := range []image.Rectangle{
		image.Rect(b.Min.X, b.Min.Y, b.Max.X, b.Min.Y+w),
		image.Rect(b.Min.X, b.Max.Y-w, b.Max.X, b.Max.Y),
		image.Rect(b.Min.X, b.Min.Y, b.Min.X+w, b.Max.Y),
		image.Rect(b.Max.X-w, b.Min.Y, b.Max.X, b.Max.Y),
	} {
		draw.Draw(img, r.Intersect(b), u, image.Point{}, draw.Src)
	}
}

// vignette composites black over the edges, strongest in the corners.
func vignette(img *image.RGBA, strength float64) {
	b := img.Bounds()
	cx := float64(b.Min.X+b.Max.X) / 2
	cy := float64(b.Min.Y+b.Max.Y) / 2
	maxD := math.Hypot(float64(b.Dx())/2, float64(b.Dy())/2)
	if maxD == 0 {
		return
	}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			d := math.Hypot(float64(x)+0.5-cx, float64(y)+0.5-cy) / maxD
			f := strength * smoothstep(0.55, 1, d)
			if f <= 0 {
				continue
			}
			overBlack(img, x, y, f)
		}
	}
}

// groundShadow draws a soft ellipse under the bottom of fit.
func groundShadow(img *image.RGBA, fit image.Rectangle) {
	cx := float64(fit.Min.X+fit.Max.X) / 2
	cy := float64(fit.Max.Y) - float64(fit.Dy())*0.04
	rx := float64(fit.Dx()) * 0.36
	ry := math.Max(float64(fit.Dy())*0.05, 1)
	area := image.Rect(int(cx-rx), int(cy-ry), int(cx+rx)+1, int(cy+ry)+1).Intersect(img.Bounds())
	for y := area.Min.Y; y < area.Max.Y; y++ {
		for x := area.Min.X; x < area.Max.X; x++ {
			dx := (float64(x) + 0.5 - cx) / rx
			dy := (float64(y) + 0.5 - cy) / ry
			d := math.Sqrt(dx*dx + dy*dy)
			if d >= 1 {
				continue
			}
			overBlack(img, x, y, 0.35*(1-smoothstep(0.2, 1, d)))
		}
	}
}

func overBlack(img *image.RGBA, x, y int, f float64) {
	i := img.PixOffset(x, y)
	keep := 1 - f
	img.Pix[i+0] = uint8(float64(img.Pix[i+0]) * keep)
	img.Pix[i+1] = uint8(float64(img.Pix[i+1]) * keep)
	img.Pix[i+2] = uint8(float64(img.Pix[i+2]) * keep)
	img.Pix[i+3] = uint8(math.Round(255*f + float64(img.Pix[i+3])*keep))
}

func smoothstep(lo, hi, v float64) float64 {
	if v <= lo {
		return 0
	}
	if v >= hi {
		return 1
	}
	t := (v - lo) / (hi - lo)
	return t * t * (3 - 2*t)
}
