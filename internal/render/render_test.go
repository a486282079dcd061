package render

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"reveal-challenge-service/internal/domain"
)

var grid = [3][3]color.RGBA{
	{{255, 0, 0, 255}, {0, 255, 0, 255}, {0, 0, 255, 255}},
	{{255, 255, 0, 255}, {10, 200, 120, 255}, {0, 255, 255, 255}},
	{{90, 90, 90, 255}, {200, 100, 0, 255}, {30, 30, 30, 255}},
}

// gridImage paints a 3x3 grid of cell-sized blocks, offset by pad columns on the left.
func gridImage(cell, pad int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 3*cell+pad, 3*cell))
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			rect := image.Rect(pad+c*cell, r*cell, pad+(c+1)*cell, (r+1)*cell)
			draw.Draw(img, rect, image.NewUniform(grid[r][c]), image.Point{}, draw.Src)
		}
	}
	return img
}

func near(a, b uint8) bool {
	d := int(a) - int(b)
	return d >= -2 && d <= 2
}

func assertColor(t *testing.T, img *image.RGBA, x, y int, want color.RGBA) {
	t.Helper()
	got := img.RGBAAt(x, y)
	if !near(got.R, want.R) || !near(got.G, want.G) || !near(got.B, want.B) || !near(got.A, want.A) {
		t.Fatalf("pixel (%d,%d) = %v, want %v", x, y, got, want)
	}
}

func TestCenterCell(t *testing.T) {
	if got := CenterCell(image.Rect(0, 0, 90, 90)); got != image.Rect(30, 30, 60, 60) {
		t.Fatalf("square: got %v", got)
	}
	if got := CenterCell(image.Rect(0, 0, 120, 90)); got != image.Rect(45, 30, 75, 60) {
		t.Fatalf("landscape: got %v", got)
	}
	if got := CenterCell(image.Rect(0, 0, 30, 60)); got != image.Rect(10, 25, 20, 35) {
		t.Fatalf("portrait: got %v", got)
	}
}

func TestCenterTileShowsOnlyMiddleCell(t *testing.T) {
	src := gridImage(30, 0)
	out := CenterTileView(src, Size{W: 64, H: 64})
	assertColor(t, out, 32, 32, grid[1][1])
	assertColor(t, out, 20, 40, grid[1][1])
	assertColor(t, out, 0, 0, borderColor)
}

func TestCenterTileCropsLandscapeToCenteredSquare(t *testing.T) {
	src := gridImage(30, 30) // 120x90, grid shifted right by 30
	out := CenterTileView(src, Size{W: 50, H: 50})
	// the centered 90px square starts at x=15, so its middle cell straddles grid columns 0 and 1;
	// the right side of the output must come from grid[1][1]
	assertColor(t, out, 40, 25, grid[1][1])
}

func TestSilhouetteStencilsOpaquePixels(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 100, 100))
	// opaque right half, transparent left half
	draw.Draw(src, image.Rect(50, 0, 100, 100), image.NewUniform(color.RGBA{200, 10, 10, 255}), image.Point{}, draw.Src)

	out := SilhouetteView(src, Size{W: 100, H: 100})
	assertColor(t, out, 75, 50, silhouetteColor)
	if a := out.RGBAAt(25, 50).A; a != 0 {
		t.Fatalf("transparent source area should stay transparent, alpha=%d", a)
	}
}

func TestStencilKeepsAlpha(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	img.SetRGBA(0, 0, color.RGBA{100, 100, 100, 128})
	img.SetRGBA(1, 0, color.RGBA{0, 0, 0, 0})
	Stencil(img, color.RGBA{255, 0, 0, 255})
	if got := img.RGBAAt(0, 0); got.A != 128 || got.R != 128 || got.G != 0 {
		t.Fatalf("unexpected stencil pixel %v", got)
	}
	if got := img.RGBAAt(1, 0); got.A != 0 || got.R != 0 {
		t.Fatalf("transparent pixel changed: %v", got)
	}
}

func TestRevealLetterboxes(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 200, 100))
	draw.Draw(src, src.Bounds(), image.NewUniform(grid[0][1]), image.Point{}, draw.Src)

	size := Size{W: 100, H: 100}
	if fit := ContainRect(src.Bounds(), size); fit != image.Rect(0, 25, 100, 75) {
		t.Fatalf("unexpected contain rect %v", fit)
	}
	out := RevealView(src, size)
	assertColor(t, out, 50, 50, grid[0][1])
	if a := out.RGBAAt(50, 10).A; a != 0 {
		t.Fatalf("letterbox band should be transparent, alpha=%d", a)
	}
	assertColor(t, out, 0, 50, borderColor)
}

func TestRenderIsIdempotent(t *testing.T) {
	src := gridImage(20, 7)
	for _, mode := range []domain.RenderMode{domain.CenterTile, domain.Silhouette} {
		a := Render(src, mode, Size{W: 77, H: 51})
		b := Render(src, mode, Size{W: 77, H: 51})
		if !bytes.Equal(a.Pix, b.Pix) {
			t.Fatalf("%v render not deterministic", mode)
		}
	}
}

func TestInvalidSizeYieldsEmptySurface(t *testing.T) {
	out := Render(gridImage(10, 0), domain.Silhouette, Size{})
	if !out.Bounds().Empty() {
		t.Fatalf("expected empty surface, got %v", out.Bounds())
	}
}

type countingLoader struct {
	calls int
	img   image.Image
	err   error
}

func (l *countingLoader) LoadImage(context.Context, string) (image.Image, error) {
	l.calls++
	if l.err != nil {
		return nil, l.err
	}
	return l.img, nil
}

func TestCacheLoadsOnce(t *testing.T) {
	loader := &countingLoader{img: gridImage(3, 0)}
	cache := NewCache(loader)
	for i := 0; i < 3; i++ {
		if _, err := cache.Load(context.Background(), "/a.png"); err != nil {
			t.Fatalf("load: %v", err)
		}
	}
	if loader.calls != 1 {
		t.Fatalf("expected one fetch, got %d", loader.calls)
	}
}

func TestCacheDoesNotRememberFailures(t *testing.T) {
	loader := &countingLoader{err: errors.New("404")}
	cache := NewCache(loader)
	if _, err := cache.Load(context.Background(), "/a.png"); !errors.Is(err, domain.ErrImageLoad) {
		t.Fatalf("expected ErrImageLoad, got %v", err)
	}
	loader.err = nil
	loader.img = gridImage(3, 0)
	if _, err := cache.Load(context.Background(), "/a.png"); err != nil {
		t.Fatalf("expected retry to succeed: %v", err)
	}
	if loader.calls != 2 {
		t.Fatalf("expected retry fetch, calls=%d", loader.calls)
	}
}

type blockingLoader struct {
	calls   atomic.Int32
	once    sync.Once
	started chan struct{}
	release chan struct{}
}

func (l *blockingLoader) LoadImage(ctx context.Context, _ string) (image.Image, error) {
	l.calls.Add(1)
	l.once.Do(func() { close(l.started) })
	select {
	case <-l.release:
		return gridImage(3, 0), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestCacheSharedLoadSurvivesCallerCancel(t *testing.T) {
	loader := &blockingLoader{started: make(chan struct{}), release: make(chan struct{})}
	cache := NewCache(loader)

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := cache.Load(ctxA, "/x.png")
		errA <- err
	}()
	<-loader.started

	type result struct {
		img image.Image
		err error
	}
	resB := make(chan result, 1)
	go func() {
		img, err := cache.Load(context.Background(), "/x.png")
		resB <- result{img, err}
	}()

	cancelA()
	select {
	case err := <-errA:
		if !errors.Is(err, domain.ErrImageLoad) {
			t.Fatalf("expected ErrImageLoad for cancelled caller, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("cancelled caller did not return")
	}

	close(loader.release)
	select {
	case res := <-resB:
		if res.err != nil || res.img == nil {
			t.Fatalf("expected second caller to get the image, got %v", res.err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("second caller did not return")
	}
	if n := loader.calls.Load(); n != 1 {
		t.Fatalf("expected one fetch, got %d", n)
	}
	if _, ok := cache.Get("/x.png"); !ok {
		t.Fatalf("expected source cached")
	}
}
