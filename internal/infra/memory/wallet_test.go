package memory

import (
	"context"
	"errors"
	"image"
	"io/fs"
	"testing"
)

func TestWalletIsIdempotentPerGrant(t *testing.T) {
	w := NewWallet()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := w.GrantCurrency(ctx, "s1", "u1", 40); err != nil {
			t.Fatalf("grant: %v", err)
		}
	}
	if w.Balance("u1") != 40 || w.Grants() != 1 {
		t.Fatalf("expected one credit of 40, got balance %d grants %d", w.Balance("u1"), w.Grants())
	}

	if err := w.GrantCurrency(ctx, "s2", "u1", 0); err != nil {
		t.Fatalf("zero grant: %v", err)
	}
	if w.Grants() != 1 {
		t.Fatalf("zero grant must not be recorded")
	}
}

func TestWalletFailNext(t *testing.T) {
	w := NewWallet()
	boom := errors.New("boom")
	w.FailNext(boom)

	if err := w.GrantCurrency(context.Background(), "s1", "u1", 5); !errors.Is(err, boom) {
		t.Fatalf("expected injected failure, got %v", err)
	}
	if err := w.GrantCurrency(context.Background(), "s1", "u1", 5); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if w.Balance("u1") != 5 {
		t.Fatalf("expected 5 after retry, got %d", w.Balance("u1"))
	}
}

func TestImageSource(t *testing.T) {
	src := NewImageSource(nil)
	src.Set("/characters/rare/c1.png", image.NewRGBA(image.Rect(0, 0, 4, 4)))

	if _, err := src.LoadImage(context.Background(), "/characters/rare/c1.png"); err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := src.LoadImage(context.Background(), "/missing.png"); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected not exist, got %v", err)
	}
}
