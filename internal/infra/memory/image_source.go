package memory

import (
	"context"
	"fmt"
	"image"
	"io/fs"
	"sync"
)

// ImageSource serves decoded images from a map keyed by asset path.
type ImageSource struct {
	mu     sync.RWMutex
	images map[string]image.Image
}

func NewImageSource(images map[string]image.Image) *ImageSource {
	if images == nil {
		images = make(map[string]image.Image)
	}
	return &ImageSource{images: images}
}

func (s *ImageSource) Set(ref string, img image.Image) {
	s.mu.Lock()
	s.images[ref] = img
	s.mu.Unlock()
}

func (s *ImageSource) LoadImage(_ context.Context, ref string) (image.Image, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if img, ok := s.images[ref]; ok {
		return img, nil
	}
	return nil, fmt.Errorf("%s: %w", ref, fs.ErrNotExist)
}
