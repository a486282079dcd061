package assets

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/webp"
)

// FileSource decodes entity images from a directory laid out as
// <dir>/<category>/<rarityFolder>/<id>.png. A .webp file with the same stem
// is used when the .png is missing.
type FileSource struct {
	dir string
}

func NewFileSource(dir string) *FileSource {
	return &FileSource{dir: dir}
}

func (s *FileSource) LoadImage(ctx context.Context, ref string) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// rooted Clean drops any leading "..", keeping refs inside dir
	clean := path.Clean("/" + ref)
	full := filepath.Join(s.dir, filepath.FromSlash(clean))

	f, err := os.Open(full)
	if os.IsNotExist(err) && strings.HasSuffix(full, ".png") {
		f, err = os.Open(strings.TrimSuffix(full, ".png") + ".webp")
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", ref, err)
	}
	return img, nil
}
