package source

import (
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/disintegration/imaging"
)

var imageExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true}

// ImageSource is a still image or a directory of frames played back at a
// fixed rate.
type ImageSource struct {
	paths []string
	fps   float64
}

// NewImageSource opens a single image file, or a directory whose images
// (sorted by name) form a sequence at fps.
func NewImageSource(path string, fps float64) (*ImageSource, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	var paths []string
	if fi.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			if !entry.IsDir() && imageExts[strings.ToLower(filepath.Ext(entry.Name()))] {
				paths = append(paths, filepath.Join(path, entry.Name()))
			}
		}
		sort.Strings(paths)
		if len(paths) == 0 {
			return nil, fmt.Errorf("no images in %s", path)
		}
	} else {
		paths = []string{path}
	}

	if fps <= 0 {
		fps = 25
	}
	return &ImageSource{paths: paths, fps: fps}, nil
}

func (s *ImageSource) FrameCount() int {
	return len(s.paths)
}

// FrameAt holds the last frame once the sequence runs out.
func (s *ImageSource) FrameAt(local float64) int {
	if len(s.paths) <= 1 || local <= 0 {
		return 0
	}
	i := int(math.Floor(local*s.fps + 1e-9))
	return min(i, len(s.paths)-1)
}

func (s *ImageSource) Render(index int) (image.Image, error) {
	if index < 0 || index >= len(s.paths) {
		return nil, fmt.Errorf("frame %d out of range", index)
	}
	return imaging.Open(s.paths[index], imaging.AutoOrientation(true))
}

func (s *ImageSource) Close() error {
	return nil
}
