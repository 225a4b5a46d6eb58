package source

import (
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"strings"
	"sync"
)

// Library opens asset references and keeps them open. Its Frame method
// blocks on decoding, which suits offline export; interactive playback
// wraps it in a Cache.
type Library struct {
	SequenceFPS float64
	DPI         float64

	mu      sync.Mutex
	sources map[string]Source
}

func NewLibrary(sequenceFPS, dpi float64) *Library {
	if dpi <= 0 {
		dpi = 150
	}
	return &Library{SequenceFPS: sequenceFPS, DPI: dpi, sources: make(map[string]Source)}
}

// Open returns the source for ref, opening it on first use.
func (l *Library) Open(ref string) (Source, error) {
	if src, ok := l.Lookup(ref); ok {
		return src, nil
	}

	path, page, err := ParseRef(ref)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAssetUnavailable, err)
	}
	var src Source
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		src, err = NewFitzPDFSource(path, page, l.DPI)
	} else {
		src, err = NewImageSource(path, l.SequenceFPS)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrAssetUnavailable, ref, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if existing, ok := l.sources[ref]; ok {
		src.Close()
		return existing, nil
	}
	l.sources[ref] = src
	return src, nil
}

// Lookup returns an already opened source without touching the disk.
func (l *Library) Lookup(ref string) (Source, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	src, ok := l.sources[ref]
	return src, ok
}

// Frame opens and decodes synchronously.
func (l *Library) Frame(ref string, local float64) (image.Image, error) {
	src, err := l.Open(ref)
	if err != nil {
		return nil, err
	}
	img, err := src.Render(src.FrameAt(local))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrAssetUnavailable, ref, err)
	}
	return img, nil
}

// Close closes every opened source.
func (l *Library) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var errs []error
	for ref, src := range l.sources {
		if err := src.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ref, err))
		}
	}
	l.sources = make(map[string]Source)
	return errors.Join(errs...)
}
