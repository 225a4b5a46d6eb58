// Package source turns asset references into decoded frames. Decoding runs
// off the render path; the compositor only ever asks a FrameProvider for
// whatever is ready.
package source

import (
	"errors"
	"fmt"
	"image"
	"strconv"
	"strings"

	"github.com/gen2brain/go-fitz"
)

var (
	ErrAssetUnavailable = errors.New("asset unavailable")
	ErrAssetPending     = errors.New("asset not decoded yet")
)

// FrameProvider returns the frame of asset to show at item-local time.
type FrameProvider interface {
	Frame(asset string, local float64) (image.Image, error)
}

// ProviderFunc adapts a function to FrameProvider.
type ProviderFunc func(asset string, local float64) (image.Image, error)

func (f ProviderFunc) Frame(asset string, local float64) (image.Image, error) {
	return f(asset, local)
}

// Static serves in-memory images by asset name.
type Static map[string]image.Image

func (s Static) Frame(asset string, _ float64) (image.Image, error) {
	if img, ok := s[asset]; ok && img != nil {
		return img, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrAssetUnavailable, asset)
}

// Source is an opened asset with one or more frames.
type Source interface {
	FrameCount() int
	FrameAt(local float64) int
	Render(index int) (image.Image, error)
	Close() error
}

// ParseRef splits "file.pdf#page=N" into the path and a zero-based page
// index. References without a page select the first one.
func ParseRef(ref string) (path string, page int, err error) {
	path, frag, found := strings.Cut(ref, "#")
	if !found {
		return ref, 0, nil
	}
	v, ok := strings.CutPrefix(frag, "page=")
	if !ok {
		return "", 0, fmt.Errorf("unsupported fragment %q in %s", frag, ref)
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return "", 0, fmt.Errorf("invalid page %q in %s", v, ref)
	}
	return path, n - 1, nil
}

// FitzPDFSource renders a single page of a PDF.
type FitzPDFSource struct {
	doc  *fitz.Document
	path string
	page int
	dpi  float64
}

func NewFitzPDFSource(path string, page int, dpi float64) (*FitzPDFSource, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, err
	}
	if page < 0 || page >= doc.NumPage() {
		n := doc.NumPage()
		doc.Close()
		return nil, fmt.Errorf("page %d out of range (document has %d)", page+1, n)
	}
	return &FitzPDFSource{doc: doc, path: path, page: page, dpi: dpi}, nil
}

func (f *FitzPDFSource) FrameCount() int { return 1 }

func (f *FitzPDFSource) FrameAt(float64) int { return 0 }

// Size returns the page size in points.
func (f *FitzPDFSource) Size() (float64, float64, error) {
	rect, err := f.doc.Bound(f.page)
	if err != nil {
		return 0, 0, err
	}
	return float64(rect.Dx()), float64(rect.Dy()), nil
}

// Render opens its own document handle, so concurrent renders are safe.
func (f *FitzPDFSource) Render(int) (image.Image, error) {
	workerDoc, err := fitz.New(f.path)
	if err != nil {
		return nil, err
	}
	defer workerDoc.Close()
	return workerDoc.ImageDPI(f.page, f.dpi)
}

func (f *FitzPDFSource) Close() error {
	return f.doc.Close()
}
