package source

import (
	"context"
	"fmt"
	"image"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type frameKey struct {
	ref   string
	index int
}

// Cache is a non-blocking FrameProvider. Opening and decoding run on a
// bounded worker group; until the requested frame is ready the most
// recently decoded frame of the same asset is returned, or ErrAssetPending
// when there is none.
type Cache struct {
	lib    *Library
	frames *lru.Cache
	log    *logrus.Entry

	ctx    context.Context
	cancel context.CancelFunc
	group  errgroup.Group

	mu       sync.Mutex
	latest   map[string]image.Image
	failed   map[string]error
	inflight map[frameKey]bool
	opening  map[string]bool
	closed   bool
}

// NewCache keeps up to size decoded frames and decodes with at most workers
// goroutines.
func NewCache(lib *Library, size, workers int, log *logrus.Entry) (*Cache, error) {
	frames, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	if workers <= 0 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Cache{
		lib:      lib,
		frames:   frames,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
		latest:   make(map[string]image.Image),
		failed:   make(map[string]error),
		inflight: make(map[frameKey]bool),
		opening:  make(map[string]bool),
	}
	c.group.SetLimit(workers)
	return c, nil
}

func (c *Cache) Frame(ref string, local float64) (image.Image, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, fmt.Errorf("%w: cache closed", ErrAssetUnavailable)
	}
	if err, ok := c.failed[ref]; ok {
		return nil, err
	}

	src, ok := c.lib.Lookup(ref)
	if !ok {
		c.scheduleOpen(ref)
		return c.fallback(ref)
	}

	key := frameKey{ref: ref, index: src.FrameAt(local)}
	if v, ok := c.frames.Get(key); ok {
		img := v.(image.Image)
		c.latest[ref] = img
		return img, nil
	}
	c.scheduleDecode(src, key)
	return c.fallback(ref)
}

// Prefetch queues decoding of the frame at local without returning it.
func (c *Cache) Prefetch(ref string, local float64) {
	_, _ = c.Frame(ref, local)
}

// Forget drops a failed asset so it is retried on the next request.
func (c *Cache) Forget(ref string) {
	c.mu.Lock()
	delete(c.failed, ref)
	c.mu.Unlock()
}

// Close stops accepting work, waits for running workers and closes the
// library.
func (c *Cache) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	_ = c.group.Wait()
	return c.lib.Close()
}

func (c *Cache) fallback(ref string) (image.Image, error) {
	if img, ok := c.latest[ref]; ok {
		return img, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrAssetPending, ref)
}

// scheduleOpen and scheduleDecode must be called with mu held. When all
// workers are busy nothing is queued; the next request tries again.
func (c *Cache) scheduleOpen(ref string) {
	if c.opening[ref] {
		return
	}
	started := c.group.TryGo(func() error {
		_, err := c.lib.Open(ref)
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.opening, ref)
		if err != nil && c.ctx.Err() == nil {
			c.failed[ref] = err
			c.log.WithField("asset", ref).WithError(err).Warn("open failed")
		}
		return nil
	})
	if started {
		c.opening[ref] = true
	}
}

func (c *Cache) scheduleDecode(src Source, key frameKey) {
	if c.inflight[key] {
		return
	}
	started := c.group.TryGo(func() error {
		if c.ctx.Err() != nil {
			c.mu.Lock()
			delete(c.inflight, key)
			c.mu.Unlock()
			return nil
		}
		img, err := src.Render(key.index)

		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.inflight, key)
		if err != nil {
			c.failed[key.ref] = fmt.Errorf("%w: %s: %v", ErrAssetUnavailable, key.ref, err)
			c.log.WithField("asset", key.ref).WithError(err).Warn("decode failed")
			return nil
		}
		c.frames.Add(key, img)
		c.latest[key.ref] = img
		return nil
	})
	if started {
		c.inflight[key] = true
	}
}
