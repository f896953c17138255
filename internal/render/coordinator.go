// Package render coordinates page raster requests. Rasterization itself is
// an external collaborator; this package only guarantees that when page
// changes overlap, the raster on display is the one most recently asked
// for, never a late-finishing stale render.
package render

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrUnsupported is returned when no rasterizer is configured.
var ErrUnsupported = errors.New("no rasterizer configured")

// Rasterizer turns one page of raw document bytes into an encoded image at
// the given render scale.
type Rasterizer interface {
	RenderPage(ctx context.Context, raw []byte, page int, scale float64) ([]byte, error)
}

// Result is a completed render tagged with the document and page it was
// requested for.
type Result struct {
	DocumentID string
	Page       int
	Image      []byte
}

// Coordinator serializes render requests. Every request bumps a generation
// and cancels the in-flight render; a completion whose generation is no
// longer current is dropped.
type Coordinator struct {
	rasterizer Rasterizer
	scale      float64
	logger     *slog.Logger

	mu         sync.Mutex
	generation uint64
	cancel     context.CancelFunc
	latest     *Result
}

// NewCoordinator creates a Coordinator rendering at the given scale.
// rasterizer may be nil, in which case every request reports ErrUnsupported.
func NewCoordinator(rasterizer Rasterizer, scale float64) *Coordinator {
	if scale <= 0 {
		scale = 1.5
	}
	return &Coordinator{
		rasterizer: rasterizer,
		scale:      scale,
		logger:     slog.Default(),
	}
}

// Request asks for a render of page of the given document. It returns
// immediately; the returned channel closes once this request has either
// been stored, discarded as stale, or failed.
func (c *Coordinator) Request(ctx context.Context, docID string, raw []byte, page int) <-chan error {
	done := make(chan error, 1)

	if c.rasterizer == nil {
		done <- ErrUnsupported
		close(done)
		return done
	}

	c.mu.Lock()
	c.generation++
	gen := c.generation
	if c.cancel != nil {
		c.cancel()
	}
	renderCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	go func() {
		defer close(done)
		defer cancel()

		image, err := c.rasterizer.RenderPage(renderCtx, raw, page, c.scale)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				c.logger.Error("page render failed", "document", docID, "page", page, "error", err)
			}
			done <- err
			return
		}

		c.mu.Lock()
		defer c.mu.Unlock()
		if gen != c.generation {
			// A newer request has been issued; this raster is stale.
			c.logger.Debug("discarding stale render", "document", docID, "page", page)
			done <- context.Canceled
			return
		}
		c.latest = &Result{DocumentID: docID, Page: page, Image: image}
		done <- nil
	}()

	return done
}

// Latest returns the most recent non-stale render, if any.
func (c *Coordinator) Latest() (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.latest == nil {
		return Result{}, false
	}
	return *c.latest, true
}
