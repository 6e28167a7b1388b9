package plotter

import (
	"context"
	"fmt"
	"time"
)

// FrameFunc refreshes the figure lines for one animation tick. Any error
// ends the animation; transient read failures are deliberately not
// retried.
type FrameFunc func(ctx context.Context) error

// Renderer draws the current state of a figure.
type Renderer interface {
	Render(fig *Figure) error
}

// Animator repeatedly invokes a frame callback and renders the result.
type Animator struct {
	Interval time.Duration // Delay between frames
	Frames   int           // Stop after this many frames, 0 runs until cancelled
}

// Run drives the loop until the frame budget is spent, the context is
// cancelled, or a frame or render fails. Cancellation surfaces as
// ctx.Err() so callers can treat an interrupt as a clean stop.
func (a *Animator) Run(ctx context.Context, fig *Figure, frame FrameFunc, r Renderer) error {
	interval := a.Interval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for count := 0; ; {
		if err := frame(ctx); err != nil {
			return fmt.Errorf("frame %d failed: %w", count, err)
		}
		if r != nil {
			if err := r.Render(fig); err != nil {
				return fmt.Errorf("failed to render frame %d: %w", count, err)
			}
		}

		count++
		if a.Frames > 0 && count >= a.Frames {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
