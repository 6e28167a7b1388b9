package plotter

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

type countingRenderer struct {
	renders int
	fail    error
}

func (r *countingRenderer) Render(fig *Figure) error {
	r.renders++
	return r.fail
}

func TestAnimatorFrameBudget(t *testing.T) {
	fig, _ := NewFigure(1, 1080.0, 77.0)
	frames := 0
	frame := func(ctx context.Context) error {
		frames++
		return nil
	}
	r := &countingRenderer{}

	a := &Animator{Interval: time.Millisecond, Frames: 5}
	if err := a.Run(context.Background(), fig, frame, r); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if frames != 5 {
		t.Errorf("frame callback ran %d times, want 5", frames)
	}
	if r.renders != 5 {
		t.Errorf("renderer ran %d times, want 5", r.renders)
	}
}

func TestAnimatorStopsOnCancel(t *testing.T) {
	fig, _ := NewFigure(1, 1080.0, 77.0)
	ctx, cancel := context.WithCancel(context.Background())

	frames := 0
	frame := func(ctx context.Context) error {
		frames++
		if frames == 2 {
			cancel()
		}
		return nil
	}

	a := &Animator{Interval: time.Millisecond}
	err := a.Run(ctx, fig, frame, &countingRenderer{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run returned %v, want context.Canceled", err)
	}
}

func TestAnimatorStopsOnFrameError(t *testing.T) {
	fig, _ := NewFigure(1, 1080.0, 77.0)
	readFailure := fmt.Errorf("bram read failed")
	frame := func(ctx context.Context) error {
		return readFailure
	}

	a := &Animator{Interval: time.Millisecond, Frames: 10}
	err := a.Run(context.Background(), fig, frame, &countingRenderer{})
	if !errors.Is(err, readFailure) {
		t.Fatalf("Run returned %v, want wrapped read failure", err)
	}
}

func TestAnimatorStopsOnRenderError(t *testing.T) {
	fig, _ := NewFigure(1, 1080.0, 77.0)
	frame := func(ctx context.Context) error { return nil }
	r := &countingRenderer{fail: fmt.Errorf("display gone")}

	a := &Animator{Interval: time.Millisecond, Frames: 10}
	if err := a.Run(context.Background(), fig, frame, r); err == nil {
		t.Fatal("Run succeeded, want render error")
	}
	if r.renders != 1 {
		t.Errorf("renderer ran %d times after failing, want 1", r.renders)
	}
}

func TestAnimatorNilRenderer(t *testing.T) {
	fig, _ := NewFigure(1, 1080.0, 77.0)
	frame := func(ctx context.Context) error { return nil }

	a := &Animator{Interval: time.Millisecond, Frames: 3}
	if err := a.Run(context.Background(), fig, frame, nil); err != nil {
		t.Fatalf("Run without renderer failed: %v", err)
	}
}
