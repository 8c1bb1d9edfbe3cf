// Package frames implements C5: a platform-abstracted screen grabber that
// enumerates displays/windows and captures a region at a target cadence.
package frames

import (
	"context"
	"time"
)

// Display describes one enumerated output (spec §4.5 list_displays).
type Display struct {
	Index     int
	DisplayID string
	Name      string
	Width     int
	Height    int
	IsPrimary bool
}

// Window describes one enumerated top-level window (spec §4.5 list_windows).
type Window struct {
	Title   string
	AppName string
	Bounds  Rect
}

// Rect is a rectangle in display coordinates.
type Rect struct {
	X, Y, W, H int
}

// TargetKind selects what a Target captures.
type TargetKind int

const (
	TargetFull TargetKind = iota
	TargetDisplay
	TargetRegion
	TargetWindow
)

// Target names what Open should capture.
type Target struct {
	Kind      TargetKind
	DisplayID string
	Region    Rect
	Window    string
}

// Frame carries one captured still image.
type Frame struct {
	Timestamp time.Time
	Width     int
	Height    int
	// Pix holds RGBA8 pixels, row-major, no padding (spec §4.5).
	Pix []byte
}

// CloseReason explains why a FrameStream closed before the caller asked it to.
type CloseReason int

const (
	ReasonNone CloseReason = iota
	ReasonTargetGone
	ReasonClosed
)

// Capturer is the platform-specific primitive: capture one still image.
type Capturer interface {
	ListDisplays() ([]Display, error)
	ListWindows() ([]Window, error)
	// CaptureDisplay grabs one full-display frame.
	CaptureDisplay(displayID string) (Frame, error)
	// CaptureRegion grabs one frame cropped to rect within the given display.
	CaptureRegion(displayID string, rect Rect) (Frame, error)
	// WindowBounds resolves a window's current bounds and owning display, or
	// an error if the window can no longer be found.
	WindowBounds(title string) (displayID string, bounds Rect, err error)
	Close() error
}

// Source is the contract spec §4.5 names.
type Source struct {
	capturer Capturer
}

// New wraps a platform Capturer in a Source.
func New(capturer Capturer) *Source {
	return &Source{capturer: capturer}
}

func (s *Source) ListDisplays() ([]Display, error) { return s.capturer.ListDisplays() }
func (s *Source) ListWindows() ([]Window, error)   { return s.capturer.ListWindows() }

// Open starts a FrameStream for target, sampling at most once per interval.
func (s *Source) Open(target Target, interval time.Duration) (*FrameStream, error) {
	if interval <= 0 {
		interval = time.Second
	}
	resolved, err := resolveTarget(s.capturer, target)
	if err != nil {
		return nil, err
	}
	fs := &FrameStream{
		capturer: s.capturer,
		target:   resolved,
		interval: interval,
		frames:   make(chan Frame, 1),
		closed:   make(chan struct{}),
	}
	go fs.run()
	return fs, nil
}

type resolvedTarget struct {
	kind      TargetKind
	displayID string
	rect      Rect
	window    string
}

func resolveTarget(c Capturer, t Target) (resolvedTarget, error) {
	switch t.Kind {
	case TargetFull, TargetDisplay:
		return resolvedTarget{kind: TargetDisplay, displayID: t.DisplayID}, nil
	case TargetRegion:
		return resolvedTarget{kind: TargetRegion, displayID: t.DisplayID, rect: t.Region}, nil
	case TargetWindow:
		// Open-Question #1: window mode resolves bounds once, then behaves
		// like region for the rest of the recording.
		displayID, bounds, err := c.WindowBounds(t.Window)
		if err != nil {
			return resolvedTarget{}, err
		}
		return resolvedTarget{kind: TargetRegion, displayID: displayID, rect: bounds, window: t.Window}, nil
	default:
		return resolvedTarget{}, ErrUnsupportedTarget
	}
}

// FrameStream produces frames no faster than the configured interval; when
// the consumer falls behind, the oldest undelivered frame is dropped and
// DroppedFrames increments (spec §4.5).
type FrameStream struct {
	capturer Capturer
	target   resolvedTarget
	interval time.Duration

	frames chan Frame
	closed chan struct{}

	closeOnce    closeOnce
	closeReason  CloseReason
	droppedCount int64
}

type closeOnce struct {
	done bool
}

func (fs *FrameStream) run() {
	ticker := time.NewTicker(fs.interval)
	defer ticker.Stop()
	defer close(fs.frames)

	for {
		select {
		case <-fs.closed:
			return
		case <-ticker.C:
			frame, err := fs.capture()
			if err != nil {
				fs.closeReason = ReasonTargetGone
				return
			}
			select {
			case fs.frames <- frame:
			default:
				// Consumer hasn't drained the last frame: drop it and
				// deliver the newest one instead.
				select {
				case <-fs.frames:
					fs.droppedCount++
				default:
				}
				select {
				case fs.frames <- frame:
				default:
				}
			}
		}
	}
}

func (fs *FrameStream) capture() (Frame, error) {
	if fs.target.kind == TargetRegion {
		return fs.capturer.CaptureRegion(fs.target.displayID, fs.target.rect)
	}
	return fs.capturer.CaptureDisplay(fs.target.displayID)
}

// Next blocks until a frame is available, the deadline elapses, or the
// stream closes (spec §4.5's next(deadline)).
func (fs *FrameStream) Next(ctx context.Context) (Frame, CloseReason, error) {
	select {
	case frame, ok := <-fs.frames:
		if !ok {
			reason := fs.closeReason
			if reason == ReasonNone {
				reason = ReasonClosed
			}
			return Frame{}, reason, nil
		}
		return frame, ReasonNone, nil
	case <-ctx.Done():
		return Frame{}, ReasonNone, ctx.Err()
	}
}

// DroppedFrames reports how many undelivered frames were discarded because
// the consumer fell behind.
func (fs *FrameStream) DroppedFrames() int64 { return fs.droppedCount }

// Close stops the stream's capture loop. The platform capturer belongs to
// the Source and is shared by every stream it opens, so it stays open.
func (fs *FrameStream) Close() error {
	if !fs.closeOnce.done {
		fs.closeOnce.done = true
		close(fs.closed)
	}
	return nil
}
