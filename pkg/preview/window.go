package preview

import (
	"context"
	"log/slog"

	"gocv.io/x/gocv"
)

// DefaultTitle is the window title.
const DefaultTitle = "Control Audio Effects with your mouth"

// Window shows annotated frames and reports key presses. HighGUI must be
// driven from one thread, so Run is called from the main goroutine while
// frames arrive from the capture goroutine through Offer.
type Window struct {
	title  string
	frames chan gocv.Mat
	logger *slog.Logger
}

// NewWindow returns a window that opens when Run is called.
func NewWindow(title string, logger *slog.Logger) *Window {
	if logger == nil {
		logger = slog.Default()
	}
	return &Window{
		title:  title,
		frames: make(chan gocv.Mat, 1),
		logger: logger.With("component", "preview"),
	}
}

// Offer hands frame to the window, which takes ownership of it. The frame
// is closed instead when the previous one has not been shown yet.
func (w *Window) Offer(frame gocv.Mat) {
	select {
	case w.frames <- frame:
	default:
		frame.Close()
	}
}

// Run shows frames until ctx is done, calling onKey for each key pressed
// while the window has focus.
func (w *Window) Run(ctx context.Context, onKey func(rune)) {
	win := gocv.NewWindow(w.title)
	defer win.Close()
	w.logger.Info("preview window opened", "title", w.title)

	for {
		select {
		case <-ctx.Done():
			w.drain()
			return
		case frame := <-w.frames:
			win.IMShow(frame)
			frame.Close()
			if key := win.WaitKey(1); key >= 0 && onKey != nil {
				onKey(rune(key & 0xff))
			}
		}
	}
}

func (w *Window) drain() {
	for {
		select {
		case frame := <-w.frames:
			frame.Close()
		default:
			return
		}
	}
}
