//go:build linux

package frames

/*
#cgo CFLAGS: -I/usr/include
#cgo LDFLAGS: -lX11

#include <X11/Xlib.h>
#include <stdlib.h>

typedef struct {
	void *data;
	int width;
	int height;
	int error;
} CaptureResult;

static Display *mf_display = NULL;

static int mf_open(void) {
	if (mf_display != NULL) {
		return 0;
	}
	mf_display = XOpenDisplay(NULL);
	return mf_display == NULL ? 1 : 0;
}

static CaptureResult mf_capture(int x, int y, int width, int height) {
	CaptureResult result = {0};
	if (mf_open() != 0) {
		result.error = 1;
		return result;
	}
	int screen = DefaultScreen(mf_display);
	Window root = RootWindow(mf_display, screen);
	XImage *image = XGetImage(mf_display, root, x, y, width, height, AllPlanes, ZPixmap);
	if (image == NULL) {
		result.error = 2;
		return result;
	}
	result.width = image->width;
	result.height = image->height;
	size_t n = (size_t)result.width * result.height * 4;
	result.data = malloc(n);
	if (result.data == NULL) {
		XDestroyImage(image);
		result.error = 3;
		return result;
	}
	unsigned char *dst = (unsigned char *)result.data;
	for (int yy = 0; yy < result.height; yy++) {
		for (int xx = 0; xx < result.width; xx++) {
			unsigned long px = XGetPixel(image, xx, yy);
			int idx = (yy * result.width + xx) * 4;
			dst[idx+0] = (px >> 16) & 0xFF;
			dst[idx+1] = (px >> 8) & 0xFF;
			dst[idx+2] = px & 0xFF;
			dst[idx+3] = 255;
		}
	}
	XDestroyImage(image);
	return result;
}

static void mf_bounds(int *width, int *height, int *error) {
	if (mf_open() != 0) {
		*error = 1;
		return;
	}
	int screen = DefaultScreen(mf_display);
	*width = DisplayWidth(mf_display, screen);
	*height = DisplayHeight(mf_display, screen);
	*error = 0;
}

static void mf_close(void) {
	if (mf_display != NULL) {
		XCloseDisplay(mf_display);
		mf_display = NULL;
	}
}
*/
import "C"

import (
	"fmt"
	"sync"
	"time"
)

// x11Capturer implements Capturer via Xlib's XGetImage. Unlike breeze's
// agent-side capturer it has no XShm fast path and no DXGI-style tight loop:
// memscreend only needs one still image per sample interval (spec §4.5).
type x11Capturer struct {
	mu sync.Mutex
}

// NewPlatform returns the Linux screen capturer.
func NewPlatform() (Capturer, error) {
	return &x11Capturer{}, nil
}

func (c *x11Capturer) ListDisplays() ([]Display, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var w, h, errCode C.int
	C.mf_bounds(&w, &h, &errCode)
	if errCode != 0 {
		return nil, fmt.Errorf("open X11 display (is DISPLAY set?)")
	}
	return []Display{{Index: 0, DisplayID: "0", Name: "default", Width: int(w), Height: int(h), IsPrimary: true}}, nil
}

// ListWindows is best-effort: Xlib alone has no stable top-level window
// enumeration without an EWMH helper, so memscreend reports none on bare
// Xlib rather than shelling out to a window manager tool.
func (c *x11Capturer) ListWindows() ([]Window, error) {
	return nil, nil
}

func (c *x11Capturer) CaptureDisplay(displayID string) (Frame, error) {
	displays, err := c.ListDisplays()
	if err != nil {
		return Frame{}, err
	}
	if len(displays) == 0 {
		return Frame{}, ErrTargetGone
	}
	d := displays[0]
	return c.CaptureRegion(displayID, Rect{0, 0, d.Width, d.Height})
}

func (c *x11Capturer) CaptureRegion(_ string, rect Rect) (Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	res := C.mf_capture(C.int(rect.X), C.int(rect.Y), C.int(rect.W), C.int(rect.H))
	if res.error != 0 {
		return Frame{}, fmt.Errorf("%w: XGetImage failed (code %d)", ErrTargetGone, res.error)
	}
	defer C.free(res.data)
	width, height := int(res.width), int(res.height)
	pix := C.GoBytes(res.data, C.int(width*height*4))
	return Frame{Timestamp: time.Now(), Width: width, Height: height, Pix: pix}, nil
}

func (c *x11Capturer) WindowBounds(title string) (string, Rect, error) {
	return "", Rect{}, fmt.Errorf("window enumeration unsupported on bare Xlib: %q", title)
}

func (c *x11Capturer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	C.mf_close()
	return nil
}
