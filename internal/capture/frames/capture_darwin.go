//go:build darwin

package frames

/*
#cgo CFLAGS: -x objective-c
#cgo LDFLAGS: -framework CoreGraphics -framework CoreFoundation

#include <CoreGraphics/CoreGraphics.h>
#include <stdlib.h>
#include <string.h>

typedef struct {
	void *data;
	int width;
	int height;
	int error;
} CaptureResult;

// mf_capture uses the legacy CGDisplayCreateImage API rather than
// ScreenCaptureKit: memscreend only needs one still image per sample
// interval, not a live async stream, so the simpler synchronous call is
// enough and needs no stream-permission negotiation.
static CaptureResult mf_capture(uint32_t displayID, int x, int y, int width, int height) {
	CaptureResult result = {0};
	CGImageRef full = CGDisplayCreateImage(displayID == 0 ? CGMainDisplayID() : displayID);
	if (full == NULL) {
		result.error = 1;
		return result;
	}

	CGImageRef image = full;
	if (width > 0 && height > 0) {
		CGRect rect = CGRectMake(x, y, width, height);
		image = CGImageCreateWithImageInRect(full, rect);
	}
	if (image == NULL) {
		CGImageRelease(full);
		result.error = 2;
		return result;
	}

	result.width = (int)CGImageGetWidth(image);
	result.height = (int)CGImageGetHeight(image);
	size_t bytesPerRow = result.width * 4;
	size_t n = bytesPerRow * result.height;
	result.data = malloc(n);
	if (result.data == NULL) {
		result.error = 3;
		goto done;
	}

	{
		CGColorSpaceRef colorSpace = CGColorSpaceCreateDeviceRGB();
		CGContextRef ctx = CGBitmapContextCreate(result.data, result.width, result.height, 8, bytesPerRow,
			colorSpace, kCGImageAlphaPremultipliedLast | kCGBitmapByteOrder32Big);
		if (ctx != NULL) {
			CGContextDrawImage(ctx, CGRectMake(0, 0, result.width, result.height), image);
			CGContextRelease(ctx);
		} else {
			result.error = 4;
		}
		CGColorSpaceRelease(colorSpace);
	}

done:
	if (image != full) {
		CGImageRelease(image);
	}
	CGImageRelease(full);
	return result;
}

static void mf_bounds(uint32_t displayID, int *width, int *height) {
	CGDirectDisplayID id = displayID == 0 ? CGMainDisplayID() : displayID;
	*width = (int)CGDisplayPixelsWide(id);
	*height = (int)CGDisplayPixelsHigh(id);
}
*/
import "C"

import (
	"fmt"
	"strconv"
	"time"
)

type coreGraphicsCapturer struct{}

// NewPlatform returns the macOS screen capturer.
func NewPlatform() (Capturer, error) {
	return &coreGraphicsCapturer{}, nil
}

func (c *coreGraphicsCapturer) parseID(displayID string) C.uint32_t {
	if displayID == "" {
		return 0
	}
	n, err := strconv.ParseUint(displayID, 10, 32)
	if err != nil {
		return 0
	}
	return C.uint32_t(n)
}

func (c *coreGraphicsCapturer) ListDisplays() ([]Display, error) {
	var w, h C.int
	C.mf_bounds(0, &w, &h)
	return []Display{{Index: 0, DisplayID: "0", Name: "main", Width: int(w), Height: int(h), IsPrimary: true}}, nil
}

// ListWindows is not implemented on the legacy CGDisplayCreateImage path;
// window enumeration needs CGWindowListCopyWindowInfo, out of scope for the
// trimmed still-capture-only adaptation (see DESIGN.md).
func (c *coreGraphicsCapturer) ListWindows() ([]Window, error) { return nil, nil }

func (c *coreGraphicsCapturer) CaptureDisplay(displayID string) (Frame, error) {
	return c.capture(displayID, 0, 0, 0, 0)
}

func (c *coreGraphicsCapturer) CaptureRegion(displayID string, rect Rect) (Frame, error) {
	return c.capture(displayID, rect.X, rect.Y, rect.W, rect.H)
}

func (c *coreGraphicsCapturer) capture(displayID string, x, y, w, h int) (Frame, error) {
	res := C.mf_capture(c.parseID(displayID), C.int(x), C.int(y), C.int(w), C.int(h))
	if res.error != 0 {
		return Frame{}, fmt.Errorf("%w: CGDisplayCreateImage failed (code %d)", ErrTargetGone, res.error)
	}
	defer C.free(res.data)
	width, height := int(res.width), int(res.height)
	pix := C.GoBytes(res.data, C.int(width*height*4))
	return Frame{Timestamp: time.Now(), Width: width, Height: height, Pix: pix}, nil
}

func (c *coreGraphicsCapturer) WindowBounds(title string) (string, Rect, error) {
	return "", Rect{}, fmt.Errorf("window enumeration unsupported on legacy CoreGraphics path: %q", title)
}

func (c *coreGraphicsCapturer) Close() error { return nil }
