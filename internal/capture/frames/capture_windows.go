//go:build windows

package frames

import (
	"fmt"
	"syscall"
	"time"
	"unsafe"
)

// gdiCapturer captures via classic GDI BitBlt rather than DXGI desktop
// duplication: memscreend needs one still frame per sample interval, not a
// zero-copy GPU streaming path (see DESIGN.md's scoped-out capture depth).
type gdiCapturer struct{}

// NewPlatform returns the Windows screen capturer.
func NewPlatform() (Capturer, error) {
	return &gdiCapturer{}, nil
}

var (
	user32 = syscall.NewLazyDLL("user32.dll")
	gdi32  = syscall.NewLazyDLL("gdi32.dll")

	procGetDC         = user32.NewProc("GetDC")
	procReleaseDC     = user32.NewProc("ReleaseDC")
	procGetSystemMetr = user32.NewProc("GetSystemMetrics")
	procCreateCompDC  = gdi32.NewProc("CreateCompatibleDC")
	procCreateCompBmp = gdi32.NewProc("CreateCompatibleBitmap")
	procSelectObject  = gdi32.NewProc("SelectObject")
	procBitBlt        = gdi32.NewProc("BitBlt")
	procGetDIBits     = gdi32.NewProc("GetDIBits")
	procDeleteObject  = gdi32.NewProc("DeleteObject")
	procDeleteDC      = gdi32.NewProc("DeleteDC")
)

const (
	smCXScreen  = 0
	smCYScreen  = 1
	srcCopy     = 0x00CC0020
	biRGB       = 0
	dibRGBColor = 0
)

type bitmapInfoHeader struct {
	Size          uint32
	Width         int32
	Height        int32
	Planes        uint16
	BitCount      uint16
	Compression   uint32
	SizeImage     uint32
	XPelsPerMeter int32
	YPelsPerMeter int32
	ClrUsed       uint32
	ClrImportant  uint32
}

type bitmapInfo struct {
	Header bitmapInfoHeader
	Colors [1]uint32
}

func (c *gdiCapturer) ListDisplays() ([]Display, error) {
	w, _, _ := procGetSystemMetr.Call(uintptr(smCXScreen))
	h, _, _ := procGetSystemMetr.Call(uintptr(smCYScreen))
	return []Display{{Index: 0, DisplayID: "0", Name: "primary", Width: int(w), Height: int(h), IsPrimary: true}}, nil
}

// ListWindows needs EnumWindows/GetWindowText plumbing beyond the scope of
// the trimmed GDI capturer; memscreend reports none here, and WindowBounds
// below always returns an error, so mode="window" is not available on
// Windows.
func (c *gdiCapturer) ListWindows() ([]Window, error) { return nil, nil }

func (c *gdiCapturer) CaptureDisplay(displayID string) (Frame, error) {
	displays, err := c.ListDisplays()
	if err != nil || len(displays) == 0 {
		return Frame{}, ErrTargetGone
	}
	d := displays[0]
	return c.CaptureRegion(displayID, Rect{0, 0, d.Width, d.Height})
}

func (c *gdiCapturer) CaptureRegion(_ string, rect Rect) (Frame, error) {
	if rect.W <= 0 || rect.H <= 0 {
		return Frame{}, fmt.Errorf("%w: empty capture rect", ErrTargetGone)
	}

	screenDC, _, _ := procGetDC.Call(0)
	if screenDC == 0 {
		return Frame{}, fmt.Errorf("%w: GetDC failed", ErrTargetGone)
	}
	defer procReleaseDC.Call(0, screenDC)

	memDC, _, _ := procCreateCompDC.Call(screenDC)
	if memDC == 0 {
		return Frame{}, fmt.Errorf("%w: CreateCompatibleDC failed", ErrTargetGone)
	}
	defer procDeleteDC.Call(memDC)

	bmp, _, _ := procCreateCompBmp.Call(screenDC, uintptr(rect.W), uintptr(rect.H))
	if bmp == 0 {
		return Frame{}, fmt.Errorf("%w: CreateCompatibleBitmap failed", ErrTargetGone)
	}
	defer procDeleteObject.Call(bmp)

	old, _, _ := procSelectObject.Call(memDC, bmp)
	defer procSelectObject.Call(memDC, old)

	ok, _, _ := procBitBlt.Call(memDC, 0, 0, uintptr(rect.W), uintptr(rect.H),
		screenDC, uintptr(rect.X), uintptr(rect.Y), uintptr(srcCopy))
	if ok == 0 {
		return Frame{}, fmt.Errorf("%w: BitBlt failed", ErrTargetGone)
	}

	info := bitmapInfo{Header: bitmapInfoHeader{
		Size:        uint32(unsafe.Sizeof(bitmapInfoHeader{})),
		Width:       int32(rect.W),
		Height:      -int32(rect.H), // negative = top-down DIB
		Planes:      1,
		BitCount:    32,
		Compression: biRGB,
	}}
	buf := make([]byte, rect.W*rect.H*4)
	procGetDIBits.Call(memDC, bmp, 0, uintptr(rect.H),
		uintptr(unsafe.Pointer(&buf[0])), uintptr(unsafe.Pointer(&info)), dibRGBColor)

	// GetDIBits yields BGRA; convert in place to RGBA (spec §4.5's pixel
	// format contract).
	for i := 0; i+3 < len(buf); i += 4 {
		buf[i], buf[i+2] = buf[i+2], buf[i]
	}

	return Frame{Timestamp: time.Now(), Width: rect.W, Height: rect.H, Pix: buf}, nil
}

func (c *gdiCapturer) WindowBounds(title string) (string, Rect, error) {
	return "", Rect{}, fmt.Errorf("window enumeration unsupported on the trimmed GDI capturer: %q", title)
}

func (c *gdiCapturer) Close() error { return nil }
