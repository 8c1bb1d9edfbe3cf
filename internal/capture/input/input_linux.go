//go:build linux

package input

/*
#cgo CFLAGS: -I/usr/include
#cgo LDFLAGS: -lX11 -lXtst -lXrecord

#include <X11/Xlib.h>
#include <X11/Xlibint.h>
#include <X11/extensions/record.h>
#include <X11/extensions/XTest.h>
#include <X11/keysym.h>
#include <stdlib.h>

extern void mfGoRecordCallback(int type, int detail, int rootX, int rootY);

typedef struct {
	CARD8 type;
	CARD8 detail;
	CARD16 seq;
	CARD32 time;
	CARD32 root;
	CARD32 event;
	CARD32 child;
	INT16 rootX, rootY;
	INT16 eventX, eventY;
	CARD16 state;
	CARD8 sameScreen;
} mfDeviceEvent;

static void mfRecordCallback(XPointer closure, XRecordInterceptData *data) {
	if (data->category == XRecordFromServer) {
		mfDeviceEvent *ev = (mfDeviceEvent *)data->data;
		mfGoRecordCallback(ev->type, ev->detail, ev->rootX, ev->rootY);
	}
	XRecordFreeData(data);
}

static Display *mf_ctrl = NULL;
static Display *mf_data = NULL;
static XRecordContext mf_ctx = 0;

static int mf_record_start(void) {
	mf_ctrl = XOpenDisplay(NULL);
	mf_data = XOpenDisplay(NULL);
	if (mf_ctrl == NULL || mf_data == NULL) {
		return 1;
	}

	XRecordRange *rng = XRecordAllocRange();
	if (rng == NULL) {
		return 2;
	}
	rng->device_events.first = KeyPress;
	rng->device_events.last = MotionNotify;

	XRecordClientSpec spec = XRecordAllClients;
	mf_ctx = XRecordCreateContext(mf_ctrl, 0, &spec, 1, &rng, 1);
	XFree(rng);
	if (mf_ctx == 0) {
		return 3;
	}
	if (!XRecordEnableContextAsync(mf_data, mf_ctx, mfRecordCallback, NULL)) {
		return 4;
	}
	return 0;
}

// mf_record_pump processes one batch of pending record events; called in a
// tight loop from Go so XRecordEnableContextAsync's callback fires without
// blocking the whole process in XRecordEnableContext's synchronous variant.
static void mf_record_pump(void) {
	if (mf_data != NULL) {
		XRecordProcessReplies(mf_data);
	}
}

static void mf_record_stop(void) {
	if (mf_ctx != 0 && mf_ctrl != NULL) {
		XRecordDisableContext(mf_ctrl, mf_ctx);
		XRecordFreeContext(mf_ctrl, mf_ctx);
		mf_ctx = 0;
	}
	if (mf_data != NULL) {
		XCloseDisplay(mf_data);
		mf_data = NULL;
	}
	if (mf_ctrl != NULL) {
		XCloseDisplay(mf_ctrl);
		mf_ctrl = NULL;
	}
}
*/
import "C"

import (
	"fmt"
	"sync"
	"time"

	"github.com/memscreen/memscreend/internal/model"
)

// xrecordHook observes global input via the X RECORD extension. This is the
// inverse of breeze's xdotool-based injection (input_linux.go there): RECORD
// taps the server's own event stream instead of synthesizing new events.
type xrecordHook struct {
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
}

// NewPlatform returns the Linux input observation hook.
func NewPlatform() Hook { return &xrecordHook{} }

var (
	hookMu     sync.Mutex
	hookEvents chan RawEvent
)

func (h *xrecordHook) Start() (<-chan RawEvent, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return nil, fmt.Errorf("input hook already running")
	}

	if code := C.mf_record_start(); code != 0 {
		return nil, fmt.Errorf("XRecordCreateContext failed (code %d); is DISPLAY set?", int(code))
	}

	out := make(chan RawEvent, 64)
	hookMu.Lock()
	hookEvents = out
	hookMu.Unlock()

	h.running = true
	h.stopCh = make(chan struct{})
	go h.pump(out, h.stopCh)
	return out, nil
}

func (h *xrecordHook) pump(out chan RawEvent, stop chan struct{}) {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			close(out)
			return
		case <-ticker.C:
			C.mf_record_pump()
		}
	}
}

func (h *xrecordHook) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.running {
		return nil
	}
	h.running = false
	close(h.stopCh)
	C.mf_record_stop()
	hookMu.Lock()
	hookEvents = nil
	hookMu.Unlock()
	return nil
}

//export mfGoRecordCallback
func mfGoRecordCallback(xtype, detail, rootX, rootY C.int) {
	hookMu.Lock()
	ch := hookEvents
	hookMu.Unlock()
	if ch == nil {
		return
	}

	ev := RawEvent{T: time.Now(), X: int(rootX), Y: int(rootY)}
	switch xtype {
	case 2: // KeyPress
		ev.Kind = model.InputKeyPress
		ev.Key = fmt.Sprintf("keycode:%d", int(detail))
	case 3: // KeyRelease
		ev.Kind = model.InputKeyRelease
		ev.Key = fmt.Sprintf("keycode:%d", int(detail))
	case 4: // ButtonPress
		if detail == 4 || detail == 5 {
			ev.Kind = model.InputMouseScroll
			if detail == 4 {
				ev.DeltaY = 1
			} else {
				ev.DeltaY = -1
			}
			break
		}
		ev.Kind = model.InputMouseDown
		ev.Button = buttonName(int(detail))
	case 5: // ButtonRelease
		if detail == 4 || detail == 5 {
			return // scroll "release" carries no new information
		}
		ev.Kind = model.InputMouseUp
		ev.Button = buttonName(int(detail))
	case 6: // MotionNotify
		ev.Kind = model.InputMouseMove
	default:
		return
	}

	select {
	case ch <- ev:
	default: // pump outruns Tracker; drop rather than block the record thread
	}
}

func buttonName(code int) string {
	switch code {
	case 1:
		return "left"
	case 2:
		return "middle"
	case 3:
		return "right"
	case 4, 5:
		return "scroll"
	default:
		return fmt.Sprintf("button%d", code)
	}
}
