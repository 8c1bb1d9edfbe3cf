//go:build windows

package input

import "fmt"

// unsupportedHook reports that no native observation path is wired for this
// platform build (input tracking is optional per spec §4.7, and only the
// Linux hook is implemented).
type unsupportedHook struct{}

// NewPlatform returns the Windows input hook.
func NewPlatform() Hook { return &unsupportedHook{} }

func (h *unsupportedHook) Start() (<-chan RawEvent, error) {
	return nil, fmt.Errorf("input tracking unavailable on this platform build: WH_MOUSE_LL/WH_KEYBOARD_LL global hooks not implemented here")
}

func (h *unsupportedHook) Stop() error { return nil }
