package frames

import "errors"

// ErrUnsupportedTarget is returned by Open for a Target.Kind the platform
// capturer does not recognize.
var ErrUnsupportedTarget = errors.New("frames: unsupported capture target")

// ErrTargetGone is returned by a Capturer when the requested display or
// window can no longer be resolved (spec §4.5's target_gone).
var ErrTargetGone = errors.New("frames: capture target no longer exists")
