package encoder

import "github.com/memscreen/memscreend/internal/apperr"

// ErrEncoderUnavailable is returned when no muxer binary can be located.
var ErrEncoderUnavailable = apperr.Newf(apperr.EncoderUnavailable, "no ffmpeg-compatible binary found (checked runtime dir and $PATH)")
