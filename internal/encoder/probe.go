package encoder

import (
	"os"
	"time"

	"github.com/Eyevinn/mp4ff/mp4"
)

// ProbeResult is the authoritative duration/sample count read back from an
// encoded file, used instead of trusting the requested rate (spec §4.8,
// invariant 6 in spec.md §8).
type ProbeResult struct {
	Duration    time.Duration
	SampleCount int
}

// Probe opens an encoded mp4 and reads the video track's actual duration and
// sample count straight from its box tree.
func Probe(path string) (ProbeResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return ProbeResult{}, err
	}
	defer f.Close()

	parsed, err := mp4.DecodeFile(f)
	if err != nil {
		return ProbeResult{}, err
	}

	var videoTrak *mp4.TrakBox
	for _, trak := range parsed.Moov.Traks {
		if trak.Mdia != nil && trak.Mdia.Minf != nil && trak.Mdia.Minf.Vmhd != nil {
			videoTrak = trak
			break
		}
	}
	if videoTrak == nil && len(parsed.Moov.Traks) > 0 {
		videoTrak = parsed.Moov.Traks[0]
	}
	if videoTrak == nil {
		return ProbeResult{}, errNoVideoTrack
	}

	mdhd := videoTrak.Mdia.Mdhd
	var duration time.Duration
	if mdhd.Timescale > 0 {
		duration = time.Duration(mdhd.Duration) * time.Second / time.Duration(mdhd.Timescale)
	}

	sampleCount := 0
	if stbl := videoTrak.Mdia.Minf.Stbl; stbl != nil && stbl.Stsz != nil {
		sampleCount = int(stbl.Stsz.SampleNumber)
	}

	return ProbeResult{Duration: duration, SampleCount: sampleCount}, nil
}

var errNoVideoTrack = probeError("encoded file has no video track")

type probeError string

func (e probeError) Error() string { return string(e) }
