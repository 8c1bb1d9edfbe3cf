package audio

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/memscreen/memscreend/internal/model"
)

func TestResolveSource_FallsBackToNoneWhenUnavailable(t *testing.T) {
	diag := Diagnosis{}
	require.Equal(t, model.AudioNone, resolveSource(model.AudioMicrophone, diag))
	require.Equal(t, model.AudioNone, resolveSource(model.AudioSystem, diag))
	require.Equal(t, model.AudioNone, resolveSource(model.AudioMixed, diag))
}

func TestResolveSource_MixedDegradesToSingleChannel(t *testing.T) {
	diag := Diagnosis{MicrophoneAvailable: true}
	require.Equal(t, model.AudioMicrophone, resolveSource(model.AudioMixed, diag))

	diag = Diagnosis{SystemDeviceAvailable: true}
	require.Equal(t, model.AudioSystem, resolveSource(model.AudioMixed, diag))
}

func TestResolveSource_MixedWhenBothAvailable(t *testing.T) {
	diag := Diagnosis{MicrophoneAvailable: true, SystemDeviceAvailable: true}
	require.Equal(t, model.AudioMixed, resolveSource(model.AudioMixed, diag))
}

func TestBuffer_DurationMatchesSampleCount(t *testing.T) {
	b := &Buffer{}
	b.AppendSamples(make([]int, sampleRate)) // exactly one second
	require.InDelta(t, 1.0, b.Duration().Seconds(), 0.01)
}
