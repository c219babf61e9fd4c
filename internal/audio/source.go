// Package audio turns sound into LED commands: it captures or decodes
// audio, measures band energy and beats, and renders the result into
// color, brightness and effect updates for a Light.
package audio

import (
	"context"
	"errors"
)

// DefaultBlockSize is the number of mono samples per streamed block.
const DefaultBlockSize = 1024

// ErrUnsupportedAudio is returned for inputs the decoders cannot read.
var ErrUnsupportedAudio = errors.New("unsupported audio input")

// Source produces mono float32 sample blocks in [-1, 1].
type Source interface {
	SampleRate() uint32
	// Stream delivers blocks until ctx is done or the input is exhausted,
	// then closes the channel.
	Stream(ctx context.Context) (<-chan []float32, error)
}

// downmix averages interleaved frames into one channel.
func downmix(samples []float32, channels int) []float32 {
	if channels <= 1 {
		return samples
	}
	out := make([]float32, len(samples)/channels)
	for i := range out {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += samples[i*channels+c]
		}
		out[i] = sum / float32(channels)
	}
	return out
}
