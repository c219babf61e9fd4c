package audio

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WavSource streams a decoded WAV file. With Realtime set, blocks are paced
// at playback speed so the visualization matches what a listener hears.
type WavSource struct {
	samples    []float32
	sampleRate uint32
	BlockSize  int
	Realtime   bool
}

// LoadWav decodes the WAV file at path.
func LoadWav(path string) (*WavSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening wav file: %w", err)
	}
	defer f.Close()
	return DecodeWav(f)
}

// DecodeWav reads a PCM WAV stream and downmixes it to mono.
func DecodeWav(r io.ReadSeeker) (*WavSource, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return nil, fmt.Errorf("%w: not a PCM wav file", ErrUnsupportedAudio)
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decoding wav: %w", err)
	}
	if buf.Format == nil || buf.Format.SampleRate <= 0 || buf.Format.NumChannels <= 0 {
		return nil, fmt.Errorf("%w: missing wav format", ErrUnsupportedAudio)
	}
	if buf.SourceBitDepth == 0 {
		buf.SourceBitDepth = int(d.BitDepth)
	}

	samples, err := intBufferToMono(buf)
	if err != nil {
		return nil, err
	}
	return &WavSource{
		samples:    samples,
		sampleRate: uint32(buf.Format.SampleRate),
		BlockSize:  DefaultBlockSize,
	}, nil
}

// intBufferToMono normalizes integer PCM to [-1, 1] and averages channels.
func intBufferToMono(buf *goaudio.IntBuffer) ([]float32, error) {
	depth := buf.SourceBitDepth
	if depth < 8 || depth > 32 {
		return nil, fmt.Errorf("%w: %d-bit samples", ErrUnsupportedAudio, depth)
	}
	scale := float32(int64(1) << (depth - 1))
	// 8-bit PCM is unsigned.
	offset := 0
	if depth == 8 {
		offset = 128
	}

	interleaved := make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		interleaved[i] = float32(v-offset) / scale
	}
	return downmix(interleaved, buf.Format.NumChannels), nil
}

// SampleRate returns the file's sample rate in Hz.
func (w *WavSource) SampleRate() uint32 { return w.sampleRate }

// Duration returns the playback length.
func (w *WavSource) Duration() time.Duration {
	return time.Duration(len(w.samples)) * time.Second / time.Duration(w.sampleRate)
}

func (w *WavSource) Stream(ctx context.Context) (<-chan []float32, error) {
	size := w.BlockSize
	if size <= 0 {
		size = DefaultBlockSize
	}
	out := make(chan []float32)

	go func() {
		defer close(out)

		var tick <-chan time.Time
		if w.Realtime {
			ticker := time.NewTicker(time.Duration(size) * time.Second / time.Duration(w.sampleRate))
			defer ticker.Stop()
			tick = ticker.C
		}

		for start := 0; start < len(w.samples); start += size {
			end := min(start+size, len(w.samples))
			if tick != nil {
				select {
				case <-ctx.Done():
					return
				case <-tick:
				}
			}
			select {
			case <-ctx.Done():
				return
			case out <- w.samples[start:end]:
			}
		}
	}()

	return out, nil
}

var _ Source = (*WavSource)(nil)
var _ Source = (*Recorder)(nil)
