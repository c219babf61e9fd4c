package audio

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/gen2brain/malgo"
)

// Recorder captures audio from the default input device and streams it as
// mono blocks.
type Recorder struct {
	ctx        *malgo.AllocatedContext
	sampleRate uint32
	channels   uint32

	mu      sync.Mutex
	device  *malgo.Device
	out     chan []float32
	dropped int
}

// NewRecorder creates a new audio recorder. Call Close() when done.
func NewRecorder(sampleRate, channels uint32) (*Recorder, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("initializing audio context: %w", err)
	}

	r := &Recorder{
		ctx:        ctx,
		sampleRate: sampleRate,
		channels:   channels,
	}

	return r, nil
}

// SampleRate returns the capture rate in Hz.
func (r *Recorder) SampleRate() uint32 { return r.sampleRate }

// Stream starts capturing. Blocks are dropped rather than queued when the
// consumer falls behind; capture stops when ctx is done.
func (r *Recorder) Stream(ctx context.Context) (<-chan []float32, error) {
	r.mu.Lock()
	if r.device != nil {
		r.mu.Unlock()
		return nil, fmt.Errorf("already streaming")
	}
	out := make(chan []float32, 64)
	r.out = out
	r.dropped = 0
	r.mu.Unlock()

	deviceCfg := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceCfg.Capture.Format = malgo.FormatF32
	deviceCfg.Capture.Channels = r.channels
	deviceCfg.SampleRate = r.sampleRate

	callbacks := malgo.DeviceCallbacks{
		Data: r.onData,
	}

	device, err := malgo.InitDevice(r.ctx.Context, deviceCfg, callbacks)
	if err != nil {
		r.reset()
		return nil, fmt.Errorf("initializing capture device: %w", err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		r.reset()
		return nil, fmt.Errorf("starting capture device: %w", err)
	}

	r.mu.Lock()
	r.device = device
	r.mu.Unlock()

	slog.Info("[AUDIO] capture started", "sample_rate", r.sampleRate, "channels", r.channels)

	go func() {
		<-ctx.Done()
		r.stop()
	}()

	return out, nil
}

func (r *Recorder) reset() {
	r.mu.Lock()
	r.out = nil
	r.mu.Unlock()
}

// stop detaches the output before Uninit so the callback never blocks on
// the mutex while the device thread is being joined.
func (r *Recorder) stop() {
	r.mu.Lock()
	device, out, dropped := r.device, r.out, r.dropped
	r.device = nil
	r.out = nil
	r.mu.Unlock()

	if device != nil {
		device.Uninit()
	}
	if out != nil {
		close(out)
		slog.Info("[AUDIO] capture stopped", "dropped_blocks", dropped)
	}
}

// IsStreaming returns whether the recorder is currently capturing audio.
func (r *Recorder) IsStreaming() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.device != nil
}

// Close releases all audio resources.
func (r *Recorder) Close() error {
	r.stop()

	if r.ctx != nil {
		if err := r.ctx.Uninit(); err != nil {
			return fmt.Errorf("uninitializing audio context: %w", err)
		}
		r.ctx.Free()
		r.ctx = nil
	}

	return nil
}

// onData is the malgo callback invoked when audio data is available.
// pSample contains the captured audio frames as raw bytes (float32 format).
func (r *Recorder) onData(_, pSample []byte, frameCount uint32) {
	sampleCount := frameCount * r.channels
	block := downmix(bytesToFloat32(pSample, sampleCount), int(r.channels))

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.out == nil {
		return
	}
	select {
	case r.out <- block:
	default:
		r.dropped++
	}
}

// bytesToFloat32 converts raw bytes (little-endian float32) to a float32 slice.
func bytesToFloat32(data []byte, sampleCount uint32) []float32 {
	samples := make([]float32, 0, sampleCount)
	for i := uint32(0); i < sampleCount; i++ {
		offset := i * 4
		if offset+4 > uint32(len(data)) {
			break
		}
		bits := binary.LittleEndian.Uint32(data[offset : offset+4])
		samples = append(samples, math.Float32frombits(bits))
	}
	return samples
}
