package audio

import (
	"fmt"
	"math/cmplx"
	"strings"
	"time"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

// Range selects a frequency band.
type Range int

const (
	RangeBass Range = iota // 20-250 Hz
	RangeMid               // 250-2000 Hz
	RangeHigh              // 2000-20000 Hz
	RangeFull              // average of the three
)

var rangeNames = [...]string{"bass", "mid", "high", "full"}

func (r Range) String() string {
	if r < 0 || int(r) >= len(rangeNames) {
		return fmt.Sprintf("Range(%d)", int(r))
	}
	return rangeNames[r]
}

// ParseRange maps "bass", "mid", "high" or "full" to a Range.
func ParseRange(s string) (Range, error) {
	for i, name := range rangeNames {
		if strings.EqualFold(s, name) {
			return Range(i), nil
		}
	}
	return 0, fmt.Errorf("unknown frequency range %q", s)
}

const (
	// DefaultFFTSize is the analysis window in samples.
	DefaultFFTSize = 2048

	bandCount       = 3
	bandScaling     = 0.8
	maxDecay        = 0.9995
	smoothing       = 0.7
	beatFloor       = 0.3 // minimum normalized energy for a beat
	localBeatFactor = 1.3
	beatGap         = 200 * time.Millisecond
	historyLen      = 20
	bpmWindow       = 5 * time.Second
	minBPM, maxBPM  = 60.0, 200.0
)

var bandLimits = [bandCount][2]float64{
	{20, 250},
	{250, 2000},
	{2000, 20000},
}

// Spike ratios over the previous frame that count as a beat, per band.
var beatThresholds = [bandCount]float64{1.4, 1.3, 1.2}

// Levels is one analysis result. Energies are normalized to [0, 1] against
// an adaptive per-band maximum.
type Levels struct {
	Energy [4]float64 // indexed by Range
	Beat   [4]bool    // RangeFull is set when any band has a beat
	BPM    float64
}

// Analyzer measures band energy and detects beats over a sliding window.
// It is not safe for concurrent use.
type Analyzer struct {
	sampleRate float64
	size       int
	fft        *fourier.FFT
	window     []float64
	ring       []float64
	pos        int
	filled     int
	seq        []float64
	coeffs     []complex128

	energy   [bandCount]float64
	smoothed [bandCount]float64
	prev     [bandCount]float64
	max      [bandCount]float64
	history  [bandCount][]float64
	beat     [bandCount]bool

	lastBeat  time.Time
	beatTimes []time.Time
	bpm       float64
}

// NewAnalyzer creates an analyzer for the given sample rate. size is the
// FFT window; 0 selects DefaultFFTSize.
func NewAnalyzer(sampleRate uint32, size int) (*Analyzer, error) {
	if sampleRate == 0 {
		return nil, fmt.Errorf("sample rate must be > 0")
	}
	if size == 0 {
		size = DefaultFFTSize
	}
	if size < 64 {
		return nil, fmt.Errorf("fft size must be >= 64, got %d", size)
	}

	win := make([]float64, size)
	for i := range win {
		win[i] = 1
	}
	a := &Analyzer{
		sampleRate: float64(sampleRate),
		size:       size,
		fft:        fourier.NewFFT(size),
		window:     window.Hann(win),
		ring:       make([]float64, size),
		seq:        make([]float64, size),
		bpm:        120,
	}
	for i := range a.max {
		a.max[i] = 0.01
	}
	return a, nil
}

// Write appends samples to the analysis window.
func (a *Analyzer) Write(samples []float32) {
	for _, s := range samples {
		a.ring[a.pos] = float64(s)
		a.pos = (a.pos + 1) % a.size
	}
	a.filled = min(a.filled+len(samples), a.size)
}

// Analyze runs one FFT pass over the most recent window. It returns false
// until a full window has been written.
func (a *Analyzer) Analyze(now time.Time) bool {
	if a.filled < a.size {
		return false
	}

	// Oldest sample first.
	n := copy(a.seq, a.ring[a.pos:])
	copy(a.seq[n:], a.ring[:a.pos])
	for i := range a.seq {
		a.seq[i] *= a.window[i]
	}
	a.coeffs = a.fft.Coefficients(a.coeffs, a.seq)

	a.extractEnergy()
	a.detectBeats(now)
	return true
}

func (a *Analyzer) extractEnergy() {
	var sum [bandCount]float64
	var count [bandCount]int
	for i, c := range a.coeffs {
		freq := a.fft.Freq(i) * a.sampleRate
		for b, lim := range bandLimits {
			if freq >= lim[0] && freq <= lim[1] {
				sum[b] += cmplx.Abs(c)
				count[b]++
			}
		}
	}

	for b := range bandLimits {
		if count[b] == 0 {
			continue
		}
		e := sum[b] / float64(count[b]) * bandScaling
		a.energy[b] = e
		a.max[b] = a.max[b]*maxDecay + e*(1-maxDecay)
		if e > a.max[b] {
			a.max[b] = e
		}
		a.smoothed[b] = a.smoothed[b]*smoothing + e*(1-smoothing)
	}
}

func (a *Analyzer) detectBeats(now time.Time) {
	for b := range bandLimits {
		e := a.energy[b]
		h := append(a.history[b], e)
		if len(h) > historyLen {
			h = h[1:]
		}
		a.history[b] = h

		var avg float64
		for _, v := range h {
			avg += v
		}
		avg /= float64(len(h))

		norm := 0.0
		if a.max[b] > 0 {
			norm = e / a.max[b]
		}
		gapOK := a.lastBeat.IsZero() || now.Sub(a.lastBeat) > beatGap
		a.beat[b] = norm > beatFloor &&
			(e > a.prev[b]*beatThresholds[b] || (e > avg*localBeatFactor && gapOK))

		if a.beat[b] && Range(b) == RangeBass && gapOK {
			a.trackTempo(now)
		}
		a.prev[b] = e
	}
}

// trackTempo estimates BPM from bass beats over the last few seconds.
func (a *Analyzer) trackTempo(now time.Time) {
	a.lastBeat = now
	a.beatTimes = append(a.beatTimes, now)
	for len(a.beatTimes) > 0 && now.Sub(a.beatTimes[0]) > bpmWindow {
		a.beatTimes = a.beatTimes[1:]
	}
	if len(a.beatTimes) < 4 {
		return
	}
	span := a.beatTimes[len(a.beatTimes)-1].Sub(a.beatTimes[0]).Seconds()
	if span <= 0 {
		return
	}
	bpm := float64(len(a.beatTimes)-1) * 60 / span
	if bpm >= minBPM && bpm <= maxBPM {
		a.bpm = a.bpm*smoothing + bpm*(1-smoothing)
	}
}

// Energy returns the smoothed, normalized energy of r in [0, 1].
func (a *Analyzer) Energy(r Range) float64 {
	if r == RangeFull {
		var sum float64
		for b := 0; b < bandCount; b++ {
			sum += a.Energy(Range(b))
		}
		return sum / bandCount
	}
	if r < 0 || r > RangeHigh || a.max[r] <= 0 {
		return 0
	}
	return min(a.smoothed[r]/a.max[r], 1)
}

// Beat reports whether the last Analyze detected a beat in r.
func (a *Analyzer) Beat(r Range) bool {
	if r == RangeFull {
		return a.beat[0] || a.beat[1] || a.beat[2]
	}
	if r < 0 || r > RangeHigh {
		return false
	}
	return a.beat[r]
}

// BPM returns the tempo estimate, 120 until enough bass beats are seen.
func (a *Analyzer) BPM() float64 { return a.bpm }

// Levels snapshots the current analysis.
func (a *Analyzer) Levels() Levels {
	var l Levels
	for r := RangeBass; r <= RangeFull; r++ {
		l.Energy[r] = a.Energy(r)
		l.Beat[r] = a.Beat(r)
	}
	l.BPM = a.bpm
	return l
}
