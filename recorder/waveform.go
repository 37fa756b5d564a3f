package recorder

// DefaultWaveformSize is the number of bars kept for the live waveform.
const DefaultWaveformSize = 50

// Waveform is a fixed-capacity FIFO of normalized levels. Its length never
// changes after construction; pushing overwrites the oldest value.
type Waveform struct {
	samples []float64
	head    int
}

func NewWaveform(size int) *Waveform {
	if size <= 0 {
		size = DefaultWaveformSize
	}
	return &Waveform{samples: make([]float64, size)}
}

func (w *Waveform) Push(v float64) {
	w.samples[w.head] = v
	w.head = (w.head + 1) % len(w.samples)
}

func (w *Waveform) Len() int { return len(w.samples) }

// Values returns a copy of the buffer, oldest first.
func (w *Waveform) Values() []float64 {
	out := make([]float64, 0, len(w.samples))
	out = append(out, w.samples[w.head:]...)
	return append(out, w.samples[:w.head]...)
}
