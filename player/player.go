package player

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/bosley/voxlog/audio"
)

var (
	// ErrUnplayableFile means the file could not be decoded. Loading the same
	// file again will fail the same way.
	ErrUnplayableFile = errors.New("unplayable file")

	ErrInvalidState = errors.New("invalid player state")
	ErrInvalidRate  = errors.New("playback rate must be positive")
)

type State int

const (
	StateUnloaded State = iota
	StateReady
	StatePlaying
	StatePaused
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateReady:
		return "ready"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateFinished:
		return "finished"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Output opens an audio sink that pulls samples through fill.
type Output interface {
	Open(sampleRate int, fill func(out []int16)) (Stream, error)
}

type Stream interface {
	Start() error
	Stop() error
	Close() error
}

type Status struct {
	State    State         `json:"state"`
	File     string        `json:"file,omitempty"`
	Position time.Duration `json:"position"`
	Duration time.Duration `json:"duration"`
	Rate     float64       `json:"rate"`
}

// Controller plays one decoded file. The output stream keeps pulling while
// a file is loaded; anything but the playing state renders silence.
type Controller struct {
	out    Output
	decode func(string) (*audio.Clip, error)

	mu       sync.Mutex
	state    State
	clip     *audio.Clip
	cursor   float64 // frame index
	rate     float64
	stream   Stream
	finished chan struct{}
}

func New(out Output) *Controller {
	return &Controller{
		out:      out,
		decode:   audio.DecodeWAV,
		rate:     1,
		finished: make(chan struct{}),
	}
}

// Load decodes path and readies it for playback at position zero and
// normal rate. On failure the controller is left unloaded.
func (c *Controller) Load(path string) error {
	c.unload()

	clip, err := c.decode(path)
	if err != nil {
		slog.Warn("Failed to load audio file", "error", err, "file", path)
		return fmt.Errorf("%w: %w", ErrUnplayableFile, err)
	}

	stream, err := c.out.Open(clip.SampleRate, c.fill)
	if err != nil {
		return fmt.Errorf("failed to open audio output: %w", err)
	}

	c.mu.Lock()
	c.clip = clip
	c.cursor = 0
	c.rate = 1
	c.state = StateReady
	c.stream = stream
	c.rearm()
	c.mu.Unlock()

	if err := stream.Start(); err != nil {
		c.unload()
		return fmt.Errorf("failed to start audio output: %w", err)
	}

	slog.Debug("Loaded audio file",
		"file", path,
		"durationSeconds", clip.Duration().Seconds())
	return nil
}

// Play starts or resumes playback. Playing a finished file starts over.
func (c *Controller) Play() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateReady, StatePaused, StatePlaying:
	case StateFinished:
		c.cursor = 0
		c.rearm()
	default:
		return fmt.Errorf("%w: cannot play while %s", ErrInvalidState, c.state)
	}
	c.state = StatePlaying
	return nil
}

func (c *Controller) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateReady, StatePlaying, StatePaused:
		c.state = StatePaused
		return nil
	default:
		return fmt.Errorf("%w: cannot pause while %s", ErrInvalidState, c.state)
	}
}

// Seek moves to t, clamped into [0, duration]. Seeking a finished file
// leaves it paused at the new position.
func (c *Controller) Seek(t time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seek(t)
}

// Skip seeks by delta relative to the current position.
func (c *Controller) Skip(delta time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seek(c.position() + delta)
}

// SetRate changes the speed without moving the position.
func (c *Controller) SetRate(r float64) error {
	if r <= 0 || math.IsNaN(r) || math.IsInf(r, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidRate, r)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rate = r
	return nil
}

// Stop rewinds to the start and waits in ready. It is a no-op when
// nothing is loaded.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateUnloaded {
		return nil
	}
	c.cursor = 0
	c.state = StateReady
	c.rearm()
	return nil
}

// Finished is closed when the current file plays to its end. Leaving the
// finished state arms a new channel.
func (c *Controller) Finished() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.finished
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{State: c.state, Rate: c.rate}
	if c.clip != nil {
		st.File = c.clip.Path
		st.Duration = c.clip.Duration()
		st.Position = c.position()
	}
	return st
}

// Close releases the output stream.
func (c *Controller) Close() error {
	return c.unload()
}

func (c *Controller) seek(t time.Duration) error {
	if c.state == StateUnloaded {
		return fmt.Errorf("%w: cannot seek while %s", ErrInvalidState, c.state)
	}
	duration := c.clip.Duration()
	if t < 0 {
		t = 0
	}
	if t > duration {
		t = duration
	}
	c.cursor = t.Seconds() * float64(c.clip.SampleRate)
	if c.state == StateFinished {
		c.state = StatePaused
		c.rearm()
	}
	return nil
}

func (c *Controller) position() time.Duration {
	if c.clip == nil || c.clip.SampleRate == 0 {
		return 0
	}
	pos := time.Duration(c.cursor * float64(time.Second) / float64(c.clip.SampleRate))
	if d := c.clip.Duration(); pos > d {
		return d
	}
	return pos
}

// fill runs on the output callback thread.
func (c *Controller) fill(out []int16) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range out {
		if c.state != StatePlaying || c.clip == nil {
			out[i] = 0
			continue
		}
		idx := int(c.cursor)
		if idx >= len(c.clip.Samples) {
			c.cursor = float64(len(c.clip.Samples))
			c.finish()
			out[i] = 0
			continue
		}
		out[i] = c.clip.Samples[idx]
		c.cursor += c.rate
	}

	if c.state == StatePlaying && c.clip != nil && int(c.cursor) >= len(c.clip.Samples) {
		c.cursor = float64(len(c.clip.Samples))
		c.finish()
	}
}

func (c *Controller) finish() {
	c.state = StateFinished
	close(c.finished)
	slog.Debug("Playback finished", "file", c.clip.Path)
}

// rearm replaces a fired completion channel.
func (c *Controller) rearm() {
	select {
	case <-c.finished:
		c.finished = make(chan struct{})
	default:
	}
}

// unload must be called without c.mu held: stopping the stream waits for
// the fill callback.
func (c *Controller) unload() error {
	c.mu.Lock()
	stream := c.stream
	c.stream = nil
	c.mu.Unlock()

	var err error
	if stream != nil {
		if stopErr := stream.Stop(); stopErr != nil {
			slog.Error("Failed to stop audio output", "error", stopErr)
		}
		err = stream.Close()
	}

	c.mu.Lock()
	c.clip = nil
	c.cursor = 0
	c.rate = 1
	c.state = StateUnloaded
	c.rearm()
	c.mu.Unlock()
	return err
}
