package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bosley/voxlog/access"
	"github.com/bosley/voxlog/audio"
)

var (
	// ErrInvalidState is returned for an operation the current state forbids.
	ErrInvalidState = errors.New("invalid recorder state")

	// ErrClosed is returned once Run has exited.
	ErrClosed = errors.New("recorder closed")
)

type State int

const (
	StateIdle State = iota
	StateRecording
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Microphone opens a capture that writes to path until closed.
type Microphone interface {
	Open(path string) (Capture, error)
}

// Capture is an active recording. Power reports the most recent average
// and peak levels in dBFS. Close finalizes the file.
type Capture interface {
	Power() (avgDB, peakDB float64)
	Close() error
}

// Transcriber receives finished recordings. Finalize must not block.
type Transcriber interface {
	Finalize(path string)
	Forget(path string)
}

type Config struct {
	// Directory capture files are created in
	Dir string

	// Number of waveform bars kept
	WaveformSize int

	// Meter and duration tick periods
	SampleInterval time.Duration
	TickInterval   time.Duration

	Now       func() time.Time
	NewTicker func(time.Duration) Ticker
}

// Recording describes a finalized capture file.
type Recording struct {
	Path      string        `json:"path"`
	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"duration"`
}

// Snapshot is a copy of the session state handed to observers.
type Snapshot struct {
	State     State     `json:"state"`
	File      string    `json:"file,omitempty"`
	StartedAt time.Time `json:"startedAt,omitempty"`
	Elapsed   int       `json:"elapsed"`
	Level     float64   `json:"level"`
	Waveform  []float64 `json:"waveform"`
}

// Controller owns a single recording session. Every field below ops is
// touched only by the Run goroutine.
type Controller struct {
	cfg    Config
	mic    Microphone
	gate   access.Gate
	scribe Transcriber

	ops      chan func()
	closed   chan struct{}
	runOnce  sync.Once
	runError error

	state     State
	file      string
	startedAt time.Time
	elapsed   int
	level     float64
	wave      *Waveform
	capture   Capture

	sampleTick   Ticker
	durationTick Ticker

	subs    map[int]chan Snapshot
	nextSub int
}

// New creates a controller. scribe may be nil when no transcription is wanted.
func New(cfg Config, mic Microphone, gate access.Gate, scribe Transcriber) *Controller {
	if cfg.Dir == "" {
		cfg.Dir = "recordings"
	}
	if cfg.WaveformSize <= 0 {
		cfg.WaveformSize = DefaultWaveformSize
	}
	if cfg.SampleInterval <= 0 {
		cfg.SampleInterval = DefaultSampleInterval
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewTicker == nil {
		cfg.NewTicker = newStdTicker
	}

	return &Controller{
		cfg:    cfg,
		mic:    mic,
		gate:   gate,
		scribe: scribe,
		ops:    make(chan func()),
		closed: make(chan struct{}),
		wave:   NewWaveform(cfg.WaveformSize),
		subs:   make(map[int]chan Snapshot),
	}
}

// Run serializes every session mutation until ctx is cancelled. An active
// recording is finalized on the way out.
func (c *Controller) Run(ctx context.Context) error {
	c.runOnce.Do(func() {
		c.runError = c.loop(ctx)
	})
	return c.runError
}

func (c *Controller) loop(ctx context.Context) error {
	defer close(c.closed)
	slog.Debug("Recorder loop starting", "dir", c.cfg.Dir)

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return ctx.Err()

		case op := <-c.ops:
			op()

		case <-tickC(c.sampleTick):
			c.sample()

		case <-tickC(c.durationTick):
			if c.state == StateRecording {
				c.elapsed++
				c.publish()
			}
		}
	}
}

func (c *Controller) do(fn func()) error {
	done := make(chan struct{})
	select {
	case c.ops <- func() { fn(); close(done) }:
	case <-c.closed:
		return ErrClosed
	}
	<-done
	return nil
}

// Start opens a new capture file and begins recording. It returns the
// path of the file being written.
func (c *Controller) Start() (string, error) {
	var path string
	var err error
	if derr := c.do(func() { path, err = c.start() }); derr != nil {
		return "", derr
	}
	return path, err
}

// Stop finalizes the capture and hands it to the transcriber without
// waiting for the transcript.
func (c *Controller) Stop() (Recording, error) {
	var rec Recording
	var err error
	if derr := c.do(func() { rec, err = c.stop() }); derr != nil {
		return Recording{}, derr
	}
	return rec, err
}

// Reset returns a stopped session to idle. The capture file is kept.
func (c *Controller) Reset() error {
	var err error
	if derr := c.do(func() { err = c.reset() }); derr != nil {
		return derr
	}
	return err
}

func (c *Controller) Snapshot() (Snapshot, error) {
	var snap Snapshot
	err := c.do(func() { snap = c.snapshot() })
	return snap, err
}

// Subscribe returns a channel receiving a snapshot after every change,
// starting with the current state. Slow readers miss updates. The channel
// is closed by the returned cancel func or when Run exits.
func (c *Controller) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 16)
	id := -1
	err := c.do(func() {
		id = c.nextSub
		c.nextSub++
		c.subs[id] = ch
		ch <- c.snapshot()
	})
	if err != nil {
		close(ch)
		return ch, func() {}
	}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			_ = c.do(func() {
				if _, ok := c.subs[id]; ok {
					delete(c.subs, id)
					close(ch)
				}
			})
		})
	}
}

func (c *Controller) start() (string, error) {
	if c.state != StateIdle {
		return "", fmt.Errorf("%w: cannot start while %s", ErrInvalidState, c.state)
	}
	if c.gate == nil || !c.gate.MicrophoneGranted() {
		return "", fmt.Errorf("microphone: %w", access.ErrPermissionDenied)
	}
	if err := os.MkdirAll(c.cfg.Dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create recordings directory: %w", err)
	}

	now := c.cfg.Now()
	path := filepath.Join(c.cfg.Dir, audio.FileName(now))
	capture, err := c.mic.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open capture: %w", err)
	}

	c.capture = capture
	c.file = path
	c.startedAt = now
	c.elapsed = 0
	c.level = 0
	c.wave = NewWaveform(c.cfg.WaveformSize)
	c.startTickers()
	c.state = StateRecording

	slog.Info("Recording started", "file", path)
	c.publish()
	return path, nil
}

func (c *Controller) stop() (Recording, error) {
	if c.state != StateRecording {
		return Recording{}, fmt.Errorf("%w: cannot stop while %s", ErrInvalidState, c.state)
	}

	c.stopTickers()
	err := c.capture.Close()
	c.capture = nil
	c.level = 0
	c.state = StateStopped

	rec := Recording{
		Path:      c.file,
		StartedAt: c.startedAt,
		Duration:  time.Duration(c.elapsed) * time.Second,
	}
	c.publish()

	if err != nil {
		slog.Error("Failed to finalize recording", "error", err, "file", c.file)
		return rec, fmt.Errorf("failed to finalize recording: %w", err)
	}

	slog.Info("Recording stopped",
		"file", rec.Path,
		"durationSeconds", c.elapsed)

	if c.scribe != nil {
		c.scribe.Finalize(rec.Path)
	}
	return rec, nil
}

func (c *Controller) reset() error {
	if c.state != StateStopped {
		return fmt.Errorf("%w: cannot reset while %s", ErrInvalidState, c.state)
	}
	if c.scribe != nil {
		c.scribe.Forget(c.file)
	}

	c.state = StateIdle
	c.file = ""
	c.startedAt = time.Time{}
	c.elapsed = 0
	c.level = 0
	c.wave = NewWaveform(c.cfg.WaveformSize)
	c.publish()
	return nil
}

func (c *Controller) shutdown() {
	if c.state == StateRecording {
		c.stopTickers()
		if err := c.capture.Close(); err != nil {
			slog.Error("Failed to finalize recording on shutdown", "error", err, "file", c.file)
		} else {
			slog.Info("Recording finalized on shutdown", "file", c.file)
		}
		c.capture = nil
		c.state = StateStopped
	}
	for id, ch := range c.subs {
		delete(c.subs, id)
		close(ch)
	}
	slog.Debug("Recorder loop stopped")
}

func (c *Controller) snapshot() Snapshot {
	return Snapshot{
		State:     c.state,
		File:      c.file,
		StartedAt: c.startedAt,
		Elapsed:   c.elapsed,
		Level:     c.level,
		Waveform:  c.wave.Values(),
	}
}

func (c *Controller) publish() {
	if len(c.subs) == 0 {
		return
	}
	snap := c.snapshot()
	for id, ch := range c.subs {
		select {
		case ch <- snap:
		default:
			slog.Debug("Dropping snapshot for slow subscriber", "subscriber", id)
		}
	}
}
