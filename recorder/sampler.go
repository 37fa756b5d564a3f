package recorder

import (
	"time"

	"github.com/bosley/voxlog/audio"
)

const (
	DefaultSampleInterval = 50 * time.Millisecond // 20 Hz meter
	DefaultTickInterval   = time.Second
)

// Ticker is the part of time.Ticker the controller needs. Tests substitute
// tickers they fire by hand.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type stdTicker struct{ t *time.Ticker }

func (s stdTicker) C() <-chan time.Time { return s.t.C }
func (s stdTicker) Stop()               { s.t.Stop() }

func newStdTicker(d time.Duration) Ticker {
	return stdTicker{t: time.NewTicker(d)}
}

func tickC(t Ticker) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C()
}

// sample reads the capture meter once. Only called from Run.
func (c *Controller) sample() {
	if c.state != StateRecording || c.capture == nil {
		return
	}
	avg, peak := c.capture.Power()
	c.level = audio.Normalize(peak)
	c.wave.Push(audio.Normalize(avg))
	c.publish()
}

func (c *Controller) startTickers() {
	c.sampleTick = c.cfg.NewTicker(c.cfg.SampleInterval)
	c.durationTick = c.cfg.NewTicker(c.cfg.TickInterval)
}

// stopTickers detaches both tickers so Run stops selecting on them. A tick
// already buffered in a stopped ticker is never read.
func (c *Controller) stopTickers() {
	if c.sampleTick != nil {
		c.sampleTick.Stop()
		c.sampleTick = nil
	}
	if c.durationTick != nil {
		c.durationTick.Stop()
		c.durationTick = nil
	}
}
