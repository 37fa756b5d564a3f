package player

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bosley/voxlog/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStream struct {
	started, stopped, closed int
}

func (s *fakeStream) Start() error { s.started++; return nil }
func (s *fakeStream) Stop() error  { s.stopped++; return nil }
func (s *fakeStream) Close() error { s.closed++; return nil }

type fakeOutput struct {
	fill   func([]int16)
	rate   int
	stream *fakeStream
}

func (o *fakeOutput) Open(sampleRate int, fill func([]int16)) (Stream, error) {
	o.fill = fill
	o.rate = sampleRate
	o.stream = &fakeStream{}
	return o.stream, nil
}

// A 100 second clip at 10 Hz keeps frame arithmetic readable.
func testClip(path string) (*audio.Clip, error) {
	samples := make([]int16, 1000)
	for i := range samples {
		samples[i] = int16(i + 1)
	}
	return &audio.Clip{Path: path, SampleRate: 10, Samples: samples}, nil
}

func loaded(t *testing.T) (*Controller, *fakeOutput) {
	t.Helper()
	out := &fakeOutput{}
	c := New(out)
	c.decode = testClip
	require.NoError(t, c.Load("clip.wav"))
	return c, out
}

func TestLoadFailureLeavesUnloaded(t *testing.T) {
	out := &fakeOutput{}
	c := New(out)
	c.decode = func(string) (*audio.Clip, error) { return nil, errors.New("bad header") }

	err := c.Load("broken.wav")
	assert.ErrorIs(t, err, ErrUnplayableFile)
	assert.Equal(t, StateUnloaded, c.Status().State)
	assert.Nil(t, out.stream)

	assert.ErrorIs(t, c.Play(), ErrInvalidState)
	assert.ErrorIs(t, c.Seek(time.Second), ErrInvalidState)
	assert.ErrorIs(t, c.Skip(time.Second), ErrInvalidState)
	assert.NoError(t, c.Stop())
}

func TestLoadRealFileFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.wav")
	require.NoError(t, os.WriteFile(path, []byte("nope"), 0644))

	c := New(&fakeOutput{})
	assert.ErrorIs(t, c.Load(path), ErrUnplayableFile)
}

func TestPlayPauseTransitions(t *testing.T) {
	c, out := loaded(t)
	st := c.Status()
	assert.Equal(t, StateReady, st.State)
	assert.Equal(t, 100*time.Second, st.Duration)
	assert.Equal(t, 1, out.stream.started)

	buf := make([]int16, 5)
	out.fill(buf)
	assert.Equal(t, make([]int16, 5), buf, "ready renders silence")
	assert.Equal(t, time.Duration(0), c.Status().Position)

	require.NoError(t, c.Play())
	out.fill(buf)
	assert.Equal(t, []int16{1, 2, 3, 4, 5}, buf)
	assert.Equal(t, 500*time.Millisecond, c.Status().Position)

	require.NoError(t, c.Pause())
	assert.Equal(t, StatePaused, c.Status().State)
	out.fill(buf)
	assert.Equal(t, make([]int16, 5), buf)

	require.NoError(t, c.Play())
	assert.Equal(t, StatePlaying, c.Status().State)
}

func TestSeekAndSkipClamp(t *testing.T) {
	c, _ := loaded(t)

	require.NoError(t, c.Skip(1000*time.Second))
	assert.Equal(t, 100*time.Second, c.Status().Position)

	require.NoError(t, c.Seek(-5*time.Second))
	assert.Equal(t, time.Duration(0), c.Status().Position)

	require.NoError(t, c.Seek(40*time.Second))
	require.NoError(t, c.Skip(-15*time.Second))
	assert.Equal(t, 25*time.Second, c.Status().Position)

	require.NoError(t, c.Skip(-1000*time.Second))
	assert.Equal(t, time.Duration(0), c.Status().Position)
}

func TestRateKeepsPosition(t *testing.T) {
	c, out := loaded(t)
	require.NoError(t, c.Seek(10*time.Second))
	require.NoError(t, c.Play())

	require.NoError(t, c.SetRate(2))
	assert.Equal(t, 10*time.Second, c.Status().Position)
	assert.Equal(t, StatePlaying, c.Status().State)

	buf := make([]int16, 3)
	out.fill(buf)
	assert.Equal(t, []int16{101, 103, 105}, buf)
	assert.Equal(t, 10600*time.Millisecond, c.Status().Position)

	assert.ErrorIs(t, c.SetRate(0), ErrInvalidRate)
	assert.ErrorIs(t, c.SetRate(-1), ErrInvalidRate)
	assert.Equal(t, 2.0, c.Status().Rate)
}

func TestNaturalEndSignalsCompletion(t *testing.T) {
	c, out := loaded(t)
	done := c.Finished()

	require.NoError(t, c.Seek(99*time.Second))
	require.NoError(t, c.Play())

	buf := make([]int16, 20)
	out.fill(buf)
	assert.Equal(t, int16(991), buf[0])
	assert.Equal(t, int16(1000), buf[9])
	assert.Equal(t, int16(0), buf[10])

	select {
	case <-done:
	default:
		t.Fatal("completion not signalled")
	}
	st := c.Status()
	assert.Equal(t, StateFinished, st.State)
	assert.Equal(t, 100*time.Second, st.Position)

	// Further pulls are silent and do not signal again.
	out.fill(buf)
	assert.Equal(t, make([]int16, 20), buf)

	// Playing again starts over with a fresh signal.
	require.NoError(t, c.Play())
	assert.Equal(t, time.Duration(0), c.Status().Position)
	select {
	case <-c.Finished():
		t.Fatal("new cycle already signalled")
	default:
	}
}

func TestStopRewinds(t *testing.T) {
	c, out := loaded(t)
	require.NoError(t, c.Play())
	out.fill(make([]int16, 50))

	require.NoError(t, c.Stop())
	st := c.Status()
	assert.Equal(t, StateReady, st.State)
	assert.Equal(t, time.Duration(0), st.Position)

	require.NoError(t, c.Seek(100*time.Second))
	require.NoError(t, c.Play())
	out.fill(make([]int16, 1))
	assert.Equal(t, StateFinished, c.Status().State)

	require.NoError(t, c.Stop())
	assert.Equal(t, StateReady, c.Status().State)
}

func TestSeekFromFinishedPauses(t *testing.T) {
	c, out := loaded(t)
	require.NoError(t, c.Seek(100*time.Second))
	require.NoError(t, c.Play())
	out.fill(make([]int16, 1))
	require.Equal(t, StateFinished, c.Status().State)

	require.NoError(t, c.Seek(30*time.Second))
	st := c.Status()
	assert.Equal(t, StatePaused, st.State)
	assert.Equal(t, 30*time.Second, st.Position)
}

func TestCloseReleasesStream(t *testing.T) {
	c, out := loaded(t)
	stream := out.stream
	require.NoError(t, c.Close())
	assert.Equal(t, 1, stream.stopped)
	assert.Equal(t, 1, stream.closed)
	assert.Equal(t, StateUnloaded, c.Status().State)
}
