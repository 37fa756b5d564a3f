package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bosley/voxlog/access"
	"github.com/bosley/voxlog/audio"
	"github.com/bosley/voxlog/journal"
	"github.com/bosley/voxlog/recorder"
	"github.com/bosley/voxlog/scribe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type manualTicker struct{ c chan time.Time }

func (t manualTicker) C() <-chan time.Time { return t.c }
func (t manualTicker) Stop()               {}

type tickers struct {
	mu sync.Mutex
	m  map[time.Duration]manualTicker
}

func (ts *tickers) New(d time.Duration) recorder.Ticker {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	t := manualTicker{c: make(chan time.Time)}
	ts.m[d] = t
	return t
}

func (ts *tickers) fire(d time.Duration) {
	ts.mu.Lock()
	t := ts.m[d]
	ts.mu.Unlock()
	t.c <- time.Now()
}

type wavCapture struct{ f *os.File }

func (c wavCapture) Power() (float64, float64) { return -30, -12 }

func (c wavCapture) Close() error {
	defer c.f.Close()
	return audio.UpdateWavHeader(c.f, 0)
}

type wavMic struct{}

func (wavMic) Open(path string) (recorder.Capture, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	if err := audio.WriteWavHeader(f, 0); err != nil {
		f.Close()
		return nil, err
	}
	return wavCapture{f: f}, nil
}

type stubBackend struct {
	mu    sync.Mutex
	calls int
	gate  chan struct{}
	text  string
	err   error
}

func (b *stubBackend) Transcribe(ctx context.Context, path string) (string, error) {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()
	<-b.gate
	return b.text, b.err
}

type fixture struct {
	pipe    *Pipeline
	tickers *tickers
	backend *stubBackend
	store   *journal.Store
	dir     string
}

func newFixture(t *testing.T, backend *stubBackend) *fixture {
	t.Helper()
	f := &fixture{
		tickers: &tickers{m: make(map[time.Duration]manualTicker)},
		backend: backend,
		dir:     filepath.Join(t.TempDir(), "recordings"),
	}

	gate := access.Static{Microphone: true, Speech: true}
	coord := scribe.New(backend, gate)
	t.Cleanup(coord.Close)

	// Each recording starts a minute after the previous one so names differ.
	base := time.Now()
	var starts atomic.Int64
	rec := recorder.New(recorder.Config{
		Dir:       f.dir,
		NewTicker: f.tickers.New,
		Now: func() time.Time {
			return base.Add(time.Duration(starts.Add(1)) * time.Minute)
		},
	}, wavMic{}, gate, coord)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		rec.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	store, err := journal.Open(filepath.Join(t.TempDir(), "journal.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	f.store = store

	f.pipe = &Pipeline{Recorder: rec, Scribe: coord, Sink: store}
	return f
}

func (f *fixture) record(t *testing.T, seconds int) recorder.Recording {
	t.Helper()
	_, err := f.pipe.Start()
	require.NoError(t, err)
	for i := 0; i < seconds; i++ {
		f.tickers.fire(recorder.DefaultSampleInterval)
		f.tickers.fire(recorder.DefaultTickInterval)
	}
	rec, err := f.pipe.Stop()
	require.NoError(t, err)
	return rec
}

func TestRecordStopSave(t *testing.T) {
	backend := &stubBackend{gate: make(chan struct{}), text: "coffee with jordan next week"}
	f := newFixture(t, backend)

	rec := f.record(t, 5)
	assert.Equal(t, 5*time.Second, rec.Duration)
	assert.FileExists(t, rec.Path)
	assert.Regexp(t, regexp.MustCompile(`^recording_\d{4}-\d{2}-\d{2}_\d{2}-\d{2}-\d{2}\.wav$`), filepath.Base(rec.Path))

	// Stop already launched the finalize job; saving waits on it.
	close(backend.gate)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	saved, err := f.pipe.Save(ctx, "coffee")
	require.NoError(t, err)
	assert.Equal(t, "coffee with jordan next week", saved.Transcript)
	assert.Equal(t, 5.0, saved.DurationSeconds)
	assert.Equal(t, rec.Path, saved.AudioPath)
	assert.Equal(t, "coffee", saved.Kind)

	backend.mu.Lock()
	assert.Equal(t, 1, backend.calls)
	backend.mu.Unlock()

	// Once finalized, the transcript is served from the cache.
	job, err := f.pipe.Scribe.Transcribe(rec.Path)
	require.NoError(t, err)
	res, ok := job.Result()
	require.True(t, ok)
	assert.Equal(t, scribe.SourceCached, res.Source)

	list, err := f.store.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, saved.ID, list[0].ID)
}

func TestFailedTranscriptionStillSaves(t *testing.T) {
	backend := &stubBackend{gate: make(chan struct{}), err: errors.New("no speech detected")}
	close(backend.gate)
	f := newFixture(t, backend)

	rec := f.record(t, 2)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	saved, err := f.pipe.Save(ctx, "")
	assert.ErrorIs(t, err, scribe.ErrTranscriptionFailed)
	assert.NotEmpty(t, saved.ID)
	assert.Empty(t, saved.Transcript)
	assert.Equal(t, rec.Path, saved.AudioPath)
	assert.FileExists(t, rec.Path)
}

func TestSaveNeedsARecording(t *testing.T) {
	backend := &stubBackend{gate: make(chan struct{})}
	f := newFixture(t, backend)

	_, err := f.pipe.Save(context.Background(), "")
	assert.ErrorIs(t, err, ErrNothingToSave)

	f.record(t, 1)
	require.NoError(t, f.pipe.Reset())
	_, err = f.pipe.Save(context.Background(), "")
	assert.ErrorIs(t, err, ErrNothingToSave)
	close(backend.gate)
}

func TestSaveStoresARecordingOnce(t *testing.T) {
	backend := &stubBackend{gate: make(chan struct{}), text: "renew passport"}
	close(backend.gate)
	f := newFixture(t, backend)

	f.record(t, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	first, err := f.pipe.Save(ctx, "")
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)

	_, err = f.pipe.Save(ctx, "")
	assert.ErrorIs(t, err, ErrNothingToSave)

	list, err := f.store.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, first.ID, list[0].ID)
}

func TestSaveWaitsOutEarlierRecordingsTranscription(t *testing.T) {
	backend := &stubBackend{gate: make(chan struct{}), text: "book the venue"}
	f := newFixture(t, backend)

	// The first recording is discarded while its transcription still runs.
	f.record(t, 1)
	require.NoError(t, f.pipe.Reset())
	rec := f.record(t, 2)

	go func() {
		time.Sleep(100 * time.Millisecond)
		close(backend.gate)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	saved, err := f.pipe.Save(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "book the venue", saved.Transcript)
	assert.Equal(t, rec.Path, saved.AudioPath)

	backend.mu.Lock()
	assert.Equal(t, 2, backend.calls)
	backend.mu.Unlock()
}
