// Package session ties the recorder, the transcription coordinator and the
// journal into the record, stop, save flow used by every front end.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bosley/voxlog/access"
	"github.com/bosley/voxlog/journal"
	"github.com/bosley/voxlog/recorder"
	"github.com/bosley/voxlog/scribe"
)

// ErrNothingToSave is returned by Save before any recording was stopped.
var ErrNothingToSave = errors.New("no finished recording to save")

// Sink receives saved interactions.
type Sink interface {
	Save(ctx context.Context, in journal.Interaction) (journal.Interaction, error)
}

type Pipeline struct {
	Recorder *recorder.Controller
	Scribe   *scribe.Coordinator
	Sink     Sink

	// Serializes Save so one recording is stored once.
	saveMu sync.Mutex

	mu   sync.Mutex
	last *recorder.Recording
}

func (p *Pipeline) Start() (string, error) {
	path, err := p.Recorder.Start()
	if err != nil {
		return "", err
	}
	p.mu.Lock()
	p.last = nil
	p.mu.Unlock()
	return path, nil
}

func (p *Pipeline) Stop() (recorder.Recording, error) {
	rec, err := p.Recorder.Stop()
	if err != nil {
		return rec, err
	}
	p.mu.Lock()
	p.last = &rec
	p.mu.Unlock()
	return rec, nil
}

// Reset discards the stopped session. The audio file stays on disk.
func (p *Pipeline) Reset() error {
	if err := p.Recorder.Reset(); err != nil {
		return err
	}
	p.mu.Lock()
	p.last = nil
	p.mu.Unlock()
	return nil
}

// Last returns the most recently stopped recording that has not been saved.
func (p *Pipeline) Last() (recorder.Recording, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last == nil {
		return recorder.Recording{}, false
	}
	return *p.last, true
}

// Save waits for the transcript of the last recording and stores it. A
// failed transcription is still saved, with an empty transcript, and its
// error is returned alongside the stored interaction. A stored recording
// is not stored again: the next Save returns ErrNothingToSave.
func (p *Pipeline) Save(ctx context.Context, kind string) (journal.Interaction, error) {
	p.saveMu.Lock()
	defer p.saveMu.Unlock()

	rec, ok := p.Last()
	if !ok {
		return journal.Interaction{}, ErrNothingToSave
	}

	res, err := p.Scribe.Await(ctx, rec.Path)
	if err != nil && !savable(err) {
		return journal.Interaction{}, err
	}
	transcribeErr := err
	if transcribeErr == nil {
		transcribeErr = res.Err
	}
	if transcribeErr != nil {
		slog.Warn("Saving recording without transcript", "error", transcribeErr, "file", rec.Path)
	}

	saved, err := p.Sink.Save(ctx, journal.Interaction{
		OccurredAt:      rec.StartedAt,
		Kind:            kind,
		Transcript:      res.Text,
		DurationSeconds: rec.Duration.Seconds(),
		AudioPath:       rec.Path,
	})
	if err != nil {
		return journal.Interaction{}, fmt.Errorf("failed to save interaction: %w", err)
	}

	p.mu.Lock()
	if p.last != nil && p.last.Path == rec.Path {
		p.last = nil
	}
	p.mu.Unlock()

	slog.Info("Interaction saved",
		"id", saved.ID,
		"file", rec.Path,
		"chars", len(saved.Transcript))
	return saved, transcribeErr
}

// savable reports whether the audio is still worth saving without a transcript.
func savable(err error) bool {
	return errors.Is(err, scribe.ErrTranscriptionFailed) ||
		errors.Is(err, access.ErrPermissionDenied)
}
