package scribe

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Source tells whether a result came from the cache or a backend call.
type Source int

const (
	SourceFresh Source = iota
	SourceCached
)

func (s Source) String() string {
	if s == SourceCached {
		return "cached"
	}
	return "fresh"
}

func (s Source) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Result is the outcome of one transcription. A failed transcription has an
// empty Text, Complete false and Err wrapping ErrTranscriptionFailed.
type Result struct {
	File       string    `json:"file"`
	Text       string    `json:"text"`
	Complete   bool      `json:"complete"`
	Source     Source    `json:"source"`
	FinishedAt time.Time `json:"finishedAt"`
	Err        error     `json:"-"`
}

// Job is a one-shot handle on a transcription. Its result is set exactly
// once, after which Done is closed.
type Job struct {
	ID   uuid.UUID
	File string

	done   chan struct{}
	result Result
}

func newJob(file string) *Job {
	return &Job{
		ID:   uuid.New(),
		File: file,
		done: make(chan struct{}),
	}
}

func resolvedJob(res Result) *Job {
	j := newJob(res.File)
	j.resolve(res)
	return j
}

func (j *Job) resolve(res Result) {
	j.result = res
	close(j.done)
}

func (j *Job) Done() <-chan struct{} { return j.done }

// Result returns the outcome if the job has finished.
func (j *Job) Result() (Result, bool) {
	select {
	case <-j.done:
		return j.result, true
	default:
		return Result{}, false
	}
}

// Wait blocks until the job finishes or ctx is done. Giving up on a job
// does not cancel it.
func (j *Job) Wait(ctx context.Context) (Result, error) {
	select {
	case <-j.done:
		return j.result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}
