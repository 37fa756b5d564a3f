package scribe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bosley/voxlog/access"
)

var (
	// ErrAlreadyInProgress rejects a call made while another transcription
	// is running. Wait for the running job instead of retrying.
	ErrAlreadyInProgress = errors.New("transcription already in progress")

	// ErrTranscriptionFailed wraps every backend failure, cancellation and
	// timeout included.
	ErrTranscriptionFailed = errors.New("transcription failed")
)

// Backend turns an audio file into text.
type Backend interface {
	Transcribe(ctx context.Context, path string) (string, error)
}

// Coordinator runs at most one transcription at a time and caches the
// final transcript of the current recording.
type Coordinator struct {
	backend Backend
	gate    access.Gate
	now     func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	final *Result
	// Non-nil while a job is in flight; the only admission gate.
	inflight  *Job
	discarded bool
	listeners []func(Result)
}

func New(backend Backend, gate access.Gate) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		backend: backend,
		gate:    gate,
		now:     time.Now,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Transcribe returns the cached transcript of file as an already finished
// job, or starts a backend call. It fails with ErrAlreadyInProgress while
// any other job is running.
func (c *Coordinator) Transcribe(file string) (*Job, error) {
	if c.gate == nil || !c.gate.SpeechGranted() {
		return nil, fmt.Errorf("speech recognition: %w", access.ErrPermissionDenied)
	}

	job, cached, ok := c.begin(file)
	if !cached && !ok {
		return nil, ErrAlreadyInProgress
	}
	return job, nil
}

// Finalize starts a best-effort transcription of a just-stopped recording.
// It never blocks and is skipped when a job is already running.
func (c *Coordinator) Finalize(file string) {
	if c.gate == nil || !c.gate.SpeechGranted() {
		slog.Warn("Speech recognition not authorized, skipping transcription", "file", file)
		return
	}
	if _, cached, ok := c.begin(file); !ok && !cached {
		slog.Debug("Transcription already in progress, skipping finalize", "file", file)
	}
}

// Forget drops the cached transcript of file. A running job for file still
// completes but its text is not cached.
func (c *Coordinator) Forget(file string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.final != nil && c.final.File == file {
		c.final = nil
	}
	if c.inflight != nil && c.inflight.File == file {
		c.discarded = true
	}
}

// Cached returns the final transcript for file, if one exists.
func (c *Coordinator) Cached(file string) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.final == nil || c.final.File != file {
		return Result{}, false
	}
	res := *c.final
	res.Source = SourceCached
	return res, true
}

// Running returns the in-flight job, if any.
func (c *Coordinator) Running() *Job {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inflight
}

// Await produces the transcript of file: from the cache, from a new job, or
// by waiting on the job already running for the same file. A job running
// for another file is waited out first. Failure still yields a Result
// whose Err wraps ErrTranscriptionFailed.
func (c *Coordinator) Await(ctx context.Context, file string) (Result, error) {
	for {
		job, err := c.Transcribe(file)
		if err == nil {
			return job.Wait(ctx)
		}
		if !errors.Is(err, ErrAlreadyInProgress) {
			return Result{}, err
		}

		running := c.Running()
		if running == nil {
			// Finished in between; try again.
			continue
		}
		if running.File == file {
			res, err := running.Wait(ctx)
			if err != nil {
				return Result{}, err
			}
			if cached, ok := c.Cached(file); ok {
				return cached, nil
			}
			return res, nil
		}

		slog.Debug("Waiting for running transcription",
			"file", file,
			"running", running.File,
			"job", running.ID)
		select {
		case <-running.Done():
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}
}

// OnResult registers fn to be called with every fresh result.
func (c *Coordinator) OnResult(fn func(Result)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Close cancels the running job, which then resolves as failed.
func (c *Coordinator) Close() {
	c.cancel()
}

// begin admits a job for file unless one is already running. The cache is
// checked under the same lock, so a job finishing concurrently is never
// followed by a second backend call for the same file.
func (c *Coordinator) begin(file string) (job *Job, cached, ok bool) {
	c.mu.Lock()
	if c.final != nil && c.final.File == file {
		res := *c.final
		c.mu.Unlock()
		res.Source = SourceCached
		return resolvedJob(res), true, false
	}
	if c.inflight != nil {
		c.mu.Unlock()
		return nil, false, false
	}
	job = newJob(file)
	c.inflight = job
	c.discarded = false
	c.mu.Unlock()

	slog.Info("Transcription started", "file", file, "job", job.ID)
	go c.run(job)
	return job, false, true
}

func (c *Coordinator) run(job *Job) {
	started := c.now()
	text, err := c.backend.Transcribe(c.ctx, job.File)

	res := Result{
		File:       job.File,
		Source:     SourceFresh,
		FinishedAt: c.now(),
	}
	if err != nil {
		res.Err = fmt.Errorf("%w: %w", ErrTranscriptionFailed, err)
		slog.Warn("Transcription failed",
			"error", err,
			"file", job.File,
			"job", job.ID)
	} else {
		res.Text = text
		res.Complete = true
		slog.Info("Transcription finished",
			"file", job.File,
			"job", job.ID,
			"seconds", res.FinishedAt.Sub(started).Seconds(),
			"chars", len(text))
	}

	c.mu.Lock()
	if res.Complete && !c.discarded {
		cached := res
		c.final = &cached
	}
	c.inflight = nil
	c.discarded = false
	listeners := append([]func(Result){}, c.listeners...)
	c.mu.Unlock()

	job.resolve(res)

	for _, fn := range listeners {
		fn(res)
	}
}
