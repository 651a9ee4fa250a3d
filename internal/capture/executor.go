// Package capture starts, bounds and observes the external recording process
// for one trigger firing.
package capture

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"aircheck/internal/eventbus"
	"aircheck/internal/job"
	"aircheck/internal/settings"
	logx "aircheck/pkg/logx"
)

// killGrace is how long past the requested duration a capture process may
// live before it is force-terminated. Guards against a source that never
// closes the stream.
const killGrace = 5 * time.Second

// Executor turns a due trigger into a bounded recording.
//
// Completion (natural exit) and the deadline timer race; every transition
// checks the job's current status first, so whichever event loses the race
// becomes a no-op. Status in the registry is the source of truth.
type Executor struct {
	log    logx.Logger
	reg    *job.Registry
	set    *settings.Store
	bus    *eventbus.Bus
	runner Runner

	// now is a test seam for artifact timestamps.
	now func() time.Time
	// grace is killGrace, shortened in tests.
	grace time.Duration
}

func NewExecutor(reg *job.Registry, set *settings.Store, bus *eventbus.Bus, runner Runner, log logx.Logger) *Executor {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Executor{
		log:    log,
		reg:    reg,
		set:    set,
		bus:    bus,
		runner: runner,
		now:    time.Now,
		grace:  killGrace,
	}
}

// Start begins a capture for the job. It returns immediately; the outcome is
// observed asynchronously and applied to the registry. Never panics: setup
// failures become a capture error on the job.
func (e *Executor) Start(ctx context.Context, id, name, streamURL string, durationMinutes int) {
	e.start(ctx, id, name, streamURL, time.Duration(durationMinutes)*time.Minute)
}

func (e *Executor) start(ctx context.Context, id, name, streamURL string, duration time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("panic during capture setup", logx.String("id", id), logx.Any("panic", r))
			e.failCapture(id, "", fmt.Sprintf("internal error: %v", r))
		}
	}()

	// The job may have been deleted between trigger fire and now.
	if _, ok := e.reg.Get(id); !ok {
		e.log.Error("capture requested for unknown job", logx.String("id", id), logx.String("name", name))
		return
	}

	// Settings are re-read on every capture start, never cached.
	cfg := e.set.Current()
	loc := cfg.Location()
	artifact := artifactName(name, e.now().In(loc), cfg.Ext())

	// Durable evidence a recording was in progress, before the process starts.
	// A leftover error belongs to the previous run; recording carries none.
	e.reg.Update(id, func(j *job.Job) {
		j.Status = job.StatusRecording
		j.CurrentRecording = artifact
		j.LastError = ""
	})

	if err := os.MkdirAll(cfg.StoragePath, 0o755); err != nil {
		e.failCapture(id, artifact, fmt.Sprintf("storage path: %v", err))
		return
	}

	req := Request{
		StreamURL:       streamURL,
		OutputPath:      filepath.Join(cfg.StoragePath, artifact),
		DurationSeconds: int(duration / time.Second),
		BitrateKbps:     cfg.BitrateKbps(),
		Format:          cfg.Ext(),
	}
	handle, err := e.runner.Run(ctx, req)
	if err != nil {
		e.failCapture(id, artifact, err.Error())
		return
	}

	e.log.Info("recording started",
		logx.String("id", id),
		logx.String("name", name),
		logx.String("artifact", artifact),
		logx.Duration("duration", duration),
	)
	e.publish(eventbus.Event{Kind: eventbus.CaptureStarted, JobID: id, JobName: name, Artifact: artifact})

	// Backstop: force-terminate a process that outlives its duration. The
	// timer always fires; its action is a no-op once the job left recording.
	// Transition before killing: once the job has left recording, the error
	// the killed process reports to the Wait goroutine is a no-op.
	deadline := time.AfterFunc(duration+e.grace, func() {
		e.forceStop(id, name, artifact)
		handle.Kill()
	})

	go func() {
		err := handle.Wait()
		deadline.Stop()
		if err != nil {
			e.log.Warn("recording failed",
				logx.String("id", id),
				logx.String("name", name),
				logx.String("artifact", artifact),
				logx.Err(err),
			)
			e.failCapture(id, artifact, err.Error())
			return
		}
		e.completeCapture(id, name, artifact)
	}()
}

// completeCapture applies the natural-success transition: back to scheduled,
// artifact promoted, pending and any prior error cleared.
func (e *Executor) completeCapture(id, name, artifact string) {
	applied := false
	e.reg.Update(id, func(j *job.Job) {
		if j.Status != job.StatusRecording || j.CurrentRecording != artifact {
			return
		}
		j.Status = job.StatusScheduled
		j.LastRecording = artifact
		j.CurrentRecording = ""
		j.LastError = ""
		applied = true
	})
	if !applied {
		return
	}
	e.log.Info("recording finished", logx.String("id", id), logx.String("artifact", artifact))
	e.publish(eventbus.Event{Kind: eventbus.CaptureFinished, JobID: id, JobName: name, Artifact: artifact})
}

// failCapture records a failed run: the pending artifact is considered
// incomplete and dropped, the job stays schedulable for its next trigger.
// An empty artifact marks a setup failure, which may land before the job
// ever reached recording.
func (e *Executor) failCapture(id, artifact, msg string) {
	e.reg.Update(id, func(j *job.Job) {
		switch j.Status {
		case job.StatusRecording:
			if artifact != "" && j.CurrentRecording != artifact {
				return
			}
		case job.StatusScheduled, job.StatusError:
			if artifact != "" {
				return
			}
		default:
			return
		}
		j.Status = job.StatusError
		j.LastError = msg
		j.CurrentRecording = ""
	})
	e.publish(eventbus.Event{Kind: eventbus.CaptureFailed, JobID: id, Artifact: artifact, Error: msg})
}

// forceStop runs when the deadline timer wins the race. A force-killed
// capture may still have produced a usable partial file, so the artifact is
// promoted best-effort.
func (e *Executor) forceStop(id, name, artifact string) {
	applied := false
	e.reg.Update(id, func(j *job.Job) {
		if j.Status != job.StatusRecording || j.CurrentRecording != artifact {
			return
		}
		j.Status = job.StatusScheduled
		j.LastRecording = artifact
		j.CurrentRecording = ""
		j.LastError = ""
		applied = true
	})
	if !applied {
		return
	}
	e.log.Warn("recording exceeded its duration; process killed",
		logx.String("id", id),
		logx.String("name", name),
		logx.String("artifact", artifact),
	)
	e.publish(eventbus.Event{Kind: eventbus.CaptureKilled, JobID: id, JobName: name, Artifact: artifact})
}

func (e *Executor) publish(ev eventbus.Event) {
	if e.bus != nil {
		e.bus.Publish(ev)
	}
}
