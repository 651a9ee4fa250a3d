// Package scheduler owns the live trigger bindings: one cron entry per
// installable job, interpreted in the timezone the settings name.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"aircheck/internal/job"
	"aircheck/internal/settings"
	"aircheck/internal/store"
	"aircheck/internal/trigger"
	logx "aircheck/pkg/logx"
)

// CaptureFunc starts a capture for a due job. It must return promptly; the
// trigger-evaluation loop is never allowed to stall behind a recording.
type CaptureFunc func(ctx context.Context, id, name, streamURL string, durationMinutes int)

// binding is the schedulable part of a job. The scheduler never holds
// mutable job state, only the immutable spec fields plus the cron entry.
type binding struct {
	id              string
	name            string
	streamURL       string
	cronExpr        string
	durationMinutes int
	entryID         cron.EntryID
}

type Service struct {
	log     logx.Logger
	set     *settings.Store
	reg     *job.Registry
	capture CaptureFunc

	mu   sync.Mutex
	c    *cron.Cron
	loc  *time.Location
	defs map[string]*binding

	// ctxMu guards the run context on its own: entry callbacks read it while
	// ReloadLocation holds mu and waits for them to drain.
	ctxMu     sync.Mutex
	runCtx    context.Context
	runCancel context.CancelFunc
}

func New(reg *job.Registry, set *settings.Store, capture CaptureFunc, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		log:     log,
		set:     set,
		reg:     reg,
		capture: capture,
		defs:    map[string]*binding{},
	}
}

// Start builds the cron runtime in the currently configured timezone and
// registers any bindings installed before startup.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.ctxMu.Lock()
	s.runCtx, s.runCancel = runCtx, cancel
	s.ctxMu.Unlock()

	loc := s.set.Current().Location()
	s.loc = loc
	s.c = cron.New(cron.WithParser(trigger.Parser()), cron.WithLocation(loc))
	for _, d := range s.defs {
		s.addEntryLocked(d)
	}
	s.c.Start()
	s.log.Info("scheduler started", logx.String("tz", loc.String()), logx.Int("triggers", len(s.defs)))
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	for _, d := range s.defs {
		d.entryID = 0
	}
	s.mu.Unlock()

	s.ctxMu.Lock()
	cancel := s.runCancel
	s.runCtx, s.runCancel = nil, nil
	s.ctxMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
		}
	}
	s.log.Info("scheduler stopped")
}

// Install binds the job's trigger. An invalid expression is logged and the
// job is left inert: still visible in the registry, but it will never fire.
func (s *Service) Install(j job.Job) {
	if !trigger.Validate(j.Cron) {
		s.log.Warn("trigger expression invalid; job left inert",
			logx.String("id", j.ID),
			logx.String("name", j.Name),
			logx.String("cron", j.Cron),
		)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Upsert: a re-install replaces the previous binding.
	s.removeLocked(j.ID)
	d := &binding{
		id:              j.ID,
		name:            j.Name,
		streamURL:       j.StreamURL,
		cronExpr:        j.Cron,
		durationMinutes: j.DurationMinutes,
	}
	s.defs[j.ID] = d
	if s.c != nil {
		s.addEntryLocked(d)
	}
}

// Uninstall cancels the job's trigger. Calling it for a job that was never
// installed (or is inert) is a no-op.
func (s *Service) Uninstall(id string) {
	s.mu.Lock()
	removed := s.removeLocked(id)
	s.mu.Unlock()
	if removed {
		s.log.Debug("trigger removed", logx.String("id", id))
	}
}

// Bootstrap rebuilds scheduler state from persisted records. Restored jobs
// are force-reset to scheduled (a persisted "recording" belonged to a process
// that no longer exists) and installed one by one; a job with a corrupt
// expression stays inert without blocking the valid ones.
func (s *Service) Bootstrap(recs []store.Record) {
	s.reg.Restore(recs)
	jobs := s.reg.List()
	installed := 0
	for _, j := range jobs {
		before := len(s.snapshotIDs())
		s.Install(j)
		if len(s.snapshotIDs()) > before {
			installed++
		}
	}
	s.log.Info("schedule restored",
		logx.Int("jobs", len(jobs)),
		logx.Int("installed", installed),
		logx.Int("inert", len(jobs)-installed),
	)
}

// ReloadLocation re-reads the settings timezone and, when it changed,
// restarts the cron runtime in the new zone and re-registers every binding.
// New and restarted jobs therefore pick up a timezone change without a
// process restart.
func (s *Service) ReloadLocation() {
	loc := s.set.Current().Location()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == nil || s.loc == nil || s.loc.String() == loc.String() {
		s.loc = loc
		return
	}

	<-s.c.Stop().Done()
	s.loc = loc
	s.c = cron.New(cron.WithParser(trigger.Parser()), cron.WithLocation(loc))
	for _, d := range s.defs {
		d.entryID = 0
		s.addEntryLocked(d)
	}
	s.c.Start()
	s.log.Info("scheduler restarted for timezone change", logx.String("tz", loc.String()))
}

// NextRun reports the next firing time for an installed job.
func (s *Service) NextRun(id string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.defs[id]
	if !ok || s.c == nil || d.entryID == 0 {
		return time.Time{}, false
	}
	e := s.c.Entry(d.entryID)
	if e.ID == 0 {
		return time.Time{}, false
	}
	return e.Next, true
}

// Installed reports whether the job has a live (non-inert) binding.
func (s *Service) Installed(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.defs[id]
	return ok
}

func (s *Service) addEntryLocked(d *binding) {
	id, name, url, dur := d.id, d.name, d.streamURL, d.durationMinutes
	eid, err := s.c.AddFunc(d.cronExpr, func() {
		s.ctxMu.Lock()
		ctx := s.runCtx
		s.ctxMu.Unlock()
		if ctx == nil || ctx.Err() != nil {
			return
		}
		s.log.Info("trigger fired", logx.String("id", id), logx.String("name", name))
		s.capture(ctx, id, name, url, dur)
	})
	if err != nil {
		// Validate() passed, so this is unexpected; the job degrades to inert.
		s.log.Error("trigger registration failed", logx.String("id", d.id), logx.Err(err))
		delete(s.defs, d.id)
		return
	}
	d.entryID = eid
}

func (s *Service) removeLocked(id string) bool {
	d, ok := s.defs[id]
	if !ok {
		return false
	}
	if s.c != nil && d.entryID != 0 {
		s.c.Remove(d.entryID)
	}
	delete(s.defs, id)
	return true
}

func (s *Service) snapshotIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.defs))
	for id := range s.defs {
		ids = append(ids, id)
	}
	return ids
}
