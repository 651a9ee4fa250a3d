package job

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"aircheck/internal/eventbus"
	"aircheck/internal/store"
	"aircheck/internal/trigger"
	logx "aircheck/pkg/logx"
)

// Registry is the exclusive owner of all job records.
//
// Every mutation is an atomic read-modify-write under the registry lock and
// writes the whole schedule through to the store. Persistence is best-effort:
// a failed write is logged, never surfaced, and the in-memory state stays
// authoritative until the next successful snapshot.
type Registry struct {
	log logx.Logger
	st  store.Store
	bus *eventbus.Bus

	mu   sync.Mutex
	jobs map[string]*Job

	// now is a test seam for identifier generation.
	now func() time.Time
}

func NewRegistry(st store.Store, bus *eventbus.Bus, log logx.Logger) *Registry {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Registry{
		log:  log,
		st:   st,
		bus:  bus,
		jobs: map[string]*Job{},
		now:  time.Now,
	}
}

// Create validates the spec, assigns an identifier and stores the job with
// status scheduled. An invalid spec leaves the registry untouched.
func (r *Registry) Create(spec Spec) (Job, error) {
	if strings.TrimSpace(spec.Name) == "" {
		return Job{}, &ValidationError{Field: "name", Reason: "required"}
	}
	if strings.TrimSpace(spec.StreamURL) == "" {
		return Job{}, &ValidationError{Field: "stream_url", Reason: "required"}
	}
	if spec.DurationMinutes <= 0 {
		return Job{}, &ValidationError{Field: "duration_minutes", Reason: "must be a positive integer"}
	}
	if !trigger.Validate(spec.Cron) {
		return Job{}, &ValidationError{Field: "cron", Reason: "malformed trigger expression"}
	}

	r.mu.Lock()
	now := r.now()
	j := &Job{
		ID:              r.newIDLocked(now),
		Name:            strings.TrimSpace(spec.Name),
		StreamURL:       strings.TrimSpace(spec.StreamURL),
		Cron:            strings.TrimSpace(spec.Cron),
		DurationMinutes: spec.DurationMinutes,
		CreatedAt:       now,
		Status:          StatusScheduled,
	}
	r.jobs[j.ID] = j
	cp := *j
	r.persistLocked()
	r.mu.Unlock()

	r.log.Info("job created",
		logx.String("id", cp.ID),
		logx.String("name", cp.Name),
		logx.String("cron", cp.Cron),
		logx.Int("duration_min", cp.DurationMinutes),
	)
	r.publish(eventbus.Event{Kind: eventbus.JobCreated, JobID: cp.ID, JobName: cp.Name})
	return cp, nil
}

// Get returns a copy of the job, if present.
func (r *Registry) Get(id string) (Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *j, true
}

// Delete removes the job. It reports false for unknown identifiers.
func (r *Registry) Delete(id string) bool {
	r.mu.Lock()
	j, ok := r.jobs[id]
	if !ok {
		r.mu.Unlock()
		return false
	}
	name := j.Name
	delete(r.jobs, id)
	r.persistLocked()
	r.mu.Unlock()

	r.log.Info("job deleted", logx.String("id", id), logx.String("name", name))
	r.publish(eventbus.Event{Kind: eventbus.JobDeleted, JobID: id, JobName: name})
	return true
}

// List returns copies of all jobs, ordered by identifier (creation order,
// since identifiers are creation-timestamp-derived).
func (r *Registry) List() []Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Job, 0, len(r.jobs))
	for _, j := range r.jobs {
		out = append(out, *j)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out
}

// Update applies fn to the job under the registry lock and persists the
// result. It reports false (and logs) when the identifier no longer exists;
// that is not an error, a job may be deleted mid-capture.
func (r *Registry) Update(id string, fn func(*Job)) bool {
	r.mu.Lock()
	j, ok := r.jobs[id]
	if !ok {
		r.mu.Unlock()
		r.log.Debug("update for missing job ignored", logx.String("id", id))
		return false
	}
	fn(j)
	r.persistLocked()
	r.mu.Unlock()
	return true
}

// Restore replaces the registry content from persisted records. Every
// restored job is forced to scheduled: a persisted recording status belongs
// to a process that no longer exists. An orphaned pending artifact is logged
// and dropped from the record; the partial file, if any, stays on disk.
func (r *Registry) Restore(recs []store.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = make(map[string]*Job, len(recs))
	for _, rec := range recs {
		if strings.TrimSpace(rec.ID) == "" {
			continue
		}
		j := &Job{
			ID:              rec.ID,
			Name:            rec.Name,
			StreamURL:       rec.StreamURL,
			Cron:            rec.Cron,
			DurationMinutes: rec.DurationMinutes,
			CreatedAt:       rec.CreatedAt,
			Status:          StatusScheduled,
			LastRecording:   rec.LastRecording,
		}
		if rec.Status == string(StatusRecording) && rec.CurrentRecording != "" {
			r.log.Warn("previous run left a recording in progress; resetting to scheduled",
				logx.String("id", j.ID),
				logx.String("name", j.Name),
				logx.String("orphaned_file", rec.CurrentRecording),
			)
		}
		r.jobs[j.ID] = j
	}
}

// newIDLocked derives a unique identifier from the creation timestamp,
// bumping on collision so concurrent creates stay distinguishable.
func (r *Registry) newIDLocked(now time.Time) string {
	ms := now.UnixMilli()
	for {
		id := strconv.FormatInt(ms, 10)
		if _, taken := r.jobs[id]; !taken {
			return id
		}
		ms++
	}
}

// persistLocked snapshots the schedule. Call with r.mu held.
func (r *Registry) persistLocked() {
	if r.st == nil {
		return
	}
	recs := make([]store.Record, 0, len(r.jobs))
	for _, j := range r.jobs {
		recs = append(recs, store.Record{
			ID:               j.ID,
			Name:             j.Name,
			StreamURL:        j.StreamURL,
			Cron:             j.Cron,
			DurationMinutes:  j.DurationMinutes,
			CreatedAt:        j.CreatedAt,
			Status:           string(j.Status),
			LastRecording:    j.LastRecording,
			CurrentRecording: j.CurrentRecording,
			LastError:        j.LastError,
		})
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := r.st.SaveJobs(ctx, recs); err != nil {
		r.log.Warn("schedule snapshot failed; in-memory state stays authoritative", logx.Err(err))
	}
}

func (r *Registry) publish(e eventbus.Event) {
	if r.bus != nil {
		r.bus.Publish(e)
	}
}
