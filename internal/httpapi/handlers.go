package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"aircheck/internal/job"
	"aircheck/internal/settings"
	logx "aircheck/pkg/logx"
)

// jobView is the API shape of a job: the record plus the scheduler's view of
// when it fires next.
type jobView struct {
	job.Job
	NextRun *time.Time `json:"next_run,omitempty"`
}

type statusView struct {
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Jobs          struct {
		Total     int `json:"total"`
		Scheduled int `json:"scheduled"`
		Recording int `json:"recording"`
		Error     int `json:"error"`
	} `json:"jobs"`
	StoragePath      string `json:"storage_path"`
	StorageFreeBytes uint64 `json:"storage_free_bytes,omitempty"`
}

type errorBody struct {
	Error string `json:"error"`
}

func (s *Server) view(j job.Job) jobView {
	v := jobView{Job: j}
	if s.sched != nil {
		if next, ok := s.sched.NextRun(j.ID); ok {
			v.NextRun = &next
		}
	}
	return v
}

func (s *Server) handleListJobs(w http.ResponseWriter, _ *http.Request) {
	jobs := s.reg.List()
	out := make([]jobView, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, s.view(j))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var spec job.Spec
	if err := decodeJSON(r, &spec); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	j, err := s.reg.Create(spec)
	if err != nil {
		var ve *job.ValidationError
		if errors.As(err, &ve) {
			writeError(w, http.StatusUnprocessableEntity, ve.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if s.sched != nil {
		s.sched.Install(j)
	}
	writeJSON(w, http.StatusCreated, s.view(j))
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	j, ok := s.reg.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, s.view(j))
}

func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	// Trigger first: once the record is gone, a firing for it is a noisy no-op.
	if s.sched != nil {
		s.sched.Uninstall(id)
	}
	if !s.reg.Delete(id) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.set.Current())
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var in settings.Settings
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.set.Save(in); err != nil {
		var inv *settings.InvalidError
		if errors.As(err, &inv) {
			writeError(w, http.StatusUnprocessableEntity, inv.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	// A timezone change takes effect on the running schedule immediately.
	if s.sched != nil {
		s.sched.ReloadLocation()
	}
	writeJSON(w, http.StatusOK, s.set.Current())
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	var v statusView
	v.Version = s.version
	v.UptimeSeconds = int64(time.Since(s.started).Seconds())

	for _, j := range s.reg.List() {
		v.Jobs.Total++
		switch j.Status {
		case job.StatusRecording:
			v.Jobs.Recording++
		case job.StatusError:
			v.Jobs.Error++
		default:
			v.Jobs.Scheduled++
		}
	}

	cfg := s.set.Current()
	v.StoragePath = cfg.StoragePath
	if free, err := diskFree(cfg.StoragePath); err == nil {
		v.StorageFreeBytes = free
	} else {
		s.log.Debug("disk free lookup failed", logx.String("path", cfg.StoragePath), logx.Err(err))
	}
	writeJSON(w, http.StatusOK, v)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}
